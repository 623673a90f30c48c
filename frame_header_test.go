package obu

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m4tthewde/obu/internal/bitstream"
)

func roundTripFrameHeader(t *testing.T, seq *SequenceHeader, h *FrameHeader, refs *References) *FrameHeader {
	t.Helper()
	w := bitstream.NewWriter(64)
	require.NoError(t, WriteFrameHeader(w, seq, h))
	w.TrailingBits()
	r := bitstream.NewReader(w.Bytes())
	got, err := ReadFrameHeader(r, seq, refs)
	require.NoError(t, err)
	require.NoError(t, r.TrailingBits())
	if diff := cmp.Diff(h, got); diff != "" {
		t.Errorf("frame header mismatch (-want +got):\n%s", diff)
	}
	return got
}

func TestDefaultKeyFrameRoundTrip(t *testing.T) {
	seq := NewSequenceHeader(64, 64)
	h, err := NewKeyFrameHeader(seq)
	require.NoError(t, err)

	assert.Equal(t, FrameTypeKey, h.FrameType)
	assert.True(t, h.ShowFrame)
	assert.True(t, h.ErrorResilientMode)
	assert.Equal(t, AllFrames, h.RefreshFrameFlags)
	assert.Equal(t, PrimaryReferenceNone, h.PrimaryReferenceFrame)
	assert.Equal(t, 16, h.FrameSize.MiCols)
	assert.Equal(t, 1, h.TileInfo.TileCount())
	// base_q_idx 0 without deltas is lossless.
	assert.True(t, h.CodedLossless)
	assert.True(t, h.AllLossless)
	assert.Equal(t, TransformModeOnly4x4, h.TransformMode)
	assert.False(t, h.ApplyLoopFilter())
	assert.False(t, h.ApplyCDEF())
	assert.False(t, h.ApplyLoopRestoration())

	roundTripFrameHeader(t, seq, h, nil)
}

func richKeyFrame(t *testing.T) (*SequenceHeader, *FrameHeader) {
	t.Helper()
	seq := NewSequenceHeader(1920, 1080)
	seq.ColorConfig.SeparateUVDeltaQ = true
	h, err := NewKeyFrameHeader(seq)
	require.NoError(t, err)

	h.DisableCDFUpdate = true
	h.Quantization = QuantizationParameters{
		BaseQIndex:   100,
		DeltaQDc:     [MaxPlanes]int{-3, 5, -64},
		DeltaQAc:     [MaxPlanes]int{0, 63, 7},
		DiffUVDelta:  true,
		UsingQMatrix: true,
		QMLevel:      [MaxPlanes]int{1, 2, 3},
	}
	h.DeltaQ = DeltaQParameters{Present: true, Resolution: 2}
	h.DeltaLoopFilter = DeltaLoopFilterParameters{Present: true, Resolution: 1, Multi: true}

	h.LoopFilter.Level = [4]int{10, 12, 5, 6}
	h.LoopFilter.Sharpness = 3
	h.LoopFilter.DeltaUpdate = true
	h.LoopFilter.RefDeltas[ReferenceLast] = 2
	h.LoopFilter.RefDeltas[ReferenceGolden] = 0
	h.LoopFilter.ModeDeltas[1] = -1

	h.CDEF = CdefParameters{
		Damping:     5,
		Bits:        1,
		YPrimary:    [MaxCdefStrengths]int{4, 7},
		YSecondary:  [MaxCdefStrengths]int{4, 1},
		UVPrimary:   [MaxCdefStrengths]int{2, 0},
		UVSecondary: [MaxCdefStrengths]int{0, 2},
	}
	h.LoopRestoration = LoopRestorationParameters{
		Type:      [MaxPlanes]RestorationType{RestorationWiener, RestorationSgrProj, RestorationSwitchable},
		UnitShift: 2,
		UVShift:   1,
	}
	h.TransformMode = TransformModeSelect
	h.ReducedTransformSet = true

	require.NoError(t, h.Resolve(seq))
	h.TileInfo, err = UniformTileInfo(seq, h.FrameSize.MiCols, h.FrameSize.MiRows, 1, 1)
	require.NoError(t, err)
	return seq, h
}

func TestRichKeyFrameRoundTrip(t *testing.T) {
	seq, h := richKeyFrame(t)
	assert.Equal(t, 480, h.FrameSize.MiCols)
	assert.Equal(t, 270, h.FrameSize.MiRows)
	assert.False(t, h.CodedLossless)
	assert.Equal(t, 4, h.TileInfo.TileCount())
	assert.Equal(t, 3, h.SegmentQMLevel[PlaneV][0])

	got := roundTripFrameHeader(t, seq, h, nil)
	assert.Equal(t, 4, got.CDEF.YSecondary[0])
	assert.Equal(t, TransformModeSelect, got.TransformMode)
	assert.True(t, got.ApplyLoopFilter())
	assert.True(t, got.ApplyCDEF())
	assert.True(t, got.ApplyLoopRestoration())
	assert.Equal(t, 256, got.LoopRestoration.UnitSize(PlaneY))
	assert.Equal(t, 128, got.LoopRestoration.UnitSize(PlaneU))
}

func TestMonochromeKeyFrameRoundTrip(t *testing.T) {
	seq := NewSequenceHeader(100, 50)
	seq.ColorConfig.Monochrome = true
	h, err := NewKeyFrameHeader(seq)
	require.NoError(t, err)

	h.Quantization.BaseQIndex = 50
	h.Quantization.DeltaQDc[PlaneY] = 2
	h.LoopFilter.Level[0] = 3
	h.CDEF.YPrimary[0] = 9
	h.LoopRestoration = LoopRestorationParameters{Type: [MaxPlanes]RestorationType{RestorationWiener}}
	require.NoError(t, h.Resolve(seq))

	got := roundTripFrameHeader(t, seq, h, nil)
	assert.Equal(t, 64, got.LoopRestoration.UnitSize(PlaneY))
}

func TestWriteFrameHeaderRejectsChromaOnMonochrome(t *testing.T) {
	seq := NewSequenceHeader(64, 64)
	seq.ColorConfig.Monochrome = true
	h, err := NewKeyFrameHeader(seq)
	require.NoError(t, err)
	h.Quantization.BaseQIndex = 20
	h.LoopRestoration.Type[PlaneU] = RestorationWiener
	require.NoError(t, h.Resolve(seq))

	err = WriteFrameHeader(bitstream.NewWriter(16), seq, h)
	assert.True(t, errors.Is(err, ErrBounds), "got %v", err)
}

func TestSuperresKeyFrame(t *testing.T) {
	seq := NewSequenceHeader(1920, 1080)
	seq.EnableSuperres = true
	h, err := NewKeyFrameHeader(seq)
	require.NoError(t, err)

	h.FrameSize.UseSuperres = true
	h.FrameSize.SuperresDenominator = 16
	h.TileInfo = TileInfo{}
	h.LoopRestoration.Type = [MaxPlanes]RestorationType{RestorationSgrProj}
	require.NoError(t, h.Resolve(seq))

	assert.Equal(t, 960, h.FrameSize.FrameWidth)
	assert.Equal(t, 1920, h.FrameSize.UpscaledWidth)
	assert.Equal(t, 240, h.FrameSize.MiCols)
	assert.Equal(t, 1920, h.FrameSize.RenderWidth)
	// Coded lossless, but the upscaling step keeps loop restoration available.
	assert.True(t, h.CodedLossless)
	assert.False(t, h.AllLossless)
	assert.Equal(t, TransformModeOnly4x4, h.TransformMode)

	got := roundTripFrameHeader(t, seq, h, nil)
	assert.Equal(t, RestorationSgrProj, got.LoopRestoration.Type[PlaneY])
}

func TestComputeSuperres(t *testing.T) {
	tests := []struct {
		name        string
		upscaled    int
		useSuperres bool
		denominator int
		want        int
	}{
		{"disabled", 1920, false, 0, 1920},
		{"half", 1920, true, 16, 960},
		{"rounded", 1000, true, 9, 889},
		{"small floor", 20, true, 16, 16},
		{"tiny frame", 10, true, 16, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := FrameSize{UpscaledWidth: tt.upscaled, UseSuperres: tt.useSuperres, SuperresDenominator: tt.denominator}
			fs.computeSuperres()
			assert.Equal(t, tt.want, fs.FrameWidth)
		})
	}
}

func TestSuperresDenominatorRange(t *testing.T) {
	tests := []struct {
		denominator int
		valid       bool
	}{
		{0, false},
		{8, false},
		{9, true},
		{16, true},
		{17, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.denominator), func(t *testing.T) {
			seq := NewSequenceHeader(1920, 1080)
			seq.EnableSuperres = true
			h, err := NewKeyFrameHeader(seq)
			require.NoError(t, err)

			unresolved := *h
			unresolved.FrameSize.UseSuperres = true
			unresolved.FrameSize.SuperresDenominator = tt.denominator
			werr := WriteFrameHeader(bitstream.NewWriter(64), seq, &unresolved)

			h.FrameSize.UseSuperres = true
			h.FrameSize.SuperresDenominator = tt.denominator
			h.TileInfo = TileInfo{}
			rerr := h.Resolve(seq)
			if !tt.valid {
				assert.True(t, errors.Is(rerr, ErrBounds), "got %v", rerr)
				assert.True(t, errors.Is(werr, ErrBounds), "got %v", werr)
				return
			}
			require.NoError(t, rerr)
			roundTripFrameHeader(t, seq, h, nil)
		})
	}
}

func TestDeltaQParametersDependOnBaseIndex(t *testing.T) {
	r := bitstream.NewReader([]byte{0x00, 0xff})
	base, err := readBits(r, 8, "base_q_idx")
	require.NoError(t, err)
	require.Equal(t, 0, base)
	d, err := readDeltaQParameters(r, base)
	require.NoError(t, err)
	assert.False(t, d.Present)
	assert.Equal(t, 8, r.Position())

	r = bitstream.NewReader([]byte{0x01, 0xff})
	base, err = readBits(r, 8, "base_q_idx")
	require.NoError(t, err)
	d, err = readDeltaQParameters(r, base)
	require.NoError(t, err)
	assert.Equal(t, DeltaQParameters{Present: true, Resolution: 3}, d)
	assert.Equal(t, 11, r.Position())
}

func TestQIndex(t *testing.T) {
	h := &FrameHeader{}
	h.Quantization.BaseQIndex = 50
	h.Segmentation.Enabled = true
	h.Segmentation.FeatureEnabled[1][SegmentFeatureAlternativeQuantizer] = true

	tests := []struct {
		data int
		want int
	}{
		{10, 60},
		{300, MaxQ},
		{-100, 0},
	}
	for _, tt := range tests {
		h.Segmentation.FeatureData[1][SegmentFeatureAlternativeQuantizer] = tt.data
		assert.Equal(t, tt.want, h.QIndex(1))
	}
	assert.Equal(t, 50, h.QIndex(0))

	h.Segmentation.Enabled = false
	assert.Equal(t, 50, h.QIndex(1))
}

func TestUnsupportedFrameFeatures(t *testing.T) {
	_, err := readSegmentationParameters(bitstream.NewReader([]byte{0x80}))
	assert.True(t, errors.Is(err, ErrUnsupported), "segmentation: %v", err)

	seq := NewSequenceHeader(64, 64)
	seq.FilmGrainParamsPresent = true
	h := &FrameHeader{ShowFrame: true}
	err = h.readFilmGrain(bitstream.NewReader([]byte{0x80}), seq)
	assert.True(t, errors.Is(err, ErrUnsupported), "film grain: %v", err)

	h, err = NewKeyFrameHeader(seq)
	require.NoError(t, err)
	h.FilmGrain.ApplyGrain = true
	require.NoError(t, h.Resolve(seq))
	assert.True(t, errors.Is(WriteFrameHeader(bitstream.NewWriter(16), seq, h), ErrUnsupported))

	video := NewSequenceHeader(64, 64)
	video.ReducedStillPictureHeader = false
	_, err = ReadFrameHeader(bitstream.NewReader([]byte{0x20}), video, nil)
	assert.True(t, errors.Is(err, ErrUnsupported), "inter frame: %v", err)

	_, err = ReadFrameHeader(bitstream.NewReader([]byte{0x80}), video, nil)
	assert.True(t, errors.Is(err, ErrUnsupported), "show existing frame: %v", err)

	inter := &FrameHeader{FrameType: FrameTypeInter}
	assert.True(t, errors.Is(inter.Resolve(video), ErrUnsupported))
}

func TestIntraOnlyFrameRefreshingEverySlot(t *testing.T) {
	seq := NewSequenceHeader(64, 64)
	seq.ReducedStillPictureHeader = false
	// show_existing_frame 0, INTRA_ONLY_FRAME, show_frame 1, no error resilience, no cdf
	// update disable, no screen content, no size override, then refresh_frame_flags 0xff.
	_, err := ReadFrameHeader(bitstream.NewReader([]byte{0b0_10_1_0_0_0_0, 0xff}), seq, nil)
	assert.True(t, errors.Is(err, ErrMalformed), "got %v", err)
}

func TestReadFrameHeaderWithoutSequenceHeader(t *testing.T) {
	_, err := ReadFrameHeader(bitstream.NewReader([]byte{0}), nil, nil)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestWriteFrameHeaderRequiresResolve(t *testing.T) {
	seq := NewSequenceHeader(64, 64)
	h, err := NewKeyFrameHeader(seq)
	require.NoError(t, err)
	h.Quantization.BaseQIndex = 40
	assert.True(t, errors.Is(WriteFrameHeader(bitstream.NewWriter(16), seq, h), ErrBounds))

	require.NoError(t, h.Resolve(seq))
	h.FrameSize.UpscaledWidth = 32
	assert.True(t, errors.Is(WriteFrameHeader(bitstream.NewWriter(16), seq, h), ErrBounds))
}

func intraOnlySequence() *SequenceHeader {
	seq := NewSequenceHeader(128, 64)
	seq.ReducedStillPictureHeader = false
	seq.FrameIDNumbersPresent = true
	seq.DeltaFrameIDLength = 4
	seq.AdditionalFrameIDLength = 3
	seq.OrderHint = OrderHintInfo{EnableOrderHint: true, OrderHintBits: 5}
	return seq
}

func TestIntraOnlyFrameRoundTrip(t *testing.T) {
	seq := intraOnlySequence()
	h := &FrameHeader{
		FrameType:               FrameTypeIntraOnly,
		ShowFrame:               true,
		ErrorResilientMode:      true,
		AllowScreenContentTools: true,
		AllowIntraBlockCopy:     true,
		CurrentFrameID:          40,
		FrameSizeOverride:       true,
		OrderHint:               9,
		RefreshFrameFlags:       0x05,
		ReferenceOrderHints:     [ReferenceFrameCount]int{1, 2, 3, 4, 5, 6, 7, 8},
		FrameSize: FrameSize{
			UpscaledWidth:               100,
			FrameHeight:                 60,
			RenderAndFrameSizeDifferent: true,
			RenderWidth:                 99,
			RenderHeight:                59,
		},
		TransformMode: TransformModeLargest,
	}
	h.setupPastIndependence()
	h.Quantization.BaseQIndex = 30
	require.NoError(t, h.Resolve(seq))
	assert.True(t, h.ShowableFrame)
	assert.True(t, h.AllowIntraBlockCopy)
	assert.Equal(t, 26, h.FrameSize.MiCols)
	assert.Equal(t, 16, h.FrameSize.MiRows)
	assert.False(t, h.ApplyCDEF())

	refs := References{
		Valid:     [ReferenceFrameCount]bool{true, true, true, true, true, true, true, true},
		FrameID:   [ReferenceFrameCount]int{20, 24, 30, 40, 41, 100, 10, 35},
		OrderHint: [ReferenceFrameCount]int{1, 2, 3, 4, 0, 6, 7, 8},
	}
	got := roundTripFrameHeader(t, seq, h, &refs)

	assert.Equal(t, [ReferenceFrameCount]bool{false, true, true, true, false, false, false, true}, refs.Valid)
	assert.Equal(t, 5, refs.OrderHint[4])

	refs.Refresh(got)
	assert.True(t, refs.Valid[0])
	assert.Equal(t, 40, refs.FrameID[0])
	assert.Equal(t, 9, refs.OrderHint[2])
	assert.Equal(t, 100, refs.FrameID[5])
}

func TestReadFrameHeaderLeavesReferencesOnFailure(t *testing.T) {
	seq := intraOnlySequence()
	refs := References{FrameID: [ReferenceFrameCount]int{1, 2, 3, 4, 5, 6, 7, 8}}
	for i := range refs.Valid {
		refs.Valid[i] = true
	}
	before := refs

	// A shown key frame clears every slot before the truncated data runs out.
	_, err := ReadFrameHeader(bitstream.NewReader([]byte{0b0_00_1_0_0_0_0}), seq, &refs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, bitstream.ErrEndOfData))
	assert.Equal(t, before, refs)
}

func TestMarkStale(t *testing.T) {
	seq := intraOnlySequence()
	tests := []struct {
		name    string
		current int
		ids     [ReferenceFrameCount]int
		valid   [ReferenceFrameCount]bool
	}{
		{
			name:    "window",
			current: 40,
			ids:     [ReferenceFrameCount]int{23, 24, 30, 40, 41, 100, 0, 39},
			valid:   [ReferenceFrameCount]bool{false, true, true, true, false, false, false, true},
		},
		{
			name:    "wraparound",
			current: 5,
			ids:     [ReferenceFrameCount]int{0, 5, 6, 116, 117, 127, 3, 64},
			valid:   [ReferenceFrameCount]bool{true, true, false, false, true, true, true, false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs := References{FrameID: tt.ids}
			for i := range refs.Valid {
				refs.Valid[i] = true
			}
			refs.markStale(seq, tt.current)
			assert.Equal(t, tt.valid, refs.Valid)
		})
	}
}
