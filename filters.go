package obu

import (
	"github.com/m4tthewde/obu/internal/bitstream"
)

// Reference frame slots indexing loop filter deltas.
const (
	ReferenceIntra = iota
	ReferenceLast
	ReferenceLast2
	ReferenceLast3
	ReferenceGolden
	ReferenceBackward
	ReferenceAlternate2
	ReferenceAlternate
)

var (
	defaultLoopFilterRefDeltas  = [TotalReferencesPerFrame]int{1, 0, 0, 0, -1, 0, -1, -1}
	defaultLoopFilterModeDeltas = [2]int{}
)

// LoopFilterParameters is loop_filter_params(). Level holds the vertical and horizontal luma
// levels followed by the U and V levels.
type LoopFilterParameters struct {
	Level        [4]int
	Sharpness    int
	DeltaEnabled bool
	DeltaUpdate  bool
	RefDeltas    [TotalReferencesPerFrame]int
	ModeDeltas   [2]int
}

func defaultLoopFilterParameters() LoopFilterParameters {
	return LoopFilterParameters{
		DeltaEnabled: true,
		RefDeltas:    defaultLoopFilterRefDeltas,
		ModeDeltas:   defaultLoopFilterModeDeltas,
	}
}

// CdefParameters is cdef_params(). Secondary strengths hold the effective value, so a coded 3
// reads back as 4.
type CdefParameters struct {
	Damping     int
	Bits        int
	YPrimary    [MaxCdefStrengths]int
	YSecondary  [MaxCdefStrengths]int
	UVPrimary   [MaxCdefStrengths]int
	UVSecondary [MaxCdefStrengths]int
}

func defaultCdefParameters() CdefParameters {
	return CdefParameters{Damping: 3}
}

// LoopRestorationParameters is lr_params().
type LoopRestorationParameters struct {
	Type      [MaxPlanes]RestorationType
	UnitShift int
	UVShift   int
}

// UsesLR reports whether any plane restores.
func (l *LoopRestorationParameters) UsesLR() bool {
	for _, t := range l.Type {
		if t != RestorationNone {
			return true
		}
	}
	return false
}

func (l *LoopRestorationParameters) usesChromaLR() bool {
	return l.Type[PlaneU] != RestorationNone || l.Type[PlaneV] != RestorationNone
}

// UnitSize is LoopRestorationSize for the plane, in luma or chroma samples.
func (l *LoopRestorationParameters) UnitSize(plane Plane) int {
	size := restorationTileSizeMaximum >> (2 - l.UnitShift)
	if plane != PlaneY {
		size >>= l.UVShift
	}
	return size
}

func readLoopFilterParameters(r *bitstream.Reader, seq *SequenceHeader, h *FrameHeader) (LoopFilterParameters, error) {
	if h.CodedLossless || h.AllowIntraBlockCopy {
		return defaultLoopFilterParameters(), nil
	}
	lf := h.LoopFilter

	var err error
	if lf.Level[0], err = readBits(r, loopFilterLevelBits, "loop_filter_level[0]"); err != nil {
		return lf, err
	}
	if lf.Level[1], err = readBits(r, loopFilterLevelBits, "loop_filter_level[1]"); err != nil {
		return lf, err
	}
	if seq.ColorConfig.ChannelCount() > 1 && (lf.Level[0] != 0 || lf.Level[1] != 0) {
		if lf.Level[2], err = readBits(r, loopFilterLevelBits, "loop_filter_level[2]"); err != nil {
			return lf, err
		}
		if lf.Level[3], err = readBits(r, loopFilterLevelBits, "loop_filter_level[3]"); err != nil {
			return lf, err
		}
	}
	if lf.Sharpness, err = readBits(r, 3, "loop_filter_sharpness"); err != nil {
		return lf, err
	}
	if lf.DeltaEnabled, err = readFlag(r, "loop_filter_delta_enabled"); err != nil || !lf.DeltaEnabled {
		return lf, err
	}
	if lf.DeltaUpdate, err = readFlag(r, "loop_filter_delta_update"); err != nil || !lf.DeltaUpdate {
		return lf, err
	}
	for i := range lf.RefDeltas {
		update, err := readFlag(r, "update_ref_delta")
		if err != nil {
			return lf, err
		}
		if update {
			if lf.RefDeltas[i], err = readSigned(r, loopFilterDeltaBits, "loop_filter_ref_deltas"); err != nil {
				return lf, err
			}
		}
	}
	for i := range lf.ModeDeltas {
		update, err := readFlag(r, "update_mode_delta")
		if err != nil {
			return lf, err
		}
		if update {
			if lf.ModeDeltas[i], err = readSigned(r, loopFilterDeltaBits, "loop_filter_mode_deltas"); err != nil {
				return lf, err
			}
		}
	}
	return lf, nil
}

func writeLoopFilterParameters(w *bitstream.Writer, seq *SequenceHeader, h *FrameHeader) error {
	lf := &h.LoopFilter
	if h.CodedLossless || h.AllowIntraBlockCopy {
		if *lf != defaultLoopFilterParameters() {
			return boundsf("loop filter parameters cannot be coded for lossless or intra block copy frames")
		}
		return nil
	}

	if err := writeBits(w, lf.Level[0], loopFilterLevelBits, "loop_filter_level[0]"); err != nil {
		return err
	}
	if err := writeBits(w, lf.Level[1], loopFilterLevelBits, "loop_filter_level[1]"); err != nil {
		return err
	}
	if seq.ColorConfig.ChannelCount() > 1 && (lf.Level[0] != 0 || lf.Level[1] != 0) {
		if err := writeBits(w, lf.Level[2], loopFilterLevelBits, "loop_filter_level[2]"); err != nil {
			return err
		}
		if err := writeBits(w, lf.Level[3], loopFilterLevelBits, "loop_filter_level[3]"); err != nil {
			return err
		}
	} else if lf.Level[2] != 0 || lf.Level[3] != 0 {
		return boundsf("chroma loop filter levels need a non-zero luma level and chroma planes")
	}
	if err := writeBits(w, lf.Sharpness, 3, "loop_filter_sharpness"); err != nil {
		return err
	}
	if err := writeFlag(w, lf.DeltaEnabled, "loop_filter_delta_enabled"); err != nil {
		return err
	}
	changed := lf.RefDeltas != defaultLoopFilterRefDeltas || lf.ModeDeltas != defaultLoopFilterModeDeltas
	if !lf.DeltaEnabled || !lf.DeltaUpdate {
		if changed || lf.DeltaUpdate {
			return boundsf("loop filter deltas differ from defaults without loop_filter_delta_update")
		}
		if !lf.DeltaEnabled {
			return nil
		}
		return writeFlag(w, false, "loop_filter_delta_update")
	}
	if err := writeFlag(w, true, "loop_filter_delta_update"); err != nil {
		return err
	}
	for i, v := range lf.RefDeltas {
		update := v != defaultLoopFilterRefDeltas[i]
		if err := writeFlag(w, update, "update_ref_delta"); err != nil {
			return err
		}
		if update {
			if err := writeSigned(w, v, loopFilterDeltaBits, "loop_filter_ref_deltas"); err != nil {
				return err
			}
		}
	}
	for i, v := range lf.ModeDeltas {
		update := v != defaultLoopFilterModeDeltas[i]
		if err := writeFlag(w, update, "update_mode_delta"); err != nil {
			return err
		}
		if update {
			if err := writeSigned(w, v, loopFilterDeltaBits, "loop_filter_mode_deltas"); err != nil {
				return err
			}
		}
	}
	return nil
}

func cdefCoded(seq *SequenceHeader, h *FrameHeader) bool {
	return !h.CodedLossless && !h.AllowIntraBlockCopy && seq.EnableCDEF
}

func readSecondaryStrength(r *bitstream.Reader, name string) (int, error) {
	v, err := readBits(r, 2, name)
	if v == 3 {
		v++
	}
	return v, err
}

func readCdefParameters(r *bitstream.Reader, seq *SequenceHeader, h *FrameHeader) (CdefParameters, error) {
	cdef := defaultCdefParameters()
	if !cdefCoded(seq, h) {
		return cdef, nil
	}

	var err error
	if cdef.Damping, err = readBits(r, 2, "cdef_damping_minus_3"); err != nil {
		return cdef, err
	}
	cdef.Damping += 3
	if cdef.Bits, err = readBits(r, 2, "cdef_bits"); err != nil {
		return cdef, err
	}
	for i := 0; i < 1<<cdef.Bits; i++ {
		if cdef.YPrimary[i], err = readBits(r, 4, "cdef_y_pri_strength"); err != nil {
			return cdef, err
		}
		if cdef.YSecondary[i], err = readSecondaryStrength(r, "cdef_y_sec_strength"); err != nil {
			return cdef, err
		}
		if seq.ColorConfig.ChannelCount() > 1 {
			if cdef.UVPrimary[i], err = readBits(r, 4, "cdef_uv_pri_strength"); err != nil {
				return cdef, err
			}
			if cdef.UVSecondary[i], err = readSecondaryStrength(r, "cdef_uv_sec_strength"); err != nil {
				return cdef, err
			}
		}
	}
	return cdef, nil
}

func writeSecondaryStrength(w *bitstream.Writer, v int, name string) error {
	switch v {
	case 3:
		return boundsf("%s: secondary strength 3 cannot be coded", name)
	case 4:
		v = 3
	}
	return writeBits(w, v, 2, name)
}

func writeCdefParameters(w *bitstream.Writer, seq *SequenceHeader, h *FrameHeader) error {
	cdef := &h.CDEF
	if !cdefCoded(seq, h) {
		if *cdef != defaultCdefParameters() {
			return boundsf("CDEF parameters cannot be coded for this frame")
		}
		return nil
	}

	if err := writeBits(w, cdef.Damping-3, 2, "cdef_damping_minus_3"); err != nil {
		return err
	}
	if err := writeBits(w, cdef.Bits, 2, "cdef_bits"); err != nil {
		return err
	}
	for i := 0; i < 1<<cdef.Bits; i++ {
		if err := writeBits(w, cdef.YPrimary[i], 4, "cdef_y_pri_strength"); err != nil {
			return err
		}
		if err := writeSecondaryStrength(w, cdef.YSecondary[i], "cdef_y_sec_strength"); err != nil {
			return err
		}
		if seq.ColorConfig.ChannelCount() > 1 {
			if err := writeBits(w, cdef.UVPrimary[i], 4, "cdef_uv_pri_strength"); err != nil {
				return err
			}
			if err := writeSecondaryStrength(w, cdef.UVSecondary[i], "cdef_uv_sec_strength"); err != nil {
				return err
			}
		}
	}
	return nil
}

func loopRestorationCoded(seq *SequenceHeader, h *FrameHeader) bool {
	return !h.AllLossless && !h.AllowIntraBlockCopy && seq.EnableRestoration
}

func readLoopRestorationParameters(r *bitstream.Reader, seq *SequenceHeader, h *FrameHeader) (LoopRestorationParameters, error) {
	var lr LoopRestorationParameters
	if !loopRestorationCoded(seq, h) {
		return lr, nil
	}

	for plane := 0; plane < seq.ColorConfig.ChannelCount(); plane++ {
		t, err := readBits(r, 2, "lr_type")
		if err != nil {
			return lr, err
		}
		lr.Type[plane] = remapRestorationType[t]
	}
	if !lr.UsesLR() {
		return lr, nil
	}

	var err error
	if lr.UnitShift, err = readBits(r, 1, "lr_unit_shift"); err != nil {
		return lr, err
	}
	if seq.Use128x128Superblock {
		lr.UnitShift++
	} else if lr.UnitShift != 0 {
		extra, err := readBits(r, 1, "lr_unit_extra_shift")
		if err != nil {
			return lr, err
		}
		lr.UnitShift += extra
	}
	c := &seq.ColorConfig
	if c.SubsamplingX && c.SubsamplingY && lr.usesChromaLR() {
		if lr.UVShift, err = readBits(r, 1, "lr_uv_shift"); err != nil {
			return lr, err
		}
	}
	return lr, nil
}

func codedRestorationType(t RestorationType) (int, bool) {
	for coded, remapped := range remapRestorationType {
		if remapped == t {
			return coded, true
		}
	}
	return 0, false
}

func writeLoopRestorationParameters(w *bitstream.Writer, seq *SequenceHeader, h *FrameHeader) error {
	lr := &h.LoopRestoration
	if !loopRestorationCoded(seq, h) {
		if *lr != (LoopRestorationParameters{}) {
			return boundsf("loop restoration cannot be coded for this frame")
		}
		return nil
	}

	planes := seq.ColorConfig.ChannelCount()
	for plane, t := range lr.Type {
		if plane >= planes {
			if t != RestorationNone {
				return boundsf("restoration set on absent plane %d", plane)
			}
			continue
		}
		coded, ok := codedRestorationType(t)
		if !ok {
			return boundsf("unknown restoration type %d", t)
		}
		if err := writeBits(w, coded, 2, "lr_type"); err != nil {
			return err
		}
	}
	if !lr.UsesLR() {
		if lr.UnitShift != 0 || lr.UVShift != 0 {
			return boundsf("restoration unit shifts set without restoration")
		}
		return nil
	}

	if seq.Use128x128Superblock {
		if lr.UnitShift < 1 || lr.UnitShift > 2 {
			return boundsf("lr_unit_shift %d outside [1, 2] for 128x128 superblocks", lr.UnitShift)
		}
		if err := writeBits(w, lr.UnitShift-1, 1, "lr_unit_shift"); err != nil {
			return err
		}
	} else {
		if lr.UnitShift < 0 || lr.UnitShift > 2 {
			return boundsf("lr_unit_shift %d outside [0, 2]", lr.UnitShift)
		}
		if err := writeFlag(w, lr.UnitShift > 0, "lr_unit_shift"); err != nil {
			return err
		}
		if lr.UnitShift > 0 {
			if err := writeFlag(w, lr.UnitShift == 2, "lr_unit_extra_shift"); err != nil {
				return err
			}
		}
	}
	c := &seq.ColorConfig
	if c.SubsamplingX && c.SubsamplingY && lr.usesChromaLR() {
		return writeBits(w, lr.UVShift, 1, "lr_uv_shift")
	}
	if lr.UVShift != 0 {
		return boundsf("lr_uv_shift needs 4:2:0 chroma restoration")
	}
	return nil
}

// ApplyLoopFilter reports whether the deblocking filter runs on the frame.
func (h *FrameHeader) ApplyLoopFilter() bool {
	return !h.AllowIntraBlockCopy && (h.LoopFilter.Level[0] != 0 || h.LoopFilter.Level[1] != 0)
}

// ApplyCDEF reports whether CDEF runs on the frame.
func (h *FrameHeader) ApplyCDEF() bool {
	c := &h.CDEF
	return !h.AllowIntraBlockCopy && !h.CodedLossless &&
		(c.Bits != 0 || c.YPrimary[0] != 0 || c.YSecondary[0] != 0 || c.UVPrimary[0] != 0 || c.UVSecondary[0] != 0)
}

// ApplyLoopRestoration reports whether loop restoration runs on the frame.
func (h *FrameHeader) ApplyLoopRestoration() bool {
	return !h.AllowIntraBlockCopy && h.LoopRestoration.UsesLR()
}
