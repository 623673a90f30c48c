package obu

import (
	"github.com/m4tthewde/obu/internal/bitstream"
)

// FrameSize groups frame_size(), superres_params() and render_size(). FrameWidth is the coded
// width after super resolution downscaling; UpscaledWidth is the width carried in the stream.
type FrameSize struct {
	FrameWidth                  int
	FrameHeight                 int
	UpscaledWidth               int
	UseSuperres                 bool
	SuperresDenominator         int
	RenderAndFrameSizeDifferent bool
	RenderWidth                 int
	RenderHeight                int
	MiCols                      int
	MiRows                      int
}

func (fs *FrameSize) computeSuperres() {
	if !fs.UseSuperres {
		fs.SuperresDenominator = superresNumerator
	}
	fs.FrameWidth = (fs.UpscaledWidth*superresNumerator + fs.SuperresDenominator/2) / fs.SuperresDenominator
	if fs.SuperresDenominator != superresNumerator {
		fs.FrameWidth = max(fs.FrameWidth, min(16, fs.UpscaledWidth))
	}
}

// checkSuperres rejects a denominator coded_denom cannot express.
func (fs *FrameSize) checkSuperres() error {
	maximum := superresDenominatorMinimum + 1<<superresDenominatorBits - 1
	if fs.UseSuperres && (fs.SuperresDenominator < superresDenominatorMinimum || fs.SuperresDenominator > maximum) {
		return boundsf("super resolution denominator %d outside [%d, %d]",
			fs.SuperresDenominator, superresDenominatorMinimum, maximum)
	}
	return nil
}

func (fs *FrameSize) computeImageSize() {
	fs.MiCols = 2 * ((fs.FrameWidth + 7) >> 3)
	fs.MiRows = 2 * ((fs.FrameHeight + 7) >> 3)
}

type SkipModeParameters struct {
	Present bool
	Frame   [2]int
}

// FilmGrainParameters only carries the apply_grain gate; grain synthesis parameters are not
// supported.
type FilmGrainParameters struct {
	ApplyGrain bool
}

// FrameHeader is uncompressed_header() for intra frames.
type FrameHeader struct {
	ShowExistingFrame        bool
	FrameType                FrameType
	ShowFrame                bool
	ShowableFrame            bool
	ErrorResilientMode       bool
	DisableCDFUpdate         bool
	AllowScreenContentTools  bool
	ForceIntegerMV           bool
	CurrentFrameID           int
	FrameSizeOverride        bool
	OrderHint                int
	PrimaryReferenceFrame    int
	RefreshFrameFlags        int
	ReferenceOrderHints      [ReferenceFrameCount]int
	FrameSize                FrameSize
	AllowIntraBlockCopy      bool
	DisableFrameEndUpdateCDF bool

	TileInfo        TileInfo
	Quantization    QuantizationParameters
	Segmentation    SegmentationParameters
	DeltaQ          DeltaQParameters
	DeltaLoopFilter DeltaLoopFilterParameters

	Lossless       [MaxSegments]bool
	CodedLossless  bool
	AllLossless    bool
	SegmentQMLevel [MaxPlanes][MaxSegments]int

	LoopFilter          LoopFilterParameters
	CDEF                CdefParameters
	LoopRestoration     LoopRestorationParameters
	TransformMode       TransformMode
	ReferenceMode       ReferenceMode
	SkipMode            SkipModeParameters
	AllowWarpedMotion   bool
	ReducedTransformSet bool
	FilmGrain           FilmGrainParameters
}

// IsIntra is FrameIsIntra.
func (h *FrameHeader) IsIntra() bool {
	return h.FrameType == FrameTypeKey || h.FrameType == FrameTypeIntraOnly
}

func (h *FrameHeader) isShownKeyFrame() bool {
	return h.FrameType == FrameTypeKey && h.ShowFrame
}

// setupPastIndependence installs the state a frame without a primary reference starts from.
func (h *FrameHeader) setupPastIndependence() {
	h.LoopFilter = defaultLoopFilterParameters()
	h.CDEF = defaultCdefParameters()
	h.Segmentation = SegmentationParameters{}
}

// References is the per slot bookkeeping carried between frames of a stream.
type References struct {
	Valid     [ReferenceFrameCount]bool
	FrameID   [ReferenceFrameCount]int
	OrderHint [ReferenceFrameCount]int
}

// Refresh stores the frame into every slot named by its refresh_frame_flags.
func (refs *References) Refresh(h *FrameHeader) {
	for i := 0; i < ReferenceFrameCount; i++ {
		if h.RefreshFrameFlags>>i&1 == 0 {
			continue
		}
		refs.Valid[i] = true
		refs.FrameID[i] = h.CurrentFrameID
		refs.OrderHint[i] = h.OrderHint
	}
}

// markStale invalidates slots whose frame id is too far behind currentFrameID, allowing for
// wraparound of the id.
func (refs *References) markStale(seq *SequenceHeader, currentFrameID int) {
	diff := 1 << seq.DeltaFrameIDLength
	for i := 0; i < ReferenceFrameCount; i++ {
		id := refs.FrameID[i]
		if currentFrameID > diff {
			if id > currentFrameID || id < currentFrameID-diff {
				refs.Valid[i] = false
			}
		} else if id > currentFrameID && id < (1<<seq.FrameIDLength())+currentFrameID-diff {
			refs.Valid[i] = false
		}
	}
}

// NewKeyFrameHeader returns a resolved, shown key frame header for seq with a single tile and
// default filters.
func NewKeyFrameHeader(seq *SequenceHeader) (*FrameHeader, error) {
	h := &FrameHeader{
		FrameType: FrameTypeKey,
		ShowFrame: true,
		FrameSize: FrameSize{
			UpscaledWidth:       seq.MaxFrameWidth,
			FrameHeight:         seq.MaxFrameHeight,
			RenderWidth:         seq.MaxFrameWidth,
			RenderHeight:        seq.MaxFrameHeight,
			SuperresDenominator: superresNumerator,
		},
		TransformMode: TransformModeLargest,
	}
	h.setupPastIndependence()
	if err := h.Resolve(seq); err != nil {
		return nil, err
	}
	return h, nil
}

// Resolve fills the fields implied by seq and by the header's own coded fields: forced flags,
// frame dimensions after super resolution, lossless state and a single tile grid when none is set.
// Filter parameters that cannot be coded for the frame are reset to their defaults.
func (h *FrameHeader) Resolve(seq *SequenceHeader) error {
	if seq.ReducedStillPictureHeader {
		h.ShowExistingFrame = false
		h.FrameType = FrameTypeKey
		h.ShowFrame = true
		h.FrameSizeOverride = false
	}
	if h.ShowExistingFrame {
		return unsupportedf("show_existing_frame is not supported")
	}
	if !h.IsIntra() {
		return unsupportedf("%s is not supported", h.FrameType)
	}
	if h.ShowFrame {
		h.ShowableFrame = h.FrameType != FrameTypeKey
	}
	if h.isShownKeyFrame() {
		h.ErrorResilientMode = true
		h.RefreshFrameFlags = AllFrames
	}
	if seq.ForceScreenContentTools != SelectScreenContentTools {
		h.AllowScreenContentTools = seq.ForceScreenContentTools == 1
	}
	h.ForceIntegerMV = true
	if !seq.FrameIDNumbersPresent {
		h.CurrentFrameID = 0
	}
	if seq.OrderHint.OrderHintBits == 0 {
		h.OrderHint = 0
	}
	h.PrimaryReferenceFrame = PrimaryReferenceNone
	if seq.ReducedStillPictureHeader || h.DisableCDFUpdate {
		h.DisableFrameEndUpdateCDF = true
	}

	fs := &h.FrameSize
	if !h.FrameSizeOverride {
		fs.UpscaledWidth = seq.MaxFrameWidth
		fs.FrameHeight = seq.MaxFrameHeight
	}
	if !seq.EnableSuperres {
		fs.UseSuperres = false
	}
	if err := fs.checkSuperres(); err != nil {
		return err
	}
	fs.computeSuperres()
	fs.computeImageSize()
	if !fs.RenderAndFrameSizeDifferent {
		fs.RenderWidth = fs.UpscaledWidth
		fs.RenderHeight = fs.FrameHeight
	}
	if !h.AllowScreenContentTools || fs.UpscaledWidth != fs.FrameWidth {
		h.AllowIntraBlockCopy = false
	}

	if h.TileInfo.Columns == 0 {
		t, err := UniformTileInfo(seq, fs.MiCols, fs.MiRows, 0, 0)
		if err != nil {
			return err
		}
		h.TileInfo = t
	}
	if h.Quantization.BaseQIndex == 0 {
		h.DeltaQ = DeltaQParameters{}
	}
	if !h.DeltaQ.Present || h.AllowIntraBlockCopy {
		h.DeltaLoopFilter = DeltaLoopFilterParameters{}
	}
	h.computeLossless()

	if h.CodedLossless || h.AllowIntraBlockCopy {
		h.LoopFilter = defaultLoopFilterParameters()
	}
	if !cdefCoded(seq, h) {
		h.CDEF = defaultCdefParameters()
	}
	if !loopRestorationCoded(seq, h) {
		h.LoopRestoration = LoopRestorationParameters{}
	}
	if h.CodedLossless {
		h.TransformMode = TransformModeOnly4x4
	} else if h.TransformMode == TransformModeOnly4x4 {
		h.TransformMode = TransformModeLargest
	}
	h.ReferenceMode = ReferenceModeSingle
	h.SkipMode = SkipModeParameters{}
	h.AllowWarpedMotion = false
	if !seq.FilmGrainParamsPresent || (!h.ShowFrame && !h.ShowableFrame) {
		h.FilmGrain = FilmGrainParameters{}
	}
	return nil
}

// ReadFrameHeader parses uncompressed_header(). refs is updated for slots the header invalidates
// and is left untouched on failure; nil refs starts from empty slots. Trailing bits or byte
// alignment after the header are left to the caller.
func ReadFrameHeader(r *bitstream.Reader, seq *SequenceHeader, refs *References) (*FrameHeader, error) {
	if seq == nil {
		return nil, malformedf("frame header without a sequence header")
	}
	var state References
	if refs != nil {
		state = *refs
	}
	h := &FrameHeader{}
	if err := h.read(r, seq, &state); err != nil {
		return nil, err
	}
	if refs != nil {
		*refs = state
	}
	return h, nil
}

func (h *FrameHeader) read(r *bitstream.Reader, seq *SequenceHeader, refs *References) error {
	var err error

	if seq.ReducedStillPictureHeader {
		h.FrameType = FrameTypeKey
		h.ShowFrame = true
	} else {
		if h.ShowExistingFrame, err = readFlag(r, "show_existing_frame"); err != nil {
			return err
		}
		if h.ShowExistingFrame {
			return unsupportedf("show_existing_frame is not supported")
		}
		frameType, err := readBits(r, 2, "frame_type")
		if err != nil {
			return err
		}
		h.FrameType = FrameType(frameType)
		if !h.IsIntra() {
			return unsupportedf("%s is not supported", h.FrameType)
		}
		if h.ShowFrame, err = readFlag(r, "show_frame"); err != nil {
			return err
		}
		if h.ShowFrame {
			h.ShowableFrame = h.FrameType != FrameTypeKey
		} else if h.ShowableFrame, err = readFlag(r, "showable_frame"); err != nil {
			return err
		}
	}

	if h.isShownKeyFrame() {
		h.ErrorResilientMode = true
		*refs = References{}
	} else if h.ErrorResilientMode, err = readFlag(r, "error_resilient_mode"); err != nil {
		return err
	}

	if h.DisableCDFUpdate, err = readFlag(r, "disable_cdf_update"); err != nil {
		return err
	}
	if seq.ForceScreenContentTools == SelectScreenContentTools {
		if h.AllowScreenContentTools, err = readFlag(r, "allow_screen_content_tools"); err != nil {
			return err
		}
	} else {
		h.AllowScreenContentTools = seq.ForceScreenContentTools == 1
	}
	if h.AllowScreenContentTools && seq.ForceIntegerMV == SelectIntegerMV {
		if _, err = readFlag(r, "force_integer_mv"); err != nil {
			return err
		}
	}
	// Intra frames always use integer motion vectors.
	h.ForceIntegerMV = true

	if seq.FrameIDNumbersPresent {
		if h.CurrentFrameID, err = readBits(r, seq.FrameIDLength(), "current_frame_id"); err != nil {
			return err
		}
		refs.markStale(seq, h.CurrentFrameID)
	}
	if !seq.ReducedStillPictureHeader {
		if h.FrameSizeOverride, err = readFlag(r, "frame_size_override_flag"); err != nil {
			return err
		}
	}
	if h.OrderHint, err = readBits(r, seq.OrderHint.OrderHintBits, "order_hint"); err != nil {
		return err
	}
	h.PrimaryReferenceFrame = PrimaryReferenceNone

	if h.isShownKeyFrame() {
		h.RefreshFrameFlags = AllFrames
	} else {
		if h.RefreshFrameFlags, err = readBits(r, 8, "refresh_frame_flags"); err != nil {
			return err
		}
		if h.FrameType == FrameTypeIntraOnly && h.RefreshFrameFlags == AllFrames {
			return malformedf("intra only frame refreshes every reference slot")
		}
	}
	if h.RefreshFrameFlags != AllFrames && h.ErrorResilientMode && seq.OrderHint.EnableOrderHint {
		for i := 0; i < ReferenceFrameCount; i++ {
			if h.ReferenceOrderHints[i], err = readBits(r, seq.OrderHint.OrderHintBits, "ref_order_hint"); err != nil {
				return err
			}
			if h.ReferenceOrderHints[i] != refs.OrderHint[i] {
				refs.Valid[i] = false
				refs.OrderHint[i] = h.ReferenceOrderHints[i]
			}
		}
	}

	if err := h.readFrameSize(r, seq); err != nil {
		return err
	}
	if h.AllowScreenContentTools && h.FrameSize.UpscaledWidth == h.FrameSize.FrameWidth {
		if h.AllowIntraBlockCopy, err = readFlag(r, "allow_intrabc"); err != nil {
			return err
		}
	}
	if seq.ReducedStillPictureHeader || h.DisableCDFUpdate {
		h.DisableFrameEndUpdateCDF = true
	} else if h.DisableFrameEndUpdateCDF, err = readFlag(r, "disable_frame_end_update_cdf"); err != nil {
		return err
	}
	h.setupPastIndependence()

	if h.TileInfo, err = ReadTileInfo(r, seq, h.FrameSize.MiCols, h.FrameSize.MiRows); err != nil {
		return err
	}
	if h.Quantization, err = readQuantizationParameters(r, &seq.ColorConfig); err != nil {
		return err
	}
	if h.Segmentation, err = readSegmentationParameters(r); err != nil {
		return err
	}
	if h.DeltaQ, err = readDeltaQParameters(r, h.Quantization.BaseQIndex); err != nil {
		return err
	}
	if h.DeltaLoopFilter, err = readDeltaLoopFilterParameters(r, &h.DeltaQ, h.AllowIntraBlockCopy); err != nil {
		return err
	}
	h.computeLossless()

	if h.LoopFilter, err = readLoopFilterParameters(r, seq, h); err != nil {
		return err
	}
	if h.CDEF, err = readCdefParameters(r, seq, h); err != nil {
		return err
	}
	if h.LoopRestoration, err = readLoopRestorationParameters(r, seq, h); err != nil {
		return err
	}

	if h.CodedLossless {
		h.TransformMode = TransformModeOnly4x4
	} else {
		selected, err := readFlag(r, "tx_mode_select")
		if err != nil {
			return err
		}
		h.TransformMode = TransformModeLargest
		if selected {
			h.TransformMode = TransformModeSelect
		}
	}
	// Intra frames carry no reference_select, skip_mode_present, allow_warped_motion or
	// global motion parameters.
	h.ReferenceMode = ReferenceModeSingle
	h.SkipMode = SkipModeParameters{}
	h.AllowWarpedMotion = false

	if h.ReducedTransformSet, err = readFlag(r, "reduced_tx_set"); err != nil {
		return err
	}
	return h.readFilmGrain(r, seq)
}

func (h *FrameHeader) readFrameSize(r *bitstream.Reader, seq *SequenceHeader) error {
	fs := &h.FrameSize
	var err error
	if h.FrameSizeOverride {
		if fs.UpscaledWidth, err = readBits(r, seq.FrameWidthBits, "frame_width_minus_1"); err != nil {
			return err
		}
		if fs.FrameHeight, err = readBits(r, seq.FrameHeightBits, "frame_height_minus_1"); err != nil {
			return err
		}
		fs.UpscaledWidth++
		fs.FrameHeight++
	} else {
		fs.UpscaledWidth = seq.MaxFrameWidth
		fs.FrameHeight = seq.MaxFrameHeight
	}

	if seq.EnableSuperres {
		if fs.UseSuperres, err = readFlag(r, "use_superres"); err != nil {
			return err
		}
	}
	if fs.UseSuperres {
		if fs.SuperresDenominator, err = readBits(r, superresDenominatorBits, "coded_denom"); err != nil {
			return err
		}
		fs.SuperresDenominator += superresDenominatorMinimum
	}
	fs.computeSuperres()
	fs.computeImageSize()

	if fs.RenderAndFrameSizeDifferent, err = readFlag(r, "render_and_frame_size_different"); err != nil {
		return err
	}
	if fs.RenderAndFrameSizeDifferent {
		if fs.RenderWidth, err = readBits(r, 16, "render_width_minus_1"); err != nil {
			return err
		}
		if fs.RenderHeight, err = readBits(r, 16, "render_height_minus_1"); err != nil {
			return err
		}
		fs.RenderWidth++
		fs.RenderHeight++
	} else {
		fs.RenderWidth = fs.UpscaledWidth
		fs.RenderHeight = fs.FrameHeight
	}
	return nil
}

func (h *FrameHeader) readFilmGrain(r *bitstream.Reader, seq *SequenceHeader) error {
	if !seq.FilmGrainParamsPresent || (!h.ShowFrame && !h.ShowableFrame) {
		return nil
	}
	var err error
	if h.FilmGrain.ApplyGrain, err = readFlag(r, "apply_grain"); err != nil {
		return err
	}
	if h.FilmGrain.ApplyGrain {
		return unsupportedf("film grain synthesis parameters are not supported")
	}
	return nil
}

// checkDerived recomputes the derived fields from the coded ones and fails if h disagrees.
func (h *FrameHeader) checkDerived() error {
	if err := h.FrameSize.checkSuperres(); err != nil {
		return err
	}
	check := *h
	check.FrameSize.computeSuperres()
	check.FrameSize.computeImageSize()
	if check.FrameSize != h.FrameSize {
		return boundsf("frame size fields are inconsistent, call Resolve before writing")
	}
	check.computeLossless()
	if check.Lossless != h.Lossless || check.CodedLossless != h.CodedLossless ||
		check.AllLossless != h.AllLossless || check.SegmentQMLevel != h.SegmentQMLevel {
		return boundsf("lossless fields are inconsistent, call Resolve before writing")
	}
	return nil
}

// WriteFrameHeader writes uncompressed_header(). h must be consistent with seq; Resolve makes it so.
func WriteFrameHeader(w *bitstream.Writer, seq *SequenceHeader, h *FrameHeader) error {
	if seq == nil {
		return boundsf("frame header without a sequence header")
	}
	if h.ShowExistingFrame {
		return unsupportedf("show_existing_frame is not supported")
	}
	if !h.IsIntra() {
		return unsupportedf("%s is not supported", h.FrameType)
	}
	if err := h.checkDerived(); err != nil {
		return err
	}

	if seq.ReducedStillPictureHeader {
		if !h.isShownKeyFrame() || h.FrameSizeOverride {
			return boundsf("reduced still picture headers only carry shown key frames at the maximum size")
		}
	} else {
		if err := writeFlag(w, false, "show_existing_frame"); err != nil {
			return err
		}
		if err := writeBits(w, int(h.FrameType), 2, "frame_type"); err != nil {
			return err
		}
		if err := writeFlag(w, h.ShowFrame, "show_frame"); err != nil {
			return err
		}
		if !h.ShowFrame {
			if err := writeFlag(w, h.ShowableFrame, "showable_frame"); err != nil {
				return err
			}
		}
	}

	if !h.isShownKeyFrame() {
		if err := writeFlag(w, h.ErrorResilientMode, "error_resilient_mode"); err != nil {
			return err
		}
	}
	if err := writeFlag(w, h.DisableCDFUpdate, "disable_cdf_update"); err != nil {
		return err
	}
	if seq.ForceScreenContentTools == SelectScreenContentTools {
		if err := writeFlag(w, h.AllowScreenContentTools, "allow_screen_content_tools"); err != nil {
			return err
		}
	} else if h.AllowScreenContentTools != (seq.ForceScreenContentTools == 1) {
		return boundsf("allow_screen_content_tools conflicts with the sequence setting")
	}
	if h.AllowScreenContentTools && seq.ForceIntegerMV == SelectIntegerMV {
		if err := writeFlag(w, true, "force_integer_mv"); err != nil {
			return err
		}
	}

	if seq.FrameIDNumbersPresent {
		if err := writeBits(w, h.CurrentFrameID, seq.FrameIDLength(), "current_frame_id"); err != nil {
			return err
		}
	}
	if !seq.ReducedStillPictureHeader {
		if err := writeFlag(w, h.FrameSizeOverride, "frame_size_override_flag"); err != nil {
			return err
		}
	}
	if err := writeBits(w, h.OrderHint, seq.OrderHint.OrderHintBits, "order_hint"); err != nil {
		return err
	}

	if h.isShownKeyFrame() {
		if h.RefreshFrameFlags != AllFrames {
			return boundsf("shown key frames refresh every reference slot")
		}
	} else if err := writeBits(w, h.RefreshFrameFlags, 8, "refresh_frame_flags"); err != nil {
		return err
	}
	if h.RefreshFrameFlags != AllFrames && h.ErrorResilientMode && seq.OrderHint.EnableOrderHint {
		for _, hint := range h.ReferenceOrderHints {
			if err := writeBits(w, hint, seq.OrderHint.OrderHintBits, "ref_order_hint"); err != nil {
				return err
			}
		}
	}

	if err := h.writeFrameSize(w, seq); err != nil {
		return err
	}
	if h.AllowScreenContentTools && h.FrameSize.UpscaledWidth == h.FrameSize.FrameWidth {
		if err := writeFlag(w, h.AllowIntraBlockCopy, "allow_intrabc"); err != nil {
			return err
		}
	} else if h.AllowIntraBlockCopy {
		return boundsf("allow_intrabc needs screen content tools without super resolution")
	}
	if !seq.ReducedStillPictureHeader && !h.DisableCDFUpdate {
		if err := writeFlag(w, h.DisableFrameEndUpdateCDF, "disable_frame_end_update_cdf"); err != nil {
			return err
		}
	}

	if err := WriteTileInfo(w, seq, h.FrameSize.MiCols, h.FrameSize.MiRows, h.TileInfo); err != nil {
		return err
	}
	if err := writeQuantizationParameters(w, &seq.ColorConfig, &h.Quantization); err != nil {
		return err
	}
	if err := writeSegmentationParameters(w, &h.Segmentation); err != nil {
		return err
	}
	if err := writeDeltaQParameters(w, &h.DeltaQ, h.Quantization.BaseQIndex); err != nil {
		return err
	}
	if err := writeDeltaLoopFilterParameters(w, &h.DeltaLoopFilter, &h.DeltaQ, h.AllowIntraBlockCopy); err != nil {
		return err
	}
	if err := writeLoopFilterParameters(w, seq, h); err != nil {
		return err
	}
	if err := writeCdefParameters(w, seq, h); err != nil {
		return err
	}
	if err := writeLoopRestorationParameters(w, seq, h); err != nil {
		return err
	}

	switch {
	case h.CodedLossless:
		if h.TransformMode != TransformModeOnly4x4 {
			return boundsf("lossless frames use 4x4 transforms only")
		}
	case h.TransformMode == TransformModeOnly4x4:
		return boundsf("4x4 only transform mode needs a lossless frame")
	default:
		if err := writeFlag(w, h.TransformMode == TransformModeSelect, "tx_mode_select"); err != nil {
			return err
		}
	}
	if h.ReferenceMode != ReferenceModeSingle || h.SkipMode.Present || h.AllowWarpedMotion {
		return boundsf("intra frames cannot use reference selection, skip mode or warped motion")
	}
	if err := writeFlag(w, h.ReducedTransformSet, "reduced_tx_set"); err != nil {
		return err
	}

	if seq.FilmGrainParamsPresent && (h.ShowFrame || h.ShowableFrame) {
		if h.FilmGrain.ApplyGrain {
			return unsupportedf("film grain synthesis parameters are not supported")
		}
		return writeFlag(w, false, "apply_grain")
	}
	return nil
}

func (h *FrameHeader) writeFrameSize(w *bitstream.Writer, seq *SequenceHeader) error {
	fs := &h.FrameSize
	if h.FrameSizeOverride {
		if err := writeBits(w, fs.UpscaledWidth-1, seq.FrameWidthBits, "frame_width_minus_1"); err != nil {
			return err
		}
		if err := writeBits(w, fs.FrameHeight-1, seq.FrameHeightBits, "frame_height_minus_1"); err != nil {
			return err
		}
	} else if fs.UpscaledWidth != seq.MaxFrameWidth || fs.FrameHeight != seq.MaxFrameHeight {
		return boundsf("frame size %dx%d differs from the sequence maximum without frame_size_override_flag",
			fs.UpscaledWidth, fs.FrameHeight)
	}

	if seq.EnableSuperres {
		if err := writeFlag(w, fs.UseSuperres, "use_superres"); err != nil {
			return err
		}
	} else if fs.UseSuperres {
		return boundsf("use_superres set but the sequence disables super resolution")
	}
	if fs.UseSuperres {
		if err := writeBits(w, fs.SuperresDenominator-superresDenominatorMinimum, superresDenominatorBits, "coded_denom"); err != nil {
			return err
		}
	}

	if err := writeFlag(w, fs.RenderAndFrameSizeDifferent, "render_and_frame_size_different"); err != nil {
		return err
	}
	if fs.RenderAndFrameSizeDifferent {
		if err := writeBits(w, fs.RenderWidth-1, 16, "render_width_minus_1"); err != nil {
			return err
		}
		return writeBits(w, fs.RenderHeight-1, 16, "render_height_minus_1")
	}
	if fs.RenderWidth != fs.UpscaledWidth || fs.RenderHeight != fs.FrameHeight {
		return boundsf("render size differs from frame size without render_and_frame_size_different")
	}
	return nil
}
