package obu

import (
	"go.uber.org/multierr"

	"github.com/m4tthewde/obu/internal/bitstream"
)

// OperatingPoint holds the per operating point fields of a sequence header.
type OperatingPoint struct {
	Idc        int
	LevelIndex int
	Tier       int
}

type OrderHintInfo struct {
	EnableOrderHint         bool
	EnableJointCompound     bool
	EnableReferenceFrameMVs bool
	OrderHintBits           int
}

// ColorConfig is color_config().
type ColorConfig struct {
	BitDepth                int
	Monochrome              bool
	ColorDescriptionPresent bool
	ColorPrimaries          ColorPrimaries
	TransferCharacteristics TransferCharacteristics
	MatrixCoefficients      MatrixCoefficients
	FullColorRange          bool
	SubsamplingX            bool
	SubsamplingY            bool
	ChromaSamplePosition    ChromaSamplePosition
	SeparateUVDeltaQ        bool
}

// ChannelCount is NumPlanes: 1 for monochrome, 3 otherwise.
func (c *ColorConfig) ChannelCount() int {
	if c.Monochrome {
		return 1
	}
	return 3
}

// Format derives the chroma layout from the monochrome and subsampling flags.
func (c *ColorConfig) Format() ColorFormat {
	switch {
	case c.Monochrome:
		return ColorFormatYUV400
	case c.SubsamplingX && c.SubsamplingY:
		return ColorFormatYUV420
	case c.SubsamplingX:
		return ColorFormatYUV422
	default:
		return ColorFormatYUV444
	}
}

func (c *ColorConfig) isSRGB() bool {
	return c.ColorPrimaries == ColorPrimariesBT709 &&
		c.TransferCharacteristics == TransferSRGB &&
		c.MatrixCoefficients == MatrixIdentity
}

// SequenceHeader is sequence_header_obu(). Only reduced still picture headers are accepted.
type SequenceHeader struct {
	Profile                   Profile
	StillPicture              bool
	ReducedStillPictureHeader bool
	OperatingPoints           []OperatingPoint

	FrameWidthBits  int
	FrameHeightBits int
	MaxFrameWidth   int
	MaxFrameHeight  int

	FrameIDNumbersPresent   bool
	DeltaFrameIDLength      int
	AdditionalFrameIDLength int

	Use128x128Superblock     bool
	EnableFilterIntra        bool
	EnableIntraEdgeFilter    bool
	EnableInterIntraCompound bool
	EnableMaskedCompound     bool
	EnableWarpedMotion       bool
	EnableDualFilter         bool
	OrderHint                OrderHintInfo
	ForceScreenContentTools  int
	ForceIntegerMV           int
	EnableSuperres           bool
	EnableCDEF               bool
	EnableRestoration        bool

	ColorConfig            ColorConfig
	FilmGrainParamsPresent bool
}

// NewSequenceHeader returns an 8-bit 4:2:0 Main profile still picture header for the given size.
func NewSequenceHeader(width, height int) *SequenceHeader {
	return &SequenceHeader{
		Profile:                   ProfileMain,
		StillPicture:              true,
		ReducedStillPictureHeader: true,
		OperatingPoints:           []OperatingPoint{{LevelIndex: 31}},
		FrameWidthBits:            bitsFor(width - 1),
		FrameHeightBits:           bitsFor(height - 1),
		MaxFrameWidth:             width,
		MaxFrameHeight:            height,
		EnableFilterIntra:         true,
		EnableIntraEdgeFilter:     true,
		ForceScreenContentTools:   SelectScreenContentTools,
		ForceIntegerMV:            SelectIntegerMV,
		EnableCDEF:                true,
		EnableRestoration:         true,
		ColorConfig: ColorConfig{
			BitDepth:                8,
			ColorPrimaries:          ColorPrimariesUnspecified,
			TransferCharacteristics: TransferUnspecified,
			MatrixCoefficients:      MatrixUnspecified,
			SubsamplingX:            true,
			SubsamplingY:            true,
		},
	}
}

func bitsFor(v int) int {
	if v < 1 {
		return 1
	}
	return floorLog2(v) + 1
}

// SuperblockSizeLog2 is 7 for 128x128 superblocks and 6 for 64x64.
func (s *SequenceHeader) SuperblockSizeLog2() int {
	if s.Use128x128Superblock {
		return 7
	}
	return 6
}

// ModeInfoSize is the superblock extent in 4x4 mode info units.
func (s *SequenceHeader) ModeInfoSize() int {
	if s.Use128x128Superblock {
		return 32
	}
	return 16
}

// FrameIDLength is idLen, the width of current_frame_id.
func (s *SequenceHeader) FrameIDLength() int {
	return s.AdditionalFrameIDLength + s.DeltaFrameIDLength
}

func isValidSequenceLevel(index int) bool {
	return index < 24 || index == 31
}

// ReadSequenceHeader parses a sequence header OBU payload, including its trailing bits.
func ReadSequenceHeader(r *bitstream.Reader) (*SequenceHeader, error) {
	s := &SequenceHeader{}
	var err error

	profile, err := readBits(r, 3, "seq_profile")
	if err != nil {
		return nil, err
	}
	s.Profile = Profile(profile)
	if s.Profile > maxProfile {
		return nil, boundsf("unknown sequence profile %d", profile)
	}
	if s.StillPicture, err = readFlag(r, "still_picture"); err != nil {
		return nil, err
	}
	if s.ReducedStillPictureHeader, err = readFlag(r, "reduced_still_picture_header"); err != nil {
		return nil, err
	}
	if !s.StillPicture || !s.ReducedStillPictureHeader {
		return nil, unsupportedf("only reduced still picture sequence headers are supported")
	}

	level, err := readBits(r, levelBits, "seq_level_idx")
	if err != nil {
		return nil, err
	}
	if !isValidSequenceLevel(level) {
		return nil, boundsf("invalid sequence level index %d", level)
	}
	s.OperatingPoints = []OperatingPoint{{LevelIndex: level}}

	if s.FrameWidthBits, err = readBits(r, 4, "frame_width_bits_minus_1"); err != nil {
		return nil, err
	}
	s.FrameWidthBits++
	if s.FrameHeightBits, err = readBits(r, 4, "frame_height_bits_minus_1"); err != nil {
		return nil, err
	}
	s.FrameHeightBits++
	if s.MaxFrameWidth, err = readBits(r, s.FrameWidthBits, "max_frame_width_minus_1"); err != nil {
		return nil, err
	}
	s.MaxFrameWidth++
	if s.MaxFrameHeight, err = readBits(r, s.FrameHeightBits, "max_frame_height_minus_1"); err != nil {
		return nil, err
	}
	s.MaxFrameHeight++

	if s.Use128x128Superblock, err = readFlag(r, "use_128x128_superblock"); err != nil {
		return nil, err
	}
	if s.EnableFilterIntra, err = readFlag(r, "enable_filter_intra"); err != nil {
		return nil, err
	}
	if s.EnableIntraEdgeFilter, err = readFlag(r, "enable_intra_edge_filter"); err != nil {
		return nil, err
	}

	// Inter coding tools are implied off by the reduced header.
	s.ForceScreenContentTools = SelectScreenContentTools
	s.ForceIntegerMV = SelectIntegerMV

	if s.EnableSuperres, err = readFlag(r, "enable_superres"); err != nil {
		return nil, err
	}
	if s.EnableCDEF, err = readFlag(r, "enable_cdef"); err != nil {
		return nil, err
	}
	if s.EnableRestoration, err = readFlag(r, "enable_restoration"); err != nil {
		return nil, err
	}
	if err := readColorConfig(r, s); err != nil {
		return nil, err
	}
	if s.FilmGrainParamsPresent, err = readFlag(r, "film_grain_params_present"); err != nil {
		return nil, err
	}
	if err := readErr(r.TrailingBits(), "sequence header trailing bits"); err != nil {
		return nil, err
	}
	return s, nil
}

func readColorConfig(r *bitstream.Reader, s *SequenceHeader) error {
	c := &s.ColorConfig
	var err error

	highBitDepth, err := readFlag(r, "high_bitdepth")
	if err != nil {
		return err
	}
	c.BitDepth = 8
	if s.Profile == ProfileProfessional && highBitDepth {
		twelveBit, err := readFlag(r, "twelve_bit")
		if err != nil {
			return err
		}
		c.BitDepth = 10
		if twelveBit {
			c.BitDepth = 12
		}
	} else if highBitDepth {
		c.BitDepth = 10
	}

	if s.Profile != ProfileHigh {
		if c.Monochrome, err = readFlag(r, "mono_chrome"); err != nil {
			return err
		}
	}

	if c.ColorDescriptionPresent, err = readFlag(r, "color_description_present_flag"); err != nil {
		return err
	}
	c.ColorPrimaries = ColorPrimariesUnspecified
	c.TransferCharacteristics = TransferUnspecified
	c.MatrixCoefficients = MatrixUnspecified
	if c.ColorDescriptionPresent {
		v, err := readBits(r, 8, "color_primaries")
		if err != nil {
			return err
		}
		c.ColorPrimaries = ColorPrimaries(v)
		if v, err = readBits(r, 8, "transfer_characteristics"); err != nil {
			return err
		}
		c.TransferCharacteristics = TransferCharacteristics(v)
		if v, err = readBits(r, 8, "matrix_coefficients"); err != nil {
			return err
		}
		c.MatrixCoefficients = MatrixCoefficients(v)
	}

	switch {
	case c.Monochrome:
		if c.FullColorRange, err = readFlag(r, "color_range"); err != nil {
			return err
		}
		c.SubsamplingX = true
		c.SubsamplingY = true
		c.ChromaSamplePosition = ChromaSampleUnknown
		c.SeparateUVDeltaQ = false
		return nil
	case c.isSRGB():
		c.FullColorRange = true
		c.SubsamplingX = false
		c.SubsamplingY = false
	default:
		if c.FullColorRange, err = readFlag(r, "color_range"); err != nil {
			return err
		}
		switch s.Profile {
		case ProfileMain:
			c.SubsamplingX, c.SubsamplingY = true, true
		case ProfileHigh:
			c.SubsamplingX, c.SubsamplingY = false, false
		default:
			if c.BitDepth == 12 {
				if c.SubsamplingX, err = readFlag(r, "subsampling_x"); err != nil {
					return err
				}
				if c.SubsamplingX {
					if c.SubsamplingY, err = readFlag(r, "subsampling_y"); err != nil {
						return err
					}
				}
			} else {
				c.SubsamplingX, c.SubsamplingY = true, false
			}
		}
		if c.SubsamplingX && c.SubsamplingY {
			position, err := readBits(r, 2, "chroma_sample_position")
			if err != nil {
				return err
			}
			c.ChromaSamplePosition = ChromaSamplePosition(position)
		}
	}

	c.SeparateUVDeltaQ, err = readFlag(r, "separate_uv_delta_q")
	return err
}

// Validate reports every field that cannot be expressed in a reduced still picture header.
func (s *SequenceHeader) Validate() error {
	if !s.StillPicture || !s.ReducedStillPictureHeader {
		return unsupportedf("only reduced still picture sequence headers are supported")
	}

	var errs error
	if s.Profile > maxProfile {
		errs = multierr.Append(errs, boundsf("unknown sequence profile %d", s.Profile))
	}
	if len(s.OperatingPoints) != 1 {
		errs = multierr.Append(errs, boundsf("expected one operating point, got %d", len(s.OperatingPoints)))
	} else if !isValidSequenceLevel(s.OperatingPoints[0].LevelIndex) || s.OperatingPoints[0].LevelIndex < 0 {
		errs = multierr.Append(errs, boundsf("invalid sequence level index %d", s.OperatingPoints[0].LevelIndex))
	}
	if s.FrameWidthBits < 1 || s.FrameWidthBits > 16 || s.FrameHeightBits < 1 || s.FrameHeightBits > 16 {
		errs = multierr.Append(errs, boundsf("frame dimension bit widths %d x %d outside [1, 16]", s.FrameWidthBits, s.FrameHeightBits))
	} else {
		if s.MaxFrameWidth < 1 || s.MaxFrameWidth > 1<<s.FrameWidthBits {
			errs = multierr.Append(errs, boundsf("max frame width %d does not fit in %d bits", s.MaxFrameWidth, s.FrameWidthBits))
		}
		if s.MaxFrameHeight < 1 || s.MaxFrameHeight > 1<<s.FrameHeightBits {
			errs = multierr.Append(errs, boundsf("max frame height %d does not fit in %d bits", s.MaxFrameHeight, s.FrameHeightBits))
		}
	}
	if s.FrameIDNumbersPresent || s.EnableInterIntraCompound || s.EnableMaskedCompound ||
		s.EnableWarpedMotion || s.EnableDualFilter || s.OrderHint != (OrderHintInfo{}) {
		errs = multierr.Append(errs, boundsf("inter coding tools cannot be signalled in a reduced still picture header"))
	}
	if s.ForceScreenContentTools != SelectScreenContentTools || s.ForceIntegerMV != SelectIntegerMV {
		errs = multierr.Append(errs, boundsf("reduced still picture headers select screen content tools and integer MV per frame"))
	}
	errs = multierr.Append(errs, s.ColorConfig.validate(s.Profile))
	return errs
}

func (c *ColorConfig) validate(profile Profile) error {
	var errs error
	switch {
	case c.BitDepth == 8 || c.BitDepth == 10:
	case c.BitDepth == 12 && profile == ProfileProfessional:
	default:
		errs = multierr.Append(errs, boundsf("bit depth %d not allowed in profile %d", c.BitDepth, profile))
	}
	if c.Monochrome && profile == ProfileHigh {
		errs = multierr.Append(errs, boundsf("monochrome is not allowed in the High profile"))
	}
	if !c.ColorDescriptionPresent && (c.ColorPrimaries != ColorPrimariesUnspecified ||
		c.TransferCharacteristics != TransferUnspecified || c.MatrixCoefficients != MatrixUnspecified) {
		errs = multierr.Append(errs, boundsf("color description values set without color_description_present_flag"))
	}

	x, y := c.SubsamplingX, c.SubsamplingY
	switch {
	case c.Monochrome:
		if !x || !y {
			errs = multierr.Append(errs, boundsf("monochrome requires both subsampling flags"))
		}
		return errs
	case c.isSRGB():
		if !c.FullColorRange || x || y {
			errs = multierr.Append(errs, boundsf("sRGB requires full range 4:4:4"))
		}
	case profile == ProfileMain && !(x && y):
		errs = multierr.Append(errs, boundsf("Main profile requires 4:2:0"))
	case profile == ProfileHigh && (x || y):
		errs = multierr.Append(errs, boundsf("High profile requires 4:4:4"))
	case profile == ProfileProfessional && c.BitDepth != 12 && !(x && !y):
		errs = multierr.Append(errs, boundsf("Professional profile below 12 bits requires 4:2:2"))
	case !x && y:
		errs = multierr.Append(errs, boundsf("vertical-only subsampling is not expressible"))
	}
	if c.ChromaSamplePosition > ChromaSampleColocated {
		errs = multierr.Append(errs, boundsf("chroma sample position %d out of range", c.ChromaSamplePosition))
	}
	return errs
}

// WriteSequenceHeader writes a sequence header OBU payload, including its trailing bits.
func WriteSequenceHeader(w *bitstream.Writer, s *SequenceHeader) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := writeBits(w, int(s.Profile), 3, "seq_profile"); err != nil {
		return err
	}
	if err := writeFlag(w, true, "still_picture"); err != nil {
		return err
	}
	if err := writeFlag(w, true, "reduced_still_picture_header"); err != nil {
		return err
	}
	if err := writeBits(w, s.OperatingPoints[0].LevelIndex, levelBits, "seq_level_idx"); err != nil {
		return err
	}
	if err := writeBits(w, s.FrameWidthBits-1, 4, "frame_width_bits_minus_1"); err != nil {
		return err
	}
	if err := writeBits(w, s.FrameHeightBits-1, 4, "frame_height_bits_minus_1"); err != nil {
		return err
	}
	if err := writeBits(w, s.MaxFrameWidth-1, s.FrameWidthBits, "max_frame_width_minus_1"); err != nil {
		return err
	}
	if err := writeBits(w, s.MaxFrameHeight-1, s.FrameHeightBits, "max_frame_height_minus_1"); err != nil {
		return err
	}
	for _, f := range []struct {
		v    bool
		name string
	}{
		{s.Use128x128Superblock, "use_128x128_superblock"},
		{s.EnableFilterIntra, "enable_filter_intra"},
		{s.EnableIntraEdgeFilter, "enable_intra_edge_filter"},
		{s.EnableSuperres, "enable_superres"},
		{s.EnableCDEF, "enable_cdef"},
		{s.EnableRestoration, "enable_restoration"},
	} {
		if err := writeFlag(w, f.v, f.name); err != nil {
			return err
		}
	}
	if err := writeColorConfig(w, s); err != nil {
		return err
	}
	if err := writeFlag(w, s.FilmGrainParamsPresent, "film_grain_params_present"); err != nil {
		return err
	}
	w.TrailingBits()
	return nil
}

func writeColorConfig(w *bitstream.Writer, s *SequenceHeader) error {
	c := &s.ColorConfig
	if err := writeFlag(w, c.BitDepth > 8, "high_bitdepth"); err != nil {
		return err
	}
	if s.Profile == ProfileProfessional && c.BitDepth > 8 {
		if err := writeFlag(w, c.BitDepth == 12, "twelve_bit"); err != nil {
			return err
		}
	}
	if s.Profile != ProfileHigh {
		if err := writeFlag(w, c.Monochrome, "mono_chrome"); err != nil {
			return err
		}
	}
	if err := writeFlag(w, c.ColorDescriptionPresent, "color_description_present_flag"); err != nil {
		return err
	}
	if c.ColorDescriptionPresent {
		if err := writeBits(w, int(c.ColorPrimaries), 8, "color_primaries"); err != nil {
			return err
		}
		if err := writeBits(w, int(c.TransferCharacteristics), 8, "transfer_characteristics"); err != nil {
			return err
		}
		if err := writeBits(w, int(c.MatrixCoefficients), 8, "matrix_coefficients"); err != nil {
			return err
		}
	}

	switch {
	case c.Monochrome:
		return writeFlag(w, c.FullColorRange, "color_range")
	case c.isSRGB():
	default:
		if err := writeFlag(w, c.FullColorRange, "color_range"); err != nil {
			return err
		}
		if s.Profile == ProfileProfessional && c.BitDepth == 12 {
			if err := writeFlag(w, c.SubsamplingX, "subsampling_x"); err != nil {
				return err
			}
			if c.SubsamplingX {
				if err := writeFlag(w, c.SubsamplingY, "subsampling_y"); err != nil {
					return err
				}
			}
		}
		if c.SubsamplingX && c.SubsamplingY {
			if err := writeBits(w, int(c.ChromaSamplePosition), 2, "chroma_sample_position"); err != nil {
				return err
			}
		}
	}
	return writeFlag(w, c.SeparateUVDeltaQ, "separate_uv_delta_q")
}
