package obu

import "fmt"

const (
	levelBits               = 5
	superresDenominatorBits = 3
	deltaQBits              = 7
	loopFilterLevelBits     = 6
	loopFilterDeltaBits     = 7

	// ReferenceFrameCount is the number of reference frame slots (NUM_REF_FRAMES).
	ReferenceFrameCount = 8
	// TotalReferencesPerFrame includes the intra frame slot used by loop filter deltas.
	TotalReferencesPerFrame = 8
	// PrimaryReferenceNone marks a frame that does not inherit state from a reference.
	PrimaryReferenceNone = 7
	// AllFrames is the refresh_frame_flags value that refreshes every slot.
	AllFrames = 0xff

	MaxSegments      = 8
	MaxQ             = 255
	MaxTileWidth     = 4096
	MaxTileArea      = 4096 * 2304
	MaxTileRows      = 64
	MaxTileColumns   = 64
	MaxCdefStrengths = 8
	MaxPlanes        = 3

	superresNumerator            = 8
	superresDenominatorMinimum   = 9
	restorationTileSizeMaximum   = 256
	losslessQuantizerMatrixLevel = 15

	// SelectScreenContentTools and SelectIntegerMV make the frame header carry the flag.
	SelectScreenContentTools = 2
	SelectIntegerMV          = 2
)

// Type is the obu_type field.
type Type uint8

const (
	TypeSequenceHeader       Type = 1
	TypeTemporalDelimiter    Type = 2
	TypeFrameHeader          Type = 3
	TypeTileGroup            Type = 4
	TypeMetadata             Type = 5
	TypeFrame                Type = 6
	TypeRedundantFrameHeader Type = 7
	TypeTileList             Type = 8
	TypePadding              Type = 15
)

func (t Type) String() string {
	switch t {
	case TypeSequenceHeader:
		return "OBU_SEQUENCE_HEADER"
	case TypeTemporalDelimiter:
		return "OBU_TEMPORAL_DELIMITER"
	case TypeFrameHeader:
		return "OBU_FRAME_HEADER"
	case TypeTileGroup:
		return "OBU_TILE_GROUP"
	case TypeMetadata:
		return "OBU_METADATA"
	case TypeFrame:
		return "OBU_FRAME"
	case TypeRedundantFrameHeader:
		return "OBU_REDUNDANT_FRAME_HEADER"
	case TypeTileList:
		return "OBU_TILE_LIST"
	case TypePadding:
		return "OBU_PADDING"
	default:
		return fmt.Sprintf("OBU_RESERVED(%d)", uint8(t))
	}
}

// Profile is seq_profile.
type Profile uint8

const (
	ProfileMain         Profile = 0
	ProfileHigh         Profile = 1
	ProfileProfessional Profile = 2

	maxProfile = ProfileProfessional
)

func (p Profile) String() string {
	switch p {
	case ProfileMain:
		return "Main"
	case ProfileHigh:
		return "High"
	case ProfileProfessional:
		return "Professional"
	default:
		return fmt.Sprintf("Profile(%d)", uint8(p))
	}
}

type ColorPrimaries uint8

const (
	ColorPrimariesBT709       ColorPrimaries = 1
	ColorPrimariesUnspecified ColorPrimaries = 2
	ColorPrimariesBT601       ColorPrimaries = 6
	ColorPrimariesBT2020      ColorPrimaries = 9
)

type TransferCharacteristics uint8

const (
	TransferBT709       TransferCharacteristics = 1
	TransferUnspecified TransferCharacteristics = 2
	TransferSRGB        TransferCharacteristics = 13
	TransferSMPTE2084   TransferCharacteristics = 16
)

type MatrixCoefficients uint8

const (
	MatrixIdentity    MatrixCoefficients = 0
	MatrixBT709       MatrixCoefficients = 1
	MatrixUnspecified MatrixCoefficients = 2
	MatrixBT601       MatrixCoefficients = 6
)

type ChromaSamplePosition uint8

const (
	ChromaSampleUnknown   ChromaSamplePosition = 0
	ChromaSampleVertical  ChromaSamplePosition = 1
	ChromaSampleColocated ChromaSamplePosition = 2
)

// ColorFormat is the chroma layout implied by the subsampling flags.
type ColorFormat uint8

const (
	ColorFormatYUV400 ColorFormat = iota
	ColorFormatYUV420
	ColorFormatYUV422
	ColorFormatYUV444
)

func (f ColorFormat) String() string {
	switch f {
	case ColorFormatYUV400:
		return "YUV400"
	case ColorFormatYUV420:
		return "YUV420"
	case ColorFormatYUV422:
		return "YUV422"
	case ColorFormatYUV444:
		return "YUV444"
	default:
		return "unknown"
	}
}

type FrameType uint8

const (
	FrameTypeKey       FrameType = 0
	FrameTypeInter     FrameType = 1
	FrameTypeIntraOnly FrameType = 2
	FrameTypeSwitch    FrameType = 3
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeKey:
		return "KEY_FRAME"
	case FrameTypeInter:
		return "INTER_FRAME"
	case FrameTypeIntraOnly:
		return "INTRA_ONLY_FRAME"
	case FrameTypeSwitch:
		return "SWITCH_FRAME"
	default:
		return "unknown"
	}
}

// Plane indexes per-plane arrays.
type Plane int

const (
	PlaneY Plane = iota
	PlaneU
	PlaneV
)

// SegmentFeature indexes segmentation feature arrays.
type SegmentFeature int

const (
	SegmentFeatureAlternativeQuantizer SegmentFeature = iota
	SegmentFeatureLoopFilterYVertical
	SegmentFeatureLoopFilterYHorizontal
	SegmentFeatureLoopFilterU
	SegmentFeatureLoopFilterV
	SegmentFeatureReferenceFrame
	SegmentFeatureSkip
	SegmentFeatureGlobalMV

	segmentFeatureCount = 8
)

type RestorationType uint8

const (
	RestorationNone       RestorationType = 0
	RestorationWiener     RestorationType = 1
	RestorationSgrProj    RestorationType = 2
	RestorationSwitchable RestorationType = 3
)

// remapRestorationType maps lr_type to FrameRestorationType.
var remapRestorationType = [4]RestorationType{
	RestorationNone,
	RestorationSwitchable,
	RestorationWiener,
	RestorationSgrProj,
}

type TransformMode uint8

const (
	TransformModeOnly4x4 TransformMode = 0
	TransformModeLargest TransformMode = 1
	TransformModeSelect  TransformMode = 2
)

type ReferenceMode uint8

const (
	ReferenceModeSingle ReferenceMode = 0
	ReferenceModeSelect ReferenceMode = 1
)
