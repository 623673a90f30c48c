package obu

import (
	"github.com/samber/lo"

	"github.com/m4tthewde/obu/internal/bitstream"
)

// QuantizationParameters is quantization_params(). Delta and matrix arrays are indexed by Plane;
// the luma AC delta is never coded and stays zero.
type QuantizationParameters struct {
	BaseQIndex   int
	DeltaQDc     [MaxPlanes]int
	DeltaQAc     [MaxPlanes]int
	DiffUVDelta  bool
	UsingQMatrix bool
	QMLevel      [MaxPlanes]int
}

// SegmentationParameters is segmentation_params(). Only disabled segmentation can be coded; the
// feature arrays exist so per segment quantizers can be evaluated.
type SegmentationParameters struct {
	Enabled        bool
	FeatureEnabled [MaxSegments][segmentFeatureCount]bool
	FeatureData    [MaxSegments][segmentFeatureCount]int
}

// FeatureActive is seg_feature_active_idx().
func (s *SegmentationParameters) FeatureActive(segment int, feature SegmentFeature) bool {
	return s.Enabled && s.FeatureEnabled[segment][feature]
}

type DeltaQParameters struct {
	Present    bool
	Resolution int
}

type DeltaLoopFilterParameters struct {
	Present    bool
	Resolution int
	Multi      bool
}

// QIndex is get_qindex(1, segment): the base index plus any alternative quantizer delta, clamped
// to [0, MaxQ].
func (h *FrameHeader) QIndex(segment int) int {
	if h.Segmentation.FeatureActive(segment, SegmentFeatureAlternativeQuantizer) {
		data := h.Segmentation.FeatureData[segment][SegmentFeatureAlternativeQuantizer]
		return lo.Clamp(h.Quantization.BaseQIndex+data, 0, MaxQ)
	}
	return h.Quantization.BaseQIndex
}

func readDeltaQ(r *bitstream.Reader, name string) (int, error) {
	coded, err := readFlag(r, "delta_coded")
	if err != nil || !coded {
		return 0, err
	}
	return readSigned(r, deltaQBits, name)
}

func writeDeltaQ(w *bitstream.Writer, v int, name string) error {
	if err := writeFlag(w, v != 0, "delta_coded"); err != nil {
		return err
	}
	if v == 0 {
		return nil
	}
	return writeSigned(w, v, deltaQBits, name)
}

func readQuantizationParameters(r *bitstream.Reader, c *ColorConfig) (QuantizationParameters, error) {
	var q QuantizationParameters
	var err error

	if q.BaseQIndex, err = readBits(r, 8, "base_q_idx"); err != nil {
		return q, err
	}
	if q.DeltaQDc[PlaneY], err = readDeltaQ(r, "DeltaQYDc"); err != nil {
		return q, err
	}
	if c.ChannelCount() > 1 {
		if c.SeparateUVDeltaQ {
			if q.DiffUVDelta, err = readFlag(r, "diff_uv_delta"); err != nil {
				return q, err
			}
		}
		if q.DeltaQDc[PlaneU], err = readDeltaQ(r, "DeltaQUDc"); err != nil {
			return q, err
		}
		if q.DeltaQAc[PlaneU], err = readDeltaQ(r, "DeltaQUAc"); err != nil {
			return q, err
		}
		if q.DiffUVDelta {
			if q.DeltaQDc[PlaneV], err = readDeltaQ(r, "DeltaQVDc"); err != nil {
				return q, err
			}
			if q.DeltaQAc[PlaneV], err = readDeltaQ(r, "DeltaQVAc"); err != nil {
				return q, err
			}
		} else {
			q.DeltaQDc[PlaneV] = q.DeltaQDc[PlaneU]
			q.DeltaQAc[PlaneV] = q.DeltaQAc[PlaneU]
		}
	}

	if q.UsingQMatrix, err = readFlag(r, "using_qmatrix"); err != nil {
		return q, err
	}
	if q.UsingQMatrix {
		if q.QMLevel[PlaneY], err = readBits(r, 4, "qm_y"); err != nil {
			return q, err
		}
		if q.QMLevel[PlaneU], err = readBits(r, 4, "qm_u"); err != nil {
			return q, err
		}
		if !c.SeparateUVDeltaQ {
			q.QMLevel[PlaneV] = q.QMLevel[PlaneU]
		} else if q.QMLevel[PlaneV], err = readBits(r, 4, "qm_v"); err != nil {
			return q, err
		}
	}
	return q, nil
}

func writeQuantizationParameters(w *bitstream.Writer, c *ColorConfig, q *QuantizationParameters) error {
	if q.DeltaQAc[PlaneY] != 0 {
		return boundsf("luma AC delta %d cannot be coded", q.DeltaQAc[PlaneY])
	}
	if err := writeBits(w, q.BaseQIndex, 8, "base_q_idx"); err != nil {
		return err
	}
	if err := writeDeltaQ(w, q.DeltaQDc[PlaneY], "DeltaQYDc"); err != nil {
		return err
	}
	if c.ChannelCount() > 1 {
		if c.SeparateUVDeltaQ {
			if err := writeFlag(w, q.DiffUVDelta, "diff_uv_delta"); err != nil {
				return err
			}
		} else if q.DiffUVDelta {
			return boundsf("diff_uv_delta requires separate_uv_delta_q")
		}
		if err := writeDeltaQ(w, q.DeltaQDc[PlaneU], "DeltaQUDc"); err != nil {
			return err
		}
		if err := writeDeltaQ(w, q.DeltaQAc[PlaneU], "DeltaQUAc"); err != nil {
			return err
		}
		if q.DiffUVDelta {
			if err := writeDeltaQ(w, q.DeltaQDc[PlaneV], "DeltaQVDc"); err != nil {
				return err
			}
			if err := writeDeltaQ(w, q.DeltaQAc[PlaneV], "DeltaQVAc"); err != nil {
				return err
			}
		} else if q.DeltaQDc[PlaneV] != q.DeltaQDc[PlaneU] || q.DeltaQAc[PlaneV] != q.DeltaQAc[PlaneU] {
			return boundsf("V plane deltas differ from U without diff_uv_delta")
		}
	}

	if err := writeFlag(w, q.UsingQMatrix, "using_qmatrix"); err != nil {
		return err
	}
	if q.UsingQMatrix {
		if err := writeBits(w, q.QMLevel[PlaneY], 4, "qm_y"); err != nil {
			return err
		}
		if err := writeBits(w, q.QMLevel[PlaneU], 4, "qm_u"); err != nil {
			return err
		}
		if c.SeparateUVDeltaQ {
			if err := writeBits(w, q.QMLevel[PlaneV], 4, "qm_v"); err != nil {
				return err
			}
		} else if q.QMLevel[PlaneV] != q.QMLevel[PlaneU] {
			return boundsf("qm_v differs from qm_u without separate_uv_delta_q")
		}
	}
	return nil
}

func readSegmentationParameters(r *bitstream.Reader) (SegmentationParameters, error) {
	var s SegmentationParameters
	var err error
	if s.Enabled, err = readFlag(r, "segmentation_enabled"); err != nil {
		return s, err
	}
	if s.Enabled {
		return s, unsupportedf("segmentation is not supported")
	}
	return s, nil
}

func writeSegmentationParameters(w *bitstream.Writer, s *SegmentationParameters) error {
	if s.Enabled {
		return unsupportedf("segmentation is not supported")
	}
	return writeFlag(w, false, "segmentation_enabled")
}

func readDeltaQParameters(r *bitstream.Reader, baseQIndex int) (DeltaQParameters, error) {
	var d DeltaQParameters
	var err error
	if baseQIndex == 0 {
		return d, nil
	}
	if d.Present, err = readFlag(r, "delta_q_present"); err != nil || !d.Present {
		return d, err
	}
	d.Resolution, err = readBits(r, 2, "delta_q_res")
	return d, err
}

func writeDeltaQParameters(w *bitstream.Writer, d *DeltaQParameters, baseQIndex int) error {
	if baseQIndex == 0 {
		if d.Present {
			return boundsf("delta_q_present requires a non-zero base_q_idx")
		}
		return nil
	}
	if err := writeFlag(w, d.Present, "delta_q_present"); err != nil || !d.Present {
		return err
	}
	return writeBits(w, d.Resolution, 2, "delta_q_res")
}

func readDeltaLoopFilterParameters(r *bitstream.Reader, deltaQ *DeltaQParameters, allowIntraBlockCopy bool) (DeltaLoopFilterParameters, error) {
	var d DeltaLoopFilterParameters
	var err error
	if !deltaQ.Present || allowIntraBlockCopy {
		return d, nil
	}
	if d.Present, err = readFlag(r, "delta_lf_present"); err != nil || !d.Present {
		return d, err
	}
	if d.Resolution, err = readBits(r, 2, "delta_lf_res"); err != nil {
		return d, err
	}
	d.Multi, err = readFlag(r, "delta_lf_multi")
	return d, err
}

func writeDeltaLoopFilterParameters(w *bitstream.Writer, d *DeltaLoopFilterParameters, deltaQ *DeltaQParameters, allowIntraBlockCopy bool) error {
	if !deltaQ.Present || allowIntraBlockCopy {
		if d.Present {
			return boundsf("delta_lf_present requires delta_q_present without intra block copy")
		}
		return nil
	}
	if err := writeFlag(w, d.Present, "delta_lf_present"); err != nil || !d.Present {
		return err
	}
	if err := writeBits(w, d.Resolution, 2, "delta_lf_res"); err != nil {
		return err
	}
	return writeFlag(w, d.Multi, "delta_lf_multi")
}

// computeLossless fills the per segment lossless flags, CodedLossless, AllLossless and the
// quantizer matrix levels.
func (h *FrameHeader) computeLossless() {
	q := &h.Quantization
	h.CodedLossless = true
	for segment := 0; segment < MaxSegments; segment++ {
		h.Lossless[segment] = h.QIndex(segment) == 0 &&
			q.DeltaQDc[PlaneY] == 0 &&
			q.DeltaQAc[PlaneU] == 0 && q.DeltaQDc[PlaneU] == 0 &&
			q.DeltaQAc[PlaneV] == 0 && q.DeltaQDc[PlaneV] == 0
		if !h.Lossless[segment] {
			h.CodedLossless = false
		}
		for plane := 0; plane < MaxPlanes; plane++ {
			switch {
			case !q.UsingQMatrix:
				h.SegmentQMLevel[plane][segment] = 0
			case h.Lossless[segment]:
				h.SegmentQMLevel[plane][segment] = losslessQuantizerMatrixLevel
			default:
				h.SegmentQMLevel[plane][segment] = q.QMLevel[plane]
			}
		}
	}
	h.AllLossless = h.CodedLossless && h.FrameSize.FrameWidth == h.FrameSize.UpscaledWidth
}
