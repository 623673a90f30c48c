package obu

import (
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/m4tthewde/obu/internal/bitstream"
)

// Tile is one tile's coded bytes together with the headers that govern it.
type Tile struct {
	Index    int
	Row      int
	Column   int
	Data     []byte
	Sequence *SequenceHeader
	Frame    *FrameHeader
}

// TileDecoder reconstructs pixels from tile data. Tiles arrive in tile index order, one call at a
// time, and FinishDecodeTiles follows the last tile of each frame.
type TileDecoder interface {
	DecodeTile(tile Tile) error
	FinishDecodeTiles(applyCDEF, applyLoopRestoration bool) error
}

// Session is the state carried from one OBU to the next within a stream. A Session must not be
// shared between goroutines; decode independent streams with independent sessions.
type Session struct {
	SequenceHeader     *SequenceHeader
	FrameHeader        *FrameHeader
	SequenceHeaderDone bool
	SeenFrameHeader    bool
	ShowExistingFrame  bool
	References         References

	nextTile int
}

func NewSession() *Session {
	return &Session{}
}

type DecoderResult struct {
	TemporalUnitCount int
	OBUs              []Header
}

type Decoder struct {
	tiles  TileDecoder
	logger *zap.Logger
	annexB bool
}

// NewDecoder returns a decoder handing tile data to tiles. A nil TileDecoder skips tile data.
func NewDecoder(tiles TileDecoder, opts ...Option) *Decoder {
	o := newOptions(opts)
	return &Decoder{
		tiles:  tiles,
		logger: o.logger,
		annexB: o.annexB,
	}
}

// Decode parses every OBU in data, threading state through s. Decoding stops at the first error.
func (d *Decoder) Decode(s *Session, data []byte) (DecoderResult, error) {
	var result DecoderResult
	r := bitstream.NewReader(data)

	if d.annexB {
		for r.Remaining() > 0 {
			temporalUnitSize, n, err := r.ReadLEB128()
			if err != nil {
				return result, readErr(err, "temporal_unit_size")
			}
			d.logger.Debug("temporal unit", zap.Uint64("size", temporalUnitSize), zap.Int("leb128_bytes", n))

			if err := d.temporalUnit(r, s, int(temporalUnitSize), &result); err != nil {
				return result, err
			}
			result.TemporalUnitCount++
		}
		return result, nil
	}

	for r.Remaining() > 0 {
		if err := d.openBitstreamUnit(r, s, -1, &result); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (d *Decoder) temporalUnit(r *bitstream.Reader, s *Session, size int, result *DecoderResult) error {
	for size > 0 {
		frameUnitSize, n, err := r.ReadLEB128()
		if err != nil {
			return readErr(err, "frame_unit_size")
		}
		size -= n
		if err := d.frameUnit(r, s, int(frameUnitSize), result); err != nil {
			return err
		}
		size -= int(frameUnitSize)
	}
	if size < 0 {
		return malformedf("frame units overrun their temporal unit by %d bytes", -size)
	}
	return nil
}

func (d *Decoder) frameUnit(r *bitstream.Reader, s *Session, size int, result *DecoderResult) error {
	for size > 0 {
		obuLength, n, err := r.ReadLEB128()
		if err != nil {
			return readErr(err, "obu_length")
		}
		size -= n
		if err := d.openBitstreamUnit(r, s, int(obuLength), result); err != nil {
			return err
		}
		size -= int(obuLength)
	}
	if size < 0 {
		return malformedf("OBUs overrun their frame unit by %d bytes", -size)
	}
	return nil
}

func extensionBytes(h Header) int {
	if h.HasExtension {
		return 1
	}
	return 0
}

// openBitstreamUnit parses one OBU. size is obu_length when the framing carries it, or -1.
func (d *Decoder) openBitstreamUnit(r *bitstream.Reader, s *Session, size int, result *DecoderResult) error {
	h, err := ReadHeader(r)
	if err != nil {
		return err
	}

	switch {
	case h.HasSize:
		if size >= 0 && h.Size+h.PayloadSize != size {
			return malformedf("obu_size %d disagrees with obu_length %d", h.PayloadSize, size)
		}
	case size >= 0:
		h.PayloadSize = size - 1 - extensionBytes(h)
	default:
		h.PayloadSize = r.Remaining() / 8
	}
	if h.PayloadSize < 0 {
		return malformedf("negative payload size for %s", h.Type)
	}
	payload, err := r.ReadBytes(h.PayloadSize)
	if err != nil {
		return readErr(err, "OBU payload")
	}
	result.OBUs = append(result.OBUs, h)

	d.logger.Debug("obu",
		zap.Stringer("type", h.Type),
		zap.Int("size", h.PayloadSize),
		zap.Uint8("temporal_id", h.TemporalID),
		zap.Uint8("spatial_id", h.SpatialID),
	)

	if h.Type != TypeSequenceHeader && h.Type != TypeTemporalDelimiter && h.HasExtension && s.SequenceHeader != nil {
		idc := s.SequenceHeader.OperatingPoints[0].Idc
		inTemporalLayer := (idc>>h.TemporalID)&1 == 1
		inSpatialLayer := (idc>>(h.SpatialID+8))&1 == 1
		if idc != 0 && (!inTemporalLayer || !inSpatialLayer) {
			d.logger.Debug("dropping obu outside operating point", zap.Stringer("type", h.Type))
			return nil
		}
	}

	pr := bitstream.NewReader(payload)
	switch h.Type {
	case TypeSequenceHeader:
		seq, err := ReadSequenceHeader(pr)
		if err != nil {
			return err
		}
		s.SequenceHeader = seq
		s.SequenceHeaderDone = true
	case TypeTemporalDelimiter:
		s.SeenFrameHeader = false
		if !d.annexB {
			result.TemporalUnitCount++
		}
	case TypeFrameHeader, TypeRedundantFrameHeader, TypeFrame:
		if err := d.frameHeader(pr, s, h.Type); err != nil {
			return err
		}
		if h.Type == TypeFrame {
			if err := readErr(pr.ByteAlign(), "byte_alignment"); err != nil {
				return err
			}
			return d.tileGroup(pr, s, h.Type)
		}
	case TypeTileGroup:
		return d.tileGroup(pr, s, h.Type)
	default:
		d.logger.Debug("ignoring obu", zap.Stringer("type", h.Type))
	}
	return nil
}

func (d *Decoder) frameHeader(r *bitstream.Reader, s *Session, typ Type) error {
	if !s.SequenceHeaderDone {
		return malformedf("%s before any sequence header", typ)
	}
	if s.SeenFrameHeader {
		// A copy of the header in effect; it must match and never replaces it.
		scratch := s.References
		copied, err := ReadFrameHeader(r, s.SequenceHeader, &scratch)
		if err != nil {
			return err
		}
		if typ != TypeFrame {
			if err := readErr(r.TrailingBits(), "frame header trailing bits"); err != nil {
				return err
			}
		}
		if !cmp.Equal(copied, s.FrameHeader) {
			return malformedf("%s differs from the frame header in effect", typ)
		}
		d.logger.Debug("frame header copy matches", zap.Stringer("type", typ))
		return nil
	}
	if typ == TypeRedundantFrameHeader {
		d.logger.Debug("parsing redundant frame header as the frame header")
	}

	h, err := ReadFrameHeader(r, s.SequenceHeader, &s.References)
	if err != nil {
		return err
	}
	if typ != TypeFrame {
		if err := readErr(r.TrailingBits(), "frame header trailing bits"); err != nil {
			return err
		}
	}
	s.FrameHeader = h
	s.ShowExistingFrame = h.ShowExistingFrame
	s.SeenFrameHeader = true
	s.nextTile = 0
	d.logger.Debug("frame header",
		zap.Stringer("frame_type", h.FrameType),
		zap.Int("width", h.FrameSize.UpscaledWidth),
		zap.Int("height", h.FrameSize.FrameHeight),
		zap.Int("tiles", h.TileInfo.TileCount()),
	)
	return nil
}

func (d *Decoder) tileGroup(r *bitstream.Reader, s *Session, typ Type) error {
	if !s.SeenFrameHeader {
		return malformedf("corrupt frame: tile group without a frame header")
	}
	h := s.FrameHeader
	t := &h.TileInfo
	numTiles := t.TileCount()

	present := false
	var err error
	if numTiles > 1 {
		if present, err = readFlag(r, "tile_start_and_end_present_flag"); err != nil {
			return err
		}
	}
	if typ == TypeFrame && present {
		return malformedf("tile_start_and_end_present_flag set in an OBU_FRAME")
	}
	start, end := 0, numTiles-1
	if present {
		if start, err = readBits(r, t.TileBits(), "tg_start"); err != nil {
			return err
		}
		if end, err = readBits(r, t.TileBits(), "tg_end"); err != nil {
			return err
		}
	}
	if start != s.nextTile || end < start || end >= numTiles {
		return boundsf("tile group %d..%d out of order, expected start %d of %d tiles", start, end, s.nextTile, numTiles)
	}
	if err := readErr(r.ByteAlign(), "byte_alignment"); err != nil {
		return err
	}

	for tileNum := start; tileNum <= end; tileNum++ {
		size := r.Remaining() / 8
		if tileNum != end {
			v, err := r.ReadLittleEndian(t.TileSizeBytes)
			if err != nil {
				return readErr(err, "tile_size_minus_1")
			}
			size = int(v) + 1
		}
		data, err := r.ReadBytes(size)
		if err != nil {
			return readErr(err, "tile data")
		}
		d.logger.Debug("tile", zap.Int("tile", tileNum), zap.Int("bytes", size))
		if d.tiles == nil {
			continue
		}
		tile := Tile{
			Index:    tileNum,
			Row:      tileNum / t.Columns,
			Column:   tileNum % t.Columns,
			Data:     data,
			Sequence: s.SequenceHeader,
			Frame:    h,
		}
		if err := d.tiles.DecodeTile(tile); err != nil {
			return errors.Wrapf(err, "decoding tile %d", tileNum)
		}
	}
	s.nextTile = end + 1

	if end != numTiles-1 {
		return nil
	}
	s.SeenFrameHeader = false
	s.References.Refresh(h)
	if d.tiles != nil {
		if err := d.tiles.FinishDecodeTiles(h.ApplyCDEF(), h.ApplyLoopRestoration()); err != nil {
			return errors.Wrap(err, "finishing frame")
		}
	}
	return nil
}
