package obu

import (
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/m4tthewde/obu/internal/bitstream"
)

// TileWriter supplies the coded bytes of each tile, in tile index order.
type TileWriter interface {
	WriteTile(tileIndex int) ([]byte, error)
}

type Encoder struct {
	logger   *zap.Logger
	annexB   bool
	frameOBU bool
}

func NewEncoder(opts ...Option) *Encoder {
	o := newOptions(opts)
	return &Encoder{
		logger:   o.logger,
		annexB:   o.annexB,
		frameOBU: o.frameOBU,
	}
}

type rawOBU struct {
	typ     Type
	payload []byte
}

// Encode writes one temporal unit holding a temporal delimiter, the sequence header and the
// frame with all of its tiles.
func (e *Encoder) Encode(out io.Writer, seq *SequenceHeader, frame *FrameHeader, tiles TileWriter) error {
	if tiles == nil {
		return boundsf("encoding a frame without a tile writer")
	}
	seqPayload := bitstream.NewWriter(32)
	if err := WriteSequenceHeader(seqPayload, seq); err != nil {
		return err
	}
	obus := []rawOBU{
		{TypeTemporalDelimiter, nil},
		{TypeSequenceHeader, seqPayload.Bytes()},
	}

	frameWriter := bitstream.NewWriter(64)
	if err := WriteFrameHeader(frameWriter, seq, frame); err != nil {
		return err
	}
	if e.frameOBU {
		frameWriter.ByteAlign()
		if err := writeTileGroup(frameWriter, frame, tiles); err != nil {
			return err
		}
		obus = append(obus, rawOBU{TypeFrame, frameWriter.Bytes()})
	} else {
		frameWriter.TrailingBits()
		tileWriter := bitstream.NewWriter(1024)
		if err := writeTileGroup(tileWriter, frame, tiles); err != nil {
			return err
		}
		obus = append(obus, rawOBU{TypeFrameHeader, frameWriter.Bytes()}, rawOBU{TypeTileGroup, tileWriter.Bytes()})
	}

	var stream []byte
	var err error
	if e.annexB {
		stream, err = annexBUnits(obus)
	} else {
		stream, err = lowOverheadUnits(obus)
	}
	if err != nil {
		return err
	}
	for _, o := range obus {
		e.logger.Debug("obu", zap.Stringer("type", o.typ), zap.Int("size", len(o.payload)))
	}

	_, err = out.Write(stream)
	return errors.Wrap(err, "writing temporal unit")
}

func writeOBU(w *bitstream.Writer, o rawOBU, withSize bool) error {
	if err := WriteHeader(w, Header{Type: o.typ, HasSize: withSize, PayloadSize: len(o.payload)}); err != nil {
		return err
	}
	w.WriteBytes(o.payload)
	return nil
}

// lowOverheadUnits writes each OBU with its obu_size field.
func lowOverheadUnits(obus []rawOBU) ([]byte, error) {
	w := bitstream.NewWriter(1024)
	for _, o := range obus {
		if err := writeOBU(w, o, true); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

// annexBUnits writes the OBUs without obu_size into one frame unit inside one temporal unit.
func annexBUnits(obus []rawOBU) ([]byte, error) {
	frameUnit := bitstream.NewWriter(1024)
	for _, o := range obus {
		w := bitstream.NewWriter(len(o.payload) + 2)
		if err := writeOBU(w, o, false); err != nil {
			return nil, err
		}
		if _, err := frameUnit.WriteLEB128(uint64(len(w.Bytes()))); err != nil {
			return nil, writeErr(err, "obu_length")
		}
		frameUnit.WriteBytes(w.Bytes())
	}

	temporalUnit := bitstream.NewWriter(len(frameUnit.Bytes()) + 8)
	if _, err := temporalUnit.WriteLEB128(uint64(len(frameUnit.Bytes()))); err != nil {
		return nil, writeErr(err, "frame_unit_size")
	}
	temporalUnit.WriteBytes(frameUnit.Bytes())

	stream := bitstream.NewWriter(len(temporalUnit.Bytes()) + 8)
	if _, err := stream.WriteLEB128(uint64(len(temporalUnit.Bytes()))); err != nil {
		return nil, writeErr(err, "temporal_unit_size")
	}
	stream.WriteBytes(temporalUnit.Bytes())
	return stream.Bytes(), nil
}

// writeTileGroup writes a tile group covering every tile of the frame.
func writeTileGroup(w *bitstream.Writer, frame *FrameHeader, tiles TileWriter) error {
	t := &frame.TileInfo
	numTiles := t.TileCount()
	if numTiles > 1 {
		if err := writeFlag(w, false, "tile_start_and_end_present_flag"); err != nil {
			return err
		}
	}
	w.ByteAlign()

	for i := 0; i < numTiles; i++ {
		data, err := tiles.WriteTile(i)
		if err != nil {
			return errors.Wrapf(err, "writing tile %d", i)
		}
		if i != numTiles-1 {
			if len(data) == 0 || uint64(len(data)-1) >= uint64(1)<<(8*t.TileSizeBytes) {
				return boundsf("tile %d size %d does not fit in %d bytes", i, len(data), t.TileSizeBytes)
			}
			if err := w.WriteLittleEndian(uint64(len(data)-1), t.TileSizeBytes); err != nil {
				return writeErr(err, "tile_size_minus_1")
			}
		}
		w.WriteBytes(data)
	}
	return nil
}
