package obu

import (
	"github.com/samber/lo"

	"github.com/m4tthewde/obu/internal/bitstream"
)

var knownTypes = []Type{
	TypeSequenceHeader, TypeTemporalDelimiter, TypeFrameHeader, TypeTileGroup,
	TypeMetadata, TypeFrame, TypeRedundantFrameHeader, TypeTileList, TypePadding,
}

// IsValid reports whether t is an OBU type defined by AV1 rather than a reserved value.
func (t Type) IsValid() bool {
	return lo.Contains(knownTypes, t)
}

// Header is obu_header() plus the optional obu_size field.
type Header struct {
	Type         Type
	HasExtension bool
	HasSize      bool
	TemporalID   uint8
	SpatialID    uint8
	// Size is the length in bytes of the header itself, including the obu_size field.
	Size int
	// PayloadSize is obu_size. It is only read from the stream when HasSize is set.
	PayloadSize int
}

// ReadHeader parses obu_header() and, when present, the leb128 obu_size that follows it.
func ReadHeader(r *bitstream.Reader) (Header, error) {
	var h Header

	forbidden, err := r.ReadBool()
	if err != nil {
		return h, readErr(err, "obu_forbidden_bit")
	}
	if forbidden {
		return h, malformedf("forbidden bit in OBU header is set")
	}

	typ, err := r.ReadLiteral(4)
	if err != nil {
		return h, readErr(err, "obu_type")
	}
	h.Type = Type(typ)
	if h.HasExtension, err = r.ReadBool(); err != nil {
		return h, readErr(err, "obu_extension_flag")
	}
	if h.HasSize, err = r.ReadBool(); err != nil {
		return h, readErr(err, "obu_has_size_field")
	}
	reserved, err := r.ReadBool()
	if err != nil {
		return h, readErr(err, "obu_reserved_1bit")
	}
	if reserved {
		return h, malformedf("reserved bit in OBU header is set")
	}
	h.Size = 1

	if h.HasExtension {
		temporalID, err := r.ReadLiteral(3)
		if err != nil {
			return h, readErr(err, "temporal_id")
		}
		spatialID, err := r.ReadLiteral(2)
		if err != nil {
			return h, readErr(err, "spatial_id")
		}
		reserved, err := r.ReadLiteral(3)
		if err != nil {
			return h, readErr(err, "extension_header_reserved_3bits")
		}
		if reserved != 0 {
			return h, malformedf("reserved bits in OBU extension header are set")
		}
		h.TemporalID = uint8(temporalID)
		h.SpatialID = uint8(spatialID)
		h.Size++
	}

	if h.HasSize {
		size, n, err := r.ReadLEB128()
		if err != nil {
			return h, readErr(err, "obu_size")
		}
		h.PayloadSize = int(size)
		h.Size += n
	}
	return h, nil
}

// WriteHeader writes obu_header() and, when HasSize is set, PayloadSize as leb128.
func WriteHeader(w *bitstream.Writer, h Header) error {
	if !h.Type.IsValid() {
		return boundsf("cannot write reserved OBU type %d", uint8(h.Type))
	}
	if h.TemporalID > 7 || h.SpatialID > 3 {
		return boundsf("temporal id %d / spatial id %d out of range", h.TemporalID, h.SpatialID)
	}
	if h.PayloadSize < 0 {
		return boundsf("negative OBU payload size %d", h.PayloadSize)
	}
	if !h.HasExtension && (h.TemporalID != 0 || h.SpatialID != 0) {
		return boundsf("temporal or spatial id set without an extension header")
	}

	if err := w.WriteBool(false); err != nil {
		return writeErr(err, "obu_forbidden_bit")
	}
	if err := w.WriteLiteral(uint32(h.Type), 4); err != nil {
		return writeErr(err, "obu_type")
	}
	if err := w.WriteBool(h.HasExtension); err != nil {
		return writeErr(err, "obu_extension_flag")
	}
	if err := w.WriteBool(h.HasSize); err != nil {
		return writeErr(err, "obu_has_size_field")
	}
	if err := w.WriteBool(false); err != nil {
		return writeErr(err, "obu_reserved_1bit")
	}
	if h.HasExtension {
		if err := w.WriteLiteral(uint32(h.TemporalID), 3); err != nil {
			return writeErr(err, "temporal_id")
		}
		if err := w.WriteLiteral(uint32(h.SpatialID), 2); err != nil {
			return writeErr(err, "spatial_id")
		}
		if err := w.WriteLiteral(0, 3); err != nil {
			return writeErr(err, "extension_header_reserved_3bits")
		}
	}
	if h.HasSize {
		if _, err := w.WriteLEB128(uint64(h.PayloadSize)); err != nil {
			return writeErr(err, "obu_size")
		}
	}
	return nil
}
