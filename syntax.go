package obu

import (
	"github.com/m4tthewde/obu/internal/bitstream"
)

// Helpers binding a syntax element name to each cursor call, so failures say which field broke.

func readFlag(r *bitstream.Reader, name string) (bool, error) {
	v, err := r.ReadBool()
	return v, readErr(err, name)
}

func readBits(r *bitstream.Reader, n int, name string) (int, error) {
	v, err := r.ReadLiteral(n)
	return int(v), readErr(err, name)
}

func readSigned(r *bitstream.Reader, n int, name string) (int, error) {
	v, err := r.ReadSigned(n)
	return v, readErr(err, name)
}

func readNonSymmetric(r *bitstream.Reader, n int, name string) (int, error) {
	v, err := r.ReadNonSymmetric(uint32(n))
	return int(v), readErr(err, name)
}

func writeFlag(w *bitstream.Writer, v bool, name string) error {
	return writeErr(w.WriteBool(v), name)
}

func writeBits(w *bitstream.Writer, v int, n int, name string) error {
	if v < 0 {
		return boundsf("%s: negative value %d", name, v)
	}
	return writeErr(w.WriteLiteral(uint32(v), n), name)
}

func writeSigned(w *bitstream.Writer, v int, n int, name string) error {
	return writeErr(w.WriteSigned(v, n), name)
}

func writeNonSymmetric(w *bitstream.Writer, v int, n int, name string) error {
	if v < 0 || n <= 0 {
		return boundsf("%s: value %d outside [0, %d)", name, v, n)
	}
	return writeErr(w.WriteNonSymmetric(uint32(v), uint32(n)), name)
}
