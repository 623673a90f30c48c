package bitstream

import (
	"math"

	"github.com/pkg/errors"
)

// Writer is the bit cursor counterpart of Reader. Every WriteX mirrors ReadX bit for bit.
type Writer struct {
	buf    []byte
	bitPos int
}

// NewWriter returns a Writer with room for capacity bytes before it has to grow.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Position returns the number of bits written so far.
func (w *Writer) Position() int {
	return w.bitPos
}

func (w *Writer) IsAligned() bool {
	return w.bitPos&7 == 0
}

// Bytes returns the written data. A partial final byte is zero padded.
func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) writeBit(bit uint32) {
	if w.bitPos&7 == 0 {
		w.buf = append(w.buf, 0)
	}
	if bit != 0 {
		w.buf[w.bitPos>>3] |= 1 << (7 - w.bitPos&7)
	}
	w.bitPos++
}

// WriteLiteral writes the low n bits of v, most significant bit first.
func (w *Writer) WriteLiteral(v uint32, n int) error {
	if n < 0 || n > 32 {
		return errors.Wrapf(ErrValueRange, "literal width %d", n)
	}
	if n < 32 && uint64(v) >= uint64(1)<<n {
		return errors.Wrapf(ErrValueRange, "%d does not fit in %d bits", v, n)
	}
	for i := n - 1; i >= 0; i-- {
		w.writeBit((v >> i) & 1)
	}
	return nil
}

func (w *Writer) WriteBool(b bool) error {
	if b {
		return w.WriteLiteral(1, 1)
	}
	return w.WriteLiteral(0, 1)
}

// WriteSigned writes su(n).
func (w *Writer) WriteSigned(v int, n int) error {
	if n < 1 || n > 32 {
		return errors.Wrapf(ErrValueRange, "signed width %d", n)
	}
	limit := int64(1) << (n - 1)
	if int64(v) < -limit || int64(v) >= limit {
		return errors.Wrapf(ErrValueRange, "%d does not fit in su(%d)", v, n)
	}
	mask := uint64(1)<<n - 1
	return w.WriteLiteral(uint32(uint64(int64(v))&mask), n)
}

// WriteNonSymmetric writes ns(n) for a value v in [0, n).
func (w *Writer) WriteNonSymmetric(v uint32, n uint32) error {
	if n == 0 || v >= n {
		return errors.Wrapf(ErrValueRange, "%d outside non-symmetric range [0, %d)", v, n)
	}
	width := floorLog2(n) + 1
	m := (uint32(1) << width) - n
	if v < m {
		return w.WriteLiteral(v, width-1)
	}
	t := v + m
	if err := w.WriteLiteral(t>>1, width-1); err != nil {
		return err
	}
	return w.WriteLiteral(t&1, 1)
}

// WriteLEB128 writes v using the fewest leb128 bytes and returns the byte count.
func (w *Writer) WriteLEB128(v uint64) (int, error) {
	if v > math.MaxUint32 {
		return 0, errors.Wrapf(ErrLEB128Overflow, "value %d", v)
	}
	n := 0
	for {
		b := uint32(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		if err := w.WriteLiteral(b, 8); err != nil {
			return n, err
		}
		n++
		if v == 0 {
			return n, nil
		}
	}
}

// WriteLittleEndian writes le(n).
func (w *Writer) WriteLittleEndian(v uint64, n int) error {
	if n < 0 || n > 8 {
		return errors.Wrapf(ErrValueRange, "little-endian width %d", n)
	}
	if n < 8 && v >= uint64(1)<<(8*n) {
		return errors.Wrapf(ErrValueRange, "%d does not fit in %d bytes", v, n)
	}
	for i := 0; i < n; i++ {
		if err := w.WriteLiteral(uint32(v>>(8*i))&0xff, 8); err != nil {
			return err
		}
	}
	return nil
}

// ByteAlign writes zero bits up to the next byte boundary.
func (w *Writer) ByteAlign() {
	for !w.IsAligned() {
		w.writeBit(0)
	}
}

// TrailingBits writes a one bit followed by zeros up to the next byte boundary.
func (w *Writer) TrailingBits() {
	w.writeBit(1)
	w.ByteAlign()
}

// WriteBytes appends raw bytes.
func (w *Writer) WriteBytes(p []byte) {
	if w.IsAligned() {
		w.buf = append(w.buf, p...)
		w.bitPos += len(p) * 8
		return
	}
	for _, b := range p {
		for i := 7; i >= 0; i-- {
			w.writeBit(uint32(b>>i) & 1)
		}
	}
}
