// Package bitstream provides the MSB-first bit cursor used by the AV1 OBU syntax:
// fixed-width literals f(n), signed su(n), non-symmetric ns(n), leb128() and le(n).
package bitstream

import (
	"math"

	"github.com/pkg/errors"
)

var (
	// ErrEndOfData is returned when a read would run past the end of the buffer.
	ErrEndOfData = errors.New("unexpected end of bitstream")
	// ErrPadding is returned when byte alignment padding contains a one bit.
	ErrPadding = errors.New("non-zero byte alignment padding")
	// ErrTrailingBits is returned when trailing bits are not a one followed by zeros.
	ErrTrailingBits = errors.New("malformed trailing bits")
	// ErrLEB128Overflow is returned when a leb128 value does not fit in 32 bits.
	ErrLEB128Overflow = errors.New("leb128 value exceeds 32 bits")
	// ErrValueRange is returned when a value or field width is outside what the syntax element allows.
	ErrValueRange = errors.New("value out of range")
)

const maxLEB128Bytes = 8

// Reader is a bit cursor over an in-memory buffer. The position only moves forward.
type Reader struct {
	data   []byte
	bitPos int
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Position returns the number of bits consumed so far.
func (r *Reader) Position() int {
	return r.bitPos
}

// BytePosition returns the index of the byte holding the next bit.
func (r *Reader) BytePosition() int {
	return r.bitPos >> 3
}

// Remaining returns the number of unread bits.
func (r *Reader) Remaining() int {
	return len(r.data)*8 - r.bitPos
}

// IsAligned reports whether the cursor sits on a byte boundary.
func (r *Reader) IsAligned() bool {
	return r.bitPos&7 == 0
}

func (r *Reader) readBit() uint32 {
	bit := uint32(r.data[r.bitPos>>3]>>(7-r.bitPos&7)) & 1
	r.bitPos++
	return bit
}

// ReadLiteral reads an n-bit unsigned value, most significant bit first. n must be in [0, 32].
func (r *Reader) ReadLiteral(n int) (uint32, error) {
	if n < 0 || n > 32 {
		return 0, errors.Wrapf(ErrValueRange, "literal width %d", n)
	}
	if n > r.Remaining() {
		return 0, errors.Wrapf(ErrEndOfData, "reading %d bits at bit %d", n, r.bitPos)
	}

	var x uint32
	for i := 0; i < n; i++ {
		x = x<<1 | r.readBit()
	}
	return x, nil
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadLiteral(1)
	return v != 0, err
}

// ReadSigned reads su(n): an n-bit two's complement value whose leading bit is the sign.
func (r *Reader) ReadSigned(n int) (int, error) {
	if n < 1 {
		return 0, errors.Wrapf(ErrValueRange, "signed width %d", n)
	}
	v, err := r.ReadLiteral(n)
	if err != nil {
		return 0, err
	}
	signMask := int64(1) << (n - 1)
	value := int64(v)
	if value&signMask != 0 {
		value -= 2 * signMask
	}
	return int(value), nil
}

// ReadNonSymmetric reads ns(n), a value in [0, n) coded with floor(log2(n)) or one more bit.
func (r *Reader) ReadNonSymmetric(n uint32) (uint32, error) {
	if n == 0 {
		return 0, errors.Wrap(ErrValueRange, "non-symmetric range of zero")
	}
	w := floorLog2(n) + 1
	m := (uint32(1) << w) - n
	v, err := r.ReadLiteral(w - 1)
	if err != nil {
		return 0, err
	}
	if v < m {
		return v, nil
	}
	extra, err := r.ReadLiteral(1)
	if err != nil {
		return 0, err
	}
	return (v << 1) - m + extra, nil
}

// ReadLEB128 reads an unsigned little-endian base 128 value and returns it with the
// number of bytes it occupied.
func (r *Reader) ReadLEB128() (uint64, int, error) {
	var value uint64
	for i := 0; i < maxLEB128Bytes; i++ {
		b, err := r.ReadLiteral(8)
		if err != nil {
			return 0, i, err
		}
		value |= uint64(b&0x7f) << (i * 7)
		if b&0x80 == 0 {
			if value > math.MaxUint32 {
				return 0, i + 1, errors.Wrapf(ErrLEB128Overflow, "value %d", value)
			}
			return value, i + 1, nil
		}
	}
	return 0, maxLEB128Bytes, errors.Wrap(ErrLEB128Overflow, "continuation bit set on final byte")
}

// ReadLittleEndian reads le(n): an n byte unsigned little-endian value.
func (r *Reader) ReadLittleEndian(n int) (uint64, error) {
	if n < 0 || n > 8 {
		return 0, errors.Wrapf(ErrValueRange, "little-endian width %d", n)
	}
	var t uint64
	for i := 0; i < n; i++ {
		b, err := r.ReadLiteral(8)
		if err != nil {
			return 0, err
		}
		t |= uint64(b) << (i * 8)
	}
	return t, nil
}

// ByteAlign consumes zero bits up to the next byte boundary.
func (r *Reader) ByteAlign() error {
	for !r.IsAligned() {
		if r.Remaining() == 0 {
			return errors.Wrap(ErrEndOfData, "byte alignment")
		}
		if r.readBit() != 0 {
			return errors.Wrapf(ErrPadding, "at bit %d", r.bitPos-1)
		}
	}
	return nil
}

// TrailingBits consumes a single one bit followed by zeros up to the next byte boundary.
// When the cursor is already aligned a whole byte (0x80) is consumed.
func (r *Reader) TrailingBits() error {
	n := 8 - r.bitPos&7
	v, err := r.ReadLiteral(n)
	if err != nil {
		return err
	}
	if v != 1<<(n-1) {
		return errors.Wrapf(ErrTrailingBits, "got %#x over %d bits", v, n)
	}
	return nil
}

// ReadBytes returns the next n bytes without copying. The cursor must be byte aligned.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if !r.IsAligned() {
		return nil, errors.Wrapf(ErrValueRange, "unaligned byte read at bit %d", r.bitPos)
	}
	start := r.bitPos >> 3
	if n < 0 || start+n > len(r.data) {
		return nil, errors.Wrapf(ErrEndOfData, "reading %d bytes at byte %d", n, start)
	}
	r.bitPos += n * 8
	return r.data[start : start+n], nil
}

// SkipBytes advances the cursor by n bytes.
func (r *Reader) SkipBytes(n int) error {
	if n < 0 || n*8 > r.Remaining() {
		return errors.Wrapf(ErrEndOfData, "skipping %d bytes at bit %d", n, r.bitPos)
	}
	r.bitPos += n * 8
	return nil
}

func floorLog2(n uint32) int {
	s := 0
	for n > 1 {
		n >>= 1
		s++
	}
	return s
}
