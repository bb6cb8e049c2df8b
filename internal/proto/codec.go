package proto

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	// ErrShortBuffer is returned when a read needs more bytes than remain.
	ErrShortBuffer = errors.New("proto: short buffer")
	// ErrTooLong is returned when a byte string does not fit its length prefix.
	ErrTooLong = errors.New("proto: byte string too long for length prefix")
)

// Writer appends big-endian integers and byte strings to a growing buffer.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with capacity for n bytes.
func NewWriter(n int) *Writer {
	return &Writer{buf: make([]byte, 0, n)}
}

func (w *Writer) Uint8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) Uint32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }

func (w *Writer) Uint64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }

func (w *Writer) Int64(v int64) { w.Uint64(uint64(v)) }

func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

// Bytes8 writes a 1-byte length followed by b. Nothing is written when b is
// longer than 255 bytes.
func (w *Writer) Bytes8(b []byte) error {
	if len(b) > math.MaxUint8 {
		return ErrTooLong
	}
	w.Uint8(uint8(len(b)))
	w.Raw(b)
	return nil
}

// Bytes32 writes a 4-byte big-endian length followed by b.
func (w *Writer) Bytes32(b []byte) {
	w.Uint32(uint32(len(b)))
	w.Raw(b)
}

// Bytes returns the encoded buffer. The Writer must not be reused afterwards.
func (w *Writer) Bytes() []byte { return w.buf }

// Reader consumes big-endian integers and byte strings from b.
type Reader struct {
	b   []byte
	off int
}

func NewReader(b []byte) *Reader { return &Reader{b: b} }

// Remaining reports how many unread bytes are left.
func (r *Reader) Remaining() int { return len(r.b) - r.off }

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrShortBuffer
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *Reader) Uint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) Uint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *Reader) Int64() (int64, error) {
	v, err := r.Uint64()
	return int64(v), err
}

// Raw returns the next n bytes without copying.
func (r *Reader) Raw(n int) ([]byte, error) { return r.take(n) }

// Bytes8 reads a 1-byte length prefixed byte string.
func (r *Reader) Bytes8() ([]byte, error) {
	n, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	return r.take(int(n))
}

// Bytes32 reads a 4-byte big-endian length prefixed byte string.
func (r *Reader) Bytes32() ([]byte, error) {
	n, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(r.Remaining()) {
		return nil, ErrShortBuffer
	}
	return r.take(int(n))
}
