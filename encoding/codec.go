// Package encoding implements Vision Node's canonical binary wire/storage
// format: big-endian fixed-width integers, uint32 length-prefixed byte
// strings, and single-byte tagged-union discriminants (spec §4.3). Every
// block, transaction, and receipt encodes through this package so two
// honest nodes that apply the same bytes always derive the same hash.
//
// Grounded on the shape of the teacher's ser/rlp package (visible only
// through its callers — `rlp.Encode`/`rlp.DecodeBytes` pairs throughout
// blockchain/types/tx_internal_data_*.go — the package itself wasn't in the
// retrieval). RLP's own encoding is deliberately NOT reused: RLP's list/
// string framing is schema-less and the PoW/signature surface needs a
// format that is schema-exact and ambiguity-free by construction, not
// merely deterministic for a specific encoder implementation.
package encoding

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ErrTruncated is returned by any Reader method that runs out of bytes
// before a full field is available.
var ErrTruncated = fmt.Errorf("encoding: truncated input")

// Writer accumulates a canonical encoding. The zero value is ready to use.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }

func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteFloat64 is only used for non-consensus diagnostic fields; nothing in
// the state-transition surface encodes a float.
func (w *Writer) WriteFloat64(v float64) {
	w.WriteUint64(math.Float64bits(v))
}

// WriteBytes writes a uint32 length prefix followed by the raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteFixed writes raw bytes with no length prefix, for fixed-size fields
// (Hash, Address, signatures) whose length is implied by the type.
func (w *Writer) WriteFixed(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteTag writes the single-byte discriminant of a tagged union
// (TxModule, TxMethod, OrderSide, TIF, HTLCState, DepositStatus).
func (w *Writer) WriteTag(tag uint8) {
	w.WriteUint8(tag)
}

// WriteBool encodes as a single 0/1 byte.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
}

// Reader consumes a canonical encoding produced by Writer, tracking an
// offset and surfacing ErrTruncated instead of panicking on short input.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) take(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, ErrTruncated
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *Reader) ReadFloat64() (float64, error) {
	u, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(u), nil
}

func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func (r *Reader) ReadFixed(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func (r *Reader) ReadTag() (uint8, error) {
	return r.ReadUint8()
}

func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadUint8()
	if err != nil {
		return false, err
	}
	if b > 1 {
		return false, fmt.Errorf("encoding: invalid bool byte 0x%02x", b)
	}
	return b == 1, nil
}

// Marshaler is implemented by every canonical-encoded type.
type Marshaler interface {
	MarshalCanonical(w *Writer)
}

// Unmarshaler is implemented by every canonical-decoded type.
type Unmarshaler interface {
	UnmarshalCanonical(r *Reader) error
}

// Encode is a convenience wrapper for one-shot encoding.
func Encode(m Marshaler) []byte {
	w := NewWriter()
	m.MarshalCanonical(w)
	return w.Bytes()
}

// Decode is a convenience wrapper for one-shot decoding.
func Decode(b []byte, u Unmarshaler) error {
	return u.UnmarshalCanonical(NewReader(b))
}
