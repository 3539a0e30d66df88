package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReader_RoundTripsPrimitives(t *testing.T) {
	w := NewWriter()
	w.WriteUint8(0xAB)
	w.WriteUint16(0x1234)
	w.WriteUint32(0xDEADBEEF)
	w.WriteUint64(0x0102030405060708)
	w.WriteBytes([]byte("hello"))
	w.WriteFixed([]byte{1, 2, 3})
	w.WriteTag(7)
	w.WriteBool(true)
	w.WriteBool(false)

	r := NewReader(w.Bytes())

	u8, err := r.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xAB), u8)

	u16, err := r.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), u16)

	u32, err := r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), u32)

	u64, err := r.ReadUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), u64)

	bs, err := r.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(bs))

	fixed, err := r.ReadFixed(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, fixed)

	tag, err := r.ReadTag()
	require.NoError(t, err)
	assert.Equal(t, uint8(7), tag)

	bTrue, err := r.ReadBool()
	require.NoError(t, err)
	assert.True(t, bTrue)

	bFalse, err := r.ReadBool()
	require.NoError(t, err)
	assert.False(t, bFalse)

	assert.Equal(t, 0, r.Remaining())
}

func TestReader_TruncatedInputReturnsErrTruncated(t *testing.T) {
	r := NewReader([]byte{0x00, 0x01})
	_, err := r.ReadUint64()
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestReader_ReadBytesTruncatedLength(t *testing.T) {
	w := NewWriter()
	w.WriteUint32(100) // claims 100 bytes but none follow
	r := NewReader(w.Bytes())
	_, err := r.ReadBytes()
	assert.ErrorIs(t, err, ErrTruncated)
}

type pair struct {
	A uint64
	B []byte
}

func (p *pair) MarshalCanonical(w *Writer) {
	w.WriteUint64(p.A)
	w.WriteBytes(p.B)
}

func (p *pair) UnmarshalCanonical(r *Reader) error {
	a, err := r.ReadUint64()
	if err != nil {
		return err
	}
	b, err := r.ReadBytes()
	if err != nil {
		return err
	}
	p.A, p.B = a, b
	return nil
}

func TestEncodeDecode_RoundTripsMarshaler(t *testing.T) {
	in := &pair{A: 42, B: []byte("vision")}
	encoded := Encode(in)

	out := &pair{}
	require.NoError(t, Decode(encoded, out))
	assert.Equal(t, in, out)
}
