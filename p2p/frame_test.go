package p2p

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/encoding"
)

func TestFrameReadWriter_RoundTripsAMessage(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cw := newFrameReadWriter(client)
	sw := newFrameReadWriter(server)

	ping := &PingData{Nonce: 42}
	done := make(chan error, 1)
	go func() { done <- cw.WriteMsg(PingMsg, encoding.Encode(ping)) }()

	m, err := sw.ReadMsg(time.Second)
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Equal(t, uint8(PingMsg), m.Code)

	v, err := decodePayload(m.Code, m.Payload)
	require.NoError(t, err)
	require.Equal(t, uint64(42), v.(*PingData).Nonce)
}

func TestFrameReadWriter_RejectsOversizedFrame(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cw := newFrameReadWriter(client)
	sw := newFrameReadWriter(server)

	oversized := make([]byte, MaxMsgSize+1)
	require.Error(t, cw.WriteMsg(TxMsg, oversized))

	// WriteMsg refuses before sending anything, so hand the reader a raw
	// header that announces an oversized payload.
	var header [5]byte
	header[0] = TxMsg
	binary.BigEndian.PutUint32(header[1:], MaxMsgSize+1)
	go client.Write(header[:])

	_, err := sw.ReadMsg(100 * time.Millisecond)
	require.Error(t, err)
	var pe *protocolError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, ErrMsgTooLarge, pe.code)
}

func TestDecodePayload_RejectsUnknownCode(t *testing.T) {
	_, err := decodePayload(255, nil)
	require.Error(t, err)
}

func TestHelloData_RoundTripsThroughCanonicalEncoding(t *testing.T) {
	h := &HelloData{
		Version:    ProtocolVersion,
		NetworkID:  7,
		BestHeight: 100,
		BestHash:   common.BytesToHash([]byte("tip")),
		NodeTag:    "vision-node/1.0",
		Ticket:     []byte("ticket-bytes"),
	}
	encoded := encoding.Encode(h)

	var decoded HelloData
	require.NoError(t, encoding.Decode(encoded, &decoded))
	require.Equal(t, h.Version, decoded.Version)
	require.Equal(t, h.NetworkID, decoded.NetworkID)
	require.Equal(t, h.BestHeight, decoded.BestHeight)
	require.Equal(t, h.BestHash, decoded.BestHash)
	require.Equal(t, h.NodeTag, decoded.NodeTag)
	require.Equal(t, h.Ticket, decoded.Ticket)
}
