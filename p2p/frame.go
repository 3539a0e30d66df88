package p2p

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"github.com/vision-chain/vision-node/encoding"
)

// msg is one decoded wire message: a code identifying its payload shape
// (spec §6's message list) plus the still-encoded payload bytes, decoded
// lazily by whichever handler recognizes the code.
type msg struct {
	Code    uint8
	Payload []byte
}

// frameReadWriter is the length-prefixed framing transport every Peer reads
// and writes through: a 1-byte code, a uint32 big-endian length, then that
// many payload bytes. Grounded on the teacher's node/cn/protocol.go's use of
// p2p.MsgReadWriter — generalized to a plain net.Conn framing since no
// devp2p transport library is available to this module.
type frameReadWriter struct {
	conn net.Conn

	wmu sync.Mutex
}

func newFrameReadWriter(conn net.Conn) *frameReadWriter {
	return &frameReadWriter{conn: conn}
}

// ReadMsg blocks until a full frame arrives, or deadline elapses. A zero
// deadline waits indefinitely.
func (f *frameReadWriter) ReadMsg(deadline time.Duration) (msg, error) {
	if deadline > 0 {
		f.conn.SetReadDeadline(time.Now().Add(deadline))
	} else {
		f.conn.SetReadDeadline(time.Time{})
	}
	var header [5]byte
	if _, err := io.ReadFull(f.conn, header[:]); err != nil {
		return msg{}, err
	}
	code := header[0]
	size := binary.BigEndian.Uint32(header[1:])
	if size > MaxMsgSize {
		return msg{}, newPeerError(ErrMsgTooLarge, "frame of %d bytes exceeds cap %d", size, MaxMsgSize)
	}
	payload := make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(f.conn, payload); err != nil {
			return msg{}, err
		}
	}
	return msg{Code: code, Payload: payload}, nil
}

// WriteMsg serializes one frame. Safe for concurrent use by multiple
// goroutines writing distinct messages (the peer's broadcast loop and its
// request/response path both write through the same conn).
func (f *frameReadWriter) WriteMsg(code uint8, payload []byte) error {
	if len(payload) > MaxMsgSize {
		return newPeerError(ErrMsgTooLarge, "outgoing frame of %d bytes exceeds cap %d", len(payload), MaxMsgSize)
	}
	var header [5]byte
	header[0] = code
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))

	f.wmu.Lock()
	defer f.wmu.Unlock()
	if _, err := f.conn.Write(header[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := f.conn.Write(payload)
	return err
}

func (f *frameReadWriter) Close() error { return f.conn.Close() }

// decodePayload routes a message code to its wire struct and decodes into
// it, keeping the switch in one place instead of scattered through
// peer.go's per-message handlers.
func decodePayload(code uint8, payload []byte) (encoding.Unmarshaler, error) {
	var v encoding.Unmarshaler
	switch code {
	case HelloMsg:
		v = &HelloData{}
	case GetHeadersMsg:
		v = &GetHeadersData{}
	case HeadersMsg:
		v = &HeadersData{}
	case GetBlockMsg:
		v = &GetBlockData{}
	case BlockMsg:
		v = &BlockData{}
	case AnnounceCompactMsg:
		v = &AnnounceCompactData{}
	case GetBlockTxnsMsg:
		v = &GetBlockTxnsData{}
	case BlockTxnsMsg:
		v = &BlockTxnsData{}
	case InvTxMsg:
		v = &InvTxData{}
	case GetTxMsg:
		v = &GetTxData{}
	case TxMsg:
		v = &TxData{}
	case PingMsg:
		v = &PingData{}
	case PongMsg:
		v = &PongData{}
	default:
		return nil, newPeerError(ErrInvalidMsgCode, "code %d", code)
	}
	if err := encoding.Decode(payload, v); err != nil {
		return nil, newPeerError(ErrDecode, "%v", err)
	}
	return v, nil
}
