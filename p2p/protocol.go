// Package p2p implements the P2P (C7) wire protocol: message framing, the
// per-peer read/write loop, and the peer registry with its strike policy
// (spec §4.7/§6/§7).
//
// Grounded on the teacher's node/cn/protocol.go: the same shape of a
// message-code const block, an errCode type with an errorToString lookup
// table, and per-message wire structs — generalized from klaytn's RLP-over-
// devp2p transport (ser/rlp, networks/p2p's full discovery/rlpx stack
// wasn't pulled into the retrieval pack) to this chain's own
// encoding.Marshaler/Unmarshaler framing over a plain net.Conn, matching
// how every other wire-facing type in this module already encodes (spec
// §4.2's "big-endian fixed-width fields followed by variable fields with
// length prefixes").
package p2p

import (
	"fmt"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/encoding"
	"github.com/vision-chain/vision-node/types"
)

// ProtocolVersion is the only version this node speaks; a peer advertising
// anything else fails the handshake (spec §4.7 "Mismatched network_id ->
// disconnect" — version is checked the same way).
const ProtocolVersion = 1

// Message codes for spec §6's wire protocol list.
const (
	HelloMsg = iota
	GetHeadersMsg
	HeadersMsg
	GetBlockMsg
	BlockMsg
	AnnounceCompactMsg
	GetBlockTxnsMsg
	BlockTxnsMsg
	InvTxMsg
	GetTxMsg
	TxMsg
	PingMsg
	PongMsg
)

// MaxMsgSize is the hard per-message size cap spec §4.7 requires to bound
// amplification.
const MaxMsgSize = 4 * 1024 * 1024

type errCode int

const (
	ErrMsgTooLarge errCode = iota
	ErrDecode
	ErrInvalidMsgCode
	ErrProtocolVersionMismatch
	ErrNetworkIDMismatch
	ErrNoHelloMsg
	ErrExtraHelloMsg
	ErrBannedPeer
)

func (e errCode) String() string { return errorToString[e] }

var errorToString = map[errCode]string{
	ErrMsgTooLarge:             "message too large",
	ErrDecode:                  "invalid message encoding",
	ErrInvalidMsgCode:          "invalid message code",
	ErrProtocolVersionMismatch: "protocol version mismatch",
	ErrNetworkIDMismatch:       "network id mismatch",
	ErrNoHelloMsg:              "first message was not Hello",
	ErrExtraHelloMsg:           "duplicate Hello message",
	ErrBannedPeer:              "peer is banned",
}

type protocolError struct {
	code errCode
	msg  string
}

func (e *protocolError) Error() string {
	return fmt.Sprintf("p2p: %s: %s", e.code, e.msg)
}

func newPeerError(code errCode, format string, args ...interface{}) error {
	return &protocolError{code: code, msg: fmt.Sprintf(format, args...)}
}

// HelloData is the handshake payload exchanged as both the first message
// sent and the first expected (spec §4.7 "On connect, peers exchange
// (version, network_id, best_height, best_hash, node_tag)").
type HelloData struct {
	Version     uint32
	NetworkID   uint64
	BestHeight  uint64
	BestHash    common.Hash
	NodeTag     string
	Ticket      []byte // opaque admission ticket; empty when none presented
}

func (h *HelloData) MarshalCanonical(w *encoding.Writer) {
	w.WriteUint32(h.Version)
	w.WriteUint64(h.NetworkID)
	w.WriteUint64(h.BestHeight)
	w.WriteFixed(h.BestHash.Bytes())
	w.WriteBytes([]byte(h.NodeTag))
	w.WriteBytes(h.Ticket)
}

func (h *HelloData) UnmarshalCanonical(r *encoding.Reader) error {
	var err error
	if h.Version, err = r.ReadUint32(); err != nil {
		return err
	}
	if h.NetworkID, err = r.ReadUint64(); err != nil {
		return err
	}
	if h.BestHeight, err = r.ReadUint64(); err != nil {
		return err
	}
	hash, err := r.ReadFixed(common.HashLength)
	if err != nil {
		return err
	}
	h.BestHash = common.BytesToHash(hash)
	tag, err := r.ReadBytes()
	if err != nil {
		return err
	}
	h.NodeTag = string(tag)
	if h.Ticket, err = r.ReadBytes(); err != nil {
		return err
	}
	return nil
}

// GetHeadersData requests a range of headers by height (spec §4.7's
// headers-first catch-up).
type GetHeadersData struct {
	FromHeight uint64
	Count      uint64
}

func (g *GetHeadersData) MarshalCanonical(w *encoding.Writer) {
	w.WriteUint64(g.FromHeight)
	w.WriteUint64(g.Count)
}

func (g *GetHeadersData) UnmarshalCanonical(r *encoding.Reader) error {
	var err error
	if g.FromHeight, err = r.ReadUint64(); err != nil {
		return err
	}
	if g.Count, err = r.ReadUint64(); err != nil {
		return err
	}
	return nil
}

type HeadersData struct {
	Headers []*types.Header
}

func (h *HeadersData) MarshalCanonical(w *encoding.Writer) {
	w.WriteUint32(uint32(len(h.Headers)))
	for _, hdr := range h.Headers {
		w.WriteBytes(encoding.Encode(hdr))
	}
}

func (h *HeadersData) UnmarshalCanonical(r *encoding.Reader) error {
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	h.Headers = make([]*types.Header, n)
	for i := range h.Headers {
		raw, err := r.ReadBytes()
		if err != nil {
			return err
		}
		hdr := &types.Header{}
		if err := encoding.Decode(raw, hdr); err != nil {
			return err
		}
		h.Headers[i] = hdr
	}
	return nil
}

type GetBlockData struct {
	Hash common.Hash
}

func (g *GetBlockData) MarshalCanonical(w *encoding.Writer) { w.WriteFixed(g.Hash.Bytes()) }

func (g *GetBlockData) UnmarshalCanonical(r *encoding.Reader) error {
	b, err := r.ReadFixed(common.HashLength)
	if err != nil {
		return err
	}
	g.Hash = common.BytesToHash(b)
	return nil
}

type BlockData struct {
	Block *types.Block
}

func (b *BlockData) MarshalCanonical(w *encoding.Writer) { w.WriteBytes(encoding.Encode(b.Block)) }

func (b *BlockData) UnmarshalCanonical(r *encoding.Reader) error {
	raw, err := r.ReadBytes()
	if err != nil {
		return err
	}
	blk := &types.Block{}
	if err := encoding.Decode(raw, blk); err != nil {
		return err
	}
	b.Block = blk
	return nil
}

// CompactBlock is a header plus short transaction ids, for bandwidth-saving
// block announcement (spec §4.7 "Compact blocks"). Each ShortID is the
// first 8 bytes of the tx hash; it is not seeded with the block hash, so a
// tx has the same short id in every block. PrefilledTxs carries full
// transactions sent alongside the ids; Peer.Broadcast always sends it empty.
type CompactBlock struct {
	Header        *types.Header
	ShortIDs      [][8]byte
	PrefilledTxs  []*types.Transaction
}

type AnnounceCompactData struct {
	Block CompactBlock
}

func (a *AnnounceCompactData) MarshalCanonical(w *encoding.Writer) {
	w.WriteBytes(encoding.Encode(a.Block.Header))
	w.WriteUint32(uint32(len(a.Block.ShortIDs)))
	for _, id := range a.Block.ShortIDs {
		w.WriteFixed(id[:])
	}
	w.WriteUint32(uint32(len(a.Block.PrefilledTxs)))
	for _, tx := range a.Block.PrefilledTxs {
		w.WriteBytes(encoding.Encode(tx))
	}
}

func (a *AnnounceCompactData) UnmarshalCanonical(r *encoding.Reader) error {
	hdrRaw, err := r.ReadBytes()
	if err != nil {
		return err
	}
	hdr := &types.Header{}
	if err := encoding.Decode(hdrRaw, hdr); err != nil {
		return err
	}
	a.Block.Header = hdr

	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	a.Block.ShortIDs = make([][8]byte, n)
	for i := range a.Block.ShortIDs {
		b, err := r.ReadFixed(8)
		if err != nil {
			return err
		}
		copy(a.Block.ShortIDs[i][:], b)
	}

	m, err := r.ReadUint32()
	if err != nil {
		return err
	}
	a.Block.PrefilledTxs = make([]*types.Transaction, m)
	for i := range a.Block.PrefilledTxs {
		raw, err := r.ReadBytes()
		if err != nil {
			return err
		}
		tx := &types.Transaction{}
		if err := encoding.Decode(raw, tx); err != nil {
			return err
		}
		a.Block.PrefilledTxs[i] = tx
	}
	return nil
}

// GetBlockTxnsData requests the transactions a CompactBlock didn't prefill,
// by index into the block's tx list.
type GetBlockTxnsData struct {
	Hash    common.Hash
	Indices []uint32
}

func (g *GetBlockTxnsData) MarshalCanonical(w *encoding.Writer) {
	w.WriteFixed(g.Hash.Bytes())
	w.WriteUint32(uint32(len(g.Indices)))
	for _, idx := range g.Indices {
		w.WriteUint32(idx)
	}
}

func (g *GetBlockTxnsData) UnmarshalCanonical(r *encoding.Reader) error {
	b, err := r.ReadFixed(common.HashLength)
	if err != nil {
		return err
	}
	g.Hash = common.BytesToHash(b)
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	g.Indices = make([]uint32, n)
	for i := range g.Indices {
		if g.Indices[i], err = r.ReadUint32(); err != nil {
			return err
		}
	}
	return nil
}

type BlockTxnsData struct {
	Hash common.Hash
	Txs  []*types.Transaction
}

func (b *BlockTxnsData) MarshalCanonical(w *encoding.Writer) {
	w.WriteFixed(b.Hash.Bytes())
	w.WriteUint32(uint32(len(b.Txs)))
	for _, tx := range b.Txs {
		w.WriteBytes(encoding.Encode(tx))
	}
}

func (b *BlockTxnsData) UnmarshalCanonical(r *encoding.Reader) error {
	hash, err := r.ReadFixed(common.HashLength)
	if err != nil {
		return err
	}
	b.Hash = common.BytesToHash(hash)
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	b.Txs = make([]*types.Transaction, n)
	for i := range b.Txs {
		raw, err := r.ReadBytes()
		if err != nil {
			return err
		}
		tx := &types.Transaction{}
		if err := encoding.Decode(raw, tx); err != nil {
			return err
		}
		b.Txs[i] = tx
	}
	return nil
}

type hashListData struct {
	Hashes []common.Hash
}

func (h *hashListData) MarshalCanonical(w *encoding.Writer) {
	w.WriteUint32(uint32(len(h.Hashes)))
	for _, hash := range h.Hashes {
		w.WriteFixed(hash.Bytes())
	}
}

func (h *hashListData) UnmarshalCanonical(r *encoding.Reader) error {
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	h.Hashes = make([]common.Hash, n)
	for i := range h.Hashes {
		b, err := r.ReadFixed(common.HashLength)
		if err != nil {
			return err
		}
		h.Hashes[i] = common.BytesToHash(b)
	}
	return nil
}

// InvTxData and GetTxData share hashListData's wire shape but stay distinct
// Go types so a caller can't accidentally hand one message's payload to the
// other's handler.
type InvTxData struct{ hashListData }
type GetTxData struct{ hashListData }

type TxData struct {
	Tx *types.Transaction
}

func (t *TxData) MarshalCanonical(w *encoding.Writer) { w.WriteBytes(encoding.Encode(t.Tx)) }

func (t *TxData) UnmarshalCanonical(r *encoding.Reader) error {
	raw, err := r.ReadBytes()
	if err != nil {
		return err
	}
	tx := &types.Transaction{}
	if err := encoding.Decode(raw, tx); err != nil {
		return err
	}
	t.Tx = tx
	return nil
}

type PingData struct{ Nonce uint64 }

func (p *PingData) MarshalCanonical(w *encoding.Writer) { w.WriteUint64(p.Nonce) }
func (p *PingData) UnmarshalCanonical(r *encoding.Reader) error {
	n, err := r.ReadUint64()
	p.Nonce = n
	return err
}

type PongData struct{ Nonce uint64 }

func (p *PongData) MarshalCanonical(w *encoding.Writer) { w.WriteUint64(p.Nonce) }
func (p *PongData) UnmarshalCanonical(r *encoding.Reader) error {
	n, err := r.ReadUint64()
	p.Nonce = n
	return err
}
