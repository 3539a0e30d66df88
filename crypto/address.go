package crypto

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/bech32"

	"github.com/vision-chain/vision-node/common"
)

// NativeHRP is the bech32 human-readable part for Vision Node addresses.
const NativeHRP = "vis"

// EncodeNativeAddress renders a native Address as a bech32 string, grounded
// on the same btcutil/bech32 bit-regrouping (ConvertBits 8->5) the BTC
// P2WPKH codec below uses, just with our own HRP and no witness version
// byte (this chain has no segwit-style script versioning).
func EncodeNativeAddress(addr common.Address) (string, error) {
	data, err := bech32.ConvertBits(addr.Bytes(), 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("crypto: convert address bits: %w", err)
	}
	return bech32.Encode(NativeHRP, data)
}

func DecodeNativeAddress(s string) (common.Address, error) {
	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if !strings.EqualFold(hrp, NativeHRP) {
		return common.Address{}, fmt.Errorf("%w: unexpected hrp %q", ErrInvalidEncoding, hrp)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if len(raw) != common.AddressLength {
		return common.Address{}, fmt.Errorf("%w: wrong address length %d", ErrInvalidEncoding, len(raw))
	}
	return common.BytesToAddress(raw), nil
}

// ExternalAddressKind distinguishes the script/encoding family an external
// deposit or withdrawal address belongs to.
type ExternalAddressKind int

const (
	KindP2PKH ExternalAddressKind = iota
	KindP2SH
	KindP2WPKH
	KindCashAddr
)

// btc/doge version bytes (mainnet). Only these are accepted; there is no
// permissive build mode that also accepts testnet version bytes.
const (
	btcP2PKHVersion  = 0x00
	btcP2SHVersion   = 0x05
	dogeP2PKHVersion = 0x1e
	dogeP2SHVersion  = 0x16
)

// DecodeBTCAddress accepts P2PKH/P2SH (Base58Check) and P2WPKH (bech32,
// HRP "bc") addresses, returning the 20-byte pubkey/script hash.
func DecodeBTCAddress(s string) (hash [20]byte, kind ExternalAddressKind, err error) {
	if strings.HasPrefix(s, "bc1") {
		hrp, data, derr := bech32.Decode(s)
		if derr != nil || hrp != "bc" {
			return hash, kind, fmt.Errorf("%w: bad bech32 btc address", ErrInvalidEncoding)
		}
		if len(data) < 1 {
			return hash, kind, fmt.Errorf("%w: empty witness program", ErrInvalidEncoding)
		}
		prog, cerr := bech32.ConvertBits(data[1:], 5, 8, false)
		if cerr != nil || len(prog) != 20 {
			return hash, kind, fmt.Errorf("%w: bad witness program length", ErrInvalidEncoding)
		}
		copy(hash[:], prog)
		return hash, KindP2WPKH, nil
	}

	decoded, version, derr := base58.CheckDecode(s)
	if derr != nil {
		return hash, kind, fmt.Errorf("%w: %v", ErrInvalidEncoding, derr)
	}
	if len(decoded) != 20 {
		return hash, kind, fmt.Errorf("%w: bad payload length", ErrInvalidEncoding)
	}
	copy(hash[:], decoded)
	switch version {
	case btcP2PKHVersion:
		return hash, KindP2PKH, nil
	case btcP2SHVersion:
		return hash, KindP2SH, nil
	default:
		return hash, kind, fmt.Errorf("%w: unrecognized btc version byte 0x%02x", ErrInvalidEncoding, version)
	}
}

// DecodeDOGEAddress accepts Dogecoin's legacy Base58Check P2PKH/P2SH
// addresses (same base58.CheckDecode routine as BTC, distinct version
// bytes).
func DecodeDOGEAddress(s string) (hash [20]byte, kind ExternalAddressKind, err error) {
	decoded, version, derr := base58.CheckDecode(s)
	if derr != nil {
		return hash, kind, fmt.Errorf("%w: %v", ErrInvalidEncoding, derr)
	}
	if len(decoded) != 20 {
		return hash, kind, fmt.Errorf("%w: bad payload length", ErrInvalidEncoding)
	}
	copy(hash[:], decoded)
	switch version {
	case dogeP2PKHVersion:
		return hash, KindP2PKH, nil
	case dogeP2SHVersion:
		return hash, KindP2SH, nil
	default:
		return hash, kind, fmt.Errorf("%w: unrecognized doge version byte 0x%02x", ErrInvalidEncoding, version)
	}
}

// --- BCH CashAddr ---
//
// No example/manifest in the retrieval pack imports a CashAddr-specific
// package (only BIP-173 bech32 via btcutil, which has the wrong charset,
// generator polynomial, and no version-byte layout for CashAddr). This is
// the one codec in this file built on the standard library rather than a
// pack-grounded third-party decoder, per the standard-library justification
// policy: adopting btcutil/bech32 here would silently produce addresses
// valid under BIP-173 and invalid under CashAddr's distinct checksum.

const cashAddrCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// cashAddrPolymod is the CashAddr-specific checksum (BCH spec, distinct
// generator constants from bech32's).
func cashAddrPolymod(values []byte) uint64 {
	c := uint64(1)
	for _, d := range values {
		c0 := byte(c >> 35)
		c = ((c & 0x07ffffffff) << 5) ^ uint64(d)
		if c0&0x01 != 0 {
			c ^= 0x98f2bc8e61
		}
		if c0&0x02 != 0 {
			c ^= 0x79b76d99e2
		}
		if c0&0x04 != 0 {
			c ^= 0xf33e5fb3c4
		}
		if c0&0x08 != 0 {
			c ^= 0xae2eabe2a8
		}
		if c0&0x10 != 0 {
			c ^= 0x1e4f43e470
		}
	}
	return c ^ 1
}

func cashAddrHRPExpand(hrp string) []byte {
	out := make([]byte, 0, len(hrp)+1)
	for _, r := range hrp {
		out = append(out, byte(r)&0x1f)
	}
	out = append(out, 0)
	return out
}

// DecodeCashAddr decodes a BCH CashAddr string (with or without the
// "bitcoincash:" prefix) into a 20-byte hash and address kind.
func DecodeCashAddr(s string) (hash [20]byte, kind ExternalAddressKind, err error) {
	lower := strings.ToLower(s)
	hrp := "bitcoincash"
	payload := lower
	if idx := strings.Index(lower, ":"); idx >= 0 {
		hrp = lower[:idx]
		payload = lower[idx+1:]
	}

	values := make([]byte, len(payload))
	for i, r := range payload {
		idx := strings.IndexRune(cashAddrCharset, r)
		if idx < 0 {
			return hash, kind, fmt.Errorf("%w: bad cashaddr character %q", ErrInvalidEncoding, r)
		}
		values[i] = byte(idx)
	}
	if len(values) < 8 {
		return hash, kind, fmt.Errorf("%w: cashaddr too short", ErrInvalidEncoding)
	}

	check := append(cashAddrHRPExpand(hrp), values...)
	if cashAddrPolymod(check) != 0 {
		return hash, kind, fmt.Errorf("%w: bad cashaddr checksum", ErrInvalidEncoding)
	}

	payload5 := values[:len(values)-8]
	decoded, cerr := bech32.ConvertBits(payload5, 5, 8, false)
	if cerr != nil || len(decoded) < 21 {
		return hash, kind, fmt.Errorf("%w: bad cashaddr payload", ErrInvalidEncoding)
	}

	versionByte := decoded[0]
	payloadHash := decoded[1:]
	if len(payloadHash) != 20 {
		return hash, kind, fmt.Errorf("%w: unsupported cashaddr hash size", ErrInvalidEncoding)
	}
	copy(hash[:], payloadHash)

	switch versionByte & 0x78 {
	case 0x00:
		return hash, KindP2PKH, nil
	case 0x08:
		return hash, KindP2SH, nil
	default:
		return hash, kind, fmt.Errorf("%w: unrecognized cashaddr type bits", ErrInvalidEncoding)
	}
}
