// Copyright 2018 The go-klaytn Authors
// This file is part of the go-klaytn library.
//
// The go-klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-klaytn library. If not, see <http://www.gnu.org/licenses/>.

package common

import (
	"encoding/hex"
	"fmt"
)

const (
	HashLength    = 32
	AddressLength = 20
)

// Hash represents a 32-byte block/transaction/merkle digest.
type Hash [HashLength]byte

func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

func (h Hash) Bytes() []byte  { return h[:] }
func (h Hash) String() string { return "0x" + hex.EncodeToString(h[:]) }
func (h Hash) IsZero() bool   { return h == Hash{} }

// Address represents a 20-byte account address (native or derived).
type Address [AddressLength]byte

func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

func (a Address) Bytes() []byte  { return a[:] }
func (a Address) String() string { return "0x" + hex.EncodeToString(a[:]) }
func (a Address) IsZero() bool   { return a == Address{} }

// Token identifies a balance ledger: the native token or an external IOU.
type Token string

const (
	TokenLAND Token = "LAND"
	TokenCASH Token = "CASH"
	TokenGAME Token = "GAME"
	TokenBTC  Token = "BTC"
	TokenBCH  Token = "BCH"
	TokenDOGE Token = "DOGE"
)

// VisionAlias is accepted only at decode time in the CLI/config layer and
// normalized to TokenLAND; it must never be stored or compared internally.
const VisionAlias Token = "VISION"

func NormalizeToken(t Token) Token {
	if t == VisionAlias {
		return TokenLAND
	}
	return t
}

func (t Token) IsExternal() bool {
	switch t {
	case TokenBTC, TokenBCH, TokenDOGE:
		return true
	default:
		return false
	}
}

// ExternalChain names a Bitcoin-family chain the deposit bridge watches.
type ExternalChain string

const (
	ChainBTC  ExternalChain = "BTC"
	ChainBCH  ExternalChain = "BCH"
	ChainDOGE ExternalChain = "DOGE"
)

func (c ExternalChain) Token() Token {
	return Token(c)
}

// MinConfirmations returns the confirmation depth required before a
// deposit on this chain may be credited (spec §4.4 step 6).
func (c ExternalChain) MinConfirmations() uint64 {
	switch c {
	case ChainBTC:
		return 3
	case ChainBCH:
		return 6
	case ChainDOGE:
		return 20
	default:
		panic(fmt.Sprintf("unknown external chain %q", c))
	}
}
