// Package crypto implements the node's hashing, signature, and PoW
// primitives (spec §4.2). Block/tx digests and the merkle root use
// BLAKE2b-256; account keys are Ed25519; PoW runs a memory-hardened
// BLAKE2b scratchpad so difficulty retargeting has teeth.
package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/ed25519"

	"github.com/vision-chain/vision-node/common"
)

var ErrInvalidSignature = errors.New("crypto: invalid signature")

// Hash256 returns the BLAKE2b-256 digest of the concatenated inputs.
func Hash256(parts ...[]byte) common.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err) // blake2b.New256 only errors on a bad key, which we never pass
	}
	for _, p := range parts {
		h.Write(p)
	}
	var out common.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// KeyPair is an Ed25519 account keypair; Address is derived from the
// public key and is the sole artifact persisted alongside balances.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// PubKeyToAddress derives the 20-byte native address from an Ed25519
// public key: BLAKE2b-256(pubkey) truncated to the low 20 bytes.
func PubKeyToAddress(pub ed25519.PublicKey) common.Address {
	h := Hash256(pub)
	return common.BytesToAddress(h[HashLength-common.AddressLength:])
}

const HashLength = common.HashLength

func Sign(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// MerkleRoot builds the spec §4.2 binary merkle tree: BLAKE2b-256 pairwise,
// duplicating the last leaf when a level has an odd count.
func MerkleRoot(leaves []common.Hash) common.Hash {
	if len(leaves) == 0 {
		return common.Hash{}
	}
	level := make([]common.Hash, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]common.Hash, len(level)/2)
		for i := 0; i < len(next); i++ {
			next[i] = Hash256(level[2*i][:], level[2*i+1][:])
		}
		level = next
	}
	return level[0]
}

// ErrInvalidEncoding is returned by decoders on any malformed input; partial
// parses are never accepted (spec §4.2).
var ErrInvalidEncoding = fmt.Errorf("crypto: invalid encoding")
