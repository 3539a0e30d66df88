package crypto

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/crypto/blake2b"

	"github.com/vision-chain/vision-node/common"
)

// PoW is an Open Question the spec leaves to the implementer (§4.2, §9):
// "it suffices that it is deterministic, collision-resistant, and slow
// enough to make difficulty meaningful." Vision Node's choice is a
// sequential-dependency BLAKE2b scratchpad: a ScratchpadSize-byte buffer is
// filled by repeated hashing seeded from the header, then a final pass
// folds random-indexed reads from the scratchpad back into the digest so
// the search cannot be meaningfully parallelized across a shared cache
// smaller than the scratchpad. The scratchpad is anonymous-mapped via
// mmap-go rather than a plain byte slice, mirroring the memory-mapping
// approach the teacher pulls in for large scratch regions (go.mod:
// github.com/edsrzf/mmap-go) instead of paying GC/zeroing overhead on a
// slice that is recreated for every nonce tried.
const (
	ScratchpadSize = 1 << 21 // 2 MiB
	scratchSlots   = ScratchpadSize / 32
)

// Scratchpad amortizes the mmap allocation cost across nonce attempts
// within one mining worker; each worker owns exactly one scratchpad.
type Scratchpad struct {
	mem mmap.MMap
}

func NewScratchpad() (*Scratchpad, error) {
	mem, err := mmap.MapRegion(nil, ScratchpadSize, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, fmt.Errorf("crypto: allocate PoW scratchpad: %w", err)
	}
	return &Scratchpad{mem: mem}, nil
}

func (s *Scratchpad) Close() error {
	if s == nil || s.mem == nil {
		return nil
	}
	return s.mem.Unmap()
}

// PowHash computes the PoW digest of a header-bytes+nonce pair using the
// worker's scratchpad. Deterministic: identical (headerBytes, nonce, scratch
// pool) inputs always reproduce the same digest, and the scratchpad is
// fully overwritten as a function of the header/nonce so no stale state
// leaks across calls.
func (s *Scratchpad) PowHash(headerBytes []byte, nonce uint64) common.Hash {
	var nb [8]byte
	binary.BigEndian.PutUint64(nb[:], nonce)

	seed := Hash256(headerBytes, nb[:])
	cur := seed
	for i := 0; i < scratchSlots; i++ {
		cur = Hash256(cur[:])
		copy(s.mem[i*32:(i+1)*32], cur[:])
	}

	h, _ := blake2b.New256(nil)
	h.Write(seed[:])
	idx := binary.BigEndian.Uint64(seed[:8]) % scratchSlots
	for i := 0; i < 64; i++ {
		slot := s.mem[idx*32 : (idx+1)*32]
		h.Write(slot)
		idx = binary.BigEndian.Uint64(slot[:8]) % scratchSlots
	}
	var out common.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// scratchpadPool lets call sites that don't own a dedicated mining worker
// (block validation, tests) borrow a scratchpad instead of allocating one
// per call.
var scratchpadPool = sync.Pool{
	New: func() interface{} {
		s, err := NewScratchpad()
		if err != nil {
			panic(err)
		}
		return s
	},
}

// VerifyPoW recomputes the PoW hash for validation (spec testable property
// #1: pow_hash(b) <= difficulty_target(b.height)).
func VerifyPoW(headerBytes []byte, nonce uint64) common.Hash {
	s := scratchpadPool.Get().(*Scratchpad)
	defer scratchpadPool.Put(s)
	return s.PowHash(headerBytes, nonce)
}

// MeetsTarget reports whether hash's low 128 bits, read big-endian, are <=
// target. The high 128 bits are discarded rather than required to be zero:
// difficulty is defined entirely in terms of the 128-bit target space, so
// the loosest target (all 0xFF) must be satisfiable with reasonable
// probability, not just by the 2^-128 chance of also zeroing the high half.
func MeetsTarget(hash common.Hash, target [16]byte) bool {
	for i := 0; i < 16; i++ {
		if hash[16+i] != target[i] {
			return hash[16+i] < target[i]
		}
	}
	return true
}
