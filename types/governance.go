// Adapted for Vision Node: governance.propose/vote/execute/cancel backs the
// stake-weighted governance SPEC_FULL.md §3 supplements, weighted by either
// raw LAND balance or parcel/deed (land-stake) count depending on
// ProposalKind. Grounded on the teacher's shape for enumerated
// chain-state records (types.Header-style flat struct, single canonical
// codec), no teacher governance module exists since Klaytn's governance
// lives in a separate istanbul-BFT config vote, not a general proposal.
package types

import (
	"math/big"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/encoding"
)

type ProposalStatus uint8

const (
	ProposalOpen ProposalStatus = iota
	ProposalPassed
	ProposalRejected
	ProposalExecuted
	ProposalCancelled
)

// ProposalWeightKind selects which balance a vote is weighted by.
type ProposalWeightKind uint8

const (
	WeightByLandBalance ProposalWeightKind = iota
	WeightByLandStake
)

// Proposal is one governance vote (spec-named governance.propose/vote/
// execute, plus the cancel supplement).
type Proposal struct {
	ID          common.Hash
	Proposer    common.Address
	WeightKind  ProposalWeightKind
	Payload     []byte // opaque action payload interpreted at Execute time
	VotesFor    *big.Int
	VotesAgainst *big.Int
	Deadline    uint64 // block height
	Status      ProposalStatus
}

func (p *Proposal) MarshalCanonical(w *encoding.Writer) {
	w.WriteFixed(p.ID.Bytes())
	w.WriteFixed(p.Proposer.Bytes())
	w.WriteTag(uint8(p.WeightKind))
	w.WriteBytes(p.Payload)
	w.WriteFixed(bigToFixed16(p.VotesFor))
	w.WriteFixed(bigToFixed16(p.VotesAgainst))
	w.WriteUint64(p.Deadline)
	w.WriteTag(uint8(p.Status))
}

func (p *Proposal) UnmarshalCanonical(r *encoding.Reader) error {
	id, err := r.ReadFixed(common.HashLength)
	if err != nil {
		return err
	}
	p.ID = common.BytesToHash(id)

	proposer, err := r.ReadFixed(common.AddressLength)
	if err != nil {
		return err
	}
	p.Proposer = common.BytesToAddress(proposer)

	kind, err := r.ReadTag()
	if err != nil {
		return err
	}
	p.WeightKind = ProposalWeightKind(kind)

	if p.Payload, err = r.ReadBytes(); err != nil {
		return err
	}

	votesFor, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	p.VotesFor = new(big.Int).SetBytes(votesFor)

	votesAgainst, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	p.VotesAgainst = new(big.Int).SetBytes(votesAgainst)

	if p.Deadline, err = r.ReadUint64(); err != nil {
		return err
	}
	status, err := r.ReadTag()
	if err != nil {
		return err
	}
	p.Status = ProposalStatus(status)
	return nil
}

// Passed reports whether votes-for strictly exceeds votes-against; ties
// reject, mirroring the spec's "no quorum, simple majority" default.
func (p *Proposal) Passed() bool {
	return p.VotesFor.Cmp(p.VotesAgainst) > 0
}
