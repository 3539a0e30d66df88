// Adapted for Vision Node: governance.propose/vote/execute/cancel, weighted
// by either raw LAND balance or land-stake (SPEC_FULL.md §3's "governance
// deed/NFT-weight alternative"). Grounded on exchange.go/htlc.go's storage
// pattern: look up by id, mutate, re-save.
package state

import (
	"math/big"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/encoding"
	"github.com/vision-chain/vision-node/storage/database"
	"github.com/vision-chain/vision-node/types"
)

func proposalKey(id common.Hash) []byte { return id.Bytes() }

func (sm *StateMachine) loadProposal(id common.Hash) (*types.Proposal, error) {
	raw, err := sm.get(database.TreeProposals, proposalKey(id))
	if err != nil {
		return nil, err
	}
	p := &types.Proposal{}
	if err := encoding.Decode(raw, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (sm *StateMachine) saveProposal(p *types.Proposal) {
	sm.put(database.TreeProposals, proposalKey(p.ID), encoding.Encode(p))
}

func (sm *StateMachine) voteWeight(addr common.Address, kind types.ProposalWeightKind) (*big.Int, error) {
	if kind == types.WeightByLandStake {
		return sm.LandStakeWeight(addr)
	}
	return sm.Balance(addr, common.TokenLAND)
}

func (sm *StateMachine) Propose(proposer common.Address, seq uint64, weightKind types.ProposalWeightKind, payload []byte, deadline uint64) *types.Proposal {
	p := &types.Proposal{
		ID:           common.BytesToHash(seqID(proposer, seq)),
		Proposer:     proposer,
		WeightKind:   weightKind,
		Payload:      payload,
		VotesFor:     big.NewInt(0),
		VotesAgainst: big.NewInt(0),
		Deadline:     deadline,
		Status:       types.ProposalOpen,
	}
	sm.saveProposal(p)
	return p
}

func (sm *StateMachine) Vote(voter common.Address, proposalID common.Hash, support bool, height uint64) (*types.Proposal, error) {
	p, err := sm.loadProposal(proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != types.ProposalOpen || height > p.Deadline {
		return nil, ErrUnauthorized
	}
	weight, err := sm.voteWeight(voter, p.WeightKind)
	if err != nil {
		return nil, err
	}
	if support {
		p.VotesFor = new(big.Int).Add(p.VotesFor, weight)
	} else {
		p.VotesAgainst = new(big.Int).Add(p.VotesAgainst, weight)
	}
	sm.saveProposal(p)
	return p, nil
}

// Execute resolves a proposal after its deadline; execution of the payload
// itself is left to the admin dispatch layer, since the only payloads this
// chain defines (set_gamemaster, airdrop) are already their own tx methods —
// Execute here only flips status so governance.execute is idempotent and
// auditable.
func (sm *StateMachine) Execute(proposalID common.Hash, height uint64) (*types.Proposal, error) {
	p, err := sm.loadProposal(proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != types.ProposalOpen {
		return nil, ErrUnauthorized
	}
	if height <= p.Deadline {
		return nil, ErrUnauthorized
	}
	if p.Passed() {
		p.Status = types.ProposalExecuted
	} else {
		p.Status = types.ProposalRejected
	}
	sm.saveProposal(p)
	return p, nil
}

func (sm *StateMachine) CancelProposal(caller common.Address, proposalID common.Hash) (*types.Proposal, error) {
	p, err := sm.loadProposal(proposalID)
	if err != nil {
		return nil, err
	}
	if p.Proposer != caller {
		return nil, ErrUnauthorized
	}
	if p.Status != types.ProposalOpen {
		return nil, ErrUnauthorized
	}
	p.Status = types.ProposalCancelled
	sm.saveProposal(p)
	return p, nil
}
