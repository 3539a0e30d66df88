package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/types"
)

func TestPropose_CreatesOpenProposalWithZeroVotes(t *testing.T) {
	sm := newTestStateMachine(t)
	proposer := common.BytesToAddress([]byte("proposer"))

	p := sm.Propose(proposer, 0, types.WeightByLandBalance, []byte("payload"), 100)
	require.Equal(t, types.ProposalOpen, p.Status)
	require.Equal(t, big.NewInt(0), p.VotesFor)
	require.Equal(t, big.NewInt(0), p.VotesAgainst)
}

func TestVote_WeightsByLandBalanceWhenConfigured(t *testing.T) {
	sm := newTestStateMachine(t)
	proposer := common.BytesToAddress([]byte("proposer"))
	voter := common.BytesToAddress([]byte("voter"))
	require.NoError(t, sm.AddBalance(voter, common.TokenLAND, big.NewInt(50)))

	p := sm.Propose(proposer, 0, types.WeightByLandBalance, nil, 100)
	updated, err := sm.Vote(voter, p.ID, true, 10)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(50), updated.VotesFor)
	require.Equal(t, big.NewInt(0), updated.VotesAgainst)
}

func TestVote_WeightsByLandStakeWhenConfigured(t *testing.T) {
	sm := newTestStateMachine(t)
	proposer := common.BytesToAddress([]byte("proposer"))
	voter := common.BytesToAddress([]byte("voter"))
	require.NoError(t, sm.AddBalance(voter, common.TokenLAND, big.NewInt(50)))
	require.NoError(t, sm.StakeLand(voter, big.NewInt(30)))

	p := sm.Propose(proposer, 0, types.WeightByLandStake, nil, 100)
	updated, err := sm.Vote(voter, p.ID, false, 10)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), updated.VotesFor)
	require.Equal(t, big.NewInt(30), updated.VotesAgainst) // stake weight, not the full balance
}

func TestVote_RejectsAfterDeadline(t *testing.T) {
	sm := newTestStateMachine(t)
	proposer := common.BytesToAddress([]byte("proposer"))
	voter := common.BytesToAddress([]byte("voter"))

	p := sm.Propose(proposer, 0, types.WeightByLandBalance, nil, 100)
	_, err := sm.Vote(voter, p.ID, true, 101)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestExecute_RejectsBeforeDeadline(t *testing.T) {
	sm := newTestStateMachine(t)
	proposer := common.BytesToAddress([]byte("proposer"))

	p := sm.Propose(proposer, 0, types.WeightByLandBalance, nil, 100)
	_, err := sm.Execute(p.ID, 99)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestExecute_PassesOnStrictMajority(t *testing.T) {
	sm := newTestStateMachine(t)
	proposer := common.BytesToAddress([]byte("proposer"))
	voterFor := common.BytesToAddress([]byte("voterFor"))
	voterAgainst := common.BytesToAddress([]byte("voterAgainst"))
	require.NoError(t, sm.AddBalance(voterFor, common.TokenLAND, big.NewInt(60)))
	require.NoError(t, sm.AddBalance(voterAgainst, common.TokenLAND, big.NewInt(40)))

	p := sm.Propose(proposer, 0, types.WeightByLandBalance, nil, 100)
	_, err := sm.Vote(voterFor, p.ID, true, 10)
	require.NoError(t, err)
	_, err = sm.Vote(voterAgainst, p.ID, false, 11)
	require.NoError(t, err)

	executed, err := sm.Execute(p.ID, 101)
	require.NoError(t, err)
	require.Equal(t, types.ProposalExecuted, executed.Status)
}

func TestExecute_TiedVoteRejects(t *testing.T) {
	sm := newTestStateMachine(t)
	proposer := common.BytesToAddress([]byte("proposer"))
	voterFor := common.BytesToAddress([]byte("voterFor"))
	voterAgainst := common.BytesToAddress([]byte("voterAgainst"))
	require.NoError(t, sm.AddBalance(voterFor, common.TokenLAND, big.NewInt(50)))
	require.NoError(t, sm.AddBalance(voterAgainst, common.TokenLAND, big.NewInt(50)))

	p := sm.Propose(proposer, 0, types.WeightByLandBalance, nil, 100)
	_, err := sm.Vote(voterFor, p.ID, true, 10)
	require.NoError(t, err)
	_, err = sm.Vote(voterAgainst, p.ID, false, 11)
	require.NoError(t, err)

	executed, err := sm.Execute(p.ID, 101)
	require.NoError(t, err)
	require.Equal(t, types.ProposalRejected, executed.Status)
}

func TestCancelProposal_OnlyProposerBeforeResolution(t *testing.T) {
	sm := newTestStateMachine(t)
	proposer := common.BytesToAddress([]byte("proposer"))
	other := common.BytesToAddress([]byte("other"))

	p := sm.Propose(proposer, 0, types.WeightByLandBalance, nil, 100)

	_, err := sm.CancelProposal(other, p.ID)
	require.ErrorIs(t, err, ErrUnauthorized)

	cancelled, err := sm.CancelProposal(proposer, p.ID)
	require.NoError(t, err)
	require.Equal(t, types.ProposalCancelled, cancelled.Status)

	_, err = sm.CancelProposal(proposer, p.ID)
	require.ErrorIs(t, err, ErrUnauthorized) // already resolved
}
