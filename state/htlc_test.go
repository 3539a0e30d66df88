package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/crypto"
	"github.com/vision-chain/vision-node/types"
)

func TestCreateHTLC_LocksSenderFunds(t *testing.T) {
	sm := newTestStateMachine(t)
	sender := common.BytesToAddress([]byte("sender"))
	recipient := common.BytesToAddress([]byte("recipient"))
	require.NoError(t, sm.AddBalance(sender, common.TokenCASH, big.NewInt(100)))

	preimage := []byte("secret")
	h, err := sm.CreateHTLC(sender, 0, &HTLCCreateArgs{
		Recipient: recipient,
		Amount:    big.NewInt(40),
		Token:     common.TokenCASH,
		Hashlock:  crypto.Hash256(preimage),
		Timelock:  100,
	})
	require.NoError(t, err)
	require.Equal(t, types.HTLCLocked, h.State)

	senderBal, _ := sm.Balance(sender, common.TokenCASH)
	require.Equal(t, big.NewInt(60), senderBal)
}

func TestClaimHTLC_ReleasesFundsOnCorrectPreimage(t *testing.T) {
	sm := newTestStateMachine(t)
	sender := common.BytesToAddress([]byte("sender"))
	recipient := common.BytesToAddress([]byte("recipient"))
	require.NoError(t, sm.AddBalance(sender, common.TokenCASH, big.NewInt(100)))

	preimage := []byte("secret")
	h, err := sm.CreateHTLC(sender, 0, &HTLCCreateArgs{
		Recipient: recipient, Amount: big.NewInt(40), Token: common.TokenCASH,
		Hashlock: crypto.Hash256(preimage), Timelock: 100,
	})
	require.NoError(t, err)

	claimed, err := sm.ClaimHTLC(&HTLCIDArgs{ID: h.ID, Preimage: preimage})
	require.NoError(t, err)
	require.Equal(t, types.HTLCClaimed, claimed.State)

	recipientBal, _ := sm.Balance(recipient, common.TokenCASH)
	require.Equal(t, big.NewInt(40), recipientBal)
}

func TestClaimHTLC_RejectsWrongPreimage(t *testing.T) {
	sm := newTestStateMachine(t)
	sender := common.BytesToAddress([]byte("sender"))
	recipient := common.BytesToAddress([]byte("recipient"))
	require.NoError(t, sm.AddBalance(sender, common.TokenCASH, big.NewInt(100)))

	h, err := sm.CreateHTLC(sender, 0, &HTLCCreateArgs{
		Recipient: recipient, Amount: big.NewInt(40), Token: common.TokenCASH,
		Hashlock: crypto.Hash256([]byte("secret")), Timelock: 100,
	})
	require.NoError(t, err)

	_, err = sm.ClaimHTLC(&HTLCIDArgs{ID: h.ID, Preimage: []byte("wrong")})
	require.ErrorIs(t, err, ErrHTLCBadPreimage)
}

func TestClaimHTLC_RejectsAlreadyClaimed(t *testing.T) {
	sm := newTestStateMachine(t)
	sender := common.BytesToAddress([]byte("sender"))
	recipient := common.BytesToAddress([]byte("recipient"))
	require.NoError(t, sm.AddBalance(sender, common.TokenCASH, big.NewInt(100)))

	preimage := []byte("secret")
	h, err := sm.CreateHTLC(sender, 0, &HTLCCreateArgs{
		Recipient: recipient, Amount: big.NewInt(40), Token: common.TokenCASH,
		Hashlock: crypto.Hash256(preimage), Timelock: 100,
	})
	require.NoError(t, err)

	_, err = sm.ClaimHTLC(&HTLCIDArgs{ID: h.ID, Preimage: preimage})
	require.NoError(t, err)

	_, err = sm.ClaimHTLC(&HTLCIDArgs{ID: h.ID, Preimage: preimage})
	require.ErrorIs(t, err, ErrHTLCInvalidState)
}

func TestRefundHTLC_RejectsBeforeTimelock(t *testing.T) {
	sm := newTestStateMachine(t)
	sender := common.BytesToAddress([]byte("sender"))
	recipient := common.BytesToAddress([]byte("recipient"))
	require.NoError(t, sm.AddBalance(sender, common.TokenCASH, big.NewInt(100)))

	h, err := sm.CreateHTLC(sender, 0, &HTLCCreateArgs{
		Recipient: recipient, Amount: big.NewInt(40), Token: common.TokenCASH,
		Hashlock: crypto.Hash256([]byte("secret")), Timelock: 100,
	})
	require.NoError(t, err)

	_, err = sm.RefundHTLC(&HTLCIDArgs{ID: h.ID}, 50)
	require.ErrorIs(t, err, ErrHTLCTimelockPending)
}

func TestRefundHTLC_ReturnsFundsToSenderAtTimelock(t *testing.T) {
	sm := newTestStateMachine(t)
	sender := common.BytesToAddress([]byte("sender"))
	recipient := common.BytesToAddress([]byte("recipient"))
	require.NoError(t, sm.AddBalance(sender, common.TokenCASH, big.NewInt(100)))

	h, err := sm.CreateHTLC(sender, 0, &HTLCCreateArgs{
		Recipient: recipient, Amount: big.NewInt(40), Token: common.TokenCASH,
		Hashlock: crypto.Hash256([]byte("secret")), Timelock: 100,
	})
	require.NoError(t, err)

	refunded, err := sm.RefundHTLC(&HTLCIDArgs{ID: h.ID}, 100)
	require.NoError(t, err)
	require.Equal(t, types.HTLCRefunded, refunded.State)

	senderBal, _ := sm.Balance(sender, common.TokenCASH)
	require.Equal(t, big.NewInt(100), senderBal)
}
