package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/params"
	"github.com/vision-chain/vision-node/storage/database"
	"github.com/vision-chain/vision-node/types"
)

func newTestStateMachine(t *testing.T) *StateMachine {
	t.Helper()
	store, err := database.Open(database.Config{DBType: database.MemDB})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := *params.DefaultChainConfig
	return New(store, &cfg)
}

func TestStateMachine_BalanceDefaultsToZero(t *testing.T) {
	sm := newTestStateMachine(t)
	addr := common.BytesToAddress([]byte("alice"))
	bal, err := sm.Balance(addr, common.TokenLAND)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), bal)
}

func TestStateMachine_AddBalanceRejectsNegativeResult(t *testing.T) {
	sm := newTestStateMachine(t)
	addr := common.BytesToAddress([]byte("alice"))
	err := sm.AddBalance(addr, common.TokenLAND, big.NewInt(-1))
	require.ErrorIs(t, err, ErrNegativeBalance)
}

func TestStateMachine_TransferMovesBalanceAtomically(t *testing.T) {
	sm := newTestStateMachine(t)
	alice := common.BytesToAddress([]byte("alice"))
	bob := common.BytesToAddress([]byte("bob"))

	require.NoError(t, sm.AddBalance(alice, common.TokenLAND, big.NewInt(100)))
	require.NoError(t, sm.Transfer(alice, bob, common.TokenLAND, big.NewInt(40)))

	aliceBal, _ := sm.Balance(alice, common.TokenLAND)
	bobBal, _ := sm.Balance(bob, common.TokenLAND)
	require.Equal(t, big.NewInt(60), aliceBal)
	require.Equal(t, big.NewInt(40), bobBal)
}

func TestStateMachine_TransferInsufficientBalanceLeavesNeitherSideChanged(t *testing.T) {
	sm := newTestStateMachine(t)
	alice := common.BytesToAddress([]byte("alice"))
	bob := common.BytesToAddress([]byte("bob"))

	err := sm.Transfer(alice, bob, common.TokenLAND, big.NewInt(1))
	require.ErrorIs(t, err, ErrNegativeBalance)

	bobBal, _ := sm.Balance(bob, common.TokenLAND)
	require.Equal(t, big.NewInt(0), bobBal)
}

func TestStateMachine_PendingWritesAreVisibleBeforeCommit(t *testing.T) {
	sm := newTestStateMachine(t)
	addr := common.BytesToAddress([]byte("alice"))
	require.NoError(t, sm.AddBalance(addr, common.TokenLAND, big.NewInt(10)))

	bal, err := sm.Balance(addr, common.TokenLAND)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10), bal)

	require.NoError(t, sm.Commit())
	bal, err = sm.Balance(addr, common.TokenLAND)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10), bal)
}

func TestStateMachine_DiscardDropsUncommittedWrites(t *testing.T) {
	sm := newTestStateMachine(t)
	addr := common.BytesToAddress([]byte("alice"))
	require.NoError(t, sm.AddBalance(addr, common.TokenLAND, big.NewInt(10)))
	sm.Discard()

	bal, err := sm.Balance(addr, common.TokenLAND)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), bal)
}

func TestStateMachine_VaultBucketsAreIsolatedFromAddressBalances(t *testing.T) {
	sm := newTestStateMachine(t)
	require.NoError(t, sm.CreditVault(types.VaultMiners, common.TokenLAND, big.NewInt(5)))
	bal, err := sm.VaultBalance(types.VaultMiners, common.TokenLAND)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(5), bal)
}
