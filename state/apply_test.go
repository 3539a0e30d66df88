package state

import (
	"crypto/ed25519"
	"crypto/rand"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/crypto"
	"github.com/vision-chain/vision-node/encoding"
	"github.com/vision-chain/vision-node/types"
)

// easiestDifficulty is the loosest possible 128-bit target: every nonce
// attempted has better than even odds of meeting it, so tests never need a
// real mining search.
func easiestDifficulty() types.Difficulty {
	var d types.Difficulty
	for i := range d {
		d[i] = 0xff
	}
	return d
}

func minedHeader(t *testing.T, h *types.Header) {
	t.Helper()
	h.Difficulty = easiestDifficulty()
	for nonce := uint64(0); nonce < 1000; nonce++ {
		h.Nonce = nonce
		hash := crypto.VerifyPoW(h.PowPreimage(), h.Nonce)
		if crypto.MeetsTarget(hash, [16]byte(h.Difficulty)) {
			return
		}
	}
	t.Fatal("could not find a nonce meeting the easiest difficulty in 1000 tries")
}

func signedTransferTx(t *testing.T, priv ed25519.PrivateKey, pub ed25519.PublicKey, nonce uint64, to common.Address, token common.Token, amount *big.Int, tip, feeLimit int64) *types.Transaction {
	t.Helper()
	args := &TransferArgs{To: to, Token: token, Amount: amount}
	tx := &types.Transaction{
		Nonce:        nonce,
		SenderPubKey: pub,
		Module:       types.ModuleToken,
		Method:       types.MethodTransfer,
		Args:         encoding.Encode(args),
		Tip:          big.NewInt(tip),
		FeeLimit:     big.NewInt(feeLimit),
	}
	tx.Sign(priv)
	return tx
}

func newKeypair(t *testing.T) (ed25519.PrivateKey, ed25519.PublicKey, common.Address) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv, pub, crypto.PubKeyToAddress(pub)
}

// buildBlock fills in TxRoot from txs, mines a header meeting the easiest
// difficulty, and returns the assembled block. height 0 skips every
// parent/retarget check in Apply; a height-1 block built on an applied
// parent passes them, since it keeps the parent's easiest difficulty.
func buildBlock(t *testing.T, height uint64, parentHash common.Hash, timestamp uint64, miner common.Address, txs []*types.Transaction) *types.Block {
	t.Helper()
	b := &types.Block{
		Header: types.Header{
			Height:       height,
			ParentHash:   parentHash,
			Timestamp:    timestamp,
			MinerAddress: miner,
		},
		Txs: txs,
	}
	b.Header.TxRoot = b.TxRoot()
	minedHeader(t, &b.Header)
	return b
}

func TestApply_EmissionTitheAndProtocolFeeCreditVaults(t *testing.T) {
	sm := newTestStateMachine(t)
	miner := common.BytesToAddress([]byte("miner"))

	block := buildBlock(t, 0, common.Hash{}, 1000, miner, nil)
	block.Header.ReceiptsRoot = types.ReceiptsRoot(nil)

	result, err := sm.Apply(block, nil)
	require.NoError(t, err)
	require.Empty(t, result.Receipts)

	minerBal, err := sm.Balance(miner, common.TokenLAND)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).SetUint64(sm.cfg.BaseEmission-sm.cfg.Tithe), minerBal)

	minersShare, devopsShare, foundersShare := sm.cfg.TitheSplit()
	minersVault, err := sm.VaultBalance(types.VaultMiners, common.TokenLAND)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).SetUint64(minersShare+sm.cfg.ProtocolFee), minersVault)

	devopsVault, err := sm.VaultBalance(types.VaultDevOps, common.TokenLAND)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).SetUint64(devopsShare), devopsVault)

	foundersVault, err := sm.VaultBalance(types.VaultFounders, common.TokenLAND)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).SetUint64(foundersShare), foundersVault)
}

func TestApply_TransferTxMovesBalanceAndPaysMinerFee(t *testing.T) {
	sm := newTestStateMachine(t)
	miner := common.BytesToAddress([]byte("miner"))
	bob := common.BytesToAddress([]byte("bob"))
	alicePriv, alicePub, alice := newKeypair(t)

	require.NoError(t, sm.AddBalance(alice, common.TokenCASH, big.NewInt(1000)))
	require.NoError(t, sm.AddBalance(alice, common.TokenLAND, big.NewInt(5)))

	tx := signedTransferTx(t, alicePriv, alicePub, 0, bob, common.TokenCASH, big.NewInt(100), 5, 5)
	block := buildBlock(t, 0, common.Hash{}, 1000, miner, []*types.Transaction{tx})
	block.Header.ReceiptsRoot = types.ReceiptsRoot([]*types.Receipt{{TxHash: tx.Hash(), Status: types.StatusOK, Events: []*types.Event{{Kind: types.EventTransfer, Data: encoding.Encode(&transferEvent{From: alice, To: bob, Token: common.TokenCASH, Amount: big.NewInt(100)})}}}})

	result, err := sm.Apply(block, nil)
	require.NoError(t, err)
	require.Len(t, result.Receipts, 1)
	require.Equal(t, types.StatusOK, result.Receipts[0].Status)

	aliceCash, _ := sm.Balance(alice, common.TokenCASH)
	require.Equal(t, big.NewInt(900), aliceCash) // 1000 - 100 transferred; the 5 fee is paid in LAND

	aliceLand, _ := sm.Balance(alice, common.TokenLAND)
	require.Equal(t, 0, aliceLand.Sign()) // 5 - 5 fee

	bobCash, _ := sm.Balance(bob, common.TokenCASH)
	require.Equal(t, big.NewInt(100), bobCash)

	minerLand, err := sm.Balance(miner, common.TokenLAND)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Add(new(big.Int).SetUint64(sm.cfg.BaseEmission-sm.cfg.Tithe), big.NewInt(5)), minerLand)

	nonce, err := sm.Nonce(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1), nonce)
}

func TestApply_BadNonceProducesFailedReceiptWithoutChargingFeeOrAdvancingNonce(t *testing.T) {
	sm := newTestStateMachine(t)
	miner := common.BytesToAddress([]byte("miner"))
	bob := common.BytesToAddress([]byte("bob"))
	alicePriv, alicePub, alice := newKeypair(t)
	require.NoError(t, sm.AddBalance(alice, common.TokenCASH, big.NewInt(1000)))

	tx := signedTransferTx(t, alicePriv, alicePub, 7, bob, common.TokenCASH, big.NewInt(100), 5, 5)
	block := buildBlock(t, 0, common.Hash{}, 1000, miner, []*types.Transaction{tx})
	block.Header.ReceiptsRoot = types.ReceiptsRoot([]*types.Receipt{{TxHash: tx.Hash(), Status: types.StatusFailed, Reason: types.ReasonBadNonce}})

	result, err := sm.Apply(block, nil)
	require.NoError(t, err)
	require.Len(t, result.Receipts, 1)
	require.Equal(t, types.StatusFailed, result.Receipts[0].Status)
	require.Equal(t, types.ReasonBadNonce, result.Receipts[0].Reason)

	aliceCash, _ := sm.Balance(alice, common.TokenCASH)
	require.Equal(t, big.NewInt(1000), aliceCash) // untouched: fee never charged

	nonce, err := sm.Nonce(alice)
	require.NoError(t, err)
	require.Equal(t, uint64(0), nonce)
}

func TestApply_MismatchedTxRootRejectsBlock(t *testing.T) {
	sm := newTestStateMachine(t)
	miner := common.BytesToAddress([]byte("miner"))
	bob := common.BytesToAddress([]byte("bob"))
	alicePriv, alicePub, alice := newKeypair(t)
	require.NoError(t, sm.AddBalance(alice, common.TokenCASH, big.NewInt(1000)))

	tx := signedTransferTx(t, alicePriv, alicePub, 0, bob, common.TokenCASH, big.NewInt(100), 0, 0)
	block := buildBlock(t, 0, common.Hash{}, 1000, miner, []*types.Transaction{tx})
	block.Header.TxRoot = common.Hash{} // corrupt

	_, err := sm.Apply(block, nil)
	require.ErrorIs(t, err, ErrRootMismatch)
}

func TestApply_EpochPayoutDrainsMinersVaultProRataToLandStakers(t *testing.T) {
	sm := newTestStateMachine(t)
	cfg := *sm.cfg
	cfg.EpochBlocks = 1
	sm.cfg = &cfg

	miner := common.BytesToAddress([]byte("miner"))
	staker1 := common.BytesToAddress([]byte("staker1"))
	staker2 := common.BytesToAddress([]byte("staker2"))

	require.NoError(t, sm.AddBalance(staker1, common.TokenLAND, big.NewInt(300)))
	require.NoError(t, sm.StakeLand(staker1, big.NewInt(300)))
	require.NoError(t, sm.AddBalance(staker2, common.TokenLAND, big.NewInt(100)))
	require.NoError(t, sm.StakeLand(staker2, big.NewInt(100)))
	// runEpochPayout reads the committed stake table, so the stakes are
	// committed before the block is applied.
	require.NoError(t, sm.Commit())

	block := buildBlock(t, 0, common.Hash{}, 1000, miner, nil)
	minersShare, _, _ := sm.cfg.TitheSplit()
	pool := minersShare + sm.cfg.ProtocolFee

	// receipts root must match exactly: one payout receipt per staker, 3:1 split.
	staker1Share := new(big.Int).Div(new(big.Int).Mul(new(big.Int).SetUint64(pool), big.NewInt(300)), big.NewInt(400))
	staker2Share := new(big.Int).Div(new(big.Int).Mul(new(big.Int).SetUint64(pool), big.NewInt(100)), big.NewInt(400))
	receipts := []*types.Receipt{
		{Status: types.StatusOK, Events: []*types.Event{{Kind: types.EventVaultPayout, Data: encoding.Encode(&vaultPayoutEvent{Recipient: staker1, Amount: staker1Share})}}},
		{Status: types.StatusOK, Events: []*types.Event{{Kind: types.EventVaultPayout, Data: encoding.Encode(&vaultPayoutEvent{Recipient: staker2, Amount: staker2Share})}}},
	}
	block.Header.ReceiptsRoot = types.ReceiptsRoot(receipts)

	result, err := sm.Apply(block, nil)
	require.NoError(t, err)
	require.Len(t, result.Receipts, 2)

	minersVault, err := sm.VaultBalance(types.VaultMiners, common.TokenLAND)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), minersVault)

	staker1Bal, _ := sm.Balance(staker1, common.TokenLAND)
	staker2Bal, _ := sm.Balance(staker2, common.TokenLAND)
	require.Equal(t, staker1Share, staker1Bal)
	require.Equal(t, staker2Share, staker2Bal)
}

func TestApply_DepositIngestCreditsExactlyOnceAcrossTwoBlocks(t *testing.T) {
	sm := newTestStateMachine(t)
	miner := common.BytesToAddress([]byte("miner"))
	recipient := common.BytesToAddress([]byte("recipient"))

	credit := &types.DepositCredit{
		Key: types.DepositKey{
			Chain: common.ChainBTC,
			TxID:  common.BytesToHash([]byte("txid")),
			Vout:  0,
		},
		Recipient:     recipient,
		Amount:        5000,
		Confirmations: 100,
	}
	require.True(t, credit.Ready())

	block1 := buildBlock(t, 0, common.Hash{}, 1000, miner, nil)
	block1.Header.ReceiptsRoot = types.ReceiptsRoot([]*types.Receipt{
		{Status: types.StatusOK, Events: []*types.Event{{Kind: types.EventDepositCredited, Data: credit.Key.Bytes()}}},
	})
	result1, err := sm.Apply(block1, []PendingDeposit{{Credit: credit}})
	require.NoError(t, err)
	require.Len(t, result1.Receipts, 1)

	bal, err := sm.Balance(recipient, common.ChainBTC.Token())
	require.NoError(t, err)
	require.Equal(t, big.NewInt(5000), bal)

	block2 := buildBlock(t, 1, block1.Header.Hash(), 1001, miner, nil)
	block2.Header.ReceiptsRoot = types.ReceiptsRoot(nil)
	result2, err := sm.Apply(block2, []PendingDeposit{{Credit: credit}})
	require.NoError(t, err)
	require.Empty(t, result2.Receipts) // already credited: idempotent skip

	bal, err = sm.Balance(recipient, common.ChainBTC.Token())
	require.NoError(t, err)
	require.Equal(t, big.NewInt(5000), bal) // unchanged
}

func TestApply_TimestampExactlyAtFutureSkewIsAccepted(t *testing.T) {
	sm := newTestStateMachine(t)
	miner := common.BytesToAddress([]byte("miner"))

	genesis := buildBlock(t, 0, common.Hash{}, 1000, miner, nil)
	genesis.Header.ReceiptsRoot = types.ReceiptsRoot(nil)
	_, err := sm.Apply(genesis, nil)
	require.NoError(t, err)

	now := time.Unix(500000, 0)
	sm.SetClock(func() time.Time { return now })
	skewSeconds := uint64(sm.cfg.MaxFutureSkew.Seconds())

	atBoundary := buildBlock(t, 1, genesis.Header.Hash(), uint64(now.Unix())+skewSeconds, miner, nil)
	atBoundary.Header.ReceiptsRoot = types.ReceiptsRoot(nil)
	_, err = sm.Apply(atBoundary, nil)
	require.NoError(t, err, "a timestamp exactly at now+max_future_skew must be accepted")
}

func TestApply_TimestampOneSecondPastFutureSkewIsRejected(t *testing.T) {
	sm := newTestStateMachine(t)
	miner := common.BytesToAddress([]byte("miner"))

	genesis := buildBlock(t, 0, common.Hash{}, 1000, miner, nil)
	genesis.Header.ReceiptsRoot = types.ReceiptsRoot(nil)
	_, err := sm.Apply(genesis, nil)
	require.NoError(t, err)

	now := time.Unix(500000, 0)
	sm.SetClock(func() time.Time { return now })
	skewSeconds := uint64(sm.cfg.MaxFutureSkew.Seconds())

	tooFar := buildBlock(t, 1, genesis.Header.Hash(), uint64(now.Unix())+skewSeconds+1, miner, nil)
	tooFar.Header.ReceiptsRoot = types.ReceiptsRoot(nil)
	_, err = sm.Apply(tooFar, nil)
	require.ErrorIs(t, err, ErrTimestampOutOfRange)
}

func TestApply_UnmetPoWRejectsBlock(t *testing.T) {
	sm := newTestStateMachine(t)
	miner := common.BytesToAddress([]byte("miner"))

	block := buildBlock(t, 0, common.Hash{}, 1000, miner, nil)
	block.Header.ReceiptsRoot = types.ReceiptsRoot(nil)
	var tightest types.Difficulty // all-zero target: essentially unreachable
	block.Header.Difficulty = tightest

	_, err := sm.Apply(block, nil)
	require.ErrorIs(t, err, ErrPoWBelowTarget)
}
