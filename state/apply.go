// Apply implements the C4 State Machine's pure function spec §4.4 names:
// apply(prev_state, block) -> (new_state, receipts), as the seven ordered
// steps. Grounded on blockchain/state_transition.go's single entry-point
// shape, generalized from one EVM message to a whole block's worth of
// (module, method) dispatch plus the emission/epoch/deposit steps an EVM
// chain doesn't have.
package state

import (
	"math/big"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/crypto"
	"github.com/vision-chain/vision-node/encoding"
	"github.com/vision-chain/vision-node/storage/database"
	"github.com/vision-chain/vision-node/types"
)

// ApplyResult is everything Apply derives from a block beyond its committed
// side effects: the receipts spec §4.4 requires, and the roots the caller
// checks against the header before accepting the block.
type ApplyResult struct {
	Receipts     []*types.Receipt
	TxRoot       common.Hash
	ReceiptsRoot common.Hash
}

// PendingDeposit is the spec §4.4 step 6 input: one deposit event C8
// reports as having reached confirmation depth prior to this block's
// timestamp. Apply credits each exactly once via the external_deposits
// idempotency tree (spec §4.8 "idempotency enforced via (chain, txid,
// vout)").
type PendingDeposit struct {
	Credit *types.DepositCredit
}

func headerKey(hash common.Hash) []byte { return hash.Bytes() }

func heightKey(height uint64) []byte {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[7-i] = byte(height >> (8 * i))
	}
	return b[:]
}

func (sm *StateMachine) headerByHash(hash common.Hash) (*types.Header, error) {
	raw, err := sm.get(database.TreeBlocks, headerKey(hash))
	if err != nil {
		return nil, err
	}
	b := &types.Block{}
	if err := encoding.Decode(raw, b); err != nil {
		return nil, err
	}
	return &b.Header, nil
}

func (sm *StateMachine) headerByHeight(height uint64) (*types.Header, error) {
	hashRaw, err := sm.get(database.TreeBlockByHeight, heightKey(height))
	if err != nil {
		return nil, err
	}
	return sm.headerByHash(common.BytesToHash(hashRaw))
}

// Apply runs the full state transition for one block against the current
// tip. It assumes the caller has already confirmed block.Header.ParentHash
// is the current tip (fork-choice is C6's job, not this function's).
func (sm *StateMachine) Apply(block *types.Block, deposits []PendingDeposit) (*ApplyResult, error) {
	header := &block.Header

	// step 1: header checks.
	if header.Height > 0 {
		parent, err := sm.headerByHash(header.ParentHash)
		if err != nil {
			return nil, ErrBadParent
		}
		if header.Height != parent.Height+1 {
			return nil, ErrBadParent
		}
		skewSeconds := uint64(sm.cfg.MaxFutureSkew.Seconds())
		maxTimestamp := uint64(sm.now().Unix()) + skewSeconds
		if header.Timestamp < parent.Timestamp || header.Timestamp > maxTimestamp {
			return nil, ErrTimestampOutOfRange
		}

		var windowStart *types.Header
		if header.Height%sm.cfg.RetargetInterval == 0 && header.Height >= sm.cfg.RetargetInterval {
			if ws, wsErr := sm.headerByHeight(header.Height - sm.cfg.RetargetInterval); wsErr == nil {
				windowStart = ws
			}
		}
		want := NextDifficulty(sm.cfg, parent, windowStart)
		if want != header.Difficulty {
			return nil, ErrBadDifficulty
		}
	}

	// step 2: PoW check.
	powHash := crypto.VerifyPoW(header.PowPreimage(), header.Nonce)
	if !crypto.MeetsTarget(powHash, [16]byte(header.Difficulty)) {
		return nil, ErrPoWBelowTarget
	}

	receipts, err := sm.applyBody(block, deposits)
	if err != nil {
		return nil, err
	}

	// step 7: compute roots.
	txRoot := block.TxRoot()
	if txRoot != header.TxRoot {
		return nil, ErrRootMismatch
	}
	receiptsRoot := types.ReceiptsRoot(receipts)
	if receiptsRoot != header.ReceiptsRoot {
		return nil, ErrRootMismatch
	}

	blockHash := header.Hash()
	sm.put(database.TreeBlocks, headerKey(blockHash), encoding.Encode(block))
	sm.put(database.TreeBlockByHeight, heightKey(header.Height), blockHash.Bytes())
	sm.put(database.TreeReceipts, headerKey(blockHash), encoding.Encode(&receiptList{Receipts: receipts}))

	return &ApplyResult{Receipts: receipts, TxRoot: txRoot, ReceiptsRoot: receiptsRoot}, nil
}

// applyBody runs steps 3-6 of Apply (emission/tithe, the transaction loop,
// epoch payout, deposit ingest) against block's un-validated header and
// tx list, mutating state exactly as Apply does. Split out so a block
// producer can learn the receipts (and hence ReceiptsRoot) a candidate
// block would produce before a PoW search has found its Nonce — Apply's
// PoW gate (step 2) can't run yet at that point since Nonce isn't chosen.
func (sm *StateMachine) applyBody(block *types.Block, deposits []PendingDeposit) ([]*types.Receipt, error) {
	header := &block.Header

	emission := sm.cfg.BlockEmission(header.Height)
	if emission < sm.cfg.Tithe {
		return nil, ErrOverflow
	}
	minerReward := new(big.Int).SetUint64(emission - sm.cfg.Tithe)
	if err := sm.AddBalance(header.MinerAddress, common.TokenLAND, minerReward); err != nil {
		return nil, err
	}
	minersShare, devopsShare, foundersShare := sm.cfg.TitheSplit()
	if err := sm.CreditVault(types.VaultMiners, common.TokenLAND, new(big.Int).SetUint64(minersShare)); err != nil {
		return nil, err
	}
	if err := sm.CreditVault(types.VaultDevOps, common.TokenLAND, new(big.Int).SetUint64(devopsShare)); err != nil {
		return nil, err
	}
	if err := sm.CreditVault(types.VaultFounders, common.TokenLAND, new(big.Int).SetUint64(foundersShare)); err != nil {
		return nil, err
	}
	if err := sm.CreditVault(types.VaultMiners, common.TokenLAND, new(big.Int).SetUint64(sm.cfg.ProtocolFee)); err != nil {
		return nil, err
	}

	receipts := make([]*types.Receipt, 0, len(block.Txs))
	var laneCritical, laneBulk int
	for _, tx := range block.Txs {
		receipt, err := sm.applyOneTx(tx, header.Height, header.MinerAddress, &laneCritical, &laneBulk)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, receipt)
	}

	if sm.cfg.EpochBlocks != 0 && header.Height%sm.cfg.EpochBlocks == 0 {
		payoutReceipts, err := sm.runEpochPayout()
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, payoutReceipts...)
	}

	depositReceipts, err := sm.ingestDeposits(deposits)
	if err != nil {
		return nil, err
	}
	receipts = append(receipts, depositReceipts...)

	return receipts, nil
}

// PreviewReceipts checks parent linkage (the parent exists and the height
// follows it) and runs the full state transition against a block whose
// Nonce isn't known yet. It skips Apply's timestamp and difficulty checks
// and the PoW gate. The caller MUST call Discard afterward: every balance and
// vault mutation applyBody made is real until then, exactly like a normal
// Apply that the caller chooses not to Commit.
func (sm *StateMachine) PreviewReceipts(block *types.Block, deposits []PendingDeposit) (*ApplyResult, error) {
	header := &block.Header
	if header.Height > 0 {
		parent, err := sm.headerByHash(header.ParentHash)
		if err != nil {
			return nil, ErrBadParent
		}
		if header.Height != parent.Height+1 {
			return nil, ErrBadParent
		}
	}

	receipts, err := sm.applyBody(block, deposits)
	if err != nil {
		return nil, err
	}
	return &ApplyResult{
		Receipts:     receipts,
		TxRoot:       block.TxRoot(),
		ReceiptsRoot: types.ReceiptsRoot(receipts),
	}, nil
}

// applyOneTx runs spec §4.4 step 4's per-tx checks (signature, nonce, lane
// quota, fee charge) then dispatches, producing exactly one receipt whether
// it succeeds or fails. A bad signature, bad nonce or exceeded lane quota
// fails before the nonce advances or any fee is charged; after those
// checks the nonce is consumed even if the fee charge fails, and a failed
// dispatch keeps both the consumed nonce and the charged fee.
func (sm *StateMachine) applyOneTx(tx *types.Transaction, height uint64, miner common.Address, laneCritical, laneBulk *int) (*types.Receipt, error) {
	if err := tx.VerifySignature(); err != nil {
		return failedReceipt(tx, types.ReasonBadSignature), nil
	}
	sender := tx.Sender()
	nonce, err := sm.Nonce(sender)
	if err != nil {
		return nil, err
	}
	if tx.Nonce != nonce {
		return failedReceipt(tx, types.ReasonBadNonce), nil
	}

	if tx.Lane() == types.LaneCritical {
		*laneCritical++
		if *laneCritical > sm.cfg.CriticalLaneCap {
			return failedReceipt(tx, types.ReasonLaneQuotaExceeded), nil
		}
	} else {
		*laneBulk++
		if *laneBulk > sm.cfg.BulkLaneCap {
			return failedReceipt(tx, types.ReasonLaneQuotaExceeded), nil
		}
	}

	sm.SetNonce(sender, nonce+1)

	fee := tx.Tip
	if fee.Cmp(tx.FeeLimit) > 0 {
		fee = tx.FeeLimit
	}
	if fee.Sign() > 0 {
		if err := sm.AddBalance(sender, common.TokenLAND, new(big.Int).Neg(fee)); err != nil {
			return failedReceipt(tx, types.ReasonInsufficientBalance), nil
		}
		if err := sm.AddBalance(miner, common.TokenLAND, fee); err != nil {
			return nil, err
		}
	}

	events, dispatchErr := sm.Dispatch(tx, DispatchContext{Sender: sender, Seq: tx.Nonce, Height: height})
	if dispatchErr != nil {
		return failedReceipt(tx, reasonFor(dispatchErr)), nil
	}
	return &types.Receipt{TxHash: tx.Hash(), Status: types.StatusOK, Events: events}, nil
}

func failedReceipt(tx *types.Transaction, reason types.FailureReason) *types.Receipt {
	return &types.Receipt{TxHash: tx.Hash(), Status: types.StatusFailed, Reason: reason}
}

func reasonFor(err error) types.FailureReason {
	switch err {
	case ErrNegativeBalance:
		return types.ReasonInsufficientBalance
	case ErrBadSignature:
		return types.ReasonBadSignature
	case ErrLaneQuotaExceeded:
		return types.ReasonLaneQuotaExceeded
	case ErrPostOnlyWouldCross:
		return types.ReasonPostOnlyCross
	case ErrZeroSizeOrZeroPrice:
		return types.ReasonZeroSizeOrZeroPrice
	case ErrUnknownMethod:
		return types.ReasonUnknownMethod
	case ErrUnauthorized:
		return types.ReasonUnauthorized
	case ErrHTLCInvalidState:
		return types.ReasonHTLCInvalidState
	case ErrHTLCTimelockPending:
		return types.ReasonHTLCTimelockNotReached
	case ErrHTLCBadPreimage:
		return types.ReasonHTLCInvalidState
	case ErrOverflow:
		return types.ReasonOverflow
	default:
		return types.ReasonUnauthorized
	}
}

// runEpochPayout distributes the whole Miners vault balance pro-rata to
// every address with a nonzero land-stake weight (spec §4.4 step 5) rather
// than a partial skim; each share is rounded down, so only the rounding
// remainder stays in the bucket. Reads the land-stake table as it
// stood at the start of this block; a land.stake/unstake tx in the same
// block as an epoch boundary takes effect starting next epoch.
func (sm *StateMachine) runEpochPayout() ([]*types.Receipt, error) {
	pool, err := sm.VaultBalance(types.VaultMiners, common.TokenLAND)
	if err != nil {
		return nil, err
	}
	if pool.Sign() == 0 {
		return nil, nil
	}

	var holders []common.Address
	var weights []*big.Int
	total := big.NewInt(0)
	var scanErr error
	err = sm.store.Tree(database.TreeLandStake).RangeScan(nil, func(k, v []byte) bool {
		w, decErr := types.DecodeBalance(v)
		if decErr != nil {
			scanErr = decErr
			return false
		}
		if w.Sign() == 0 {
			return true
		}
		holders = append(holders, common.BytesToAddress(k))
		weights = append(weights, w)
		total.Add(total, w)
		return true
	})
	if err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, scanErr
	}
	if total.Sign() == 0 {
		return nil, nil
	}

	var receipts []*types.Receipt
	for i, addr := range holders {
		share := new(big.Int).Mul(pool, weights[i])
		share.Div(share, total)
		if share.Sign() == 0 {
			continue
		}
		if err := sm.DebitVault(types.VaultMiners, common.TokenLAND, share); err != nil {
			return nil, err
		}
		if err := sm.AddBalance(addr, common.TokenLAND, share); err != nil {
			return nil, err
		}
		ev := &vaultPayoutEvent{Recipient: addr, Amount: share}
		receipts = append(receipts, &types.Receipt{
			Status: types.StatusOK,
			Events: []*types.Event{{Kind: types.EventVaultPayout, Data: encoding.Encode(ev)}},
		})
	}
	return receipts, nil
}

// ingestDeposits consumes bridge-confirmed deposit events, crediting each
// exactly once keyed by (chain, txid, vout) (spec §4.4 step 6).
func (sm *StateMachine) ingestDeposits(deposits []PendingDeposit) ([]*types.Receipt, error) {
	var receipts []*types.Receipt
	for _, d := range deposits {
		credit := d.Credit
		if !credit.Ready() {
			continue
		}
		key := credit.Key.Bytes()
		if _, err := sm.get(database.TreeExternalDeposits, key); err == nil {
			continue // already credited: idempotent skip
		} else if err != database.ErrKeyNotFound {
			return nil, err
		}
		credit.Status = types.DepositCredited
		if err := sm.AddBalance(credit.Recipient, credit.Key.Chain.Token(), new(big.Int).SetUint64(credit.Amount)); err != nil {
			return nil, err
		}
		sm.put(database.TreeExternalDeposits, key, encoding.Encode(credit))
		receipts = append(receipts, &types.Receipt{
			Status: types.StatusOK,
			Events: []*types.Event{{Kind: types.EventDepositCredited, Data: key}},
		})
	}
	return receipts, nil
}

type vaultPayoutEvent struct {
	Recipient common.Address
	Amount    *big.Int
}

func (e *vaultPayoutEvent) MarshalCanonical(w *encoding.Writer) {
	w.WriteFixed(e.Recipient.Bytes())
	w.WriteFixed(bigToFixed16(e.Amount))
}

func (e *vaultPayoutEvent) UnmarshalCanonical(r *encoding.Reader) error {
	addr, err := r.ReadFixed(common.AddressLength)
	if err != nil {
		return err
	}
	e.Recipient = common.BytesToAddress(addr)
	amt, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	e.Amount = new(big.Int).SetBytes(amt)
	return nil
}

// receiptList wraps a block's receipts for storage under one TreeReceipts
// key, since encoding.Marshaler is defined per-value, not per-slice.
type receiptList struct {
	Receipts []*types.Receipt
}

func (l *receiptList) MarshalCanonical(w *encoding.Writer) {
	w.WriteUint32(uint32(len(l.Receipts)))
	for _, rc := range l.Receipts {
		w.WriteBytes(encoding.Encode(rc))
	}
}

func (l *receiptList) UnmarshalCanonical(r *encoding.Reader) error {
	n, err := r.ReadUint32()
	if err != nil {
		return err
	}
	l.Receipts = make([]*types.Receipt, n)
	for i := range l.Receipts {
		raw, err := r.ReadBytes()
		if err != nil {
			return err
		}
		rc := &types.Receipt{}
		if err := encoding.Decode(raw, rc); err != nil {
			return err
		}
		l.Receipts[i] = rc
	}
	return nil
}
