// Adapted for Vision Node: matching runs inline during block apply (spec
// §4.4 step 4 "run matching inline"), grounded on the CLOB vocabulary from
// ethereum-go-ethereum's surviving XDCx test files (GetBestAskPrice/
// GetBestBidPrice) but implemented directly against storage.Store's orders
// tree rather than a separate trading-state trie, since this chain commits
// order state the same way it commits balances (spec §9's "orderbook state
// is part of the durable state tree" decision).
package state

import (
	"math/big"
	"sort"
	"time"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/encoding"
	"github.com/vision-chain/vision-node/storage/database"
	"github.com/vision-chain/vision-node/types"
)

func pairKey(p types.Pair) []byte {
	return append(append([]byte(p.Base), ':'), []byte(p.Quote)...)
}

func orderKey(id common.Hash) []byte { return id.Bytes() }

func (sm *StateMachine) loadOrder(id common.Hash) (*types.Order, error) {
	raw, err := sm.get(database.TreeOrders, orderKey(id))
	if err != nil {
		return nil, err
	}
	o := &types.Order{}
	if err := encoding.Decode(raw, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (sm *StateMachine) saveOrder(o *types.Order) {
	sm.put(database.TreeOrders, orderKey(o.ID), encoding.Encode(o))
}

func (sm *StateMachine) deleteOrder(id common.Hash) {
	sm.del(database.TreeOrders, orderKey(id))
}

// bookIndexKey stores the ordered list of resting order IDs for one side of
// one pair, so the engine doesn't need to range-scan the whole orders tree
// to find a pair's book.
func bookIndexKey(p types.Pair, side types.OrderSide) []byte {
	tag := byte(side)
	return append(append(pairKey(p), ':'), tag)
}

func (sm *StateMachine) loadBookIDs(p types.Pair, side types.OrderSide) ([]common.Hash, error) {
	raw, err := sm.get(database.TreeOrders, bookIndexKey(p, side))
	if err == database.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r := encoding.NewReader(raw)
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	out := make([]common.Hash, n)
	for i := range out {
		b, err := r.ReadFixed(common.HashLength)
		if err != nil {
			return nil, err
		}
		out[i] = common.BytesToHash(b)
	}
	return out, nil
}

func (sm *StateMachine) saveBookIDs(p types.Pair, side types.OrderSide, ids []common.Hash) {
	w := encoding.NewWriter()
	w.WriteUint32(uint32(len(ids)))
	for _, id := range ids {
		w.WriteFixed(id.Bytes())
	}
	sm.put(database.TreeOrders, bookIndexKey(p, side), w.Bytes())
}

// loadBook resolves the full live orders on one side of a pair, sorted by
// (price, sequence) so the matching engine always sees best-price-first
// with FIFO tie-break.
func (sm *StateMachine) loadBook(p types.Pair, side types.OrderSide) ([]*types.Order, error) {
	ids, err := sm.loadBookIDs(p, side)
	if err != nil {
		return nil, err
	}
	var orders []*types.Order
	for _, id := range ids {
		o, err := sm.loadOrder(id)
		if err == database.ErrKeyNotFound {
			continue // resolved (filled/cancelled) orders are pruned lazily
		}
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}

	sort.SliceStable(orders, func(i, j int) bool {
		cmp := orders[i].Price.Cmp(orders[j].Price)
		if cmp == 0 {
			return orders[i].Sequence < orders[j].Sequence
		}
		if side == types.SideBuy {
			return cmp > 0 // bids descending
		}
		return cmp < 0 // asks ascending
	})
	return orders, nil
}

func (sm *StateMachine) addToBook(o *types.Order) error {
	ids, err := sm.loadBookIDs(o.Pair, o.Side)
	if err != nil {
		return err
	}
	ids = append(ids, o.ID)
	sm.saveBookIDs(o.Pair, o.Side, ids)
	sm.saveOrder(o)
	return nil
}

func (sm *StateMachine) removeFromBook(o *types.Order) error {
	ids, err := sm.loadBookIDs(o.Pair, o.Side)
	if err != nil {
		return err
	}
	out := ids[:0]
	for _, id := range ids {
		if id != o.ID {
			out = append(out, id)
		}
	}
	sm.saveBookIDs(o.Pair, o.Side, out)
	return nil
}

func opposite(side types.OrderSide) types.OrderSide {
	if side == types.SideBuy {
		return types.SideSell
	}
	return types.SideBuy
}

// crosses reports whether a resting order at restPrice would trade against
// an incoming order at takerPrice for the given taker side.
func crosses(takerSide types.OrderSide, takerPrice, restPrice *big.Int) bool {
	if takerSide == types.SideBuy {
		return takerPrice.Cmp(restPrice) >= 0
	}
	return takerPrice.Cmp(restPrice) <= 0
}

// PlaceOrder executes spec §4.4 step 4's exchange.place_order: locks funds,
// inserts into the book, then matches inline against the opposing side,
// emitting Trade events and routing fees into the vault buckets.
func (sm *StateMachine) PlaceOrder(owner common.Address, seq uint64, placedAt uint64, args *PlaceOrderArgs) (*types.Order, []*types.Event, error) {
	if args.Size.Sign() <= 0 || args.Price.Sign() <= 0 {
		return nil, nil, ErrZeroSizeOrZeroPrice
	}

	restingSide := opposite(args.Side)
	restBook, err := sm.loadBook(args.Pair, restingSide)
	if err != nil {
		return nil, nil, err
	}

	if args.PostOnly && len(restBook) > 0 && crosses(args.Side, args.Price, restBook[0].Price) {
		return nil, nil, ErrPostOnlyWouldCross
	}

	// lock funds: buy locks size*price of quote, sell locks size of base.
	lockToken, lockAmount := args.Pair.Quote, new(big.Int).Mul(args.Size, args.Price)
	if args.Side == types.SideSell {
		lockToken, lockAmount = args.Pair.Base, new(big.Int).Set(args.Size)
	}
	if args.TIF == types.TIFFOK {
		if !sm.bookHasEnoughLiquidity(restBook, args.Side, args.Price, args.Size) {
			return nil, nil, nil // FOK pre-check failed: caller treats as no-op reject, not an error
		}
	}
	if err := sm.AddBalance(owner, lockToken, new(big.Int).Neg(lockAmount)); err != nil {
		return nil, nil, err
	}

	taker := &types.Order{
		ID:         common.BytesToHash(seqID(owner, seq)),
		Owner:      owner,
		Pair:       args.Pair,
		Side:       args.Side,
		Price:      args.Price,
		SizeTotal:  args.Size,
		SizeFilled: big.NewInt(0),
		TIF:        args.TIF,
		Expiry:     args.Expiry,
		PostOnly:   args.PostOnly,
		Sequence:   seq,
		PlacedAt:   time.Unix(int64(placedAt), 0).UTC(),
	}

	var events []*types.Event
	remaining := new(big.Int).Set(args.Size)

	for _, rest := range restBook {
		if remaining.Sign() == 0 {
			break
		}
		if !crosses(args.Side, args.Price, rest.Price) {
			break
		}

		tradeSize := new(big.Int).Set(rest.Remaining())
		if tradeSize.Cmp(remaining) > 0 {
			tradeSize = new(big.Int).Set(remaining)
		}

		quoteAmount := new(big.Int).Mul(tradeSize, rest.Price)
		quoteFee := feeAmount(quoteAmount, sm.cfg.ExchangeFeeBps)
		baseFee := feeAmount(tradeSize, sm.cfg.ExchangeFeeBps)

		// settle: both legs net their own side's fee — base (minus fee) to
		// the buyer, quote (minus fee) to the seller — and each fee is
		// routed 50/30/20 Miners/DevOps/Founders, the same split the
		// block-emission tithe uses.
		buyer, seller := owner, rest.Owner
		if args.Side == types.SideSell {
			buyer, seller = rest.Owner, owner
		}

		netBase := new(big.Int).Sub(tradeSize, baseFee)
		if err := sm.AddBalance(buyer, args.Pair.Base, netBase); err != nil {
			return nil, nil, err
		}
		netQuote := new(big.Int).Sub(quoteAmount, quoteFee)
		if err := sm.AddBalance(seller, args.Pair.Quote, netQuote); err != nil {
			return nil, nil, err
		}
		if err := sm.creditFeeSplit(args.Pair.Base, baseFee); err != nil {
			return nil, nil, err
		}
		if err := sm.creditFeeSplit(args.Pair.Quote, quoteFee); err != nil {
			return nil, nil, err
		}

		rest.SizeFilled = new(big.Int).Add(rest.SizeFilled, tradeSize)
		remaining = new(big.Int).Sub(remaining, tradeSize)
		taker.SizeFilled = new(big.Int).Add(taker.SizeFilled, tradeSize)

		if rest.Remaining().Sign() == 0 {
			sm.deleteOrder(rest.ID)
			if err := sm.removeFromBook(rest); err != nil {
				return nil, nil, err
			}
		} else {
			sm.saveOrder(rest)
		}

		events = append(events, &types.Event{Kind: types.EventOrderMatched, Data: encoding.Encode(&tradeEvent{
			TakerOrder: taker.ID, MakerOrder: rest.ID, Price: rest.Price, Size: tradeSize,
		})})
	}

	switch args.TIF {
	case types.TIFFOK:
		if remaining.Sign() > 0 {
			// should not happen given the pre-check above, but stay safe.
			if err := sm.AddBalance(owner, lockToken, lockAmount); err != nil {
				return nil, nil, err
			}
			return nil, events, nil
		}
	case types.TIFIOC:
		if remaining.Sign() > 0 {
			refund := refundForUnfilled(args, remaining)
			if err := sm.AddBalance(owner, lockToken, refund); err != nil {
				return nil, nil, err
			}
		}
	default: // GTC, GTT: residual rests on the book
		if remaining.Sign() > 0 {
			taker.Price = args.Price
			if err := sm.addToBook(taker); err != nil {
				return nil, nil, err
			}
		}
	}

	events = append([]*types.Event{{Kind: types.EventOrderPlaced, Data: encoding.Encode(&orderPlacedEvent{OrderID: taker.ID})}}, events...)
	return taker, events, nil
}

// CancelOrder unlocks the owner-reserved funds for a resting order and
// removes it from the book; owner-only (enforced by the caller comparing
// tx sender to order.Owner).
func (sm *StateMachine) CancelOrder(id common.Hash) (*types.Order, error) {
	o, err := sm.loadOrder(id)
	if err != nil {
		return nil, err
	}
	refundToken, refundAmount := o.Pair.Quote, new(big.Int).Mul(o.Remaining(), o.Price)
	if o.Side == types.SideSell {
		refundToken, refundAmount = o.Pair.Base, o.Remaining()
	}
	if err := sm.AddBalance(o.Owner, refundToken, refundAmount); err != nil {
		return nil, err
	}
	sm.deleteOrder(id)
	if err := sm.removeFromBook(o); err != nil {
		return nil, err
	}
	return o, nil
}

func (sm *StateMachine) bookHasEnoughLiquidity(book []*types.Order, takerSide types.OrderSide, takerPrice, size *big.Int) bool {
	remaining := new(big.Int).Set(size)
	for _, rest := range book {
		if remaining.Sign() <= 0 {
			break
		}
		if !crosses(takerSide, takerPrice, rest.Price) {
			break
		}
		avail := rest.Remaining()
		if avail.Cmp(remaining) >= 0 {
			remaining.SetInt64(0)
		} else {
			remaining.Sub(remaining, avail)
		}
	}
	return remaining.Sign() <= 0
}

func refundForUnfilled(args *PlaceOrderArgs, remaining *big.Int) *big.Int {
	if args.Side == types.SideBuy {
		return new(big.Int).Mul(remaining, args.Price)
	}
	return new(big.Int).Set(remaining)
}

func feeAmount(quoteAmount *big.Int, bps uint64) *big.Int {
	fee := new(big.Int).Mul(quoteAmount, big.NewInt(int64(bps)))
	return fee.Div(fee, big.NewInt(10000))
}

// creditFeeSplit routes one matched trade leg's fee to the three protocol
// vaults in the same 50/30/20 Miners/DevOps/Founders ratio the block
// emission's tithe uses (params.ChainConfig.SplitThreeWay), rather than
// sending the whole fee to Miners alone.
func (sm *StateMachine) creditFeeSplit(token common.Token, fee *big.Int) error {
	if fee.Sign() == 0 {
		return nil
	}
	miners, devops, founders := sm.cfg.SplitThreeWay(fee)
	if err := sm.CreditVault(types.VaultMiners, token, miners); err != nil {
		return err
	}
	if err := sm.CreditVault(types.VaultDevOps, token, devops); err != nil {
		return err
	}
	return sm.CreditVault(types.VaultFounders, token, founders)
}

func seqID(owner common.Address, seq uint64) []byte {
	w := encoding.NewWriter()
	w.WriteFixed(owner.Bytes())
	w.WriteUint64(seq)
	return w.Bytes()
}

type tradeEvent struct {
	TakerOrder common.Hash
	MakerOrder common.Hash
	Price      *big.Int
	Size       *big.Int
}

func (e *tradeEvent) MarshalCanonical(w *encoding.Writer) {
	w.WriteFixed(e.TakerOrder.Bytes())
	w.WriteFixed(e.MakerOrder.Bytes())
	w.WriteFixed(bigToFixed16(e.Price))
	w.WriteFixed(bigToFixed16(e.Size))
}

func (e *tradeEvent) UnmarshalCanonical(r *encoding.Reader) error {
	taker, err := r.ReadFixed(common.HashLength)
	if err != nil {
		return err
	}
	e.TakerOrder = common.BytesToHash(taker)
	maker, err := r.ReadFixed(common.HashLength)
	if err != nil {
		return err
	}
	e.MakerOrder = common.BytesToHash(maker)
	price, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	e.Price = new(big.Int).SetBytes(price)
	size, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	e.Size = new(big.Int).SetBytes(size)
	return nil
}

type orderPlacedEvent struct {
	OrderID common.Hash
}

func (e *orderPlacedEvent) MarshalCanonical(w *encoding.Writer) { w.WriteFixed(e.OrderID.Bytes()) }
func (e *orderPlacedEvent) UnmarshalCanonical(r *encoding.Reader) error {
	id, err := r.ReadFixed(common.HashLength)
	if err != nil {
		return err
	}
	e.OrderID = common.BytesToHash(id)
	return nil
}
