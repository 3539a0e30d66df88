// Adapted for Vision Node: grounded on the XDCx/XDCxlending vocabulary
// visible in ethereum-go-ethereum's surviving test files
// (tradingstate/statedb_test.go's GetBestAskPrice/GetBestBidPrice,
// order_processor_test.go's OrderItem) — that package's tests are the only
// CLOB reference the pack carries, so Order/Orderbook field names echo
// OrderItem's vocabulary (side/price/quantity/filledAmount) generalized to
// this chain's u128 price-sorted FIFO book.

package types

import (
	"math/big"
	"time"

	"github.com/vision-chain/vision-node/common"
	"github.com/vision-chain/vision-node/encoding"
)

type OrderSide uint8

const (
	SideBuy OrderSide = iota
	SideSell
)

// TIF is the time-in-force discriminant (spec §3).
type TIF uint8

const (
	TIFGTC TIF = iota // good-til-cancelled
	TIFIOC            // immediate-or-cancel
	TIFFOK            // fill-or-kill
	TIFGTT            // good-til-time (Expiry is a block height)
)

// Pair names the two tokens an order trades.
type Pair struct {
	Base  common.Token
	Quote common.Token
}

// Order is one resting or in-flight limit order (spec §3).
type Order struct {
	ID          common.Hash
	Owner       common.Address
	Pair        Pair
	Side        OrderSide
	Price       *big.Int // u128, quote-smallest-unit per base unit
	SizeTotal   *big.Int // u128, base-smallest-unit
	SizeFilled  *big.Int
	TIF         TIF
	Expiry      uint64 // block height; only meaningful when TIF == TIFGTT
	PostOnly    bool
	Sequence    uint64 // placement sequence number, breaks same-price ties
	PlacedAt    time.Time
}

func (o *Order) Remaining() *big.Int {
	return new(big.Int).Sub(o.SizeTotal, o.SizeFilled)
}

func (o *Order) MarshalCanonical(w *encoding.Writer) {
	w.WriteFixed(o.ID.Bytes())
	w.WriteFixed(o.Owner.Bytes())
	w.WriteBytes([]byte(o.Pair.Base))
	w.WriteBytes([]byte(o.Pair.Quote))
	w.WriteTag(uint8(o.Side))
	w.WriteFixed(bigToFixed16(o.Price))
	w.WriteFixed(bigToFixed16(o.SizeTotal))
	w.WriteFixed(bigToFixed16(o.SizeFilled))
	w.WriteTag(uint8(o.TIF))
	w.WriteUint64(o.Expiry)
	w.WriteBool(o.PostOnly)
	w.WriteUint64(o.Sequence)
	w.WriteUint64(uint64(o.PlacedAt.Unix()))
}

func (o *Order) UnmarshalCanonical(r *encoding.Reader) error {
	id, err := r.ReadFixed(common.HashLength)
	if err != nil {
		return err
	}
	o.ID = common.BytesToHash(id)

	owner, err := r.ReadFixed(common.AddressLength)
	if err != nil {
		return err
	}
	o.Owner = common.BytesToAddress(owner)

	base, err := r.ReadBytes()
	if err != nil {
		return err
	}
	quote, err := r.ReadBytes()
	if err != nil {
		return err
	}
	o.Pair = Pair{Base: common.Token(base), Quote: common.Token(quote)}

	side, err := r.ReadTag()
	if err != nil {
		return err
	}
	o.Side = OrderSide(side)

	price, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	o.Price = new(big.Int).SetBytes(price)

	sizeTotal, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	o.SizeTotal = new(big.Int).SetBytes(sizeTotal)

	sizeFilled, err := r.ReadFixed(16)
	if err != nil {
		return err
	}
	o.SizeFilled = new(big.Int).SetBytes(sizeFilled)

	tif, err := r.ReadTag()
	if err != nil {
		return err
	}
	o.TIF = TIF(tif)

	if o.Expiry, err = r.ReadUint64(); err != nil {
		return err
	}
	if o.PostOnly, err = r.ReadBool(); err != nil {
		return err
	}
	if o.Sequence, err = r.ReadUint64(); err != nil {
		return err
	}
	placedAt, err := r.ReadUint64()
	if err != nil {
		return err
	}
	o.PlacedAt = time.Unix(int64(placedAt), 0).UTC()
	return nil
}

// PriceLevel is one FIFO queue of orders resting at a single price.
type PriceLevel struct {
	Price  *big.Int
	Orders []*Order // FIFO by Sequence
}

// Orderbook holds the live bid/ask ladders for one pair. Bids are kept
// price-descending, asks price-ascending; both as slices of PriceLevel kept
// sorted by the engine rather than a balanced tree, since spec scale
// (bounded pairs, bounded depth) doesn't need one.
type Orderbook struct {
	Pair Pair
	Bids []*PriceLevel // descending by Price
	Asks []*PriceLevel // ascending by Price
}

// BestBid returns the highest bid price level, or nil if the book is empty
// on that side.
func (ob *Orderbook) BestBid() *PriceLevel {
	if len(ob.Bids) == 0 {
		return nil
	}
	return ob.Bids[0]
}

// BestAsk returns the lowest ask price level, or nil if the book is empty
// on that side.
func (ob *Orderbook) BestAsk() *PriceLevel {
	if len(ob.Asks) == 0 {
		return nil
	}
	return ob.Asks[0]
}
