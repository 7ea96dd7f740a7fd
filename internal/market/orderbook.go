package market

import (
	"errors"
	"fmt"

	"bytra_go/internal/domain"

	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

const btreeDegree = 16

// ErrInvalidLevel is returned for a delta with a negative size or an unknown side.
var ErrInvalidLevel = errors.New("invalid book level")

// OrderBook keeps both sides ordered best-first.
// A level never holds a zero size: a zero-size update removes it.
type OrderBook struct {
	bids     *btree.BTreeG[domain.BookLevel]
	asks     *btree.BTreeG[domain.BookLevel]
	updateID int64
}

// NewOrderBook creates an empty book.
func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids: newSide(domain.BookBid),
		asks: newSide(domain.BookAsk),
	}
}

func newSide(side domain.BookSide) *btree.BTreeG[domain.BookLevel] {
	if side == domain.BookBid {
		return btree.NewG(btreeDegree, func(a, b domain.BookLevel) bool {
			return a.Price.GreaterThan(b.Price)
		})
	}
	return btree.NewG(btreeDegree, func(a, b domain.BookLevel) bool {
		return a.Price.LessThan(b.Price)
	})
}

func (b *OrderBook) side(side domain.BookSide) (*btree.BTreeG[domain.BookLevel], error) {
	switch side {
	case domain.BookBid:
		return b.bids, nil
	case domain.BookAsk:
		return b.asks, nil
	default:
		return nil, fmt.Errorf("%w: side %d", ErrInvalidLevel, side)
	}
}

// ApplyDelta upserts a level, or removes it when size is zero.
func (b *OrderBook) ApplyDelta(side domain.BookSide, price, size decimal.Decimal) error {
	tree, err := b.side(side)
	if err != nil {
		return err
	}
	if size.IsNegative() {
		return fmt.Errorf("%w: negative size %s at %s", ErrInvalidLevel, size, price)
	}

	if size.IsZero() {
		tree.Delete(domain.BookLevel{Price: price})
		return nil
	}
	tree.ReplaceOrInsert(domain.BookLevel{Price: price, Size: size})
	return nil
}

// Replace swaps the whole content for the snapshot.
// The new trees are built before the swap, so a failure leaves the old book intact.
func (b *OrderBook) Replace(snap domain.BookSnapshot) error {
	bids := newSide(domain.BookBid)
	asks := newSide(domain.BookAsk)

	for _, lvl := range snap.Bids {
		if lvl.Size.IsNegative() {
			return fmt.Errorf("%w: negative bid size at %s", ErrInvalidLevel, lvl.Price)
		}
		if !lvl.Size.IsZero() {
			bids.ReplaceOrInsert(lvl)
		}
	}
	for _, lvl := range snap.Asks {
		if lvl.Size.IsNegative() {
			return fmt.Errorf("%w: negative ask size at %s", ErrInvalidLevel, lvl.Price)
		}
		if !lvl.Size.IsZero() {
			asks.ReplaceOrInsert(lvl)
		}
	}

	b.bids, b.asks = bids, asks
	b.updateID = snap.UpdateID
	return nil
}

// SetUpdateID records the exchange update id of the last applied delta.
func (b *OrderBook) SetUpdateID(id int64) { b.updateID = id }

// UpdateID returns the exchange update id of the last applied change.
func (b *OrderBook) UpdateID() int64 { return b.updateID }

// Level returns the size at price, if present.
func (b *OrderBook) Level(side domain.BookSide, price decimal.Decimal) (decimal.Decimal, bool) {
	tree, err := b.side(side)
	if err != nil {
		return decimal.Zero, false
	}
	lvl, ok := tree.Get(domain.BookLevel{Price: price})
	return lvl.Size, ok
}

// Len returns the number of levels on a side.
func (b *OrderBook) Len(side domain.BookSide) int {
	tree, err := b.side(side)
	if err != nil {
		return 0
	}
	return tree.Len()
}

// BestBid returns the highest bid.
func (b *OrderBook) BestBid() (domain.BookLevel, bool) {
	return b.bids.Min()
}

// BestAsk returns the lowest ask.
func (b *OrderBook) BestAsk() (domain.BookLevel, bool) {
	return b.asks.Min()
}

// Snapshot copies up to depth levels per side, best first. depth <= 0 copies everything.
func (b *OrderBook) Snapshot(symbol string, depth int) domain.BookSnapshot {
	return domain.BookSnapshot{
		Symbol:   symbol,
		Bids:     collect(b.bids, depth),
		Asks:     collect(b.asks, depth),
		UpdateID: b.updateID,
	}
}

func collect(tree *btree.BTreeG[domain.BookLevel], depth int) []domain.BookLevel {
	n := tree.Len()
	if depth > 0 && depth < n {
		n = depth
	}
	out := make([]domain.BookLevel, 0, n)
	tree.Ascend(func(lvl domain.BookLevel) bool {
		out = append(out, lvl)
		return len(out) < n
	})
	return out
}
