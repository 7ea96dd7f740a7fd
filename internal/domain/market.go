package domain

import "github.com/shopspring/decimal"

// BookSide selects one side of the order book.
type BookSide int

const (
	BookBid BookSide = iota + 1 // descending by price
	BookAsk                     // ascending by price
)

func (s BookSide) String() string {
	switch s {
	case BookBid:
		return "BID"
	case BookAsk:
		return "ASK"
	default:
		return "UNKNOWN"
	}
}

// BookLevel is the aggregate size resting at one price.
type BookLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// BookSnapshot is a full copy of both sides of the book.
// Bids are best (highest) first, asks are best (lowest) first.
type BookSnapshot struct {
	Symbol   string      `json:"symbol"`
	Bids     []BookLevel `json:"bids"`
	Asks     []BookLevel `json:"asks"`
	UpdateID int64       `json:"update_id"`
}
