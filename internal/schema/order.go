package schema

import (
	"github.com/yanun0323/errors"
)

var (
	ErrEmptySymbol      = errors.New("order symbol is empty")
	ErrNonPositiveSize  = errors.New("order size must be > 0")
	ErrNonPositivePrice = errors.New("order price must be > 0")
	ErrInvalidDirection = errors.New("order direction must be +1 or -1")
	ErrInvalidLeverage  = errors.New("order leverage must be >= 1")
)

// Direction is the side of an order: +1 long, -1 short.
type Direction int8

const (
	DirectionLong  Direction = 1
	DirectionShort Direction = -1
)

// Order is an immutable admission request. The engine assigns no identity to
// it; a ULID is attached to the durable LogEntry for correlation instead.
type Order struct {
	Symbol    string    `json:"symbol"`
	Size      float64   `json:"size"`
	Price     float64   `json:"price"`
	Direction Direction `json:"direction"`
	Leverage  float64   `json:"leverage"`
}

// Validate rejects malformed orders before they reach simulation.
// A validation failure is a caller error, distinct from a policy BLOCK.
func (o Order) Validate() error {
	if o.Symbol == "" {
		return ErrEmptySymbol
	}
	if o.Size <= 0 {
		return ErrNonPositiveSize
	}
	if o.Price <= 0 {
		return ErrNonPositivePrice
	}
	if o.Direction != DirectionLong && o.Direction != DirectionShort {
		return ErrInvalidDirection
	}
	if o.Leverage != 0 && o.Leverage < 1 {
		return ErrInvalidLeverage
	}
	return nil
}

// EffectiveLeverage resolves the default leverage of 1.
func (o Order) EffectiveLeverage() float64 {
	if o.Leverage < 1 {
		return 1
	}
	return o.Leverage
}

// Notional is the order's absolute notional value.
func (o Order) Notional() float64 {
	return o.Size * o.Price
}

// SignedSize is the position delta the order applies.
func (o Order) SignedSize() float64 {
	return o.Size * float64(o.Direction)
}
