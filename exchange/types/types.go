package types

import (
	"time"

	"cosmossdk.io/math"
)

// Side represents order side
type Side int

const (
	SideUnspecified Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unspecified"
	}
}

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// ParseSide parses a side string ("buy" or "sell")
func ParseSide(s string) (Side, error) {
	switch s {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	default:
		return SideUnspecified, ErrInvalidSide
	}
}

// OrderType represents order type
type OrderType int

const (
	OrderTypeUnspecified OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeLimit:
		return "limit"
	case OrderTypeMarket:
		return "market"
	default:
		return "unspecified"
	}
}

// ParseOrderType parses an order type string ("limit" or "market")
func ParseOrderType(s string) (OrderType, error) {
	switch s {
	case "limit":
		return OrderTypeLimit, nil
	case "market":
		return OrderTypeMarket, nil
	default:
		return OrderTypeUnspecified, ErrInvalidOrderType
	}
}

// OptionType represents the option contract type
type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

// Instrument is a tradeable contract. Instruments are created once at
// startup and are immutable afterwards.
type Instrument struct {
	Symbol     string
	Underlying string
	OptionType OptionType
	Strike     math.LegacyDec
	Expiry     time.Time
}

// OrderStatus represents order status
type OrderStatus int

const (
	OrderStatusUnspecified OrderStatus = iota
	OrderStatusOpen
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCancelled
	OrderStatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusOpen:
		return "open"
	case OrderStatusPartiallyFilled:
		return "partially_filled"
	case OrderStatusFilled:
		return "filled"
	case OrderStatusCancelled:
		return "cancelled"
	case OrderStatusRejected:
		return "rejected"
	default:
		return "unspecified"
	}
}

// Order represents a trading order. Quantities are whole contracts; prices
// are quantised to penny increments.
type Order struct {
	OrderID       string
	ClientOrderID string
	InstrumentID  string
	Trader        string
	Side          Side
	OrderType     OrderType
	Price         math.LegacyDec // limit price (zero for market orders)
	Quantity      int64
	FilledQty     int64
	Status        OrderStatus
	SubmittedAt   time.Time

	// Seq is assigned by the venue on submission and establishes time
	// priority between orders carrying the same price.
	Seq uint64
}

// NewOrder creates and validates a new order. Zero or negative quantities
// and non-penny limit prices are rejected here, before the order reaches
// the pipeline.
func NewOrder(orderID, trader, instrumentID string, side Side, orderType OrderType, price math.LegacyDec, quantity int64) (*Order, error) {
	if side != SideBuy && side != SideSell {
		return nil, ErrInvalidSide
	}
	if orderType != OrderTypeLimit && orderType != OrderTypeMarket {
		return nil, ErrInvalidOrderType
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	switch orderType {
	case OrderTypeLimit:
		if price.IsNil() || !price.IsPositive() {
			return nil, ErrInvalidPrice
		}
		if !price.MulInt64(100).IsInteger() {
			return nil, ErrInvalidPrice
		}
	case OrderTypeMarket:
		if !price.IsNil() && !price.IsZero() {
			return nil, ErrInvalidPrice
		}
		price = math.LegacyZeroDec()
	}
	return &Order{
		OrderID:      orderID,
		Trader:       trader,
		InstrumentID: instrumentID,
		Side:         side,
		OrderType:    orderType,
		Price:        price,
		Quantity:     quantity,
		Status:       OrderStatusOpen,
		SubmittedAt:  time.Now(),
	}, nil
}

// RemainingQty returns the remaining unfilled quantity
func (o *Order) RemainingQty() int64 {
	return o.Quantity - o.FilledQty
}

// IsFilled returns true if the order is completely filled
func (o *Order) IsFilled() bool {
	return o.FilledQty >= o.Quantity
}

// IsActive returns true if the order can still be matched
func (o *Order) IsActive() bool {
	return o.Status == OrderStatusOpen || o.Status == OrderStatusPartiallyFilled
}

// Fill records a fill against the order
func (o *Order) Fill(qty int64) error {
	if qty <= 0 || qty > o.RemainingQty() {
		return ErrInvalidQuantity
	}
	o.FilledQty += qty
	if o.IsFilled() {
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartiallyFilled
	}
	return nil
}

// Cancel cancels the order
func (o *Order) Cancel() {
	o.Status = OrderStatusCancelled
}

// Trade represents an executed match. Trades are emitted by the matching
// engine and never mutated afterwards.
type Trade struct {
	TradeID       string
	InstrumentID  string
	Buyer         string
	Seller        string
	BuyOrderID    string
	SellOrderID   string
	Price         math.LegacyDec
	Quantity      int64
	AggressorSide Side
	ExecutedAt    time.Time
}

// NewTrade creates a trade between a taker (incoming) and maker (resting)
// order. The aggressor side is the taker's side.
func NewTrade(tradeID string, taker, maker *Order, price math.LegacyDec, qty int64) *Trade {
	t := &Trade{
		TradeID:       tradeID,
		InstrumentID:  taker.InstrumentID,
		Price:         price,
		Quantity:      qty,
		AggressorSide: taker.Side,
		ExecutedAt:    time.Now(),
	}
	if taker.Side == SideBuy {
		t.Buyer = taker.Trader
		t.BuyOrderID = taker.OrderID
		t.Seller = maker.Trader
		t.SellOrderID = maker.OrderID
	} else {
		t.Seller = taker.Trader
		t.SellOrderID = taker.OrderID
		t.Buyer = maker.Trader
		t.BuyOrderID = maker.OrderID
	}
	return t
}

// IsSelfTrade reports whether both sides belong to the same team
func (t *Trade) IsSelfTrade() bool {
	return t.Buyer == t.Seller
}

// ResultStatus is the terminal (or interim) status carried on an OrderResult
type ResultStatus string

const (
	StatusPendingNew      ResultStatus = "pending_new"
	StatusNew             ResultStatus = "new"
	StatusPartiallyFilled ResultStatus = "partially_filled"
	StatusFilled          ResultStatus = "filled"
	StatusRejected        ResultStatus = "rejected"
	StatusCancelled       ResultStatus = "cancelled"
	StatusError           ResultStatus = "error"
)

// OrderResult is the outcome of submitting an order to the venue
type OrderResult struct {
	Status       ResultStatus
	Order        *Order
	Fills        []*Trade
	RemainingQty int64
	ErrorCode    string
	ErrorMessage string
}

// NewOrderResult builds a result for an order, deriving the status from the
// fills and remaining quantity.
func NewOrderResult(order *Order, fills []*Trade) *OrderResult {
	res := &OrderResult{
		Order:        order,
		Fills:        fills,
		RemainingQty: order.RemainingQty(),
	}
	switch {
	case len(fills) == 0:
		res.Status = StatusNew
	case order.RemainingQty() > 0:
		res.Status = StatusPartiallyFilled
	default:
		res.Status = StatusFilled
	}
	return res
}

// ErrorResult builds an error result with the given code and message
func ErrorResult(order *Order, code, message string) *OrderResult {
	return &OrderResult{
		Status:       StatusError,
		Order:        order,
		RemainingQty: order.RemainingQty(),
		ErrorCode:    code,
		ErrorMessage: message,
	}
}
