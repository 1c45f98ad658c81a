package book

import (
	"fmt"

	"cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/huandu/skiplist"

	"github.com/openalpha/simex/exchange/types"
)

const recentTradeCapacity = 100

// PriceLevel holds the resting orders at a single price in FIFO order.
// Insertion order is time priority.
type PriceLevel struct {
	Price    math.LegacyDec
	Quantity int64 // sum of remaining quantities
	Orders   []*types.Order
}

// NewPriceLevel creates an empty price level
func NewPriceLevel(price math.LegacyDec) *PriceLevel {
	return &PriceLevel{
		Price:  price,
		Orders: make([]*types.Order, 0, 4),
	}
}

// AddOrder appends an order to the level (FIFO)
func (pl *PriceLevel) AddOrder(order *types.Order) {
	pl.Orders = append(pl.Orders, order)
	pl.Quantity += order.RemainingQty()
}

// RemoveOrder removes an order from the level by id
func (pl *PriceLevel) RemoveOrder(orderID string) *types.Order {
	for i, o := range pl.Orders {
		if o.OrderID == orderID {
			pl.Orders = append(pl.Orders[:i], pl.Orders[i+1:]...)
			pl.Quantity -= o.RemainingQty()
			return o
		}
	}
	return nil
}

// UpdateQuantity recomputes the level aggregate from its orders
func (pl *PriceLevel) UpdateQuantity() {
	var total int64
	for _, o := range pl.Orders {
		total += o.RemainingQty()
	}
	pl.Quantity = total
}

// IsEmpty returns true if no orders rest at this level
func (pl *PriceLevel) IsEmpty() bool {
	return len(pl.Orders) == 0
}

// FirstOrder returns the oldest order at this level
func (pl *PriceLevel) FirstOrder() *types.Order {
	if len(pl.Orders) == 0 {
		return nil
	}
	return pl.Orders[0]
}

// priceKeyAsc is a comparator for ascending price order (asks)
type priceKeyAsc struct{}

func (k priceKeyAsc) Compare(lhs, rhs interface{}) int {
	l := lhs.(math.LegacyDec)
	r := rhs.(math.LegacyDec)
	if l.LT(r) {
		return -1
	}
	if l.GT(r) {
		return 1
	}
	return 0
}

func (k priceKeyAsc) CalcScore(key interface{}) float64 {
	dec := key.(math.LegacyDec)
	f, _ := dec.Float64()
	return f
}

// priceKeyDesc is a comparator for descending price order (bids)
type priceKeyDesc struct{}

func (k priceKeyDesc) Compare(lhs, rhs interface{}) int {
	l := lhs.(math.LegacyDec)
	r := rhs.(math.LegacyDec)
	if l.GT(r) {
		return -1
	}
	if l.LT(r) {
		return 1
	}
	return 0
}

func (k priceKeyDesc) CalcScore(key interface{}) float64 {
	dec := key.(math.LegacyDec)
	f, _ := dec.Float64()
	return -f
}

// DepthLevel is one aggregated row of a depth snapshot
type DepthLevel struct {
	Price    math.LegacyDec `json:"price"`
	Quantity int64          `json:"quantity"`
}

// OrderBook is a per-instrument limit order book with skip-list price
// ladders. Bids are ordered descending, asks ascending, each level FIFO.
// The book carries no internal locking; the venue serialises access.
type OrderBook struct {
	Instrument *types.Instrument

	bids *skiplist.SkipList
	asks *skiplist.SkipList

	// orderID -> level the order rests in; weak lookup, ownership stays
	// with the price level.
	index map[string]*PriceLevel

	recent []*types.Trade // ring buffer of recent trades
	next   int
	filled int

	genTradeID func() string
}

// NewOrderBook creates an empty order book for an instrument
func NewOrderBook(inst *types.Instrument) *OrderBook {
	return &OrderBook{
		Instrument: inst,
		bids:       skiplist.New(priceKeyDesc{}),
		asks:       skiplist.New(priceKeyAsc{}),
		index:      make(map[string]*PriceLevel),
		recent:     make([]*types.Trade, recentTradeCapacity),
		genTradeID: func() string { return "TRD-" + uuid.NewString() },
	}
}

// Contains reports whether an order currently rests in the book
func (ob *OrderBook) Contains(orderID string) bool {
	_, ok := ob.index[orderID]
	return ok
}

// GetOrder returns a resting order by id
func (ob *OrderBook) GetOrder(orderID string) *types.Order {
	level, ok := ob.index[orderID]
	if !ok {
		return nil
	}
	for _, o := range level.Orders {
		if o.OrderID == orderID {
			return o
		}
	}
	return nil
}

// AddOrder validates the order, matches it against the opposite side and
// rests any unfilled remainder of a limit order. A market order never rests:
// whatever cannot be matched is dropped.
func (ob *OrderBook) AddOrder(order *types.Order) ([]*types.Trade, error) {
	if order.InstrumentID != ob.Instrument.Symbol {
		return nil, types.ErrInstrumentMismatch
	}
	if ob.Contains(order.OrderID) {
		return nil, types.ErrDuplicateOrder
	}

	trades := ob.match(order)

	if order.RemainingQty() > 0 {
		if order.OrderType == types.OrderTypeLimit {
			ob.insert(order)
		} else {
			order.Cancel()
		}
	}
	return trades, nil
}

// InsertResting rests a limit order directly, without matching. Used by the
// batch engine to post auction leftovers at their submitted prices.
func (ob *OrderBook) InsertResting(order *types.Order) error {
	if order.InstrumentID != ob.Instrument.Symbol {
		return types.ErrInstrumentMismatch
	}
	if order.OrderType != types.OrderTypeLimit {
		return types.ErrInvalidOrderType
	}
	if ob.Contains(order.OrderID) {
		return types.ErrDuplicateOrder
	}
	ob.insert(order)
	return nil
}

// match walks the opposite ladder from the best price, filling the incoming
// order until its limit stops being acceptable or the ladder is exhausted.
// The trade price is always the resting order's price.
func (ob *OrderBook) match(order *types.Order) []*types.Trade {
	var opposite *skiplist.SkipList
	if order.Side == types.SideBuy {
		opposite = ob.asks
	} else {
		opposite = ob.bids
	}

	trades := make([]*types.Trade, 0)

	for order.RemainingQty() > 0 {
		front := opposite.Front()
		if front == nil {
			break
		}
		level := front.Value.(*PriceLevel)

		if !ob.priceAcceptable(order, level.Price) {
			break
		}

		resting := level.FirstOrder()
		qty := min64(order.RemainingQty(), resting.RemainingQty())

		trade := types.NewTrade(ob.genTradeID(), order, resting, level.Price, qty)
		trades = append(trades, trade)
		ob.recordTrade(trade)

		_ = order.Fill(qty)
		_ = resting.Fill(qty)
		level.Quantity -= qty

		if resting.IsFilled() {
			level.RemoveOrder(resting.OrderID)
			delete(ob.index, resting.OrderID)
		}
		if level.IsEmpty() {
			opposite.Remove(level.Price)
		}
	}
	return trades
}

// priceAcceptable reports whether the incoming order can trade at the given
// opposite-side level price.
func (ob *OrderBook) priceAcceptable(order *types.Order, levelPrice math.LegacyDec) bool {
	if order.OrderType == types.OrderTypeMarket {
		return true
	}
	if order.Side == types.SideBuy {
		return order.Price.GTE(levelPrice)
	}
	return order.Price.LTE(levelPrice)
}

// insert rests a limit order on its own side
func (ob *OrderBook) insert(order *types.Order) {
	var list *skiplist.SkipList
	if order.Side == types.SideBuy {
		list = ob.bids
	} else {
		list = ob.asks
	}

	var level *PriceLevel
	if elem := list.Get(order.Price); elem != nil {
		level = elem.Value.(*PriceLevel)
	} else {
		level = NewPriceLevel(order.Price)
		list.Set(order.Price, level)
	}
	level.AddOrder(order)
	ob.index[order.OrderID] = level
}

// CancelOrder removes a resting order, pruning its level if it empties.
// Ownership of the order transfers to the caller.
func (ob *OrderBook) CancelOrder(orderID string) (*types.Order, error) {
	level, ok := ob.index[orderID]
	if !ok {
		return nil, types.ErrOrderNotFound
	}
	order := level.RemoveOrder(orderID)
	if order == nil {
		// index out of step with levels; should not happen
		delete(ob.index, orderID)
		return nil, types.ErrOrderNotFound
	}
	delete(ob.index, orderID)

	if level.IsEmpty() {
		if order.Side == types.SideBuy {
			ob.bids.Remove(level.Price)
		} else {
			ob.asks.Remove(level.Price)
		}
	}
	order.Cancel()
	return order, nil
}

// CancelAll removes every resting order and returns them
func (ob *OrderBook) CancelAll() []*types.Order {
	cancelled := make([]*types.Order, 0, len(ob.index))
	for id := range ob.index {
		if o, err := ob.CancelOrder(id); err == nil {
			cancelled = append(cancelled, o)
		}
	}
	return cancelled
}

// BestBid returns the best bid price and its aggregate quantity
func (ob *OrderBook) BestBid() (math.LegacyDec, int64, bool) {
	front := ob.bids.Front()
	if front == nil {
		return math.LegacyDec{}, 0, false
	}
	level := front.Value.(*PriceLevel)
	return level.Price, level.Quantity, true
}

// BestAsk returns the best ask price and its aggregate quantity
func (ob *OrderBook) BestAsk() (math.LegacyDec, int64, bool) {
	front := ob.asks.Front()
	if front == nil {
		return math.LegacyDec{}, 0, false
	}
	level := front.Value.(*PriceLevel)
	return level.Price, level.Quantity, true
}

// Depth returns up to n aggregated levels per side, best first
func (ob *OrderBook) Depth(n int) (bids, asks []DepthLevel) {
	bids = make([]DepthLevel, 0, n)
	for elem := ob.bids.Front(); elem != nil && len(bids) < n; elem = elem.Next() {
		level := elem.Value.(*PriceLevel)
		bids = append(bids, DepthLevel{Price: level.Price, Quantity: level.Quantity})
	}
	asks = make([]DepthLevel, 0, n)
	for elem := ob.asks.Front(); elem != nil && len(asks) < n; elem = elem.Next() {
		level := elem.Value.(*PriceLevel)
		asks = append(asks, DepthLevel{Price: level.Price, Quantity: level.Quantity})
	}
	return bids, asks
}

// OpenOrders returns the resting orders for a team (all teams if empty)
func (ob *OrderBook) OpenOrders(teamID string) []*types.Order {
	orders := make([]*types.Order, 0)
	collect := func(list *skiplist.SkipList) {
		for elem := list.Front(); elem != nil; elem = elem.Next() {
			level := elem.Value.(*PriceLevel)
			for _, o := range level.Orders {
				if teamID == "" || o.Trader == teamID {
					orders = append(orders, o)
				}
			}
		}
	}
	collect(ob.bids)
	collect(ob.asks)
	return orders
}

// recordTrade appends a trade to the ring buffer
func (ob *OrderBook) recordTrade(trade *types.Trade) {
	ob.recent[ob.next] = trade
	ob.next = (ob.next + 1) % len(ob.recent)
	if ob.filled < len(ob.recent) {
		ob.filled++
	}
}

// RecordTrade exposes ring-buffer recording for trades produced outside the
// continuous match path (batch auctions).
func (ob *OrderBook) RecordTrade(trade *types.Trade) {
	ob.recordTrade(trade)
}

// RecentTrades returns up to limit trades, newest first
func (ob *OrderBook) RecentTrades(limit int) []*types.Trade {
	if limit <= 0 || limit > ob.filled {
		limit = ob.filled
	}
	trades := make([]*types.Trade, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (ob.next - 1 - i + len(ob.recent)) % len(ob.recent)
		trades = append(trades, ob.recent[idx])
	}
	return trades
}

// CheckInvariants verifies level aggregates and ladder ordering. Used by
// tests; returns the first violation found.
func (ob *OrderBook) CheckInvariants() error {
	check := func(list *skiplist.SkipList) error {
		for elem := list.Front(); elem != nil; elem = elem.Next() {
			level := elem.Value.(*PriceLevel)
			var total int64
			for _, o := range level.Orders {
				if o.RemainingQty() <= 0 {
					return fmt.Errorf("order %s resting with no remaining quantity", o.OrderID)
				}
				total += o.RemainingQty()
			}
			if total != level.Quantity {
				return fmt.Errorf("level %s aggregate %d != sum %d", level.Price, level.Quantity, total)
			}
		}
		return nil
	}
	if err := check(ob.bids); err != nil {
		return err
	}
	if err := check(ob.asks); err != nil {
		return err
	}
	bid, _, hasBid := ob.BestBid()
	ask, _, hasAsk := ob.BestAsk()
	if hasBid && hasAsk && bid.GTE(ask) {
		return fmt.Errorf("crossed book: bid %s >= ask %s", bid, ask)
	}
	return nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
