package engine

import (
	"sort"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/google/btree"
	"github.com/google/uuid"

	"github.com/openalpha/simex/exchange/book"
	"github.com/openalpha/simex/exchange/types"
)

// candidatePrice wraps a price for the btree of distinct candidate clearing
// prices. Implements btree.Item; ascending order by price.
type candidatePrice struct {
	price math.LegacyDec
}

func (a *candidatePrice) Less(b btree.Item) bool {
	return a.price.LT(b.(*candidatePrice).price)
}

const candidateTreeDegree = 8

// Batch collects orders during auction phases and clears them in a single
// uniform-price, maximum-volume auction. All trades in one batch execute at
// one clearing price; ties between volume-maximising prices are broken by
// the midpoint of the optimal set.
type Batch struct {
	pending map[string][]*types.Order // instrument -> pending orders
	logger  log.Logger

	genTradeID func() string
}

// NewBatch creates a batch auction engine
func NewBatch(logger log.Logger) *Batch {
	return &Batch{
		pending:    make(map[string][]*types.Order),
		logger:     logger.With("engine", "batch"),
		genTradeID: func() string { return "TRD-" + uuid.NewString() },
	}
}

// PendingCount returns the number of pending orders for an instrument
func (e *Batch) PendingCount(instrumentID string) int {
	return len(e.pending[instrumentID])
}

// Submit buckets the order for the next auction. Market orders are not
// accepted during auctions; duplicates against the book or the bucket are
// rejected. The caller receives pending_new with zero fills.
func (e *Batch) Submit(order *types.Order, ob *book.OrderBook) *types.OrderResult {
	if order.InstrumentID != ob.Instrument.Symbol {
		return types.ErrorResult(order, CodeUnknownInstrument, types.ErrInstrumentMismatch.Error())
	}
	if order.OrderType != types.OrderTypeLimit {
		return types.ErrorResult(order, CodeInvalidOrder, types.ErrMarketOrderInBatch.Error())
	}
	if ob.Contains(order.OrderID) {
		return types.ErrorResult(order, CodeDuplicateOrder, types.ErrDuplicateOrder.Error())
	}
	for _, p := range e.pending[order.InstrumentID] {
		if p.OrderID == order.OrderID {
			return types.ErrorResult(order, CodeDuplicateOrder, types.ErrDuplicateOrder.Error())
		}
	}

	e.pending[order.InstrumentID] = append(e.pending[order.InstrumentID], order)
	return &types.OrderResult{
		Status:       types.StatusPendingNew,
		Order:        order,
		Fills:        []*types.Trade{},
		RemainingQty: order.RemainingQty(),
	}
}

// ExecuteBatch clears every instrument's pending bucket against its book.
// Unmatched remainders become resting limit orders at their submitted
// prices. Returns the trades per instrument.
func (e *Batch) ExecuteBatch(books map[string]*book.OrderBook) map[string][]*types.Trade {
	results := make(map[string][]*types.Trade)
	for instrumentID, orders := range e.pending {
		ob, ok := books[instrumentID]
		if !ok {
			e.logger.Error("no book for pending auction bucket", "instrument", instrumentID)
			continue
		}
		trades := e.clear(orders, ob)
		if len(trades) > 0 {
			results[instrumentID] = trades
		}
		delete(e.pending, instrumentID)
	}
	return results
}

// CancelAll drains every pending bucket and marks the orders cancelled.
// Used when the market closes before the auction runs.
func (e *Batch) CancelAll() []*types.Order {
	cancelled := make([]*types.Order, 0)
	for instrumentID, orders := range e.pending {
		for _, o := range orders {
			o.Cancel()
			cancelled = append(cancelled, o)
		}
		delete(e.pending, instrumentID)
	}
	return cancelled
}

// clear runs the auction for one instrument
func (e *Batch) clear(orders []*types.Order, ob *book.OrderBook) []*types.Trade {
	bids := make([]*types.Order, 0, len(orders))
	asks := make([]*types.Order, 0, len(orders))
	for _, o := range orders {
		if o.Side == types.SideBuy {
			bids = append(bids, o)
		} else {
			asks = append(asks, o)
		}
	}

	// Price priority, then time priority within a price.
	sort.SliceStable(bids, func(i, j int) bool {
		if !bids[i].Price.Equal(bids[j].Price) {
			return bids[i].Price.GT(bids[j].Price)
		}
		return bids[i].Seq < bids[j].Seq
	})
	sort.SliceStable(asks, func(i, j int) bool {
		if !asks[i].Price.Equal(asks[j].Price) {
			return asks[i].Price.LT(asks[j].Price)
		}
		return asks[i].Seq < asks[j].Seq
	})

	if len(bids) == 0 || len(asks) == 0 || bids[0].Price.LT(asks[0].Price) {
		// No crossing range: everything rests.
		e.restAll(orders, ob)
		return nil
	}

	maxBid := bids[0].Price
	minAsk := asks[0].Price

	clearing, volume := e.findClearingPrice(bids, asks, minAsk, maxBid)
	if volume == 0 {
		e.restAll(orders, ob)
		return nil
	}

	trades := e.allocate(bids, asks, clearing, volume, ob)

	// Whatever was not (fully) matched rests at its submitted price.
	e.restAll(orders, ob)
	return trades
}

// findClearingPrice evaluates every distinct pending price inside the
// crossing range and returns the volume-maximising clearing price. When
// several prices tie, the midpoint of the optimal set wins.
func (e *Batch) findClearingPrice(bids, asks []*types.Order, minAsk, maxBid math.LegacyDec) (math.LegacyDec, int64) {
	candidates := btree.New(candidateTreeDegree)
	consider := func(p math.LegacyDec) {
		if p.GTE(minAsk) && p.LTE(maxBid) {
			candidates.ReplaceOrInsert(&candidatePrice{price: p})
		}
	}
	for _, o := range bids {
		consider(o.Price)
	}
	for _, o := range asks {
		consider(o.Price)
	}

	var (
		bestVolume int64
		optimalMin math.LegacyDec
		optimalMax math.LegacyDec
	)
	candidates.Ascend(func(item btree.Item) bool {
		p := item.(*candidatePrice).price
		v := executableVolume(bids, asks, p)
		switch {
		case v > bestVolume:
			bestVolume = v
			optimalMin, optimalMax = p, p
		case v == bestVolume && bestVolume > 0:
			optimalMax = p
		}
		return true
	})

	if bestVolume == 0 {
		return math.LegacyZeroDec(), 0
	}
	clearing := optimalMin.Add(optimalMax).QuoInt64(2)
	e.logger.Info("auction clearing price determined",
		"clearing", clearing.String(), "volume", bestVolume,
		"optimal_min", optimalMin.String(), "optimal_max", optimalMax.String())
	return clearing, bestVolume
}

// executableVolume is min(demand at or above p, supply at or below p)
func executableVolume(bids, asks []*types.Order, p math.LegacyDec) int64 {
	var demand, supply int64
	for _, b := range bids {
		if b.Price.GTE(p) {
			demand += b.RemainingQty()
		}
	}
	for _, a := range asks {
		if a.Price.LTE(p) {
			supply += a.RemainingQty()
		}
	}
	return min64(demand, supply)
}

// allocate fills up to volume units, walking both sides best-first. Orders
// are already sorted price-then-time, so fills at the marginal price are
// allocated in time priority automatically. All trades execute at the
// clearing price.
func (e *Batch) allocate(bids, asks []*types.Order, clearing math.LegacyDec, volume int64, ob *book.OrderBook) []*types.Trade {
	trades := make([]*types.Trade, 0)

	bi, ai := 0, 0
	bidBudget, askBudget := volume, volume
	for bidBudget > 0 && askBudget > 0 && bi < len(bids) && ai < len(asks) {
		bid, ask := bids[bi], asks[ai]
		if bid.Price.LT(clearing) || ask.Price.GT(clearing) {
			break
		}

		qty := min64(bid.RemainingQty(), ask.RemainingQty())
		qty = min64(qty, min64(bidBudget, askBudget))

		// The later of the two orders is treated as the aggressor.
		taker, maker := bid, ask
		if ask.Seq > bid.Seq {
			taker, maker = ask, bid
		}
		trade := types.NewTrade(e.genTradeID(), taker, maker, clearing, qty)
		trades = append(trades, trade)
		ob.RecordTrade(trade)

		_ = bid.Fill(qty)
		_ = ask.Fill(qty)
		bidBudget -= qty
		askBudget -= qty

		if bid.IsFilled() {
			bi++
		}
		if ask.IsFilled() {
			ai++
		}
	}
	return trades
}

// restAll inserts every pending order that still has remaining quantity
func (e *Batch) restAll(orders []*types.Order, ob *book.OrderBook) {
	for _, o := range orders {
		if o.RemainingQty() == 0 {
			continue
		}
		if err := ob.InsertResting(o); err != nil {
			e.logger.Error("failed to rest auction leftover", "order_id", o.OrderID, "err", err)
		}
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
