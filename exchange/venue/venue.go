package venue

import (
	"sync"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"

	"github.com/openalpha/simex/exchange/book"
	"github.com/openalpha/simex/exchange/engine"
	"github.com/openalpha/simex/exchange/phase"
	"github.com/openalpha/simex/exchange/types"
)

// CodeSubmissionClosed is returned when the current phase refuses orders
const CodeSubmissionClosed = "SUBMISSION_CLOSED"

// AuctionTradeHandler receives the trades produced by a batch execution
type AuctionTradeHandler func(instrumentID string, trades []*types.Trade)

// Venue owns the instruments and their books and routes orders to the
// engine selected by the current phase. A single mutex serialises order
// submission, cancellation and batch execution, so books need no locking of
// their own.
type Venue struct {
	mu sync.Mutex

	instruments map[string]*types.Instrument
	books       map[string]*book.OrderBook

	continuous *engine.Continuous
	batch      *engine.Batch

	phases *phase.Manager
	clock  func() time.Time
	seq    uint64

	onAuctionTrades AuctionTradeHandler
	onCancelled     func(orders []*types.Order)

	logger log.Logger
}

// New creates an empty venue
func New(phases *phase.Manager, logger log.Logger) *Venue {
	return &Venue{
		instruments: make(map[string]*types.Instrument),
		books:       make(map[string]*book.OrderBook),
		continuous:  engine.NewContinuous(logger),
		batch:       engine.NewBatch(logger),
		phases:      phases,
		clock:       time.Now,
		logger:      logger.With("component", "venue"),
	}
}

// WithClock overrides the venue clock (tests)
func (v *Venue) WithClock(clock func() time.Time) *Venue {
	v.clock = clock
	return v
}

// SetAuctionTradeHandler registers the sink for batch-auction trades
func (v *Venue) SetAuctionTradeHandler(h AuctionTradeHandler) {
	v.onAuctionTrades = h
}

// SetCancelAllHandler registers the sink for close-of-day cancellations
func (v *Venue) SetCancelAllHandler(h func(orders []*types.Order)) {
	v.onCancelled = h
}

// ListInstrument registers an instrument and creates its book. Duplicate
// listings are rejected.
func (v *Venue) ListInstrument(inst *types.Instrument) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.instruments[inst.Symbol]; ok {
		return types.ErrDuplicateInstrument
	}
	v.instruments[inst.Symbol] = inst
	v.books[inst.Symbol] = book.NewOrderBook(inst)
	v.logger.Info("instrument listed", "symbol", inst.Symbol)
	return nil
}

// Instruments returns the listed instruments
func (v *Venue) Instruments() []*types.Instrument {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]*types.Instrument, 0, len(v.instruments))
	for _, inst := range v.instruments {
		out = append(out, inst)
	}
	return out
}

// Instrument returns a listed instrument by symbol
func (v *Venue) Instrument(symbol string) (*types.Instrument, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	inst, ok := v.instruments[symbol]
	return inst, ok
}

// CurrentPhase returns the phase state in force now
func (v *Venue) CurrentPhase() phase.State {
	return v.phases.At(v.clock())
}

// SubmitOrder routes the order to the engine matching the current phase.
// Failures are carried on the result rather than raised.
func (v *Venue) SubmitOrder(order *types.Order) *types.OrderResult {
	v.mu.Lock()
	defer v.mu.Unlock()

	state := v.phases.At(v.clock())
	if !state.SubmissionAllowed {
		return types.ErrorResult(order, CodeSubmissionClosed, types.ErrSubmissionClosed.Error())
	}

	ob, ok := v.books[order.InstrumentID]
	if !ok {
		return types.ErrorResult(order, engine.CodeUnknownInstrument, types.ErrUnknownInstrument.Error())
	}

	v.seq++
	order.Seq = v.seq

	switch state.Execution {
	case phase.ExecBatch:
		return v.batch.Submit(order, ob)
	case phase.ExecContinuous:
		return v.continuous.Submit(order, ob)
	default:
		return types.ErrorResult(order, CodeSubmissionClosed, types.ErrSubmissionClosed.Error())
	}
}

// CancelOrder removes a resting order after checking ownership. A cancel by
// a team that does not own the order fails with ErrNotOrderOwner; callers
// that face clients must not disclose which of not-found/not-owner fired.
func (v *Venue) CancelOrder(orderID, traderID string) (*types.Order, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	state := v.phases.At(v.clock())
	if !state.CancellationAllowed {
		return nil, types.ErrCancellationClosed
	}

	for _, ob := range v.books {
		if !ob.Contains(orderID) {
			continue
		}
		order := ob.GetOrder(orderID)
		if order.Trader != traderID {
			return nil, types.ErrNotOrderOwner
		}
		return ob.CancelOrder(orderID)
	}
	return nil, types.ErrOrderNotFound
}

// ExecuteOpeningAuction clears every pending auction bucket and hands the
// trades to the registered sink. Invoked by the phase transition handler,
// serialised with order submission by the venue mutex.
func (v *Venue) ExecuteOpeningAuction() {
	v.mu.Lock()
	results := v.batch.ExecuteBatch(v.books)
	v.mu.Unlock()

	total := 0
	for instrumentID, trades := range results {
		total += len(trades)
		if v.onAuctionTrades != nil {
			v.onAuctionTrades(instrumentID, trades)
		}
	}
	v.logger.Info("opening auction executed", "instruments", len(results), "trades", total)
}

// CancelAllOrders cancels every resting order across all books and drains
// any orders still bucketed for an auction that never ran.
func (v *Venue) CancelAllOrders() {
	v.mu.Lock()
	cancelled := make([]*types.Order, 0)
	for _, ob := range v.books {
		cancelled = append(cancelled, ob.CancelAll()...)
	}
	cancelled = append(cancelled, v.batch.CancelAll()...)
	v.mu.Unlock()

	v.logger.Info("all resting orders cancelled", "count", len(cancelled))
	if v.onCancelled != nil && len(cancelled) > 0 {
		v.onCancelled(cancelled)
	}
}

// Depth returns an aggregated depth snapshot for an instrument
func (v *Venue) Depth(symbol string, levels int) (bids, asks []book.DepthLevel, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ob, ok := v.books[symbol]
	if !ok {
		return nil, nil, types.ErrUnknownInstrument
	}
	bids, asks = ob.Depth(levels)
	return bids, asks, nil
}

// BestQuote returns the best bid and ask for an instrument
func (v *Venue) BestQuote(symbol string) (bid, ask math.LegacyDec, hasBid, hasAsk bool, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ob, ok := v.books[symbol]
	if !ok {
		return math.LegacyDec{}, math.LegacyDec{}, false, false, types.ErrUnknownInstrument
	}
	bid, _, hasBid = ob.BestBid()
	ask, _, hasAsk = ob.BestAsk()
	return bid, ask, hasBid, hasAsk, nil
}

// RecentTrades returns the most recent trades for an instrument
func (v *Venue) RecentTrades(symbol string, limit int) ([]*types.Trade, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ob, ok := v.books[symbol]
	if !ok {
		return nil, types.ErrUnknownInstrument
	}
	return ob.RecentTrades(limit), nil
}

// OpenOrders returns a team's resting orders across all instruments. The
// slice holds value copies taken under the venue mutex; the live orders keep
// being mutated by matching after this returns.
func (v *Venue) OpenOrders(teamID string) []types.Order {
	v.mu.Lock()
	defer v.mu.Unlock()

	orders := make([]types.Order, 0)
	for _, ob := range v.books {
		for _, o := range ob.OpenOrders(teamID) {
			orders = append(orders, *o)
		}
	}
	return orders
}
