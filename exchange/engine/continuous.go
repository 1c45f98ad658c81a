package engine

import (
	"cosmossdk.io/log"
	sdkerrors "cosmossdk.io/errors"

	"github.com/openalpha/simex/exchange/book"
	"github.com/openalpha/simex/exchange/types"
)

// Error codes surfaced on OrderResults instead of propagating through the
// pipeline.
const (
	CodeUnknownInstrument = "UNKNOWN_INSTRUMENT"
	CodeDuplicateOrder    = "DUPLICATE_ORDER"
	CodeInvalidOrder      = "INVALID_ORDER"
	CodeExchangeError     = "EXCHANGE_ERROR"
)

// classify maps a book/venue error to a result error code
func classify(err error) string {
	switch {
	case sdkerrors.IsOf(err, types.ErrUnknownInstrument, types.ErrInstrumentMismatch):
		return CodeUnknownInstrument
	case sdkerrors.IsOf(err, types.ErrDuplicateOrder):
		return CodeDuplicateOrder
	case sdkerrors.IsOf(err, types.ErrInvalidPrice, types.ErrInvalidQuantity,
		types.ErrInvalidSide, types.ErrInvalidOrderType, types.ErrMarketOrderInBatch):
		return CodeInvalidOrder
	default:
		return CodeExchangeError
	}
}

// Continuous matches incoming orders against the book immediately.
type Continuous struct {
	logger log.Logger
}

// NewContinuous creates a continuous matching engine
func NewContinuous(logger log.Logger) *Continuous {
	return &Continuous{logger: logger.With("engine", "continuous")}
}

// Submit adds the order to the book, matching on the way in. Book errors are
// returned inside the result rather than raised.
func (e *Continuous) Submit(order *types.Order, ob *book.OrderBook) *types.OrderResult {
	trades, err := ob.AddOrder(order)
	if err != nil {
		e.logger.Error("order rejected by book", "order_id", order.OrderID, "err", err)
		return types.ErrorResult(order, classify(err), err.Error())
	}

	res := types.NewOrderResult(order, trades)
	// A market order never rests: any unmatched remainder was dropped.
	if order.OrderType == types.OrderTypeMarket && order.Status == types.OrderStatusCancelled && len(trades) == 0 {
		res.Status = types.StatusCancelled
	}
	e.logger.Debug("order matched",
		"order_id", order.OrderID, "status", string(res.Status), "fills", len(trades))
	return res
}
