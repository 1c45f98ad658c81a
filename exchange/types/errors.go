package types

import (
	"cosmossdk.io/errors"
)

// Module error codes
var (
	ErrOrderNotFound       = errors.Register("exchange", 1, "order not found")
	ErrInvalidPrice        = errors.Register("exchange", 2, "invalid price")
	ErrInvalidQuantity     = errors.Register("exchange", 3, "invalid quantity")
	ErrInvalidSide         = errors.Register("exchange", 4, "invalid order side")
	ErrInvalidOrderType    = errors.Register("exchange", 5, "invalid order type")
	ErrUnknownInstrument   = errors.Register("exchange", 6, "unknown instrument")
	ErrDuplicateInstrument = errors.Register("exchange", 7, "instrument already listed")
	ErrDuplicateOrder      = errors.Register("exchange", 8, "duplicate order id")
	ErrInstrumentMismatch  = errors.Register("exchange", 9, "order instrument does not match book")
	ErrNotOrderOwner       = errors.Register("exchange", 10, "trader does not own order")
	ErrSubmissionClosed    = errors.Register("exchange", 11, "order submission not allowed in current phase")
	ErrCancellationClosed  = errors.Register("exchange", 12, "order cancellation not allowed in current phase")
	ErrMarketOrderInBatch  = errors.Register("exchange", 13, "market orders are not accepted during batch auctions")
	ErrOrderNotActive      = errors.Register("exchange", 14, "order is not active")
)
