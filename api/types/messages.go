package types

// WebSocket message types pushed to team connections
const (
	MsgNewOrderAck      = "new_order_ack"
	MsgNewOrderReject   = "new_order_reject"
	MsgExecutionReport  = "execution_report"
	MsgCancelAck        = "cancel_ack"
	MsgCancelReject     = "cancel_reject"
	MsgPositionSnapshot = "position_snapshot"
	MsgMarketData       = "market_data"
	MsgSignal           = "signal"
	MsgEvent            = "event"
	MsgConnectionStatus = "connection_status"
)

// WSEnvelope wraps every outbound WebSocket message. Seq increases strictly
// per connection; Timestamp is ISO-8601.
type WSEnvelope struct {
	Seq       uint64      `json:"seq"`
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// ExecutionReport is the per-party fill notification. Fee follows the sign
// convention of the fee schedule: positive is credited to the team.
type ExecutionReport struct {
	TradeID       string `json:"trade_id"`
	OrderID       string `json:"order_id"`
	InstrumentID  string `json:"instrument_id"`
	Side          string `json:"side"`
	Price         string `json:"price"`
	Quantity      int64  `json:"quantity"`
	LiquidityType string `json:"liquidity_type"`
	Fee           string `json:"fee"`
	ExecutedAt    int64  `json:"executed_at"`
}

// OrderAck reports the venue's outcome for a submitted order
type OrderAck struct {
	OrderID       string `json:"order_id"`
	ClientOrderID string `json:"client_order_id,omitempty"`
	InstrumentID  string `json:"instrument_id"`
	Status        string `json:"status"`
	FilledQty     int64  `json:"filled_qty"`
	RemainingQty  int64  `json:"remaining_qty"`
}

// OrderReject reports a validation rejection
type OrderReject struct {
	OrderID      string `json:"order_id,omitempty"`
	InstrumentID string `json:"instrument_id,omitempty"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// CancelAck reports a successful cancellation
type CancelAck struct {
	OrderID      string `json:"order_id"`
	InstrumentID string `json:"instrument_id"`
	CancelledQty int64  `json:"cancelled_qty"`
}

// CancelReject reports a failed cancellation
type CancelReject struct {
	OrderID      string `json:"order_id"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}
