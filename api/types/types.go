package types

import (
	"time"
)

// ApiResponse is the envelope every order-path HTTP response uses. It is
// always well-formed: failures set Success=false and carry an error code.
type ApiResponse struct {
	Success      bool        `json:"success"`
	OrderID      string      `json:"order_id,omitempty"`
	Status       string      `json:"status,omitempty"`
	ErrorCode    string      `json:"error_code,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Data         interface{} `json:"data,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// SuccessResponse builds a response for an accepted order
func SuccessResponse(orderID, status string) *ApiResponse {
	return &ApiResponse{
		Success:   true,
		OrderID:   orderID,
		Status:    status,
		Timestamp: time.Now(),
	}
}

// ErrorResponse builds a failure response
func ErrorResponse(code, message string) *ApiResponse {
	return &ApiResponse{
		Success:      false,
		ErrorCode:    code,
		ErrorMessage: message,
		Timestamp:    time.Now(),
	}
}

// RegisterTeamRequest registers a trading team
type RegisterTeamRequest struct {
	TeamName string `json:"team_name"`
	Role     string `json:"role"`
}

// SubmitOrderRequest places a new order
type SubmitOrderRequest struct {
	InstrumentID  string `json:"instrument_id"`
	OrderType     string `json:"order_type"`
	Side          string `json:"side"`
	Quantity      int64  `json:"quantity"`
	Price         string `json:"price,omitempty"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

// OrderView is an open order in API responses
type OrderView struct {
	OrderID       string `json:"order_id"`
	ClientOrderID string `json:"client_order_id,omitempty"`
	InstrumentID  string `json:"instrument_id"`
	Side          string `json:"side"`
	OrderType     string `json:"order_type"`
	Price         string `json:"price,omitempty"`
	Quantity      int64  `json:"quantity"`
	FilledQty     int64  `json:"filled_qty"`
	RemainingQty  int64  `json:"remaining_qty"`
	Status        string `json:"status"`
	SubmittedAt   int64  `json:"submitted_at"`
}

// ListOrdersResponse lists a team's open orders
type ListOrdersResponse struct {
	Orders []*OrderView `json:"orders"`
}

// PositionsResponse is a team's position snapshot
type PositionsResponse struct {
	TeamID      string           `json:"team_id"`
	Positions   map[string]int64 `json:"positions"`
	LastUpdated time.Time        `json:"last_updated"`
}

// InstrumentView is a listed instrument in API responses
type InstrumentView struct {
	Symbol     string `json:"symbol"`
	Underlying string `json:"underlying,omitempty"`
	OptionType string `json:"option_type,omitempty"`
	Strike     string `json:"strike,omitempty"`
	Expiry     string `json:"expiry,omitempty"`
}

// DepthLevelView is one aggregated price level of a book snapshot
type DepthLevelView struct {
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
}

// DepthResponse is an order book snapshot
type DepthResponse struct {
	InstrumentID string           `json:"instrument_id"`
	Bids         []DepthLevelView `json:"bids"`
	Asks         []DepthLevelView `json:"asks"`
	Timestamp    time.Time        `json:"timestamp"`
}

// TradeView is a public trade print, counterparties omitted
type TradeView struct {
	TradeID      string    `json:"trade_id"`
	InstrumentID string    `json:"instrument_id"`
	Price        string    `json:"price"`
	Quantity     int64     `json:"quantity"`
	ExecutedAt   time.Time `json:"executed_at"`
}
