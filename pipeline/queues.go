package pipeline

import (
	"time"

	"github.com/openalpha/simex/exchange/types"
)

// EnvelopeKind discriminates pipeline messages. KindShutdown is the sentinel
// each stage forwards downstream before exiting.
type EnvelopeKind int

const (
	KindNewOrder EnvelopeKind = iota
	KindCancelOrder
	KindShutdown
)

// OrderEnvelope enters the pipeline from the HTTP handlers
type OrderEnvelope struct {
	Kind      EnvelopeKind
	RequestID string
	TeamID    string
	Role      string

	// new_order
	Order *types.Order

	// cancel_order
	CancelOrderID string

	EnqueuedAt time.Time
}

// MatchRequest is a validated order headed for the venue
type MatchRequest struct {
	Kind      EnvelopeKind
	RequestID string
	TeamID    string
	Role      string
	Order     *types.Order
}

// TradeMessage carries venue results through fee assessment into position
// tracking. Order and result are nil for auction trades, which have no
// single submitting party.
type TradeMessage struct {
	Kind   EnvelopeKind
	TeamID string
	Role   string
	Order  *types.Order
	Result *types.OrderResult
	Trades []*types.Trade
}

// TeamMessage is an outbound WebSocket notification for one team
type TeamMessage struct {
	Kind   EnvelopeKind
	TeamID string
	Type   string
	Data   interface{}
}

// Fanout delivers team messages to live connections. Implemented by the
// WebSocket hub; delivery is best-effort.
type Fanout interface {
	Send(teamID, msgType string, data interface{}) error
	Disconnect(teamID string)
}

// QueueConfig sizes the inter-stage channels
type QueueConfig struct {
	OrderQueueSize    int
	MatchQueueSize    int
	TradeQueueSize    int
	PositionQueueSize int
	WSQueueSize       int
}

// DefaultQueueConfig returns the stock sizes
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		OrderQueueSize:    1000,
		MatchQueueSize:    1000,
		TradeQueueSize:    2000,
		PositionQueueSize: 2000,
		WSQueueSize:       4000,
	}
}

// Queues holds the bounded channels connecting the five stages
type Queues struct {
	Orders    chan OrderEnvelope
	Matches   chan MatchRequest
	Trades    chan TradeMessage
	Positions chan TradeMessage
	WS        chan TeamMessage
}

// NewQueues allocates the stage channels
func NewQueues(cfg QueueConfig) *Queues {
	if cfg.OrderQueueSize <= 0 {
		cfg = DefaultQueueConfig()
	}
	return &Queues{
		Orders:    make(chan OrderEnvelope, cfg.OrderQueueSize),
		Matches:   make(chan MatchRequest, cfg.MatchQueueSize),
		Trades:    make(chan TradeMessage, cfg.TradeQueueSize),
		Positions: make(chan TradeMessage, cfg.PositionQueueSize),
		WS:        make(chan TeamMessage, cfg.WSQueueSize),
	}
}

// TryEnqueueOrder is the handler-side entry point. Returns false when the
// order queue is full; the caller maps that to an overload response.
func (q *Queues) TryEnqueueOrder(env OrderEnvelope) bool {
	select {
	case q.Orders <- env:
		return true
	default:
		return false
	}
}

// EnqueueWS queues a team notification, dropping it when the WS queue is
// full. Notifications are best-effort.
func (q *Queues) EnqueueWS(msg TeamMessage) bool {
	select {
	case q.WS <- msg:
		return true
	default:
		return false
	}
}
