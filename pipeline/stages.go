package pipeline

import (
	"sync"
	"time"

	"cosmossdk.io/log"

	apitypes "github.com/openalpha/simex/api/types"
	"github.com/openalpha/simex/exchange/types"
	"github.com/openalpha/simex/metrics"
	"github.com/openalpha/simex/risk"
)

// MatchVenue is the slice of the exchange venue the matcher stage uses
type MatchVenue interface {
	SubmitOrder(order *types.Order) *types.OrderResult
}

// TeamDirectory resolves a team's role for fee lookups
type TeamDirectory interface {
	RoleOf(teamID string) (string, error)
}

// Pipeline runs the five stage workers over the bounded queues. Orders flow
// validator -> matcher -> trade publisher -> position tracker; every stage
// may additionally fan out WebSocket messages to the publisher.
type Pipeline struct {
	queues      *Queues
	coordinator *Coordinator
	validator   *risk.Validator
	venue       MatchVenue
	fees        *FeeCalculator
	positions   *PositionStore
	directory   TeamDirectory
	fanout      Fanout
	logger      log.Logger

	stageWG     sync.WaitGroup
	wsWG        sync.WaitGroup
	stopSampler chan struct{}
	started     bool
}

// NewPipeline wires the stages together. Start launches the workers.
func NewPipeline(
	queues *Queues,
	coordinator *Coordinator,
	validator *risk.Validator,
	venue MatchVenue,
	fees *FeeCalculator,
	positions *PositionStore,
	directory TeamDirectory,
	fanout Fanout,
	logger log.Logger,
) *Pipeline {
	return &Pipeline{
		queues:      queues,
		coordinator: coordinator,
		validator:   validator,
		venue:       venue,
		fees:        fees,
		positions:   positions,
		directory:   directory,
		fanout:      fanout,
		logger:      logger.With("component", "pipeline"),
	}
}

// Queues exposes the stage channels to producers (HTTP handlers, venue
// auction callback).
func (p *Pipeline) Queues() *Queues {
	return p.queues
}

// Positions exposes the position store to read-side consumers
func (p *Pipeline) Positions() *PositionStore {
	return p.positions
}

// Start launches the five workers
func (p *Pipeline) Start() {
	if p.started {
		return
	}
	p.started = true

	p.stageWG.Add(4)
	go p.validatorStage()
	go p.matcherStage()
	go p.tradePublisherStage()
	go p.positionTrackerStage()

	p.wsWG.Add(1)
	go p.wsPublisherStage()

	p.stopSampler = make(chan struct{})
	go p.sampleQueueDepths()

	p.logger.Info("pipeline started")
}

// sampleQueueDepths exports queue occupancy once a second
func (p *Pipeline) sampleQueueDepths() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c := metrics.GetCollector()
			c.SetQueueDepth("orders", len(p.queues.Orders))
			c.SetQueueDepth("matches", len(p.queues.Matches))
			c.SetQueueDepth("trades", len(p.queues.Trades))
			c.SetQueueDepth("positions", len(p.queues.Positions))
			c.SetQueueDepth("ws", len(p.queues.WS))
		case <-p.stopSampler:
			return
		}
	}
}

// Stop drains the pipeline: a sentinel cascades through the four order
// stages, then the WS publisher is stopped once nothing can feed it.
func (p *Pipeline) Stop() {
	if !p.started {
		return
	}
	close(p.stopSampler)

	p.queues.Orders <- OrderEnvelope{Kind: KindShutdown}
	p.stageWG.Wait()

	p.queues.WS <- TeamMessage{Kind: KindShutdown}
	p.wsWG.Wait()

	p.started = false
	p.logger.Info("pipeline stopped")
}

// guard runs one message handler, catching panics so a bad message never
// kills a stage.
func (p *Pipeline) guard(stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("stage handler panicked", "stage", stage, "panic", r)
		}
	}()
	fn()
}

func (p *Pipeline) validatorStage() {
	defer p.stageWG.Done()

	for env := range p.queues.Orders {
		if env.Kind == KindShutdown {
			p.queues.Matches <- MatchRequest{Kind: KindShutdown}
			return
		}
		env := env
		p.guard("validator", func() { p.handleOrderEnvelope(env) })
	}
}

func (p *Pipeline) handleOrderEnvelope(env OrderEnvelope) {
	p.coordinator.UpdateStatus(env.RequestID, StatusValidating)

	if !env.EnqueuedAt.IsZero() {
		kind := "new_order"
		if env.Kind == KindCancelOrder {
			kind = "cancel_order"
		}
		defer func(start time.Time) {
			metrics.GetCollector().OrderLatency.WithLabelValues(kind).
				Observe(float64(time.Since(start).Microseconds()) / 1000.0)
		}(env.EnqueuedAt)
	}

	switch env.Kind {
	case KindNewOrder:
		if rej := p.validator.ValidateOrder(env.Order, env.TeamID, env.Role); rej != nil {
			p.queues.EnqueueWS(TeamMessage{
				TeamID: env.TeamID,
				Type:   apitypes.MsgNewOrderReject,
				Data: apitypes.OrderReject{
					OrderID:      env.Order.OrderID,
					InstrumentID: env.Order.InstrumentID,
					ErrorCode:    rej.Code,
					ErrorMessage: rej.Message,
				},
			})
			p.coordinator.NotifyCompletion(env.RequestID, apitypes.ErrorResponse(rej.Code, rej.Message))
			metrics.GetCollector().RecordReject(env.Role, rej.Code)
			return
		}

		p.queues.Matches <- MatchRequest{
			Kind:      KindNewOrder,
			RequestID: env.RequestID,
			TeamID:    env.TeamID,
			Role:      env.Role,
			Order:     env.Order,
		}
		p.validator.RecordAccepted(env.TeamID)

		// The caller is released here: the HTTP response reports "new"
		// while matching proceeds; fills arrive over WebSocket.
		resp := apitypes.SuccessResponse(env.Order.OrderID, string(types.StatusNew))
		p.coordinator.NotifyCompletion(env.RequestID, resp)

	case KindCancelOrder:
		order, rej := p.validator.ValidateCancel(env.CancelOrderID, env.TeamID)
		if rej != nil {
			p.queues.EnqueueWS(TeamMessage{
				TeamID: env.TeamID,
				Type:   apitypes.MsgCancelReject,
				Data: apitypes.CancelReject{
					OrderID:      env.CancelOrderID,
					ErrorCode:    rej.Code,
					ErrorMessage: rej.Message,
				},
			})
			p.coordinator.NotifyCompletion(env.RequestID, apitypes.ErrorResponse(rej.Code, rej.Message))
			return
		}

		p.queues.EnqueueWS(TeamMessage{
			TeamID: env.TeamID,
			Type:   apitypes.MsgCancelAck,
			Data: apitypes.CancelAck{
				OrderID:      order.OrderID,
				InstrumentID: order.InstrumentID,
				CancelledQty: order.RemainingQty(),
			},
		})
		p.coordinator.NotifyCompletion(env.RequestID, apitypes.SuccessResponse(order.OrderID, string(types.StatusCancelled)))
	}
}

func (p *Pipeline) matcherStage() {
	defer p.stageWG.Done()

	for req := range p.queues.Matches {
		if req.Kind == KindShutdown {
			p.queues.Trades <- TradeMessage{Kind: KindShutdown}
			return
		}
		req := req
		p.guard("matcher", func() { p.handleMatchRequest(req) })
	}
}

func (p *Pipeline) handleMatchRequest(req MatchRequest) {
	p.coordinator.UpdateStatus(req.RequestID, StatusMatching)

	result := p.venue.SubmitOrder(req.Order)
	metrics.GetCollector().RecordOrder(
		req.Order.InstrumentID, req.Order.Side.String(), req.Order.OrderType.String(), string(result.Status))

	switch result.Status {
	case types.StatusNew, types.StatusPartiallyFilled, types.StatusFilled:
		p.queues.EnqueueWS(TeamMessage{
			TeamID: req.TeamID,
			Type:   apitypes.MsgNewOrderAck,
			Data: apitypes.OrderAck{
				OrderID:       req.Order.OrderID,
				ClientOrderID: req.Order.ClientOrderID,
				InstrumentID:  req.Order.InstrumentID,
				Status:        string(result.Status),
				FilledQty:     req.Order.FilledQty,
				RemainingQty:  result.RemainingQty,
			},
		})
	case types.StatusError:
		// The validator stage already answered the HTTP caller, so a venue
		// failure here can only be logged.
		p.logger.Error("venue rejected validated order",
			"order_id", req.Order.OrderID, "team_id", req.TeamID,
			"code", result.ErrorCode, "message", result.ErrorMessage)
	}

	p.queues.Trades <- TradeMessage{
		Kind:   KindNewOrder,
		TeamID: req.TeamID,
		Role:   req.Role,
		Order:  req.Order,
		Result: result,
		Trades: result.Fills,
	}
}

func (p *Pipeline) tradePublisherStage() {
	defer p.stageWG.Done()

	for msg := range p.queues.Trades {
		if msg.Kind == KindShutdown {
			p.queues.Positions <- TradeMessage{Kind: KindShutdown}
			return
		}
		msg := msg
		p.guard("trade_publisher", func() { p.handleTrades(msg) })
	}
}

// handleTrades computes side-specific fees and emits one execution report
// per party per trade, then forwards the message for position tracking.
func (p *Pipeline) handleTrades(msg TradeMessage) {
	mode := "continuous"
	if msg.Order == nil {
		mode = "batch"
	}
	for _, trade := range msg.Trades {
		metrics.GetCollector().RecordTrade(trade.InstrumentID, mode, trade.Quantity)
		p.publishExecutionReport(trade, trade.Buyer, trade.BuyOrderID, types.SideBuy)
		p.publishExecutionReport(trade, trade.Seller, trade.SellOrderID, types.SideSell)
	}
	p.queues.Positions <- msg
}

func (p *Pipeline) publishExecutionReport(trade *types.Trade, teamID, orderID string, side types.Side) {
	role, err := p.directory.RoleOf(teamID)
	if err != nil {
		p.logger.Error("no role for trade party", "team_id", teamID, "trade_id", trade.TradeID, "err", err)
		return
	}

	liquidity := DetermineLiquidity(trade.AggressorSide, side)
	fee, err := p.fees.Calculate(trade.Quantity, role, liquidity)
	if err != nil {
		p.logger.Error("fee calculation failed", "team_id", teamID, "trade_id", trade.TradeID, "err", err)
		return
	}

	p.queues.EnqueueWS(TeamMessage{
		TeamID: teamID,
		Type:   apitypes.MsgExecutionReport,
		Data: apitypes.ExecutionReport{
			TradeID:       trade.TradeID,
			OrderID:       orderID,
			InstrumentID:  trade.InstrumentID,
			Side:          side.String(),
			Price:         trade.Price.String(),
			Quantity:      trade.Quantity,
			LiquidityType: string(liquidity),
			Fee:           fee.String(),
			ExecutedAt:    trade.ExecutedAt.UnixMilli(),
		},
	})
}

func (p *Pipeline) positionTrackerStage() {
	defer p.stageWG.Done()

	for msg := range p.queues.Positions {
		if msg.Kind == KindShutdown {
			return
		}
		msg := msg
		p.guard("position_tracker", func() { p.applyPositions(msg) })
	}
}

// applyPositions applies +q to the buyer and -q to the seller of every
// trade. Self-trades net to zero and are skipped.
func (p *Pipeline) applyPositions(msg TradeMessage) {
	for _, trade := range msg.Trades {
		if trade.IsSelfTrade() {
			continue
		}
		p.positions.Update(trade.Buyer, trade.InstrumentID, trade.Quantity)
		p.positions.Update(trade.Seller, trade.InstrumentID, -trade.Quantity)
	}
}

func (p *Pipeline) wsPublisherStage() {
	defer p.wsWG.Done()

	for msg := range p.queues.WS {
		if msg.Kind == KindShutdown {
			return
		}
		if err := p.fanout.Send(msg.TeamID, msg.Type, msg.Data); err != nil {
			p.logger.Debug("ws send failed, disconnecting team", "team_id", msg.TeamID, "err", err)
			p.fanout.Disconnect(msg.TeamID)
		}
	}
}

// PublishAuctionTrades feeds opening-auction trades into the trade queue.
// Installed as the venue's auction trade handler; these trades have no
// single submitting order.
func (p *Pipeline) PublishAuctionTrades(trades []*types.Trade) {
	if len(trades) == 0 {
		return
	}
	p.queues.Trades <- TradeMessage{
		Kind:   KindNewOrder,
		Trades: trades,
	}
}

// PublishCancelledOrders notifies owners when the venue bulk-cancels at
// close.
func (p *Pipeline) PublishCancelledOrders(orders []*types.Order) {
	for _, o := range orders {
		p.queues.EnqueueWS(TeamMessage{
			TeamID: o.Trader,
			Type:   apitypes.MsgCancelAck,
			Data: apitypes.CancelAck{
				OrderID:      o.OrderID,
				InstrumentID: o.InstrumentID,
				CancelledQty: o.RemainingQty(),
			},
		})
	}
}

// SnapshotFor builds the position snapshot sent on WebSocket connect
func (p *Pipeline) SnapshotFor(teamID string) apitypes.PositionsResponse {
	return apitypes.PositionsResponse{
		TeamID:      teamID,
		Positions:   p.positions.GetAll(teamID),
		LastUpdated: time.Now(),
	}
}
