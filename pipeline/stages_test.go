package pipeline

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"cosmossdk.io/log"
	"github.com/stretchr/testify/require"

	apitypes "github.com/openalpha/simex/api/types"
	"github.com/openalpha/simex/exchange/phase"
	"github.com/openalpha/simex/exchange/types"
	"github.com/openalpha/simex/exchange/venue"
	"github.com/openalpha/simex/risk"
)

// fakeFanout records every message the pipeline pushes towards WebSocket
type fakeFanout struct {
	mu       sync.Mutex
	messages []TeamMessage
}

func (f *fakeFanout) Send(teamID, msgType string, data interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, TeamMessage{TeamID: teamID, Type: msgType, Data: data})
	return nil
}

func (f *fakeFanout) Disconnect(teamID string) {}

func (f *fakeFanout) byType(teamID, msgType string) []TeamMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []TeamMessage
	for _, m := range f.messages {
		if m.TeamID == teamID && m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

// staticDirectory maps team ids to roles without a registry
type staticDirectory map[string]string

func (d staticDirectory) RoleOf(teamID string) (string, error) {
	role, ok := d[teamID]
	if !ok {
		return "", fmt.Errorf("unknown team %s", teamID)
	}
	return role, nil
}

type pipelineHarness struct {
	pipe      *Pipeline
	coord     *Coordinator
	queues    *Queues
	positions *PositionStore
	fanout    *fakeFanout
	venue     *venue.Venue
}

func newHarness(t *testing.T) *pipelineHarness {
	t.Helper()
	logger := log.NewNopLogger()

	// Wednesday noon inside an all-day continuous session.
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	phases := phase.NewManager(time.UTC, []phase.ScheduleEntry{{
		Days:  []time.Weekday{time.Wednesday},
		Start: 0,
		End:   24 * 60,
		State: phase.StateFor(phase.PhaseContinuous),
	}})

	v := venue.New(phases, logger).WithClock(clock)
	require.NoError(t, v.ListInstrument(&types.Instrument{Symbol: "SPX_4500_CALL"}))

	positions := NewPositionStore()
	roles := map[string][]risk.ConstraintConfig{
		"market_maker": {
			{Type: risk.ConstraintPositionLimit, ErrorCode: "MM_POS_LIMIT", MaxPosition: 50, Symmetric: true},
			{Type: risk.ConstraintOrderRate, ErrorCode: "MM_ORDER_RATE", MaxOrdersPerSecond: 100},
		},
		"hedge_fund": {
			{Type: risk.ConstraintPortfolioLimit, ErrorCode: "HF_PORTFOLIO_LIMIT", MaxTotalPosition: 200},
		},
	}
	universal := []risk.ConstraintConfig{
		{Type: risk.ConstraintTradingWindow, ErrorCode: "MARKET_CLOSED", AllowedPhases: []string{"pre_open", "continuous"}},
	}
	validator := risk.NewValidator(roles, universal, positions, v, phases, logger).WithClock(clock)

	fees := NewFeeCalculator(map[string]FeeSchedule{
		"market_maker": {MakerRebate: dec("0.01"), TakerFee: dec("-0.02")},
		"hedge_fund":   {MakerRebate: dec("0.00"), TakerFee: dec("-0.05")},
	})

	coord := NewCoordinator(CoordinatorConfig{DefaultTimeout: 2 * time.Second}, logger)
	queues := NewQueues(DefaultQueueConfig())
	fanout := &fakeFanout{}
	directory := staticDirectory{
		"TEAM_A":  "market_maker",
		"TEAM_B":  "hedge_fund",
		"TEAM_MM": "market_maker",
	}

	pipe := NewPipeline(queues, coord, validator, v, fees, positions, directory, fanout, logger)
	pipe.Start()
	t.Cleanup(func() {
		pipe.Stop()
		coord.Shutdown()
	})

	return &pipelineHarness{
		pipe:      pipe,
		coord:     coord,
		queues:    queues,
		positions: positions,
		fanout:    fanout,
		venue:     v,
	}
}

var orderSeq int

func (h *pipelineHarness) submit(t *testing.T, teamID, role string, side types.Side, price string, qty int64) *apitypes.ApiResponse {
	t.Helper()
	orderSeq++
	o, err := types.NewOrder(fmt.Sprintf("ORD-%d", orderSeq), teamID, "SPX_4500_CALL", side, types.OrderTypeLimit, dec(price), qty)
	require.NoError(t, err)

	id, err := h.coord.RegisterRequest(teamID)
	require.NoError(t, err)
	require.True(t, h.queues.TryEnqueueOrder(OrderEnvelope{
		Kind:       KindNewOrder,
		RequestID:  id,
		TeamID:     teamID,
		Role:       role,
		Order:      o,
		EnqueuedAt: time.Now(),
	}))
	return h.coord.WaitForCompletion(id, 2*time.Second)
}

func (h *pipelineHarness) cancel(t *testing.T, teamID, role, orderID string) *apitypes.ApiResponse {
	t.Helper()
	id, err := h.coord.RegisterRequest(teamID)
	require.NoError(t, err)
	require.True(t, h.queues.TryEnqueueOrder(OrderEnvelope{
		Kind:          KindCancelOrder,
		RequestID:     id,
		TeamID:        teamID,
		Role:          role,
		CancelOrderID: orderID,
		EnqueuedAt:    time.Now(),
	}))
	return h.coord.WaitForCompletion(id, 2*time.Second)
}

func TestPipelineMatchedOrders(t *testing.T) {
	h := newHarness(t)

	// Both callers get "new" back immediately; fills flow over WebSocket.
	resp := h.submit(t, "TEAM_A", "market_maker", types.SideBuy, "128.50", 10)
	require.True(t, resp.Success)
	require.Equal(t, "new", resp.Status)

	resp = h.submit(t, "TEAM_B", "hedge_fund", types.SideSell, "128.50", 10)
	require.True(t, resp.Success)
	require.Equal(t, "new", resp.Status)

	require.Eventually(t, func() bool {
		return h.positions.Get("TEAM_A", "SPX_4500_CALL") == 10 &&
			h.positions.Get("TEAM_B", "SPX_4500_CALL") == -10
	}, 2*time.Second, 10*time.Millisecond)

	// The maker's resting ack, then the taker's filled ack.
	require.Eventually(t, func() bool {
		return len(h.fanout.byType("TEAM_B", apitypes.MsgNewOrderAck)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	acks := h.fanout.byType("TEAM_A", apitypes.MsgNewOrderAck)
	require.Len(t, acks, 1)
	require.Equal(t, "new", acks[0].Data.(apitypes.OrderAck).Status)

	acks = h.fanout.byType("TEAM_B", apitypes.MsgNewOrderAck)
	require.Equal(t, "filled", acks[0].Data.(apitypes.OrderAck).Status)

	// One execution report per party, with role-specific fees.
	reportsA := h.fanout.byType("TEAM_A", apitypes.MsgExecutionReport)
	require.Len(t, reportsA, 1)
	reportA := reportsA[0].Data.(apitypes.ExecutionReport)
	require.Equal(t, "buy", reportA.Side)
	require.Equal(t, string(LiquidityMaker), reportA.LiquidityType)
	require.Equal(t, dec("0.10").String(), reportA.Fee)
	require.Equal(t, dec("128.50").String(), reportA.Price)
	require.Equal(t, int64(10), reportA.Quantity)

	reportsB := h.fanout.byType("TEAM_B", apitypes.MsgExecutionReport)
	require.Len(t, reportsB, 1)
	reportB := reportsB[0].Data.(apitypes.ExecutionReport)
	require.Equal(t, "sell", reportB.Side)
	require.Equal(t, string(LiquidityTaker), reportB.LiquidityType)
	require.Equal(t, dec("-0.50").String(), reportB.Fee)
	require.Equal(t, reportA.TradeID, reportB.TradeID)
}

func TestPipelineValidationReject(t *testing.T) {
	h := newHarness(t)

	// TEAM_MM already holds +45 against a symmetric limit of 50.
	h.positions.Update("TEAM_MM", "SPX_4500_CALL", 45)

	resp := h.submit(t, "TEAM_MM", "market_maker", types.SideBuy, "128.50", 10)
	require.False(t, resp.Success)
	require.Equal(t, "MM_POS_LIMIT", resp.ErrorCode)

	require.Eventually(t, func() bool {
		return len(h.fanout.byType("TEAM_MM", apitypes.MsgNewOrderReject)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	reject := h.fanout.byType("TEAM_MM", apitypes.MsgNewOrderReject)[0].Data.(apitypes.OrderReject)
	require.Equal(t, "MM_POS_LIMIT", reject.ErrorCode)

	// The order never reached the book.
	require.Empty(t, h.venue.OpenOrders("TEAM_MM"))
	require.Equal(t, int64(45), h.positions.Get("TEAM_MM", "SPX_4500_CALL"))
}

func TestPipelineCancelFlow(t *testing.T) {
	h := newHarness(t)

	resp := h.submit(t, "TEAM_A", "market_maker", types.SideSell, "129.00", 12)
	require.True(t, resp.Success)
	orderID := resp.OrderID

	require.Eventually(t, func() bool {
		return len(h.venue.OpenOrders("TEAM_A")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Another team cannot cancel it, and the rejection does not say why.
	resp = h.cancel(t, "TEAM_B", "hedge_fund", orderID)
	require.False(t, resp.Success)
	require.Equal(t, risk.CodeCancelRejected, resp.ErrorCode)
	require.Equal(t, "order cannot be cancelled", resp.ErrorMessage)
	require.Len(t, h.venue.OpenOrders("TEAM_A"), 1, "order still resting")

	// The owner can.
	resp = h.cancel(t, "TEAM_A", "market_maker", orderID)
	require.True(t, resp.Success)
	require.Equal(t, "cancelled", resp.Status)
	require.Empty(t, h.venue.OpenOrders("TEAM_A"))

	require.Eventually(t, func() bool {
		return len(h.fanout.byType("TEAM_A", apitypes.MsgCancelAck)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	ack := h.fanout.byType("TEAM_A", apitypes.MsgCancelAck)[0].Data.(apitypes.CancelAck)
	require.Equal(t, orderID, ack.OrderID)
	require.Equal(t, int64(12), ack.CancelledQty)
}

func TestPipelineSelfTradeLeavesPositionsFlat(t *testing.T) {
	h := newHarness(t)

	resp := h.submit(t, "TEAM_A", "market_maker", types.SideSell, "100.00", 10)
	require.True(t, resp.Success)
	resp = h.submit(t, "TEAM_A", "market_maker", types.SideBuy, "100.00", 10)
	require.True(t, resp.Success)

	// Both sides of the self-trade still get their execution reports.
	require.Eventually(t, func() bool {
		return len(h.fanout.byType("TEAM_A", apitypes.MsgExecutionReport)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, int64(0), h.positions.Get("TEAM_A", "SPX_4500_CALL"))
}

func TestPipelineAuctionTrades(t *testing.T) {
	h := newHarness(t)

	buy, err := types.NewOrder("AUC-B", "TEAM_A", "SPX_4500_CALL", types.SideBuy, types.OrderTypeLimit, dec("100.00"), 5)
	require.NoError(t, err)
	sell, err := types.NewOrder("AUC-S", "TEAM_B", "SPX_4500_CALL", types.SideSell, types.OrderTypeLimit, dec("100.00"), 5)
	require.NoError(t, err)
	buy.Seq, sell.Seq = 1, 2

	trade := types.NewTrade("TRD-AUC", sell, buy, dec("100.00"), 5)
	h.pipe.PublishAuctionTrades([]*types.Trade{trade})

	require.Eventually(t, func() bool {
		return h.positions.Get("TEAM_A", "SPX_4500_CALL") == 5 &&
			h.positions.Get("TEAM_B", "SPX_4500_CALL") == -5
	}, 2*time.Second, 10*time.Millisecond)

	require.Len(t, h.fanout.byType("TEAM_A", apitypes.MsgExecutionReport), 1)
	require.Len(t, h.fanout.byType("TEAM_B", apitypes.MsgExecutionReport), 1)
}

func TestPipelineCancelledOrderBroadcast(t *testing.T) {
	h := newHarness(t)

	o, err := types.NewOrder("ORD-EOD", "TEAM_A", "SPX_4500_CALL", types.SideBuy, types.OrderTypeLimit, dec("99.00"), 7)
	require.NoError(t, err)

	h.pipe.PublishCancelledOrders([]*types.Order{o})

	require.Eventually(t, func() bool {
		return len(h.fanout.byType("TEAM_A", apitypes.MsgCancelAck)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	ack := h.fanout.byType("TEAM_A", apitypes.MsgCancelAck)[0].Data.(apitypes.CancelAck)
	require.Equal(t, "ORD-EOD", ack.OrderID)
	require.Equal(t, int64(7), ack.CancelledQty)
}

func TestSnapshotFor(t *testing.T) {
	h := newHarness(t)

	h.positions.Update("TEAM_A", "SPX_4500_CALL", 10)
	snap := h.pipe.SnapshotFor("TEAM_A")
	require.Equal(t, "TEAM_A", snap.TeamID)
	require.Equal(t, map[string]int64{"SPX_4500_CALL": 10}, snap.Positions)
}
