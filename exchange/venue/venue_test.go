package venue

import (
	"testing"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/simex/exchange/phase"
	"github.com/openalpha/simex/exchange/types"
)

func dec(s string) math.LegacyDec {
	return math.LegacyMustNewDecFromStr(s)
}

// Wednesday noon, inside the all-day schedule entries below
var testNow = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func venueInPhase(t *testing.T, pt phase.Type) *Venue {
	t.Helper()
	var entries []phase.ScheduleEntry
	if pt != phase.PhaseClosed {
		entries = []phase.ScheduleEntry{{
			Days:  []time.Weekday{time.Wednesday},
			Start: 0,
			End:   24 * 60,
			State: phase.StateFor(pt),
		}}
	}
	v := New(phase.NewManager(time.UTC, entries), log.NewNopLogger()).
		WithClock(func() time.Time { return testNow })
	require.NoError(t, v.ListInstrument(&types.Instrument{Symbol: "SPX_4500_CALL"}))
	return v
}

func limit(t *testing.T, id, trader string, side types.Side, price string, qty int64) *types.Order {
	t.Helper()
	o, err := types.NewOrder(id, trader, "SPX_4500_CALL", side, types.OrderTypeLimit, dec(price), qty)
	require.NoError(t, err)
	return o
}

func TestListInstrument(t *testing.T) {
	v := venueInPhase(t, phase.PhaseContinuous)

	err := v.ListInstrument(&types.Instrument{Symbol: "SPX_4500_CALL"})
	require.ErrorIs(t, err, types.ErrDuplicateInstrument)

	require.NoError(t, v.ListInstrument(&types.Instrument{Symbol: "SPX_4500_PUT"}))
	require.Len(t, v.Instruments(), 2)

	_, ok := v.Instrument("SPX_4500_PUT")
	require.True(t, ok)
	_, ok = v.Instrument("SPX_9999_PUT")
	require.False(t, ok)
}

func TestSubmitClosedPhase(t *testing.T) {
	v := venueInPhase(t, phase.PhaseClosed)

	res := v.SubmitOrder(limit(t, "O1", "TEAM_A", types.SideBuy, "100.00", 10))
	require.Equal(t, types.StatusError, res.Status)
	require.Equal(t, CodeSubmissionClosed, res.ErrorCode)
}

func TestSubmitUnknownInstrument(t *testing.T) {
	v := venueInPhase(t, phase.PhaseContinuous)

	o, err := types.NewOrder("O1", "TEAM_A", "SPX_9999_PUT", types.SideBuy, types.OrderTypeLimit, dec("100.00"), 10)
	require.NoError(t, err)

	res := v.SubmitOrder(o)
	require.Equal(t, types.StatusError, res.Status)
	require.Equal(t, "UNKNOWN_INSTRUMENT", res.ErrorCode)
}

func TestSubmitAssignsSequence(t *testing.T) {
	v := venueInPhase(t, phase.PhaseContinuous)

	o1 := limit(t, "O1", "TEAM_A", types.SideBuy, "99.00", 10)
	o2 := limit(t, "O2", "TEAM_A", types.SideBuy, "98.00", 10)
	v.SubmitOrder(o1)
	v.SubmitOrder(o2)

	require.NotZero(t, o1.Seq)
	require.Greater(t, o2.Seq, o1.Seq)
}

func TestContinuousRouting(t *testing.T) {
	v := venueInPhase(t, phase.PhaseContinuous)

	res := v.SubmitOrder(limit(t, "O1", "TEAM_A", types.SideBuy, "128.50", 10))
	require.Equal(t, types.StatusNew, res.Status)

	res = v.SubmitOrder(limit(t, "O2", "TEAM_B", types.SideSell, "128.50", 10))
	require.Equal(t, types.StatusFilled, res.Status)
	require.Len(t, res.Fills, 1)

	trades, err := v.RecentTrades("SPX_4500_CALL", 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
}

func TestPreOpenRoutesToBatch(t *testing.T) {
	v := venueInPhase(t, phase.PhasePreOpen)

	res := v.SubmitOrder(limit(t, "O1", "TEAM_A", types.SideBuy, "102.00", 10))
	require.Equal(t, types.StatusPendingNew, res.Status)
	res = v.SubmitOrder(limit(t, "O2", "TEAM_B", types.SideSell, "98.00", 10))
	require.Equal(t, types.StatusPendingNew, res.Status)

	var got []*types.Trade
	v.SetAuctionTradeHandler(func(instrumentID string, trades []*types.Trade) {
		require.Equal(t, "SPX_4500_CALL", instrumentID)
		got = append(got, trades...)
	})

	v.ExecuteOpeningAuction()
	require.Len(t, got, 1)
	require.True(t, got[0].Price.Equal(dec("100.00")))
	require.Equal(t, int64(10), got[0].Quantity)
}

func TestCancelOwnership(t *testing.T) {
	v := venueInPhase(t, phase.PhaseContinuous)

	res := v.SubmitOrder(limit(t, "X", "TEAM_A", types.SideSell, "129.00", 12))
	require.Equal(t, types.StatusNew, res.Status)

	_, err := v.CancelOrder("X", "TEAM_B")
	require.ErrorIs(t, err, types.ErrNotOrderOwner)
	require.Len(t, v.OpenOrders("TEAM_A"), 1, "order X still resting")

	_, err = v.CancelOrder("Y", "TEAM_A")
	require.ErrorIs(t, err, types.ErrOrderNotFound)

	order, err := v.CancelOrder("X", "TEAM_A")
	require.NoError(t, err)
	require.Equal(t, types.OrderStatusCancelled, order.Status)
	require.Empty(t, v.OpenOrders("TEAM_A"))
}

func TestCancelClosedPhase(t *testing.T) {
	v := venueInPhase(t, phase.PhaseClosed)

	_, err := v.CancelOrder("X", "TEAM_A")
	require.ErrorIs(t, err, types.ErrCancellationClosed)
}

func TestCancelAllOrders(t *testing.T) {
	v := venueInPhase(t, phase.PhaseContinuous)
	require.NoError(t, v.ListInstrument(&types.Instrument{Symbol: "SPX_4500_PUT"}))

	v.SubmitOrder(limit(t, "O1", "TEAM_A", types.SideBuy, "99.00", 5))
	put, err := types.NewOrder("O2", "TEAM_B", "SPX_4500_PUT", types.SideSell, types.OrderTypeLimit, dec("101.00"), 5)
	require.NoError(t, err)
	v.SubmitOrder(put)

	var cancelled []*types.Order
	v.SetCancelAllHandler(func(orders []*types.Order) { cancelled = orders })

	v.CancelAllOrders()
	require.Len(t, cancelled, 2)
	require.Empty(t, v.OpenOrders(""))
}

func TestOpenOrdersReturnsSnapshots(t *testing.T) {
	v := venueInPhase(t, phase.PhaseContinuous)

	res := v.SubmitOrder(limit(t, "R1", "TEAM_A", types.SideSell, "100.00", 10))
	require.Equal(t, types.StatusNew, res.Status)

	snap := v.OpenOrders("TEAM_A")
	require.Len(t, snap, 1)
	require.Equal(t, int64(10), snap[0].RemainingQty())

	// Partially fill the resting order; the earlier snapshot keeps its
	// copied state while a fresh one sees the fill.
	res = v.SubmitOrder(limit(t, "T1", "TEAM_B", types.SideBuy, "100.00", 4))
	require.Equal(t, types.StatusFilled, res.Status)

	require.Equal(t, int64(10), snap[0].RemainingQty())
	require.Equal(t, types.OrderStatusOpen, snap[0].Status)

	fresh := v.OpenOrders("TEAM_A")
	require.Len(t, fresh, 1)
	require.Equal(t, int64(6), fresh[0].RemainingQty())
	require.Equal(t, types.OrderStatusPartiallyFilled, fresh[0].Status)
}

func TestCancelAllOrdersDrainsAuctionBucket(t *testing.T) {
	v := venueInPhase(t, phase.PhasePreOpen)

	res := v.SubmitOrder(limit(t, "P1", "TEAM_A", types.SideBuy, "100.00", 10))
	require.Equal(t, types.StatusPendingNew, res.Status)

	var cancelled []*types.Order
	v.SetCancelAllHandler(func(orders []*types.Order) { cancelled = orders })

	v.CancelAllOrders()
	require.Len(t, cancelled, 1)
	require.Equal(t, "P1", cancelled[0].OrderID)
	require.Equal(t, types.OrderStatusCancelled, cancelled[0].Status)

	// A later auction has nothing bucketed to clear.
	var trades int
	v.SetAuctionTradeHandler(func(string, []*types.Trade) { trades++ })
	v.ExecuteOpeningAuction()
	require.Zero(t, trades)
	require.Empty(t, v.OpenOrders(""))
}

func TestDepthAndQuotes(t *testing.T) {
	v := venueInPhase(t, phase.PhaseContinuous)

	v.SubmitOrder(limit(t, "B1", "TEAM_A", types.SideBuy, "99.00", 5))
	v.SubmitOrder(limit(t, "S1", "TEAM_B", types.SideSell, "101.00", 7))

	bids, asks, err := v.Depth("SPX_4500_CALL", 10)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	require.Len(t, asks, 1)

	bid, ask, hasBid, hasAsk, err := v.BestQuote("SPX_4500_CALL")
	require.NoError(t, err)
	require.True(t, hasBid)
	require.True(t, hasAsk)
	require.True(t, bid.Equal(dec("99.00")))
	require.True(t, ask.Equal(dec("101.00")))

	_, _, err = v.Depth("SPX_9999_PUT", 10)
	require.ErrorIs(t, err, types.ErrUnknownInstrument)
}
