package pipeline

import (
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/simex/exchange/types"
)

func dec(s string) math.LegacyDec {
	return math.LegacyMustNewDecFromStr(s)
}

func testCalculator() *FeeCalculator {
	return NewFeeCalculator(map[string]FeeSchedule{
		"market_maker": {MakerRebate: dec("0.01"), TakerFee: dec("-0.02")},
		"hedge_fund":   {MakerRebate: dec("0.00"), TakerFee: dec("-0.05")},
	})
}

func TestFeeCalculation(t *testing.T) {
	c := testCalculator()

	fee, err := c.Calculate(10, "market_maker", LiquidityMaker)
	require.NoError(t, err)
	require.True(t, fee.Equal(dec("0.10")), "maker rebate is credited")

	fee, err = c.Calculate(10, "market_maker", LiquidityTaker)
	require.NoError(t, err)
	require.True(t, fee.Equal(dec("-0.20")), "taker fee is debited")

	fee, err = c.Calculate(10, "hedge_fund", LiquidityTaker)
	require.NoError(t, err)
	require.True(t, fee.Equal(dec("-0.50")))

	fee, err = c.Calculate(10, "hedge_fund", LiquidityMaker)
	require.NoError(t, err)
	require.True(t, fee.IsZero())
}

func TestFeeCalculationUnknowns(t *testing.T) {
	c := testCalculator()

	_, err := c.Calculate(10, "retail", LiquidityMaker)
	require.Error(t, err)

	_, err = c.Calculate(10, "market_maker", LiquidityType("mid"))
	require.Error(t, err)
}

func TestDetermineLiquidity(t *testing.T) {
	require.Equal(t, LiquidityTaker, DetermineLiquidity(types.SideBuy, types.SideBuy))
	require.Equal(t, LiquidityMaker, DetermineLiquidity(types.SideBuy, types.SideSell))
	require.Equal(t, LiquidityTaker, DetermineLiquidity(types.SideSell, types.SideSell))
	require.Equal(t, LiquidityMaker, DetermineLiquidity(types.SideSell, types.SideBuy))
}

func TestPositionStore(t *testing.T) {
	s := NewPositionStore()

	require.Equal(t, int64(0), s.Get("TEAM_A", "SPX_4500_CALL"))

	s.Update("TEAM_A", "SPX_4500_CALL", 10)
	s.Update("TEAM_A", "SPX_4500_CALL", -3)
	s.Update("TEAM_A", "SPX_4500_PUT", -5)
	require.Equal(t, int64(7), s.Get("TEAM_A", "SPX_4500_CALL"))
	require.Equal(t, int64(-5), s.Get("TEAM_A", "SPX_4500_PUT"))
	require.Equal(t, int64(12), s.TotalAbsolute("TEAM_A"))

	all := s.GetAll("TEAM_A")
	require.Equal(t, map[string]int64{"SPX_4500_CALL": 7, "SPX_4500_PUT": -5}, all)

	// Snapshots are copies; mutating one does not touch the store.
	all["SPX_4500_CALL"] = 999
	require.Equal(t, int64(7), s.Get("TEAM_A", "SPX_4500_CALL"))
}

func TestPositionStoreInitialize(t *testing.T) {
	s := NewPositionStore()

	s.Initialize("TEAM_A")
	require.Empty(t, s.GetAll("TEAM_A"))

	s.Update("TEAM_A", "SPX_4500_CALL", 5)
	s.Initialize("TEAM_A")
	require.Equal(t, int64(5), s.Get("TEAM_A", "SPX_4500_CALL"), "initialize is idempotent")
}
