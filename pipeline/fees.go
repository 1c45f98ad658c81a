package pipeline

import (
	"fmt"

	"cosmossdk.io/math"

	"github.com/openalpha/simex/exchange/types"
)

// LiquidityType classifies a fill as making or taking liquidity
type LiquidityType string

const (
	LiquidityMaker LiquidityType = "maker"
	LiquidityTaker LiquidityType = "taker"
)

// FeeSchedule holds a role's per-contract rates. Sign convention: positive
// values are money received by the trader, negative values are money paid.
type FeeSchedule struct {
	MakerRebate math.LegacyDec
	TakerFee    math.LegacyDec
}

// Rate returns the per-contract rate for a liquidity type
func (s FeeSchedule) Rate(lt LiquidityType) (math.LegacyDec, error) {
	switch lt {
	case LiquidityMaker:
		return s.MakerRebate, nil
	case LiquidityTaker:
		return s.TakerFee, nil
	default:
		return math.LegacyDec{}, fmt.Errorf("unknown liquidity type %q", lt)
	}
}

// FeeCalculator maps role and liquidity type to fees. Stateless.
type FeeCalculator struct {
	schedules map[string]FeeSchedule
}

// NewFeeCalculator creates a calculator over per-role schedules
func NewFeeCalculator(schedules map[string]FeeSchedule) *FeeCalculator {
	return &FeeCalculator{schedules: schedules}
}

// Calculate returns quantity x rate for the role's schedule. Unknown roles
// and liquidity types fail explicitly.
func (c *FeeCalculator) Calculate(quantity int64, role string, lt LiquidityType) (math.LegacyDec, error) {
	schedule, ok := c.schedules[role]
	if !ok {
		return math.LegacyDec{}, fmt.Errorf("no fee schedule for role %q", role)
	}
	rate, err := schedule.Rate(lt)
	if err != nil {
		return math.LegacyDec{}, err
	}
	return rate.MulInt64(quantity), nil
}

// DetermineLiquidity classifies an order's fill: the aggressor side takes,
// the resting side makes.
func DetermineLiquidity(aggressorSide, orderSide types.Side) LiquidityType {
	if aggressorSide == orderSide {
		return LiquidityTaker
	}
	return LiquidityMaker
}
