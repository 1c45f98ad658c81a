package risk

import (
	"fmt"

	"cosmossdk.io/math"

	"github.com/openalpha/simex/exchange/phase"
	"github.com/openalpha/simex/exchange/types"
)

// ConstraintType tags a constraint variant
type ConstraintType string

const (
	ConstraintPositionLimit    ConstraintType = "position_limit"
	ConstraintPortfolioLimit   ConstraintType = "portfolio_limit"
	ConstraintOrderSize        ConstraintType = "order_size"
	ConstraintOrderRate        ConstraintType = "order_rate"
	ConstraintOrderTypeAllowed ConstraintType = "order_type_allowed"
	ConstraintTradingWindow    ConstraintType = "trading_window"
	ConstraintPriceRange       ConstraintType = "price_range"
)

// ConstraintConfig is a tagged constraint variant with its parameters. A
// role's validation is an ordered list of these.
type ConstraintConfig struct {
	Type      ConstraintType `yaml:"type"`
	ErrorCode string         `yaml:"error_code"`

	// position_limit
	MaxPosition int64 `yaml:"max_position,omitempty"`
	Symmetric   bool  `yaml:"symmetric,omitempty"`

	// portfolio_limit
	MaxTotalPosition int64 `yaml:"max_total_position,omitempty"`

	// order_size
	MinSize int64 `yaml:"min_size,omitempty"`
	MaxSize int64 `yaml:"max_size,omitempty"`

	// order_rate
	MaxOrdersPerSecond int `yaml:"max_orders_per_second,omitempty"`

	// order_type_allowed
	AllowedTypes []string `yaml:"allowed_types,omitempty"`

	// trading_window
	AllowedPhases []string `yaml:"allowed_phases,omitempty"`

	// price_range
	MinPrice math.LegacyDec `yaml:"-"`
	MaxPrice math.LegacyDec `yaml:"-"`

	// string forms for YAML round-tripping of the decimal bounds
	MinPriceStr string `yaml:"min_price,omitempty"`
	MaxPriceStr string `yaml:"max_price,omitempty"`
}

// Context carries everything a constraint may inspect. Built once per
// validation; read-only for the checks.
type Context struct {
	Order            *types.Order
	TeamID           string
	Role             string
	Positions        map[string]int64
	OrdersThisSecond int
	Phase            phase.State
}

// signedQty is the position delta this order would cause if fully filled
func signedQty(o *types.Order) int64 {
	if o.Side == types.SideBuy {
		return o.Quantity
	}
	return -o.Quantity
}

// check runs one constraint against the context. Returns ok and, on
// failure, a human-readable detail.
func check(c ConstraintConfig, ctx *Context) (bool, string) {
	switch c.Type {
	case ConstraintPositionLimit:
		current := ctx.Positions[ctx.Order.InstrumentID]
		next := current + signedQty(ctx.Order)
		if c.Symmetric {
			if next < -c.MaxPosition || next > c.MaxPosition {
				return false, fmt.Sprintf("position %d would leave [%d, %d]", next, -c.MaxPosition, c.MaxPosition)
			}
		} else if abs64(next) > c.MaxPosition {
			return false, fmt.Sprintf("position magnitude %d would exceed %d", abs64(next), c.MaxPosition)
		}
		return true, ""

	case ConstraintPortfolioLimit:
		var total int64
		for inst, pos := range ctx.Positions {
			if inst == ctx.Order.InstrumentID {
				pos += signedQty(ctx.Order)
			}
			total += abs64(pos)
		}
		if _, ok := ctx.Positions[ctx.Order.InstrumentID]; !ok {
			total += abs64(signedQty(ctx.Order))
		}
		if total > c.MaxTotalPosition {
			return false, fmt.Sprintf("gross position %d would exceed %d", total, c.MaxTotalPosition)
		}
		return true, ""

	case ConstraintOrderSize:
		q := ctx.Order.Quantity
		if q < c.MinSize || (c.MaxSize > 0 && q > c.MaxSize) {
			return false, fmt.Sprintf("quantity %d outside [%d, %d]", q, c.MinSize, c.MaxSize)
		}
		return true, ""

	case ConstraintOrderRate:
		if ctx.OrdersThisSecond >= c.MaxOrdersPerSecond {
			return false, fmt.Sprintf("%d orders already this second (max %d)", ctx.OrdersThisSecond, c.MaxOrdersPerSecond)
		}
		return true, ""

	case ConstraintOrderTypeAllowed:
		ot := ctx.Order.OrderType.String()
		for _, allowed := range c.AllowedTypes {
			if allowed == ot {
				return true, ""
			}
		}
		return false, fmt.Sprintf("order type %q not allowed", ot)

	case ConstraintTradingWindow:
		current := ctx.Phase.Type.String()
		for _, allowed := range c.AllowedPhases {
			if allowed == current {
				return true, ""
			}
		}
		return false, fmt.Sprintf("phase %q outside trading window", current)

	case ConstraintPriceRange:
		if ctx.Order.OrderType != types.OrderTypeLimit {
			return true, ""
		}
		p := ctx.Order.Price
		if !c.MinPrice.IsNil() && p.LT(c.MinPrice) {
			return false, fmt.Sprintf("price %s below minimum %s", p, c.MinPrice)
		}
		if !c.MaxPrice.IsNil() && p.GT(c.MaxPrice) {
			return false, fmt.Sprintf("price %s above maximum %s", p, c.MaxPrice)
		}
		return true, ""

	default:
		// Unknown constraint types fail closed.
		return false, fmt.Sprintf("unknown constraint type %q", c.Type)
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
