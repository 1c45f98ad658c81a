package risk

import (
	"time"

	sdkerrors "cosmossdk.io/errors"
	"cosmossdk.io/log"

	"github.com/openalpha/simex/exchange/phase"
	"github.com/openalpha/simex/exchange/types"
)

// Error codes carried on rejections
const (
	CodeCancelRejected = "CANCEL_REJECTED"
	CodeUnknownRole    = "UNKNOWN_ROLE"
)

// Rejection is a failed validation with its constraint error code
type Rejection struct {
	Code    string
	Message string
}

// PositionReader is the slice of the position store the validator needs
type PositionReader interface {
	GetAll(teamID string) map[string]int64
}

// CancelVenue is the slice of the venue cancellation delegates to
type CancelVenue interface {
	CancelOrder(orderID, traderID string) (*types.Order, error)
}

// Validator runs the ordered constraint list configured for a team's role
// against every order, first failure wins. The trading-window constraint is
// appended implicitly to every role.
type Validator struct {
	roles     map[string][]ConstraintConfig
	universal []ConstraintConfig

	rate      *RateWindowStore
	positions PositionReader
	venue     CancelVenue
	phases    *phase.Manager
	clock     func() time.Time
	logger    log.Logger
}

// NewValidator creates a validator service. universal constraints run after
// the role's list for every role.
func NewValidator(
	roles map[string][]ConstraintConfig,
	universal []ConstraintConfig,
	positions PositionReader,
	venue CancelVenue,
	phases *phase.Manager,
	logger log.Logger,
) *Validator {
	return &Validator{
		roles:     roles,
		universal: universal,
		rate:      NewRateWindowStore(),
		positions: positions,
		venue:     venue,
		phases:    phases,
		clock:     time.Now,
		logger:    logger.With("component", "validator"),
	}
}

// WithClock overrides the validator clock (tests). The rate store shares it.
func (v *Validator) WithClock(clock func() time.Time) *Validator {
	v.clock = clock
	v.rate.WithClock(clock)
	return v
}

// RateStore exposes the per-second counter store
func (v *Validator) RateStore() *RateWindowStore {
	return v.rate
}

// ValidateOrder runs the role's constraints in config order. A nil return
// means the order passed.
func (v *Validator) ValidateOrder(order *types.Order, teamID, role string) *Rejection {
	constraints, ok := v.roles[role]
	if !ok {
		return &Rejection{Code: CodeUnknownRole, Message: "no validation profile for role " + role}
	}

	ctx := &Context{
		Order:            order,
		TeamID:           teamID,
		Role:             role,
		Positions:        v.positions.GetAll(teamID),
		OrdersThisSecond: v.rate.Count(teamID),
		Phase:            v.phases.At(v.clock()),
	}

	for _, c := range constraints {
		if ok, detail := check(c, ctx); !ok {
			v.logger.Info("order rejected",
				"team_id", teamID, "order_id", order.OrderID, "code", c.ErrorCode, "detail", detail)
			return &Rejection{Code: c.ErrorCode, Message: detail}
		}
	}
	for _, c := range v.universal {
		if ok, detail := check(c, ctx); !ok {
			v.logger.Info("order rejected",
				"team_id", teamID, "order_id", order.OrderID, "code", c.ErrorCode, "detail", detail)
			return &Rejection{Code: c.ErrorCode, Message: detail}
		}
	}
	return nil
}

// RecordAccepted bumps the team's per-second order counter. Called once per
// accepted order, after validation.
func (v *Validator) RecordAccepted(teamID string) {
	v.rate.Increment(teamID)
}

// ValidateCancel delegates to the venue. Ownership violations and unknown
// order ids collapse into one opaque rejection so a caller cannot probe
// which orders exist.
func (v *Validator) ValidateCancel(orderID, teamID string) (*types.Order, *Rejection) {
	order, err := v.venue.CancelOrder(orderID, teamID)
	if err == nil {
		return order, nil
	}
	if sdkerrors.IsOf(err, types.ErrOrderNotFound, types.ErrNotOrderOwner) {
		return nil, &Rejection{Code: CodeCancelRejected, Message: "order cannot be cancelled"}
	}
	return nil, &Rejection{Code: CodeCancelRejected, Message: err.Error()}
}
