package phase

import (
	"fmt"
	"time"
)

// Type identifies a market phase
type Type int

const (
	PhaseClosed Type = iota
	PhasePreOpen
	PhaseOpeningAuction
	PhaseContinuous
)

func (t Type) String() string {
	switch t {
	case PhasePreOpen:
		return "pre_open"
	case PhaseOpeningAuction:
		return "opening_auction"
	case PhaseContinuous:
		return "continuous"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ParseType parses a phase type string
func ParseType(s string) (Type, error) {
	switch s {
	case "pre_open":
		return PhasePreOpen, nil
	case "opening_auction":
		return PhaseOpeningAuction, nil
	case "continuous":
		return PhaseContinuous, nil
	case "closed":
		return PhaseClosed, nil
	default:
		return PhaseClosed, fmt.Errorf("unknown phase type %q", s)
	}
}

// ExecutionStyle selects the matching mode for a phase
type ExecutionStyle int

const (
	ExecNone ExecutionStyle = iota
	ExecContinuous
	ExecBatch
)

func (e ExecutionStyle) String() string {
	switch e {
	case ExecContinuous:
		return "continuous"
	case ExecBatch:
		return "batch"
	default:
		return "none"
	}
}

// ParseExecutionStyle parses an execution style string
func ParseExecutionStyle(s string) (ExecutionStyle, error) {
	switch s {
	case "none":
		return ExecNone, nil
	case "continuous":
		return ExecContinuous, nil
	case "batch":
		return ExecBatch, nil
	default:
		return ExecNone, fmt.Errorf("unknown execution style %q", s)
	}
}

// State is the operational rule set in force during a phase. Read-only per
// evaluation.
type State struct {
	Type                Type
	SubmissionAllowed   bool
	CancellationAllowed bool
	MatchingEnabled     bool
	Execution           ExecutionStyle
}

// ClosedState is the state returned outside every scheduled window
func ClosedState() State {
	return State{Type: PhaseClosed}
}

// StateFor returns the stock rule set for a phase type. Pre-open collects
// orders for the opening auction without matching; continuous trading
// matches immediately.
func StateFor(t Type) State {
	switch t {
	case PhasePreOpen:
		return State{
			Type:                PhasePreOpen,
			SubmissionAllowed:   true,
			CancellationAllowed: true,
			Execution:           ExecBatch,
		}
	case PhaseOpeningAuction:
		return State{
			Type:      PhaseOpeningAuction,
			Execution: ExecBatch,
		}
	case PhaseContinuous:
		return State{
			Type:                PhaseContinuous,
			SubmissionAllowed:   true,
			CancellationAllowed: true,
			MatchingEnabled:     true,
			Execution:           ExecContinuous,
		}
	default:
		return ClosedState()
	}
}

// MinuteOfDay is a time of day in minutes since midnight
type MinuteOfDay int

// ParseMinuteOfDay parses "HH:MM"
func ParseMinuteOfDay(s string) (MinuteOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return MinuteOfDay(h*60 + m), nil
}

// ScheduleEntry maps weekdays and a local time-of-day range to a phase
// state. Entries are ordered and must not overlap; Start is inclusive and
// End exclusive.
type ScheduleEntry struct {
	Days  []time.Weekday
	Start MinuteOfDay
	End   MinuteOfDay
	State State
}

func (e ScheduleEntry) matches(day time.Weekday, minute MinuteOfDay) bool {
	if minute < e.Start || minute >= e.End {
		return false
	}
	for _, d := range e.Days {
		if d == day {
			return true
		}
	}
	return false
}

// Manager maps wall-clock time to the phase state in force. It is a pure
// function of (time, schedule).
type Manager struct {
	loc     *time.Location
	entries []ScheduleEntry
}

// NewManager creates a phase manager for a market timezone and schedule
func NewManager(loc *time.Location, entries []ScheduleEntry) *Manager {
	if loc == nil {
		loc = time.UTC
	}
	return &Manager{loc: loc, entries: entries}
}

// At returns the phase state in force at t. Times outside every schedule
// entry map to the closed state.
func (m *Manager) At(t time.Time) State {
	local := t.In(m.loc)
	minute := MinuteOfDay(local.Hour()*60 + local.Minute())
	for _, e := range m.entries {
		if e.matches(local.Weekday(), minute) {
			return e.State
		}
	}
	return ClosedState()
}

// Location returns the configured market timezone
func (m *Manager) Location() *time.Location {
	return m.loc
}
