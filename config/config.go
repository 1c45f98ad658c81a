package config

import (
	"fmt"
	"os"
	"time"

	"cosmossdk.io/math"
	"gopkg.in/yaml.v3"

	"github.com/openalpha/simex/exchange/phase"
	"github.com/openalpha/simex/exchange/types"
	"github.com/openalpha/simex/pipeline"
	"github.com/openalpha/simex/risk"
)

// Config is the exchange's file configuration
type Config struct {
	Server      ServerConfig            `yaml:"server"`
	Timezone    string                  `yaml:"timezone"`
	Schedule    []ScheduleConfig        `yaml:"schedule"`
	Instruments []InstrumentConfig      `yaml:"instruments"`
	Roles       map[string]RoleConfig   `yaml:"roles"`
	Universal   []risk.ConstraintConfig `yaml:"universal_constraints"`
	Coordinator CoordinatorConfig       `yaml:"coordinator"`
	Queues      QueueConfig             `yaml:"queues"`
}

// ServerConfig tunes the HTTP front end
type ServerConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	RequestTimeoutS  int    `yaml:"request_timeout_s"`
	DisableRateLimit bool   `yaml:"disable_rate_limit"`
}

// ScheduleConfig is one phase window of the trading day
type ScheduleConfig struct {
	Days  []string `yaml:"days"`
	Start string   `yaml:"start"`
	End   string   `yaml:"end"`
	Phase string   `yaml:"phase"`
}

// InstrumentConfig is one listed contract
type InstrumentConfig struct {
	Symbol     string `yaml:"symbol"`
	Underlying string `yaml:"underlying"`
	OptionType string `yaml:"option_type"`
	Strike     string `yaml:"strike"`
	Expiry     string `yaml:"expiry"`
}

// RoleConfig holds one role's fee schedule and validation profile
type RoleConfig struct {
	FeeSchedule FeeScheduleConfig       `yaml:"fee_schedule"`
	Constraints []risk.ConstraintConfig `yaml:"constraints"`
}

// FeeScheduleConfig holds a role's per-contract rates as decimal strings
type FeeScheduleConfig struct {
	MakerRebate string `yaml:"maker_rebate"`
	TakerFee    string `yaml:"taker_fee"`
}

// CoordinatorConfig tunes the response coordinator
type CoordinatorConfig struct {
	DefaultTimeoutS  int    `yaml:"default_timeout_s"`
	MaxPending       int    `yaml:"max_pending_requests"`
	CleanupIntervalS int    `yaml:"cleanup_interval_s"`
	RequestIDPrefix  string `yaml:"request_id_prefix"`
}

// QueueConfig sizes the pipeline channels
type QueueConfig struct {
	Order    int `yaml:"order"`
	Match    int `yaml:"match"`
	Trade    int `yaml:"trade"`
	Position int `yaml:"position"`
	WS       int `yaml:"ws"`
}

// Load reads and parses a YAML config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.prepare(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// prepare converts string decimal bounds into their LegacyDec forms
func (c *Config) prepare() error {
	for role, rc := range c.Roles {
		for i := range rc.Constraints {
			if err := prepareConstraint(&rc.Constraints[i]); err != nil {
				return fmt.Errorf("role %s constraint %d: %w", role, i, err)
			}
		}
		c.Roles[role] = rc
	}
	for i := range c.Universal {
		if err := prepareConstraint(&c.Universal[i]); err != nil {
			return fmt.Errorf("universal constraint %d: %w", i, err)
		}
	}
	return nil
}

func prepareConstraint(cc *risk.ConstraintConfig) error {
	if cc.MinPriceStr != "" {
		d, err := math.LegacyNewDecFromStr(cc.MinPriceStr)
		if err != nil {
			return fmt.Errorf("min_price: %w", err)
		}
		cc.MinPrice = d
	}
	if cc.MaxPriceStr != "" {
		d, err := math.LegacyNewDecFromStr(cc.MaxPriceStr)
		if err != nil {
			return fmt.Errorf("max_price: %w", err)
		}
		cc.MaxPrice = d
	}
	return nil
}

// Default returns a runnable single-instrument configuration: a weekday
// session with a pre-open window, an opening auction at 09:30 and
// continuous trading until the close.
func Default() *Config {
	weekdays := []string{"monday", "tuesday", "wednesday", "thursday", "friday"}
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			RequestTimeoutS: 5,
		},
		Timezone: "America/New_York",
		Schedule: []ScheduleConfig{
			{Days: weekdays, Start: "09:00", End: "09:30", Phase: "pre_open"},
			{Days: weekdays, Start: "09:30", End: "16:00", Phase: "continuous"},
		},
		Instruments: []InstrumentConfig{
			{Symbol: "SPX_4500_CALL", Underlying: "SPX", OptionType: "call", Strike: "4500", Expiry: "2026-12-18T00:00:00Z"},
			{Symbol: "SPX_4500_PUT", Underlying: "SPX", OptionType: "put", Strike: "4500", Expiry: "2026-12-18T00:00:00Z"},
		},
		Roles: map[string]RoleConfig{
			"market_maker": {
				FeeSchedule: FeeScheduleConfig{MakerRebate: "0.01", TakerFee: "-0.02"},
				Constraints: []risk.ConstraintConfig{
					{Type: risk.ConstraintPositionLimit, ErrorCode: "MM_POS_LIMIT", MaxPosition: 50, Symmetric: true},
					{Type: risk.ConstraintOrderSize, ErrorCode: "MM_ORDER_SIZE", MinSize: 1, MaxSize: 100},
					{Type: risk.ConstraintOrderRate, ErrorCode: "MM_ORDER_RATE", MaxOrdersPerSecond: 10},
				},
			},
			"hedge_fund": {
				FeeSchedule: FeeScheduleConfig{MakerRebate: "0.00", TakerFee: "-0.05"},
				Constraints: []risk.ConstraintConfig{
					{Type: risk.ConstraintPortfolioLimit, ErrorCode: "HF_PORTFOLIO_LIMIT", MaxTotalPosition: 200},
					{Type: risk.ConstraintOrderSize, ErrorCode: "HF_ORDER_SIZE", MinSize: 1, MaxSize: 50},
					{Type: risk.ConstraintOrderRate, ErrorCode: "HF_ORDER_RATE", MaxOrdersPerSecond: 5},
				},
			},
		},
		Universal: []risk.ConstraintConfig{
			{Type: risk.ConstraintTradingWindow, ErrorCode: "MARKET_CLOSED", AllowedPhases: []string{"pre_open", "continuous"}},
		},
		Coordinator: CoordinatorConfig{
			DefaultTimeoutS:  5,
			MaxPending:       10000,
			CleanupIntervalS: 30,
			RequestIDPrefix:  "REQ",
		},
		Queues: QueueConfig{Order: 1000, Match: 1000, Trade: 2000, Position: 2000, WS: 4000},
	}
}

// PhaseSchedule converts the file schedule into phase manager entries
func (c *Config) PhaseSchedule() (*time.Location, []phase.ScheduleEntry, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, nil, fmt.Errorf("timezone: %w", err)
	}

	entries := make([]phase.ScheduleEntry, 0, len(c.Schedule))
	for i, sc := range c.Schedule {
		t, err := phase.ParseType(sc.Phase)
		if err != nil {
			return nil, nil, fmt.Errorf("schedule entry %d: %w", i, err)
		}
		start, err := phase.ParseMinuteOfDay(sc.Start)
		if err != nil {
			return nil, nil, fmt.Errorf("schedule entry %d: %w", i, err)
		}
		end, err := phase.ParseMinuteOfDay(sc.End)
		if err != nil {
			return nil, nil, fmt.Errorf("schedule entry %d: %w", i, err)
		}
		days := make([]time.Weekday, 0, len(sc.Days))
		for _, d := range sc.Days {
			wd, err := parseWeekday(d)
			if err != nil {
				return nil, nil, fmt.Errorf("schedule entry %d: %w", i, err)
			}
			days = append(days, wd)
		}
		entries = append(entries, phase.ScheduleEntry{
			Days:  days,
			Start: start,
			End:   end,
			State: phase.StateFor(t),
		})
	}
	return loc, entries, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	switch s {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	default:
		return time.Sunday, fmt.Errorf("unknown weekday %q", s)
	}
}

// BuildInstruments converts the instrument configs into venue listings
func (c *Config) BuildInstruments() ([]*types.Instrument, error) {
	out := make([]*types.Instrument, 0, len(c.Instruments))
	for i, ic := range c.Instruments {
		inst := &types.Instrument{
			Symbol:     ic.Symbol,
			Underlying: ic.Underlying,
			OptionType: types.OptionType(ic.OptionType),
		}
		if ic.Strike != "" {
			strike, err := math.LegacyNewDecFromStr(ic.Strike)
			if err != nil {
				return nil, fmt.Errorf("instrument %d strike: %w", i, err)
			}
			inst.Strike = strike
		}
		if ic.Expiry != "" {
			expiry, err := time.Parse(time.RFC3339, ic.Expiry)
			if err != nil {
				return nil, fmt.Errorf("instrument %d expiry: %w", i, err)
			}
			inst.Expiry = expiry
		}
		out = append(out, inst)
	}
	return out, nil
}

// FeeSchedules converts the role fee configs for the calculator
func (c *Config) FeeSchedules() (map[string]pipeline.FeeSchedule, error) {
	out := make(map[string]pipeline.FeeSchedule, len(c.Roles))
	for role, rc := range c.Roles {
		maker, err := math.LegacyNewDecFromStr(rc.FeeSchedule.MakerRebate)
		if err != nil {
			return nil, fmt.Errorf("role %s maker_rebate: %w", role, err)
		}
		taker, err := math.LegacyNewDecFromStr(rc.FeeSchedule.TakerFee)
		if err != nil {
			return nil, fmt.Errorf("role %s taker_fee: %w", role, err)
		}
		out[role] = pipeline.FeeSchedule{MakerRebate: maker, TakerFee: taker}
	}
	return out, nil
}

// RoleConstraints returns the per-role validation profiles
func (c *Config) RoleConstraints() map[string][]risk.ConstraintConfig {
	out := make(map[string][]risk.ConstraintConfig, len(c.Roles))
	for role, rc := range c.Roles {
		out[role] = rc.Constraints
	}
	return out
}

// RoleNames returns the supported role names for the registry
func (c *Config) RoleNames() []string {
	out := make([]string, 0, len(c.Roles))
	for role := range c.Roles {
		out = append(out, role)
	}
	return out
}

// CoordinatorSettings converts to the pipeline's coordinator config
func (c *Config) CoordinatorSettings() pipeline.CoordinatorConfig {
	return pipeline.CoordinatorConfig{
		DefaultTimeout:  time.Duration(c.Coordinator.DefaultTimeoutS) * time.Second,
		MaxPending:      c.Coordinator.MaxPending,
		CleanupInterval: time.Duration(c.Coordinator.CleanupIntervalS) * time.Second,
		RequestIDPrefix: c.Coordinator.RequestIDPrefix,
	}
}

// QueueSettings converts to the pipeline's queue config
func (c *Config) QueueSettings() pipeline.QueueConfig {
	return pipeline.QueueConfig{
		OrderQueueSize:    c.Queues.Order,
		MatchQueueSize:    c.Queues.Match,
		TradeQueueSize:    c.Queues.Trade,
		PositionQueueSize: c.Queues.Position,
		WSQueueSize:       c.Queues.WS,
	}
}
