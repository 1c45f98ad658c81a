package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/simex/exchange/phase"
	"github.com/openalpha/simex/risk"
)

func dec(s string) math.LegacyDec {
	return math.LegacyMustNewDecFromStr(s)
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	loc, entries, err := cfg.PhaseSchedule()
	require.NoError(t, err)
	require.Equal(t, "America/New_York", loc.String())
	require.Len(t, entries, 2)

	m := phase.NewManager(loc, entries)

	// Wednesday 2026-03-04, wall clock in New York.
	nyt := func(hour, minute int) time.Time {
		return time.Date(2026, 3, 4, hour, minute, 0, 0, loc)
	}
	require.Equal(t, phase.PhaseClosed, m.At(nyt(8, 30)).Type)
	require.Equal(t, phase.PhasePreOpen, m.At(nyt(9, 15)).Type)
	require.Equal(t, phase.ExecBatch, m.At(nyt(9, 15)).Execution)
	require.Equal(t, phase.PhaseContinuous, m.At(nyt(10, 0)).Type)
	require.Equal(t, phase.PhaseClosed, m.At(nyt(16, 30)).Type)
}

func TestDefaultInstruments(t *testing.T) {
	instruments, err := Default().BuildInstruments()
	require.NoError(t, err)
	require.Len(t, instruments, 2)

	call := instruments[0]
	require.Equal(t, "SPX_4500_CALL", call.Symbol)
	require.Equal(t, "SPX", call.Underlying)
	require.True(t, call.Strike.Equal(dec("4500")))
	require.False(t, call.Expiry.IsZero())
}

func TestDefaultFeeSchedules(t *testing.T) {
	schedules, err := Default().FeeSchedules()
	require.NoError(t, err)

	mm := schedules["market_maker"]
	require.True(t, mm.MakerRebate.Equal(dec("0.01")))
	require.True(t, mm.TakerFee.Equal(dec("-0.02")))

	hf := schedules["hedge_fund"]
	require.True(t, hf.MakerRebate.IsZero())
	require.True(t, hf.TakerFee.Equal(dec("-0.05")))
}

func TestDefaultSettings(t *testing.T) {
	cfg := Default()

	cc := cfg.CoordinatorSettings()
	require.Equal(t, 5*time.Second, cc.DefaultTimeout)
	require.Equal(t, 10000, cc.MaxPending)
	require.Equal(t, "REQ", cc.RequestIDPrefix)

	qc := cfg.QueueSettings()
	require.Equal(t, 1000, qc.OrderQueueSize)
	require.Equal(t, 4000, qc.WSQueueSize)

	require.ElementsMatch(t, []string{"market_maker", "hedge_fund"}, cfg.RoleNames())
	require.Len(t, cfg.RoleConstraints()["market_maker"], 3)
}

func TestLoad(t *testing.T) {
	raw := `
server:
  host: 127.0.0.1
  port: 9090
  request_timeout_s: 3
timezone: UTC
schedule:
  - days: [monday, tuesday]
    start: "08:00"
    end: "12:00"
    phase: continuous
instruments:
  - symbol: SPX_4600_CALL
    underlying: SPX
    option_type: call
    strike: "4600"
    expiry: "2026-12-18T00:00:00Z"
roles:
  market_maker:
    fee_schedule:
      maker_rebate: "0.01"
      taker_fee: "-0.02"
    constraints:
      - type: price_range
        error_code: PRICE_BAND
        min_price: "0.01"
        max_price: "999.99"
universal_constraints:
  - type: trading_window
    error_code: MARKET_CLOSED
    allowed_phases: [continuous]
coordinator:
  default_timeout_s: 2
  max_pending_requests: 100
queues:
  order: 10
  match: 10
  trade: 20
  position: 20
  ws: 40
`
	path := filepath.Join(t.TempDir(), "exchange.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1", cfg.Server.Host)
	require.Equal(t, 9090, cfg.Server.Port)

	// The decimal price bounds are parsed during load.
	band := cfg.Roles["market_maker"].Constraints[0]
	require.Equal(t, risk.ConstraintPriceRange, band.Type)
	require.True(t, band.MinPrice.Equal(dec("0.01")))
	require.True(t, band.MaxPrice.Equal(dec("999.99")))

	loc, entries, err := cfg.PhaseSchedule()
	require.NoError(t, err)
	require.Equal(t, time.UTC, loc)
	require.Len(t, entries, 1)
	require.Equal(t, []time.Weekday{time.Monday, time.Tuesday}, entries[0].Days)

	require.Equal(t, 2*time.Second, cfg.CoordinatorSettings().DefaultTimeout)
	require.Equal(t, 10, cfg.QueueSettings().OrderQueueSize)
}

func TestLoadErrors(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})

	t.Run("BadDecimal", func(t *testing.T) {
		raw := `
roles:
  market_maker:
    constraints:
      - type: price_range
        error_code: PRICE_BAND
        min_price: "not-a-number"
`
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))
		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("BadSchedule", func(t *testing.T) {
		cfg := Default()
		cfg.Schedule[0].Phase = "lunch_break"
		_, _, err := cfg.PhaseSchedule()
		require.Error(t, err)

		cfg = Default()
		cfg.Schedule[0].Days = []string{"someday"}
		_, _, err = cfg.PhaseSchedule()
		require.Error(t, err)
	})
}
