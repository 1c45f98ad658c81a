package app

import (
	"context"
	"fmt"
	"time"

	"cosmossdk.io/log"

	"github.com/openalpha/simex/api"
	"github.com/openalpha/simex/api/websocket"
	"github.com/openalpha/simex/config"
	"github.com/openalpha/simex/exchange/phase"
	"github.com/openalpha/simex/exchange/types"
	"github.com/openalpha/simex/exchange/venue"
	"github.com/openalpha/simex/metrics"
	"github.com/openalpha/simex/pipeline"
	"github.com/openalpha/simex/registry"
	"github.com/openalpha/simex/risk"
)

// phaseTickInterval bounds how stale a phase transition can be
const phaseTickInterval = time.Second

// App assembles the exchange: venue, risk validator, pipeline, coordinator,
// WebSocket hub and REST server.
type App struct {
	cfg    *config.Config
	logger log.Logger

	registry    *registry.Registry
	venue       *venue.Venue
	phases      *phase.Manager
	transition  *phase.TransitionHandler
	validator   *risk.Validator
	coordinator *pipeline.Coordinator
	pipeline    *pipeline.Pipeline
	hub         *websocket.Hub
	server      *api.Server

	stopTicker chan struct{}
	tickerDone chan struct{}
}

// New builds the application from configuration
func New(cfg *config.Config, logger log.Logger) (*App, error) {
	loc, entries, err := cfg.PhaseSchedule()
	if err != nil {
		return nil, fmt.Errorf("phase schedule: %w", err)
	}
	phases := phase.NewManager(loc, entries)

	reg := registry.New(cfg.RoleNames(), logger)
	v := venue.New(phases, logger)

	instruments, err := cfg.BuildInstruments()
	if err != nil {
		return nil, fmt.Errorf("instruments: %w", err)
	}
	for _, inst := range instruments {
		if err := v.ListInstrument(inst); err != nil {
			return nil, fmt.Errorf("list %s: %w", inst.Symbol, err)
		}
	}

	positions := pipeline.NewPositionStore()
	validator := risk.NewValidator(cfg.RoleConstraints(), cfg.Universal, positions, v, phases, logger)

	schedules, err := cfg.FeeSchedules()
	if err != nil {
		return nil, fmt.Errorf("fee schedules: %w", err)
	}
	fees := pipeline.NewFeeCalculator(schedules)

	coordinator := pipeline.NewCoordinator(cfg.CoordinatorSettings(), logger)
	queues := pipeline.NewQueues(cfg.QueueSettings())

	a := &App{
		cfg:         cfg,
		logger:      logger.With("component", "app"),
		registry:    reg,
		venue:       v,
		phases:      phases,
		validator:   validator,
		coordinator: coordinator,
		stopTicker:  make(chan struct{}),
		tickerDone:  make(chan struct{}),
	}

	// The fanout target is the hub, which needs the pipeline for connect
	// snapshots. Break the loop with a late-bound reference.
	var hub *websocket.Hub
	fanout := fanoutFunc{
		send:       func(teamID, msgType string, data interface{}) error { return hub.Send(teamID, msgType, data) },
		disconnect: func(teamID string) { hub.Disconnect(teamID) },
	}

	a.pipeline = pipeline.NewPipeline(queues, coordinator, validator, v, fees, positions, reg, fanout, logger)
	hub = websocket.NewHub(reg, a.pipeline, logger)
	a.hub = hub

	v.SetAuctionTradeHandler(func(instrumentID string, trades []*types.Trade) {
		a.pipeline.PublishAuctionTrades(trades)
	})
	v.SetCancelAllHandler(a.pipeline.PublishCancelledOrders)

	a.transition = phase.NewTransitionHandler(phases, v, logger)

	serverCfg := &api.Config{
		Host:             cfg.Server.Host,
		Port:             cfg.Server.Port,
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     30 * time.Second,
		RequestTimeout:   time.Duration(cfg.Server.RequestTimeoutS) * time.Second,
		DisableRateLimit: cfg.Server.DisableRateLimit,
	}
	a.server = api.NewServer(serverCfg, reg, v, coordinator, a.pipeline, hub, logger)

	return a, nil
}

// fanoutFunc adapts closures to the pipeline's Fanout interface
type fanoutFunc struct {
	send       func(teamID, msgType string, data interface{}) error
	disconnect func(teamID string)
}

func (f fanoutFunc) Send(teamID, msgType string, data interface{}) error {
	return f.send(teamID, msgType, data)
}

func (f fanoutFunc) Disconnect(teamID string) {
	f.disconnect(teamID)
}

// Start launches the pipeline, the phase ticker and the HTTP server.
// Blocks serving HTTP until Stop.
func (a *App) Start() error {
	a.pipeline.Start()
	go a.phaseLoop()

	a.logger.Info("exchange starting",
		"instruments", len(a.cfg.Instruments),
		"roles", len(a.cfg.Roles),
		"listen", fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port))
	return a.server.Start()
}

// phaseLoop drives scheduled phase transitions off the wall clock
func (a *App) phaseLoop() {
	defer close(a.tickerDone)

	ticker := time.NewTicker(phaseTickInterval)
	defer ticker.Stop()

	phaseNames := []string{"closed", "pre_open", "opening_auction", "continuous"}

	a.transition.Tick(time.Now())
	for {
		select {
		case now := <-ticker.C:
			a.transition.Tick(now)
			metrics.GetCollector().SetPhase(a.phases.At(now).Type.String(), phaseNames)
		case <-a.stopTicker:
			return
		}
	}
}

// Stop shuts the exchange down in dependency order: HTTP intake first, then
// the pipeline drains, then the coordinator settles stragglers.
func (a *App) Stop(ctx context.Context) error {
	close(a.stopTicker)
	<-a.tickerDone

	err := a.server.Stop(ctx)
	a.pipeline.Stop()
	a.coordinator.Shutdown()

	a.logger.Info("exchange stopped")
	return err
}

// Registry exposes the team registry (tests, tooling)
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Venue exposes the exchange venue (tests, tooling)
func (a *App) Venue() *venue.Venue {
	return a.venue
}
