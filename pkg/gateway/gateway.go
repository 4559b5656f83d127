// Package gateway assembles a running MD3 gateway from configuration: the
// channels and their transports, one point store and outstation per
// configured station, and the Modbus and simulator ports that feed the
// stores through the event bus.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"avaneesh/md3-go/pkg/bus"
	"avaneesh/md3-go/pkg/channel"
	"avaneesh/md3-go/pkg/config"
	"avaneesh/md3-go/pkg/internal/logger"
	"avaneesh/md3-go/pkg/modbusport"
	"avaneesh/md3-go/pkg/outstation"
	"avaneesh/md3-go/pkg/points"
	"avaneesh/md3-go/pkg/simport"
)

var (
	ErrStarted    = errors.New("gateway already started")
	ErrNotStarted = errors.New("gateway not started")
)

// TransportFactory creates the physical channel for a line
type TransportFactory func(t config.TransportConfig) (channel.PhysicalChannel, error)

// ModbusDialer makes one connection attempt to a Modbus slave
type ModbusDialer func(m config.ModbusConfig) (modbusport.Client, error)

// Option customizes a gateway
type Option func(*Gateway)

// WithTransportFactory replaces the network and serial transports
func WithTransportFactory(f TransportFactory) Option {
	return func(g *Gateway) { g.transports = f }
}

// WithModbusDialer replaces the Modbus TCP dialer
func WithModbusDialer(d ModbusDialer) Option {
	return func(g *Gateway) { g.dialModbus = d }
}

// Gateway is the root object of a running gateway
type Gateway struct {
	cfg    *config.Config
	bus    *bus.Bus
	logger logger.Logger

	transports TransportFactory
	dialModbus ModbusDialer

	channels *xsync.MapOf[string, *channel.Channel]
	stations *xsync.MapOf[string, *station]
	modbus   *xsync.MapOf[string, *modbusport.Port]
	sims     *xsync.MapOf[string, *simport.Port]

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a gateway for a validated and normalized config
func New(cfg *config.Config, log logger.Logger, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("gateway: config required")
	}
	if log == nil {
		log = logger.GetDefault()
	}

	g := &Gateway{
		cfg:        cfg,
		bus:        bus.New(log),
		logger:     log.With("component", "gateway"),
		transports: newPhysical,
		dialModbus: dialModbus,
		channels:   xsync.NewMapOf[string, *channel.Channel](),
		stations:   xsync.NewMapOf[string, *station](),
		modbus:     xsync.NewMapOf[string, *modbusport.Port](),
		sims:       xsync.NewMapOf[string, *simport.Port](),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Bus returns the event bus shared by every port
func (g *Gateway) Bus() *bus.Bus { return g.bus }

// Start builds every configured component and starts it. On error the
// components already started are shut down again. A gateway starts once.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return ErrStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.started = true

	if err := g.build(runCtx); err != nil {
		g.shutdownLocked()
		return err
	}

	g.logger.Info("gateway started",
		"outstations", g.stations.Size(),
		"channels", g.channels.Size(),
		"modbus", g.modbus.Size(),
		"simulators", g.sims.Size())
	return nil
}

func (g *Gateway) build(ctx context.Context) error {
	// Stores and bindings first so no start value from a port is missed
	for _, oc := range g.cfg.Outstations {
		if err := g.addOutstation(oc); err != nil {
			return fmt.Errorf("outstation %s: %w", oc.ID, err)
		}
	}
	for _, mc := range g.cfg.Modbus {
		if err := g.addModbus(ctx, mc); err != nil {
			return fmt.Errorf("modbus %s: %w", mc.ID, err)
		}
	}
	for _, sc := range g.cfg.Simulators {
		if err := g.addSimulator(ctx, sc); err != nil {
			return fmt.Errorf("simulator %s: %w", sc.ID, err)
		}
	}
	return nil
}

// Run starts the gateway and blocks until ctx ends, then shuts down.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return g.Shutdown()
}

// Shutdown stops ports, closes channels and the bus
func (g *Gateway) Shutdown() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.started {
		return ErrNotStarted
	}
	if !g.stopped {
		g.shutdownLocked()
	}
	return nil
}

func (g *Gateway) shutdownLocked() {
	g.logger.Info("shutting down")

	g.cancel()
	g.wg.Wait()

	g.stations.Range(func(id string, s *station) bool {
		s.close()
		return true
	})
	g.channels.Range(func(key string, ch *channel.Channel) bool {
		if err := ch.Close(); err != nil {
			g.logger.Error("channel close failed", "channel", key, "error", err)
		}
		return true
	})
	g.bus.Close()

	g.channels.Clear()
	g.stations.Clear()
	g.modbus.Clear()
	g.sims.Clear()
	g.stopped = true
	g.logger.Info("shutdown complete")
}

// SetLogLevel changes the level of every gateway logger
func (g *Gateway) SetLogLevel(level string) error {
	lv, ok := logger.ParseLevel(level)
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}
	g.logger.SetLevel(lv)
	g.logger.Info("log level changed", "level", lv.String())
	return nil
}

// Outstation returns the outstation with the given id
func (g *Gateway) Outstation(id string) (*outstation.Outstation, bool) {
	s, ok := g.stations.Load(id)
	if !ok {
		return nil, false
	}
	return s.outstation, true
}

// Store returns the point store of an outstation
func (g *Gateway) Store(id string) (*points.Store, bool) {
	s, ok := g.stations.Load(id)
	if !ok {
		return nil, false
	}
	return s.store, true
}

// Channel returns the channel serving a transport line
func (g *Gateway) Channel(t config.TransportConfig) (*channel.Channel, bool) {
	return g.channels.Load(t.Key())
}

// Simulator returns a simulator port, e.g. to force points
func (g *Gateway) Simulator(id string) (*simport.Port, bool) {
	return g.sims.Load(id)
}

// ModbusPort returns a Modbus port
func (g *Gateway) ModbusPort(id string) (*modbusport.Port, bool) {
	return g.modbus.Load(id)
}

// OutstationCount returns the number of running outstations
func (g *Gateway) OutstationCount() int {
	return g.stations.Size()
}
