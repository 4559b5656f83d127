// Package modbusport is a Modbus TCP master that feeds the gateway bus. It
// polls coil and register ranges on a ticker, publishes the values that
// changed and writes single coils or registers for the controls it owns.
package modbusport

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"avaneesh/md3-go/pkg/bus"
	"avaneesh/md3-go/pkg/internal/logger"
	"avaneesh/md3-go/pkg/types"
)

var (
	ErrNoClient = errors.New("modbusport: no client")
)

// ReadBlock is one poll request. Item i is published on Index+i.
type ReadBlock struct {
	FC       uint8
	Address  uint16
	Quantity uint16
	Index    uint16
	Counter  bool // registers are published as counters instead of analogs
}

// Write maps a control index to a coil (FC 5) or register (FC 6).
type Write struct {
	FC      uint8
	Address uint16
}

// Config is the runtime config of one port
type Config struct {
	Name     string
	Interval time.Duration
	Reads    []ReadBlock
	Writes   map[uint16]Write
}

// ClientFactory makes one connection attempt
type ClientFactory func() (Client, error)

type pointKey struct {
	kind  types.PointType
	index uint16
}

type lastValue struct {
	binary bool
	word   uint16
}

// Port polls one Modbus slave
type Port struct {
	cfg     Config
	factory ClientFactory
	bus     *bus.Bus
	logger  logger.Logger
	now     func() time.Time

	mu     sync.Mutex
	client Client
	last   map[pointKey]lastValue
	online bool

	polls    atomic.Uint64
	failures atomic.Uint64
	writes   atomic.Uint64
}

// New creates a port. client may be nil; factory is used whenever no
// healthy client is held.
func New(cfg Config, client Client, factory ClientFactory, b *bus.Bus, log logger.Logger) (*Port, error) {
	if cfg.Name == "" {
		return nil, errors.New("modbusport: name required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("modbusport: interval must be > 0")
	}
	if len(cfg.Reads) == 0 && len(cfg.Writes) == 0 {
		return nil, errors.New("modbusport: nothing to read or write")
	}
	if b == nil {
		return nil, errors.New("modbusport: bus required")
	}
	if client == nil && factory == nil {
		return nil, ErrNoClient
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &Port{
		cfg:     cfg,
		factory: factory,
		bus:     b,
		logger:  log.With("port", cfg.Name),
		now:     time.Now,
		client:  client,
		last:    make(map[pointKey]lastValue),
	}, nil
}

// Name returns the port name used as bus source
func (p *Port) Name() string { return p.cfg.Name }

// Polls returns the number of completed poll cycles
func (p *Port) Polls() uint64 { return p.polls.Load() }

// Failures returns the number of failed poll cycles
func (p *Port) Failures() uint64 { return p.failures.Load() }

// Writes returns the number of successful control writes
func (p *Port) Writes() uint64 { return p.writes.Load() }

// Run subscribes to the controls this port owns and polls until ctx ends.
func (p *Port) Run(ctx context.Context) error {
	if len(p.cfg.Writes) > 0 {
		owned := func(e bus.Event) bool {
			_, ok := p.cfg.Writes[e.Index]
			return ok
		}
		cancel, err := p.bus.Subscribe(p.cfg.Name, bus.All(bus.Kinds(types.PointTypeControl), owned), 0, p.handleControl)
		if err != nil {
			return err
		}
		defer cancel()
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	defer p.dropClient()

	p.logger.Info("modbus port started", "interval", p.cfg.Interval, "reads", len(p.cfg.Reads), "writes", len(p.cfg.Writes))
	for {
		if len(p.cfg.Reads) > 0 {
			if err := p.PollOnce(); err != nil {
				p.logger.Warn("poll failed", "error", err)
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// acquire returns the held client, dialing one when needed. Caller holds mu.
func (p *Port) acquire() (Client, error) {
	if p.client != nil {
		return p.client, nil
	}
	if p.factory == nil {
		return nil, ErrNoClient
	}
	c, err := p.factory()
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	p.client = c
	p.logger.Info("connected")
	return c, nil
}

func (p *Port) dropClient() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropClientLocked()
}

// dropClientLocked closes the held client. A client given to New without
// a factory is kept, there is nothing to replace it with.
func (p *Port) dropClientLocked() {
	if p.client == nil || p.factory == nil {
		return
	}
	if err := p.client.Close(); err != nil {
		p.logger.Debug("close client", "error", err)
	}
	p.client = nil
}

// PollOnce performs exactly one poll cycle and publishes what changed.
// All-or-nothing: any failure aborts the cycle, drops the connection and
// marks every known point comm lost.
func (p *Port) PollOnce() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.polls.Add(1)
	events, err := p.readAll()
	if err != nil {
		p.failures.Add(1)
		p.dropClientLocked()
		if p.online {
			p.online = false
			p.publishCommLost()
		}
		return err
	}

	p.online = true
	for _, e := range events {
		p.bus.Publish(e)
	}
	return nil
}

// readAll reads every block and returns events for the changed points. The
// last-value table is only updated when the whole cycle succeeded.
func (p *Port) readAll() ([]bus.Event, error) {
	client, err := p.acquire()
	if err != nil {
		return nil, err
	}

	now := p.now()
	flags := types.FlagOnline
	next := make(map[pointKey]lastValue)
	var events []bus.Event

	for _, rb := range p.cfg.Reads {
		switch rb.FC {
		case 1, 2:
			var bits []bool
			if rb.FC == 1 {
				bits, err = client.ReadCoils(rb.Address, rb.Quantity)
			} else {
				bits, err = client.ReadDiscreteInputs(rb.Address, rb.Quantity)
			}
			if err != nil {
				return nil, fmt.Errorf("fc%d @%d: %w", rb.FC, rb.Address, err)
			}
			for i, v := range bits {
				idx := rb.Index + uint16(i)
				next[pointKey{types.PointTypeBinary, idx}] = lastValue{binary: v}
				events = append(events, bus.BinaryEvent(p.cfg.Name, idx, types.Binary{Value: v, Flags: flags, Time: now}))
			}

		case 3, 4:
			var regs []uint16
			if rb.FC == 3 {
				regs, err = client.ReadHoldingRegisters(rb.Address, rb.Quantity)
			} else {
				regs, err = client.ReadInputRegisters(rb.Address, rb.Quantity)
			}
			if err != nil {
				return nil, fmt.Errorf("fc%d @%d: %w", rb.FC, rb.Address, err)
			}
			for i, r := range regs {
				idx := rb.Index + uint16(i)
				if rb.Counter {
					next[pointKey{types.PointTypeCounter, idx}] = lastValue{word: r}
					events = append(events, bus.CounterEvent(p.cfg.Name, idx, types.Counter{Value: uint32(r), Flags: flags, Time: now}))
				} else {
					next[pointKey{types.PointTypeAnalog, idx}] = lastValue{word: r}
					events = append(events, bus.AnalogEvent(p.cfg.Name, idx, types.Analog{Value: float64(r), Flags: flags, Time: now}))
				}
			}

		default:
			return nil, fmt.Errorf("fc%d unsupported", rb.FC)
		}
	}

	changed := events[:0]
	for _, e := range events {
		key := pointKey{e.Kind, e.Index}
		prev, seen := p.last[key]
		if p.online && seen && prev == next[key] {
			continue
		}
		changed = append(changed, e)
	}
	p.last = next
	return changed, nil
}

func (p *Port) publishCommLost() {
	now := p.now()
	flags := types.Flags(0).WithCommLost(true)
	for key, v := range p.last {
		switch key.kind {
		case types.PointTypeBinary:
			p.bus.Publish(bus.BinaryEvent(p.cfg.Name, key.index, types.Binary{Value: v.binary, Flags: flags, Time: now}))
		case types.PointTypeAnalog:
			p.bus.Publish(bus.AnalogEvent(p.cfg.Name, key.index, types.Analog{Value: float64(v.word), Flags: flags, Time: now}))
		case types.PointTypeCounter:
			p.bus.Publish(bus.CounterEvent(p.cfg.Name, key.index, types.Counter{Value: uint32(v.word), Flags: flags, Time: now}))
		}
	}
	p.logger.Warn("comms lost", "points", len(p.last))
}

func (p *Port) handleControl(e bus.Event) {
	w, ok := p.cfg.Writes[e.Index]
	if !ok {
		return
	}
	status := p.operate(e.Control, w)
	p.logger.Debug("control", "control", e.Control.String(), "status", status.String())
	e.Respond(status)
}

func (p *Port) operate(ctl types.Control, w Write) types.CommandStatus {
	var value uint16
	switch w.FC {
	case 5:
		on, ok := ctl.State()
		if !ok {
			return types.CommandStatusFormatError
		}
		if on {
			value = 1
		}
	case 6:
		if ctl.Code == types.ControlCodeSetpoint {
			if ctl.Value < 0 || ctl.Value > math.MaxUint16 {
				return types.CommandStatusOutOfRange
			}
			value = uint16(ctl.Value)
		} else if on, ok := ctl.State(); ok {
			if on {
				value = 1
			}
		} else {
			return types.CommandStatusFormatError
		}
	default:
		return types.CommandStatusNotSupported
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	client, err := p.acquire()
	if err != nil {
		p.logger.Warn("control write", "index", ctl.Index, "error", err)
		return types.CommandStatusHardwareError
	}
	if w.FC == 5 {
		err = client.WriteSingleCoil(w.Address, value == 1)
	} else {
		err = client.WriteSingleRegister(w.Address, value)
	}
	if err != nil {
		p.logger.Warn("control write", "index", ctl.Index, "fc", w.FC, "address", w.Address, "error", err)
		p.dropClientLocked()
		return types.CommandStatusHardwareError
	}
	p.writes.Add(1)
	return types.CommandStatusSuccess
}
