// Package simport is a simulated data source for the gateway bus. Analogs
// wander around a mean with normally distributed noise, binaries toggle and
// counters count, each on a random interval. Points can be forced to a
// fixed value and released again, and configured controls are answered
// with optional feedback onto a binary or analog point.
package simport

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"avaneesh/md3-go/pkg/bus"
	"avaneesh/md3-go/pkg/internal/logger"
	"avaneesh/md3-go/pkg/internal/queue"
	"avaneesh/md3-go/pkg/types"
)

var (
	ErrUnknownPoint = errors.New("simport: point not simulated")
	ErrNotForceable = errors.New("simport: point type cannot be forced")
)

// AnalogSim describes one simulated analog
type AnalogSim struct {
	Index    uint16
	Mean     float64
	StdDev   float64
	Interval time.Duration // average update interval, 0 keeps the start value
}

// BinarySim describes one simulated binary
type BinarySim struct {
	Index    uint16
	Start    bool
	Interval time.Duration
}

// CounterSim describes one simulated counter
type CounterSim struct {
	Index     uint16
	Increment uint32
	Interval  time.Duration
}

// ControlSim accepts controls on Index. Feedback, when set, is the binary
// (latch and pulse codes) or analog (setpoints) index driven by the control.
type ControlSim struct {
	Index    uint16
	Feedback *uint16
}

// Config is the runtime config of one simulator
type Config struct {
	Name     string
	Seed     uint64
	Analogs  []AnalogSim
	Binaries []BinarySim
	Counters []CounterSim
	Controls []ControlSim
}

type taskKind uint8

const (
	taskAnalog taskKind = iota
	taskBinary
	taskCounter
	taskPulseEnd
)

type task struct {
	kind     taskKind
	index    uint16
	interval time.Duration
}

type analogState struct {
	cfg    AnalogSim
	forced bool
}

type binaryState struct {
	cfg    BinarySim
	value  bool
	forced bool
}

type counterState struct {
	cfg   CounterSim
	value uint32
}

// Port is one simulator
type Port struct {
	cfg    Config
	bus    *bus.Bus
	logger logger.Logger
	now    func() time.Time

	mu       sync.Mutex
	rng      *rand.Rand
	analogs  map[uint16]*analogState
	binaries map[uint16]*binaryState
	counters map[uint16]*counterState
	controls map[uint16]ControlSim

	tasks *queue.PriorityQueue[task]
	wake  chan struct{}

	published atomic.Uint64
}

// New creates a simulator publishing on b
func New(cfg Config, b *bus.Bus, log logger.Logger) (*Port, error) {
	if cfg.Name == "" {
		return nil, errors.New("simport: name required")
	}
	if b == nil {
		return nil, errors.New("simport: bus required")
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	p := &Port{
		cfg:      cfg,
		bus:      b,
		logger:   log.With("port", cfg.Name),
		now:      time.Now,
		rng:      rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9E3779B97F4A7C15)),
		analogs:  make(map[uint16]*analogState),
		binaries: make(map[uint16]*binaryState),
		counters: make(map[uint16]*counterState),
		controls: make(map[uint16]ControlSim),
		tasks:    queue.NewPriorityQueue[task](),
		wake:     make(chan struct{}, 1),
	}

	for _, a := range cfg.Analogs {
		if _, dup := p.analogs[a.Index]; dup {
			return nil, fmt.Errorf("simport: analog %d configured twice", a.Index)
		}
		p.analogs[a.Index] = &analogState{cfg: a}
	}
	for _, bs := range cfg.Binaries {
		if _, dup := p.binaries[bs.Index]; dup {
			return nil, fmt.Errorf("simport: binary %d configured twice", bs.Index)
		}
		p.binaries[bs.Index] = &binaryState{cfg: bs, value: bs.Start}
	}
	for _, c := range cfg.Counters {
		if _, dup := p.counters[c.Index]; dup {
			return nil, fmt.Errorf("simport: counter %d configured twice", c.Index)
		}
		p.counters[c.Index] = &counterState{cfg: c}
	}
	for _, c := range cfg.Controls {
		p.controls[c.Index] = c
	}
	return p, nil
}

// Name returns the port name used as bus source
func (p *Port) Name() string { return p.cfg.Name }

// Published returns the number of measurement events published
func (p *Port) Published() uint64 { return p.published.Load() }

// randomInterval is uniform over [1ms, 2*avg-1ms], averaging avg.
func randomInterval(avg time.Duration, rng *rand.Rand) time.Duration {
	ms := avg.Milliseconds()
	if ms <= 1 {
		return time.Millisecond
	}
	return time.Duration(1+rng.Int64N(2*ms-1)) * time.Millisecond
}

func (p *Port) publish(e bus.Event) {
	p.published.Add(1)
	p.bus.Publish(e)
}

// start publishes every start value and schedules the first updates.
func (p *Port) start(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	flags := types.FlagOnline
	for idx, a := range p.analogs {
		p.publish(bus.AnalogEvent(p.cfg.Name, idx, types.Analog{Value: a.cfg.Mean, Flags: flags, Time: now}))
		if a.cfg.Interval > 0 {
			p.tasks.Push(task{taskAnalog, idx, a.cfg.Interval}, 0, now.Add(randomInterval(a.cfg.Interval, p.rng)))
		}
	}
	for idx, b := range p.binaries {
		p.publish(bus.BinaryEvent(p.cfg.Name, idx, types.Binary{Value: b.value, Flags: flags, Time: now}))
		if b.cfg.Interval > 0 {
			p.tasks.Push(task{taskBinary, idx, b.cfg.Interval}, 0, now.Add(randomInterval(b.cfg.Interval, p.rng)))
		}
	}
	for idx, c := range p.counters {
		p.publish(bus.CounterEvent(p.cfg.Name, idx, types.Counter{Value: c.value, Flags: flags, Time: now}))
		if c.cfg.Interval > 0 {
			p.tasks.Push(task{taskCounter, idx, c.cfg.Interval}, 0, now.Add(randomInterval(c.cfg.Interval, p.rng)))
		}
	}
}

// process runs every task due at now and returns how many ran.
func (p *Port) process(now time.Time) int {
	ran := 0
	for {
		t, ok := p.tasks.NextReady(now)
		if !ok {
			return ran
		}
		ran++
		p.run(t, now)
	}
}

func (p *Port) run(t task, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	flags := types.FlagOnline
	switch t.kind {
	case taskAnalog:
		a := p.analogs[t.index]
		if !a.forced {
			v := a.cfg.Mean + p.rng.NormFloat64()*a.cfg.StdDev
			p.publish(bus.AnalogEvent(p.cfg.Name, t.index, types.Analog{Value: v, Flags: flags, Time: now}))
		}

	case taskBinary:
		b := p.binaries[t.index]
		if !b.forced {
			b.value = !b.value
			p.publish(bus.BinaryEvent(p.cfg.Name, t.index, types.Binary{Value: b.value, Flags: flags, Time: now}))
		}

	case taskCounter:
		c := p.counters[t.index]
		c.value += c.cfg.Increment
		p.publish(bus.CounterEvent(p.cfg.Name, t.index, types.Counter{Value: c.value, Flags: flags, Time: now}))

	case taskPulseEnd:
		p.publish(bus.BinaryEvent(p.cfg.Name, t.index, types.Binary{Value: false, Flags: flags, Time: now}))
		return
	}

	p.tasks.Push(t, 0, now.Add(randomInterval(t.interval, p.rng)))
}

// Run publishes start values, answers owned controls and drives the
// update schedule until ctx ends.
func (p *Port) Run(ctx context.Context) error {
	if len(p.controls) > 0 {
		owned := func(e bus.Event) bool {
			_, ok := p.controls[e.Index]
			return ok
		}
		cancel, err := p.bus.Subscribe(p.cfg.Name, bus.All(bus.Kinds(types.PointTypeControl), owned), 0, p.handleControl)
		if err != nil {
			return err
		}
		defer cancel()
	}

	p.start(p.now())
	defer p.tasks.Clear()
	p.logger.Info("simulator started", "analogs", len(p.analogs), "binaries", len(p.binaries), "counters", len(p.counters))

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		wait := time.Hour
		if next, ok := p.tasks.Peek(); ok {
			wait = max(next.NextRun.Sub(p.now()), 0)
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return nil
		case <-p.wake:
		case <-timer.C:
			p.process(p.now())
		}
	}
}

func (p *Port) schedule(t task, at time.Time) {
	p.tasks.Push(t, 1, at)
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Force pins a binary or analog to value until Release. Periodic updates
// of the point are suppressed while forced.
func (p *Port) Force(kind types.PointType, index uint16, value float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	flags := types.FlagOnline | types.FlagLocalForced
	now := p.now()
	switch kind {
	case types.PointTypeBinary:
		b, ok := p.binaries[index]
		if !ok {
			return ErrUnknownPoint
		}
		b.forced = true
		b.value = value >= 1
		p.publish(bus.BinaryEvent(p.cfg.Name, index, types.Binary{Value: b.value, Flags: flags, Time: now}))
	case types.PointTypeAnalog:
		a, ok := p.analogs[index]
		if !ok {
			return ErrUnknownPoint
		}
		a.forced = true
		p.publish(bus.AnalogEvent(p.cfg.Name, index, types.Analog{Value: value, Flags: flags, Time: now}))
	default:
		return ErrNotForceable
	}
	p.logger.Info("point forced", "type", kind.String(), "index", index, "value", value)
	return nil
}

// Release returns a forced point to simulation
func (p *Port) Release(kind types.PointType, index uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch kind {
	case types.PointTypeBinary:
		b, ok := p.binaries[index]
		if !ok {
			return ErrUnknownPoint
		}
		b.forced = false
	case types.PointTypeAnalog:
		a, ok := p.analogs[index]
		if !ok {
			return ErrUnknownPoint
		}
		a.forced = false
	default:
		return ErrNotForceable
	}
	p.logger.Info("point released", "type", kind.String(), "index", index)
	return nil
}

func (p *Port) handleControl(e bus.Event) {
	status := p.operate(e.Control)
	p.logger.Debug("control", "control", e.Control.String(), "status", status.String())
	e.Respond(status)
}

func (p *Port) operate(ctl types.Control) types.CommandStatus {
	c, ok := p.controls[ctl.Index]
	if !ok {
		return types.CommandStatusNotSupported
	}
	if c.Feedback == nil {
		return types.CommandStatusSuccess
	}

	fb := *c.Feedback
	now := p.now()
	flags := types.FlagOnline
	switch ctl.Code {
	case types.ControlCodeSetpoint:
		p.publish(bus.AnalogEvent(p.cfg.Name, fb, types.Analog{Value: ctl.Value, Flags: flags, Time: now}))
	case types.ControlCodePulseOn:
		p.publish(bus.BinaryEvent(p.cfg.Name, fb, types.Binary{Value: true, Flags: flags, Time: now}))
		if ctl.OnTime > 0 {
			p.schedule(task{kind: taskPulseEnd, index: fb}, now.Add(time.Duration(ctl.OnTime)*time.Millisecond))
		}
	default:
		on, ok := ctl.State()
		if !ok {
			return types.CommandStatusNotSupported
		}
		p.publish(bus.BinaryEvent(p.cfg.Name, fb, types.Binary{Value: on, Flags: flags, Time: now}))
	}
	return types.CommandStatusSuccess
}
