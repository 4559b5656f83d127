package simport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avaneesh/md3-go/pkg/bus"
	"avaneesh/md3-go/pkg/types"
)

var base = time.Unix(1_700_000_000, 0)

type collector struct {
	mu     sync.Mutex
	events []bus.Event
}

func (c *collector) handle(e bus.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) take() []bus.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.events
	c.events = nil
	return out
}

// wait collects exactly n events
func (c *collector) wait(t *testing.T, n int) []bus.Event {
	t.Helper()
	var got []bus.Event
	require.Eventually(t, func() bool {
		got = append(got, c.take()...)
		return len(got) >= n
	}, time.Second, 5*time.Millisecond)
	require.Len(t, got, n)
	return got
}

func byIndex(events []bus.Event, kind types.PointType, index uint16) (bus.Event, bool) {
	for _, e := range events {
		if e.Kind == kind && e.Index == index {
			return e, true
		}
	}
	return bus.Event{}, false
}

func feedback(i uint16) *uint16 { return &i }

func newTestPort(t *testing.T, cfg Config) (*Port, *bus.Bus, *collector) {
	t.Helper()
	b := bus.New(nil)
	t.Cleanup(b.Close)

	c := &collector{}
	_, err := b.Subscribe("collector", bus.Kinds(types.PointTypeBinary, types.PointTypeAnalog, types.PointTypeCounter), 0, c.handle)
	require.NoError(t, err)

	if cfg.Name == "" {
		cfg.Name = "sim"
	}
	p, err := New(cfg, b, nil)
	require.NoError(t, err)
	p.now = func() time.Time { return base }
	return p, b, c
}

func TestRandomInterval(t *testing.T) {
	p, _, _ := newTestPort(t, Config{Seed: 1})
	avg := 100 * time.Millisecond
	var sum time.Duration
	for i := 0; i < 2000; i++ {
		d := randomInterval(avg, p.rng)
		if d < time.Millisecond || d > 199*time.Millisecond {
			t.Fatalf("randomInterval() = %v, outside [1ms, 199ms]", d)
		}
		sum += d
	}
	mean := sum / 2000
	assert.InDelta(t, float64(avg), float64(mean), float64(10*time.Millisecond))

	assert.Equal(t, time.Millisecond, randomInterval(0, p.rng))
}

func TestNew_Duplicates(t *testing.T) {
	b := bus.New(nil)
	defer b.Close()

	_, err := New(Config{Name: "sim", Analogs: []AnalogSim{{Index: 1}, {Index: 1}}}, b, nil)
	assert.Error(t, err)
	_, err = New(Config{}, b, nil)
	assert.Error(t, err)
}

func TestStartAndProcess(t *testing.T) {
	p, _, c := newTestPort(t, Config{
		Seed:     7,
		Analogs:  []AnalogSim{{Index: 0, Mean: 500, StdDev: 0, Interval: time.Second}},
		Binaries: []BinarySim{{Index: 3, Start: true, Interval: time.Second}},
		Counters: []CounterSim{{Index: 9, Increment: 5, Interval: time.Second}},
	})

	p.start(base)
	initial := c.wait(t, 3)
	a, ok := byIndex(initial, types.PointTypeAnalog, 0)
	require.True(t, ok)
	assert.Equal(t, 500.0, a.Analog.Value)
	assert.True(t, a.Analog.Flags.IsOnline())
	bin, _ := byIndex(initial, types.PointTypeBinary, 3)
	assert.True(t, bin.Binary.Value)
	assert.Equal(t, 3, p.tasks.Len())

	// nothing is due yet
	assert.Zero(t, p.process(base))

	// every first update falls within twice the average interval
	assert.Equal(t, 3, p.process(base.Add(2*time.Second)))
	updates := c.wait(t, 3)
	a, _ = byIndex(updates, types.PointTypeAnalog, 0)
	assert.Equal(t, 500.0, a.Analog.Value)
	bin, _ = byIndex(updates, types.PointTypeBinary, 3)
	assert.False(t, bin.Binary.Value)
	cnt, _ := byIndex(updates, types.PointTypeCounter, 9)
	assert.Equal(t, uint32(5), cnt.Counter.Value)

	// rescheduled
	assert.Equal(t, 3, p.tasks.Len())
	assert.Equal(t, uint64(6), p.Published())
}

func TestAnalogNoiseIsSeeded(t *testing.T) {
	cfg := Config{Seed: 42, Analogs: []AnalogSim{{Index: 0, Mean: 100, StdDev: 10, Interval: time.Second}}}

	run := func() float64 {
		p, _, c := newTestPort(t, cfg)
		p.start(base)
		c.wait(t, 1)
		require.Equal(t, 1, p.process(base.Add(2*time.Second)))
		return c.wait(t, 1)[0].Analog.Value
	}

	first := run()
	assert.Equal(t, first, run())
	assert.NotEqual(t, 100.0, first)
}

func TestForceRelease(t *testing.T) {
	p, _, c := newTestPort(t, Config{
		Analogs:  []AnalogSim{{Index: 0, Mean: 10, Interval: time.Second}},
		Binaries: []BinarySim{{Index: 1, Interval: time.Second}},
	})
	p.start(base)
	c.wait(t, 2)

	require.NoError(t, p.Force(types.PointTypeAnalog, 0, 99.5))
	require.NoError(t, p.Force(types.PointTypeBinary, 1, 1))
	forced := c.wait(t, 2)
	a, _ := byIndex(forced, types.PointTypeAnalog, 0)
	assert.Equal(t, 99.5, a.Analog.Value)
	assert.True(t, a.Analog.Flags.IsForced())
	bin, _ := byIndex(forced, types.PointTypeBinary, 1)
	assert.True(t, bin.Binary.Value)

	// forced points stay quiet
	assert.Equal(t, 2, p.process(base.Add(2*time.Second)))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, c.take())

	require.NoError(t, p.Release(types.PointTypeAnalog, 0))
	require.NoError(t, p.Release(types.PointTypeBinary, 1))
	assert.Equal(t, 2, p.process(base.Add(4*time.Second)))
	c.wait(t, 2)

	assert.ErrorIs(t, p.Force(types.PointTypeAnalog, 7, 1), ErrUnknownPoint)
	assert.ErrorIs(t, p.Force(types.PointTypeCounter, 0, 1), ErrNotForceable)
	assert.ErrorIs(t, p.Release(types.PointTypeBinary, 7), ErrUnknownPoint)
}

func TestOperate(t *testing.T) {
	p, _, c := newTestPort(t, Config{
		Controls: []ControlSim{
			{Index: 1, Feedback: feedback(100)},
			{Index: 2, Feedback: feedback(200)},
			{Index: 3},
		},
	})

	assert.Equal(t, types.CommandStatusSuccess, p.operate(types.Control{Index: 1, Code: types.ControlCodeLatchOn}))
	e := c.wait(t, 1)[0]
	assert.Equal(t, types.PointTypeBinary, e.Kind)
	assert.Equal(t, uint16(100), e.Index)
	assert.True(t, e.Binary.Value)

	assert.Equal(t, types.CommandStatusSuccess, p.operate(types.Control{Index: 2, Code: types.ControlCodeSetpoint, Value: 321}))
	e = c.wait(t, 1)[0]
	assert.Equal(t, types.PointTypeAnalog, e.Kind)
	assert.Equal(t, 321.0, e.Analog.Value)

	assert.Equal(t, types.CommandStatusSuccess, p.operate(types.Control{Index: 3, Code: types.ControlCodeLatchOff}))
	assert.Equal(t, types.CommandStatusNotSupported, p.operate(types.Control{Index: 4, Code: types.ControlCodeLatchOff}))
	assert.Equal(t, types.CommandStatusNotSupported, p.operate(types.Control{Index: 1, Code: types.ControlCodeFreeze}))
}

func TestOperate_PulseEndsOnSchedule(t *testing.T) {
	p, _, c := newTestPort(t, Config{Controls: []ControlSim{{Index: 1, Feedback: feedback(100)}}})

	status := p.operate(types.Control{Index: 1, Code: types.ControlCodePulseOn, OnTime: 500})
	require.Equal(t, types.CommandStatusSuccess, status)
	assert.True(t, c.wait(t, 1)[0].Binary.Value)

	assert.Zero(t, p.process(base.Add(499*time.Millisecond)))
	assert.Equal(t, 1, p.process(base.Add(500*time.Millisecond)))
	assert.False(t, c.wait(t, 1)[0].Binary.Value)

	// pulse end is not rescheduled
	assert.Zero(t, p.tasks.Len())
}

func TestRun(t *testing.T) {
	p, b, c := newTestPort(t, Config{
		Counters: []CounterSim{{Index: 0, Increment: 1, Interval: 10 * time.Millisecond}},
		Controls: []ControlSim{{Index: 5, Feedback: feedback(6)}},
	})
	p.now = time.Now

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// start value plus a few increments
	require.Eventually(t, func() bool { return p.Published() >= 3 }, time.Second, 5*time.Millisecond)
	c.take()

	require.Eventually(t, func() bool { return b.Subscribers() == 2 }, time.Second, 5*time.Millisecond)
	reqCtx, reqCancel := context.WithTimeout(context.Background(), time.Second)
	defer reqCancel()
	assert.Equal(t, types.CommandStatusSuccess, b.Request(reqCtx, "md3", types.Control{Index: 5, Code: types.ControlCodeLatchOn}))

	cancel()
	require.NoError(t, <-done)
	assert.Zero(t, p.tasks.Len())
}
