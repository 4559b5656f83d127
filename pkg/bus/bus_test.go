package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avaneesh/md3-go/pkg/types"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestBus_FanOutWithFilters(t *testing.T) {
	b := New(nil)
	defer b.Close()

	var all, analogs collector
	_, err := b.Subscribe("all", nil, 0, all.handle)
	require.NoError(t, err)
	_, err = b.Subscribe("analogs", Kinds(types.PointTypeAnalog), 0, analogs.handle)
	require.NoError(t, err)

	assert.Equal(t, 2, b.Publish(AnalogEvent("sim", 1, types.Analog{Value: 12.5})))
	assert.Equal(t, 1, b.Publish(BinaryEvent("sim", 2, types.Binary{Value: true})))

	require.Eventually(t, func() bool { return all.len() == 2 && analogs.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(2), b.Published())
}

func TestBus_NotFrom(t *testing.T) {
	b := New(nil)
	defer b.Close()

	var c collector
	_, err := b.Subscribe("modbus", All(Kinds(types.PointTypeBinary), NotFrom("modbus")), 0, c.handle)
	require.NoError(t, err)

	assert.Equal(t, 0, b.Publish(BinaryEvent("modbus", 1, types.Binary{})))
	assert.Equal(t, 1, b.Publish(BinaryEvent("sim", 1, types.Binary{})))
}

func TestBus_FullQueueDrops(t *testing.T) {
	b := New(nil)
	defer b.Close()

	release := make(chan struct{})
	_, err := b.Subscribe("slow", nil, 1, func(Event) { <-release })
	require.NoError(t, err)

	// First event is taken by the handler, second fills the queue
	b.Publish(CounterEvent("sim", 0, types.Counter{Value: 1}))
	require.Eventually(t, func() bool {
		return b.Publish(CounterEvent("sim", 0, types.Counter{Value: 2})) == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, 0, b.Publish(CounterEvent("sim", 0, types.Counter{Value: 3})))
	assert.NotZero(t, b.Dropped())
	close(release)
}

func TestBus_Cancel(t *testing.T) {
	b := New(nil)
	defer b.Close()

	var c collector
	cancel, err := b.Subscribe("x", nil, 0, c.handle)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Subscribers())

	cancel()
	cancel()
	assert.Equal(t, 0, b.Subscribers())
	assert.Equal(t, 0, b.Publish(BinaryEvent("sim", 0, types.Binary{})))
}

func TestBus_Request(t *testing.T) {
	b := New(nil)
	defer b.Close()

	_, err := b.Subscribe("outputs", Kinds(types.PointTypeControl), 0, func(e Event) {
		if e.Control.Index == 7 {
			e.Respond(types.CommandStatusSuccess)
		}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	status := b.Request(ctx, "md3", types.Control{Index: 7, Code: types.ControlCodeLatchOn})
	assert.Equal(t, types.CommandStatusSuccess, status)

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	status = b.Request(short, "md3", types.Control{Index: 8, Code: types.ControlCodeLatchOn})
	assert.Equal(t, types.CommandStatusTimeout, status)
}

func TestBus_RequestWithoutSubscribers(t *testing.T) {
	b := New(nil)
	defer b.Close()

	status := b.Request(context.Background(), "md3", types.Control{Index: 1})
	assert.Equal(t, types.CommandStatusNotSupported, status)
}

func TestBus_Closed(t *testing.T) {
	b := New(nil)
	b.Close()
	b.Close()

	_, err := b.Subscribe("late", nil, 0, func(Event) {})
	assert.ErrorIs(t, err, ErrBusClosed)
	assert.Equal(t, 0, b.Publish(BinaryEvent("sim", 0, types.Binary{})))
}
