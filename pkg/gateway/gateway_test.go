package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avaneesh/md3-go/pkg/channel"
	"avaneesh/md3-go/pkg/config"
	"avaneesh/md3-go/pkg/md3"
	"avaneesh/md3-go/pkg/modbusport"
	"avaneesh/md3-go/pkg/points"
)

const testStation = 33

// fakeSlave answers discrete input reads with fixed bits
type fakeSlave struct {
	bits []bool
}

func (f *fakeSlave) ReadCoils(_, qty uint16) ([]bool, error) { return make([]bool, qty), nil }
func (f *fakeSlave) ReadDiscreteInputs(_, qty uint16) ([]bool, error) {
	out := make([]bool, qty)
	copy(out, f.bits)
	return out, nil
}
func (f *fakeSlave) ReadHoldingRegisters(_, qty uint16) ([]uint16, error) {
	return make([]uint16, qty), nil
}
func (f *fakeSlave) ReadInputRegisters(_, qty uint16) ([]uint16, error) {
	return make([]uint16, qty), nil
}
func (f *fakeSlave) WriteSingleCoil(uint16, bool) error       { return nil }
func (f *fakeSlave) WriteSingleRegister(uint16, uint16) error { return nil }
func (f *fakeSlave) Close() error                             { return nil }

// memoryLines hands out one MemoryChannel per line
type memoryLines struct {
	mu    sync.Mutex
	lines map[string]*channel.MemoryChannel
}

func (m *memoryLines) factory(t config.TransportConfig) (channel.PhysicalChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lines == nil {
		m.lines = make(map[string]*channel.MemoryChannel)
	}
	mc := channel.NewMemoryChannel(16)
	m.lines[t.Key()] = mc
	return mc, nil
}

func (m *memoryLines) line(key string) *channel.MemoryChannel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lines[key]
}

func feedback(i uint16) *uint16 { return &i }

func testConfig() *config.Config {
	cfg := &config.Config{
		Outstations: []config.OutstationConfig{{
			ID:        "rtu",
			Station:   testStation,
			Transport: config.TransportConfig{Type: "tcp", Address: "line-a"},
			Points: config.PointsConfig{
				DigitalModules: []config.DigitalModuleConfig{{Module: 10, StartIndex: 0}},
				Analog:         []config.PointConfig{{Index: 0, Module: 32, Channel: 0}},
				Controls: []config.ControlConfig{
					{Index: 7, Kind: "pom", Module: 100, Channel: 3},
					{Index: 9, Kind: "pom", Module: 100, Channel: 4},
				},
			},
		}},
		Modbus: []config.ModbusConfig{{
			ID:       "plc",
			Endpoint: "127.0.0.1:502",
			Reads:    []config.ModbusReadConfig{{FC: 2, Address: 0, Quantity: 2, Index: 10}},
		}},
		Simulators: []config.SimulatorConfig{{
			ID:       "sim",
			Seed:     1,
			Analogs:  []config.SimAnalogConfig{{Index: 0, Mean: 1234}},
			Controls: []config.SimControlConfig{{Index: 7, Feedback: feedback(5)}},
		}},
	}
	config.Normalize(cfg)
	// no periodic updates, the start value is all the test needs
	cfg.Simulators[0].Analogs[0].IntervalMs = 0
	cfg.Outstations[0].ControlTimeoutMs = 100
	return cfg
}

func startGateway(t *testing.T, cfg *config.Config) (*Gateway, *memoryLines) {
	t.Helper()
	lines := &memoryLines{}
	dialer := func(config.ModbusConfig) (modbusport.Client, error) {
		return &fakeSlave{bits: []bool{true, false}}, nil
	}

	g, err := New(cfg, nil, WithTransportFactory(lines.factory), WithModbusDialer(dialer))
	require.NoError(t, err)
	require.NoError(t, g.Start(context.Background()))
	t.Cleanup(func() { _ = g.Shutdown() })
	return g, lines
}

func roundTrip(t *testing.T, line *channel.MemoryChannel, req md3.Message) md3.Message {
	t.Helper()
	line.Inject(req.Serialize())
	data := line.Written(2 * time.Second)
	require.NotNil(t, data, "no reply to %v", req)
	reply, err := md3.Decode(data)
	require.NoError(t, err)
	return reply
}

func digital(store *points.Store, module, bit uint8) bool {
	var v bool
	store.View(func(r points.Reader) { v, _, _ = r.Digital(module, bit) })
	return v
}

func TestGateway_EndToEnd(t *testing.T) {
	cfg := testConfig()
	g, lines := startGateway(t, cfg)

	require.Equal(t, 1, g.OutstationCount())
	store, ok := g.Store("rtu")
	require.True(t, ok)
	line := lines.line(cfg.Outstations[0].Transport.Key())
	require.NotNil(t, line)

	// simulator start value reaches the store
	require.Eventually(t, func() bool {
		var v uint16
		store.View(func(r points.Reader) { v, _, _ = r.Analog(32, 0) })
		return v == 1234
	}, 2*time.Second, 10*time.Millisecond)

	// modbus discrete input 0 lands on index 10, module 10 bit 10
	require.Eventually(t, func() bool { return digital(store, 10, 10) }, 2*time.Second, 10*time.Millisecond)

	reply := roundTrip(t, line, md3.NewBuilder(md3.NewHeader(testStation, true, md3.FnAnalogUnconditional, 32, 1)).Build())
	require.Equal(t, md3.FnAnalogUnconditional, reply.Header().Function())
	require.GreaterOrEqual(t, len(reply), 2)
	a, _ := reply[1].Words()
	assert.Equal(t, uint16(1234), a)

	// POM control answered by the simulator, which drives feedback index 5
	h := md3.NewHeader(testStation, true, md3.FnPOMControl, 100, 3)
	reply = roundTrip(t, line, md3.NewBuilder(h).Add(md3.NewDataBlock32(^h.Data())).Build())
	assert.Equal(t, md3.FnControlRequestOK, reply.Header().Function())
	require.Eventually(t, func() bool { return digital(store, 10, 5) }, 2*time.Second, 10*time.Millisecond)

	// index 9 is configured on the outstation but no port owns it
	h = md3.NewHeader(testStation, true, md3.FnPOMControl, 100, 4)
	line.Inject(md3.NewBuilder(h).Add(md3.NewDataBlock32(^h.Data())).Build().Serialize())
	assert.Nil(t, line.Written(300*time.Millisecond))
}

func TestGateway_MultiDrop(t *testing.T) {
	cfg := testConfig()
	second := cfg.Outstations[0]
	second.ID = "rtu2"
	second.Station = testStation + 1
	cfg.Outstations = append(cfg.Outstations, second)

	g, lines := startGateway(t, cfg)
	require.Equal(t, 2, g.OutstationCount())

	ch, ok := g.Channel(cfg.Outstations[0].Transport)
	require.True(t, ok)
	require.Equal(t, uint64(2), ch.GetStatistics().GetActiveSessions())

	line := lines.line(cfg.Outstations[0].Transport.Key())
	reply := roundTrip(t, line, md3.NewBuilder(md3.NewHeader(testStation+1, true, md3.FnSystemSignOn, 0, 0)).Build())
	assert.Equal(t, uint8(testStation+1), reply.Header().Station())
}

func TestGateway_StartErrors(t *testing.T) {
	cfg := testConfig()
	failing := func(config.TransportConfig) (channel.PhysicalChannel, error) {
		return nil, errors.New("port busy")
	}
	g, err := New(cfg, nil, WithTransportFactory(failing))
	require.NoError(t, err)
	require.Error(t, g.Start(context.Background()))
	assert.Zero(t, g.OutstationCount())

	// a gateway starts once
	assert.ErrorIs(t, g.Start(context.Background()), ErrStarted)

	g2, err := New(testConfig(), nil)
	require.NoError(t, err)
	assert.ErrorIs(t, g2.Shutdown(), ErrNotStarted)
}

func TestGateway_SetLogLevel(t *testing.T) {
	g, _ := startGateway(t, testConfig())
	assert.NoError(t, g.SetLogLevel("debug"))
	assert.Error(t, g.SetLogLevel("verbose"))
}

func TestGateway_RunStopsOnCancel(t *testing.T) {
	lines := &memoryLines{}
	dialer := func(config.ModbusConfig) (modbusport.Client, error) { return &fakeSlave{}, nil }
	g, err := New(testConfig(), nil, WithTransportFactory(lines.factory), WithModbusDialer(dialer))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	require.Eventually(t, func() bool { return g.OutstationCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Zero(t, g.OutstationCount())
}
