package outstation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"avaneesh/md3-go/pkg/md3"
	"avaneesh/md3-go/pkg/points"
	"avaneesh/md3-go/pkg/types"
)

const testStation = 0x21

// captureSender records every reply
type captureSender struct {
	sent []md3.Message
	err  error
}

func (c *captureSender) Send(ctx context.Context, msg md3.Message) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

// countingStore counts consistent reads
type countingStore struct {
	*points.Store
	views int
}

func (c *countingStore) View(fn func(points.Reader)) {
	c.views++
	c.Store.View(fn)
}

// recordingControls records controls and answers with status
type recordingControls struct {
	got    []types.Control
	status types.CommandStatus
}

func (r *recordingControls) Operate(ctx context.Context, ctl types.Control) types.CommandStatus {
	r.got = append(r.got, ctl)
	return r.status
}

func digitalIndex(module, bit uint8) uint16 {
	return uint16(module)*16 + uint16(bit)
}

func testPointConfig() points.Config {
	var cfg points.Config
	for _, module := range []uint8{10, 11, 12, 20} {
		for bit := uint8(0); bit < points.BitsPerModule; bit++ {
			cfg.Digital = append(cfg.Digital, points.DigitalPointConfig{
				Index:   digitalIndex(module, bit),
				Address: points.Address{Module: module, Channel: bit},
			})
		}
	}
	cfg.TimeTaggedModules = []uint8{20}

	for ch := uint8(0); ch < 4; ch++ {
		cfg.Analog = append(cfg.Analog, points.AnalogPointConfig{Index: uint16(ch), Address: points.Address{Module: 32, Channel: ch}})
	}
	for ch := uint8(0); ch < 2; ch++ {
		cfg.Counter = append(cfg.Counter, points.AnalogPointConfig{Index: uint16(ch), Address: points.Address{Module: 60, Channel: ch}})
	}
	cfg.Controls = []points.ControlPointConfig{
		{Index: 7, Kind: points.ControlPOM, Address: points.Address{Module: 100, Channel: 3}},
		{Index: 8, Kind: points.ControlDOM, Address: points.Address{Module: 101, Channel: 0}},
		{Index: 9, Kind: points.ControlDOM, Address: points.Address{Module: 101, Channel: 1}},
		{Index: 10, Kind: points.ControlAOM, Address: points.Address{Module: 102, Channel: 0}},
	}
	return cfg
}

type fixture struct {
	o        *Outstation
	store    *countingStore
	sender   *captureSender
	controls *recordingControls
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	s, err := points.NewStore(testPointConfig())
	require.NoError(t, err)

	f := &fixture{
		store:    &countingStore{Store: s},
		sender:   &captureSender{},
		controls: &recordingControls{status: types.CommandStatusSuccess},
	}

	cfg := DefaultConfig("test", testStation)
	cfg.FlagSource = s
	for _, m := range mutate {
		m(&cfg)
	}

	f.o, err = New(cfg, f.store, f.controls, f.sender, nil)
	require.NoError(t, err)
	f.o.Enable()
	return f
}

// request sends msg and returns the reply, or nil when none was sent.
func (f *fixture) request(t *testing.T, msg md3.Message) md3.Message {
	t.Helper()
	before := len(f.sender.sent)
	require.NoError(t, f.o.ProcessMessage(context.Background(), msg))
	if len(f.sender.sent) == before {
		return nil
	}
	reply := f.sender.sent[len(f.sender.sent)-1]
	requireWellFormed(t, reply)
	return reply
}

func requireWellFormed(t *testing.T, m md3.Message) {
	t.Helper()
	require.NoError(t, m.Validate(), "reply %v", m)
	eom := 0
	for _, b := range m {
		if b.IsEOM() {
			eom++
		}
	}
	require.Equal(t, 1, eom, "reply %v", m)
	require.True(t, m[len(m)-1].IsEOM())
}

func scanRequest(fn md3.FunctionCode, module, channels uint8) md3.Message {
	return md3.NewBuilder(md3.NewHeader(testStation, true, fn, module, channels)).Build()
}

func (f *fixture) setBinary(t *testing.T, module, bit uint8, v bool) {
	t.Helper()
	require.NoError(t, f.store.UpdateBinary(digitalIndex(module, bit), types.Binary{Value: v}))
}

func TestNew_Validation(t *testing.T) {
	s, err := points.NewStore(points.Config{})
	require.NoError(t, err)

	_, err = New(DefaultConfig("x", 0), s, nil, &captureSender{}, nil)
	require.Error(t, err)

	cfg := DefaultConfig("x", 5)
	cfg.Fn12ReplyFunction = md3.FnAnalogUnconditional
	_, err = New(cfg, s, nil, &captureSender{}, nil)
	require.Error(t, err)

	_, err = New(DefaultConfig("x", 5), nil, nil, &captureSender{}, nil)
	require.Error(t, err)
}

func TestProcessMessage_StationMismatchIgnored(t *testing.T) {
	f := newFixture(t)
	req := md3.NewBuilder(md3.NewHeader(testStation+1, true, md3.FnAnalogUnconditional, 32, 4)).Build()

	require.Nil(t, f.request(t, req))
	require.Zero(t, f.store.views, "handler ran for another station")
	require.Equal(t, uint64(1), f.o.Statistics().Ignored())
}

func TestProcessMessage_NoReplyFunctions(t *testing.T) {
	tests := []struct {
		name string
		fn   md3.FunctionCode
	}{
		{"Master only no change reply", md3.FnAnalogNoChangeReply},
		{"Unused HRER list", md3.FnHRERListScan},
		{"Unused file upload", md3.FnFileUpload},
		{"Unknown", md3.FunctionCode(99)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if reply := f.request(t, scanRequest(tt.fn, 0, 0)); reply != nil {
				t.Errorf("got reply %v, want none", reply)
			}
		})
	}

	f := newFixture(t)
	f.request(t, scanRequest(md3.FunctionCode(99), 0, 0))
	f.request(t, scanRequest(md3.FnSystemRestart, 0, 0))
	require.Equal(t, uint64(1), f.o.Statistics().Unknown())
	require.Equal(t, uint64(1), f.o.Statistics().NoOps())
}

func TestProcessMessage_Disabled(t *testing.T) {
	f := newFixture(t)
	f.o.Disable()
	err := f.o.ProcessMessage(context.Background(), scanRequest(md3.FnSystemSignOn, 0, 0))
	require.ErrorIs(t, err, ErrOutstationDisabled)
}

func TestProcessMessage_SendFailureSkipsCommit(t *testing.T) {
	f := newFixture(t)
	f.setBinary(t, 11, 0, true)

	f.sender.err = errors.New("link down")
	err := f.o.ProcessMessage(context.Background(), scanRequest(md3.FnDigitalDeltaScan, 10, 3))
	require.Error(t, err)
	require.Equal(t, uint64(1), f.o.Statistics().SendErrors())

	// The change was never delivered so it is still reported
	f.sender.err = nil
	reply := f.request(t, scanRequest(md3.FnDigitalDeltaScan, 10, 3))
	require.Equal(t, md3.FnDigitalDeltaScan, reply.Header().Function())
	require.Equal(t, uint8(1), reply.Header().Channels())
}

func TestSignOn_Echo(t *testing.T) {
	f := newFixture(t)
	reply := f.request(t, scanRequest(md3.FnSystemSignOn, 4, 9))

	require.Len(t, reply, 1)
	h := reply.Header()
	require.Equal(t, md3.FnSystemSignOn, h.Function())
	require.Equal(t, uint8(testStation), h.Station())
	require.False(t, h.MasterToStation())
	require.Equal(t, uint8(4), h.Module())
	require.Equal(t, uint8(9), h.Channels())
}
