package outstation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"avaneesh/md3-go/pkg/md3"
	"avaneesh/md3-go/pkg/types"
)

func pomRequest(module, channel uint8, confirm bool) md3.Message {
	h := md3.NewHeader(testStation, true, md3.FnPOMControl, module, channel)
	second := ^h.Data()
	if !confirm {
		second ^= 1
	}
	return md3.NewBuilder(h).Add(md3.NewDataBlock32(second)).Build()
}

func confirmedRequest(fn md3.FunctionCode, module, channel uint8, word uint16) md3.Message {
	return md3.NewBuilder(md3.NewHeader(testStation, true, fn, module, channel)).
		Add(md3.NewDataBlock(word, ^word)).
		Build()
}

func TestPOMControl(t *testing.T) {
	f := newFixture(t)
	reply := f.request(t, pomRequest(100, 3, true))

	require.Len(t, reply, 1)
	require.Equal(t, md3.FnControlRequestOK, reply.Header().Function())
	require.Equal(t, uint8(100), reply.Header().Module())
	require.Equal(t, uint8(3), reply.Header().Channels())

	require.Len(t, f.controls.got, 1)
	got := f.controls.got[0]
	require.Equal(t, uint16(7), got.Index)
	require.Equal(t, types.ControlCodePulseOn, got.Code)
	require.Equal(t, uint8(testStation), got.Station)
}

func TestPOMControl_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		req    md3.Message
		status types.CommandStatus
	}{
		{"Confirm mismatch", pomRequest(100, 3, false), types.CommandStatusSuccess},
		{"Missing confirm block", scanRequest(md3.FnPOMControl, 100, 3), types.CommandStatusSuccess},
		{"Handler failure", pomRequest(100, 3, true), types.CommandStatusHardwareError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.controls.status = tt.status

			reply := f.request(t, tt.req)
			require.Equal(t, md3.FnControlOrScanRejected, reply.Header().Function())
			require.Equal(t, uint8(100), reply.Header().Module())
			require.Equal(t, uint64(1), f.o.Statistics().Rejected())
		})
	}
}

func TestControl_NotConfiguredNoReply(t *testing.T) {
	tests := []struct {
		name string
		req  md3.Message
	}{
		{"POM", pomRequest(100, 4, true)},
		{"DOM", confirmedRequest(md3.FnDOMControl, 105, 0, 0xFFFF)},
		{"AOM", confirmedRequest(md3.FnAOMControl, 102, 1, 10)},
		{"Freeze", scanRequest(md3.FnFreezeAndReset, 61, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			err := f.o.ProcessMessage(context.Background(), tt.req)

			require.ErrorIs(t, err, ErrControlNotConfigured)
			var ce *ControlError
			require.True(t, errors.As(err, &ce))
			require.Equal(t, types.CommandStatusNotSupported, ce.Status)
			require.Empty(t, f.sender.sent)
			require.Empty(t, f.controls.got)
		})
	}
}

func TestControl_NoHandler(t *testing.T) {
	f := newFixture(t)
	f.o.controls = nil

	err := f.o.ProcessMessage(context.Background(), pomRequest(100, 3, true))
	require.ErrorIs(t, err, ErrControlNotConfigured)
	require.Empty(t, f.sender.sent)
}

func TestDOMControl(t *testing.T) {
	f := newFixture(t)
	reply := f.request(t, confirmedRequest(md3.FnDOMControl, 101, 0, 0x8000))

	require.Equal(t, md3.FnControlRequestOK, reply.Header().Function())
	require.Len(t, f.controls.got, 2)
	require.Equal(t, uint16(8), f.controls.got[0].Index)
	require.Equal(t, types.ControlCodeLatchOn, f.controls.got[0].Code)
	require.Equal(t, uint16(9), f.controls.got[1].Index)
	require.Equal(t, types.ControlCodeLatchOff, f.controls.got[1].Code)
}

func TestDOMControl_ConfirmMismatch(t *testing.T) {
	f := newFixture(t)
	req := md3.NewBuilder(md3.NewHeader(testStation, true, md3.FnDOMControl, 101, 0)).
		Add(md3.NewDataBlock(0x8000, 0x8000)).
		Build()

	reply := f.request(t, req)
	require.Equal(t, md3.FnControlOrScanRejected, reply.Header().Function())
	require.Empty(t, f.controls.got)
}

func TestAOMControl(t *testing.T) {
	f := newFixture(t)
	reply := f.request(t, confirmedRequest(md3.FnAOMControl, 102, 0, 1234))

	require.Equal(t, md3.FnControlRequestOK, reply.Header().Function())
	require.Len(t, f.controls.got, 1)
	require.Equal(t, uint16(10), f.controls.got[0].Index)
	require.Equal(t, types.ControlCodeSetpoint, f.controls.got[0].Code)
	require.Equal(t, float64(1234), f.controls.got[0].Value)
}

func TestFreezeAndReset(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.UpdateCounter(0, types.Counter{Value: 500}))

	reply := f.request(t, scanRequest(md3.FnFreezeAndReset, 60, 1))
	require.Equal(t, md3.FnControlRequestOK, reply.Header().Function())

	// Live count restarts while the frozen value is reported once
	require.NoError(t, f.store.UpdateCounter(0, types.Counter{Value: 3}))
	counters := f.request(t, scanRequest(md3.FnCounterScan, 60, 1))
	a, _ := counters[1].Words()
	require.Equal(t, uint16(500), a)

	counters = f.request(t, scanRequest(md3.FnCounterScan, 60, 1))
	a, _ = counters[1].Words()
	require.Equal(t, uint16(3), a)
}

func TestFreezeAndReset_SendFailureKeepsCounts(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.UpdateCounter(0, types.Counter{Value: 500}))

	f.sender.err = errors.New("link down")
	err := f.o.ProcessMessage(context.Background(), scanRequest(md3.FnFreezeAndReset, 60, 1))
	require.Error(t, err)

	// Neither frozen nor reset
	f.sender.err = nil
	require.NoError(t, f.store.UpdateCounter(0, types.Counter{Value: 510}))
	counters := f.request(t, scanRequest(md3.FnCounterScan, 60, 1))
	a, _ := counters[1].Words()
	require.Equal(t, uint16(510), a)
}
