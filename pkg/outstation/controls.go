package outstation

import (
	"context"
	"fmt"

	"avaneesh/md3-go/pkg/md3"
	"avaneesh/md3-go/pkg/points"
	"avaneesh/md3-go/pkg/types"
)

// ControlError reports a control that was not executed and got no reply.
type ControlError struct {
	Status  types.CommandStatus
	Kind    string
	Address points.Address
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("%s control %s: %s", e.Kind, e.Address, e.Status)
}

// Unwrap maps NotSupported to ErrControlNotConfigured
func (e *ControlError) Unwrap() error {
	if e.Status == types.CommandStatusNotSupported {
		return ErrControlNotConfigured
	}
	return nil
}

func notConfigured(kind string, addr points.Address) error {
	return &ControlError{Status: types.CommandStatusNotSupported, Kind: kind, Address: addr}
}

func (o *Outstation) operate(ctx context.Context, ctl types.Control) types.CommandStatus {
	if o.controls == nil {
		return types.CommandStatusNotSupported
	}
	ctl.Station = o.config.Station
	status := o.controls.Operate(ctx, ctl)
	o.logger.Info("control operated", "control", ctl.String(), "status", status)
	return status
}

// controlOK echoes the request header with the control accepted code.
func (o *Outstation) controlOK(h md3.Block) *response {
	return &response{reply: md3.NewBuilder(o.header(md3.FnControlRequestOK, h.Module(), h.Channels())).Build()}
}

// rejected echoes the request header with the control or scan rejected code.
func (o *Outstation) rejected(h md3.Block, reason error) *response {
	o.stats.inc(&o.stats.rejected)
	o.logger.Warn("request rejected", "function", h.Function(), "reason", reason)
	return &response{reply: md3.NewBuilder(o.header(md3.FnControlOrScanRejected, h.Module(), h.Channels())).Build()}
}

// confirmWords returns the two words of the first data block and whether the
// second is the complement of the first.
func confirmWords(req md3.Message) (uint16, bool, error) {
	payload := req.Payload()
	if len(payload) == 0 {
		return 0, false, ErrMissingBlock
	}
	a, b := payload[0].Words()
	return a, a == ^b, nil
}

// Function 16. Module is the counter module; channel bit 0 requests reset.
func (o *Outstation) handleFreezeAndReset(req md3.Message) (*response, error) {
	h := req.Header()
	reset := h.Channels()&0x01 != 0

	configured := false
	o.store.View(func(r points.Reader) {
		for ch := uint8(0); ch < points.BitsPerModule && !configured; ch++ {
			_, configured = r.Counter(h.Module(), ch)
		}
	})
	if !configured {
		return nil, notConfigured("counter", points.Address{Module: h.Module()})
	}

	resp := o.controlOK(h)
	resp.commit = func() {
		o.store.FreezeCounters(h.Module(), reset)
		o.logger.Info("counters frozen", "module", h.Module(), "reset", reset)
	}
	return resp, nil
}

// Function 17. The second block must be the bitwise complement of the header.
func (o *Outstation) handlePOMControl(ctx context.Context, req md3.Message) (*response, error) {
	h := req.Header()
	addr := points.Address{Module: h.Module(), Channel: h.Channels()}

	payload := req.Payload()
	if len(payload) == 0 {
		return o.rejected(h, ErrMissingBlock), nil
	}
	if payload[0].Data() != ^h.Data() {
		return o.rejected(h, ErrControlConfirm), nil
	}

	idx, ok := o.store.ControlIndex(points.ControlPOM, addr)
	if !ok {
		return nil, notConfigured("POM", addr)
	}

	status := o.operate(ctx, types.Control{Index: idx, Code: types.ControlCodePulseOn, Count: 1})
	if status == types.CommandStatusNotSupported {
		return nil, &ControlError{Status: status, Kind: "POM", Address: addr}
	}
	if !status.IsSuccess() {
		return o.rejected(h, fmt.Errorf("operate: %s", status)), nil
	}
	return o.controlOK(h), nil
}

// Function 19. The data block holds the output word and its complement; each
// configured bit is latched to its value.
func (o *Outstation) handleDOMControl(ctx context.Context, req md3.Message) (*response, error) {
	h := req.Header()

	word, confirmed, err := confirmWords(req)
	if err != nil {
		return o.rejected(h, err), nil
	}
	if !confirmed {
		return o.rejected(h, ErrControlConfirm), nil
	}

	operated := 0
	for bit := uint8(0); bit < points.BitsPerModule; bit++ {
		addr := points.Address{Module: h.Module(), Channel: bit}
		idx, ok := o.store.ControlIndex(points.ControlDOM, addr)
		if !ok {
			continue
		}
		code := types.ControlCodeLatchOff
		if word&(1<<(15-bit)) != 0 {
			code = types.ControlCodeLatchOn
		}
		status := o.operate(ctx, types.Control{Index: idx, Code: code, Count: 1})
		if !status.IsSuccess() {
			return o.rejected(h, fmt.Errorf("operate bit %d: %s", bit, status)), nil
		}
		operated++
	}

	if operated == 0 {
		return nil, notConfigured("DOM", points.Address{Module: h.Module()})
	}
	return o.controlOK(h), nil
}

// Function 23. The data block holds the setpoint and its complement.
func (o *Outstation) handleAOMControl(ctx context.Context, req md3.Message) (*response, error) {
	h := req.Header()
	addr := points.Address{Module: h.Module(), Channel: h.Channels()}

	value, confirmed, err := confirmWords(req)
	if err != nil {
		return o.rejected(h, err), nil
	}
	if !confirmed {
		return o.rejected(h, ErrControlConfirm), nil
	}

	idx, ok := o.store.ControlIndex(points.ControlAOM, addr)
	if !ok {
		return nil, notConfigured("AOM", addr)
	}

	status := o.operate(ctx, types.Control{Index: idx, Code: types.ControlCodeSetpoint, Value: float64(value)})
	if status == types.CommandStatusNotSupported {
		return nil, &ControlError{Status: status, Kind: "AOM", Address: addr}
	}
	if !status.IsSuccess() {
		return o.rejected(h, fmt.Errorf("operate: %s", status)), nil
	}
	return o.controlOK(h), nil
}
