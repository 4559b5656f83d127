package outstation

import (
	"errors"
	"fmt"
	"strings"
)

// SystemFlags is the 16-bit status word returned by the flag scan
type SystemFlags uint16

const (
	FlagSPU SystemFlags = 0x8000 // System power up
	FlagSTI SystemFlags = 0x4000 // System time incorrect
	FlagRSF SystemFlags = 0x2000 // Remote status changed
	FlagHRP SystemFlags = 0x1000 // Time-tagged (HRER) data pending
	FlagDCP SystemFlags = 0x0800 // Digital change pending
)

// String lists the set flags
func (f SystemFlags) String() string {
	var names []string
	for _, b := range []struct {
		bit  SystemFlags
		name string
	}{{FlagSPU, "SPU"}, {FlagSTI, "STI"}, {FlagRSF, "RSF"}, {FlagHRP, "HRP"}, {FlagDCP, "DCP"}} {
		if f&b.bit != 0 {
			names = append(names, b.name)
		}
	}
	return fmt.Sprintf("0x%04X[%s]", uint16(f), strings.Join(names, ","))
}

// Capability computes one flag bit on demand
type Capability func() bool

// FlagTracker maintains the system flag word. SPU and STI are sticky; HRP
// and DCP come from registered capabilities; RSF latches when any other bit
// differs from its value at the last flag scan.
type FlagTracker struct {
	powerUp       bool
	timeIncorrect bool
	rsf           bool
	baseline      SystemFlags

	digitalChange Capability
	timeTagged    Capability
}

// NewFlagTracker creates a tracker in the power-up state
func NewFlagTracker() *FlagTracker {
	return &FlagTracker{
		powerUp:       true,
		timeIncorrect: true,
		rsf:           true,
		baseline:      FlagSPU | FlagSTI,
	}
}

// RegisterDigitalChangePending registers the DCP capability
func (t *FlagTracker) RegisterDigitalChangePending(c Capability) {
	t.digitalChange = c
}

// RegisterTimeTaggedPending registers the HRP capability
func (t *FlagTracker) RegisterTimeTaggedPending(c Capability) {
	t.timeTagged = c
}

// RegisterSource registers both capabilities from src
func (t *FlagTracker) RegisterSource(src FlagSource) {
	t.RegisterDigitalChangePending(src.DigitalChangePending)
	t.RegisterTimeTaggedPending(src.TimeTaggedEventPending)
}

// Registered reports whether both capabilities are present
func (t *FlagTracker) Registered() bool {
	return t.digitalChange != nil && t.timeTagged != nil
}

// current evaluates every bit except RSF.
func (t *FlagTracker) current() (SystemFlags, error) {
	var f SystemFlags
	if t.powerUp {
		f |= FlagSPU
	}
	if t.timeIncorrect {
		f |= FlagSTI
	}

	var errs []error
	if t.timeTagged == nil {
		errs = append(errs, fmt.Errorf("%w: HRP", ErrCapabilityNotRegistered))
	} else if t.timeTagged() {
		f |= FlagHRP
	}
	if t.digitalChange == nil {
		errs = append(errs, fmt.Errorf("%w: DCP", ErrCapabilityNotRegistered))
	} else if t.digitalChange() {
		f |= FlagDCP
	}
	return f, errors.Join(errs...)
}

// ComputeWord returns the flag word. An unregistered capability reports its
// bit as clear and returns ErrCapabilityNotRegistered alongside the word.
func (t *FlagTracker) ComputeWord() (SystemFlags, error) {
	f, err := t.current()
	if t.rsf || f != t.baseline {
		f |= FlagRSF
	}
	return f, err
}

// Observe latches RSF if any bit moved since the last flag scan.
func (t *FlagTracker) Observe() {
	f, _ := t.current()
	if f != t.baseline {
		t.rsf = true
	}
}

// OnFlagScanSent clears SPU and RSF. The reported word becomes the baseline,
// so a bit that moved after the word was computed still raises RSF.
func (t *FlagTracker) OnFlagScanSent(reported SystemFlags) {
	t.powerUp = false
	t.rsf = false
	t.baseline = reported &^ (FlagSPU | FlagRSF)
}

// OnTimeSet clears STI
func (t *FlagTracker) OnTimeSet() {
	t.timeIncorrect = false
}
