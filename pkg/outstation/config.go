package outstation

import (
	"fmt"
	"time"

	"avaneesh/md3-go/pkg/md3"
)

// Config configures an MD3 outstation
type Config struct {
	ID      string
	Station uint8 // Station address the outstation answers to

	// Fn12ReplyFunction is the function code echoed in replies to function
	// 12 requests. Masters differ; 12 (the default) or 11.
	Fn12ReplyFunction md3.FunctionCode

	// SharedDigitalSequence makes functions 11 and 12 share one resend slot.
	SharedDigitalSequence bool

	// ErrorFlags is the byte placed in digital error blocks for modules with
	// unconfigured bits.
	ErrorFlags uint8

	// FlagSource supplies the digital change and time-tagged event pending
	// bits of the system flag word.
	FlagSource FlagSource

	// OnTimeSet, if set, receives the time from a set-time request after the
	// reply has been sent.
	OnTimeSet func(time.Time)
}

// DefaultConfig returns a config with protocol defaults for a station
func DefaultConfig(id string, station uint8) Config {
	return Config{
		ID:                id,
		Station:           station,
		Fn12ReplyFunction: md3.FnDigitalUnconditional,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Station == 0 || c.Station > md3.MaxStationAddress {
		return fmt.Errorf("station address %d out of range 1-%d", c.Station, md3.MaxStationAddress)
	}
	switch c.Fn12ReplyFunction {
	case 0, md3.FnDigitalUnconditional, md3.FnDigitalChangeOfStateTimeTagged:
	default:
		return fmt.Errorf("fn12 reply function %d must be 11 or 12", c.Fn12ReplyFunction)
	}
	return nil
}
