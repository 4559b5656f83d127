package types

import "fmt"

// ControlCode defines the operation requested by a control
type ControlCode uint8

const (
	ControlCodeNUL      ControlCode = 0x00 // No operation
	ControlCodePulseOn  ControlCode = 0x01 // Pulse output on
	ControlCodePulseOff ControlCode = 0x02 // Pulse output off
	ControlCodeLatchOn  ControlCode = 0x03 // Latch output on
	ControlCodeLatchOff ControlCode = 0x04 // Latch output off
	ControlCodeSetpoint ControlCode = 0x10 // Analog output value
	ControlCodeFreeze   ControlCode = 0x20 // Freeze counters
	ControlCodeReset    ControlCode = 0x21 // Freeze and reset counters
)

// String returns string representation of ControlCode
func (c ControlCode) String() string {
	switch c {
	case ControlCodeNUL:
		return "NUL"
	case ControlCodePulseOn:
		return "PulseOn"
	case ControlCodePulseOff:
		return "PulseOff"
	case ControlCodeLatchOn:
		return "LatchOn"
	case ControlCodeLatchOff:
		return "LatchOff"
	case ControlCodeSetpoint:
		return "Setpoint"
	case ControlCodeFreeze:
		return "Freeze"
	case ControlCodeReset:
		return "Reset"
	default:
		return fmt.Sprintf("ControlCode(%d)", uint8(c))
	}
}

// Control is a command travelling from a protocol master to the device that
// owns the point, addressed by gateway index.
type Control struct {
	Index   uint16
	Code    ControlCode
	Value   float64 // Setpoint for ControlCodeSetpoint
	OnTime  uint32  // Pulse duration in milliseconds
	Count   uint8
	Station uint8 // Originating MD3 station, 0 when not from MD3
}

// String returns a compact representation used in log lines
func (c Control) String() string {
	return fmt.Sprintf("Control{Index=%d, Code=%s, Value=%g}", c.Index, c.Code, c.Value)
}

// State returns the output state a binary control drives to
func (c Control) State() (bool, bool) {
	switch c.Code {
	case ControlCodeLatchOn, ControlCodePulseOn:
		return true, true
	case ControlCodeLatchOff, ControlCodePulseOff:
		return false, true
	default:
		return false, false
	}
}

// CommandStatus indicates the result of a command operation
type CommandStatus uint8

const (
	CommandStatusSuccess       CommandStatus = 0  // Command accepted and executed
	CommandStatusTimeout       CommandStatus = 1  // Command timed out
	CommandStatusFormatError   CommandStatus = 3  // Command format error
	CommandStatusNotSupported  CommandStatus = 4  // Point not configured for control
	CommandStatusHardwareError CommandStatus = 6  // Downstream write failed
	CommandStatusLocal         CommandStatus = 7  // In local mode, command rejected
	CommandStatusOutOfRange    CommandStatus = 12 // Value out of range
	CommandStatusUndefined     CommandStatus = 127
)

// String returns a string representation of CommandStatus
func (s CommandStatus) String() string {
	switch s {
	case CommandStatusSuccess:
		return "Success"
	case CommandStatusTimeout:
		return "Timeout"
	case CommandStatusFormatError:
		return "FormatError"
	case CommandStatusNotSupported:
		return "NotSupported"
	case CommandStatusHardwareError:
		return "HardwareError"
	case CommandStatusLocal:
		return "Local"
	case CommandStatusOutOfRange:
		return "OutOfRange"
	case CommandStatusUndefined:
		return "Undefined"
	default:
		return "Unknown"
	}
}

// IsSuccess returns true if the command was successful
func (s CommandStatus) IsSuccess() bool {
	return s == CommandStatusSuccess
}
