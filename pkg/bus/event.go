// Package bus carries point events between the gateway's ports. Data ports
// publish measurements, the MD3 side publishes controls and waits for the
// port that owns the output to answer.
package bus

import (
	"fmt"

	"avaneesh/md3-go/pkg/types"
)

// Event is one point update or control travelling on the bus
type Event struct {
	Kind   types.PointType
	Source string // Name of the publishing port
	Index  uint16

	Binary  types.Binary
	Analog  types.Analog
	Counter types.Counter
	Control types.Control

	// Result answers a control; nil for measurements.
	Result func(types.CommandStatus)
}

// BinaryEvent builds a binary measurement event
func BinaryEvent(source string, index uint16, v types.Binary) Event {
	return Event{Kind: types.PointTypeBinary, Source: source, Index: index, Binary: v}
}

// AnalogEvent builds an analog measurement event
func AnalogEvent(source string, index uint16, v types.Analog) Event {
	return Event{Kind: types.PointTypeAnalog, Source: source, Index: index, Analog: v}
}

// CounterEvent builds a counter measurement event
func CounterEvent(source string, index uint16, v types.Counter) Event {
	return Event{Kind: types.PointTypeCounter, Source: source, Index: index, Counter: v}
}

// ControlEvent builds a control event answered through result
func ControlEvent(source string, ctl types.Control, result func(types.CommandStatus)) Event {
	return Event{Kind: types.PointTypeControl, Source: source, Index: ctl.Index, Control: ctl, Result: result}
}

// Respond answers a control event. It is a no-op for measurements.
func (e Event) Respond(status types.CommandStatus) {
	if e.Result != nil {
		e.Result(status)
	}
}

// String returns string representation of Event
func (e Event) String() string {
	switch e.Kind {
	case types.PointTypeBinary:
		return fmt.Sprintf("%s[%d]=%v from %s", e.Kind, e.Index, e.Binary.Value, e.Source)
	case types.PointTypeAnalog:
		return fmt.Sprintf("%s[%d]=%g from %s", e.Kind, e.Index, e.Analog.Value, e.Source)
	case types.PointTypeCounter:
		return fmt.Sprintf("%s[%d]=%d from %s", e.Kind, e.Index, e.Counter.Value, e.Source)
	default:
		return fmt.Sprintf("%s %s from %s", e.Kind, e.Control, e.Source)
	}
}
