package types

import (
	"fmt"
	"time"
)

// PointType identifies the kind of value a bus event carries
type PointType uint8

const (
	PointTypeBinary PointType = iota
	PointTypeAnalog
	PointTypeCounter
	PointTypeControl
)

// String returns string representation of PointType
func (p PointType) String() string {
	switch p {
	case PointTypeBinary:
		return "Binary"
	case PointTypeAnalog:
		return "Analog"
	case PointTypeCounter:
		return "Counter"
	case PointTypeControl:
		return "Control"
	default:
		return "Unknown"
	}
}

// Binary represents a binary input (on/off) measurement
type Binary struct {
	Value bool
	Flags Flags
	Time  time.Time
}

// Analog represents an analog input measurement
type Analog struct {
	Value float64 // Engineering value; MD3 reports it truncated to a 16-bit word
	Flags Flags
	Time  time.Time
}

// Word returns the value clamped into the 16-bit MD3 range.
func (a Analog) Word() uint16 {
	switch {
	case a.Value <= 0:
		return 0
	case a.Value >= 0xFFFF:
		return 0xFFFF
	default:
		return uint16(a.Value)
	}
}

// Counter represents an accumulated count
type Counter struct {
	Value uint32
	Flags Flags
	Time  time.Time
}

// Word returns the low 16 bits reported on the wire
func (c Counter) Word() uint16 {
	return uint16(c.Value)
}

// Measurement is a generic interface for all measurement types
type Measurement interface {
	GetFlags() Flags
	GetTime() time.Time
	Type() PointType
}

func (b Binary) GetFlags() Flags     { return b.Flags }
func (b Binary) GetTime() time.Time  { return b.Time }
func (b Binary) Type() PointType     { return PointTypeBinary }
func (a Analog) GetFlags() Flags     { return a.Flags }
func (a Analog) GetTime() time.Time  { return a.Time }
func (a Analog) Type() PointType     { return PointTypeAnalog }
func (c Counter) GetFlags() Flags    { return c.Flags }
func (c Counter) GetTime() time.Time { return c.Time }
func (c Counter) Type() PointType    { return PointTypeCounter }

// String returns a compact representation used in log lines
func (b Binary) String() string {
	return fmt.Sprintf("Binary{%v flags=0x%02X}", b.Value, uint8(b.Flags))
}

func (a Analog) String() string {
	return fmt.Sprintf("Analog{%g flags=0x%02X}", a.Value, uint8(a.Flags))
}

func (c Counter) String() string {
	return fmt.Sprintf("Counter{%d flags=0x%02X}", c.Value, uint8(c.Flags))
}
