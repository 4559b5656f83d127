package points

import "fmt"

// Address locates a point on the MD3 side: a module and a bit (digital) or
// channel (analog, counter) within it.
type Address struct {
	Module  uint8
	Channel uint8
}

// String returns "module.channel"
func (a Address) String() string {
	return fmt.Sprintf("%d.%d", a.Module, a.Channel)
}

// BitsPerModule is the number of digital points in one module word.
const BitsPerModule = 16

// DigitalPointConfig maps a gateway index to a digital bit.
type DigitalPointConfig struct {
	Index   uint16
	Address Address
}

// AnalogPointConfig maps a gateway index to an analog or counter channel.
type AnalogPointConfig struct {
	Index   uint16
	Address Address
}

// ControlKind is the MD3 control family a control point belongs to
type ControlKind uint8

const (
	ControlPOM ControlKind = iota // Pulsed output module
	ControlDOM                    // Digital output module
	ControlAOM                    // Analog output module
)

// String returns string representation of ControlKind
func (k ControlKind) String() string {
	switch k {
	case ControlPOM:
		return "POM"
	case ControlDOM:
		return "DOM"
	case ControlAOM:
		return "AOM"
	default:
		return "Unknown"
	}
}

// ControlPointConfig maps an MD3 control address to a gateway index.
type ControlPointConfig struct {
	Index   uint16
	Kind    ControlKind
	Address Address
}

// Config describes every point an outstation store holds.
type Config struct {
	Digital []DigitalPointConfig
	// TimeTaggedModules lists digital modules that report time-tagged events.
	TimeTaggedModules []uint8
	Analog            []AnalogPointConfig
	Counter           []AnalogPointConfig
	Controls          []ControlPointConfig
}

// Validate reports duplicate indexes and addresses.
func (c Config) Validate() error {
	seenIdx := make(map[uint16]Address)
	seenAddr := make(map[Address]uint16)
	for _, p := range c.Digital {
		if p.Address.Channel >= BitsPerModule {
			return fmt.Errorf("digital index %d: bit %d out of range", p.Index, p.Address.Channel)
		}
		if prev, ok := seenIdx[p.Index]; ok {
			return fmt.Errorf("digital index %d mapped twice (%s, %s)", p.Index, prev, p.Address)
		}
		if prev, ok := seenAddr[p.Address]; ok {
			return fmt.Errorf("digital address %s mapped twice (%d, %d)", p.Address, prev, p.Index)
		}
		seenIdx[p.Index] = p.Address
		seenAddr[p.Address] = p.Index
	}

	if err := validateAnalog("analog", c.Analog); err != nil {
		return err
	}
	if err := validateAnalog("counter", c.Counter); err != nil {
		return err
	}

	type ctlKey struct {
		kind ControlKind
		addr Address
	}
	seenCtl := make(map[ctlKey]bool)
	for _, p := range c.Controls {
		k := ctlKey{p.Kind, p.Address}
		if seenCtl[k] {
			return fmt.Errorf("%s control %s mapped twice", p.Kind, p.Address)
		}
		seenCtl[k] = true
	}
	return nil
}

func validateAnalog(kind string, pts []AnalogPointConfig) error {
	seenIdx := make(map[uint16]bool)
	seenAddr := make(map[Address]bool)
	for _, p := range pts {
		if seenIdx[p.Index] {
			return fmt.Errorf("%s index %d mapped twice", kind, p.Index)
		}
		if seenAddr[p.Address] {
			return fmt.Errorf("%s address %s mapped twice", kind, p.Address)
		}
		seenIdx[p.Index] = true
		seenAddr[p.Address] = true
	}
	return nil
}
