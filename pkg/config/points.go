package config

import (
	"fmt"

	"avaneesh/md3-go/pkg/points"
)

var controlKinds = map[string]points.ControlKind{
	"pom": points.ControlPOM,
	"dom": points.ControlDOM,
	"aom": points.ControlAOM,
}

// Build expands the YAML point table into the store's point config.
// Whole digital modules are expanded bit by bit.
func (p PointsConfig) Build() (points.Config, error) {
	var out points.Config

	for _, d := range p.Digital {
		out.Digital = append(out.Digital, points.DigitalPointConfig{
			Index:   d.Index,
			Address: points.Address{Module: d.Module, Channel: d.Channel},
		})
	}
	for _, m := range p.DigitalModules {
		bits := m.Bits
		if bits == 0 {
			bits = points.BitsPerModule
		}
		for j := uint8(0); j < bits; j++ {
			out.Digital = append(out.Digital, points.DigitalPointConfig{
				Index:   m.StartIndex + uint16(j),
				Address: points.Address{Module: m.Module, Channel: j},
			})
		}
		if m.TimeTagged {
			out.TimeTaggedModules = append(out.TimeTaggedModules, m.Module)
		}
	}

	for _, a := range p.Analog {
		out.Analog = append(out.Analog, points.AnalogPointConfig{
			Index:   a.Index,
			Address: points.Address{Module: a.Module, Channel: a.Channel},
		})
	}
	for _, c := range p.Counter {
		out.Counter = append(out.Counter, points.AnalogPointConfig{
			Index:   c.Index,
			Address: points.Address{Module: c.Module, Channel: c.Channel},
		})
	}

	for i, c := range p.Controls {
		kind, ok := controlKinds[c.Kind]
		if !ok {
			return points.Config{}, invalid("points.controls[%d]: kind %q unknown", i, c.Kind)
		}
		out.Controls = append(out.Controls, points.ControlPointConfig{
			Index:   c.Index,
			Kind:    kind,
			Address: points.Address{Module: c.Module, Channel: c.Channel},
		})
	}

	if err := out.Validate(); err != nil {
		return points.Config{}, fmt.Errorf("%w: points: %v", ErrInvalid, err)
	}
	return out, nil
}
