package config

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalid = errors.New("invalid config")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return invalid("empty config")
	}

	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return invalid("log.level %q unknown", cfg.Log.Level)
	}

	ids := make(map[string]string)
	claim := func(kind, id string) error {
		if id == "" {
			return invalid("%s without id", kind)
		}
		if prev, ok := ids[id]; ok {
			return invalid("id %q used by %s and %s", id, prev, kind)
		}
		ids[id] = kind
		return nil
	}

	if len(cfg.Outstations) == 0 {
		return invalid("at least one outstation is required")
	}

	endpoints := make(map[string]string)
	lines := make(map[string]TransportConfig)
	for i, o := range cfg.Outstations {
		if err := claim("outstation", o.ID); err != nil {
			return err
		}
		if err := validateOutstation(o); err != nil {
			return fmt.Errorf("outstations[%d] %q: %w", i, o.ID, err)
		}

		// Stations sharing a line are multi-drop and need distinct addresses
		key := o.Transport.Key()
		if first, ok := lines[key]; ok && first.IsServer() != o.Transport.IsServer() {
			return invalid("outstation %q: line %s is both server and client", o.ID, key)
		}
		if _, ok := lines[key]; !ok {
			lines[key] = o.Transport
		}
		if prev, ok := endpoints[key+fmt.Sprintf("#%d", o.Station)]; ok {
			return invalid("outstations %q and %q share station %d on %s", prev, o.ID, o.Station, key)
		}
		endpoints[key+fmt.Sprintf("#%d", o.Station)] = o.ID
	}

	for i, m := range cfg.Modbus {
		if err := claim("modbus", m.ID); err != nil {
			return err
		}
		if err := validateModbus(m); err != nil {
			return fmt.Errorf("modbus[%d] %q: %w", i, m.ID, err)
		}
	}

	for i, s := range cfg.Simulators {
		if err := claim("simulator", s.ID); err != nil {
			return err
		}
		if err := validateSimulator(s); err != nil {
			return fmt.Errorf("simulators[%d] %q: %w", i, s.ID, err)
		}
	}

	return nil
}

// Key identifies the line a transport runs on. Outstations with equal keys
// share one channel.
func (t TransportConfig) Key() string {
	if t.Type == "serial" && t.Serial != nil {
		return "serial:" + t.Serial.Port
	}
	return t.Type + ":" + t.Address
}

func validateOutstation(o OutstationConfig) error {
	if o.Station == 0 || o.Station > 0x7F {
		return invalid("station %d out of range 1-127", o.Station)
	}
	switch o.Fn12ReplyFunction {
	case 0, 11, 12:
	default:
		return invalid("fn12_reply_function %d must be 11 or 12", o.Fn12ReplyFunction)
	}
	if o.ControlTimeoutMs < 0 {
		return invalid("control_timeout_ms must be >= 0")
	}

	if err := validateTransport(o.Transport); err != nil {
		return err
	}
	return validatePoints(o.Points)
}

func validateTransport(t TransportConfig) error {
	switch t.Type {
	case "tcp", "udp", "quic":
		if t.Address == "" {
			return invalid("transport.address required for %s", t.Type)
		}
		if t.Serial != nil {
			return invalid("transport.serial set for %s transport", t.Type)
		}
	case "serial":
		if t.Serial == nil || t.Serial.Port == "" {
			return invalid("transport.serial.port required")
		}
		switch t.Serial.Parity {
		case "", "none", "odd", "even", "N", "O", "E":
		default:
			return invalid("transport.serial.parity %q unknown", t.Serial.Parity)
		}
		if t.Serial.StopBits < 0 || t.Serial.StopBits > 2 {
			return invalid("transport.serial.stop_bits %d unsupported", t.Serial.StopBits)
		}
	default:
		return invalid("transport.type %q must be tcp, udp, quic or serial", t.Type)
	}
	if t.ReadTimeoutMs < 0 {
		return invalid("transport.read_timeout_ms must be >= 0")
	}
	return nil
}

func validatePoints(p PointsConfig) error {
	for i, m := range p.DigitalModules {
		if m.Bits > 16 {
			return invalid("points.digital_modules[%d]: bits %d exceeds 16", i, m.Bits)
		}
		bits := int(m.Bits)
		if bits == 0 {
			bits = 16
		}
		if int(m.StartIndex)+bits-1 > math.MaxUint16 {
			return invalid("points.digital_modules[%d]: index range overflows", i)
		}
	}
	for i, c := range p.Controls {
		switch c.Kind {
		case "pom", "dom", "aom":
		default:
			return invalid("points.controls[%d]: kind %q must be pom, dom or aom", i, c.Kind)
		}
	}
	// Address and index collisions are checked when the point table is built
	_, err := p.Build()
	return err
}

func validateModbus(m ModbusConfig) error {
	if m.Endpoint == "" {
		return invalid("endpoint required")
	}
	if m.TimeoutMs < 0 || m.PollIntervalMs < 0 {
		return invalid("timeout_ms and poll_interval_ms must be >= 0")
	}
	if len(m.Reads) == 0 && len(m.Writes) == 0 {
		return invalid("at least one read or write required")
	}
	for i, r := range m.Reads {
		if r.Quantity == 0 {
			return invalid("reads[%d]: quantity must be > 0", i)
		}
		if int(r.Index)+int(r.Quantity)-1 > math.MaxUint16 {
			return invalid("reads[%d]: index range overflows", i)
		}
		switch r.FC {
		case 1, 2:
			if r.Quantity > 2000 {
				return invalid("reads[%d]: at most 2000 bits per read", i)
			}
			if r.As != "" {
				return invalid("reads[%d]: as is only valid for register reads", i)
			}
		case 3, 4:
			if r.Quantity > 125 {
				return invalid("reads[%d]: at most 125 registers per read", i)
			}
			switch r.As {
			case "", "analog", "counter":
			default:
				return invalid("reads[%d]: as %q must be analog or counter", i, r.As)
			}
		default:
			return invalid("reads[%d]: fc %d unsupported", i, r.FC)
		}
	}
	seen := make(map[uint16]bool)
	for i, w := range m.Writes {
		if w.FC != 5 && w.FC != 6 {
			return invalid("writes[%d]: fc %d must be 5 or 6", i, w.FC)
		}
		if seen[w.Index] {
			return invalid("writes[%d]: index %d mapped twice", i, w.Index)
		}
		seen[w.Index] = true
	}
	return nil
}

func validateSimulator(s SimulatorConfig) error {
	for i, a := range s.Analogs {
		if a.StdDev < 0 {
			return invalid("analogs[%d]: std_dev must be >= 0", i)
		}
		if a.IntervalMs < 0 {
			return invalid("analogs[%d]: interval_ms must be >= 0", i)
		}
	}
	for i, b := range s.Binaries {
		if b.IntervalMs < 0 {
			return invalid("binaries[%d]: interval_ms must be >= 0", i)
		}
	}
	for i, c := range s.Counters {
		if c.IntervalMs < 0 {
			return invalid("counters[%d]: interval_ms must be >= 0", i)
		}
	}
	return nil
}
