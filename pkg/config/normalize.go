package config

// Defaults applied by Normalize
const (
	DefaultControlTimeoutMs = 5000
	DefaultModbusTimeoutMs  = 1000
	DefaultPollIntervalMs   = 1000
	DefaultSimIntervalMs    = 10000
	DefaultBaudRate         = 9600
	DefaultLogLevel         = "info"
)

// Normalize fills defaults. It must be called only after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}

	for i := range cfg.Outstations {
		o := &cfg.Outstations[i]
		if o.Fn12ReplyFunction == 0 {
			o.Fn12ReplyFunction = 12
		}
		if o.ControlTimeoutMs == 0 {
			o.ControlTimeoutMs = DefaultControlTimeoutMs
		}
		if o.Transport.Server == nil {
			server := true
			o.Transport.Server = &server
		}
		if s := o.Transport.Serial; s != nil {
			if s.BaudRate == 0 {
				s.BaudRate = DefaultBaudRate
			}
			if s.DataBits == 0 {
				s.DataBits = 8
			}
			if s.StopBits == 0 {
				s.StopBits = 1
			}
			if s.Parity == "" {
				s.Parity = "none"
			}
		}
		for j := range o.Points.DigitalModules {
			if o.Points.DigitalModules[j].Bits == 0 {
				o.Points.DigitalModules[j].Bits = 16
			}
		}
	}

	for i := range cfg.Modbus {
		m := &cfg.Modbus[i]
		if m.TimeoutMs == 0 {
			m.TimeoutMs = DefaultModbusTimeoutMs
		}
		if m.PollIntervalMs == 0 {
			m.PollIntervalMs = DefaultPollIntervalMs
		}
		for j := range m.Reads {
			r := &m.Reads[j]
			if (r.FC == 3 || r.FC == 4) && r.As == "" {
				r.As = "analog"
			}
		}
	}

	for i := range cfg.Simulators {
		s := &cfg.Simulators[i]
		for j := range s.Analogs {
			if s.Analogs[j].IntervalMs == 0 {
				s.Analogs[j].IntervalMs = DefaultSimIntervalMs
			}
		}
		for j := range s.Binaries {
			if s.Binaries[j].IntervalMs == 0 {
				s.Binaries[j].IntervalMs = DefaultSimIntervalMs
			}
		}
		for j := range s.Counters {
			if s.Counters[j].IntervalMs == 0 {
				s.Counters[j].IntervalMs = DefaultSimIntervalMs
			}
			if s.Counters[j].Increment == 0 {
				s.Counters[j].Increment = 1
			}
		}
	}
}

// IsServer reports whether the transport listens for the master
func (t TransportConfig) IsServer() bool {
	return t.Server == nil || *t.Server
}
