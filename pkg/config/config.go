// Package config loads the gateway YAML file: MD3 outstations with their
// transport and point tables, Modbus master ports and simulator ports.
package config

type Config struct {
	Log         LogConfig          `yaml:"log"`
	Outstations []OutstationConfig `yaml:"outstations"`
	Modbus      []ModbusConfig     `yaml:"modbus"`
	Simulators  []SimulatorConfig  `yaml:"simulators"`
}

// ---- LOG ----

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Source bool   `yaml:"source"` // add caller to records
}

// ---- MD3 OUTSTATION ----

type OutstationConfig struct {
	ID        string          `yaml:"id"`
	Station   uint8           `yaml:"station"`
	Transport TransportConfig `yaml:"transport"`

	// Function code used in replies to function 12; 12 or 11
	Fn12ReplyFunction uint8 `yaml:"fn12_reply_function"`
	// Functions 11 and 12 share one resend slot
	SharedDigitalSequence bool  `yaml:"shared_digital_sequence"`
	ErrorFlags            uint8 `yaml:"error_flags"`
	// Per-control wait for the owning port to answer
	ControlTimeoutMs int `yaml:"control_timeout_ms"`

	Points PointsConfig `yaml:"points"`
}

type TransportConfig struct {
	Type          string        `yaml:"type"` // tcp, udp, quic, serial
	Address       string        `yaml:"address"`
	Server        *bool         `yaml:"server"` // default true
	ReadTimeoutMs int           `yaml:"read_timeout_ms"`
	Serial        *SerialConfig `yaml:"serial"`
}

type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	Parity   string `yaml:"parity"`
	StopBits int    `yaml:"stop_bits"`
}

// ---- POINTS ----

type PointsConfig struct {
	Digital        []PointConfig         `yaml:"digital"`
	DigitalModules []DigitalModuleConfig `yaml:"digital_modules"`
	Analog         []PointConfig         `yaml:"analog"`
	Counter        []PointConfig         `yaml:"counter"`
	Controls       []ControlConfig       `yaml:"controls"`
}

// PointConfig maps one gateway index to an MD3 module channel
type PointConfig struct {
	Index   uint16 `yaml:"index"`
	Module  uint8  `yaml:"module"`
	Channel uint8  `yaml:"channel"`
}

// DigitalModuleConfig declares a whole 16 bit module: bit j gets index
// start_index+j.
type DigitalModuleConfig struct {
	Module     uint8  `yaml:"module"`
	StartIndex uint16 `yaml:"start_index"`
	Bits       uint8  `yaml:"bits"` // default 16
	TimeTagged bool   `yaml:"time_tagged"`
}

type ControlConfig struct {
	Index   uint16 `yaml:"index"`
	Kind    string `yaml:"kind"` // pom, dom, aom
	Module  uint8  `yaml:"module"`
	Channel uint8  `yaml:"channel"`
}

// ---- MODBUS ----

type ModbusConfig struct {
	ID             string              `yaml:"id"`
	Endpoint       string              `yaml:"endpoint"`
	UnitID         uint8               `yaml:"unit_id"`
	TimeoutMs      int                 `yaml:"timeout_ms"`
	PollIntervalMs int                 `yaml:"poll_interval_ms"`
	Reads          []ModbusReadConfig  `yaml:"reads"`
	Writes         []ModbusWriteConfig `yaml:"writes"`
}

// ModbusReadConfig polls quantity items starting at address; item i is
// published on index+i. Function codes 1 and 2 give binaries, 3 and 4 give
// analogs, or counters when as is "counter".
type ModbusReadConfig struct {
	FC       uint8  `yaml:"fc"`
	Address  uint16 `yaml:"address"`
	Quantity uint16 `yaml:"quantity"`
	Index    uint16 `yaml:"index"`
	As       string `yaml:"as"`
}

// ModbusWriteConfig executes controls on index with function code 5
// (single coil) or 6 (single register).
type ModbusWriteConfig struct {
	Index   uint16 `yaml:"index"`
	FC      uint8  `yaml:"fc"`
	Address uint16 `yaml:"address"`
}

// ---- SIMULATOR ----

type SimulatorConfig struct {
	ID       string             `yaml:"id"`
	Seed     int64              `yaml:"seed"`
	Analogs  []SimAnalogConfig  `yaml:"analogs"`
	Binaries []SimBinaryConfig  `yaml:"binaries"`
	Counters []SimCounterConfig `yaml:"counters"`
	Controls []SimControlConfig `yaml:"controls"`
}

type SimAnalogConfig struct {
	Index      uint16  `yaml:"index"`
	Mean       float64 `yaml:"mean"`
	StdDev     float64 `yaml:"std_dev"`
	IntervalMs int     `yaml:"interval_ms"`
}

type SimBinaryConfig struct {
	Index      uint16 `yaml:"index"`
	Start      bool   `yaml:"start"`
	IntervalMs int    `yaml:"interval_ms"`
}

type SimCounterConfig struct {
	Index      uint16 `yaml:"index"`
	Increment  uint32 `yaml:"increment"`
	IntervalMs int    `yaml:"interval_ms"`
}

// SimControlConfig answers controls on index. With feedback set, latch
// controls drive that binary index and setpoints drive that analog index.
type SimControlConfig struct {
	Index    uint16  `yaml:"index"`
	Feedback *uint16 `yaml:"feedback"`
}
