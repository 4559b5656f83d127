package channel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"avaneesh/md3-go/pkg/md3"
)

// SerialChannel implements PhysicalChannel for MD3 over an RS-232/485 line
// or modem. A silent gap longer than the read timeout in the middle of a
// block discards the partial block so framing recovers on the next one.
type SerialChannel struct {
	stateNotifier

	port     serial.Port
	portLock sync.Mutex
	name     string

	partial []byte

	stats transportCounters

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// SerialChannelConfig configures a serial channel
type SerialChannelConfig struct {
	Port        string        // e.g. "/dev/ttyS0" or "COM3"
	BaudRate    int           // default 9600
	DataBits    int           // default 8
	Parity      string        // "none", "odd" or "even"
	StopBits    int           // 1 or 2
	ReadTimeout time.Duration // Inter-character gap that resets framing
}

func parseParity(p string) (serial.Parity, error) {
	switch p {
	case "", "none", "N":
		return serial.NoParity, nil
	case "odd", "O":
		return serial.OddParity, nil
	case "even", "E":
		return serial.EvenParity, nil
	default:
		return serial.NoParity, fmt.Errorf("unknown parity %q", p)
	}
}

func parseStopBits(n int) (serial.StopBits, error) {
	switch n {
	case 0, 1:
		return serial.OneStopBit, nil
	case 2:
		return serial.TwoStopBits, nil
	default:
		return serial.OneStopBit, fmt.Errorf("unsupported stop bits %d", n)
	}
}

// NewSerialChannel opens the serial port
func NewSerialChannel(config SerialChannelConfig) (*SerialChannel, error) {
	if config.Port == "" {
		return nil, fmt.Errorf("port is required")
	}
	if config.BaudRate == 0 {
		config.BaudRate = 9600
	}
	if config.DataBits == 0 {
		config.DataBits = 8
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 200 * time.Millisecond
	}

	parity, err := parseParity(config.Parity)
	if err != nil {
		return nil, err
	}
	stopBits, err := parseStopBits(config.StopBits)
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
		Parity:   parity,
		StopBits: stopBits,
	}

	port, err := serial.Open(config.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", config.Port, err)
	}
	if err := port.SetReadTimeout(config.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", config.Port, err)
	}

	return newSerialChannel(config.Port, port), nil
}

// newSerialChannel wraps an open port
func newSerialChannel(name string, port serial.Port) *SerialChannel {
	ctx, cancel := context.WithCancel(context.Background())
	sc := &SerialChannel{
		port:    port,
		name:    name,
		partial: make([]byte, 0, md3.BlockSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	sc.stats.connects.Add(1)
	return sc
}

// Read implements PhysicalChannel.Read, returning one block per call
func (sc *SerialChannel) Read(ctx context.Context) ([]byte, error) {
	buf := make([]byte, md3.BlockSize)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-sc.ctx.Done():
			return nil, errTransportClosed
		default:
		}

		need := md3.BlockSize - len(sc.partial)
		n, err := sc.port.Read(buf[:need])
		if err != nil {
			if sc.closed.Load() {
				return nil, errTransportClosed
			}
			sc.stats.readErrors.Add(1)
			return nil, fmt.Errorf("serial %s: %w", sc.name, err)
		}

		if n == 0 {
			// Timeout; a gap inside a block means the block is lost
			if len(sc.partial) > 0 {
				sc.stats.readErrors.Add(1)
				sc.partial = sc.partial[:0]
			}
			continue
		}

		sc.stats.bytesReceived.Add(uint64(n))
		sc.partial = append(sc.partial, buf[:n]...)
		if len(sc.partial) == md3.BlockSize {
			block := make([]byte, md3.BlockSize)
			copy(block, sc.partial)
			sc.partial = sc.partial[:0]
			return block, nil
		}
	}
}

// Write implements PhysicalChannel.Write
func (sc *SerialChannel) Write(ctx context.Context, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-sc.ctx.Done():
		return errTransportClosed
	default:
	}

	sc.portLock.Lock()
	defer sc.portLock.Unlock()

	for written := 0; written < len(data); {
		n, err := sc.port.Write(data[written:])
		if err != nil {
			sc.stats.writeErrors.Add(1)
			return fmt.Errorf("serial %s: %w", sc.name, err)
		}
		written += n
	}

	sc.stats.bytesSent.Add(uint64(len(data)))
	return nil
}

// Close implements PhysicalChannel.Close
func (sc *SerialChannel) Close() error {
	if !sc.closed.CompareAndSwap(false, true) {
		return nil
	}
	sc.cancel()
	sc.stats.disconnects.Add(1)
	return sc.port.Close()
}

// Statistics implements PhysicalChannel.Statistics
func (sc *SerialChannel) Statistics() TransportStats {
	return sc.stats.snapshot()
}

// Name returns the port name
func (sc *SerialChannel) Name() string {
	return sc.name
}
