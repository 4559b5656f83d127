package modbusport

import (
	"errors"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// Client abstracts the Modbus operations the port needs.
type Client interface {
	ReadCoils(addr, qty uint16) ([]bool, error)              // FC 1
	ReadDiscreteInputs(addr, qty uint16) ([]bool, error)     // FC 2
	ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) // FC 3
	ReadInputRegisters(addr, qty uint16) ([]uint16, error)   // FC 4
	WriteSingleCoil(addr uint16, on bool) error              // FC 5
	WriteSingleRegister(addr, value uint16) error            // FC 6
	Close() error
}

// TCPClient is a Modbus TCP connection to one slave. Requests are
// serialized; the poll loop and control writes share it.
type TCPClient struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

// Dial connects to endpoint
func Dial(endpoint string, unitID uint8, timeout time.Duration) (*TCPClient, error) {
	if endpoint == "" {
		return nil, errors.New("modbus client: endpoint required")
	}

	h := modbus.NewTCPClientHandler(endpoint)
	h.Timeout = timeout
	h.SlaveId = unitID

	if err := h.Connect(); err != nil {
		return nil, err
	}

	return &TCPClient{
		handler: h,
		client:  modbus.NewClient(h),
	}, nil
}

func (c *TCPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

func (c *TCPClient) ReadCoils(addr, qty uint16) ([]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := c.client.ReadCoils(addr, qty)
	if err != nil {
		return nil, err
	}
	return unpackBits(raw, int(qty)), nil
}

func (c *TCPClient) ReadDiscreteInputs(addr, qty uint16) ([]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := c.client.ReadDiscreteInputs(addr, qty)
	if err != nil {
		return nil, err
	}
	return unpackBits(raw, int(qty)), nil
}

func (c *TCPClient) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := c.client.ReadHoldingRegisters(addr, qty)
	if err != nil {
		return nil, err
	}
	return unpackRegisters(raw, int(qty))
}

func (c *TCPClient) ReadInputRegisters(addr, qty uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := c.client.ReadInputRegisters(addr, qty)
	if err != nil {
		return nil, err
	}
	return unpackRegisters(raw, int(qty))
}

func (c *TCPClient) WriteSingleCoil(addr uint16, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var value uint16
	if on {
		value = 0xFF00
	}
	_, err := c.client.WriteSingleCoil(addr, value)
	return err
}

func (c *TCPClient) WriteSingleRegister(addr, value uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.client.WriteSingleRegister(addr, value)
	return err
}

// ---- helpers ----

func unpackBits(data []byte, count int) []bool {
	out := make([]bool, count)
	for i := 0; i < count; i++ {
		if i/8 >= len(data) {
			break
		}
		out[i] = data[i/8]&(1<<(i%8)) != 0
	}
	return out
}

func unpackRegisters(data []byte, count int) ([]uint16, error) {
	if len(data) < 2*count {
		return nil, errors.New("modbus: short register payload")
	}
	out := make([]uint16, count)
	for i := range out {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out, nil
}
