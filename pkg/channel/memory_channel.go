package channel

import (
	"context"
	"sync"
	"time"
)

// MemoryChannel is an in-memory PhysicalChannel. Tests and examples inject
// master requests with Inject and collect replies with Written.
type MemoryChannel struct {
	stateNotifier

	readChan  chan []byte
	writeChan chan []byte
	closeChan chan struct{}
	closed    bool
	mu        sync.RWMutex
	stats     TransportStats
}

// NewMemoryChannel creates a memory channel with room for size pending
// reads and writes each.
func NewMemoryChannel(size int) *MemoryChannel {
	return &MemoryChannel{
		readChan:  make(chan []byte, size),
		writeChan: make(chan []byte, size),
		closeChan: make(chan struct{}),
	}
}

// Read implements PhysicalChannel.Read
func (m *MemoryChannel) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.closeChan:
		return nil, errTransportClosed
	case data := <-m.readChan:
		m.mu.Lock()
		m.stats.BytesReceived += uint64(len(data))
		m.mu.Unlock()
		return data, nil
	}
}

// Write implements PhysicalChannel.Write
func (m *MemoryChannel) Write(ctx context.Context, data []byte) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return errTransportClosed
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case m.writeChan <- buf:
		m.mu.Lock()
		m.stats.BytesSent += uint64(len(data))
		m.mu.Unlock()
		return nil
	}
}

// Close implements PhysicalChannel.Close
func (m *MemoryChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.closeChan)
	return nil
}

// Statistics implements PhysicalChannel.Statistics
func (m *MemoryChannel) Statistics() TransportStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// Inject queues data as if received from the line
func (m *MemoryChannel) Inject(data []byte) {
	m.readChan <- data
}

// Written waits up to timeout for the next written payload. It returns nil
// if nothing was written.
func (m *MemoryChannel) Written(timeout time.Duration) []byte {
	select {
	case data := <-m.writeChan:
		return data
	case <-time.After(timeout):
		return nil
	}
}

// Reconnect simulates the peer dropping and reconnecting
func (m *MemoryChannel) Reconnect() {
	m.lost()
	m.established()
}
