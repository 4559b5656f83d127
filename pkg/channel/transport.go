package channel

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"avaneesh/md3-go/pkg/md3"
)

var (
	errTransportClosed = errors.New("transport closed")
	errNotConnected    = errors.New("not connected")
)

// transportCounters is shared by the physical channel implementations.
type transportCounters struct {
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
	writeErrors   atomic.Uint64
	readErrors    atomic.Uint64
	connects      atomic.Uint64
	disconnects   atomic.Uint64
}

func (c *transportCounters) snapshot() TransportStats {
	return TransportStats{
		BytesSent:     c.bytesSent.Load(),
		BytesReceived: c.bytesReceived.Load(),
		WriteErrors:   c.writeErrors.Load(),
		ReadErrors:    c.readErrors.Load(),
		Connects:      c.connects.Load(),
		Disconnects:   c.disconnects.Load(),
	}
}

// stateNotifier holds an optional ConnectionStateListener.
type stateNotifier struct {
	listener ConnectionStateListener
	mu       sync.RWMutex
}

// SetConnectionStateListener implements PhysicalChannel
func (n *stateNotifier) SetConnectionStateListener(listener ConnectionStateListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listener = listener
}

func (n *stateNotifier) established() {
	n.mu.RLock()
	l := n.listener
	n.mu.RUnlock()
	if l != nil {
		l.OnConnectionEstablished()
	}
}

func (n *stateNotifier) lost() {
	n.mu.RLock()
	l := n.listener
	n.mu.RUnlock()
	if l != nil {
		l.OnConnectionLost()
	}
}

// readBlock reads exactly one MD3 block from a stream. idle is true when
// the read timed out before any byte of the block arrived, which is not a
// connection fault.
func readBlock(r io.Reader) (block []byte, idle bool, err error) {
	buf := make([]byte, md3.BlockSize)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		var netErr net.Error
		if n == 0 && errors.As(err, &netErr) && netErr.Timeout() {
			return nil, true, err
		}
		return nil, false, fmt.Errorf("read block (%d of %d bytes): %w", n, md3.BlockSize, err)
	}
	return buf, false, nil
}
