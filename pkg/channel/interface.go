package channel

import "context"

// ConnectionStateListener receives notifications about connection state changes
type ConnectionStateListener interface {
	// OnConnectionEstablished is called when a new connection is established
	OnConnectionEstablished()

	// OnConnectionLost is called when a connection is lost
	OnConnectionLost()
}

// PhysicalChannel represents a pluggable transport layer.
// Implementations exist for TCP, UDP, QUIC and serial lines; tests plug in
// an in-memory one.
type PhysicalChannel interface {
	// Read returns the next run of whole MD3 blocks from the medium.
	// Stream transports return one block per call, datagram transports
	// return the blocks of one datagram.
	// Blocks until data is available or ctx is cancelled.
	Read(ctx context.Context) ([]byte, error)

	// Write writes serialized blocks to the medium.
	// Must be safe for concurrent use.
	Write(ctx context.Context, data []byte) error

	// Close closes the physical connection and unblocks pending Read/Write
	Close() error

	// Statistics returns transport-level statistics
	// Optional - can return zero values if not tracked
	Statistics() TransportStats

	// SetConnectionStateListener sets a listener for connection state changes
	// Optional - channels that don't support connection state notifications can ignore this
	SetConnectionStateListener(listener ConnectionStateListener)
}

// TransportStats provides transport-level statistics
type TransportStats struct {
	BytesSent     uint64 // Total bytes sent
	BytesReceived uint64 // Total bytes received
	WriteErrors   uint64 // Number of write errors
	ReadErrors    uint64 // Number of read errors
	Connects      uint64 // Number of connections (for connection-oriented transports)
	Disconnects   uint64 // Number of disconnections
}

// ChannelState represents the state of a channel
type ChannelState int

const (
	ChannelStateOpen ChannelState = iota
	ChannelStateClosed
)

// String returns string representation of ChannelState
func (s ChannelState) String() string {
	switch s {
	case ChannelStateOpen:
		return "Open"
	case ChannelStateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}
