package channel

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// TCPChannel implements PhysicalChannel for MD3 over TCP. In server mode a
// new master connection replaces the previous one.
type TCPChannel struct {
	stateNotifier

	// Connection
	conn     net.Conn
	connLock sync.RWMutex

	// Configuration
	address        string
	isServer       bool
	listener       net.Listener
	reconnectDelay time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration

	stats transportCounters

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// TCPChannelConfig configures a TCP channel
type TCPChannelConfig struct {
	Address        string        // "host:port" format
	IsServer       bool          // true = listen, false = connect
	ReconnectDelay time.Duration // Delay between reconnection attempts (client only)
	ReadTimeout    time.Duration // Poll interval for idle reads
	WriteTimeout   time.Duration // Write timeout (0 = no timeout)
}

// NewTCPChannel creates a new TCP channel
func NewTCPChannel(config TCPChannelConfig) (*TCPChannel, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("address is required")
	}

	if config.ReconnectDelay == 0 {
		config.ReconnectDelay = 5 * time.Second
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	tc := &TCPChannel{
		address:        config.Address,
		isServer:       config.IsServer,
		reconnectDelay: config.ReconnectDelay,
		readTimeout:    config.ReadTimeout,
		writeTimeout:   config.WriteTimeout,
		ctx:            ctx,
		cancel:         cancel,
	}

	var err error
	if config.IsServer {
		err = tc.startServer()
	} else {
		err = tc.connect()
	}
	if err != nil {
		cancel()
		return nil, err
	}

	return tc, nil
}

// startServer starts listening for incoming connections
func (tc *TCPChannel) startServer() error {
	listener, err := net.Listen("tcp", tc.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", tc.address, err)
	}
	tc.listener = listener

	tc.wg.Add(1)
	go tc.acceptLoop()

	return nil
}

// acceptLoop accepts incoming connections
func (tc *TCPChannel) acceptLoop() {
	defer tc.wg.Done()

	for {
		if tc.ctx.Err() != nil {
			return
		}

		// Accept deadline allows periodic context checks
		if tcpListener, ok := tc.listener.(*net.TCPListener); ok {
			tcpListener.SetDeadline(time.Now().Add(1 * time.Second))
		}

		conn, err := tc.listener.Accept()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if tc.closed.Load() {
				return
			}
			continue
		}

		tc.setConn(conn)
	}
}

// setConn installs conn, closing and reporting any previous connection.
func (tc *TCPChannel) setConn(conn net.Conn) {
	tc.connLock.Lock()
	replaced := tc.conn != nil
	if replaced {
		tc.conn.Close()
		tc.stats.disconnects.Add(1)
	}
	tc.conn = conn
	tc.stats.connects.Add(1)
	tc.connLock.Unlock()

	if replaced {
		tc.lost()
	}
	tc.established()
}

// dropConn closes the current connection after an I/O fault.
func (tc *TCPChannel) dropConn(conn net.Conn) {
	tc.connLock.Lock()
	if tc.conn != conn {
		tc.connLock.Unlock()
		return
	}
	tc.conn.Close()
	tc.conn = nil
	tc.stats.disconnects.Add(1)
	tc.connLock.Unlock()

	tc.lost()
}

func (tc *TCPChannel) current() net.Conn {
	tc.connLock.RLock()
	defer tc.connLock.RUnlock()
	return tc.conn
}

// connect establishes a connection to the remote server
func (tc *TCPChannel) connect() error {
	conn, err := net.DialTimeout("tcp", tc.address, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", tc.address, err)
	}
	tc.setConn(conn)

	tc.wg.Add(1)
	go tc.reconnectLoop()

	return nil
}

// reconnectLoop redials in client mode after the connection is dropped
func (tc *TCPChannel) reconnectLoop() {
	defer tc.wg.Done()

	for {
		select {
		case <-tc.ctx.Done():
			return
		case <-time.After(tc.reconnectDelay):
		}

		if tc.current() != nil {
			continue
		}
		conn, err := net.DialTimeout("tcp", tc.address, 10*time.Second)
		if err == nil {
			tc.setConn(conn)
		}
	}
}

// Read implements PhysicalChannel.Read, returning one block per call
func (tc *TCPChannel) Read(ctx context.Context) ([]byte, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-tc.ctx.Done():
			return nil, errTransportClosed
		default:
		}

		conn := tc.current()
		if conn == nil {
			select {
			case <-time.After(100 * time.Millisecond):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-tc.ctx.Done():
				return nil, errTransportClosed
			}
		}

		conn.SetReadDeadline(time.Now().Add(tc.readTimeout))

		block, idle, err := readBlock(conn)
		if idle {
			continue
		}
		if err != nil {
			if tc.closed.Load() {
				return nil, errTransportClosed
			}
			tc.stats.readErrors.Add(1)
			tc.dropConn(conn)
			continue
		}

		tc.stats.bytesReceived.Add(uint64(len(block)))
		return block, nil
	}
}

// Write implements PhysicalChannel.Write
func (tc *TCPChannel) Write(ctx context.Context, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tc.ctx.Done():
		return errTransportClosed
	default:
	}

	conn := tc.current()
	if conn == nil {
		tc.stats.writeErrors.Add(1)
		return errNotConnected
	}

	if tc.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(tc.writeTimeout))
	}

	if _, err := conn.Write(data); err != nil {
		tc.stats.writeErrors.Add(1)
		tc.dropConn(conn)
		return err
	}

	tc.stats.bytesSent.Add(uint64(len(data)))
	return nil
}

// Close implements PhysicalChannel.Close
func (tc *TCPChannel) Close() error {
	if !tc.closed.CompareAndSwap(false, true) {
		return nil
	}

	tc.cancel()

	if tc.listener != nil {
		tc.listener.Close()
	}

	tc.connLock.Lock()
	if tc.conn != nil {
		tc.conn.Close()
		tc.stats.disconnects.Add(1)
		tc.conn = nil
	}
	tc.connLock.Unlock()

	tc.wg.Wait()
	return nil
}

// Statistics implements PhysicalChannel.Statistics
func (tc *TCPChannel) Statistics() TransportStats {
	return tc.stats.snapshot()
}

// IsConnected returns true if there is an active connection
func (tc *TCPChannel) IsConnected() bool {
	return tc.current() != nil
}

// LocalAddr returns the listening address in server mode, else the local
// address of the connection.
func (tc *TCPChannel) LocalAddr() net.Addr {
	if tc.listener != nil {
		return tc.listener.Addr()
	}
	if conn := tc.current(); conn != nil {
		return conn.LocalAddr()
	}
	return nil
}

// RemoteAddr returns the remote address of the connection
func (tc *TCPChannel) RemoteAddr() net.Addr {
	if conn := tc.current(); conn != nil {
		return conn.RemoteAddr()
	}
	return nil
}
