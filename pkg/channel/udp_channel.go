package channel

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"avaneesh/md3-go/pkg/md3"
)

// maxDatagram fits the largest message the assembler accepts.
const maxDatagram = md3.MaxMessageBlocks * md3.BlockSize

// UDPChannel implements PhysicalChannel for MD3 over UDP. Each datagram
// carries whole blocks; in server mode replies go to the last sender.
type UDPChannel struct {
	stateNotifier

	conn     *net.UDPConn
	connLock sync.RWMutex

	address      string
	isServer     bool
	remoteAddr   *net.UDPAddr // Client mode destination
	lastPeerAddr *net.UDPAddr // Server mode reply address
	peerLock     sync.RWMutex
	readTimeout  time.Duration
	writeTimeout time.Duration

	stats transportCounters

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// UDPChannelConfig configures a UDP channel
type UDPChannelConfig struct {
	Address      string        // "host:port" format
	IsServer     bool          // true = bind and listen, false = bind and send to remote
	ReadTimeout  time.Duration // Poll interval for idle reads
	WriteTimeout time.Duration // Write timeout (0 = no timeout)
}

// NewUDPChannel creates a new UDP channel
func NewUDPChannel(config UDPChannelConfig) (*UDPChannel, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("address is required")
	}

	if config.ReadTimeout == 0 {
		config.ReadTimeout = time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	uc := &UDPChannel{
		address:      config.Address,
		isServer:     config.IsServer,
		readTimeout:  config.ReadTimeout,
		writeTimeout: config.WriteTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	if err := uc.initialize(); err != nil {
		cancel()
		return nil, err
	}

	return uc, nil
}

// initialize binds the socket
func (uc *UDPChannel) initialize() error {
	addr, err := net.ResolveUDPAddr("udp", uc.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", uc.address, err)
	}

	local := addr
	if !uc.isServer {
		uc.remoteAddr = addr
		local = &net.UDPAddr{}
	}

	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", local, err)
	}
	uc.conn = conn
	uc.stats.connects.Add(1)
	return nil
}

// Read implements PhysicalChannel.Read, returning the blocks of one datagram
func (uc *UDPChannel) Read(ctx context.Context) ([]byte, error) {
	buffer := make([]byte, maxDatagram)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-uc.ctx.Done():
			return nil, errTransportClosed
		default:
		}

		uc.connLock.RLock()
		conn := uc.conn
		uc.connLock.RUnlock()
		if conn == nil {
			return nil, errNotConnected
		}

		conn.SetReadDeadline(time.Now().Add(uc.readTimeout))

		n, remoteAddr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if uc.closed.Load() {
				return nil, errTransportClosed
			}
			uc.stats.readErrors.Add(1)
			return nil, err
		}

		if n == 0 || n%md3.BlockSize != 0 {
			uc.stats.readErrors.Add(1)
			continue
		}

		if uc.isServer && remoteAddr != nil {
			uc.peerLock.Lock()
			changed := uc.lastPeerAddr == nil || uc.lastPeerAddr.String() != remoteAddr.String()
			uc.lastPeerAddr = remoteAddr
			uc.peerLock.Unlock()
			if changed {
				uc.established()
			}
		}

		uc.stats.bytesReceived.Add(uint64(n))
		datagram := make([]byte, n)
		copy(datagram, buffer[:n])
		return datagram, nil
	}
}

// Write implements PhysicalChannel.Write
func (uc *UDPChannel) Write(ctx context.Context, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-uc.ctx.Done():
		return errTransportClosed
	default:
	}

	uc.connLock.RLock()
	conn := uc.conn
	uc.connLock.RUnlock()
	if conn == nil {
		uc.stats.writeErrors.Add(1)
		return errNotConnected
	}

	destAddr := uc.remoteAddr
	if uc.isServer {
		uc.peerLock.RLock()
		destAddr = uc.lastPeerAddr
		uc.peerLock.RUnlock()

		if destAddr == nil {
			uc.stats.writeErrors.Add(1)
			return fmt.Errorf("no peer address available (no data received yet)")
		}
	}

	if uc.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(uc.writeTimeout))
	}

	if _, err := conn.WriteToUDP(data, destAddr); err != nil {
		uc.stats.writeErrors.Add(1)
		return err
	}

	uc.stats.bytesSent.Add(uint64(len(data)))
	return nil
}

// Close implements PhysicalChannel.Close
func (uc *UDPChannel) Close() error {
	if !uc.closed.CompareAndSwap(false, true) {
		return nil
	}

	uc.cancel()

	uc.connLock.Lock()
	if uc.conn != nil {
		uc.conn.Close()
		uc.stats.disconnects.Add(1)
		uc.conn = nil
	}
	uc.connLock.Unlock()

	return nil
}

// Statistics implements PhysicalChannel.Statistics
func (uc *UDPChannel) Statistics() TransportStats {
	return uc.stats.snapshot()
}

// LocalAddr returns the bound address
func (uc *UDPChannel) LocalAddr() net.Addr {
	uc.connLock.RLock()
	defer uc.connLock.RUnlock()
	if uc.conn != nil {
		return uc.conn.LocalAddr()
	}
	return nil
}

// RemoteAddr returns the last peer in server mode, the configured remote
// address otherwise.
func (uc *UDPChannel) RemoteAddr() net.Addr {
	if uc.isServer {
		uc.peerLock.RLock()
		defer uc.peerLock.RUnlock()
		if uc.lastPeerAddr == nil {
			return nil
		}
		return uc.lastPeerAddr
	}
	return uc.remoteAddr
}
