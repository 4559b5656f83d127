package channel

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"
)

// QUICProtocol is the ALPN name used when no TLS config is supplied
const QUICProtocol = "md3-quic"

// QUICChannel implements PhysicalChannel for MD3 carried on one
// bidirectional QUIC stream.
type QUICChannel struct {
	stateNotifier

	connection *quic.Conn
	stream     *quic.Stream
	connLock   sync.RWMutex
	streamLock sync.RWMutex

	address        string
	isServer       bool
	listener       *quic.Listener
	reconnectDelay time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	tlsConfig      *tls.Config

	stats transportCounters

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// QUICChannelConfig configures a QUIC channel
type QUICChannelConfig struct {
	Address        string        // "host:port" format
	IsServer       bool          // true = listen, false = connect
	ReconnectDelay time.Duration // Delay between reconnection attempts (client only)
	ReadTimeout    time.Duration // Poll interval for idle reads
	WriteTimeout   time.Duration // Write timeout (0 = no timeout)
	TLSConfig      *tls.Config   // Optional; a self-signed certificate is generated when nil
}

// NewQUICChannel creates a new QUIC channel
func NewQUICChannel(config QUICChannelConfig) (*QUICChannel, error) {
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

	tlsConfig := config.TLSConfig
	if tlsConfig == nil {
		var err error
		tlsConfig, err = generateTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to generate TLS config: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	qc := &QUICChannel{
		address:        config.Address,
		isServer:       config.IsServer,
		reconnectDelay: config.ReconnectDelay,
		readTimeout:    config.ReadTimeout,
		writeTimeout:   config.WriteTimeout,
		tlsConfig:      tlsConfig,
		ctx:            ctx,
		cancel:         cancel,
	}

	var err error
	if config.IsServer {
		err = qc.startServer()
	} else {
		err = qc.connect()
	}
	if err != nil {
		cancel()
		return nil, err
	}

	return qc, nil
}

// generateTLSConfig generates a self-signed certificate
func generateTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates:       []tls.Certificate{tlsCert},
		NextProtos:         []string{QUICProtocol},
		InsecureSkipVerify: true, // Self-signed
	}, nil
}

// startServer starts listening for incoming QUIC connections
func (qc *QUICChannel) startServer() error {
	udpAddr, err := net.ResolveUDPAddr("udp", qc.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", qc.address, err)
	}

	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", qc.address, err)
	}

	listener, err := quic.Listen(udpConn, qc.tlsConfig, nil)
	if err != nil {
		udpConn.Close()
		return fmt.Errorf("failed to create QUIC listener: %w", err)
	}
	qc.listener = listener

	qc.wg.Add(1)
	go qc.acceptLoop()

	return nil
}

// acceptLoop accepts connections; the newest master wins.
func (qc *QUICChannel) acceptLoop() {
	defer qc.wg.Done()

	for {
		conn, err := qc.listener.Accept(qc.ctx)
		if err != nil {
			if qc.closed.Load() || qc.ctx.Err() != nil {
				return
			}
			continue
		}

		qc.wg.Add(1)
		go func() {
			defer qc.wg.Done()
			stream, err := conn.AcceptStream(qc.ctx)
			if err != nil {
				conn.CloseWithError(0, "no stream")
				return
			}
			qc.install(conn, stream)
		}()
	}
}

// install makes conn and stream current, closing any previous pair.
func (qc *QUICChannel) install(conn *quic.Conn, stream *quic.Stream) {
	qc.connLock.Lock()
	replaced := qc.connection != nil
	if replaced {
		qc.connection.CloseWithError(0, "replaced")
		qc.stats.disconnects.Add(1)
	}
	qc.connection = conn
	qc.stats.connects.Add(1)
	qc.connLock.Unlock()

	qc.streamLock.Lock()
	if qc.stream != nil {
		qc.stream.Close()
	}
	qc.stream = stream
	qc.streamLock.Unlock()

	if replaced {
		qc.lost()
	}
	qc.established()
}

// dial opens a client connection and its stream
func (qc *QUICChannel) dial() error {
	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return fmt.Errorf("failed to create UDP socket: %w", err)
	}

	remoteAddr, err := net.ResolveUDPAddr("udp", qc.address)
	if err != nil {
		udpConn.Close()
		return fmt.Errorf("failed to resolve remote address %s: %w", qc.address, err)
	}

	conn, err := quic.Dial(qc.ctx, udpConn, remoteAddr, qc.tlsConfig, nil)
	if err != nil {
		udpConn.Close()
		return fmt.Errorf("failed to connect to %s: %w", qc.address, err)
	}

	stream, err := conn.OpenStreamSync(qc.ctx)
	if err != nil {
		conn.CloseWithError(0, "failed to open stream")
		return fmt.Errorf("failed to open stream: %w", err)
	}

	qc.install(conn, stream)
	return nil
}

// connect establishes a QUIC connection to the remote server
func (qc *QUICChannel) connect() error {
	if err := qc.dial(); err != nil {
		return err
	}

	qc.wg.Add(1)
	go qc.reconnectLoop()

	return nil
}

// reconnectLoop redials in client mode once the connection has died
func (qc *QUICChannel) reconnectLoop() {
	defer qc.wg.Done()

	for {
		select {
		case <-qc.ctx.Done():
			return
		case <-time.After(qc.reconnectDelay):
		}

		qc.connLock.RLock()
		conn := qc.connection
		qc.connLock.RUnlock()

		if conn == nil || conn.Context().Err() != nil {
			qc.dial()
		}
	}
}

func (qc *QUICChannel) currentStream() *quic.Stream {
	qc.streamLock.RLock()
	defer qc.streamLock.RUnlock()
	return qc.stream
}

// Read implements PhysicalChannel.Read, returning one block per call
func (qc *QUICChannel) Read(ctx context.Context) ([]byte, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-qc.ctx.Done():
			return nil, errTransportClosed
		default:
		}

		stream := qc.currentStream()
		if stream == nil {
			select {
			case <-time.After(100 * time.Millisecond):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-qc.ctx.Done():
				return nil, errTransportClosed
			}
		}

		stream.SetReadDeadline(time.Now().Add(qc.readTimeout))

		block, idle, err := readBlock(stream)
		if idle {
			continue
		}
		if err != nil {
			if qc.closed.Load() {
				return nil, errTransportClosed
			}
			qc.stats.readErrors.Add(1)
			qc.drop(stream, "read error")
			continue
		}

		qc.stats.bytesReceived.Add(uint64(len(block)))
		return block, nil
	}
}

// Write implements PhysicalChannel.Write
func (qc *QUICChannel) Write(ctx context.Context, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-qc.ctx.Done():
		return errTransportClosed
	default:
	}

	stream := qc.currentStream()
	if stream == nil {
		qc.stats.writeErrors.Add(1)
		return errNotConnected
	}

	if qc.writeTimeout > 0 {
		stream.SetWriteDeadline(time.Now().Add(qc.writeTimeout))
	}

	if _, err := stream.Write(data); err != nil {
		qc.stats.writeErrors.Add(1)
		qc.drop(stream, "write error")
		return err
	}

	qc.stats.bytesSent.Add(uint64(len(data)))
	return nil
}

// drop closes the connection owning stream after an I/O fault.
func (qc *QUICChannel) drop(stream *quic.Stream, reason string) {
	qc.streamLock.Lock()
	if qc.stream != stream {
		qc.streamLock.Unlock()
		return
	}
	qc.stream.Close()
	qc.stream = nil
	qc.streamLock.Unlock()

	qc.connLock.Lock()
	if qc.connection != nil {
		qc.connection.CloseWithError(0, reason)
		qc.stats.disconnects.Add(1)
		qc.connection = nil
	}
	qc.connLock.Unlock()

	qc.lost()
}

// Close implements PhysicalChannel.Close
func (qc *QUICChannel) Close() error {
	if !qc.closed.CompareAndSwap(false, true) {
		return nil
	}

	qc.cancel()

	if qc.listener != nil {
		qc.listener.Close()
	}

	qc.streamLock.Lock()
	if qc.stream != nil {
		qc.stream.Close()
		qc.stream = nil
	}
	qc.streamLock.Unlock()

	qc.connLock.Lock()
	if qc.connection != nil {
		qc.connection.CloseWithError(0, "channel closed")
		qc.stats.disconnects.Add(1)
		qc.connection = nil
	}
	qc.connLock.Unlock()

	qc.wg.Wait()
	return nil
}

// Statistics implements PhysicalChannel.Statistics
func (qc *QUICChannel) Statistics() TransportStats {
	return qc.stats.snapshot()
}

// IsConnected returns true if there is a live connection
func (qc *QUICChannel) IsConnected() bool {
	qc.connLock.RLock()
	defer qc.connLock.RUnlock()
	return qc.connection != nil && qc.connection.Context().Err() == nil
}

// LocalAddr returns the listening address in server mode, else the local
// address of the connection.
func (qc *QUICChannel) LocalAddr() net.Addr {
	if qc.listener != nil {
		return qc.listener.Addr()
	}
	qc.connLock.RLock()
	defer qc.connLock.RUnlock()
	if qc.connection != nil {
		return qc.connection.LocalAddr()
	}
	return nil
}

// RemoteAddr returns the remote address of the connection
func (qc *QUICChannel) RemoteAddr() net.Addr {
	qc.connLock.RLock()
	defer qc.connLock.RUnlock()
	if qc.connection != nil {
		return qc.connection.RemoteAddr()
	}
	return nil
}
