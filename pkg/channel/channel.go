package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"avaneesh/md3-go/pkg/internal/logger"
	"avaneesh/md3-go/pkg/md3"
)

var (
	ErrChannelClosed = errors.New("channel is closed")
	ErrChannelOpen   = errors.New("channel is already open")
)

// Channel runs MD3 over one physical channel: it checks each received
// block, assembles messages and hands them to the session of the addressed
// station. Replies are serialized through a single write loop.
type Channel struct {
	id              string
	physicalChannel PhysicalChannel
	router          *Router
	assembler       *md3.Assembler
	stats           *Statistics
	logger          logger.Logger

	// Set by the transport on reconnect; the read loop drops partial input.
	resync atomic.Bool

	// State
	state   ChannelState
	stateMu sync.RWMutex

	// Concurrency
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Write queue for serializing writes
	writeQueue chan *writeRequest
}

// writeRequest represents a write request
type writeRequest struct {
	ctx    context.Context
	data   []byte
	blocks int
	resp   chan error
}

// New creates a new channel
func New(id string, physical PhysicalChannel, log logger.Logger) *Channel {
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Channel{
		id:              id,
		physicalChannel: physical,
		router:          NewRouter(),
		assembler:       md3.NewAssembler(),
		stats:           NewStatistics(),
		logger:          log.With("channel", id),
		state:           ChannelStateClosed,
		ctx:             ctx,
		cancel:          cancel,
		writeQueue:      make(chan *writeRequest, 100),
	}
	physical.SetConnectionStateListener(c)
	return c
}

// ID returns the channel ID
func (c *Channel) ID() string {
	return c.id
}

// Open opens the channel and starts processing
func (c *Channel) Open() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.state == ChannelStateOpen {
		return ErrChannelOpen
	}
	if c.ctx.Err() != nil {
		return ErrChannelClosed
	}

	c.state = ChannelStateOpen

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.readLoop()
	}()
	go func() {
		defer c.wg.Done()
		c.writeLoop()
	}()

	c.logger.Info("channel opened")
	return nil
}

// Close closes the channel. A closed channel cannot be reopened.
func (c *Channel) Close() error {
	c.stateMu.Lock()
	if c.state == ChannelStateClosed {
		c.stateMu.Unlock()
		c.cancel()
		return nil
	}
	c.state = ChannelStateClosed
	c.stateMu.Unlock()

	c.cancel()

	if err := c.physicalChannel.Close(); err != nil {
		c.logger.Error("physical channel close failed", "error", err)
	}

	c.wg.Wait()

	c.logger.Info("channel closed")
	return nil
}

// OnConnectionEstablished implements ConnectionStateListener
func (c *Channel) OnConnectionEstablished() {
	c.resync.Store(true)
	c.logger.Info("connection established")
}

// OnConnectionLost implements ConnectionStateListener
func (c *Channel) OnConnectionLost() {
	c.resync.Store(true)
	c.logger.Warn("connection lost")
}

// readLoop continuously reads from physical channel
func (c *Channel) readLoop() {
	c.logger.Debug("read loop started")
	defer c.logger.Debug("read loop stopped")

	for {
		data, err := c.physicalChannel.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Error("read failed", "error", err)
			c.stats.ReadError()
			continue
		}

		if c.resync.Swap(false) && c.assembler.Pending() > 0 {
			c.logger.Debug("dropping partial message after reconnect", "blocks", c.assembler.Pending())
			c.assembler.Reset()
		}

		c.processBlocks(data)
	}
}

// processBlocks feeds whole blocks from data through the assembler.
func (c *Channel) processBlocks(data []byte) {
	if rem := len(data) % md3.BlockSize; rem != 0 {
		c.logger.Warn("trailing partial block dropped", "bytes", rem)
		c.stats.BadBlock()
		data = data[:len(data)-rem]
	}

	for off := 0; off < len(data); off += md3.BlockSize {
		block, err := md3.ParseBlock(data[off : off+md3.BlockSize])
		if err != nil {
			if errors.Is(err, md3.ErrInvalidCRC) {
				c.stats.CRCError()
			} else {
				c.stats.BadBlock()
			}
			// A message with a corrupt block is lost as a whole
			c.assembler.Reset()
			c.logger.Warn("block dropped", "error", err)
			continue
		}
		c.stats.BlockRx()

		msg, err := c.assembler.Push(block)
		if err != nil {
			c.stats.AssemblyError()
			c.logger.Debug("assembly", "error", err)
		}
		if msg != nil {
			c.deliver(msg)
		}
	}
}

// deliver routes a master request to its station's session.
func (c *Channel) deliver(msg md3.Message) {
	c.stats.MessageRx()
	header := msg.Header()

	if !header.MasterToStation() {
		// Another station answering on a shared line
		c.stats.StationReply()
		return
	}

	c.logger.Debug("message received", "station", header.Station(), "function", header.Function(), "blocks", len(msg))

	if err := c.router.Route(c.ctx, msg); err != nil {
		if errors.Is(err, ErrNoSession) {
			c.stats.Unroutable()
			c.logger.Debug("message for unknown station", "station", header.Station())
			return
		}
		c.stats.SessionError()
		c.logger.Warn("session failed to handle message", "station", header.Station(), "error", err)
	}
}

// writeLoop processes write requests
func (c *Channel) writeLoop() {
	c.logger.Debug("write loop started")
	defer c.logger.Debug("write loop stopped")

	for {
		select {
		case <-c.ctx.Done():
			// Drain remaining requests with error
			for {
				select {
				case req := <-c.writeQueue:
					req.resp <- ErrChannelClosed
				default:
					return
				}
			}

		case req := <-c.writeQueue:
			err := c.physicalChannel.Write(req.ctx, req.data)
			if err != nil {
				c.logger.Error("write failed", "error", err)
			} else {
				c.stats.MessageTx()
				c.stats.BlocksTx(req.blocks)
			}
			req.resp <- err
		}
	}
}

// Send writes a complete message. It implements the outstation's reply sender.
func (c *Channel) Send(ctx context.Context, msg md3.Message) error {
	if len(msg) == 0 {
		return md3.ErrEmptyMessage
	}
	return c.Write(ctx, msg.Serialize(), len(msg))
}

// Write queues serialized blocks and waits for the write to finish
func (c *Channel) Write(ctx context.Context, data []byte, blocks int) error {
	c.stateMu.RLock()
	if c.state != ChannelStateOpen {
		c.stateMu.RUnlock()
		return ErrChannelClosed
	}
	c.stateMu.RUnlock()

	req := &writeRequest{
		ctx:    ctx,
		data:   data,
		blocks: blocks,
		resp:   make(chan error, 1),
	}

	select {
	case c.writeQueue <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrChannelClosed
	}

	select {
	case err := <-req.resp:
		return err
	case <-c.ctx.Done():
		return ErrChannelClosed
	}
}

// AddSession adds a session to the channel
func (c *Channel) AddSession(session Session) error {
	if err := c.router.AddSession(session); err != nil {
		return err
	}

	c.stats.SetActiveSessions(uint64(c.router.GetSessionCount()))
	c.logger.Info("session added", "station", session.StationAddress())
	return nil
}

// RemoveSession removes a session from the channel
func (c *Channel) RemoveSession(address uint8) {
	c.router.RemoveSession(address)
	c.stats.SetActiveSessions(uint64(c.router.GetSessionCount()))
	c.logger.Info("session removed", "station", address)
}

// GetStatistics returns channel statistics
func (c *Channel) GetStatistics() *Statistics {
	return c.stats
}

// GetPhysicalStatistics returns physical channel statistics
func (c *Channel) GetPhysicalStatistics() TransportStats {
	return c.physicalChannel.Statistics()
}

// State returns the current channel state
func (c *Channel) State() ChannelState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// String returns string representation of channel
func (c *Channel) String() string {
	return fmt.Sprintf("Channel{ID=%s, State=%s, Sessions=%d}",
		c.id, c.State(), c.router.GetSessionCount())
}
