package channel

import "sync/atomic"

// Statistics tracks channel-level statistics
type Statistics struct {
	// Block level
	numBlocksTx   uint64
	numBlocksRx   uint64
	numCRCErrors  uint64
	numBadBlocks  uint64
	numReadErrors uint64

	// Message level
	numMessagesTx     uint64
	numMessagesRx     uint64
	numAssemblyErrors uint64
	numUnroutable     uint64
	numStationReplies uint64
	numSessionErrors  uint64

	numActiveSessions uint64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

// BlocksTx adds transmitted blocks
func (s *Statistics) BlocksTx(n int) {
	atomic.AddUint64(&s.numBlocksTx, uint64(n))
}

// BlockRx increments received blocks
func (s *Statistics) BlockRx() {
	atomic.AddUint64(&s.numBlocksRx, 1)
}

// CRCError increments blocks dropped for a bad CRC
func (s *Statistics) CRCError() {
	atomic.AddUint64(&s.numCRCErrors, 1)
}

// BadBlock increments blocks dropped for any other framing fault
func (s *Statistics) BadBlock() {
	atomic.AddUint64(&s.numBadBlocks, 1)
}

// ReadError increments physical read failures
func (s *Statistics) ReadError() {
	atomic.AddUint64(&s.numReadErrors, 1)
}

// MessageTx increments transmitted messages
func (s *Statistics) MessageTx() {
	atomic.AddUint64(&s.numMessagesTx, 1)
}

// MessageRx increments assembled messages
func (s *Statistics) MessageRx() {
	atomic.AddUint64(&s.numMessagesRx, 1)
}

// AssemblyError increments messages abandoned during assembly
func (s *Statistics) AssemblyError() {
	atomic.AddUint64(&s.numAssemblyErrors, 1)
}

// Unroutable increments messages for a station with no session
func (s *Statistics) Unroutable() {
	atomic.AddUint64(&s.numUnroutable, 1)
}

// StationReply increments station-to-master messages seen on the line
func (s *Statistics) StationReply() {
	atomic.AddUint64(&s.numStationReplies, 1)
}

// SessionError increments messages a session failed to handle
func (s *Statistics) SessionError() {
	atomic.AddUint64(&s.numSessionErrors, 1)
}

// SetActiveSessions sets the number of active sessions
func (s *Statistics) SetActiveSessions(count uint64) {
	atomic.StoreUint64(&s.numActiveSessions, count)
}

// GetBlocksTx returns transmitted blocks
func (s *Statistics) GetBlocksTx() uint64 {
	return atomic.LoadUint64(&s.numBlocksTx)
}

// GetBlocksRx returns received blocks
func (s *Statistics) GetBlocksRx() uint64 {
	return atomic.LoadUint64(&s.numBlocksRx)
}

// GetCRCErrors returns CRC errors
func (s *Statistics) GetCRCErrors() uint64 {
	return atomic.LoadUint64(&s.numCRCErrors)
}

// GetBadBlocks returns blocks dropped for framing faults
func (s *Statistics) GetBadBlocks() uint64 {
	return atomic.LoadUint64(&s.numBadBlocks)
}

// GetReadErrors returns physical read failures
func (s *Statistics) GetReadErrors() uint64 {
	return atomic.LoadUint64(&s.numReadErrors)
}

// GetMessagesTx returns transmitted messages
func (s *Statistics) GetMessagesTx() uint64 {
	return atomic.LoadUint64(&s.numMessagesTx)
}

// GetMessagesRx returns assembled messages
func (s *Statistics) GetMessagesRx() uint64 {
	return atomic.LoadUint64(&s.numMessagesRx)
}

// GetAssemblyErrors returns abandoned messages
func (s *Statistics) GetAssemblyErrors() uint64 {
	return atomic.LoadUint64(&s.numAssemblyErrors)
}

// GetUnroutable returns messages with no session
func (s *Statistics) GetUnroutable() uint64 {
	return atomic.LoadUint64(&s.numUnroutable)
}

// GetStationReplies returns station-to-master messages seen
func (s *Statistics) GetStationReplies() uint64 {
	return atomic.LoadUint64(&s.numStationReplies)
}

// GetSessionErrors returns session handling failures
func (s *Statistics) GetSessionErrors() uint64 {
	return atomic.LoadUint64(&s.numSessionErrors)
}

// GetActiveSessions returns number of active sessions
func (s *Statistics) GetActiveSessions() uint64 {
	return atomic.LoadUint64(&s.numActiveSessions)
}

// Reset resets all statistics
func (s *Statistics) Reset() {
	atomic.StoreUint64(&s.numBlocksTx, 0)
	atomic.StoreUint64(&s.numBlocksRx, 0)
	atomic.StoreUint64(&s.numCRCErrors, 0)
	atomic.StoreUint64(&s.numBadBlocks, 0)
	atomic.StoreUint64(&s.numReadErrors, 0)
	atomic.StoreUint64(&s.numMessagesTx, 0)
	atomic.StoreUint64(&s.numMessagesRx, 0)
	atomic.StoreUint64(&s.numAssemblyErrors, 0)
	atomic.StoreUint64(&s.numUnroutable, 0)
	atomic.StoreUint64(&s.numStationReplies, 0)
	atomic.StoreUint64(&s.numSessionErrors, 0)
}
