package outstation

import "sync/atomic"

// Statistics tracks outstation request handling
type Statistics struct {
	requests   uint64
	replies    uint64
	resends    uint64
	ignored    uint64
	noOps      uint64
	unknown    uint64
	sendErrors uint64
	rejected   uint64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) inc(counter *uint64) {
	atomic.AddUint64(counter, 1)
}

// Requests returns requests addressed to this station
func (s *Statistics) Requests() uint64 { return atomic.LoadUint64(&s.requests) }

// Replies returns replies sent
func (s *Statistics) Replies() uint64 { return atomic.LoadUint64(&s.replies) }

// Resends returns replies served from the resend cache
func (s *Statistics) Resends() uint64 { return atomic.LoadUint64(&s.resends) }

// Ignored returns requests for other stations
func (s *Statistics) Ignored() uint64 { return atomic.LoadUint64(&s.ignored) }

// NoOps returns recognized requests that produce no reply
func (s *Statistics) NoOps() uint64 { return atomic.LoadUint64(&s.noOps) }

// Unknown returns requests with an unrecognized function code
func (s *Statistics) Unknown() uint64 { return atomic.LoadUint64(&s.unknown) }

// SendErrors returns failed reply transmissions
func (s *Statistics) SendErrors() uint64 { return atomic.LoadUint64(&s.sendErrors) }

// Rejected returns controls answered with function 30
func (s *Statistics) Rejected() uint64 { return atomic.LoadUint64(&s.rejected) }
