package outstation

import "avaneesh/md3-go/pkg/md3"

// SequenceClass identifies a sequence-bearing scan function
type SequenceClass uint8

const (
	SequenceTimeTagged    SequenceClass = iota // Function 11
	SequenceUnconditional                      // Function 12
)

// String returns string representation of SequenceClass
func (c SequenceClass) String() string {
	switch c {
	case SequenceTimeTagged:
		return "TimeTagged"
	case SequenceUnconditional:
		return "Unconditional"
	default:
		return "Unknown"
	}
}

type resendSlot struct {
	valid    bool
	sequence uint8
	reply    md3.Message
}

// ResendCache remembers the last sequence number answered and the reply sent
// for each sequence-bearing function, so a repeated request is answered with
// the identical message.
type ResendCache struct {
	shared bool
	slots  [2]resendSlot
}

// NewResendCache creates an empty cache. With shared set both classes use
// one slot.
func NewResendCache(shared bool) *ResendCache {
	return &ResendCache{shared: shared}
}

func (c *ResendCache) slot(class SequenceClass) *resendSlot {
	if c.shared {
		return &c.slots[0]
	}
	return &c.slots[class&1]
}

// Record stores the reply sent for a sequence number
func (c *ResendCache) Record(class SequenceClass, sequence uint8, reply md3.Message) {
	s := c.slot(class)
	s.valid = true
	s.sequence = sequence
	s.reply = reply
}

// TryResend returns the cached reply when sequence is nonzero and equals the
// stored one. Sequence 0 never hits.
func (c *ResendCache) TryResend(class SequenceClass, sequence uint8) (md3.Message, bool) {
	if sequence == 0 {
		return nil, false
	}
	s := c.slot(class)
	if !s.valid || s.sequence != sequence {
		return nil, false
	}
	return s.reply, true
}
