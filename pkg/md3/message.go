package md3

import (
	"fmt"
	"strings"
)

// Message is an ordered, non-empty sequence of blocks. The first block is the
// header; exactly the last block carries EOM.
type Message []Block

// Header returns the first block of the message
func (m Message) Header() Block {
	if len(m) == 0 {
		return Block{}
	}
	return m[0]
}

// Payload returns every block after the header
func (m Message) Payload() []Block {
	if len(m) < 2 {
		return nil
	}
	return m[1:]
}

// Validate checks the structural invariants of the message.
func (m Message) Validate() error {
	if len(m) == 0 {
		return ErrEmptyMessage
	}
	if !m[0].IsFormatted() {
		return ErrExpectedHeader
	}
	if len(m) > MaxMessageBlocks {
		return ErrMessageTooLong
	}
	for i, b := range m {
		last := i == len(m)-1
		if b.IsEOM() && !last {
			return fmt.Errorf("%w: block %d", ErrEarlyEOM, i)
		}
		if last && !b.IsEOM() {
			return ErrMissingEOM
		}
	}
	return nil
}

// Serialize encodes every block of the message
func (m Message) Serialize() []byte {
	out := make([]byte, len(m)*BlockSize)
	for i, b := range m {
		b.put(out[i*BlockSize:])
	}
	return out
}

// Equal reports whether two messages hold identical blocks
func (m Message) Equal(o Message) bool {
	if len(m) != len(o) {
		return false
	}
	for i := range m {
		if m[i] != o[i] {
			return false
		}
	}
	return true
}

// String returns a human readable representation of the message
func (m Message) String() string {
	parts := make([]string, len(m))
	for i, b := range m {
		parts[i] = b.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Decode parses wire bytes into a validated Message.
func Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, ErrEmptyMessage
	}
	if len(data)%BlockSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidLength, len(data))
	}

	msg := make(Message, 0, len(data)/BlockSize)
	for off := 0; off < len(data); off += BlockSize {
		b, err := ParseBlock(data[off : off+BlockSize])
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", off/BlockSize, err)
		}
		msg = append(msg, b)
	}

	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

// Builder assembles a reply message. Build marks EOM on the last block only.
type Builder struct {
	blocks []Block
}

// NewBuilder starts a message with the given header block
func NewBuilder(header Block) *Builder {
	return &Builder{blocks: []Block{header}}
}

// Add appends payload blocks
func (b *Builder) Add(blocks ...Block) *Builder {
	b.blocks = append(b.blocks, blocks...)
	return b
}

// AddWords packs 16-bit values two per data block, padding an odd count with 0.
func (b *Builder) AddWords(words []uint16) *Builder {
	for i := 0; i < len(words); i += 2 {
		var second uint16
		if i+1 < len(words) {
			second = words[i+1]
		}
		b.blocks = append(b.blocks, NewDataBlock(words[i], second))
	}
	return b
}

// AddDeltas packs signed deltas four per data block, padding with 0.
func (b *Builder) AddDeltas(deltas []int8) *Builder {
	for i := 0; i < len(deltas); i += 4 {
		var d [4]int8
		copy(d[:], deltas[i:min(i+4, len(deltas))])
		b.blocks = append(b.blocks, NewDeltaBlock(d))
	}
	return b
}

// Len returns the number of blocks so far, header included
func (b *Builder) Len() int {
	return len(b.blocks)
}

// Build returns the finished message
func (b *Builder) Build() Message {
	msg := make(Message, len(b.blocks))
	last := len(b.blocks) - 1
	for i, blk := range b.blocks {
		msg[i] = blk.WithEOM(i == last)
	}
	return msg
}

// NewReply builds a header-only or header plus words reply. It is the short
// form used for echoes and full value replies.
func NewReply(station uint8, fn FunctionCode, module, channels uint8, words ...uint16) Message {
	return NewBuilder(NewHeader(station, false, fn, module, channels)).AddWords(words).Build()
}
