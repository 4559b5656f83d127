package md3

// Assembler accumulates blocks read from a stream into messages. A formatted
// block always starts a new message; a partial message in progress is dropped.
type Assembler struct {
	blocks []Block
}

// NewAssembler creates an empty assembler
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Push adds one block. It returns the completed message when b carries EOM.
// A non-nil error reports blocks that were discarded; the assembler is
// ready for the next message afterwards.
func (a *Assembler) Push(b Block) (Message, error) {
	var err error

	if b.IsFormatted() {
		if len(a.blocks) > 0 {
			err = ErrMissingEOM
		}
		a.blocks = a.blocks[:0]
	} else if len(a.blocks) == 0 {
		return nil, ErrExpectedHeader
	}

	if len(a.blocks) >= MaxMessageBlocks {
		a.Reset()
		return nil, ErrMessageTooLong
	}

	a.blocks = append(a.blocks, b)
	if !b.IsEOM() {
		return nil, err
	}

	msg := make(Message, len(a.blocks))
	copy(msg, a.blocks)
	a.blocks = a.blocks[:0]
	return msg, err
}

// Pending returns the number of blocks held for an unfinished message
func (a *Assembler) Pending() int {
	return len(a.blocks)
}

// Reset discards any partial message
func (a *Assembler) Reset() {
	a.blocks = a.blocks[:0]
}
