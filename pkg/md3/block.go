package md3

import (
	"encoding/binary"
	"fmt"
)

// Block is one 6-byte MD3 block. Blocks are values; the With* methods return
// modified copies.
type Block struct {
	data      uint32
	formatted bool
	eom       bool
}

// NewHeader creates a formatted block. toStation sets the master to station
// direction bit; outstation replies pass false.
func NewHeader(station uint8, toStation bool, fn FunctionCode, module, channels uint8) Block {
	b0 := station & MaxStationAddress
	if toStation {
		b0 |= DirMasterToStation
	}
	return Block{
		data:      uint32(b0)<<24 | uint32(fn)<<16 | uint32(module)<<8 | uint32(channels),
		formatted: true,
	}
}

// NewTimeTaggedHeader creates the header layout used by function 11 and the
// function 12 reply: byte 2 holds the tagged event count and sequence number,
// byte 3 the module count.
func NewTimeTaggedHeader(station uint8, toStation bool, fn FunctionCode, taggedEvents, sequence, modules uint8) Block {
	return NewHeader(station, toStation, fn, (taggedEvents&0x0F)<<4|(sequence&0x0F), modules)
}

// NewUnconditionalHeader creates a function 12 request header.
func NewUnconditionalHeader(station uint8, toStation bool, startModule, sequence, modules uint8) Block {
	return NewHeader(station, toStation, FnDigitalUnconditional, startModule, (sequence&0x0F)<<4|(modules&0x0F))
}

// NewDataBlock creates a data block holding two 16-bit words.
func NewDataBlock(a, b uint16) Block {
	return Block{data: uint32(a)<<16 | uint32(b)}
}

// NewDataBlock32 creates a data block holding one 32-bit value.
func NewDataBlock32(v uint32) Block {
	return Block{data: v}
}

// NewDeltaBlock creates a data block holding four signed byte deltas.
func NewDeltaBlock(d [4]int8) Block {
	return Block{data: uint32(uint8(d[0]))<<24 | uint32(uint8(d[1]))<<16 | uint32(uint8(d[2]))<<8 | uint32(uint8(d[3]))}
}

// IsFormatted reports whether this is a header block
func (b Block) IsFormatted() bool { return b.formatted }

// IsEOM reports whether this block ends its message
func (b Block) IsEOM() bool { return b.eom }

// WithEOM returns a copy of b with the end of message flag set to eom.
func (b Block) WithEOM(eom bool) Block {
	b.eom = eom
	return b
}

// Data returns the 32 data bits of the block
func (b Block) Data() uint32 { return b.data }

// Station returns the station address of a formatted block
func (b Block) Station() uint8 { return uint8(b.data>>24) & MaxStationAddress }

// MasterToStation reports the direction bit of a formatted block
func (b Block) MasterToStation() bool { return uint8(b.data>>24)&DirMasterToStation != 0 }

// Function returns the function code of a formatted block
func (b Block) Function() FunctionCode { return FunctionCode(b.data >> 16) }

// Module returns byte 2 of a formatted block
func (b Block) Module() uint8 { return uint8(b.data >> 8) }

// Channels returns byte 3 of a formatted block
func (b Block) Channels() uint8 { return uint8(b.data) }

// TimeTaggedFields decodes the function 11 header layout.
func (b Block) TimeTaggedFields() (taggedEvents, sequence, modules uint8) {
	return b.Module() >> 4, b.Module() & 0x0F, b.Channels()
}

// UnconditionalFields decodes the function 12 request layout.
func (b Block) UnconditionalFields() (startModule, sequence, modules uint8) {
	return b.Module(), b.Channels() >> 4, b.Channels() & 0x0F
}

// Words returns the two 16-bit words of a data block
func (b Block) Words() (a, c uint16) {
	return uint16(b.data >> 16), uint16(b.data)
}

// HighWord returns the first data word
func (b Block) HighWord() uint16 { return uint16(b.data >> 16) }

// LowWord returns the second data word
func (b Block) LowWord() uint16 { return uint16(b.data) }

// Deltas returns the four signed bytes of a delta data block
func (b Block) Deltas() [4]int8 {
	return [4]int8{int8(b.data >> 24), int8(b.data >> 16), int8(b.data >> 8), int8(b.data)}
}

// Serialize encodes the block into its 6 wire bytes
func (b Block) Serialize() []byte {
	out := make([]byte, BlockSize)
	b.put(out)
	return out
}

func (b Block) put(out []byte) {
	binary.BigEndian.PutUint32(out[0:4], b.data)
	ctrl := uint8(0)
	if b.formatted {
		ctrl |= CtrlFOM
	}
	if b.eom {
		ctrl |= CtrlEOM
	}
	out[4] = ctrl
	out[4] |= blockCRC(out)
	out[5] = 0
}

// ParseBlock decodes 6 wire bytes into a Block, validating CRC and pad.
func ParseBlock(data []byte) (Block, error) {
	if len(data) != BlockSize {
		return Block{}, ErrInvalidLength
	}
	if data[5] != 0 {
		return Block{}, ErrInvalidPad
	}
	if !VerifyCRC(data) {
		return Block{}, ErrInvalidCRC
	}
	return Block{
		data:      binary.BigEndian.Uint32(data[0:4]),
		formatted: data[4]&CtrlFOM != 0,
		eom:       data[4]&CtrlEOM != 0,
	}, nil
}

// String returns a human readable representation of the block
func (b Block) String() string {
	eom := ""
	if b.eom {
		eom = " EOM"
	}
	if b.formatted {
		return fmt.Sprintf("Header{Station=%d, Fn=%s, Module=%d, Channels=%d%s}",
			b.Station(), b.Function(), b.Module(), b.Channels(), eom)
	}
	return fmt.Sprintf("Data{0x%04X 0x%04X%s}", b.HighWord(), b.LowWord(), eom)
}
