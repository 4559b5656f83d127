package md3

import "time"

// MD3 times are Unix seconds in a 32-bit data block. Set-time carries the
// millisecond part in header bytes 2 and 3; time-tagged events carry a 1/256
// second fraction next to the module address.

// NewSetTimeMessage builds a function 43 request for t.
func NewSetTimeMessage(station uint8, t time.Time) Message {
	ms := uint16(t.Nanosecond() / int(time.Millisecond))
	header := NewHeader(station, true, FnSystemSetDateTime, uint8(ms>>8), uint8(ms))
	return NewBuilder(header).Add(NewDataBlock32(uint32(t.Unix()))).Build()
}

// ParseSetTime extracts the time carried by a function 43 request.
func ParseSetTime(m Message) (time.Time, error) {
	payload := m.Payload()
	if len(payload) == 0 {
		return time.Time{}, ErrInvalidTimeData
	}
	h := m.Header()
	ms := uint16(h.Module())<<8 | uint16(h.Channels())
	if ms > 999 {
		return time.Time{}, ErrInvalidTimeData
	}
	secs := int64(payload[0].Data())
	return time.Unix(secs, int64(ms)*int64(time.Millisecond)).UTC(), nil
}

// Fraction256 returns the sub-second part of t in 1/256 s units.
func Fraction256(t time.Time) uint8 {
	return uint8(int64(t.Nanosecond()) * 256 / int64(time.Second))
}

// NewTimeTaggedBlocks encodes one time-tagged module event: a time block
// followed by a data block of module<<8|fraction and the module word.
func NewTimeTaggedBlocks(module uint8, word uint16, t time.Time) (Block, Block) {
	return NewDataBlock32(uint32(t.Unix())), NewDataBlock(uint16(module)<<8|uint16(Fraction256(t)), word)
}

// ParseTimeTaggedBlocks is the inverse of NewTimeTaggedBlocks.
func ParseTimeTaggedBlocks(timeBlock, data Block) (module uint8, word uint16, t time.Time) {
	hi, lo := data.Words()
	frac := int64(hi & 0xFF)
	t = time.Unix(int64(timeBlock.Data()), frac*int64(time.Second)/256).UTC()
	return uint8(hi >> 8), lo, t
}
