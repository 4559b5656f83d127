package md3

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlock_SerializeKnownBytes(t *testing.T) {
	tests := []struct {
		name  string
		block Block
		want  []byte
	}{
		{
			name:  "Reply header with EOM",
			block: NewHeader(0x7C, false, FnAnalogUnconditional, 0x20, 4).WithEOM(true),
			want:  []byte{0x7C, 0x05, 0x20, 0x04, 0xF1, 0x00},
		},
		{
			name:  "Request header with direction bit",
			block: NewHeader(0x7C, true, FnAnalogUnconditional, 0x20, 4).WithEOM(true),
			want:  []byte{0xFC, 0x05, 0x20, 0x04, 0xCB, 0x00},
		},
		{
			name:  "Data block",
			block: NewDataBlock(0x1234, 0x5678),
			want:  []byte{0x12, 0x34, 0x56, 0x78, 0x2E, 0x00},
		},
		{
			name:  "Data block with EOM",
			block: NewDataBlock(0x1234, 0x5678).WithEOM(true),
			want:  []byte{0x12, 0x34, 0x56, 0x78, 0x61, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.block.Serialize()
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Serialize() = % X, want % X", got, tt.want)
			}

			parsed, err := ParseBlock(got)
			if err != nil {
				t.Fatalf("ParseBlock() error = %v", err)
			}
			if parsed != tt.block {
				t.Errorf("ParseBlock() = %v, want %v", parsed, tt.block)
			}
		})
	}
}

func TestBlock_HeaderFields(t *testing.T) {
	b := NewHeader(0x25, true, FnDigitalDeltaScan, 10, 3)

	assert.True(t, b.IsFormatted())
	assert.False(t, b.IsEOM())
	assert.True(t, b.MasterToStation())
	assert.Equal(t, uint8(0x25), b.Station())
	assert.Equal(t, FnDigitalDeltaScan, b.Function())
	assert.Equal(t, uint8(10), b.Module())
	assert.Equal(t, uint8(3), b.Channels())
}

func TestBlock_StationMasksDirectionBit(t *testing.T) {
	b := NewHeader(0xFF, false, FnSystemSignOn, 0, 0)
	if b.Station() != MaxStationAddress {
		t.Errorf("Station() = %d, want %d", b.Station(), MaxStationAddress)
	}
	if b.MasterToStation() {
		t.Error("MasterToStation() = true for reply header")
	}
}

func TestBlock_TimeTaggedFields(t *testing.T) {
	b := NewTimeTaggedHeader(9, true, FnDigitalChangeOfStateTimeTagged, 3, 7, 12)
	tagged, seq, modules := b.TimeTaggedFields()
	assert.Equal(t, uint8(3), tagged)
	assert.Equal(t, uint8(7), seq)
	assert.Equal(t, uint8(12), modules)
}

func TestBlock_UnconditionalFields(t *testing.T) {
	b := NewUnconditionalHeader(9, true, 40, 5, 6)
	start, seq, modules := b.UnconditionalFields()
	assert.Equal(t, FnDigitalUnconditional, b.Function())
	assert.Equal(t, uint8(40), start)
	assert.Equal(t, uint8(5), seq)
	assert.Equal(t, uint8(6), modules)
}

func TestBlock_Deltas(t *testing.T) {
	d := [4]int8{5, -3, 127, -128}
	b := NewDeltaBlock(d)
	if got := b.Deltas(); got != d {
		t.Errorf("Deltas() = %v, want %v", got, d)
	}
	if b.IsFormatted() {
		t.Error("delta block reported as formatted")
	}
}

func TestParseBlock_Errors(t *testing.T) {
	good := NewDataBlock(1, 2).Serialize()

	badPad := append([]byte(nil), good...)
	badPad[5] = 0x01

	badCRC := append([]byte(nil), good...)
	badCRC[4] ^= 0x01

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"Short", good[:5], ErrInvalidLength},
		{"Pad", badPad, ErrInvalidPad},
		{"CRC", badCRC, ErrInvalidCRC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBlock(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("ParseBlock() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFunctionCode_String(t *testing.T) {
	require.Equal(t, "ANALOG_DELTA_SCAN", FnAnalogDeltaScan.String())
	require.Equal(t, "UNKNOWN(99)", FunctionCode(99).String())
	require.True(t, FnSystemFlagScan.IsKnown())
	require.False(t, FunctionCode(18).IsKnown())
}
