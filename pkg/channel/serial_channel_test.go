package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"avaneesh/md3-go/pkg/md3"
)

// scriptedPort replays read chunks; an empty chunk is a read timeout.
type scriptedPort struct {
	serial.Port

	mu      sync.Mutex
	reads   [][]byte
	written []byte
	closed  bool
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.reads) == 0 {
		return 0, nil
	}
	chunk := p.reads[0]
	n := copy(b, chunk)
	if n < len(chunk) {
		p.reads[0] = chunk[n:]
	} else {
		p.reads = p.reads[1:]
	}
	return n, nil
}

func (p *scriptedPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *scriptedPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestSerialChannel_ReassemblesSplitBlocks(t *testing.T) {
	block := md3.NewHeader(5, true, md3.FnSystemSignOn, 0, 0).WithEOM(true).Serialize()
	port := &scriptedPort{reads: [][]byte{block[:2], block[2:5], block[5:]}}
	sc := newSerialChannel("test", port)

	got, err := sc.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, block, got)
	assert.Equal(t, uint64(md3.BlockSize), sc.Statistics().BytesReceived)
}

func TestSerialChannel_GapDiscardsPartialBlock(t *testing.T) {
	block := md3.NewHeader(5, true, md3.FnSystemSignOn, 0, 0).WithEOM(true).Serialize()
	port := &scriptedPort{reads: [][]byte{{0xAA, 0xBB}, {}, block}}
	sc := newSerialChannel("test", port)

	got, err := sc.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, block, got)
	assert.Equal(t, uint64(1), sc.Statistics().ReadErrors)
}

func TestSerialChannel_ReadCancelled(t *testing.T) {
	sc := newSerialChannel("test", &scriptedPort{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sc.Read(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSerialChannel_WriteAndClose(t *testing.T) {
	port := &scriptedPort{}
	sc := newSerialChannel("test", port)

	require.NoError(t, sc.Write(context.Background(), []byte{1, 2, 3}))
	assert.Equal(t, []byte{1, 2, 3}, port.written)

	require.NoError(t, sc.Close())
	assert.True(t, port.closed)
	assert.ErrorIs(t, sc.Write(context.Background(), []byte{1}), errTransportClosed)
}

func TestParseParity(t *testing.T) {
	tests := []struct {
		in      string
		want    serial.Parity
		wantErr bool
	}{
		{"", serial.NoParity, false},
		{"none", serial.NoParity, false},
		{"odd", serial.OddParity, false},
		{"E", serial.EvenParity, false},
		{"mark", serial.NoParity, true},
	}
	for _, tt := range tests {
		got, err := parseParity(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseParity(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseParity(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
