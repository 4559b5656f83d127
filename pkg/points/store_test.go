package points

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avaneesh/md3-go/pkg/types"
)

func testConfig() Config {
	cfg := Config{TimeTaggedModules: []uint8{20}}
	idx := uint16(0)
	for _, module := range []uint8{10, 20} {
		for bit := uint8(0); bit < BitsPerModule; bit++ {
			cfg.Digital = append(cfg.Digital, DigitalPointConfig{Index: idx, Address: Address{module, bit}})
			idx++
		}
	}
	// Module 11 only half populated
	for bit := uint8(0); bit < 8; bit++ {
		cfg.Digital = append(cfg.Digital, DigitalPointConfig{Index: idx, Address: Address{11, bit}})
		idx++
	}
	for ch := uint8(0); ch < 4; ch++ {
		cfg.Analog = append(cfg.Analog, AnalogPointConfig{Index: uint16(ch), Address: Address{32, ch}})
		cfg.Counter = append(cfg.Counter, AnalogPointConfig{Index: uint16(ch), Address: Address{60, ch}})
	}
	cfg.Controls = []ControlPointConfig{{Index: 7, Kind: ControlPOM, Address: Address{100, 3}}}
	return cfg
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(testConfig())
	require.NoError(t, err)
	return s
}

func TestConfig_ValidateRejectsDuplicates(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "Digital index twice",
			cfg: Config{Digital: []DigitalPointConfig{
				{Index: 1, Address: Address{1, 0}},
				{Index: 1, Address: Address{1, 1}},
			}},
		},
		{
			name: "Digital address twice",
			cfg: Config{Digital: []DigitalPointConfig{
				{Index: 1, Address: Address{1, 0}},
				{Index: 2, Address: Address{1, 0}},
			}},
		},
		{
			name: "Digital bit out of range",
			cfg:  Config{Digital: []DigitalPointConfig{{Index: 1, Address: Address{1, 16}}}},
		},
		{
			name: "Analog address twice",
			cfg: Config{Analog: []AnalogPointConfig{
				{Index: 1, Address: Address{1, 0}},
				{Index: 2, Address: Address{1, 0}},
			}},
		},
		{
			name: "Control twice",
			cfg: Config{Controls: []ControlPointConfig{
				{Index: 1, Kind: ControlDOM, Address: Address{1, 0}},
				{Index: 2, Kind: ControlDOM, Address: Address{1, 0}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Errorf("Validate() = nil, want error")
			}
		})
	}
}

func TestStore_DigitalChangeTracking(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpdateBinary(3, types.Binary{Value: true}))

	s.View(func(r Reader) {
		value, changed, ok := r.Digital(10, 3)
		assert.True(t, ok)
		assert.True(t, value)
		assert.True(t, changed)

		_, changed, _ = r.Digital(10, 4)
		assert.False(t, changed)

		_, _, ok = r.Digital(11, 12)
		assert.False(t, ok, "unconfigured bit reported present")
	})

	// Same value again does not raise a change
	s.ClearDigital(10, 1<<(15-3))
	require.NoError(t, s.UpdateBinary(3, types.Binary{Value: true}))
	s.View(func(r Reader) {
		_, changed, _ := r.Digital(10, 3)
		assert.False(t, changed)
	})
}

func TestStore_ClearDigitalKeepsNewerChanges(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpdateBinary(0, types.Binary{Value: true}))

	// The reply carried bit 0 as 1; the point flips back before commit.
	reported := uint16(0x8000)
	require.NoError(t, s.UpdateBinary(0, types.Binary{Value: false}))
	s.ClearDigital(10, reported)

	s.View(func(r Reader) {
		_, changed, _ := r.Digital(10, 0)
		assert.True(t, changed, "change made after the reply was built must survive the commit")
	})
}

func TestStore_AnalogDelta(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpdateAnalog(1, types.Analog{Value: 1000}))

	s.View(func(r Reader) {
		v, d, ok := r.Analog(32, 1)
		require.True(t, ok)
		assert.Equal(t, uint16(1000), v)
		assert.Equal(t, int32(1000), d)
	})

	s.CommitAnalog(32, 1, 1000)
	require.NoError(t, s.UpdateAnalog(1, types.Analog{Value: 995}))

	s.View(func(r Reader) {
		_, d, _ := r.Analog(32, 1)
		assert.Equal(t, int32(-5), d)
		_, _, ok := r.Analog(32, 9)
		assert.False(t, ok)
	})
}

func TestStore_FreezeCounters(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpdateCounter(2, types.Counter{Value: 500}))

	require.True(t, s.FreezeCounters(60, true))
	require.False(t, s.FreezeCounters(61, false))
	require.NoError(t, s.UpdateCounter(2, types.Counter{Value: 3}))

	s.View(func(r Reader) {
		v, ok := r.Counter(60, 2)
		require.True(t, ok)
		assert.Equal(t, uint16(500), v, "frozen value reported until committed")
	})

	s.CommitCounter(60, 2)
	s.View(func(r Reader) {
		v, _ := r.Counter(60, 2)
		assert.Equal(t, uint16(3), v)
	})
}

func TestStore_FlagSources(t *testing.T) {
	s := newTestStore(t)
	assert.False(t, s.DigitalChangePending())
	assert.False(t, s.TimeTaggedEventPending())

	// Index 16 is module 20 bit 0, a time-tagged module
	require.NoError(t, s.UpdateBinary(16, types.Binary{Value: true}))
	assert.False(t, s.DigitalChangePending())
	assert.True(t, s.TimeTaggedEventPending())

	require.NoError(t, s.UpdateBinary(0, types.Binary{Value: true}))
	assert.True(t, s.DigitalChangePending())
}

func TestStore_ModulesAndChangeTime(t *testing.T) {
	s := newTestStore(t)
	when := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateBinary(17, types.Binary{Value: true, Time: when}))

	s.View(func(r Reader) {
		assert.Equal(t, []uint8{10, 11, 20}, r.DigitalModules())
		assert.True(t, r.ModuleTimeTagged(20))
		assert.False(t, r.ModuleTimeTagged(10))
		assert.True(t, when.Equal(r.ModuleChangedAt(20)))
	})
}

func TestStore_Controls(t *testing.T) {
	s := newTestStore(t)

	idx, ok := s.ControlIndex(ControlPOM, Address{100, 3})
	require.True(t, ok)
	require.Equal(t, uint16(7), idx)

	_, ok = s.ControlIndex(ControlDOM, Address{100, 3})
	require.False(t, ok)
	require.True(t, s.HasControlModule(ControlPOM, 100))
}

func TestStore_UnknownIndex(t *testing.T) {
	s := newTestStore(t)
	require.ErrorIs(t, s.UpdateBinary(999, types.Binary{}), ErrUnknownIndex)
	require.ErrorIs(t, s.UpdateAnalog(999, types.Analog{}), ErrUnknownIndex)
	require.ErrorIs(t, s.UpdateCounter(999, types.Counter{}), ErrUnknownIndex)
}

func TestStore_ApplyIsAtomic(t *testing.T) {
	s := newTestStore(t)

	b := NewUpdateBuilder()
	for i := uint16(0); i < BitsPerModule; i++ {
		b.Binary(i, types.Binary{Value: true})
	}
	b.Analog(0, types.Analog{Value: 42}).Binary(999, types.Binary{})
	require.Equal(t, 18, b.Len())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			s.View(func(r Reader) {
				first, _, _ := r.Digital(10, 0)
				for bit := uint8(1); bit < BitsPerModule; bit++ {
					v, _, _ := r.Digital(10, bit)
					if v != first {
						t.Errorf("half applied module observed at bit %d", bit)
						return
					}
				}
			})
		}
	}()

	skipped := s.Apply(b)
	wg.Wait()

	require.Equal(t, 1, skipped)
	s.View(func(r Reader) {
		v, _, _ := r.Analog(32, 0)
		assert.Equal(t, uint16(42), v)
	})
}
