// Package points holds the MD3 side point state of an outstation: current
// values, change flags and last reported values, keyed by (module, channel).
//
// Values arrive asynchronously from the event bus; the outstation reads them
// through View while building a reply and clears change state only after the
// reply has been sent.
package points

import (
	"errors"
	"slices"
	"sync"
	"time"

	"avaneesh/md3-go/pkg/types"
)

var (
	ErrUnknownIndex = errors.New("points: index not configured")
)

// Reader is the read side used while a reply is built. A Reader is only
// valid inside the View callback that supplied it.
type Reader interface {
	// Digital returns the bit value and its changed flag; ok is false when
	// the bit is not configured.
	Digital(module, bit uint8) (value, changed, ok bool)
	// ModuleChangedAt returns the most recent change time of any bit of the module.
	ModuleChangedAt(module uint8) time.Time
	// Analog returns the current word and its delta from the last reported value.
	Analog(module, channel uint8) (value uint16, delta int32, ok bool)
	// Counter returns the counter word to report, frozen if a freeze is pending.
	Counter(module, channel uint8) (value uint16, ok bool)
	ModuleTimeTagged(module uint8) bool
	// DigitalModules returns every configured digital module, ascending.
	DigitalModules() []uint8
}

type digitalPoint struct {
	index     uint16
	value     bool
	changed   bool
	changedAt time.Time
	flags     types.Flags
}

type analogPoint struct {
	index    uint16
	value    uint16
	reported uint16
	flags    types.Flags
}

type counterPoint struct {
	index  uint16
	value  uint32
	frozen uint32
	held   bool
	flags  types.Flags
}

// Store is the point table of one outstation
type Store struct {
	digital    map[Address]*digitalPoint
	analog     map[Address]*analogPoint
	counter    map[Address]*counterPoint
	timeTagged map[uint8]bool
	modules    []uint8

	digitalIdx map[uint16]Address
	analogIdx  map[uint16]Address
	counterIdx map[uint16]Address

	controls map[controlKey]uint16

	mu sync.RWMutex
}

type controlKey struct {
	kind ControlKind
	addr Address
}

// NewStore creates a store from configuration
func NewStore(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Store{
		digital:    make(map[Address]*digitalPoint, len(cfg.Digital)),
		analog:     make(map[Address]*analogPoint, len(cfg.Analog)),
		counter:    make(map[Address]*counterPoint, len(cfg.Counter)),
		timeTagged: make(map[uint8]bool, len(cfg.TimeTaggedModules)),
		digitalIdx: make(map[uint16]Address, len(cfg.Digital)),
		analogIdx:  make(map[uint16]Address, len(cfg.Analog)),
		counterIdx: make(map[uint16]Address, len(cfg.Counter)),
		controls:   make(map[controlKey]uint16, len(cfg.Controls)),
	}

	seenModule := make(map[uint8]bool)
	for _, p := range cfg.Digital {
		s.digital[p.Address] = &digitalPoint{index: p.Index}
		s.digitalIdx[p.Index] = p.Address
		if !seenModule[p.Address.Module] {
			seenModule[p.Address.Module] = true
			s.modules = append(s.modules, p.Address.Module)
		}
	}
	slices.Sort(s.modules)

	for _, m := range cfg.TimeTaggedModules {
		s.timeTagged[m] = true
	}
	for _, p := range cfg.Analog {
		s.analog[p.Address] = &analogPoint{index: p.Index}
		s.analogIdx[p.Index] = p.Address
	}
	for _, p := range cfg.Counter {
		s.counter[p.Address] = &counterPoint{index: p.Index}
		s.counterIdx[p.Index] = p.Address
	}
	for _, p := range cfg.Controls {
		s.controls[controlKey{p.Kind, p.Address}] = p.Index
	}

	return s, nil
}

// View runs fn with a consistent snapshot of the store. Updates block until
// fn returns, so a scan over many modules never observes a partial update.
func (s *Store) View(fn func(Reader)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(view{s})
}

// UpdateBinary sets a digital point by gateway index. The changed flag is
// raised when the value differs from the current one.
func (s *Store) UpdateBinary(index uint16, v types.Binary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateBinaryLocked(index, v)
}

func (s *Store) updateBinaryLocked(index uint16, v types.Binary) error {
	addr, ok := s.digitalIdx[index]
	if !ok {
		return ErrUnknownIndex
	}
	p := s.digital[addr]
	p.flags = v.Flags
	if p.value != v.Value {
		p.value = v.Value
		p.changed = true
		p.changedAt = v.Time
		if p.changedAt.IsZero() {
			p.changedAt = time.Now()
		}
	}
	return nil
}

// UpdateAnalog sets an analog point by gateway index
func (s *Store) UpdateAnalog(index uint16, v types.Analog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateAnalogLocked(index, v)
}

func (s *Store) updateAnalogLocked(index uint16, v types.Analog) error {
	addr, ok := s.analogIdx[index]
	if !ok {
		return ErrUnknownIndex
	}
	p := s.analog[addr]
	p.value = v.Word()
	p.flags = v.Flags
	return nil
}

// UpdateCounter sets a counter point by gateway index
func (s *Store) UpdateCounter(index uint16, v types.Counter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateCounterLocked(index, v)
}

func (s *Store) updateCounterLocked(index uint16, v types.Counter) error {
	addr, ok := s.counterIdx[index]
	if !ok {
		return ErrUnknownIndex
	}
	p := s.counter[addr]
	p.value = v.Value
	p.flags = v.Flags
	return nil
}

// ClearDigital clears the changed flag of every bit in module whose current
// value matches the word that was reported. Bits that changed again after
// the reply was built stay changed.
func (s *Store) ClearDigital(module uint8, reported uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for bit := uint8(0); bit < BitsPerModule; bit++ {
		p, ok := s.digital[Address{module, bit}]
		if !ok || !p.changed {
			continue
		}
		sent := reported&(1<<(15-bit)) != 0
		if p.value == sent {
			p.changed = false
		}
	}
}

// CommitAnalog records the value reported for an analog channel so later
// deltas are taken from it.
func (s *Store) CommitAnalog(module, channel uint8, reported uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.analog[Address{module, channel}]; ok {
		p.reported = reported
	}
}

// CommitCounter releases a held freeze once the frozen value was reported.
func (s *Store) CommitCounter(module, channel uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.counter[Address{module, channel}]; ok {
		p.held = false
	}
}

// FreezeCounters snapshots every counter of module; with reset the live
// values restart from zero. It reports whether the module has counters.
func (s *Store) FreezeCounters(module uint8, reset bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for addr, p := range s.counter {
		if addr.Module != module {
			continue
		}
		found = true
		p.frozen = p.value
		p.held = true
		if reset {
			p.value = 0
		}
	}
	return found
}

// ControlIndex returns the gateway index of a control point
func (s *Store) ControlIndex(kind ControlKind, addr Address) (uint16, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.controls[controlKey{kind, addr}]
	return idx, ok
}

// HasControlModule reports whether any control of kind is configured on module.
func (s *Store) HasControlModule(kind ControlKind, module uint8) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k := range s.controls {
		if k.kind == kind && k.addr.Module == module {
			return true
		}
	}
	return false
}

// DigitalChangePending reports whether any bit of a non time-tagged module
// has an unreported change.
func (s *Store) DigitalChangePending() bool {
	return s.anyChanged(false)
}

// TimeTaggedEventPending reports whether any bit of a time-tagged module has
// an unreported change.
func (s *Store) TimeTaggedEventPending() bool {
	return s.anyChanged(true)
}

func (s *Store) anyChanged(tagged bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for addr, p := range s.digital {
		if p.changed && s.timeTagged[addr.Module] == tagged {
			return true
		}
	}
	return false
}

// DigitalIndexes returns the configured digital gateway indexes
func (s *Store) DigitalIndexes() []uint16 {
	return sortedKeys(s.digitalIdx)
}

// AnalogIndexes returns the configured analog gateway indexes
func (s *Store) AnalogIndexes() []uint16 {
	return sortedKeys(s.analogIdx)
}

// CounterIndexes returns the configured counter gateway indexes
func (s *Store) CounterIndexes() []uint16 {
	return sortedKeys(s.counterIdx)
}

func sortedKeys(m map[uint16]Address) []uint16 {
	out := make([]uint16, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// view implements Reader over a store whose read lock is held.
type view struct {
	s *Store
}

func (v view) Digital(module, bit uint8) (bool, bool, bool) {
	p, ok := v.s.digital[Address{module, bit}]
	if !ok {
		return false, false, false
	}
	return p.value, p.changed, true
}

func (v view) ModuleChangedAt(module uint8) time.Time {
	var latest time.Time
	for bit := uint8(0); bit < BitsPerModule; bit++ {
		if p, ok := v.s.digital[Address{module, bit}]; ok && p.changedAt.After(latest) {
			latest = p.changedAt
		}
	}
	return latest
}

func (v view) Analog(module, channel uint8) (uint16, int32, bool) {
	p, ok := v.s.analog[Address{module, channel}]
	if !ok {
		return 0, 0, false
	}
	return p.value, int32(p.value) - int32(p.reported), true
}

func (v view) Counter(module, channel uint8) (uint16, bool) {
	p, ok := v.s.counter[Address{module, channel}]
	if !ok {
		return 0, false
	}
	if p.held {
		return uint16(p.frozen), true
	}
	return uint16(p.value), true
}

func (v view) ModuleTimeTagged(module uint8) bool {
	return v.s.timeTagged[module]
}

func (v view) DigitalModules() []uint8 {
	return v.s.modules
}
