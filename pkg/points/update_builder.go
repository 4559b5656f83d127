package points

import "avaneesh/md3-go/pkg/types"

// UpdateBuilder collects measurement updates that are applied to a store
// under a single lock, so a scan sees either none or all of them.
type UpdateBuilder struct {
	updates []update
}

type update struct {
	index uint16
	value types.Measurement
}

// NewUpdateBuilder creates a new update builder
func NewUpdateBuilder() *UpdateBuilder {
	return &UpdateBuilder{}
}

// Binary queues a digital update
func (b *UpdateBuilder) Binary(index uint16, v types.Binary) *UpdateBuilder {
	b.updates = append(b.updates, update{index, v})
	return b
}

// Analog queues an analog update
func (b *UpdateBuilder) Analog(index uint16, v types.Analog) *UpdateBuilder {
	b.updates = append(b.updates, update{index, v})
	return b
}

// Counter queues a counter update
func (b *UpdateBuilder) Counter(index uint16, v types.Counter) *UpdateBuilder {
	b.updates = append(b.updates, update{index, v})
	return b
}

// Len returns the number of queued updates
func (b *UpdateBuilder) Len() int {
	return len(b.updates)
}

// Apply writes every queued update to the store in one critical section.
// Updates for unconfigured indexes are skipped; their count is returned.
func (s *Store) Apply(b *UpdateBuilder) (skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range b.updates {
		var err error
		switch v := u.value.(type) {
		case types.Binary:
			err = s.updateBinaryLocked(u.index, v)
		case types.Analog:
			err = s.updateAnalogLocked(u.index, v)
		case types.Counter:
			err = s.updateCounterLocked(u.index, v)
		}
		if err != nil {
			skipped++
		}
	}
	return skipped
}
