package perception

import "sync/atomic"

// Buffer holds the most recent DetectionSet. Each Update replaces the
// stored set wholesale; there is no merge, queue or staleness tracking.
// Readers see either the empty set or one complete snapshot.
type Buffer struct {
	latest  atomic.Pointer[DetectionSet]
	updates atomic.Uint64
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	b := &Buffer{}
	b.latest.Store(&DetectionSet{})
	return b
}

// Update stores a copy of set as the latest snapshot.
func (b *Buffer) Update(set DetectionSet) {
	c := set.clone()
	b.latest.Store(&c)
	b.updates.Add(1)
}

// Snapshot returns the latest complete set. The returned slice must not be
// modified by the caller.
func (b *Buffer) Snapshot() DetectionSet {
	if s := b.latest.Load(); s != nil {
		return *s
	}
	return DetectionSet{}
}

// Clear resets the buffer to the empty set.
func (b *Buffer) Clear() {
	b.latest.Store(&DetectionSet{})
}

// Updates returns how many snapshots have been stored.
func (b *Buffer) Updates() uint64 {
	return b.updates.Load()
}
