package policy

import "sync/atomic"

// Holder publishes the current snapshot. Readers take one Load per operation;
// reconfiguration swaps the pointer.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

func NewHolder(initial *Snapshot) *Holder {
	h := &Holder{}
	h.current.Store(initial)
	return h
}

func (h *Holder) Load() *Snapshot {
	return h.current.Load()
}

func (h *Holder) Store(s *Snapshot) {
	if s != nil {
		h.current.Store(s)
	}
}
