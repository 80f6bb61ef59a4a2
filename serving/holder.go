package serving

import (
	"sync/atomic"

	"github.com/ezoic/churn/churn"
)

// Holder is the process-wide slot for the bundle being served. It is
// created once at startup and shared by every handler. Bundles are never
// mutated after being stored, so readers need no lock.
type Holder struct {
	bundle atomic.Pointer[churn.Bundle]
}

// NewHolder returns a Holder serving b, which may be nil.
func NewHolder(b *churn.Bundle) *Holder {
	h := &Holder{}
	if b != nil {
		h.bundle.Store(b)
	}
	return h
}

// Load returns the current bundle or nil.
func (h *Holder) Load() *churn.Bundle {
	return h.bundle.Load()
}

// Store swaps in b.
func (h *Holder) Store(b *churn.Bundle) {
	h.bundle.Store(b)
}

// ID returns the id of the current bundle, or "" when empty.
func (h *Holder) ID() string {
	if b := h.bundle.Load(); b != nil {
		return b.Metadata.ID
	}
	return ""
}
