package halrhi

import (
	"sync"

	"github.com/gogpu/framegraph/rhi"
)

// Tracker remembers the state every long-lived resource was left in by the
// last submitted graph. Unknown resources report the zero state, which is
// an undefined layout with no pending access.
type Tracker struct {
	mu     sync.RWMutex
	states map[rhi.Resource]rhi.ResourceState
}

var _ rhi.StateTracker = (*Tracker)(nil)

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[rhi.Resource]rhi.ResourceState)}
}

func (t *Tracker) CurrentState(r rhi.Resource) rhi.ResourceState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.states[r]
}

func (t *Tracker) SetCurrentState(r rhi.Resource, s rhi.ResourceState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[r] = s
}

// Forget drops the state of a released resource.
func (t *Tracker) Forget(r rhi.Resource) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, r)
}

// Len returns the number of tracked resources.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.states)
}
