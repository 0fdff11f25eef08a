package delay

import (
	"time"

	"inboxpilot/models"
)

// DelayedStore is the slice of the record store the scheduler uses.
type DelayedStore interface {
	DelayedActions() []models.PendingDelayedAction
	PutDelayedAction(a models.PendingDelayedAction) error
	DeleteDelayedAction(itemID string) error
	ReplaceDelayedActions(actions []models.PendingDelayedAction) error
}

// Scheduler holds promotional items in a grace window before they are
// filed away, so an operator can still rescue a misclassified message.
// Draining is non-destructive; callers remove an action only after its
// side effect succeeded, giving at-least-once execution.
type Scheduler struct {
	store   DelayedStore
	grace   time.Duration
	ceiling time.Duration
}

func NewScheduler(store DelayedStore, grace, ceiling time.Duration) *Scheduler {
	return &Scheduler{store: store, grace: grace, ceiling: ceiling}
}

// Enqueue registers an item for delayed filing. Enqueueing an item that is
// already pending restamps its clock; the grace window restarts.
func (s *Scheduler) Enqueue(itemID string, payload models.DelayedPayload) error {
	return s.store.PutDelayedAction(models.PendingDelayedAction{
		ItemID:     itemID,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	})
}

// EnqueueAt is Enqueue with an explicit timestamp, for replays and tests.
func (s *Scheduler) EnqueueAt(itemID string, payload models.DelayedPayload, at time.Time) error {
	return s.store.PutDelayedAction(models.PendingDelayedAction{
		ItemID:     itemID,
		Payload:    payload,
		EnqueuedAt: at.UTC(),
	})
}

// DrainReady returns the actions whose grace window has elapsed as of now,
// oldest first, without removing them.
func (s *Scheduler) DrainReady(now time.Time) []models.PendingDelayedAction {
	var ready []models.PendingDelayedAction
	for _, a := range s.store.DelayedActions() {
		if now.Sub(a.EnqueuedAt) >= s.grace {
			ready = append(ready, a)
		}
	}
	return ready
}

// Remove drops an action after its side effect completed.
func (s *Scheduler) Remove(itemID string) error {
	return s.store.DeleteDelayedAction(itemID)
}

// Cleanup discards actions older than the hard ceiling. These are entries
// whose side effect kept failing past any reasonable retry horizon; keeping
// them would grow the queue without bound.
func (s *Scheduler) Cleanup(now time.Time) (int, error) {
	actions := s.store.DelayedActions()
	kept := actions[:0]
	for _, a := range actions {
		if now.Sub(a.EnqueuedAt) < s.ceiling {
			kept = append(kept, a)
		}
	}
	dropped := len(actions) - len(kept)
	if dropped == 0 {
		return 0, nil
	}
	if err := s.store.ReplaceDelayedActions(kept); err != nil {
		return 0, err
	}
	return dropped, nil
}

// IsPending reports whether itemID is waiting in the queue.
func (s *Scheduler) IsPending(itemID string) bool {
	for _, a := range s.store.DelayedActions() {
		if a.ItemID == itemID {
			return true
		}
	}
	return false
}

// Pending reports how many actions are waiting.
func (s *Scheduler) Pending() int {
	return len(s.store.DelayedActions())
}
