package memory

import (
	"context"
	"log"
	"sync"
	"time"
)

// FireFunc is invoked when an attempt's expiry deadline passes.
type FireFunc func(ctx context.Context, attemptID string) error

// Scheduler is an in-process implementation of app.ExpiryScheduler backed by
// one-shot timers. Timers do not survive a restart; callers recover by
// re-scheduling open attempts on boot. Duplicate scheduling for the same
// attempt is harmless because the firing target is idempotent.
type Scheduler struct {
	mu     sync.Mutex
	fire   FireFunc
	timers map[string]*time.Timer
}

func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[string]*time.Timer)}
}

// SetHandler binds the firing target. Must be called before the first timer
// fires; wiring does this during boot.
func (s *Scheduler) SetHandler(fire FireFunc) {
	s.mu.Lock()
	s.fire = fire
	s.mu.Unlock()
}

func (s *Scheduler) Schedule(_ context.Context, attemptID string, fireAt time.Time) error {
	delay := time.Until(fireAt)
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timers[attemptID]; ok {
		return nil
	}
	s.timers[attemptID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		fire := s.fire
		delete(s.timers, attemptID)
		s.mu.Unlock()

		if fire == nil {
			log.Printf("expiry fired for attempt %s with no handler bound", attemptID)
			return
		}
		if err := fire(context.Background(), attemptID); err != nil {
			log.Printf("expire attempt %s: %v", attemptID, err)
		}
	})
	return nil
}

// Stop cancels all pending timers. Used on shutdown; attempts left open are
// picked up again by the boot-time recovery sweep.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}
