package digest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/infocapsule/digest/internal/domain"
	"github.com/infocapsule/digest/internal/pkg/distlock"
	"github.com/infocapsule/digest/internal/pkg/logger"
)

// LockFactory builds a distributed lock for a slot-run key. Exactly one
// instance wins the lock for a given slot and date; the others skip the
// run. A nil factory disables locking (single-instance deployments).
type LockFactory func(key string) distlock.DistLock

// slotLockTTL bounds how long a crashed winner blocks a Redis-backed
// slot lock. A full slot run finishes well inside this window.
const slotLockTTL = 15 * time.Minute

// SlotScheduler wakes at each of the four daily UTC slots and triggers a
// digest run for the slot's users.
type SlotScheduler struct {
	runner  *Runner
	newLock LockFactory

	now func() time.Time

	// Stats
	slotsFired int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

// NewSlotScheduler creates a scheduler over the given runner.
func NewSlotScheduler(runner *Runner, newLock LockFactory) *SlotScheduler {
	return &SlotScheduler{
		runner:  runner,
		newLock: newLock,
		now:     time.Now,
	}
}

// SetClock overrides the scheduler's time source (useful for testing).
func (s *SlotScheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Start begins the scheduler background goroutine.
func (s *SlotScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	logger.Info("Slot scheduler starting")

	s.wg.Add(1)
	go s.loop()
}

// Stop gracefully stops the scheduler.
func (s *SlotScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	logger.Info("Slot scheduler stopped", "slots_fired", atomic.LoadInt64(&s.slotsFired))
}

// IsRunning reports whether the scheduler loop is active.
func (s *SlotScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *SlotScheduler) loop() {
	defer s.wg.Done()

	for {
		slot, fireAt := NextSlot(s.now().UTC())
		wait := fireAt.Sub(s.now().UTC())
		logger.Info("Next digest slot scheduled",
			"slot", string(slot),
			"fire_at", fireAt.Format(time.RFC3339))

		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.fire(slot, fireAt)
		}
	}
}

// fire runs one slot, guarded by the distributed lock when configured.
func (s *SlotScheduler) fire(slot domain.TimeSlot, fireAt time.Time) {
	atomic.AddInt64(&s.slotsFired, 1)

	if s.newLock != nil {
		key := fmt.Sprintf("digest:slot:%s:%s", slot, fireAt.Format("2006-01-02"))
		lock := s.newLock(key)

		acquired, err := lock.Acquire(s.ctx)
		if err != nil {
			logger.Error("Slot lock error", "slot", string(slot), "error", err.Error())
			return
		}
		if !acquired {
			logger.Info("Slot claimed by another instance", "slot", string(slot))
			return
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				logger.Warn("Failed to release slot lock", "slot", string(slot), "error", err.Error())
			}
		}()
	}

	if err := s.runner.RunSlot(s.ctx, slot); err != nil && s.ctx.Err() == nil {
		logger.Error("Slot run failed", "slot", string(slot), "error", err.Error())
	}
}

// NextSlot returns the next slot boundary strictly after now, in UTC.
// Slots fire at 00:00 ("24:00"), 06:00, 12:00, and 18:00.
func NextSlot(now time.Time) (domain.TimeSlot, time.Time) {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	for _, slot := range domain.AllTimeSlots() {
		fireAt := day.Add(time.Duration(slot.Hour()) * time.Hour)
		if fireAt.After(now) {
			return slot, fireAt
		}
	}

	// Past 18:00: the next boundary is midnight tomorrow.
	return domain.SlotMidnight, day.Add(24 * time.Hour)
}
