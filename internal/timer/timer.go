// Package timer implements the durable client-side countdown. The only
// authoritative client state is an absolute deadline persisted per
// step; remaining time is recomputed from it on every observation, so
// the countdown is immune to missed ticks and process restarts (not to
// wall-clock changes). The keyed deadline store is owned here and only
// reachable through Start/Observe/Pause/Resume/Finish/Reset.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/jwalitptl/trainer-api/pkg/logger"

	"github.com/jwalitptl/trainer-api/internal/model"
)

// SchedulerClient mirrors the server's scheduler operations. All calls
// made through it are fire-and-forget: the local deadline drives the
// UI, the server job is only the fallback delivery path.
type SchedulerClient interface {
	CreateReminder(ctx context.Context, key Key, durationSec int64, payload *model.ReminderPayload) error
	PauseReminder(ctx context.Context, key Key) error
	ResumeReminder(ctx context.Context, key Key, remainingSec int64) error
	ResetReminder(ctx context.Context, key Key) error
}

const schedulerCallTimeout = 5 * time.Second

// Timer runs durable per-step countdowns.
type Timer struct {
	store    *Store
	sched    SchedulerClient
	interval time.Duration
	logger   *logger.Logger

	// OnTick, if set, is called with the remaining seconds on every
	// observation of a running countdown.
	OnTick func(key Key, remainingSec int64)
	// OnFinish, if set, is called exactly once when a countdown first
	// reaches zero.
	OnFinish func(key Key)

	mu    sync.Mutex
	loops map[Key]chan struct{}
}

func New(store *Store, sched SchedulerClient, log *logger.Logger) *Timer {
	return &Timer{
		store:    store,
		sched:    sched,
		interval: time.Second,
		logger:   log.WithComponent("step-timer"),
		loops:    make(map[Key]chan struct{}),
	}
}

// Start computes an absolute deadline, persists it, begins the 1-second
// observation loop and reports the new countdown to the scheduler.
func (t *Timer) Start(key Key, durationSec int64, payload *model.ReminderPayload) error {
	endTs := time.Now().Unix() + durationSec
	if err := t.store.Put(key, endTs); err != nil {
		return err
	}
	t.startLoop(key)

	go t.bestEffort("create", func(ctx context.Context) error {
		return t.sched.CreateReminder(ctx, key, durationSec, payload)
	})
	return nil
}

// Observe returns the remaining seconds without mutating anything.
// After a restart it reports correctly from the persisted deadline; a
// key with no deadline reads as zero.
func (t *Timer) Observe(key Key) (int64, error) {
	endTs, ok, err := t.store.Get(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	rem := endTs - time.Now().Unix()
	if rem < 0 {
		rem = 0
	}
	return rem, nil
}

// Pause stops the observation loop but keeps the persisted deadline.
// The frozen display value, not the now-stale deadline, is what Resume
// later rebuilds from; the caller holds it.
func (t *Timer) Pause(key Key) {
	t.stopLoop(key)

	go t.bestEffort("pause", func(ctx context.Context) error {
		return t.sched.PauseReminder(ctx, key)
	})
}

// Resume recomputes the deadline from the previously displayed
// remaining value and restarts the loop.
func (t *Timer) Resume(key Key, remainingSec int64) error {
	endTs := time.Now().Unix() + remainingSec
	if err := t.store.Put(key, endTs); err != nil {
		return err
	}
	t.startLoop(key)

	go t.bestEffort("resume", func(ctx context.Context) error {
		return t.sched.ResumeReminder(ctx, key, remainingSec)
	})
	return nil
}

// Finish completes a countdown: delete the deadline, fire OnFinish, and
// tell the scheduler the reminder is no longer needed. Idempotent: a
// key with no persisted deadline was already finished or reset, so
// nothing fires again.
func (t *Timer) Finish(key Key) error {
	_, ok, err := t.store.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	t.stopLoop(key)
	if err := t.store.Delete(key); err != nil {
		return err
	}

	if t.OnFinish != nil {
		t.OnFinish(key)
	}

	// Exercise already finished client-side; the server notification
	// is obsolete.
	go t.bestEffort("reset", func(ctx context.Context) error {
		return t.sched.ResetReminder(ctx, key)
	})
	return nil
}

// Reset abandons a countdown entirely.
func (t *Timer) Reset(key Key) error {
	t.stopLoop(key)
	if err := t.store.Delete(key); err != nil {
		return err
	}

	go t.bestEffort("reset", func(ctx context.Context) error {
		return t.sched.ResetReminder(ctx, key)
	})
	return nil
}

// Close stops all observation loops. Persisted deadlines are kept so a
// restarted process can pick the countdowns back up.
func (t *Timer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, stop := range t.loops {
		close(stop)
		delete(t.loops, key)
	}
}

func (t *Timer) startLoop(key Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, running := t.loops[key]; running {
		return
	}
	stop := make(chan struct{})
	t.loops[key] = stop
	go t.observeLoop(key, stop)
}

func (t *Timer) stopLoop(key Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if stop, ok := t.loops[key]; ok {
		close(stop)
		delete(t.loops, key)
	}
}

func (t *Timer) observeLoop(key Key, stop chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			rem, err := t.Observe(key)
			if err != nil {
				t.logger.Error(err, "failed to observe countdown", "key", key.String())
				continue
			}
			if t.OnTick != nil {
				t.OnTick(key, rem)
			}
			if rem == 0 {
				if err := t.Finish(key); err != nil {
					t.logger.Error(err, "failed to finish countdown", "key", key.String())
				}
				return
			}
		}
	}
}

func (t *Timer) bestEffort(op string, fn func(ctx context.Context) error) {
	if t.sched == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), schedulerCallTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		t.logger.Warn("scheduler call failed", "op", op, "error", err.Error())
	}
}
