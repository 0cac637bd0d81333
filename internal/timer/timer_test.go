package timer

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/trainer-api/pkg/logger"

	"github.com/jwalitptl/trainer-api/internal/model"
)

type schedCall struct {
	op           string
	key          Key
	durationSec  int64
	remainingSec int64
}

type fakeScheduler struct {
	mu    sync.Mutex
	calls []schedCall
	seen  chan string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{seen: make(chan string, 16)}
}

func (s *fakeScheduler) record(c schedCall) {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	s.mu.Unlock()
	s.seen <- c.op
}

func (s *fakeScheduler) CreateReminder(_ context.Context, key Key, durationSec int64, _ *model.ReminderPayload) error {
	s.record(schedCall{op: "create", key: key, durationSec: durationSec})
	return nil
}

func (s *fakeScheduler) PauseReminder(_ context.Context, key Key) error {
	s.record(schedCall{op: "pause", key: key})
	return nil
}

func (s *fakeScheduler) ResumeReminder(_ context.Context, key Key, remainingSec int64) error {
	s.record(schedCall{op: "resume", key: key, remainingSec: remainingSec})
	return nil
}

func (s *fakeScheduler) ResetReminder(_ context.Context, key Key) error {
	s.record(schedCall{op: "reset", key: key})
	return nil
}

func (s *fakeScheduler) waitFor(t *testing.T, op string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-s.seen:
			if got == op {
				return
			}
		case <-deadline:
			t.Fatalf("scheduler never saw %q", op)
		}
	}
}

func newTestTimer(t *testing.T, sched SchedulerClient) (*Timer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deadlines.db")
	store, err := OpenStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logg := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	tm := New(store, sched, logg)
	tm.interval = 20 * time.Millisecond
	t.Cleanup(tm.Close)
	return tm, path
}

func TestObserveReportsDurationWithinOneSecond(t *testing.T) {
	tm, _ := newTestTimer(t, nil)
	key := Key{Day: 1, StepIndex: 0}

	require.NoError(t, tm.Start(key, 30, nil))

	rem, err := tm.Observe(key)
	require.NoError(t, err)
	assert.InDelta(t, 30, rem, 1)
}

func TestObserveMissingKeyIsZero(t *testing.T) {
	tm, _ := newTestTimer(t, nil)

	rem, err := tm.Observe(Key{Day: 9, StepIndex: 9})
	require.NoError(t, err)
	assert.Zero(t, rem)
}

func TestObserveSurvivesRestart(t *testing.T) {
	tm, path := newTestTimer(t, nil)
	key := Key{Day: 2, StepIndex: 3}
	require.NoError(t, tm.Start(key, 120, nil))
	tm.Close()

	// A fresh process over the same file reads the same deadline
	// without ever having run the loop.
	store, err := OpenStore(path)
	require.NoError(t, err)
	defer store.Close()

	logg := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	reborn := New(store, nil, logg)
	defer reborn.Close()

	rem, err := reborn.Observe(key)
	require.NoError(t, err)
	assert.InDelta(t, 120, rem, 2)
}

func TestPauseKeepsDeadline(t *testing.T) {
	tm, _ := newTestTimer(t, nil)
	key := Key{Day: 0, StepIndex: 1}

	require.NoError(t, tm.Start(key, 60, nil))
	tm.Pause(key)

	tm.mu.Lock()
	_, running := tm.loops[key]
	tm.mu.Unlock()
	assert.False(t, running)

	// The persisted deadline intentionally outlives the loop; Resume
	// rebuilds from the frozen display value, not from this row.
	rem, err := tm.Observe(key)
	require.NoError(t, err)
	assert.Greater(t, rem, int64(0))
}

func TestResumeRecomputesDeadline(t *testing.T) {
	tm, _ := newTestTimer(t, nil)
	key := Key{Day: 0, StepIndex: 2}

	require.NoError(t, tm.Start(key, 60, nil))
	tm.Pause(key)
	require.NoError(t, tm.Resume(key, 45))

	rem, err := tm.Observe(key)
	require.NoError(t, err)
	assert.InDelta(t, 45, rem, 1)
}

func TestFinishFiresOnce(t *testing.T) {
	tm, _ := newTestTimer(t, nil)
	key := Key{Day: 3, StepIndex: 0}

	var finishes int
	tm.OnFinish = func(Key) { finishes++ }

	require.NoError(t, tm.Start(key, 600, nil))

	require.NoError(t, tm.Finish(key))
	require.NoError(t, tm.Finish(key))
	assert.Equal(t, 1, finishes)

	rem, err := tm.Observe(key)
	require.NoError(t, err)
	assert.Zero(t, rem)
}

func TestLoopFinishesExpiredCountdown(t *testing.T) {
	tm, _ := newTestTimer(t, nil)
	key := Key{Day: 4, StepIndex: 1}

	done := make(chan struct{})
	tm.OnFinish = func(Key) { close(done) }

	require.NoError(t, tm.Start(key, 1, nil))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("countdown never finished")
	}

	// The entry is gone, so later observations stay at zero and the
	// callback cannot fire again.
	rem, err := tm.Observe(key)
	require.NoError(t, err)
	assert.Zero(t, rem)
}

func TestResetDeletesDeadline(t *testing.T) {
	tm, _ := newTestTimer(t, nil)
	key := Key{Day: 5, StepIndex: 0}

	require.NoError(t, tm.Start(key, 60, nil))
	require.NoError(t, tm.Reset(key))

	rem, err := tm.Observe(key)
	require.NoError(t, err)
	assert.Zero(t, rem)
}

func TestSchedulerMirrorsClientIntent(t *testing.T) {
	sched := newFakeScheduler()
	tm, _ := newTestTimer(t, sched)
	key := Key{Day: 6, StepIndex: 2}

	require.NoError(t, tm.Start(key, 90, &model.ReminderPayload{StepTitle: "Squats"}))
	sched.waitFor(t, "create")

	tm.Pause(key)
	sched.waitFor(t, "pause")

	require.NoError(t, tm.Resume(key, 80))
	sched.waitFor(t, "resume")

	require.NoError(t, tm.Finish(key))
	sched.waitFor(t, "reset")

	sched.mu.Lock()
	defer sched.mu.Unlock()
	assert.Equal(t, int64(90), sched.calls[0].durationSec)
}
