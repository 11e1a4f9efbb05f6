package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cctracker/internal/breaker"
	"cctracker/internal/domain"
	"cctracker/internal/testutil"
)

type fakeSweeper struct {
	errs  []error
	calls int
	onRun func(call int)
}

func (f *fakeSweeper) Sweep(ctx context.Context) (*domain.SweepStats, error) {
	f.calls++
	if f.onRun != nil {
		f.onRun(f.calls)
	}
	if f.calls <= len(f.errs) {
		return &domain.SweepStats{}, f.errs[f.calls-1]
	}
	return &domain.SweepStats{}, nil
}

type recordingNotifier struct {
	subjects []string
}

func (n *recordingNotifier) NotifyOperators(_ context.Context, subject, _ string) {
	n.subjects = append(n.subjects, subject)
}

func newScheduler(sw Sweeper, brk *breaker.Breaker, n Notifier) (*Scheduler, *[]time.Duration) {
	s := NewScheduler(sw, time.Minute, brk, n, testutil.DiscardLogger())
	var sleeps []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return s, &sleeps
}

func TestStart_SleepsBetweenSweepsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sw := &fakeSweeper{onRun: func(call int) {
		if call == 3 {
			cancel()
		}
	}}
	s, sleeps := newScheduler(sw, breaker.New(5, time.Hour), &recordingNotifier{})

	err := s.Start(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, sw.calls)
	assert.Equal(t, []time.Duration{time.Minute, time.Minute, time.Minute}, *sleeps)
}

func TestStart_HaltsWhenSweepTripsBreaker(t *testing.T) {
	sw := &fakeSweeper{errs: []error{nil, breaker.ErrTripped}}
	s, sleeps := newScheduler(sw, breaker.New(5, time.Hour), &recordingNotifier{})

	err := s.Start(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHalted)
	assert.ErrorIs(t, err, breaker.ErrTripped)
	assert.Equal(t, 2, sw.calls)
	assert.Len(t, *sleeps, 1)
}

func TestRunOnce_SweepErrorIsReportedAndCounted(t *testing.T) {
	brk := breaker.New(2, time.Hour)
	n := &recordingNotifier{}
	sw := &fakeSweeper{errs: []error{errors.New("list pollable accounts: db down")}}
	s, _ := newScheduler(sw, brk, n)

	err := s.RunOnce(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, brk.Count())
	require.Len(t, n.subjects, 1)
	assert.Contains(t, n.subjects[0], "db down")
}

func TestRunOnce_RepeatedSweepErrorsHalt(t *testing.T) {
	brk := breaker.New(2, time.Hour)
	sw := &fakeSweeper{errs: []error{errors.New("db down"), errors.New("db down")}}
	s, _ := newScheduler(sw, brk, &recordingNotifier{})

	require.NoError(t, s.RunOnce(context.Background()))
	err := s.RunOnce(context.Background())

	assert.ErrorIs(t, err, ErrHalted)
}

func TestRunOnce_CancelledSweepIsNotCounted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	brk := breaker.New(2, time.Hour)
	n := &recordingNotifier{}
	sw := &fakeSweeper{errs: []error{context.Canceled}}
	s, _ := newScheduler(sw, brk, n)

	err := s.RunOnce(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, brk.Count())
	assert.Empty(t, n.subjects)
}

func TestSleep_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sleep(ctx, time.Hour)

	assert.ErrorIs(t, err, context.Canceled)
}
