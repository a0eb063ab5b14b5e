package reaper

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type recordingSweeper struct {
	mu       sync.Mutex
	calls    []time.Time
	removed  int
	sweepErr error
}

func (s *recordingSweeper) sweep(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, now)
	return s.removed, s.sweepErr
}

func (s *recordingSweeper) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *recordingSweeper) SweepExpired(_ context.Context, now time.Time) (int, error) {
	return s.sweep(now)
}

func (s *recordingSweeper) SweepSessions(_ context.Context, now time.Time) (int, error) {
	return s.sweep(now)
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestTick_SweepsBothHalves(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: now}
	shares := &recordingSweeper{removed: 3}
	sessions := &recordingSweeper{removed: 1}

	r := New(shares, sessions, clock, discardLogger(), time.Minute)
	r.Tick(context.Background())

	assert.Equal(t, []time.Time{now}, shares.calls)
	assert.Equal(t, []time.Time{now}, sessions.calls)
}

func TestTick_ShareFailureDoesNotSkipSessions(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	shares := &recordingSweeper{sweepErr: errors.New("db down")}
	sessions := &recordingSweeper{}

	r := New(shares, sessions, clock, discardLogger(), time.Minute)
	r.Tick(context.Background())

	assert.Equal(t, 1, shares.callCount())
	assert.Equal(t, 1, sessions.callCount())
}

func TestRun_StopsOnCancel(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	shares := &recordingSweeper{}
	sessions := &recordingSweeper{}

	r := New(shares, sessions, clock, discardLogger(), 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Greater(t, shares.callCount(), 0)
	assert.Equal(t, shares.callCount(), sessions.callCount())
}
