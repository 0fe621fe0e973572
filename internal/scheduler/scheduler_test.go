package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryJobRuns(t *testing.T) {
	s := New(zerolog.Nop())

	var runs atomic.Int64
	s.Every("counter", 10*time.Millisecond, func() {
		runs.Add(1)
	})

	s.Start()
	time.Sleep(80 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, runs.Load(), int64(2), "expected the ticker job to fire repeatedly")

	after := runs.Load()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "job kept running after Stop")
}

func TestJobPanicIsContained(t *testing.T) {
	s := New(zerolog.Nop())

	var healthy atomic.Int64
	s.Every("bad", 10*time.Millisecond, func() {
		panic("sweep exploded")
	})
	s.Every("good", 10*time.Millisecond, func() {
		healthy.Add(1)
	})

	s.Start()
	time.Sleep(60 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, healthy.Load(), int64(2), "healthy job should survive a sibling panic")
}

func TestCronRejectsBadSpec(t *testing.T) {
	s := New(zerolog.Nop())

	err := s.Cron("purge", "not a cron spec", func() {})
	require.Error(t, err)

	err = s.Cron("purge", "0 3 * * *", func() {})
	require.NoError(t, err)
}

func TestRegisterAfterStartIgnored(t *testing.T) {
	s := New(zerolog.Nop())
	s.Start()
	defer s.Stop()

	var runs atomic.Int64
	s.Every("late", time.Millisecond, func() { runs.Add(1) })
	time.Sleep(20 * time.Millisecond)

	assert.Zero(t, runs.Load(), "jobs registered after Start must not run")
}

func TestStopIsIdempotentBeforeStart(t *testing.T) {
	s := New(zerolog.Nop())
	s.Stop() // must not panic or block
	s.Start()
	s.Stop()
	s.Stop()
}
