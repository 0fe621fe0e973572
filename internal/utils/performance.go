package utils

import "time"

// StageTimer measures per-stage durations for pipeline performance
// reporting. Not safe for concurrent use; each query owns its own timer.
type StageTimer struct {
	start time.Time
	mark  time.Time
}

// NewStageTimer creates a timer with both the total and stage clocks
// started.
func NewStageTimer() *StageTimer {
	now := time.Now()
	return &StageTimer{start: now, mark: now}
}

// Lap returns the milliseconds since the last Lap (or creation) and
// resets the stage clock.
func (t *StageTimer) Lap() int64 {
	now := time.Now()
	elapsed := now.Sub(t.mark).Milliseconds()
	t.mark = now
	return elapsed
}

// TotalMs returns the milliseconds since the timer was created.
func (t *StageTimer) TotalMs() int64 {
	return time.Since(t.start).Milliseconds()
}
