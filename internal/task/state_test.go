package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusRunning, false},
		{StatusPaused, false},
		{StatusResuming, false},
		{StatusComplete, true},
		{StatusError, false},
		{StatusCanceled, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.terminal, tt.status.IsTerminal(), tt.status)
	}
}

func TestStatusIsRunnable(t *testing.T) {
	tests := []struct {
		status   Status
		runnable bool
	}{
		{StatusPending, true},
		{StatusResuming, true},
		{StatusRunning, false},
		{StatusPaused, false},
		{StatusComplete, false},
		{StatusError, false},
		{StatusCanceled, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.runnable, tt.status.IsRunnable(), tt.status)
	}
}

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusCanceled, false},
		{StatusRunning, StatusComplete, true},
		{StatusRunning, StatusError, true},
		{StatusRunning, StatusPaused, true},
		{StatusRunning, StatusCanceled, true},
		{StatusRunning, StatusPending, false},
		{StatusPaused, StatusResuming, true},
		{StatusPaused, StatusRunning, false},
		{StatusResuming, StatusRunning, true},
		{StatusResuming, StatusPaused, false},
		{StatusError, StatusResuming, true},
		{StatusError, StatusPending, false},
		{StatusComplete, StatusRunning, false},
		{StatusCanceled, StatusRunning, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestStatusMismatchError(t *testing.T) {
	err := &StatusMismatchError{TaskID: "t1", Expected: StatusRunning, Actual: StatusPaused}
	assert.ErrorIs(t, err, ErrStatusMismatch)
	assert.Contains(t, err.Error(), "t1")
	assert.Contains(t, err.Error(), "running")
	assert.Contains(t, err.Error(), "paused")
}

func TestInterruptedError(t *testing.T) {
	err := &InterruptedError{TaskID: "t1", Reason: "cancel"}
	assert.Contains(t, err.Error(), "cancel")
}
