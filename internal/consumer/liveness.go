package consumer

import (
	"time"

	"tankwatch-chart/internal/models"
)

// DefaultLivenessTimeout silence after which a live channel is presumed stale.
const DefaultLivenessTimeout = 3 * time.Minute

// Liveness watchdog state of one subscription. The owner drives time: it
// calls Observe on every delivery and Expire when the deadline passes.
type Liveness struct {
	timeout time.Duration
	state   models.LivenessState
}

// NewLiveness starts in Unknown.
func NewLiveness(timeout time.Duration) *Liveness {
	if timeout <= 0 {
		timeout = DefaultLivenessTimeout
	}
	return &Liveness{
		timeout: timeout,
		state:   models.LivenessState{Status: models.LivenessUnknown},
	}
}

// Observe records a delivery, relevant or not.
func (l *Liveness) Observe(at time.Time) {
	l.state.LastEventAt = &at
	l.state.Status = models.LivenessConnected
	l.state.Reason = models.DegradeNone
}

// Deadline when the current Connected state lapses; ok is false unless
// Connected.
func (l *Liveness) Deadline() (time.Time, bool) {
	if l.state.Status != models.LivenessConnected || l.state.LastEventAt == nil {
		return time.Time{}, false
	}
	return l.state.LastEventAt.Add(l.timeout), true
}

// Expire degrades to Awaiting if no event arrived within the timeout before
// now. It reports whether the status changed.
func (l *Liveness) Expire(now time.Time) bool {
	deadline, ok := l.Deadline()
	if !ok || now.Before(deadline) {
		return false
	}
	l.state.Status = models.LivenessAwaiting
	l.state.Reason = models.DegradeTimeout
	return true
}

// TransportLost degrades immediately.
func (l *Liveness) TransportLost() {
	l.state.Status = models.LivenessAwaiting
	l.state.Reason = models.DegradeTransportLost
}

// State copy of the current state.
func (l *Liveness) State() models.LivenessState {
	s := l.state
	if s.LastEventAt != nil {
		at := *s.LastEventAt
		s.LastEventAt = &at
	}
	return s
}
