package service

import (
	"time"

	"tankwatch-chart/internal/consumer"
)

// alarm one-shot timer whose channel is nil while disarmed, so it can sit in
// a select unconditionally.
type alarm struct {
	t *time.Timer
}

func (a *alarm) C() <-chan time.Time {
	if a.t == nil {
		return nil
	}
	return a.t.C
}

func (a *alarm) Armed() bool {
	return a.t != nil
}

// Arm (re)starts the alarm.
func (a *alarm) Arm(d time.Duration) {
	a.Stop()
	a.t = time.NewTimer(d)
}

// ArmIfIdle starts the alarm unless it is already pending.
func (a *alarm) ArmIfIdle(d time.Duration) bool {
	if a.t != nil {
		return false
	}
	a.t = time.NewTimer(d)
	return true
}

// Fired must be called after receiving from C.
func (a *alarm) Fired() {
	a.t = nil
}

func (a *alarm) Stop() {
	if a.t != nil {
		a.t.Stop()
		a.t = nil
	}
}

// resources everything a view holds for its current scope. release is
// called on every scope change and when the view stops.
type resources struct {
	sub       consumer.Subscription
	reconcile *time.Ticker

	postEvent   alarm
	liveness    alarm
	retry       alarm
	resubscribe alarm
}

func (r *resources) events() <-chan consumer.Delivery {
	if r.sub == nil {
		return nil
	}
	return r.sub.Events()
}

func (r *resources) lost() <-chan error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Lost()
}

func (r *resources) reconcileC() <-chan time.Time {
	if r.reconcile == nil {
		return nil
	}
	return r.reconcile.C
}

// closeReason the error the transport reported before ending Events, or
// ErrSubscriptionClosed when it reported none.
func (r *resources) closeReason() error {
	select {
	case err := <-r.lost():
		if err != nil {
			return err
		}
	default:
	}
	return consumer.ErrSubscriptionClosed
}

// dropSubscription closes the live feed but keeps the timers.
func (r *resources) dropSubscription() {
	if r.sub != nil {
		r.sub.Close()
		r.sub = nil
	}
}

func (r *resources) release() {
	r.dropSubscription()
	if r.reconcile != nil {
		r.reconcile.Stop()
		r.reconcile = nil
	}
	r.postEvent.Stop()
	r.liveness.Stop()
	r.retry.Stop()
	r.resubscribe.Stop()
}
