package models

import (
	"errors"
	"time"
)

// ViewSnapshot rendered state of one chart view.
type ViewSnapshot struct {
	ViewID           string          `json:"view_id"`
	Scope            Scope           `json:"scope"`
	Liveness         LivenessState   `json:"liveness"`
	Rows             []AlignedRow    `json:"rows"`
	RecordCount      int             `json:"record_count"`
	ProvisionalCount int             `json:"provisional_count"`
	HiddenDevices    []string        `json:"hidden_devices,omitempty"`
	LastFetchAt      *time.Time      `json:"last_fetch_at"`
	LastFetchError   string          `json:"last_fetch_error,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Series           []ReadingRecord `json:"-"`
}

var (
	// ErrViewNotFound no open view with that ID
	ErrViewNotFound = errors.New("view not found")
	// ErrViewClosed the view stopped while a request was pending
	ErrViewClosed = errors.New("view closed")
	// ErrTooManyViews open view limit reached
	ErrTooManyViews = errors.New("too many open views")
)
