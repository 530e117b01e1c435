package models

import (
	"errors"
	"fmt"
)

// ErrInvalidRange unknown time range key
var ErrInvalidRange = errors.New("invalid time range")

// ErrInvalidMode unknown chart mode
var ErrInvalidMode = errors.New("invalid chart mode")

// TimeRange named chart window
type TimeRange string

const (
	Range3h  TimeRange = "3h"
	Range6h  TimeRange = "6h"
	Range24h TimeRange = "24h"
	Range1w  TimeRange = "1w"
	Range1m  TimeRange = "1m"
)

// TimeRanges all supported ranges, shortest first.
var TimeRanges = []TimeRange{Range3h, Range6h, Range24h, Range1w, Range1m}

// Valid reports whether r is one of TimeRanges.
func (r TimeRange) Valid() bool {
	for _, known := range TimeRanges {
		if r == known {
			return true
		}
	}
	return false
}

// LabelLayout time layout of the row's display label.
func (r TimeRange) LabelLayout() string {
	switch r {
	case Range1m:
		return "Jan 02"
	case Range1w:
		return "Jan 02 15:04"
	default:
		return "15:04"
	}
}

// Mode chart mode
type Mode string

const (
	ModeSingle Mode = "single"
	ModeMulti  Mode = "multi"
)

// Scope what a chart view shows. DeviceID is used in single mode only.
type Scope struct {
	Range    TimeRange `json:"range"`
	Mode     Mode      `json:"mode"`
	DeviceID string    `json:"device_id,omitempty"`
}

// Validate checks the range and mode; single mode needs a device.
func (s Scope) Validate() error {
	if !s.Range.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRange, s.Range)
	}
	switch s.Mode {
	case ModeSingle:
		if s.DeviceID == "" {
			return fmt.Errorf("%w: single mode requires device_id", ErrInvalidMode)
		}
	case ModeMulti:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, s.Mode)
	}
	return nil
}

// FetchDeviceID device filter for the historical query: the scoped device in
// single mode, empty (all devices) in comparison mode.
func (s Scope) FetchDeviceID() string {
	if s.Mode == ModeSingle {
		return s.DeviceID
	}
	return ""
}

// Normalized drops fields the mode ignores, so two scopes that drive the same
// query compare equal.
func (s Scope) Normalized() Scope {
	s.DeviceID = s.FetchDeviceID()
	return s
}
