package models

import "time"

// LivenessStatus belief about the live channel
type LivenessStatus string

const (
	LivenessUnknown   LivenessStatus = "Unknown"
	LivenessConnected LivenessStatus = "Connected"
	LivenessAwaiting  LivenessStatus = "Awaiting"
)

// DegradeReason why the status left Connected
type DegradeReason string

const (
	DegradeNone          DegradeReason = ""
	DegradeTimeout       DegradeReason = "timeout"
	DegradeTransportLost DegradeReason = "transport_lost"
)

// LivenessState process-local liveness of one view's subscription.
type LivenessState struct {
	Status      LivenessStatus `json:"status"`
	LastEventAt *time.Time     `json:"last_event_at"`
	Reason      DegradeReason  `json:"reason,omitempty"`
}
