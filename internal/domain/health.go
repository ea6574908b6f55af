package domain

import "time"

// HealthState is the scheduling-relevant state of a source.
type HealthState string

const (
	HealthHealthy  HealthState = "HEALTHY"
	HealthDegraded HealthState = "DEGRADED"
	HealthDisabled HealthState = "DISABLED"
)

// SourceHealth is the rolling availability record of one source.
type SourceHealth struct {
	Source              string      `json:"source"`
	State               HealthState `json:"state"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	LastSuccess         time.Time   `json:"last_success,omitempty"`
	LastFailure         time.Time   `json:"last_failure,omitempty"`
	LastError           string      `json:"last_error,omitempty"`
	DisabledAt          time.Time   `json:"disabled_at,omitempty"`
	// Probation is set while a source that left DISABLED after its cool-down has not yet
	// produced an outcome.
	Probation bool `json:"probation,omitempty"`
}
