package model

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusClear     Status = "clear"
	StatusModerate  Status = "moderate"
	StatusPollutant Status = "pollutant"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type CallStatus string

const (
	CallCompleted CallStatus = "completed"
	CallFailed    CallStatus = "failed"
)

// Reading is one classified water-quality observation for a site.
// Readings are produced externally (camera pipeline, simulator, replay)
// and never mutated after ingestion.
type Reading struct {
	Timestamp       time.Time `json:"timestamp"`
	SiteID          string    `json:"site_id"`
	Status          Status    `json:"status"`
	Confidence      float64   `json:"confidence"`
	TurbidityNTU    float64   `json:"turbidity_ntu"`
	PH              float64   `json:"ph"`
	ComplianceScore float64   `json:"compliance_score"`
}

// Validate rejects malformed readings before they touch any incident or
// cooldown state.
func (r Reading) Validate() error {
	if r.SiteID == "" {
		return errors.New("reading missing site_id")
	}
	switch r.Status {
	case StatusClear, StatusModerate, StatusPollutant:
	default:
		return fmt.Errorf("reading has unknown status %q", r.Status)
	}
	if r.Confidence < 0 || r.Confidence > 100 {
		return fmt.Errorf("reading confidence %.2f outside [0,100]", r.Confidence)
	}
	if r.TurbidityNTU < 0 {
		return fmt.Errorf("reading turbidity %.2f is negative", r.TurbidityNTU)
	}
	if r.Timestamp.IsZero() {
		return errors.New("reading missing timestamp")
	}
	return nil
}

type Alert struct {
	Timestamp time.Time `json:"timestamp"`
	SiteID    string    `json:"site_id"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
}

// CallAttempt is the audit record for one contact within one dispatch run.
type CallAttempt struct {
	Timestamp          time.Time  `json:"timestamp"`
	PhoneNumber        string     `json:"phone_number"`
	Status             CallStatus `json:"status"`
	ContaminationScore float64    `json:"contamination_score"`
	SiteID             string     `json:"site_id"`
}

// Contact is an emergency contact loaded once from configuration,
// read-only for the process lifetime.
type Contact struct {
	Name  string `json:"name" yaml:"name"`
	Phone string `json:"phone" yaml:"phone"`
}
