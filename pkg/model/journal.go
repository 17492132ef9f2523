package model

import "time"

// Journal outcomes.
const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected" // malformed, unknown kind or unknown task
	OutcomeFailed   = "failed"   // store error or recovered panic
)

// JournalEntry records what the receiver did with one delivered report.
type JournalEntry struct {
	DeliveryID string     `json:"deliveryId"`
	TaskUUID   string     `json:"taskUuid,omitempty"`
	Kind       ReportKind `json:"kind,omitempty"`
	Outcome    string     `json:"outcome"`
	Detail     string     `json:"detail,omitempty"`
	Digest     string     `json:"digest"`
	Duplicate  bool       `json:"duplicate,omitempty"`
	At         time.Time  `json:"at"`
}
