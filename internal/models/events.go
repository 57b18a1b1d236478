package models

import "time"

// ReportQueuedEvent is published once per report hand-off to the moderation
// channel. Delivery is at-least-once; consumers must tolerate duplicates.
type ReportQueuedEvent struct {
	ReportID   string    `json:"report_id"`
	ContentID  string    `json:"content_id"`
	Reason     string    `json:"reason"`
	ReporterID *string   `json:"reporter_id,omitempty"`
	Preview    string    `json:"preview"`
	CreatedAt  time.Time `json:"created_at"`
}

// SLABreachEvent is emitted exactly once per report when its escalation
// deadline passes while the report is still open.
type SLABreachEvent struct {
	ReportID        string    `json:"report_id"`
	EscalationLevel int       `json:"escalation_level"`
	SLAMinutes      int       `json:"sla_minutes"`
	EscalatedAt     time.Time `json:"escalated_at"`
	DueAt           time.Time `json:"due_at"`
	DetectedAt      time.Time `json:"detected_at"`
}
