package models

import "time"

type ReportStatus string

const (
	ReportPending     ReportStatus = "pending"
	ReportQueued      ReportStatus = "queued"
	ReportInReview    ReportStatus = "in_review"
	ReportActionTaken ReportStatus = "action_taken"
	ReportDismissed   ReportStatus = "dismissed"
)

func (s ReportStatus) Valid() bool {
	switch s {
	case ReportPending, ReportQueued, ReportInReview, ReportActionTaken, ReportDismissed:
		return true
	}
	return false
}

// Report is a moderation report over a snapshot of content. Status moves
// freely while the report is open; escalation level and SLA fields are
// orthogonal to status. Once ClosedAt is set the report is frozen.
type Report struct {
	ID              string       `json:"id"`
	ContentID       string       `json:"content_id"`
	ContentText     string       `json:"content_text"`
	Reason          string       `json:"reason"`
	ReporterID      *string      `json:"reporter_id,omitempty"`
	Status          ReportStatus `json:"status"`
	AdminNotes      []string     `json:"admin_notes"`
	EscalationLevel int          `json:"escalation_level"`
	SLAMinutes      *int         `json:"sla_minutes,omitempty"`
	EscalatedAt     *time.Time   `json:"escalated_at,omitempty"`
	ClosedAt        *time.Time   `json:"closed_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

func (r Report) Closed() bool { return r.ClosedAt != nil }

// SLADueAt returns the breach deadline derived from the escalation fields,
// or false when the report has no active SLA.
func (r Report) SLADueAt() (time.Time, bool) {
	if r.EscalatedAt == nil || r.SLAMinutes == nil || *r.SLAMinutes <= 0 {
		return time.Time{}, false
	}
	return r.EscalatedAt.Add(time.Duration(*r.SLAMinutes) * time.Minute), true
}

// AuditRecord is one immutable line of the moderation audit trail. A record
// is written for every escalate, deescalate and close.
type AuditRecord struct {
	ID              int64        `json:"id"`
	ReportID        string       `json:"report_id"`
	Action          string       `json:"action"`
	Status          ReportStatus `json:"status"`
	EscalationLevel int          `json:"escalation_level"`
	SLAMinutes      *int         `json:"sla_minutes,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}
