package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/kasilink/kasilink-backend/internal/metrics"
	"github.com/kasilink/kasilink-backend/internal/models"
	"github.com/kasilink/kasilink-backend/internal/notify"
	repo "github.com/kasilink/kasilink-backend/internal/repository"
	"github.com/kasilink/kasilink-backend/internal/worker"
)

const previewLen = 200

// ModerationService owns the report lifecycle and the escalation machine.
// Escalation level and SLA are orthogonal to status; a closed report rejects
// every further mutation. Audit writes and bus publishes are non-critical
// observers: their failure never fails the transition, it is surfaced as a
// warning instead.
type ModerationService struct {
	reports repo.Reports
	audit   repo.AuditLogs
	bus     notify.Bus
	pool    *worker.Pool

	defaultSLAMinutes int
	now               func() time.Time
}

func NewModerationService(reports repo.Reports, audit repo.AuditLogs, bus notify.Bus, pool *worker.Pool, defaultSLAMinutes int) *ModerationService {
	if defaultSLAMinutes <= 0 {
		defaultSLAMinutes = 60
	}
	return &ModerationService{
		reports:           reports,
		audit:             audit,
		bus:               bus,
		pool:              pool,
		defaultSLAMinutes: defaultSLAMinutes,
		now:               time.Now,
	}
}

// Create stores the report as pending, immediately queues it and hands it
// off to the moderation channel (at-least-once, off the request path).
func (s *ModerationService) Create(ctx context.Context, contentID, contentText, reason string, reporterID *string) (models.Report, error) {
	if strings.TrimSpace(contentID) == "" {
		return models.Report{}, models.ValidationError{Field: "content_id", Reason: "required"}
	}
	if strings.TrimSpace(reason) == "" {
		return models.Report{}, models.ValidationError{Field: "reason", Reason: "required"}
	}

	now := s.now()
	rep, err := s.reports.Create(ctx, models.Report{
		ContentID:   contentID,
		ContentText: contentText,
		Reason:      reason,
		ReporterID:  reporterID,
		Status:      models.ReportPending,
		AdminNotes:  []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return models.Report{}, err
	}

	queued, err := s.reports.Mutate(ctx, rep.ID, func(r *models.Report) error {
		r.Status = models.ReportQueued
		r.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return rep, err
	}
	metrics.ReportStateChanges.WithLabelValues(string(models.ReportQueued)).Inc()

	s.publishQueued(queued)
	return queued, nil
}

func (s *ModerationService) publishQueued(rep models.Report) {
	if s.bus == nil {
		return
	}
	preview := rep.ContentText
	if len(preview) > previewLen {
		preview = preview[:previewLen]
	}
	data, err := json.Marshal(models.ReportQueuedEvent{
		ReportID:   rep.ID,
		ContentID:  rep.ContentID,
		Reason:     rep.Reason,
		ReporterID: rep.ReporterID,
		Preview:    preview,
		CreatedAt:  rep.CreatedAt,
	})
	if err != nil {
		return
	}
	publish := func() {
		if err := s.bus.Publish(notify.SubjectReportQueued, data); err != nil {
			slog.Warn("report hand-off publish failed", "report_id", rep.ID, "err", err)
		}
	}
	if s.pool != nil {
		s.pool.Submit(publish)
	} else {
		publish()
	}
}

func (s *ModerationService) Get(ctx context.Context, id string) (models.Report, error) {
	return s.reports.GetByID(ctx, id)
}

func (s *ModerationService) List(ctx context.Context, status models.ReportStatus, limit, offset int) ([]models.Report, error) {
	if status != "" && !status.Valid() {
		return nil, models.ValidationError{Field: "status", Reason: "unknown status"}
	}
	return s.reports.List(ctx, status, limit, offset)
}

// UpdateStatus overwrites the status unconditionally (no transition table)
// and appends the optional note. Closed reports reject the write.
func (s *ModerationService) UpdateStatus(ctx context.Context, id string, status models.ReportStatus, note string) (models.Report, error) {
	if !status.Valid() {
		return models.Report{}, models.ValidationError{Field: "status", Reason: "unknown status"}
	}
	rep, err := s.reports.Mutate(ctx, id, func(r *models.Report) error {
		if r.Closed() {
			return models.ErrReportClosed
		}
		r.Status = status
		if note != "" {
			r.AdminNotes = append(r.AdminNotes, note)
		}
		r.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return models.Report{}, err
	}
	metrics.ReportStateChanges.WithLabelValues(string(status)).Inc()
	return rep, nil
}

// MarkInReview is called by the queue processor once the report has been
// handed off to the moderation channel.
func (s *ModerationService) MarkInReview(ctx context.Context, id string) (models.Report, error) {
	return s.UpdateStatus(ctx, id, models.ReportInReview, "")
}

// Escalate raises the escalation level by levelDelta (default 1, floor 0)
// and restarts the SLA clock. The SLA window is taken from the call, else
// retained from the report, else the configured default, so an escalated
// report always has a deadline.
func (s *ModerationService) Escalate(ctx context.Context, id string, levelDelta int, slaMinutes *int, note string) (models.Report, []models.Warning, error) {
	if levelDelta == 0 {
		levelDelta = 1
	}
	if slaMinutes != nil && *slaMinutes <= 0 {
		return models.Report{}, nil, models.ValidationError{Field: "sla_minutes", Reason: "must be positive"}
	}
	rep, err := s.reports.Mutate(ctx, id, func(r *models.Report) error {
		if r.Closed() {
			return models.ErrReportClosed
		}
		now := s.now()
		lvl := r.EscalationLevel + levelDelta
		if lvl < 0 {
			lvl = 0
		}
		r.EscalationLevel = lvl
		switch {
		case slaMinutes != nil:
			r.SLAMinutes = slaMinutes
		case r.SLAMinutes == nil:
			d := s.defaultSLAMinutes
			r.SLAMinutes = &d
		}
		t := now
		r.EscalatedAt = &t
		if note != "" {
			r.AdminNotes = append(r.AdminNotes, note)
		}
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return models.Report{}, nil, err
	}
	metrics.ReportEscalations.Inc()
	return rep, s.writeAudit(ctx, "escalate", rep), nil
}

// Deescalate lowers the level by one (floor 0). SLA fields are retained:
// the running deadline is not reset by a de-escalation.
func (s *ModerationService) Deescalate(ctx context.Context, id string, note string) (models.Report, []models.Warning, error) {
	rep, err := s.reports.Mutate(ctx, id, func(r *models.Report) error {
		if r.Closed() {
			return models.ErrReportClosed
		}
		if r.EscalationLevel > 0 {
			r.EscalationLevel--
		}
		if note != "" {
			r.AdminNotes = append(r.AdminNotes, note)
		}
		r.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return models.Report{}, nil, err
	}
	return rep, s.writeAudit(ctx, "deescalate", rep), nil
}

// Close finishes the report. An action_taken status is preserved, anything
// else becomes dismissed. After the close every mutation fails.
func (s *ModerationService) Close(ctx context.Context, id string, note string) (models.Report, []models.Warning, error) {
	rep, err := s.reports.Mutate(ctx, id, func(r *models.Report) error {
		if r.Closed() {
			return models.ErrReportClosed
		}
		if r.Status != models.ReportActionTaken {
			r.Status = models.ReportDismissed
		}
		now := s.now()
		r.ClosedAt = &now
		if note != "" {
			r.AdminNotes = append(r.AdminNotes, note)
		}
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return models.Report{}, nil, err
	}
	metrics.ReportStateChanges.WithLabelValues(string(rep.Status)).Inc()
	return rep, s.writeAudit(ctx, "close", rep), nil
}

func (s *ModerationService) AuditTrail(ctx context.Context, reportID string) ([]models.AuditRecord, error) {
	return s.audit.ListByReport(ctx, reportID)
}

// writeAudit appends one immutable trail record. Failures are logged,
// counted and reported as a warning, never as an error.
func (s *ModerationService) writeAudit(ctx context.Context, action string, rep models.Report) []models.Warning {
	err := s.audit.Create(ctx, models.AuditRecord{
		ReportID:        rep.ID,
		Action:          action,
		Status:          rep.Status,
		EscalationLevel: rep.EscalationLevel,
		SLAMinutes:      rep.SLAMinutes,
		CreatedAt:       s.now(),
	})
	if err != nil {
		metrics.AuditWriteFailures.Inc()
		slog.Warn("audit write failed", "action", action, "report_id", rep.ID, "err", err)
		return []models.Warning{{Code: models.WarnAuditWriteFailed, Message: err.Error()}}
	}
	return nil
}
