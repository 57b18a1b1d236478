// Package watcher runs the periodic SLA sweep over open escalated reports.
package watcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kasilink/kasilink-backend/internal/metrics"
	"github.com/kasilink/kasilink-backend/internal/models"
	"github.com/kasilink/kasilink-backend/internal/notify"
	repo "github.com/kasilink/kasilink-backend/internal/repository"
)

// SLAWatcher flags each overdue report at most once for the life of the
// process. The breached set is keyed by report id only, so a report that is
// de-escalated and later escalated past due again is not re-flagged.
type SLAWatcher struct {
	reports  repo.Reports
	bus      notify.Bus
	interval time.Duration

	now      func() time.Time
	breached map[string]struct{}
}

func New(reports repo.Reports, bus notify.Bus, interval time.Duration) *SLAWatcher {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SLAWatcher{
		reports:  reports,
		bus:      bus,
		interval: interval,
		now:      time.Now,
		breached: make(map[string]struct{}),
	}
}

// Run ticks until the context is cancelled. Errors never stop the loop.
func (w *SLAWatcher) Run(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	slog.Info("sla watcher started", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("sla watcher stopped")
			return
		case <-t.C:
			w.Tick(ctx)
		}
	}
}

// Tick performs one sweep and returns the number of new breaches. It is
// called by Run and directly by tests.
func (w *SLAWatcher) Tick(ctx context.Context) int {
	open, err := w.reports.ListOpenEscalated(ctx)
	if err != nil {
		slog.Error("sla watcher: list open reports", "err", err)
		return 0
	}

	now := w.now()
	n := 0
	for _, rep := range open {
		if _, done := w.breached[rep.ID]; done {
			continue
		}
		due, ok := rep.SLADueAt()
		if !ok || !now.After(due) {
			continue
		}
		w.breached[rep.ID] = struct{}{}
		metrics.SLABreaches.Inc()
		n++
		slog.Warn("sla breach",
			"report_id", rep.ID,
			"escalation_level", rep.EscalationLevel,
			"due_at", due,
		)
		w.publishBreach(rep, due, now)
	}
	return n
}

// publishBreach is best-effort; a failed publish is logged and the breach
// stays flagged so it is not re-emitted.
func (w *SLAWatcher) publishBreach(rep models.Report, due, now time.Time) {
	if w.bus == nil {
		return
	}
	ev := models.SLABreachEvent{
		ReportID:        rep.ID,
		EscalationLevel: rep.EscalationLevel,
		EscalatedAt:     *rep.EscalatedAt,
		DueAt:           due,
		DetectedAt:      now,
	}
	if rep.SLAMinutes != nil {
		ev.SLAMinutes = *rep.SLAMinutes
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := w.bus.Publish(notify.SubjectSLABreach, data); err != nil {
		slog.Warn("sla breach publish failed", "report_id", rep.ID, "err", err)
	}
}
