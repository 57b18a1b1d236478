package watcher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kasilink/kasilink-backend/internal/models"
	"github.com/kasilink/kasilink-backend/internal/notify"
	repo "github.com/kasilink/kasilink-backend/internal/repository"
	"github.com/kasilink/kasilink-backend/internal/repository/memory"
)

type captureBus struct {
	subjects []string
	payloads [][]byte
}

func (b *captureBus) Publish(subject string, data []byte) error {
	b.subjects = append(b.subjects, subject)
	b.payloads = append(b.payloads, data)
	return nil
}

func seedReport(t *testing.T, repos repo.Repositories, escalatedAt time.Time, slaMinutes int, closed bool) models.Report {
	t.Helper()
	rep := models.Report{
		ContentID:  "c1",
		Reason:     "abuse",
		Status:     models.ReportInReview,
		AdminNotes: []string{},
		CreatedAt:  escalatedAt,
		UpdatedAt:  escalatedAt,
	}
	if slaMinutes > 0 {
		rep.EscalationLevel = 1
		rep.SLAMinutes = &slaMinutes
		e := escalatedAt
		rep.EscalatedAt = &e
	}
	if closed {
		c := escalatedAt
		rep.ClosedAt = &c
	}
	out, err := repos.Reports.Create(context.Background(), rep)
	if err != nil {
		t.Fatalf("seed report: %v", err)
	}
	return out
}

func TestTickFlagsOverdueReports(t *testing.T) {
	repos := memory.NewRepositories()
	bus := &captureBus{}
	w := New(repos.Reports, bus, time.Minute)

	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	overdue := seedReport(t, repos, t0, 5, false)
	seedReport(t, repos, t0, 120, false)  // plenty of time left
	seedReport(t, repos, t0, 0, false)    // never escalated
	seedReport(t, repos, t0, 5, true)     // closed, out of scope

	w.now = func() time.Time { return t0.Add(6 * time.Minute) }
	if n := w.Tick(context.Background()); n != 1 {
		t.Fatalf("Tick = %d breaches, want 1", n)
	}

	if len(bus.subjects) != 1 || bus.subjects[0] != notify.SubjectSLABreach {
		t.Fatalf("published subjects = %v, want one %s", bus.subjects, notify.SubjectSLABreach)
	}
	var ev models.SLABreachEvent
	if err := json.Unmarshal(bus.payloads[0], &ev); err != nil {
		t.Fatalf("unmarshal breach event: %v", err)
	}
	if ev.ReportID != overdue.ID {
		t.Fatalf("event report_id = %s, want %s", ev.ReportID, overdue.ID)
	}
	if ev.SLAMinutes != 5 || ev.EscalationLevel != 1 {
		t.Fatalf("event = %+v, want sla=5 level=1", ev)
	}
}

func TestBreachIsFlaggedAtMostOnce(t *testing.T) {
	repos := memory.NewRepositories()
	bus := &captureBus{}
	w := New(repos.Reports, bus, time.Minute)

	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	seedReport(t, repos, t0, 5, false)

	w.now = func() time.Time { return t0.Add(10 * time.Minute) }
	if n := w.Tick(context.Background()); n != 1 {
		t.Fatalf("first Tick = %d, want 1", n)
	}
	// still overdue, already flagged
	w.now = func() time.Time { return t0.Add(time.Hour) }
	if n := w.Tick(context.Background()); n != 0 {
		t.Fatalf("second Tick = %d, want 0", n)
	}
	if len(bus.subjects) != 1 {
		t.Fatalf("published %d breach events, want 1", len(bus.subjects))
	}
}

func TestNotYetDueIsNotFlagged(t *testing.T) {
	repos := memory.NewRepositories()
	w := New(repos.Reports, nil, time.Minute)

	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	seedReport(t, repos, t0, 30, false)

	w.now = func() time.Time { return t0.Add(29 * time.Minute) }
	if n := w.Tick(context.Background()); n != 0 {
		t.Fatalf("Tick = %d before the deadline, want 0", n)
	}
}
