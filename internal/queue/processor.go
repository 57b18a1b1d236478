// Package queue consumes report hand-off events from NATS and advances
// each handed-off report to in_review.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/kasilink/kasilink-backend/internal/models"
	"github.com/kasilink/kasilink-backend/internal/notify"
)

// ReportMarker is the slice of the moderation service the processor needs.
type ReportMarker interface {
	MarkInReview(ctx context.Context, id string) (models.Report, error)
}

type Processor struct {
	svc ReportMarker
	nc  *nats.Conn
}

func NewProcessor(svc ReportMarker, nc *nats.Conn) *Processor {
	return &Processor{svc: svc, nc: nc}
}

// Run subscribes as part of a queue group (only one instance of a scaled
// deployment handles each event) and blocks until the context is cancelled,
// then drains the subscription so in-flight handlers finish.
func (p *Processor) Run(ctx context.Context) error {
	sub, err := p.nc.QueueSubscribe(notify.SubjectReportQueued, "moderation_workers", func(m *nats.Msg) {
		var ev models.ReportQueuedEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			slog.Error("queue: bad report event", "err", err)
			return
		}
		if _, err := p.svc.MarkInReview(ctx, ev.ReportID); err != nil {
			// Duplicates of closed reports are expected under
			// at-least-once delivery; anything else is worth a log.
			if !errors.Is(err, models.ErrReportClosed) {
				slog.Error("queue: mark in_review", "report_id", ev.ReportID, "err", err)
			}
			return
		}
		slog.Info("queue: report handed off", "report_id", ev.ReportID)
	})
	if err != nil {
		return fmt.Errorf("queue: subscribe: %w", err)
	}

	slog.Info("report queue processor running")
	<-ctx.Done()
	slog.Info("report queue processor draining")
	return sub.Drain()
}
