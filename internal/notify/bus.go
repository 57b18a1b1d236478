// Package notify carries non-critical events out of the core: report
// hand-offs to the moderation channel and SLA breach signals. Publish
// failures never fail the business operation that triggered them.
package notify

import "log/slog"

const (
	SubjectReportQueued = "moderation.reports"
	SubjectSLABreach    = "moderation.sla_breach"
)

// Bus is the minimal publish contract. Implementations must be safe for
// concurrent use.
type Bus interface {
	Publish(subject string, data []byte) error
}

// LogBus is the fallback sink when no broker is configured: events are only
// logged. Useful for dev and the memory backend.
type LogBus struct{}

func NewLogBus() *LogBus { return &LogBus{} }

func (b *LogBus) Publish(subject string, data []byte) error {
	slog.Debug("event published", "subject", subject, "bytes", len(data))
	return nil
}
