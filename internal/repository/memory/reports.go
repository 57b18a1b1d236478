package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/kasilink/kasilink-backend/internal/models"
)

type reportsRepo struct{ s *Store }

// copyReport detaches the notes slice so callers can't alias stored state.
func copyReport(r models.Report) models.Report {
	notes := make([]string, len(r.AdminNotes))
	copy(notes, r.AdminNotes)
	r.AdminNotes = notes
	return r
}

func (r *reportsRepo) Create(ctx context.Context, rep models.Report) (models.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rep.ID == "" {
		rep.ID = uuid.NewString()
	}
	r.s.reports[rep.ID] = copyReport(rep)
	return rep, nil
}

func (r *reportsRepo) GetByID(ctx context.Context, id string) (models.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rep, ok := r.s.reports[id]
	if !ok {
		return models.Report{}, models.ErrNotFound
	}
	return copyReport(rep), nil
}

func (r *reportsRepo) List(ctx context.Context, status models.ReportStatus, limit, offset int) ([]models.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Report
	for _, rep := range r.s.reports {
		if status != "" && rep.Status != status {
			continue
		}
		out = append(out, copyReport(rep))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *reportsRepo) Mutate(ctx context.Context, id string, fn func(*models.Report) error) (models.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rep, ok := r.s.reports[id]
	if !ok {
		return models.Report{}, models.ErrNotFound
	}
	// fn runs on a copy; nothing is written back unless it succeeds.
	next := copyReport(rep)
	if err := fn(&next); err != nil {
		return models.Report{}, err
	}
	r.s.reports[id] = copyReport(next)
	return next, nil
}

func (r *reportsRepo) ListOpenEscalated(ctx context.Context) ([]models.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Report
	for _, rep := range r.s.reports {
		if rep.Closed() || rep.EscalatedAt == nil || rep.SLAMinutes == nil || *rep.SLAMinutes <= 0 {
			continue
		}
		out = append(out, copyReport(rep))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
