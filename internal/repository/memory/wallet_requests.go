package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kasilink/kasilink-backend/internal/models"
)

type walletRequestsRepo struct{ s *Store }

func (r *walletRequestsRepo) Create(ctx context.Context, req models.WalletRequest) (models.WalletRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	r.s.requests[req.ID] = req
	return req, nil
}

func (r *walletRequestsRepo) GetByID(ctx context.Context, id string) (models.WalletRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok {
		return models.WalletRequest{}, models.ErrNotFound
	}
	return req, nil
}

func (r *walletRequestsRepo) List(ctx context.Context, groupID string, status models.RequestStatus, limit, offset int) ([]models.WalletRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.WalletRequest
	for _, req := range r.s.requests {
		if groupID != "" && req.GroupID != groupID {
			continue
		}
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, req)
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

func (r *walletRequestsRepo) Transition(ctx context.Context, id string, from []models.RequestStatus, to models.RequestStatus, actorID string, at time.Time) (models.WalletRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok {
		return models.WalletRequest{}, models.ErrNotFound
	}
	matched := false
	for _, f := range from {
		if req.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return models.WalletRequest{}, models.ErrStateConflict
	}
	req.Status = to
	switch to {
	case models.RequestAccepted:
		actor := actorID
		req.AcceptedBy = &actor
	case models.RequestPaid:
		actor := actorID
		req.PaidBy = &actor
	case models.RequestCanceled:
		actor := actorID
		req.CanceledBy = &actor
	}
	req.UpdatedAt = at
	r.s.requests[id] = req
	return req, nil
}

func (r *walletRequestsRepo) ListExpirable(ctx context.Context, now time.Time) ([]models.WalletRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.WalletRequest
	for _, req := range r.s.requests {
		if req.Status == models.RequestRequested && req.ExpiredAt(now) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
