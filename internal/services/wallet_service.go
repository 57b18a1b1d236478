package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/kasilink/kasilink-backend/internal/metrics"
	"github.com/kasilink/kasilink-backend/internal/models"
	repo "github.com/kasilink/kasilink-backend/internal/repository"
)

// WalletService owns the payment-request state machine:
//
//	requested -> accepted | canceled | expired
//	accepted  -> paid | canceled
//
// paid, canceled and expired are terminal. The terminal "paid" edge is the
// only one with a side effect: a balanced ledger post, idempotent per
// request id.
type WalletService struct {
	requests repo.WalletRequests
	ledger   repo.Ledger

	defaultCurrency string
	now             func() time.Time
}

func NewWalletService(requests repo.WalletRequests, ledger repo.Ledger, defaultCurrency string) *WalletService {
	return &WalletService{
		requests:        requests,
		ledger:          ledger,
		defaultCurrency: defaultCurrency,
		now:             time.Now,
	}
}

func (s *WalletService) Create(ctx context.Context, groupID, requesterID string, amountCents int64, currency string, expiresAt *time.Time) (models.WalletRequest, error) {
	if strings.TrimSpace(groupID) == "" {
		return models.WalletRequest{}, models.ValidationError{Field: "group_id", Reason: "required"}
	}
	if strings.TrimSpace(requesterID) == "" {
		return models.WalletRequest{}, models.ValidationError{Field: "requester_id", Reason: "required"}
	}
	if amountCents < 1 {
		return models.WalletRequest{}, models.ValidationError{Field: "amount_cents", Reason: "must be >= 1"}
	}
	if currency == "" {
		currency = s.defaultCurrency
	}

	now := s.now()
	req, err := s.requests.Create(ctx, models.WalletRequest{
		GroupID:     groupID,
		RequesterID: requesterID,
		AmountCents: amountCents,
		Currency:    currency,
		Status:      models.RequestRequested,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return models.WalletRequest{}, err
	}
	metrics.RequestsCreated.Inc()
	return req, nil
}

func (s *WalletService) Get(ctx context.Context, id string) (models.WalletRequest, error) {
	return s.requests.GetByID(ctx, id)
}

func (s *WalletService) List(ctx context.Context, groupID string, status models.RequestStatus, limit, offset int) ([]models.WalletRequest, error) {
	if status != "" && !status.Valid() {
		return nil, models.ValidationError{Field: "status", Reason: "unknown status"}
	}
	return s.requests.List(ctx, groupID, status, limit, offset)
}

func (s *WalletService) GroupBalances(ctx context.Context, groupID string) ([]models.GroupBalance, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, models.ValidationError{Field: "group_id", Reason: "required"}
	}
	return s.ledger.Balances(ctx, groupID)
}

// Accept moves requested -> accepted. An overdue request is expired first
// and the accept fails with an invalid-transition error.
func (s *WalletService) Accept(ctx context.Context, id, actorID string) (models.WalletRequest, error) {
	return s.simpleTransition(ctx, id, actorID, models.RequestAccepted,
		[]models.RequestStatus{models.RequestRequested})
}

// Cancel is allowed from requested or accepted only.
func (s *WalletService) Cancel(ctx context.Context, id, actorID string) (models.WalletRequest, error) {
	return s.simpleTransition(ctx, id, actorID, models.RequestCanceled,
		[]models.RequestStatus{models.RequestRequested, models.RequestAccepted})
}

func (s *WalletService) simpleTransition(ctx context.Context, id, actorID string, to models.RequestStatus, from []models.RequestStatus) (models.WalletRequest, error) {
	if strings.TrimSpace(actorID) == "" {
		return models.WalletRequest{}, models.ValidationError{Field: "actor_id", Reason: "required"}
	}
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return models.WalletRequest{}, err
	}
	if expired, err := s.expireIfDue(ctx, req); err != nil {
		return models.WalletRequest{}, err
	} else if expired {
		return models.WalletRequest{}, models.InvalidTransitionError{From: models.RequestExpired, To: to}
	}

	updated, err := s.requests.Transition(ctx, id, from, to, actorID, s.now())
	if errors.Is(err, models.ErrStateConflict) {
		cur, gerr := s.requests.GetByID(ctx, id)
		if gerr != nil {
			return models.WalletRequest{}, gerr
		}
		return models.WalletRequest{}, models.InvalidTransitionError{From: cur.Status, To: to}
	}
	if err != nil {
		return models.WalletRequest{}, err
	}
	metrics.WalletStateChanges.WithLabelValues(string(to)).Inc()
	return updated, nil
}

// Pay settles a request. Paying straight from requested skips the accepted
// state entirely: the payer is recorded in paid_by only and accepted_by
// stays nil, keeping one actor column per path taken. After the status write the
// balanced ledger pair is posted; because the post is idempotent per request
// id, a retried Pay that finds the request already paid re-issues the post
// and returns the request without error.
func (s *WalletService) Pay(ctx context.Context, id, payerID string) (models.WalletRequest, error) {
	if strings.TrimSpace(payerID) == "" {
		return models.WalletRequest{}, models.ValidationError{Field: "payer_id", Reason: "required"}
	}
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return models.WalletRequest{}, err
	}
	if expired, err := s.expireIfDue(ctx, req); err != nil {
		return models.WalletRequest{}, err
	} else if expired {
		return models.WalletRequest{}, models.InvalidTransitionError{From: models.RequestExpired, To: models.RequestPaid}
	}

	updated, err := s.requests.Transition(ctx, id,
		[]models.RequestStatus{models.RequestRequested, models.RequestAccepted},
		models.RequestPaid, payerID, s.now())
	if errors.Is(err, models.ErrStateConflict) {
		cur, gerr := s.requests.GetByID(ctx, id)
		if gerr != nil {
			return models.WalletRequest{}, gerr
		}
		if cur.Status != models.RequestPaid {
			return models.WalletRequest{}, models.InvalidTransitionError{From: cur.Status, To: models.RequestPaid}
		}
		// Lost the race to another (or an earlier) pay of the same
		// request: fall through so the ledger post is re-issued in case
		// the winner died between the status write and the post.
		updated = cur
	} else if err != nil {
		return models.WalletRequest{}, err
	} else {
		metrics.WalletStateChanges.WithLabelValues(string(models.RequestPaid)).Inc()
		metrics.RequestsPaid.Inc()
	}

	if err := s.postLedger(ctx, updated); err != nil {
		return updated, err
	}
	return updated, nil
}

// postLedger credits the requester and debits the payer, retrying transient
// storage failures with bounded backoff. Deterministic errors surface
// immediately.
func (s *WalletService) postLedger(ctx context.Context, req models.WalletRequest) error {
	payer := req.RequesterID
	if req.PaidBy != nil {
		payer = *req.PaidBy
	}
	b := retry.WithMaxRetries(3, retry.NewExponential(50*time.Millisecond))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := s.ledger.PostBalanced(ctx, req.GroupID, req.RequesterID, payer, req.AmountCents, req.ID)
		if err != nil && (errors.Is(err, models.ErrStorageUnavailable) || errors.Is(err, models.ErrStateConflict)) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// Expire moves a single overdue request to expired. A request that is
// already expired is returned unchanged.
func (s *WalletService) Expire(ctx context.Context, id string) (models.WalletRequest, error) {
	updated, err := s.requests.Transition(ctx, id,
		[]models.RequestStatus{models.RequestRequested}, models.RequestExpired, "", s.now())
	if errors.Is(err, models.ErrStateConflict) {
		cur, gerr := s.requests.GetByID(ctx, id)
		if gerr != nil {
			return models.WalletRequest{}, gerr
		}
		if cur.Status == models.RequestExpired {
			return cur, nil
		}
		return models.WalletRequest{}, models.InvalidTransitionError{From: cur.Status, To: models.RequestExpired}
	}
	if err != nil {
		return models.WalletRequest{}, err
	}
	metrics.WalletStateChanges.WithLabelValues(string(models.RequestExpired)).Inc()
	return updated, nil
}

// SweepExpired expires every overdue request still in requested. Losers of
// a concurrent transition race are skipped; other per-request errors are
// logged and do not abort the sweep.
func (s *WalletService) SweepExpired(ctx context.Context) (int, error) {
	due, err := s.requests.ListExpirable(ctx, s.now())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, req := range due {
		_, err := s.requests.Transition(ctx, req.ID,
			[]models.RequestStatus{models.RequestRequested}, models.RequestExpired, "", s.now())
		if err != nil {
			if !errors.Is(err, models.ErrStateConflict) && !errors.Is(err, models.ErrNotFound) {
				slog.Error("expiry sweep", "request_id", req.ID, "err", err)
			}
			continue
		}
		metrics.WalletStateChanges.WithLabelValues(string(models.RequestExpired)).Inc()
		n++
	}
	return n, nil
}

// expireIfDue lazily expires an overdue request before accept/cancel/pay
// look at it. Reports true when the request ended up expired.
func (s *WalletService) expireIfDue(ctx context.Context, req models.WalletRequest) (bool, error) {
	if req.Status != models.RequestRequested || !req.ExpiredAt(s.now()) {
		return false, nil
	}
	_, err := s.requests.Transition(ctx, req.ID,
		[]models.RequestStatus{models.RequestRequested}, models.RequestExpired, "", s.now())
	if errors.Is(err, models.ErrStateConflict) {
		cur, gerr := s.requests.GetByID(ctx, req.ID)
		if gerr != nil {
			return false, gerr
		}
		return cur.Status == models.RequestExpired, nil
	}
	if err != nil {
		return false, err
	}
	metrics.WalletStateChanges.WithLabelValues(string(models.RequestExpired)).Inc()
	return true, nil
}

// EntriesForRequest exposes the ledger facts behind a settled request.
func (s *WalletService) EntriesForRequest(ctx context.Context, requestID string) ([]models.LedgerEntry, error) {
	return s.ledger.EntriesForRequest(ctx, requestID)
}
