package models

import "time"

type RequestStatus string

const (
	RequestRequested RequestStatus = "requested"
	RequestAccepted  RequestStatus = "accepted"
	RequestPaid      RequestStatus = "paid"
	RequestCanceled  RequestStatus = "canceled"
	RequestExpired   RequestStatus = "expired"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestRequested, RequestAccepted, RequestPaid, RequestCanceled, RequestExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestPaid, RequestCanceled, RequestExpired:
		return true
	}
	return false
}

// WalletRequest is a payment request raised inside a group. It is only ever
// mutated through the wallet state machine; actor columns are set exactly
// once and never cleared.
type WalletRequest struct {
	ID          string        `json:"id"`
	GroupID     string        `json:"group_id"`
	RequesterID string        `json:"requester_id"`
	AmountCents int64         `json:"amount_cents"`
	Currency    string        `json:"currency"`
	Status      RequestStatus `json:"status"`
	ExpiresAt   *time.Time    `json:"expires_at,omitempty"`
	AcceptedBy  *string       `json:"accepted_by,omitempty"`
	PaidBy      *string       `json:"paid_by,omitempty"`
	CanceledBy  *string       `json:"canceled_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// ExpiredAt reports whether the request's deadline has passed at the given
// instant. Requests without a deadline never expire.
func (r WalletRequest) ExpiredAt(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// LedgerEntry is an immutable signed monetary fact. Entries are append-only;
// a paid request is always backed by exactly two entries summing to zero.
type LedgerEntry struct {
	ID               int64     `json:"id"`
	GroupID          string    `json:"group_id"`
	MemberID         string    `json:"member_id"`
	AmountCents      int64     `json:"amount_cents"`
	Reason           string    `json:"reason"`
	RelatedRequestID *string   `json:"related_request_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// GroupBalance is the cached signed sum of all ledger entries for one
// (group, member) pair. It is only written together with the entries that
// change it.
type GroupBalance struct {
	GroupID      string    `json:"group_id"`
	MemberID     string    `json:"member_id"`
	BalanceCents int64     `json:"balance_cents"`
	UpdatedAt    time.Time `json:"updated_at"`
}
