package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kasilink/kasilink-backend/internal/models"
	"github.com/kasilink/kasilink-backend/internal/repository/memory"
)

func newWalletSvc() *WalletService {
	repos := memory.NewRepositories()
	return NewWalletService(repos.WalletRequests, repos.Ledger, "ZAR")
}

func TestCreateValidatesInput(t *testing.T) {
	svc := newWalletSvc()
	ctx := context.Background()

	cases := []struct {
		name                   string
		group, requester       string
		amount                 int64
	}{
		{"missing group", "", "alice", 100},
		{"missing requester", "g1", "", 100},
		{"zero amount", "g1", "alice", 0},
		{"negative amount", "g1", "alice", -5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.group, tc.requester, tc.amount, "", nil)
			var ve models.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}
}

func TestCreateDefaultsCurrency(t *testing.T) {
	svc := newWalletSvc()
	req, err := svc.Create(context.Background(), "g1", "alice", 1000, "", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if req.Currency != "ZAR" {
		t.Fatalf("currency = %s, want ZAR", req.Currency)
	}
	if req.Status != models.RequestRequested {
		t.Fatalf("status = %s, want requested", req.Status)
	}
}

func TestPayCreditsRequesterAndDebitsPayer(t *testing.T) {
	svc := newWalletSvc()
	ctx := context.Background()

	req, err := svc.Create(ctx, "stokvel-1", "alice", 1000, "ZAR", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Accept(ctx, req.ID, "bob"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	paid, err := svc.Pay(ctx, req.ID, "bob")
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if paid.Status != models.RequestPaid {
		t.Fatalf("status = %s, want paid", paid.Status)
	}
	if paid.PaidBy == nil || *paid.PaidBy != "bob" {
		t.Fatalf("paid_by = %v, want bob", paid.PaidBy)
	}

	balances, err := svc.GroupBalances(ctx, "stokvel-1")
	if err != nil {
		t.Fatalf("GroupBalances: %v", err)
	}
	got := map[string]int64{}
	var sum int64
	for _, b := range balances {
		got[b.MemberID] = b.BalanceCents
		sum += b.BalanceCents
	}
	if got["alice"] != 1000 || got["bob"] != -1000 {
		t.Fatalf("balances = %v, want alice=+1000 bob=-1000", got)
	}
	if sum != 0 {
		t.Fatalf("group balance sum = %d, want 0", sum)
	}

	entries, err := svc.EntriesForRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("EntriesForRequest: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want exactly 2", len(entries))
	}
}

func TestPayFromRequestedIsImplicitAccept(t *testing.T) {
	svc := newWalletSvc()
	ctx := context.Background()

	req, _ := svc.Create(ctx, "g1", "alice", 250, "ZAR", nil)
	paid, err := svc.Pay(ctx, req.ID, "bob")
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if paid.Status != models.RequestPaid {
		t.Fatalf("status = %s, want paid", paid.Status)
	}
	if paid.AcceptedBy != nil {
		t.Fatalf("accepted_by = %v, want nil on direct pay", paid.AcceptedBy)
	}
}

func TestPayRetryDoesNotDoubleCharge(t *testing.T) {
	svc := newWalletSvc()
	ctx := context.Background()

	req, _ := svc.Create(ctx, "g1", "alice", 1000, "ZAR", nil)
	if _, err := svc.Pay(ctx, req.ID, "bob"); err != nil {
		t.Fatalf("first Pay: %v", err)
	}
	// retried delivery of the same pay
	if _, err := svc.Pay(ctx, req.ID, "bob"); err != nil {
		t.Fatalf("second Pay: %v", err)
	}

	entries, _ := svc.EntriesForRequest(ctx, req.ID)
	if len(entries) != 2 {
		t.Fatalf("entries = %d after retried pay, want 2", len(entries))
	}
	balances, _ := svc.GroupBalances(ctx, "g1")
	for _, b := range balances {
		if b.MemberID == "bob" && b.BalanceCents != -1000 {
			t.Fatalf("bob balance = %d, want -1000", b.BalanceCents)
		}
	}
}

func TestConcurrentPaysSettleOnce(t *testing.T) {
	svc := newWalletSvc()
	ctx := context.Background()

	req, _ := svc.Create(ctx, "g1", "alice", 700, "ZAR", nil)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Pay(ctx, req.ID, "bob")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Pay #%d: %v", i, err)
		}
	}
	entries, _ := svc.EntriesForRequest(ctx, req.ID)
	if len(entries) != 2 {
		t.Fatalf("entries = %d after concurrent pays, want 2", len(entries))
	}
}

func TestTerminalStatesRejectTransitions(t *testing.T) {
	svc := newWalletSvc()
	ctx := context.Background()

	req, _ := svc.Create(ctx, "g1", "alice", 100, "ZAR", nil)
	if _, err := svc.Cancel(ctx, req.ID, "alice"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	var te models.InvalidTransitionError
	if _, err := svc.Accept(ctx, req.ID, "bob"); !errors.As(err, &te) {
		t.Fatalf("Accept after cancel: err = %v, want InvalidTransitionError", err)
	}
	if te.From != models.RequestCanceled {
		t.Fatalf("From = %s, want canceled", te.From)
	}
	if _, err := svc.Pay(ctx, req.ID, "bob"); !errors.As(err, &te) {
		t.Fatalf("Pay after cancel: err = %v, want InvalidTransitionError", err)
	}

	// paid is terminal for cancel too
	req2, _ := svc.Create(ctx, "g1", "alice", 100, "ZAR", nil)
	if _, err := svc.Pay(ctx, req2.ID, "bob"); err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if _, err := svc.Cancel(ctx, req2.ID, "alice"); !errors.As(err, &te) {
		t.Fatalf("Cancel after pay: err = %v, want InvalidTransitionError", err)
	}
}

func TestOverdueRequestExpiresLazily(t *testing.T) {
	svc := newWalletSvc()
	ctx := context.Background()

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return t0 }

	deadline := t0.Add(10 * time.Minute)
	req, err := svc.Create(ctx, "g1", "alice", 100, "ZAR", &deadline)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	svc.now = func() time.Time { return t0.Add(11 * time.Minute) }

	var te models.InvalidTransitionError
	if _, err := svc.Accept(ctx, req.ID, "bob"); !errors.As(err, &te) {
		t.Fatalf("Accept overdue: err = %v, want InvalidTransitionError", err)
	}
	if te.From != models.RequestExpired {
		t.Fatalf("From = %s, want expired", te.From)
	}

	got, _ := svc.Get(ctx, req.ID)
	if got.Status != models.RequestExpired {
		t.Fatalf("status = %s, want expired after lazy check", got.Status)
	}
}

func TestAcceptedRequestDoesNotExpire(t *testing.T) {
	svc := newWalletSvc()
	ctx := context.Background()

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return t0 }

	deadline := t0.Add(10 * time.Minute)
	req, _ := svc.Create(ctx, "g1", "alice", 100, "ZAR", &deadline)
	if _, err := svc.Accept(ctx, req.ID, "bob"); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	// expiry only guards the requested state
	svc.now = func() time.Time { return t0.Add(time.Hour) }
	paid, err := svc.Pay(ctx, req.ID, "bob")
	if err != nil {
		t.Fatalf("Pay after deadline on accepted request: %v", err)
	}
	if paid.Status != models.RequestPaid {
		t.Fatalf("status = %s, want paid", paid.Status)
	}
}

func TestSweepExpired(t *testing.T) {
	svc := newWalletSvc()
	ctx := context.Background()

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return t0 }

	past := t0.Add(5 * time.Minute)
	future := t0.Add(2 * time.Hour)
	a, _ := svc.Create(ctx, "g1", "alice", 100, "ZAR", &past)
	b, _ := svc.Create(ctx, "g1", "bob", 100, "ZAR", &past)
	c, _ := svc.Create(ctx, "g1", "carol", 100, "ZAR", &future)

	svc.now = func() time.Time { return t0.Add(time.Hour) }
	n, err := svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 2 {
		t.Fatalf("swept = %d, want 2", n)
	}

	for _, id := range []string{a.ID, b.ID} {
		got, _ := svc.Get(ctx, id)
		if got.Status != models.RequestExpired {
			t.Fatalf("request %s status = %s, want expired", id, got.Status)
		}
	}
	got, _ := svc.Get(ctx, c.ID)
	if got.Status != models.RequestRequested {
		t.Fatalf("fresh request status = %s, want requested", got.Status)
	}
}
