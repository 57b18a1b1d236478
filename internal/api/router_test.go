package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kasilink/kasilink-backend/internal/api/httpx"
	"github.com/kasilink/kasilink-backend/internal/config"
	"github.com/kasilink/kasilink-backend/internal/models"
	"github.com/kasilink/kasilink-backend/internal/repository/memory"
	"github.com/kasilink/kasilink-backend/internal/services"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	repos := memory.NewRepositories()
	cfg := config.Config{DefaultCurrency: "ZAR", DefaultSLAMinutes: 60}
	ws := services.NewWalletService(repos.WalletRequests, repos.Ledger, cfg.DefaultCurrency)
	ms := services.NewModerationService(repos.Reports, repos.AuditLogs, nil, nil, cfg.DefaultSLAMinutes)
	srv := httptest.NewServer(NewRouter(cfg, ws, ms))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestWalletRequestLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/wallet/requests", map[string]any{
		"group_id": "g1", "requester_id": "alice", "amount_cents": 1000,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	req := decode[models.WalletRequest](t, resp)
	if req.Currency != "ZAR" {
		t.Fatalf("currency = %s, want default ZAR", req.Currency)
	}

	resp = postJSON(t, srv.URL+"/api/v1/wallet/requests/"+req.ID+"/pay", map[string]any{"actor_id": "bob"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pay status = %d, want 200", resp.StatusCode)
	}
	paid := decode[models.WalletRequest](t, resp)
	if paid.Status != models.RequestPaid {
		t.Fatalf("status = %s, want paid", paid.Status)
	}

	// paying a paid request is an idempotent success
	resp = postJSON(t, srv.URL+"/api/v1/wallet/requests/"+req.ID+"/pay", map[string]any{"actor_id": "bob"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("repeat pay status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	// cancel after pay is an invalid transition, not a server error
	resp = postJSON(t, srv.URL+"/api/v1/wallet/requests/"+req.ID+"/cancel", map[string]any{"actor_id": "alice"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("cancel-after-pay status = %d, want 409", resp.StatusCode)
	}
	apiErr := decode[httpx.APIError](t, resp)
	if apiErr.Code != "invalid_transition" {
		t.Fatalf("cancel-after-pay code = %q, want invalid_transition", apiErr.Code)
	}

	bresp, err := http.Get(srv.URL + "/api/v1/wallet/groups/g1/balances")
	if err != nil {
		t.Fatalf("GET balances: %v", err)
	}
	balances := decode[[]models.GroupBalance](t, bresp)
	var sum int64
	for _, b := range balances {
		sum += b.BalanceCents
	}
	if sum != 0 {
		t.Fatalf("balance sum = %d, want 0", sum)
	}
}

func TestWalletRequestValidationOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/wallet/requests", map[string]any{
		"group_id": "g1", "requester_id": "alice", "amount_cents": 0,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	apiErr := decode[httpx.APIError](t, resp)
	if apiErr.Code != "validation" {
		t.Fatalf("code = %q, want validation", apiErr.Code)
	}

	// service-layer validation maps to 400 the same way
	lresp, err := http.Get(srv.URL + "/api/v1/wallet/requests?status=bogus")
	if err != nil {
		t.Fatalf("GET requests: %v", err)
	}
	if lresp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bogus status filter = %d, want 400", lresp.StatusCode)
	}
	lerr := decode[httpx.APIError](t, lresp)
	if lerr.Code != "validation" {
		t.Fatalf("bogus status code = %q, want validation", lerr.Code)
	}

	resp = postJSON(t, srv.URL+"/api/v1/wallet/requests/nope/pay", map[string]any{"actor_id": "bob"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown id status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestReportEscalationOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/reports/", map[string]any{
		"content_id": "post-9", "content_text": "spammy", "reason": "spam",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	rep := decode[models.Report](t, resp)
	if rep.Status != models.ReportQueued {
		t.Fatalf("status = %s, want queued", rep.Status)
	}

	resp = postJSON(t, srv.URL+"/api/v1/reports/"+rep.ID+"/escalate", map[string]any{
		"sla_minutes": 30, "note": "urgent",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("escalate status = %d, want 200", resp.StatusCode)
	}
	out := decode[reportResult](t, resp)
	if out.Report.EscalationLevel != 1 {
		t.Fatalf("level = %d, want 1", out.Report.EscalationLevel)
	}
	if out.Report.SLAMinutes == nil || *out.Report.SLAMinutes != 30 {
		t.Fatalf("sla_minutes = %v, want 30", out.Report.SLAMinutes)
	}

	resp = postJSON(t, srv.URL+"/api/v1/reports/"+rep.ID+"/close", map[string]any{"note": "handled"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	// closed report rejects further mutation
	resp = postJSON(t, srv.URL+"/api/v1/reports/"+rep.ID+"/escalate", map[string]any{})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("escalate-after-close status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	aresp, err := http.Get(srv.URL + "/api/v1/reports/" + rep.ID + "/audit")
	if err != nil {
		t.Fatalf("GET audit: %v", err)
	}
	trail := decode[[]models.AuditRecord](t, aresp)
	if len(trail) != 2 {
		t.Fatalf("audit trail length = %d, want 2 (escalate, close)", len(trail))
	}
}
