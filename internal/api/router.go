package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/kasilink/kasilink-backend/internal/api/httpx"
	"github.com/kasilink/kasilink-backend/internal/api/validate"
	"github.com/kasilink/kasilink-backend/internal/config"
	"github.com/kasilink/kasilink-backend/internal/metrics"
	"github.com/kasilink/kasilink-backend/internal/middleware"
	"github.com/kasilink/kasilink-backend/internal/models"
	"github.com/kasilink/kasilink-backend/internal/services"
)

func NewRouter(cfg config.Config, ws *services.WalletService, ms *services.ModerationService) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.HTTPMetrics, middleware.RateLimit(cfg.RateRPS))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	// health & metrics
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// ---------- wallet ----------
		r.Route("/wallet", func(r chi.Router) {
			r.Post("/requests", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					GroupID     string     `json:"group_id"`
					RequesterID string     `json:"requester_id"`
					AmountCents int64      `json:"amount_cents"`
					Currency    string     `json:"currency"`
					ExpiresAt   *time.Time `json:"expires_at"`
				}
				if err := httpx.DecodeJSON(r, &req); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_json", "invalid request body", nil)
					return
				}
				var errs validate.Errs
				if e := validate.Required("group_id", req.GroupID); e != nil {
					errs = append(errs, *e)
				}
				if e := validate.Required("requester_id", req.RequesterID); e != nil {
					errs = append(errs, *e)
				}
				if e := validate.MinInt("amount_cents", req.AmountCents, 1); e != nil {
					errs = append(errs, *e)
				}
				if len(errs) > 0 {
					httpx.WriteError(w, http.StatusBadRequest, "validation", errs.Error(), errs)
					return
				}
				out, err := ws.Create(r.Context(), req.GroupID, req.RequesterID, req.AmountCents, req.Currency, req.ExpiresAt)
				if err != nil {
					writeSvcError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusCreated, out)
			})

			r.Get("/requests", func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				limit, _ := strconv.Atoi(q.Get("limit"))
				offset, _ := strconv.Atoi(q.Get("offset"))
				out, err := ws.List(r.Context(), q.Get("group_id"), models.RequestStatus(q.Get("status")), limit, offset)
				if err != nil {
					writeSvcError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, out)
			})

			r.Get("/requests/{id}", func(w http.ResponseWriter, r *http.Request) {
				out, err := ws.Get(r.Context(), chi.URLParam(r, "id"))
				if err != nil {
					writeSvcError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, out)
			})

			r.Get("/requests/{id}/entries", func(w http.ResponseWriter, r *http.Request) {
				out, err := ws.EntriesForRequest(r.Context(), chi.URLParam(r, "id"))
				if err != nil {
					writeSvcError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, out)
			})

			r.Post("/requests/{id}/accept", func(w http.ResponseWriter, r *http.Request) {
				actor, ok := decodeActor(w, r)
				if !ok {
					return
				}
				out, err := ws.Accept(r.Context(), chi.URLParam(r, "id"), actor)
				if err != nil {
					writeSvcError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, out)
			})

			r.Post("/requests/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
				actor, ok := decodeActor(w, r)
				if !ok {
					return
				}
				out, err := ws.Cancel(r.Context(), chi.URLParam(r, "id"), actor)
				if err != nil {
					writeSvcError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, out)
			})

			r.Post("/requests/{id}/pay", func(w http.ResponseWriter, r *http.Request) {
				actor, ok := decodeActor(w, r)
				if !ok {
					return
				}
				out, err := ws.Pay(r.Context(), chi.URLParam(r, "id"), actor)
				if err != nil {
					writeSvcError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, out)
			})

			r.Post("/sweep-expired", func(w http.ResponseWriter, r *http.Request) {
				n, err := ws.SweepExpired(r.Context())
				if err != nil {
					writeSvcError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, map[string]int{"expired": n})
			})

			r.Get("/groups/{groupID}/balances", func(w http.ResponseWriter, r *http.Request) {
				out, err := ws.GroupBalances(r.Context(), chi.URLParam(r, "groupID"))
				if err != nil {
					writeSvcError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, out)
			})
		})

		// ---------- moderation ----------
		r.Route("/reports", func(r chi.Router) {
			r.Post("/", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					ContentID   string  `json:"content_id"`
					ContentText string  `json:"content_text"`
					Reason      string  `json:"reason"`
					ReporterID  *string `json:"reporter_id"`
				}
				if err := httpx.DecodeJSON(r, &req); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_json", "invalid request body", nil)
					return
				}
				var errs validate.Errs
				if e := validate.Required("content_id", req.ContentID); e != nil {
					errs = append(errs, *e)
				}
				if e := validate.Required("reason", req.Reason); e != nil {
					errs = append(errs, *e)
				}
				if len(errs) > 0 {
					httpx.WriteError(w, http.StatusBadRequest, "validation", errs.Error(), errs)
					return
				}
				out, err := ms.Create(r.Context(), req.ContentID, req.ContentText, req.Reason, req.ReporterID)
				if err != nil {
					writeSvcError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusCreated, out)
			})

			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				limit, _ := strconv.Atoi(q.Get("limit"))
				offset, _ := strconv.Atoi(q.Get("offset"))
				out, err := ms.List(r.Context(), models.ReportStatus(q.Get("status")), limit, offset)
				if err != nil {
					writeSvcError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, out)
			})

			r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
				out, err := ms.Get(r.Context(), chi.URLParam(r, "id"))
				if err != nil {
					writeSvcError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, out)
			})

			r.Get("/{id}/audit", func(w http.ResponseWriter, r *http.Request) {
				out, err := ms.AuditTrail(r.Context(), chi.URLParam(r, "id"))
				if err != nil {
					writeSvcError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, out)
			})

			r.Put("/{id}/status", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					Status models.ReportStatus `json:"status"`
					Note   string              `json:"note"`
				}
				if err := httpx.DecodeJSON(r, &req); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_json", "invalid request body", nil)
					return
				}
				out, err := ms.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.Note)
				if err != nil {
					writeSvcError(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, out)
			})

			r.Post("/{id}/escalate", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					LevelDelta int    `json:"level_delta"`
					SLAMinutes *int   `json:"sla_minutes"`
					Note       string `json:"note"`
				}
				if err := httpx.DecodeJSON(r, &req); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_json", "invalid request body", nil)
					return
				}
				out, warns, err := ms.Escalate(r.Context(), chi.URLParam(r, "id"), req.LevelDelta, req.SLAMinutes, req.Note)
				if err != nil {
					writeSvcError(w, err)
					return
				}
				writeReportResult(w, out, warns)
			})

			r.Post("/{id}/deescalate", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					Note string `json:"note"`
				}
				if err := httpx.DecodeJSON(r, &req); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_json", "invalid request body", nil)
					return
				}
				out, warns, err := ms.Deescalate(r.Context(), chi.URLParam(r, "id"), req.Note)
				if err != nil {
					writeSvcError(w, err)
					return
				}
				writeReportResult(w, out, warns)
			})

			r.Post("/{id}/close", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					Note string `json:"note"`
				}
				if err := httpx.DecodeJSON(r, &req); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "bad_json", "invalid request body", nil)
					return
				}
				out, warns, err := ms.Close(r.Context(), chi.URLParam(r, "id"), req.Note)
				if err != nil {
					writeSvcError(w, err)
					return
				}
				writeReportResult(w, out, warns)
			})
		})
	})

	return r
}

func decodeActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		ActorID string `json:"actor_id"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_json", "invalid request body", nil)
		return "", false
	}
	if e := validate.Required("actor_id", req.ActorID); e != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation", e.Field+": "+e.Msg, nil)
		return "", false
	}
	return req.ActorID, true
}

type reportResult struct {
	Report   models.Report    `json:"report"`
	Warnings []models.Warning `json:"warnings,omitempty"`
}

func writeReportResult(w http.ResponseWriter, rep models.Report, warns []models.Warning) {
	httpx.WriteJSON(w, http.StatusOK, reportResult{Report: rep, Warnings: warns})
}

// writeSvcError maps the service error taxonomy onto HTTP statuses.
func writeSvcError(w http.ResponseWriter, err error) {
	var ve models.ValidationError
	var te models.InvalidTransitionError
	switch {
	case errors.As(err, &ve):
		httpx.WriteError(w, http.StatusBadRequest, "validation", ve.Error(), ve)
	case errors.As(err, &te):
		httpx.WriteError(w, http.StatusConflict, "invalid_transition", te.Error(), te)
	case errors.Is(err, models.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "not found", nil)
	case errors.Is(err, models.ErrReportClosed):
		httpx.WriteError(w, http.StatusConflict, "report_closed", "report is closed", nil)
	case errors.Is(err, models.ErrStateConflict):
		httpx.WriteError(w, http.StatusConflict, "conflict", "concurrent update, retry", nil)
	case errors.Is(err, models.ErrStorageUnavailable):
		httpx.WriteError(w, http.StatusServiceUnavailable, "storage_unavailable", "storage unavailable", nil)
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}
