package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bookingsync/libs/auth"
	"github.com/md-rashed-zaman/bookingsync/libs/httpx"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/i18n"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/syncsvc"
)

type Handler struct {
	booking *booking.Service
	sync    *syncsvc.Service
	catalog *i18n.Catalog
	logger  *slog.Logger
}

func New(bookingSvc *booking.Service, syncSvc *syncsvc.Service, catalog *i18n.Catalog, logger *slog.Logger) *Handler {
	return &Handler{booking: bookingSvc, sync: syncSvc, catalog: catalog, logger: logger}
}

type bookResponse struct {
	Success       bool   `json:"success"`
	AppointmentID string `json:"appointment_id"`
	ClaimToken    string `json:"claim_token"`
	CustomerEmail string `json:"customer_email"`
	CustomerName  string `json:"customer_name"`
}

type slotItem struct {
	StartAt string `json:"start_at"`
	EndAt   string `json:"end_at"`
}

type claimRequest struct {
	AppointmentID string `json:"appointment_id"`
	ClaimToken    string `json:"claim_token"`
}

type claimResponse struct {
	Success       bool   `json:"success"`
	AppointmentID string `json:"appointment_id"`
}

func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req booking.Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, apperr.Validation(apperr.KeyInvalidRequest, err))
		return
	}
	req.RemoteIP = httpx.ClientIP(r)

	res, err := h.booking.Book(r.Context(), req)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bookResponse{
		Success:       true,
		AppointmentID: res.AppointmentID,
		ClaimToken:    res.ClaimToken,
		CustomerEmail: res.CustomerEmail,
		CustomerName:  res.CustomerName,
	})
}

func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	slots, err := h.booking.Slots(r.Context(), booking.SlotsQuery{
		BusinessID: strings.TrimSpace(q.Get("business_id")),
		EmployeeID: strings.TrimSpace(q.Get("employee_id")),
		ServiceID:  strings.TrimSpace(q.Get("service_id")),
		Date:       strings.TrimSpace(q.Get("date")),
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	out := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotItem{
			StartAt: s.Start.UTC().Format(time.RFC3339),
			EndAt:   s.End.UTC().Format(time.RFC3339),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// Claim expects auth.Require in front of it.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	scope, ok := auth.ScopeFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req claimRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, apperr.Validation(apperr.KeyInvalidRequest, err))
		return
	}
	appt, err := h.booking.Claim(r.Context(), scope, strings.TrimSpace(req.AppointmentID), strings.TrimSpace(req.ClaimToken))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, claimResponse{Success: true, AppointmentID: appt.ID})
}

// writeErr translates err for the caller's locale. Causes are logged, never sent.
func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		err = apperr.Internal(err)
	}
	kind := apperr.KindOf(err)
	switch kind {
	case apperr.KindInternal, apperr.KindTransient:
		h.logger.ErrorContext(r.Context(), "request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"kind", kind.String(),
			"err", err,
		)
	default:
		h.logger.DebugContext(r.Context(), "request rejected", "path", r.URL.Path, "kind", kind.String(), "err", err)
	}
	tr := h.catalog.Translator(r.Header.Get("Accept-Language"))
	httpx.WriteError(w, kind.HTTPStatus(), h.catalog.Message(tr, err))
}
