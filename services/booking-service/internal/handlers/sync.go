package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/md-rashed-zaman/bookingsync/libs/auth"
	"github.com/md-rashed-zaman/bookingsync/libs/httpx"
	"github.com/md-rashed-zaman/bookingsync/libs/syncproto"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/apperr"
)

// SyncPush and SyncPull expect auth.Require in front of them.
func (h *Handler) SyncPush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	scope, ok := auth.ScopeFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req syncproto.PushRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, apperr.Validation(apperr.KeyInvalidRequest, err))
		return
	}
	resp, err := h.sync.Push(r.Context(), scope, req.Actions)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if len(resp.Conflicts) > 0 {
		h.logger.InfoContext(r.Context(), "sync push conflicts",
			"business_id", scope.BusinessID,
			"applied", resp.Applied,
			"conflicts", len(resp.Conflicts),
		)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) SyncPull(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	scope, ok := auth.ScopeFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req syncproto.PullRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.writeErr(w, r, apperr.Validation(apperr.KeyInvalidRequest, err))
		return
	}
	resp, err := h.sync.Pull(r.Context(), scope, req.Days)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
