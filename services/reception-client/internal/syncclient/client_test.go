package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/md-rashed-zaman/bookingsync/libs/syncproto"
)

func TestPushSendsBearerAndActions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/sync/push" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Fatalf("authorization header %q", got)
		}
		var req syncproto.PushRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(req.Actions) != 1 || req.Actions[0].IdempotencyKey != "k1" {
			t.Fatalf("unexpected actions %+v", req.Actions)
		}
		_ = json.NewEncoder(w).Encode(syncproto.PushResponse{OK: true, Applied: 1})
	}))
	defer srv.Close()

	a, _ := syncproto.NewAction(syncproto.ActionCancel, syncproto.CancelPayload{ID: "appt"}, "k1")
	resp, err := New(srv.URL+"/", "tok", srv.Client()).Push(context.Background(), []syncproto.Action{a})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if !resp.OK || resp.Applied != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestPullAndStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/sync/pull":
			var req syncproto.PullRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(syncproto.PullResponse{OK: true, Days: req.Days, Appointments: []syncproto.Appointment{{ID: "a1"}}})
		case "/api/v1/sync/push":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"sync not permitted"}`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()
	c := New(srv.URL, "", srv.Client())

	pull, err := c.Pull(context.Background(), 7)
	if err != nil || pull.Days != 7 || len(pull.Appointments) != 1 {
		t.Fatalf("pull %+v err=%v", pull, err)
	}

	_, err = c.Push(context.Background(), nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusForbidden || se.Message != "sync not permitted" {
		t.Fatalf("expected 403 status error, got %v", err)
	}
	if se.Retryable() {
		t.Fatal("403 should not be retryable")
	}

	err = c.Health(context.Background())
	if !errors.As(err, &se) || !se.Retryable() {
		t.Fatalf("expected retryable health error, got %v", err)
	}
}
