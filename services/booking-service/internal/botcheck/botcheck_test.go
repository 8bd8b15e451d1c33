package botcheck

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm failed: %v", err)
		}
		if r.Form.Get("secret") != "s3cret" || r.Form.Get("response") != "tok" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func TestVerifyScores(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		reject bool
	}{
		{"high score", `{"success":true,"score":0.9}`, false},
		{"low score", `{"success":true,"score":0.1}`, true},
		{"no score field", `{"success":true}`, false},
		{"unsuccessful", `{"success":false,"error-codes":["invalid-input-response"]}`, true},
	}
	for _, tc := range cases {
		srv := newServer(t, tc.body)
		v := NewHTTPVerifier(srv.URL, "s3cret", 0.5, srv.Client())
		err := v.Verify(context.Background(), "tok", "203.0.113.9")
		srv.Close()
		if tc.reject != (err != nil) {
			t.Fatalf("%s: unexpected result %v", tc.name, err)
		}
		if tc.reject && !errors.Is(err, ErrRejected) {
			t.Fatalf("%s: expected ErrRejected, got %v", tc.name, err)
		}
	}
}

func TestVerifyMissingTokenAndTransportFailure(t *testing.T) {
	v := NewHTTPVerifier("http://127.0.0.1:1", "s3cret", 0.5, nil)
	if err := v.Verify(context.Background(), "", ""); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected rejection for missing token, got %v", err)
	}
	if err := v.Verify(context.Background(), "tok", ""); err == nil {
		t.Fatal("expected transport error")
	}
}
