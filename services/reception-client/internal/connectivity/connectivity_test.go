package connectivity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/md-rashed-zaman/bookingsync/libs/grpcx"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestHTTPProbe(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	probe := HTTPProbe(srv.Client(), srv.URL+"/healthz")
	if err := probe(context.Background()); err != nil {
		t.Fatalf("expected healthy, got %v", err)
	}
	healthy.Store(false)
	if err := probe(context.Background()); err == nil {
		t.Fatal("expected error for 503")
	}
}

func TestGRPCProbe(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gs := grpcx.NewServer()
	gs.SetServing("", true)
	go gs.Run(ctx, lis, discard())

	conn, err := grpcx.Dial(lis.Addr().String(), grpcx.DialOptions{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	probeCtx, probeCancel := context.WithTimeout(ctx, 5*time.Second)
	defer probeCancel()
	if err := GRPCProbe(conn)(probeCtx); err != nil {
		t.Fatalf("expected serving, got %v", err)
	}
	gs.SetServing("", false)
	if err := GRPCProbe(conn)(probeCtx); err == nil {
		t.Fatal("expected not serving error")
	}
}

func TestWatcherEmitsTransitions(t *testing.T) {
	var calls atomic.Int32
	probe := func(context.Context) error {
		// up, up, down, down, up ...
		switch calls.Add(1) {
		case 3, 4:
			return errors.New("down")
		}
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := NewWatcher(probe, 5*time.Millisecond, discard()).Run(ctx)

	want := []bool{true, false, true}
	for i, w := range want {
		select {
		case got := <-ch:
			if got != w {
				t.Fatalf("event %d = %v, want %v", i, got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
	cancel()
	for range ch {
	}
}
