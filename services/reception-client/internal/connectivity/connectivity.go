// Package connectivity tells the reception client whether the booking
// service is reachable.
package connectivity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Probe returns nil when the server answered.
type Probe func(ctx context.Context) error

func HTTPProbe(client *http.Client, url string) Probe {
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("health check returned %d", resp.StatusCode)
		}
		return nil
	}
}

// GRPCProbe asks the standard health service for the whole server.
func GRPCProbe(conn grpc.ClientConnInterface) Probe {
	hc := healthpb.NewHealthClient(conn)
	return func(ctx context.Context) error {
		resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{})
		if err != nil {
			return err
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("server status %s", resp.GetStatus())
		}
		return nil
	}
}

type Watcher struct {
	probe    Probe
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewWatcher(probe Probe, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	timeout := interval / 2
	if timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	return &Watcher{probe: probe, interval: interval, timeout: timeout, logger: logger}
}

// Run probes immediately and then every interval. The channel receives
// the first result and every change after it; it is closed when ctx ends.
func (w *Watcher) Run(ctx context.Context) <-chan bool {
	out := make(chan bool, 1)
	go func() {
		defer close(out)
		t := time.NewTicker(w.interval)
		defer t.Stop()

		var last, known bool
		for {
			online := w.check(ctx)
			if !known || online != last {
				known, last = true, online
				w.logger.Info("connectivity changed", "online", online)
				select {
				case out <- online:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
	return out
}

func (w *Watcher) check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.probe(ctx); err != nil {
		w.logger.Debug("probe failed", "err", err)
		return false
	}
	return true
}
