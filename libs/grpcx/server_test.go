package grpcx

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestHealthOverBufconn(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := NewServer()
	srv.SetServing("", true)
	srv.SetServing("bookingsync.sync", false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Run(ctx, lis, slog.New(slog.NewTextHandler(io.Discard, nil)))

	conn, err := Dial("passthrough:///bufnet", DialOptions{}, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	callCtx, callCancel := context.WithTimeout(ctx, 5*time.Second)
	defer callCancel()
	client := healthpb.NewHealthClient(conn)
	resp, err := client.Check(callCtx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", resp.GetStatus())
	}
	resp, err = client.Check(callCtx, &healthpb.HealthCheckRequest{Service: "bookingsync.sync"})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %v", resp.GetStatus())
	}
}
