package receiver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nixlim/latency-top/internal/config"
	"github.com/nixlim/latency-top/internal/state"
)

// startTestGRPC starts a gRPC receiver on an ephemeral port and returns
// the receiver, a connected client, and the client connection for cleanup.
func startTestGRPC(t *testing.T, store state.Store, opts ...ReceiverOption) (*GRPCReceiver, colmetricspb.MetricsServiceClient, *grpc.ClientConn) {
	t.Helper()

	cfg := config.ReceiverConfig{GRPCPort: 0, Bind: "127.0.0.1"}
	r := NewGRPCReceiver(cfg, testIngest, store, opts...)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("failed to start gRPC receiver: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(ctx, r.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		r.Stop()
		t.Fatalf("failed to connect gRPC client: %v", err)
	}

	return r, colmetricspb.NewMetricsServiceClient(conn), conn
}

func makeLatencyRequest(monitor string, values ...float64) *colmetricspb.ExportMetricsServiceRequest {
	now := time.Now()
	m := gaugeMetric("probe.latency", "ms")
	for _, v := range values {
		m.GetGauge().DataPoints = append(m.GetGauge().DataPoints, doublePoint(v, now))
	}
	return &colmetricspb.ExportMetricsServiceRequest{
		ResourceMetrics: resourceMetrics([]*commonpb.KeyValue{strAttr("monitor.id", monitor)}, m),
	}
}

func TestOTLPReceiver_GRPCMetrics(t *testing.T) {
	store := state.NewMemoryStore()
	r, client, conn := startTestGRPC(t, store)
	defer func() {
		_ = conn.Close()
		r.Stop()
	}()

	resp, err := client.Export(context.Background(), makeLatencyRequest("checkout", 20, 35))
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if resp.GetPartialSuccess() != nil {
		t.Errorf("no points should be rejected, got %+v", resp.GetPartialSuccess())
	}

	monitors := store.ListMonitors()
	if len(monitors) != 1 || monitors[0].ID != "checkout" {
		t.Fatalf("expected monitor checkout, got %+v", monitors)
	}
	if monitors[0].SampleCount != 2 {
		t.Errorf("sample count: want 2, got %d", monitors[0].SampleCount)
	}
}

func TestOTLPReceiver_GRPCPartialSuccess(t *testing.T) {
	store := state.NewMemoryStore()
	r, client, conn := startTestGRPC(t, store)
	defer func() {
		_ = conn.Close()
		r.Stop()
	}()

	resp, err := client.Export(context.Background(), makeLatencyRequest("checkout", 20, -1))
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if got := resp.GetPartialSuccess().GetRejectedDataPoints(); got != 1 {
		t.Errorf("rejected data points: want 1, got %d", got)
	}
}

func TestOTLPReceiver_MalformedPayload(t *testing.T) {
	store := state.NewMemoryStore()
	r, client, conn := startTestGRPC(t, store)
	defer func() {
		_ = conn.Close()
		r.Stop()
	}()

	ctx := context.Background()

	resp, err := client.Export(ctx, &colmetricspb.ExportMetricsServiceRequest{})
	if err != nil {
		t.Fatalf("empty request should succeed: %v", err)
	}
	if resp == nil {
		t.Fatal("expected non-nil response for empty request")
	}

	if _, err := client.Export(ctx, makeLatencyRequest("api", 5)); err != nil {
		t.Fatalf("Export after empty request failed: %v", err)
	}
	if len(store.ListMonitors()) != 1 {
		t.Fatal("expected monitor api after recovery from empty request")
	}
}

func TestOTLPReceiver_SampleLogger(t *testing.T) {
	store := state.NewMemoryStore()
	rec := &recordingLogger{}
	r, client, conn := startTestGRPC(t, store, WithSampleLogger(rec))
	defer func() {
		_ = conn.Close()
		r.Stop()
	}()

	if _, err := client.Export(context.Background(), makeLatencyRequest("api", 5, 6)); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if n := rec.count(); n != 2 {
		t.Errorf("sample logger: want 2 entries, got %d", n)
	}
}

func TestOTLPReceiver_PortConflict(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer func() { _ = lis.Close() }()

	port := lis.Addr().(*net.TCPAddr).Port

	cfg := config.ReceiverConfig{GRPCPort: port, Bind: "127.0.0.1"}
	r := NewGRPCReceiver(cfg, testIngest, state.NewMemoryStore())
	err = r.Start(context.Background())
	if err == nil {
		r.Stop()
		t.Fatal("expected error for port conflict")
	}

	expected := fmt.Sprintf("port %d already in use", port)
	if err.Error() != expected {
		t.Errorf("expected error %q, got %q", expected, err.Error())
	}
	if !errors.Is(err, ErrPortInUse) {
		t.Error("port conflict should match ErrPortInUse")
	}
}

func TestReceiver_StartStopsGRPCWhenHTTPFails(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer func() { _ = lis.Close() }()

	cfg := config.ReceiverConfig{
		GRPCPort: 0,
		HTTPPort: lis.Addr().(*net.TCPAddr).Port,
		Bind:     "127.0.0.1",
	}
	r := New(cfg, testIngest, state.NewMemoryStore())
	err = r.Start(context.Background())
	if err == nil {
		r.Stop()
		t.Fatal("expected HTTP port conflict")
	}
	if !errors.Is(err, ErrPortInUse) {
		t.Errorf("wrapped error should still match ErrPortInUse: %v", err)
	}

	addr := r.GRPC.Addr().String()
	if c, err := net.DialTimeout("tcp", addr, 500*time.Millisecond); err == nil {
		_ = c.Close()
		t.Errorf("gRPC listener on %s should be closed after a failed start", addr)
	}
}
