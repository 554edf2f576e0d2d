package receiver

import (
	"context"
	"net"

	"go.uber.org/zap"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	"google.golang.org/grpc"

	"github.com/nixlim/latency-top/internal/config"
	"github.com/nixlim/latency-top/internal/state"
)

// GRPCReceiver implements the OTLP MetricsService.
type GRPCReceiver struct {
	colmetricspb.UnimplementedMetricsServiceServer

	cfg      config.ReceiverConfig
	in       *ingester
	listener net.Listener
	server   *grpc.Server
}

func NewGRPCReceiver(cfg config.ReceiverConfig, ingest config.IngestConfig, store state.Store, opts ...ReceiverOption) *GRPCReceiver {
	o := buildOptions(opts)
	return &GRPCReceiver{
		cfg: cfg,
		in: &ingester{
			store:     store,
			extractor: NewExtractor(ingest),
			log:       o.log.Named("grpc"),
			logger:    o.logger,
		},
	}
}

// Start binds the configured port and serves in the background.
func (r *GRPCReceiver) Start(ctx context.Context) error {
	lis, err := Listen(r.cfg.Bind, r.cfg.GRPCPort)
	if err != nil {
		return err
	}
	r.listener = lis

	r.server = grpc.NewServer()
	colmetricspb.RegisterMetricsServiceServer(r.server, r)

	go func() {
		if err := r.server.Serve(lis); err != nil {
			r.in.log.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	r.in.log.Info("OTLP gRPC receiver listening", zap.String("addr", lis.Addr().String()))
	return nil
}

// Export handles an OTLP metrics export.
func (r *GRPCReceiver) Export(ctx context.Context, req *colmetricspb.ExportMetricsServiceRequest) (*colmetricspb.ExportMetricsServiceResponse, error) {
	return r.in.export(req.GetResourceMetrics()), nil
}

// Addr returns the bound address, or nil before Start.
func (r *GRPCReceiver) Addr() net.Addr {
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

func (r *GRPCReceiver) Stop() {
	if r.server != nil {
		r.server.GracefulStop()
	}
}
