// Package receiver accepts OTLP metrics over gRPC and HTTP and records the
// latency samples they carry.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"go.uber.org/zap"

	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"

	"github.com/nixlim/latency-top/internal/config"
	"github.com/nixlim/latency-top/internal/state"
)

// ErrPortInUse matches errors returned when a receiver port is taken.
var ErrPortInUse = errors.New("port already in use")

// PortInUseError reports the port that could not be bound.
type PortInUseError struct {
	Port int
}

func (e *PortInUseError) Error() string {
	return fmt.Sprintf("port %d already in use", e.Port)
}

func (e *PortInUseError) Is(target error) bool {
	return target == ErrPortInUse
}

type options struct {
	log    *zap.Logger
	logger Logger
}

type ReceiverOption func(*options)

// WithLogger sets the process logger.
func WithLogger(l *zap.Logger) ReceiverOption {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithSampleLogger sets a debug logger that records every accepted sample.
func WithSampleLogger(l Logger) ReceiverOption {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []ReceiverOption) options {
	o := options{log: zap.NewNop(), logger: NopLogger{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ingester is shared by the gRPC and HTTP receivers.
type ingester struct {
	store     state.Store
	extractor *Extractor
	log       *zap.Logger
	logger    Logger
}

// ingest stores the samples in rms and returns the number of rejected
// data points.
func (in *ingester) ingest(rms []*metricspb.ResourceMetrics) int64 {
	samples, rejected := in.extractor.Extract(rms)
	for _, e := range samples {
		in.logger.LogSample(e.Metric, e.Sample)
		in.store.AddSample(e.Sample)
	}
	if rejected > 0 {
		in.log.Debug("rejected data points without usable latency", zap.Int64("count", rejected))
	}
	return rejected
}

// export ingests rms and builds the OTLP response, flagging partial
// success when data points were rejected.
func (in *ingester) export(rms []*metricspb.ResourceMetrics) *colmetricspb.ExportMetricsServiceResponse {
	resp := &colmetricspb.ExportMetricsServiceResponse{}
	if rejected := in.ingest(rms); rejected > 0 {
		resp.PartialSuccess = &colmetricspb.ExportMetricsPartialSuccess{
			RejectedDataPoints: rejected,
			ErrorMessage:       "data points without a usable latency value",
		}
	}
	return resp
}

// Listen binds bind:port over TCP. A port already taken by another
// process is reported as a *PortInUseError.
func Listen(bind string, port int) (net.Listener, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", bind, port))
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, &PortInUseError{Port: port}
		}
		return nil, fmt.Errorf("listening on %s:%d: %w", bind, port, err)
	}
	return lis, nil
}

// Receiver runs the gRPC and HTTP OTLP endpoints together.
type Receiver struct {
	GRPC *GRPCReceiver
	HTTP *HTTPReceiver
}

func New(cfg config.ReceiverConfig, ingest config.IngestConfig, store state.Store, opts ...ReceiverOption) *Receiver {
	return &Receiver{
		GRPC: NewGRPCReceiver(cfg, ingest, store, opts...),
		HTTP: NewHTTPReceiver(cfg, ingest, store, opts...),
	}
}

// Start starts both endpoints. If either fails to bind, neither is left
// running.
func (r *Receiver) Start(ctx context.Context) error {
	if err := r.GRPC.Start(ctx); err != nil {
		return fmt.Errorf("grpc receiver: %w", err)
	}
	if err := r.HTTP.Start(ctx); err != nil {
		r.GRPC.Stop()
		return fmt.Errorf("http receiver: %w", err)
	}
	return nil
}

func (r *Receiver) Stop() {
	r.HTTP.Stop()
	r.GRPC.Stop()
}
