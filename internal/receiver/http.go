package receiver

import (
	"compress/gzip"
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/nixlim/latency-top/internal/config"
	"github.com/nixlim/latency-top/internal/state"
)

const (
	contentTypeProtobuf = "application/x-protobuf"
	contentTypeJSON     = "application/json"
	maxBodyBytes        = 8 << 20
)

// HTTPReceiver serves OTLP/HTTP metrics on /v1/metrics.
type HTTPReceiver struct {
	cfg      config.ReceiverConfig
	in       *ingester
	listener net.Listener
	server   *http.Server
}

func NewHTTPReceiver(cfg config.ReceiverConfig, ingest config.IngestConfig, store state.Store, opts ...ReceiverOption) *HTTPReceiver {
	o := buildOptions(opts)
	return &HTTPReceiver{
		cfg: cfg,
		in: &ingester{
			store:     store,
			extractor: NewExtractor(ingest),
			log:       o.log.Named("http"),
			logger:    o.logger,
		},
	}
}

// Handler returns the HTTP handler serving the OTLP endpoint.
func (r *HTTPReceiver) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/metrics", r.handleMetrics)
	return mux
}

// Start binds the configured port and serves in the background.
func (r *HTTPReceiver) Start(ctx context.Context) error {
	lis, err := Listen(r.cfg.Bind, r.cfg.HTTPPort)
	if err != nil {
		return err
	}
	r.listener = lis

	r.server = &http.Server{
		Handler:      r.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := r.server.Serve(lis); err != nil && err != http.ErrServerClosed {
			r.in.log.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	r.in.log.Info("OTLP HTTP receiver listening", zap.String("addr", lis.Addr().String()))
	return nil
}

func (r *HTTPReceiver) handleMetrics(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	contentType := contentTypeProtobuf
	if ct := req.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			http.Error(w, "invalid content type", http.StatusUnsupportedMediaType)
			return
		}
		contentType = mt
	}
	if contentType != contentTypeProtobuf && contentType != contentTypeJSON {
		http.Error(w, "unsupported content type", http.StatusUnsupportedMediaType)
		return
	}

	var body io.Reader = http.MaxBytesReader(w, req.Body, maxBodyBytes)
	if req.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(body)
		if err != nil {
			http.Error(w, "invalid gzip body", http.StatusBadRequest)
			return
		}
		defer func() { _ = gz.Close() }()
		body = gz
	}

	data, err := io.ReadAll(body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var exportReq colmetricspb.ExportMetricsServiceRequest
	if contentType == contentTypeJSON {
		err = protojson.Unmarshal(data, &exportReq)
	} else {
		err = proto.Unmarshal(data, &exportReq)
	}
	if err != nil {
		r.in.log.Debug("malformed OTLP payload", zap.String("content_type", contentType), zap.Error(err))
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	resp := r.in.export(exportReq.GetResourceMetrics())

	var out []byte
	if contentType == contentTypeJSON {
		out, err = protojson.Marshal(resp)
	} else {
		out, err = proto.Marshal(resp)
	}
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// Addr returns the bound address, or nil before Start.
func (r *HTTPReceiver) Addr() net.Addr {
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

func (r *HTTPReceiver) Stop() {
	if r.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = r.server.Shutdown(ctx)
}
