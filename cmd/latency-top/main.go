package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nixlim/latency-top/internal/chartapi"
	"github.com/nixlim/latency-top/internal/config"
	"github.com/nixlim/latency-top/internal/logging"
	"github.com/nixlim/latency-top/internal/receiver"
	"github.com/nixlim/latency-top/internal/storage"
	"github.com/nixlim/latency-top/internal/tui"
)

func main() {
	configFlag := flag.String("config", "", "Path to the config file (default ~/.config/latency-top/config.toml)")
	debugFlag := flag.String("debug", "", "Write received latency samples (JSONL) to the specified file path")
	headlessFlag := flag.Bool("headless", false, "Run the receiver and chart API without the terminal UI")
	flag.Parse()

	loadResult, err := loadConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "latency-top: config error: %v\n", err)
		os.Exit(1)
	}
	cfg := loadResult.Config

	for _, w := range loadResult.Warnings {
		fmt.Fprintf(os.Stderr, "latency-top: config warning: %s\n", w)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "latency-top: logging error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	store, isPersistent, err := storage.NewStore(cfg.Storage, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "latency-top: storage error: %v\n", err)
		os.Exit(1)
	}

	recvOpts := []receiver.ReceiverOption{receiver.WithLogger(logger)}
	if *debugFlag != "" {
		debugFile, err := os.OpenFile(*debugFlag, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "latency-top: failed to open debug log %q: %v\n", *debugFlag, err)
			os.Exit(1)
		}
		defer debugFile.Close()
		recvOpts = append(recvOpts, receiver.WithSampleLogger(receiver.NewFileLogger(debugFile)))
	}

	recv := receiver.New(cfg.Receiver, cfg.Ingest, store, recvOpts...)

	var api *chartapi.Server
	if cfg.API.Enabled {
		api = chartapi.New(cfg.API, cfg.Display, cfg.Scale.Policy(), store, chartapi.WithLogger(logger))
	}

	shutdownMgr := tui.NewShutdownManager()
	shutdownMgr.StopReceiver = func(ctx context.Context) error {
		recv.Stop()
		return nil
	}
	if api != nil {
		shutdownMgr.StopAPI = func(ctx context.Context) error {
			api.Stop()
			return nil
		}
	}
	shutdownMgr.CloseStore = store.Close

	var shutdownOnce sync.Once
	shutdown := func() {
		shutdownOnce.Do(func() {
			if err := shutdownMgr.Shutdown(); err != nil {
				logger.Error("shutdown", zap.Error(err))
			}
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// grpc-go and net/http write to the standard logger.
	log.SetOutput(io.Discard)

	if err := recv.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "latency-top: failed to start receivers: %v\n", err)
		_ = store.Close()
		os.Exit(1)
	}

	if api != nil {
		if err := api.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "latency-top: failed to start chart api: %v\n", err)
			recv.Stop()
			_ = store.Close()
			os.Exit(1)
		}
	}

	logger.Info("latency-top started",
		zap.Int("grpc_port", cfg.Receiver.GRPCPort),
		zap.Int("http_port", cfg.Receiver.HTTPPort),
		zap.Bool("api", api != nil),
		zap.Bool("persistent", isPersistent))

	if *headlessFlag {
		fmt.Fprintf(os.Stderr, "latency-top: receiving on %s:%d (gRPC) and %s:%d (HTTP)\n",
			cfg.Receiver.Bind, cfg.Receiver.GRPCPort, cfg.Receiver.Bind, cfg.Receiver.HTTPPort)
		if api != nil {
			fmt.Fprintf(os.Stderr, "latency-top: chart api on http://%s\n", api.Addr())
		}
		<-sigCh
		shutdown()
		return
	}

	model := tui.NewModel(cfg,
		tui.WithStateProvider(store),
		tui.WithPersistenceFlag(isPersistent),
		tui.WithOnShutdown(shutdown),
	)

	p := tea.NewProgram(model,
		tea.WithAltScreen(),
	)

	go func() {
		select {
		case <-sigCh:
			shutdown()
			p.Quit()
		case <-ctx.Done():
			return
		}
	}()

	if _, err := p.Run(); err != nil {
		shutdown()
		fmt.Fprintf(os.Stderr, "latency-top: %v\n", err)
		os.Exit(1)
	}
	shutdown()
}

func loadConfig(path string) (*config.LoadResult, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFrom(path)
}
