package tui

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ShutdownManager stops the components in order: ingest first so no new
// samples arrive, then the chart API, then the store so queued writes
// are flushed and today's summary is persisted.
type ShutdownManager struct {
	// DrainTimeout bounds the time spent stopping network listeners.
	DrainTimeout time.Duration

	StopReceiver func(ctx context.Context) error
	StopAPI      func(ctx context.Context) error
	CloseStore   func() error
}

// NewShutdownManager creates a ShutdownManager with a 5-second drain timeout.
func NewShutdownManager() *ShutdownManager {
	return &ShutdownManager{
		DrainTimeout: 5 * time.Second,
	}
}

// Shutdown runs every configured step even if an earlier one fails and
// returns the joined errors.
func (sm *ShutdownManager) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), sm.DrainTimeout)
	defer cancel()

	var errs []error
	if sm.StopReceiver != nil {
		if err := sm.StopReceiver(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping receiver: %w", err))
		}
	}
	if sm.StopAPI != nil {
		if err := sm.StopAPI(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping chart api: %w", err))
		}
	}
	if sm.CloseStore != nil {
		if err := sm.CloseStore(); err != nil {
			errs = append(errs, fmt.Errorf("closing store: %w", err))
		}
	}
	return errors.Join(errs...)
}
