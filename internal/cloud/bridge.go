package cloud

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/spellflare/spellsync/internal/endpoint"
	"github.com/spellflare/spellsync/internal/merge"
	"github.com/spellflare/spellsync/internal/metrics"
	"github.com/spellflare/spellsync/internal/profile"
)

// Local is the device side of reconciliation. *endpoint.Endpoint
// satisfies it; ReconcileWith persists and propagates a winning backup.
type Local interface {
	CurrentProfile(ctx context.Context) (profile.Syncable, error)
	ReconcileWith(ctx context.Context, remote profile.Syncable, explain merge.Explainer) (merge.Decision, error)
}

// Result describes what one reconciliation did.
type Result string

const (
	// ResultUploaded: the local profile was written to the slot.
	ResultUploaded Result = "uploaded"

	// ResultRestored: the backup won and replaced the local profile.
	ResultRestored Result = "restored"

	// ResultUnchanged: both sides already agreed.
	ResultUnchanged Result = "unchanged"

	// ResultEmpty: neither side has a profile.
	ResultEmpty Result = "empty"

	// ResultSkipped: another reconciliation was already running.
	ResultSkipped Result = "skipped"

	// ResultFailed: reconciliation returned an error.
	ResultFailed Result = "failed"
)

// Config holds bridge configuration.
type Config struct {
	// Metrics may be nil.
	Metrics *metrics.Metrics

	// Logger (default: stderr logger with "[cloud] " prefix)
	Logger *log.Logger
}

// Bridge reconciles the primary's cache with its cloud slot.
type Bridge struct {
	slot    Slot
	local   Local
	logger  *log.Logger
	metrics *metrics.Metrics

	inFlight atomic.Bool
}

// NewBridge creates a bridge between local and slot.
func NewBridge(slot Slot, local Local, cfg *Config) *Bridge {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[cloud] ", log.LstdFlags)
	}
	return &Bridge{
		slot:    slot,
		local:   local,
		logger:  logger,
		metrics: cfg.Metrics,
	}
}

// Reconcile runs one reconciliation:
//
//   - no backup: upload the local profile
//   - backup wins under merge.ResolveConflict: it is persisted locally and
//     pushed to the companion
//   - local wins: the slot is overwritten with the local profile
//
// Calls that overlap a running reconciliation return ResultSkipped at once;
// they are not queued.
func (b *Bridge) Reconcile(ctx context.Context) (Result, error) {
	if !b.inFlight.CompareAndSwap(false, true) {
		b.metrics.CloudReconcile(string(ResultSkipped))
		return ResultSkipped, nil
	}
	defer b.inFlight.Store(false)

	result, err := b.reconcile(ctx)
	if err != nil {
		result = ResultFailed
	}
	b.metrics.CloudReconcile(string(result))
	return result, err
}

func (b *Bridge) reconcile(ctx context.Context) (Result, error) {
	local, err := b.local.CurrentProfile(ctx)
	hasLocal := err == nil
	if err != nil && !errors.Is(err, endpoint.ErrNoProfile) {
		return ResultFailed, fmt.Errorf("failed to read local profile: %w", err)
	}

	remote, err := b.slot.Fetch(ctx)
	switch {
	case errors.Is(err, ErrNoBackup):
		return b.upload(ctx, local, hasLocal)
	case errors.Is(err, ErrCorruptBackup):
		b.logger.Printf("WARNING: replacing unreadable backup: %v", err)
		return b.upload(ctx, local, hasLocal)
	case err != nil:
		return ResultFailed, err
	}

	d, err := b.local.ReconcileWith(ctx, remote, merge.ExplainResolveConflict)
	if err != nil {
		return ResultFailed, fmt.Errorf("failed to merge backup: %w", err)
	}
	b.metrics.Merge("resolveConflict", string(d.Side))

	if d.Side == merge.SideRemote {
		b.logger.Printf("Restored backup from %s (%s)", remote.DeviceIdentifier, d.Rule)
		return ResultRestored, nil
	}

	if d.Winner.Equal(remote) {
		return ResultUnchanged, nil
	}
	if err := b.slot.Store(ctx, d.Winner); err != nil {
		return ResultFailed, err
	}
	b.logger.Printf("Uploaded local profile (%s)", d.Rule)
	return ResultUploaded, nil
}

func (b *Bridge) upload(ctx context.Context, local profile.Syncable, hasLocal bool) (Result, error) {
	if !hasLocal {
		return ResultEmpty, nil
	}
	if err := b.slot.Store(ctx, local); err != nil {
		return ResultFailed, err
	}
	b.logger.Printf("Uploaded first backup for %s", local.Profile.Name)
	return ResultUploaded, nil
}

// Trigger starts a reconciliation in the background, for example when the
// app returns to the foreground.
func (b *Bridge) Trigger(ctx context.Context) {
	go func() {
		if _, err := b.Reconcile(ctx); err != nil {
			b.logger.Printf("Cloud reconcile failed: %v", err)
		}
	}()
}

// Run reconciles once immediately and then every interval until ctx is
// done. Errors are logged, never returned.
func (b *Bridge) Run(ctx context.Context, interval time.Duration) error {
	b.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.runOnce(ctx)
		}
	}
}

func (b *Bridge) runOnce(ctx context.Context) {
	result, err := b.Reconcile(ctx)
	if err != nil {
		if ctx.Err() == nil {
			b.logger.Printf("Cloud reconcile failed: %v", err)
		}
		return
	}
	if result == ResultSkipped {
		b.logger.Printf("Cloud reconcile already running, skipped")
	}
}

// DeleteBackup empties the slot.
func (b *Bridge) DeleteBackup(ctx context.Context) error {
	if err := b.slot.Delete(ctx); err != nil {
		return err
	}
	b.logger.Printf("Deleted cloud backup")
	return nil
}
