// Package worker keeps a local copy of the ledger fresh.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"splitledger/internal/amqp"
	"splitledger/internal/ledger"
	"splitledger/internal/metrics"
	"splitledger/internal/services"
	"splitledger/internal/sheets"
	"splitledger/internal/storage"
)

// SnapshotWorker re-reads the ledger into SQLite whenever a mutation is
// announced, and copies new expenses to the mirror.
type SnapshotWorker struct {
	ledger    ledger.Reader
	reader    *services.LedgerReader
	storage   *storage.SQLiteRepository
	mirror    sheets.ExpenseMirror
	batchSize int
	logger    *slog.Logger
	now       func() time.Time

	// serializes refreshes triggered by events and by the ticker
	mu sync.Mutex
}

// Config holds configuration for the worker
type Config struct {
	Reader services.ReaderConfig
	// MirrorBatchSize caps expenses mirrored per refresh (default: 50)
	MirrorBatchSize int
}

// NewSnapshotWorker creates a worker. A nil mirror disables mirroring.
func NewSnapshotWorker(l ledger.Reader, store *storage.SQLiteRepository, mirror sheets.ExpenseMirror, config Config, logger *slog.Logger) *SnapshotWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MirrorBatchSize <= 0 {
		config.MirrorBatchSize = 50
	}
	return &SnapshotWorker{
		ledger:    l,
		reader:    services.NewLedgerReader(l, config.Reader, logger),
		storage:   store,
		mirror:    mirror,
		batchSize: config.MirrorBatchSize,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleLedgerEvent processes a single ledger event from AMQP.
//
// A failed refresh is logged and not returned: the event only signals that
// the ledger changed, and the next event or tick reads it again.
func (w *SnapshotWorker) HandleLedgerEvent(ctx context.Context, event *amqp.LedgerEvent) error {
	w.logger.InfoContext(ctx, "Processing ledger event",
		"kind", event.Kind,
		"account", event.Account,
		"tx_hash", event.TxHash)

	if err := w.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logger.ErrorContext(ctx, "Snapshot refresh after event failed", "kind", event.Kind, "error", err)
	}
	return nil
}

// Refresh reads the whole ledger, stores it and mirrors pending expenses.
func (w *SnapshotWorker) Refresh(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	err := w.refresh(ctx)
	metrics.RecordSnapshot(err)
	return err
}

func (w *SnapshotWorker) refresh(ctx context.Context) error {
	start := w.now()

	people, err := w.reader.LoadPeople(ctx)
	if err != nil {
		return fmt.Errorf("load people: %w", err)
	}
	expenses, err := w.reader.LoadExpenses(ctx)
	if err != nil {
		return fmt.Errorf("load expenses: %w", err)
	}
	total, err := w.ledger.GetTotalRegisteredPeople(ctx)
	if err != nil {
		w.logger.WarnContext(ctx, "Failed to read registered people count, using loaded count", "error", err)
		total = uint64(len(people))
	}

	if err := w.storage.ReplaceSnapshot(ctx, storage.Snapshot{
		People:          people,
		Expenses:        expenses,
		TotalRegistered: total,
		RefreshedAt:     w.now(),
	}); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}

	mirrored, err := w.MirrorPending(ctx)
	if err != nil {
		w.logger.WarnContext(ctx, "Mirroring stopped early", "mirrored", mirrored, "error", err)
	}

	w.logger.InfoContext(ctx, "Snapshot refreshed",
		"people", len(people),
		"expenses", len(expenses),
		"mirrored", mirrored,
		"duration", w.now().Sub(start))
	return nil
}

// MirrorPending copies expenses not yet mirrored, oldest first. It stops at
// the first mirror failure so ordering in the sheet follows ledger ids.
func (w *SnapshotWorker) MirrorPending(ctx context.Context) (int, error) {
	if w.mirror == nil {
		return 0, nil
	}
	pending, err := w.storage.PendingMirrorExpenses(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending expenses: %w", err)
	}

	mirrored := 0
	for _, e := range pending {
		ref, err := w.mirror.Append(ctx, e)
		if err != nil {
			return mirrored, fmt.Errorf("append expense %d to mirror: %w", e.ID, err)
		}
		if err := w.storage.MarkMirrored(ctx, e.ID, w.now()); err != nil {
			// the row is in the sheet; it would be appended again next time
			w.logger.ErrorContext(ctx, "Failed to mark expense as mirrored", "expense_id", e.ID, "error", err)
			return mirrored, err
		}
		w.logger.DebugContext(ctx, "Mirrored expense", "expense_id", e.ID, "sheets_ref", ref)
		mirrored++
	}
	return mirrored, nil
}

// Run refreshes once, then on every tick until ctx is done.
func (w *SnapshotWorker) Run(ctx context.Context, interval time.Duration) {
	if err := w.Refresh(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Initial snapshot refresh failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Snapshot worker stopped")
			return
		case <-ticker.C:
			if err := w.Refresh(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Periodic snapshot refresh failed", "error", err)
			}
		}
	}
}
