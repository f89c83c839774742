package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"smsledger/internal/core"
	"smsledger/internal/sheets"
	"smsledger/internal/storage"
)

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often to look for unsynced transactions (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of transactions mirrored per poll (default: 50)
	BatchSize int
}

// DefaultSyncProcessorConfig returns the default polling settings
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    50,
	}
}

// SyncProcessor mirrors stored transactions to the spreadsheet. It is driven
// either by sync messages (SyncOne) or by its own polling loop, which also
// picks up rows whose message was lost.
type SyncProcessor struct {
	storage *storage.SQLiteRepository
	sheets  sheets.TransactionWriter
	config  SyncProcessorConfig

	// inflight serialises SyncOne per transaction id
	inflight singleflight.Group

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncProcessor(store *storage.SQLiteRepository, writer sheets.TransactionWriter, config SyncProcessorConfig) *SyncProcessor {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultSyncProcessorConfig().PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultSyncProcessorConfig().BatchSize
	}
	return &SyncProcessor{
		storage: store,
		sheets:  writer,
		config:  config,
	}
}

// Start begins the polling loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop signals the loop and waits for it to finish or for ctx to expire.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the polling loop is active
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	if _, err := p.ProcessPending(ctx); err != nil {
		slog.ErrorContext(ctx, "Initial sync pass failed", "error", err)
	}

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Sync pass failed", "error", err)
			}
		}
	}
}

// ProcessPending mirrors one batch of unsynced transactions and returns how
// many were appended.
func (p *SyncProcessor) ProcessPending(ctx context.Context) (int, error) {
	ids, err := p.storage.GetPendingSync(ctx, p.config.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	slog.DebugContext(ctx, "Processing pending transactions", "count", len(ids))

	synced := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		if err := p.SyncOne(ctx, id); err != nil {
			slog.WarnContext(ctx, "Failed to sync transaction", "id", id, "error", err)
			continue
		}
		synced++
	}
	return synced, nil
}

// SyncOne appends transaction id to the spreadsheet and records the outcome.
// A transaction already marked as synced is not appended twice, concurrent
// calls for the same id share one append, and a transaction that has failed
// MaxSyncAttempts times is given up on.
func (p *SyncProcessor) SyncOne(ctx context.Context, id int64) error {
	_, err, _ := p.inflight.Do(strconv.FormatInt(id, 10), func() (any, error) {
		return nil, p.syncOne(ctx, id)
	})
	return err
}

func (p *SyncProcessor) syncOne(ctx context.Context, id int64) error {
	st, err := p.storage.SyncStatus(ctx, id)
	switch {
	case err == nil && st.Status == "synced":
		slog.DebugContext(ctx, "Transaction already synced", "id", id, "sheets_ref", st.SheetsRef)
		return nil
	case err == nil && st.Attempts >= storage.MaxSyncAttempts:
		slog.WarnContext(ctx, "Giving up on transaction sync", "id", id, "attempts", st.Attempts)
		return nil
	case err != nil && !errors.Is(err, core.ErrNotFound):
		return fmt.Errorf("read sync status: %w", err)
	}

	rec, err := p.storage.GetTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("get transaction %d: %w", id, err)
	}

	ref, err := p.sheets.Append(ctx, rec)
	if err != nil {
		if markErr := p.storage.MarkSyncError(ctx, id, err); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", id, "error", markErr)
		}
		return fmt.Errorf("append to sheets: %w", err)
	}

	if err := p.storage.MarkSynced(ctx, id, ref); err != nil {
		// the row is in the sheet; only the bookkeeping failed
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", id, "error", err)
	}

	slog.InfoContext(ctx, "Synced transaction to spreadsheet",
		"id", id,
		"sheets_ref", ref,
		"category", rec.Category.String(),
		"amount", rec.Amount)

	return nil
}
