package worker

import (
	"context"
	"fmt"
	"log/slog"

	"smsledger/internal/amqp"
	"smsledger/internal/services"
)

// startupPasses bounds how many batches StartupSyncCheck drains.
const startupPasses = 5

// SyncWorker mirrors transactions announced over AMQP to the spreadsheet.
type SyncWorker struct {
	processor *services.SyncProcessor
}

func NewSyncWorker(processor *services.SyncProcessor) *SyncWorker {
	return &SyncWorker{processor: processor}
}

// HandleSyncMessage processes a single transaction sync message from AMQP
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.TransactionSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"id", msg.ID,
		"batch_id", msg.BatchID)

	if err := w.processor.SyncOne(ctx, msg.ID); err != nil {
		return fmt.Errorf("sync transaction %d: %w", msg.ID, err)
	}
	return nil
}

// StartupSyncCheck mirrors rows left pending while the worker was down, for
// instance because their sync message was lost.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	total := 0
	for pass := 0; pass < startupPasses; pass++ {
		n, err := w.processor.ProcessPending(ctx)
		if err != nil {
			return fmt.Errorf("startup sync: %w", err)
		}
		if n == 0 {
			break
		}
		total += n
	}

	if total == 0 {
		slog.InfoContext(ctx, "No pending transactions found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup sync completed", "synced", total)
	return nil
}
