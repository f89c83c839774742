package services

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"smsledger/internal/core"
	"smsledger/internal/log"
	"smsledger/internal/storage"
)

// SyncPublisher announces newly stored transactions to downstream
// consumers. *amqp.Client satisfies it.
type SyncPublisher interface {
	PublishTransactionSync(ctx context.Context, queue string, id int64, batchID string) error
}

// IngestService runs the whole pipeline: read, assemble, store, announce.
type IngestService struct {
	assembler *Assembler
	store     *storage.SQLiteRepository
	publisher SyncPublisher
	syncQueue string
	logger    *log.Logger
}

func NewIngestService(assembler *Assembler, store *storage.SQLiteRepository, logger *log.Logger) *IngestService {
	if logger == nil {
		logger = log.Default(log.ComponentPipeline)
	}
	return &IngestService{
		assembler: assembler,
		store:     store,
		logger:    logger.WithComponent(log.ComponentPipeline),
	}
}

// WithPublisher enables a sync message per inserted row on queue.
func (s *IngestService) WithPublisher(p SyncPublisher, queue string) *IngestService {
	s.publisher = p
	s.syncQueue = queue
	return s
}

// IngestFile parses the backup at path and stores its transactions.
func (s *IngestService) IngestFile(ctx context.Context, path string) (core.IngestSummary, error) {
	records, err := s.assembler.ParseFile(path)
	if err != nil {
		return core.IngestSummary{Source: path}, fmt.Errorf("parse backup: %w", err)
	}
	return s.IngestRecords(ctx, path, records)
}

// IngestReader is IngestFile for an in-memory or streamed backup.
func (s *IngestService) IngestReader(ctx context.Context, source string, r io.Reader) (core.IngestSummary, error) {
	records, err := s.assembler.Parse(r)
	if err != nil {
		return core.IngestSummary{Source: source}, fmt.Errorf("parse backup: %w", err)
	}
	return s.IngestRecords(ctx, source, records)
}

// IngestRecords stores already assembled records, e.g. from an interchange
// file.
func (s *IngestService) IngestRecords(ctx context.Context, source string, records []core.TransactionRecord) (core.IngestSummary, error) {
	summary := core.IngestSummary{
		BatchID: uuid.NewString(),
		Source:  source,
		Parsed:  len(records),
	}
	l := s.logger.With(log.FieldBatchID, summary.BatchID, log.FieldSource, source)

	res, err := s.store.Ingest(ctx, records)
	if err != nil {
		l.ErrorContext(ctx, "Ingestion failed", log.FieldError, err)
		return summary, fmt.Errorf("store transactions: %w", err)
	}
	summary.Inserted = res.Inserted
	summary.Skipped = res.Skipped
	summary.Failed = res.Failed

	s.announce(ctx, l, summary.BatchID, res.IDs)

	counts, err := s.store.CountByCategory(ctx)
	if err != nil {
		l.WarnContext(ctx, "Failed to load category summary", log.FieldError, err)
	} else {
		summary.ByCategory = counts
	}

	fields := log.NewFields().
		WithOperation(log.OpIngest).
		WithCounts(summary.Parsed, summary.Inserted, summary.Skipped, summary.Failed)
	l.InfoContext(ctx, "Ingestion completed", fields.ToSlice()...)
	for _, c := range summary.ByCategory {
		l.DebugContext(ctx, "Category total",
			log.FieldCategory, c.Category.String(),
			"count", c.Count,
			"amount", c.Total)
	}

	return summary, nil
}

// announce publishes one sync message per inserted id. Publishing failures
// are logged; the rows stay pending and the sync processor picks them up.
func (s *IngestService) announce(ctx context.Context, l *log.Logger, batchID string, ids []int64) {
	if s.publisher == nil || len(ids) == 0 {
		return
	}
	failed := 0
	for _, id := range ids {
		if err := s.publisher.PublishTransactionSync(ctx, s.syncQueue, id, batchID); err != nil {
			failed++
			l.WarnContext(ctx, "Failed to publish sync message",
				log.FieldTransaction, id,
				log.FieldError, err)
		}
	}
	if failed > 0 {
		l.WarnContext(ctx, "Some sync messages were not published", "failed", failed, "total", len(ids))
	}
}
