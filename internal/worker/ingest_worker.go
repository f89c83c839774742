package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"smsledger/internal/amqp"
	"smsledger/internal/core"
	"smsledger/internal/log"
	"smsledger/internal/services"
)

const (
	ProcessedDir = "processed"
	FailedDir    = "unprocessed"
)

// IngestWorker feeds backup files into the ingest service, either on request
// over AMQP or by scanning an inbox directory.
type IngestWorker struct {
	service *services.IngestService
	inbox   string
	logger  *log.Logger
	group   singleflight.Group
}

func NewIngestWorker(service *services.IngestService, inbox string, logger *log.Logger) *IngestWorker {
	if logger == nil {
		logger = log.Default(log.ComponentWorker)
	}
	return &IngestWorker{
		service: service,
		inbox:   inbox,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// HandleIngestRequest ingests the file named by msg. Relative paths are
// resolved against the inbox.
func (w *IngestWorker) HandleIngestRequest(ctx context.Context, msg *amqp.IngestRequestMessage) error {
	path := w.resolve(msg.Path)
	w.logger.InfoContext(ctx, "Processing ingest request",
		log.FieldRequestID, msg.RequestID,
		log.FieldSource, path)

	summary, err := w.Ingest(ctx, path)
	if err != nil {
		var malformed *core.MalformedInputError
		if errors.As(err, &malformed) || errors.Is(err, os.ErrNotExist) {
			// redelivery cannot fix a broken or missing file
			w.logger.WarnContext(ctx, "Dropping ingest request", log.FieldRequestID, msg.RequestID, log.FieldError, err)
			return nil
		}
		return err
	}

	w.logger.InfoContext(ctx, "Ingest request completed",
		log.FieldRequestID, msg.RequestID,
		log.FieldBatchID, summary.BatchID,
		log.FieldInserted, summary.Inserted,
		log.FieldSkipped, summary.Skipped)
	return nil
}

// Ingest runs the pipeline over path. Concurrent calls for the same path
// share a single run.
func (w *IngestWorker) Ingest(ctx context.Context, path string) (core.IngestSummary, error) {
	v, err, shared := w.group.Do(path, func() (any, error) {
		return w.service.IngestFile(ctx, path)
	})
	if shared {
		w.logger.DebugContext(ctx, "Joined in-flight ingestion", log.FieldSource, path)
	}
	summary, _ := v.(core.IngestSummary)
	return summary, err
}

// ScanInbox ingests every *.xml file in the inbox, oldest name first, and
// moves each into processed/ or unprocessed/. It returns the summaries of the
// files that were ingested.
func (w *IngestWorker) ScanInbox(ctx context.Context) ([]core.IngestSummary, error) {
	if w.inbox == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(w.inbox)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read inbox: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".xml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var summaries []core.IngestSummary
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return summaries, err
		}
		path := filepath.Join(w.inbox, name)
		summary, err := w.Ingest(ctx, path)
		if err != nil {
			var malformed *core.MalformedInputError
			if !errors.As(err, &malformed) {
				// store trouble; leave the file for the next scan
				return summaries, fmt.Errorf("ingest %s: %w", name, err)
			}
			w.logger.WarnContext(ctx, "Backup file is malformed", log.FieldSource, path, log.FieldError, err)
			if mvErr := w.move(path, FailedDir); mvErr != nil {
				w.logger.ErrorContext(ctx, "Failed to move backup file", log.FieldSource, path, log.FieldError, mvErr)
			}
			continue
		}
		summaries = append(summaries, summary)
		if mvErr := w.move(path, ProcessedDir); mvErr != nil {
			w.logger.ErrorContext(ctx, "Failed to move backup file", log.FieldSource, path, log.FieldError, mvErr)
		}
	}
	return summaries, nil
}

// RunScanLoop calls ScanInbox every interval until ctx is cancelled.
func (w *IngestWorker) RunScanLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := w.ScanInbox(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "Inbox scan failed", log.FieldOperation, log.OpScan, log.FieldError, err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *IngestWorker) resolve(path string) string {
	if filepath.IsAbs(path) || w.inbox == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(w.inbox, path)
}

func (w *IngestWorker) move(path, sub string) error {
	dir := filepath.Join(w.inbox, sub)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.Rename(path, filepath.Join(dir, filepath.Base(path)))
}
