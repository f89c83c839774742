package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"smsledger/internal/amqp"
	"smsledger/internal/audit"
	"smsledger/internal/core"
	"smsledger/internal/log"
	"smsledger/internal/services"
	"smsledger/internal/sheets/memory"
	"smsledger/internal/storage"
)

const backupXML = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<smses count="2">
  <sms protocol="0" address="M-Money" date="1715351458724" type="1" body="*113*R*A bank deposit of 20,000 RWF has been added to your mobile money account at 2024-05-10 14:30:58." read="1" />
  <sms protocol="0" address="M-Money" date="1715432620000" type="1" body="*162*TxId:13913173274*S*Your payment of 2,000 RWF to Airtime with token  has been completed at 2024-05-11 13:03:40. Fee was 0 RWF." read="1" />
</smses>`

func newStore(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	store, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "worker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newIngestWorker(t *testing.T, inbox string) (*IngestWorker, *storage.SQLiteRepository) {
	t.Helper()
	store := newStore(t)
	svc := services.NewIngestService(services.NewAssembler(audit.Discard, time.UTC), store, log.Nop())
	return NewIngestWorker(svc, inbox, log.Nop()), store
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestIngestWorker_HandleIngestRequest(t *testing.T) {
	ctx := context.Background()
	inbox := t.TempDir()
	w, store := newIngestWorker(t, inbox)
	writeFile(t, inbox, "backup.xml", backupXML)

	msg := amqp.NewIngestRequestMessage("backup.xml")
	require.NoError(t, w.HandleIngestRequest(ctx, msg))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	// redelivery of the same request is harmless
	require.NoError(t, w.HandleIngestRequest(ctx, msg))
	n, err = store.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestIngestWorker_DropsUnrecoverableRequests(t *testing.T) {
	ctx := context.Background()
	inbox := t.TempDir()
	w, _ := newIngestWorker(t, inbox)
	writeFile(t, inbox, "broken.xml", "<smses><sms body=")

	require.NoError(t, w.HandleIngestRequest(ctx, amqp.NewIngestRequestMessage("broken.xml")))
	require.NoError(t, w.HandleIngestRequest(ctx, amqp.NewIngestRequestMessage("missing.xml")))
}

func TestIngestWorker_ScanInbox(t *testing.T) {
	ctx := context.Background()
	inbox := t.TempDir()
	w, store := newIngestWorker(t, inbox)

	writeFile(t, inbox, "a.xml", backupXML)
	writeFile(t, inbox, "b.xml", "not xml at all <")
	writeFile(t, inbox, "notes.txt", "ignored")

	summaries, err := w.ScanInbox(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, 2, summaries[0].Inserted)

	require.FileExists(t, filepath.Join(inbox, ProcessedDir, "a.xml"))
	require.FileExists(t, filepath.Join(inbox, FailedDir, "b.xml"))
	require.FileExists(t, filepath.Join(inbox, "notes.txt"))
	require.NoFileExists(t, filepath.Join(inbox, "a.xml"))

	// nothing left to do
	summaries, err = w.ScanInbox(ctx)
	require.NoError(t, err)
	require.Empty(t, summaries)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestIngestWorker_ScanMissingInbox(t *testing.T) {
	w, _ := newIngestWorker(t, filepath.Join(t.TempDir(), "nope"))
	summaries, err := w.ScanInbox(context.Background())
	require.NoError(t, err)
	require.Empty(t, summaries)
}

func TestIngestWorker_ConcurrentIngestSamePath(t *testing.T) {
	ctx := context.Background()
	inbox := t.TempDir()
	w, store := newIngestWorker(t, inbox)
	path := writeFile(t, inbox, "backup.xml", backupXML)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.Ingest(ctx, path)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	n, err := store.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestIngestWorker_RunScanLoopStops(t *testing.T) {
	inbox := t.TempDir()
	w, _ := newIngestWorker(t, inbox)
	writeFile(t, inbox, "a.xml", backupXML)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.RunScanLoop(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(inbox, ProcessedDir, "a.xml"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scan loop did not stop")
	}
}

func seedSync(t *testing.T) (*SyncWorker, []int64, *memory.Store) {
	t.Helper()
	store := newStore(t)
	res, err := store.Ingest(context.Background(), []core.TransactionRecord{
		core.NewTransactionRecord(core.BankDeposits, "2024-05-10 14:30:58", "A bank deposit of 20,000 RWF", core.Fields{Amount: 20000}),
		core.NewTransactionRecord(core.AirtimeBillPayments, "2024-05-11 13:03:40", "Your payment of 2,000 RWF to Airtime", core.Fields{Amount: 2000}),
	})
	require.NoError(t, err)

	mem := memory.New()
	p := services.NewSyncProcessor(store, mem, services.SyncProcessorConfig{BatchSize: 1})
	return NewSyncWorker(p), res.IDs, mem
}

func TestSyncWorker_HandleSyncMessage(t *testing.T) {
	ctx := context.Background()
	w, ids, mem := seedSync(t)

	msg := amqp.NewTransactionSyncMessage(ids[0], "batch-1")
	require.NoError(t, w.HandleSyncMessage(ctx, msg))
	require.Equal(t, 1, mem.Len())

	// duplicate deliveries do not append twice
	require.NoError(t, w.HandleSyncMessage(ctx, msg))
	require.Equal(t, 1, mem.Len())

	require.Error(t, w.HandleSyncMessage(ctx, amqp.NewTransactionSyncMessage(9999, "")))
}

func TestSyncWorker_HandleSyncMessageWriterFailure(t *testing.T) {
	w, ids, mem := seedSync(t)
	mem.FailWith(errors.New("quota exceeded"))

	err := w.HandleSyncMessage(context.Background(), amqp.NewTransactionSyncMessage(ids[0], ""))
	require.Error(t, err)
	require.Contains(t, err.Error(), "quota exceeded")
}

func TestSyncWorker_StartupSyncCheck(t *testing.T) {
	w, _, mem := seedSync(t)

	require.NoError(t, w.StartupSyncCheck(context.Background()))
	require.Equal(t, 2, mem.Len())

	require.NoError(t, w.StartupSyncCheck(context.Background()))
	require.Equal(t, 2, mem.Len())
}
