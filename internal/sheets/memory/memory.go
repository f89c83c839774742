package memory

import (
	"context"
	"fmt"
	"sync"

	"smsledger/internal/core"
	ports "smsledger/internal/sheets"
)

var (
	_ ports.TransactionWriter = (*Store)(nil)
	_ ports.TransactionReader = (*Store)(nil)
)

// Store is an in-process stand-in for the spreadsheet, used when no
// spreadsheet is configured and in tests.
type Store struct {
	mu    sync.Mutex
	items []core.TransactionRecord
	fail  error
}

func New() *Store {
	return &Store{}
}

// Append stores the record and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, rec core.TransactionRecord) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	s.items = append(s.items, rec)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// List returns a copy of every appended record in order.
func (s *Store) List(_ context.Context) ([]core.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.TransactionRecord(nil), s.items...), nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// FailWith makes subsequent appends return err. Pass nil to recover.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}
