package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IngestRequestMessage asks the worker to run the pipeline over a backup
// file reachable from the worker's filesystem.
type IngestRequestMessage struct {
	RequestID string    `json:"request_id"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

// NewIngestRequestMessage creates a request with a fresh request id
func NewIngestRequestMessage(path string) *IngestRequestMessage {
	return &IngestRequestMessage{
		RequestID: uuid.NewString(),
		Path:      path,
		Timestamp: time.Now(),
	}
}

func (m *IngestRequestMessage) Validate() error {
	if strings.TrimSpace(m.Path) == "" {
		return errors.New("ingest request without path")
	}
	return nil
}

func (m *IngestRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func IngestRequestMessageFromJSON(data []byte) (*IngestRequestMessage, error) {
	var msg IngestRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// TransactionSyncMessage announces one newly stored transaction. Only the
// id travels; consumers fetch the row from the database.
type TransactionSyncMessage struct {
	ID        int64     `json:"id"`
	BatchID   string    `json:"batch_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTransactionSyncMessage(id int64, batchID string) *TransactionSyncMessage {
	return &TransactionSyncMessage{
		ID:        id,
		BatchID:   batchID,
		Timestamp: time.Now(),
	}
}

func (m *TransactionSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionSyncMessageFromJSON(data []byte) (*TransactionSyncMessage, error) {
	var msg TransactionSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID <= 0 {
		return nil, errors.New("transaction sync message without id")
	}
	return &msg, nil
}
