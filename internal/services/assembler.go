package services

import (
	"io"
	"time"

	"smsledger/internal/audit"
	"smsledger/internal/backup"
	"smsledger/internal/classify"
	"smsledger/internal/core"
	"smsledger/internal/extract"
)

// Assembler turns raw backup messages into transaction records. It owns the
// audit sink shared by the reader, the categorizer and the extractor.
type Assembler struct {
	categorizer *classify.Categorizer
	extractor   *extract.Extractor
	sink        audit.Sink
	loc         *time.Location
}

// NewAssembler wires the default categorizer and extractor to sink.
// Datetimes are rendered in loc, or the local zone when loc is nil.
func NewAssembler(sink audit.Sink, loc *time.Location) *Assembler {
	sink = audit.OrDiscard(sink)
	return NewAssemblerWith(classify.New(sink), extract.New(sink), sink, loc)
}

// NewAssemblerWith uses caller-supplied components.
func NewAssemblerWith(c *classify.Categorizer, e *extract.Extractor, sink audit.Sink, loc *time.Location) *Assembler {
	if loc == nil {
		loc = time.Local
	}
	return &Assembler{
		categorizer: c,
		extractor:   e,
		sink:        audit.OrDiscard(sink),
		loc:         loc,
	}
}

// Extractor exposes the field extractor so callers can register rules.
func (a *Assembler) Extractor() *extract.Extractor {
	return a.extractor
}

// Assemble builds one record per message, preserving order. Duplicates are
// kept; the store drops them.
func (a *Assembler) Assemble(msgs []core.RawMessage) []core.TransactionRecord {
	out := make([]core.TransactionRecord, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, a.assembleOne(m))
	}
	return out
}

func (a *Assembler) assembleOne(m core.RawMessage) core.TransactionRecord {
	cat := a.categorizer.Categorize(m.Body)
	fields := a.extractor.Extract(m.Body, cat)
	return core.NewTransactionRecord(cat, core.FormatDatetime(m.Time(a.loc)), m.Body, fields)
}

// Parse reads a backup document and assembles it. A malformed document
// yields a *core.MalformedInputError and no records.
func (a *Assembler) Parse(r io.Reader) ([]core.TransactionRecord, error) {
	msgs, err := backup.Read(r, a.sink)
	if err != nil {
		return nil, err
	}
	return a.Assemble(msgs), nil
}

// ParseFile is Parse for a file on disk.
func (a *Assembler) ParseFile(path string) ([]core.TransactionRecord, error) {
	msgs, err := backup.ReadFile(path, a.sink)
	if err != nil {
		return nil, err
	}
	return a.Assemble(msgs), nil
}
