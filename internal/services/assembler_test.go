package services

import (
	"errors"
	"strings"
	"testing"
	"time"

	"smsledger/internal/audit"
	"smsledger/internal/core"
)

const twoNodeBackup = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<smses count="2">
  <sms protocol="0" address="M-Money" date="1715351458724" type="1" body="*113*R*A bank deposit of 20,000 RWF has been added to your mobile money account at 2024-05-10 14:30:58." read="1" />
  <sms protocol="0" address="M-Money" date="1715351460000" type="1" body="zzqx 300 RWF blorp" read="1" />
</smses>`

func TestAssembler_EndToEnd(t *testing.T) {
	sink := audit.NewCollector()
	a := NewAssembler(sink, time.UTC)

	records, err := a.Parse(strings.NewReader(twoNodeBackup))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	dep := records[0]
	if dep.Category != core.BankDeposits || dep.Amount != 20000 || dep.Fee != 0 {
		t.Errorf("unexpected deposit record %+v", dep)
	}
	if dep.Datetime != "2024-05-10 14:30:58" {
		t.Errorf("unexpected datetime %q", dep.Datetime)
	}
	if records[1].Category != core.Other {
		t.Errorf("expected Other, got %q", records[1].Category)
	}

	entries := sink.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one audit entry, got %v", entries)
	}
	if entries[0].Reason != audit.ReasonNoCategory || entries[0].Message != "zzqx 300 RWF blorp" {
		t.Errorf("unexpected audit entry %+v", entries[0])
	}
}

func TestAssembler_MalformedDocument(t *testing.T) {
	sink := audit.NewCollector()
	a := NewAssembler(sink, time.UTC)

	records, err := a.Parse(strings.NewReader(`<smses><sms body="x" date="1"></smses>`))
	var malformed *core.MalformedInputError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedInputError, got %v", err)
	}
	if records != nil {
		t.Fatalf("expected no records")
	}
	if sink.Len() != 0 {
		t.Fatalf("expected no audit entries, got %d", sink.Len())
	}
}

func TestAssembler_PreservesOrderAndDuplicates(t *testing.T) {
	a := NewAssembler(nil, time.UTC)
	msgs := []core.RawMessage{
		{Body: "You have received 10,000 RWF from John Doe (*********013)", TimestampMillis: 1715351458724},
		{Body: "You have received 10,000 RWF from John Doe (*********013)", TimestampMillis: 1715351458724},
		{Body: "*165*S*5000 RWF transferred to Samuel Carter (250791666666). Fee was: 100 RWF", TimestampMillis: 1715351459000},
	}

	recs := a.Assemble(msgs)
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0].RawText != msgs[0].Body || recs[0].Datetime != recs[1].Datetime {
		t.Errorf("duplicates should be kept verbatim")
	}
	if core.Deref(recs[0].Sender) != "John Doe" {
		t.Errorf("unexpected sender %+v", recs[0])
	}
	if recs[2].Category != core.BankTransfers || recs[2].Fee != 100 || core.Deref(recs[2].AccountOrPhone) != "250791666666" {
		t.Errorf("unexpected transfer %+v", recs[2])
	}
}

func TestAssembler_SecondPrecision(t *testing.T) {
	a := NewAssembler(nil, time.UTC)
	recs := a.Assemble([]core.RawMessage{{Body: "x 1 RWF", TimestampMillis: 1715351458999}})
	if recs[0].Datetime != "2024-05-10 14:30:58" {
		t.Fatalf("expected truncation to seconds, got %q", recs[0].Datetime)
	}
}

func TestAssembler_ReprocessingIsStable(t *testing.T) {
	a := NewAssembler(nil, time.UTC)
	msgs := []core.RawMessage{
		{Body: "You have received 10,000 RWF from John Doe", TimestampMillis: 1},
		{Body: "Your payment of 2000 RWF to Airtime with token  has been completed. Fee was 0 RWF.", TimestampMillis: 2},
		{Body: "Your payment of 1,500 RWF to Jane Smith 12845 has been completed", TimestampMillis: 3},
		{Body: "nonsense", TimestampMillis: 4},
	}

	first := a.Assemble(msgs)
	for i, rec := range first {
		again := a.Assemble([]core.RawMessage{{Body: rec.RawText, TimestampMillis: msgs[i].TimestampMillis}})[0]
		if again.Category != rec.Category || again.Amount != rec.Amount || again.Fee != rec.Fee {
			t.Errorf("record %d changed on reprocessing: %+v vs %+v", i, rec, again)
		}
		if core.Deref(again.Recipient) != core.Deref(rec.Recipient) || core.Deref(again.Code) != core.Deref(rec.Code) {
			t.Errorf("record %d fields changed on reprocessing", i)
		}
	}
}
