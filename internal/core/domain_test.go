package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseCategory(t *testing.T) {
	for _, c := range Categories() {
		got, err := ParseCategory(string(c))
		if err != nil {
			t.Fatalf("ParseCategory(%q) unexpected error: %v", c, err)
		}
		if got != c {
			t.Fatalf("ParseCategory(%q) = %q", c, got)
		}
	}

	if got, err := ParseCategory("  bank deposits "); err != nil || got != BankDeposits {
		t.Fatalf("expected case-insensitive match, got %q (err=%v)", got, err)
	}
	if _, err := ParseCategory("Lottery"); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestCategoriesOrder(t *testing.T) {
	cats := Categories()
	if len(cats) != 10 {
		t.Fatalf("expected 10 categories, got %d", len(cats))
	}
	if cats[0] != IncomingMoney || cats[len(cats)-1] != Other {
		t.Fatalf("unexpected order: %v", cats)
	}
}

func TestRawMessageTime(t *testing.T) {
	m := RawMessage{Body: "x", TimestampMillis: 1715351458724}
	got := FormatDatetime(m.Time(time.UTC))
	if got != "2024-05-10 14:30:58" {
		t.Fatalf("unexpected datetime %q", got)
	}
}

func TestTransactionRecordValidate(t *testing.T) {
	good := NewTransactionRecord(BankDeposits, "2024-05-10 14:30:58", "A bank deposit of 20,000 RWF", Fields{Amount: 20000})
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	empty := NewTransactionRecord(Other, "2024-05-10 14:30:58", "", Fields{})
	if err := empty.Validate(); err != nil {
		t.Fatalf("empty body should be storable, got %v", err)
	}

	bads := []TransactionRecord{
		{Category: "Nope", Datetime: "2024-05-10 14:30:58", RawText: "x"},
		{Category: Other, Datetime: "", RawText: "x"},
		{Category: Other, Datetime: "2024-05-10 14:30:58", RawText: "x", Amount: -1},
		{Category: Other, Datetime: "2024-05-10 14:30:58", RawText: "x", Fee: -1},
	}
	for i, r := range bads {
		if err := r.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestRecordFieldsRoundTrip(t *testing.T) {
	f := Fields{Amount: 5000, Fee: 100, Recipient: StringPtr("Jane Smith"), Code: StringPtr("12345")}
	r := NewTransactionRecord(PaymentsToCodeHolders, "2024-05-10 14:30:58", "body", f)
	got := r.Fields()
	if got.Amount != 5000 || got.Fee != 100 || Deref(got.Recipient) != "Jane Smith" || Deref(got.Code) != "12345" {
		t.Fatalf("unexpected fields %+v", got)
	}
	if got.Sender != nil || got.AccountOrPhone != nil {
		t.Fatalf("expected absent optional fields")
	}
}

func TestErrorTypes(t *testing.T) {
	inner := errors.New("boom")
	var mErr error = &MalformedInputError{Source: "a.xml", Err: inner}
	var target *MalformedInputError
	if !errors.As(mErr, &target) || !errors.Is(mErr, inner) {
		t.Fatalf("MalformedInputError should unwrap")
	}

	dErr := &DateParsingError{Raw: "abc", Err: inner}
	if dErr.Error() != "Date parsing error: boom" {
		t.Fatalf("unexpected message %q", dErr.Error())
	}

	sErr := &StoreWriteError{RawText: "You have received 10,000 RWF from John Doe", Err: inner}
	if !errors.Is(sErr, inner) {
		t.Fatalf("StoreWriteError should unwrap")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 30); got != "short" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("abcdef", 3); got != "abc..." {
		t.Fatalf("got %q", got)
	}
}
