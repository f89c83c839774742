package core

import (
	"errors"
	"strings"
	"time"
)

// DatetimeLayout is the second-precision layout stored in the datetime column.
const DatetimeLayout = "2006-01-02 15:04:05"

const (
	IncomingMoney                Category = "Incoming Money"
	BankDeposits                 Category = "Bank Deposits"
	BankTransfers                Category = "Bank Transfers"
	AirtimeBillPayments          Category = "Airtime Bill Payments"
	InternetVoiceBundlePurchases Category = "Internet and Voice Bundle Purchases"
	CashPowerBillPayments        Category = "Cash Power Bill Payments"
	PaymentsToCodeHolders        Category = "Payments to Code Holders"
	ThirdPartyInitiated          Category = "Transactions Initiated by Third Parties"
	AgentWithdrawals             Category = "Withdrawals from Agents"
	Other                        Category = "Other"
)

type (
	// Category is the closed set of labels a message can be assigned.
	Category string

	// RawMessage is one <sms> entry from a backup before classification.
	RawMessage struct {
		Body            string
		TimestampMillis int64
	}

	// Fields holds everything the extractor pulls out of a message body.
	Fields struct {
		Amount         int64
		Fee            int64
		Recipient      *string
		Code           *string
		AccountOrPhone *string
		Sender         *string
	}

	// TransactionRecord is the normalized unit persisted by the store.
	TransactionRecord struct {
		ID             int64 // zero until stored
		Category       Category
		Datetime       string
		Amount         int64
		Fee            int64
		Recipient      *string
		Code           *string
		AccountOrPhone *string
		Sender         *string
		RawText        string
	}
)

var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrEmptyDatetime   = errors.New("empty datetime")
	ErrNegativeAmount  = errors.New("negative amount")
	ErrNegativeFee     = errors.New("negative fee")
)

// Categories returns every category in classifier precedence order, Other last.
func Categories() []Category {
	return []Category{
		IncomingMoney,
		BankDeposits,
		BankTransfers,
		AirtimeBillPayments,
		InternetVoiceBundlePurchases,
		CashPowerBillPayments,
		PaymentsToCodeHolders,
		ThirdPartyInitiated,
		AgentWithdrawals,
		Other,
	}
}

// ParseCategory maps a stored label back to its Category.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range Categories() {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", ErrUnknownCategory
}

func (c Category) String() string {
	return string(c)
}

func (c Category) Valid() bool {
	_, err := ParseCategory(string(c))
	return err == nil
}

// Time converts the millisecond epoch timestamp into a time in loc.
func (m RawMessage) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(m.TimestampMillis).In(loc)
}

// FormatDatetime truncates t to second precision in the stored layout.
func FormatDatetime(t time.Time) string {
	return t.Format(DatetimeLayout)
}

// NewTransactionRecord combines a category and extracted fields into a record.
func NewTransactionRecord(cat Category, datetime, rawText string, f Fields) TransactionRecord {
	return TransactionRecord{
		Category:       cat,
		Datetime:       datetime,
		Amount:         f.Amount,
		Fee:            f.Fee,
		Recipient:      f.Recipient,
		Code:           f.Code,
		AccountOrPhone: f.AccountOrPhone,
		Sender:         f.Sender,
		RawText:        rawText,
	}
}

// Fields returns the extracted portion of the record.
func (r TransactionRecord) Fields() Fields {
	return Fields{
		Amount:         r.Amount,
		Fee:            r.Fee,
		Recipient:      r.Recipient,
		Code:           r.Code,
		AccountOrPhone: r.AccountOrPhone,
		Sender:         r.Sender,
	}
}

func (r TransactionRecord) Validate() error {
	if !r.Category.Valid() {
		return ErrUnknownCategory
	}
	if strings.TrimSpace(r.Datetime) == "" {
		return ErrEmptyDatetime
	}
	if r.Amount < 0 {
		return ErrNegativeAmount
	}
	if r.Fee < 0 {
		return ErrNegativeFee
	}
	return nil
}

// StringPtr returns nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
