// Package extract pulls amounts, fees and counterparties out of a classified
// message body with regular expressions.
package extract

import (
	"regexp"
	"strings"
	"sync"

	"smsledger/internal/audit"
	"smsledger/internal/core"
)

var (
	amountPattern = regexp.MustCompile(`([0-9,]+)\s*RWF`)
	feePattern    = regexp.MustCompile(`Fee(?: was:?|:)\s*([0-9][0-9,]*)`)
)

// Rule fills category-specific fields when Pattern matches the body.
// Assign receives the submatches of the first match.
type Rule struct {
	Name     string
	Category core.Category
	Pattern  *regexp.Regexp
	Assign   func(m []string, f *core.Fields)
}

func (r Rule) apply(body string, f *core.Fields) bool {
	m := r.Pattern.FindStringSubmatch(body)
	if m == nil {
		return false
	}
	r.Assign(m, f)
	return true
}

// DefaultRules returns the built-in counterparty rules.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "code_holder",
			Category: core.PaymentsToCodeHolders,
			Pattern:  regexp.MustCompile(`payment of .*? RWF to (.+?) (\d+)`),
			Assign: func(m []string, f *core.Fields) {
				f.Recipient = core.StringPtr(m[1])
				f.Code = core.StringPtr(m[2])
			},
		},
		{
			Name:     "bank_transfer",
			Category: core.BankTransfers,
			Pattern:  regexp.MustCompile(`transferred to (.+?) \((\d+)\)`),
			Assign: func(m []string, f *core.Fields) {
				f.Recipient = core.StringPtr(m[1])
				f.AccountOrPhone = core.StringPtr(m[2])
			},
		},
		{
			Name:     "incoming_sender",
			Category: core.IncomingMoney,
			Pattern:  regexp.MustCompile(`from\s+(.+?)\s+\(\*+\d+\)`),
			Assign: func(m []string, f *core.Fields) {
				f.Sender = core.StringPtr(m[1])
			},
		},
	}
}

// Extractor applies the amount and fee patterns to every body and the
// registered rules for the body's category.
type Extractor struct {
	mu    sync.RWMutex
	rules map[core.Category][]Rule
	sink  audit.Sink
}

// New returns an Extractor loaded with DefaultRules. A nil sink discards
// audit entries.
func New(sink audit.Sink) *Extractor {
	e := &Extractor{
		rules: make(map[core.Category][]Rule),
		sink:  audit.OrDiscard(sink),
	}
	for _, r := range DefaultRules() {
		e.Register(r)
	}
	return e
}

// Register adds a rule. Rules for the same category run in registration
// order and the first one that matches wins.
func (e *Extractor) Register(r Rule) {
	if r.Pattern == nil || r.Assign == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[r.Category] = append(e.rules[r.Category], r)
}

// Extract never fails. A missing or unusable amount yields 0 and an
// "Amount not found" audit entry; a missing fee yields 0 silently.
func (e *Extractor) Extract(body string, cat core.Category) core.Fields {
	var f core.Fields

	amount, ok := Amount(body)
	if !ok {
		e.sink.Record(audit.Entry{Reason: audit.ReasonAmountNotFound, Message: body})
	}
	f.Amount = amount
	f.Fee = Fee(body)

	e.mu.RLock()
	rules := e.rules[cat]
	e.mu.RUnlock()

	for _, r := range rules {
		if r.apply(body, &f) {
			break
		}
	}
	return f
}

// Amount returns the first "<digits> RWF" figure in body.
func Amount(body string) (int64, bool) {
	m := amountPattern.FindStringSubmatch(body)
	if m == nil {
		return 0, false
	}
	v, err := core.ParseAmount(m[1])
	if err != nil {
		return 0, false
	}
	return v, true
}

// Fee returns the figure following "Fee was" or "Fee:", or 0.
func Fee(body string) int64 {
	m := feePattern.FindStringSubmatch(body)
	if m == nil {
		return 0
	}
	v, err := core.ParseAmount(strings.TrimRight(m[1], ","))
	if err != nil {
		return 0
	}
	return v
}
