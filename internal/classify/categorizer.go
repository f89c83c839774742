// Package classify assigns exactly one category to a mobile-money message
// body using a fixed, ordered list of keyword heuristics.
//
// The rules overlap lexically, so their order is part of the behaviour:
// the first rule whose predicate matches wins.
package classify

import (
	"strings"

	"smsledger/internal/audit"
	"smsledger/internal/core"
)

// ExclusionKeywords mark transit SMS from operators that are not real money
// movements. They are checked before any rule.
var ExclusionKeywords = []string{"onafriq mauritius", "rwandaltd", "mtn data push"}

// Rule is one step of the chain. Match receives the lower-cased body.
type Rule struct {
	Name     string
	Category core.Category
	Match    func(body string) bool
}

// Decision explains how a body was classified.
type Decision struct {
	Category core.Category
	Rule     string // empty when no rule matched
	Reason   string // audit reason, empty when a rule matched
}

// Categorizer evaluates the rule chain in order.
type Categorizer struct {
	exclusions []string
	rules      []Rule
	sink       audit.Sink
}

// New returns a Categorizer with the default rule chain. A nil sink discards
// audit entries.
func New(sink audit.Sink) *Categorizer {
	return &Categorizer{
		exclusions: ExclusionKeywords,
		rules:      DefaultRules(),
		sink:       audit.OrDiscard(sink),
	}
}

// DefaultRules returns the rule chain in precedence order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "incoming",
			Category: core.IncomingMoney,
			Match:    containsAny("you have received", "credited to your"),
		},
		{
			Name:     "bank_deposit",
			Category: core.BankDeposits,
			Match:    containsAny("bank deposit"),
		},
		{
			Name:     "transferred",
			Category: core.BankTransfers,
			Match:    containsAny("transferred"),
		},
		{
			Name:     "airtime",
			Category: core.AirtimeBillPayments,
			Match:    containsAny("airtime"),
		},
		{
			Name:     "bundle",
			Category: core.InternetVoiceBundlePurchases,
			Match:    containsAny("bundle", "bundles", "packs", "mb", "gb", "internet", "voice", "data"),
		},
		{
			Name:     "cash_power",
			Category: core.CashPowerBillPayments,
			Match: func(body string) bool {
				if strings.Contains(body, "cash power") {
					return true
				}
				return strings.Contains(body, "token") &&
					!containsAny("mb", "gb", "bundle", "data", "internet", "airtime")(body)
			},
		},
		{
			Name:     "code_holder_payment",
			Category: core.PaymentsToCodeHolders,
			Match:    containsAny("your payment of"),
		},
		{
			Name:     "third_party",
			Category: core.ThirdPartyInitiated,
			Match: func(body string) bool {
				return strings.Contains(body, "from") && containsAny("received", "credited")(body)
			},
		},
		{
			Name:     "agent_withdrawal",
			Category: core.AgentWithdrawals,
			Match:    containsAny("withdrawn", "withdrawal", "agent"),
		},
	}
}

// Categorize returns the category for body. It never fails; unmatched and
// excluded messages are audited and classified as Other.
func (c *Categorizer) Categorize(body string) core.Category {
	d := c.Decide(body)
	if d.Reason != "" {
		c.sink.Record(audit.Entry{Reason: d.Reason, Message: body})
	}
	return d.Category
}

// Decide runs the chain without recording anything.
func (c *Categorizer) Decide(body string) Decision {
	lower := strings.ToLower(body)

	if containsAny(c.exclusions...)(lower) {
		return Decision{Category: core.Other, Reason: audit.ReasonExclusion}
	}

	for _, r := range c.rules {
		if r.Match(lower) {
			return Decision{Category: r.Category, Rule: r.Name}
		}
	}

	return Decision{Category: core.Other, Reason: audit.ReasonNoCategory}
}

// Rules returns a copy of the chain in evaluation order.
func (c *Categorizer) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

func containsAny(needles ...string) func(string) bool {
	return func(s string) bool {
		for _, n := range needles {
			if strings.Contains(s, n) {
				return true
			}
		}
		return false
	}
}
