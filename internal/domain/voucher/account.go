package voucher

import (
	"fmt"
)

// TagAccounts holds the ledger accounts of one classification bucket.
// Settlement is the receivable or payable account, Recognition the revenue or cost
// account used by invoices and requisitions.
type TagAccounts struct {
	Settlement  string `yaml:"settlement"`
	Recognition string `yaml:"recognition"`
}

// AccountPlan maps buckets to ledger account codes
type AccountPlan struct {
	Tags           map[string]TagAccounts `yaml:"tags"`
	ExchangeLoss   string                 `yaml:"exchange_loss"`
	ServiceFee     string                 `yaml:"service_fee"`
	PrepaidAdvance string                 `yaml:"prepaid_advance"`
	AdvanceReceipt string                 `yaml:"advance_receipt"`
	DefaultCash    string                 `yaml:"default_cash"`
}

// DefaultAccountPlan returns the built-in chart-of-accounts mapping
func DefaultAccountPlan() AccountPlan {
	return AccountPlan{
		Tags: map[string]TagAccounts{
			ForeignPayable.String():            {Settlement: "2202.02", Recognition: "6401.02"},
			DomesticRegularPayable.String():    {Settlement: "2202.01", Recognition: "6401.01"},
			DomesticAdvancePayable.String():    {Settlement: "2241.01", Recognition: "1221.01"},
			ForeignReceivable.String():         {Settlement: "1122.02", Recognition: "6001.02"},
			DomesticRegularReceivable.String(): {Settlement: "1122.01", Recognition: "6001.01"},
			DomesticAdvanceReceivable.String(): {Settlement: "1221.01", Recognition: "2241.01"},
		},
		ExchangeLoss:   "6603.02",
		ServiceFee:     "6603.01",
		PrepaidAdvance: "1123",
		AdvanceReceipt: "2203",
		DefaultCash:    "1002",
	}
}

// For returns the accounts of a classification tag
func (p AccountPlan) For(tag Tag) TagAccounts {
	return p.Tags[tag.String()]
}

// Merge returns a copy of p with every non-empty account of override applied
func (p AccountPlan) Merge(override AccountPlan) AccountPlan {
	merged := p
	merged.Tags = make(map[string]TagAccounts, len(p.Tags))
	for k, v := range p.Tags {
		merged.Tags[k] = v
	}
	for k, v := range override.Tags {
		cur := merged.Tags[k]
		if v.Settlement != "" {
			cur.Settlement = v.Settlement
		}
		if v.Recognition != "" {
			cur.Recognition = v.Recognition
		}
		merged.Tags[k] = cur
	}
	if override.ExchangeLoss != "" {
		merged.ExchangeLoss = override.ExchangeLoss
	}
	if override.ServiceFee != "" {
		merged.ServiceFee = override.ServiceFee
	}
	if override.PrepaidAdvance != "" {
		merged.PrepaidAdvance = override.PrepaidAdvance
	}
	if override.AdvanceReceipt != "" {
		merged.AdvanceReceipt = override.AdvanceReceipt
	}
	if override.DefaultCash != "" {
		merged.DefaultCash = override.DefaultCash
	}
	return merged
}

// Validate checks that every bucket has its accounts
func (p AccountPlan) Validate() error {
	for _, tag := range AllTags() {
		acc := p.For(tag)
		if acc.Settlement == "" || acc.Recognition == "" {
			return fmt.Errorf("account plan: bucket %s is missing an account", tag)
		}
	}
	switch "" {
	case p.ExchangeLoss, p.ServiceFee, p.PrepaidAdvance, p.AdvanceReceipt, p.DefaultCash:
		return fmt.Errorf("account plan: exchange loss, service fee, advance and cash accounts are required")
	}
	for k := range p.Tags {
		if !isKnownTag(k) {
			return fmt.Errorf("account plan: unknown bucket %q", k)
		}
	}
	return nil
}

func isKnownTag(key string) bool {
	for _, tag := range AllTags() {
		if tag.String() == key {
			return true
		}
	}
	return false
}
