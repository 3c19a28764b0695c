package voucher

import (
	"testing"

	"github.com/erp/voucher-export/internal/domain/settlement"
	"github.com/erp/voucher-export/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool { return &b }

func TestClassifier_Classify(t *testing.T) {
	c := NewClassifier("")

	tests := []struct {
		name     string
		income   bool
		advance  *bool
		domestic *bool
		want     Tag
	}{
		{"foreign expense", false, nil, boolPtr(false), ForeignPayable},
		{"foreign expense ignores advance flag", false, boolPtr(true), boolPtr(false), ForeignPayable},
		{"domestic regular expense", false, boolPtr(false), boolPtr(true), DomesticRegularPayable},
		{"domestic advance expense", false, boolPtr(true), boolPtr(true), DomesticAdvancePayable},
		{"foreign income", true, boolPtr(true), boolPtr(false), ForeignReceivable},
		{"domestic regular income", true, nil, boolPtr(true), DomesticRegularReceivable},
		{"domestic advance income", true, boolPtr(true), boolPtr(true), DomesticAdvanceReceivable},
		{"unset counterpart flag is domestic", false, boolPtr(true), nil, DomesticAdvancePayable},
		{"unset flags are domestic regular", true, nil, nil, DomesticRegularReceivable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee := &settlement.OriginFee{IsIncome: tt.income, IsAdvanceFee: tt.advance}
			assert.Equal(t, tt.want, c.Classify(fee, tt.domestic))
		})
	}
}

func TestClassifier_UnknownCounterpartPolicy(t *testing.T) {
	fee := &settlement.OriginFee{IsIncome: false, IsAdvanceFee: boolPtr(true)}

	assert.Equal(t, DomesticAdvancePayable, NewClassifier(TreatUnknownAsDomestic).Classify(fee, nil))
	assert.Equal(t, ForeignPayable, NewClassifier(TreatUnknownAsForeign).Classify(fee, nil))
	// a recorded flag always wins over the policy
	assert.Equal(t, DomesticAdvancePayable, NewClassifier(TreatUnknownAsForeign).Classify(fee, boolPtr(true)))
}

func TestClassifier_MissingFee(t *testing.T) {
	assert.Equal(t, DomesticRegularPayable, NewClassifier("").Classify(nil, nil))
}

func TestTag(t *testing.T) {
	assert.Equal(t, "payable.domestic_advance", DomesticAdvancePayable.String())
	assert.True(t, ForeignPayable.IsPayable())
	assert.False(t, ForeignReceivable.IsPayable())
	assert.Equal(t, "unknown", Tag(42).String())
	assert.Len(t, AllTags(), 6)
}

func TestToBase(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		rate   string
		base   valueobject.Currency
		want   string
	}{
		{"identity", "1000", "1", valueobject.CNY, "1000"},
		{"half away from zero", "0.125", "1", valueobject.CNY, "0.13"},
		{"negative half away from zero", "-0.125", "1", valueobject.CNY, "-0.13"},
		{"foreign rate", "100", "7.12345", valueobject.CNY, "712.35"},
		{"yen has no minor units", "99.5", "1", valueobject.JPY, "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToBase(decimal.RequireFromString(tt.amount), decimal.RequireFromString(tt.rate), tt.base)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}
