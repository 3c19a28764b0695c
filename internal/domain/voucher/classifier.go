package voucher

import (
	"github.com/erp/voucher-export/internal/domain/settlement"
)

// Tag is the classification of a line item
type Tag int

const (
	ForeignPayable Tag = iota
	DomesticRegularPayable
	DomesticAdvancePayable
	ForeignReceivable
	DomesticRegularReceivable
	DomesticAdvanceReceivable
)

// AllTags returns the classification tags in posting order
func AllTags() []Tag {
	return []Tag{
		ForeignPayable,
		DomesticRegularPayable,
		DomesticAdvancePayable,
		ForeignReceivable,
		DomesticRegularReceivable,
		DomesticAdvanceReceivable,
	}
}

var tagNames = [...]string{
	ForeignPayable:            "payable.foreign",
	DomesticRegularPayable:    "payable.domestic_regular",
	DomesticAdvancePayable:    "payable.domestic_advance",
	ForeignReceivable:         "receivable.foreign",
	DomesticRegularReceivable: "receivable.domestic_regular",
	DomesticAdvanceReceivable: "receivable.domestic_advance",
}

// String returns the bucket key of the tag
func (t Tag) String() string {
	if t < 0 || int(t) >= len(tagNames) {
		return "unknown"
	}
	return tagNames[t]
}

// IsPayable reports whether the tag is on the payable side
func (t Tag) IsPayable() bool {
	return t <= DomesticAdvancePayable
}

// CounterpartPolicy decides how a counterpart without a recorded domestic flag is treated
type CounterpartPolicy string

const (
	TreatUnknownAsDomestic CounterpartPolicy = "domestic"
	TreatUnknownAsForeign  CounterpartPolicy = "foreign"
)

// Classifier assigns line items to one of the six classification tags
type Classifier struct {
	unknownCounterpart CounterpartPolicy
}

// NewClassifier creates a classifier. An empty policy treats unknown counterparts as domestic.
func NewClassifier(policy CounterpartPolicy) Classifier {
	if policy != TreatUnknownAsForeign {
		policy = TreatUnknownAsDomestic
	}
	return Classifier{unknownCounterpart: policy}
}

// Classify returns the tag of an item settling the given fee with a counterpart
// whose domestic flag is counterpartDomestic.
func (c Classifier) Classify(fee *settlement.OriginFee, counterpartDomestic *bool) Tag {
	domestic := c.unknownCounterpart != TreatUnknownAsForeign
	if counterpartDomestic != nil {
		domestic = *counterpartDomestic
	}

	income, advance := false, false
	if fee != nil {
		income = fee.IsIncome
		if fee.IsAdvanceFee != nil {
			advance = *fee.IsAdvanceFee
		}
	}

	switch {
	case income && !domestic:
		return ForeignReceivable
	case income && advance:
		return DomesticAdvanceReceivable
	case income:
		return DomesticRegularReceivable
	case !domestic:
		return ForeignPayable
	case advance:
		return DomesticAdvancePayable
	default:
		return DomesticRegularPayable
	}
}
