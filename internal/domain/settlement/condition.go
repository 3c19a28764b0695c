package settlement

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FieldKind is the value type of a filterable field
type FieldKind int

const (
	KindString FieldKind = iota
	KindTime
	KindDecimal
	KindBool
	KindUUID
)

// Field describes a filterable document field
type Field struct {
	Name   string
	Column string
	Kind   FieldKind
}

// filterableFields is the whitelist of fields callers may filter documents by
var filterableFields = map[string]Field{
	"document_number":     {Name: "document_number", Column: "document_number", Kind: KindString},
	"counterpart_id":      {Name: "counterpart_id", Column: "counterpart_id", Kind: KindUUID},
	"counterpart_name":    {Name: "counterpart_name", Column: "counterpart_name", Kind: KindString},
	"settlement_currency": {Name: "settlement_currency", Column: "settlement_currency", Kind: KindString},
	"document_date":       {Name: "document_date", Column: "document_date", Kind: KindTime},
	"confirmed_at":        {Name: "confirmed_at", Column: "confirmed_at", Kind: KindTime},
	"exported_at":         {Name: "exported_at", Column: "exported_at", Kind: KindTime},
	"exported_by":         {Name: "exported_by", Column: "exported_by", Kind: KindUUID},
	"nominal_amount":      {Name: "nominal_amount", Column: "nominal_amount", Kind: KindDecimal},
	"created_by":          {Name: "created_by", Column: "created_by", Kind: KindUUID},
	"is_domestic":         {Name: "is_domestic", Column: "counterpart_is_domestic", Kind: KindBool},
}

// LookupField returns the filterable field with the given name
func LookupField(name string) (Field, bool) {
	f, ok := filterableFields[name]
	return f, ok
}

// Operator is a condition operator
type Operator string

const (
	OpEqual   Operator = "eq"
	OpIsNull  Operator = "is_null"
	OpNotNull Operator = "not_null"
	OpBetween Operator = "between"
	OpGTE     Operator = "gte"
	OpLTE     Operator = "lte"
)

// Condition is one parsed field condition. Lower/Upper carry typed values
// (string, time.Time, decimal.Decimal, bool or uuid.UUID).
type Condition struct {
	Field Field
	Op    Operator
	Value any
	Lower any
	Upper any
}

// ParseConditions parses a field/value condition map.
//
// Value forms:
//   - "null"  field IS NULL
//   - "!null" field IS NOT NULL
//   - "a,b"   a <= field <= b (either bound may be empty)
//   - other   field = value
//
// Conditions are returned sorted by field name so the resulting query is stable.
func ParseConditions(raw map[string]string) ([]Condition, error) {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	conds := make([]Condition, 0, len(raw))
	for _, name := range names {
		field, ok := LookupField(name)
		if !ok {
			return nil, fmt.Errorf("field %q cannot be filtered", name)
		}
		cond, err := parseCondition(field, strings.TrimSpace(raw[name]))
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	return conds, nil
}

func parseCondition(field Field, raw string) (Condition, error) {
	switch strings.ToLower(raw) {
	case "null":
		return Condition{Field: field, Op: OpIsNull}, nil
	case "!null":
		return Condition{Field: field, Op: OpNotNull}, nil
	}

	if strings.Contains(raw, ",") && field.Kind != KindString {
		parts := strings.SplitN(raw, ",", 2)
		lo, hi := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if lo == "" && hi == "" {
			return Condition{}, fmt.Errorf("field %q: empty range", field.Name)
		}
		cond := Condition{Field: field}
		var err error
		if lo != "" {
			if cond.Lower, err = parseValue(field, lo); err != nil {
				return Condition{}, err
			}
		}
		if hi != "" {
			if cond.Upper, err = parseValue(field, hi); err != nil {
				return Condition{}, err
			}
		}
		switch {
		case lo != "" && hi != "":
			cond.Op = OpBetween
		case lo != "":
			cond.Op = OpGTE
		default:
			cond.Op = OpLTE
		}
		return cond, nil
	}

	value, err := parseValue(field, raw)
	if err != nil {
		return Condition{}, err
	}
	return Condition{Field: field, Op: OpEqual, Value: value}, nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses a time value in one of the accepted layouts
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

func parseValue(field Field, s string) (any, error) {
	switch field.Kind {
	case KindTime:
		t, err := ParseTime(s)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field.Name, err)
		}
		return t, nil
	case KindDecimal:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("field %q: invalid number %q", field.Name, s)
		}
		return d, nil
	case KindBool:
		switch strings.ToLower(s) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return nil, fmt.Errorf("field %q: invalid boolean %q", field.Name, s)
	case KindUUID:
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("field %q: invalid id %q", field.Name, s)
		}
		return id, nil
	default:
		return s, nil
	}
}

// ExportWindow selects documents by export marker timestamp
func ExportWindow(start, end time.Time) Condition {
	field := filterableFields["exported_at"]
	return Condition{Field: field, Op: OpBetween, Lower: start, Upper: end}
}
