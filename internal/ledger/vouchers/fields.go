package vouchers

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/ledger/shared"
)

// FieldType enumerates the value kinds a voucher-specific header field may hold.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldDecimal FieldType = "decimal"
	FieldDate    FieldType = "date"
	FieldInt     FieldType = "int"
	FieldUUID    FieldType = "uuid"
)

// Field describes one voucher-specific header column.
type Field struct {
	Name   string
	Column string
	Type   FieldType
}

// DateLayout is the wire layout for dates.
const DateLayout = "2006-01-02"

// Coerce converts raw decoded JSON values into typed values for the source's fields.
// Unknown names are rejected; nil values are kept and stored as NULL.
func (s Source) Coerce(raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for name, value := range raw {
		field, ok := s.Field(name)
		if !ok {
			return nil, shared.Validationf("%s: unknown field %q", s.Kind, name)
		}
		if value == nil {
			out[name] = nil
			continue
		}
		typed, err := field.coerce(value)
		if err != nil {
			return nil, shared.Validationf("%s: field %q: %v", s.Kind, name, err)
		}
		out[name] = typed
	}
	return out, nil
}

// SortedFieldNames returns the keys of fields in source declaration order.
func (s Source) SortedFieldNames(fields map[string]any) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	pos := make(map[string]int, len(s.Fields))
	for i, f := range s.Fields {
		pos[f.Name] = i
	}
	sort.Slice(names, func(i, j int) bool { return pos[names[i]] < pos[names[j]] })
	return names
}

func (f Field) coerce(value any) (any, error) {
	switch f.Type {
	case FieldString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", value)
		}
		return s, nil
	case FieldDecimal:
		return toDecimal(value)
	case FieldDate:
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case string:
			return ParseDate(v)
		}
		return nil, fmt.Errorf("expected date string, got %T", value)
	case FieldInt:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("expected integer, got %v", v)
			}
			return int64(v), nil
		case json.Number:
			return v.Int64()
		}
		return nil, fmt.Errorf("expected integer, got %T", value)
	case FieldUUID:
		switch v := value.(type) {
		case uuid.UUID:
			return v, nil
		case string:
			return uuid.Parse(v)
		}
		return nil, fmt.Errorf("expected uuid string, got %T", value)
	}
	return nil, fmt.Errorf("unsupported field type %q", f.Type)
}

func toDecimal(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, nil
	case string:
		return decimal.NewFromString(v)
	case float64:
		return decimal.NewFromFloat(v), nil
	case json.Number:
		return decimal.NewFromString(v.String())
	}
	return decimal.Zero, fmt.Errorf("expected number, got %T", value)
}

// ParseDate accepts a plain date or an RFC3339 timestamp and returns midnight UTC of that day.
func ParseDate(value string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", value)
	}
	return Day(t), nil
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
