package rules

import (
	"math"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name      string
		value     any
		def       OperandDefinition
		wantValue any
		wantErr   bool
	}{
		// text
		{name: "text: string passthrough", value: "hello", def: OperandDefinition{Type: TypeText}, wantValue: "hello"},
		{name: "text: json number", value: json.Number("42"), def: OperandDefinition{Type: TypeText}, wantValue: "42"},
		{name: "text: float64", value: 3.14, def: OperandDefinition{Type: TypeText}, wantValue: "3.14"},
		{name: "text: int", value: 42, def: OperandDefinition{Type: TypeText}, wantValue: "42"},
		{name: "text: bool", value: true, def: OperandDefinition{Type: TypeText}, wantValue: "true"},
		{name: "text: object rejected", value: map[string]any{"a": 1}, def: OperandDefinition{Type: TypeText}, wantErr: true},

		// number
		{name: "number: json number", value: json.Number("25"), def: OperandDefinition{Type: TypeNumber}, wantValue: 25.0},
		{name: "number: string with whitespace", value: "  42  ", def: OperandDefinition{Type: TypeNumber}, wantValue: 42.0},
		{name: "number: int64", value: int64(999), def: OperandDefinition{Type: TypeNumber}, wantValue: 999.0},
		{name: "number: scientific notation", value: "1e10", def: OperandDefinition{Type: TypeNumber}, wantValue: 1e10},
		{name: "number: empty string", value: "   ", def: OperandDefinition{Type: TypeNumber}, wantErr: true},
		{name: "number: invalid string", value: "abc", def: OperandDefinition{Type: TypeNumber}, wantErr: true},
		{name: "number: boolean rejected", value: false, def: OperandDefinition{Type: TypeNumber}, wantErr: true},
		{name: "number: NaN rejected", value: math.NaN(), def: OperandDefinition{Type: TypeNumber}, wantErr: true},

		// numeric
		{name: "numeric: keeps scale", value: json.Number("12.50"), def: OperandDefinition{Type: TypeNumeric}, wantValue: "12.50"},
		{name: "numeric: exponent expanded", value: "1.5e3", def: OperandDefinition{Type: TypeNumeric}, wantValue: "1500"},
		{name: "numeric: beyond float64 precision", value: json.Number("12345678901234567890.123"), def: OperandDefinition{Type: TypeNumeric}, wantValue: "12345678901234567890.123"},
		{name: "numeric: int", value: 7, def: OperandDefinition{Type: TypeNumeric}, wantValue: "7"},
		{name: "numeric: infinity rejected", value: "Infinity", def: OperandDefinition{Type: TypeNumeric}, wantErr: true},
		{name: "numeric: garbage rejected", value: "12,5", def: OperandDefinition{Type: TypeNumeric}, wantErr: true},

		// boolean
		{name: "boolean: true", value: true, def: OperandDefinition{Type: TypeBoolean}, wantValue: true},
		{name: "boolean: string rejected", value: "true", def: OperandDefinition{Type: TypeBoolean}, wantErr: true},
		{name: "boolean: number rejected", value: json.Number("1"), def: OperandDefinition{Type: TypeBoolean}, wantErr: true},

		// select / enum
		{name: "select: declared option", value: "won", def: OperandDefinition{Type: TypeSelect, Options: []string{"won", "lost"}}, wantValue: "won"},
		{name: "select: undeclared option", value: "open", def: OperandDefinition{Type: TypeSelect, Options: []string{"won", "lost"}}, wantErr: true},
		{name: "enum: no options accepts any", value: "DE", def: OperandDefinition{Type: TypeEnum}, wantValue: "DE"},
		{name: "enum: number as option", value: json.Number("3"), def: OperandDefinition{Type: TypeEnum}, wantValue: "3"},
		{name: "multiselect: empty rejected", value: "", def: OperandDefinition{Type: TypeMultiSelect}, wantErr: true},

		// date
		{name: "date: plain date", value: "2024-02-29", def: OperandDefinition{Type: TypeDate}, wantValue: "2024-02-29"},
		{name: "date: timestamp truncated", value: "2024-02-29T23:59:59Z", def: OperandDefinition{Type: TypeDate}, wantValue: "2024-02-29"},
		{name: "date: invalid day", value: "2023-02-29", def: OperandDefinition{Type: TypeDate}, wantErr: true},
		{name: "date: number rejected", value: json.Number("20240229"), def: OperandDefinition{Type: TypeDate}, wantErr: true},

		// datetime
		{name: "datetime: offset normalized", value: "2024-03-01T02:00:00+02:00", def: OperandDefinition{Type: TypeDateTime}, wantValue: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{name: "datetime: space layout", value: "2024-03-01 08:30:00", def: OperandDefinition{Type: TypeDateTime}, wantValue: time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)},
		{name: "datetime: garbage", value: "soon", def: OperandDefinition{Type: TypeDateTime}, wantErr: true},

		// relation_count
		{name: "count: integer", value: json.Number("3"), def: OperandDefinition{Type: TypeRelationCount}, wantValue: int64(3)},
		{name: "count: integral float", value: 3.0, def: OperandDefinition{Type: TypeRelationCount}, wantValue: int64(3)},
		{name: "count: negative", value: -1, def: OperandDefinition{Type: TypeRelationCount}, wantErr: true},
		{name: "count: fraction", value: json.Number("2.5"), def: OperandDefinition{Type: TypeRelationCount}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerce(&tt.def, tt.value, time.UTC)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("coerce() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("coerce() error = %v, want nil", err)
			}
			if gt, ok := got.(time.Time); ok {
				if !gt.Equal(tt.wantValue.(time.Time)) {
					t.Errorf("coerce() = %v, want %v", gt, tt.wantValue)
				}
				return
			}
			if got != tt.wantValue {
				t.Errorf("coerce() = %#v, want %#v", got, tt.wantValue)
			}
		})
	}
}

func TestCoerceDateTime_DateOnlyInLocation(t *testing.T) {
	plus2 := time.FixedZone("UTC+2", 2*60*60)
	got, dateOnly, err := coerceDateTime("2024-03-01", plus2)
	if err != nil {
		t.Fatalf("coerceDateTime() error = %v", err)
	}
	if !dateOnly {
		t.Error("dateOnly = false, want true")
	}
	if want := time.Date(2024, 2, 29, 22, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("coerceDateTime() = %v, want %v", got.UTC(), want)
	}
}

func TestShapeValue(t *testing.T) {
	ops := DefaultOperators()
	spec := func(key string) OperatorSpec {
		s, err := ops.Resolve(key)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", key, err)
		}
		return s
	}

	tests := []struct {
		name    string
		op      string
		value   any
		want    any
		wantErr bool
	}{
		{name: "no-value ignores input", op: "is_null", value: []any{1, 2}, want: nil},
		{name: "scalar", op: "equal", value: "x", want: "x"},
		{name: "scalar nil", op: "equal", value: nil, wantErr: true},
		{name: "pair", op: "between", value: []any{1, 2}, want: []any{1, 2}},
		{name: "pair from typed slice", op: "between", value: []int{1, 2}, want: []any{1, 2}},
		{name: "pair with nested array", op: "between", value: []any{1, []any{2}}, wantErr: true},
		{name: "pair too long", op: "not_between", value: []any{1, 2, 3}, wantErr: true},
		{name: "list", op: "in", value: []string{"a"}, want: []any{"a"}},
		{name: "list scalar", op: "in", value: "a", wantErr: true},
		{name: "list with null", op: "not_in", value: []any{"a", nil}, wantErr: true},
		{name: "days", op: "in_past", value: json.Number("7"), want: 7},
		{name: "days fraction", op: "in_next", value: json.Number("1.5"), wantErr: true},
		{name: "days negative", op: "in_next", value: -3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := shapeValue(spec(tt.op), tt.value, 3)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("shapeValue() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("shapeValue() error = %v", err)
			}
			if !equalValues(got, tt.want) {
				t.Errorf("shapeValue() = %#v, want %#v", got, tt.want)
			}
		})
	}

	if _, err := shapeValue(spec("in"), []any{1, 2, 3, 4}, 3); err == nil {
		t.Error("shapeValue() with 4 values and limit 3: want error")
	}
}

func equalValues(a, b any) bool {
	la, okA := a.([]any)
	lb, okB := b.([]any)
	if okA != okB {
		return false
	}
	if !okA {
		return a == b
	}
	if len(la) != len(lb) {
		return false
	}
	for i := range la {
		if la[i] != lb[i] {
			return false
		}
	}
	return true
}
