// internal/rules/coercion.go
package rules

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/goccy/go-json"
)

/*
 * Value shape checks and type coercion.
 *
 * Client values arrive as decoded JSON (json.Number for numbers, []any for
 * arrays) or as Go values from in-process callers. shapeValue enforces the
 * operator's arity; coerce converts each scalar into a bind value for the
 * operand type.
 *
 * Type modes:
 *   - text: lenient, any scalar becomes its string form
 *   - number: float64; numeric strings are trimmed and parsed
 *   - numeric: exact decimal via apd, bound as its plain string form
 *   - boolean: strict, JSON bool only (no "true" vs 1 ambiguity)
 *   - select/enum/multiselect: strings, checked against declared options
 *   - date: "YYYY-MM-DD" string in the application timezone
 *   - datetime: instant normalized to UTC; date-only input is flagged so
 *     callers can expand it to whole days
 *   - relation_count: non-negative integer
 *
 * Errors returned here carry only the reason; the compiler wraps them in
 * *types.InvalidValueShapeError with the operand and operator.
 */

const dateLayout = "2006-01-02"

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// shapeValue checks v against the operator arity and returns it normalized:
// nil for ArityNone, the scalar for ArityScalar, []any for pairs and lists,
// int for day counts.
func shapeValue(spec OperatorSpec, v any, maxInValues int) (any, error) {
	switch spec.Arity {
	case ArityNone:
		return nil, nil

	case ArityScalar:
		if err := requireScalar(v); err != nil {
			return nil, err
		}
		return v, nil

	case ArityPair:
		list, ok := asList(v)
		if !ok || len(list) != 2 {
			return nil, fmt.Errorf("requires %s", spec.Arity)
		}
		for _, elem := range list {
			if err := requireScalar(elem); err != nil {
				return nil, fmt.Errorf("bound: %w", err)
			}
		}
		return list, nil

	case ArityList:
		list, ok := asList(v)
		if !ok || len(list) == 0 {
			return nil, fmt.Errorf("requires %s", spec.Arity)
		}
		if maxInValues > 0 && len(list) > maxInValues {
			return nil, fmt.Errorf("list has %d values, limit is %d", len(list), maxInValues)
		}
		for _, elem := range list {
			if err := requireScalar(elem); err != nil {
				return nil, fmt.Errorf("list element: %w", err)
			}
		}
		return list, nil

	case ArityDays:
		n, err := coerceInt(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("requires %s", spec.Arity)
		}
		return int(n), nil
	}
	return nil, fmt.Errorf("unsupported arity %d", spec.Arity)
}

func requireScalar(v any) error {
	if v == nil {
		return errors.New("value is required")
	}
	if _, isList := asList(v); isList {
		return errors.New("expected a single value, got an array")
	}
	if _, isMap := v.(map[string]any); isMap {
		return errors.New("expected a single value, got an object")
	}
	return nil
}

// asList accepts []any from JSON decoding and typed slices from Go callers.
func asList(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// coerce converts a scalar into the bind value for def's type.
func coerce(def *OperandDefinition, v any, loc *time.Location) (any, error) {
	switch def.Type {
	case TypeText:
		return coerceText(v)
	case TypeNumber:
		return coerceNumber(v)
	case TypeNumeric:
		return coerceDecimal(v)
	case TypeBoolean, TypeRelationExists:
		return coerceBoolean(v)
	case TypeSelect, TypeEnum, TypeMultiSelect:
		return coerceChoice(def, v)
	case TypeDate:
		return coerceDate(v, loc)
	case TypeDateTime:
		t, _, err := coerceDateTime(v, loc)
		return t, err
	case TypeRelationCount:
		n, err := coerceInt(v)
		if err != nil || n < 0 {
			return nil, errors.New("expected a non-negative integer")
		}
		return n, nil
	default:
		return nil, fmt.Errorf("no coercion for type %q", def.Type)
	}
}

// coerceText converts all scalars to their string representation.
func coerceText(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return nil, fmt.Errorf("expected text, got %T", v)
	}
}

// coerceNumber converts to float64. Booleans and non-numeric strings fail.
func coerceNumber(v any) (any, error) {
	var (
		f   float64
		err error
	)
	switch x := v.(type) {
	case json.Number:
		f, err = x.Float64()
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case string:
		// Whitespace-only strings are not numbers.
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, errors.New("expected a number, got an empty string")
		}
		f, err = strconv.ParseFloat(s, 64)
	default:
		return nil, fmt.Errorf("expected a number, got %T", v)
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("expected a number, got %v", v)
	}
	return f, nil
}

// coerceDecimal parses an exact decimal and returns its plain string form.
func coerceDecimal(v any) (any, error) {
	var (
		d   *apd.Decimal
		err error
	)
	switch x := v.(type) {
	case json.Number:
		d, _, err = apd.NewFromString(x.String())
	case string:
		d, _, err = apd.NewFromString(strings.TrimSpace(x))
	case float64:
		d = new(apd.Decimal)
		_, err = d.SetFloat64(x)
	case int:
		d = apd.New(int64(x), 0)
	case int64:
		d = apd.New(x, 0)
	case *apd.Decimal:
		d = x
	default:
		return nil, fmt.Errorf("expected a decimal, got %T", v)
	}
	if err != nil || d.Form != apd.Finite {
		return nil, fmt.Errorf("expected a decimal, got %v", v)
	}
	return d.Text('f'), nil
}

// coerceBoolean accepts JSON booleans only.
func coerceBoolean(v any) (any, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("expected a boolean, got %T", v)
	}
	return b, nil
}

func coerceChoice(def *OperandDefinition, v any) (any, error) {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case json.Number:
		s = x.String()
	default:
		return nil, fmt.Errorf("expected an option value, got %T", v)
	}
	if !def.allowsOption(s) {
		return nil, fmt.Errorf("%q is not one of the declared options", s)
	}
	if def.Type == TypeMultiSelect && (s == "" || strings.Contains(s, multiSelectSep)) {
		return nil, fmt.Errorf("%q is not a valid multiselect value", s)
	}
	return s, nil
}

// coerceDate returns a "YYYY-MM-DD" string. Timestamps are converted into
// loc before truncation.
func coerceDate(v any, loc *time.Location) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected a date string, got %T", v)
	}
	s = strings.TrimSpace(s)
	if d, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return d.Format(dateLayout), nil
	}
	t, _, err := coerceDateTime(s, loc)
	if err != nil {
		return nil, fmt.Errorf("expected a date, got %q", s)
	}
	return t.In(loc).Format(dateLayout), nil
}

// coerceDateTime parses an instant. Values without a zone are read in loc.
// dateOnly reports a bare "YYYY-MM-DD", returned as local midnight.
func coerceDateTime(v any, loc *time.Location) (t time.Time, dateOnly bool, err error) {
	if tv, ok := v.(time.Time); ok {
		return tv.UTC(), false, nil
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false, fmt.Errorf("expected a datetime string, got %T", v)
	}
	s = strings.TrimSpace(s)
	if d, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return d, true, nil
	}
	for _, layout := range dateTimeLayouts {
		if parsed, err := time.ParseInLocation(layout, s, loc); err == nil {
			return parsed.UTC(), false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("expected a datetime, got %q", s)
}

// coerceInt accepts integral numbers only.
func coerceInt(v any) (int64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Int64()
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if x != math.Trunc(x) || math.Abs(x) > 1<<53 {
			return 0, fmt.Errorf("expected an integer, got %v", x)
		}
		return int64(x), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}
