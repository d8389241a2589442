package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the scalar type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindDate
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	default:
		return "null"
	}
}

// Value is a typed scalar cell: string, number, bool, date, or null.
// The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	t    time.Time
}

// Null returns the null value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Date returns a date value, truncated to UTC.
func Date(t time.Time) Value { return Value{kind: KindDate, t: t.UTC()} }

// Kind returns the kind of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsNumber returns the numeric content. ok is false for non-numbers.
func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// AsString returns the string content. ok is false for non-strings.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// AsBool returns the boolean content. ok is false for non-bools.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsDate returns the date content. ok is false for non-dates.
func (v Value) AsDate() (time.Time, bool) {
	if v.kind != KindDate {
		return time.Time{}, false
	}
	return v.t, true
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool { return v.Compare(o) == 0 }

// Compare orders values deterministically: nulls first, then by kind
// (string < number < bool < date), then by content. This ordering is what
// makes aggregate output byte-stable across runs.
func (v Value) Compare(o Value) int {
	if v.kind != o.kind {
		if v.kind < o.kind {
			return -1
		}
		return 1
	}
	switch v.kind {
	case KindNull:
		return 0
	case KindString:
		return strings.Compare(v.str, o.str)
	case KindNumber:
		switch {
		case v.num < o.num:
			return -1
		case v.num > o.num:
			return 1
		default:
			return 0
		}
	case KindBool:
		switch {
		case v.b == o.b:
			return 0
		case !v.b:
			return -1
		default:
			return 1
		}
	case KindDate:
		return v.t.Compare(o.t)
	}
	return 0
}

// String renders the value for display and CSV output. Whole numbers are
// rendered without a decimal point, dates as RFC 3339 date or timestamp.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		if v.num == math.Trunc(v.num) && math.Abs(v.num) < 1e15 {
			return strconv.FormatFloat(v.num, 'f', 0, 64)
		}
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindDate:
		if v.t.Hour() == 0 && v.t.Minute() == 0 && v.t.Second() == 0 && v.t.Nanosecond() == 0 {
			return v.t.Format("2006-01-02")
		}
		return v.t.Format(time.RFC3339)
	default:
		return ""
	}
}

// encodeKey appends a canonical, unambiguous encoding of the value to sb.
// Used to build grouping keys: two values encode identically iff Equal.
func (v Value) encodeKey(sb *strings.Builder) {
	switch v.kind {
	case KindNull:
		sb.WriteString("n|")
	case KindString:
		fmt.Fprintf(sb, "s%d:%s|", len(v.str), v.str)
	case KindNumber:
		fmt.Fprintf(sb, "f%s|", strconv.FormatFloat(v.num, 'g', -1, 64))
	case KindBool:
		fmt.Fprintf(sb, "b%t|", v.b)
	case KindDate:
		fmt.Fprintf(sb, "d%d|", v.t.UnixNano())
	}
}
