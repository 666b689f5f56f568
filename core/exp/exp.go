// Package exp builds aggregation expression documents.
//
// Helpers taking a field accept "a.b", "a__b" or an already prefixed "$a.b"
// reference; a string there is always a field name. Helpers taking values
// (Eq, Gt, Concat, ...) pass them through unchanged, so a field reference
// there must already carry the "$" prefix (see Ref).
package exp

import (
	"math"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// DefaultDateFormat is used by DateToString when no format is given.
const DefaultDateFormat = "%Y-%m-%d %H:%M:%S:%L"

// Ref returns the "$field" reference for a field name.
func Ref(field string) string {
	field = strings.TrimSpace(field)
	if strings.HasPrefix(field, "$") {
		return field
	}
	return "$" + dotted(field)
}

// Unref strips a leading "$".
func Unref(field string) string {
	return strings.TrimPrefix(field, "$")
}

func dotted(name string) string {
	if !strings.Contains(name, "__") || strings.HasPrefix(name, "__") || strings.HasSuffix(name, "__") {
		return name
	}
	return strings.ReplaceAll(name, "__", ".")
}

func op(name string, args ...any) bson.M {
	return bson.M{name: bson.A(args)}
}

// Eq is the aggregation form {"$eq": [a, b]}. The comparison helpers below
// take the same two values.
func Eq(a, b any) bson.M { return op("$eq", a, b) }

func Ne(a, b any) bson.M { return op("$ne", a, b) }

// IsTrue compares v with true.
func IsTrue(v any) bson.M { return Eq(v, true) }

func Not(v any) bson.M { return op("$not", v) }

func Gt(a, b any) bson.M { return op("$gt", a, b) }

func Gte(a, b any) bson.M { return op("$gte", a, b) }

func Lt(a, b any) bson.M { return op("$lt", a, b) }

func Lte(a, b any) bson.M { return op("$lte", a, b) }

// Op returns the query form {"$<name>": v}, e.g. Op("gt", 5).
func Op(name string, v any) bson.M {
	if !strings.HasPrefix(name, "$") {
		name = "$" + name
	}
	return bson.M{name: v}
}

// And is true when every argument is.
func And(args ...any) bson.M { return op("$and", args...) }

// Or is true when any argument is.
func Or(args ...any) bson.M { return op("$or", args...) }

// FieldIn matches when field equals any of values.
func FieldIn(field string, values ...any) bson.M {
	ref := Ref(field)
	conds := make(bson.A, len(values))
	for i, v := range values {
		conds[i] = Eq(ref, v)
	}
	return bson.M{"$or": conds}
}

// OptimizedIn returns the cheapest query condition for membership in values.
// A single value becomes a plain equality, or $ne when negative. With
// operatorRequired the single value case still returns an operator document.
func OptimizedIn(values []any, negative, operatorRequired bool) any {
	if len(values) == 1 {
		switch {
		case negative:
			return bson.M{"$ne": values[0]}
		case operatorRequired:
			return bson.M{"$eq": values[0]}
		default:
			return values[0]
		}
	}
	if negative {
		return bson.M{"$nin": bson.A(values)}
	}
	return bson.M{"$in": bson.A(values)}
}

// Multiply multiplies the arguments. String arguments are field names.
func Multiply(args ...any) bson.M {
	return op("$multiply", refs(args)...)
}

// Divide divides a by b. String arguments are field names.
func Divide(a, b any) bson.M {
	return op("$divide", refs([]any{a, b})...)
}

// Sum adds its arguments. String arguments are field names. A single
// argument is passed bare, which makes the result usable as a $group
// accumulator.
func Sum(args ...any) bson.M {
	if len(args) == 1 {
		return bson.M{"$sum": ref(args[0])}
	}
	return op("$sum", refs(args)...)
}

// ref turns a string into a field reference and leaves anything else as is.
func ref(v any) any {
	if s, ok := v.(string); ok {
		return Ref(s)
	}
	return v
}

func refs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = ref(a)
	}
	return out
}

// RoundHalfUp rounds v to digits decimal places with halves rounded away
// from zero: |v| is scaled, 0.5 added and the result truncated, then scaled
// back and given v's sign.
func RoundHalfUp(v any, digits int) bson.M {
	abs := bson.M{"$abs": v}
	sign := bson.M{"$cond": bson.A{Gt(v, 0), 1, -1}}

	var rounded bson.M
	if digits == 0 {
		rounded = bson.M{"$trunc": op("$add", abs, 0.5)}
	} else {
		scale := pow10(digits)
		rounded = op("$divide",
			bson.M{"$trunc": op("$add", op("$multiply", abs, scale), 0.5)},
			scale,
		)
	}
	return op("$multiply", rounded, sign)
}

func pow10(n int) any {
	if n < 0 {
		return math.Pow10(n)
	}
	p := int64(1)
	for i := 0; i < n; i++ {
		p *= 10
	}
	return p
}

// DayStart truncates a date to midnight. A string date is a field name.
func DayStart(date any) bson.M {
	date = ref(date)
	return bson.M{"$dateFromParts": bson.M{
		"year":  bson.M{"$year": date},
		"month": bson.M{"$month": date},
		"day":   bson.M{"$dayOfMonth": date},
	}}
}

// MonthStart truncates a date to the first day of its month.
func MonthStart(date any) bson.M {
	date = ref(date)
	return bson.M{"$dateFromParts": bson.M{
		"year":  bson.M{"$year": date},
		"month": bson.M{"$month": date},
	}}
}

// DateToString formats date, a field name or a date expression. An empty
// format uses DefaultDateFormat.
func DateToString(date any, format string) bson.M {
	if format == "" {
		format = DefaultDateFormat
	}
	return bson.M{"$dateToString": bson.M{"format": format, "date": ref(date)}}
}

// Cond is {"$cond": [if, then, else]}. A string condition is a field name.
func Cond(cond, then, els any) bson.M {
	return op("$cond", ref(cond), then, els)
}

// IfNull returns field, or replacement when it is null or missing. A string
// field is a field name; replacement is a value.
func IfNull(field, replacement any) bson.M {
	return op("$ifNull", ref(field), replacement)
}

// Case is one branch of Switch.
type Case struct {
	When any
	Then any
}

// Switch nests $cond documents so the first matching case wins and
// finalElse is returned when none match. With lastAsFinal the last case's
// Then is used, as a literal, in place of finalElse.
func Switch(cases []Case, lastAsFinal bool, finalElse any) any {
	out := finalElse
	for i := len(cases) - 1; i >= 0; i-- {
		c := cases[i]
		if lastAsFinal && i == len(cases)-1 {
			out = bson.M{"$literal": c.Then}
			continue
		}
		out = op("$cond", c.When, c.Then, out)
	}
	return out
}

// SwitchCompare is Switch where each When is compared against v with
// operator (default "$eq").
func SwitchCompare(v any, cases []Case, operator string, finalElse any) any {
	if operator == "" {
		operator = "$eq"
	}
	cmp := make([]Case, len(cases))
	for i, c := range cases {
		cmp[i] = Case{When: op(operator, v, c.When), Then: c.Then}
	}
	return Switch(cmp, false, finalElse)
}

// FieldExists is true when field holds any value, null included.
func FieldExists(field string) bson.M {
	ref := Ref(field)
	return Or(Eq(ref, nil), Gt(ref, nil))
}

// FieldIsSpecified turns the truthiness of v into a boolean.
func FieldIsSpecified(v any) bson.M {
	return op("$cond", v, true, false)
}

// Literal wraps v so it is never parsed as an expression.
func Literal(v any) bson.M {
	return bson.M{"$literal": v}
}

// SetValue yields v from inside a $project, where a bare 1 or true would
// mean inclusion instead of a value.
func SetValue(v any) bson.M {
	return op("$cond", true, v, "")
}

// Concat joins strings. Field references must carry the "$" prefix.
func Concat(args ...any) bson.M {
	return op("$concat", args...)
}
