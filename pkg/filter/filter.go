// Package filter implements the MongoDB-style query filter AST: a
// recursive sum type over logical combinators and per-field comparison
// operators, an in-memory evaluator, and compilation to the zone-map
// range predicates the read pipeline uses to skip files/row groups. Typed
// and composable rather than a stringly-typed query DSL.
package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// Op is a comparison operator applied to a single field.
type Op string

const (
	OpEq     Op = "$eq"
	OpNe     Op = "$ne"
	OpGt     Op = "$gt"
	OpGte    Op = "$gte"
	OpLt     Op = "$lt"
	OpLte    Op = "$lte"
	OpIn     Op = "$in"
	OpNin    Op = "$nin"
	OpExists Op = "$exists"
	OpRegex  Op = "$regex"
)

// Filter is a recursive boolean expression over Conditions and logical
// combinators. Exactly one of its fields is meaningful per node.
type Filter struct {
	And []Filter
	Or  []Filter
	Not *Filter
	Nor []Filter

	// Condition fields: Field is non-empty when this node is a leaf
	// comparison.
	Field string
	Op    Op
	Value any // for $in/$nin, a []any; for $exists, a bool; for $regex, a string
}

func And(fs ...Filter) Filter { return Filter{And: fs} }
func Or(fs ...Filter) Filter  { return Filter{Or: fs} }
func Nor(fs ...Filter) Filter { return Filter{Nor: fs} }
func Not(f Filter) Filter     { return Filter{Not: &f} }

func Cond(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

func Eq(field string, v any) Filter  { return Cond(field, OpEq, v) }
func Ne(field string, v any) Filter  { return Cond(field, OpNe, v) }
func Gt(field string, v any) Filter  { return Cond(field, OpGt, v) }
func Gte(field string, v any) Filter { return Cond(field, OpGte, v) }
func Lt(field string, v any) Filter  { return Cond(field, OpLt, v) }
func Lte(field string, v any) Filter { return Cond(field, OpLte, v) }

func (f Filter) isLeaf() bool { return f.Field != "" }

// Validate reports any structural problems with f: an empty node, or a
// leaf with an operator that doesn't accept its given value shape.
func Validate(f Filter) error {
	switch {
	case f.isLeaf():
		switch f.Op {
		case OpIn, OpNin:
			if _, ok := f.Value.([]any); !ok {
				return fmt.Errorf("field %q: %s requires a list value", f.Field, f.Op)
			}
		case OpExists:
			if _, ok := f.Value.(bool); !ok {
				return fmt.Errorf("field %q: $exists requires a bool value", f.Field)
			}
		case OpRegex:
			if s, ok := f.Value.(string); !ok {
				return fmt.Errorf("field %q: $regex requires a string pattern", f.Field)
			} else if _, err := regexp.Compile(s); err != nil {
				return fmt.Errorf("field %q: invalid regex: %w", f.Field, err)
			}
		case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
			// any comparable value is accepted
		default:
			return fmt.Errorf("field %q: unknown operator %q", f.Field, f.Op)
		}
		return nil
	case f.And != nil:
		return validateAll(f.And)
	case f.Or != nil:
		return validateAll(f.Or)
	case f.Nor != nil:
		return validateAll(f.Nor)
	case f.Not != nil:
		return Validate(*f.Not)
	default:
		return fmt.Errorf("empty filter node")
	}
}

func validateAll(fs []Filter) error {
	for _, f := range fs {
		if err := Validate(f); err != nil {
			return err
		}
	}
	return nil
}

// Matches evaluates f against a flat row of field values. A leaf on a field
// the row lacks is false, except $exists (which reports absence correctly)
// and $ne/$nin (an absent field equals no value, so they are true).
func Matches(f Filter, row map[string]any) bool {
	switch {
	case f.isLeaf():
		return matchLeaf(f, row)
	case f.And != nil:
		for _, sub := range f.And {
			if !Matches(sub, row) {
				return false
			}
		}
		return true
	case f.Or != nil:
		for _, sub := range f.Or {
			if Matches(sub, row) {
				return true
			}
		}
		return len(f.Or) == 0
	case f.Nor != nil:
		for _, sub := range f.Nor {
			if Matches(sub, row) {
				return false
			}
		}
		return true
	case f.Not != nil:
		return !Matches(*f.Not, row)
	default:
		return true
	}
}

func matchLeaf(f Filter, row map[string]any) bool {
	v, present := row[f.Field]
	switch f.Op {
	case OpExists:
		want, _ := f.Value.(bool)
		return present == want
	case OpEq:
		return present && equal(v, f.Value)
	case OpNe:
		return !present || !equal(v, f.Value)
	case OpGt:
		return present && compare(v, f.Value) > 0
	case OpGte:
		return present && compare(v, f.Value) >= 0
	case OpLt:
		return present && compare(v, f.Value) < 0
	case OpLte:
		return present && compare(v, f.Value) <= 0
	case OpIn:
		if !present {
			return false
		}
		list, _ := f.Value.([]any)
		for _, item := range list {
			if equal(v, item) {
				return true
			}
		}
		return false
	case OpNin:
		if !present {
			return true
		}
		list, _ := f.Value.([]any)
		for _, item := range list {
			if equal(v, item) {
				return false
			}
		}
		return true
	case OpRegex:
		if !present {
			return false
		}
		s, ok := v.(string)
		if !ok {
			return false
		}
		pattern, _ := f.Value.(string)
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(s)
	default:
		return false
	}
}

func equal(a, b any) bool {
	return compareOK(a, b) && compare(a, b) == 0
}

func compareOK(a, b any) bool {
	switch a.(type) {
	case int64, int32, int, float64, float32:
		switch b.(type) {
		case int64, int32, int, float64, float32:
			return true
		}
		return false
	default:
		return fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b)
	}
}

func compare(a, b any) int {
	af, aIsNum := toFloat(a)
	bf, bIsNum := toFloat(b)
	if aIsNum && bIsNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs)
	}
	ab, aok := a.(bool)
	bb, bok := b.(bool)
	if aok && bok {
		if ab == bb {
			return 0
		}
		if !ab {
			return -1
		}
		return 1
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
