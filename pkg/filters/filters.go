// Package filters evaluates declarative filter rules against generic
// documents (nested map[string]any values as produced by encoding/json).
//
// A rule is either a simple comparison:
//
//	{"field": "data.natural_hair_colour", "op": "eq", "value": "Brown"}
//
// or an existential match over a list of sub-documents:
//
//	{"any": {"field": "data.drug_use", "where": [
//	    {"field": "drug_name", "op": "eq", "value": "Cocaine"},
//	    {"field": "status", "op": "eq", "value": "used"}]}}
package filters

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/forensic-testing/fts-intake/pkg/jsonutil"
)

// Supported comparison operators.
const (
	OpEq       = "eq"
	OpNeq      = "neq"
	OpContains = "contains"
	OpIn       = "in"
	OpGte      = "gte"
	OpLte      = "lte"
)

var (
	ErrUnknownOperator = errors.New("unknown operator")
	ErrIncomparable    = errors.New("values are not comparable")
	ErrInvalidRule     = errors.New("invalid rule")
)

// Rule is a simple comparison or, when Any is set, an existential match.
type Rule struct {
	Field string   `json:"field,omitempty"`
	Op    string   `json:"op,omitempty"`
	Value any      `json:"value,omitempty"`
	Any   *AnyRule `json:"any,omitempty"`
}

// AnyRule matches when at least one element of the list at Field satisfies
// every rule in Where. Where paths are relative to the element.
type AnyRule struct {
	Field string `json:"field"`
	Where []Rule `json:"where"`
}

// ParseRules decodes a JSON array of rules and validates it.
func ParseRules(raw []byte) ([]Rule, error) {
	var rules []Rule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if err := Validate(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// Validate checks rule shape and operators without evaluating anything.
func Validate(rules []Rule) error {
	for i, rule := range rules {
		if rule.Any != nil {
			if rule.Any.Field == "" {
				return fmt.Errorf("%w: rule %d: any.field is required", ErrInvalidRule, i)
			}
			if err := Validate(rule.Any.Where); err != nil {
				return fmt.Errorf("rule %d: %w", i, err)
			}
			continue
		}
		if rule.Field == "" {
			return fmt.Errorf("%w: rule %d: field is required", ErrInvalidRule, i)
		}
		if !isKnownOp(rule.op()) {
			return fmt.Errorf("%w: %q", ErrUnknownOperator, rule.Op)
		}
	}
	return nil
}

func (r Rule) op() string {
	if r.Op == "" {
		return OpEq
	}
	return r.Op
}

func isKnownOp(op string) bool {
	switch op {
	case OpEq, OpNeq, OpContains, OpIn, OpGte, OpLte:
		return true
	}
	return false
}

// GetPath resolves a dot-separated path through nested objects.
// Any missing segment, or a segment applied to a non-object, yields nil.
func GetPath(obj any, path string) any {
	cur := obj
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

// MatchOp applies op to the resolved value and the rule's expected value.
func MatchOp(value any, op string, expected any) (bool, error) {
	switch op {
	case OpEq, "":
		return equal(value, expected), nil
	case OpNeq:
		return !equal(value, expected), nil
	case OpContains:
		if value == nil {
			return false, nil
		}
		return strings.Contains(
			strings.ToLower(jsonutil.StringValue(value)),
			strings.ToLower(jsonutil.StringValue(expected)),
		), nil
	case OpIn:
		return in(value, expected)
	case OpGte:
		c, err := compare(value, expected)
		return c >= 0, err
	case OpLte:
		c, err := compare(value, expected)
		return c <= 0, err
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
	}
}

// MatchRule evaluates a single rule against a document.
func MatchRule(doc any, rule Rule) (bool, error) {
	if rule.Any != nil {
		items, ok := GetPath(doc, rule.Any.Field).([]any)
		if !ok {
			return false, nil
		}
		for _, item := range items {
			ok, err := MatchAll(item, rule.Any.Where)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	return MatchOp(GetPath(doc, rule.Field), rule.op(), rule.Value)
}

// MatchAll reports whether doc satisfies every rule. An empty rule set matches.
func MatchAll(doc any, rules []Rule) (bool, error) {
	for _, rule := range rules {
		ok, err := MatchRule(doc, rule)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// Apply returns the documents matching all rules, preserving input order.
func Apply(docs []map[string]any, rules []Rule) ([]map[string]any, error) {
	if len(rules) == 0 {
		return docs, nil
	}
	out := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		ok, err := MatchAll(doc, rules)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func equal(a, b any) bool {
	if af, ok := number(a); ok {
		if bf, ok := number(b); ok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func in(value, expected any) (bool, error) {
	switch exp := expected.(type) {
	case nil:
		return false, nil
	case []any:
		for _, item := range exp {
			if equal(value, item) {
				return true, nil
			}
		}
		return false, nil
	case []string:
		for _, item := range exp {
			if equal(value, item) {
				return true, nil
			}
		}
		return false, nil
	case string:
		if value == nil {
			return false, nil
		}
		return strings.Contains(exp, jsonutil.StringValue(value)), nil
	default:
		return false, fmt.Errorf("%w: 'in' expects a list or string, got %T", ErrIncomparable, expected)
	}
}

func compare(a, b any) (int, error) {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs), nil
		}
	}
	if af, ok := number(a); ok {
		if bf, ok := number(b); ok {
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %T and %T", ErrIncomparable, a, b)
}

// number excludes booleans, which JSON treats as a distinct type.
func number(v any) (float64, bool) {
	if _, isBool := v.(bool); isBool {
		return 0, false
	}
	return jsonutil.ToFloat(v)
}
