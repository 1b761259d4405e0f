package engine

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"select-plus/internal/instrument"
	"select-plus/internal/metadata"
)

// RuleInput is what before_write rules see of a submission. Selections holds
// the submitted keys of every SelectPlus attribute in the body, in order.
type RuleInput struct {
	Record     map[string]any
	Old        map[string]any
	Selections map[string][]any
	IsCreate   bool
}

func (in RuleInput) action() string {
	if in.IsCreate {
		return "create"
	}
	return "update"
}

// env is the expression environment: record, old, selections and action.
func (in RuleInput) env() map[string]any {
	selections := make(map[string]any, len(in.Selections))
	for attr, keys := range in.Selections {
		selections[attr] = keys
	}
	return map[string]any{
		"record":     in.Record,
		"old":        in.Old,
		"selections": selections,
		"action":     in.action(),
	}
}

// EvaluateRules runs the active rules for an entity/hook against the
// submission. Field rules run before expression rules; a failing rule marked
// stop_on_fail ends evaluation.
func EvaluateRules(ctx context.Context, reg *metadata.Registry, entityName, hook string, in RuleInput) []ErrorDetail {
	_, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "rules", "rules.evaluate")
	defer span.End()
	span.SetEntity(entityName, "")

	rules := reg.GetRulesForEntity(entityName, hook)
	if len(rules) == 0 {
		span.SetStatus("ok")
		return nil
	}

	var env map[string]any
	var errs []ErrorDetail
	for _, kind := range []string{"field", "expression"} {
		for _, r := range rules {
			if r.Type != kind {
				continue
			}
			var detail *ErrorDetail
			if kind == "field" {
				detail = EvaluateFieldRule(r, in)
			} else {
				if env == nil {
					env = in.env()
				}
				detail = EvaluateExpressionRule(r, env)
			}
			if detail == nil {
				continue
			}
			errs = append(errs, *detail)
			if r.Definition.StopOnFail {
				span.SetStatus("error")
				return errs
			}
		}
	}

	if len(errs) > 0 {
		span.SetStatus("error")
	} else {
		span.SetStatus("ok")
	}
	return errs
}

// fieldCheck reports whether val passes the rule with the given argument.
// ok is false when the check does not apply to the value's type.
type fieldCheck func(val, arg any) (pass, ok bool)

var fieldChecks = map[string]fieldCheck{
	"min":            numberCheck(func(n, limit float64) bool { return n >= limit }),
	"max":            numberCheck(func(n, limit float64) bool { return n <= limit }),
	"min_length":     lengthCheck(func(n, limit int) bool { return n >= limit }),
	"max_length":     lengthCheck(func(n, limit int) bool { return n <= limit }),
	"min_selections": countCheck(func(n, limit int) bool { return n >= limit }),
	"max_selections": countCheck(func(n, limit int) bool { return n <= limit }),
	"pattern": func(val, arg any) (bool, bool) {
		s, ok := val.(string)
		pattern, isString := arg.(string)
		if !ok || !isString {
			return false, false
		}
		matched, err := regexp.MatchString(pattern, s)
		return err == nil && matched, true
	},
	"in": func(val, arg any) (bool, bool) {
		allowed, ok := arg.([]any)
		if !ok {
			return false, false
		}
		for _, a := range allowed {
			if fmt.Sprint(a) == fmt.Sprint(val) {
				return true, true
			}
		}
		return false, true
	},
}

func numberCheck(cmp func(n, limit float64) bool) fieldCheck {
	return func(val, arg any) (bool, bool) {
		n, ok := toFloat64(val)
		limit, isNum := toFloat64(arg)
		if !ok || !isNum {
			return false, false
		}
		return cmp(n, limit), true
	}
}

func lengthCheck(cmp func(n, limit int) bool) fieldCheck {
	return func(val, arg any) (bool, bool) {
		s, ok := val.(string)
		limit, isNum := toFloat64(arg)
		if !ok || !isNum {
			return false, false
		}
		return cmp(utf8.RuneCountInString(s), int(limit)), true
	}
}

func countCheck(cmp func(n, limit int) bool) fieldCheck {
	return func(val, arg any) (bool, bool) {
		keys, ok := val.([]any)
		limit, isNum := toFloat64(arg)
		if !ok || !isNum {
			return false, false
		}
		return cmp(len(keys), int(limit)), true
	}
}

// EvaluateFieldRule checks one field rule. Selection operators read the
// submitted keys of a SelectPlus attribute, the others read the record.
// Absent values are not checked; that is what required is for.
func EvaluateFieldRule(rule *metadata.Rule, in RuleInput) *ErrorDetail {
	field := rule.Definition.Field
	op := rule.Definition.Operator
	check, known := fieldChecks[op]
	if !known {
		return nil
	}

	var val any
	var present bool
	switch op {
	case "min_selections", "max_selections":
		var keys []any
		keys, present = in.Selections[field]
		val = keys
	default:
		val, present = in.Record[field]
	}
	if !present || val == nil {
		return nil
	}

	pass, applies := check(val, rule.Definition.Value)
	if !applies || pass {
		return nil
	}
	msg := rule.Definition.Message
	if msg == "" {
		msg = fmt.Sprintf("field %s failed %s validation", field, op)
	}
	return &ErrorDetail{Field: field, Rule: op, Message: msg}
}

// CompileExpression compiles an expression string into an expr-lang program.
func CompileExpression(expression string) (*vm.Program, error) {
	prog, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}
	return prog, nil
}

// EvaluateExpressionRule runs an expression rule; a true result is a
// violation. The program is compiled on first use and kept on the rule.
func EvaluateExpressionRule(rule *metadata.Rule, env map[string]any) *ErrorDetail {
	prog, ok := rule.Compiled.(*vm.Program)
	if !ok || prog == nil {
		compiled, err := CompileExpression(rule.Definition.Expression)
		if err != nil {
			return &ErrorDetail{Rule: "expression", Message: fmt.Sprintf("compile error: %v", err)}
		}
		rule.Compiled = compiled
		prog = compiled
	}

	result, err := expr.Run(prog, env)
	if err != nil {
		return &ErrorDetail{Rule: "expression", Message: fmt.Sprintf("rule evaluation error: %v", err)}
	}
	if violated, _ := result.(bool); !violated {
		return nil
	}

	msg := rule.Definition.Message
	if msg == "" {
		msg = "Expression rule violated"
	}
	return &ErrorDetail{Field: rule.Definition.Field, Rule: "expression", Message: msg}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
