package engine

import (
	"context"
	"testing"

	"select-plus/internal/metadata"
)

func TestEvaluateFieldRule(t *testing.T) {
	tests := []struct {
		name   string
		def        metadata.RuleDefinition
		record     map[string]any
		selections map[string][]any
		fail       bool
	}{
		{
			name:   "min_length fails",
			def:    metadata.RuleDefinition{Field: "name", Operator: "min_length", Value: float64(3)},
			record: map[string]any{"name": "Al"},
			fail:   true,
		},
		{
			name:   "min_length passes",
			def:    metadata.RuleDefinition{Field: "name", Operator: "min_length", Value: float64(3)},
			record: map[string]any{"name": "Ralph"},
		},
		{
			name:   "max_length fails",
			def:    metadata.RuleDefinition{Field: "code", Operator: "max_length", Value: float64(2)},
			record: map[string]any{"code": "TEX"},
			fail:   true,
		},
		{
			name:   "pattern fails",
			def:    metadata.RuleDefinition{Field: "code", Operator: "pattern", Value: `^[A-Z]{2}$`},
			record: map[string]any{"code": "tx"},
			fail:   true,
		},
		{
			name:   "pattern passes",
			def:    metadata.RuleDefinition{Field: "code", Operator: "pattern", Value: `^[A-Z]{2}$`},
			record: map[string]any{"code": "TX"},
		},
		{
			name:   "min with int value",
			def:    metadata.RuleDefinition{Field: "favorite_state_id", Operator: "min", Value: float64(1)},
			record: map[string]any{"favorite_state_id": 0},
			fail:   true,
		},
		{
			name:   "max passes",
			def:    metadata.RuleDefinition{Field: "favorite_state_id", Operator: "max", Value: float64(100)},
			record: map[string]any{"favorite_state_id": int64(22)},
		},
		{
			name:   "in fails",
			def:    metadata.RuleDefinition{Field: "region", Operator: "in", Value: []any{"east", "west"}},
			record: map[string]any{"region": "north"},
			fail:   true,
		},
		{
			name:   "in passes",
			def:    metadata.RuleDefinition{Field: "region", Operator: "in", Value: []any{"east", "west"}},
			record: map[string]any{"region": "west"},
		},
		{
			name:       "max_selections fails",
			def:        metadata.RuleDefinition{Field: "statesVisited", Operator: "max_selections", Value: float64(2)},
			selections: map[string][]any{"statesVisited": {int64(1), int64(2), int64(3)}},
			fail:       true,
		},
		{
			name:       "min_selections passes",
			def:        metadata.RuleDefinition{Field: "statesVisited", Operator: "min_selections", Value: float64(1)},
			selections: map[string][]any{"statesVisited": {int64(4)}},
		},
		{
			name:   "selection rule ignores record values",
			def:    metadata.RuleDefinition{Field: "statesVisited", Operator: "min_selections", Value: float64(1)},
			record: map[string]any{"statesVisited": "ignored"},
		},
		{
			name:   "max_length counts runes",
			def:    metadata.RuleDefinition{Field: "name", Operator: "max_length", Value: float64(3)},
			record: map[string]any{"name": "Zoë"},
		},
		{
			name:   "absent field is not checked",
			def:    metadata.RuleDefinition{Field: "name", Operator: "min_length", Value: float64(3)},
			record: map[string]any{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rule := &metadata.Rule{Type: "field", Definition: tc.def}
			detail := EvaluateFieldRule(rule, RuleInput{Record: tc.record, Selections: tc.selections})
			if tc.fail && detail == nil {
				t.Fatal("expected a violation")
			}
			if !tc.fail && detail != nil {
				t.Fatalf("expected pass, got %v", detail)
			}
			if detail != nil && (detail.Field != tc.def.Field || detail.Rule != tc.def.Operator) {
				t.Fatalf("unexpected detail %+v", detail)
			}
		})
	}
}

func TestCompileExpression(t *testing.T) {
	if _, err := CompileExpression("record.region == 'west' && record.state_born_in == nil"); err != nil {
		t.Fatalf("compile expression: %v", err)
	}
	if _, err := CompileExpression("record.region ==="); err == nil {
		t.Fatal("expected a compile error")
	}
}

func TestEvaluateExpressionRule(t *testing.T) {
	rule := &metadata.Rule{
		Type: "expression",
		Definition: metadata.RuleDefinition{
			Expression: "action == 'update' && old.region != nil && record.region == nil",
			Message:    "Region cannot be cleared once set",
		},
	}

	env := map[string]any{
		"record": map[string]any{"region": nil},
		"old":    map[string]any{"region": "west"},
		"action": "update",
	}
	detail := EvaluateExpressionRule(rule, env)
	if detail == nil {
		t.Fatal("expected violation when clearing the region")
	}
	if detail.Message != "Region cannot be cleared once set" {
		t.Fatalf("unexpected message: %s", detail.Message)
	}
	if rule.Compiled == nil {
		t.Fatal("expected the program to be cached on the rule")
	}

	env["action"] = "create"
	if detail := EvaluateExpressionRule(rule, env); detail != nil {
		t.Fatalf("expected pass on create, got %v", detail)
	}
}

func TestEvaluateRulesOrderAndStop(t *testing.T) {
	reg := metadata.NewRegistry()
	reg.LoadRules([]*metadata.Rule{
		{
			ID: "r1", Entity: "people", Hook: "before_write", Type: "expression", Priority: 1, Active: true,
			Definition: metadata.RuleDefinition{Expression: "record.name == 'Nobody'", Message: "reserved name"},
		},
		{
			ID: "r2", Entity: "people", Hook: "before_write", Type: "field", Priority: 2, Active: true,
			Definition: metadata.RuleDefinition{Field: "name", Operator: "min_length", Value: float64(10), StopOnFail: true},
		},
		{
			ID: "r3", Entity: "people", Hook: "before_write", Type: "field", Priority: 3, Active: false,
			Definition: metadata.RuleDefinition{Field: "name", Operator: "max_length", Value: float64(1)},
		},
	})

	errs := EvaluateRules(context.Background(), reg, "people", "before_write", RuleInput{Record: map[string]any{"name": "Nobody"}, IsCreate: true})
	if len(errs) != 1 {
		t.Fatalf("expected the field rule to stop evaluation, got %v", errs)
	}
	if errs[0].Rule != "min_length" {
		t.Fatalf("expected min_length first, got %s", errs[0].Rule)
	}

	errs = EvaluateRules(context.Background(), reg, "people", "before_write", RuleInput{Record: map[string]any{"name": "Ralph Schindler"}, IsCreate: true})
	if len(errs) != 0 {
		t.Fatalf("expected no violations, got %v", errs)
	}

	if errs := EvaluateRules(context.Background(), reg, "states", "before_write", RuleInput{IsCreate: true}); errs != nil {
		t.Fatalf("expected nil for an entity without rules, got %v", errs)
	}
}

func TestEvaluateRulesSeesSelections(t *testing.T) {
	reg := metadata.NewRegistry()
	reg.LoadRules([]*metadata.Rule{
		{
			ID: "r1", Entity: "people", Hook: "before_write", Type: "expression", Priority: 1, Active: true,
			Definition: metadata.RuleDefinition{
				Field:      "statesVisited",
				Expression: "action == 'create' && len(selections.statesVisited ?? []) > 2",
				Message:    "Pick at most two states on sign up",
			},
		},
	})

	in := RuleInput{
		Record:     map[string]any{"name": "Ralph"},
		Selections: map[string][]any{"statesVisited": {int64(1), int64(2), int64(3)}},
		IsCreate:   true,
	}
	errs := EvaluateRules(context.Background(), reg, "people", "before_write", in)
	if len(errs) != 1 || errs[0].Field != "statesVisited" {
		t.Fatalf("expected one statesVisited violation, got %v", errs)
	}

	in.IsCreate = false
	if errs := EvaluateRules(context.Background(), reg, "people", "before_write", in); len(errs) != 0 {
		t.Fatalf("expected no violations on update, got %v", errs)
	}

	in.IsCreate = true
	in.Selections = nil
	if errs := EvaluateRules(context.Background(), reg, "people", "before_write", in); len(errs) != 0 {
		t.Fatalf("expected no violations without selections, got %v", errs)
	}
}
