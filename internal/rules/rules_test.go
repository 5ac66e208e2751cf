package rules

import (
	"errors"
	"strings"
	"testing"

	"github.com/LuckySoftware/Aletheia/internal/model"
)

var testOpts = LoadOptions{
	Columns:        []string{"col_1", "col_2", "col_3"},
	NominalPowerKW: 5000,
}

func load(t *testing.T, src string) *Set {
	t.Helper()
	set, err := Load(strings.NewReader(src), testOpts)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return set
}

func TestLoad_BasicRuleSet(t *testing.T) {
	set := load(t, `[
		{"column": "col_1", "type": "not_null", "enabled": true, "message": "missing reading"},
		{"column": "col_1", "type": "range", "enabled": true, "params": {"min": 0, "max": 100}},
		{"column": "col_2", "type": "range", "enabled": false, "params": {"min": 0, "max": 1}}
	]`)

	if set.Len() != 3 {
		t.Errorf("expected 3 loaded rules, got %d", set.Len())
	}
	if set.EnabledCount() != 2 {
		t.Errorf("expected 2 enabled rules, got %d", set.EnabledCount())
	}

	rs := set.RulesFor("col_1")
	if len(rs) != 2 {
		t.Fatalf("expected 2 rules for col_1, got %d", len(rs))
	}
	// Declaration order must be stable
	if rs[0].Kind != model.RuleNotNull || rs[1].Kind != model.RuleRange {
		t.Errorf("rules out of declaration order: %v, %v", rs[0].Kind, rs[1].Kind)
	}
	if rs[1].Range == nil || rs[1].Range.Min != 0 || rs[1].Range.Max != 100 {
		t.Errorf("range params not carried: %+v", rs[1].Range)
	}

	// Disabled rules are loaded but never returned for evaluation
	if got := set.RulesFor("col_2"); len(got) != 0 {
		t.Errorf("disabled rule must not be evaluated, got %d rules", len(got))
	}
}

func TestLoad_UnknownRuleType(t *testing.T) {
	_, err := Load(strings.NewReader(`[{"column": "col_1", "type": "unknown_rule"}]`), testOpts)

	var defErr *DefinitionError
	if !errors.As(err, &defErr) {
		t.Fatalf("expected DefinitionError, got %v", err)
	}
	if defErr.Type != "unknown_rule" {
		t.Errorf("expected offending type in error, got %q", defErr.Type)
	}
}

func TestLoad_UnknownColumn(t *testing.T) {
	_, err := Load(strings.NewReader(`[{"column": "col_99", "type": "not_null"}]`), testOpts)

	var defErr *DefinitionError
	if !errors.As(err, &defErr) {
		t.Fatalf("expected DefinitionError, got %v", err)
	}
}

func TestLoad_InvertedRange(t *testing.T) {
	_, err := Load(strings.NewReader(
		`[{"column": "col_1", "type": "range", "params": {"min": 10, "max": 5}}]`), testOpts)

	var defErr *DefinitionError
	if !errors.As(err, &defErr) {
		t.Fatalf("expected DefinitionError for inverted range, got %v", err)
	}
}

func TestLoad_DuplicateActiveKind(t *testing.T) {
	_, err := Load(strings.NewReader(`[
		{"column": "col_1", "type": "range", "params": {"min": 0, "max": 1}},
		{"column": "col_1", "type": "range", "params": {"min": 0, "max": 2}}
	]`), testOpts)

	if err == nil {
		t.Fatal("expected error for two active rules of the same type on one column")
	}
}

func TestLoad_DisabledDuplicateIsAllowed(t *testing.T) {
	set := load(t, `[
		{"column": "col_1", "type": "range", "enabled": false, "params": {"min": 0, "max": 1}},
		{"column": "col_1", "type": "range", "params": {"min": 0, "max": 2}}
	]`)
	if set.EnabledCount() != 1 {
		t.Errorf("expected 1 enabled rule, got %d", set.EnabledCount())
	}
}

func TestLoad_NominalPowerPlaceholder(t *testing.T) {
	set := load(t, `[{"column": "col_3", "type": "range", "params": {"min": 0, "max": "$P_NOM"}}]`)

	rs := set.RulesFor("col_3")
	if len(rs) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rs))
	}
	if rs[0].Range.Max != 5000 {
		t.Errorf("expected $P_NOM substituted with 5000, got %v", rs[0].Range.Max)
	}
}

func TestLoad_PlaceholderWithoutNominalPower(t *testing.T) {
	opts := LoadOptions{Columns: testOpts.Columns}
	_, err := Load(strings.NewReader(
		`[{"column": "col_3", "type": "range", "params": {"min": 0, "max": "$P_NOM"}}]`), opts)
	if err == nil {
		t.Fatal("expected error when $P_NOM is used without configured nominal power")
	}
}

func TestLoad_MissingBound(t *testing.T) {
	_, err := Load(strings.NewReader(
		`[{"column": "col_1", "type": "not_positive_in_range", "params": {"min": 0}}]`), testOpts)
	if err == nil {
		t.Fatal("expected error for missing max bound")
	}
}

func TestLoad_EnabledDefaultsToTrue(t *testing.T) {
	set := load(t, `[{"column": "col_1", "type": "not_null"}]`)
	if set.EnabledCount() != 1 {
		t.Errorf("rule without enabled flag should default to enabled")
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	if _, err := Load(strings.NewReader(`{not json`), testOpts); err == nil {
		t.Fatal("expected decode error")
	}
}
