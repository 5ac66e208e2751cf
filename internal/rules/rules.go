package rules

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/LuckySoftware/Aletheia/internal/model"
)

// PlaceholderNominalPower may appear as a range bound in the rule source and
// is substituted with the plant's nominal power at load time.
const PlaceholderNominalPower = "$P_NOM"

// DefinitionError reports a malformed rule. It is fatal: a run must not
// start, and nothing must be written, when the rule source is broken.
type DefinitionError struct {
	Column string
	Type   string
	Reason string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("rule definition for column %q (type %q): %s", e.Column, e.Type, e.Reason)
}

// RangeParams carries the numeric bounds of the ranged rule kinds.
type RangeParams struct {
	Min float64
	Max float64
}

// Rule is one declarative validation rule bound to a single column.
// Kind is a closed set; Range is set only for the ranged kinds.
type Rule struct {
	Column  string
	Kind    model.RuleType
	Range   *RangeParams
	Enabled bool
	Message string
}

// Set is an immutable snapshot of the active rule set for one run.
// Re-loading builds a fresh Set; callers never observe a half-updated one.
type Set struct {
	all      []Rule
	byColumn map[string][]Rule // enabled rules, declaration order
}

// LoadOptions parameterizes rule loading with run-wide configuration.
type LoadOptions struct {
	// Columns is the set of known data columns; a rule referencing any
	// other column is a DefinitionError.
	Columns []string

	// NominalPowerKW replaces the $P_NOM placeholder in range bounds.
	NominalPowerKW float64
}

// ruleDef is the wire shape of one entry in the JSON rule source.
type ruleDef struct {
	Column  string    `json:"column"`
	Type    string    `json:"type"`
	Enabled *bool     `json:"enabled"`
	Params  paramsDef `json:"params"`
	Message string    `json:"message"`
}

type paramsDef struct {
	Min json.RawMessage `json:"min"`
	Max json.RawMessage `json:"max"`
}

// LoadFile loads and validates the rule set from a JSON file.
func LoadFile(path string, opts LoadOptions) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rule source: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Load(f, opts)
}

// Load parses the ordered JSON rule list and validates every entry.
// Any malformed rule aborts the load; there is no partial rule set.
func Load(r io.Reader, opts LoadOptions) (*Set, error) {
	var defs []ruleDef
	dec := json.NewDecoder(r)
	if err := dec.Decode(&defs); err != nil {
		return nil, fmt.Errorf("decode rule source: %w", err)
	}

	known := make(map[string]bool, len(opts.Columns))
	for _, c := range opts.Columns {
		known[c] = true
	}

	set := &Set{byColumn: make(map[string][]Rule)}
	activeKinds := make(map[string]bool) // column + "/" + kind

	for _, def := range defs {
		rule, err := buildRule(def, known, opts.NominalPowerKW)
		if err != nil {
			return nil, err
		}

		if rule.Enabled {
			slot := rule.Column + "/" + string(rule.Kind)
			if activeKinds[slot] {
				return nil, &DefinitionError{
					Column: rule.Column,
					Type:   string(rule.Kind),
					Reason: "more than one active rule of this type for the column",
				}
			}
			activeKinds[slot] = true
			set.byColumn[rule.Column] = append(set.byColumn[rule.Column], rule)
		}
		set.all = append(set.all, rule)
	}

	return set, nil
}

func buildRule(def ruleDef, known map[string]bool, nominal float64) (Rule, error) {
	if def.Column == "" {
		return Rule{}, &DefinitionError{Type: def.Type, Reason: "missing column reference"}
	}
	if !known[def.Column] {
		return Rule{}, &DefinitionError{Column: def.Column, Type: def.Type, Reason: "unknown column"}
	}

	enabled := true
	if def.Enabled != nil {
		enabled = *def.Enabled
	}

	rule := Rule{
		Column:  def.Column,
		Enabled: enabled,
		Message: def.Message,
	}

	switch model.RuleType(def.Type) {
	case model.RuleNotNull:
		rule.Kind = model.RuleNotNull

	case model.RuleRange, model.RuleNotPositiveInRange:
		rule.Kind = model.RuleType(def.Type)
		bounds, err := parseBounds(def, nominal)
		if err != nil {
			return Rule{}, err
		}
		rule.Range = bounds

	default:
		return Rule{}, &DefinitionError{Column: def.Column, Type: def.Type, Reason: "unrecognized rule type"}
	}

	return rule, nil
}

func parseBounds(def ruleDef, nominal float64) (*RangeParams, error) {
	min, err := parseBound(def.Params.Min, nominal)
	if err != nil {
		return nil, &DefinitionError{Column: def.Column, Type: def.Type, Reason: "min: " + err.Error()}
	}
	max, err := parseBound(def.Params.Max, nominal)
	if err != nil {
		return nil, &DefinitionError{Column: def.Column, Type: def.Type, Reason: "max: " + err.Error()}
	}
	if min > max {
		return nil, &DefinitionError{Column: def.Column, Type: def.Type, Reason: "inverted range (min > max)"}
	}
	return &RangeParams{Min: min, Max: max}, nil
}

// parseBound accepts a JSON number or the $P_NOM placeholder string.
func parseBound(raw json.RawMessage, nominal float64) (float64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing bound")
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("bound is neither number nor placeholder")
	}
	if s == PlaceholderNominalPower {
		if nominal <= 0 {
			return 0, fmt.Errorf("%s used but nominal power is not configured", PlaceholderNominalPower)
		}
		return nominal, nil
	}
	return 0, fmt.Errorf("unrecognized placeholder %q", s)
}

// RulesFor returns the enabled rules for a column in declaration order.
// The returned slice must not be mutated.
func (s *Set) RulesFor(column string) []Rule {
	return s.byColumn[column]
}

// Len returns the number of loaded rules, disabled ones included.
func (s *Set) Len() int {
	return len(s.all)
}

// EnabledCount returns the number of enabled rules.
func (s *Set) EnabledCount() int {
	n := 0
	for _, rs := range s.byColumn {
		n += len(rs)
	}
	return n
}

// Columns returns the columns that have at least one enabled rule.
func (s *Set) Columns() []string {
	cols := make([]string, 0, len(s.byColumn))
	for c := range s.byColumn {
		cols = append(cols, c)
	}
	return cols
}
