package classify

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// PriorityDefault is used when a rule has no (or a non-numeric) priority.
	PriorityDefault = 100

	regexPrefix = "re:"

	ColPattern     = "pattern"
	ColCategory    = "categoria"
	ColSubcategory = "subcategoria"
	ColPriority    = "prioridade"
	ColActive      = "ativo"
)

var (
	// RuleColumns is the column order used when writing rule tables.
	RuleColumns = []string{ColPattern, ColCategory, ColSubcategory, ColPriority, ColActive}

	inactiveValues = newSet("false", "0", "nao", "não")

	ErrMissingColumn = errors.New("rule table is missing a required column")
)

// RuleSpec is the editable form of a classification rule.
type RuleSpec struct {
	Pattern     string `json:"pattern" yaml:"pattern"`
	Category    string `json:"categoria" yaml:"categoria"`
	Subcategory string `json:"subcategoria" yaml:"subcategoria"`
	Priority    int    `json:"prioridade" yaml:"prioridade"`
	Active      bool   `json:"ativo" yaml:"ativo"`
}

// Row renders the rule in RuleColumns order.
func (s *RuleSpec) Row() []string {
	return []string{
		s.Pattern,
		s.Category,
		s.Subcategory,
		strconv.Itoa(s.Priority),
		strconv.FormatBool(s.Active),
	}
}

// Rule is a compiled RuleSpec.
type Rule struct {
	RuleSpec
	// nil matches nothing
	re *regexp.Regexp
}

// Match reports whether the rule is active and its pattern occurs in the
// already normalized merchant key.
func (r *Rule) Match(key string) bool {
	if r == nil || !r.Active || r.re == nil {
		return false
	}
	return r.re.MatchString(key)
}

// CompileRule builds the matcher for a raw pattern. Patterns prefixed with
// "re:" are case-insensitive regular expressions, anything else is a
// literal that must appear as whole words. A blank pattern matches nothing.
func CompileRule(pattern string) (*regexp.Regexp, error) {
	p := strings.TrimSpace(pattern)
	if p == "" {
		return nil, nil
	}

	if strings.HasPrefix(strings.ToLower(p), regexPrefix) {
		expr := strings.TrimSpace(p[len(regexPrefix):])
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return nil, fmt.Errorf("invalid rule regex %q: %w", expr, err)
		}
		return re, nil
	}

	lit := regexp.QuoteMeta(strings.ToLower(p))
	return regexp.MustCompile(`(?i)(^|\s)` + lit + `(\s|$)`), nil
}

// CompileRules compiles the specs and orders them for evaluation: lower
// priority first, then longer patterns first.
func CompileRules(specs []*RuleSpec) ([]*Rule, error) {
	rules := make([]*Rule, 0, len(specs))
	for i, s := range specs {
		if s == nil {
			continue
		}
		spec := *s
		spec.Pattern = strings.TrimSpace(spec.Pattern)
		spec.Category = strings.TrimSpace(spec.Category)
		spec.Subcategory = strings.TrimSpace(spec.Subcategory)

		re, err := CompileRule(spec.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i+1, spec.Category, err)
		}
		rules = append(rules, &Rule{RuleSpec: spec, re: re})
	}

	slices.SortStableFunc(rules, func(a, b *Rule) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return cmp.Compare(utf8.RuneCountInString(b.Pattern), utf8.RuneCountInString(a.Pattern))
	})

	return rules, nil
}

// ParseRuleTable converts a header and string rows (e.g. a spreadsheet tab
// or CSV file) into rule specs.
func ParseRuleTable(header []string, rows [][]string) ([]*RuleSpec, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}

	for _, col := range []string{ColPattern, ColCategory, ColSubcategory} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w: '%s'", ErrMissingColumn, col)
		}
	}

	cell := func(row []string, col string) (string, bool) {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return "", ok
		}
		return row[i], true
	}

	specs := make([]*RuleSpec, 0, len(rows))
	for _, row := range rows {
		pattern, _ := cell(row, ColPattern)
		cat, _ := cell(row, ColCategory)
		sub, _ := cell(row, ColSubcategory)

		s := &RuleSpec{
			Pattern:     strings.TrimSpace(pattern),
			Category:    strings.TrimSpace(cat),
			Subcategory: strings.TrimSpace(sub),
			Priority:    PriorityDefault,
			Active:      true,
		}

		if v, ok := cell(row, ColPriority); ok {
			s.Priority = ParsePriority(v)
		}
		if v, ok := cell(row, ColActive); ok {
			s.Active = ParseActive(v)
		}

		specs = append(specs, s)
	}

	return specs, nil
}

// ParsePriority parses a numeric priority, truncating fractions and
// clamping to the int32 range stored in the database. Anything unparsable
// yields PriorityDefault.
func ParsePriority(v string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return PriorityDefault
	}
	return int(max(math.MinInt32, min(math.MaxInt32, math.Trunc(f))))
}

// ParseActive is true unless the value spells out a negative.
func ParseActive(v string) bool {
	_, off := inactiveValues[strings.ToLower(strings.TrimSpace(v))]
	return !off
}

// RuleTable renders specs as rows in RuleColumns order.
func RuleTable(specs []*RuleSpec) [][]string {
	rows := make([][]string, 0, len(specs))
	for _, s := range specs {
		if s == nil {
			continue
		}
		rows = append(rows, s.Row())
	}
	return rows
}
