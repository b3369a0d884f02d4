package classify

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	FormatCSV  = "csv"
	FormatYAML = "yaml"
)

// yamlRule lets priority and active be omitted in YAML rule files.
type yamlRule struct {
	Pattern     string `yaml:"pattern"`
	Category    string `yaml:"categoria"`
	Subcategory string `yaml:"subcategoria"`
	Priority    *int   `yaml:"prioridade"`
	Active      *bool  `yaml:"ativo"`
}

// FormatOf picks the rule file format from a path or URL extension.
func FormatOf(path string) string {
	ext := strings.ToLower(filepath.Ext(strings.SplitN(path, "?", 2)[0]))
	if ext == ".yaml" || ext == ".yml" {
		return FormatYAML
	}
	return FormatCSV
}

// ReadRules parses a rule file in the given format.
func ReadRules(r io.Reader, format string) ([]*RuleSpec, error) {
	switch format {
	case FormatYAML:
		var list []*yamlRule
		if err := yaml.NewDecoder(r).Decode(&list); err != nil && err != io.EOF {
			return nil, fmt.Errorf("decoding YAML rules: %w", err)
		}
		specs := make([]*RuleSpec, 0, len(list))
		for _, y := range list {
			if y == nil {
				continue
			}
			s := &RuleSpec{
				Pattern:     strings.TrimSpace(y.Pattern),
				Category:    strings.TrimSpace(y.Category),
				Subcategory: strings.TrimSpace(y.Subcategory),
				Priority:    PriorityDefault,
				Active:      true,
			}
			if y.Priority != nil {
				s.Priority = *y.Priority
			}
			if y.Active != nil {
				s.Active = *y.Active
			}
			specs = append(specs, s)
		}
		return specs, nil
	case FormatCSV, "":
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		records, err := cr.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("reading CSV rules: %w", err)
		}
		if len(records) == 0 {
			return []*RuleSpec{}, nil
		}
		return ParseRuleTable(records[0], records[1:])
	default:
		return nil, fmt.Errorf("unsupported rule format %q", format)
	}
}

// WriteRules renders specs in the given format.
func WriteRules(w io.Writer, specs []*RuleSpec, format string) error {
	switch format {
	case FormatYAML:
		e := yaml.NewEncoder(w)
		e.SetIndent(2)
		if err := e.Encode(specs); err != nil {
			return fmt.Errorf("encoding YAML rules: %w", err)
		}
		return e.Close()
	case FormatCSV, "":
		cw := csv.NewWriter(w)
		if err := cw.Write(RuleColumns); err != nil {
			return fmt.Errorf("writing rule header: %w", err)
		}
		if err := cw.WriteAll(RuleTable(specs)); err != nil {
			return fmt.Errorf("writing rules: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported rule format %q", format)
	}
}
