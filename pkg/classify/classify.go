// Package classify derives merchant keys from transaction descriptions and
// assigns categories using an ordered table of pattern rules.
package classify

const (
	// Unclassified is the category given to transactions no rule matched.
	Unclassified = "Não classificado"

	MethodRule         = "regex_config"
	MethodUnclassified = "nao_classificado"
)

// Result is the outcome of classifying a single merchant key.
type Result struct {
	Category    string `json:"categoria" yaml:"categoria"`
	Subcategory string `json:"subcategoria" yaml:"subcategoria"`
	Method      string `json:"metodo" yaml:"metodo"`
	// Rule is the pattern that matched, empty when unclassified.
	Rule string `json:"rule,omitempty" yaml:"rule,omitempty"`
}

func unclassified() Result {
	return Result{Category: Unclassified, Method: MethodUnclassified}
}

// Classify returns the category of the first active rule matching the
// merchant key. Rules must already be in evaluation order (see CompileRules).
func Classify(merchantKey string, rules []*Rule) Result {
	mk := NormalizeText(merchantKey)
	if mk == "" {
		return unclassified()
	}

	for _, r := range rules {
		if r.Match(mk) {
			return Result{
				Category:    r.Category,
				Subcategory: r.Subcategory,
				Method:      MethodRule,
				Rule:        r.Pattern,
			}
		}
	}

	return unclassified()
}

// Classifier bundles a compiled rule table.
type Classifier struct {
	rules []*Rule
}

// NewClassifier compiles specs into a ready to use Classifier.
func NewClassifier(specs []*RuleSpec) (*Classifier, error) {
	rules, err := CompileRules(specs)
	if err != nil {
		return nil, err
	}
	return &Classifier{rules: rules}, nil
}

// Rules returns the compiled rules in evaluation order.
func (c *Classifier) Rules() []*Rule {
	return c.rules
}

// Describe builds the merchant key for a raw description and classifies it.
func (c *Classifier) Describe(description string) (string, Result) {
	mk := BuildMerchantKey(description)
	return mk, Classify(mk, c.rules)
}
