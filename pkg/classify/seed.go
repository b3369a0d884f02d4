package classify

const seedPriority = 10

var seedRules = []struct {
	pattern  string
	category string
}{
	{"oficina", "Oficina"},
	{"pecas", "Peças"},
	{"rest", "Restaurante"},
	{"s10", "Combustivel"},
	{"lourival da costa santos", "Pro Labore"},
	{"bezerra oliveira", "Peças"},
	{"pedreira sao francisco", "Brita"},
	{"js pedras", "Areia"},
	{"minas brita", "Brita"},
	{"brasil mineracao", "Brita"},
	{"maranhao mineracao", "Brita"},
	{"oficina jcj vitoria", "Oficina"},
	{"parafuso", "Peças"},
	{"material construcao", "Material Construção"},
	{"ferro comercio", "Material Construção"},
}

// DefaultRules returns the starter rule table used when a store has none.
func DefaultRules() []*RuleSpec {
	list := make([]*RuleSpec, 0, len(seedRules))
	for _, r := range seedRules {
		list = append(list, &RuleSpec{
			Pattern:     r.pattern,
			Category:    r.category,
			Subcategory: r.category,
			Priority:    seedPriority,
			Active:      true,
		})
	}
	return list
}
