// Package report aggregates classified transactions into totals per
// category and renders them as a bar chart.
package report

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/mchmarny/expctl/pkg/classify"
	"github.com/mchmarny/expctl/pkg/statement"
)

var ErrEmptySelection = errors.New("no transactions in the selected categories")

// Summary is the headline view of a set of transactions.
type Summary struct {
	Count        int     `json:"count" yaml:"count"`
	Spent        float64 `json:"spent" yaml:"spent"`
	Income       float64 `json:"income" yaml:"income"`
	Categories   int     `json:"categories" yaml:"categories"`
	Unclassified int     `json:"unclassified" yaml:"unclassified"`
}

// CategoryTotal is the amount and share of one category.
type CategoryTotal struct {
	Category string  `json:"category" yaml:"category"`
	Count    int     `json:"count" yaml:"count"`
	Amount   float64 `json:"amount" yaml:"amount"`
	Percent  float64 `json:"percent" yaml:"percent"`
}

// Summarize counts transactions and splits amounts into spent (negative)
// and income (positive). Transactions without an amount are counted only.
func Summarize(txs []*statement.Transaction) *Summary {
	s := &Summary{Count: len(txs), Categories: len(Categories(txs))}
	for _, tx := range txs {
		if tx.Category == classify.Unclassified {
			s.Unclassified++
		}
		if !tx.HasAmount || math.IsNaN(tx.Amount) {
			continue
		}
		if tx.Amount < 0 {
			s.Spent += tx.Amount
		} else {
			s.Income += tx.Amount
		}
	}
	return s
}

// Categories lists the distinct non-blank categories in first-seen order.
func Categories(txs []*statement.Transaction) []string {
	var list []string
	for _, tx := range txs {
		if strings.TrimSpace(tx.Category) != "" && !slices.Contains(list, tx.Category) {
			list = append(list, tx.Category)
		}
	}
	return list
}

// ByCategory totals the selected categories. With no selection every
// category except the unclassified one is used. Percent is relative to the
// sum across the selection, with a zero sum treated as 1.
func ByCategory(txs []*statement.Transaction, categories []string) ([]*CategoryTotal, error) {
	include := func(c string) bool {
		if len(categories) == 0 {
			return c != classify.Unclassified
		}
		return slices.Contains(categories, c)
	}

	byName := make(map[string]*CategoryTotal)
	for _, tx := range txs {
		if !include(tx.Category) {
			continue
		}
		ct, ok := byName[tx.Category]
		if !ok {
			ct = &CategoryTotal{Category: tx.Category}
			byName[tx.Category] = ct
		}
		ct.Count++
		if tx.HasAmount && !math.IsNaN(tx.Amount) {
			ct.Amount += tx.Amount
		}
	}

	if len(byName) == 0 {
		return nil, ErrEmptySelection
	}

	list := make([]*CategoryTotal, 0, len(byName))
	total := 0.0
	for _, ct := range byName {
		total += ct.Amount
		list = append(list, ct)
	}
	if total == 0 {
		total = 1
	}
	for _, ct := range list {
		ct.Percent = ct.Amount / total * 100
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Amount != list[j].Amount {
			return list[i].Amount > list[j].Amount
		}
		return list[i].Category < list[j].Category
	})
	return list, nil
}

// FormatBRL renders x as Brazilian currency, e.g. R$ -1.234,56.
func FormatBRL(x float64) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return "R$ -"
	}
	s := fmt.Sprintf("%.2f", math.Abs(x))
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	sign := ""
	if x < 0 && s != "0.00" {
		sign = "-"
	}
	return "R$ " + sign + b.String() + "," + frac
}
