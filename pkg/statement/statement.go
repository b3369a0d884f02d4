// Package statement reads bank statement exports into transactions,
// standardizes their columns and writes classified results back out.
package statement

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mchmarny/expctl/pkg/classify"
)

const (
	ColDate        = "data"
	ColDescription = "descricao"
	ColAmount      = "valor"
	ColAccount     = "conta"

	ColNormalized  = "descricao_normalizada"
	ColMerchantKey = "merchant_key"
	ColCategory    = "Categoria"
	ColSubcategory = "Subcategoria"
	ColMethod      = "MetodoClassificacao"
	ColTxID        = "tx_id"

	AccountDefault = "Nubank"
)

var (
	// OutputColumns are appended to the source columns of a classified statement.
	OutputColumns = []string{ColNormalized, ColMerchantKey, ColCategory, ColSubcategory, ColMethod}

	// LedgerColumns is the header written to an empty ledger.
	LedgerColumns = []string{ColDate, ColAmount, ColDescription, ColCategory, ColAccount, ColTxID}

	// standard names keyed by their normalized form
	standardColumns = map[string]string{
		"data":      ColDate,
		"descricao": ColDescription,
		"valor":     ColAmount,
		"conta":     ColAccount,
	}

	ErrMissingDescription = errors.New("statement is missing the description column")
)

// Options control how a statement is standardized.
type Options struct {
	// DescriptionColumn holds the text used for classification.
	DescriptionColumn string
	// Account is assigned when the source has no account column.
	Account string
}

func (o *Options) withDefaults() Options {
	opt := Options{}
	if o != nil {
		opt = *o
	}
	if opt.DescriptionColumn == "" {
		opt.DescriptionColumn = ColDescription
	}
	if opt.Account == "" {
		opt.Account = AccountDefault
	}
	return opt
}

// Transaction is a single statement line.
type Transaction struct {
	Date        string  `json:"data" yaml:"data"`
	Description string  `json:"descricao" yaml:"descricao"`
	Amount      float64 `json:"valor" yaml:"valor"`
	HasAmount   bool    `json:"-" yaml:"-"`
	Account     string  `json:"conta" yaml:"conta"`

	NormalizedDescription string `json:"descricao_normalizada,omitempty" yaml:"descricao_normalizada,omitempty"`
	MerchantKey           string `json:"merchant_key,omitempty" yaml:"merchant_key,omitempty"`
	Category              string `json:"categoria,omitempty" yaml:"categoria,omitempty"`
	Subcategory           string `json:"subcategoria,omitempty" yaml:"subcategoria,omitempty"`
	Method                string `json:"metodo,omitempty" yaml:"metodo,omitempty"`

	// Fields holds every source cell by standardized column name.
	Fields map[string]string `json:"-" yaml:"-"`
}

// Statement is a parsed export: the source column order and its rows.
type Statement struct {
	Source       string         `json:"source,omitempty" yaml:"source,omitempty"`
	Columns      []string       `json:"columns" yaml:"columns"`
	Transactions []*Transaction `json:"transactions" yaml:"transactions"`
}

// Classify fills the classification fields of every transaction.
func (s *Statement) Classify(c *classify.Classifier) {
	for _, tx := range s.Transactions {
		tx.Classify(c)
	}
}

// Classify derives the merchant key of the transaction and applies the rules.
func (tx *Transaction) Classify(c *classify.Classifier) {
	tx.NormalizedDescription = classify.NormalizeText(tx.Description)
	mk, res := c.Describe(tx.Description)
	tx.MerchantKey = mk
	tx.Category = res.Category
	tx.Subcategory = res.Subcategory
	tx.Method = res.Method
}

// Value returns the cell for column, preferring parsed and classified fields.
func (tx *Transaction) Value(col string) string {
	switch col {
	case ColDate:
		return tx.Date
	case ColDescription:
		return tx.Description
	case ColAmount:
		return FormatAmount(tx)
	case ColAccount:
		return tx.Account
	case ColNormalized:
		return tx.NormalizedDescription
	case ColMerchantKey:
		return tx.MerchantKey
	case ColCategory:
		return tx.Category
	case ColSubcategory:
		return tx.Subcategory
	case ColMethod:
		return tx.Method
	case ColTxID:
		return TxID(tx)
	}
	return tx.Fields[col]
}

// LedgerRow renders the transaction by column name for ledger persistence.
func LedgerRow(tx *Transaction) map[string]string {
	m := make(map[string]string, len(LedgerColumns)+3)
	for _, c := range LedgerColumns {
		m[c] = tx.Value(c)
	}
	m[ColSubcategory] = tx.Subcategory
	m[ColMerchantKey] = tx.MerchantKey
	m[ColMethod] = tx.Method
	return m
}

func standardName(col string) string {
	c := strings.TrimSpace(col)
	if std, ok := standardColumns[classify.NormalizeText(c)]; ok {
		return std
	}
	return c
}

// FromTable builds a statement from a header and string rows.
func FromTable(header []string, rows [][]string, opts *Options) (*Statement, error) {
	opt := opts.withDefaults()

	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = standardName(h)
	}

	descCol := standardName(opt.DescriptionColumn)
	hasDesc, hasAccount := false, false
	for _, c := range cols {
		switch c {
		case descCol:
			hasDesc = true
		case ColAccount:
			hasAccount = true
		}
	}
	if !hasDesc {
		return nil, fmt.Errorf("%w: CSV requires column '%s'", ErrMissingDescription, opt.DescriptionColumn)
	}

	st := &Statement{
		Columns:      cols,
		Transactions: make([]*Transaction, 0, len(rows)),
	}
	if !hasAccount {
		st.Columns = append(st.Columns, ColAccount)
	}

	for _, row := range rows {
		if isBlank(row) {
			continue
		}

		tx := &Transaction{Fields: make(map[string]string, len(cols))}
		for i, c := range cols {
			v := ""
			if i < len(row) {
				v = strings.TrimSpace(row[i])
			}
			tx.Fields[c] = v
		}
		if !hasAccount {
			tx.Fields[ColAccount] = opt.Account
		}

		tx.Date = tx.Fields[ColDate]
		tx.Description = tx.Fields[descCol]
		tx.Account = tx.Fields[ColAccount]
		tx.Amount, tx.HasAmount = ParseAmount(tx.Fields[ColAmount])

		// previously classified exports keep their results
		tx.NormalizedDescription = tx.Fields[ColNormalized]
		tx.MerchantKey = tx.Fields[ColMerchantKey]
		tx.Category = tx.Fields[ColCategory]
		tx.Subcategory = tx.Fields[ColSubcategory]
		tx.Method = tx.Fields[ColMethod]

		st.Transactions = append(st.Transactions, tx)
	}

	return st, nil
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ParseAmount parses plain decimals ("-12.50") and pt-BR amounts
// ("1.234,56", "R$ -10,00"). The bool is false when nothing parses.
func ParseAmount(v string) (float64, bool) {
	s := strings.TrimSpace(v)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, false
	}

	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FormatAmount renders the amount the way exported CSVs carry it.
// Missing amounts are blank.
func FormatAmount(tx *Transaction) string {
	if !tx.HasAmount {
		return ""
	}
	return formatFloat(tx.Amount)
}

// formatFloat matches the shortest round-trip float repr used by ledgers
// written before this tool existed ("100.0", "-12.5", "1e-05").
func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case v == 0:
		if math.Signbit(v) {
			return "-0.0"
		}
		return "0.0"
	}

	abs := math.Abs(v)
	if abs >= 1e16 || abs < 1e-4 {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
