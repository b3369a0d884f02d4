package classify

import (
	"regexp"
	"strings"

	"github.com/mozillazg/go-unidecode"
)

const (
	// TokenMinLen is the shortest token kept by Tokenize.
	TokenMinLen = 2
	// MerchantKeyMaxTokens caps the number of tokens in a merchant key.
	MerchantKeyMaxTokens = 4
)

var (
	punctRegEx    = regexp.MustCompile(`[*_\-/\\|:;.,(){}\[\]<>]+`)
	digitRegEx    = regexp.MustCompile(`\d+`)
	nonAlphaRegEx = regexp.MustCompile(`[^a-z\s]+`)
	spaceRegEx    = regexp.MustCompile(`\s+`)

	// DefaultStopwords are dropped from descriptions before building merchant keys.
	// Entries are in normalized form (lowercase ASCII).
	DefaultStopwords = newSet(
		"de", "da", "do", "das", "dos", "para", "por", "em", "no", "na",
		"e", "a", "o", "as", "os", "um", "uma", "ao",

		"compra", "cartao", "credito", "debito", "online", "pagamento", "parcela",
		"pix", "transferencia", "ted", "doc", "br", "ltda", "mei", "me",
		"servico", "servicos", "assinatura", "mensalidade",
		"estabelecimento", "loj", "loja",
	)
)

func newSet(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, v := range items {
		m[v] = struct{}{}
	}
	return m
}

// NormalizeText lowercases, transliterates to ASCII and strips everything
// but letters and single spaces.
func NormalizeText(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return ""
	}
	s = unidecode.Unidecode(s)
	s = punctRegEx.ReplaceAllString(s, " ")
	s = digitRegEx.ReplaceAllString(s, " ")
	s = nonAlphaRegEx.ReplaceAllString(s, " ")
	s = spaceRegEx.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Tokenize normalizes text and returns the tokens that are long enough and
// not stopwords. A nil stopwords set uses DefaultStopwords.
func Tokenize(text string, stopwords map[string]struct{}) []string {
	if stopwords == nil {
		stopwords = DefaultStopwords
	}

	s := NormalizeText(text)
	if s == "" {
		return []string{}
	}

	tokens := make([]string, 0)
	for _, t := range strings.Fields(s) {
		if len(t) < TokenMinLen {
			continue
		}
		if _, ok := stopwords[t]; ok {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens
}

// BuildMerchantKey returns the first MerchantKeyMaxTokens tokens of the
// description joined by a space.
func BuildMerchantKey(description string) string {
	return buildMerchantKey(description, MerchantKeyMaxTokens)
}

func buildMerchantKey(description string, maxTokens int) string {
	toks := Tokenize(description, nil)
	if len(toks) == 0 {
		return ""
	}
	if maxTokens > 0 && len(toks) > maxTokens {
		toks = toks[:maxTokens]
	}
	return strings.Join(toks, " ")
}
