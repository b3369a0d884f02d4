package statement

import (
	"crypto/sha1" //nolint:gosec // content fingerprint, not a security boundary
	"encoding/hex"
	"strings"
)

// TxID fingerprints a classified transaction. The category is part of the
// identity, so re-classifying a line into a new category yields a new ID.
func TxID(tx *Transaction) string {
	amount := "nan"
	if tx.HasAmount {
		amount = formatFloat(tx.Amount)
	}

	base := strings.Join([]string{
		tx.Date,
		amount,
		tx.Description,
		tx.Account,
		tx.Category,
	}, "|")
	base = strings.ToLower(strings.TrimSpace(base))

	sum := sha1.Sum([]byte(base)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
