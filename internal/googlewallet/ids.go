// Package googlewallet maintains loyalty classes/objects on the remote
// wallet API and signs save-to-wallet deep links.
package googlewallet

import (
	"fmt"
	"strings"

	"github.com/stampably/walletpass/internal/walleterr"
	"github.com/stampably/walletpass/passes/models"
)

// Derived id suffixes shorter than this are rejected: after sanitization
// they carry too little entropy to address a program safely.
const minSuffixLen = 3

// SanitizeSuffix maps free-form text into the remote API's allowed id
// character set. Runs of disallowed characters collapse to a single
// underscore; dots are excluded because they separate id segments.
func SanitizeSuffix(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// ClassID derives the loyalty class id for a business+card-type program.
// Pure function: identical inputs always address the same remote class.
func ClassID(issuerID, businessName string, cardType models.CardType) (string, error) {
	if issuerID == "" {
		return "", walleterr.Invalid("issuer_id")
	}
	name := SanitizeSuffix(businessName)
	if len(name) < minSuffixLen {
		return "", walleterr.Invalid("class_suffix")
	}
	return fmt.Sprintf("%s.%s_%s", issuerID, name, cardType), nil
}

// ObjectID derives the per-customer loyalty object id under a class.
func ObjectID(classID, customerToken string) (string, error) {
	if classID == "" {
		return "", walleterr.Invalid("class_id")
	}
	suffix := SanitizeSuffix(customerToken)
	if len(suffix) < minSuffixLen {
		return "", walleterr.Invalid("object_suffix")
	}
	return classID + "." + suffix, nil
}
