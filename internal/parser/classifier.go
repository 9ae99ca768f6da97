package parser

import (
	"regexp"
	"strings"

	"sms-ledger-service/internal/models"
)

var newlineRe = regexp.MustCompile(`[\r\n]+`)

// Classifier decides whether a message is a transaction notification at all
// and, if so, its direction.
type Classifier struct {
	config *Config
}

// NewClassifier creates a classifier over the given keyword tables.
func NewClassifier(config *Config) *Classifier {
	if config == nil {
		config = DefaultConfig()
	}
	return &Classifier{config: config}
}

// Normalize lowercases a message body and collapses newlines to single
// spaces. Every downstream keyword/regex check operates on normalized text.
func Normalize(body string) string {
	return strings.TrimSpace(newlineRe.ReplaceAllString(strings.ToLower(body), " "))
}

// Classify inspects a normalized body and returns its direction.
//
// The decision table, in order:
//  1. any reject keyword present -> not a transaction, even if the body
//     contains amount-like substrings
//  2. "refund" anywhere -> CREDIT, overriding any debit verbs
//  3. both debit and credit verbs -> DEBIT (ambiguous messages are assumed
//     to be spends)
//  4. only one side's verbs -> that side
//  5. no directional verb -> not a transaction
func (c *Classifier) Classify(body string) (models.TransactionType, bool) {
	for _, keyword := range c.config.RejectKeywords {
		if strings.Contains(body, keyword) {
			return "", false
		}
	}

	if strings.Contains(body, "refund") {
		return models.TransactionTypeCredit, true
	}

	hasDebit := containsAny(body, c.config.DebitKeywords)
	hasCredit := containsAny(body, c.config.CreditKeywords)

	switch {
	case hasDebit:
		return models.TransactionTypeDebit, true
	case hasCredit:
		return models.TransactionTypeCredit, true
	default:
		return "", false
	}
}

func containsAny(body string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(body, keyword) {
			return true
		}
	}
	return false
}
