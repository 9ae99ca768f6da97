package parser

import (
	"fmt"
	"strings"

	"sms-ledger-service/internal/categorize"
	"sms-ledger-service/internal/models"

	"github.com/shopspring/decimal"
)

// Builder composes extraction results into a transaction record and assigns
// the initial category.
type Builder struct {
	categorizer *categorize.Categorizer
}

// NewBuilder creates a builder using the given categorizer.
func NewBuilder(categorizer *categorize.Categorizer) *Builder {
	return &Builder{categorizer: categorizer}
}

// fields holds everything the extractor recovered from one message.
type fields struct {
	amount        decimal.Decimal
	accountSource string
	counterparty  string
	balance       *decimal.Decimal
	accountEnding string
}

// Build assembles a transaction from a classified message and its extracted
// fields. The amount sign is normalized to the direction, the payment method
// is inferred from the body, and the remark carries the account-ending and
// balance annotations.
func (b *Builder) Build(msg models.RawMessage, body string, direction models.TransactionType, f fields) *models.Transaction {
	tx := &models.Transaction{
		Counterparty:   f.counterparty,
		Amount:         f.amount,
		Timestamp:      msg.Timestamp,
		Method:         inferMethod(body),
		Type:           direction,
		AccountSource:  f.accountSource,
		Remark:         buildRemark(f),
		EnrichedSource: models.SourceSMS,
		BalanceAfter:   f.balance,
	}
	tx.NormalizeSign()
	tx.Category = b.categorizer.Categorize(tx)
	return tx
}

// inferMethod guesses the payment rail from body text. ATM is checked first
// so cash withdrawals via card readers classify as ATM, not Card.
func inferMethod(body string) models.PaymentMethod {
	switch {
	case strings.Contains(body, "atm") || strings.Contains(body, "cash withdrawal"):
		return models.MethodATM
	case strings.Contains(body, "upi") || strings.Contains(body, "vpa") || strings.Contains(body, "@"):
		return models.MethodUPI
	case strings.Contains(body, "card"):
		return models.MethodCard
	default:
		return models.MethodBank
	}
}

func buildRemark(f fields) string {
	var parts []string
	if f.accountEnding != "" {
		parts = append(parts, fmt.Sprintf("A/C ...%s", f.accountEnding))
	}
	if f.balance != nil {
		parts = append(parts, fmt.Sprintf("Bal %s", f.balance.String()))
	}
	return strings.Join(parts, " | ")
}
