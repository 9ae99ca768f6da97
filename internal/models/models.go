package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the direction of a transaction
type TransactionType string

const (
	// TransactionTypeDebit represents money leaving the account
	TransactionTypeDebit TransactionType = "DEBIT"
	// TransactionTypeCredit represents money entering the account
	TransactionTypeCredit TransactionType = "CREDIT"
)

// String returns the string representation of TransactionType
func (t TransactionType) String() string {
	return string(t)
}

// IsValid checks if the transaction type is valid
func (t TransactionType) IsValid() bool {
	return t == TransactionTypeDebit || t == TransactionTypeCredit
}

// PaymentMethod represents the payment rail a transaction travelled on
type PaymentMethod string

const (
	MethodUPI  PaymentMethod = "UPI"
	MethodATM  PaymentMethod = "ATM"
	MethodCard PaymentMethod = "Card"
	MethodBank PaymentMethod = "Bank"
)

// IsValid checks if the payment method is one of the known rails
func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodUPI, MethodATM, MethodCard, MethodBank:
		return true
	}
	return false
}

// EnrichmentSource tags where a transaction's current field values came from
type EnrichmentSource string

const (
	// SourceSMS marks a transaction as parsed from a message, untouched since
	SourceSMS EnrichmentSource = "SMS"
	// SourceRule marks a transaction categorized by a user-authored rule
	SourceRule EnrichmentSource = "RULE"
	// SourceUser marks a transaction rewritten by a learned user correction
	SourceUser EnrichmentSource = "USER"
	// SourceMLKit marks a transaction enriched by an on-device model
	SourceMLKit EnrichmentSource = "AI-MLKIT"
)

// Sentinel counterparty and category values produced by the parser when it
// cannot do better. Downstream merge logic treats these as low-confidence
// values that may be overwritten.
const (
	CounterpartyUnknown = "UNKNOWN MERCHANT"
	CounterpartyBank    = "BANK TRANSACTION"
	CategoryGeneral     = "General"
)

// Amount acceptance band used during extraction. Values at or outside the
// band are extraction noise (phone numbers, reference ids), never stored.
var (
	MinAmount = decimal.NewFromInt(1)
	MaxAmount = decimal.NewFromInt(2_000_000)
)

// TimeBucketMillis is the width of a correction-pattern time bucket.
const TimeBucketMillis int64 = 600_000

// RawMessage is an unparsed notification message. Ephemeral input, never
// persisted.
type RawMessage struct {
	Body      string `json:"body"`
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp"`
}

// Transaction is the ledger's unit of record.
//
// The amount sign redundantly encodes direction: negative for DEBIT,
// positive for CREDIT. NormalizeSign enforces the invariant.
type Transaction struct {
	ID             int64            `json:"id"`
	Counterparty   string           `json:"counterparty"`
	Category       string           `json:"category"`
	Amount         decimal.Decimal  `json:"amount"`
	Timestamp      int64            `json:"timestamp"`
	Method         PaymentMethod    `json:"method"`
	Type           TransactionType  `json:"type"`
	AccountSource  string           `json:"accountSource"`
	Remark         string           `json:"remark,omitempty"`
	EnrichedSource EnrichmentSource `json:"enrichedSource,omitempty"`
	BalanceAfter   *decimal.Decimal `json:"balanceAfter,omitempty"`
	IsRecurring    bool             `json:"isRecurring"`
}

// IsNew reports whether the transaction has not yet been persisted.
func (t *Transaction) IsNew() bool {
	return t.ID == 0
}

// IsDebit returns true if the transaction is a debit
func (t *Transaction) IsDebit() bool {
	return t.Type == TransactionTypeDebit
}

// IsCredit returns true if the transaction is a credit
func (t *Transaction) IsCredit() bool {
	return t.Type == TransactionTypeCredit
}

// AbsAmount returns the magnitude of the transaction amount
func (t *Transaction) AbsAmount() decimal.Decimal {
	return t.Amount.Abs()
}

// Time returns the transaction timestamp as a time.Time in UTC
func (t *Transaction) Time() time.Time {
	return time.UnixMilli(t.Timestamp).UTC()
}

// AmountCents returns the amount rounded to cents as an integer. This is the
// amount component of the merge duplicate key.
func (t *Transaction) AmountCents() int64 {
	return t.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// NormalizeSign rewrites Amount so its sign agrees with Type: negative for
// DEBIT, positive for CREDIT.
func (t *Transaction) NormalizeSign() {
	abs := t.Amount.Abs()
	if t.Type == TransactionTypeDebit {
		t.Amount = abs.Neg()
	} else {
		t.Amount = abs
	}
}

// Validate performs basic validation on the Transaction
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.Counterparty) == "" {
		return fmt.Errorf("transaction counterparty cannot be empty")
	}

	if !t.Type.IsValid() {
		return fmt.Errorf("invalid transaction type: %s", t.Type)
	}

	if !t.Method.IsValid() {
		return fmt.Errorf("invalid payment method: %s", t.Method)
	}

	if t.Amount.IsZero() {
		return fmt.Errorf("transaction amount cannot be zero")
	}

	if t.Timestamp <= 0 {
		return fmt.Errorf("transaction timestamp must be positive")
	}

	if t.Type == TransactionTypeDebit && t.Amount.IsPositive() ||
		t.Type == TransactionTypeCredit && t.Amount.IsNegative() {
		return fmt.Errorf("amount sign %s disagrees with type %s", t.Amount.String(), t.Type)
	}

	return nil
}

// Clone returns a deep copy of the transaction. Merge enrichment is
// copy-on-write; the engine never mutates a record it was handed.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}

	clone := *t
	if t.BalanceAfter != nil {
		bal := *t.BalanceAfter
		clone.BalanceAfter = &bal
	}
	return &clone
}

// String returns a string representation of the Transaction
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %d, Counterparty: %s, Amount: %s, Type: %s, Time: %s}",
		t.ID, t.Counterparty, t.Amount.String(), t.Type, t.Time().Format(time.RFC3339))
}

// MarshalJSON implements custom JSON marshaling for Transaction
func (t *Transaction) MarshalJSON() ([]byte, error) {
	type Alias Transaction
	aux := &struct {
		Amount       string `json:"amount"`
		BalanceAfter string `json:"balanceAfter,omitempty"`
		*Alias
	}{
		Amount: t.Amount.String(),
		Alias:  (*Alias)(t),
	}
	if t.BalanceAfter != nil {
		aux.BalanceAfter = t.BalanceAfter.String()
	}
	return json.Marshal(aux)
}

// UnmarshalJSON implements custom JSON unmarshaling for Transaction
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type Alias Transaction
	aux := &struct {
		Amount       string `json:"amount"`
		BalanceAfter string `json:"balanceAfter,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(t),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	t.Amount, err = decimal.NewFromString(aux.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount format: %w", err)
	}

	if aux.BalanceAfter != "" {
		bal, err := decimal.NewFromString(aux.BalanceAfter)
		if err != nil {
			return fmt.Errorf("invalid balance format: %w", err)
		}
		t.BalanceAfter = &bal
	}

	return nil
}

// CorrectionPattern is a learned counterparty/category mapping created when a
// user manually edits a parsed transaction. It is keyed by the composite
// (rounded amount, 10-minute time bucket, account source).
type CorrectionPattern struct {
	AmountRounded int64  `json:"amountRounded"`
	TimeBucket    int64  `json:"timeBucket"`
	AccountSource string `json:"accountSource"`
	Counterparty  string `json:"counterparty"`
	Category      string `json:"category,omitempty"`
}

// Validate checks the pattern carries enough data to be applied. A pattern
// failing validation is treated as "no match" by the enrichment pipeline.
func (p *CorrectionPattern) Validate() error {
	if strings.TrimSpace(p.AccountSource) == "" {
		return fmt.Errorf("correction pattern account source cannot be empty")
	}
	if strings.TrimSpace(p.Counterparty) == "" {
		return fmt.Errorf("correction pattern counterparty cannot be empty")
	}
	if p.TimeBucket < 0 {
		return fmt.Errorf("correction pattern time bucket cannot be negative")
	}
	return nil
}

// CorrectionKey derives the composite correction-pattern key from a
// transaction's amount, timestamp, and account source.
//
// The derivation must be bit-exact between the writer (learning a correction
// from a user edit) and the reader (looking one up during enrichment):
// half-away-from-zero rounding of the signed amount, integer division of the
// millisecond timestamp by the bucket width.
func CorrectionKey(amount decimal.Decimal, timestampMs int64, accountSource string) (amountRounded, timeBucket int64, source string) {
	return amount.Round(0).IntPart(), timestampMs / TimeBucketMillis, accountSource
}

// KeyOf returns the pattern's composite key components.
func (p *CorrectionPattern) KeyOf() (int64, int64, string) {
	return p.AmountRounded, p.TimeBucket, p.AccountSource
}

// CategorizationRule is a user-authored merchant-pattern to category mapping.
// Rules are unique on MerchantPattern and take precedence over learned
// correction patterns during enrichment.
type CategorizationRule struct {
	MerchantPattern string `json:"merchantPattern"`
	Category        string `json:"category"`
}

// Validate checks the rule is applicable. An invalid rule is skipped by the
// enrichment pipeline, never fatal.
func (r *CategorizationRule) Validate() error {
	if strings.TrimSpace(r.MerchantPattern) == "" {
		return fmt.Errorf("rule merchant pattern cannot be empty")
	}
	if strings.TrimSpace(r.Category) == "" {
		return fmt.Errorf("rule category cannot be empty")
	}
	return nil
}

// Matches reports whether the rule applies to the given counterparty. The
// match is a case-insensitive substring test.
func (r *CategorizationRule) Matches(counterparty string) bool {
	if r.Validate() != nil {
		return false
	}
	return strings.Contains(strings.ToLower(counterparty), strings.ToLower(r.MerchantPattern))
}

// IsUnknownCounterparty reports whether a counterparty value is one of the
// low-confidence placeholders ("Unknown", "UNKNOWN MERCHANT").
func IsUnknownCounterparty(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return lower == "unknown" || lower == strings.ToLower(CounterpartyUnknown)
}

// IsGenericSource reports whether an account source names a payment rail
// rather than a bank. Generic sources are lower quality and may be replaced
// during merge enrichment.
func IsGenericSource(source string) bool {
	lower := strings.ToLower(source)
	for _, marker := range []string{"upi", "gpay", "paytm", "unknown"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// WithinAmountBand reports whether an amount magnitude falls inside the
// extraction acceptance band (exclusive on both ends).
func WithinAmountBand(amount decimal.Decimal) bool {
	abs := amount.Abs()
	return abs.GreaterThan(MinAmount) && abs.LessThan(MaxAmount)
}

// ParseTransactionType parses and validates a transaction type from string
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBIT", "D", "DR":
		return TransactionTypeDebit, nil
	case "CREDIT", "C", "CR":
		return TransactionTypeCredit, nil
	default:
		return "", fmt.Errorf("invalid transaction type '%s': must be DEBIT or CREDIT", s)
	}
}

// ParsePaymentMethod parses a payment method from string
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "upi":
		return MethodUPI, nil
	case "atm":
		return MethodATM, nil
	case "card":
		return MethodCard, nil
	case "bank":
		return MethodBank, nil
	default:
		return "", fmt.Errorf("invalid payment method '%s'", s)
	}
}

// ParseDecimalFromString parses a decimal value from string, stripping
// currency symbols and thousand separators commonly found in message text.
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.ReplaceAll(s, "₹", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}
