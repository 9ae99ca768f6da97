package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestTransactionType_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		txType   TransactionType
		expected bool
	}{
		{"valid debit", TransactionTypeDebit, true},
		{"valid credit", TransactionTypeCredit, true},
		{"invalid type", TransactionType("TRANSFER"), false},
		{"empty type", TransactionType(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.txType.IsValid(); got != tt.expected {
				t.Errorf("IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTransaction_NormalizeSign(t *testing.T) {
	tests := []struct {
		name     string
		amount   decimal.Decimal
		txType   TransactionType
		expected decimal.Decimal
	}{
		{"debit positive flips negative", decimal.NewFromInt(500), TransactionTypeDebit, decimal.NewFromInt(-500)},
		{"debit negative stays negative", decimal.NewFromInt(-500), TransactionTypeDebit, decimal.NewFromInt(-500)},
		{"credit negative flips positive", decimal.NewFromInt(-250), TransactionTypeCredit, decimal.NewFromInt(250)},
		{"credit positive stays positive", decimal.NewFromInt(250), TransactionTypeCredit, decimal.NewFromInt(250)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &Transaction{Amount: tt.amount, Type: tt.txType}
			tx.NormalizeSign()
			if !tx.Amount.Equal(tt.expected) {
				t.Errorf("NormalizeSign() amount = %s, want %s", tx.Amount, tt.expected)
			}
		})
	}
}

func TestTransaction_Validate_SignInvariant(t *testing.T) {
	tx := &Transaction{
		Counterparty: "SWIGGY",
		Category:     CategoryGeneral,
		Amount:       decimal.NewFromInt(500), // positive amount on a debit
		Timestamp:    1700000000000,
		Method:       MethodUPI,
		Type:         TransactionTypeDebit,
	}

	if err := tx.Validate(); err == nil {
		t.Error("expected validation error for positive DEBIT amount")
	}

	tx.NormalizeSign()
	if err := tx.Validate(); err != nil {
		t.Errorf("unexpected validation error after NormalizeSign: %v", err)
	}
}

func TestTransaction_AmountCents(t *testing.T) {
	tests := []struct {
		amount   string
		expected int64
	}{
		{"-500", -50000},
		{"499.99", 49999},
		{"0.005", 1},
		{"123.456", 12346},
	}

	for _, tt := range tests {
		amount, _ := decimal.NewFromString(tt.amount)
		tx := &Transaction{Amount: amount}
		if got := tx.AmountCents(); got != tt.expected {
			t.Errorf("AmountCents(%s) = %d, want %d", tt.amount, got, tt.expected)
		}
	}
}

func TestTransaction_Clone(t *testing.T) {
	bal := decimal.NewFromInt(45000)
	original := &Transaction{
		ID:           7,
		Counterparty: "NETFLIX",
		Amount:       decimal.NewFromInt(-499),
		Type:         TransactionTypeDebit,
		BalanceAfter: &bal,
	}

	clone := original.Clone()
	clone.Counterparty = "CHANGED"
	newBal := decimal.NewFromInt(1)
	clone.BalanceAfter = &newBal

	if original.Counterparty != "NETFLIX" {
		t.Error("clone mutation leaked into original counterparty")
	}
	if !original.BalanceAfter.Equal(bal) {
		t.Error("clone mutation leaked into original balance")
	}
}

func TestCorrectionKey(t *testing.T) {
	tests := []struct {
		name          string
		amount        string
		timestampMs   int64
		source        string
		wantRounded   int64
		wantBucket    int64
	}{
		{"exact amount", "-500", 1700000000000, "HDFC", -500, 2833333},
		{"rounds half away from zero", "-499.5", 600000, "SBI", -500, 1},
		{"rounds down", "120.4", 599999, "ICICI", 120, 0},
		{"bucket boundary", "10", 1200000, "AXIS", 10, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, _ := decimal.NewFromString(tt.amount)
			rounded, bucket, source := CorrectionKey(amount, tt.timestampMs, tt.source)
			if rounded != tt.wantRounded {
				t.Errorf("amountRounded = %d, want %d", rounded, tt.wantRounded)
			}
			if bucket != tt.wantBucket {
				t.Errorf("timeBucket = %d, want %d", bucket, tt.wantBucket)
			}
			if source != tt.source {
				t.Errorf("source = %s, want %s", source, tt.source)
			}
		})
	}
}

func TestCorrectionKey_WriterReaderAgreement(t *testing.T) {
	// The key computed when learning a correction must equal the key computed
	// when looking it up for the same transaction.
	amount, _ := decimal.NewFromString("-1249.50")
	ts := int64(1699999999123)

	r1, b1, s1 := CorrectionKey(amount, ts, "HDFC")
	r2, b2, s2 := CorrectionKey(amount, ts, "HDFC")

	if r1 != r2 || b1 != b2 || s1 != s2 {
		t.Errorf("key derivation is not deterministic: (%d,%d,%s) vs (%d,%d,%s)", r1, b1, s1, r2, b2, s2)
	}
}

func TestCategorizationRule_Matches(t *testing.T) {
	tests := []struct {
		name         string
		rule         CategorizationRule
		counterparty string
		expected     bool
	}{
		{"case-insensitive substring", CategorizationRule{MerchantPattern: "swiggy", Category: "Food"}, "SWIGGY BANGALORE", true},
		{"no match", CategorizationRule{MerchantPattern: "zomato", Category: "Food"}, "SWIGGY", false},
		{"empty pattern never matches", CategorizationRule{MerchantPattern: "", Category: "Food"}, "SWIGGY", false},
		{"empty category never matches", CategorizationRule{MerchantPattern: "swiggy", Category: ""}, "SWIGGY", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.Matches(tt.counterparty); got != tt.expected {
				t.Errorf("Matches(%q) = %v, want %v", tt.counterparty, got, tt.expected)
			}
		})
	}
}

func TestIsUnknownCounterparty(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{"Unknown", true},
		{"unknown", true},
		{"UNKNOWN MERCHANT", true},
		{"SWIGGY", false},
		{"BANK TRANSACTION", false},
	}

	for _, tt := range tests {
		if got := IsUnknownCounterparty(tt.name); got != tt.expected {
			t.Errorf("IsUnknownCounterparty(%q) = %v, want %v", tt.name, got, tt.expected)
		}
	}
}

func TestIsGenericSource(t *testing.T) {
	tests := []struct {
		source   string
		expected bool
	}{
		{"UPI", true},
		{"GPay", true},
		{"Paytm Wallet", true},
		{"unknown", true},
		{"HDFC", false},
		{"SBI", false},
	}

	for _, tt := range tests {
		if got := IsGenericSource(tt.source); got != tt.expected {
			t.Errorf("IsGenericSource(%q) = %v, want %v", tt.source, got, tt.expected)
		}
	}
}

func TestWithinAmountBand(t *testing.T) {
	tests := []struct {
		amount   string
		expected bool
	}{
		{"1", false},        // exclusive lower bound
		{"1.01", true},
		{"500", true},
		{"-500", true},      // magnitude is what counts
		{"1999999.99", true},
		{"2000000", false},  // exclusive upper bound
		{"2000001", false},
	}

	for _, tt := range tests {
		amount, _ := decimal.NewFromString(tt.amount)
		if got := WithinAmountBand(amount); got != tt.expected {
			t.Errorf("WithinAmountBand(%s) = %v, want %v", tt.amount, got, tt.expected)
		}
	}
}

func TestTransaction_JSONRoundTrip(t *testing.T) {
	bal := decimal.NewFromFloat(45000.50)
	tx := &Transaction{
		ID:             3,
		Counterparty:   "SWIGGY",
		Category:       "Food & Dining",
		Amount:         decimal.NewFromFloat(-500.25),
		Timestamp:      1700000000000,
		Method:         MethodUPI,
		Type:           TransactionTypeDebit,
		AccountSource:  "HDFC",
		EnrichedSource: SourceSMS,
		BalanceAfter:   &bal,
	}

	data, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Transaction
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if !decoded.Amount.Equal(tx.Amount) {
		t.Errorf("amount round trip: got %s, want %s", decoded.Amount, tx.Amount)
	}
	if decoded.BalanceAfter == nil || !decoded.BalanceAfter.Equal(bal) {
		t.Errorf("balance round trip failed: %v", decoded.BalanceAfter)
	}
	if decoded.Counterparty != tx.Counterparty || decoded.Type != tx.Type {
		t.Errorf("field round trip failed: %+v", decoded)
	}
}
