package recurring

import (
	"testing"

	"github.com/shopspring/decimal"

	"sms-ledger-service/internal/models"
)

const dayMs = int64(24 * 60 * 60 * 1000)

func debitAt(counterparty string, amount float64, timestamp int64) *models.Transaction {
	return &models.Transaction{
		Counterparty:   counterparty,
		Category:       models.CategoryGeneral,
		Amount:         decimal.NewFromFloat(-amount),
		Timestamp:      timestamp,
		Method:         models.MethodUPI,
		Type:           models.TransactionTypeDebit,
		AccountSource:  "HDFCBK",
		EnrichedSource: models.SourceSMS,
	}
}

func countRecurring(txs []*models.Transaction) int {
	n := 0
	for _, tx := range txs {
		if tx.IsRecurring {
			n++
		}
	}
	return n
}

func TestDetectMonthlySubscription(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	base := int64(1_700_000_000_000)
	input := []*models.Transaction{
		debitAt("NETFLIX", 649, base),
		debitAt("NETFLIX", 649, base+30*dayMs),
		debitAt("NETFLIX", 649, base+60*dayMs),
		debitAt("SWIGGY", 450, base+5*dayMs),
	}

	result := detector.Detect(input)

	for i := 0; i < 3; i++ {
		if !result[i].IsRecurring {
			t.Errorf("NETFLIX charge %d not flagged", i)
		}
	}
	if result[3].IsRecurring {
		t.Error("one-off SWIGGY charge must not be flagged")
	}
	// Pure function: input untouched, order preserved.
	if input[0].IsRecurring {
		t.Error("input record was mutated")
	}
	if result[3].Counterparty != "SWIGGY" {
		t.Error("output order not preserved")
	}
}

func TestDetectWholegroupFlagging(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	// Two charges 30 days apart plus an extra one-off 3 days later: the
	// matching pair flags the whole merchant group.
	base := int64(1_700_000_000_000)
	input := []*models.Transaction{
		debitAt("NETFLIX", 649, base),
		debitAt("NETFLIX", 649, base+30*dayMs),
		debitAt("NETFLIX", 1200, base+33*dayMs),
	}

	result := detector.Detect(input)
	if countRecurring(result) != 3 {
		t.Errorf("expected the whole group flagged, got %d", countRecurring(result))
	}
}

func TestDetectSingleChargeNotFlagged(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	result := detector.Detect([]*models.Transaction{
		debitAt("NETFLIX", 649, 1_700_000_000_000),
	})
	if countRecurring(result) != 0 {
		t.Error("a single charge must not be flagged")
	}
}

func TestDetectWeeklyCadence(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	base := int64(1_700_000_000_000)
	result := detector.Detect([]*models.Transaction{
		debitAt("GYM CLASS", 500, base),
		debitAt("GYM CLASS", 500, base+7*dayMs),
	})
	if countRecurring(result) != 2 {
		t.Errorf("expected weekly pair flagged, got %d", countRecurring(result))
	}
}

func TestDetectQuarterlyCadence(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	base := int64(1_700_000_000_000)
	result := detector.Detect([]*models.Transaction{
		debitAt("INSURANCE PREMIUM", 4500, base),
		debitAt("INSURANCE PREMIUM", 4500, base+90*dayMs),
	})
	if countRecurring(result) != 2 {
		t.Errorf("expected quarterly pair flagged, got %d", countRecurring(result))
	}
}

func TestDetectGapOutsideAllCadences(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	base := int64(1_700_000_000_000)
	result := detector.Detect([]*models.Transaction{
		debitAt("NETFLIX", 649, base),
		debitAt("NETFLIX", 649, base+15*dayMs),
	})
	if countRecurring(result) != 0 {
		t.Error("a 15-day gap fits no cadence")
	}
}

func TestDetectAmountVarianceTooLarge(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	base := int64(1_700_000_000_000)
	result := detector.Detect([]*models.Transaction{
		debitAt("SWIGGY", 450, base),
		debitAt("SWIGGY", 900, base+30*dayMs),
	})
	if countRecurring(result) != 0 {
		t.Error("doubled amount must not count as recurring")
	}
}

func TestDetectFlatFeeDeltaFallback(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	// 5.00 vs 6.50: 30% relative variance fails, but the absolute delta
	// of 1.50 is under the flat-fee threshold.
	base := int64(1_700_000_000_000)
	result := detector.Detect([]*models.Transaction{
		debitAt("CLOUD STORAGE", 5.00, base),
		debitAt("CLOUD STORAGE", 6.50, base+30*dayMs),
	})
	if countRecurring(result) != 2 {
		t.Errorf("flat-fee fallback should flag the pair, got %d", countRecurring(result))
	}
}

func TestDetectSkipsCreditsAndUnknown(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	base := int64(1_700_000_000_000)
	salary := &models.Transaction{
		Counterparty:   "ACME PAYROLL",
		Amount:         decimal.NewFromInt(50000),
		Timestamp:      base,
		Type:           models.TransactionTypeCredit,
		EnrichedSource: models.SourceSMS,
	}
	salary2 := salary.Clone()
	salary2.Timestamp = base + 30*dayMs

	result := detector.Detect([]*models.Transaction{
		salary, salary2,
		debitAt(models.CounterpartyUnknown, 450, base),
		debitAt(models.CounterpartyUnknown, 450, base+30*dayMs),
	})
	if countRecurring(result) != 0 {
		t.Error("credits and unknown counterparties must be skipped")
	}
}
