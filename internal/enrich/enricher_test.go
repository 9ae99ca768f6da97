package enrich

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"sms-ledger-service/internal/models"
)

type fakeRules struct {
	rules []models.CategorizationRule
	err   error
}

func (f *fakeRules) GetAllRules(ctx context.Context) ([]models.CategorizationRule, error) {
	return f.rules, f.err
}

type fakeCorrections struct {
	patterns  map[string]models.CorrectionPattern
	findErr   error
	upsertErr error
}

func newFakeCorrections() *fakeCorrections {
	return &fakeCorrections{patterns: make(map[string]models.CorrectionPattern)}
}

func correctionMapKey(amountRounded, timeBucket int64, source string) string {
	return fmt.Sprintf("%d|%d|%s", amountRounded, timeBucket, source)
}

func (f *fakeCorrections) FindMatching(ctx context.Context, amountRounded, timeBucket int64, source string) (*models.CorrectionPattern, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	p, ok := f.patterns[correctionMapKey(amountRounded, timeBucket, source)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeCorrections) Upsert(ctx context.Context, pattern models.CorrectionPattern) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.patterns[correctionMapKey(pattern.KeyOf())] = pattern
	return nil
}

func testTransaction() *models.Transaction {
	return &models.Transaction{
		Counterparty:   "SWIGGY",
		Category:       models.CategoryGeneral,
		Amount:         decimal.NewFromFloat(-450.00),
		Timestamp:      1_700_000_000_000,
		Method:         models.MethodUPI,
		Type:           models.TransactionTypeDebit,
		AccountSource:  "HDFCBK",
		EnrichedSource: models.SourceSMS,
	}
}

func TestApplyRuleMatch(t *testing.T) {
	enricher := New(&fakeRules{rules: []models.CategorizationRule{
		{MerchantPattern: "swiggy", Category: "Food & Dining"},
	}}, newFakeCorrections())

	tx := testTransaction()
	enricher.Apply(context.Background(), tx)

	if tx.Category != "Food & Dining" {
		t.Errorf("expected category Food & Dining, got %s", tx.Category)
	}
	if tx.EnrichedSource != models.SourceRule {
		t.Errorf("expected enriched source RULE, got %s", tx.EnrichedSource)
	}
}

func TestRuleTakesPrecedenceOverCorrection(t *testing.T) {
	corrections := newFakeCorrections()
	tx := testTransaction()
	amountRounded, timeBucket, source := models.CorrectionKey(tx.Amount, tx.Timestamp, tx.AccountSource)
	corrections.patterns[correctionMapKey(amountRounded, timeBucket, source)] = models.CorrectionPattern{
		AmountRounded: amountRounded,
		TimeBucket:    timeBucket,
		AccountSource: source,
		Counterparty:  "SWIGGY INSTAMART",
		Category:      "Groceries",
	}

	enricher := New(&fakeRules{rules: []models.CategorizationRule{
		{MerchantPattern: "swiggy", Category: "Food & Dining"},
	}}, corrections)

	enricher.Apply(context.Background(), tx)

	if tx.Category != "Food & Dining" {
		t.Errorf("rule should win over correction, got category %s", tx.Category)
	}
	if tx.Counterparty != "SWIGGY" {
		t.Errorf("correction should be skipped when a rule matched, got counterparty %s", tx.Counterparty)
	}
	if tx.EnrichedSource != models.SourceRule {
		t.Errorf("expected enriched source RULE, got %s", tx.EnrichedSource)
	}
}

func TestApplyCorrectionMatch(t *testing.T) {
	corrections := newFakeCorrections()
	tx := testTransaction()
	amountRounded, timeBucket, source := models.CorrectionKey(tx.Amount, tx.Timestamp, tx.AccountSource)
	corrections.patterns[correctionMapKey(amountRounded, timeBucket, source)] = models.CorrectionPattern{
		AmountRounded: amountRounded,
		TimeBucket:    timeBucket,
		AccountSource: source,
		Counterparty:  "OFFICE LUNCH",
		Category:      "Food & Dining",
	}

	enricher := New(&fakeRules{}, corrections)
	enricher.Apply(context.Background(), tx)

	if tx.Counterparty != "OFFICE LUNCH" {
		t.Errorf("expected corrected counterparty, got %s", tx.Counterparty)
	}
	if tx.Category != "Food & Dining" {
		t.Errorf("expected corrected category, got %s", tx.Category)
	}
	if tx.EnrichedSource != models.SourceUser {
		t.Errorf("expected enriched source USER, got %s", tx.EnrichedSource)
	}
}

func TestCorrectionWithoutCategoryKeepsExisting(t *testing.T) {
	corrections := newFakeCorrections()
	tx := testTransaction()
	tx.Category = "Shopping"
	amountRounded, timeBucket, source := models.CorrectionKey(tx.Amount, tx.Timestamp, tx.AccountSource)
	corrections.patterns[correctionMapKey(amountRounded, timeBucket, source)] = models.CorrectionPattern{
		AmountRounded: amountRounded,
		TimeBucket:    timeBucket,
		AccountSource: source,
		Counterparty:  "AMAZON RETAIL",
	}

	enricher := New(nil, corrections)
	enricher.Apply(context.Background(), tx)

	if tx.Counterparty != "AMAZON RETAIL" {
		t.Errorf("expected corrected counterparty, got %s", tx.Counterparty)
	}
	if tx.Category != "Shopping" {
		t.Errorf("category-less correction must not clear category, got %s", tx.Category)
	}
}

func TestMalformedCorrectionIsNoMatch(t *testing.T) {
	corrections := newFakeCorrections()
	tx := testTransaction()
	amountRounded, timeBucket, source := models.CorrectionKey(tx.Amount, tx.Timestamp, tx.AccountSource)
	corrections.patterns[correctionMapKey(amountRounded, timeBucket, source)] = models.CorrectionPattern{
		AmountRounded: amountRounded,
		TimeBucket:    timeBucket,
		AccountSource: source,
		Counterparty:  "", // fails validation
	}

	enricher := New(nil, corrections)
	enricher.Apply(context.Background(), tx)

	if tx.Counterparty != "SWIGGY" {
		t.Errorf("malformed correction must not apply, got counterparty %s", tx.Counterparty)
	}
	if tx.EnrichedSource != models.SourceSMS {
		t.Errorf("malformed correction must not tag the transaction, got %s", tx.EnrichedSource)
	}
}

func TestProviderFailuresDegradeToNoMatch(t *testing.T) {
	enricher := New(
		&fakeRules{err: fmt.Errorf("rules table unavailable")},
		&fakeCorrections{findErr: fmt.Errorf("corrections table unavailable")},
	)

	tx := testTransaction()
	enricher.Apply(context.Background(), tx)

	if tx.Category != models.CategoryGeneral || tx.EnrichedSource != models.SourceSMS {
		t.Errorf("provider failures must leave the transaction untouched, got %s/%s",
			tx.Category, tx.EnrichedSource)
	}
}

func TestLearnCorrection(t *testing.T) {
	corrections := newFakeCorrections()
	enricher := New(nil, corrections)

	original := testTransaction()
	edited := original.Clone()
	edited.Counterparty = "OFFICE LUNCH"
	edited.Category = "Food & Dining"

	if err := enricher.LearnCorrection(context.Background(), original, edited); err != nil {
		t.Fatalf("LearnCorrection failed: %v", err)
	}

	amountRounded, timeBucket, source := models.CorrectionKey(original.Amount, original.Timestamp, original.AccountSource)
	pattern, err := corrections.FindMatching(context.Background(), amountRounded, timeBucket, source)
	if err != nil {
		t.Fatalf("FindMatching failed: %v", err)
	}
	if pattern == nil {
		t.Fatal("expected a learned pattern")
	}
	if pattern.Counterparty != "OFFICE LUNCH" || pattern.Category != "Food & Dining" {
		t.Errorf("unexpected pattern %+v", pattern)
	}
}

func TestLearnCorrectionNoChangeIsNoop(t *testing.T) {
	corrections := newFakeCorrections()
	enricher := New(nil, corrections)

	original := testTransaction()
	edited := original.Clone()
	edited.Remark = "edited remark only"

	if err := enricher.LearnCorrection(context.Background(), original, edited); err != nil {
		t.Fatalf("LearnCorrection failed: %v", err)
	}
	if len(corrections.patterns) != 0 {
		t.Errorf("expected no pattern for a non-identity edit, got %d", len(corrections.patterns))
	}
}
