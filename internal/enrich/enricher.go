// Package enrich applies user-taught knowledge to freshly parsed
// transactions before they reach the merge engine: user-authored
// categorization rules first, learned correction patterns second.
package enrich

import (
	"context"

	"sms-ledger-service/internal/models"
	"sms-ledger-service/pkg/logger"
)

// RuleProvider supplies the user-authored categorization rules.
type RuleProvider interface {
	GetAllRules(ctx context.Context) ([]models.CategorizationRule, error)
}

// CorrectionProvider supplies learned correction patterns by composite key.
type CorrectionProvider interface {
	FindMatching(ctx context.Context, amountRounded, timeBucket int64, source string) (*models.CorrectionPattern, error)
	Upsert(ctx context.Context, pattern models.CorrectionPattern) error
}

// Enricher consults rules and corrections for each parsed transaction.
type Enricher struct {
	rules       RuleProvider
	corrections CorrectionProvider
	logger      logger.Logger
}

// New creates an enricher over the given providers. Either provider may be
// nil, in which case that stage is skipped.
func New(rules RuleProvider, corrections CorrectionProvider) *Enricher {
	return &Enricher{
		rules:       rules,
		corrections: corrections,
		logger:      logger.GetGlobalLogger().WithComponent("enricher"),
	}
}

// Apply enriches one transaction in place and returns it.
//
// Order is significant: a matching rule overwrites the category, tags the
// record RULE, and SKIPS the correction lookup; only rule-less transactions
// consult the learned corrections. Provider failures and malformed learned
// data degrade to "no match" - enrichment never fails a sync.
func (e *Enricher) Apply(ctx context.Context, tx *models.Transaction) *models.Transaction {
	if e.applyRule(ctx, tx) {
		return tx
	}
	e.applyCorrection(ctx, tx)
	return tx
}

// ApplyAll enriches a batch, returning the same slice.
func (e *Enricher) ApplyAll(ctx context.Context, txs []*models.Transaction) []*models.Transaction {
	for _, tx := range txs {
		e.Apply(ctx, tx)
	}
	return txs
}

func (e *Enricher) applyRule(ctx context.Context, tx *models.Transaction) bool {
	if e.rules == nil {
		return false
	}

	rules, err := e.rules.GetAllRules(ctx)
	if err != nil {
		e.logger.WithError(err).Warn("rule lookup failed, continuing without rules")
		return false
	}

	for _, rule := range rules {
		if !rule.Matches(tx.Counterparty) {
			continue
		}
		tx.Category = rule.Category
		tx.EnrichedSource = models.SourceRule
		return true
	}
	return false
}

func (e *Enricher) applyCorrection(ctx context.Context, tx *models.Transaction) {
	if e.corrections == nil {
		return
	}

	amountRounded, timeBucket, source := models.CorrectionKey(tx.Amount, tx.Timestamp, tx.AccountSource)
	pattern, err := e.corrections.FindMatching(ctx, amountRounded, timeBucket, source)
	if err != nil {
		e.logger.WithError(err).Warn("correction lookup failed, continuing without correction")
		return
	}
	if pattern == nil {
		return
	}
	if pattern.Validate() != nil {
		// Malformed learned data is a no-match, never fatal.
		return
	}

	tx.Counterparty = pattern.Counterparty
	if pattern.Category != "" {
		tx.Category = pattern.Category
	}
	tx.EnrichedSource = models.SourceUser
}

// LearnCorrection records a user's manual edit as a correction pattern so
// future parses of similar messages inherit it. A no-op when nothing the
// pattern captures actually changed.
func (e *Enricher) LearnCorrection(ctx context.Context, original, edited *models.Transaction) error {
	if e.corrections == nil {
		return nil
	}
	if original.Counterparty == edited.Counterparty && original.Category == edited.Category {
		return nil
	}

	amountRounded, timeBucket, source := models.CorrectionKey(original.Amount, original.Timestamp, original.AccountSource)
	pattern := models.CorrectionPattern{
		AmountRounded: amountRounded,
		TimeBucket:    timeBucket,
		AccountSource: source,
		Counterparty:  edited.Counterparty,
	}
	if edited.Category != original.Category {
		pattern.Category = edited.Category
	}

	return e.corrections.Upsert(ctx, pattern)
}
