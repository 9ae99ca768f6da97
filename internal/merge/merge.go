// Package merge reconciles freshly parsed transactions against the existing
// ledger. Duplicate detection tolerates clock drift between the message
// timestamp and the committed record; on a duplicate the existing record is
// enriched copy-on-write rather than duplicated or discarded.
//
// The duplicate key is (cent-rounded amount, time within drift, type). It
// deliberately ignores counterparty: two unrelated same-amount transactions
// from different merchants inside the drift window WILL merge into one.
// This mirrors the upstream behavior; Config.StrictCounterparty offers an
// opt-in stricter mode that adds a counterparty compatibility check.
package merge

import (
	"fmt"
	"sort"

	"sms-ledger-service/internal/models"
)

// DefaultTimeDriftMs is the tolerated gap between an existing record and an
// incoming duplicate, five minutes in milliseconds.
const DefaultTimeDriftMs int64 = 300_000

// Config holds the merge engine tuning knobs.
type Config struct {
	// TimeDriftMs is the maximum timestamp difference for two records to be
	// considered the same transaction.
	TimeDriftMs int64 `json:"time_drift_ms"`

	// StrictCounterparty additionally requires counterparties to be
	// compatible (equal, or one of them unknown) before merging. Off by
	// default to preserve the documented same-amount collision behavior.
	StrictCounterparty bool `json:"strict_counterparty"`
}

// DefaultConfig returns a configuration with the standard drift window and
// strict mode off.
func DefaultConfig() *Config {
	return &Config{TimeDriftMs: DefaultTimeDriftMs}
}

// Validate checks if the merge configuration is valid
func (c *Config) Validate() error {
	if c.TimeDriftMs < 0 {
		return fmt.Errorf("time drift cannot be negative: %d", c.TimeDriftMs)
	}
	return nil
}

// Engine reconciles incoming batches against a ledger snapshot.
type Engine struct {
	config *Config
}

// NewEngine creates a merge engine with the specified configuration.
func NewEngine(config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{config: config}
}

// Result summarizes one merge pass.
type Result struct {
	Ledger   []*models.Transaction
	Appended int
	Enriched int
}

// Merge reconciles incoming transactions against the existing ledger and
// returns the new ledger ordered by timestamp descending. It is pure and
// deterministic: neither input slice nor any record in them is mutated, and
// re-merging the same batch produces no further changes.
func (e *Engine) Merge(existing, incoming []*models.Transaction) *Result {
	ledger := make([]*models.Transaction, len(existing))
	copy(ledger, existing)

	result := &Result{}

	for _, in := range incoming {
		idx := e.findDuplicate(ledger, in)
		if idx < 0 {
			ledger = append(ledger, in.Clone())
			result.Appended++
			continue
		}

		enriched := e.enrich(ledger[idx], in)
		if enriched != ledger[idx] {
			result.Enriched++
		}
		ledger[idx] = enriched
	}

	// Stable sort keeps input append order for equal timestamps.
	sort.SliceStable(ledger, func(i, j int) bool {
		return ledger[i].Timestamp > ledger[j].Timestamp
	})

	result.Ledger = ledger
	return result
}

// findDuplicate returns the index of the first existing record (in current
// ledger order) matching the incoming transaction's duplicate key, or -1.
func (e *Engine) findDuplicate(ledger []*models.Transaction, in *models.Transaction) int {
	for i, ex := range ledger {
		if ex.AmountCents() != in.AmountCents() {
			continue
		}
		if ex.Type != in.Type {
			continue
		}
		drift := ex.Timestamp - in.Timestamp
		if drift < 0 {
			drift = -drift
		}
		if drift > e.config.TimeDriftMs {
			continue
		}
		if e.config.StrictCounterparty && !compatibleCounterparties(ex.Counterparty, in.Counterparty) {
			continue
		}
		return i
	}
	return -1
}

func compatibleCounterparties(a, b string) bool {
	if models.IsUnknownCounterparty(a) || models.IsUnknownCounterparty(b) {
		return true
	}
	return a == b
}

// enrich produces an updated copy of the existing record, pulling fields
// from the incoming one only where the existing value is a known-weak
// sentinel. Existing data is authoritative; the record's identity is never
// discarded. Returns the existing pointer unchanged when nothing improves.
func (e *Engine) enrich(existing, incoming *models.Transaction) *models.Transaction {
	replaceCounterparty := models.IsUnknownCounterparty(existing.Counterparty) &&
		!models.IsUnknownCounterparty(incoming.Counterparty)

	replaceSource := models.IsGenericSource(existing.AccountSource) &&
		!models.IsGenericSource(incoming.AccountSource)

	fillRemark := existing.Remark == "" && incoming.Remark != ""

	replaceCategory := existing.Category == models.CategoryGeneral &&
		incoming.Category != models.CategoryGeneral

	fillBalance := existing.BalanceAfter == nil && incoming.BalanceAfter != nil

	if !replaceCounterparty && !replaceSource && !fillRemark && !replaceCategory && !fillBalance {
		return existing
	}

	enriched := existing.Clone()
	if replaceCounterparty {
		enriched.Counterparty = incoming.Counterparty
	}
	if replaceSource {
		enriched.AccountSource = incoming.AccountSource
	}
	if fillRemark {
		enriched.Remark = incoming.Remark
	}
	if replaceCategory {
		enriched.Category = incoming.Category
	}
	if fillBalance {
		bal := *incoming.BalanceAfter
		enriched.BalanceAfter = &bal
	}
	return enriched
}
