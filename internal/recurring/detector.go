// Package recurring flags periodic merchant charges in a reconciled ledger.
//
// Detection is a post-merge pass over debit transactions grouped by
// counterparty. Cadences are tested in priority order (monthly before weekly
// before quarterly) and the first cadence with any matching adjacent pair
// flags the WHOLE group, not just the matching pair. A merchant with mixed
// one-off and periodic charges is therefore tagged wholesale; this matches
// the upstream behavior and is preserved deliberately.
package recurring

import (
	"fmt"
	"sort"

	"sms-ledger-service/internal/models"

	"github.com/shopspring/decimal"
)

const millisPerDay = 24 * 60 * 60 * 1000

// Cadence is a periodic interval expressed as an inclusive day-gap range.
type Cadence struct {
	Name    string `json:"name"`
	MinDays int64  `json:"min_days"`
	MaxDays int64  `json:"max_days"`
}

// Config holds the detector tuning knobs.
type Config struct {
	// Cadences is tested in order; the first cadence with a matching
	// adjacent pair wins for a group.
	Cadences []Cadence `json:"cadences"`

	// MaxAmountVariance is the relative amount variance below which two
	// charges count as the same recurring amount.
	MaxAmountVariance float64 `json:"max_amount_variance"`

	// MaxAmountDelta is the absolute fallback: flat-fee subscriptions with
	// small fixed amounts can differ by less than this even when the
	// percentage test is too coarse.
	MaxAmountDelta decimal.Decimal `json:"max_amount_delta"`
}

// DefaultConfig returns the standard cadence table: monthly, weekly,
// quarterly, in that priority order.
func DefaultConfig() *Config {
	return &Config{
		Cadences: []Cadence{
			{Name: "monthly", MinDays: 25, MaxDays: 35},
			{Name: "weekly", MinDays: 6, MaxDays: 8},
			{Name: "quarterly", MinDays: 85, MaxDays: 95},
		},
		MaxAmountVariance: 0.20,
		MaxAmountDelta:    decimal.NewFromInt(2),
	}
}

// Validate checks if the detector configuration is valid
func (c *Config) Validate() error {
	if len(c.Cadences) == 0 {
		return fmt.Errorf("cadence table cannot be empty")
	}
	for _, cadence := range c.Cadences {
		if cadence.MinDays <= 0 || cadence.MaxDays < cadence.MinDays {
			return fmt.Errorf("invalid cadence %s: [%d,%d]", cadence.Name, cadence.MinDays, cadence.MaxDays)
		}
	}
	if c.MaxAmountVariance <= 0 || c.MaxAmountVariance >= 1 {
		return fmt.Errorf("amount variance must be in (0,1): %f", c.MaxAmountVariance)
	}
	return nil
}

// Detector flags recurring transactions.
type Detector struct {
	config *Config
}

// NewDetector creates a detector with the specified configuration.
func NewDetector(config *Config) *Detector {
	if config == nil {
		config = DefaultConfig()
	}
	return &Detector{config: config}
}

// Detect returns a copy of the input with IsRecurring set on every member of
// each group that exhibits a cadence. It is a pure function: input records
// are never mutated, order is preserved, and only DEBIT transactions are
// considered (credits keep whatever flag they carried).
func (d *Detector) Detect(transactions []*models.Transaction) []*models.Transaction {
	groups := make(map[string][]*models.Transaction)
	for _, tx := range transactions {
		if !tx.IsDebit() {
			continue
		}
		if models.IsUnknownCounterparty(tx.Counterparty) {
			continue
		}
		groups[tx.Counterparty] = append(groups[tx.Counterparty], tx)
	}

	recurring := make(map[*models.Transaction]bool)
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		if d.groupIsRecurring(group) {
			for _, tx := range group {
				recurring[tx] = true
			}
		}
	}

	result := make([]*models.Transaction, len(transactions))
	for i, tx := range transactions {
		if recurring[tx] && !tx.IsRecurring {
			clone := tx.Clone()
			clone.IsRecurring = true
			result[i] = clone
		} else {
			result[i] = tx
		}
	}
	return result
}

// groupIsRecurring tests a merchant's charges against the cadence table.
// Cadence priority is strict: monthly is decided before weekly is even
// examined, and the first hit wins.
func (d *Detector) groupIsRecurring(group []*models.Transaction) bool {
	sorted := make([]*models.Transaction, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp > sorted[j].Timestamp
	})

	for _, cadence := range d.config.Cadences {
		for i := 0; i+1 < len(sorted); i++ {
			if d.pairMatches(sorted[i], sorted[i+1], cadence) {
				return true
			}
		}
	}
	return false
}

// pairMatches reports whether an adjacent pair fits a cadence: the day gap
// falls in range and the amounts agree by relative variance or by the
// absolute flat-fee fallback.
func (d *Detector) pairMatches(newer, older *models.Transaction, cadence Cadence) bool {
	gapDays := (newer.Timestamp - older.Timestamp) / millisPerDay
	if gapDays < cadence.MinDays || gapDays > cadence.MaxDays {
		return false
	}

	a := newer.AbsAmount()
	b := older.AbsAmount()

	delta := a.Sub(b).Abs()
	if delta.LessThan(d.config.MaxAmountDelta) {
		return true
	}

	larger := decimal.Max(a, b)
	if larger.IsZero() {
		return false
	}
	variance, _ := delta.Div(larger).Float64()
	return variance < d.config.MaxAmountVariance
}
