// Package parser turns raw bank notification messages into transaction
// records using keyword classification and scored regex extraction.
//
// The pipeline is a chain of total functions: a message that cannot be
// classified or whose amount cannot be extracted yields no transaction, never
// an error. All keyword tables are explicit configuration so they can be
// swapped per locale or bank set in tests.
//
// Example usage:
//
//	p, err := parser.New(parser.DefaultConfig(), categorizer)
//	tx, ok := p.Parse(msg)
//	if !ok {
//		// promotional noise or unrecognizable message, drop it
//	}
package parser

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config carries every keyword table and tuning knob the parser uses.
// DefaultConfig covers the common Indian bank SMS formats; a YAML file with
// the same shape can override any table.
type Config struct {
	// RejectKeywords short-circuit classification: a message containing any
	// of these is promotional/OTP noise and never becomes a transaction.
	RejectKeywords []string `yaml:"reject_keywords"`

	// DebitKeywords and CreditKeywords are the direction verbs.
	DebitKeywords  []string `yaml:"debit_keywords"`
	CreditKeywords []string `yaml:"credit_keywords"`

	// BalanceKeywords mark numbers that are balance/limit figures, not the
	// transaction amount.
	BalanceKeywords []string `yaml:"balance_keywords"`

	// BankKeywords is the known bank/issuer token list.
	BankKeywords []string `yaml:"bank_keywords"`

	// BankContextMarkers indicate the message is talking about a bank
	// account (used for the counterparty fallback chain and the body bank
	// token override).
	BankContextMarkers []string `yaml:"bank_context_markers"`

	// NoiseWords are stripped from extracted counterparty tokens.
	NoiseWords []string `yaml:"noise_words"`

	// CounterpartyPatterns is the ORDERED list of extraction regexes, each
	// with exactly one capture group. The first pattern producing a cleaned
	// token of at least MinTokenLength wins.
	CounterpartyPatterns []string `yaml:"counterparty_patterns"`

	// VerbWindow is the distance in characters within which a direction
	// verb counts as "near" an amount candidate. Checked in both orders
	// (verb before number and number before verb).
	VerbWindow int `yaml:"verb_window"`

	// MinTokenLength is the minimum length for an accepted counterparty or
	// bank token.
	MinTokenLength int `yaml:"min_token_length"`
}

// DefaultConfig returns the built-in keyword tables.
func DefaultConfig() *Config {
	return &Config{
		RejectKeywords: []string{
			"otp", "one time password", "win ", "winner", "cashback now",
			"claim", "congratulations", "lucky draw", "offer expires",
			"apply now", "loan approved", "recharge now",
		},
		DebitKeywords: []string{
			"debited", "spent", "paid", "withdrawn", "sent to", "deducted",
			"purchase of", "towards",
		},
		CreditKeywords: []string{
			"credited", "received", "refunded", "deposited", "reversed",
		},
		BalanceKeywords: []string{
			"clr bal", "avl bal", "avbl bal", "available balance", "avl",
			"balance", "bal", "outstanding", "limit", "total due",
		},
		BankKeywords: []string{
			"hdfc", "sbi", "icici", "axis", "kotak", "pnb", "bob", "canara",
			"idfc", "yes", "union", "indusind", "federal", "rbl", "citi",
			"hsbc", "idbi", "uco", "boi",
		},
		BankContextMarkers: []string{
			"a/c", "acct", "account", "ac no", "bal", "balance", "avl",
			"card ending", "neft", "imps",
		},
		NoiseWords: []string{
			"the", "a", "an", "your", "you", "via", "info", "customer",
			"dear", "mr", "ms", "mrs",
		},
		CounterpartyPatterns: []string{
			`paid to ([a-z0-9@&._' -]{2,50})`,
			`vpa ([a-z0-9@._-]{2,60})`,
			`dear ([a-z .']{2,40}?) customer`,
			`to ([a-z0-9@&._' -]{2,50}?) via`,
			`from ([a-z0-9@&._' -]{2,50}?) via`,
			`received from ([a-z0-9@&._' -]{2,50})`,
			`at ([a-z0-9@&._' -]{2,50}?) on `,
		},
		VerbWindow:     160,
		MinTokenLength: 3,
	}
}

// LoadConfig reads a YAML keyword file and overlays it on the defaults:
// tables present in the file replace the built-in ones, absent tables keep
// their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyword file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse keyword file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid keyword file %s: %w", path, err)
	}

	return config, nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if len(c.DebitKeywords) == 0 || len(c.CreditKeywords) == 0 {
		return fmt.Errorf("direction keyword tables cannot be empty")
	}

	if c.VerbWindow <= 0 {
		return fmt.Errorf("verb window must be positive: %d", c.VerbWindow)
	}

	if c.MinTokenLength <= 0 {
		return fmt.Errorf("min token length must be positive: %d", c.MinTokenLength)
	}

	for _, pattern := range c.CounterpartyPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid counterparty pattern %q: %w", pattern, err)
		}
		if re.NumSubexp() != 1 {
			return fmt.Errorf("counterparty pattern %q must have exactly one capture group", pattern)
		}
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	clone := *c
	clone.RejectKeywords = append([]string(nil), c.RejectKeywords...)
	clone.DebitKeywords = append([]string(nil), c.DebitKeywords...)
	clone.CreditKeywords = append([]string(nil), c.CreditKeywords...)
	clone.BalanceKeywords = append([]string(nil), c.BalanceKeywords...)
	clone.BankKeywords = append([]string(nil), c.BankKeywords...)
	clone.BankContextMarkers = append([]string(nil), c.BankContextMarkers...)
	clone.NoiseWords = append([]string(nil), c.NoiseWords...)
	clone.CounterpartyPatterns = append([]string(nil), c.CounterpartyPatterns...)
	return &clone
}
