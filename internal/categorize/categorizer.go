// Package categorize assigns spending categories to transactions using an
// ordered keyword table with special-cased income, refund, and
// cash-withdrawal handling.
package categorize

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"sms-ledger-service/internal/models"
)

// CategoryRule pairs a category name with its substring keywords.
type CategoryRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Config is the ORDERED category keyword table. Declaration order is the
// tie-break: a merchant matching keywords in two categories resolves to
// whichever category is declared first.
type Config struct {
	Categories []CategoryRule `yaml:"categories"`
}

// DefaultConfig returns the built-in category table. Order matters and must
// be preserved.
func DefaultConfig() *Config {
	return &Config{
		Categories: []CategoryRule{
			{Name: "Food & Dining", Keywords: []string{
				"swiggy", "zomato", "restaurant", "cafe", "pizza", "dominos",
				"mcdonald", "kfc", "eatery", "biryani", "dhaba", "food",
			}},
			{Name: "Travel", Keywords: []string{
				"uber", "ola", "rapido", "irctc", "redbus", "makemytrip",
				"goibibo", "indigo", "vistara", "airlines", "metro", "fuel",
				"petrol", "hpcl", "iocl",
			}},
			{Name: "Shopping", Keywords: []string{
				"amazon", "flipkart", "myntra", "ajio", "meesho", "nykaa",
				"snapdeal", "mall", "store", "retail",
			}},
			{Name: "Bills & Utilities", Keywords: []string{
				"electricity", "bescom", "water bill", "broadband", "airtel",
				"jio", "vodafone", "recharge", "dth", "postpaid", "gas",
			}},
			{Name: "Groceries", Keywords: []string{
				"bigbasket", "blinkit", "zepto", "grofers", "dmart",
				"supermarket", "grocery", "kirana", "mart",
			}},
			{Name: "Entertainment", Keywords: []string{
				"netflix", "hotstar", "spotify", "prime video", "sonyliv",
				"bookmyshow", "pvr", "inox", "cinema", "game",
			}},
			{Name: "Health", Keywords: []string{
				"pharmacy", "apollo", "medplus", "netmeds", "pharmeasy",
				"hospital", "clinic", "diagnostic", "lab",
			}},
			{Name: "Investment", Keywords: []string{
				"zerodha", "groww", "upstox", "mutual fund", "sip", "nps",
				"ppf", "etmoney", "indmoney",
			}},
		},
	}
}

// LoadConfig reads a YAML category table. Unlike the parser keyword file
// this is a full replacement, not an overlay: the file defines the complete
// ordered table.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read category file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse category file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid category file %s: %w", path, err)
	}

	return config, nil
}

// Validate checks the table has at least one category with keywords.
func (c *Config) Validate() error {
	if len(c.Categories) == 0 {
		return fmt.Errorf("category table cannot be empty")
	}
	for _, rule := range c.Categories {
		if strings.TrimSpace(rule.Name) == "" {
			return fmt.Errorf("category name cannot be empty")
		}
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("category %q has no keywords", rule.Name)
		}
	}
	return nil
}

// Categorizer assigns a category to a transaction. It is a pure function of
// counterparty/remark/type/method text.
type Categorizer struct {
	config *Config
}

// New creates a categorizer over the given table.
func New(config *Config) (*Categorizer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Categorizer{config: config}, nil
}

// Categorize resolves a transaction's category:
//  1. first category in table order whose keyword list has a substring
//     match against the lowercased counterparty or remark
//  2. CREDIT with "refund" in its text -> "Refund", other CREDIT -> "Income"
//  3. ATM method -> "Cash Withdrawal"
//  4. otherwise "General"
func (c *Categorizer) Categorize(tx *models.Transaction) string {
	haystack := strings.ToLower(tx.Counterparty + " " + tx.Remark)

	for _, rule := range c.config.Categories {
		for _, keyword := range rule.Keywords {
			if strings.Contains(haystack, keyword) {
				return rule.Name
			}
		}
	}

	if tx.Type == models.TransactionTypeCredit {
		if strings.Contains(haystack, "refund") {
			return "Refund"
		}
		return "Income"
	}

	if tx.Method == models.MethodATM {
		return "Cash Withdrawal"
	}

	return models.CategoryGeneral
}
