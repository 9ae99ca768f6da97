// Package config builds configured pipeline components from CLI flags and
// viper settings.
package config

import (
	"sms-ledger-service/internal/categorize"
	"sms-ledger-service/internal/merge"
	"sms-ledger-service/internal/parser"
	"sms-ledger-service/internal/recurring"
	"sms-ledger-service/pkg/errors"
)

// CreateParser builds the message parser, overlaying optional keyword and
// category files on the built-in tables.
func CreateParser(keywordFile, categoryFile string) (*parser.Parser, error) {
	parserConfig := parser.DefaultConfig()
	if keywordFile != "" {
		loaded, err := parser.LoadConfig(keywordFile)
		if err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "keyword-file", keywordFile, err).
				WithSuggestion("Check the keyword file syntax against the documented YAML shape")
		}
		parserConfig = loaded
	}

	categoryConfig := categorize.DefaultConfig()
	if categoryFile != "" {
		loaded, err := categorize.LoadConfig(categoryFile)
		if err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "category-file", categoryFile, err).
				WithSuggestion("Check the category file syntax against the documented YAML shape")
		}
		categoryConfig = loaded
	}

	categorizer, err := categorize.New(categoryConfig)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "category-file", categoryFile, err)
	}

	return parser.New(parserConfig, categorizer)
}

// CreateMergeConfig builds the merge engine configuration from CLI overrides.
func CreateMergeConfig(timeDriftMs int64, strictCounterparty bool) (*merge.Config, error) {
	config := merge.DefaultConfig()
	if timeDriftMs > 0 {
		config.TimeDriftMs = timeDriftMs
	}
	config.StrictCounterparty = strictCounterparty

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "time-drift-ms", timeDriftMs, err)
	}
	return config, nil
}

// CreateRecurringConfig builds the recurring detector configuration.
func CreateRecurringConfig() *recurring.Config {
	return recurring.DefaultConfig()
}
