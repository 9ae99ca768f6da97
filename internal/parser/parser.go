package parser

import (
	"sms-ledger-service/internal/categorize"
	"sms-ledger-service/internal/models"
)

// Parser is the message-to-transaction pipeline: classify, extract, build.
// Parse is a total function; unparseable input yields ok=false, never an
// error, and parsing the same message twice yields identical results.
type Parser struct {
	config     *Config
	classifier *Classifier
	extractor  *Extractor
	builder    *Builder
}

// New creates a parser from keyword tables and a categorizer.
func New(config *Config, categorizer *categorize.Categorizer) (*Parser, error) {
	if config == nil {
		config = DefaultConfig()
	}

	extractor, err := NewExtractor(config)
	if err != nil {
		return nil, err
	}

	return &Parser{
		config:     config,
		classifier: NewClassifier(config),
		extractor:  extractor,
		builder:    NewBuilder(categorizer),
	}, nil
}

// Parse converts a raw message into a transaction. It returns ok=false when
// the message is promotional noise, has no recognizable direction, or no
// amount survives candidate scoring. No partial record is ever produced.
func (p *Parser) Parse(msg models.RawMessage) (*models.Transaction, bool) {
	body := Normalize(msg.Body)
	if body == "" {
		return nil, false
	}

	direction, ok := p.classifier.Classify(body)
	if !ok {
		return nil, false
	}

	amount, ok := p.extractor.ExtractAmount(body, direction)
	if !ok {
		return nil, false
	}

	senderToken := p.extractor.SenderToken(msg.Sender)
	f := fields{
		amount:        amount,
		accountSource: p.extractor.ExtractAccountSource(body, msg.Sender),
		counterparty:  p.extractor.ExtractCounterparty(body, senderToken),
		balance:       p.extractor.ExtractBalance(body),
		accountEnding: p.extractor.ExtractAccountEnding(body),
	}

	return p.builder.Build(msg, body, direction, f), true
}

// Config returns the keyword tables the parser was built with.
func (p *Parser) Config() *Config {
	return p.config
}
