package parser

import (
	"regexp"
	"strings"

	"sms-ledger-service/internal/models"

	"github.com/shopspring/decimal"
)

// Candidate scoring constants. A currency-marked number outranks a bare one,
// a direction verb nearby is strong evidence, and a balance keyword prefix
// disqualifies the candidate outright.
const (
	scoreMarkerBase  = 200
	scoreBareBase    = 100
	scoreVerbNearby  = 500
	scoreBalanceHit  = -2000
	balanceLookback  = 24
	unmarkedDigitMax = 7
)

var (
	markerAmountRe = regexp.MustCompile(`(?:\brs\.?|\binr\b|\bamt\.?|\bamount\b|₹)[\s:]*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)
	bareAmountRe   = regexp.MustCompile(`\b[0-9][0-9,]*\.[0-9]{2}\b`)
	balanceRe      = regexp.MustCompile(`\bbal(?:ance)?[^0-9]{0,14}([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)
	endingRe       = regexp.MustCompile(`(?:a/c|acct|account|ac no|card)[^0-9]{0,14}([0-9]{3,4})\b`)
	trailingWordRe = regexp.MustCompile(`(?:^|[\s-])([a-z]{3,20})[\s.!]*$`)
)

// Extractor pulls structured fields out of a classified message body.
// All methods expect a body already passed through Normalize.
type Extractor struct {
	config       *Config
	counterparty []*regexp.Regexp
}

// NewExtractor creates an extractor over the given keyword tables. The
// counterparty patterns are compiled once; an invalid config is rejected.
func NewExtractor(config *Config) (*Extractor, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	patterns := make([]*regexp.Regexp, 0, len(config.CounterpartyPatterns))
	for _, pattern := range config.CounterpartyPatterns {
		patterns = append(patterns, regexp.MustCompile(pattern))
	}

	return &Extractor{config: config, counterparty: patterns}, nil
}

type amountCandidate struct {
	value     decimal.Decimal
	matchPos  int // start of the full match (marker included when present)
	numberPos int // start of the numeric token
	marked    bool
	score     int
}

// ExtractAmount finds the transaction amount in a message body using scored
// candidates. It returns false when no candidate survives filtering, which
// rejects the whole message as a transaction.
//
// Scoring: marker-prefixed candidates start at 200, bare ones at 100; a
// direction-appropriate verb within VerbWindow characters of the number (in
// either order) adds 500; a number sitting immediately after a balance/limit
// keyword takes -2000 so balance restatements never win. Ties keep the
// first-seen candidate.
func (e *Extractor) ExtractAmount(body string, direction models.TransactionType) (decimal.Decimal, bool) {
	candidates := e.collectCandidates(body)
	if len(candidates) == 0 {
		return decimal.Zero, false
	}

	verbs := e.directionVerbs(direction)
	verbPositions := keywordPositions(body, verbs)

	best := -1
	for i := range candidates {
		c := &candidates[i]

		if c.marked {
			c.score = scoreMarkerBase
		} else {
			c.score = scoreBareBase
		}

		if nearAny(c.numberPos, verbPositions, e.config.VerbWindow) {
			c.score += scoreVerbNearby
		}

		if e.followsBalanceKeyword(body, c.matchPos) {
			c.score += scoreBalanceHit
		}

		if best < 0 || c.score > candidates[best].score {
			best = i
		}
	}

	winner := candidates[best]
	if winner.score <= 0 {
		return decimal.Zero, false
	}

	return winner.value, true
}

// collectCandidates generates filtered amount candidates in first-seen order.
func (e *Extractor) collectCandidates(body string) []amountCandidate {
	var candidates []amountCandidate
	seen := make(map[int]bool) // numeric token start positions already taken

	for _, idx := range markerAmountRe.FindAllStringSubmatchIndex(body, -1) {
		raw := body[idx[2]:idx[3]]
		value, err := models.ParseDecimalFromString(raw)
		if err != nil || !acceptable(value) {
			continue
		}
		candidates = append(candidates, amountCandidate{
			value:     value,
			matchPos:  idx[0],
			numberPos: idx[2],
			marked:    true,
		})
		seen[idx[2]] = true
	}

	for _, idx := range bareAmountRe.FindAllStringIndex(body, -1) {
		if seen[idx[0]] {
			continue
		}
		raw := body[idx[0]:idx[1]]
		value, err := models.ParseDecimalFromString(raw)
		if err != nil || !acceptable(value) {
			continue
		}
		// Long unmarked digit runs look like phone numbers or reference
		// ids, not amounts.
		if integerDigits(raw) > unmarkedDigitMax {
			continue
		}
		candidates = append(candidates, amountCandidate{
			value:     value,
			matchPos:  idx[0],
			numberPos: idx[0],
			marked:    false,
		})
	}

	// Restore first-seen order across both generators.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].numberPos < candidates[j-1].numberPos; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	return candidates
}

func acceptable(value decimal.Decimal) bool {
	return models.WithinAmountBand(value)
}

func integerDigits(raw string) int {
	if dot := strings.IndexByte(raw, '.'); dot >= 0 {
		raw = raw[:dot]
	}
	count := 0
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			count++
		}
	}
	return count
}

// followsBalanceKeyword reports whether the text immediately before an amount
// match ends with a balance/limit keyword.
func (e *Extractor) followsBalanceKeyword(body string, matchPos int) bool {
	start := matchPos - balanceLookback
	if start < 0 {
		start = 0
	}
	prefix := strings.TrimRight(body[start:matchPos], " .:-=")

	for _, keyword := range e.config.BalanceKeywords {
		if strings.HasSuffix(prefix, keyword) {
			return true
		}
	}
	return false
}

func (e *Extractor) directionVerbs(direction models.TransactionType) []string {
	if direction == models.TransactionTypeCredit {
		return e.config.CreditKeywords
	}
	return e.config.DebitKeywords
}

// keywordPositions returns every occurrence index of every keyword.
func keywordPositions(body string, keywords []string) []int {
	var positions []int
	for _, keyword := range keywords {
		from := 0
		for {
			i := strings.Index(body[from:], keyword)
			if i < 0 {
				break
			}
			positions = append(positions, from+i)
			from += i + len(keyword)
		}
	}
	return positions
}

func nearAny(pos int, positions []int, window int) bool {
	for _, p := range positions {
		d := pos - p
		if d < 0 {
			d = -d
		}
		if d <= window {
			return true
		}
	}
	return false
}

// SenderToken derives a clean issuer token from a sender id: the last
// hyphen-delimited segment uppercased, falling back to the first segment
// when the last is too short (short segments are route suffixes like "-S").
func (e *Extractor) SenderToken(sender string) string {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return "UNKNOWN"
	}

	segments := strings.Split(sender, "-")
	token := segments[len(segments)-1]
	if len(token) < e.config.MinTokenLength {
		token = segments[0]
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(token)
}

// ExtractAccountSource resolves the bank/issuer for a message. The sender
// token is the default; a bank-name token at the very end of the body
// overrides it when the token is long enough and either appears in the bank
// keyword list or the message has bank-context markers.
func (e *Extractor) ExtractAccountSource(body, sender string) string {
	source := e.SenderToken(sender)

	match := trailingWordRe.FindStringSubmatch(body)
	if match == nil {
		return source
	}

	token := match[1]
	if len(token) < e.config.MinTokenLength {
		return source
	}

	if e.isBankToken(token) || e.hasBankContext(body) {
		return strings.ToUpper(token)
	}

	return source
}

func (e *Extractor) isBankToken(token string) bool {
	lower := strings.ToLower(token)
	for _, bank := range e.config.BankKeywords {
		if strings.Contains(lower, bank) {
			return true
		}
	}
	return false
}

func (e *Extractor) hasBankContext(body string) bool {
	for _, marker := range e.config.BankContextMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

// ExtractCounterparty runs the ordered pattern chain and falls back through
// bank-context, sender token, and the unknown sentinel. The fallback order
// is load-bearing: it determines downstream dedup quality.
func (e *Extractor) ExtractCounterparty(body, senderToken string) string {
	for _, pattern := range e.counterparty {
		match := pattern.FindStringSubmatch(body)
		if match == nil {
			continue
		}

		token := e.cleanToken(match[1])
		if len(token) >= e.config.MinTokenLength {
			return strings.ToUpper(token)
		}
	}

	if e.hasBankContext(body) {
		return models.CounterpartyBank
	}
	if !e.isBankToken(senderToken) {
		return strings.ToUpper(senderToken)
	}
	return models.CounterpartyUnknown
}

// cleanToken truncates an extracted token at known delimiters, strips noise
// words, and trims punctuation.
func (e *Extractor) cleanToken(token string) string {
	token = strings.ToLower(strings.TrimSpace(token))

	for _, delim := range []string{" - ", " on ", " via ", " from ", " ref ", " upi:", " info:"} {
		if i := strings.Index(token, delim); i >= 0 {
			token = token[:i]
		}
	}

	words := strings.Fields(token)
	cleaned := make([]string, 0, len(words))
	for _, word := range words {
		if e.isNoiseWord(word) {
			continue
		}
		cleaned = append(cleaned, word)
	}

	return strings.Trim(strings.Join(cleaned, " "), " .,:-_'")
}

func (e *Extractor) isNoiseWord(word string) bool {
	word = strings.Trim(word, ".,:;")
	for _, noise := range e.config.NoiseWords {
		if word == noise {
			return true
		}
	}
	return false
}

// ExtractBalance returns the LAST balance figure in the body, if any.
// Messages often restate balance after the main transaction line; the final
// statement is the authoritative snapshot.
func (e *Extractor) ExtractBalance(body string) *decimal.Decimal {
	matches := balanceRe.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}

	raw := matches[len(matches)-1][1]
	value, err := models.ParseDecimalFromString(raw)
	if err != nil || value.IsNegative() {
		return nil
	}
	return &value
}

// ExtractAccountEnding returns the FIRST 3-4 digit sequence following an
// account-identifier keyword, or empty.
func (e *Extractor) ExtractAccountEnding(body string) string {
	match := endingRe.FindStringSubmatch(body)
	if match == nil {
		return ""
	}
	return match[1]
}
