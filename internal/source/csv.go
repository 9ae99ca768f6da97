// Package source reads raw SMS messages from an exported inbox.
//
// The only supported format is a CSV export with body, sender, and
// timestamp columns. The reader is tolerant by design: a malformed row
// is counted and skipped, never fatal, because a single garbled message
// must not block ingestion of the rest of the inbox.
//
// Example usage:
//
//	src := source.NewCSVMessageSource("inbox.csv", nil)
//	messages, stats, err := src.ReadMessages(ctx, checkpoint)
package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"sms-ledger-service/internal/models"
	"sms-ledger-service/pkg/errors"
	"sms-ledger-service/pkg/logger"
)

// Required CSV column names, matched case-insensitively.
const (
	columnBody      = "body"
	columnSender    = "sender"
	columnTimestamp = "timestamp"
)

// Config holds CSV reading options.
type Config struct {
	// HasHeader indicates the first row names the columns. When false the
	// columns are assumed to be body, sender, timestamp in that order.
	HasHeader bool
	// Delimiter is the field separator.
	Delimiter rune
	// SkipEmptyRows drops rows whose every field is blank.
	SkipEmptyRows bool
}

// DefaultConfig returns a configuration matching the standard inbox export.
func DefaultConfig() *Config {
	return &Config{
		HasHeader:     true,
		Delimiter:     ',',
		SkipEmptyRows: true,
	}
}

// ReadStats summarizes one read pass over the source file.
type ReadStats struct {
	TotalRows     int
	MessagesRead  int
	SkippedOld    int
	SkippedBadRow int
}

// String returns a human-readable summary of the read.
func (s *ReadStats) String() string {
	return fmt.Sprintf("Read %d rows: %d messages, %d before checkpoint, %d malformed",
		s.TotalRows, s.MessagesRead, s.SkippedOld, s.SkippedBadRow)
}

// CSVMessageSource reads raw messages from a CSV inbox export.
type CSVMessageSource struct {
	filePath string
	config   *Config
	logger   logger.Logger
}

// NewCSVMessageSource creates a source over the given file. A nil config
// gets the defaults.
func NewCSVMessageSource(filePath string, config *Config) *CSVMessageSource {
	if config == nil {
		config = DefaultConfig()
	}
	return &CSVMessageSource{
		filePath: filePath,
		config:   config,
		logger:   logger.GetGlobalLogger().WithComponent("csv_source"),
	}
}

// ReadMessages returns every message with timestamp strictly greater than
// sinceMs, in file order. Malformed rows are skipped and counted in the
// returned stats.
func (s *CSVMessageSource) ReadMessages(ctx context.Context, sinceMs int64) ([]models.RawMessage, *ReadStats, error) {
	file, err := os.Open(s.filePath)
	if err != nil {
		return nil, nil, errors.SourceError(errors.CodeSourceUnavailable, s.filePath, err).
			WithSuggestion("Check that the inbox export exists and is readable")
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = s.config.Delimiter
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	columns := map[string]int{columnBody: 0, columnSender: 1, columnTimestamp: 2}
	if s.config.HasHeader {
		columns, err = s.readHeader(reader)
		if err != nil {
			return nil, nil, err
		}
	}

	stats := &ReadStats{}
	var messages []models.RawMessage

	for {
		select {
		case <-ctx.Done():
			return nil, nil, errors.SourceError(errors.CodeSourceUnavailable, s.filePath, ctx.Err())
		default:
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A structurally broken row (bare quote, etc.) is skipped
			// like any other malformed row.
			stats.TotalRows++
			stats.SkippedBadRow++
			s.logger.WithError(err).WithField("row", stats.TotalRows).Warn("Skipping unreadable CSV row")
			continue
		}

		stats.TotalRows++
		if s.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}

		msg, ok := s.parseRecord(record, columns, stats.TotalRows)
		if !ok {
			stats.SkippedBadRow++
			continue
		}
		if msg.Timestamp <= sinceMs {
			stats.SkippedOld++
			continue
		}

		messages = append(messages, msg)
		stats.MessagesRead++
	}

	s.logger.WithFields(logger.Fields{
		"file_path":       s.filePath,
		"since_ms":        sinceMs,
		"messages_read":   stats.MessagesRead,
		"skipped_old":     stats.SkippedOld,
		"skipped_bad_row": stats.SkippedBadRow,
	}).Info("Finished reading message source")

	return messages, stats, nil
}

// readHeader reads the header row and maps the required columns to indices.
func (s *CSVMessageSource) readHeader(reader *csv.Reader) (map[string]int, error) {
	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.SourceError(errors.CodeSourceCorrupted, s.filePath,
				fmt.Errorf("file is empty")).
				WithSuggestion("Ensure the export contains a header row and data")
		}
		return nil, errors.SourceError(errors.CodeSourceCorrupted, s.filePath, err)
	}

	columns := make(map[string]int)
	for i, header := range headers {
		columns[strings.ToLower(strings.TrimSpace(header))] = i
	}

	var missing []string
	for _, required := range []string{columnBody, columnSender, columnTimestamp} {
		if _, ok := columns[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, errors.SourceError(errors.CodeSourceCorrupted, s.filePath,
			fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))).
			WithSuggestion("Ensure the CSV has body, sender, and timestamp columns")
	}

	return columns, nil
}

// parseRecord turns one CSV record into a RawMessage. Returns false when any
// required field is missing or the timestamp does not parse.
func (s *CSVMessageSource) parseRecord(record []string, columns map[string]int, row int) (models.RawMessage, bool) {
	body, okBody := fieldAt(record, columns[columnBody])
	sender, okSender := fieldAt(record, columns[columnSender])
	rawTimestamp, okTs := fieldAt(record, columns[columnTimestamp])

	if !okBody || !okSender || !okTs || body == "" || rawTimestamp == "" {
		s.logger.WithField("row", row).Debug("Skipping row with missing required fields")
		return models.RawMessage{}, false
	}

	timestamp, err := strconv.ParseInt(rawTimestamp, 10, 64)
	if err != nil || timestamp < 0 {
		s.logger.WithField("row", row).WithField("timestamp", rawTimestamp).
			Debug("Skipping row with unparseable timestamp")
		return models.RawMessage{}, false
	}

	return models.RawMessage{
		Body:      body,
		Sender:    sender,
		Timestamp: timestamp,
	}, true
}

func fieldAt(record []string, index int) (string, bool) {
	if index < 0 || index >= len(record) {
		return "", false
	}
	return strings.TrimSpace(record[index]), true
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
