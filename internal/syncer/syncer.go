// Package syncer coordinates a full ingestion run: read new messages from
// the source, parse them into transactions, enrich, merge into the ledger,
// re-detect recurring payments, persist, and advance the checkpoint.
//
// Example usage:
//
//	orch, err := syncer.New(src, st, p, enricher, engine, detector)
//	report, err := orch.Sync(ctx)
package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"sms-ledger-service/internal/enrich"
	"sms-ledger-service/internal/merge"
	"sms-ledger-service/internal/models"
	"sms-ledger-service/internal/parser"
	"sms-ledger-service/internal/recurring"
	"sms-ledger-service/internal/source"
	"sms-ledger-service/pkg/errors"
	"sms-ledger-service/pkg/logger"
)

// ErrSyncInFlight is returned when Sync is called while another run holds
// the lock. Callers should treat it as "try again later", not a failure.
var ErrSyncInFlight = errors.SyncError(errors.CodeSyncInFlight, "sync",
	nil).WithSuggestion("A sync is already running; wait for it to finish")

// MessageSource supplies raw messages newer than a checkpoint.
type MessageSource interface {
	ReadMessages(ctx context.Context, sinceMs int64) ([]models.RawMessage, *source.ReadStats, error)
}

// LedgerStore is the persistence surface the orchestrator needs.
type LedgerStore interface {
	GetAllTransactions(ctx context.Context) ([]*models.Transaction, error)
	ReplaceTransactions(ctx context.Context, ledger []*models.Transaction) error
	GetLastSyncTime(ctx context.Context) (int64, error)
	SetLastSyncTime(ctx context.Context, timestampMs int64) error
}

// Report summarizes one sync run.
type Report struct {
	RunID            string        `json:"run_id"`
	MessagesRead     int           `json:"messages_read"`
	MessagesParsed   int           `json:"messages_parsed"`
	MessagesIgnored  int           `json:"messages_ignored"`
	Appended         int           `json:"appended"`
	Enriched         int           `json:"enriched"`
	LedgerSize       int           `json:"ledger_size"`
	CheckpointBefore int64         `json:"checkpoint_before"`
	CheckpointAfter  int64         `json:"checkpoint_after"`
	Elapsed          time.Duration `json:"elapsed"`
}

// Orchestrator runs the ingestion pipeline end to end. At most one sync
// runs at a time; overlapping calls fail fast with ErrSyncInFlight.
type Orchestrator struct {
	src      MessageSource
	store    LedgerStore
	parser   *parser.Parser
	enricher *enrich.Enricher
	engine   *merge.Engine
	detector *recurring.Detector
	logger   logger.Logger

	mu sync.Mutex
}

// New creates a sync orchestrator over the given pipeline stages.
func New(
	src MessageSource,
	store LedgerStore,
	p *parser.Parser,
	enricher *enrich.Enricher,
	engine *merge.Engine,
	detector *recurring.Detector,
) *Orchestrator {
	return &Orchestrator{
		src:      src,
		store:    store,
		parser:   p,
		enricher: enricher,
		engine:   engine,
		detector: detector,
		logger:   logger.GetGlobalLogger().WithComponent("sync_orchestrator"),
	}
}

// Sync runs one full ingestion pass and returns a report of what changed.
//
// The checkpoint only advances after the merged ledger has been persisted,
// so a failed run leaves the store untouched and the next run re-reads the
// same messages. Re-processing is safe: the merge engine deduplicates.
func (o *Orchestrator) Sync(ctx context.Context) (*Report, error) {
	if !o.mu.TryLock() {
		return nil, ErrSyncInFlight
	}
	defer o.mu.Unlock()

	runID := uuid.New().String()
	log := o.logger.WithField("run_id", runID)
	start := time.Now()

	checkpoint, err := o.store.GetLastSyncTime(ctx)
	if err != nil {
		return nil, err
	}
	log.WithField("checkpoint", checkpoint).Info("Starting sync run")

	report := &Report{RunID: runID, CheckpointBefore: checkpoint, CheckpointAfter: checkpoint}

	messages, stats, err := o.src.ReadMessages(ctx, checkpoint)
	if err != nil {
		log.WithError(err).Error("Failed to read message source")
		return nil, err
	}
	report.MessagesRead = stats.MessagesRead

	incoming, maxTimestamp := o.parseMessages(messages, checkpoint)
	report.MessagesParsed = len(incoming)
	report.MessagesIgnored = report.MessagesRead - report.MessagesParsed

	if len(incoming) == 0 {
		// Nothing to persist, but the checkpoint still moves past the
		// non-transactional messages so they are not re-read forever.
		if maxTimestamp > checkpoint {
			if err := o.store.SetLastSyncTime(ctx, maxTimestamp); err != nil {
				return nil, errors.SyncError(errors.CodeCheckpointStale, "set_checkpoint", err)
			}
			report.CheckpointAfter = maxTimestamp
		}
		report.Elapsed = time.Since(start)
		log.Info("No new transactional messages, sync is a no-op")
		return report, nil
	}

	o.enricher.ApplyAll(ctx, incoming)

	existing, err := o.store.GetAllTransactions(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to load ledger")
		return nil, err
	}

	merged := o.engine.Merge(existing, incoming)
	report.Appended = merged.Appended
	report.Enriched = merged.Enriched

	ledger := o.detector.Detect(merged.Ledger)
	report.LedgerSize = len(ledger)

	if err := o.store.ReplaceTransactions(ctx, ledger); err != nil {
		log.WithError(err).Error("Failed to persist ledger, checkpoint not advanced")
		return nil, err
	}

	if maxTimestamp > checkpoint {
		if err := o.store.SetLastSyncTime(ctx, maxTimestamp); err != nil {
			// The ledger is persisted; a stale checkpoint only means the
			// next run re-reads messages the merge will deduplicate.
			log.WithError(err).Warn("Ledger persisted but checkpoint update failed")
			return nil, errors.SyncError(errors.CodeCheckpointStale, "set_checkpoint", err)
		}
		report.CheckpointAfter = maxTimestamp
	}

	report.Elapsed = time.Since(start)
	log.WithFields(logger.Fields{
		"messages_read":   report.MessagesRead,
		"messages_parsed": report.MessagesParsed,
		"appended":        report.Appended,
		"enriched":        report.Enriched,
		"ledger_size":     report.LedgerSize,
		"checkpoint":      report.CheckpointAfter,
		"elapsed":         report.Elapsed.String(),
	}).Info("Sync run completed")

	return report, nil
}

// parseMessages runs the parser over each message, dropping non-transactional
// ones, and tracks the highest message timestamp seen. The checkpoint follows
// every message read, parsed or not, so ignored promotions are not re-read
// forever.
func (o *Orchestrator) parseMessages(messages []models.RawMessage, checkpoint int64) ([]*models.Transaction, int64) {
	var incoming []*models.Transaction
	maxTimestamp := checkpoint

	for _, msg := range messages {
		if msg.Timestamp > maxTimestamp {
			maxTimestamp = msg.Timestamp
		}
		tx, ok := o.parser.Parse(msg)
		if !ok {
			continue
		}
		incoming = append(incoming, tx)
	}

	return incoming, maxTimestamp
}
