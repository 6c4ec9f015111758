// Package pipeline wires one incoming notification event through
// classification, extraction, persistence and immediate delivery.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"autoledger/internal/classify"
	"autoledger/internal/domain"
	"autoledger/internal/syncer"
)

// Event is one notification-equivalent input. Title and body are
// independently optional. ID is a correlation id for logs, never persisted.
type Event struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	SourceID string `json:"source_id"`
}

// Outcome is the user-visible result of handling one event.
type Outcome string

const (
	// OutcomeIgnoredSource: the source id is not financial; no record created.
	OutcomeIgnoredSource Outcome = "ignored_source"
	// OutcomeNotTransaction: no amount could be extracted; event dropped.
	OutcomeNotTransaction Outcome = "not_transaction"
	// OutcomeDelivered: stored and synced; the caller may dismiss the
	// originating notification.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeSavedPending: stored, sink not configured; still PENDING.
	OutcomeSavedPending Outcome = "saved_pending"
	// OutcomeSaveFailed: stored but delivery failed; record retained as
	// FAILED and retryable, the transaction is not lost.
	OutcomeSaveFailed Outcome = "save_failed"
)

// Hooks receive outcome signals after the record's status is durably
// resolved. Nil hooks are skipped.
type Hooks struct {
	Delivered    func(txn domain.Transaction)
	SavedPending func(txn domain.Transaction)
	SaveFailed   func(txn domain.Transaction, reason error)
}

// Ledger is the slice of the store the pipeline needs.
type Ledger interface {
	Insert(ctx context.Context, txn domain.Transaction) (int64, error)
	Get(ctx context.Context, id int64) (domain.Transaction, error)
}

// Pipeline orchestrates parse -> insert -> sync for each event. All
// collaborators are injected once at construction.
type Pipeline struct {
	classifier *classify.Classifier
	ledger     Ledger
	engine     *syncer.Engine
	hooks      Hooks
	logger     *log.Logger
}

func New(classifier *classify.Classifier, ledger Ledger, engine *syncer.Engine, hooks Hooks, logger *log.Logger) *Pipeline {
	return &Pipeline{
		classifier: classifier,
		ledger:     ledger,
		engine:     engine,
		hooks:      hooks,
		logger:     logger,
	}
}

// Handle processes one event to completion. The returned transaction is the
// stored record when one was created. The only hard error is a ledger write
// failure: losing the insert would lose the user's transaction, so it
// propagates instead of being swallowed.
func (p *Pipeline) Handle(ctx context.Context, ev Event) (Outcome, domain.Transaction, error) {
	if !p.classifier.IsFinancialSource(ev.SourceID) {
		p.logger.Debug("event ignored, non-financial source", "event", ev.ID, "source", ev.SourceID)
		return OutcomeIgnoredSource, domain.Transaction{}, nil
	}

	candidate, ok := p.classifier.Parse(ev.Title, ev.Body, ev.SourceID)
	if !ok {
		p.logger.Debug("event dropped, no transaction recognized", "event", ev.ID, "source", ev.SourceID)
		return OutcomeNotTransaction, domain.Transaction{}, nil
	}

	id, err := p.ledger.Insert(ctx, candidate)
	if err != nil {
		return "", domain.Transaction{}, fmt.Errorf("persist transaction: %w", err)
	}
	txn, err := p.ledger.Get(ctx, id)
	if err != nil {
		return "", domain.Transaction{}, fmt.Errorf("read back transaction %d: %w", id, err)
	}
	p.logger.Info("transaction recorded",
		"event", ev.ID, "id", txn.ID, "amount", txn.Amount, "merchant", txn.Merchant, "type", txn.Type)

	switch err := p.engine.SyncOne(ctx, txn); {
	case err == nil:
		txn.SyncStatus = domain.SyncSynced
		if p.hooks.Delivered != nil {
			p.hooks.Delivered(txn)
		}
		return OutcomeDelivered, txn, nil

	case errors.Is(err, syncer.ErrNotConfigured):
		if p.hooks.SavedPending != nil {
			p.hooks.SavedPending(txn)
		}
		return OutcomeSavedPending, txn, nil

	default:
		txn.SyncStatus = domain.SyncFailed
		if p.hooks.SaveFailed != nil {
			p.hooks.SaveFailed(txn, err)
		}
		return OutcomeSaveFailed, txn, nil
	}
}
