// Package syncer drains locally stored transactions to the remote sink and
// resolves each attempt to SYNCED or FAILED.
package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"autoledger/internal/domain"
)

// ErrNotConfigured is returned when no sink target is set. It is a distinct
// outcome, not a delivery failure: affected records stay PENDING.
var ErrNotConfigured = errors.New("no sync target configured")

// Sink is the remote append-only destination.
type Sink interface {
	Configured() bool
	Target() string
	AppendRow(ctx context.Context, txn domain.Transaction) error
}

// Ledger is the slice of the store the engine needs.
type Ledger interface {
	UpdateSyncStatus(ctx context.Context, id int64, status domain.SyncStatus) error
	ListPending(ctx context.Context) ([]domain.Transaction, error)
	ListFailed(ctx context.Context) ([]domain.Transaction, error)
}

// Engine delivers transactions at-least-once. It owns no scheduling: drains
// are triggered externally (startup, cron, HTTP, CLI) and retries of FAILED
// records happen only on those triggers.
type Engine struct {
	ledger Ledger
	sink   Sink
	logger *log.Logger
}

func New(ledger Ledger, sink Sink, logger *log.Logger) *Engine {
	return &Engine{ledger: ledger, sink: sink, logger: logger}
}

// SyncOne attempts delivery of a single transaction.
//
// With no sink configured the record is left untouched and ErrNotConfigured
// returned. Once the remote call has been issued, every outcome resolves the
// record: success marks SYNCED, any sink error (including a cancellation
// that may have reached the server) marks FAILED, so at-least-once retries
// can pick it up and no record is silently stuck at PENDING.
func (e *Engine) SyncOne(ctx context.Context, txn domain.Transaction) error {
	if !e.sink.Configured() {
		return ErrNotConfigured
	}
	// Cancelled before the remote call started: status unchanged.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("sync of %d aborted: %w", txn.ID, err)
	}

	// Status writes survive a mid-flight cancellation: an ambiguous remote
	// outcome must still resolve the record to FAILED.
	statusCtx := context.WithoutCancel(ctx)

	if err := e.sink.AppendRow(ctx, txn); err != nil {
		if updErr := e.ledger.UpdateSyncStatus(statusCtx, txn.ID, domain.SyncFailed); updErr != nil {
			e.logger.Error("failed to mark transaction FAILED", "id", txn.ID, "error", updErr)
		}
		e.logger.Warn("sync failed", "id", txn.ID, "merchant", txn.Merchant, "error", err)
		return fmt.Errorf("sync transaction %d: %w", txn.ID, err)
	}

	if err := e.ledger.UpdateSyncStatus(statusCtx, txn.ID, domain.SyncSynced); err != nil {
		return fmt.Errorf("mark transaction %d synced: %w", txn.ID, err)
	}
	e.logger.Info("transaction synced", "id", txn.ID, "merchant", txn.Merchant, "amount", txn.Amount)
	return nil
}

// DrainPending delivers every PENDING transaction, then retries FAILED ones,
// sequentially in insertion order so spreadsheet rows keep ledger order.
// A missing sink configuration short-circuits with zero attempts and a
// descriptive message; no record is touched.
func (e *Engine) DrainPending(ctx context.Context) (domain.SyncResult, error) {
	if !e.sink.Configured() {
		return domain.SyncResult{Message: "no spreadsheet configured"}, nil
	}

	pending, err := e.ledger.ListPending(ctx)
	if err != nil {
		return domain.SyncResult{}, fmt.Errorf("list pending: %w", err)
	}
	failed, err := e.ledger.ListFailed(ctx)
	if err != nil {
		return domain.SyncResult{}, fmt.Errorf("list failed: %w", err)
	}
	queue := append(pending, failed...)
	if len(queue) == 0 {
		return domain.SyncResult{Message: "nothing to sync"}, nil
	}

	e.logger.Info("draining transactions", "pending", len(pending), "retrying", len(failed), "target", e.sink.Target())

	var result domain.SyncResult
	for _, txn := range queue {
		if err := ctx.Err(); err != nil {
			result.Message = "drain cancelled"
			return result, err
		}
		if err := e.SyncOne(ctx, txn); err != nil {
			result.Failed++
			continue
		}
		result.Succeeded++
	}

	e.logger.Info("drain complete", "succeeded", result.Succeeded, "failed", result.Failed)
	return result, nil
}
