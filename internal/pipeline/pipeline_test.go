package pipeline

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoledger/internal/classify"
	"autoledger/internal/domain"
	"autoledger/internal/storage/sqlite"
	"autoledger/internal/syncer"
)

type fakeSink struct {
	configured bool
	appendErr  error
	appended   int
}

func (f *fakeSink) Configured() bool { return f.configured }
func (f *fakeSink) Target() string   { return "fake/Transactions" }

func (f *fakeSink) AppendRow(context.Context, domain.Transaction) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended++
	return nil
}

type outcomes struct {
	delivered, savedPending int
	saveFailed              int
	lastReason              error
}

func newTestPipeline(t *testing.T, sink syncer.Sink) (*Pipeline, *sqlite.Store, *outcomes) {
	t.Helper()
	logger := log.New(io.Discard)

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "pipeline-test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	classifier := classify.New(logger)
	classifier.Update(domain.NewRuleset(nil, []string{"com.spam.pay"}, []domain.CategoryRule{
		{Keyword: "dunkin", Category: "Coffee/Snacks"},
	}))

	var got outcomes
	hooks := Hooks{
		Delivered:    func(domain.Transaction) { got.delivered++ },
		SavedPending: func(domain.Transaction) { got.savedPending++ },
		SaveFailed: func(_ domain.Transaction, reason error) {
			got.saveFailed++
			got.lastReason = reason
		},
	}

	engine := syncer.New(store, sink, logger)
	return New(classifier, store, engine, hooks, logger), store, &got
}

func debitEvent() Event {
	return Event{
		ID:       "evt-1",
		Title:    "Chase",
		Body:     "You spent $42.50 at Dunkin #123 Q1",
		SourceID: "com.chase.sig.android",
	}
}

func TestHandleDelivered(t *testing.T) {
	sink := &fakeSink{configured: true}
	p, store, got := newTestPipeline(t, sink)

	outcome, txn, err := p.Handle(context.Background(), debitEvent())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, outcome)
	assert.Equal(t, 42.50, txn.Amount)
	assert.Equal(t, domain.TxnDebit, txn.Type)
	assert.Equal(t, "Coffee/Snacks", txn.Category)
	assert.Equal(t, domain.SyncSynced, txn.SyncStatus)
	assert.Equal(t, 1, got.delivered)
	assert.Equal(t, 1, sink.appended)

	stored, err := store.Get(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncSynced, stored.SyncStatus)
}

func TestHandleIgnoredSource(t *testing.T) {
	p, store, got := newTestPipeline(t, &fakeSink{configured: true})

	ev := debitEvent()
	ev.SourceID = "com.example.chat"
	outcome, _, err := p.Handle(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnoredSource, outcome)

	// Exclusion wins even over the generic "pay" token.
	ev.SourceID = "com.spam.pay"
	outcome, _, err = p.Handle(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnoredSource, outcome)

	recent, err := store.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
	assert.Zero(t, got.delivered+got.savedPending+got.saveFailed)
}

func TestHandleNotTransaction(t *testing.T) {
	p, store, _ := newTestPipeline(t, &fakeSink{configured: true})

	ev := debitEvent()
	ev.Body = "Your statement is ready"
	outcome, _, err := p.Handle(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotTransaction, outcome)

	// Parse failures are dropped, never persisted.
	recent, err := store.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestHandleSavedPendingWhenNotConfigured(t *testing.T) {
	p, store, got := newTestPipeline(t, &fakeSink{configured: false})

	outcome, txn, err := p.Handle(context.Background(), debitEvent())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSavedPending, outcome)
	assert.Equal(t, 1, got.savedPending)

	stored, err := store.Get(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncPending, stored.SyncStatus)
}

func TestHandleSaveFailedOnDeliveryError(t *testing.T) {
	sinkErr := errors.New("rpc deadline exceeded")
	p, store, got := newTestPipeline(t, &fakeSink{configured: true, appendErr: sinkErr})

	outcome, txn, err := p.Handle(context.Background(), debitEvent())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSaveFailed, outcome)
	assert.Equal(t, 1, got.saveFailed)
	assert.ErrorIs(t, got.lastReason, sinkErr)

	// The record survives the failed delivery and stays retryable.
	stored, err := store.Get(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncFailed, stored.SyncStatus)
}

func TestHandleIndependentEvents(t *testing.T) {
	sink := &fakeSink{configured: true}
	p, store, _ := newTestPipeline(t, sink)

	events := []Event{
		{ID: "a", Body: "spent $1.00 at A", SourceID: "com.venmo"},
		{ID: "b", Body: "spent $2.00 at B", SourceID: "com.venmo"},
		{ID: "c", Body: "spent $3.00 at C", SourceID: "com.venmo"},
	}
	for _, ev := range events {
		_, _, err := p.Handle(context.Background(), ev)
		require.NoError(t, err)
	}

	recent, err := store.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recent, 3)
	assert.Equal(t, 3, sink.appended)
}
