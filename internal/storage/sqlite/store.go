package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"

	"autoledger/internal/domain"
)

// ErrNotFound is returned when an id has no matching transaction.
var ErrNotFound = errors.New("transaction not found")

// Store is the durable ledger. It is the single writer of transaction ids
// and sync statuses; all status changes go through UpdateSyncStatus, which
// enforces the PENDING/SYNCED/FAILED state machine.
type Store struct {
	db     *sql.DB
	logger *log.Logger

	mu       sync.Mutex
	watchers map[int]chan Change
	nextID   int
}

// ChangeKind distinguishes watch events.
type ChangeKind string

const (
	ChangeInserted      ChangeKind = "inserted"
	ChangeStatusUpdated ChangeKind = "status_updated"
)

// Change is one ledger mutation pushed to watchers.
type Change struct {
	Kind ChangeKind
	Txn  domain.Transaction
}

// Open opens (creating if needed) the ledger database and applies schema
// migrations.
func Open(path string, logger *log.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	// Serialized writes; concurrent status updates to the same id queue up
	// instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS transactions (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		amount      REAL NOT NULL,
		description TEXT NOT NULL,
		merchant    TEXT NOT NULL DEFAULT 'Unknown',
		txn_type    TEXT NOT NULL DEFAULT 'UNKNOWN',
		source_id   TEXT NOT NULL,
		sync_status TEXT NOT NULL DEFAULT 'PENDING',
		created_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_sync_status ON transactions(sync_status);
	CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}

	// Migration: add the category column to databases created before
	// categorization existed. Older rows default to the empty sentinel.
	var colCount int
	_ = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('transactions') WHERE name = 'category'`).Scan(&colCount)
	if colCount == 0 {
		if _, err := db.Exec(`ALTER TABLE transactions ADD COLUMN category TEXT NOT NULL DEFAULT ''`); err != nil {
			db.Close()
			return nil, fmt.Errorf("add category column: %w", err)
		}
		logger.Info("ledger migrated", "added_column", "category")
	}

	return &Store{
		db:       db,
		logger:   logger,
		watchers: make(map[int]chan Change),
	}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	for id, ch := range s.watchers {
		close(ch)
		delete(s.watchers, id)
	}
	s.mu.Unlock()
	return s.db.Close()
}

// Insert persists a new transaction. The store assigns the id and capture
// time and forces the status to PENDING regardless of what the candidate
// carries. Storage errors propagate: a lost insert loses the transaction.
func (s *Store) Insert(ctx context.Context, txn domain.Transaction) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (amount, description, merchant, txn_type, source_id, sync_status, category, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.Amount, txn.Description, txn.Merchant, string(txn.Type),
		txn.SourceID, string(domain.SyncPending), txn.Category, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert transaction id: %w", err)
	}

	txn.ID = id
	txn.CreatedAt = now
	txn.SyncStatus = domain.SyncPending
	s.notify(Change{Kind: ChangeInserted, Txn: txn})
	return id, nil
}

// UpdateSyncStatus applies a status transition. Repeating the current status
// is an idempotent no-op; transitions the state machine forbids (anything
// out of SYNCED, FAILED back to PENDING) are silently dropped.
func (s *Store) UpdateSyncStatus(ctx context.Context, id int64, status domain.SyncStatus) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT sync_status FROM transactions WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update status of %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read status of %d: %w", id, err)
	}

	from := domain.SyncStatus(current)
	if from == status {
		return nil
	}
	if !from.CanTransition(status) {
		s.logger.Warn("sync status transition rejected", "id", id, "from", from, "to", status)
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE transactions SET sync_status = ? WHERE id = ?`, string(status), id,
	); err != nil {
		return fmt.Errorf("update status of %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit status of %d: %w", id, err)
	}

	if txn, err := s.Get(ctx, id); err == nil {
		s.notify(Change{Kind: ChangeStatusUpdated, Txn: txn})
	}
	return nil
}

// Get returns one transaction by id.
func (s *Store) Get(ctx context.Context, id int64) (domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTxn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, ErrNotFound
	}
	return txn, err
}

// ListPending returns all PENDING transactions in insertion order so a drain
// pass preserves spreadsheet row order.
func (s *Store) ListPending(ctx context.Context) ([]domain.Transaction, error) {
	return s.listByStatus(ctx, domain.SyncPending)
}

// ListFailed returns all FAILED transactions in insertion order.
func (s *Store) ListFailed(ctx context.Context) ([]domain.Transaction, error) {
	return s.listByStatus(ctx, domain.SyncFailed)
}

func (s *Store) listByStatus(ctx context.Context, status domain.SyncStatus) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` FROM transactions WHERE sync_status = ? ORDER BY created_at ASC, id ASC`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s transactions: %w", status, err)
	}
	return collect(rows)
}

// ListRecent returns the newest transactions first, for display.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` FROM transactions ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent transactions: %w", err)
	}
	return collect(rows)
}

// CountPending returns how many transactions still await delivery.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE sync_status = ?`, string(domain.SyncPending),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

// Watch returns a channel receiving every ledger change, for consumers that
// need to react to inserts and status updates without polling. Slow
// consumers drop changes rather than block writers. The returned cancel
// function unsubscribes and closes the channel.
func (s *Store) Watch(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Change, buffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if c, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(c)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Store) notify(change Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- change:
		default:
		}
	}
}

const selectColumns = `SELECT id, amount, description, merchant, txn_type, source_id, sync_status, category, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTxn(row rowScanner) (domain.Transaction, error) {
	var txn domain.Transaction
	var txnType, status string
	err := row.Scan(
		&txn.ID, &txn.Amount, &txn.Description, &txn.Merchant,
		&txnType, &txn.SourceID, &status, &txn.Category, &txn.CreatedAt,
	)
	if err != nil {
		return domain.Transaction{}, err
	}
	txn.Type = domain.TxnType(txnType)
	txn.SyncStatus = domain.SyncStatus(status)
	return txn, nil
}

func collect(rows *sql.Rows) ([]domain.Transaction, error) {
	defer rows.Close()
	var out []domain.Transaction
	for rows.Next() {
		txn, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}
