package domain

import "time"

// TxnType is the direction of money movement inferred from notification text.
type TxnType string

const (
	TxnCredit  TxnType = "CREDIT"
	TxnDebit   TxnType = "DEBIT"
	TxnUnknown TxnType = "UNKNOWN"
)

// SyncStatus tracks delivery of a transaction to the remote spreadsheet.
type SyncStatus string

const (
	SyncPending SyncStatus = "PENDING"
	SyncSynced  SyncStatus = "SYNCED"
	SyncFailed  SyncStatus = "FAILED"
)

// CanTransition reports whether moving from s to next is a legal status
// change. SYNCED is terminal. Setting the current status again is allowed
// so that repeated updates stay idempotent.
func (s SyncStatus) CanTransition(next SyncStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case SyncPending:
		return next == SyncSynced || next == SyncFailed
	case SyncFailed:
		return next == SyncSynced
	default:
		return false
	}
}

const (
	// MerchantUnknown is stored when no merchant could be extracted.
	MerchantUnknown = "Unknown"
	// CategoryDefault is stored when no keyword rule matched.
	CategoryDefault = "Uncategorized"

	MaxDescriptionLen = 200
	MaxMerchantLen    = 50
)

// Transaction is one parsed financial event. The store assigns ID and
// CreatedAt on insert; SyncStatus is the only field mutated afterwards.
type Transaction struct {
	ID          int64      `json:"id"`
	Amount      float64    `json:"amount"`
	Description string     `json:"description"`
	Merchant    string     `json:"merchant"`
	Type        TxnType    `json:"type"`
	Category    string     `json:"category"`
	SourceID    string     `json:"source_id"`
	CreatedAt   time.Time  `json:"created_at"`
	SyncStatus  SyncStatus `json:"sync_status"`
}

// SyncResult summarizes one drain pass over pending transactions.
type SyncResult struct {
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Message   string `json:"message,omitempty"`
}

// Attempted reports whether the drain touched any records at all.
func (r SyncResult) Attempted() bool {
	return r.Succeeded+r.Failed > 0
}
