package checkpoint

import (
	"context"
	"time"
)

// ItemStatus represents the outcome of one work item
type ItemStatus string

const (
	StatusCompleted ItemStatus = "completed"
	StatusFailed    ItemStatus = "failed"
)

// ItemRecord represents an item outcome in the run ledger
type ItemRecord struct {
	Source      string     `json:"source"`
	Destination string     `json:"destination"`
	Metadata    string     `json:"metadata"`
	Status      ItemStatus `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	RunID       string     `json:"run_id"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Store defines the interface for run ledger persistence.
// The ledger is diagnostic; completion markers decide what gets skipped.
type Store interface {
	GetItem(ctx context.Context, source string) (*ItemRecord, error)
	SaveItem(ctx context.Context, record *ItemRecord) error
	ListFailedItems(ctx context.Context) ([]*ItemRecord, error)
	CountByStatus(ctx context.Context) (map[ItemStatus]int, error)

	Close() error
}
