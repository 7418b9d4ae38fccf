// Package store persists the corp-code identity cache and run history in
// SQLite.
package store

import (
	"context"
	"time"

	"github.com/sells-group/ipo-research-cli/pkg/dart"
)

// Store defines the persistence interface for the research pipeline.
type Store interface {
	// Corp-code cache
	ReplaceCorpCodes(ctx context.Context, entries []dart.CorpEntry) error
	FindCorpExact(ctx context.Context, name string) (*dart.CorpEntry, error)
	FindCorpPartial(ctx context.Context, name string) ([]dart.CorpEntry, error)
	CorpCodesRefreshedAt(ctx context.Context) (time.Time, error)

	// Run history
	SaveRun(ctx context.Context, run RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// RunRecord is one persisted pipeline run.
type RunRecord struct {
	ID         string    `json:"id"`
	Company    string    `json:"company"`
	Status     string    `json:"status"`
	Report     []byte    `json:"report,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
