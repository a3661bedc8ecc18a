package backend

import (
	"context"

	"budgetly/internal/ledger"
	"budgetly/internal/services"
)

// CleanupFunc releases the ledger and the event publisher.
type CleanupFunc func() error

// BackendResult contains the assembled service and its cleanup function.
type BackendResult struct {
	Service *services.BudgetService
	Store   ledger.Store
	// DefaultOwnerID is the owner seeded by the memory backend; zero otherwise.
	DefaultOwnerID int64
	Cleanup        CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Event publishing; empty URL disables it
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Memory backend seed directory
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
