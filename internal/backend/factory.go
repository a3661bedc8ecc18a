package backend

import (
	"context"
	"fmt"
	"log/slog"

	"budgetly/internal/amqp"
	"budgetly/internal/ledger"
	"budgetly/internal/ledger/memory"
	applog "budgetly/internal/log"
	"budgetly/internal/services"
	"budgetly/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend opens the configured ledger and wires a BudgetService over it.
// AMQP is optional: a broker that cannot be reached is logged and skipped.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store   ledger.Store
		ownerID int64
	)
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		store = repo
		f.logger.InfoContext(ctx, "Initialized SQLite backend",
			applog.FieldBackend, config.Type.String(),
			"db_path", config.SQLiteDBPath)
	case MemoryBackend:
		dataDir := config.DataDirectory
		if dataDir == "" {
			dataDir = "data"
		}
		store, ownerID = memory.NewFromFiles(dataDir)
		f.logger.InfoContext(ctx, "Initialized memory backend",
			applog.FieldBackend, config.Type.String(),
			"data_directory", dataDir,
			applog.FieldOwnerID, ownerID)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	var publisher services.Publisher
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events",
				applog.FieldError, err)
		} else {
			publisher = client
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	svc := services.NewBudgetService(store, publisher)
	return &BackendResult{
		Service:        svc,
		Store:          store,
		DefaultOwnerID: ownerID,
		Cleanup:        svc.Close,
	}, nil
}
