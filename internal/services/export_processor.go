package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"budgetly/internal/amqp"
	"budgetly/internal/core"
	applog "budgetly/internal/log"
)

// SummaryExporter writes a period summary outside the ledger, e.g. to a
// spreadsheet.
type SummaryExporter interface {
	ExportSummary(ctx context.Context, s core.PeriodSummary) error
}

// SummarySource is the read side of BudgetService used for exports.
type SummarySource interface {
	GetPeriodSummary(ctx context.Context, ownerID int64, month, year int) (core.PeriodSummary, error)
	ListOwners(ctx context.Context) ([]int64, error)
}

type ExportProcessorConfig struct {
	// Interval between full exports of the current period. Zero disables them.
	Interval time.Duration

	// MaxRetries is the number of attempts per summary (default: 3)
	MaxRetries int

	// RetryDelay is the first backoff step; it doubles on each attempt.
	RetryDelay time.Duration
}

func DefaultExportProcessorConfig() ExportProcessorConfig {
	return ExportProcessorConfig{
		Interval:   15 * time.Minute,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// ExportProcessor keeps exported summaries current: it re-exports the period
// named by each budget event, and periodically exports the current period of
// every owner.
type ExportProcessor struct {
	source   SummarySource
	exporter SummaryExporter
	config   ExportProcessorConfig
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewExportProcessor(source SummarySource, exporter SummaryExporter, config ExportProcessorConfig) *ExportProcessor {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 1
	}
	return &ExportProcessor{
		source:   source,
		exporter: exporter,
		config:   config,
		now:      time.Now,
	}
}

// Start begins the periodic loop. Returns an error if already running.
func (p *ExportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("export processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stop, done := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stop, done)

	slog.InfoContext(ctx, "Export processor started",
		applog.FieldComponent, applog.ComponentWorker,
		"interval", p.config.Interval)
	return nil
}

// Stop signals the loop and waits for it, bounded by ctx. Only the first of
// concurrent calls waits; the others return at once.
func (p *ExportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stop, done := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stop)

	select {
	case <-done:
		slog.InfoContext(ctx, "Export processor stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Export processor stop timed out")
		return ctx.Err()
	}
}

func (p *ExportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ExportProcessor) runLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	if p.config.Interval <= 0 {
		select {
		case <-stop:
		case <-ctx.Done():
		}
		return
	}

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.ExportAll(ctx, CurrentPeriod(p.now())); err != nil {
				slog.ErrorContext(ctx, "Periodic export failed", applog.FieldError, err)
			}
		}
	}
}

// HandleEvent re-exports the summary of the event's owner and period.
func (p *ExportProcessor) HandleEvent(ctx context.Context, e *amqp.BudgetEvent) error {
	slog.InfoContext(ctx, "Handling budget event",
		applog.FieldComponent, applog.ComponentWorker,
		applog.FieldEventType, string(e.Type),
		applog.FieldEventID, e.ID,
		applog.FieldOwnerID, e.OwnerID,
		applog.FieldPeriod, e.Period().String())

	return p.export(ctx, e.OwnerID, e.Period())
}

// ExportAll exports p for every owner, logging and continuing on failure.
// It returns how many owners were exported.
func (p *ExportProcessor) ExportAll(ctx context.Context, period core.Period) (int, error) {
	owners, err := p.source.ListOwners(ctx)
	if err != nil {
		return 0, fmt.Errorf("list owners: %w", err)
	}

	exported := 0
	for _, ownerID := range owners {
		if err := p.export(ctx, ownerID, period); err != nil {
			slog.ErrorContext(ctx, "Failed to export summary",
				applog.FieldComponent, applog.ComponentWorker,
				applog.FieldOwnerID, ownerID,
				applog.FieldPeriod, period.String(),
				applog.FieldError, err)
			continue
		}
		exported++
	}

	slog.InfoContext(ctx, "Export completed",
		applog.FieldComponent, applog.ComponentWorker,
		applog.FieldPeriod, period.String(),
		"total_owners", len(owners),
		"exported", exported)
	return exported, nil
}

func (p *ExportProcessor) export(ctx context.Context, ownerID int64, period core.Period) error {
	summary, err := p.source.GetPeriodSummary(ctx, ownerID, period.Month, period.Year)
	if err != nil {
		return fmt.Errorf("build summary: %w", err)
	}

	delay := p.config.RetryDelay
	var lastErr error
	for attempt := 1; attempt <= p.config.MaxRetries; attempt++ {
		if lastErr = p.exporter.ExportSummary(ctx, summary); lastErr == nil {
			return nil
		}
		slog.WarnContext(ctx, "Export attempt failed",
			applog.FieldOwnerID, ownerID,
			applog.FieldPeriod, period.String(),
			"attempt", attempt,
			applog.FieldError, lastErr)
		if attempt == p.config.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("export %s for owner %d after %d attempts: %w", period, ownerID, p.config.MaxRetries, lastErr)
}
