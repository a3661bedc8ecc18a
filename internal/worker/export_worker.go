package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"budgetly/internal/amqp"
	applog "budgetly/internal/log"
	"budgetly/internal/services"
)

// EventConsumer delivers budget events until ctx is done.
type EventConsumer interface {
	ConsumeBudgetEvents(ctx context.Context, handler func(context.Context, *amqp.BudgetEvent) error) error
}

// ExportWorker mirrors budget changes to the exporter: events from the queue
// re-export the affected period, and the processor's loop keeps the current
// period of every owner fresh.
type ExportWorker struct {
	consumer  EventConsumer
	processor *services.ExportProcessor
	now       func() time.Time
}

func NewExportWorker(consumer EventConsumer, processor *services.ExportProcessor) *ExportWorker {
	return &ExportWorker{
		consumer:  consumer,
		processor: processor,
		now:       time.Now,
	}
}

// Run blocks until ctx is canceled. A nil consumer runs the periodic loop only.
func (w *ExportWorker) Run(ctx context.Context) error {
	if err := w.StartupExport(ctx); err != nil {
		slog.WarnContext(ctx, "Startup export failed", applog.FieldError, err)
	}

	if err := w.processor.Start(ctx); err != nil {
		return fmt.Errorf("start export processor: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := w.processor.Stop(stopCtx); err != nil {
			slog.Warn("Export processor did not stop cleanly", applog.FieldError, err)
		}
	}()

	if w.consumer == nil {
		slog.InfoContext(ctx, "No event consumer configured, running periodic exports only",
			applog.FieldComponent, applog.ComponentWorker)
		<-ctx.Done()
		return nil
	}

	err := w.consumer.ConsumeBudgetEvents(ctx, w.HandleEvent)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// HandleEvent is the queue handler. Returning an error requeues the event.
func (w *ExportWorker) HandleEvent(ctx context.Context, e *amqp.BudgetEvent) error {
	if err := w.processor.HandleEvent(ctx, e); err != nil {
		return fmt.Errorf("handle %s event %s: %w", e.Type, e.ID, err)
	}
	return nil
}

// StartupExport exports the current period for every owner so the sheet
// reflects changes made while the worker was down.
func (w *ExportWorker) StartupExport(ctx context.Context) error {
	period := services.CurrentPeriod(w.now())
	n, err := w.processor.ExportAll(ctx, period)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Startup export completed",
		applog.FieldComponent, applog.ComponentWorker,
		applog.FieldPeriod, period.String(),
		"exported", n)
	return nil
}

