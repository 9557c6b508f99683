package translate

import (
	"context"
	"fmt"
	"time"

	"github.com/jwhan/csvlingo/internal/domain"
	"go.uber.org/zap"
)

// Options are the run-level knobs a caller may set. Zero values fall back to
// the configured defaults.
type Options struct {
	InterBatchDelay time.Duration
	BatchTimeout    time.Duration
}

// Orchestrator drives a full run: partition, per-batch execution in strict
// index order, pacing, progress events, and final assembly. Batches are never
// reordered; concurrency only ever exists inside a batch.
type Orchestrator struct {
	executor *BatchExecutor
	opts     Options
	logger   *zap.Logger
}

func NewOrchestrator(executor *BatchExecutor, opts Options, logger *zap.Logger) *Orchestrator {
	if opts.InterBatchDelay < 0 {
		opts.InterBatchDelay = 0
	}
	return &Orchestrator{
		executor: executor,
		opts:     opts,
		logger:   logger,
	}
}

// Run starts one translation run and returns its ordered event stream. The
// channel receives zero or more progress events followed by exactly one
// terminal event (complete or error), then closes. Cancel ctx to stop the
// run; cancellation ends the stream with a terminal error event after the
// current batch.
func (o *Orchestrator) Run(ctx context.Context, table *domain.Table, cfg *domain.TranslationConfig) <-chan Event {
	events := make(chan Event, 16)

	go func() {
		defer close(events)
		o.run(ctx, table, cfg, events)
	}()

	return events
}

func (o *Orchestrator) run(ctx context.Context, table *domain.Table, cfg *domain.TranslationConfig, events chan<- Event) {
	var seq int64
	emit := func(e Event) {
		seq++
		e.Seq = seq
		e.Timestamp = time.Now().UTC()
		events <- e
	}

	if table == nil || cfg == nil {
		emit(Event{Type: EventError, Message: "table and config are required"})
		return
	}

	totalRows := len(table.Rows)

	if err := cfg.Validate(len(table.Headers)); err != nil {
		o.logger.Error("Run rejected: invalid configuration", zap.Error(err))
		emit(Event{Type: EventError, TotalRows: totalRows, Message: err.Error()})
		return
	}

	batchSize := ClampBatchSize(cfg.BatchSize)
	batches := Partition(table.Rows, batchSize)
	totalBatches := len(batches)

	o.logger.Info("Translation run started",
		zap.Int("total_rows", totalRows),
		zap.Int("batch_size", batchSize),
		zap.Int("total_batches", totalBatches),
		zap.String("source_language", cfg.SourceLanguage),
	)

	resultRows := make([]domain.Row, 0, totalRows)
	processedRows := 0
	failedRows := 0
	failedBatches := 0
	degradedCells := 0

	for _, batch := range batches {
		if ctx.Err() != nil {
			o.logger.Warn("Run canceled",
				zap.Int("processed_rows", processedRows),
				zap.Int("total_rows", totalRows),
			)
			emit(Event{
				Type:          EventError,
				TotalRows:     totalRows,
				ProcessedRows: processedRows,
				Message:       "run canceled",
			})
			return
		}

		// Pacing applies before every batch except the first.
		if batch.Index > 0 && o.opts.InterBatchDelay > 0 {
			if !o.pause(ctx, o.opts.InterBatchDelay) {
				emit(Event{
					Type:          EventError,
					TotalRows:     totalRows,
					ProcessedRows: processedRows,
					Message:       "run canceled",
				})
				return
			}
		}

		result, batchFailed, err := o.executeBatch(ctx, batch, cfg)
		if err != nil {
			if ctx.Err() != nil {
				emit(Event{
					Type:          EventError,
					TotalRows:     totalRows,
					ProcessedRows: processedRows,
					Message:       "run canceled",
				})
				return
			}
			o.logger.Error("Run aborted by fatal error",
				zap.Int("batch", batch.Index),
				zap.Error(err),
			)
			emit(Event{
				Type:          EventError,
				TotalRows:     totalRows,
				ProcessedRows: processedRows,
				CurrentBatch:  batch.Index + 1,
				TotalBatches:  totalBatches,
				Message:       err.Error(),
			})
			return
		}

		resultRows = append(resultRows, result.Rows...)
		processedRows += len(batch.Rows)
		failedRows += result.FailedRows
		degradedCells += result.DegradedCells
		if batchFailed {
			failedBatches++
		}

		message := fmt.Sprintf("Translated batch %d/%d (%d/%d rows)",
			batch.Index+1, totalBatches, processedRows, totalRows)
		if result.FailedRows > 0 {
			message = fmt.Sprintf("%s; %d rows kept original text", message, result.FailedRows)
		}

		emit(Event{
			Type:          EventProgress,
			TotalRows:     totalRows,
			ProcessedRows: processedRows,
			CurrentBatch:  batch.Index + 1,
			TotalBatches:  totalBatches,
			FailedRows:    failedRows,
			FailedBatches: failedBatches,
			DegradedCells: degradedCells,
			Message:       message,
		})
	}

	final := &domain.Table{
		Headers: append([]string(nil), table.Headers...),
		Rows:    resultRows,
	}

	message := fmt.Sprintf("Translation complete: %d rows", totalRows)
	if failedRows > 0 || failedBatches > 0 {
		message = fmt.Sprintf("%s (%d rows and %d batches kept original text)",
			message, failedRows, failedBatches)
	}

	o.logger.Info("Translation run finished",
		zap.Int("total_rows", totalRows),
		zap.Int("failed_rows", failedRows),
		zap.Int("failed_batches", failedBatches),
		zap.Int("degraded_cells", degradedCells),
	)

	emit(Event{
		Type:          EventComplete,
		TotalRows:     totalRows,
		ProcessedRows: processedRows,
		TotalBatches:  totalBatches,
		FailedRows:    failedRows,
		FailedBatches: failedBatches,
		DegradedCells: degradedCells,
		Message:       message,
		Result:        final,
	})
}

// executeBatch runs one batch under the optional per-batch deadline. A batch
// that times out degrades whole: its original rows are substituted and it is
// counted as failed, and the run moves on.
func (o *Orchestrator) executeBatch(ctx context.Context, batch domain.Batch, cfg *domain.TranslationConfig) (*BatchResult, bool, error) {
	batchCtx := ctx
	cancel := context.CancelFunc(func() {})
	if o.opts.BatchTimeout > 0 {
		batchCtx, cancel = context.WithTimeout(ctx, o.opts.BatchTimeout)
	}
	defer cancel()

	result, err := o.executor.ExecuteBatch(batchCtx, batch, cfg)

	timedOut := batchCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil
	if timedOut {
		o.logger.Warn("Batch timed out, keeping original rows",
			zap.Int("batch", batch.Index),
			zap.Duration("timeout", o.opts.BatchTimeout),
		)
		return o.originalBatchResult(batch), true, nil
	}

	if err != nil {
		return nil, false, err
	}

	return result, false, nil
}

func (o *Orchestrator) originalBatchResult(batch domain.Batch) *BatchResult {
	rows := make([]domain.Row, len(batch.Rows))
	for i, row := range batch.Rows {
		rows[i] = row.Clone()
	}
	return &BatchResult{
		Rows:       rows,
		FailedRows: len(batch.Rows),
	}
}

// pause sleeps for the pacing delay, returning false on cancellation.
func (o *Orchestrator) pause(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
