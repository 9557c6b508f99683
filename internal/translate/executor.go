package translate

import (
	"context"
	"fmt"
	"sync"

	"github.com/jwhan/csvlingo/internal/domain"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// BatchResult carries one batch's translated rows plus its failure counts.
// Rows always matches the input batch in length and order.
type BatchResult struct {
	Rows            []domain.Row
	TranslatedCells int
	DegradedCells   int
	FailedRows      int
}

// BatchExecutor translates the mapped cells of every row in a batch. Rows are
// processed independently: a row that blows up is replaced by its original
// and counted, never aborting the batch. Only run-fatal provider errors
// propagate.
type BatchExecutor struct {
	translator  *CellTranslator
	concurrency int
	logger      *zap.Logger
}

func NewBatchExecutor(translator *CellTranslator, concurrency int, logger *zap.Logger) *BatchExecutor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchExecutor{
		translator:  translator,
		concurrency: concurrency,
		logger:      logger,
	}
}

type rowOutcome struct {
	row        domain.Row
	translated int
	degraded   int
	failed     bool
}

// ExecuteBatch translates one batch under the given config. Output row i
// always corresponds to batch.Rows[i] regardless of concurrency.
func (e *BatchExecutor) ExecuteBatch(ctx context.Context, batch domain.Batch, cfg *domain.TranslationConfig) (*BatchResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("translation config must not be nil")
	}

	active := cfg.ActiveMappings()
	result := &BatchResult{
		Rows: make([]domain.Row, len(batch.Rows)),
	}

	if len(active) == 0 {
		// Nothing mapped for translation; the batch passes through verbatim.
		for i, row := range batch.Rows {
			result.Rows[i] = row.Clone()
		}
		return result, nil
	}

	outcomes := make([]rowOutcome, len(batch.Rows))

	if e.concurrency <= 1 {
		for i, row := range batch.Rows {
			if fatal := e.processRow(ctx, row, active, cfg.SourceLanguage, &outcomes[i]); fatal != nil {
				return nil, fatal
			}
		}
	} else {
		var (
			fatalMu  sync.Mutex
			fatalErr error
		)
		rowCtx, cancelRows := context.WithCancel(ctx)
		defer cancelRows()

		p := pool.New().WithMaxGoroutines(e.concurrency)
		for i, row := range batch.Rows {
			i, row := i, row
			p.Go(func() {
				if fatal := e.processRow(rowCtx, row, active, cfg.SourceLanguage, &outcomes[i]); fatal != nil {
					fatalMu.Lock()
					if fatalErr == nil {
						fatalErr = fatal
					}
					fatalMu.Unlock()
					cancelRows()
				}
			})
		}
		p.Wait()

		if fatalErr != nil {
			return nil, fatalErr
		}
	}

	for i := range outcomes {
		result.Rows[i] = outcomes[i].row
		result.TranslatedCells += outcomes[i].translated
		result.DegradedCells += outcomes[i].degraded
		if outcomes[i].failed {
			result.FailedRows++
		}
	}

	if result.FailedRows > 0 || result.DegradedCells > 0 {
		e.logger.Warn("Batch completed with failures",
			zap.Int("batch", batch.Index),
			zap.Int("failed_rows", result.FailedRows),
			zap.Int("degraded_cells", result.DegradedCells),
		)
	}

	return result, nil
}

// processRow fills out with the translated row, or with the original row when
// anything unexpected happens inside row assembly. Returned errors are
// run-fatal only.
func (e *BatchExecutor) processRow(ctx context.Context, row domain.Row, active map[int]domain.ColumnMapping, sourceLang string, out *rowOutcome) (fatal error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Row translation panicked, keeping original row",
				zap.Any("panic", r),
			)
			out.row = row.Clone()
			out.translated = 0
			out.degraded = 0
			out.failed = true
			fatal = nil
		}
	}()

	translated := row.Clone()
	for col, mapping := range active {
		if col >= len(row) {
			continue
		}

		text, degraded, err := e.translator.TranslateCell(ctx, row[col], sourceLang, mapping.TargetLanguage)
		if err != nil {
			return err
		}

		translated[col] = text
		if degraded {
			out.degraded++
		} else if text != row[col] {
			out.translated++
		}
	}

	out.row = translated
	if out.degraded > 0 {
		out.failed = true
	}
	return nil
}
