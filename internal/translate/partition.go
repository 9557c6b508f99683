package translate

import (
	"github.com/jwhan/csvlingo/internal/constants"
	"github.com/jwhan/csvlingo/internal/domain"
	"github.com/jwhan/csvlingo/internal/util"
)

// Partition splits rows into ceil(n/batchSize) contiguous batches in order.
// Concatenating the batches reconstructs rows exactly; StartRow preserves
// each batch's global position for reassembly and logging.
func Partition(rows []domain.Row, batchSize int) []domain.Batch {
	if len(rows) == 0 {
		return nil
	}
	if batchSize < 1 {
		batchSize = 1
	}

	batches := make([]domain.Batch, 0, util.CeilDiv(len(rows), batchSize))
	for start := 0; start < len(rows); start += batchSize {
		end := util.Min(start+batchSize, len(rows))
		batches = append(batches, domain.Batch{
			Index:    len(batches),
			StartRow: start,
			Rows:     rows[start:end],
		})
	}

	return batches
}

// ClampBatchSize bounds a requested batch size to the configured limits,
// substituting the default for non-positive values.
func ClampBatchSize(size int) int {
	if size <= 0 {
		return constants.BatchConfig.DefaultSize
	}
	return util.Clamp(size, constants.BatchConfig.MinSize, constants.BatchConfig.MaxSize)
}
