package database

import (
	"fmt"

	"k8s.io/klog/v2"
)

// BatchProcessor walks rows in fixed size batches
type BatchProcessor struct {
	batchSize int
}

func NewBatchProcessor(batchSize int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = DefaultExecBatchSize
	}
	return &BatchProcessor{batchSize: batchSize}
}

// ProcessInBatches calls processFunc with consecutive slices of rows. The
// first failing batch stops processing.
func (bp *BatchProcessor) ProcessInBatches(rows [][]any, processFunc func(batch [][]any) error) error {
	for i := 0; i < len(rows); i += bp.batchSize {
		end := min(i+bp.batchSize, len(rows))
		if err := processFunc(rows[i:end]); err != nil {
			return fmt.Errorf("failed to process batch %d-%d: %w", i, end, err)
		}
		klog.V(3).InfoS("Processed batch", "start", i, "end", end, "rows", end-i)
	}
	return nil
}
