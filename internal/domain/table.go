package domain

import (
	"strings"

	"github.com/jwhan/csvlingo/pkg/errors"
)

// Row is one ordered record of cell strings. Rows are never mutated in place;
// translation always produces a new row.
type Row []string

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Table is a parsed CSV: a header row plus data rows of equal width.
type Table struct {
	Headers []string `json:"headers"`
	Rows    []Row    `json:"rows"`
}

// ColumnMapping selects one column for translation. Columns without a mapping,
// with ShouldTranslate unset, or with an empty TargetLanguage pass through
// verbatim.
type ColumnMapping struct {
	ColumnIndex     int    `json:"columnIndex"`
	ColumnName      string `json:"columnName"`
	ShouldTranslate bool   `json:"shouldTranslate"`
	TargetLanguage  string `json:"targetLanguage,omitempty"`
}

// TranslationConfig describes one run over a table.
type TranslationConfig struct {
	SourceLanguage string          `json:"sourceLanguage"`
	ColumnMappings []ColumnMapping `json:"columnMappings"`
	BatchSize      int             `json:"batchSize"`
}

// Validate checks the structural invariants against the given header count.
// All violations are run-fatal.
func (c *TranslationConfig) Validate(headerCount int) error {
	if c.BatchSize < 1 {
		return errors.NewValidationError("batch size must be at least 1", "batchSize", c.BatchSize)
	}
	if strings.TrimSpace(c.SourceLanguage) == "" {
		return errors.NewValidationError("source language is required", "sourceLanguage", c.SourceLanguage)
	}

	seen := make(map[int]struct{}, len(c.ColumnMappings))
	target := ""
	for _, m := range c.ColumnMappings {
		if m.ColumnIndex < 0 || m.ColumnIndex >= headerCount {
			return errors.NewValidationError("column index out of range", "columnIndex", m.ColumnIndex)
		}
		if _, dup := seen[m.ColumnIndex]; dup {
			return errors.NewValidationError("duplicate column index in mappings", "columnIndex", m.ColumnIndex)
		}
		seen[m.ColumnIndex] = struct{}{}

		if !m.ShouldTranslate || m.TargetLanguage == "" {
			continue
		}
		if target == "" {
			target = m.TargetLanguage
		} else if target != m.TargetLanguage {
			// Single target language per run; mixed mappings are rejected
			// rather than silently fanned out.
			return errors.NewValidationError("all translated columns must share one target language", "targetLanguage", m.TargetLanguage)
		}
	}

	return nil
}

// ActiveMappings returns the mappings that actually trigger translation,
// keyed by column index.
func (c *TranslationConfig) ActiveMappings() map[int]ColumnMapping {
	active := make(map[int]ColumnMapping)
	for _, m := range c.ColumnMappings {
		if m.ShouldTranslate && m.TargetLanguage != "" {
			active[m.ColumnIndex] = m
		}
	}
	return active
}

// Batch is a contiguous slice of rows processed together. Batches partition
// the full row sequence in order, with no gaps or overlaps.
type Batch struct {
	Index    int
	StartRow int
	Rows     []Row
}

// RunSummary is the audit record of one finished run.
type RunSummary struct {
	JobID          string
	SourceLanguage string
	TargetLanguage string
	TotalRows      int
	ProcessedRows  int
	FailedRows     int
	FailedBatches  int
	DegradedCells  int
	Status         string
	DurationMillis int64
}
