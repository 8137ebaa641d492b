package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"lpoflow/internal"
	"lpoflow/internal/storage"
)

const selectLimit = 500

// Batcher turns completed queue items into accounting import files.
type Batcher struct {
	db     *storage.DB
	log    *zap.Logger
	dir    string
	format string

	now func() time.Time
}

func NewBatcher(db *storage.DB, log *zap.Logger, dir, format string) *Batcher {
	if format != "xlsx" {
		format = "csv"
	}
	return &Batcher{db: db, log: log, dir: dir, format: format, now: time.Now}
}

// Result reports one export batch.
type Result struct {
	ExportedCount int
	SkippedCount  int
	BatchRef      string
	Path          string
}

// Export selects completed, export-pending items (optionally narrowed
// to ids), writes one file for the batch, and atomically stamps every
// included item with the shared batch reference. Invoices failing
// validation are excluded from the batch and recorded, not exported
// half-empty.
func (b *Batcher) Export(ids []int64) (Result, error) {
	items, err := b.db.ListExportable(ids, selectLimit)
	if err != nil {
		return Result{}, fmt.Errorf("select exportable: %w", err)
	}
	if len(items) == 0 {
		return Result{}, nil
	}

	now := b.now()
	var invoices []Invoice
	var included []int64
	skipped := 0

	for _, item := range items {
		if err := validateInvoice(item); err != nil {
			skipped++
			b.log.Warn("invoice excluded from export", zap.Int64("id", item.ID), zap.Error(err))
			if recErr := b.db.InsertParsingFailure(internal.ParsingFailure{
				Filename:      item.Filename,
				CustomerEmail: item.CustomerEmail,
				FailureType:   internal.FailureExportValidation,
				ErrorMessage:  err.Error(),
			}); recErr != nil {
				b.log.Error("could not record export validation failure", zap.Error(recErr))
			}
			continue
		}

		inv := buildInvoice(item, now)
		for _, w := range inv.Warnings {
			b.log.Warn("export warning", zap.Int64("id", item.ID), zap.String("warning", w))
		}
		invoices = append(invoices, inv)
		included = append(included, item.ID)
	}

	if len(invoices) == 0 {
		return Result{SkippedCount: skipped}, nil
	}

	batchRef := uuid.NewString()
	path, err := b.writeFile(batchRef, now, invoices)
	if err != nil {
		return Result{}, err
	}

	if err := b.db.MarkExported(included, batchRef, path); err != nil {
		return Result{}, fmt.Errorf("mark exported: %w", err)
	}

	b.log.Info("export batch written",
		zap.String("batchRef", batchRef),
		zap.String("path", path),
		zap.Int("invoices", len(invoices)),
		zap.Int("skipped", skipped))

	return Result{
		ExportedCount: len(invoices),
		SkippedCount:  skipped,
		BatchRef:      batchRef,
		Path:          path,
	}, nil
}

// ExportPending satisfies the pipeline's exporter hook.
func (b *Batcher) ExportPending() (int, error) {
	result, err := b.Export(nil)
	if err != nil {
		return 0, err
	}
	return result.ExportedCount, nil
}

func (b *Batcher) writeFile(batchRef string, now time.Time, invoices []Invoice) (string, error) {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("invoices-%s-%s.%s", now.Format("20060102-150405"), batchRef[:8], b.format)
	path := filepath.Join(b.dir, name)

	if b.format == "xlsx" {
		return path, writeXLSX(path, invoices)
	}
	return path, writeCSV(path, invoices)
}

func writeCSV(path string, invoices []Invoice) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		return err
	}
	for _, inv := range invoices {
		for _, row := range inv.Rows() {
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

func writeXLSX(path string, invoices []Invoice) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Invoices"
	f.SetSheetName(f.GetSheetName(0), sheet)

	writeRow := func(rowIdx int, cells []string) error {
		for col, value := range cells {
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
		return nil
	}

	if err := writeRow(1, Header); err != nil {
		return err
	}
	rowIdx := 2
	for _, inv := range invoices {
		for _, row := range inv.Rows() {
			if err := writeRow(rowIdx, row); err != nil {
				return err
			}
			rowIdx++
		}
	}

	return f.SaveAs(path)
}
