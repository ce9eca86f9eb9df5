// Package export writes patent records to .xlsx spreadsheets and reads
// spreadsheets for upload, with the same path and symlink checks for both.
package export

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hpungsan/scout/internal/config"
	"github.com/hpungsan/scout/internal/errors"
	"github.com/hpungsan/scout/internal/patent"
	"github.com/hpungsan/scout/internal/results"
)

// TruncateChars bounds the abstract and claims columns.
const TruncateChars = 500

// SheetName is the worksheet holding the records.
const SheetName = "專利檢索結果"

// Headers are the literal column headers, in order.
var Headers = []string{
	"No.",
	"專利名稱",
	"專利連結",
	"公開公告號",
	"申請人",
	"國家",
	"摘要",
	"專利範圍",
	"技術特徵",
	"技術功效",
}

// columnWidths matches Headers.
var columnWidths = []float64{6, 40, 30, 18, 24, 8, 60, 60, 40, 40}

// Row flattens a record into export cells. n is the 1-based row number.
func Row(n int, r patent.Record) []any {
	return []any{
		n,
		r.Title,
		r.ResolvedLink(),
		r.PublicationNumber,
		strings.Join(r.Applicants, "; "),
		r.Country,
		patent.Truncate(r.Abstract, TruncateChars),
		patent.Truncate(r.Claims, TruncateChars),
		strings.Join(r.Features, "; "),
		strings.Join(r.Effects, "; "),
	}
}

// Filename returns <label>_<mode>_<YYYY-MM-DD>.xlsx.
func Filename(label string, mode results.Mode, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s.xlsx", SanitizeForFilename(label), mode, now.Format("2006-01-02"))
}

// Exporter writes spreadsheets into an exports directory.
type Exporter struct {
	cfg        *config.Config
	exportsDir string
	now        func() time.Time
}

// New creates an Exporter writing to exportsDir by default.
func New(cfg *config.Config, exportsDir string) *Exporter {
	return &Exporter{cfg: cfg, exportsDir: exportsDir, now: time.Now}
}

// Dir returns the default exports directory.
func (e *Exporter) Dir() string {
	return e.exportsDir
}

// Export writes records to <dir>/<label>_<mode>_<date>.xlsx and returns the path.
func (e *Exporter) Export(mode results.Mode, records []patent.Record, opts results.ExportOptions) (string, error) {
	if len(records) == 0 {
		return "", errors.NewNoData(string(mode))
	}

	label := opts.Label
	if label == "" && e.cfg != nil {
		label = e.cfg.ExportLabel
	}
	dir := opts.Dir
	if dir == "" {
		dir = e.exportsDir
	}
	path := filepath.Join(dir, Filename(label, mode, e.now()))

	if err := ValidatePath(path, e.exportsDir, e.cfg); err != nil {
		return "", err
	}

	if err := writeAtomic(path, func(w io.Writer) error {
		return WriteWorkbook(w, records)
	}); err != nil {
		return "", err
	}
	return path, nil
}

// SaveFile writes data under dir/name after the same checks as Export.
// Used for spreadsheets produced by the backend.
func (e *Exporter) SaveFile(dir, name string, data []byte) (string, error) {
	if dir == "" {
		dir = e.exportsDir
	}
	name = SanitizeForFilename(filepath.Base(name))
	if !strings.EqualFold(filepath.Ext(name), ".xlsx") {
		name += ".xlsx"
	}
	path := filepath.Join(dir, name)
	if err := ValidatePath(path, e.exportsDir, e.cfg); err != nil {
		return "", err
	}
	if err := writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return "", err
	}
	return path, nil
}

// WriteWorkbook renders records as a single-sheet workbook with a bold
// header row.
func WriteWorkbook(w io.Writer, records []patent.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}

	header := make([]any, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return err
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := Row(i+1, r)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return err
		}
	}

	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return err
		}
	}

	_, err = f.WriteTo(w)
	return err
}
