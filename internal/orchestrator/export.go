package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hpungsan/scout/internal/backend"
	"github.com/hpungsan/scout/internal/errors"
	"github.com/hpungsan/scout/internal/results"
)

// Export writes the last results of mode to a spreadsheet and returns its path.
func (o *Orchestrator) Export(mode results.Mode, opts results.ExportOptions) (string, error) {
	path, err := o.results.Export(mode, opts)
	if err != nil {
		return "", err
	}
	o.logger.Info("results exported", zap.String("mode", string(mode)), zap.String("path", path))
	return path, nil
}

// ExportAnalysis has the backend render the last file analysis as a
// spreadsheet and saves it under dir.
func (o *Orchestrator) ExportAnalysis(ctx context.Context, dir string) (string, error) {
	records, ok := o.results.Get(results.ModeExcel)
	if !ok || len(records) == 0 {
		return "", errors.NewNoData(string(results.ModeExcel))
	}
	if o.files == nil {
		return "", errors.NewInternal(fmt.Errorf("no file saver configured"))
	}

	dl, err := o.api.ExportAnalysis(ctx, backend.ExportAnalysisRequest{
		Results:   records,
		SessionID: o.sessions.Ensure(),
	})
	if err != nil {
		return "", err
	}

	name := dl.Filename
	if name == "" {
		name = fmt.Sprintf("patent_analysis_%s.xlsx", o.now().Format("20060102_150405"))
	}
	path, err := o.files.SaveFile(dir, name, dl.Data)
	if err != nil {
		return "", err
	}
	o.logger.Info("analysis exported", zap.String("path", path), zap.Int("records", len(records)))
	return path, nil
}
