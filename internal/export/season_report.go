package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pavelsemenov/choreboard/internal/domain/entity"
	"github.com/pavelsemenov/choreboard/internal/scoring"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// SeasonReporter writes end-of-season workbooks: one sheet with the final
// standings, one with the full ledger of the closing season
type SeasonReporter struct {
	outputDir string
	logger    *zap.Logger
}

// NewSeasonReporter creates a season reporter writing into outputDir
func NewSeasonReporter(outputDir string, logger *zap.Logger) *SeasonReporter {
	return &SeasonReporter{
		outputDir: outputDir,
		logger:    logger,
	}
}

// WriteSeasonReport renders the standings and ledger to an xlsx file and
// returns its path
func (r *SeasonReporter) WriteSeasonReport(ctx context.Context, standings []scoring.Standing, events []*entity.ScoreEvent, resetAt time.Time) (string, error) {
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := r.fillStandings(f, standings, resetAt); err != nil {
		return "", err
	}
	if err := r.fillLedger(f, events); err != nil {
		return "", err
	}

	outputPath := filepath.Join(r.outputDir, fmt.Sprintf("season_%s.xlsx", resetAt.Format("2006-01")))
	if err := f.SaveAs(outputPath); err != nil {
		return "", fmt.Errorf("failed to save season report: %w", err)
	}

	r.logger.Info("Season report written",
		zap.String("output_path", outputPath),
		zap.Int("standings", len(standings)),
		zap.Int("events", len(events)))

	return outputPath, nil
}

func (r *SeasonReporter) fillStandings(f *excelize.File, standings []scoring.Standing, resetAt time.Time) error {
	const sheet = "Standings"

	defaultSheet := f.GetSheetName(f.GetActiveSheetIndex())
	if err := f.SetSheetName(defaultSheet, sheet); err != nil {
		return fmt.Errorf("failed to rename standings sheet: %w", err)
	}

	r.setCell(f, sheet, "A1", "Season ended")
	r.setCell(f, sheet, "B1", resetAt.Format("2006-01-02 15:04"))
	r.setCell(f, sheet, "A3", "Place")
	r.setCell(f, sheet, "B3", "Participant")
	r.setCell(f, sheet, "C3", "Points")

	for i, s := range standings {
		row := i + 4
		r.setCell(f, sheet, fmt.Sprintf("A%d", row), i+1)
		r.setCell(f, sheet, fmt.Sprintf("B%d", row), s.ParticipantID)
		r.setCell(f, sheet, fmt.Sprintf("C%d", row), s.Points)
	}
	return nil
}

func (r *SeasonReporter) fillLedger(f *excelize.File, events []*entity.ScoreEvent) error {
	const sheet = "Ledger"

	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create ledger sheet: %w", err)
	}

	r.setCell(f, sheet, "A1", "Timestamp")
	r.setCell(f, sheet, "B1", "Participant")
	r.setCell(f, sheet, "C1", "Delta")
	r.setCell(f, sheet, "D1", "Reason")
	r.setCell(f, sheet, "E1", "Instance")

	for i, e := range events {
		row := i + 2
		r.setCell(f, sheet, fmt.Sprintf("A%d", row), e.CreatedAt.Format(time.RFC3339))
		r.setCell(f, sheet, fmt.Sprintf("B%d", row), e.ParticipantID)
		r.setCell(f, sheet, fmt.Sprintf("C%d", row), e.Delta)
		r.setCell(f, sheet, fmt.Sprintf("D%d", row), string(e.Reason))
		if e.TaskInstanceID != nil {
			r.setCell(f, sheet, fmt.Sprintf("E%d", row), *e.TaskInstanceID)
		}
	}
	return nil
}

func (r *SeasonReporter) setCell(f *excelize.File, sheet, cell string, value interface{}) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		r.logger.Warn("Failed to set cell value",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}
