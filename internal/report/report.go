// Package report renders course progress spreadsheets.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/progress"
)

// Sheet names.
const (
	ProgressSheet = "Progress"
	OutlineSheet  = "Outline"
)

var (
	progressHeader = []any{"User ID", "Started At", "Completed Lessons", "Total Lessons", "Progress %", "Completed Modules", "Completed Assessments"}
	outlineHeader  = []any{"Module", "Lesson ID", "Lesson", "Type", "Duration", "Completed By"}
)

// Build creates a workbook with one row per learner and one row per lesson.
// Rates are recomputed against c.
func Build(c course.Course, records []progress.CourseProgress) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), ProgressSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(OutlineSheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create style: %w", err)
	}

	total := len(c.Refs())
	rows := make([][]any, 0, len(records))
	completedBy := make(map[string]int)
	for _, p := range records {
		done := 0
		for _, ref := range c.Refs() {
			if p.LessonDone(ref) {
				done++
				completedBy[ref.Key()]++
			}
		}
		rows = append(rows, []any{
			p.UserID,
			p.StartedAt.UTC().Format(time.RFC3339),
			done,
			total,
			progress.Rate(p, c),
			len(p.CompletedModules),
			len(p.CompletedAssessments),
		})
	}
	if err := writeSheet(f, ProgressSheet, bold, progressHeader, rows); err != nil {
		return nil, err
	}

	rows = rows[:0]
	for _, m := range c.Modules {
		for _, l := range m.Lessons {
			ref := course.LessonRef{ModuleID: m.ID, LessonID: l.ID}
			rows = append(rows, []any{m.Title, l.ID, l.Title, string(l.Type), l.Duration, completedBy[ref.Key()]})
		}
	}
	if err := writeSheet(f, OutlineSheet, bold, outlineHeader, rows); err != nil {
		return nil, err
	}

	return f, nil
}

// Write builds the workbook and writes it as XLSX to w.
func Write(w io.Writer, c course.Course, records []progress.CourseProgress) error {
	f, err := Build(c, records)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, headerStyle int, header []any, rows [][]any) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("%s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("%s header style: %w", sheet, err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+2, err)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(header))
	if err := f.SetColWidth(sheet, "A", lastCol, 18); err != nil {
		return fmt.Errorf("%s column width: %w", sheet, err)
	}
	return nil
}
