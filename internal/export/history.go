// Package export renders the reservation history as an Excel workbook.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"grillbook/internal/models"
	"grillbook/internal/timeutil"

	"github.com/xuri/excelize/v2"
)

const (
	SheetUpcoming = "Upcoming"
	SheetPast     = "Past"
	ContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var headers = []string{"Date", "Start", "End", "Apartment", "Name", "Title", "Description"}

var columnWidths = []float64{18, 10, 10, 12, 22, 28, 40}

// HistoryWorkbook builds a workbook with one sheet for upcoming and one for past reservations.
// The caller must Close the returned file.
func HistoryWorkbook(h models.History, loc *time.Location) (*excelize.File, error) {
	if loc == nil {
		loc = time.Local
	}
	f := excelize.NewFile()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}
	pastStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#EDEDED"}, Pattern: 1},
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
	})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create row style: %w", err)
	}

	sheets := []struct {
		name  string
		rows  []*models.Reservation
		style int
	}{
		{SheetUpcoming, h.Upcoming, 0},
		{SheetPast, h.Past, pastStyle},
	}
	for i, s := range sheets {
		index, err := f.NewSheet(s.name)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("create sheet %s: %w", s.name, err)
		}
		if i == 0 {
			f.SetActiveSheet(index)
		}
		if err := writeSheet(f, s.name, s.rows, loc, headerStyle, s.style); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

// WriteHistory streams the workbook to w.
func WriteHistory(w io.Writer, h models.History, loc *time.Location) error {
	f, err := HistoryWorkbook(h, loc)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// SaveHistory stores the workbook under dir and returns its path.
func SaveHistory(dir string, h models.History, loc *time.Location, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	f, err := HistoryWorkbook(h, loc)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(dir, FileName(now))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	return path, nil
}

// FileName is the download name of a history export taken at now.
func FileName(now time.Time) string {
	return fmt.Sprintf("reservations_%s.xlsx", now.Format("2006-01-02_15-04-05"))
}

func writeSheet(f *excelize.File, sheet string, rows []*models.Reservation, loc *time.Location, headerStyle, rowStyle int) error {
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("write header %s: %w", cell, err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(sheet, "A1", last, headerStyle)

	for i, r := range rows {
		row := i + 2
		start := r.StartTime.In(loc)
		end := r.EndTime.In(loc)
		values := []interface{}{
			timeutil.FormatDate(start),
			timeutil.FormatTime(start),
			timeutil.FormatTime(end),
			r.ApartmentNumber,
			r.Name,
			r.Title,
			r.Description,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("write cell %s: %w", cell, err)
			}
		}
		if rowStyle != 0 {
			first, _ := excelize.CoordinatesToCellName(1, row)
			lastCell, _ := excelize.CoordinatesToCellName(len(headers), row)
			_ = f.SetCellStyle(sheet, first, lastCell, rowStyle)
		}
	}

	for i, width := range columnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheet, col, col, width)
	}
	return nil
}
