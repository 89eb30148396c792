// Package export renders fall event lists as spreadsheets.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/domain"
)

const eventsSheet = "Events"

// EventsHeader column order of the events export.
var EventsHeader = []string{
	"Event ID", "Event UID", "Device ID", "Device Alias", "Patient",
	"Type", "Status", "Occurred At", "Created At",
	"Reviewed By", "Reviewed At", "Review Comment", "Version",
}

var eventsColumnWidths = []float64{38, 20, 18, 20, 24, 20, 18, 22, 22, 24, 22, 40, 10}

// EventsXLSX writes events, in the given order, to a single-sheet workbook.
func EventsXLSX(events []*domain.FallEvent) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(eventsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range EventsHeader {
		if err := setCellValue(f, col+1, 1, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header %q: %w", header, err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetColWidth(eventsSheet, name, name, eventsColumnWidths[col]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(EventsHeader), 1)
	if err := f.SetCellStyle(eventsSheet, "A1", lastHeader, headerStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}

	for i, ev := range events {
		row := i + 2
		values := []interface{}{
			ev.ID,
			derefString(ev.EventUID),
			ev.DeviceID,
			derefString(ev.DeviceAlias),
			derefString(ev.PatientName),
			string(ev.EventType),
			string(ev.Status),
			formatTime(&ev.OccurredAt),
			formatTime(&ev.CreatedAt),
			reviewerLabel(ev),
			formatTime(ev.ReviewedAt),
			derefString(ev.ReviewComment),
			ev.Version,
		}
		for col, v := range values {
			if s, ok := v.(string); ok && s == "" {
				continue
			}
			if err := setCellValue(f, col+1, row, v); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell at row %d, col %d: %w", row, col+1, err)
			}
		}
	}

	if err := f.SetPanes(eventsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func setCellValue(f *excelize.File, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(eventsSheet, cell, value)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func reviewerLabel(ev *domain.FallEvent) string {
	if ev.ReviewedByName != nil && *ev.ReviewedByName != "" {
		return *ev.ReviewedByName
	}
	return derefString(ev.ReviewedBy)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
