package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/domain"
	"github.com/TalApelfeld/AI-Smart-Crosswalk/internal/repository"
)

const alertExportSheet = "Alerts"

var AlertExportHeader = []string{
	"Alert ID",
	"Timestamp",
	"Danger Level",
	"Type",
	"Severity",
	"Confidence",
	"Crosswalk ID",
	"City",
	"Street",
	"Number",
	"Detected Objects",
	"Photo URL",
}

var alertExportColumnWidths = []float64{38, 22, 14, 26, 12, 12, 38, 16, 22, 10, 18, 40}

// ExportXLSX renders the alerts matching filters, newest first, as a single
// sheet workbook.
func (s *AlertService) ExportXLSX(ctx context.Context, filters repository.AlertFilters) ([]byte, error) {
	alerts, _, err := s.alerts.ListAlerts(ctx, filters, repository.SortNewest, 1, 0)
	if err != nil {
		return nil, err
	}
	crosswalks, err := s.crosswalks.ListCrosswalks(ctx)
	if err != nil {
		return nil, err
	}
	locations := make(map[string]domain.Location, len(crosswalks))
	for _, cw := range crosswalks {
		locations[cw.ID] = cw.Location
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(alertExportSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFF2CC"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetRow(alertExportSheet, "A1", &AlertExportHeader); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(AlertExportHeader))
	if err := f.SetCellStyle(alertExportSheet, "A1", lastCol+"1", headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	for i, w := range alertExportColumnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(alertExportSheet, col, col, w); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, a := range alerts {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		row := alertExportRow(a, locations)
		if err := f.SetSheetRow(alertExportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func alertExportRow(a *domain.Alert, locations map[string]domain.Location) []any {
	var (
		crosswalkID string
		loc         domain.Location
		confidence  any = ""
		photo       string
	)
	if a.CrosswalkID != nil {
		crosswalkID = *a.CrosswalkID
		loc = locations[crosswalkID]
	}
	if a.Confidence != nil {
		confidence = *a.Confidence
	}
	if a.DetectionPhoto != nil {
		photo = a.DetectionPhoto.URL
	}
	return []any{
		a.ID,
		a.Timestamp.UTC().Format(time.RFC3339),
		string(a.DangerLevel),
		a.Type,
		string(a.Severity),
		confidence,
		crosswalkID,
		loc.City,
		loc.Street,
		loc.Number,
		len(a.DetectedObjects),
		photo,
	}
}
