package reports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	alertrepo "homesafe-cloud/internal/alerts/infrastructure/postgres"
	telemetry "homesafe-cloud/internal/telemetry/domain"
)

// BuildReadingsXLSX renders persisted readings as a workbook.
func BuildReadingsXLSX(homeID string, readings []telemetry.Reading) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "readings"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Timestamp", "Device", "Stream", "CO2 (ppm)", "CO (ppm)",
		"PM2.5 (ug/m3)", "PM10 (ug/m3)", "Temp (C)", "Humidity (%)", "Stove Temp (C)",
		"Fan", "Buzzer", "Window"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, header)
	}

	for i, reading := range readings {
		row := i + 2
		m := reading.Measurements
		values := []any{
			reading.Timestamp.Format(time.RFC3339),
			reading.DeviceID,
			string(reading.Stream),
			cellFloat(m.CO2),
			cellFloat(m.CO),
			cellFloat(m.PM25),
			cellFloat(m.PM10),
			cellFloat(m.TemperatureC),
			cellFloat(m.HumidityPct),
			cellFloat(m.StoveTempC),
			cellBool(m.FanOn),
			cellBool(m.BuzzerOn),
			cellBool(m.WindowOpen),
		}
		for col, value := range values {
			if value == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildDailySafetyPDF renders a one-page safety summary for a home.
func BuildDailySafetyPDF(homeID string, day time.Time, readings []telemetry.Reading, events []alertrepo.AlertEvent) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Home Safety Daily Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Home: %s", homeID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Day: %s", day.Format("2006-01-02")))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Readings: %d", len(readings)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Alert items: %d", len(events)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(45, 6, "Time", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Device", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Metric", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Level", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Value", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, event := range events {
		pdf.CellFormat(45, 6, event.Timestamp.Format("15:04:05"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, event.DeviceID, "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, string(event.Type), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, string(event.Level), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%.1f", event.Value), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cellFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func cellBool(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}
