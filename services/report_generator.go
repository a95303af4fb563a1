package services

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jhilgenberg/evsync/models"
	"github.com/jung-kurt/gofpdf"
	qrcode "github.com/skip2/go-qrcode"
)

// ReportGenerator renders monthly charging reports as PDF files.
type ReportGenerator struct {
	db         *sql.DB
	reportsDir string
}

func NewReportGenerator(db *sql.DB, reportsDir string) *ReportGenerator {
	return &ReportGenerator{db: db, reportsDir: reportsDir}
}

// ReportSummary aggregates one report period
type ReportSummary struct {
	Sessions    []models.ChargingSession
	TotalEnergy float64
	TotalCost   float64
}

// GenerateMonthlyReport builds a PDF with all charging sessions of the
// given month and returns the file path.
func (rg *ReportGenerator) GenerateMonthlyReport(user *models.User, year int, month time.Month) (string, error) {
	periodStart := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)

	summary, err := rg.loadSummary(user.ID, periodStart, periodEnd)
	if err != nil {
		return "", fmt.Errorf("failed to load sessions: %v", err)
	}

	if err := os.MkdirAll(rg.reportsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %v", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	// Header
	pdf.SetFont("Arial", "B", 24)
	pdf.SetTextColor(0, 123, 255)
	pdf.Cell(0, 10, "Charging Report")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(100, 100, 100)
	pdf.Cell(0, 6, fmt.Sprintf("%s %d - %s %s", month.String(), year, user.FirstName, user.LastName))
	pdf.Ln(12)

	// Summary box
	pdf.SetFont("Arial", "B", 11)
	pdf.SetTextColor(0, 0, 0)
	pdf.Cell(0, 6, fmt.Sprintf("Sessions: %d    Energy: %.2f kWh    Cost: %.2f",
		len(summary.Sessions), summary.TotalEnergy, summary.TotalCost))
	pdf.Ln(12)

	// Table header
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(35, 7, "Start", "1", 0, "L", true, 0, "")
	pdf.CellFormat(35, 7, "End", "1", 0, "L", true, 0, "")
	pdf.CellFormat(30, 7, "Energy (kWh)", "1", 0, "R", true, 0, "")
	pdf.CellFormat(30, 7, "Cost", "1", 0, "R", true, 0, "")
	pdf.CellFormat(50, 7, "Tariff", "1", 0, "L", true, 0, "")
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, session := range summary.Sessions {
		tariffName := "-"
		if session.TariffName != nil {
			tariffName = *session.TariffName
		}

		pdf.CellFormat(35, 6, session.StartTime.Format("02.01.2006 15:04"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, session.EndTime.Format("02.01.2006 15:04"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.2f", session.EnergyKWh), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.2f", session.Cost), "1", 0, "R", false, 0, "")
		pdf.CellFormat(50, 6, tariffName, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	// QR code linking back to the dashboard period view
	qrData := fmt.Sprintf("evsync://reports/%d/%d-%02d", user.ID, year, int(month))
	tempQR := filepath.Join(rg.reportsDir, fmt.Sprintf(".qr_%d.png", user.ID))
	if err := qrcode.WriteFile(qrData, qrcode.Medium, 280, tempQR); err == nil {
		pdf.Ln(8)
		pdf.ImageOptions(tempQR, 15, pdf.GetY(), 25, 25, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
		os.Remove(tempQR)
	}

	filename := fmt.Sprintf("charging-report-%d-%d-%02d.pdf", user.ID, year, int(month))
	outputPath := filepath.Join(rg.reportsDir, filename)

	if err := pdf.OutputFileAndClose(outputPath); err != nil {
		return "", fmt.Errorf("failed to write PDF: %v", err)
	}

	return outputPath, nil
}

func (rg *ReportGenerator) loadSummary(userID int, from, to time.Time) (*ReportSummary, error) {
	rows, err := rg.db.Query(`
		SELECT id, wallbox_id, user_id, session_id, car_id, start_time, end_time,
		       energy_kwh, cost, tariff_id, tariff_name, energy_rate,
		       created_at, updated_at
		FROM charging_sessions
		WHERE user_id = ? AND start_time >= ? AND start_time < ?
		ORDER BY start_time
	`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := &ReportSummary{}
	for rows.Next() {
		var s models.ChargingSession
		if err := rows.Scan(&s.ID, &s.WallboxID, &s.UserID, &s.SessionID, &s.CarID,
			&s.StartTime, &s.EndTime, &s.EnergyKWh, &s.Cost,
			&s.TariffID, &s.TariffName, &s.EnergyRate,
			&s.CreatedAt, &s.UpdatedAt); err != nil {
			continue
		}
		summary.Sessions = append(summary.Sessions, s)
		summary.TotalEnergy += s.EnergyKWh
		summary.TotalCost += s.Cost
	}

	return summary, nil
}
