package handlers

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jhilgenberg/evsync/middleware"
	"github.com/jhilgenberg/evsync/models"
	"github.com/jhilgenberg/evsync/services"
)

type ReportHandler struct {
	db          *sql.DB
	generator   *services.ReportGenerator
	emailSender *services.EmailSender
}

func NewReportHandler(db *sql.DB, generator *services.ReportGenerator, emailSender *services.EmailSender) *ReportHandler {
	return &ReportHandler{db: db, generator: generator, emailSender: emailSender}
}

type reportRequest struct {
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	Recipient string `json:"recipient"`
}

// Generate renders the monthly PDF report and streams it back
func (h *ReportHandler) Generate(w http.ResponseWriter, r *http.Request) {
	user, req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	path, err := h.generator.GenerateMonthlyReport(user, req.Year, time.Month(req.Month))
	if err != nil {
		http.Error(w, "Failed to generate report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=charging-report-%d-%02d.pdf", req.Year, req.Month))
	http.ServeFile(w, r, path)
}

// Send generates the monthly report and mails it to the recipient
func (h *ReportHandler) Send(w http.ResponseWriter, r *http.Request) {
	user, req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	recipient := req.Recipient
	if recipient == "" {
		recipient = user.Email
	}

	path, err := h.generator.GenerateMonthlyReport(user, req.Year, time.Month(req.Month))
	if err != nil {
		http.Error(w, "Failed to generate report", http.StatusInternalServerError)
		return
	}

	subject := fmt.Sprintf("Charging report %d-%02d", req.Year, req.Month)
	body := fmt.Sprintf("Attached is your charging report for %s %d.",
		time.Month(req.Month).String(), req.Year)

	if err := h.emailSender.SendReport(recipient, subject, body, path); err != nil {
		http.Error(w, fmt.Sprintf("Failed to send report: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "sent"})
}

func (h *ReportHandler) parseRequest(w http.ResponseWriter, r *http.Request) (*models.User, *reportRequest, bool) {
	userID := middleware.UserID(r)

	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return nil, nil, false
	}

	if req.Month < 1 || req.Month > 12 || req.Year < 2000 {
		http.Error(w, "Invalid report period", http.StatusBadRequest)
		return nil, nil, false
	}

	var user models.User
	err := h.db.QueryRow(`
		SELECT id, email, first_name, last_name, created_at, updated_at
		FROM users WHERE id = ?
	`, userID).Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return nil, nil, false
	}

	return &user, &req, true
}
