package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/jhilgenberg/evsync/middleware"
)

type DashboardHandler struct {
	db *sql.DB
}

func NewDashboardHandler(db *sql.DB) *DashboardHandler {
	return &DashboardHandler{db: db}
}

type dashboardStats struct {
	TotalSessions  int                  `json:"total_sessions"`
	TotalEnergyKWh float64              `json:"total_energy_kwh"`
	TotalCost      float64              `json:"total_cost"`
	MonthSessions  int                  `json:"month_sessions"`
	MonthEnergyKWh float64              `json:"month_energy_kwh"`
	MonthCost      float64              `json:"month_cost"`
	WallboxCount   int                  `json:"wallbox_count"`
	MonthlySeries  []monthlyConsumption `json:"monthly_series"`
}

type monthlyConsumption struct {
	Month     string  `json:"month"`
	EnergyKWh float64 `json:"energy_kwh"`
	Cost      float64 `json:"cost"`
	Sessions  int     `json:"sessions"`
}

func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	var stats dashboardStats

	err := h.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(energy_kwh), 0), COALESCE(SUM(cost), 0)
		FROM charging_sessions WHERE user_id = ?
	`, userID).Scan(&stats.TotalSessions, &stats.TotalEnergyKWh, &stats.TotalCost)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	err = h.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(energy_kwh), 0), COALESCE(SUM(cost), 0)
		FROM charging_sessions
		WHERE user_id = ? AND strftime('%Y-%m', start_time) = strftime('%Y-%m', 'now')
	`, userID).Scan(&stats.MonthSessions, &stats.MonthEnergyKWh, &stats.MonthCost)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	if err := h.db.QueryRow(`
		SELECT COUNT(*) FROM wallbox_connections WHERE user_id = ?
	`, userID).Scan(&stats.WallboxCount); err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	rows, err := h.db.Query(`
		SELECT strftime('%Y-%m', start_time) AS month,
		       COALESCE(SUM(energy_kwh), 0), COALESCE(SUM(cost), 0), COUNT(*)
		FROM charging_sessions
		WHERE user_id = ? AND start_time >= datetime('now', '-12 months')
		GROUP BY month ORDER BY month
	`, userID)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	stats.MonthlySeries = []monthlyConsumption{}
	for rows.Next() {
		var m monthlyConsumption
		if err := rows.Scan(&m.Month, &m.EnergyKWh, &m.Cost, &m.Sessions); err != nil {
			continue
		}
		stats.MonthlySeries = append(stats.MonthlySeries, m)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
