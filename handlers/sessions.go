package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/jhilgenberg/evsync/middleware"
	"github.com/jhilgenberg/evsync/models"
	"github.com/jhilgenberg/evsync/services"
)

type SessionHandler struct {
	db          *sql.DB
	syncService *services.SyncService
}

func NewSessionHandler(db *sql.DB, syncService *services.SyncService) *SessionHandler {
	return &SessionHandler{db: db, syncService: syncService}
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	query := `
		SELECT id, wallbox_id, user_id, session_id, car_id, start_time, end_time,
		       energy_kwh, cost, tariff_id, tariff_name, energy_rate,
		       created_at, updated_at
		FROM charging_sessions WHERE user_id = ?
	`
	args := []interface{}{userID}

	if wallboxID := r.URL.Query().Get("wallbox_id"); wallboxID != "" {
		query += " AND wallbox_id = ?"
		args = append(args, wallboxID)
	}
	if from := r.URL.Query().Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			query += " AND start_time >= ?"
			args = append(args, t.UTC())
		}
	}
	if to := r.URL.Query().Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			query += " AND start_time < ?"
			args = append(args, t.UTC())
		}
	}

	query += " ORDER BY start_time DESC"

	rows, err := h.db.Query(query, args...)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	sessions := []models.ChargingSession{}
	for rows.Next() {
		var s models.ChargingSession
		if err := rows.Scan(&s.ID, &s.WallboxID, &s.UserID, &s.SessionID, &s.CarID,
			&s.StartTime, &s.EndTime, &s.EnergyKWh, &s.Cost,
			&s.TariffID, &s.TariffName, &s.EnergyRate,
			&s.CreatedAt, &s.UpdatedAt); err != nil {
			continue
		}
		sessions = append(sessions, s)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessions)
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	result, err := h.db.Exec(`
		DELETE FROM charging_sessions WHERE id = ? AND user_id = ?
	`, id, userID)
	if err != nil {
		http.Error(w, "Failed to delete session", http.StatusInternalServerError)
		return
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
}

type assignCarRequest struct {
	SessionID  int   `json:"session_id"`
	SessionIDs []int `json:"session_ids"`
	CarID      *int  `json:"car_id"`
}

// AssignCar associates one session with a car (or clears the
// association when car_id is null)
func (h *SessionHandler) AssignCar(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	var req assignCarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.CarID != nil && !h.ownsCar(userID, *req.CarID) {
		http.Error(w, "Car not found", http.StatusNotFound)
		return
	}

	result, err := h.db.Exec(`
		UPDATE charging_sessions SET car_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?
	`, req.CarID, req.SessionID, userID)
	if err != nil {
		http.Error(w, "Failed to assign car", http.StatusInternalServerError)
		return
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "assigned"})
}

// BulkAssignCar associates many sessions with a car in one call
func (h *SessionHandler) BulkAssignCar(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	var req assignCarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if len(req.SessionIDs) == 0 {
		http.Error(w, "session_ids is required", http.StatusBadRequest)
		return
	}
	if req.CarID != nil && !h.ownsCar(userID, *req.CarID) {
		http.Error(w, "Car not found", http.StatusNotFound)
		return
	}

	updated := 0
	for _, sessionID := range req.SessionIDs {
		result, err := h.db.Exec(`
			UPDATE charging_sessions SET car_id = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND user_id = ?
		`, req.CarID, sessionID, userID)
		if err != nil {
			continue
		}
		if affected, _ := result.RowsAffected(); affected > 0 {
			updated++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"updated": updated})
}

// Sync runs a sync pass over all wallboxes of the current user
func (h *SessionHandler) Sync(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	count, err := h.syncService.SyncUser(userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":  true,
		"sessions": count,
	})
}

func (h *SessionHandler) ownsCar(userID, carID int) bool {
	var id int
	err := h.db.QueryRow(`SELECT id FROM cars WHERE id = ? AND user_id = ?`, carID, userID).Scan(&id)
	return err == nil
}
