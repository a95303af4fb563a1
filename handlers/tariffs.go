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
)

type TariffHandler struct {
	db *sql.DB
}

func NewTariffHandler(db *sql.DB) *TariffHandler {
	return &TariffHandler{db: db}
}

type tariffRequest struct {
	Name            string     `json:"name"`
	BaseRateMonthly float64    `json:"base_rate_monthly"`
	EnergyRate      float64    `json:"energy_rate"`
	ValidFrom       time.Time  `json:"valid_from"`
	ValidTo         *time.Time `json:"valid_to"`
}

func (h *TariffHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	rows, err := h.db.Query(`
		SELECT id, user_id, name, base_rate_monthly, energy_rate,
		       valid_from, valid_to, created_at, updated_at
		FROM electricity_tariffs WHERE user_id = ?
		ORDER BY valid_from DESC
	`, userID)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	tariffs := []models.ElectricityTariff{}
	for rows.Next() {
		var t models.ElectricityTariff
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.BaseRateMonthly,
			&t.EnergyRate, &t.ValidFrom, &t.ValidTo, &t.CreatedAt, &t.UpdatedAt); err != nil {
			continue
		}
		tariffs = append(tariffs, t)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tariffs)
}

func (h *TariffHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	var req tariffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.Name == "" || req.ValidFrom.IsZero() {
		http.Error(w, "name and valid_from are required", http.StatusBadRequest)
		return
	}
	if req.ValidTo != nil && req.ValidTo.Before(req.ValidFrom) {
		http.Error(w, "valid_to must not be before valid_from", http.StatusBadRequest)
		return
	}

	result, err := h.db.Exec(`
		INSERT INTO electricity_tariffs (user_id, name, base_rate_monthly, energy_rate, valid_from, valid_to)
		VALUES (?, ?, ?, ?, ?, ?)
	`, userID, req.Name, req.BaseRateMonthly, req.EnergyRate, req.ValidFrom.UTC(), req.ValidTo)
	if err != nil {
		http.Error(w, "Failed to create tariff", http.StatusInternalServerError)
		return
	}

	id, _ := result.LastInsertId()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{"id": id})
}

func (h *TariffHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var req tariffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.ValidTo != nil && req.ValidTo.Before(req.ValidFrom) {
		http.Error(w, "valid_to must not be before valid_from", http.StatusBadRequest)
		return
	}

	result, err := h.db.Exec(`
		UPDATE electricity_tariffs
		SET name = ?, base_rate_monthly = ?, energy_rate = ?, valid_from = ?, valid_to = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?
	`, req.Name, req.BaseRateMonthly, req.EnergyRate, req.ValidFrom.UTC(), req.ValidTo, id, userID)
	if err != nil {
		http.Error(w, "Failed to update tariff", http.StatusInternalServerError)
		return
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		http.Error(w, "Tariff not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "updated"})
}

func (h *TariffHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	result, err := h.db.Exec(`
		DELETE FROM electricity_tariffs WHERE id = ? AND user_id = ?
	`, id, userID)
	if err != nil {
		http.Error(w, "Failed to delete tariff", http.StatusInternalServerError)
		return
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		http.Error(w, "Tariff not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
}
