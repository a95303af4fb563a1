package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/jhilgenberg/evsync/middleware"
	"github.com/jhilgenberg/evsync/models"
)

type CarHandler struct {
	db *sql.DB
}

func NewCarHandler(db *sql.DB) *CarHandler {
	return &CarHandler{db: db}
}

func (h *CarHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	rows, err := h.db.Query(`
		SELECT id, user_id, make, model, license_plate, created_at, updated_at
		FROM cars WHERE user_id = ?
	`, userID)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	cars := []models.Car{}
	for rows.Next() {
		var c models.Car
		if err := rows.Scan(&c.ID, &c.UserID, &c.Make, &c.Model,
			&c.LicensePlate, &c.CreatedAt, &c.UpdatedAt); err != nil {
			continue
		}
		cars = append(cars, c)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cars)
}

func (h *CarHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	var c models.Car
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if c.Make == "" || c.Model == "" {
		http.Error(w, "make and model are required", http.StatusBadRequest)
		return
	}

	result, err := h.db.Exec(`
		INSERT INTO cars (user_id, make, model, license_plate)
		VALUES (?, ?, ?, ?)
	`, userID, c.Make, c.Model, c.LicensePlate)
	if err != nil {
		http.Error(w, "Failed to create car", http.StatusInternalServerError)
		return
	}

	id, _ := result.LastInsertId()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{"id": id})
}

func (h *CarHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var c models.Car
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	result, err := h.db.Exec(`
		UPDATE cars SET make = ?, model = ?, license_plate = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?
	`, c.Make, c.Model, c.LicensePlate, id, userID)
	if err != nil {
		http.Error(w, "Failed to update car", http.StatusInternalServerError)
		return
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		http.Error(w, "Car not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "updated"})
}

func (h *CarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	// Detach sessions first, the history stays
	if _, err := h.db.Exec(`
		UPDATE charging_sessions SET car_id = NULL WHERE car_id = ? AND user_id = ?
	`, id, userID); err != nil {
		http.Error(w, "Failed to detach sessions", http.StatusInternalServerError)
		return
	}

	result, err := h.db.Exec(`DELETE FROM cars WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		http.Error(w, "Failed to delete car", http.StatusInternalServerError)
		return
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		http.Error(w, "Car not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
}
