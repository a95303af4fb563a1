package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/jhilgenberg/evsync/crypto"
	"github.com/jhilgenberg/evsync/middleware"
	"github.com/jhilgenberg/evsync/models"
	"github.com/jhilgenberg/evsync/services"
	"github.com/jhilgenberg/evsync/services/wallbox"
)

type WallboxHandler struct {
	db          *sql.DB
	cipher      *crypto.Cipher
	syncService *services.SyncService
}

func NewWallboxHandler(db *sql.DB, cipher *crypto.Cipher, syncService *services.SyncService) *WallboxHandler {
	return &WallboxHandler{db: db, cipher: cipher, syncService: syncService}
}

type wallboxRequest struct {
	ProviderID    string          `json:"provider_id"`
	Name          string          `json:"name"`
	Configuration json.RawMessage `json:"configuration"`
}

func (h *WallboxHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	rows, err := h.db.Query(`
		SELECT id, user_id, provider_id, name, last_sync, created_at, updated_at
		FROM wallbox_connections WHERE user_id = ?
	`, userID)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	connections := []models.WallboxConnection{}
	for rows.Next() {
		var c models.WallboxConnection
		if err := rows.Scan(&c.ID, &c.UserID, &c.ProviderID, &c.Name,
			&c.LastSync, &c.CreatedAt, &c.UpdatedAt); err != nil {
			continue
		}
		connections = append(connections, c)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(connections)
}

func (h *WallboxHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	var req wallboxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.ProviderID == "" || req.Name == "" || len(req.Configuration) == 0 {
		http.Error(w, "provider_id, name and configuration are required", http.StatusBadRequest)
		return
	}

	encrypted, err := h.cipher.Encrypt(string(req.Configuration))
	if err != nil {
		http.Error(w, "Failed to encrypt configuration", http.StatusInternalServerError)
		return
	}

	// Reject configurations the factory could never use
	probe := &models.WallboxConnection{
		UserID:        userID,
		ProviderID:    req.ProviderID,
		Configuration: string(req.Configuration),
	}
	if _, err := wallbox.NewClient(probe, h.cipher); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.db.Exec(`
		INSERT INTO wallbox_connections (user_id, provider_id, name, configuration)
		VALUES (?, ?, ?, ?)
	`, userID, req.ProviderID, req.Name, encrypted)
	if err != nil {
		http.Error(w, "Failed to create wallbox", http.StatusInternalServerError)
		return
	}

	id, _ := result.LastInsertId()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{"id": id})
}

func (h *WallboxHandler) Get(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	// Never expose the stored credential blob
	conn.Configuration = ""

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conn)
}

func (h *WallboxHandler) Update(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	var req wallboxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.Name != "" {
		conn.Name = req.Name
	}

	configuration := conn.Configuration
	if len(req.Configuration) > 0 {
		encrypted, err := h.cipher.Encrypt(string(req.Configuration))
		if err != nil {
			http.Error(w, "Failed to encrypt configuration", http.StatusInternalServerError)
			return
		}

		probe := &models.WallboxConnection{
			UserID:        conn.UserID,
			ProviderID:    conn.ProviderID,
			Configuration: string(req.Configuration),
		}
		if _, err := wallbox.NewClient(probe, h.cipher); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		configuration = encrypted
	}

	_, err := h.db.Exec(`
		UPDATE wallbox_connections
		SET name = ?, configuration = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, conn.Name, configuration, conn.ID)
	if err != nil {
		http.Error(w, "Failed to update wallbox", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "updated"})
}

func (h *WallboxHandler) Delete(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	if _, err := h.db.Exec(`DELETE FROM charging_sessions WHERE wallbox_id = ?`, conn.ID); err != nil {
		http.Error(w, "Failed to delete sessions", http.StatusInternalServerError)
		return
	}
	if _, err := h.db.Exec(`DELETE FROM wallbox_connections WHERE id = ?`, conn.ID); err != nil {
		http.Error(w, "Failed to delete wallbox", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
}

// Status proxies a live status request to the vendor cloud
func (h *WallboxHandler) Status(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	client, err := wallbox.NewClient(conn, h.cipher)
	if err != nil {
		var configErr *wallbox.ConfigError
		if errors.As(err, &configErr) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to create client", http.StatusInternalServerError)
		return
	}

	status, err := client.GetStatus()
	if err != nil {
		log.Printf("Wallbox %d status failed: %v", conn.ID, err)
		http.Error(w, "Status unavailable", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// Sync runs a sync pass for a single wallbox
func (h *WallboxHandler) Sync(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	count, err := h.syncService.SyncConnection(conn)
	if err != nil {
		log.Printf("Wallbox %d sync failed: %v", conn.ID, err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":  true,
		"sessions": count,
	})
}

// loadOwned fetches the connection from the URL id and verifies it
// belongs to the authenticated user
func (h *WallboxHandler) loadOwned(w http.ResponseWriter, r *http.Request) (*models.WallboxConnection, bool) {
	userID := middleware.UserID(r)

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return nil, false
	}

	var c models.WallboxConnection
	err = h.db.QueryRow(`
		SELECT id, user_id, provider_id, name, configuration, last_sync, created_at, updated_at
		FROM wallbox_connections WHERE id = ? AND user_id = ?
	`, id, userID).Scan(&c.ID, &c.UserID, &c.ProviderID, &c.Name,
		&c.Configuration, &c.LastSync, &c.CreatedAt, &c.UpdatedAt)

	if err == sql.ErrNoRows {
		http.Error(w, "Wallbox not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return nil, false
	}

	return &c, true
}
