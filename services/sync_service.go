package services

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/jhilgenberg/evsync/models"
	"github.com/jhilgenberg/evsync/services/wallbox"
)

// upsertBatchSize caps the number of sessions written per statement
// batch so one oversized vendor page cannot create an unbounded write.
const upsertBatchSize = 50

// syncLookback is the window used for a connection that has no stored
// sessions yet.
const syncLookback = 30 * 24 * time.Hour

// SyncService pulls new charging sessions from the vendor clouds,
// attributes costs via the tariff calculator and upserts them into the
// session store. Connections are processed sequentially; one failing
// connection never aborts the others.
type SyncService struct {
	db        *sql.DB
	decryptor wallbox.Decryptor

	// replaceable for tests
	newClient func(*models.WallboxConnection, wallbox.Decryptor) (wallbox.Client, error)
	now       func() time.Time
}

func NewSyncService(db *sql.DB, decryptor wallbox.Decryptor) *SyncService {
	return &SyncService{
		db:        db,
		decryptor: decryptor,
		newClient: wallbox.NewClient,
		now:       time.Now,
	}
}

// SyncAll syncs every wallbox connection of every user. Used by the
// scheduler and the cron endpoint.
func (s *SyncService) SyncAll() {
	rows, err := s.db.Query(`SELECT DISTINCT user_id FROM wallbox_connections`)
	if err != nil {
		log.Printf("Sync: failed to list users: %v", err)
		return
	}
	defer rows.Close()

	var userIDs []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			continue
		}
		userIDs = append(userIDs, id)
	}

	for _, userID := range userIDs {
		if _, err := s.SyncUser(userID); err != nil {
			log.Printf("Sync: user %d failed: %v", userID, err)
		}
	}
}

// SyncUser syncs all wallbox connections of one user and returns the
// number of sessions written.
func (s *SyncService) SyncUser(userID int) (int, error) {
	connections, err := s.listConnections(userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list connections: %v", err)
	}

	tariffs, err := s.listTariffs(userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list tariffs: %v", err)
	}
	calculator := NewCostCalculator(tariffs)

	total := 0
	for i := range connections {
		conn := &connections[i]
		count, err := s.syncConnection(conn, calculator)
		if err != nil {
			// Isolated per connection: log with enough context and
			// move on, the next scheduled run is the retry mechanism.
			log.Printf("Sync: wallbox %d (%s) failed: %v", conn.ID, conn.ProviderID, err)
			continue
		}
		total += count
	}

	return total, nil
}

// SyncConnection syncs a single connection using its owner's tariffs.
// Backs the per-wallbox sync endpoint.
func (s *SyncService) SyncConnection(conn *models.WallboxConnection) (int, error) {
	tariffs, err := s.listTariffs(conn.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to list tariffs: %v", err)
	}
	return s.syncConnection(conn, NewCostCalculator(tariffs))
}

func (s *SyncService) syncConnection(conn *models.WallboxConnection, calculator *CostCalculator) (int, error) {
	client, err := s.newClient(conn, s.decryptor)
	if err != nil {
		return 0, err
	}

	to := s.now()
	from := to.Add(-syncLookback)
	if last, ok := s.lastSessionEnd(conn.ID); ok {
		from = last
	}

	sessions, err := client.GetChargingSessions(from, to)
	if err != nil {
		return 0, err
	}

	if len(sessions) > 0 {
		if err := s.upsertSessions(conn, sessions, calculator); err != nil {
			return 0, err
		}
	}

	if _, err := s.db.Exec(`
		UPDATE wallbox_connections SET last_sync = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, s.now().UTC(), conn.ID); err != nil {
		return len(sessions), fmt.Errorf("failed to update last_sync: %v", err)
	}

	log.Printf("Sync: wallbox %d (%s): %d sessions", conn.ID, conn.ProviderID, len(sessions))
	return len(sessions), nil
}

// upsertSessions writes sessions in batches, updating on the
// (wallbox_id, session_id) natural key so re-syncs never duplicate.
func (s *SyncService) upsertSessions(conn *models.WallboxConnection, sessions []wallbox.Session, calculator *CostCalculator) error {
	for offset := 0; offset < len(sessions); offset += upsertBatchSize {
		end := offset + upsertBatchSize
		if end > len(sessions) {
			end = len(sessions)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %v", err)
		}

		for _, session := range sessions[offset:end] {
			energy := session.EnergyKWh
			if energy < 0 {
				energy = 0
			}

			cost, tariff := calculator.CalculateSessionCost(session.StartTime, session.EndTime, energy)

			var tariffID *int
			var tariffName *string
			var energyRate *float64
			if tariff != nil {
				tariffID = &tariff.ID
				tariffName = &tariff.Name
				energyRate = &tariff.EnergyRate
			}

			_, err := tx.Exec(`
				INSERT INTO charging_sessions (
					wallbox_id, user_id, session_id, start_time, end_time,
					energy_kwh, cost, tariff_id, tariff_name, energy_rate, raw_data
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(wallbox_id, session_id) DO UPDATE SET
					start_time = excluded.start_time,
					end_time = excluded.end_time,
					energy_kwh = excluded.energy_kwh,
					cost = excluded.cost,
					tariff_id = excluded.tariff_id,
					tariff_name = excluded.tariff_name,
					energy_rate = excluded.energy_rate,
					raw_data = excluded.raw_data,
					updated_at = CURRENT_TIMESTAMP
			`, conn.ID, conn.UserID, session.ID,
				session.StartTime.UTC(), session.EndTime.UTC(),
				energy, cost, tariffID, tariffName, energyRate, string(session.Raw))

			if err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to upsert session %s: %v", session.ID, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit session batch: %v", err)
		}
	}

	return nil
}

func (s *SyncService) lastSessionEnd(wallboxID int) (time.Time, bool) {
	var end time.Time
	err := s.db.QueryRow(`
		SELECT end_time FROM charging_sessions
		WHERE wallbox_id = ? ORDER BY end_time DESC LIMIT 1
	`, wallboxID).Scan(&end)

	if err != nil {
		if err != sql.ErrNoRows {
			log.Printf("Sync: failed to read last session end for wallbox %d: %v", wallboxID, err)
		}
		return time.Time{}, false
	}
	return end, true
}

func (s *SyncService) listConnections(userID int) ([]models.WallboxConnection, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, provider_id, name, configuration, last_sync, created_at, updated_at
		FROM wallbox_connections WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	connections := []models.WallboxConnection{}
	for rows.Next() {
		var c models.WallboxConnection
		if err := rows.Scan(&c.ID, &c.UserID, &c.ProviderID, &c.Name,
			&c.Configuration, &c.LastSync, &c.CreatedAt, &c.UpdatedAt); err != nil {
			continue
		}
		connections = append(connections, c)
	}
	return connections, nil
}

func (s *SyncService) listTariffs(userID int) ([]models.ElectricityTariff, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, name, base_rate_monthly, energy_rate,
		       valid_from, valid_to, created_at, updated_at
		FROM electricity_tariffs WHERE user_id = ?
		ORDER BY valid_from DESC
	`, userID)
	if err != nil {
		return nil, err
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
	return tariffs, nil
}
