package services

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/jhilgenberg/evsync/database"
	"github.com/jhilgenberg/evsync/models"
	"github.com/jhilgenberg/evsync/services/wallbox"
)

type nopDecryptor struct{}

func (nopDecryptor) Decrypt(ciphertext string) (string, error) { return ciphertext, nil }

// fakeWallboxClient serves canned sessions without network access
type fakeWallboxClient struct {
	sessions []wallbox.Session
	err      error
	calls    int
	lastFrom time.Time
}

func (f *fakeWallboxClient) GetStatus() (*wallbox.Status, error) {
	return &wallbox.Status{IsOnline: true}, nil
}

func (f *fakeWallboxClient) GetChargingSessions(from, to time.Time) ([]wallbox.Session, error) {
	f.calls++
	f.lastFrom = from
	if f.err != nil {
		return nil, f.err
	}
	return f.sessions, nil
}

func setupSyncTest(t *testing.T) (*sql.DB, *SyncService, *fakeWallboxClient) {
	t.Helper()

	db, err := database.InitDB(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	if _, err := db.Exec(`
		INSERT INTO users (id, email, password_hash) VALUES (1, 'test@example.com', 'x')
	`); err != nil {
		t.Fatalf("failed to insert user: %v", err)
	}
	if _, err := db.Exec(`
		INSERT INTO wallbox_connections (id, user_id, provider_id, name, configuration)
		VALUES (1, 1, 'go-e', 'Garage', '{"charger_id": "GE1", "api_key": "k"}')
	`); err != nil {
		t.Fatalf("failed to insert connection: %v", err)
	}
	if _, err := db.Exec(`
		INSERT INTO electricity_tariffs (id, user_id, name, base_rate_monthly, energy_rate, valid_from)
		VALUES (1, 1, 'Home', 0, 30, '2024-01-01 00:00:00')
	`); err != nil {
		t.Fatalf("failed to insert tariff: %v", err)
	}

	fake := &fakeWallboxClient{}
	svc := NewSyncService(db, nopDecryptor{})
	svc.newClient = func(conn *models.WallboxConnection, _ wallbox.Decryptor) (wallbox.Client, error) {
		if conn.ProviderID == "broken" {
			return nil, &wallbox.ConfigError{Reason: "unknown wallbox provider \"broken\""}
		}
		return fake, nil
	}

	return db, svc, fake
}

func testSession(id string, start time.Time, energy float64) wallbox.Session {
	return wallbox.Session{
		ID:        id,
		StartTime: start,
		EndTime:   start.Add(2 * time.Hour),
		EnergyKWh: energy,
		Raw:       []byte(fmt.Sprintf(`{"session_identifier": %q}`, id)),
	}
}

func TestSyncUserIdempotent(t *testing.T) {
	db, svc, fake := setupSyncTest(t)

	start := time.Date(2024, 10, 31, 15, 58, 50, 0, time.UTC)
	fake.sessions = []wallbox.Session{
		testSession("s-1", start, 10),
		testSession("s-2", start.Add(24*time.Hour), 5),
	}

	count, err := svc.SyncUser(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 synced sessions, got %d", count)
	}

	// A second run over the unchanged window must not duplicate
	if _, err := svc.SyncUser(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var rows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM charging_sessions`).Scan(&rows); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if rows != 2 {
		t.Errorf("expected 2 stored sessions after re-sync, got %d", rows)
	}

	// Cost attribution: 30 ct/kWh * 10 kWh = 3.00, no base fee
	var cost float64
	var tariffName string
	if err := db.QueryRow(`
		SELECT cost, tariff_name FROM charging_sessions WHERE session_id = 's-1'
	`).Scan(&cost, &tariffName); err != nil {
		t.Fatalf("session lookup failed: %v", err)
	}
	if cost != 3.00 {
		t.Errorf("expected cost 3.00, got %v", cost)
	}
	if tariffName != "Home" {
		t.Errorf("expected tariff name 'Home', got %q", tariffName)
	}

	var lastSync sql.NullTime
	if err := db.QueryRow(`SELECT last_sync FROM wallbox_connections WHERE id = 1`).Scan(&lastSync); err != nil {
		t.Fatalf("last_sync lookup failed: %v", err)
	}
	if !lastSync.Valid {
		t.Error("expected last_sync to be set after a successful pass")
	}
}

func TestSyncUpdatesAmendedSession(t *testing.T) {
	db, svc, fake := setupSyncTest(t)

	start := time.Date(2024, 10, 31, 15, 58, 50, 0, time.UTC)
	fake.sessions = []wallbox.Session{testSession("s-1", start, 10)}

	if _, err := svc.SyncUser(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Vendor retroactively extends the session
	amended := fake.sessions[0]
	amended.EndTime = start.Add(4 * time.Hour)
	amended.EnergyKWh = 20
	fake.sessions = []wallbox.Session{amended}

	if _, err := svc.SyncUser(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var rows int
	var energy float64
	if err := db.QueryRow(`SELECT COUNT(*) FROM charging_sessions`).Scan(&rows); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected the amended session to update in place, got %d rows", rows)
	}
	if err := db.QueryRow(`
		SELECT energy_kwh FROM charging_sessions WHERE session_id = 's-1'
	`).Scan(&energy); err != nil {
		t.Fatalf("session lookup failed: %v", err)
	}
	if energy != 20 {
		t.Errorf("expected amended energy 20, got %v", energy)
	}
}

func TestSyncWindowFromLastSessionEnd(t *testing.T) {
	_, svc, fake := setupSyncTest(t)

	now := time.Date(2024, 11, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	// First pass: no stored sessions, 30-day lookback
	if _, err := svc.SyncUser(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := now.Add(-30 * 24 * time.Hour); !fake.lastFrom.Equal(want) {
		t.Errorf("expected 30-day lookback %v, got %v", want, fake.lastFrom)
	}

	// Second pass: window starts at the stored session end
	end := time.Date(2024, 11, 1, 18, 0, 0, 0, time.UTC)
	fake.sessions = []wallbox.Session{{
		ID:        "s-1",
		StartTime: end.Add(-2 * time.Hour),
		EndTime:   end,
		EnergyKWh: 8,
	}}
	if _, err := svc.SyncUser(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.SyncUser(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fake.lastFrom.Equal(end) {
		t.Errorf("expected window to start at last session end %v, got %v", end, fake.lastFrom)
	}
}

func TestSyncIsolatesFailingConnection(t *testing.T) {
	db, svc, fake := setupSyncTest(t)

	// Second connection whose client can never be constructed
	if _, err := db.Exec(`
		INSERT INTO wallbox_connections (id, user_id, provider_id, name, configuration)
		VALUES (2, 1, 'broken', 'Broken', '{}')
	`); err != nil {
		t.Fatalf("failed to insert connection: %v", err)
	}

	start := time.Date(2024, 10, 31, 15, 58, 50, 0, time.UTC)
	fake.sessions = []wallbox.Session{testSession("s-1", start, 10)}

	count, err := svc.SyncUser(1)
	if err != nil {
		t.Fatalf("a failing connection must not abort the user sync: %v", err)
	}
	if count != 1 {
		t.Errorf("expected the healthy connection to sync 1 session, got %d", count)
	}

	// The broken connection must not gain a last_sync timestamp
	var lastSync sql.NullTime
	if err := db.QueryRow(`SELECT last_sync FROM wallbox_connections WHERE id = 2`).Scan(&lastSync); err != nil {
		t.Fatalf("last_sync lookup failed: %v", err)
	}
	if lastSync.Valid {
		t.Error("expected no last_sync for the failed connection")
	}
}

func TestSyncBatchesLargeResults(t *testing.T) {
	db, svc, fake := setupSyncTest(t)

	start := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 120; i++ {
		fake.sessions = append(fake.sessions,
			testSession(fmt.Sprintf("s-%03d", i), start.Add(time.Duration(i)*time.Hour), 1))
	}

	count, err := svc.SyncUser(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 120 {
		t.Errorf("expected 120 synced sessions, got %d", count)
	}

	var rows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM charging_sessions`).Scan(&rows); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if rows != 120 {
		t.Errorf("expected 120 stored sessions, got %d", rows)
	}
}
