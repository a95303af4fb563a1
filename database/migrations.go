package database

import (
	"database/sql"
	"fmt"
	"log"
)

func RunMigrations(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			first_name TEXT,
			last_name TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS wallbox_connections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			provider_id TEXT NOT NULL,
			name TEXT NOT NULL,
			configuration TEXT NOT NULL,
			last_sync DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,

		`CREATE TABLE IF NOT EXISTS electricity_tariffs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			base_rate_monthly REAL NOT NULL DEFAULT 0,
			energy_rate REAL NOT NULL DEFAULT 0,
			valid_from DATETIME NOT NULL,
			valid_to DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,

		`CREATE TABLE IF NOT EXISTS cars (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			make TEXT NOT NULL,
			model TEXT NOT NULL,
			license_plate TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,

		`CREATE TABLE IF NOT EXISTS charging_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			wallbox_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			session_id TEXT NOT NULL,
			car_id INTEGER,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			energy_kwh REAL NOT NULL DEFAULT 0,
			cost REAL NOT NULL DEFAULT 0,
			tariff_id INTEGER,
			tariff_name TEXT,
			energy_rate REAL,
			raw_data TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(wallbox_id, session_id),
			FOREIGN KEY (wallbox_id) REFERENCES wallbox_connections(id),
			FOREIGN KEY (user_id) REFERENCES users(id),
			FOREIGN KEY (car_id) REFERENCES cars(id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sessions_wallbox_end
			ON charging_sessions(wallbox_id, end_time)`,

		`CREATE INDEX IF NOT EXISTS idx_sessions_user_start
			ON charging_sessions(user_id, start_time)`,

		`CREATE INDEX IF NOT EXISTS idx_tariffs_user_valid
			ON electricity_tariffs(user_id, valid_from)`,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %v", i+1, err)
		}
	}

	log.Println("Database migrations completed")
	return nil
}
