package models

import "time"

type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// WallboxConnection associates a user with one physical charger.
// Configuration is a vendor-specific JSON credential bundle, stored
// encrypted and only ever decrypted inside the wallbox client factory.
type WallboxConnection struct {
	ID            int        `json:"id"`
	UserID        int        `json:"user_id"`
	ProviderID    string     `json:"provider_id"`
	Name          string     `json:"name"`
	Configuration string     `json:"configuration,omitempty"`
	LastSync      *time.Time `json:"last_sync"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type ElectricityTariff struct {
	ID              int        `json:"id"`
	UserID          int        `json:"user_id"`
	Name            string     `json:"name"`
	BaseRateMonthly float64    `json:"base_rate_monthly"`
	EnergyRate      float64    `json:"energy_rate"` // cents per kWh
	ValidFrom       time.Time  `json:"valid_from"`
	ValidTo         *time.Time `json:"valid_to"` // nil = open ended
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ChargingSession is one synced charging event with its attributed cost.
// (wallbox_id, session_id) is the natural key: a re-sync updates an
// existing row, it never duplicates it.
type ChargingSession struct {
	ID         int       `json:"id"`
	WallboxID  int       `json:"wallbox_id"`
	UserID     int       `json:"user_id"`
	SessionID  string    `json:"session_id"`
	CarID      *int      `json:"car_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	EnergyKWh  float64   `json:"energy_kwh"`
	Cost       float64   `json:"cost"`
	TariffID   *int      `json:"tariff_id"`
	TariffName *string   `json:"tariff_name"`
	EnergyRate *float64  `json:"energy_rate"`
	RawData    string    `json:"raw_data,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Car struct {
	ID           int       `json:"id"`
	UserID       int       `json:"user_id"`
	Make         string    `json:"make"`
	Model        string    `json:"model"`
	LicensePlate string    `json:"license_plate"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
