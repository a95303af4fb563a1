package wallbox

import (
	"encoding/json"
	"time"
)

// CarState is the canonical charge state across all vendors
type CarState string

const (
	CarStateUnknown  CarState = "UNKNOWN"
	CarStateReady    CarState = "READY"
	CarStateCharging CarState = "CHARGING"
	CarStateWaiting  CarState = "WAITING"
	CarStateFinished CarState = "FINISHED"
)

// PhaseInfo holds per-phase electrical readings
type PhaseInfo struct {
	Voltage     float64 `json:"voltage"`      // V
	Current     float64 `json:"current"`      // A
	Power       float64 `json:"power"`        // kW
	PowerFactor float64 `json:"power_factor"` // %
}

// PowerDetails breaks total power down per phase. Neutral is only
// reported by vendors that measure the neutral conductor.
type PowerDetails struct {
	TotalPower float64    `json:"total_power"` // kW
	L1         PhaseInfo  `json:"l1"`
	L2         PhaseInfo  `json:"l2"`
	L3         PhaseInfo  `json:"l3"`
	Neutral    *PhaseInfo `json:"n,omitempty"`
}

// Status is the canonical live state of a wallbox
type Status struct {
	IsOnline      bool         `json:"is_online"`
	CarState      CarState     `json:"car_state"`
	CurrentPower  float64      `json:"current_power"` // kW
	TotalEnergy   float64      `json:"total_energy"`  // lifetime kWh
	Temperature   float64      `json:"temperature"`   // °C
	Firmware      string       `json:"firmware"`
	WiFiConnected bool         `json:"wifi_connected"`
	Power         PowerDetails `json:"power"`
}

// Session is one charging event in canonical form: timestamps as
// timezone-aware instants, energy in kWh, duration in minutes. Raw keeps
// the untouched vendor payload for auditing.
type Session struct {
	ID              string          `json:"id"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	EnergyKWh       float64         `json:"energy_kwh"`
	MaxPower        float64         `json:"max_power"`
	DurationMinutes float64         `json:"duration_minutes"`
	Raw             json.RawMessage `json:"raw,omitempty"`
}

// Client is the capability contract every vendor adapter implements.
// Instances are ephemeral: one per sync call or status check, holding
// only a cached vendor token for their own lifetime.
type Client interface {
	GetStatus() (*Status, error)
	// GetChargingSessions returns sessions in the given window. Zero
	// bounds fall back to a trailing 30-day window.
	GetChargingSessions(from, to time.Time) ([]Session, error)
}
