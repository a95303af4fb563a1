package wallbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const easeeBaseURL = "https://api.easee.cloud/api"

// EaseeConfig holds the Easee Cloud account credentials
type EaseeConfig struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	ChargerID string `json:"charger_id"`
}

// EaseeClient talks to the centralized Easee cloud. The bearer token
// obtained from username/password is cached with its expiry (minus a
// 60-second safety margin) so calls within validity never re-authenticate.
type EaseeClient struct {
	client      *http.Client
	baseURL     string
	config      EaseeConfig
	token       string
	tokenExpiry time.Time
}

func NewEaseeClient(config EaseeConfig) *EaseeClient {
	return &EaseeClient{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: easeeBaseURL,
		config:  config,
	}
}

type easeeToken struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
	TokenType   string `json:"tokenType"`
}

// easeeState is the /chargers/{id}/state payload, reduced to the fields
// we consume. Easee reports power in W and lifetime energy in Wh.
type easeeState struct {
	IsOnline                bool    `json:"isOnline"`
	ChargerOpMode           int     `json:"chargerOpMode"`
	TotalPower              float64 `json:"totalPower"`
	SessionEnergy           float64 `json:"sessionEnergy"`
	LifetimeEnergy          float64 `json:"lifetimeEnergy"`
	ChargerFirmware         string  `json:"chargerFirmware"`
	WiFiRSSI                float64 `json:"wiFiRSSI"`
	DynamicCircuitCurrentP1 float64 `json:"dynamicCircuitCurrentP1"`
	DynamicCircuitCurrentP2 float64 `json:"dynamicCircuitCurrentP2"`
	DynamicCircuitCurrentP3 float64 `json:"dynamicCircuitCurrentP3"`
	InVoltageT1T2           float64 `json:"inVoltageT1T2"`
	InVoltageT2T3           float64 `json:"inVoltageT2T3"`
	InVoltageT3T4           float64 `json:"inVoltageT3T4"`
}

type easeeSession struct {
	SessionID     json.Number `json:"sessionId"`
	StartTime     string      `json:"startTime"`
	EndTime       string      `json:"endTime"`
	TotalEnergy   float64     `json:"totalEnergy"`
	MaxPower      float64     `json:"maxPower"`
	TotalDuration float64     `json:"totalDuration"`
}

// authenticate obtains a bearer token, reusing the cached one while it
// is still valid
func (e *EaseeClient) authenticate() error {
	if e.token != "" && time.Now().Before(e.tokenExpiry) {
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"userName": e.config.Username,
		"password": e.config.Password,
	})
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %v", err)
	}

	resp, err := e.client.Post(e.baseURL+"/accounts/token", "application/json", bytes.NewReader(payload))
	if err != nil {
		return &AuthError{Provider: "easee", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &AuthError{Provider: "easee",
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(body))}
	}

	var token easeeToken
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return &AuthError{Provider: "easee", Err: fmt.Errorf("failed to decode token response: %v", err)}
	}

	e.token = token.AccessToken
	// 60 second safety margin before the advertised expiry
	e.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - time.Minute)

	return nil
}

func (e *EaseeClient) request(endpoint string, out interface{}) error {
	if err := e.authenticate(); err != nil {
		return err
	}

	req, err := http.NewRequest("GET", e.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}

	req.Header.Set("Authorization", "Bearer "+e.token)
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return &AuthError{Provider: "easee", Err: fmt.Errorf("token rejected")}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (e *EaseeClient) GetStatus() (*Status, error) {
	var state easeeState
	if err := e.request(fmt.Sprintf("/chargers/%s/state", e.config.ChargerID), &state); err != nil {
		return nil, err
	}

	// Easee reports no per-phase power factor; synthesize phases from
	// the circuit current allocation and inter-terminal voltages with a
	// fixed power factor of 1 instead of fabricating one.
	phase := func(current, voltage float64) PhaseInfo {
		return PhaseInfo{
			Voltage:     voltage,
			Current:     current,
			Power:       voltage * current / 1000,
			PowerFactor: 1,
		}
	}

	return &Status{
		IsOnline:      state.IsOnline,
		CarState:      mapEaseeOpMode(state.ChargerOpMode),
		CurrentPower:  state.TotalPower / 1000,
		TotalEnergy:   state.LifetimeEnergy / 1000,
		Temperature:   0, // not reported by Easee
		Firmware:      state.ChargerFirmware,
		WiFiConnected: state.WiFiRSSI > -100,
		Power: PowerDetails{
			TotalPower: state.TotalPower / 1000,
			L1:         phase(state.DynamicCircuitCurrentP1, state.InVoltageT1T2),
			L2:         phase(state.DynamicCircuitCurrentP2, state.InVoltageT2T3),
			L3:         phase(state.DynamicCircuitCurrentP3, state.InVoltageT3T4),
		},
	}, nil
}

// mapEaseeOpMode maps the numeric charger op-mode to the canonical
// state. Op-mode 1 means "cable disconnected"; it is deliberately
// mapped to UNKNOWN rather than READY (open product question whether a
// disconnected charger should count as ready).
func mapEaseeOpMode(opMode int) CarState {
	switch opMode {
	case 2:
		return CarStateWaiting
	case 3:
		return CarStateCharging
	case 4:
		return CarStateFinished
	default: // 1 = disconnected, 5 = error
		return CarStateUnknown
	}
}

// GetChargingSessions fetches session history. Easee session energy is
// already in kWh, durations in minutes.
func (e *EaseeClient) GetChargingSessions(from, to time.Time) ([]Session, error) {
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = to.Add(-30 * 24 * time.Hour)
	}

	endpoint := fmt.Sprintf("/chargers/%s/sessions?from=%s&to=%s",
		e.config.ChargerID, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))

	var raw []json.RawMessage
	if err := e.request(endpoint, &raw); err != nil {
		return nil, err
	}

	sessions := []Session{}
	for _, item := range raw {
		var s easeeSession
		if err := json.Unmarshal(item, &s); err != nil {
			log.Printf("easee: skipping malformed session record: %v", err)
			continue
		}

		start, err := parseEaseeTime(s.StartTime)
		if err != nil {
			log.Printf("easee: skipping session %s: %v", s.SessionID, err)
			continue
		}
		end, err := parseEaseeTime(s.EndTime)
		if err != nil {
			log.Printf("easee: skipping session %s: %v", s.SessionID, err)
			continue
		}

		sessions = append(sessions, Session{
			ID:              s.SessionID.String(),
			StartTime:       start,
			EndTime:         end,
			EnergyKWh:       s.TotalEnergy,
			MaxPower:        s.MaxPower,
			DurationMinutes: s.TotalDuration,
			Raw:             item,
		})
	}

	return sessions, nil
}

func parseEaseeTime(value string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, value); err == nil {
			return t, nil
		}
	}

	return time.Time{}, &ParseError{Field: "timestamp", Value: value,
		Err: fmt.Errorf("unrecognized time format")}
}
