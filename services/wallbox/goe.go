package wallbox

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

const goeDataBaseURL = "https://data.v3.go-e.io"

// GoEConfig holds the credentials for the go-e Cloud API V3
type GoEConfig struct {
	ChargerID string `json:"charger_id"`
	APIKey    string `json:"api_key"`
}

// GoEClient talks to a go-e charger through its per-device cloud
// endpoint. Session history needs a second token that the cloud embeds
// in the "dll" data-link URL of the status payload; it is cached for
// the lifetime of the client.
type GoEClient struct {
	client      *http.Client
	baseURL     string
	dataBaseURL string
	apiKey      string
	dataToken   string
	timezone    *time.Location
}

func NewGoEClient(config GoEConfig) *GoEClient {
	tz, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		tz = time.Local
	}

	return &GoEClient{
		client:      &http.Client{Timeout: 30 * time.Second},
		baseURL:     fmt.Sprintf("https://%s.api.v3.go-e.io", config.ChargerID),
		dataBaseURL: goeDataBaseURL,
		apiKey:      config.APIKey,
		timezone:    tz,
	}
}

// goeStatus is the raw /api/status payload. nrg packs all electrical
// readings into one array: [0..3] voltages L1,L2,L3,N; [4..6] currents
// L1..L3 in 0.1A; [7..10] power L1..L3,N in 0.1kW; [11] total power in
// 0.01kW; [12..15] power factors L1,L2,L3,N.
type goeStatus struct {
	Car int       `json:"car"`
	Nrg []float64 `json:"nrg"`
	Wh  float64   `json:"wh"`
	Err int       `json:"err"`
	Pha int       `json:"pha"`
	Tmp []float64 `json:"tmp"`
	Tma []float64 `json:"tma"`
	Fwv string    `json:"fwv"`
	Wst int       `json:"wst"`
	Dll string    `json:"dll"`
}

type goeSession struct {
	SessionNumber     int     `json:"session_number"`
	SessionIdentifier string  `json:"session_identifier"`
	Start             string  `json:"start"`
	End               string  `json:"end"`
	SecondsTotal      string  `json:"seconds_total"`
	SecondsCharged    string  `json:"seconds_charged"`
	MaxPower          float64 `json:"max_power"`
	MaxCurrent        float64 `json:"max_current"`
	Energy            float64 `json:"energy"`
	EtoDiff           float64 `json:"eto_diff"`
	EtoStart          float64 `json:"eto_start"`
	EtoEnd            float64 `json:"eto_end"`
}

type goeSessionResponse struct {
	Data []json.RawMessage `json:"data"`
}

func (g *GoEClient) getRawStatus() (*goeStatus, error) {
	req, err := http.NewRequest("GET", g.baseURL+"/api/status", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}

	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthError{Provider: "go-e", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var status goeStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %v", err)
	}

	return &status, nil
}

// getDataToken extracts the session-history token from the data-link
// URL in the status payload. A cache miss costs exactly one extra
// status call.
func (g *GoEClient) getDataToken() (string, error) {
	if g.dataToken != "" {
		return g.dataToken, nil
	}

	status, err := g.getRawStatus()
	if err != nil {
		return "", err
	}

	if status.Dll == "" {
		return "", &ConfigError{Reason: "charger reports no data link"}
	}

	dll, err := url.Parse(status.Dll)
	if err != nil {
		return "", fmt.Errorf("invalid data link URL: %v", err)
	}

	token := dll.Query().Get("e")
	if token == "" {
		return "", &ConfigError{Reason: "no data token in data link URL"}
	}

	g.dataToken = token
	return token, nil
}

func (g *GoEClient) GetStatus() (*Status, error) {
	status, err := g.getRawStatus()
	if err != nil {
		return nil, err
	}
	return mapGoEStatus(status)
}

func mapGoEStatus(status *goeStatus) (*Status, error) {
	if len(status.Nrg) < 16 {
		return nil, &ParseError{Field: "nrg", Value: fmt.Sprintf("%v", status.Nrg),
			Err: fmt.Errorf("expected 16 readings, got %d", len(status.Nrg))}
	}

	nrg := status.Nrg

	// When the neutral conductor bit is set and the neutral voltage
	// sample exceeds phase 1, the charger wires L1 through N: phase 1
	// voltage and power factor must come from the neutral samples.
	useNeutralVoltage := status.Pha/8 == 1 && nrg[3] > nrg[0]

	phase := func(index int) PhaseInfo {
		info := PhaseInfo{
			Voltage:     nrg[index],
			Current:     nrg[index+4] / 10,
			Power:       nrg[index+7] / 10,
			PowerFactor: nrg[index+12],
		}
		if useNeutralVoltage && index == 0 {
			info.Voltage = nrg[3]
			info.PowerFactor = nrg[15]
		}
		return info
	}

	temperature := 0.0
	if len(status.Tma) > 0 {
		temperature = status.Tma[0]
	} else if len(status.Tmp) > 0 {
		temperature = status.Tmp[0]
	}

	return &Status{
		IsOnline:      status.Err == 0,
		CarState:      mapGoECarState(status.Car),
		CurrentPower:  nrg[11] / 100,
		TotalEnergy:   status.Wh / 1000,
		Temperature:   temperature,
		Firmware:      status.Fwv,
		WiFiConnected: status.Wst == 3,
		Power: PowerDetails{
			TotalPower: nrg[11] / 100,
			L1:         phase(0),
			L2:         phase(1),
			L3:         phase(2),
			Neutral: &PhaseInfo{
				Voltage:     nrg[3],
				Current:     0,
				Power:       nrg[10] / 10,
				PowerFactor: nrg[15],
			},
		},
	}, nil
}

func mapGoECarState(car int) CarState {
	switch car {
	case 1:
		return CarStateReady
	case 2:
		return CarStateCharging
	case 3:
		return CarStateWaiting
	case 4:
		return CarStateFinished
	default:
		return CarStateUnknown
	}
}

// GetChargingSessions fetches the session history from the go-e data
// cloud. Energy already arrives in kWh. Sessions with malformed dates
// are dropped individually, the rest of the batch proceeds.
func (g *GoEClient) GetChargingSessions(from, to time.Time) ([]Session, error) {
	token, err := g.getDataToken()
	if err != nil {
		return nil, err
	}

	requestURL := fmt.Sprintf("%s/api/v1/direct_json?e=%s", g.dataBaseURL, url.QueryEscape(token))
	if !from.IsZero() && !to.IsZero() {
		requestURL += fmt.Sprintf("&from=%d&to=%d&timezone=Europe/Berlin",
			from.UnixMilli(), to.UnixMilli())
	}

	resp, err := g.client.Get(requestURL)
	if err != nil {
		return nil, fmt.Errorf("session history request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("session history failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response goeSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode session history: %v", err)
	}

	sessions := []Session{}
	for _, raw := range response.Data {
		var item goeSession
		if err := json.Unmarshal(raw, &item); err != nil {
			log.Printf("go-e: skipping malformed session record: %v", err)
			continue
		}

		start, err := g.parseDate(item.Start)
		if err != nil {
			log.Printf("go-e: skipping session %s: %v", item.SessionIdentifier, err)
			continue
		}
		end, err := g.parseDate(item.End)
		if err != nil {
			log.Printf("go-e: skipping session %s: %v", item.SessionIdentifier, err)
			continue
		}

		duration, err := parseGoEDuration(item.SecondsCharged)
		if err != nil {
			log.Printf("go-e: skipping session %s: %v", item.SessionIdentifier, err)
			continue
		}

		sessions = append(sessions, Session{
			ID:              item.SessionIdentifier,
			StartTime:       start,
			EndTime:         end,
			EnergyKWh:       item.Energy,
			MaxPower:        item.MaxPower,
			DurationMinutes: duration,
			Raw:             raw,
		})
	}

	return sessions, nil
}

// parseDate parses go-e timestamps like "31.10.2024 15:58:50" in the
// charger's configured timezone
func (g *GoEClient) parseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation("02.01.2006 15:04:05", value, g.timezone)
	if err != nil {
		return time.Time{}, &ParseError{Field: "date", Value: value, Err: err}
	}
	return t, nil
}

// parseGoEDuration converts "03:03:24" to minutes (183.4)
func parseGoEDuration(value string) (float64, error) {
	var hours, minutes, seconds int
	if _, err := fmt.Sscanf(value, "%d:%d:%d", &hours, &minutes, &seconds); err != nil {
		return 0, &ParseError{Field: "duration", Value: value, Err: err}
	}
	return float64(hours)*60 + float64(minutes) + float64(seconds)/60, nil
}
