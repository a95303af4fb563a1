package wallbox

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newEaseeTestServer(t *testing.T, authCalls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/accounts/token":
			atomic.AddInt32(authCalls, 1)

			var creds map[string]string
			if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds["userName"] == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if creds["password"] != "correct" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"accessToken": "token-1", "expiresIn": 3600, "tokenType": "Bearer",
			})

		case "/chargers/EH123/state":
			if r.Header.Get("Authorization") != "Bearer token-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"isOnline": true, "chargerOpMode": 3,
				"totalPower": 11000.0, "lifetimeEnergy": 1234500.0,
				"chargerFirmware": "3.1.4", "wiFiRSSI": -60,
				"dynamicCircuitCurrentP1": 16.0, "dynamicCircuitCurrentP2": 16.0,
				"dynamicCircuitCurrentP3": 16.0,
				"inVoltageT1T2":           230.0, "inVoltageT2T3": 231.0, "inVoltageT3T4": 229.0,
			})

		case "/chargers/EH123/sessions":
			json.NewEncoder(w).Encode([]map[string]interface{}{
				{"sessionId": 42, "startTime": "2024-10-31T15:58:50Z",
					"endTime": "2024-10-31T19:02:14Z", "totalEnergy": 12.5,
					"maxPower": 11.0, "totalDuration": 183.4},
			})

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newTestEaseeClient(baseURL string) *EaseeClient {
	c := NewEaseeClient(EaseeConfig{Username: "user@example.com", Password: "correct", ChargerID: "EH123"})
	c.baseURL = baseURL
	return c
}

func TestEaseeTokenCache(t *testing.T) {
	var authCalls int32
	server := newEaseeTestServer(t, &authCalls)
	defer server.Close()

	c := newTestEaseeClient(server.URL)

	if _, err := c.GetStatus(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.GetStatus(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := atomic.LoadInt32(&authCalls); n != 1 {
		t.Errorf("expected one authentication for calls within validity, got %d", n)
	}

	// Force expiry: the next call must re-authenticate
	c.tokenExpiry = time.Now().Add(-time.Second)
	if _, err := c.GetStatus(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := atomic.LoadInt32(&authCalls); n != 2 {
		t.Errorf("expected re-authentication after expiry, got %d auth calls", n)
	}
}

func TestEaseeAuthFailure(t *testing.T) {
	var authCalls int32
	server := newEaseeTestServer(t, &authCalls)
	defer server.Close()

	c := NewEaseeClient(EaseeConfig{Username: "user@example.com", Password: "wrong", ChargerID: "EH123"})
	c.baseURL = server.URL

	_, err := c.GetStatus()
	if err == nil {
		t.Fatal("expected authentication error")
	}
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %T: %v", err, err)
	}
}

func TestEaseeGetStatus(t *testing.T) {
	var authCalls int32
	server := newEaseeTestServer(t, &authCalls)
	defer server.Close()

	status, err := newTestEaseeClient(server.URL).GetStatus()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !status.IsOnline {
		t.Error("expected charger online")
	}
	if status.CarState != CarStateCharging {
		t.Errorf("expected CHARGING for op-mode 3, got %s", status.CarState)
	}
	if status.CurrentPower != 11 {
		t.Errorf("expected 11 kW from 11000 W, got %v", status.CurrentPower)
	}
	if status.TotalEnergy != 1234.5 {
		t.Errorf("expected 1234.5 kWh from 1234500 Wh, got %v", status.TotalEnergy)
	}
	if status.Power.L1.PowerFactor != 1 {
		t.Errorf("power factor must be fixed at 1, got %v", status.Power.L1.PowerFactor)
	}
	if want := 230.0 * 16 / 1000; status.Power.L1.Power != want {
		t.Errorf("expected synthesized phase power %v kW, got %v", want, status.Power.L1.Power)
	}
}

func TestEaseeOpModeMapping(t *testing.T) {
	cases := map[int]CarState{
		1: CarStateUnknown, // disconnected, deliberately not READY
		2: CarStateWaiting,
		3: CarStateCharging,
		4: CarStateFinished,
		5: CarStateUnknown,
		0: CarStateUnknown,
	}
	for opMode, want := range cases {
		if got := mapEaseeOpMode(opMode); got != want {
			t.Errorf("opMode=%d: expected %s, got %s", opMode, want, got)
		}
	}
}

func TestEaseeGetChargingSessions(t *testing.T) {
	var authCalls int32
	server := newEaseeTestServer(t, &authCalls)
	defer server.Close()

	sessions, err := newTestEaseeClient(server.URL).GetChargingSessions(time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	s := sessions[0]
	if s.ID != "42" {
		t.Errorf("expected session id 42, got %q", s.ID)
	}
	if s.EnergyKWh != 12.5 {
		t.Errorf("expected 12.5 kWh, got %v", s.EnergyKWh)
	}
	if !s.StartTime.Before(s.EndTime) {
		t.Errorf("expected start before end, got %v / %v", s.StartTime, s.EndTime)
	}
}
