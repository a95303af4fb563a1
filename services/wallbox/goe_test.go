package wallbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestGoEClient(statusURL, dataURL string) *GoEClient {
	c := NewGoEClient(GoEConfig{ChargerID: "GE123456", APIKey: "test-key"})
	if statusURL != "" {
		c.baseURL = statusURL
	}
	if dataURL != "" {
		c.dataBaseURL = dataURL
	}
	return c
}

func TestParseGoEDate(t *testing.T) {
	c := newTestGoEClient("", "")

	got, err := c.parseDate("31.10.2024 15:58:50")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	berlin, _ := time.LoadLocation("Europe/Berlin")
	want := time.Date(2024, 10, 31, 15, 58, 50, 0, berlin)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	if _, err := c.parseDate("2024-10-31 15:58:50"); err == nil {
		t.Error("expected error for non go-e date format")
	}
}

func TestParseGoEDuration(t *testing.T) {
	got, err := parseGoEDuration("03:03:24")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-183.4) > 1e-9 {
		t.Errorf("expected 183.4 minutes, got %v", got)
	}

	if _, err := parseGoEDuration("bogus"); err == nil {
		t.Error("expected error for malformed duration")
	}
}

// sixteen nrg samples with distinct values per slot
func testNrg() []float64 {
	nrg := make([]float64, 16)
	for i := range nrg {
		nrg[i] = float64(100 + i)
	}
	return nrg
}

func TestMapGoEStatusPhaseSubstitution(t *testing.T) {
	nrg := testNrg()
	nrg[0] = 5    // phase 1 voltage sample
	nrg[3] = 230  // neutral voltage sample, exceeds phase 1
	nrg[12] = 0.4 // phase 1 power factor sample
	nrg[15] = 0.9 // neutral power factor sample

	// pha/8 == 1 marks the neutral conductor bit
	status, err := mapGoEStatus(&goeStatus{Car: 2, Nrg: nrg, Pha: 8})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if status.Power.L1.Voltage != 230 {
		t.Errorf("expected phase 1 voltage from neutral sample (230), got %v", status.Power.L1.Voltage)
	}
	if status.Power.L1.PowerFactor != 0.9 {
		t.Errorf("expected phase 1 power factor from neutral sample (0.9), got %v", status.Power.L1.PowerFactor)
	}

	// Without the neutral bit, phase 1 keeps its own samples
	status, err = mapGoEStatus(&goeStatus{Car: 2, Nrg: nrg, Pha: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Power.L1.Voltage != 5 || status.Power.L1.PowerFactor != 0.4 {
		t.Errorf("expected phase 1 samples untouched, got voltage=%v pf=%v",
			status.Power.L1.Voltage, status.Power.L1.PowerFactor)
	}

	// Neutral bit set but neutral voltage not exceeding phase 1
	nrg2 := testNrg()
	nrg2[0] = 231
	nrg2[3] = 230
	status, err = mapGoEStatus(&goeStatus{Car: 2, Nrg: nrg2, Pha: 8})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Power.L1.Voltage != 231 {
		t.Errorf("substitution must also require nrg[3] > nrg[0], got voltage %v", status.Power.L1.Voltage)
	}
}

func TestMapGoEStatusTruncatedReadings(t *testing.T) {
	_, err := mapGoEStatus(&goeStatus{Car: 1, Nrg: []float64{1, 2, 3}})
	if err == nil {
		t.Fatal("expected parse error for truncated nrg array")
	}
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
}

func TestMapGoECarState(t *testing.T) {
	cases := map[int]CarState{
		0: CarStateUnknown,
		1: CarStateReady,
		2: CarStateCharging,
		3: CarStateWaiting,
		4: CarStateFinished,
		9: CarStateUnknown,
	}
	for car, want := range cases {
		if got := mapGoECarState(car); got != want {
			t.Errorf("car=%d: expected %s, got %s", car, want, got)
		}
	}
}

func TestGoEDataTokenCached(t *testing.T) {
	var statusCalls int32

	statusServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&statusCalls, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"car": 1, "nrg": testNrg(), "wh": 1000,
			"dll": "https://data.v3.go-e.io/export?e=secret-token",
		})
	}))
	defer statusServer.Close()

	dataServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("e"); got != "secret-token" {
			t.Errorf("expected data token 'secret-token', got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"data": []interface{}{}})
	}))
	defer dataServer.Close()

	c := newTestGoEClient(statusServer.URL, dataServer.URL)

	from := time.Now().Add(-24 * time.Hour)
	to := time.Now()

	if _, err := c.GetChargingSessions(from, to); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.GetChargingSessions(from, to); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Token extraction needs exactly one status call; the second
	// history fetch reuses the cached token.
	if n := atomic.LoadInt32(&statusCalls); n != 1 {
		t.Errorf("expected 1 status call for token extraction, got %d", n)
	}
}

func TestGoEGetChargingSessionsSkipsMalformed(t *testing.T) {
	statusServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"car": 1, "nrg": testNrg(),
			"dll": "https://data.v3.go-e.io/export?e=tok",
		})
	}))
	defer statusServer.Close()

	dataServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": [
			{"session_identifier": "good", "start": "31.10.2024 15:58:50",
			 "end": "31.10.2024 19:02:14", "seconds_charged": "03:03:24", "energy": 12.5},
			{"session_identifier": "bad-date", "start": "not a date",
			 "end": "31.10.2024 19:02:14", "seconds_charged": "00:10:00", "energy": 1}
		]}`)
	}))
	defer dataServer.Close()

	c := newTestGoEClient(statusServer.URL, dataServer.URL)

	sessions, err := c.GetChargingSessions(time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sessions) != 1 {
		t.Fatalf("expected the malformed session to be dropped, got %d sessions", len(sessions))
	}

	s := sessions[0]
	if s.ID != "good" {
		t.Errorf("expected session 'good', got %q", s.ID)
	}
	if s.EnergyKWh != 12.5 {
		t.Errorf("go-e energy is already kWh, expected 12.5, got %v", s.EnergyKWh)
	}
	if math.Abs(s.DurationMinutes-183.4) > 1e-9 {
		t.Errorf("expected duration 183.4 minutes, got %v", s.DurationMinutes)
	}
	if !s.StartTime.Before(s.EndTime) {
		t.Errorf("expected start before end, got %v / %v", s.StartTime, s.EndTime)
	}
	if len(s.Raw) == 0 {
		t.Error("expected raw vendor payload to be retained")
	}
}
