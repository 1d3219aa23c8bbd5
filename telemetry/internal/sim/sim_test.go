package sim

import (
	"testing"
	"time"

	"equipment-inspection-diagnostics-system/shared/clients/weather"
)

func TestTickStaysWithinChannelBounds(t *testing.T) {
	units := []Equipment{{
		ID:   "eq-1",
		Type: "pipeline",
		Channels: []Channel{
			{Measurement: "pressure", Unit: "MPa", Nominal: 5.0, Jitter: 2.0, Min: 4.5, Max: 5.5},
		},
	}}
	s := NewState(units, 1)
	now := time.Now()
	for i := 0; i < 500; i++ {
		for _, r := range s.Tick(now) {
			if r.EquipmentID != "eq-1" {
				continue
			}
			if r.Value < 4.5 || r.Value > 5.5 {
				t.Fatalf("tick %d: pressure %v outside [4.5, 5.5]", i, r.Value)
			}
		}
	}
}

func TestTickEmitsSiteReadings(t *testing.T) {
	s := NewState(DefaultFleet(), 7)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	readings := s.Tick(now)

	want := map[string]bool{
		"personnel_on_shift":  false,
		"wind_speed":          false,
		"wind_direction":      false,
		"ambient_temperature": false,
	}
	for _, r := range readings {
		if r.EquipmentID != "site" {
			continue
		}
		if r.RecordedAt != now {
			t.Fatalf("site reading %s timestamped %v, want %v", r.Measurement, r.RecordedAt, now)
		}
		want[r.Measurement] = true
	}
	for m, seen := range want {
		if !seen {
			t.Fatalf("missing site reading %s", m)
		}
	}
}

func TestSetWeatherOverridesJitteredValues(t *testing.T) {
	s := NewState(nil, 3)
	s.SetWeather(weather.Conditions{WindSpeedMS: 20, WindDirectionDeg: 90, TemperatureC: -30})

	got := s.Weather()
	if got.WindSpeedMS != 20 || got.WindDirectionDeg != 90 || got.TemperatureC != -30 {
		t.Fatalf("weather not applied: %+v", got)
	}

	// One tick only drifts by the jitter step, so the observation must
	// still dominate.
	s.Tick(time.Now())
	after := s.Weather()
	if after.WindSpeedMS < 19 || after.WindSpeedMS > 21 {
		t.Fatalf("wind speed drifted too far after one tick: %v", after.WindSpeedMS)
	}
}

func TestDeterministicForSeed(t *testing.T) {
	now := time.Now()
	a := NewState(DefaultFleet(), 42).Tick(now)
	b := NewState(DefaultFleet(), 42).Tick(now)
	if len(a) != len(b) {
		t.Fatalf("reading counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("reading %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestPersonnelStaysPositive(t *testing.T) {
	s := NewState(nil, 99)
	for i := 0; i < 2000; i++ {
		s.Tick(time.Now())
		if n := s.Personnel(); n < 1 {
			t.Fatalf("personnel dropped to %d", n)
		}
	}
}
