package sim

import (
	"math/rand"
	"sync"
	"time"

	"equipment-inspection-diagnostics-system/shared/clients/weather"
)

// Reading is one simulated sensor sample ready to be written to the
// time-series store or published to the readings topic.
type Reading struct {
	EquipmentID string    `json:"equipment_id"`
	Measurement string    `json:"measurement"`
	Value       float64   `json:"value"`
	Unit        string    `json:"unit"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Channel describes one measurement a piece of equipment reports: a
// nominal value and the band of jitter around it. Values never leave
// [Min, Max] regardless of how many ticks accumulate.
type Channel struct {
	Measurement string
	Unit        string
	Nominal     float64
	Jitter      float64
	Min         float64
	Max         float64
}

// Equipment is one simulated unit with its reporting channels.
type Equipment struct {
	ID       string
	Type     string
	Channels []Channel
}

// State drives the plant simulation. Each Tick nudges every channel by a
// bounded random step and refreshes site-level counters (personnel on
// shift, ambient weather). All methods are safe for concurrent use.
type State struct {
	mu        sync.Mutex
	rng       *rand.Rand
	units     []Equipment
	values    map[string]map[string]float64
	personnel int
	weather   weather.Conditions
	tickedAt  time.Time
}

func NewState(units []Equipment, seed int64) *State {
	s := &State{
		rng:       rand.New(rand.NewSource(seed)),
		units:     units,
		values:    make(map[string]map[string]float64, len(units)),
		personnel: 12,
		weather: weather.Conditions{
			WindDirectionDeg: 180,
			WindSpeedMS:      3.5,
			TemperatureC:     14,
		},
	}
	for _, u := range units {
		chans := make(map[string]float64, len(u.Channels))
		for _, c := range u.Channels {
			chans[c.Measurement] = c.Nominal
		}
		s.values[u.ID] = chans
	}
	return s
}

// SetWeather replaces the ambient conditions with a real observation.
// Used when the weather service responds; otherwise Tick keeps jittering
// the last known values.
func (s *State) SetWeather(c weather.Conditions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weather = c
}

// Tick advances the simulation one step and returns the readings sampled
// at now.
func (s *State) Tick(now time.Time) []Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tickedAt = now
	s.jitterWeatherLocked()
	s.jitterPersonnelLocked()

	out := make([]Reading, 0, s.channelCountLocked()+4)
	for _, u := range s.units {
		chans := s.values[u.ID]
		for _, c := range u.Channels {
			v := chans[c.Measurement] + (s.rng.Float64()*2-1)*c.Jitter
			v = clamp(v, c.Min, c.Max)
			chans[c.Measurement] = v
			out = append(out, Reading{
				EquipmentID: u.ID,
				Measurement: c.Measurement,
				Value:       round2(v),
				Unit:        c.Unit,
				RecordedAt:  now,
			})
		}
	}

	out = append(out,
		Reading{EquipmentID: "site", Measurement: "personnel_on_shift", Value: float64(s.personnel), Unit: "count", RecordedAt: now},
		Reading{EquipmentID: "site", Measurement: "wind_speed", Value: round2(s.weather.WindSpeedMS), Unit: "m/s", RecordedAt: now},
		Reading{EquipmentID: "site", Measurement: "wind_direction", Value: round2(s.weather.WindDirectionDeg), Unit: "deg", RecordedAt: now},
		Reading{EquipmentID: "site", Measurement: "ambient_temperature", Value: round2(s.weather.TemperatureC), Unit: "C", RecordedAt: now},
	)
	return out
}

// Personnel returns the current on-shift headcount.
func (s *State) Personnel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.personnel
}

func (s *State) Weather() weather.Conditions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.weather
}

func (s *State) jitterWeatherLocked() {
	s.weather.WindSpeedMS = clamp(s.weather.WindSpeedMS+(s.rng.Float64()*2-1)*0.4, 0, 40)
	s.weather.WindDirectionDeg = wrapDegrees(s.weather.WindDirectionDeg + (s.rng.Float64()*2-1)*6)
	s.weather.TemperatureC = clamp(s.weather.TemperatureC+(s.rng.Float64()*2-1)*0.3, -45, 50)
}

func (s *State) jitterPersonnelLocked() {
	switch s.rng.Intn(10) {
	case 0:
		if s.personnel < 40 {
			s.personnel++
		}
	case 1:
		if s.personnel > 1 {
			s.personnel--
		}
	}
}

func (s *State) channelCountLocked() int {
	n := 0
	for _, u := range s.units {
		n += len(u.Channels)
	}
	return n
}

func clamp(v float64, lo float64, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func wrapDegrees(v float64) float64 {
	for v < 0 {
		v += 360
	}
	for v >= 360 {
		v -= 360
	}
	return v
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// DefaultFleet mirrors the demo hierarchy: the same equipment units that
// seed the navigation tree report pressure, temperature and wall
// thickness here.
func DefaultFleet() []Equipment {
	pipeline := []Channel{
		{Measurement: "pressure", Unit: "MPa", Nominal: 5.4, Jitter: 0.08, Min: 4.0, Max: 7.0},
		{Measurement: "temperature", Unit: "C", Nominal: 42, Jitter: 0.5, Min: 20, Max: 80},
		{Measurement: "wall_thickness", Unit: "mm", Nominal: 8.7, Jitter: 0.01, Min: 6.0, Max: 9.0},
	}
	vessel := []Channel{
		{Measurement: "pressure", Unit: "MPa", Nominal: 1.6, Jitter: 0.05, Min: 0.8, Max: 2.5},
		{Measurement: "temperature", Unit: "C", Nominal: 65, Jitter: 0.8, Min: 30, Max: 110},
	}
	tank := []Channel{
		{Measurement: "fill_level", Unit: "%", Nominal: 62, Jitter: 0.6, Min: 5, Max: 95},
		{Measurement: "temperature", Unit: "C", Nominal: 18, Jitter: 0.3, Min: -10, Max: 45},
	}
	transformer := []Channel{
		{Measurement: "oil_temperature", Unit: "C", Nominal: 58, Jitter: 0.7, Min: 20, Max: 105},
		{Measurement: "load", Unit: "%", Nominal: 71, Jitter: 1.2, Min: 10, Max: 100},
	}
	return []Equipment{
		{ID: "eq-pipeline-12", Type: "pipeline", Channels: pipeline},
		{ID: "eq-pipeline-14", Type: "pipeline", Channels: pipeline},
		{ID: "eq-separator-1", Type: "pressure_vessel", Channels: vessel},
		{ID: "eq-tank-3", Type: "tank", Channels: tank},
		{ID: "eq-transformer-7", Type: "transformer", Channels: transformer},
	}
}
