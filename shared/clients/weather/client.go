package weather

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"equipment-inspection-diagnostics-system/shared/config"
	"equipment-inspection-diagnostics-system/shared/metricsx"
)

// Client fetches site weather conditions (wind, temperature) from an
// external weather service. The telemetry simulator uses the readings to
// orient the hazard-dispersion placeholder; on any failure callers fall
// back to locally jittered values.
type Client struct {
	baseURL  string
	retryMax int
	http     *http.Client
	breaker  *circuitBreaker
}

type Conditions struct {
	WindDirectionDeg float64 `json:"wind_direction_deg"`
	WindSpeedMS      float64 `json:"wind_speed_ms"`
	TemperatureC     float64 `json:"temperature_c"`
	ObservedAt       string  `json:"observed_at,omitempty"`
}

func New(cfg config.Config) (*Client, error) {
	if cfg.WeatherServiceURL == "" {
		return nil, errors.New("WEATHER_SERVICE_URL is required")
	}
	timeout := time.Duration(cfg.WeatherTimeoutMS) * time.Millisecond
	return &Client{
		baseURL:  cfg.WeatherServiceURL,
		retryMax: cfg.WeatherRetryMax,
		http:     &http.Client{Timeout: timeout},
		breaker:  newCircuitBreaker(5, 30*time.Second),
	}, nil
}

func (c *Client) Current(ctx context.Context) (Conditions, error) {
	if c == nil || c.http == nil {
		return Conditions{}, errors.New("weather client not initialized")
	}
	if c.breaker.Open() {
		return Conditions{}, errors.New("weather circuit open")
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/current", nil)
		if err != nil {
			return Conditions{}, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.breaker.Fail()
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = errors.New("weather service error")
			c.breaker.Fail()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			metricsx.IncWeatherFetchFailure()
			return Conditions{}, errors.New("weather request failed")
		}
		var out Conditions
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil {
			c.breaker.Fail()
			metricsx.IncWeatherFetchFailure()
			return Conditions{}, err
		}
		c.breaker.Success()
		return out, nil
	}
	if lastErr == nil {
		lastErr = errors.New("weather request failed")
	}
	metricsx.IncWeatherFetchFailure()
	return Conditions{}, lastErr
}

type circuitBreaker struct {
	mu            sync.Mutex
	failures      int
	openUntil     time.Time
	threshold     int
	resetDuration time.Duration
}

func newCircuitBreaker(threshold int, reset time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, resetDuration: reset}
}

func (b *circuitBreaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openUntil.IsZero() {
		return false
	}
	if time.Now().After(b.openUntil) {
		b.openUntil = time.Time{}
		b.failures = 0
		return false
	}
	return true
}

func (b *circuitBreaker) Fail() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.openUntil = time.Now().Add(b.resetDuration)
	}
}

func (b *circuitBreaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.openUntil = time.Time{}
}
