package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"equipment-inspection-diagnostics-system/shared/clients/weather"
	"equipment-inspection-diagnostics-system/shared/config"
	"equipment-inspection-diagnostics-system/shared/events"
	"equipment-inspection-diagnostics-system/shared/httpx"
	"equipment-inspection-diagnostics-system/shared/influxx"
	"equipment-inspection-diagnostics-system/shared/logx"
	"equipment-inspection-diagnostics-system/shared/metricsx"
	"equipment-inspection-diagnostics-system/shared/mqx"
	"equipment-inspection-diagnostics-system/telemetry/internal/sim"
)

// The simulator stands in for field instrumentation: every tick it
// samples the plant model and fans the readings out to InfluxDB and the
// readings topic. Weather is refreshed from the external service when
// available; otherwise the model keeps jittering its last observation.
const weatherRefreshEvery = 15

type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Env     string `json:"env,omitempty"`
}

func main() {
	cfg, readyProblems := config.Load("telemetry-simulator", 8091)
	logger := logx.New(cfg.ServiceName, cfg.Env, strings.TrimSpace(os.Getenv("VERSION")), cfg.LogLevel)
	metricsx.Register()

	var influx *influxx.Client
	if c, err := influxx.New(cfg); err != nil {
		readyProblems = append(readyProblems, config.Problem{Field: "INFLUX_URL", Message: err.Error()})
		logger.Warn(context.Background(), "influx_unavailable", "influx disabled", slog.String("error", err.Error()))
	} else {
		influx = c
	}

	var producer *mqx.Producer
	if p, err := mqx.NewProducer(cfg); err != nil {
		readyProblems = append(readyProblems, config.Problem{Field: "KAFKA_BROKERS", Message: err.Error()})
		logger.Warn(context.Background(), "kafka_unavailable", "kafka disabled", slog.String("error", err.Error()))
	} else {
		producer = p
	}

	var weatherClient *weather.Client
	if cfg.WeatherEnabled {
		if c, err := weather.New(cfg); err != nil {
			logger.Warn(context.Background(), "weather_unavailable", "weather disabled", slog.String("error", err.Error()))
		} else {
			weatherClient = c
		}
	}

	state := sim.NewState(sim.DefaultFleet(), time.Now().UnixNano())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, statusResponse{Status: "ok", Service: cfg.ServiceName, Env: cfg.Env})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if len(readyProblems) > 0 {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "service not ready: invalid configuration", map[string]any{"problems": readyProblems})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, statusResponse{Status: "ready", Service: cfg.ServiceName, Env: cfg.Env})
	})
	mux.Handle("GET /metrics", metricsx.Handler())

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.HTTPPort)),
		Handler:           httpx.WithRecover(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	go runLoop(rootCtx, cfg, logger, state, influx, producer, weatherClient)

	logger.Info(context.Background(), "service_start", "simulator started",
		slog.Int("http_port", cfg.HTTPPort),
		slog.Int("tick_ms", cfg.SimTickMS),
		slog.Bool("influx", influx != nil),
		slog.Bool("kafka", producer != nil),
	)

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "server_failed", "server failed", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	if producer != nil {
		_ = producer.Close()
	}
	if influx != nil {
		influx.Close()
	}
	logger.Info(context.Background(), "service_stop", "simulator stopped")
}

func runLoop(
	ctx context.Context,
	cfg config.Config,
	logger logx.Logger,
	state *sim.State,
	influx *influxx.Client,
	producer *mqx.Producer,
	weatherClient *weather.Client,
) {
	tick := time.Duration(cfg.SimTickMS) * time.Millisecond
	if tick <= 0 {
		tick = 2 * time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if weatherClient != nil && n%weatherRefreshEvery == 0 {
				refreshWeather(ctx, logger, state, weatherClient)
			}
			n++
			emit(ctx, logger, state.Tick(now.UTC()), influx, producer)
		}
	}
}

func refreshWeather(ctx context.Context, logger logx.Logger, state *sim.State, client *weather.Client) {
	fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cond, err := client.Current(fetchCtx)
	if err != nil {
		logger.Warn(ctx, "weather_fetch_failed", "using jittered weather", slog.String("error", err.Error()))
		return
	}
	state.SetWeather(cond)
}

func emit(ctx context.Context, logger logx.Logger, readings []sim.Reading, influx *influxx.Client, producer *mqx.Producer) {
	for _, r := range readings {
		if influx != nil {
			err := influx.WritePoint(ctx, r.Measurement,
				map[string]string{"equipment_id": r.EquipmentID, "unit": r.Unit},
				map[string]any{"value": r.Value},
				r.RecordedAt,
			)
			if err != nil {
				metricsx.IncInfluxWriteFailure()
				logger.Warn(ctx, "influx_write_failed", "influx write failed",
					slog.String("equipment_id", r.EquipmentID),
					slog.String("measurement", r.Measurement),
					slog.String("error", err.Error()),
				)
			}
		}
		if producer != nil {
			publish(ctx, logger, producer, r)
		}
	}
}

func publish(ctx context.Context, logger logx.Logger, producer *mqx.Producer, r sim.Reading) {
	payload, err := json.Marshal(r)
	if err != nil {
		return
	}
	env := events.Envelope{
		EventID:       uuid.New(),
		OccurredAt:    r.RecordedAt,
		AggregateType: events.AggregateTelemetry,
		AggregateID:   r.EquipmentID,
		EventType:     "telemetry." + r.Measurement,
		Payload:       payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := producer.Publish(pubCtx, events.TopicTelemetryReadings, []byte(r.EquipmentID), data, map[string]string{
		"event_id":       env.EventID.String(),
		"aggregate_type": env.AggregateType,
		"aggregate_id":   env.AggregateID,
	}); err != nil {
		logger.Warn(ctx, "telemetry_publish_failed", "kafka publish failed",
			slog.String("equipment_id", r.EquipmentID),
			slog.String("measurement", r.Measurement),
			slog.String("error", err.Error()),
		)
	}
}
