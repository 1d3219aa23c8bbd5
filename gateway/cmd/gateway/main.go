package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
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
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"equipment-inspection-diagnostics-system/shared/config"
	"equipment-inspection-diagnostics-system/shared/events"
	"equipment-inspection-diagnostics-system/shared/httpx"
	"equipment-inspection-diagnostics-system/shared/logx"
	"equipment-inspection-diagnostics-system/shared/metricsx"
	"equipment-inspection-diagnostics-system/shared/mqx"
	"equipment-inspection-diagnostics-system/shared/observability"
)

const maxBodyBytes = 1 << 20

type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Env     string `json:"env,omitempty"`
	Version string `json:"version,omitempty"`
}

// ingestRequest is one telemetry reading from a field sensor or the
// simulator: pressure, temperature, wall-thickness probes and the like.
type ingestRequest struct {
	EquipmentID string     `json:"equipment_id"`
	Measurement string     `json:"measurement"`
	Value       float64    `json:"value"`
	Unit        string     `json:"unit,omitempty"`
	RecordedAt  *time.Time `json:"recorded_at,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

type ingestResponse struct {
	EventID    string `json:"event_id"`
	Topic      string `json:"topic"`
	Partition  string `json:"partition_key"`
	OccurredAt string `json:"occurred_at"`
}

func decodeIngestRequest(r *http.Request) (ingestRequest, error) {
	var req ingestRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return req, errors.New("failed to read request body")
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, errors.New("invalid JSON body")
	}
	if strings.TrimSpace(req.EquipmentID) == "" {
		return req, errors.New("equipment_id is required")
	}
	if strings.TrimSpace(req.Measurement) == "" {
		return req, errors.New("measurement is required")
	}
	return req, nil
}

func main() {
	cfg, readyProblems := config.Load("telemetry-gateway", 8090)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)
	metricsx.Register()

	var shutdownTracer func(context.Context) error
	if cfg.OtelEnabled {
		var err error
		shutdownTracer, err = observability.InitTracer(context.Background(), observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Env:         cfg.Env,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		})
		if err != nil {
			logger.Error(context.Background(), "otel_init_failed", "otel init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}

	var producer *mqx.Producer
	if len(cfg.KafkaBrokers) == 0 {
		readyProblems = append(readyProblems, config.Problem{Field: "KAFKA_BROKERS", Message: "KAFKA_BROKERS is required"})
	} else {
		var err error
		producer, err = mqx.NewProducer(cfg)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "KAFKA_BROKERS", Message: err.Error()})
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ok",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if len(readyProblems) > 0 {
			httpx.WriteError(
				w,
				r,
				http.StatusServiceUnavailable,
				"FAILED_PRECONDITION",
				"service not ready: invalid configuration",
				map[string]any{"problems": readyProblems},
			)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ready",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.Handle("GET /metrics", metricsx.Handler())

	mux.HandleFunc("POST /v1/telemetry", func(w http.ResponseWriter, r *http.Request) {
		if producer == nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "kafka producer not configured", nil)
			return
		}
		req, err := decodeIngestRequest(r)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
			return
		}

		occurredAt := time.Now().UTC()
		if req.RecordedAt != nil {
			occurredAt = req.RecordedAt.UTC()
		}
		payload, err := json.Marshal(map[string]any{
			"equipment_id": req.EquipmentID,
			"measurement":  req.Measurement,
			"value":        req.Value,
			"unit":         req.Unit,
			"tags":         req.Tags,
		})
		if err != nil {
			httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to encode payload", nil)
			return
		}
		env := events.Envelope{
			EventID:       uuid.New(),
			OccurredAt:    occurredAt,
			AggregateType: events.AggregateTelemetry,
			AggregateID:   req.EquipmentID,
			EventType:     "telemetry." + req.Measurement,
			Payload:       payload,
		}
		data, err := json.Marshal(env)
		if err != nil {
			httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to encode envelope", nil)
			return
		}

		partitionKey := req.EquipmentID
		headers := map[string]string{
			"event_id":       env.EventID.String(),
			"aggregate_type": env.AggregateType,
			"aggregate_id":   env.AggregateID,
		}
		if err := producer.Publish(r.Context(), events.TopicTelemetryReadings, []byte(partitionKey), data, headers); err != nil {
			logger.Error(r.Context(), "telemetry_publish_failed", "telemetry publish failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			httpx.WriteError(w, r, http.StatusBadGateway, "INTERNAL_ERROR", "failed to publish reading", nil)
			return
		}

		httpx.WriteJSON(w, http.StatusAccepted, ingestResponse{
			EventID:    env.EventID.String(),
			Topic:      events.TopicTelemetryReadings,
			Partition:  partitionKey,
			OccurredAt: occurredAt.Format(time.RFC3339Nano),
		})
	})

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})

	handler := httpx.WrapServeMux(mux, notFound)
	handler = metricsx.Instrument(handler)
	handler = httpx.WithTimeout(cfg.RequestTimeout, handler)
	handler = httpx.WithRequestID(handler)
	handler = httpx.WithRecover(logger, handler)
	handler = httpx.WithRequestLog(logger, httpx.RequestLogOptions{SkipPaths: map[string]bool{"/healthz": true, "/metrics": true}}, handler)
	handler = otelhttp.NewHandler(handler, "http")

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.HTTPPort)),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "service_start", "starting gateway",
			slog.String("addr", server.Addr),
			slog.Int("http_port", cfg.HTTPPort),
		)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "server_failed", "server failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "shutdown_failed", "shutdown failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
	}
	if producer != nil {
		_ = producer.Close()
	}
	if shutdownTracer != nil {
		_ = shutdownTracer(context.Background())
	}
	logger.Info(context.Background(), "service_stop", "gateway stopped")
}
