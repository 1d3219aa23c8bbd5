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

	"github.com/segmentio/kafka-go"

	"equipment-inspection-diagnostics-system/shared/config"
	"equipment-inspection-diagnostics-system/shared/events"
	"equipment-inspection-diagnostics-system/shared/httpx"
	"equipment-inspection-diagnostics-system/shared/influxx"
	"equipment-inspection-diagnostics-system/shared/logx"
	"equipment-inspection-diagnostics-system/shared/metricsx"
	"equipment-inspection-diagnostics-system/shared/mqx"
	"equipment-inspection-diagnostics-system/telemetry/internal/sim"
)

// The recorder is the durable leg of the telemetry path: it consumes the
// readings topic and writes each sample into InfluxDB, so readings
// ingested through the gateway land in the same store as simulator
// output. Offsets are committed only after a successful write.
const consumerGroup = "telemetry-recorder"

type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Env     string `json:"env,omitempty"`
}

func main() {
	cfg, readyProblems := config.Load("telemetry-recorder", 8092)
	logger := logx.New(cfg.ServiceName, cfg.Env, strings.TrimSpace(os.Getenv("VERSION")), cfg.LogLevel)
	metricsx.Register()

	influx, err := influxx.New(cfg)
	if err != nil {
		readyProblems = append(readyProblems, config.Problem{Field: "INFLUX_URL", Message: err.Error()})
	}
	reader, err := mqx.NewConsumer(cfg, events.TopicTelemetryReadings, consumerGroup)
	if err != nil {
		readyProblems = append(readyProblems, config.Problem{Field: "KAFKA_BROKERS", Message: err.Error()})
	}

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

	if reader != nil && influx != nil {
		go consume(rootCtx, logger, reader, influx)
		go reportLag(rootCtx, reader)
	} else {
		logger.Error(context.Background(), "recorder_degraded", "missing kafka or influx, consume loop not started",
			slog.Bool("kafka", reader != nil),
			slog.Bool("influx", influx != nil),
		)
	}

	logger.Info(context.Background(), "service_start", "recorder started", slog.Int("http_port", cfg.HTTPPort))

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
	if reader != nil {
		_ = reader.Close()
	}
	if influx != nil {
		influx.Close()
	}
	logger.Info(context.Background(), "service_stop", "recorder stopped")
}

func consume(ctx context.Context, logger logx.Logger, reader *kafka.Reader, influx *influxx.Client) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Warn(ctx, "fetch_failed", "fetch failed", slog.String("error", err.Error()))
			time.Sleep(time.Second)
			continue
		}

		if err := record(ctx, influx, msg.Value); err != nil {
			metricsx.IncInfluxWriteFailure()
			logger.Warn(ctx, "record_failed", "reading not recorded",
				slog.String("key", string(msg.Key)),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
			// Malformed payloads are committed so they do not wedge the
			// partition; write failures are retried on the next fetch.
			if !errors.Is(err, errBadPayload) {
				time.Sleep(time.Second)
				continue
			}
		}
		if err := reader.CommitMessages(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn(ctx, "commit_failed", "offset commit failed", slog.String("error", err.Error()))
		}
	}
}

var errBadPayload = errors.New("malformed reading payload")

func record(ctx context.Context, influx *influxx.Client, raw []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return errBadPayload
	}
	var r sim.Reading
	if err := json.Unmarshal(env.Payload, &r); err != nil {
		return errBadPayload
	}
	if r.EquipmentID == "" || r.Measurement == "" {
		return errBadPayload
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = env.OccurredAt
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return influx.WritePoint(writeCtx, r.Measurement,
		map[string]string{"equipment_id": r.EquipmentID, "unit": r.Unit},
		map[string]any{"value": r.Value},
		r.RecordedAt,
	)
}

func reportLag(ctx context.Context, reader *kafka.Reader) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := reader.Stats()
			metricsx.SetKafkaLag(events.TopicTelemetryReadings, consumerGroup, stats.Lag)
		}
	}
}
