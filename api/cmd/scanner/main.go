package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"equipment-inspection-diagnostics-system/api/internal/models"
	"equipment-inspection-diagnostics-system/api/internal/repos"
	"equipment-inspection-diagnostics-system/shared/cachex"
	"equipment-inspection-diagnostics-system/shared/classify"
	"equipment-inspection-diagnostics-system/shared/config"
	"equipment-inspection-diagnostics-system/shared/dbx"
	"equipment-inspection-diagnostics-system/shared/events"
	"equipment-inspection-diagnostics-system/shared/lockx"
	"equipment-inspection-diagnostics-system/shared/logx"
	"equipment-inspection-diagnostics-system/shared/metricsx"
)

const taskExpiryScan = "verification.expiry_scan"

const scanLockKey = "lock:verification:expiry_scan"

// scanner walks the active verification instruments, buckets each by its
// expiry countdown and records one alert per instrument, bucket and day.
// Alerts go through the outbox so the worker delivers them to Kafka.
type scanner struct {
	cfg       config.Config
	logger    logx.Logger
	pool      *pgxpool.Pool
	equipment *repos.VerificationRepo
	alerts    *repos.AlertsRepo
	outbox    *repos.OutboxRepo
	cache     *cachex.Client
}

func (s *scanner) run(ctx context.Context) error {
	lock, acquired, err := lockx.Acquire(ctx, s.cache.Client(), scanLockKey, time.Duration(s.cfg.ScanLockTTLSec)*time.Second)
	if err != nil {
		return err
	}
	if !acquired {
		s.logger.Debug(ctx, "scan_skipped", "another scanner holds the lock")
		return nil
	}
	defer func() { _ = lockx.Release(context.Background(), s.cache.Client(), lock) }()

	items, err := s.equipment.List(ctx, true)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	counts := map[string]int{}
	created := 0
	for _, eq := range items {
		if eq.NextVerificationDate == nil {
			counts[string(classify.VerificationOK)]++
			continue
		}
		days := classify.DaysUntil(*eq.NextVerificationDate, now)
		bucket := classify.VerificationStatus(days <= 0, &days)
		counts[string(bucket)]++
		if bucket == classify.VerificationOK {
			continue
		}

		wrote, err := s.alerts.CreateIfAbsent(ctx, models.VerificationAlert{
			EquipmentID: eq.EquipmentID,
			Bucket:      string(bucket),
			DaysLeft:    days,
		})
		if err != nil {
			return err
		}
		if !wrote {
			continue
		}
		created++
		metricsx.IncExpiryAlert(string(bucket))

		if err := s.publishAlert(ctx, eq, string(bucket), days, now); err != nil {
			return err
		}
	}

	if s.cfg.StatsCacheTTLSec > 0 {
		ttl := time.Duration(s.cfg.StatsCacheTTLSec) * time.Second
		if err := s.cache.SetJSON(ctx, "verification:buckets", counts, ttl); err != nil {
			s.logger.Warn(ctx, "bucket_cache_write_failed", "bucket cache write failed",
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info(ctx, "scan_done", "expiry scan finished",
		slog.Int("equipment", len(items)),
		slog.Int("alerts_created", created),
	)
	return nil
}

func (s *scanner) publishAlert(ctx context.Context, eq models.VerificationEquipment, bucket string, days int, now time.Time) error {
	payload, err := json.Marshal(map[string]any{
		"equipment_id":           eq.EquipmentID,
		"name":                   eq.Name,
		"serial_number":          eq.SerialNumber,
		"bucket":                 bucket,
		"days_until_expiry":      days,
		"next_verification_date": eq.NextVerificationDate,
	})
	if err != nil {
		return err
	}
	env := events.Envelope{
		EventID:       uuid.New(),
		OccurredAt:    now,
		AggregateType: events.AggregateVerificationEquipment,
		AggregateID:   eq.EquipmentID.String(),
		EventType:     "verification.expiry_alert",
		Payload:       payload,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = s.outbox.Insert(ctx, s.pool, models.OutboxEvent{
		EventID:       env.EventID,
		AggregateType: env.AggregateType,
		AggregateID:   env.AggregateID,
		Topic:         events.TopicVerificationAlerts,
		Payload:       body,
	})
	return err
}

func main() {
	cfg, problems := config.Load("expiry-scanner", 8084)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		problems = append(problems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}
	if cfg.RedisAddr == "" {
		problems = append(problems, config.Problem{Field: "REDIS_ADDR", Message: "REDIS_ADDR is required"})
	}
	if cfg.AsynqRedisAddr == "" {
		problems = append(problems, config.Problem{Field: "ASYNQ_REDIS_ADDR", Message: "ASYNQ_REDIS_ADDR is required"})
	}
	if len(problems) > 0 {
		logger.Error(context.Background(), "config_invalid", "invalid config",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.Any("problems", problems),
		)
		os.Exit(1)
	}

	dbPool, err := dbx.NewPool(cfg)
	if err != nil {
		logger.Error(context.Background(), "db_init_failed", "db init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer dbPool.Close()

	cache, err := cachex.New(cfg)
	if err != nil {
		logger.Error(context.Background(), "redis_init_failed", "redis init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer cache.Close()

	outboxRepo := repos.NewOutboxRepo(dbPool)
	sc := &scanner{
		cfg:       cfg,
		logger:    logger,
		pool:      dbPool,
		equipment: repos.NewVerificationRepo(dbPool, outboxRepo),
		alerts:    repos.NewAlertsRepo(dbPool),
		outbox:    outboxRepo,
		cache:     cache,
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.AsynqRedisAddr,
		Password: cfg.AsynqRedisPass,
		DB:       cfg.AsynqRedisDB,
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues: map[string]int{
			cfg.AsynqQueue: 1,
		},
	})
	defer server.Shutdown()

	mux := asynq.NewServeMux()
	mux.HandleFunc(taskExpiryScan, func(ctx context.Context, t *asynq.Task) error {
		metricsx.IncExpiryScanRun()
		if err := sc.run(ctx); err != nil {
			metricsx.IncExpiryScanFailure()
			logger.Error(ctx, "scan_failed", "expiry scan failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			return err
		}
		return nil
	})

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC})
	defer scheduler.Shutdown()
	if _, err := scheduler.Register("@every "+strconv.Itoa(cfg.ExpiryScanSec)+"s", asynq.NewTask(taskExpiryScan, nil, asynq.Queue(cfg.AsynqQueue))); err != nil {
		logger.Error(context.Background(), "scheduler_init_failed", "scheduler init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		logger.Error(context.Background(), "scheduler_start_failed", "scheduler start failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "scanner_start", "expiry scanner started",
			slog.Int("scan_interval_sec", cfg.ExpiryScanSec),
			slog.String("queue", cfg.AsynqQueue),
		)
		errCh <- server.Run(mux)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, asynq.ErrServerClosed) {
			logger.Error(context.Background(), "scanner_failed", "scanner failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	logger.Info(context.Background(), "scanner_stop", "expiry scanner stopped")
}
