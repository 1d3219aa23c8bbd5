package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Config struct {
	Env              string
	ServiceName      string
	HTTPPort         int
	LogLevel         string
	ConfigPath       string
	RequestTimeoutMS int
	RequestTimeout   time.Duration

	OIDCIssuer      string
	OIDCAudience    string
	OIDCJWKSURL     string
	JWKSTTLSeconds  int
	JWTClockSkewSec int

	DatabaseURL      string
	DBMaxConns       int
	DBMinConns       int
	DBConnMaxIdleSec int
	DBConnMaxLifeSec int

	AuditEnabled bool

	KafkaBrokers  []string
	KafkaClientID string
	KafkaGroupID  string
	KafkaRetryMax int
	KafkaWriteMS  int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AsynqRedisAddr   string
	AsynqRedisPass   string
	AsynqRedisDB     int
	AsynqQueue       string
	AsynqConcurrency int

	OutboxScanSec     int
	OutboxBatchSize   int
	OutboxMaxAttempts int

	InfluxURL       string
	InfluxToken     string
	InfluxOrg       string
	InfluxBucket    string
	InfluxTimeoutMS int

	WeatherServiceURL string
	WeatherTimeoutMS  int
	WeatherRetryMax   int
	WeatherEnabled    bool

	ExpiryScanSec    int
	ScanLockTTLSec   int
	StatsCacheTTLSec int
	ScanFileMaxMB    int

	SimTickMS int

	OtelEnabled     bool
	OtelEndpoint    string
	OtelInsecure    bool
	OtelSampleRatio float64
}

// field describes one configurable knob: its key (env var name and config
// file key are the same string) and how to apply a raw value to Config.
type field struct {
	key   string
	apply func(cfg *Config, raw any, problems *[]Problem)
}

func Load(serviceNameDefault string, httpPortDefault int) (Config, []Problem) {
	envRaw := strings.TrimSpace(os.Getenv("ENV"))
	cfg := Config{
		Env:               envRaw,
		ServiceName:       serviceNameDefault,
		HTTPPort:          httpPortDefault,
		LogLevel:          "info",
		ConfigPath:        strings.TrimSpace(os.Getenv("CONFIG_PATH")),
		RequestTimeoutMS:  30000,
		JWKSTTLSeconds:    300,
		JWTClockSkewSec:   60,
		DBMaxConns:        10,
		DBMinConns:        1,
		DBConnMaxIdleSec:  300,
		DBConnMaxLifeSec:  1800,
		KafkaRetryMax:     5,
		KafkaWriteMS:      5000,
		AsynqQueue:        "default",
		AsynqConcurrency:  10,
		OutboxScanSec:     5,
		OutboxBatchSize:   50,
		OutboxMaxAttempts: 20,
		InfluxTimeoutMS:   5000,
		WeatherTimeoutMS:  3000,
		WeatherRetryMax:   2,
		ExpiryScanSec:     300,
		ScanLockTTLSec:    60,
		StatsCacheTTLSec:  60,
		ScanFileMaxMB:     10,
		SimTickMS:         2000,
		OtelInsecure:      true,
		OtelSampleRatio:   1.0,
	}

	problems := make([]Problem, 0, 4)
	envProvided := envRaw != ""

	if repoRoot, ok := findRepoRoot(); ok && cfg.Env != "" && cfg.ConfigPath == "" {
		cfg.ConfigPath = filepath.Join(repoRoot, "configs", cfg.Env+".json")
	}

	if fileData, fileProblems, ok := loadConfigFile(cfg.ConfigPath, strings.TrimSpace(os.Getenv("CONFIG_PATH")) != ""); ok {
		problems = append(problems, fileProblems...)
		for k, v := range fileData {
			if strings.EqualFold(strings.TrimSpace(k), "ENV") {
				if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
					envProvided = true
				}
			}
		}
		applyMap(&cfg, fileData, &problems)
	} else {
		problems = append(problems, fileProblems...)
	}

	applyEnv(&cfg, &problems)

	if cfg.OIDCIssuer != "" && strings.TrimSpace(cfg.OIDCJWKSURL) == "" {
		cfg.OIDCJWKSURL = strings.TrimRight(cfg.OIDCIssuer, "/") + "/.well-known/jwks.json"
	}

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if !envProvided {
		problems = append(problems, Problem{Field: "ENV", Message: "ENV is required"})
	}

	clampInt(&cfg.HTTPPort, httpPortDefault, "HTTP_PORT", "HTTP_PORT must be 1-65535", &problems, func(v int) bool { return v > 0 && v <= 65535 })
	clampInt(&cfg.RequestTimeoutMS, 30000, "REQUEST_TIMEOUT_MS", "REQUEST_TIMEOUT_MS must be > 0", &problems, positive)
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
	clampInt(&cfg.JWKSTTLSeconds, 300, "JWKS_CACHE_TTL_SECONDS", "JWKS_CACHE_TTL_SECONDS must be > 0", &problems, positive)
	clampInt(&cfg.JWTClockSkewSec, 60, "JWT_CLOCK_SKEW_SECONDS", "JWT_CLOCK_SKEW_SECONDS must be >= 0", &problems, nonNegative)
	clampInt(&cfg.DBMaxConns, 10, "DB_MAX_CONNS", "DB_MAX_CONNS must be > 0", &problems, positive)
	clampInt(&cfg.DBMinConns, 1, "DB_MIN_CONNS", "DB_MIN_CONNS must be >= 0", &problems, nonNegative)
	if cfg.DBMinConns > cfg.DBMaxConns {
		problems = append(problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be <= DB_MAX_CONNS"})
		cfg.DBMinConns = cfg.DBMaxConns
	}
	clampInt(&cfg.DBConnMaxIdleSec, 300, "DB_CONN_MAX_IDLE_SECONDS", "DB_CONN_MAX_IDLE_SECONDS must be > 0", &problems, positive)
	clampInt(&cfg.DBConnMaxLifeSec, 1800, "DB_CONN_MAX_LIFETIME_SECONDS", "DB_CONN_MAX_LIFETIME_SECONDS must be > 0", &problems, positive)
	clampInt(&cfg.KafkaRetryMax, 5, "KAFKA_RETRY_MAX", "KAFKA_RETRY_MAX must be >= 0", &problems, nonNegative)
	clampInt(&cfg.KafkaWriteMS, 5000, "KAFKA_WRITE_TIMEOUT_MS", "KAFKA_WRITE_TIMEOUT_MS must be > 0", &problems, positive)
	clampInt(&cfg.RedisDB, 0, "REDIS_DB", "REDIS_DB must be >= 0", &problems, nonNegative)
	clampInt(&cfg.AsynqRedisDB, 0, "ASYNQ_REDIS_DB", "ASYNQ_REDIS_DB must be >= 0", &problems, nonNegative)
	clampInt(&cfg.AsynqConcurrency, 10, "ASYNQ_CONCURRENCY", "ASYNQ_CONCURRENCY must be > 0", &problems, positive)
	clampInt(&cfg.OutboxScanSec, 5, "OUTBOX_SCAN_INTERVAL_SECONDS", "OUTBOX_SCAN_INTERVAL_SECONDS must be > 0", &problems, positive)
	clampInt(&cfg.OutboxBatchSize, 50, "OUTBOX_BATCH_SIZE", "OUTBOX_BATCH_SIZE must be > 0", &problems, positive)
	clampInt(&cfg.OutboxMaxAttempts, 20, "OUTBOX_MAX_ATTEMPTS", "OUTBOX_MAX_ATTEMPTS must be > 0", &problems, positive)
	clampInt(&cfg.InfluxTimeoutMS, 5000, "INFLUX_TIMEOUT_MS", "INFLUX_TIMEOUT_MS must be > 0", &problems, positive)
	clampInt(&cfg.WeatherTimeoutMS, 3000, "WEATHER_TIMEOUT_MS", "WEATHER_TIMEOUT_MS must be > 0", &problems, positive)
	clampInt(&cfg.WeatherRetryMax, 2, "WEATHER_RETRY_MAX", "WEATHER_RETRY_MAX must be >= 0", &problems, nonNegative)
	clampInt(&cfg.ExpiryScanSec, 300, "EXPIRY_SCAN_INTERVAL_SECONDS", "EXPIRY_SCAN_INTERVAL_SECONDS must be > 0", &problems, positive)
	clampInt(&cfg.ScanLockTTLSec, 60, "SCAN_LOCK_TTL_SECONDS", "SCAN_LOCK_TTL_SECONDS must be > 0", &problems, positive)
	clampInt(&cfg.StatsCacheTTLSec, 60, "STATS_CACHE_TTL_SECONDS", "STATS_CACHE_TTL_SECONDS must be > 0", &problems, positive)
	clampInt(&cfg.ScanFileMaxMB, 10, "SCAN_FILE_MAX_MB", "SCAN_FILE_MAX_MB must be > 0", &problems, positive)
	clampInt(&cfg.SimTickMS, 2000, "SIM_TICK_MS", "SIM_TICK_MS must be > 0", &problems, positive)
	if cfg.OtelSampleRatio < 0 || cfg.OtelSampleRatio > 1 {
		problems = append(problems, Problem{Field: "OTEL_SAMPLE_RATIO", Message: "OTEL_SAMPLE_RATIO must be 0-1"})
		cfg.OtelSampleRatio = 1.0
	}

	return cfg, problems
}

func positive(v int) bool    { return v > 0 }
func nonNegative(v int) bool { return v >= 0 }

func clampInt(dst *int, fallback int, key string, msg string, problems *[]Problem, ok func(int) bool) {
	if !ok(*dst) {
		*problems = append(*problems, Problem{Field: key, Message: msg})
		*dst = fallback
	}
}

func fields() []field {
	return []field{
		strField("ENV", func(c *Config, v string) { c.Env = v }),
		strField("SERVICE_NAME", func(c *Config, v string) { c.ServiceName = v }),
		intField("HTTP_PORT", func(c *Config, v int) { c.HTTPPort = v }),
		strField("LOG_LEVEL", func(c *Config, v string) { c.LogLevel = v }),
		intField("REQUEST_TIMEOUT_MS", func(c *Config, v int) { c.RequestTimeoutMS = v }),
		strField("OIDC_ISSUER", func(c *Config, v string) { c.OIDCIssuer = v }),
		strField("OIDC_AUDIENCE", func(c *Config, v string) { c.OIDCAudience = v }),
		strField("OIDC_JWKS_URL", func(c *Config, v string) { c.OIDCJWKSURL = v }),
		intField("JWKS_CACHE_TTL_SECONDS", func(c *Config, v int) { c.JWKSTTLSeconds = v }),
		intField("JWT_CLOCK_SKEW_SECONDS", func(c *Config, v int) { c.JWTClockSkewSec = v }),
		strField("DATABASE_URL", func(c *Config, v string) { c.DatabaseURL = v }),
		intField("DB_MAX_CONNS", func(c *Config, v int) { c.DBMaxConns = v }),
		intField("DB_MIN_CONNS", func(c *Config, v int) { c.DBMinConns = v }),
		intField("DB_CONN_MAX_IDLE_SECONDS", func(c *Config, v int) { c.DBConnMaxIdleSec = v }),
		intField("DB_CONN_MAX_LIFETIME_SECONDS", func(c *Config, v int) { c.DBConnMaxLifeSec = v }),
		boolField("AUDIT_ENABLED", func(c *Config, v bool) { c.AuditEnabled = v }),
		csvField("KAFKA_BROKERS", func(c *Config, v []string) { c.KafkaBrokers = v }),
		strField("KAFKA_CLIENT_ID", func(c *Config, v string) { c.KafkaClientID = v }),
		strField("KAFKA_CONSUMER_GROUP", func(c *Config, v string) { c.KafkaGroupID = v }),
		intField("KAFKA_RETRY_MAX", func(c *Config, v int) { c.KafkaRetryMax = v }),
		intField("KAFKA_WRITE_TIMEOUT_MS", func(c *Config, v int) { c.KafkaWriteMS = v }),
		strField("REDIS_ADDR", func(c *Config, v string) { c.RedisAddr = v }),
		rawStrField("REDIS_PASSWORD", func(c *Config, v string) { c.RedisPassword = v }),
		intField("REDIS_DB", func(c *Config, v int) { c.RedisDB = v }),
		strField("ASYNQ_REDIS_ADDR", func(c *Config, v string) { c.AsynqRedisAddr = v }),
		rawStrField("ASYNQ_REDIS_PASSWORD", func(c *Config, v string) { c.AsynqRedisPass = v }),
		intField("ASYNQ_REDIS_DB", func(c *Config, v int) { c.AsynqRedisDB = v }),
		strField("ASYNQ_QUEUE", func(c *Config, v string) { c.AsynqQueue = v }),
		intField("ASYNQ_CONCURRENCY", func(c *Config, v int) { c.AsynqConcurrency = v }),
		intField("OUTBOX_SCAN_INTERVAL_SECONDS", func(c *Config, v int) { c.OutboxScanSec = v }),
		intField("OUTBOX_BATCH_SIZE", func(c *Config, v int) { c.OutboxBatchSize = v }),
		intField("OUTBOX_MAX_ATTEMPTS", func(c *Config, v int) { c.OutboxMaxAttempts = v }),
		strField("INFLUX_URL", func(c *Config, v string) { c.InfluxURL = v }),
		rawStrField("INFLUX_TOKEN", func(c *Config, v string) { c.InfluxToken = v }),
		strField("INFLUX_ORG", func(c *Config, v string) { c.InfluxOrg = v }),
		strField("INFLUX_BUCKET", func(c *Config, v string) { c.InfluxBucket = v }),
		intField("INFLUX_TIMEOUT_MS", func(c *Config, v int) { c.InfluxTimeoutMS = v }),
		strField("WEATHER_SERVICE_URL", func(c *Config, v string) { c.WeatherServiceURL = v }),
		intField("WEATHER_TIMEOUT_MS", func(c *Config, v int) { c.WeatherTimeoutMS = v }),
		intField("WEATHER_RETRY_MAX", func(c *Config, v int) { c.WeatherRetryMax = v }),
		boolField("WEATHER_ENABLED", func(c *Config, v bool) { c.WeatherEnabled = v }),
		intField("EXPIRY_SCAN_INTERVAL_SECONDS", func(c *Config, v int) { c.ExpiryScanSec = v }),
		intField("SCAN_LOCK_TTL_SECONDS", func(c *Config, v int) { c.ScanLockTTLSec = v }),
		intField("STATS_CACHE_TTL_SECONDS", func(c *Config, v int) { c.StatsCacheTTLSec = v }),
		intField("SCAN_FILE_MAX_MB", func(c *Config, v int) { c.ScanFileMaxMB = v }),
		intField("SIM_TICK_MS", func(c *Config, v int) { c.SimTickMS = v }),
		boolField("OTEL_ENABLED", func(c *Config, v bool) { c.OtelEnabled = v }),
		strField("OTEL_EXPORTER_OTLP_ENDPOINT", func(c *Config, v string) { c.OtelEndpoint = v }),
		boolField("OTEL_EXPORTER_OTLP_INSECURE", func(c *Config, v bool) { c.OtelInsecure = v }),
		floatField("OTEL_SAMPLE_RATIO", func(c *Config, v float64) { c.OtelSampleRatio = v }),
	}
}

func strField(key string, set func(*Config, string)) field {
	return field{key: key, apply: func(cfg *Config, raw any, problems *[]Problem) {
		if s, ok := raw.(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				set(cfg, trimmed)
			}
		}
	}}
}

// rawStrField keeps the value verbatim; passwords and tokens may contain
// significant whitespace.
func rawStrField(key string, set func(*Config, string)) field {
	return field{key: key, apply: func(cfg *Config, raw any, problems *[]Problem) {
		if s, ok := raw.(string); ok && s != "" {
			set(cfg, s)
		}
	}}
}

func intField(key string, set func(*Config, int)) field {
	return field{key: key, apply: func(cfg *Config, raw any, problems *[]Problem) {
		if n, ok := asInt(raw); ok {
			set(cfg, n)
		} else {
			*problems = append(*problems, Problem{Field: key, Message: key + " must be an integer"})
		}
	}}
}

func boolField(key string, set func(*Config, bool)) field {
	return field{key: key, apply: func(cfg *Config, raw any, problems *[]Problem) {
		if b, ok := asBool(raw); ok {
			set(cfg, b)
		} else {
			*problems = append(*problems, Problem{Field: key, Message: key + " must be a boolean"})
		}
	}}
}

func floatField(key string, set func(*Config, float64)) field {
	return field{key: key, apply: func(cfg *Config, raw any, problems *[]Problem) {
		if f, ok := asFloat(raw); ok {
			set(cfg, f)
		} else {
			*problems = append(*problems, Problem{Field: key, Message: key + " must be a number"})
		}
	}}
}

func csvField(key string, set func(*Config, []string)) field {
	return field{key: key, apply: func(cfg *Config, raw any, problems *[]Problem) {
		switch t := raw.(type) {
		case string:
			set(cfg, parseCSV(t))
		case []any:
			set(cfg, parseAnyCSV(t))
		}
	}}
}

func applyEnv(cfg *Config, problems *[]Problem) {
	for _, f := range fields() {
		v := strings.TrimSpace(os.Getenv(f.key))
		if f.key == "HTTP_PORT" && v == "" {
			v = strings.TrimSpace(os.Getenv("PORT"))
		}
		if v == "" {
			continue
		}
		f.apply(cfg, v, problems)
	}
}

func applyMap(cfg *Config, raw map[string]any, problems *[]Problem) {
	byKey := make(map[string]field, len(raw))
	for _, f := range fields() {
		byKey[f.key] = f
	}
	for k, v := range raw {
		f, ok := byKey[strings.ToUpper(strings.TrimSpace(k))]
		if !ok {
			continue
		}
		f.apply(cfg, v, problems)
	}
}

func findRepoRoot() (string, bool) {
	start, err := os.Getwd()
	if err != nil {
		return "", false
	}
	dir := start
	for i := 0; i < 8; i++ {
		candidate := filepath.Join(dir, "configs")
		if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func loadConfigFile(path string, explicit bool) (map[string]any, []Problem, bool) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, false
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if explicit && !errors.Is(err, os.ErrNotExist) {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("failed to read config file: %v", err)}}, false
		}
		if explicit && errors.Is(err, os.ErrNotExist) {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: "config file not found"}}, false
		}
		return nil, nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("invalid json: %v", err)}}, false
	}
	return raw, nil, true
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		return i, err == nil
	default:
		return 0, false
	}
}

func asBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "y":
			return true, true
		case "false", "0", "no", "n":
			return false, true
		}
	}
	return false, false
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseAnyCSV(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
