package config

import "testing"

func TestParseCSV(t *testing.T) {
	got := parseCSV("a, b, ,c,,")
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestApplyMapOverridesDefaults(t *testing.T) {
	cfg := Config{HTTPPort: 8080, SimTickMS: 2000}
	var problems []Problem
	applyMap(&cfg, map[string]any{
		"http_port":   "9090",
		"SIM_TICK_MS": float64(500),
		"KAFKA_BROKERS": []any{"k1:9092", " ", "k2:9092"},
	}, &problems)
	if cfg.HTTPPort != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.HTTPPort)
	}
	if cfg.SimTickMS != 500 {
		t.Fatalf("expected tick 500, got %d", cfg.SimTickMS)
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Fatalf("expected 2 brokers, got %#v", cfg.KafkaBrokers)
	}
	if len(problems) != 0 {
		t.Fatalf("unexpected problems: %#v", problems)
	}
}

func TestApplyMapRejectsBadInt(t *testing.T) {
	cfg := Config{}
	var problems []Problem
	applyMap(&cfg, map[string]any{"DB_MAX_CONNS": "lots"}, &problems)
	if len(problems) != 1 {
		t.Fatalf("expected 1 problem, got %#v", problems)
	}
}
