package config

import (
	"testing"
	"time"
)

func TestLoadPanelConfigDefaults(t *testing.T) {
	cfg, err := LoadPanelConfig()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.Role != RoleDriver || cfg.HistoryLimit != 50 || cfg.HistoryPage != 1 || cfg.RidesLimit != 10 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.WSURL != "ws://localhost:8080/api/v1/ws" {
		t.Fatalf("unexpected ws url %q", cfg.WSURL)
	}
}

func TestLoadPanelConfigFromEnv(t *testing.T) {
	t.Setenv("PANEL_ROLE", "Rider")
	t.Setenv("WS_RECONNECT_MAX", "1m")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("RIDER_REFRESH_ON_EVENT", "false")

	cfg, err := LoadPanelConfig()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.Role != RoleRider || cfg.ReconnectMax != time.Minute || cfg.RiderRefreshOnEvent {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
}

func TestLoadPanelConfigCollectsErrors(t *testing.T) {
	t.Setenv("PANEL_ROLE", "admin")
	t.Setenv("HISTORY_LIMIT", "lots")
	t.Setenv("COMMAND_TIMEOUT", "soon")

	if _, err := LoadPanelConfig(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadConsumerConfigRequiresDSN(t *testing.T) {
	t.Setenv("PG_DSN", "")
	if _, err := LoadConsumerConfig(); err == nil {
		t.Fatalf("expected error without PG_DSN")
	}
	t.Setenv("PG_DSN", "postgres://localhost/x")
	cfg, err := LoadConsumerConfig()
	if err != nil || cfg.KafkaGroup != "ride-sync-mirror" {
		t.Fatalf("unexpected: %+v %v", cfg, err)
	}
}
