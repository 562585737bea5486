package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	RoleDriver = "driver"
	RoleRider  = "rider"
)

// PanelConfig captures all tunable parameters of the panel process.
// Values are loaded from environment variables with defaults that match a
// backend running on localhost.
type PanelConfig struct {
	Role string

	APIBaseURL     string
	WSURL          string
	CommandTimeout time.Duration

	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	ReconnectMin time.Duration
	ReconnectMax time.Duration

	HistoryPage         int
	HistoryLimit        int
	RidesLimit          int
	RiderRefreshOnEvent bool

	RedisAddr        string
	RedisPassword    string
	SessionKeyPrefix string
	SessionTTL       time.Duration

	PGDSN string

	KafkaBrokers []string
	KafkaTopic   string

	SeedToken    string
	SeedUserID   string
	SeedIsDriver bool

	DriverLat float64
	DriverLon float64

	LogLevel string
}

func defaultPanelConfig() PanelConfig {
	return PanelConfig{
		Role:                RoleDriver,
		APIBaseURL:          "http://localhost:8080/api/v1",
		WSURL:               "ws://localhost:8080/api/v1/ws",
		CommandTimeout:      10 * time.Second,
		HTTPAddr:            ":8090",
		ReadTimeout:         5 * time.Second,
		WriteTimeout:        10 * time.Second,
		IdleTimeout:         120 * time.Second,
		ShutdownTimeout:     15 * time.Second,
		ReconnectMin:        time.Second,
		ReconnectMax:        30 * time.Second,
		HistoryPage:         1,
		HistoryLimit:        50,
		RidesLimit:          10,
		RiderRefreshOnEvent: true,
		SessionKeyPrefix:    "ride-sync:",
		KafkaTopic:          "ride-notifications",
		DriverLat:           12.9716,
		DriverLon:           77.5946,
		LogLevel:            "info",
	}
}

func LoadPanelConfig() (PanelConfig, error) {
	cfg := defaultPanelConfig()
	var errs []error

	if v := os.Getenv("PANEL_ROLE"); v != "" {
		cfg.Role = strings.ToLower(strings.TrimSpace(v))
	}

	setStringFromEnv(&cfg.APIBaseURL, "API_BASE_URL")
	setStringFromEnv(&cfg.WSURL, "WS_URL")
	setDurationFromEnv(&cfg.CommandTimeout, "COMMAND_TIMEOUT", &errs)

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	setDurationFromEnv(&cfg.ReconnectMin, "WS_RECONNECT_MIN", &errs)
	setDurationFromEnv(&cfg.ReconnectMax, "WS_RECONNECT_MAX", &errs)

	setIntFromEnv(&cfg.HistoryPage, "HISTORY_PAGE", &errs)
	setIntFromEnv(&cfg.HistoryLimit, "HISTORY_LIMIT", &errs)
	setIntFromEnv(&cfg.RidesLimit, "RIDES_LIMIT", &errs)
	setBoolFromEnv(&cfg.RiderRefreshOnEvent, "RIDER_REFRESH_ON_EVENT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.SessionKeyPrefix, "SESSION_KEY_PREFIX")
	setDurationFromEnv(&cfg.SessionTTL, "SESSION_TTL", &errs)

	cfg.PGDSN = os.Getenv("PG_DSN")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.SeedToken = strings.TrimSpace(os.Getenv("SESSION_TOKEN"))
	cfg.SeedUserID = strings.TrimSpace(os.Getenv("SESSION_USER_ID"))
	setBoolFromEnv(&cfg.SeedIsDriver, "SESSION_IS_DRIVER", &errs)

	setFloatFromEnv(&cfg.DriverLat, "DRIVER_LAT", &errs)
	setFloatFromEnv(&cfg.DriverLon, "DRIVER_LON", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.Role != RoleDriver && cfg.Role != RoleRider {
		errs = append(errs, fmt.Errorf("PANEL_ROLE must be %q or %q, got %q", RoleDriver, RoleRider, cfg.Role))
	}
	if cfg.HistoryPage <= 0 || cfg.HistoryLimit <= 0 || cfg.RidesLimit <= 0 {
		errs = append(errs, fmt.Errorf("HISTORY_PAGE, HISTORY_LIMIT and RIDES_LIMIT must be > 0"))
	}
	if cfg.ReconnectMin <= 0 || cfg.ReconnectMax < cfg.ReconnectMin {
		errs = append(errs, fmt.Errorf("WS_RECONNECT_MIN must be > 0 and <= WS_RECONNECT_MAX"))
	}

	return cfg, errors.Join(errs...)
}

// ConsumerConfig configures the tap consumer that fills the history mirror.
type ConsumerConfig struct {
	MetricsAddr  string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string
	PGDSN        string
	LogLevel     string
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := ConsumerConfig{
		MetricsAddr:  ":2112",
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "ride-notifications",
		KafkaGroup:   "ride-sync-mirror",
		LogLevel:     "info",
	}
	var errs []error

	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	cfg.PGDSN = os.Getenv("PG_DSN")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.PGDSN == "" {
		errs = append(errs, fmt.Errorf("PG_DSN is required"))
	}
	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS must list at least one broker"))
	}
	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setBoolFromEnv(target *bool, key string, errs *[]error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = b
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
