package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-sync/internal/config"
	"github.com/example/ride-sync/internal/ingest"
	"github.com/example/ride-sync/internal/logging"
	"github.com/example/ride-sync/internal/models"
	"github.com/example/ride-sync/internal/storage"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total tapped notifications consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	mirrorWrites = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_mirror_writes_total",
		Help: "Total events written to the history mirror",
	})
	mirrorErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_mirror_errors_total",
		Help: "Total history mirror write failures",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, mirrorWrites, mirrorErrors)
}

func main() {
	cfg, err := config.LoadConsumerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel, "consumer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mirror, err := storage.NewPostgresMirror(cfg.PGDSN)
	if err != nil {
		logger.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	if err := mirror.Migrate(ctx); err != nil {
		logger.Error("mirror migration failed", "error", err)
		os.Exit(1)
	}

	// start metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := mirror.Ping(r.Context()); err != nil {
				http.Error(w, "postgres not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroup, MinBytes: 1, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = mirror.Close()
	}()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		// reset backoff on success
		backoff = time.Second

		msgsConsumed.Inc()

		var rec ingest.Record
		if err := json.Unmarshal(m.Value, &rec); err != nil || rec.ID == "" || rec.Notification.Kind == "" {
			msgsInvalid.Inc()
			logger.Warn("invalid message", "offset", m.Offset, "error", err)
			continue
		}

		if err := writeWithRetry(ctx, mirror, rec, 3, 200*time.Millisecond); err != nil {
			mirrorErrors.Inc()
			logger.Error("mirror write failed", "id", rec.ID, "kind", rec.Notification.Kind, "error", err)
			continue
		}
		mirrorWrites.Inc()
	}
}

// MirrorWriter is the part of the history mirror the consumer writes to.
type MirrorWriter interface {
	Append(ctx context.Context, s storage.Subject, ev models.PersistedEvent) error
}

// writeWithRetry files rec under each of its subjects, retrying each write
// with doubling delay. Records without a subject are skipped.
func writeWithRetry(ctx context.Context, w MirrorWriter, rec ingest.Record, attempts int, delay time.Duration) error {
	ev := rec.Event()
	for _, subj := range rec.Subjects() {
		d := delay
		for i := 0; i < attempts; i++ {
			err := w.Append(ctx, subj, ev)
			if err == nil {
				break
			}
			if i == attempts-1 {
				return fmt.Errorf("append %s/%s: %w", subj.Type, subj.ID, err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
			d *= 2
		}
	}
	return nil
}
