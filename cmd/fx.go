package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/boredhf/conexus/internal/config"
	"github.com/boredhf/conexus/internal/eventservice"
	"github.com/boredhf/conexus/internal/messaging"
	"github.com/boredhf/conexus/internal/metrics"
	"github.com/boredhf/conexus/internal/transport"
)

// ProvideLogger builds the process-wide structured logger.
func ProvideLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

// ProvideTransport selects the AMQP transport when cfg.AMQPURI is set,
// falling back to an in-process transport otherwise (single-node runs,
// local development).
func ProvideTransport(cfg config.Config, log *slog.Logger) transport.Transport {
	if cfg.AMQPURI != "" {
		return transport.NewAMQPTransport(log, cfg.AMQPURI, cfg.KVCapacity, cfg.KVDefaultTTL)
	}
	return transport.NewInProcessTransport(log, cfg.KVCapacity, cfg.KVDefaultTTL)
}

// ProvideMetrics constructs the single Metrics instance shared by the
// messaging and event-service layers, so a snapshot and the scraped
// Prometheus view describe the same fabric.
func ProvideMetrics() *metrics.Metrics {
	return metrics.New()
}

// ProvideMessaging constructs the messaging service bound to cfg.NodeID.
func ProvideMessaging(cfg config.Config, t transport.Transport, m *metrics.Metrics, log *slog.Logger) *messaging.Service {
	return messaging.New(cfg.NodeID, t, m, log)
}

// ProvideEventService constructs the cross-server event service atop
// the messaging service.
func ProvideEventService(cfg config.Config, msg *messaging.Service, m *metrics.Metrics, log *slog.Logger) *eventservice.Service {
	return eventservice.New(cfg.NodeID, cfg, msg, m, log)
}

// NewApp wires the fabric together and registers its startup/shutdown
// order as fx lifecycle hooks: the transport connects first, then
// messaging subscribes its channels, then the event service installs
// its network handler; shutdown runs in the reverse order. The metrics
// HTTP server starts independently once its collectors are registered.
func NewApp(cfg config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() config.Config { return cfg },
			ProvideLogger,
			ProvideTransport,
			ProvideMetrics,
			ProvideMessaging,
			ProvideEventService,
		),
		fx.Invoke(registerLifecycle, registerMetricsServer),
		fx.NopLogger,
	)
}

func registerLifecycle(lc fx.Lifecycle, t transport.Transport, m *messaging.Service, es *eventservice.Service, log *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := t.Connect(ctx); err != nil {
				return err
			}
			if err := m.Initialize(ctx); err != nil {
				return err
			}
			if err := es.Initialize(ctx); err != nil {
				return err
			}
			log.Info("event fabric started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := es.Shutdown(ctx); err != nil {
				log.Error("event service shutdown error", "error", err)
			}
			if err := m.Shutdown(ctx); err != nil {
				log.Error("messaging shutdown error", "error", err)
			}
			if err := t.Disconnect(ctx); err != nil {
				log.Error("transport disconnect error", "error", err)
			}
			log.Info("event fabric stopped")
			return nil
		},
	})
}

// registerMetricsServer registers m's Prometheus collectors with a
// dedicated registry and serves them at cfg.MetricsAddr. An empty
// MetricsAddr disables the server entirely.
func registerMetricsServer(lc fx.Lifecycle, cfg config.Config, m *metrics.Metrics, log *slog.Logger) {
	if cfg.MetricsAddr == "" {
		return
	}

	registry := prometheus.NewRegistry()
	for _, c := range m.Collectors() {
		registry.MustRegister(c)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: mux,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics server error", "error", err)
				}
			}()
			log.Info("metrics server started", "addr", cfg.MetricsAddr)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}
