// Package app assembles the dispatch service from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/scraphaul/dispatch/api"
	"github.com/scraphaul/dispatch/config"
	"github.com/scraphaul/dispatch/core/dispatch"
	"github.com/scraphaul/dispatch/core/dispatch/audit"
	coremetrics "github.com/scraphaul/dispatch/core/metrics"
	corestore "github.com/scraphaul/dispatch/core/store"
	"github.com/scraphaul/dispatch/infra/directory"
	"github.com/scraphaul/dispatch/infra/logger"
	"github.com/scraphaul/dispatch/infra/metrics"
	"github.com/scraphaul/dispatch/infra/notify"
	infrastore "github.com/scraphaul/dispatch/infra/store"
	"github.com/scraphaul/dispatch/internal/eventbus"
)

// Service orchestrates the dispatch engine, the reconciliation sweep and the
// HTTP surface.
type Service struct {
	Coordinator *dispatch.Coordinator
	Arbiter     *dispatch.Arbiter
	Sweep       *dispatch.Sweep

	cfg     *config.Config
	handler *api.Handler
	trail   audit.LogStore
	bus     eventbus.EventBus
	log     logger.Logger
	closers []func() error
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	svc := &Service{cfg: cfg, log: logg}

	store, ledger, vendorDir, err := svc.buildStorage(cfg)
	if err != nil {
		return nil, err
	}

	var sinks []coremetrics.MetricsSink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.Metrics))
	}
	var sink coremetrics.MetricsSink
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	bus := eventbus.New()
	svc.bus = bus
	notifier := notify.NewHTTPNotifier(cfg.Notifier)

	coord, err := dispatch.NewCoordinator(store, ledger, vendorDir, notifier, cfg.Dispatch.OfferWindow(), sink, bus, logg)
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}
	if tuner := dispatch.NewQuantileTuner(cfg.Dispatch.Tuner); tuner != nil {
		coord.SetTuner(tuner)
	}
	if trail, err := buildAuditStore(cfg.Audit); err != nil {
		return nil, err
	} else if trail != nil {
		coord.SetAuditStore(trail)
		svc.trail = trail
	}

	arb, err := dispatch.NewArbiter(store, ledger, coord, bus, logg)
	if err != nil {
		return nil, fmt.Errorf("arbiter: %w", err)
	}
	sweep, err := dispatch.NewSweep(store, coord, cfg.Dispatch.SweepInterval(), logg)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}

	svc.Coordinator = coord
	svc.Arbiter = arb
	svc.Sweep = sweep
	svc.handler = api.NewHandler(store, coord, arb)
	return svc, nil
}

func (s *Service) buildStorage(cfg *config.Config) (corestore.PickupStore, corestore.RejectionLedger, corestore.VendorDirectory, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		st, err := infrastore.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("sqlite store: %w", err)
		}
		s.closers = append(s.closers, st.Close)
		dir, err := s.buildDirectory(cfg, st)
		if err != nil {
			return nil, nil, nil, err
		}
		return st, st, dir, nil
	default:
		st := infrastore.NewMemoryStore()
		dir, err := s.buildDirectory(cfg, nil)
		if err != nil {
			return nil, nil, nil, err
		}
		return st, st, dir, nil
	}
}

func (s *Service) buildDirectory(cfg *config.Config, sqlite *infrastore.SQLiteStore) (corestore.VendorDirectory, error) {
	switch cfg.Directory.Mode {
	case "mqtt":
		dir, err := directory.NewPahoDirectory(cfg.Directory.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt directory: %w", err)
		}
		s.closers = append(s.closers, func() error { dir.Close(); return nil })
		return dir, nil
	case "store":
		if sqlite == nil {
			return nil, fmt.Errorf("directory: store mode requires the sqlite backend")
		}
		return sqlite, nil
	default:
		return directory.NewStaticDirectory(cfg.Directory.Vendors...), nil
	}
}

func buildAuditStore(cfg config.AuditConfig) (audit.LogStore, error) {
	switch cfg.Backend {
	case "jsonl":
		return audit.NewJSONLStore(cfg.Path)
	case "sqlite":
		return audit.NewSQLiteStore(cfg.Path)
	default:
		return nil, nil
	}
}

// Run starts the sweep, the metrics endpoint and the HTTP server, and blocks
// until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	go s.Sweep.Run(ctx)
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              s.cfg.API.Addr,
		Handler:           s.handler.Router(s.trail, s.cfg.API.LogsToken),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("http server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close releases the resources held by the service.
func (s *Service) Close() error {
	var firstErr error
	if err := s.Coordinator.Close(); err != nil {
		firstErr = err
	}
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
