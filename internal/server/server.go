/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/slotcast/internal/api"
	"github.com/friendsincode/slotcast/internal/cache"
	"github.com/friendsincode/slotcast/internal/clock"
	"github.com/friendsincode/slotcast/internal/config"
	"github.com/friendsincode/slotcast/internal/db"
	"github.com/friendsincode/slotcast/internal/eventbus"
	"github.com/friendsincode/slotcast/internal/events"
	"github.com/friendsincode/slotcast/internal/leadership"
	"github.com/friendsincode/slotcast/internal/models"
	"github.com/friendsincode/slotcast/internal/resolver"
	"github.com/friendsincode/slotcast/internal/scheduler"
	schedulerstate "github.com/friendsincode/slotcast/internal/scheduler/state"
	"github.com/friendsincode/slotcast/internal/source"
	"github.com/friendsincode/slotcast/internal/telemetry"
	"github.com/friendsincode/slotcast/internal/version"
)

// snapshotStoreTimeout bounds each Redis round trip made during a rebuild.
const snapshotStoreTimeout = 250 * time.Millisecond

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db                   *gorm.DB
	cache                *cache.Cache
	bus                  *events.Bus
	bridge               *eventbus.NATSBridge
	resolver             *api.Resolver
	history              *schedulerstate.Store
	scheduler            *scheduler.Service[models.Resource]
	leaderAwareScheduler *scheduler.LeaderAware
	api                  *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("slotcast-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Skip timeout for WebSocket connections
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(30 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout stays 0 for the events WebSocket; the middleware
		// timeout covers plain routes.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.cfg.ScheduleSource == config.SourceDatabase {
		database, err := db.Connect(s.cfg.DBBackend, s.cfg.DBDSN)
		if err != nil {
			return err
		}
		s.DeferClose(func() error { return db.Close(database) })
		if err := db.Migrate(database); err != nil {
			return err
		}
		s.db = database
	}

	loaded, err := source.Load(ctx, s.cfg, s.db, s.logger)
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}

	normalizer := clock.NewNormalizer(s.cfg.UTCOffset())
	opts := []resolver.Option{
		resolver.WithNormalizer(normalizer),
		resolver.WithLogger(s.logger),
		resolver.WithBus(s.bus),
	}

	// Share the first evaluation of each bucket between instances.
	if s.cfg.SnapshotCacheEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = s.cfg.RedisAddr
		cacheCfg.RedisPassword = s.cfg.RedisPassword
		cacheCfg.RedisDB = s.cfg.RedisDB
		snapshots, err := cache.New(cacheCfg, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("snapshot cache initialization failed, continuing without cache")
		} else {
			s.cache = snapshots
			s.DeferClose(func() error { return snapshots.Close() })
			opts = append(opts, resolver.WithSnapshotStore(snapshots, snapshotStoreTimeout))
		}
	}

	if s.cfg.NATSURL != "" {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		natsCfg.SubjectPrefix = s.cfg.NATSSubjectPrefix
		natsCfg.NodeID = s.cfg.InstanceID
		bridge, err := eventbus.NewNATSBridge(natsCfg, s.bus, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("nats bridge unavailable, events stay local")
		} else {
			s.bridge = bridge
			s.DeferClose(bridge.Close)
		}
	}

	s.resolver = resolver.New(loaded.Resources, loaded.Definition, opts...)
	s.history = schedulerstate.NewStore()

	if s.cfg.SchedulerEnabled {
		s.scheduler = scheduler.New(s.resolver, s.history, clock.System, s.logger)

		// Setup leader-aware scheduler if leader election is enabled
		if s.cfg.LeaderElectionEnabled {
			electionConfig := leadership.DefaultConfig()
			electionConfig.RedisAddr = s.cfg.RedisAddr
			electionConfig.RedisPassword = s.cfg.RedisPassword
			electionConfig.RedisDB = s.cfg.RedisDB
			electionConfig.InstanceID = s.cfg.InstanceID

			election, err := leadership.NewElection(electionConfig, s.logger)
			if err != nil {
				return fmt.Errorf("create leader election: %w", err)
			}

			s.leaderAwareScheduler = scheduler.NewLeaderAware(s.scheduler, election, s.bus, s.logger)
			s.DeferClose(func() error { return s.leaderAwareScheduler.Stop() })

			s.logger.Info().
				Str("redis_addr", s.cfg.RedisAddr).
				Str("instance_id", election.InstanceID()).
				Msg("leader election enabled for scheduler")
		}
	}

	s.api = api.New(s.resolver, normalizer, s.history, s.bus, []byte(s.cfg.JWTSigningKey), s.logger)
	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// Start scheduler (leader-aware if configured, otherwise direct)
	if s.leaderAwareScheduler != nil {
		if err := s.leaderAwareScheduler.Start(ctx); err != nil {
			s.logger.Error().Err(err).Msg("leader-aware scheduler failed to start")
		}
	} else if s.scheduler != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("scheduler loop exited")
			}
		}()
	}

	if s.bridge != nil {
		s.bridge.Start(ctx)
	}

	// Start database metrics updater
	if s.db != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					db.UpdateConnectionMetrics(s.db)
				}
			}
		}()
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

type healthResponse struct {
	Status  string       `json:"status"`
	Version version.Info `json:"version"`
	Digest  string       `json:"digest"`
	Slots   int          `json:"slots"`
	Cache   *bool        `json:"snapshot_cache,omitempty"`
	Leader  *bool        `json:"leader,omitempty"`
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:  "ok",
			Version: version.Get(),
			Digest:  s.resolver.Digest(),
			Slots:   len(s.resolver.Definition().SlotIDs()),
		}
		if s.cache != nil {
			available := s.cache.IsAvailable()
			resp.Cache = &available
		}
		// Add leader status if leader election is enabled
		if s.leaderAwareScheduler != nil {
			isLeader := s.leaderAwareScheduler.IsLeader()
			resp.Leader = &isLeader
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)
}
