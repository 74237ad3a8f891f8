// Command simd runs the faction economy simulation daemon: the tick runner,
// the exchange-rate job, the observer broadcast endpoint, and an optional
// snapshot archiver.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"factionsim/internal/broadcast"
	"factionsim/internal/config"
	"factionsim/internal/database"
	"factionsim/internal/fxrate"
	"factionsim/internal/snapshot"
	"factionsim/internal/store"
	"factionsim/internal/tick"
	"factionsim/internal/version"
	"factionsim/internal/world"
)

func main() {
	configPath := flag.String("config", "configs/simd.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting simd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"tick_interval", cfg.Simulation.TickInterval,
		"base_faction", cfg.FX.BaseFactionID,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("simd failed", "error", err)
		os.Exit(1)
	}
	logger.Info("simd stopped")
}

func run(ctx context.Context, cfg *config.SimConfig, logger *slog.Logger) error {
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	db := store.NewPostgres(pool, logger)
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	// Authoritative in-memory state, seeded from the store.
	state := world.New(time.Now(), cfg.Simulation.SimTimePerTick)
	factions, err := db.LoadFactions(ctx)
	if err != nil {
		return fmt.Errorf("load factions: %w", err)
	}
	state.ReplaceFactions(factions)

	offers, err := db.LoadOpenOffers(ctx)
	if err != nil {
		return fmt.Errorf("load offers: %w", err)
	}
	for _, o := range offers {
		state.AddOffer(o)
	}
	logger.Info("world state loaded", "factions", len(factions), "open_offers", len(offers))

	hub := broadcast.New(broadcast.Config{
		WriteTimeout: cfg.Broadcast.WriteTimeout,
		PriceWindow:  cfg.Broadcast.PriceWindow,
		QueueInitial: cfg.Broadcast.QueueInitial,
		QueueMax:     cfg.Broadcast.QueueMax,
	}, state, broadcast.SystemClock{}, logger)

	runner := tick.New(tick.Config{
		Interval:             cfg.Simulation.TickInterval,
		BasePrices:           cfg.Simulation.BasePrices,
		ProductionPerCapita:  cfg.Simulation.ProductionPerCapita,
		ConsumptionPerCapita: cfg.Simulation.ConsumptionPerCapita,
		SurplusFactor:        cfg.Simulation.SurplusFactor,
		OfferFraction:        cfg.Simulation.OfferFraction,
	}, state, db, hub, logger)

	fxJob := fxrate.New(fxrate.Config{
		Interval:          cfg.FX.Interval,
		BaseFactionID:     cfg.FX.BaseFactionID,
		InflationBeta:     cfg.FX.InflationBeta,
		ReversionStrength: cfg.FX.ReversionStrength,
		CacheTTL:          cfg.FX.CacheTTL,
	}, state, db, hub, fxrate.NewMemoryCache(nil), nil, logger)

	var archiver *snapshot.Archiver
	if cfg.Snapshots.Enabled {
		archiver = snapshot.New(snapshot.Config{
			Interval: cfg.Snapshots.Interval,
			Dir:      cfg.Snapshots.Dir,
			Keep:     cfg.Snapshots.Keep,
		}, state, logger)
	}

	// Start order: broadcast is passive, then the schedulers.
	if err := runner.Start(ctx); err != nil {
		return err
	}
	if err := fxJob.Start(ctx); err != nil {
		return err
	}
	if archiver != nil {
		if err := archiver.Start(ctx); err != nil {
			return err
		}
	}

	wsMux := http.NewServeMux()
	wsMux.Handle(cfg.Broadcast.Path, hub)
	wsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Broadcast.Port),
		Handler: wsMux,
	}

	healthMux := http.NewServeMux()
	healthMux.Handle(cfg.Health.Path, healthHandler(pool, state, runner, fxJob, hub, archiver))
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: healthMux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("observer endpoint listening",
			"port", cfg.Broadcast.Port, "path", cfg.Broadcast.Path)
		if err := wsServer.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("observer endpoint: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("health endpoint listening",
			"port", cfg.Health.Port, "path", cfg.Health.Path)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("health endpoint: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Reverse of start order; the schedulers finish their in-flight
		// work before the sockets go away.
		if archiver != nil {
			if err := archiver.Stop(shutdownCtx); err != nil {
				logger.Warn("archiver stop", "error", err)
			}
		}
		if err := fxJob.Stop(shutdownCtx); err != nil {
			logger.Warn("exchange rate job stop", "error", err)
		}
		if err := runner.Stop(shutdownCtx); err != nil {
			logger.Warn("tick runner stop", "error", err)
		}
		hub.Close()

		wsServer.Shutdown(shutdownCtx)
		healthServer.Shutdown(shutdownCtx)
		return nil
	})

	return g.Wait()
}

// healthHandler reports component status and counters as JSON.
func healthHandler(pool interface{ Ping(context.Context) error }, state *world.State, runner *tick.Runner, fxJob *fxrate.Job, hub *broadcast.Hub, archiver *snapshot.Archiver) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Tick       uint64         `json:"tick"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Tick:       state.Tick(),
			Components: make(map[string]any),
		}

		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}

		tickStats := runner.Stats()
		health.Components["tick_runner"] = tickStats
		if !tickStats.Running {
			health.Status = "degraded"
		}

		health.Components["exchange_rate_job"] = fxJob.Stats()
		health.Components["broadcast"] = hub.Stats()
		if archiver != nil {
			health.Components["snapshots"] = archiver.Stats()
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})
}
