// Command server runs the scan grid: the HTTP API, the reconciliation
// controllers and the optional Redis/Asynq integrations.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	gridapp "github.com/a11yscan/grid/internal/app/grid"
	"github.com/a11yscan/grid/internal/app/scheduler"
	"github.com/a11yscan/grid/internal/config"
	"github.com/a11yscan/grid/internal/infra/controller"
	"github.com/a11yscan/grid/internal/infra/http"
	"github.com/a11yscan/grid/internal/infra/http/handler"
	"github.com/a11yscan/grid/internal/infra/http/routes"
	"github.com/a11yscan/grid/internal/infra/jobs"
	"github.com/a11yscan/grid/internal/infra/redis"
	"github.com/a11yscan/grid/pkg/domain/egress"
	"github.com/a11yscan/grid/pkg/domain/fingerprint"
	"github.com/a11yscan/grid/pkg/logger"
	"github.com/a11yscan/grid/pkg/validator"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log := logger.NewDefault()
		log.Error("failed to load configuration", "error", err)
		return 1
	}

	log := initLogger(cfg)
	log.Info("starting grid", "app", cfg.App.Name, "env", cfg.App.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ==========================================================================
	// Core components
	// ==========================================================================
	pool, err := buildPool(cfg, log)
	if err != nil {
		log.Error("failed to build egress pool", "error", err)
		return 1
	}

	gen, err := buildGenerator(cfg)
	if err != nil {
		log.Error("failed to build fingerprint generator", "error", err)
		return 1
	}

	sched := scheduler.New(scheduler.Config{
		RetryBackoff: cfg.Scheduler.RetryBackoff,
	}, log)

	// ==========================================================================
	// Optional infrastructure
	// ==========================================================================
	var gridOpts []gridapp.Option

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.New(&cfg.Redis, log)
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			return 1
		}
		defer closeWithLog(redisClient, "redis", log)

		gridOpts = append(gridOpts, gridapp.WithNotifier(redis.NewJobNotifier(redisClient, log)))
	}

	if cfg.Jobs.Enabled {
		resultsClient := jobs.NewClient(jobs.ClientConfig{
			RedisAddr:     cfg.Jobs.RedisAddr,
			RedisPassword: cfg.Jobs.RedisPassword,
			RedisDB:       cfg.Jobs.RedisDB,
			Queue:         cfg.Jobs.Queue,
		}, log)
		defer closeWithLog(resultsClient, "results client", log)

		gridOpts = append(gridOpts, gridapp.WithResultSink(resultsClient))
	}

	service := gridapp.NewService(sched, pool, gen, log, gridOpts...)

	if _, err := service.InitializeGrid(cfg.Grid.Nodes); err != nil {
		log.Error("failed to initialize grid", "error", err)
		return 1
	}

	// ==========================================================================
	// Controllers
	// ==========================================================================
	manager := controller.NewManager(log)
	manager.Register(controller.NewScanWatchdogController(
		sched, cfg.Scheduler.WatchdogInterval, cfg.Scheduler.StuckScanThreshold, log))
	manager.Register(controller.NewBacklogCompactionController(
		sched, cfg.Scheduler.CompactionInterval, cfg.Scheduler.TerminalRetention, log))

	// ==========================================================================
	// HTTP server
	// ==========================================================================
	v := validator.New()
	healthOpts := []handler.HealthHandlerOption{}
	if redisClient != nil {
		healthOpts = append(healthOpts, handler.WithRedis(redisClient))
	}

	server := http.NewServer(cfg, log)
	routes.Register(server.Router(), &routes.Handlers{
		Health: handler.NewHealthHandler(healthOpts...),
		Grid:   handler.NewGridHandler(service, v, log),
		Egress: handler.NewEgressHandler(pool, v, log),
	})

	// ==========================================================================
	// Run
	// ==========================================================================
	g, gctx := errgroup.WithContext(ctx)

	if err := manager.Start(gctx); err != nil {
		log.Error("failed to start controllers", "error", err)
		return 1
	}
	defer func() { _ = manager.Stop() }()

	var rescanner *gridapp.Rescanner
	if cfg.Grid.RescanCron != "" {
		rescanner, err = gridapp.NewRescanner(service, cfg.Grid.RescanCron, cfg.Grid.RescanPriority, log)
		if err != nil {
			log.Error("failed to configure rescan schedule", "error", err)
			return 1
		}
		if err := rescanner.Start(); err != nil {
			log.Error("failed to start rescan schedule", "error", err)
			return 1
		}
		defer rescanner.Stop()
	}

	if redisClient != nil {
		snapshots := redis.NewSnapshotStore(redisClient, service, cfg.Scheduler.CompactionInterval, log)
		g.Go(func() error {
			err := snapshots.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	log.Info("grid started", "http_addr", cfg.Server.Addr(), "nodes", cfg.Grid.Nodes)

	if err := g.Wait(); err != nil {
		log.Error("grid exited with error", "error", err)
		return 1
	}

	log.Info("grid stopped")
	return 0
}

func initLogger(cfg *config.Config) *logger.Logger {
	if cfg.IsProduction() {
		return logger.New(logger.Config{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
		})
	}
	return logger.NewDevelopment()
}

func buildPool(cfg *config.Config, log *logger.Logger) (*egress.Pool, error) {
	var seed []egress.Identity
	if cfg.Egress.SeedFile != "" {
		var err error
		seed, err = egress.LoadSeed(cfg.Egress.SeedFile)
		if err != nil {
			return nil, err
		}
		log.Info("egress seed loaded", "file", cfg.Egress.SeedFile, "identities", len(seed))
	}

	var opts []egress.PoolOption
	if cfg.Egress.PacePerSecond > 0 {
		opts = append(opts, egress.WithPacing(rate.Limit(cfg.Egress.PacePerSecond), cfg.Egress.PaceBurst))
	}
	return egress.NewPool(seed, opts...)
}

func buildGenerator(cfg *config.Config) (*fingerprint.Generator, error) {
	if cfg.Egress.FingerprintCatalog == "" {
		return fingerprint.NewDefaultGenerator(), nil
	}
	catalog, err := fingerprint.LoadCatalog(cfg.Egress.FingerprintCatalog)
	if err != nil {
		return nil, err
	}
	return fingerprint.NewGenerator(catalog)
}

type closer interface {
	Close() error
}

func closeWithLog(c closer, name string, log *logger.Logger) {
	if err := c.Close(); err != nil {
		log.Error("failed to close "+name, "error", err)
	}
}
