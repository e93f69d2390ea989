package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"timebased_cover/internal/actuator"
	"timebased_cover/internal/config"
	"timebased_cover/internal/cover"
	"timebased_cover/internal/handlers"
	"timebased_cover/internal/logger"
	"timebased_cover/internal/repository"
	"timebased_cover/internal/repository/db"
	"timebased_cover/internal/server"
	"timebased_cover/internal/service"

	"golang.org/x/sync/errgroup"
)

func main() {
	configDir := flag.String("config", "configs", "directory containing config.yml")
	printConfig := flag.Bool("print-config", false, "print the effective configuration and exit")
	flag.Parse()

	// load config.yml
	cfg, err := config.Load(*configDir)
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	if *printConfig {
		out, err := cfg.Dump()
		if err != nil {
			logger.Get(logger.InfoLevel).Fatalw("error rendering config", "err", err)
		}
		fmt.Print(string(out))
		return
	}

	// init logger
	log := logger.Get(cfg.LogLevel)

	// open DB
	conn, err := openDB(cfg.DB.Path, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// actuators
	backend, manual, err := openBackend(cfg, log)
	if err != nil {
		log.Fatalw("failed to init actuator backend", "backend", cfg.Actuators.Backend, "err", err)
	}
	hub := actuator.NewHub(backend, log)
	hub.SetCommandSettle(cfg.Actuators.CommandSettle)

	// covers
	registry, err := buildRegistry(cfg, hub, log)
	if err != nil {
		log.Fatalw("failed to build covers", "err", err)
	}

	// wire dependencies
	repos := repository.NewRepository(conn)
	services := service.NewService(repos, service.Deps{
		Registry: registry,
		Hub:      hub,
		Manual:   manual,
		Auth:     service.AuthConfig{SigningKey: cfg.Auth.SigningKey, TokenTTL: cfg.Auth.TokenTTL},
		Log:      log,
	})
	apiHandler := handlers.NewHandler(services, log)

	// context for background goroutines
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := services.Covers.Restore(ctx); err != nil {
		log.Errorw("restore_positions_failed", "err", err)
	}

	srv := server.New(cfg.Port, apiHandler.InitRoutes(), log)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return services.Watcher.Run(gctx, cfg.Actuators.PollInterval)
	})
	g.Go(func() error {
		log.Infow("serving", "covers", len(registry.All()), "backend", cfg.Actuators.Backend)
		return srv.Run(gctx)
	})

	err = g.Wait()
	shutdown(services, hub, log)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Errorw("exited with error", "err", err)
		os.Exit(1)
	}
	log.Infow("stopped")
}

// openDB initializes the SQLite database using configuration.
func openDB(path string, log *logger.Logger) (*sql.DB, error) {
	if path == "" {
		log.Infow("db.path not set in config; using default file", "default", "app.db")
		path = "app.db"
	}
	return db.InitDB(path)
}

// openBackend selects the actuator backend. Only the memory backend can
// simulate manual switch presses.
func openBackend(cfg *config.Config, log *logger.Logger) (actuator.Backend, service.ManualSwitches, error) {
	switch cfg.Actuators.Backend {
	case config.BackendGPIO:
		driver, err := actuator.NewDriver(cfg.Actuators.GPIO.Mock, log)
		if err != nil {
			return nil, nil, err
		}
		g, err := actuator.NewGPIO(driver, actuator.GPIOConfig{
			Pins:      cfg.Pins(),
			ActiveLow: cfg.Actuators.GPIO.ActiveLow,
			Settle:    cfg.Actuators.GPIO.Settle,
		})
		if err != nil {
			_ = driver.Close()
			return nil, nil, err
		}
		return g, nil, nil
	case config.BackendHomeAssistant:
		ha := cfg.Actuators.HomeAssistant
		return actuator.NewHomeAssistant(ha.URL, ha.Token, nil), nil, nil
	default:
		mem := actuator.NewMemory(cfg.SwitchIDs()...)
		return mem, mem, nil
	}
}

func buildRegistry(cfg *config.Config, hub *actuator.Hub, log *logger.Logger) (*service.Registry, error) {
	ctrls := make([]*cover.Controller, 0, len(cfg.Covers))
	for _, cv := range cfg.Covers {
		c := cover.New(cv.Controller(), hub, nil, log.With("cover", cv.UniqueID()))
		ctrls = append(ctrls, c)
	}
	return service.NewRegistry(ctrls...)
}

// shutdown runs once HTTP has drained: it cancels cover timers, freezing
// tracked positions, then releases the actuator backend.
func shutdown(services *service.Service, hub *actuator.Hub, log *logger.Logger) {
	log.Infow("shutting down covers...")
	services.Covers.Shutdown()
	if err := hub.Close(); err != nil {
		log.Errorw("failed to release actuators", "err", err)
	}
}
