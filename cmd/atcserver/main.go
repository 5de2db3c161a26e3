// Command atcserver serves the radar ATC simulation to browser clients
// over websockets.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"atc-sim/internal/log"
	"atc-sim/internal/server"
	"atc-sim/internal/sim"
)

const shutdownTimeout = 5 * time.Second

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	clientDir := flag.String("client", "", "Path to client directory (default: ../client)")
	dbPath := flag.String("db", "atc.db", "SQLite database path; empty disables accounts and the leaderboard")
	logLevel := flag.String("loglevel", "info", "Logging level: debug, info, warn, error")
	logDir := flag.String("logdir", "", "Directory for rotating log files; empty logs to stderr")
	seed := flag.Int64("seed", 0, "Random seed for new sessions; 0 seeds from the clock")
	tick := flag.Duration("tick", sim.DefaultTickInterval, "Simulation tick interval")
	clock := flag.Duration("clock", sim.DefaultClockInterval, "Game clock interval")
	flag.Parse()

	if err := run(*addr, *clientDir, *dbPath, *logLevel, *logDir, *seed, *tick, *clock); err != nil {
		fmt.Fprintf(os.Stderr, "atcserver: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, clientDir, dbPath, logLevel, logDir string, seed int64, tick, clock time.Duration) error {
	lg := log.New(logLevel, logDir)

	if clientDir == "" {
		exe, _ := os.Executable()
		clientDir = filepath.Join(filepath.Dir(exe), "..", "client")
		// Fallback for development
		if _, err := os.Stat(clientDir); os.IsNotExist(err) {
			clientDir = "../client"
		}
	}

	var db *server.DB
	if dbPath != "" {
		var err error
		if db, err = server.OpenDB(dbPath); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		lg.Info("database opened", "path", dbPath)
	}

	analytics := server.NewAnalytics(db, lg)
	defer analytics.Stop()

	hub, err := server.NewHub(server.HubConfig{
		Session: server.SessionConfig{
			Seed:          seed,
			TickInterval:  tick,
			ClockInterval: clock,
			Rules:         sim.DefaultRules(),
		},
		DB:        db,
		Analytics: analytics,
		Logger:    lg,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go hub.Run(ctx)

	srv := &http.Server{Addr: addr, Handler: server.SetupRoutes(hub, clientDir)}
	errc := make(chan error, 1)
	go func() {
		lg.Info("server starting", "addr", addr, "client", clientDir)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	lg.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		lg.Warnf("http shutdown: %v", err)
	}
	hub.Sessions().Shutdown()
	return nil
}
