// ABOUTME: Entry point for the development chat backend
// ABOUTME: Serves the REST and websocket chat endpoints over a SQLite store

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/2389/chatline/internal/backend"
	"github.com/2389/chatline/internal/config"
	"github.com/2389/chatline/internal/logging"
	"github.com/2389/chatline/internal/store"
)

// version is set at build time.
var version = "dev"

const banner = `
  __       _               _                _                  _
 / _| __ _| | _____       | |__   __ _  ___| | _____ _ __   __| |
| |_ / _' | |/ / _ \ _____| '_ \ / _' |/ __| |/ / _ \ '_ \ / _' |
|  _| (_| |   <  __/|_____| |_) | (_| | (__|   <  __/ | | | (_| |
|_|  \__,_|_|\_\___|      |_.__/ \__,_|\___|_|\_\___|_| |_|\__,_|
`

func main() {
	configPath := flag.String("config", "", "config file (default $CHATLINE_CONFIG or ~/.config/chatline/config.yaml)")
	addr := flag.String("addr", "", "listen address, overrides backend.addr")
	token := flag.String("token", os.Getenv("CHATLINE_BACKEND_TOKEN"), "shared bearer token clients must present")
	observationFirst := flag.Bool("observation-first", false, "send each observation before its action")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *addr, backend.Options{Token: *token, ObservationFirst: *observationFirst}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadDefault()
	}
	return config.Load(path)
}

func run(ctx context.Context, configPath, addr string, opts backend.Options) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if addr != "" {
		cfg.Backend.Addr = addr
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	logger := logging.New(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Backend.Addr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Backend.DatabasePath)
	if opts.ObservationFirst {
		yellow := color.New(color.FgYellow)
		yellow.Print("    ▶ ")
		fmt.Println("Observations are sent before their actions")
	}
	fmt.Println()

	st, err := store.NewSQLiteStore(cfg.Backend.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	opts.ChunkDelay = cfg.Backend.ChunkDelay
	opts.Logger = logger
	srv := &http.Server{
		Addr:              cfg.Backend.Addr,
		Handler:           backend.New(st, opts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Chat connections are hijacked and outlive Shutdown; they end with ctx.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	return serve(ctx, srv, logger)
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting fake-backend", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
