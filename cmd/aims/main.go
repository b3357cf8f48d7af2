// Command aims runs the AIMS inventory server and its maintenance
// subcommands.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/HerbHall/aims/internal/auth"
	"github.com/HerbHall/aims/internal/config"
	"github.com/HerbHall/aims/internal/directory"
	"github.com/HerbHall/aims/internal/event"
	"github.com/HerbHall/aims/internal/history"
	"github.com/HerbHall/aims/internal/inventory"
	"github.com/HerbHall/aims/internal/metrics"
	"github.com/HerbHall/aims/internal/registry"
	"github.com/HerbHall/aims/internal/scheduler"
	"github.com/HerbHall/aims/internal/server"
	"github.com/HerbHall/aims/internal/settings"
	"github.com/HerbHall/aims/internal/store"
	"github.com/HerbHall/aims/internal/version"
	"github.com/HerbHall/aims/pkg/plugin"
)

const usage = `usage: aims <command> [flags]

commands:
  serve     run the API server (default)
  backup    archive the database and config file
  restore   restore an archive written by backup
  version   print build information
`

func main() {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		runServe(args)
	case "backup":
		runBackup(args)
	case "restore":
		runRestore(args)
	case "version":
		fmt.Println(version.Info())
	case "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	v, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(v.GetBool("log.development"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck // nothing useful to do on exit

	if err := serve(v, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func serve(v *viper.Viper, logger *zap.Logger) error {
	logger.Info("AIMS server starting", version.Fields()...)

	db, err := store.New(v.GetString("database.path"))
	if err != nil {
		return err
	}
	defer db.Close()

	bus := event.NewBus(logger.Named("event"))
	reg := registry.New(logger.Named("registry"))
	m := metrics.New()

	authMod := auth.New()
	modules := []plugin.Plugin{
		authMod,
		inventory.New(inventory.WithMetrics(m)),
		directory.New(),
		history.New(),
		settings.New(),
		scheduler.New(),
	}
	for _, p := range modules {
		name := p.Info().Name
		if !v.GetBool("plugins." + name + ".enabled") {
			logger.Info("plugin disabled by configuration", zap.String("name", name))
			continue
		}
		if err := reg.Register(p); err != nil {
			return err
		}
	}
	if err := reg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.New(v)
	err = reg.InitAll(ctx, func(name string) plugin.Dependencies {
		return plugin.Dependencies{
			Config:  cfg,
			Logger:  logger.Named(name),
			Store:   db,
			Bus:     bus,
			Plugins: reg,
		}
	})
	if err != nil {
		return err
	}
	unsubscribe := reg.Subscribe(bus)
	defer unsubscribe()

	if err := reg.StartAll(ctx); err != nil {
		return err
	}

	opts := []server.Option{server.WithMetrics(m.Registry)}
	if _, ok := reg.Get("auth"); ok && !reg.IsDisabled("auth") {
		opts = append(opts, server.WithMiddleware(authMod.Middleware().Wrap))
	} else {
		logger.Warn("auth disabled: the API is open to anyone who can reach it")
	}

	addr := net.JoinHostPort(v.GetString("server.host"), v.GetString("server.port"))
	srv := server.New(addr, reg, logger, opts...)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Info("AIMS server ready", zap.String("addr", addr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	reg.StopAll(shutdownCtx)
	if err := bus.Drain(shutdownCtx); err != nil {
		logger.Warn("pending events dropped at shutdown", zap.Error(err))
	}

	logger.Info("AIMS server stopped")
	return nil
}
