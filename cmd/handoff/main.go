package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ent0n29/handoff/internal/app"
	"github.com/ent0n29/handoff/internal/config"
)

func main() {
	var (
		configPath string
		bindAddr   string
		logLevel   string
		checkOnly  bool
	)
	flagSet := pflag.NewFlagSet("handoff", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", os.Getenv("HANDOFF_CONFIG"), "YAML file with operators, admins and keywords")
	flagSet.StringVar(&bindAddr, "bind", "", "listen address (overrides APP_BIND_ADDR)")
	flagSet.StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flagSet.BoolVar(&checkOnly, "check", false, "validate configuration and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return
		}
		log.Fatalf("flag error: %v", err)
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return
	}
	if args := flagSet.Args(); len(args) > 0 {
		log.Fatalf("unexpected argument: %s", args[0])
	}

	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if bindAddr = strings.TrimSpace(bindAddr); bindAddr != "" {
		cfg.BindAddr = bindAddr
	}
	if logLevel = strings.TrimSpace(logLevel); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if checkOnly {
		fmt.Printf("configuration ok: %d operator(s), waiting timeout %s, conversation timeout %s\n",
			len(cfg.OperatorIDs), cfg.WaitingTimeout, cfg.ConversationTimeout)
		return
	}

	ctx := context.Background()
	res, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	logger := res.Log

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: res.API.Router(),
	}

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	if cfg.SweepInterval > 0 {
		res.Router.StartJanitor(runCtx, cfg.SweepInterval)
		logger.WithField("interval", cfg.SweepInterval).Info("expiry janitor started")
	}

	go func() {
		logger.WithField("addr", cfg.BindAddr).Info("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("listen error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Adapters are still attached here, so users get their teardown notice.
	if removed := res.Router.Teardown(shutdownCtx); removed > 0 {
		logger.WithField("removed", removed).Info("closed open sessions")
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("graceful shutdown failed")
		_ = httpServer.Close()
	}
	if err := res.Cleanup(); err != nil {
		logger.WithError(err).Warn("cleanup failed")
	}

	logger.Info("shutdown complete")
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `handoff routes chat users to human operators.

Configuration comes from environment variables, optionally layered over a
YAML file given with --config or HANDOFF_CONFIG.

Usage:
  handoff [flags]

Flags:
`)
	flagSet.PrintDefaults()
}
