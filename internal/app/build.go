package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ent0n29/handoff/internal/config"
	"github.com/ent0n29/handoff/internal/gateway"
	"github.com/ent0n29/handoff/internal/httpapi"
	"github.com/ent0n29/handoff/internal/journal"
	"github.com/ent0n29/handoff/internal/logging"
	"github.com/ent0n29/handoff/internal/notify"
	"github.com/ent0n29/handoff/internal/observability"
	"github.com/ent0n29/handoff/internal/platform"
	"github.com/ent0n29/handoff/internal/policy"
	"github.com/ent0n29/handoff/internal/routing"
	"github.com/ent0n29/handoff/internal/session"
	"github.com/ent0n29/handoff/internal/transport/amqp"
)

const (
	TransportGateway = "gateway"
	TransportAMQP    = "amqp"
)

type BuildResult struct {
	Config    config.Config
	Log       *logrus.Logger
	API       *httpapi.Server
	Router    *routing.Router
	Sessions  *session.Store
	Hub       *gateway.Hub
	Journal   journal.Store
	Metrics   *observability.Metrics
	Transport string

	// Cleanup should be called on shutdown to release external resources (DB, broker).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	journalStore, err := journal.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("journal store init failed: %w", err)
	}

	hub := gateway.NewHub(log.WithField("component", "gateway"), metrics)

	var transport platform.Transport = hub
	var broker *amqp.Transport
	transportMode := TransportGateway
	if strings.TrimSpace(cfg.AMQPURL) != "" {
		broker, err = amqp.Dial(cfg.AMQPURL, cfg.AMQPExchange, log.WithField("component", "amqp"), metrics)
		if err != nil {
			_ = journalStore.Close()
			return nil, fmt.Errorf("amqp transport init failed: %w", err)
		}
		transport = broker
		transportMode = TransportAMQP
	}

	roster := policy.NewRoster(cfg.OperatorIDs, cfg.AdminIDs)
	if roster.Len() == 0 {
		log.Warn("no operators configured; requests will queue but nobody can accept them")
	}

	sessions := session.NewStore()
	notifier := notify.New(transport, log.WithField("component", "notify"), metrics)
	router := routing.New(routing.Config{
		WaitingTimeout:      cfg.WaitingTimeout,
		ConversationTimeout: cfg.ConversationTimeout,
		Keywords:            cfg.Keywords,
	}, sessions, roster, notifier, journalStore, metrics, log.WithField("component", "routing"))

	api := httpapi.New(cfg, router, hub, journalStore, metrics, log.WithField("component", "httpapi"), transportMode)

	cleanup := func() error {
		var errs []string
		if broker != nil {
			broker.Close()
		}
		if err := journalStore.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	log.WithFields(logrus.Fields{
		"transport": transportMode,
		"operators": roster.Len(),
		"journal":   journalMode(cfg.DatabaseURL),
	}).Info("handoff service built")

	return &BuildResult{
		Config:    cfg,
		Log:       log,
		API:       api,
		Router:    router,
		Sessions:  sessions,
		Hub:       hub,
		Journal:   journalStore,
		Metrics:   metrics,
		Transport: transportMode,
		Cleanup:   cleanup,
	}, nil
}

func journalMode(databaseURL string) string {
	if strings.TrimSpace(databaseURL) == "" {
		return "in-memory"
	}
	return "postgres"
}
