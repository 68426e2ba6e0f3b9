package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mealkitz/orderflow/pkg/api"
	"github.com/mealkitz/orderflow/pkg/bus"
	"github.com/mealkitz/orderflow/pkg/config"
	"github.com/mealkitz/orderflow/pkg/cron"
	"github.com/mealkitz/orderflow/pkg/dispatch"
	"github.com/mealkitz/orderflow/pkg/domain"
	"github.com/mealkitz/orderflow/pkg/domain/notification"
	"github.com/mealkitz/orderflow/pkg/infrastructure/eventbus"
	"github.com/mealkitz/orderflow/pkg/infrastructure/persistence"
	"github.com/mealkitz/orderflow/pkg/logger"
	"github.com/mealkitz/orderflow/pkg/manager"
	"github.com/mealkitz/orderflow/pkg/queue"
	"github.com/mealkitz/orderflow/pkg/templates"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config file")
	flag.Parse()

	// .env is optional; real deployments set env vars directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "orderflow: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Environment, cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "orderflow: logger init: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := eventbus.New()
	defer events.Close()

	store := persistence.NewMemoryConversationStore()

	history, err := persistence.OpenHistory(cfg.Storage.HistoryDB)
	if err != nil {
		logger.ErrorCF("main", "History database unavailable, running without audit log", map[string]interface{}{
			"path":  cfg.Storage.HistoryDB,
			"error": err.Error(),
		})
		history = nil
	} else {
		defer history.Close()
	}

	registry := templates.NewRegistry(domain.Language(cfg.DefaultLanguage))
	for _, dir := range cfg.Storage.TemplateDirs {
		if err := registry.LoadDir(dir); err != nil {
			logger.WarnCF("main", "Template dir skipped", map[string]interface{}{
				"dir":   dir,
				"error": err.Error(),
			})
		}
	}

	senders := dispatch.NewRegistry()
	senders.Register(domain.ChannelWhatsApp, dispatch.NewWhatsAppSender(cfg.Channels.WhatsApp))
	senders.Register(domain.ChannelEmail, dispatch.NewEmailSender(cfg.Channels.Email))
	senders.Register(domain.ChannelSMS, dispatch.NewSMSSender(cfg.Channels.SMS))
	senders.Register(domain.ChannelInstagram, dispatch.NewInstagramSender(cfg.Channels.Instagram))
	senders.Register(domain.ChannelVoice, dispatch.NewVoiceSender(cfg.Channels.Voice))

	historyRepo := historyOrNil(history)

	q := queue.New(cfg.Queue, senders, manager.AddressResolver(), historyRepo, events)
	mgr := manager.New(store, q, registry, manager.Options{
		EventBus:   events,
		MessageLog: messageLogOrNil(history),
		Restaurant: cfg.RestaurantName,
	})

	q.Start()
	defer q.Stop()

	msgBus := bus.New(256)
	defer msgBus.Close()
	go mgr.Run(ctx, msgBus)

	if cfg.Archiver.Enabled {
		archiver, err := cron.NewArchiver(store, events, cfg.Archiver.Cron)
		if err != nil {
			logger.ErrorCF("main", "Archiver disabled", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			go archiver.Run(ctx)
		}
	}

	server := api.NewServer(cfg, store, q, historyRepo, msgBus, events)
	if err := server.Start(ctx); err != nil {
		logger.ErrorCF("main", "API server failed to start", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
	defer server.Stop()

	events.Publish(domain.NewEvent(domain.EventSystemStartup, "", map[string]string{
		"environment": cfg.Environment,
	}))
	logger.InfoCF("main", "Orderflow started", map[string]interface{}{
		"environment": cfg.Environment,
		"gateway":     fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
	})

	<-ctx.Done()
	events.Publish(domain.NewEvent(domain.EventSystemShutdown, "", nil))
	logger.InfoC("main", "Shutdown signal received")
}

// historyOrNil avoids handing a typed-nil pointer to an interface field.
func historyOrNil(h *persistence.SQLiteHistory) notification.HistoryRepository {
	if h == nil {
		return nil
	}
	return h
}

func messageLogOrNil(h *persistence.SQLiteHistory) manager.MessageLog {
	if h == nil {
		return nil
	}
	return h
}
