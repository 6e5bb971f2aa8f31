package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/opening_playbook/internal/config"
	"github.com/vitos/opening_playbook/internal/domain"
	"github.com/vitos/opening_playbook/internal/infrastructure/broker"
	"github.com/vitos/opening_playbook/internal/infrastructure/feed"
	"github.com/vitos/opening_playbook/internal/infrastructure/logger"
	"github.com/vitos/opening_playbook/internal/infrastructure/storage"
	"github.com/vitos/opening_playbook/internal/usecase"
	"github.com/vitos/opening_playbook/internal/web"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the bot config")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Feed and Broker
	feedClient := feed.NewClient(cfg.Feed.RESTEndpoint, cfg.Feed.WSEndpoint, cfg.Feed.APIKey,
		time.Duration(cfg.Feed.TimeoutMs)*time.Millisecond, log.Named("feed"))
	paper := broker.NewPaperBroker(feedClient, log.Named("broker"))

	// 5. Load Playbook, reloads apply to the next session
	reloads := make(chan *config.Playbook, 1)
	watcher, err := config.WatchPlaybook(cfg.Playbook,
		func(pb *config.Playbook) {
			// keep only the newest playbook
			select {
			case <-reloads:
			default:
			}
			reloads <- pb
		},
		func(err error) { log.Error("Playbook reload rejected", zap.Error(err)) },
	)
	if err != nil {
		log.Fatal("Failed to load playbook", zap.Error(err))
	}

	// 6. Init Service
	svc, err := usecase.NewSessionService(watcher.Current(), feedClient, paper, store, log.Named("session"))
	if err != nil {
		log.Fatal("Failed to init session", zap.Error(err))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for {
			select {
			case pb := <-reloads:
				svc.SetPlaybook(pb)
			case <-ctx.Done():
				return
			}
		}
	}()

	// 7. Guardrail Loop (first evaluation before any entry)
	pollGuardrails := func() {
		state, err := feedClient.RiskMetrics(ctx)
		if err != nil {
			log.Error("Failed to fetch risk metrics", zap.Error(err))
			return
		}
		if _, err := svc.UpdateGuardrails(ctx, state); err != nil {
			log.Error("Failed to update guardrails", zap.Error(err))
		}
	}
	pollGuardrails()
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Polling.GuardrailMs) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				pollGuardrails()
			case <-ctx.Done():
				return
			}
		}
	}()

	// 8. Pre-open Plan
	report, err := svc.PrepareSession(ctx)
	if err != nil {
		log.Fatal("Failed to prepare session", zap.Error(err))
	}

	// 9. Connect Quote Stream
	feedClient.OnSnapshot(func(snap domain.MarketSnapshot) {
		if _, err := svc.ProcessTick(ctx, snap); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Error processing tick", zap.String("symbol", snap.Symbol), zap.Error(err))
		}
	})
	symbols := make([]string, 0, len(report.Plans))
	for _, p := range report.Plans {
		symbols = append(symbols, p.Symbol)
	}
	if len(symbols) > 0 {
		if err := feedClient.Connect(ctx, symbols); err != nil {
			log.Error("Failed to connect quote stream", zap.Error(err))
		}
	}

	// 10. Start Web Server
	server := web.NewServer(cfg.Server.Port, store, feedClient, svc, log.Named("web"))
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 11. Wait for Shutdown
	<-stop

	log.Info("Shutting down...")
	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	if err := feedClient.Close(); err != nil {
		log.Warn("Quote stream close failed", zap.Error(err))
	}
}
