package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/quantpulse/strangle-bot/internal/clock"
	"github.com/quantpulse/strangle-bot/internal/config"
	"github.com/quantpulse/strangle-bot/internal/exchange"
	"github.com/quantpulse/strangle-bot/internal/exchange/bybit"
	"github.com/quantpulse/strangle-bot/internal/exchange/paper"
	"github.com/quantpulse/strangle-bot/internal/logger"
	"github.com/quantpulse/strangle-bot/internal/monitoring"
	"github.com/quantpulse/strangle-bot/internal/notifications"
	"github.com/quantpulse/strangle-bot/internal/pricing"
	"github.com/quantpulse/strangle-bot/internal/state"
	"github.com/quantpulse/strangle-bot/internal/strategy"
	"github.com/quantpulse/strangle-bot/pkg/reporting"
)

func main() {
	var (
		configFile = flag.String("config", "session.json", "Configuration file (e.g., nifty.json)")
		envFile    = flag.String("env", ".env", "Environment file path")
		demo       = flag.Bool("demo", false, "Use the demo trading environment")
		noReport   = flag.Bool("no-report", false, "Skip the end-of-day workbook")
	)
	flag.Parse()

	if err := run(*configFile, *envFile, *demo, !*noReport); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func run(configFile, envFile string, demo, writeReport bool) error {
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if demo {
		cfg.Exchange.Demo = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exec, data, envName := buildExchange(cfg)

	var notifier notifications.Notifier = notifications.Nop{}
	if nc := cfg.Notifications; nc != nil && nc.Enabled && nc.TelegramToken != "" {
		notifier = notifications.NewTelegramNotifier(nc.TelegramToken, nc.TelegramChat)
	}

	health := monitoring.NewHealthChecker()
	health.SetConnected(true)
	startMonitoringServers(cfg, health)

	sessionClock := clock.Real{}
	day := sessionClock.Now()
	variants, err := cfg.Variants(day)
	if err != nil {
		return err
	}

	names := make([]string, len(variants))
	for i, v := range variants {
		names[i] = v.Name()
	}
	reporting.PrintSessionBanner(cfg.Session.Underlying, cfg.Exchange.Name, envName,
		names, cfg.Session.ExitTime)

	report := reporting.NewSessionReport(day, cfg.Session.Underlying)
	model := pricing.NewBlackScholes()

	var wg sync.WaitGroup
	for _, v := range variants {
		wg.Add(1)
		go func(v strategy.Variant) {
			defer wg.Done()
			episode := uuid.NewString()[:8]
			tag := fmt.Sprintf("%s-%s", v.Name(), episode)

			lg, err := logger.NewLogger(cfg.Session.Underlying, tag)
			if err != nil {
				log.Printf("logger init failed for %s: %v", v.Name(), err)
			} else {
				defer lg.Close()
			}
			var recorder *state.Recorder
			if lg != nil {
				if recorder, err = state.NewRecorder(lg, cfg.Session.Underlying, tag); err != nil {
					lg.Warning("state recorder unavailable: %v", err)
				}
			}

			runner := &strategy.Runner{Env: &strategy.Env{
				Exec:     exec,
				Data:     data,
				Model:    model,
				Notifier: notifier,
				Log:      lg,
				Clock:    sessionClock,
				Recorder: recorder,
			}}
			result, err := runner.Run(ctx, v)
			if err != nil {
				health.RecordError(err.Error())
			}
			report.Add(result)
		}(v)
	}
	wg.Wait()

	report.PrintSummary()
	if writeReport && len(report.Results()) > 0 {
		if err := report.WriteXLSX(report.DefaultXLSXPath(), nil); err != nil {
			return fmt.Errorf("failed to write session workbook: %w", err)
		}
		fmt.Printf("📊 Session workbook written to %s\n", report.DefaultXLSXPath())
	}
	return nil
}

func buildExchange(cfg *config.BotConfig) (exchange.Execution, exchange.MarketData, string) {
	if cfg.Exchange.Name == "paper" {
		ex := paper.New()
		return ex, ex, "paper"
	}
	client := bybit.NewClient(bybit.Config{
		APIKey:    cfg.Exchange.APIKey,
		APISecret: cfg.Exchange.APISecret,
		Testnet:   cfg.Exchange.Testnet,
		Demo:      cfg.Exchange.Demo,
	})
	return client, client, client.GetEnvironment()
}

func startMonitoringServers(cfg *config.BotConfig, health *monitoring.HealthChecker) {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", monitoring.NewMetricsHandler())
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Monitoring.MetricsPort)
		srv := &http.Server{Addr: addr, Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	healthMux := http.NewServeMux()
	healthMux.Handle("/health", health)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Monitoring.HealthPort)
		srv := &http.Server{Addr: addr, Handler: healthMux, ReadHeaderTimeout: 5 * time.Second}
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("health server stopped: %v", err)
		}
	}()
}
