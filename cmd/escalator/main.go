package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/mooddesk/escalation-bot/internal/analysis"
	"github.com/mooddesk/escalation-bot/internal/api"
	"github.com/mooddesk/escalation-bot/internal/config"
	"github.com/mooddesk/escalation-bot/internal/escalation"
	"github.com/mooddesk/escalation-bot/internal/locks"
	"github.com/mooddesk/escalation-bot/internal/metrics"
	"github.com/mooddesk/escalation-bot/internal/notifications"
	redisclient "github.com/mooddesk/escalation-bot/internal/redis"
	"github.com/mooddesk/escalation-bot/internal/scheduler"
	"github.com/mooddesk/escalation-bot/internal/signals"
	"github.com/mooddesk/escalation-bot/internal/storage"
	"github.com/mooddesk/escalation-bot/internal/store"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting escalation service")

	ctx := context.Background()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	// Persistence and per-session locking
	var st store.Store
	var locker locks.Locker
	if cfg.RedisURL != "" {
		rdb, err := redisclient.Connect(ctx, redisclient.DefaultConnectionConfig(cfg.RedisURL))
		if err != nil {
			logrus.Fatalf("Failed to initialize Redis: %v", err)
		}
		defer rdb.Close()

		st = store.NewRedisStore(rdb)
		locker = locks.NewRedisLocker(rdb, cfg.LockTTL)
	} else {
		logrus.Warn("REDIS_URL not set, using in-memory store; state is lost on restart")
		st = store.NewMemoryStore()
		locker = locks.NewKeyedMutex()
	}

	// Real-time alert fan-out
	publishers := notifications.NewMultiPublisher()
	if cfg.NATSURL != "" {
		nc, err := notifications.ConnectNATS(cfg.NATSURL, cfg.NATSToken)
		if err != nil {
			logrus.Fatalf("Failed to initialize NATS: %v", err)
		}
		defer nc.Drain()

		publishers.Add("nats", notifications.NewNATSPublisher(nc, cfg.NATSSubjectPrefix))
	}
	if cfg.TeamsWebhookURL != "" {
		publishers.Add("teams", notifications.NewTeamsPublisher(cfg.TeamsWebhookURL, cfg.AdminURL))
	}
	var publisher notifications.AlertPublisher
	if publishers.Len() > 0 {
		publisher = publishers
	} else {
		logrus.Warn("No alert channel configured; alerts are stored but not pushed")
	}

	var mailer notifications.Mailer
	if cfg.EmailEnabled() {
		mailer = notifications.NewSMTPMailer(notifications.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		logrus.Warn("SMTP not configured; escalation emails are disabled")
	}

	var analyzer analysis.EngagementAnalyzer
	if cfg.OpenAIAPIKey != "" {
		analyzer = analysis.NewOpenAIAnalyzer(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	} else {
		logrus.Warn("OPENAI_API_KEY not set; cases get the fallback engagement analysis")
	}

	var archiver escalation.CaseArchiver
	var caseArchive *storage.CaseArchiver
	if cfg.StorageAccount != "" {
		storageClient, err := storage.NewAzureStorage(ctx, cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			logrus.Fatalf("Failed to initialize storage: %v", err)
		}
		caseArchive = storage.NewCaseArchiver(storageClient)
		archiver = caseArchive
	}

	dispatcher := escalation.NewDispatcher(st, locker, publisher, mailer, analyzer, archiver, m, escalation.Options{
		AlertEmail:        cfg.AlertEmail,
		AdminURL:          cfg.AdminURL,
		SideEffectTimeout: cfg.SideEffectTimeout,
		EnrichmentTimeout: cfg.EnrichmentTimeout,
		PersistAttempts:   cfg.StatePersistAttempts,
	})
	service := escalation.NewService(st, locker, dispatcher, m)

	schedulerService := scheduler.NewService(cfg, st, m)
	if analyzer != nil {
		schedulerService.SetSummarizer(analyzer)
	}
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}

	apiServer := api.NewServer(st, service, signals.NewAnalyzer(), reg)
	if caseArchive != nil {
		apiServer.SetCaseArchive(caseArchive)
	}
	router := apiServer.Router()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}
	schedulerService.Stop()

	// let in-flight enrichment and email finish
	done := make(chan struct{})
	go func() {
		service.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logrus.Warn("Timed out waiting for background dispatch work")
	}

	logrus.Info("Server exited")
}
