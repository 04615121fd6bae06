package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"captiondesk/api/internal/app"
	"captiondesk/api/internal/config"
	"captiondesk/api/internal/drive"
	"captiondesk/api/internal/email"
	"captiondesk/api/internal/export"
	"captiondesk/api/internal/gitrepo"
	"captiondesk/api/internal/logger"
	"captiondesk/api/internal/notify"
	"captiondesk/api/internal/search"
	"captiondesk/api/internal/session"
	"captiondesk/api/internal/social"
	"captiondesk/api/internal/store"
)

func main() {
	config.LoadDotenv()
	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.DefaultPoolOptions())
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, log); err != nil {
		log.WithError(err).Fatal("migrations failed")
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.WithError(err).Fatal("failed to create revision repos dir")
	}

	dataStore := store.NewPostgresStore(db)
	deps := app.Dependencies{
		Store:     dataStore,
		Revisions: gitrepo.New(cfg.ReposDir),
		Drive:     drive.NewClient(cfg.DriveAPIEndpoint),
		Social:    social.NewClient(cfg.FacebookGraphURL),
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts, log)
	deps.Search = searchService

	if strings.TrimSpace(cfg.RedisURL) != "" {
		client, err := session.Connect(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("redis connection failed")
		}
		tokens := session.NewRedisStoreWithClient(client)
		defer tokens.Close()
		deps.Tokens = tokens
		deps.Deliveries = session.NewDeliveryStore(client, cfg.WebhookDedupeTTL)
		deps.Redis = tokens
		log.Info("using redis for sessions and webhook deliveries")
	} else {
		log.Info("using postgres for sessions and in-process webhook delivery cache")
	}

	notifier := notify.New(notify.Config{
		URL:        cfg.NotifyWebhookURL,
		MaxRetries: uint64(max(cfg.NotifyMaxRetries, 0)),
	}, log)
	deps.Notifier = notifier

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mailer.IsConfigured() {
		deps.Mailer = mailer
	}

	var archiver export.Archiver
	if strings.TrimSpace(cfg.MinIOEndpoint) != "" {
		minioArchiver, err := export.NewMinIOArchiver(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOUseSSL)
		if err != nil {
			log.WithError(err).Warn("minio archiver disabled")
		} else if err := minioArchiver.EnsureBucket(ctx); err != nil {
			log.WithError(err).Warn("minio bucket unavailable; exports will not be archived")
		} else {
			archiver = minioArchiver
		}
	}
	deps.Exporter = export.NewService(dataStore, archiver, log)

	service := app.New(cfg, deps, log)
	if err := service.Bootstrap(ctx); err != nil {
		log.WithError(err).Warn("bootstrap error (will retry on next restart)")
	}
	go searchService.ReindexAllFromPG(context.Background())

	limiter := app.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).TrustForwardedFor(cfg.TrustForwardedFor)
	defer limiter.Stop()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, limiter, log)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Addr).Info("caption review API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
	if err := service.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("background work did not finish")
	}
	if err := notifier.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("pending notifications dropped")
	}
}
