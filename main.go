package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/nananek/mail-check-ai/internal/analyzer"
	"github.com/nananek/mail-check-ai/internal/archive"
	"github.com/nananek/mail-check-ai/internal/businesshours"
	"github.com/nananek/mail-check-ai/internal/config"
	"github.com/nananek/mail-check-ai/internal/db"
	"github.com/nananek/mail-check-ai/internal/handlers"
	"github.com/nananek/mail-check-ai/internal/notify"
	"github.com/nananek/mail-check-ai/internal/pipeline"
	"github.com/nananek/mail-check-ai/internal/poller"
	"github.com/nananek/mail-check-ai/internal/relay"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}

	// Secrets come from the environment; .env is a convenience for
	// development setups
	if err := godotenv.Load(); err == nil {
		log.Debug("Loaded .env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		log.WithError(err).Fatal("Failed to create database directory")
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to open database")
	}
	defer database.Close()
	log.WithField("path", cfg.DBPath).Info("Database opened")

	archiver, err := archive.New(cfg.Git.ReposPath, cfg.Git.AuthorName, cfg.Git.AuthorEmail, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to set up git archiver")
	}

	pipe := pipeline.New(database, log)
	pipe.Analyzer = analyzer.NewClient(cfg.OpenAIAPIKey, "", cfg.OpenAIModel, log)
	pipe.Archiver = archiver
	pipe.Discord = notify.NewDiscord(log)
	pipe.Gitea = notify.NewGitea(log)
	pipe.Calendar = businesshours.New(log)
	pipe.GlobalWebhook = cfg.DiscordWebhookURL
	pipe.Host = cfg.Relay.Domain

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Mailbox poller
	p := poller.New(database, pipe, time.Duration(cfg.PollInterval), log)
	go p.Run(ctx)

	// Outgoing relay
	var relaySrv *smtp.Server
	if cfg.Relay.Enabled {
		backend := &relay.Backend{
			DB:        database,
			Pipeline:  pipe,
			Forwarder: relay.SMTPForwarder{},
			Log:       log,
			Domain:    cfg.Relay.Domain,
		}
		relaySrv = relay.NewServer(backend, cfg.RelayAddress())
		go func() {
			log.WithField("addr", cfg.RelayAddress()).Info("SMTP relay listening")
			if err := relaySrv.ListenAndServe(); err != nil {
				log.WithError(err).Error("SMTP relay stopped")
			}
		}()
	}

	// Management API
	h := handlers.New(database, log)
	apiSrv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.WithField("addr", cfg.Address()).Info("API listening")
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("API server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info("Shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("API shutdown error")
	}
	if relaySrv != nil {
		if err := relaySrv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Relay shutdown error")
		}
	}

	log.Info("Stopped")
}
