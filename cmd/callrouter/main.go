package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ehharris/twilio-live-call-routing/internal/alerting"
	"github.com/ehharris/twilio-live-call-routing/internal/callflow"
	"github.com/ehharris/twilio-live-call-routing/internal/config"
	"github.com/ehharris/twilio-live-call-routing/internal/httpapi"
	"github.com/ehharris/twilio-live-call-routing/internal/mailer"
	"github.com/ehharris/twilio-live-call-routing/internal/observability"
	"github.com/ehharris/twilio-live-call-routing/internal/roster"
)

const mailAPIBaseURL = "https://api.sendgrid.com"

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("config error")
	}
	if !cfg.HasRequiredSecrets() {
		// Not fatal: the webhook speaks the configuration apology instead
		// of processing calls.
		logger.Warn("incident platform secrets missing; inbound calls will be rejected")
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	rosterClient := roster.NewClient("https://"+cfg.APIHost, cfg.APIID, cfg.APIKey, metrics)
	resolver := roster.NewResolver(rosterClient, logger)
	alertClient := alerting.NewClient("https://"+cfg.AlertHost, cfg.ServiceAPIKey)

	var mail callflow.Mailer
	if cfg.VMEmail {
		mail = mailer.NewClient(mailAPIBaseURL, cfg.MailAPIKey, cfg.MailTo, cfg.MailFrom)
	}

	machine := callflow.New(cfg, rosterClient, resolver, alertClient, mail, metrics, logger)
	api := httpapi.New(machine, logger)

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}
