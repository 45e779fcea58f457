package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ThreatLens/internal/handler/api"
	mid "ThreatLens/internal/middleware"
	"ThreatLens/internal/usecase"
	"ThreatLens/pkg/cache"
	pkgch "ThreatLens/pkg/clickhouse"
	"ThreatLens/pkg/config"
	xhttp "ThreatLens/pkg/http"
	pkgkafka "ThreatLens/pkg/kafka"
	applogger "ThreatLens/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	collector  *usecase.EventCollector
	processor  *usecase.EventProcessor
	pipe       *mid.IngestPipeline
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	chClient   *pkgch.Client
	retrainer  *usecase.Retrainer
	handler    *api.EventsHandler
	cacheSvc   cache.Service
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	collector *usecase.EventCollector,
	processor *usecase.EventProcessor,
	pipe *mid.IngestPipeline,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	retrainer *usecase.Retrainer,
	handler *api.EventsHandler,
	cacheSvc cache.Service,
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		collector: collector,
		processor: processor,
		pipe:      pipe,
		consumer:  consumer,
		kh:        kh,
		chClient:  chClient,
		retrainer: retrainer,
		handler:   handler,
		cacheSvc:  cacheSvc,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.log

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithAPIKey(a.cfg.Auth.APIKey),
	)

	// Resume scoring from a persisted model before the first training
	// cycle, then start the retraining loop.
	if err := a.retrainer.Restore(); err != nil {
		l.Warn("model restore failed, starting cold", applogger.Error(err))
	}
	a.retrainer.Start(ctx)
	l.Info("retrainer started", applogger.Duration("interval", a.cfg.Detector.TrainInterval))

	a.pipe.Start(ctx)

	// Start feed collector when a sensor feed is configured
	if a.collector != nil {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				l.Error("collector error", applogger.Error(err))
			}
		}()
		l.Info("feed collector started", applogger.Strings("channels", a.cfg.Feed.Channels))
	}

	// Start consumer if configured
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	// Start HTTP server
	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}
	l.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	l := a.log
	l.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop the retraining loop first so no new model lands mid-shutdown.
	if err := a.retrainer.Stop(shutdownCtx); err != nil {
		l.Warn("retrainer stop error", applogger.Error(err))
	}

	// Stop collector (pipeline + stream)
	if a.collector != nil {
		if err := a.collector.Shutdown(shutdownCtx); err != nil {
			l.Warn("collector stop error", applogger.Error(err))
		}
	} else {
		a.pipe.Stop()
	}

	// Shutdown HTTP server
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	// Stop consumer
	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// Close event processor resources (publisher/storage)
	if a.processor != nil {
		a.processor.Close()
	}

	// Close infrastructure clients
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.cacheSvc != nil {
		if err := a.cacheSvc.Close(); err != nil {
			l.Warn("cache close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
