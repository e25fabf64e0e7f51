// Package main is the entry point for the operator monitor: it acquires the
// shared realtime connection, joins the support channel and optionally one
// exam monitoring room, and logs alerts and statistics until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/examportal/realtime-platform/internal/config"
	"github.com/examportal/realtime-platform/internal/consumer"
	"github.com/examportal/realtime-platform/internal/history"
	"github.com/examportal/realtime-platform/internal/model"
	"github.com/examportal/realtime-platform/internal/realtime"
	"github.com/examportal/realtime-platform/pkg/logger"
	"github.com/examportal/realtime-platform/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting monitor")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "realtime-monitor", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	identity := model.Identity{
		ParticipantID: cfg.ParticipantID,
		Role:          model.Role(cfg.Role),
		DisplayName:   cfg.DisplayName,
	}
	if identity.ParticipantID == "" {
		identity.ParticipantID = uuid.New().String()
	}
	if identity.DisplayName == "" {
		identity.DisplayName = "Operator"
	}

	// The shared connection: one physical transport for every consumer in
	// this process. Consumer mounts below never dial a second one.
	manager := realtime.NewManager(realtime.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err := manager.Acquire(); err != nil {
		log.Error("failed to acquire transport", zap.Error(err))
		os.Exit(1)
	}

	source := history.NewClient(cfg.HistoryBaseURL, cfg.HistoryToken)

	console := consumer.NewAdminConsole(manager, source, identity, cfg.HistoryLimit, log)
	if err := console.Start(ctx); err != nil {
		log.Error("failed to start admin console", zap.Error(err))
		os.Exit(1)
	}
	defer console.Stop()

	var monitor *consumer.ExamMonitor
	if cfg.ExamID != "" {
		monitor = consumer.NewExamMonitor(manager, source, identity, cfg.ExamID, cfg.HistoryLimit,
			func(evt model.Event) {
				log.Warn("monitoring alert",
					zap.String("participant_id", evt.ParticipantID),
					zap.String("event_type", evt.EventType),
					zap.String("severity", string(evt.Severity)),
					zap.String("content", evt.Content),
				)
			}, log)
		if err := monitor.Start(ctx); err != nil {
			log.Error("failed to start exam monitor", zap.Error(err))
			os.Exit(1)
		}
		monitor.SetLive(true)
		defer monitor.Stop()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down monitor")

	if monitor != nil {
		for _, s := range monitor.Stats() {
			log.Info("participant summary",
				zap.String("participant_id", s.ParticipantID),
				zap.Int("events", s.Total),
				zap.Int64("first_ts", s.FirstTimestamp),
				zap.Int64("last_ts", s.LastTimestamp),
			)
		}
	}
}
