package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ostapkh/cloud-hibernator/internal/cloud"
	"github.com/ostapkh/cloud-hibernator/internal/compute"
	"github.com/ostapkh/cloud-hibernator/internal/config"
	"github.com/ostapkh/cloud-hibernator/internal/dbpower"
	eventskafka "github.com/ostapkh/cloud-hibernator/internal/events/kafka"
	historypg "github.com/ostapkh/cloud-hibernator/internal/history/postgres"
	"github.com/ostapkh/cloud-hibernator/internal/metrics"
	"github.com/ostapkh/cloud-hibernator/internal/orchestrator"
	"github.com/ostapkh/cloud-hibernator/internal/replay"
	"github.com/ostapkh/cloud-hibernator/internal/routing"
	"github.com/ostapkh/cloud-hibernator/internal/server"
	"github.com/ostapkh/cloud-hibernator/internal/waiter"
)

func loggerLevelFromString(level string) zerolog.Level {
	level = strings.ToLower(level)
	switch level {
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read app config")
	}
	log.Logger = log.Level(loggerLevelFromString(cfg.LoggerLevel))

	clnt := cloud.NewClient(cloud.Config{
		BaseURL:      cfg.ControlPlaneURL,
		ListenerID:   cfg.ListenerID,
		ClusterID:    cfg.ClusterID,
		ServiceID:    cfg.ServiceID,
		DBInstanceID: cfg.DBInstanceID,
	})

	swapper := routing.NewSwapper(clnt,
		routing.ManagedRule{Pool: cfg.PlaceholderPool, RuleID: cloud.RuleID(cfg.PlaceholderRuleID)},
		routing.ManagedRule{Pool: cfg.BackendPool, RuleID: cloud.RuleID(cfg.BackendRuleID)},
	)
	scaler := compute.NewScaler(clnt)
	dbctl := dbpower.NewController(clnt)
	drain := waiter.NewDrainWaiter(scaler, cfg.DrainInterval, cfg.DrainBudget)
	readiness := waiter.NewReadinessWaiter(scaler, clnt, cfg.ReadinessInterval, cfg.ReadinessBudget)
	replayer := replay.NewReplayer(cfg.ReplayInterval, cfg.ReplayMaxAttempts, cfg.ReplayPerTryTimeout)

	var mtr metrics.Metrics = metrics.Noop{}
	if cfg.StatsdAddr != "" {
		mtr = metrics.NewStatsd(cfg.NodeName, cfg.StatsdAddr)
	}

	var recorder orchestrator.TransitionRecorder = orchestrator.NopRecorder{}
	var history server.TransitionHistory
	if cfg.DatabaseHost != "" {
		repo, err := historypg.NewRepo(ctx, cfg.DatabaseUser, cfg.DatabasePassword, cfg.DatabaseHost, cfg.DatabasePort)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init transition history repository")
		}
		recorder = repo
		history = repo
	}

	var notifier orchestrator.LifecycleNotifier = orchestrator.NopNotifier{}
	if len(cfg.KafkaBrokers) != 0 {
		kn := eventskafka.NewNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			_ = kn.Close()
		}()
		notifier = kn
	}

	hibernate := orchestrator.NewHibernate(swapper, scaler, drain, dbctl, recorder, notifier, mtr)
	wake := orchestrator.NewWake(
		scaler, dbctl, swapper, readiness, replayer,
		recorder, notifier, mtr,
		cfg.StartupWaitForReady,
	)

	srv := server.New(wake, hibernate, history, cfg.BackendScheme, cfg.BackendDomain, cfg.WakeRunBudget, cfg.HibernateRunBudget)
	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}
	go func() {
		log.Info().Msgf("placeholder endpoint listening on %s", cfg.ListenAddr)
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to serve http")
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
