package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	mqcontracts "github.com/GambaGlobal/ai-email-project-sub000/contracts/mq"
	"github.com/GambaGlobal/ai-email-project-sub000/internal/dlq"
	"github.com/GambaGlobal/ai-email-project-sub000/internal/mqhandler"
	"github.com/GambaGlobal/ai-email-project-sub000/internal/provider"
	_ "github.com/GambaGlobal/ai-email-project-sub000/internal/provider/memprovider"
	"github.com/GambaGlobal/ai-email-project-sub000/internal/repository"
	"github.com/GambaGlobal/ai-email-project-sub000/internal/service"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/circuitbreaker"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/config"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/db"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/logger"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/mq"
	pkgredis "github.com/GambaGlobal/ai-email-project-sub000/pkg/redis"
	"github.com/GambaGlobal/ai-email-project-sub000/pkg/util"
)

// dedupTTL bounds how long a deterministic job id suppresses
// re-enqueues; long enough to cover the full retry budget of a job.
const dedupTTL = 24 * time.Hour

func main() {
	cfg, err := config.Load(config.GetConfigEnv(), "config")
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting pipeline worker...",
		zap.String("db_host", cfg.DB.Host),
		zap.String("mq_url", cfg.MQ.URL),
		zap.String("provider", cfg.Provider.Name),
		zap.Bool("fan_out_enabled", cfg.Pipeline.FanOutEnabled),
	)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis
	rdb := pkgredis.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	deduper := util.NewDeduper(rdb, dedupTTL, log)
	retryCounter := util.NewRetryCounter(rdb, dedupTTL)
	backoff := util.BackoffPolicy{Base: cfg.Pipeline.BackoffBase, Cap: cfg.Pipeline.BackoffCap}

	// Repositories
	cursorRepo := repository.NewCursorRepository(dbConn)
	syncRunRepo := repository.NewSyncRunRepository(dbConn)
	receiptRepo := repository.NewReceiptRepository(dbConn)
	dlqRepo := repository.NewDlqRepository(dbConn)
	jobStateRepo := repository.NewJobStateRepository(dbConn)
	killSwitchRepo := repository.NewKillSwitchRepository(dbConn)

	// Mail provider
	mailProvider, err := provider.Open(cfg.Provider.Name, cfg.Provider.DSN)
	if err != nil {
		log.Fatal("Failed to open mail provider", zap.Error(err))
	}

	// Services
	syncEngine := service.NewSyncEngine(mailProvider, cursorRepo, syncRunRepo, log)
	triageEngine := service.NewTriageEngine(cfg.Triage.OperatorAddresses)
	draftGuard := service.NewDraftGuard()
	killSwitch := service.NewKillSwitchService(killSwitchRepo, cfg.KillSwitch, log)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go killSwitch.Start(rootCtx)

	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig())
	dlqRunner := dlq.NewRunner(dlqRepo, cfg.Pipeline.DLQPayloadCap, log)

	// Publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL, deduper, log)
	if err != nil {
		log.Fatal("Failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Stage handlers
	notificationHandler := mqhandler.NewNotificationHandler(receiptRepo, cursorRepo, publisher, log)
	mailboxSyncHandler := mqhandler.NewMailboxSyncHandler(syncEngine, publisher, cfg.Pipeline.FanOutEnabled, log)
	fetchThreadHandler := mqhandler.NewFetchThreadHandler(mailProvider, breaker, publisher, log)
	triageHandler := mqhandler.NewTriageHandler(triageEngine, publisher, log)
	retrieveHandler := mqhandler.NewRetrieveHandler(service.NoopRetriever{}, publisher, log)
	generateHandler := mqhandler.NewGenerateHandler(service.NewHoldingReplyGenerator(), publisher, log)
	writebackHandler := mqhandler.NewWritebackHandler(mailProvider, killSwitch, draftGuard, breaker, log)

	type stageHandler interface {
		Handle(ctx context.Context, job *mq.Job) error
	}
	handlers := map[mqcontracts.Stage]stageHandler{
		mqcontracts.StageNotification: notificationHandler,
		mqcontracts.StageMailboxSync:  mailboxSyncHandler,
		mqcontracts.StageFetchThread:  fetchThreadHandler,
		mqcontracts.StageTriage:       triageHandler,
		mqcontracts.StageRetrieve:     retrieveHandler,
		mqcontracts.StageGenerate:     generateHandler,
		mqcontracts.StageWriteback:    writebackHandler,
	}

	stages := append([]mqcontracts.Stage{mqcontracts.StageNotification}, mqcontracts.Stages()...)
	consumers := make([]*mq.Consumer, 0, len(stages))
	for _, stage := range stages {
		h := handlers[stage]
		consumer, err := mq.NewConsumer(cfg.MQ.URL, string(stage), jobStateRepo, retryCounter, backoff, cfg.Pipeline.MaxAttempts, log)
		if err != nil {
			log.Fatal("Failed to init consumer", zap.String("stage", string(stage)), zap.Error(err))
		}
		defer consumer.Close()

		consumer.SetHandler(func(ctx context.Context, job *mq.Job) error {
			return dlqRunner.RunStage(ctx, job, func(ctx context.Context) error {
				return h.Handle(ctx, job)
			})
		})

		go func(stage mqcontracts.Stage, c *mq.Consumer) {
			log.Info("Starting stage consumer", zap.String("stage", string(stage)))
			if err := c.StartConsuming(); err != nil {
				log.Fatal("Stage consumer failed", zap.String("stage", string(stage)), zap.Error(err))
			}
		}(stage, consumer)
		consumers = append(consumers, consumer)
	}

	// Optional in-process DLQ replay sweep; zero interval leaves replay
	// to external tooling.
	if cfg.Pipeline.DLQReplayInterval > 0 {
		replay := dlq.NewReplayService(dlqRepo, publisher, jobStateRepo, deduper, log)
		go func() {
			ticker := time.NewTicker(cfg.Pipeline.DLQReplayInterval)
			defer ticker.Stop()
			for {
				select {
				case <-rootCtx.Done():
					return
				case <-ticker.C:
					n, err := replay.Replay(rootCtx, repository.DlqFilter{})
					if err != nil {
						log.Error("DLQ replay sweep failed", zap.Error(err))
					} else if n > 0 {
						log.Info("DLQ replay sweep complete", zap.Int("replayed", n))
					}
				}
			}
		}()
	}

	// Metrics + health
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !publisher.IsConnected() {
			http.Error(w, "mq connection lost", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
	go func() {
		log.Info("Metrics listener starting", zap.String("addr", cfg.Metrics.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Metrics listener failed", zap.Error(err))
		}
	}()

	log.Info("Pipeline worker is fully initialized and running",
		zap.Int("stages", len(consumers)),
		zap.String("metrics_addr", cfg.Metrics.Addr),
	)

	<-rootCtx.Done()
	log.Info("Shutting down pipeline worker gracefully...")

	for _, c := range consumers {
		c.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("Metrics listener shutdown error", zap.Error(err))
	}

	log.Info("Pipeline worker shutdown complete")
}
