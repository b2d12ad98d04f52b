package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	adminhandler "canopy/internal/admin/handler"
	adminmetrics "canopy/internal/admin/metrics"
	adminservice "canopy/internal/admin/service"
	adminstore "canopy/internal/admin/store"
	"canopy/internal/attestation"
	"canopy/internal/audit"
	auditpublisher "canopy/internal/audit/publisher"
	auditmemory "canopy/internal/audit/store/memory"
	auditpostgres "canopy/internal/audit/store/postgres"
	"canopy/internal/content"
	"canopy/internal/document/events"
	dochandler "canopy/internal/document/handler"
	docmetrics "canopy/internal/document/metrics"
	"canopy/internal/document/poller"
	"canopy/internal/document/reconcile"
	docservice "canopy/internal/document/service"
	"canopy/internal/document/store"
	"canopy/internal/jwtauth"
	"canopy/internal/ledger/httpclient"
	"canopy/internal/platform/config"
	"canopy/internal/platform/httpserver"
	"canopy/internal/platform/kafka"
	"canopy/internal/platform/kv"
	"canopy/internal/platform/logger"
	"canopy/internal/platform/redis"
	ratelimiter "canopy/internal/ratelimit/limiter"
	ratelimitmetrics "canopy/internal/ratelimit/metrics"
	ratelimitmw "canopy/internal/ratelimit/middleware"
	ratelimitstore "canopy/internal/ratelimit/store"
	"canopy/internal/signing"
	"canopy/pkg/platform/httputil"
	"canopy/pkg/platform/middleware/actorauth"
	"canopy/pkg/platform/middleware/device"
	"canopy/pkg/platform/middleware/metadata"
	"canopy/pkg/platform/middleware/requesttime"
)

const (
	shutdownTimeout = 10 * time.Second
	pingTimeout     = 5 * time.Second

	tokenIssuer   = "canopy"
	tokenAudience = "canopy-api"
)

// devSignerDomain separates development signatures from any real deployment.
// Production replaces the seed-derived signer and these parameters together.
var devSignerDomain = signing.Domain{
	Name:              "CanopyCredits",
	Version:           "1",
	ChainID:           1337,
	VerifyingContract: "0x0000000000000000000000000000000000000001",
}

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal service
// packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// run builds the dependency graph in dependency order (substrate, stores,
// clients, services, transport) and blocks until shutdown.
func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	substrate, err := kv.Open(kv.Config{Path: cfg.DataDir, SyncWrites: true, Logger: log})
	if err != nil {
		return fmt.Errorf("open kv substrate: %w", err)
	}
	defer substrate.Close()

	// Record store: redis when configured, kv-snapshotting memory otherwise.
	// Snapshot corruption is survivable; the ledger remains the system of
	// record, so a damaged local cache starts empty instead of blocking boot.
	var records store.RecordStore
	redisClient, err := redis.New(cfg.RedisConfig())
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		records = store.NewRedis(redisClient.Client)
		log.Info("record store backed by redis")
	} else {
		persistent := store.NewPersistent(substrate)
		if err := persistent.Load(ctx); err != nil {
			log.Warn("document snapshot unreadable, starting empty", "error", err)
		}
		records = persistent
	}

	contents := content.NewKVStore(substrate)

	signer, err := signing.NewDevSigner(cfg.SignerKeySeed, devSignerDomain)
	if err != nil {
		return fmt.Errorf("build signer: %w", err)
	}
	codec := attestation.NewCodec()

	ledgerClient, err := httpclient.New(cfg.LedgerURL, cfg.LedgerTimeout, httpclient.WithLogger(log))
	if err != nil {
		return fmt.Errorf("build ledger client: %w", err)
	}
	defer ledgerClient.Close()
	if !ledgerClient.IsConfigured() {
		log.Warn("ledger endpoint not configured, documents stay local-only")
	}

	documentMetrics := docmetrics.New()
	adminMetrics := adminmetrics.New()

	// Kafka is optional. Without brokers, change events are not forwarded
	// and audit entries live only in their store.
	var (
		kafkaClient *kafka.Client
		eventsPub   events.Publisher
		auditPub    *auditpublisher.Publisher
	)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaClient, err = kafka.New(cfg.KafkaBrokers, log)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer kafkaClient.Close()
		if err := kafkaClient.EnsureTopics(ctx, kafka.TopicAuditEntries, kafka.TopicDocumentEvents); err != nil {
			return fmt.Errorf("ensure kafka topics: %w", err)
		}
		eventsPub, err = events.NewKafkaPublisher(kafkaClient, log)
		if err != nil {
			return fmt.Errorf("build event publisher: %w", err)
		}
		auditPub, err = auditpublisher.New(kafkaClient,
			auditpublisher.WithLogger(log),
			auditpublisher.WithAsyncBuffer(256),
		)
		if err != nil {
			return fmt.Errorf("build audit publisher: %w", err)
		}
		defer auditPub.Close()
	}

	documentOpts := []docservice.Option{
		docservice.WithLogger(log),
		docservice.WithMetrics(documentMetrics),
	}
	if eventsPub != nil {
		documentOpts = append(documentOpts, docservice.WithEventPublisher(eventsPub))
	}
	documentService, err := docservice.New(records, ledgerClient, contents, signer, codec, documentOpts...)
	if err != nil {
		return fmt.Errorf("build document service: %w", err)
	}

	engine := reconcile.New(records, ledgerClient, reconcile.WithLogger(log))

	syncPoller, err := poller.New(engine,
		poller.WithLogger(log),
		poller.WithMetrics(documentMetrics),
		poller.WithInterval(cfg.PollInterval),
	)
	if err != nil {
		return fmt.Errorf("build poller: %w", err)
	}
	defer syncPoller.Close()

	// Subscribers drive the poll loop. Without kafka, a log listener keeps
	// periodic reconciliation running whenever a ledger is attached.
	switch {
	case eventsPub != nil:
		syncPoller.Subscribe(poller.NewForwarder(eventsPub, log))
	case ledgerClient.IsConfigured():
		syncPoller.Subscribe(func(event events.Event) {
			log.Info("document change detected",
				"type", string(event.Type),
				"document_id", event.DocumentID,
			)
		})
	}

	auditStore, closeAudit, err := openAuditStore(ctx, cfg, substrate, log)
	if err != nil {
		return err
	}
	defer closeAudit()

	// The persistent constructors return a usable empty store on snapshot
	// corruption and nil only when the substrate itself cannot be read.
	users, err := adminstore.NewPersistentUsers(ctx, substrate)
	if err != nil {
		if users == nil {
			return fmt.Errorf("open user store: %w", err)
		}
		log.Warn("user snapshot unreadable, starting empty", "error", err)
	}
	credentials, err := adminstore.NewPersistentCredentials(ctx, substrate)
	if err != nil {
		if credentials == nil {
			return fmt.Errorf("open credential store: %w", err)
		}
		log.Warn("credential snapshot unreadable, starting empty", "error", err)
	}

	adminOpts := []adminservice.Option{
		adminservice.WithLogger(log),
		adminservice.WithMetrics(adminMetrics),
	}
	if auditPub != nil {
		adminOpts = append(adminOpts, adminservice.WithAuditPublisher(auditPub))
	}
	adminService, err := adminservice.New(users, credentials, records, auditStore, adminOpts...)
	if err != nil {
		return fmt.Errorf("build admin service: %w", err)
	}

	tokens := jwtauth.NewService(cfg.JWTSigningKey, tokenIssuer, tokenAudience)

	// Rate limiting counts in redis when one is configured so budgets hold
	// across replicas; single-node deployments count in process memory.
	var limitRequests func(http.Handler) http.Handler
	if !cfg.RateLimitDisabled {
		var limitStore ratelimitstore.Store
		if redisClient != nil {
			limitStore = ratelimitstore.NewRedis(redisClient.Client)
		} else {
			limitStore = ratelimitstore.NewMemory()
		}
		requestLimiter, err := ratelimiter.New(limitStore, ratelimiter.WithLogger(log))
		if err != nil {
			return fmt.Errorf("build rate limiter: %w", err)
		}
		limitRequests = ratelimitmw.New(requestLimiter, log,
			ratelimitmw.WithMetrics(ratelimitmetrics.New()),
		).Limit
	}

	router := chi.NewRouter()
	router.Use(metadata.RequestID)
	router.Use(requesttime.Middleware)
	router.Use(metadata.ClientMetadata)
	router.Use(device.Middleware)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(actorauth.RequireActor(jwtauth.NewValidator(tokens), log))
		if limitRequests != nil {
			r.Use(limitRequests)
		}
		dochandler.New(documentService, engine, log).Register(r)
		adminhandler.New(adminService, log).Register(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	// Flush the record snapshot so a clean stop loses nothing.
	if err := records.Persist(context.Background()); err != nil {
		log.Warn("failed to persist record snapshot", "error", err)
	}
	return nil
}

// openAuditStore selects postgres when a DSN is configured and the persistent
// memory store otherwise. The returned closer releases the database handle.
func openAuditStore(ctx context.Context, cfg config.Config, substrate *kv.Store, log *slog.Logger) (audit.Store, func(), error) {
	if cfg.PostgresDSN == "" {
		memory, err := auditmemory.NewPersistent(ctx, substrate)
		if err != nil {
			if memory == nil {
				return nil, nil, fmt.Errorf("open audit store: %w", err)
			}
			log.Warn("audit snapshot unreadable, starting empty", "error", err)
		}
		return memory, func() {}, nil
	}

	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	pg := auditpostgres.New(db)
	if err := pg.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	log.Info("audit trail backed by postgres")
	return pg, func() { _ = db.Close() }, nil
}
