package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"custodia/internal/anomaly"
	"custodia/internal/audit"
	"custodia/internal/auth"
	"custodia/internal/consent"
	"custodia/internal/grievance"
	"custodia/internal/notifier"
	"custodia/internal/platform/config"
	"custodia/internal/platform/database"
	"custodia/internal/platform/health"
	"custodia/internal/platform/httpserver"
	"custodia/internal/platform/logger"
	"custodia/internal/platform/metrics"
	"custodia/internal/platform/tracer"
	"custodia/internal/retention"
	"custodia/internal/rights"
	"custodia/internal/siem"
	httptransport "custodia/internal/transport/http"
	"custodia/internal/user"
	"custodia/migrations"
)

// main wires the dependency graph and owns the process lifecycle.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing custodia",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"siem_configured", cfg.SIEMWebhookURL != "",
	)

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if pool == nil {
		log.Warn("DATABASE_URL not set, using in-memory stores")
	} else {
		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := pool.Migrate(migrateCtx, migrations.FS); err != nil {
			cancel()
			log.Error("schema migration failed", "error", err)
			os.Exit(1)
		}
		cancel()
	}

	m := metrics.New()
	detector := anomaly.NewDetector()
	notices := notifier.NewLogNotifier(log)

	var (
		userStore      user.Store
		consentStore   consent.Store
		grievanceStore grievance.Store
		auditStore     audit.Store
		policyStore    retention.Store
		consentTx      consent.StoreTx
		grievanceTx    grievance.StoreTx
		rightsTx       rights.StoreTx
	)
	if pool != nil {
		db := pool.DB()
		userStore = user.NewPostgres(db)
		consentStore = consent.NewPostgres(db)
		grievanceStore = grievance.NewPostgres(db)
		auditStore = audit.NewPostgres(db)
		policyStore = retention.NewPostgres(db)
		consentTx = newConsentPostgresTx(db)
		grievanceTx = newGrievancePostgresTx(db)
		rightsTx = newRightsPostgresTx(db)
	} else {
		memUsers := user.NewInMemoryStore()
		memConsents := consent.NewInMemoryStore()
		memGrievances := grievance.NewInMemoryStore()
		memAudit := audit.NewInMemoryStore()
		userStore = memUsers
		consentStore = memConsents
		grievanceStore = memGrievances
		auditStore = memAudit
		policyStore = retention.NewInMemoryStore()
		consentTx = consent.NewMemoryTx(memConsents, memAudit)
		grievanceTx = grievance.NewMemoryTx(memGrievances, memAudit)
		rightsTx = rights.NewMemoryTx(rights.TxStores{
			Users:      memUsers,
			Consents:   memConsents,
			Grievances: memGrievances,
			Audit:      memAudit,
		})
	}

	trail := audit.NewTrail(auditStore,
		audit.WithLogger(log),
		audit.WithMetrics(m),
		audit.WithTracer(tracer.NewOTel()),
	)
	forwarder := siem.NewForwarder(siem.Config{
		URL:         cfg.SIEMWebhookURL,
		APIKey:      cfg.SIEMAPIKey,
		Timeout:     cfg.SIEMTimeout,
		Application: cfg.AppName,
	}, auditStore, siem.WithLogger(log), siem.WithMetrics(m))

	ledger := consent.NewLedger(consentStore, consentTx, trail,
		consent.WithLogger(log),
		consent.WithMetrics(m),
		consent.WithDetector(detector),
		consent.WithForwarder(forwarder),
		consent.WithNotifier(notices, userStore),
	)
	manager := grievance.NewCaseManager(grievanceStore, grievanceTx, trail,
		grievance.WithLogger(log),
		grievance.WithMetrics(m),
		grievance.WithDetector(detector),
		grievance.WithForwarder(forwarder),
		grievance.WithNotifier(notices, userStore),
		grievance.WithSLA(cfg.GrievanceSLA),
	)
	ops := rights.NewOperations(userStore, ledger, rightsTx, trail,
		rights.WithLogger(log),
		rights.WithMetrics(m),
		rights.WithDetector(detector),
		rights.WithForwarder(forwarder),
		rights.WithNotifier(notices),
		rights.WithGracePeriod(cfg.ErasureGracePeriod),
	)

	tokens := auth.NewTokenIssuer(cfg.JWTSigningKey, cfg.AppName, cfg.TokenTTL)
	authSvc := auth.NewService(userStore, ledger, trail, tokens,
		auth.WithLogger(log),
		auth.WithMetrics(m),
		auth.WithDetector(detector),
		auth.WithForwarder(forwarder),
		auth.WithNotifier(notices),
	)

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := retention.SeedPolicies(seedCtx, policyStore, time.Now().UTC()); err != nil {
		seedCancel()
		log.Error("retention policy seeding failed", "error", err)
		os.Exit(1)
	}
	seedCancel()

	healthHandler := health.New(cfg.Environment)
	if pool != nil {
		healthHandler.RegisterCheck("database", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(ctx)
		})
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Auth:      httptransport.NewAuthHandler(authSvc),
		Consent:   httptransport.NewConsentHandler(ledger),
		Grievance: httptransport.NewGrievanceHandler(manager),
		Rights:    httptransport.NewRightsHandler(ops),
		Admin:     httptransport.NewAdminHandler(manager, trail, policyStore),
		Health:    healthHandler,
		Verifier:  tokens,
		Logger:    log,
		Metrics:   m,
	})

	sweeper := retention.NewSweeper(userStore, ops,
		retention.WithLogger(log),
		retention.WithMetrics(m),
		retention.WithInterval(cfg.RetentionSweepInterval),
		retention.WithOverdueLister(manager),
	)
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go func() {
		if err := sweeper.Start(sweepCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("retention sweeper stopped", "error", err)
		}
	}()

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting http server", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down gracefully")
	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	// Let in-flight SIEM deliveries finish before the process exits.
	forwarder.Wait()

	if err := pool.Close(); err != nil {
		log.Error("closing database pool failed", "error", err)
	}
	log.Info("server stopped")
}
