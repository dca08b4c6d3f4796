package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medianest/backend/internal/audit"
	auditrepo "medianest/backend/internal/audit/repository"
	"medianest/backend/internal/config"
	"medianest/backend/internal/counterstore"
	"medianest/backend/internal/db"
	healthhandler "medianest/backend/internal/health/handler"
	identityhandler "medianest/backend/internal/identity/handler"
	identityrepo "medianest/backend/internal/identity/repository"
	identitysvc "medianest/backend/internal/identity/service"
	mediahandler "medianest/backend/internal/media/handler"
	mediasvc "medianest/backend/internal/media/service"
	"medianest/backend/internal/mediabroker"
	pinhandler "medianest/backend/internal/pin/handler"
	"medianest/backend/internal/pin/registry"
	pinsvc "medianest/backend/internal/pin/service"
	"medianest/backend/internal/plex"
	"medianest/backend/internal/ratelimit"
	"medianest/backend/internal/resilience"
	"medianest/backend/internal/security"
	"medianest/backend/internal/server"
	"medianest/backend/internal/server/middleware"
	sessionhandler "medianest/backend/internal/session/handler"
	sessionrepo "medianest/backend/internal/session/repository"
	sessionsvc "medianest/backend/internal/session/service"
	"medianest/backend/internal/status"
	statushandler "medianest/backend/internal/status/handler"
	"medianest/backend/internal/telemetry"
	"medianest/backend/internal/telemetry/otel"
	"medianest/backend/internal/telemetry/producer"
	"medianest/backend/internal/uptime"
)

// Service names as they appear in status snapshots and breaker state.
const (
	serviceNamePlex   = "plex"
	serviceNameBroker = "mediabroker"
	serviceNameUptime = "uptime"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	database, err := db.Open(dbCtx, cfg.DatabaseURL)
	dbCancel()
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer database.Close()

	var store counterstore.Store
	if cfg.RedisURL != "" {
		redisStore, err := counterstore.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("counter store: %v", err)
		}
		store = redisStore
	} else {
		log.Println("REDIS_URL not set, using in-process counter store (single instance only)")
		store = counterstore.NewMemoryStore()
	}

	privateKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("jwt private key: %v", err)
	}
	publicKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("jwt public key: %v", err)
	}
	tokens := security.NewTokenProvider(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.SessionTTLDuration())

	// Telemetry backends, all optional.
	ctx := context.Background()
	providers, err := otel.NewProviders(ctx, cfg.OTLPLogEndpoint, "medianest-server", false)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	emitters := telemetry.MultiEmitter{otel.NewEventEmitter(providers.LoggerProvider)}
	kafkaProducer, err := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic)
	if err != nil {
		log.Fatalf("kafka producer: %v", err)
	}
	if kafkaProducer != nil {
		defer kafkaProducer.Close()
		emitters = append(emitters, kafkaProducer)
	}

	auditor := audit.Multi{
		audit.NewLogger(auditrepo.NewPostgresRepository(database), middleware.GetClientIP),
		telemetry.NewSecurityEventLogger(emitters),
	}

	// Repositories and core services.
	identities := identityrepo.NewPostgresRepository(database)
	sessions := sessionsvc.NewSessionService(
		sessionrepo.NewPostgresRepository(database),
		sessionrepo.NewPostgresRememberTokenRepository(database),
		identities,
		tokens,
		store,
		cfg.RememberTokenTTLDuration(),
	)
	identityService := identitysvc.NewIdentityService(identities, security.NewHasher(cfg.BcryptCost), auditor)

	// Resilience layer: one breaker and status snapshot per dependency.
	snapshots := resilience.NewSnapshotStore(store, []string{serviceNamePlex, serviceNameBroker, serviceNameUptime})
	broadcaster := status.NewBroadcaster()
	snapshots.SetListener(broadcaster.Publish)
	newClient := func(name string) *resilience.Client {
		settings := resilience.Settings{
			FailureThreshold: cfg.BreakerFailureThresholdFor(name),
			ResetTimeout:     cfg.BreakerResetTimeoutFor(name),
			MaxResetTimeout:  cfg.BreakerMaxResetTimeoutDuration(),
			CallTimeout:      cfg.DependencyTimeoutFor(name),
			MaxAttempts:      cfg.RetryMaxAttempts,
		}
		return resilience.NewClient(name, resilience.NewBreaker(name, store, settings), settings, snapshots)
	}

	plexClient := plex.New(cfg.PlexBaseURL, cfg.PlexClientID, cfg.PlexProduct)
	pins := pinsvc.NewPinService(
		registry.NewRegistry(store),
		plexClient,
		newClient(serviceNamePlex),
		identities,
		sessions,
		store,
		cfg.PinTTLDuration(),
		cfg.PinPollCeiling,
	)

	brokerClient := mediabroker.New(cfg.MediaBrokerURL, cfg.MediaBrokerAPIKey)
	media := mediasvc.NewMediaService(brokerClient, newClient(serviceNameBroker), store)

	limiter := ratelimit.NewLimiter(store, limiterRules(cfg))

	router := server.NewRouter(server.Deps{
		Identity: identityhandler.NewHandler(identityService, sessions),
		Pin:      pinhandler.NewHandler(pins, auditor),
		Session:  sessionhandler.NewHandler(sessions, auditor),
		Status:   statushandler.NewHandler(snapshots, broadcaster, sessions),
		Media:    mediahandler.NewHandler(media),
		Health: healthhandler.NewHandler(
			database,
			healthhandler.PingerFunc(store.Ping),
		),
		Limiter:  limiter,
		Sessions: sessions,
	})

	// Background probe keeps the uptime-monitor snapshot fresh even when no
	// request traffic exercises it.
	pollCtx, stopPoll := context.WithCancel(ctx)
	defer stopPoll()
	go pollUptime(pollCtx, newClient(serviceNameUptime), uptime.New(cfg.UptimeMonitorURL), cfg.StatusPollIntervalDuration())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	stopPoll()

	// Give in-flight async telemetry emits time to land before tearing the
	// providers down.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(ctx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("HTTP server stopped")
}

func limiterRules(cfg *config.Config) map[string]ratelimit.Rule {
	rules := map[string]ratelimit.Rule{}
	for class, r := range cfg.RateLimitRules() {
		rules[class] = ratelimit.Rule{Limit: r.Limit, Window: r.Window}
	}
	return rules
}

// pollUptime probes the uptime monitor on a fixed cadence. The resilience
// client records the snapshot; results are not otherwise used.
func pollUptime(ctx context.Context, rc *resilience.Client, client *uptime.Client, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := resilience.Call(ctx, rc,
				func(ctx context.Context) ([]uptime.Monitor, error) {
					return client.ListMonitors(ctx)
				},
				func(ctx context.Context, cause error) ([]uptime.Monitor, error) {
					return nil, cause
				})
			if err != nil {
				log.Printf("uptime probe: %v", err)
			}
		}
	}
}
