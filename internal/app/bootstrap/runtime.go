package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/bubblehq/bubble-backend/internal/adapters/cache"
	eventadapter "github.com/bubblehq/bubble-backend/internal/adapters/events"
	grpcadapter "github.com/bubblehq/bubble-backend/internal/adapters/grpc"
	httpadapter "github.com/bubblehq/bubble-backend/internal/adapters/http"
	"github.com/bubblehq/bubble-backend/internal/adapters/postgres"
	"github.com/bubblehq/bubble-backend/internal/adapters/security"
	"github.com/bubblehq/bubble-backend/internal/application"
)

// Runtime owns every long-lived component. The same construction path backs
// both the API process and the outbox worker so wiring cannot drift between
// the two binaries.
type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	outbox     *eventadapter.OutboxWorker
	nonces     *postgres.NonceRepository
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("bootstrapping bubble backend", "service_id", cfg.ServiceID, "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := pool.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	repos := postgres.NewRepositories(pool)

	tokenSigner, err := security.NewJWTSigner(cfg.JWTKeyID, cfg.JWTIssuer, cfg.JWTPrivateKeyPEM, cfg.JWTPublicKeyPEM)
	if err != nil {
		if !cfg.AllowEphemeralJWT {
			_ = sqlDB.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("init jwt signer: %w", err)
		}
		logger.Warn("using ephemeral JWT keys for local/dev runtime")
		tokenSigner, err = security.NewEphemeralJWTSigner(cfg.JWTKeyID, cfg.JWTIssuer)
		if err != nil {
			_ = sqlDB.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("init ephemeral jwt signer: %w", err)
		}
	}

	lockouts := cacheadapter.NewRedisLockoutStore(redisClient)
	revocations := cacheadapter.NewRedisSessionRevocationStore(redisClient)
	// Redis is the primary replay store; the durable nonce table takes over
	// when Redis is unreachable so signed requests stay replay-protected.
	replay := cacheadapter.NewFailoverReplayGuard(
		cacheadapter.NewRedisReplayGuard(redisClient),
		repos.Nonces,
	)

	providers := make([]security.ProviderConfig, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers = append(providers, security.ProviderConfig{
			Name:     p.Name,
			Issuer:   p.Issuer,
			Audience: p.Audience,
			JWKSURL:  p.JWKSURL,
		})
	}
	federated := security.NewFederatedVerifier(providers, cfg.JWKSCacheTTL)

	publisher := eventadapter.NewLoggingPublisher(logger)

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			DefaultRole:            cfg.DefaultRole,
			TokenTTL:               cfg.TokenTTL,
			RefreshTTL:             cfg.RefreshTTL,
			SessionTTL:             cfg.SessionTTL,
			SessionAbsoluteTTL:     cfg.SessionAbsoluteTTL,
			SignatureWindow:        cfg.SignatureWindow,
			MagicLinkTTL:           cfg.MagicLinkTTL,
			MagicLinkStrictBinding: cfg.MagicLinkStrictBinding,
			FailedLoginThreshold:   cfg.FailedLoginThreshold,
			LockoutWindow:          cfg.LockoutWindow,
			LockoutDuration:        cfg.LockoutDuration,
		},
		Routes:        buildRouteClassifier(cfg.Routes),
		Users:         repos.Users,
		APIKeys:       repos.APIKeys,
		Sessions:      repos.Sessions,
		MagicLinks:    repos.MagicLinks,
		Recovery:      repos.Recovery,
		LoginAttempts: repos.LoginAttempts,
		Audit:         repos.Audit,
		Outbox:        repos.Outbox,
		Idempotency:   repos.Idempotency,
		Replay:        replay,
		Revocations:   revocations,
		Lockouts:      lockouts,
		Federated:     federated,
		Hasher:        security.NewBcryptHasher(cfg.BcryptCost),
		Signer:        tokenSigner,
		Publisher:     publisher,
	})

	readiness := func(ctx context.Context) error {
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}

	handler := httpadapter.NewHandler(svc, readiness)
	router := httpadapter.NewRouter(handler)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	grpcadapter.Register(grpcServer, grpcadapter.NewAuthInternalServer(svc))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}

	outbox := eventadapter.NewOutboxWorker(
		logger,
		repos.Outbox,
		publisher,
		cfg.OutboxPollInterval,
		cfg.OutboxBatchSize,
		cfg.OutboxClaimTTL,
		cfg.OutboxMaxRetries,
	)

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		outbox:     outbox,
		nonces:     repos.Nonces,
		cleanupFn: func(ctx context.Context) {
			_ = redisClient.Close()
			_ = sqlDB.Close()
		},
	}, nil
}

// RunAPI serves HTTP and gRPC until a shutdown signal or server failure.
func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}

// RunWorker runs the outbox publisher and the nonce pruner until cancellation.
func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go r.pruneNonces(ctx)

	r.logger.Info("outbox worker started")
	err := r.outbox.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	return nil
}

// pruneNonces deletes durable nonce rows once they fall outside twice the
// signature window; Redis entries expire on their own.
func (r *Runtime) pruneNonces(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.NoncePruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		cutoff := time.Now().UTC().Add(-2 * r.cfg.SignatureWindow)
		if _, err := r.nonces.PruneSeenBefore(ctx, cutoff); err != nil {
			r.logger.WarnContext(ctx, "nonce prune failed",
				"module", "bootstrap",
				"layer", "app",
				"operation", "prune_nonces",
				"outcome", "failure",
				"error", err,
			)
		}
	}
}

// buildRouteClassifier converts configured route entries into the
// application's rule table. An empty config falls back to the built-in table
// covering every route this service serves.
func buildRouteClassifier(entries []RouteEntry) *application.RouteClassifier {
	if len(entries) == 0 {
		entries = defaultRoutes()
	}
	rules := make([]application.RouteRule, 0, len(entries))
	for _, e := range entries {
		rules = append(rules, application.RouteRule{
			Method: e.Method,
			Prefix: e.Prefix,
			Class:  parseRouteClass(e.Class),
		})
	}
	return application.NewRouteClassifier(rules)
}

// parseRouteClass maps config class names to route classes. Unknown names
// resolve to the signed class so a typo cannot open a route.
func parseRouteClass(name string) application.RouteClass {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "public":
		return application.RoutePublic
	case "bearer":
		return application.RouteBearer
	case "signed+bearer", "signed_and_bearer":
		return application.RouteSignedAndBearer
	default:
		return application.RouteSigned
	}
}

func defaultRoutes() []RouteEntry {
	return []RouteEntry{
		{Method: "*", Prefix: "/healthz", Class: "public"},
		{Method: "*", Prefix: "/readyz", Class: "public"},
		{Method: "*", Prefix: "/.well-known", Class: "public"},
		{Method: "POST", Prefix: "/auth/v1/register", Class: "public"},
		{Method: "POST", Prefix: "/auth/v1/login", Class: "public"},
		{Method: "POST", Prefix: "/auth/v1/refresh", Class: "public"},
		{Method: "POST", Prefix: "/auth/v1/magic-link", Class: "public"},
		{Method: "POST", Prefix: "/auth/v1/federated", Class: "public"},
		{Method: "POST", Prefix: "/auth/v1/password", Class: "public"},
		{Method: "POST", Prefix: "/auth/v1/logout", Class: "bearer"},
		{Method: "*", Prefix: "/auth/v1/sessions", Class: "bearer"},
		{Method: "GET", Prefix: "/auth/v1/login-history", Class: "bearer"},
	}
}
