package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/adapters/events"
	"github.com/layer-3/walletauth/adapters/repository"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/adapters/verifier"
	"github.com/layer-3/walletauth/config"
	"github.com/layer-3/walletauth/ports"
	"github.com/layer-3/walletauth/service"
	httptransport "github.com/layer-3/walletauth/transport/http"
	"github.com/redis/go-redis/v9"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var (
		nonces      ports.NonceStore
		revocations ports.RevocationStore
		publisher   ports.EventPublisher = events.NopPublisher{}
	)

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse redis url: %w", err)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}

		nonces = store.NewRedisNonceStore(redisClient, store.WithTTL(cfg.NonceTTL))
		revocations = store.NewRedisStore(redisClient)

		pub, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client: redisClient,
			},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			return fmt.Errorf("failed to create redis publisher: %w", err)
		}
		defer pub.Close()
		publisher = events.NewWatermillPublisher(pub)
		logger.Info("using redis stores", "events", "redisstream")
	} else {
		nonces = store.NewMemoryNonceStore(store.WithTTL(cfg.NonceTTL))
		revocations = store.NewMemoryStore()
		logger.Warn("REDIS_URL not set, using in-memory stores")
	}

	var repo ports.Repository
	if cfg.DatabaseURL != "" {
		db, err := repository.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		repo = repository.NewPostgresRepository(db)
	} else {
		repo = repository.NewMemoryRepository()
		logger.Warn("DATABASE_URL not set, using in-memory repository")
	}

	chains, closeChains, err := verifier.DialChains(ctx, cfg.ChainRPC)
	if err != nil {
		return err
	}
	defer closeChains()

	tok := tokenizer.NewJWTTokenizer([]byte(cfg.AuthSecret), tokenizer.WithIssuer(cfg.Issuer))

	var resolverOpts []service.ResolverOption
	if cfg.DeferSignup {
		resolverOpts = append(resolverOpts, service.WithDeferredSignup())
	}
	resolver := service.NewAccountResolver(repo, logger, resolverOpts...)
	issuer := service.NewSessionIssuer(tok, revocations, cfg.AccessTTL, cfg.RefreshTTL)
	validator := service.NewSessionValidator(tok, revocations, resolver, logger)

	authService := service.NewAuthService(service.Dependencies{
		Nonces:    nonces,
		Verifier:  verifier.NewEthVerifier(chains, logger),
		Tokenizer: tok,
		Repo:      repo,
		Events:    publisher,
		Resolver:  resolver,
		Issuer:    issuer,
		Validator: validator,
		Logger:    logger,
	}, service.Policy{
		AllowedChains:    cfg.AllowedChains,
		AllowedDomains:   cfg.AllowedDomains,
		PendingSignupTTL: cfg.PendingSignupTTL,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := httptransport.SetupRouter(authService, validator, httptransport.RouterConfig{
		Cookies: httptransport.CookieConfig{
			Secure:     cfg.CookieSecure || cfg.IsProduction(),
			Domain:     cfg.CookieDomain,
			AccessTTL:  cfg.AccessTTL,
			RefreshTTL: cfg.RefreshTTL,
			NonceTTL:   cfg.NonceTTL,
		},
		ProtectedPrefix: cfg.ProtectedPrefix,
		LoginPath:       cfg.LoginPath,
		DashboardDir:    cfg.DashboardDir,
	}, logger)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "env", cfg.Env, "chains", cfg.AllowedChains)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
