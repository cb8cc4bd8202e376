package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/auth"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/chat"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/config"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/core"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/delivery"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/events"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/metrics"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/presence"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/store/pebblestore"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/store/sqlite"
	transporthttp "github.com/privatelovie/social-commerce-platform-sub001/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	bus             events.Bus
	kafka           *events.KafkaBus
	presence        *presence.Redis
	redis           *redis.Client
	scheduler       *delivery.Scheduler
	log             *zerolog.Logger
}

// OpenStore opens the storage driver selected by cfg.
func OpenStore(cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.New(cfg.Path)
	case "pebble":
		return pebblestore.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// JWTConfig converts the configuration section to what the auth package signs with.
func JWTConfig(cfg config.JWTConfig) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.Secret),
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		TTL:      cfg.TTL,
	}
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	a := &App{
		shutdownTimeout: cfg.Server.ShutdownTimeout,
		log:             logger,
	}

	st, err := OpenStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	a.store = st
	logger.Info().Str("driver", cfg.Storage.Driver).Str("path", cfg.Storage.Path).Msg("store initialized")

	local := presence.NewLocal()
	var registry presence.Registry = local
	if cfg.Presence.Backend == "redis" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Presence.RedisAddr,
			Password: cfg.Presence.RedisPassword,
			DB:       cfg.Presence.RedisDB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.cleanup()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.presence = presence.NewRedis(local, a.redis, cfg.Presence.Node, logger)
		if err := a.presence.Purge(ctx); err != nil {
			logger.Warn().Err(err).Msg("purge stale presence")
		}
		registry = a.presence
		logger.Info().Str("addr", cfg.Presence.RedisAddr).Str("node", cfg.Presence.Node).Msg("shared presence enabled")
	}

	switch cfg.Bus.Backend {
	case "kafka":
		kb, err := events.NewKafkaBus(events.KafkaConfig{
			Brokers: cfg.Bus.Brokers,
			Topic:   cfg.Bus.Topic,
			Node:    cfg.Presence.Node,
		}, logger)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init event bus: %w", err)
		}
		a.kafka = kb
		a.bus = kb
		logger.Info().Strs("brokers", cfg.Bus.Brokers).Str("topic", cfg.Bus.Topic).Msg("kafka event bus enabled")
	default:
		a.bus = events.NewLocalBus()
	}

	m := metrics.New(local)
	router := core.NewRouter(registry, m, logger)
	a.bus.Subscribe(router.Route)

	svc := chat.NewService(st, a.bus, logger, chat.WithObserver(m))
	mode, err := delivery.ParseMode(cfg.Delivery.Mode)
	if err != nil {
		a.cleanup()
		return nil, err
	}
	a.scheduler = delivery.NewScheduler(mode, cfg.Delivery.GraceDelay, registry, svc.ConfirmDelivered, logger)
	svc.SetScheduler(a.scheduler)

	if cfg.JWT.Secret == config.DefaultJWTSecret {
		logger.Warn().Msg("using the default JWT secret; set CARTCHAT_JWT_SECRET outside development")
	}
	authService := auth.NewService(st, JWTConfig(cfg.JWT))

	deps := transporthttp.Dependencies{
		Hub:      core.NewHub(registry, router, a.bus, svc, logger),
		Chat:     svc,
		Auth:     authService,
		Users:    st,
		Presence: registry,
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = m.Handler()
	}
	a.server = transporthttp.NewServer(deps, cfg, logger)

	logger.Info().Str("delivery_mode", string(mode)).Dur("grace", cfg.Delivery.GraceDelay).Msg("delivery scheduler ready")
	return a, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	if a.kafka != nil {
		go a.kafka.Run(ctx)
	}

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup releases resources in reverse order of construction.
func (a *App) cleanup() {
	if a.scheduler != nil {
		a.scheduler.Close()
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close event bus")
		}
	}
	if a.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.presence.Purge(ctx); err != nil {
			a.log.Warn().Err(err).Msg("failed to purge presence")
		}
		cancel()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
