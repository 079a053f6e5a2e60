package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	apiv1 "github.com/ainblockchain/papers-with-claudecode-sub002/pkg/api/v1"
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/auth"
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/common"
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/orchestrator"
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/repository"
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/session"
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/stages"
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
)

const defaultShutdownTimeout = 30 * time.Second

// Gateway serves the session API. It owns the session manager and the
// progress ledger; the LLM proxy runs as a separate server.
type Gateway struct {
	Config       types.AppConfig
	RedisClient  *common.RedisClient
	BackendRepo  *repository.PostgresBackend
	Orchestrator orchestrator.Client
	Sessions     *session.Manager
	Stages       *stages.Extractor
	Progress     repository.ProgressRepository

	httpServer *http.Server
	echo       *echo.Echo
	ctx        context.Context
	cancelFunc context.CancelFunc

	baseRouteGroup *echo.Group
}

func NewGateway() (*Gateway, error) {
	configManager, err := common.NewConfigManager[types.AppConfig]()
	if err != nil {
		return nil, err
	}
	config := configManager.GetConfig()
	common.ConfigureLogging(config.DebugMode, config.PrettyLogs)

	return NewGatewayWithClient(config, orchestrator.NewClient(config.Orchestrator))
}

// NewGatewayWithClient wires the gateway around an existing orchestrator client
func NewGatewayWithClient(config types.AppConfig, client orchestrator.Client) (*Gateway, error) {
	if config.Gateway.ShutdownTimeout <= 0 {
		config.Gateway.ShutdownTimeout = defaultShutdownTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		Config:       config,
		Orchestrator: client,
		ctx:          ctx,
		cancelFunc:   cancel,
	}

	if err := g.initStorage(); err != nil {
		cancel()
		return nil, err
	}

	g.Sessions = session.NewManager(config.Sessions, client)
	if g.RedisClient != nil {
		g.Sessions.SetEventEmitter(common.NewEventStream(g.RedisClient, common.Keys.SessionEvents()))
	}
	g.Stages = stages.NewExtractor(g.Sessions, config.Stages)

	if err := g.initHTTP(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize http server: %w", err)
	}

	log.Info().Interface("gateway", config.Gateway.Redact()).Str("mode", config.Mode).Msg("gateway configured")
	return g, nil
}

// initStorage picks the progress ledger: postgres when configured, then
// redis, then process memory in local mode
func (g *Gateway) initStorage() error {
	if g.Config.IsLocalMode() {
		log.Info().Msg("running in local mode - progress kept in memory")
		g.Progress = repository.NewProgressMemoryRepository()
		return nil
	}

	if !g.Config.Database.Redis.IsConfigured() {
		return fmt.Errorf("remote mode requires database.redis.addrs")
	}

	redisClient, err := common.NewRedisClient(g.Config.Database.Redis, common.WithClientName("PapersGateway"))
	if err != nil {
		return err
	}
	g.RedisClient = redisClient
	g.Progress = repository.NewProgressRedisRepository(redisClient)

	if !g.Config.Database.Postgres.IsConfigured() {
		return nil
	}

	backendRepo, err := repository.NewPostgresBackend(g.Config.Database.Postgres)
	if err != nil {
		log.Warn().Err(err).Msg("failed to connect to postgres, progress stays in redis")
		return nil
	}

	unlock, err := g.initLock("migrations")
	if err != nil {
		backendRepo.Close()
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer unlock()

	if err := backendRepo.RunMigrations(); err != nil {
		log.Warn().Err(err).Msg("failed to run postgres migrations, progress stays in redis")
		backendRepo.Close()
		return nil
	}

	g.BackendRepo = backendRepo
	g.Progress = repository.NewProgressPostgresRepository(backendRepo.DB())
	return nil
}

// initLock serializes startup work across gateway replicas
func (g *Gateway) initLock(name string) (func(), error) {
	if g.RedisClient == nil {
		return func() {}, nil
	}

	lockKey := common.Keys.GatewayInitLock(name)
	lock := common.NewRedisLock(g.RedisClient)

	if err := lock.Acquire(g.ctx, lockKey, common.RedisLockOptions{TtlS: 30, Retries: 100}); err != nil {
		return nil, err
	}

	return func() {
		if err := lock.Release(lockKey); err != nil {
			log.Error().Str("lock_key", lockKey).Err(err).Msg("failed to release init lock")
		}
	}, nil
}

func (g *Gateway) initHTTP() error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Pre(middleware.RemoveTrailingSlash())

	if g.Config.Gateway.HTTP.EnablePrettyLogs {
		e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
			Format: "${time_rfc3339} ${method} ${uri} ${status} ${latency_human}\n",
		}))
	}

	if len(g.Config.Gateway.HTTP.CORS.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: g.Config.Gateway.HTTP.CORS.AllowedOrigins,
			AllowHeaders: g.Config.Gateway.HTTP.CORS.AllowedHeaders,
			AllowMethods: g.Config.Gateway.HTTP.CORS.AllowedMethods,
		}))
	}

	e.Use(middleware.Recover())

	g.echo = e
	g.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", g.Config.Gateway.HTTP.Host, g.Config.Gateway.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.baseRouteGroup = e.Group(apiv1.HttpServerBaseRoute)
	apiv1.NewHealthGroup(g.baseRouteGroup.Group("/health"), g.RedisClient, g.Orchestrator)

	validator := auth.NewTokenValidator(g.Config.Gateway.AuthToken, g.Config.Gateway.JWTSecret)
	if !validator.Enabled() {
		log.Warn().Msg("gateway auth disabled, every caller is treated as admin")
	}
	authenticated := g.baseRouteGroup.Group("", auth.HTTPMiddleware(validator))

	apiv1.NewSessionsGroup(authenticated.Group("/sessions"), g.Sessions, g.Stages)
	apiv1.NewProgressGroup(authenticated.Group("/progress"), g.Progress)

	return nil
}

// Handler returns the HTTP router
func (g *Gateway) Handler() http.Handler {
	return g.echo
}

func (g *Gateway) StartAsync() error {
	addr := g.httpServer.Addr
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	g.Sessions.Start()

	go func() {
		if err := g.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server error")
		}
	}()

	log.Info().
		Str("host", g.Config.Gateway.HTTP.Host).
		Int("port", g.Config.Gateway.HTTP.Port).
		Msg("gateway http server running")

	return nil
}

// Shutdown gracefully shuts down the gateway (exported for external use)
func (g *Gateway) Shutdown() {
	g.shutdown()
}

func (g *Gateway) Start() error {
	if err := g.StartAsync(); err != nil {
		return err
	}

	terminationSignal := make(chan os.Signal, 1)
	signal.Notify(terminationSignal, os.Interrupt, syscall.SIGTERM)
	<-terminationSignal

	log.Info().Msg("termination signal received. shutting down...")
	g.shutdown()

	return nil
}

func (g *Gateway) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), g.Config.Gateway.ShutdownTimeout)
	defer cancel()

	g.cancelFunc()

	// Drain requests before stopping sessions so no create can start an
	// eviction once the manager is shutting down
	if err := g.httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown http server gracefully")
	}
	if err := g.Sessions.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop session manager")
	}

	// Storage closes last; in-flight handlers may still be writing progress
	if g.BackendRepo != nil {
		if err := g.BackendRepo.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close postgres")
		}
	}
	if g.RedisClient != nil {
		if err := g.RedisClient.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close redis")
		}
	}

	log.Info().Msg("gateway stopped")
}
