package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/ratelimit"
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

const defaultShutdownTimeout = 15 * time.Second

// Server exposes the LLM proxy over HTTP
type Server struct {
	Config     types.ProxyConfig
	echo       *echo.Echo
	httpServer *http.Server
	limiter    *ratelimit.SlidingWindow
	ctx        context.Context
	cancelFunc context.CancelFunc
}

func NewServer(config types.ProxyConfig) (*Server, error) {
	if config.APIKey == "" && config.APIKeyEnv != "" {
		config.APIKey = os.Getenv(config.APIKeyEnv)
	}
	if config.Service == "" {
		config.Service = "llm-proxy"
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaultShutdownTimeout
	}

	upstream, err := url.Parse(config.Upstream)
	if err != nil || upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream url %q", config.Upstream)
	}

	injector, err := NewCredentialInjector(config.APIKeyHeader, config.APIKeyPrefix, config.APIKey)
	if err != nil {
		return nil, err
	}

	filter := NewPathFilter(config.AllowedPaths)
	if len(filter.Paths()) == 0 {
		return nil, errors.New("proxy allow-list is empty")
	}

	limiter := ratelimit.NewSlidingWindow(config.RateLimit)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		Config:     config,
		limiter:    limiter,
		ctx:        ctx,
		cancelFunc: cancel,
	}
	s.echo = s.newEcho(NewProxy(upstream, filter, limiter, injector))

	log.Info().
		Str("upstream", upstream.String()).
		Strs("allowed_paths", filter.Paths()).
		Dur("window", limiter.Window()).
		Int("max_requests", limiter.MaxRequests()).
		Msg("proxy configured")

	return s, nil
}

// newEcho builds the router. No path-rewriting middleware is installed so the
// full original path reaches the upstream.
func (s *Server) newEcho(p *Proxy) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	if s.Config.TrustForwardedFor {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURIPath:  true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info().
				Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("client", v.RemoteIP).
				Msg("proxy request")
			return nil
		},
	}))

	e.GET("/health", s.health)
	e.Any("/*", p.Handle)

	return e
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": s.Config.Service,
	})
}

// Handler returns the router, for embedding or tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) StartAsync() error {
	addr := fmt.Sprintf("%s:%d", s.Config.HTTP.Host, s.Config.HTTP.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.limiter.Start(s.ctx)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("proxy http server error")
		}
	}()

	log.Info().Str("addr", addr).Msg("proxy listening")
	return nil
}

func (s *Server) Start() error {
	if err := s.StartAsync(); err != nil {
		return err
	}

	terminationSignal := make(chan os.Signal, 1)
	signal.Notify(terminationSignal, os.Interrupt, syscall.SIGTERM)
	<-terminationSignal

	log.Info().Msg("termination signal received. shutting down...")
	s.Shutdown()
	return nil
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), s.Config.ShutdownTimeout)
	defer cancel()

	s.cancelFunc()
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown proxy gracefully")
		}
	}
	log.Info().Msg("proxy stopped")
}
