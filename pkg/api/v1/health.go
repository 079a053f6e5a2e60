package apiv1

import (
	"context"
	"net/http"
	"time"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/common"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const healthCheckTimeout = 3 * time.Second

// Pinger is anything whose reachability the health check reports
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthGroup struct {
	redisClient  *common.RedisClient
	orchestrator Pinger
	routerGroup  *echo.Group
}

type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Checks  map[string]string `json:"checks"`
}

// NewHealthGroup registers the health route. rdb may be nil in local mode.
func NewHealthGroup(g *echo.Group, rdb *common.RedisClient, orchestrator Pinger) *HealthGroup {
	group := &HealthGroup{routerGroup: g, redisClient: rdb, orchestrator: orchestrator}

	g.GET("", group.HealthCheck)

	return group
}

// HealthCheck reports 503 when any dependency is unreachable
func (h *HealthGroup) HealthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Service: "papers-gateway", Checks: map[string]string{}}

	if h.redisClient != nil {
		resp.Checks["redis"] = h.check(ctx, "redis", func(ctx context.Context) error {
			return h.redisClient.Ping(ctx).Err()
		}, &resp)
	}
	if h.orchestrator != nil {
		resp.Checks["orchestrator"] = h.check(ctx, "orchestrator", h.orchestrator.Ping, &resp)
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, resp)
}

func (h *HealthGroup) check(ctx context.Context, name string, ping func(context.Context) error, resp *HealthResponse) string {
	if err := ping(ctx); err != nil {
		log.Error().Err(err).Str("dependency", name).Msg("health check failed")
		resp.Status = "not ok"
		return "unavailable"
	}
	return "ok"
}
