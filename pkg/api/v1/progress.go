package apiv1

import (
	"errors"
	"net/http"
	"time"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/auth"
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/repository"
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	"github.com/labstack/echo/v4"
)

type ProgressGroup struct {
	routerGroup *echo.Group
	progress    repository.ProgressRepository
	now         func() time.Time
}

type SaveProgressRequest struct {
	UserId      string     `json:"user_id"`
	PaperId     string     `json:"paper_id"`
	StageNumber *int       `json:"stage_number,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type ProgressResponse struct {
	UserId      string             `json:"user_id"`
	PaperId     string             `json:"paper_id"`
	Completions []types.Completion `json:"completions"`
}

func NewProgressGroup(routerGroup *echo.Group, progress repository.ProgressRepository) *ProgressGroup {
	g := &ProgressGroup{
		routerGroup: routerGroup,
		progress:    progress,
		now:         time.Now,
	}
	g.registerRoutes()
	return g
}

func (g *ProgressGroup) registerRoutes() {
	g.routerGroup.POST("", g.SaveCompletion)
	g.routerGroup.GET("/:user_id/:paper_id", g.ListCompletions)
}

// SaveCompletion records a completion. Saving an already completed key is
// accepted and keeps the original timestamp.
func (g *ProgressGroup) SaveCompletion(c echo.Context) error {
	var req SaveProgressRequest
	if err := c.Bind(&req); err != nil {
		return HTTPBadRequest(c, "invalid request body")
	}

	if req.StageNumber != nil && *req.StageNumber < 0 {
		return HTTPBadRequest(c, "stage_number must not be negative")
	}

	ctx := c.Request().Context()
	if req.UserId == "" {
		req.UserId = auth.Subject(ctx)
	}
	if err := auth.RequireOwner(ctx, req.UserId); err != nil {
		return ErrorResponse(c, http.StatusForbidden, ErrorTypeForbidden, "cannot record progress for another user")
	}

	completedAt := g.now()
	if req.CompletedAt != nil {
		completedAt = *req.CompletedAt
	}

	key := types.ProgressKey{UserId: req.UserId, PaperId: req.PaperId, StageNumber: req.StageNumber}
	if err := g.progress.SaveCompletion(ctx, key, completedAt); err != nil {
		if errors.Is(err, repository.ErrInvalidProgressKey) {
			return HTTPBadRequest(c, err.Error())
		}
		return HandleError(c, err)
	}

	return g.respond(c, http.StatusCreated, req.UserId, req.PaperId)
}

func (g *ProgressGroup) ListCompletions(c echo.Context) error {
	userId := c.Param("user_id")
	if err := auth.RequireOwner(c.Request().Context(), userId); err != nil {
		return ErrorResponse(c, http.StatusForbidden, ErrorTypeForbidden, "cannot read progress of another user")
	}
	return g.respond(c, http.StatusOK, userId, c.Param("paper_id"))
}

func (g *ProgressGroup) respond(c echo.Context, status int, userId, paperId string) error {
	completions, err := g.progress.Completions(c.Request().Context(), userId, paperId)
	if err != nil {
		return HandleError(c, err)
	}
	return c.JSON(status, ProgressResponse{UserId: userId, PaperId: paperId, Completions: completions})
}
