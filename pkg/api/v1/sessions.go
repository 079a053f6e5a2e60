package apiv1

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/auth"
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	"github.com/labstack/echo/v4"
)

var (
	errExecMissing   = errors.New("command or argv is required")
	errExecAmbiguous = errors.New("command and argv are mutually exclusive")
)

// SessionService is the session manager surface the API depends on
type SessionService interface {
	CreateSession(ctx context.Context, req types.CreateSessionRequest) (*types.Session, error)
	GetSession(id string) (*types.Session, error)
	ListSessions(ownerId string) []types.Session
	ExecInSession(ctx context.Context, id string, command []string) (*types.ExecResult, error)
	TerminateSession(ctx context.Context, id string) (*types.Session, error)
}

// StageService extracts stage definitions from a session
type StageService interface {
	Extract(ctx context.Context, sessionId, path string) ([]types.Stage, error)
}

type SessionsGroup struct {
	routerGroup *echo.Group
	sessions    SessionService
	stages      StageService
}

type ExecRequest struct {
	// Command is run through sh -c; Argv is run as-is
	Command string   `json:"command"`
	Argv    []string `json:"argv"`
}

type ListSessionsResponse struct {
	Sessions []types.Session `json:"sessions"`
}

type StagesResponse struct {
	SessionId string        `json:"session_id"`
	Stages    []types.Stage `json:"stages"`
}

func NewSessionsGroup(routerGroup *echo.Group, sessions SessionService, stages StageService) *SessionsGroup {
	g := &SessionsGroup{
		routerGroup: routerGroup,
		sessions:    sessions,
		stages:      stages,
	}
	g.registerRoutes()
	return g
}

func (g *SessionsGroup) registerRoutes() {
	g.routerGroup.POST("", g.CreateSession)
	g.routerGroup.GET("", g.ListSessions)
	g.routerGroup.GET("/:id", g.GetSession)
	g.routerGroup.DELETE("/:id", g.TerminateSession)
	g.routerGroup.POST("/:id/exec", g.ExecInSession)
	g.routerGroup.GET("/:id/stages", g.GetStages)
}

// CreateSession provisions a sandbox. User tokens always own what they create.
func (g *SessionsGroup) CreateSession(c echo.Context) error {
	var req types.CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return HTTPBadRequest(c, "invalid request body")
	}

	ctx := c.Request().Context()
	if subject := auth.Subject(ctx); subject != "" {
		req.OwnerId = subject
	}

	session, err := g.sessions.CreateSession(ctx, req)
	if err != nil {
		return handleErrorWithSession(c, err, session)
	}

	return c.JSON(http.StatusCreated, session)
}

func (g *SessionsGroup) ListSessions(c echo.Context) error {
	ctx := c.Request().Context()

	ownerId := c.QueryParam("owner_id")
	if info := auth.AuthInfoFromContext(ctx); info != nil && !info.IsAdmin() {
		ownerId = info.Subject
	}

	return c.JSON(http.StatusOK, ListSessionsResponse{Sessions: g.sessions.ListSessions(ownerId)})
}

func (g *SessionsGroup) GetSession(c echo.Context) error {
	session, err := g.visibleSession(c)
	if err != nil {
		return HandleError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

func (g *SessionsGroup) TerminateSession(c echo.Context) error {
	if _, err := g.visibleSession(c); err != nil {
		return HandleError(c, err)
	}

	session, err := g.sessions.TerminateSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return HandleError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

func (g *SessionsGroup) ExecInSession(c echo.Context) error {
	var req ExecRequest
	if err := c.Bind(&req); err != nil {
		return HTTPBadRequest(c, "invalid request body")
	}

	command, err := req.argv()
	if err != nil {
		return HTTPBadRequest(c, err.Error())
	}

	if _, err := g.visibleSession(c); err != nil {
		return HandleError(c, err)
	}

	result, err := g.sessions.ExecInSession(c.Request().Context(), c.Param("id"), command)
	if err != nil {
		return HandleError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (g *SessionsGroup) GetStages(c echo.Context) error {
	if _, err := g.visibleSession(c); err != nil {
		return HandleError(c, err)
	}

	id := c.Param("id")
	stages, err := g.stages.Extract(c.Request().Context(), id, c.QueryParam("path"))
	if err != nil {
		return HandleError(c, err)
	}
	return c.JSON(http.StatusOK, StagesResponse{SessionId: id, Stages: stages})
}

// visibleSession loads the session and hides sessions owned by someone else
// behind a not-found error
func (g *SessionsGroup) visibleSession(c echo.Context) (*types.Session, error) {
	id := c.Param("id")
	session, err := g.sessions.GetSession(id)
	if err != nil {
		return nil, err
	}

	if err := auth.RequireOwner(c.Request().Context(), session.OwnerId); err != nil {
		return nil, &types.ErrSessionNotFound{SessionId: id}
	}
	return session, nil
}

func (r ExecRequest) argv() ([]string, error) {
	command := strings.TrimSpace(r.Command)
	switch {
	case command != "" && len(r.Argv) > 0:
		return nil, errExecAmbiguous
	case command != "":
		return []string{"sh", "-c", command}, nil
	case len(r.Argv) > 0 && r.Argv[0] != "":
		return r.Argv, nil
	}
	return nil, errExecMissing
}
