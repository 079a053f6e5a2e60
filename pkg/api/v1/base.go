package apiv1

import (
	"errors"
	"net/http"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const (
	HttpServerBaseRoute string = "/api/v1"
	HttpServerRootRoute string = ""
)

const (
	ErrorTypeBadRequest = "bad_request"
	ErrorTypeForbidden  = "forbidden"
	ErrorTypeConflict   = "conflict"
	ErrorTypeInternal   = "internal_error"
)

// ErrorDetail is the body of every failed response
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ErrorBody struct {
	Error   ErrorDetail    `json:"error"`
	Session *types.Session `json:"session,omitempty"`
}

// ErrorResponse returns an error response
func ErrorResponse(c echo.Context, code int, errType, message string) error {
	return c.JSON(code, ErrorBody{Error: ErrorDetail{Type: errType, Message: message}})
}

func HTTPBadRequest(c echo.Context, message string) error {
	return ErrorResponse(c, http.StatusBadRequest, ErrorTypeBadRequest, message)
}

// StatusForError maps the session and orchestrator error taxonomy to an HTTP
// status and a stable type string
func StatusForError(err error) (int, string) {
	var (
		provision    *types.ErrProvision
		upstream     *types.ErrUpstreamUnavailable
		unavailable  *types.ErrOrchestratorUnavailable
		timeout      *types.ErrExecTimeout
		notFound     *types.ErrSessionNotFound
		notRunning   *types.ErrSessionNotRunning
		capacity     *types.ErrCapacityExceeded
		badLifecycle *types.ErrInvalidTransition
	)

	switch {
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout, timeout.Type()
	case errors.As(err, &provision):
		return http.StatusBadGateway, provision.Type()
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable, unavailable.Type()
	case errors.As(err, &upstream):
		return http.StatusBadGateway, upstream.Type()
	case errors.As(err, &notFound):
		return http.StatusNotFound, notFound.Type()
	case errors.As(err, &notRunning):
		return http.StatusConflict, notRunning.Type()
	case errors.As(err, &capacity):
		return http.StatusTooManyRequests, capacity.Type()
	case errors.As(err, &badLifecycle):
		return http.StatusConflict, ErrorTypeConflict
	}
	return http.StatusInternalServerError, ErrorTypeInternal
}

// HandleError writes err as a structured error response
func HandleError(c echo.Context, err error) error {
	return handleErrorWithSession(c, err, nil)
}

func handleErrorWithSession(c echo.Context, err error, session *types.Session) error {
	status, errType := StatusForError(err)

	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Str("path", c.Path()).Int("status", status).Str("type", errType).Msg("request failed")

	message := err.Error()
	if errType == ErrorTypeInternal {
		message = "internal error"
	}

	return c.JSON(status, ErrorBody{
		Error:   ErrorDetail{Type: errType, Message: message},
		Session: session,
	})
}
