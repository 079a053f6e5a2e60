package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPMiddleware validates the bearer token and adds AuthInfo to the request context
func HTTPMiddleware(validator *TokenValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := strings.TrimSpace(strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer "))

			info, err := validator.Validate(token)
			if err != nil {
				log.Debug().Err(err).Str("path", c.Path()).Msg("auth: rejected request")
				body := errorBody{}
				body.Error.Type = "unauthorized"
				body.Error.Message = ErrAuthRequired.Error()
				if token != "" {
					body.Error.Message = ErrInvalidToken.Error()
				}
				return c.JSON(http.StatusUnauthorized, body)
			}

			ctx := WithAuthInfo(c.Request().Context(), info)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
