package auth

import (
	"context"
	"errors"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
)

type ctxKey int

const authInfoKey ctxKey = iota

var (
	ErrAuthRequired = errors.New("authentication required")
	ErrInvalidToken = errors.New("invalid token")
	ErrForbidden    = errors.New("access denied")
)

func WithAuthInfo(ctx context.Context, info *types.AuthInfo) context.Context {
	return context.WithValue(ctx, authInfoKey, info)
}

func AuthInfoFromContext(ctx context.Context) *types.AuthInfo {
	info, _ := ctx.Value(authInfoKey).(*types.AuthInfo)
	return info
}

func RequireAuth(ctx context.Context) error {
	if AuthInfoFromContext(ctx) == nil {
		return ErrAuthRequired
	}
	return nil
}

// RequireOwner allows admins and the owning subject
func RequireOwner(ctx context.Context, ownerId string) error {
	i := AuthInfoFromContext(ctx)
	if i == nil {
		return ErrAuthRequired
	}
	if !i.CanAccessOwner(ownerId) {
		return ErrForbidden
	}
	return nil
}

// Subject returns the caller's subject, empty for admins and anonymous callers
func Subject(ctx context.Context) string {
	if i := AuthInfoFromContext(ctx); i != nil {
		return i.Subject
	}
	return ""
}
