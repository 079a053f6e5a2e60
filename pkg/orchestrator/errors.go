package orchestrator

import (
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// classifyCreateError separates spec rejections from control-plane outages
func classifyCreateError(err error) error {
	switch {
	case isUnreachable(err):
		return &types.ErrUpstreamUnavailable{Op: "create", Err: err}
	case apierrors.IsForbidden(err) && strings.Contains(err.Error(), "exceeded quota"):
		return &types.ErrProvision{Reason: "quota exceeded", Err: err}
	case apierrors.IsForbidden(err):
		return &types.ErrProvision{Reason: "forbidden", Err: err}
	case apierrors.IsInvalid(err), apierrors.IsBadRequest(err):
		return &types.ErrProvision{Reason: "invalid sandbox spec", Err: err}
	case apierrors.IsAlreadyExists(err):
		return &types.ErrProvision{Reason: "sandbox already exists", Err: err}
	default:
		return &types.ErrProvision{Reason: "rejected by orchestrator", Err: err}
	}
}

// classifyError wraps failures of non-create operations
func classifyError(op string, err error) error {
	return &types.ErrUpstreamUnavailable{Op: op, Err: err}
}

func isUnreachable(err error) bool {
	if apierrors.IsServerTimeout(err) ||
		apierrors.IsServiceUnavailable(err) ||
		apierrors.IsTimeout(err) ||
		apierrors.IsTooManyRequests(err) ||
		apierrors.IsInternalError(err) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
