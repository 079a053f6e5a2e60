package apiv1

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		errType string
	}{
		{&types.ErrProvision{Reason: "quota exceeded"}, http.StatusBadGateway, types.ErrorTypeProvision},
		{&types.ErrUpstreamUnavailable{Op: "exec", Err: errors.New("dial tcp")}, http.StatusBadGateway, types.ErrorTypeUpstreamUnavailable},
		{&types.ErrOrchestratorUnavailable{}, http.StatusServiceUnavailable, types.ErrorTypeOrchestratorUnavailable},
		{&types.ErrExecTimeout{Timeout: time.Second}, http.StatusGatewayTimeout, types.ErrorTypeExecTimeout},
		{&types.ErrSessionNotFound{SessionId: "s"}, http.StatusNotFound, types.ErrorTypeNotFound},
		{&types.ErrSessionNotRunning{SessionId: "s"}, http.StatusConflict, types.ErrorTypeSessionNotRunning},
		{&types.ErrCapacityExceeded{Max: 1}, http.StatusTooManyRequests, types.ErrorTypeCapacityExceeded},
		{&types.ErrInvalidTransition{}, http.StatusConflict, ErrorTypeConflict},
		{fmt.Errorf("wrapped: %w", &types.ErrSessionNotFound{}), http.StatusNotFound, types.ErrorTypeNotFound},
		{context.Canceled, http.StatusInternalServerError, ErrorTypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.errType, func(t *testing.T) {
			status, errType := StatusForError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.errType, errType)
		})
	}
}

func TestExecRequestArgv(t *testing.T) {
	argv, err := ExecRequest{Command: "ls -la"}.argv()
	require.NoError(t, err)
	assert.Equal(t, []string{"sh", "-c", "ls -la"}, argv)

	argv, err = ExecRequest{Argv: []string{"cat", "/etc/hostname"}}.argv()
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "/etc/hostname"}, argv)

	_, err = ExecRequest{}.argv()
	assert.ErrorIs(t, err, errExecMissing)

	_, err = ExecRequest{Command: "   "}.argv()
	assert.ErrorIs(t, err, errExecMissing)

	_, err = ExecRequest{Command: "ls", Argv: []string{"ls"}}.argv()
	assert.ErrorIs(t, err, errExecAmbiguous)
}
