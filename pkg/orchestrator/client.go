package orchestrator

import (
	"context"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	"github.com/rs/zerolog/log"
	"k8s.io/client-go/kubernetes"
)

// Client realizes sandbox lifecycle operations against the orchestrator.
// Implementations hold no session state, only resource handles.
type Client interface {
	CreateSandbox(ctx context.Context, spec types.SandboxSpec) (types.SandboxRef, error)
	Exec(ctx context.Context, ref types.SandboxRef, command []string) (*types.ExecResult, error)
	DeleteSandbox(ctx context.Context, ref types.SandboxRef) error
	ListSandboxes(ctx context.Context) ([]types.SandboxRef, error)
	Ping(ctx context.Context) error
}

// NewClient loads credentials through the default strategy chain. When every
// strategy fails it returns a client that rejects all operations with
// ErrOrchestratorUnavailable.
func NewClient(cfg types.OrchestratorConfig) Client {
	restConfig, strategy, err := LoadRESTConfig(credentialSourceFromEnv(cfg), DefaultStrategies)
	if err != nil {
		log.Error().Err(err).Msg("no orchestrator credentials available, sandbox operations disabled")
		return NewUnavailableClient(err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		log.Error().Err(err).Str("strategy", strategy).Msg("failed to build kubernetes client")
		return NewUnavailableClient(err)
	}

	log.Info().
		Str("strategy", strategy).
		Str("host", restConfig.Host).
		Str("namespace", cfg.Namespace).
		Msg("orchestrator client ready")

	return NewKubernetes(clientset, newSPDYExecutor(clientset, restConfig), cfg)
}

// UnavailableClient fails closed on every call
type UnavailableClient struct {
	err error
}

func NewUnavailableClient(err error) *UnavailableClient {
	return &UnavailableClient{err: err}
}

func (u *UnavailableClient) unavailable() error {
	return &types.ErrOrchestratorUnavailable{Err: u.err}
}

func (u *UnavailableClient) CreateSandbox(ctx context.Context, spec types.SandboxSpec) (types.SandboxRef, error) {
	return types.SandboxRef{}, u.unavailable()
}

func (u *UnavailableClient) Exec(ctx context.Context, ref types.SandboxRef, command []string) (*types.ExecResult, error) {
	return nil, u.unavailable()
}

func (u *UnavailableClient) DeleteSandbox(ctx context.Context, ref types.SandboxRef) error {
	return u.unavailable()
}

func (u *UnavailableClient) ListSandboxes(ctx context.Context) ([]types.SandboxRef, error) {
	return nil, u.unavailable()
}

func (u *UnavailableClient) Ping(ctx context.Context) error {
	return u.unavailable()
}
