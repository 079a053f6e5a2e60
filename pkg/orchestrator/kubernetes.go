package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	"github.com/rs/zerolog/log"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	utilexec "k8s.io/client-go/util/exec"
)

const (
	defaultNamespace    = "default"
	defaultExecTimeout  = 30 * time.Second
	defaultReadyTimeout = 2 * time.Minute
	defaultPollInterval = time.Second
)

// Waiting reasons that will not resolve by themselves
var fatalWaitingReasons = map[string]string{
	"ErrImagePull":               "image not found",
	"ImagePullBackOff":           "image not found",
	"InvalidImageName":           "invalid image name",
	"CreateContainerConfigError": "invalid container config",
}

// Kubernetes runs sandboxes as pods
type Kubernetes struct {
	client         kubernetes.Interface
	executor       PodExecutor
	namespace      string
	serviceAccount string
	runAsUser      int64
	execTimeout    time.Duration
	readyTimeout   time.Duration
	pollInterval   time.Duration
}

func NewKubernetes(client kubernetes.Interface, executor PodExecutor, cfg types.OrchestratorConfig) *Kubernetes {
	k := &Kubernetes{
		client:         client,
		executor:       executor,
		namespace:      cfg.Namespace,
		serviceAccount: cfg.ServiceAccountName,
		runAsUser:      cfg.RunAsUser,
		execTimeout:    cfg.ExecTimeout,
		readyTimeout:   cfg.ReadyTimeout,
		pollInterval:   cfg.PollInterval,
	}

	if k.namespace == "" {
		k.namespace = defaultNamespace
	}
	if k.execTimeout <= 0 {
		k.execTimeout = defaultExecTimeout
	}
	if k.readyTimeout <= 0 {
		k.readyTimeout = defaultReadyTimeout
	}
	if k.pollInterval <= 0 {
		k.pollInterval = defaultPollInterval
	}

	return k
}

// CreateSandbox creates the pod and waits for it to run. A pod that cannot
// start is removed before the error is returned.
func (k *Kubernetes) CreateSandbox(ctx context.Context, spec types.SandboxSpec) (types.SandboxRef, error) {
	if spec.Name == "" || spec.Image == "" {
		return types.SandboxRef{}, &types.ErrProvision{Reason: "sandbox name and image are required"}
	}

	created, err := k.client.CoreV1().Pods(k.namespace).Create(ctx, k.buildPod(spec), metav1.CreateOptions{})
	if err != nil {
		return types.SandboxRef{}, classifyCreateError(err)
	}

	ref := types.SandboxRef{Name: created.Name, Namespace: k.namespace}
	log.Info().Str("sandbox", ref.String()).Str("image", spec.Image).Msg("sandbox pod created")

	if err := k.waitForRunning(ctx, ref); err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if derr := k.DeleteSandbox(cleanupCtx, ref); derr != nil {
			log.Warn().Err(derr).Str("sandbox", ref.String()).Msg("failed to remove sandbox that never started")
		}
		return types.SandboxRef{}, err
	}

	return ref, nil
}

func (k *Kubernetes) waitForRunning(ctx context.Context, ref types.SandboxRef) error {
	var lastReason string

	err := wait.PollUntilContextTimeout(ctx, k.pollInterval, k.readyTimeout, true, func(ctx context.Context) (bool, error) {
		pod, err := k.client.CoreV1().Pods(ref.Namespace).Get(ctx, ref.Name, metav1.GetOptions{})
		if err != nil {
			if apierrors.IsNotFound(err) {
				return false, &types.ErrProvision{Reason: "sandbox removed before it started"}
			}
			lastReason = err.Error()
			return false, nil
		}

		switch pod.Status.Phase {
		case corev1.PodRunning:
			return true, nil
		case corev1.PodFailed, corev1.PodSucceeded:
			return false, &types.ErrProvision{Reason: fmt.Sprintf("sandbox exited during startup (%s)", pod.Status.Phase)}
		}

		for _, cs := range pod.Status.ContainerStatuses {
			if cs.State.Waiting == nil {
				continue
			}
			if reason, fatal := fatalWaitingReasons[cs.State.Waiting.Reason]; fatal {
				return false, &types.ErrProvision{Reason: reason, Err: errors.New(cs.State.Waiting.Message)}
			}
			lastReason = cs.State.Waiting.Reason
		}
		for _, cond := range pod.Status.Conditions {
			if cond.Type == corev1.PodScheduled && cond.Status == corev1.ConditionFalse {
				lastReason = cond.Reason
			}
		}
		return false, nil
	})
	if err == nil {
		return nil
	}

	var provisionErr *types.ErrProvision
	if errors.As(err, &provisionErr) {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	reason := "sandbox not ready in time"
	if lastReason != "" {
		reason = fmt.Sprintf("%s (last state: %s)", reason, lastReason)
	}
	return &types.ErrProvision{Reason: reason, Err: err}
}

// Exec runs a command under the client's own deadline. Only that deadline
// yields ErrExecTimeout; a non-zero exit code is reported in the result.
func (k *Kubernetes) Exec(ctx context.Context, ref types.SandboxRef, command []string) (*types.ExecResult, error) {
	if len(command) == 0 {
		return nil, errors.New("empty command")
	}

	execCtx, cancel := context.WithTimeout(ctx, k.execTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	err := k.executor.Stream(execCtx, ref, sandboxContainer, command, &stdout, &stderr)

	result := &types.ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err == nil {
		return result, nil
	}

	var exitErr utilexec.ExitError
	if errors.As(err, &exitErr) && exitErr.Exited() {
		result.ExitCode = exitErr.ExitStatus()
		return result, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		log.Warn().Str("sandbox", ref.String()).Dur("timeout", k.execTimeout).Msg("exec timed out")
		return nil, &types.ErrExecTimeout{Sandbox: ref, Timeout: k.execTimeout}
	}

	return nil, classifyError("exec", err)
}

// DeleteSandbox removes the pod immediately; a missing pod is not an error
func (k *Kubernetes) DeleteSandbox(ctx context.Context, ref types.SandboxRef) error {
	err := k.client.CoreV1().Pods(ref.Namespace).Delete(ctx, ref.Name, metav1.DeleteOptions{
		GracePeriodSeconds: ptr(int64(0)),
	})
	if err != nil && !apierrors.IsNotFound(err) {
		return classifyError("delete", err)
	}

	log.Info().Str("sandbox", ref.String()).Msg("sandbox deleted")
	return nil
}

// ListSandboxes returns every pod this gateway manages in its namespace
func (k *Kubernetes) ListSandboxes(ctx context.Context) ([]types.SandboxRef, error) {
	pods, err := k.client.CoreV1().Pods(k.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", LabelManagedBy, managedByValue),
	})
	if err != nil {
		return nil, classifyError("list", err)
	}

	refs := make([]types.SandboxRef, 0, len(pods.Items))
	for _, pod := range pods.Items {
		refs = append(refs, types.SandboxRef{Name: pod.Name, Namespace: pod.Namespace})
	}
	return refs, nil
}

func (k *Kubernetes) Ping(ctx context.Context) error {
	if _, err := k.client.CoreV1().Pods(k.namespace).List(ctx, metav1.ListOptions{Limit: 1}); err != nil {
		return classifyError("ping", err)
	}
	return nil
}
