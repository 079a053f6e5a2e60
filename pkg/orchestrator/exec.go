package orchestrator

import (
	"context"
	"io"
	"net/http"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"
)

// PodExecutor streams a command's output from a container
type PodExecutor interface {
	Stream(ctx context.Context, ref types.SandboxRef, container string, command []string, stdout, stderr io.Writer) error
}

type spdyExecutor struct {
	client kubernetes.Interface
	config *rest.Config
}

func newSPDYExecutor(client kubernetes.Interface, config *rest.Config) *spdyExecutor {
	return &spdyExecutor{client: client, config: config}
}

func (e *spdyExecutor) Stream(ctx context.Context, ref types.SandboxRef, container string, command []string, stdout, stderr io.Writer) error {
	req := e.client.CoreV1().RESTClient().
		Post().
		Resource("pods").
		Name(ref.Name).
		Namespace(ref.Namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   command,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(e.config, http.MethodPost, req.URL())
	if err != nil {
		return err
	}

	return executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: stdout,
		Stderr: stderr,
	})
}
