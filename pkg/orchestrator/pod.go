package orchestrator

import (
	"sort"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation"
)

const (
	LabelManagedBy = "papers.ainetwork.ai/managed-by"
	LabelSessionId = "papers.ainetwork.ai/session-id"
	LabelOwnerId   = "papers.ainetwork.ai/owner-id"

	managedByValue   = "papers-gateway"
	sandboxContainer = "sandbox"
)

var keepAliveCommand = []string{"sleep", "infinity"}

// buildPod renders a sandbox spec into a single-container pod. Label values
// that kubernetes would reject are kept as annotations instead.
func (k *Kubernetes) buildPod(spec types.SandboxSpec) *corev1.Pod {
	labels := map[string]string{LabelManagedBy: managedByValue}
	annotations := map[string]string{}
	for key, value := range spec.Labels {
		if len(validation.IsValidLabelValue(value)) == 0 {
			labels[key] = value
		} else {
			annotations[key] = value
		}
	}

	command := spec.Command
	if len(command) == 0 {
		command = keepAliveCommand
	}

	resources := corev1.ResourceList{}
	if spec.Resources.CPU > 0 {
		resources[corev1.ResourceCPU] = cpuQuantity(spec.Resources.CPU)
	}
	if spec.Resources.Memory > 0 {
		resources[corev1.ResourceMemory] = memoryQuantity(spec.Resources.Memory)
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:        spec.Name,
			Namespace:   k.namespace,
			Labels:      labels,
			Annotations: annotations,
		},
		Spec: corev1.PodSpec{
			RestartPolicy:                corev1.RestartPolicyNever,
			AutomountServiceAccountToken: ptr(false),
			ServiceAccountName:           k.serviceAccount,
			Containers: []corev1.Container{
				{
					Name:    sandboxContainer,
					Image:   spec.Image,
					Command: command,
					Env:     envVars(spec.Env),
					Resources: corev1.ResourceRequirements{
						Requests: resources,
						Limits:   resources,
					},
					SecurityContext: &corev1.SecurityContext{
						AllowPrivilegeEscalation: ptr(false),
						Capabilities: &corev1.Capabilities{
							Drop: []corev1.Capability{"ALL"},
						},
					},
				},
			},
		},
	}

	if k.runAsUser > 0 {
		pod.Spec.SecurityContext = &corev1.PodSecurityContext{
			RunAsNonRoot: ptr(true),
			RunAsUser:    ptr(k.runAsUser),
			FSGroup:      ptr(k.runAsUser),
		}
	}

	return pod
}

func envVars(env map[string]string) []corev1.EnvVar {
	if len(env) == 0 {
		return nil
	}
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)

	vars := make([]corev1.EnvVar, 0, len(names))
	for _, name := range names {
		vars = append(vars, corev1.EnvVar{Name: name, Value: env[name]})
	}
	return vars
}

func cpuQuantity(millis int64) resource.Quantity {
	return *resource.NewMilliQuantity(millis, resource.DecimalSI)
}

func memoryQuantity(bytes int64) resource.Quantity {
	return *resource.NewQuantity(bytes, resource.BinarySI)
}

func ptr[T any](v T) *T {
	return &v
}
