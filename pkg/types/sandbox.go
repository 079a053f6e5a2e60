package types

import "fmt"

// SandboxSpec defines the shape of a sandbox to provision
type SandboxSpec struct {
	// Name is the pod name; derived from the session id
	Name string `json:"name"`

	// Image is the container image to use for the sandbox
	Image string `json:"image"`

	// Command keeps the sandbox alive; defaults to sleeping forever
	Command []string `json:"command,omitempty"`

	// Env is the environment variables to set
	Env map[string]string `json:"env,omitempty"`

	// Labels are attached to the orchestrator resource
	Labels map[string]string `json:"labels,omitempty"`

	// Resources specifies requests and limits for the sandbox
	Resources SandboxResources `json:"resources"`
}

// SandboxResources specifies resource limits for a sandbox
type SandboxResources struct {
	// CPU limit in millicores (e.g., 1000 = 1 CPU)
	CPU int64 `json:"cpu"`

	// Memory limit in bytes
	Memory int64 `json:"memory"`
}

// SandboxRef is the orchestrator handle for a sandbox
type SandboxRef struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

func (r SandboxRef) String() string {
	return fmt.Sprintf("%s/%s", r.Namespace, r.Name)
}

// IsZero reports whether the ref points at nothing
func (r SandboxRef) IsZero() bool {
	return r.Name == ""
}

// ExecResult is the captured output of a command run inside a sandbox
type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}
