package orchestrator

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/rest"
)

const testKubeconfig = `apiVersion: v1
kind: Config
clusters:
- cluster:
    server: https://kube.example.test:6443
  name: test
contexts:
- context:
    cluster: test
    user: test
  name: test
current-context: test
users:
- name: test
  user:
    token: local-token
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func serviceAccountDir(t *testing.T) string {
	dir := t.TempDir()
	writeFile(t, dir, serviceAccountTokenFile, "sa-token\n")
	writeFile(t, dir, serviceAccountCAFile, "-----BEGIN CERTIFICATE-----\n")
	return dir
}

func TestExplicitKubeconfigWins(t *testing.T) {
	dir := t.TempDir()
	src := CredentialSource{
		Kubeconfig:        writeFile(t, dir, "config", testKubeconfig),
		ServiceAccountDir: serviceAccountDir(t),
		ServiceHost:       "10.0.0.1",
		ServicePort:       "443",
	}

	config, strategy, err := LoadRESTConfig(src, DefaultStrategies)
	require.NoError(t, err)
	assert.Equal(t, "kubeconfig", strategy)
	assert.Equal(t, "https://kube.example.test:6443", config.Host)
	assert.Equal(t, "local-token", config.BearerToken)
}

func TestInClusterTokenStrategy(t *testing.T) {
	saDir := serviceAccountDir(t)
	src := CredentialSource{
		ServiceAccountDir: saDir,
		ServiceHost:       "10.0.0.1",
		ServicePort:       "443",
		HomeKubeconfig:    filepath.Join(t.TempDir(), "missing"),
	}

	config, strategy, err := LoadRESTConfig(src, DefaultStrategies)
	require.NoError(t, err)
	assert.Equal(t, "in-cluster-token", strategy)
	assert.Equal(t, "https://10.0.0.1:443", config.Host)

	// token must be literal so it is carried into the exec upgrade request
	assert.Equal(t, "sa-token", config.BearerToken)
	assert.Empty(t, config.BearerTokenFile)
	assert.Equal(t, filepath.Join(saDir, serviceAccountCAFile), config.TLSClientConfig.CAFile)
}

func TestInClusterRequiresServiceEnv(t *testing.T) {
	_, err := loadInClusterToken(CredentialSource{ServiceAccountDir: serviceAccountDir(t)})
	assert.Error(t, err)
}

func TestInClusterRequiresToken(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, serviceAccountCAFile, "ca")
	_, err := loadInClusterToken(CredentialSource{ServiceAccountDir: dir, ServiceHost: "h", ServicePort: "1"})
	assert.Error(t, err)
}

func TestHomeKubeconfigFallback(t *testing.T) {
	src := CredentialSource{
		ServiceAccountDir: t.TempDir(),
		HomeKubeconfig:    writeFile(t, t.TempDir(), "config", testKubeconfig),
	}

	config, strategy, err := LoadRESTConfig(src, DefaultStrategies)
	require.NoError(t, err)
	assert.Equal(t, "home-kubeconfig", strategy)
	assert.Equal(t, "https://kube.example.test:6443", config.Host)
}

func TestAllStrategiesFail(t *testing.T) {
	src := CredentialSource{
		ServiceAccountDir: t.TempDir(),
		HomeKubeconfig:    filepath.Join(t.TempDir(), "missing"),
	}

	config, strategy, err := LoadRESTConfig(src, DefaultStrategies)
	require.Error(t, err)
	assert.Nil(t, config)
	assert.Empty(t, strategy)
	for _, s := range DefaultStrategies {
		assert.Contains(t, err.Error(), s.Name)
	}
}

func TestStrategiesTriedInOrder(t *testing.T) {
	var tried []string
	strategy := func(name string, ok bool) CredentialStrategy {
		return CredentialStrategy{Name: name, Load: func(CredentialSource) (*rest.Config, error) {
			tried = append(tried, name)
			if ok {
				return &rest.Config{Host: name}, nil
			}
			return nil, errors.New("nope")
		}}
	}

	config, name, err := LoadRESTConfig(CredentialSource{}, []CredentialStrategy{
		strategy("first", false),
		strategy("second", true),
		strategy("third", true),
	})
	require.NoError(t, err)
	assert.Equal(t, "second", name)
	assert.Equal(t, "second", config.Host)
	assert.Equal(t, []string{"first", "second"}, tried)
}
