package orchestrator

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	kubeconfigEnv  = "KUBECONFIG"
	serviceHostEnv = "KUBERNETES_SERVICE_HOST"
	servicePortEnv = "KUBERNETES_SERVICE_PORT"

	serviceAccountTokenFile = "token"
	serviceAccountCAFile    = "ca.crt"
)

// CredentialSource holds the inputs every strategy may look at. It is
// captured once from the environment so that strategies stay pure.
type CredentialSource struct {
	Kubeconfig        string
	ServiceAccountDir string
	ServiceHost       string
	ServicePort       string
	HomeKubeconfig    string
}

// CredentialStrategy turns a CredentialSource into a rest config or explains why it cannot
type CredentialStrategy struct {
	Name string
	Load func(src CredentialSource) (*rest.Config, error)
}

// DefaultStrategies is the ordered fallback chain
var DefaultStrategies = []CredentialStrategy{
	{Name: "kubeconfig", Load: loadExplicitKubeconfig},
	{Name: "in-cluster-token", Load: loadInClusterToken},
	{Name: "home-kubeconfig", Load: loadHomeKubeconfig},
}

func credentialSourceFromEnv(cfg types.OrchestratorConfig) CredentialSource {
	src := CredentialSource{
		Kubeconfig:        os.Getenv(kubeconfigEnv),
		ServiceAccountDir: cfg.ServiceAccountDir,
		ServiceHost:       os.Getenv(serviceHostEnv),
		ServicePort:       os.Getenv(servicePortEnv),
		HomeKubeconfig:    clientcmd.RecommendedHomeFile,
	}
	if cfg.Kubeconfig != "" {
		src.Kubeconfig = cfg.Kubeconfig
	}
	return src
}

// LoadRESTConfig walks the strategies in order and returns the first config
// that loads, along with the name of the strategy that produced it.
func LoadRESTConfig(src CredentialSource, strategies []CredentialStrategy) (*rest.Config, string, error) {
	var errs []error
	for _, s := range strategies {
		config, err := s.Load(src)
		if err == nil {
			return config, s.Name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
	}
	return nil, "", errors.Join(errs...)
}

func loadExplicitKubeconfig(src CredentialSource) (*rest.Config, error) {
	if src.Kubeconfig == "" {
		return nil, fmt.Errorf("%s not set", kubeconfigEnv)
	}

	rules := &clientcmd.ClientConfigLoadingRules{Precedence: filepath.SplitList(src.Kubeconfig)}
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
}

// loadInClusterToken assembles the in-cluster config by hand instead of using
// rest.InClusterConfig. The stock loader authenticates through a token-file
// round tripper that is not applied to the SPDY upgrade used by pod exec, so
// exec requests arrive unauthenticated. A literal BearerToken is carried into
// the upgrade request.
func loadInClusterToken(src CredentialSource) (*rest.Config, error) {
	if src.ServiceHost == "" || src.ServicePort == "" {
		return nil, fmt.Errorf("%s/%s not set", serviceHostEnv, servicePortEnv)
	}

	tokenPath := filepath.Join(src.ServiceAccountDir, serviceAccountTokenFile)
	token, err := os.ReadFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("read service account token: %w", err)
	}
	if strings.TrimSpace(string(token)) == "" {
		return nil, fmt.Errorf("service account token %s is empty", tokenPath)
	}

	caPath := filepath.Join(src.ServiceAccountDir, serviceAccountCAFile)
	if _, err := os.Stat(caPath); err != nil {
		return nil, fmt.Errorf("service account CA bundle: %w", err)
	}

	return &rest.Config{
		Host:        "https://" + net.JoinHostPort(src.ServiceHost, src.ServicePort),
		BearerToken: strings.TrimSpace(string(token)),
		TLSClientConfig: rest.TLSClientConfig{
			CAFile: caPath,
		},
	}, nil
}

func loadHomeKubeconfig(src CredentialSource) (*rest.Config, error) {
	if src.HomeKubeconfig == "" {
		return nil, errors.New("no home directory")
	}
	if _, err := os.Stat(src.HomeKubeconfig); err != nil {
		return nil, err
	}
	return clientcmd.BuildConfigFromFlags("", src.HomeKubeconfig)
}
