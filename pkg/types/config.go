package types

import (
	"time"
)

// Mode constants for gateway operation
const (
	ModeLocal  = "local"  // In-memory progress ledger, no Redis/Postgres
	ModeRemote = "remote" // Redis (and optionally Postgres) backed progress ledger
)

// AppConfig is the root configuration shared by the gateway and proxy binaries
type AppConfig struct {
	Mode       string `key:"mode" json:"mode"` // "local" or "remote"
	DebugMode  bool   `key:"debugMode" json:"debug_mode"`
	PrettyLogs bool   `key:"prettyLogs" json:"pretty_logs"`

	Database     DatabaseConfig     `key:"database" json:"database"`
	Gateway      GatewayConfig      `key:"gateway" json:"gateway"`
	Orchestrator OrchestratorConfig `key:"orchestrator" json:"orchestrator"`
	Sessions     SessionConfig      `key:"sessions" json:"sessions"`
	Proxy        ProxyConfig        `key:"proxy" json:"proxy"`
	Stages       StagesConfig       `key:"stages" json:"stages"`
}

// IsLocalMode returns true if running in local mode (no Redis/Postgres)
func (c *AppConfig) IsLocalMode() bool {
	return c.Mode == ModeLocal
}

// ----------------------------------------------------------------------------
// Database Configuration
// ----------------------------------------------------------------------------

type DatabaseConfig struct {
	Redis    RedisConfig    `key:"redis" json:"redis"`
	Postgres PostgresConfig `key:"postgres" json:"postgres"`
}

type RedisMode string

const (
	RedisModeSingle  RedisMode = "single"
	RedisModeCluster RedisMode = "cluster"
)

type RedisConfig struct {
	Mode               RedisMode     `key:"mode" json:"mode"`
	Addrs              []string      `key:"addrs" json:"addrs"`
	Username           string        `key:"username" json:"username"`
	Password           string        `key:"password" json:"password"`
	ClientName         string        `key:"clientName" json:"client_name"`
	EnableTLS          bool          `key:"enableTLS" json:"enable_tls"`
	InsecureSkipVerify bool          `key:"insecureSkipVerify" json:"insecure_skip_verify"`
	PoolSize           int           `key:"poolSize" json:"pool_size"`
	MinIdleConns       int           `key:"minIdleConns" json:"min_idle_conns"`
	MaxIdleConns       int           `key:"maxIdleConns" json:"max_idle_conns"`
	ConnMaxIdleTime    time.Duration `key:"connMaxIdleTime" json:"conn_max_idle_time"`
	ConnMaxLifetime    time.Duration `key:"connMaxLifetime" json:"conn_max_lifetime"`
	DialTimeout        time.Duration `key:"dialTimeout" json:"dial_timeout"`
	ReadTimeout        time.Duration `key:"readTimeout" json:"read_timeout"`
	WriteTimeout       time.Duration `key:"writeTimeout" json:"write_timeout"`
	MaxRedirects       int           `key:"maxRedirects" json:"max_redirects"`
	MaxRetries         int           `key:"maxRetries" json:"max_retries"`
	RouteByLatency     bool          `key:"routeByLatency" json:"route_by_latency"`
}

// IsConfigured reports whether at least one redis address was provided
func (c RedisConfig) IsConfigured() bool {
	return len(c.Addrs) > 0 && c.Addrs[0] != ""
}

type PostgresConfig struct {
	Host            string        `key:"host" json:"host"`
	Port            int           `key:"port" json:"port"`
	User            string        `key:"user" json:"user"`
	Password        string        `key:"password" json:"password"`
	Database        string        `key:"database" json:"database"`
	SSLMode         string        `key:"sslMode" json:"ssl_mode"`
	MaxOpenConns    int           `key:"maxOpenConns" json:"max_open_conns"`
	MaxIdleConns    int           `key:"maxIdleConns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `key:"connMaxLifetime" json:"conn_max_lifetime"`
}

// IsConfigured reports whether a postgres host was provided
func (c PostgresConfig) IsConfigured() bool {
	return c.Host != ""
}

// ----------------------------------------------------------------------------
// Gateway Configuration
// ----------------------------------------------------------------------------

type GatewayConfig struct {
	HTTP            HTTPConfig    `key:"http" json:"http"`
	ShutdownTimeout time.Duration `key:"shutdownTimeout" json:"shutdown_timeout"`

	// AuthToken is a static admin bearer token. JWTSecret enables HS256 caller
	// tokens whose subject becomes the session owner. Both empty disables auth.
	AuthToken string `key:"authToken" json:"auth_token"`
	JWTSecret string `key:"jwtSecret" json:"jwt_secret"`
}

// Redact returns a copy safe for logging
func (c GatewayConfig) Redact() GatewayConfig {
	if c.AuthToken != "" {
		c.AuthToken = redacted
	}
	if c.JWTSecret != "" {
		c.JWTSecret = redacted
	}
	return c
}

type HTTPConfig struct {
	Host             string     `key:"host" json:"host"`
	Port             int        `key:"port" json:"port"`
	EnablePrettyLogs bool       `key:"enablePrettyLogs" json:"enable_pretty_logs"`
	CORS             CORSConfig `key:"cors" json:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `key:"allowOrigins" json:"allow_origins"`
	AllowedMethods []string `key:"allowMethods" json:"allow_methods"`
	AllowedHeaders []string `key:"allowHeaders" json:"allow_headers"`
}

// ----------------------------------------------------------------------------
// Orchestrator Configuration
// ----------------------------------------------------------------------------

// OrchestratorConfig configures the kubernetes control-plane client
type OrchestratorConfig struct {
	Namespace    string        `key:"namespace" json:"namespace"`
	ExecTimeout  time.Duration `key:"execTimeout" json:"exec_timeout"`
	ReadyTimeout time.Duration `key:"readyTimeout" json:"ready_timeout"`
	PollInterval time.Duration `key:"pollInterval" json:"poll_interval"`

	// Kubeconfig overrides the KUBECONFIG environment signal when set.
	Kubeconfig string `key:"kubeconfig" json:"kubeconfig"`

	// ServiceAccountDir is where the in-cluster token and CA bundle are mounted.
	ServiceAccountDir string `key:"serviceAccountDir" json:"service_account_dir"`

	ServiceAccountName string `key:"serviceAccountName" json:"service_account_name"`
	RunAsUser          int64  `key:"runAsUser" json:"run_as_user"`
}

// ----------------------------------------------------------------------------
// Session Configuration
// ----------------------------------------------------------------------------

// SessionConfig configures the session manager
type SessionConfig struct {
	MaxSessions         int           `key:"maxSessions" json:"max_sessions"`
	Timeout             time.Duration `key:"timeout" json:"timeout"`
	SweepInterval       time.Duration `key:"sweepInterval" json:"sweep_interval"`
	TerminatedRetention time.Duration `key:"terminatedRetention" json:"terminated_retention"`
	RetentionSize       int           `key:"retentionSize" json:"retention_size"`
	DeleteTimeout       time.Duration `key:"deleteTimeout" json:"delete_timeout"`
	EvictOnCapacity     bool          `key:"evictOnCapacity" json:"evict_on_capacity"`
	ReapOnStart         bool          `key:"reapOnStart" json:"reap_on_start"`

	Sandbox SandboxDefaults `key:"sandbox" json:"sandbox"`
}

// SandboxDefaults is the sandbox shape used when a create request does not override it
type SandboxDefaults struct {
	Image   string            `key:"image" json:"image"`
	CPU     int64             `key:"cpu" json:"cpu"`       // millicores
	Memory  int64             `key:"memory" json:"memory"` // bytes
	Command []string          `key:"command" json:"command"`
	Env     map[string]string `key:"env" json:"env"`
}

// ----------------------------------------------------------------------------
// Proxy Configuration
// ----------------------------------------------------------------------------

// ProxyConfig configures the LLM reverse proxy
type ProxyConfig struct {
	HTTP         HTTPConfig `key:"http" json:"http"`
	Service      string     `key:"service" json:"service"`
	Upstream     string     `key:"upstream" json:"upstream"`
	AllowedPaths []string   `key:"allowedPaths" json:"allowed_paths"`

	// APIKey is the real upstream secret. When empty it is read from APIKeyEnv.
	APIKey       string `key:"apiKey" json:"api_key"`
	APIKeyEnv    string `key:"apiKeyEnv" json:"api_key_env"`
	APIKeyHeader string `key:"apiKeyHeader" json:"api_key_header"`
	APIKeyPrefix string `key:"apiKeyPrefix" json:"api_key_prefix"`

	RateLimit         RateLimitConfig `key:"rateLimit" json:"rate_limit"`
	TrustForwardedFor bool            `key:"trustForwardedFor" json:"trust_forwarded_for"`
	ShutdownTimeout   time.Duration   `key:"shutdownTimeout" json:"shutdown_timeout"`
}

// Redact returns a copy safe for logging
func (c ProxyConfig) Redact() ProxyConfig {
	if c.APIKey != "" {
		c.APIKey = redacted
	}
	return c
}

// RateLimitConfig configures the sliding-window limiter
type RateLimitConfig struct {
	Window      time.Duration `key:"window" json:"window"`
	MaxRequests int           `key:"maxRequests" json:"max_requests"`
}

// ----------------------------------------------------------------------------
// Stages Configuration
// ----------------------------------------------------------------------------

type StagesConfig struct {
	DefinitionPath string `key:"definitionPath" json:"definition_path"`
}

const redacted = "[REDACTED]"
