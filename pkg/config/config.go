package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port         int    `yaml:"port"`
	TenantURL    string `yaml:"tenantUrl"`
	AuthProvider string `yaml:"authProvider"`
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	APIKey       string `yaml:"apiKey"`

	StoreRoot    string `yaml:"storeRoot"`
	PublicPrefix string `yaml:"publicPrefix"`

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
	Env       string `yaml:"env"`

	FetchTimeoutSeconds int `yaml:"fetchTimeoutSeconds"`

	// RedisAddr is optional; when set, per-task fetch locks are taken in
	// redis so replicas sharing one store root cannot interleave writes.
	RedisAddr      string `yaml:"redisAddr"`
	RedisPassword  string `yaml:"redisPassword"`
	LockTTLSeconds int    `yaml:"lockTTLSeconds"`

	TracingEnabled     bool    `yaml:"tracingEnabled"`
	TracingServiceName string  `yaml:"tracingServiceName"`
	OTLPEndpoint       string  `yaml:"otlpEndpoint"`
	OTLPInsecure       bool    `yaml:"otlpInsecure"`
	TraceSampleRatio   float64 `yaml:"traceSampleRatio"`
}

// LoadConfigOptional behaves like LoadConfig but tolerates an empty or
// missing file path, leaving env vars and defaults as the only sources.
func LoadConfigOptional(filePath string) (*Config, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		c := &Config{}
		applyEnv(c)
		applyDefaults(c)
		return c, nil
	}
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		c := &Config{}
		applyEnv(c)
		applyDefaults(c)
		return c, nil
	}
	return LoadConfig(filePath)
}

func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	applyEnv(&c)
	applyDefaults(&c)
	return &c, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("QCS_TENANT_URL"); v != "" {
		c.TenantURL = v
	}
	if v := os.Getenv("QCS_AUTH_PROVIDER"); v != "" {
		c.AuthProvider = v
	}
	if v := os.Getenv("QCS_CLIENT_ID"); v != "" {
		c.ClientID = v
	}
	if v := os.Getenv("QCS_CLIENT_SECRET"); v != "" {
		c.ClientSecret = v
	}
	if v := os.Getenv("QCS_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("QCS_STORE_ROOT"); v != "" {
		c.StoreRoot = v
	}
	if v := os.Getenv("QCS_PUBLIC_PREFIX"); v != "" {
		c.PublicPrefix = v
	}
	if v := os.Getenv("QCS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("QCS_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("QCS_ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("QCS_FETCH_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.FetchTimeoutSeconds = n
		}
	}
	if v := os.Getenv("QCS_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("QCS_REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("QCS_LOCK_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LockTTLSeconds = n
		}
	}
	if v := os.Getenv("QCS_TRACING_ENABLED"); v != "" {
		c.TracingEnabled = parseBool(v)
	}
	if v := os.Getenv("QCS_TRACING_SERVICE_NAME"); v != "" {
		c.TracingServiceName = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.OTLPEndpoint = v
	}
	if v := os.Getenv("QCS_TRACE_SAMPLE_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.TraceSampleRatio = f
		}
	}
}

func applyDefaults(c *Config) {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.AuthProvider == "" {
		c.AuthProvider = "oauth"
	}
	if c.StoreRoot == "" {
		c.StoreRoot = "public/snapshots"
	}
	if c.PublicPrefix == "" {
		c.PublicPrefix = "/snapshots"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.FetchTimeoutSeconds <= 0 {
		c.FetchTimeoutSeconds = 30
	}
	if c.LockTTLSeconds <= 0 {
		c.LockTTLSeconds = 120
	}
	if c.TracingServiceName == "" {
		c.TracingServiceName = "qlik-cloud-embed-snapshot"
	}
}

// Validate reports fatal configuration problems. The server must not start
// without a reachable tenant and working credentials.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.TenantURL) == "" {
		errs = append(errs, "tenantUrl is required")
	} else {
		u, err := url.Parse(c.TenantURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, "tenantUrl must be a valid http(s) URL")
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.AuthProvider)) {
	case "oauth":
		if strings.TrimSpace(c.ClientID) == "" {
			errs = append(errs, "clientId is required with the oauth provider")
		}
		if strings.TrimSpace(c.ClientSecret) == "" {
			errs = append(errs, "clientSecret is required with the oauth provider")
		}
	case "static":
		if strings.TrimSpace(c.APIKey) == "" {
			errs = append(errs, "apiKey is required with the static provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown authProvider %q", c.AuthProvider))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func parseBool(v string) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	return v == "true" || v == "1" || v == "yes" || v == "y" || v == "on"
}
