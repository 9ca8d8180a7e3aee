package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Backends  BackendsConfig  `koanf:"backends"`
	Redis     RedisConfig     `koanf:"redis"`
	Auth      AuthConfig      `koanf:"auth"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Proxy     ProxyConfig     `koanf:"proxy"`
	CORS      CORSConfig      `koanf:"cors"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

// BackendsConfig holds the base URL of each upstream service the
// gateway fronts. All five are required at startup.
type BackendsConfig struct {
	Auth    string `koanf:"auth"`
	Posts   string `koanf:"posts"`
	Media   string `koanf:"media"`
	Search  string `koanf:"search"`
	Profile string `koanf:"profile"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type AuthConfig struct {
	// JWTSecret is the shared HMAC secret used to verify bearer tokens.
	// Supports ${VAR} substitution when loaded from config.yaml.
	JWTSecret string `koanf:"jwt_secret"`
}

type RateLimitConfig struct {
	// MaxRequests is the number of requests admitted per client per window.
	MaxRequests int `koanf:"max_requests"`
	// Window is the fixed admission window, e.g. "15m".
	Window time.Duration `koanf:"window"`
}

type ProxyConfig struct {
	// Timeout bounds a single outbound backend call.
	Timeout time.Duration `koanf:"timeout"`
}

type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func Load() (*Config, error) {
	return LoadFile("config.yaml")
}

// LoadFile reads configuration from the given YAML file (a missing
// file is fine) and overlays EDGE_-prefixed environment variables,
// with "__" in variable names mapping to nesting, e.g.
// EDGE_SERVER__PORT=9000 sets server.port.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("EDGE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "EDGE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("redis.addr") {
		k.Set("redis.addr", "localhost:6379")
	}
	if !k.Exists("rate_limit.max_requests") {
		k.Set("rate_limit.max_requests", 100)
	}
	if !k.Exists("rate_limit.window") {
		k.Set("rate_limit.window", "15m")
	}
	if !k.Exists("proxy.timeout") {
		k.Set("proxy.timeout", "30s")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Substitute environment variables in secrets
	cfg.Auth.JWTSecret = substituteEnvVars(cfg.Auth.JWTSecret)
	cfg.Redis.Password = substituteEnvVars(cfg.Redis.Password)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	for name, u := range map[string]string{
		"backends.auth":    c.Backends.Auth,
		"backends.posts":   c.Backends.Posts,
		"backends.media":   c.Backends.Media,
		"backends.search":  c.Backends.Search,
		"backends.profile": c.Backends.Profile,
	} {
		if u == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	if c.RateLimit.MaxRequests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit must have positive max_requests and window")
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
