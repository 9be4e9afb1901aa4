// Package config loads the worker's YAML configuration file, expanding
// ${VAR} / ${VAR:-default} references against the process environment
// before unmarshalling, the same way this codebase's broader family of
// services resolve secrets and per-environment settings.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the worker's full runtime configuration.
type Config struct {
	Broker      BrokerConfig      `yaml:"broker"`
	SMTP        SMTPConfig        `yaml:"smtp"`
	Redis       RedisConfig       `yaml:"redis"`
	Templates   TemplatesConfig   `yaml:"templates"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
	Log         LogConfig         `yaml:"log"`
}

// BrokerConfig describes the RabbitMQ connection and topology.
type BrokerConfig struct {
	URL           string `yaml:"url"`
	MainExchange  string `yaml:"main_exchange"`
	MainQueue     string `yaml:"main_queue"`
	RetryExchange string `yaml:"retry_exchange"`
	RetryQueue    string `yaml:"retry_queue"`
	DLQExchange   string `yaml:"dlq_exchange"`
	DLQQueue      string `yaml:"dlq_queue"`
	RoutingKey    string `yaml:"routing_key"`
	RetryDelayMs  int    `yaml:"retry_delay_ms"`
	MaxRetries    int    `yaml:"max_retries"`
	Prefetch      int    `yaml:"prefetch"`
}

// SMTPConfig describes the outbound mail gateway.
type SMTPConfig struct {
	Host               string  `yaml:"host"`
	Port               int     `yaml:"port"`
	Username           string  `yaml:"username"`
	Password           string  `yaml:"password"`
	SSL                bool    `yaml:"ssl"`
	From               string  `yaml:"from"`
	FromName           string  `yaml:"from_name"`
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
}

// RedisConfig describes the idempotency store's backing Redis node.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TemplatesConfig points at the directory of "*.html.tmpl" files.
type TemplatesConfig struct {
	Dir string `yaml:"dir"`
}

// IdempotencyConfig configures the idempotency record TTL, in seconds.
type IdempotencyConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a Config with every field at its documented default,
// matching this package's own defaults for unset values.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			MainExchange:  "notification.main",
			MainQueue:     "notification.main",
			RetryExchange: "notification.retry",
			RetryQueue:    "notification.retry",
			DLQExchange:   "notification.dlq",
			DLQQueue:      "notification.dlq",
			RoutingKey:    "notification.event",
			RetryDelayMs:  60000,
			MaxRetries:    3,
			Prefetch:      10,
		},
		Redis:       RedisConfig{DB: 0},
		Templates:   TemplatesConfig{Dir: "templates"},
		Idempotency: IdempotencyConfig{TTLSeconds: 86400},
		Log:         LogConfig{Level: "info"},
	}
}

// Load reads path, substitutes environment variables, and unmarshals the
// result as YAML onto a Default() config so unset fields keep their
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	content := SubstituteEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

var envRegex = regexp.MustCompile(`\${(\w+)(?::-([^}]*))?}`)

// SubstituteEnvVars replaces ${VAR} with the environment value of VAR, or
// ${VAR:-default} with default when VAR is unset, leaving any other
// reference untouched.
func SubstituteEnvVars(input string) string {
	return envRegex.ReplaceAllStringFunc(input, func(m string) string {
		matches := envRegex.FindStringSubmatch(m)
		if len(matches) < 2 {
			return m
		}
		envVar := matches[1]
		if val, ok := os.LookupEnv(envVar); ok {
			return val
		}
		if len(matches) > 2 && strings.Contains(m, ":-") {
			return matches[2]
		}
		return m
	})
}
