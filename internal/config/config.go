package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ent0n29/handoff/internal/routing"
)

// Config contains all runtime settings for the operator handoff service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool
	GatewayToken     string

	OperatorIDs         []string
	AdminIDs            []string
	WaitingTimeout      time.Duration
	ConversationTimeout time.Duration
	SweepInterval       time.Duration
	Keywords            routing.Keywords

	LogLevel  string
	LogFormat string

	DatabaseURL  string
	AMQPURL      string
	AMQPExchange string
}

// File is the optional YAML document named by HANDOFF_CONFIG. Environment
// variables take precedence over it.
type File struct {
	Operators           []string         `yaml:"operators"`
	Admins              []string         `yaml:"admins"`
	WaitingTimeout      string           `yaml:"waiting_timeout"`
	ConversationTimeout string           `yaml:"conversation_timeout"`
	Keywords            routing.Keywords `yaml:"keywords"`
}

// Load reads the config file named by HANDOFF_CONFIG, if any, and the
// environment, and applies safe defaults.
func Load() (Config, error) {
	return LoadFrom(stringsTrimSpace("HANDOFF_CONFIG"))
}

// LoadFrom is Load with an explicit config file path. An empty path skips
// the file.
func LoadFrom(path string) (Config, error) {
	cfg := Config{
		BindAddr:            envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:    envOrDefault("APP_METRICS_NAMESPACE", "handoff"),
		AllowAnyOrigin:      false,
		GatewayToken:        stringsTrimSpace("GATEWAY_TOKEN"),
		LogLevel:            envOrDefault("LOG_LEVEL", "info"),
		LogFormat:           envOrDefault("LOG_FORMAT", "text"),
		DatabaseURL:         stringsTrimSpace("DATABASE_URL"),
		AMQPURL:             stringsTrimSpace("AMQP_URL"),
		AMQPExchange:        envOrDefault("AMQP_EXCHANGE", "handoff.outbound"),
		ShutdownTimeout:     15 * time.Second,
		WaitingTimeout:      300 * time.Second,
		ConversationTimeout: 600 * time.Second,
		Keywords:            routing.DefaultKeywords(),
	}

	if path = strings.TrimSpace(path); path != "" {
		file, err := ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := cfg.applyFile(file); err != nil {
			return Config{}, err
		}
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.WaitingTimeout, err = secondsFromEnv("WAITING_TIMEOUT", cfg.WaitingTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ConversationTimeout, err = secondsFromEnv("CONVERSATION_TIMEOUT", cfg.ConversationTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SweepInterval, err = durationFromEnv("SWEEP_INTERVAL", cfg.SweepInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	if ids := listFromEnv("OPERATOR_IDS"); len(ids) > 0 {
		cfg.OperatorIDs = ids
	}
	if ids := listFromEnv("ADMIN_IDS"); len(ids) > 0 {
		cfg.AdminIDs = ids
	}
	cfg.Keywords = cfg.Keywords.WithDefaults()

	if cfg.WaitingTimeout < time.Second {
		return Config{}, fmt.Errorf("WAITING_TIMEOUT must be at least 1s")
	}
	if cfg.ConversationTimeout < time.Second {
		return Config{}, fmt.Errorf("CONVERSATION_TIMEOUT must be at least 1s")
	}
	if cfg.SweepInterval < 0 {
		return Config{}, fmt.Errorf("SWEEP_INTERVAL must be >= 0")
	}
	if cfg.ShutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}

	return cfg, nil
}

// ReadFile parses a YAML config file.
func ReadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return f, nil
}

func (c *Config) applyFile(f File) error {
	if len(f.Operators) > 0 {
		c.OperatorIDs = f.Operators
	}
	if len(f.Admins) > 0 {
		c.AdminIDs = f.Admins
	}
	var err error
	if c.WaitingTimeout, err = parseSeconds("waiting_timeout", f.WaitingTimeout, c.WaitingTimeout); err != nil {
		return err
	}
	if c.ConversationTimeout, err = parseSeconds("conversation_timeout", f.ConversationTimeout, c.ConversationTimeout); err != nil {
		return err
	}
	c.Keywords = mergeKeywords(c.Keywords, f.Keywords)
	return nil
}

func mergeKeywords(base, override routing.Keywords) routing.Keywords {
	if override.RequestHuman != "" {
		base.RequestHuman = override.RequestHuman
	}
	if override.CancelHuman != "" {
		base.CancelHuman = override.CancelHuman
	}
	if override.Accept != "" {
		base.Accept = override.Accept
	}
	if override.End != "" {
		base.End = override.End
	}
	if override.List != "" {
		base.List = override.List
	}
	return base
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

// secondsFromEnv accepts a bare number of seconds or a Go duration.
func secondsFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	return parseSeconds(key, stringsTrimSpace(key), fallback)
}

func parseSeconds(key, v string, fallback time.Duration) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

func listFromEnv(key string) []string {
	v := stringsTrimSpace(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
