package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

var ErrMissingRequiredValue = errors.New("missing required value")
var ErrInvalidValue = errors.New("invalid value")

type environment string

const (
	production  environment = "production"
	staging     environment = "staging"
	development environment = "development"
)

const (
	defaultPort          = "8080"
	defaultWorkers       = 4
	defaultCacheCapacity = 100
)

type Config struct {
	env                environment
	port               string
	sentryDSN          string
	root               string
	workers            int
	cacheCapacity      int
	cacheFailures      bool
	readDelay          time.Duration
	watch              bool
	googleCloudProject string
	otlpEndpoint       string
}

func (c *Config) Port() string {
	return c.port
}

func (c *Config) SentryDSN() string {
	return c.sentryDSN
}

// Root is the directory (or afs URL) the message folders live in
func (c *Config) Root() string {
	return c.root
}

func (c *Config) Workers() int {
	return c.workers
}

func (c *Config) CacheCapacity() int {
	return c.cacheCapacity
}

func (c *Config) CacheFailures() bool {
	return c.cacheFailures
}

func (c *Config) ReadDelay() time.Duration {
	return c.readDelay
}

func (c *Config) Watch() bool {
	return c.watch
}

func (c *Config) GoogleCloudProject() string {
	return c.googleCloudProject
}

func (c *Config) OTLPEndpoint() string {
	return c.otlpEndpoint
}

func (c *Config) EnvironmentName() string {
	return string(c.env)
}

func (c *Config) IsProduction() bool {
	return c.env == production
}

func (c *Config) IsStaging() bool {
	return c.env == staging
}

func (c *Config) IsDevelopment() bool {
	return c.env == development
}

// Return a string representation suitable for logging etc
func (c *Config) NonSensitiveString() string {
	return fmt.Sprintf(
		"Config{env: %s, port: %s, root: %s, workers: %d, cacheCapacity: %d, cacheFailures: %t, readDelay: %s, watch: %t, ...}",
		string(c.env), c.port, c.root, c.workers, c.cacheCapacity, c.cacheFailures, c.readDelay, c.watch,
	)
}

func ConfigFromEnv() (Config, error) {
	missingKey := func(key string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s", ErrMissingRequiredValue, key)
	}
	invalidValue := func(key, value string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s (%s)", ErrInvalidValue, key, value)
	}

	var env environment
	rawEnv, ok := os.LookupEnv("MSGSTORE_ENVIRONMENT")
	if !ok {
		return missingKey("MSGSTORE_ENVIRONMENT")
	}
	switch rawEnv {
	case "production":
		env = production
	case "staging":
		env = staging
	case "development":
		env = development
	default:
		return invalidValue("MSGSTORE_ENVIRONMENT", rawEnv)
	}
	if string(env) == "" {
		panic("logic error: env is empty")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	root := os.Getenv("MSGSTORE_ROOT")
	if root == "" {
		return missingKey("MSGSTORE_ROOT")
	}

	sentryDSN := os.Getenv("SENTRY_DSN")
	if (env == production || env == staging) && sentryDSN == "" {
		return missingKey("SENTRY_DSN")
	}

	workers := defaultWorkers
	if raw := os.Getenv("MSGSTORE_WORKERS"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return invalidValue("MSGSTORE_WORKERS", raw)
		}
		workers = parsed
	}

	cacheCapacity := defaultCacheCapacity
	if raw := os.Getenv("MSGSTORE_CACHE_CAPACITY"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return invalidValue("MSGSTORE_CACHE_CAPACITY", raw)
		}
		cacheCapacity = parsed
	}

	cacheFailures := true
	if raw := os.Getenv("MSGSTORE_CACHE_FAILURES"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return invalidValue("MSGSTORE_CACHE_FAILURES", raw)
		}
		cacheFailures = parsed
	}

	var readDelay time.Duration
	if raw := os.Getenv("MSGSTORE_READ_DELAY"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			return invalidValue("MSGSTORE_READ_DELAY", raw)
		}
		readDelay = parsed
	}

	watch := false
	if raw := os.Getenv("MSGSTORE_WATCH"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return invalidValue("MSGSTORE_WATCH", raw)
		}
		watch = parsed
	}

	return Config{
		env:                env,
		port:               port,
		sentryDSN:          sentryDSN,
		root:               root,
		workers:            workers,
		cacheCapacity:      cacheCapacity,
		cacheFailures:      cacheFailures,
		readDelay:          readDelay,
		watch:              watch,
		googleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		otlpEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}
