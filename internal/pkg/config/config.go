// Package config loads the process-wide configuration once at startup
// into a typed struct. Components receive the struct (or individual
// values) by reference and never read the environment inline.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full environment-sourced configuration surface.
// Every field has a stated default so a bare environment still boots.
type Config struct {
	ServiceName string
	HTTPAddr    string

	RedisAddr string
	QueueName string

	BlobDir        string
	InstanceDBPath string
	DocumentDBPath string

	// FallbackURL is the escalation endpoint for the reservation worker.
	// Empty disables escalation entirely.
	FallbackURL string

	// ProcessingDelay is an optional delay injected before the commit
	// activity's write. Testing/chaos only; zero in production.
	ProcessingDelay time.Duration

	// MaxWait bounds the status gateway's polling wait. Zero means a
	// single status check with no sleep.
	MaxWait time.Duration

	// PollInterval is the sleep between status checks, floor one second.
	PollInterval time.Duration

	WorkerConcurrency int
}

// Load reads the environment into a Config and applies the documented
// defaults and clamps.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("OTEL_SERVICE_NAME", "order-fulfillment")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("QUEUE_NAME", "order-items-reserver")
	v.SetDefault("BLOB_DIR", "./data/orders")
	v.SetDefault("INSTANCE_DB_PATH", "./data/instances.db")
	v.SetDefault("DOCUMENT_DB_PATH", "./data/orders.db")
	v.SetDefault("FALLBACK_URL", "")
	v.SetDefault("PROCESSING_DELAY_SECONDS", 0)
	v.SetDefault("MAX_WAIT_SECONDS", 0)
	v.SetDefault("POLL_INTERVAL_SECONDS", 1)
	v.SetDefault("WORKER_CONCURRENCY", 4)

	cfg := &Config{
		ServiceName:       v.GetString("OTEL_SERVICE_NAME"),
		HTTPAddr:          v.GetString("HTTP_ADDR"),
		RedisAddr:         v.GetString("REDIS_ADDR"),
		QueueName:         v.GetString("QUEUE_NAME"),
		BlobDir:           v.GetString("BLOB_DIR"),
		InstanceDBPath:    v.GetString("INSTANCE_DB_PATH"),
		DocumentDBPath:    v.GetString("DOCUMENT_DB_PATH"),
		FallbackURL:       v.GetString("FALLBACK_URL"),
		ProcessingDelay:   time.Duration(v.GetInt("PROCESSING_DELAY_SECONDS")) * time.Second,
		MaxWait:           time.Duration(v.GetInt("MAX_WAIT_SECONDS")) * time.Second,
		PollInterval:      time.Duration(v.GetInt("POLL_INTERVAL_SECONDS")) * time.Second,
		WorkerConcurrency: v.GetInt("WORKER_CONCURRENCY"),
	}
	cfg.clamp()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// clamp enforces the documented floors: negative wait means no wait, the
// poll interval never drops below one second.
func (c *Config) clamp() {
	if c.MaxWait < 0 {
		c.MaxWait = 0
	}
	if c.PollInterval < time.Second {
		c.PollInterval = time.Second
	}
	if c.ProcessingDelay < 0 {
		c.ProcessingDelay = 0
	}
	if c.WorkerConcurrency < 1 {
		c.WorkerConcurrency = 1
	}
}

// Validate rejects configurations that cannot boot.
func (c *Config) Validate() error {
	if c.QueueName == "" {
		return fmt.Errorf("QUEUE_NAME is required")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.InstanceDBPath == "" || c.DocumentDBPath == "" {
		return fmt.Errorf("INSTANCE_DB_PATH and DOCUMENT_DB_PATH are required")
	}
	return nil
}
