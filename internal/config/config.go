package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the processor.
type Config struct {
	// Node
	NodeURL  string `yaml:"node_url"`
	RPCRPS   int    `yaml:"rpc_rps"`
	RPCBurst int    `yaml:"rpc_burst"`

	// PostgreSQL
	PostgresURL string `yaml:"postgres_url"`
	DBMaxConns  int32  `yaml:"db_max_conns"`
	DBMinConns  int32  `yaml:"db_min_conns"`

	// Redis
	RedisURL          string `yaml:"redis_url"`
	RangesTopic       string `yaml:"ranges_topic"`
	TransactionsTopic string `yaml:"transactions_topic"`
	ConsumerGroup     string `yaml:"consumer_group"`

	// Processing
	ProcessorName     string        `yaml:"processor_name"`
	WorkerConcurrency int           `yaml:"worker_concurrency"`
	BatchSize         uint64        `yaml:"batch_size"`
	StartVersion      uint64        `yaml:"start_version"`
	ForwardTimeout    time.Duration `yaml:"forward_timeout"`

	// Scheduler
	SchedulerEnabled bool          `yaml:"scheduler_enabled"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	MaxQueueLength   int64         `yaml:"max_queue_length"`
	StreamMaxLen     int64         `yaml:"stream_max_len"`

	// Periodic gap check against the ledger head; 0 disables it
	GapCheckInterval time.Duration `yaml:"gap_check_interval"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// HTTP API
	HTTPAddr   string `yaml:"http_addr"`
	AdminToken string `yaml:"admin_token"`
}

// Default returns a Config with every optional field set.
func Default() *Config {
	return &Config{
		RPCRPS:            50,
		RPCBurst:          100,
		DBMaxConns:        20,
		DBMinConns:        2,
		RangesTopic:       "version-ranges",
		TransactionsTopic: "transactions",
		ConsumerGroup:     "processor-workers",
		ProcessorName:     "custom_processor",
		WorkerConcurrency: 4,
		BatchSize:         500,
		ForwardTimeout:    30 * time.Second,
		SchedulerEnabled:  true,
		PollInterval:      2 * time.Second,
		MaxQueueLength:    1000,
		StreamMaxLen:      100000,
		LogLevel:          "info",
		HTTPAddr:          ":8080",
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE (if any), then environment variables, in that order.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		c.PostgresURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("NODE_URL"); v != "" {
		c.NodeURL = v
	}

	texts := map[string]*string{
		"PROCESSOR_NAME":     &c.ProcessorName,
		"RANGES_TOPIC":       &c.RangesTopic,
		"TRANSACTIONS_TOPIC": &c.TransactionsTopic,
		"CONSUMER_GROUP":     &c.ConsumerGroup,
		"LOG_LEVEL":          &c.LogLevel,
		"HTTP_ADDR":          &c.HTTPAddr,
		"ADMIN_TOKEN":        &c.AdminToken,
	}
	for key, dst := range texts {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"RPC_RPS":            &c.RPCRPS,
		"RPC_BURST":          &c.RPCBurst,
		"WORKER_CONCURRENCY": &c.WorkerConcurrency,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	int32s := map[string]*int32{
		"DB_MAX_CONNS": &c.DBMaxConns,
		"DB_MIN_CONNS": &c.DBMinConns,
	}
	for key, dst := range int32s {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.ParseInt(v, 10, 32)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = int32(n)
		}
	}

	uints := map[string]*uint64{
		"BATCH_SIZE":    &c.BatchSize,
		"START_VERSION": &c.StartVersion,
	}
	for key, dst := range uints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"FORWARD_TIMEOUT":    &c.ForwardTimeout,
		"POLL_INTERVAL":      &c.PollInterval,
		"GAP_CHECK_INTERVAL": &c.GapCheckInterval,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	int64s := map[string]*int64{
		"MAX_QUEUE_LENGTH": &c.MaxQueueLength,
		"STREAM_MAX_LEN":   &c.StreamMaxLen,
	}
	for key, dst := range int64s {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	if v := os.Getenv("SCHEDULER_ENABLED"); v != "" {
		c.SchedulerEnabled = v == "true" || v == "1"
	}

	return nil
}

// Validate checks required settings and bounds.
func (c *Config) Validate() error {
	if c.PostgresURL == "" {
		return fmt.Errorf("POSTGRES_URL is required")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.NodeURL == "" {
		return fmt.Errorf("NODE_URL is required")
	}
	if c.ProcessorName == "" {
		return fmt.Errorf("PROCESSOR_NAME cannot be empty")
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("BATCH_SIZE must be positive")
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	if c.ForwardTimeout <= 0 {
		return fmt.Errorf("FORWARD_TIMEOUT must be positive")
	}
	if c.StreamMaxLen > 0 && c.StreamMaxLen < c.MaxQueueLength {
		return fmt.Errorf("STREAM_MAX_LEN (%d) is below MAX_QUEUE_LENGTH (%d)", c.StreamMaxLen, c.MaxQueueLength)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
