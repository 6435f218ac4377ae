package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/taskhive/notifier/pkg/messaging/redis"
)

type Config struct {
	Server    ServerConfig           `mapstructure:"server"`
	Database  DatabaseConfig         `mapstructure:"database"`
	Redis     RedisConfig            `mapstructure:"redis"`
	JWT       JWTConfig              `mapstructure:"jwt"`
	SMTP      SMTPConfig             `mapstructure:"smtp"`
	Scheduler SchedulerConfig        `mapstructure:"scheduler"`
	Queues    map[string]QueueConfig `mapstructure:"queues"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type SMTPConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	From        string        `mapstructure:"from"`
	SendRate    float64       `mapstructure:"send_rate"`
	SendBurst   int           `mapstructure:"send_burst"`
	BreakerMax  int           `mapstructure:"breaker_max_failures"`
	BreakerWait time.Duration `mapstructure:"breaker_timeout"`
}

type SchedulerConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	DedupWindow time.Duration `mapstructure:"dedup_window"`
	LockKey     string        `mapstructure:"lock_key"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
	BatchSize   int           `mapstructure:"batch_size"`
}

type QueueConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	ClaimTimeout time.Duration `mapstructure:"claim_timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BatchSize    int           `mapstructure:"batch_size"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 15*time.Second)
	viper.SetDefault("server.rate_limit_rps", 50)
	viper.SetDefault("server.rate_limit_burst", 100)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 2)

	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("smtp.send_rate", 10)
	viper.SetDefault("smtp.send_burst", 20)
	viper.SetDefault("smtp.breaker_max_failures", 5)
	viper.SetDefault("smtp.breaker_timeout", 30*time.Second)

	viper.SetDefault("scheduler.interval", 5*time.Minute)
	viper.SetDefault("scheduler.dedup_window", time.Hour)
	viper.SetDefault("scheduler.lock_key", "scheduler:tick:lock")
	viper.SetDefault("scheduler.lock_ttl", 4*time.Minute)
	viper.SetDefault("scheduler.batch_size", 500)

	viper.SetDefault("queues.default.concurrency", 2)
	viper.SetDefault("queues.default.poll_interval", 5*time.Second)
	viper.SetDefault("queues.default.claim_timeout", 5*time.Minute)
	viper.SetDefault("queues.default.max_attempts", 3)
	viper.SetDefault("queues.default.batch_size", 50)

	viper.SetDefault("queues.notifications.concurrency", 4)
	viper.SetDefault("queues.notifications.poll_interval", 5*time.Second)
	viper.SetDefault("queues.notifications.claim_timeout", 5*time.Minute)
	viper.SetDefault("queues.notifications.max_attempts", 3)
	viper.SetDefault("queues.notifications.batch_size", 100)

	viper.SetDefault("queues.heavy.concurrency", 1)
	viper.SetDefault("queues.heavy.poll_interval", 15*time.Second)
	viper.SetDefault("queues.heavy.claim_timeout", 30*time.Minute)
	viper.SetDefault("queues.heavy.max_attempts", 3)
	viper.SetDefault("queues.heavy.batch_size", 10)
}

// WorkerEnv holds the env-only overrides the worker binary honors when
// running containerized without a config file.
type WorkerEnv struct {
	DatabaseURL string `envconfig:"DATABASE_URL"`
	RedisURL    string `envconfig:"REDIS_URL"`
	HealthPort  int    `envconfig:"HEALTH_PORT" default:"8081"`
}

func LoadWorkerEnv() (*WorkerEnv, error) {
	var env WorkerEnv
	if err := envconfig.Process("notifier", &env); err != nil {
		return nil, fmt.Errorf("failed to process worker env: %w", err)
	}
	return &env, nil
}

func (c *Config) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.Redis.URL,
		MaxRetries:   c.Redis.MaxRetries,
		RetryBackoff: c.Redis.RetryBackoff,
		PoolSize:     c.Redis.PoolSize,
		MinIdleConns: c.Redis.MinIdleConns,
	}
}

// DSN builds the lib/pq connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// QueueFor returns the configuration for the named queue, falling back to
// the default queue's settings for unknown names.
func (c *Config) QueueFor(name string) QueueConfig {
	if qc, ok := c.Queues[name]; ok {
		return qc
	}
	return c.Queues["default"]
}
