package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`

	Log      LogConfig      `yaml:"log"`
	Redis    RedisConfig    `yaml:"redis"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Payment  PaymentConfig  `yaml:"payment"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Checkout CheckoutConfig `yaml:"checkout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// RedisConfig selects the durable cart repository. An empty Addr keeps
// snapshots in process memory.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size"`
	CartTTL  time.Duration `yaml:"cart_ttl"`
}

type MySQLConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type PaymentConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Currency string        `yaml:"currency"`
	Timeout  time.Duration `yaml:"timeout"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type TracingConfig struct {
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
}

// CheckoutConfig sizes the notification pool and bounds how long an unused
// session keeps its store in memory. SessionIdle must not exceed the Redis
// cart TTL.
type CheckoutConfig struct {
	WorkerCount   int           `yaml:"worker_count"`
	QueueSize     int           `yaml:"queue_size"`
	SessionIdle   time.Duration `yaml:"session_idle"`
	EvictInterval time.Duration `yaml:"evict_interval"`
}

func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		GRPCAddr: ":50051",
		Log:      LogConfig{Level: "info"},
		Redis: RedisConfig{
			PoolSize: 100,
			CartTTL:  30 * 24 * time.Hour,
		},
		MySQL: MySQLConfig{
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Payment: PaymentConfig{
			Endpoint: "http://localhost:3000/api/payment-intent",
			Currency: "usd",
			Timeout:  10 * time.Second,
		},
		Kafka: KafkaConfig{Topic: "order-confirmed"},
		Checkout: CheckoutConfig{
			WorkerCount:   4,
			QueueSize:     1000,
			SessionIdle:   30 * time.Minute,
			EvictInterval: time.Minute,
		},
	}
}

// Load reads path on top of Default and applies environment overrides. An empty
// path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("GRPC_ADDR"); v != "" {
		c.GRPCAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		c.MySQL.DSN = v
	}
	if v := os.Getenv("PAYMENT_ENDPOINT"); v != "" {
		c.Payment.Endpoint = v
	}
	if v := os.Getenv("PAYMENT_CURRENCY"); v != "" {
		c.Payment.Currency = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		c.Tracing.JaegerEndpoint = v
	}
	if v := os.Getenv("CHECKOUT_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHECKOUT_WORKERS: %w", err)
		}
		c.Checkout.WorkerCount = n
	}
	if v := os.Getenv("SESSION_IDLE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SESSION_IDLE: %w", err)
		}
		c.Checkout.SessionIdle = d
	}
	return nil
}

func (c *Config) Validate() error {
	if c.HTTPAddr == "" && c.GRPCAddr == "" {
		return errors.New("at least one of http_addr or grpc_addr is required")
	}
	if c.Payment.Endpoint == "" {
		return errors.New("payment.endpoint is required")
	}
	if c.Checkout.WorkerCount <= 0 {
		return fmt.Errorf("checkout.worker_count must be positive, got %d", c.Checkout.WorkerCount)
	}
	if c.Checkout.QueueSize <= 0 {
		return fmt.Errorf("checkout.queue_size must be positive, got %d", c.Checkout.QueueSize)
	}
	if c.Checkout.SessionIdle <= 0 || c.Checkout.EvictInterval <= 0 {
		return errors.New("checkout.session_idle and checkout.evict_interval must be positive")
	}
	if c.Redis.CartTTL > 0 && c.Checkout.SessionIdle > c.Redis.CartTTL {
		return fmt.Errorf("checkout.session_idle %s exceeds redis.cart_ttl %s", c.Checkout.SessionIdle, c.Redis.CartTTL)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when brokers are set")
	}
	return nil
}
