package config

import (
	"time"
)

// Role selects which parts of the configuration a process needs.
type Role string

const (
	RoleSender   Role = "sender"
	RoleMonitor  Role = "monitor"
	RoleProducer Role = "producer"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Stats          StatsConfig          `mapstructure:"stats"`
	Sender         SenderConfig         `mapstructure:"sender"`
	Monitor        MonitorConfig        `mapstructure:"monitor"`
	Producer       ProducerConfig       `mapstructure:"producer"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
}

// ServerConfig is the HTTP listener exposing health, metrics and, for the
// monitor, the stats API. Port 0 disables it.
type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type BrokerConfig struct {
	Type      string         `mapstructure:"type"`
	QueueName string         `mapstructure:"queue_name"`
	RabbitMQ  RabbitMQConfig `mapstructure:"rabbitmq"`
	Kafka     KafkaConfig    `mapstructure:"kafka"`
}

type RabbitMQConfig struct {
	URL         string        `mapstructure:"url"` // overrides host/port/user/password/vhost
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	User        string        `mapstructure:"user"`
	Password    string        `mapstructure:"password"`
	Vhost       string        `mapstructure:"vhost"`
	Heartbeat   time.Duration `mapstructure:"heartbeat"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
	// Partitions is used when the topic is created. A group assigns each
	// partition to one reader, so it caps the number of busy workers.
	Partitions        int `mapstructure:"partitions"`
	ReplicationFactor int `mapstructure:"replication_factor"`
}

type StatsConfig struct {
	Key string `mapstructure:"key"`
	// UpdatePolicy is "read_modify_write" (lossy under concurrency) or
	// "atomic".
	UpdatePolicy      string `mapstructure:"update_policy"`
	MaxUpdateAttempts int    `mapstructure:"max_update_attempts"`
}

type SenderConfig struct {
	MeanProcessingTime float64 `mapstructure:"mean_processing_time"` // seconds
	FailureRate        float64 `mapstructure:"failure_rate"`
	Workers            int     `mapstructure:"workers"`
	Seed               uint64  `mapstructure:"seed"` // 0 picks a random seed
}

// MeanProcessingDuration converts the configured mean (seconds) to a
// duration.
func (c SenderConfig) MeanProcessingDuration() time.Duration {
	return time.Duration(c.MeanProcessingTime * float64(time.Second))
}

type MonitorConfig struct {
	UpdateInterval int `mapstructure:"update_interval"` // seconds
}

func (c MonitorConfig) Interval() time.Duration {
	return time.Duration(c.UpdateInterval) * time.Second
}

type ProducerConfig struct {
	RatePerSecond float64 `mapstructure:"rate_per_second"` // 0 means unpaced
	MessageLength int     `mapstructure:"message_length"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

func Load(configFile string, role Role) (*Config, error) {
	return LoadConfig(configFile, role)
}
