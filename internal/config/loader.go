package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"smssim/internal/constants"
)

// LoadConfig reads configFile (optional, YAML) overlaid by environment
// variables and validates the result for role. Nothing here touches the
// network, so configuration errors always surface before any connection
// attempt.
func LoadConfig(configFile string, role Role) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	if err := checkRequired(role); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := Validate(&cfg, role); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 0)
	viper.SetDefault("server.read_timeout_seconds", "10s")
	viper.SetDefault("server.write_timeout_seconds", "10s")

	viper.SetDefault("broker.type", constants.BrokerTypeRabbitMQ)
	viper.SetDefault("broker.rabbitmq.port", 5672)
	viper.SetDefault("broker.rabbitmq.user", "guest")
	viper.SetDefault("broker.rabbitmq.password", "guest")
	viper.SetDefault("broker.rabbitmq.vhost", "/")
	viper.SetDefault("broker.rabbitmq.heartbeat", "10s")
	viper.SetDefault("broker.rabbitmq.dial_timeout", "10s")
	viper.SetDefault("broker.kafka.group_id", constants.DefaultKafkaGroupID)
	viper.SetDefault("broker.kafka.partitions", constants.DefaultKafkaPartitions)
	viper.SetDefault("broker.kafka.replication_factor", 1)

	viper.SetDefault("database.redis.port", 6379)
	viper.SetDefault("database.redis.db", 0)

	viper.SetDefault("stats.key", constants.DefaultStatsKey)
	viper.SetDefault("stats.update_policy", constants.UpdatePolicyReadModifyWrite)
	viper.SetDefault("stats.max_update_attempts", constants.DefaultMaxUpdateAttempts)

	viper.SetDefault("sender.workers", 1)

	viper.SetDefault("producer.message_length", constants.DefaultMessageLength)

	viper.SetDefault("logging.level", "info")

	viper.SetDefault("rate_limit.rps", 10.0)
	viper.SetDefault("rate_limit.burst", 20)
}

func bindEnvVariables() {
	// The short names are the variables the simulator has always been
	// deployed with (.env files, docker-compose).
	viper.BindEnv("broker.type", "BROKER_TYPE")
	viper.BindEnv("broker.queue_name", "BROKER_QUEUE_NAME", "QUEUE_NAME")
	viper.BindEnv("broker.rabbitmq.url", "BROKER_RABBITMQ_URL", "RABBITMQ_URL")
	viper.BindEnv("broker.rabbitmq.host", "BROKER_RABBITMQ_HOST", "RABBITMQ_HOST")
	viper.BindEnv("broker.rabbitmq.port", "BROKER_RABBITMQ_PORT", "RABBITMQ_PORT")
	viper.BindEnv("broker.rabbitmq.user", "BROKER_RABBITMQ_USER", "RABBITMQ_USER")
	viper.BindEnv("broker.rabbitmq.password", "BROKER_RABBITMQ_PASSWORD", "RABBITMQ_PASSWORD")
	viper.BindEnv("broker.rabbitmq.vhost", "BROKER_RABBITMQ_VHOST")
	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	viper.BindEnv("broker.kafka.partitions", "BROKER_KAFKA_PARTITIONS")
	viper.BindEnv("broker.kafka.replication_factor", "BROKER_KAFKA_REPLICATION_FACTOR")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST", "REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT", "REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD", "REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("stats.key", "STATS_KEY")
	viper.BindEnv("stats.update_policy", "STATS_UPDATE_POLICY")
	viper.BindEnv("stats.max_update_attempts", "STATS_MAX_UPDATE_ATTEMPTS")

	viper.BindEnv("sender.mean_processing_time", "SENDER_MEAN_PROCESSING_TIME", "MEAN_PROCESSING_TIME")
	viper.BindEnv("sender.failure_rate", "SENDER_FAILURE_RATE", "FAILURE_RATE")
	viper.BindEnv("sender.workers", "SENDER_WORKERS")
	viper.BindEnv("sender.seed", "SENDER_SEED")

	viper.BindEnv("monitor.update_interval", "MONITOR_UPDATE_INTERVAL")

	viper.BindEnv("producer.rate_per_second", "PRODUCER_RATE_PER_SECOND")
	viper.BindEnv("producer.message_length", "PRODUCER_MESSAGE_LENGTH")

	viper.BindEnv("server.port", "SERVER_PORT")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")

	viper.BindEnv("circuit_breaker.enabled", "CIRCUIT_BREAKER_ENABLED")

	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
}

// requiredKeys lists settings that have no sensible default and must be
// provided explicitly for the role.
func requiredKeys(role Role) []string {
	switch role {
	case RoleSender:
		return []string{"broker.queue_name", "database.redis.host", "sender.mean_processing_time", "sender.failure_rate"}
	case RoleMonitor:
		return []string{"database.redis.host", "monitor.update_interval"}
	case RoleProducer:
		return []string{"broker.queue_name"}
	default:
		return nil
	}
}

func checkRequired(role Role) error {
	var errs []error
	for _, key := range requiredKeys(role) {
		if !viper.IsSet(key) {
			errs = append(errs, &ValidationError{
				Field:   key,
				Message: "is required",
			})
		}
	}
	return errors.Join(errs...)
}

func applyEnvOverrides(cfg *Config) {
	// BROKER_KAFKA_BROKERS arrives as a single comma separated string.
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}
}
