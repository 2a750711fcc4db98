package config

import (
	"errors"
	"fmt"

	"smssim/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// Validate checks the sections role depends on. All problems are reported
// together.
func Validate(cfg *Config, role Role) error {
	var errs []error

	appendErr := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	appendErr(validateServer(cfg.Server))

	switch role {
	case RoleSender:
		appendErr(validateBroker(cfg.Broker))
		appendErr(validateRedis(cfg.Database.Redis))
		appendErr(validateStats(cfg.Stats))
		appendErr(validateSender(cfg.Sender))
		appendErr(validateKafkaWorkers(cfg.Broker, cfg.Sender))
		appendErr(validateCircuitBreaker(cfg.CircuitBreaker))
	case RoleMonitor:
		appendErr(validateRedis(cfg.Database.Redis))
		appendErr(validateStats(cfg.Stats))
		appendErr(validateMonitor(cfg.Monitor))
	case RoleProducer:
		appendErr(validateBroker(cfg.Broker))
		appendErr(validateProducer(cfg.Producer))
	default:
		appendErr(&ValidationError{Field: "role", Message: fmt.Sprintf("unknown role: %s", role)})
	}

	return errors.Join(errs...)
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 0 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.Port > 0 && (cfg.ReadTimeoutSeconds <= 0 || cfg.WriteTimeoutSeconds <= 0) {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read and write timeouts must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	if cfg.QueueName == "" {
		return &ValidationError{
			Field:   "broker.queue_name",
			Message: "queue name is required",
		}
	}

	switch cfg.Type {
	case constants.BrokerTypeRabbitMQ:
		return validateRabbitMQ(cfg.RabbitMQ)
	case constants.BrokerTypeKafka:
		return validateKafka(cfg.Kafka)
	case "":
		return &ValidationError{
			Field:   "broker.type",
			Message: "broker type is required",
		}
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: rabbitmq, kafka)", cfg.Type),
		}
	}
}

func validateRabbitMQ(cfg RabbitMQConfig) error {
	if cfg.URL != "" {
		return nil
	}

	if cfg.Host == "" {
		return &ValidationError{
			Field:   "broker.rabbitmq.host",
			Message: "RabbitMQ host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "broker.rabbitmq.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.Partitions < 1 {
		return &ValidationError{
			Field:   "broker.kafka.partitions",
			Message: fmt.Sprintf("at least one partition is required, got %d", cfg.Partitions),
		}
	}

	if cfg.ReplicationFactor < 1 {
		return &ValidationError{
			Field:   "broker.kafka.replication_factor",
			Message: fmt.Sprintf("replication factor must be positive, got %d", cfg.ReplicationFactor),
		}
	}

	return nil
}

// validateKafkaWorkers rejects a sender that would leave workers idle: a
// consumer group never gives one partition to two readers.
func validateKafkaWorkers(broker BrokerConfig, sender SenderConfig) error {
	if broker.Type != constants.BrokerTypeKafka {
		return nil
	}
	if broker.Kafka.Partitions < sender.Workers {
		return &ValidationError{
			Field: "broker.kafka.partitions",
			Message: fmt.Sprintf("%d partitions cannot feed %d workers; set partitions to at least sender.workers",
				broker.Kafka.Partitions, sender.Workers),
		}
	}
	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateStats(cfg StatsConfig) error {
	if cfg.Key == "" {
		return &ValidationError{
			Field:   "stats.key",
			Message: "stats key cannot be empty",
		}
	}

	switch cfg.UpdatePolicy {
	case constants.UpdatePolicyReadModifyWrite, constants.UpdatePolicyAtomic:
	default:
		return &ValidationError{
			Field: "stats.update_policy",
			Message: fmt.Sprintf("invalid update policy: %s (valid: %s, %s)",
				cfg.UpdatePolicy, constants.UpdatePolicyReadModifyWrite, constants.UpdatePolicyAtomic),
		}
	}

	if cfg.MaxUpdateAttempts < 1 {
		return &ValidationError{
			Field:   "stats.max_update_attempts",
			Message: "max_update_attempts must be at least 1",
		}
	}

	return nil
}

func validateSender(cfg SenderConfig) error {
	if cfg.MeanProcessingTime <= 0 {
		return &ValidationError{
			Field:   "sender.mean_processing_time",
			Message: fmt.Sprintf("mean processing time must be positive, got %v", cfg.MeanProcessingTime),
		}
	}

	if cfg.FailureRate < 0 || cfg.FailureRate > 1 {
		return &ValidationError{
			Field:   "sender.failure_rate",
			Message: fmt.Sprintf("failure rate must be between 0 and 1, got %v", cfg.FailureRate),
		}
	}

	if cfg.Workers < 1 {
		return &ValidationError{
			Field:   "sender.workers",
			Message: fmt.Sprintf("at least one worker is required, got %d", cfg.Workers),
		}
	}

	return nil
}

func validateMonitor(cfg MonitorConfig) error {
	if cfg.UpdateInterval <= 0 {
		return &ValidationError{
			Field:   "monitor.update_interval",
			Message: fmt.Sprintf("update interval must be a positive number of seconds, got %d", cfg.UpdateInterval),
		}
	}
	return nil
}

func validateProducer(cfg ProducerConfig) error {
	if cfg.RatePerSecond < 0 {
		return &ValidationError{
			Field:   "producer.rate_per_second",
			Message: "rate must be non-negative",
		}
	}

	if cfg.MessageLength < 1 {
		return &ValidationError{
			Field:   "producer.message_length",
			Message: fmt.Sprintf("message length must be positive, got %d", cfg.MessageLength),
		}
	}

	return nil
}

func validateCircuitBreaker(cfg CircuitBreakerConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.FailureRatio < 0 || cfg.FailureRatio > 1 {
		return &ValidationError{
			Field:   "circuit_breaker.failure_ratio",
			Message: "failure ratio must be between 0 and 1",
		}
	}

	if cfg.Interval < 0 || cfg.Timeout < 0 {
		return &ValidationError{
			Field:   "circuit_breaker.timeout",
			Message: "interval and timeout must be non-negative",
		}
	}

	return nil
}
