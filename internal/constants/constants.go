package constants

import "time"

const (
	BrokerTypeRabbitMQ = "rabbitmq"
	BrokerTypeKafka    = "kafka"
)

const (
	// WorkerPrefetch keeps exactly one unacknowledged delivery per worker,
	// which turns N workers into N independent serial pipelines.
	WorkerPrefetch = 1
)

const (
	KafkaBatchTimeout   = 10 * time.Millisecond
	KafkaWriteTimeout   = 10 * time.Second
	DefaultKafkaGroupID = "sms-senders"
	// DefaultKafkaPartitions bounds how many workers in one consumer
	// group can receive messages at the same time.
	DefaultKafkaPartitions = 8
)

const (
	DefaultStatsKey          = "sms_simulator_stats"
	DefaultMaxUpdateAttempts = 10

	UpdatePolicyReadModifyWrite = "read_modify_write"
	UpdatePolicyAtomic          = "atomic"
)

const (
	DefaultMessageLength = 100
	PhoneNumberDigits    = 10
)

const (
	ShutdownTimeout    = 5 * time.Second
	HealthCheckTimeout = 5 * time.Second
)

const (
	ServiceNameSender   = "sender-service"
	ServiceNameMonitor  = "monitor-service"
	ServiceNameProducer = "producer"
)
