package queue

import (
	"fmt"

	"smssim/internal/config"
	"smssim/internal/constants"
	"smssim/internal/logger"
)

// New connects to the configured broker. Connection failures are returned
// as ErrUnavailable.
func New(cfg config.BrokerConfig, log logger.Logger) (Broker, error) {
	switch cfg.Type {
	case constants.BrokerTypeRabbitMQ, "":
		return NewRabbitMQ(cfg.RabbitMQ, log)
	case constants.BrokerTypeKafka:
		return NewKafka(cfg.Kafka, log), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}
