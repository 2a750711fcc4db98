package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SMSMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_messages_total",
			Help: "Total number of messages processed by senders (count)",
		},
		[]string{"status"},
	)

	SMSProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sms_processing_duration_ms",
			Help:    "Simulated send duration in milliseconds",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"status"},
	)

	SendersBusy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sms_senders_busy",
			Help: "Number of workers currently holding an unacknowledged message (count)",
		},
	)

	StatsUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stats_updates_total",
			Help: "Total number of shared stats updates (count)",
		},
		[]string{"policy", "status"},
	)

	StatsUpdateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stats_update_duration_ms",
			Help:    "Duration of shared stats updates in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"policy"},
	)

	MonitorSent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_messages_sent",
			Help: "Messages sent as of the last monitor poll (count)",
		},
	)

	MonitorFailed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_messages_failed",
			Help: "Messages failed as of the last monitor poll (count)",
		},
	)

	MonitorAvgTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_avg_time_seconds",
			Help: "Average time per successful message as of the last monitor poll (seconds)",
		},
	)

	MonitorReadErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_read_errors_total",
			Help: "Total number of failed stats reads by the monitor (count)",
		},
	)

	ProducerMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "producer_messages_total",
			Help: "Total number of messages enqueued by the producer (count)",
		},
		[]string{"status"},
	)

	QueueMessagesPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_published_total",
			Help: "Total number of messages published to the work queue (count)",
		},
		[]string{"broker", "queue"},
	)

	QueueMessagesConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_consumed_total",
			Help: "Total number of messages delivered from the work queue (count)",
		},
		[]string{"broker", "queue"},
	)

	QueueMessagesSettledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_settled_total",
			Help: "Total number of deliveries settled, by disposition (ack, discard, requeue) (count)",
		},
		[]string{"broker", "queue", "disposition"},
	)

	QueueMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_message_size_bytes",
			Help:    "Size of work queue messages in bytes",
			Buckets: []float64{64, 128, 256, 512, 1024, 4096, 16384},
		},
		[]string{"broker", "queue", "direction"},
	)

	QueuePublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_publish_duration_ms",
			Help:    "Duration of confirmed publishes in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"broker", "queue"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between latest offset and committed offset) (count)",
		},
		[]string{"topic"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "operation"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)
)

func RegisterSenderMetrics() {
	prometheus.MustRegister(SMSMessagesTotal)
	prometheus.MustRegister(SMSProcessingDuration)
	prometheus.MustRegister(SendersBusy)
	prometheus.MustRegister(StatsUpdatesTotal)
	prometheus.MustRegister(StatsUpdateDuration)
	prometheus.MustRegister(RetryAttemptsTotal)
}

func RegisterMonitorMetrics() {
	prometheus.MustRegister(MonitorSent)
	prometheus.MustRegister(MonitorFailed)
	prometheus.MustRegister(MonitorAvgTime)
	prometheus.MustRegister(MonitorReadErrorsTotal)
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func RegisterProducerMetrics() {
	prometheus.MustRegister(ProducerMessagesTotal)
}

func RegisterQueueMetrics() {
	prometheus.MustRegister(QueueMessagesPublishedTotal)
	prometheus.MustRegister(QueueMessagesConsumedTotal)
	prometheus.MustRegister(QueueMessagesSettledTotal)
	prometheus.MustRegister(QueueMessageSizeBytes)
	prometheus.MustRegister(QueuePublishDuration)
	prometheus.MustRegister(KafkaConsumerLag)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func ObserveSMSDuration(duration time.Duration, status string) {
	SMSProcessingDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func IncSMSMessages(status string) {
	SMSMessagesTotal.WithLabelValues(status).Inc()
}

func IncStatsUpdate(policy, status string) {
	StatsUpdatesTotal.WithLabelValues(policy, status).Inc()
}

func ObserveStatsUpdateDuration(policy string, duration time.Duration) {
	StatsUpdateDuration.WithLabelValues(policy).Observe(float64(duration.Milliseconds()))
}

func SetMonitorSnapshot(sent, failed uint64, avgTime float64) {
	MonitorSent.Set(float64(sent))
	MonitorFailed.Set(float64(failed))
	MonitorAvgTime.Set(avgTime)
}

func IncProducerMessages(status string) {
	ProducerMessagesTotal.WithLabelValues(status).Inc()
}

func IncQueuePublished(broker, queue string, sizeBytes int) {
	QueueMessagesPublishedTotal.WithLabelValues(broker, queue).Inc()
	QueueMessageSizeBytes.WithLabelValues(broker, queue, "out").Observe(float64(sizeBytes))
}

func IncQueueConsumed(broker, queue string, sizeBytes int) {
	QueueMessagesConsumedTotal.WithLabelValues(broker, queue).Inc()
	QueueMessageSizeBytes.WithLabelValues(broker, queue, "in").Observe(float64(sizeBytes))
}

func IncQueueSettled(broker, queue, disposition string) {
	QueueMessagesSettledTotal.WithLabelValues(broker, queue, disposition).Inc()
}

func ObserveQueuePublishDuration(broker, queue string, duration time.Duration) {
	QueuePublishDuration.WithLabelValues(broker, queue).Observe(float64(duration.Milliseconds()))
}

func SetKafkaConsumerLag(topic string, lag int64) {
	KafkaConsumerLag.WithLabelValues(topic).Set(float64(lag))
}

func IncRetryAttempt(service, operation string) {
	RetryAttemptsTotal.WithLabelValues(service, operation).Inc()
}
