package config

import (
	"github.com/segmentio/kafka-go"
	"strings"
	"time"
)

const defaultKafkaBrokers = "localhost:9092,localhost:9093,localhost:9094"

func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// publishFlushInterval bounds how long a synchronous publish waits for more
// messages to batch with. Events are written one at a time from request
// handlers, so the kafka-go default of one second would delay every response.
const publishFlushInterval = 10 * time.Millisecond

// NewKafkaWriter returns a writer for topic. Order events are keyed by order,
// so the hash balancer keeps one order's events in sequence.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           publishFlushInterval,
		WriteTimeout:           5 * time.Second,
		RequiredAcks:           kafka.RequireOne,
	}
}
