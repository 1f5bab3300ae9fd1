package kafka

import (
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const defaultClientID = "storefront"

// ProducerOption настраивает sarama.Config перед созданием producer.
type ProducerOption func(*sarama.Config)

// WithClientID задаёт client.id, видимый в метриках брокера.
func WithClientID(id string) ProducerOption {
	return func(cfg *sarama.Config) {
		if id != "" {
			cfg.ClientID = id
		}
	}
}

// WithRetryMax задаёт число внутренних повторов sarama.
func WithRetryMax(n int) ProducerOption {
	return func(cfg *sarama.Config) {
		if n >= 0 {
			cfg.Producer.Retry.Max = n
		}
	}
}

// producerConfig — идемпотентная доставка с подтверждением всех реплик.
func producerConfig(opts ...ProducerOption) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = defaultClientID
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Producer публикует конверты событий корзин через sarama.SyncProducer.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
}

// NewProducer подключается к brokers.
func NewProducer(brokers []string, opts ...ProducerOption) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}
	sp, err := sarama.NewSyncProducer(brokers, producerConfig(opts...))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewProducerFromSync(sp), nil
}

// NewProducerFromSync оборачивает готовый SyncProducer (sarama/mocks в тестах).
func NewProducerFromSync(sp sarama.SyncProducer) *Producer {
	return &Producer{
		producer: sp,
		logger:   log.WithField("component", "kafka-producer"),
	}
}

// PublishEnvelope отправляет env в topic.
func (p *Producer) PublishEnvelope(topic string, env Envelope) error {
	msg, err := env.Message(topic)
	if err != nil {
		return err
	}
	return p.Send(msg)
}

// Send отправляет готовое сообщение и дожидается подтверждения.
func (p *Producer) Send(msg *sarama.ProducerMessage) error {
	entry := p.logger.WithField("topic", msg.Topic)
	if msg.Key != nil {
		if key, err := msg.Key.Encode(); err == nil {
			entry = entry.WithField("key", string(key))
		}
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		entry.WithError(err).Error("failed to send message to kafka")
		return fmt.Errorf("send to %s: %w", msg.Topic, err)
	}
	entry.WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("message sent to kafka")
	return nil
}

// SendMessage реализует интерфейс отправки sarama; используется утилитой dlq-replay.
func (p *Producer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	return p.producer.SendMessage(msg)
}

// Close закрывает producer.
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
