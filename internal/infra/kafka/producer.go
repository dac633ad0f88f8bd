package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/RASA-RCS/userauth-service/internal/infra/config"
)

// Producer sends auth events either fire-and-forget (kafka.async, the default) or
// synchronously with acknowledgement from every in-sync replica.
type Producer struct {
	async  sarama.AsyncProducer
	sync   sarama.SyncProducer
	logger *zap.Logger
	cfg    config.KafkaSettings
	done   chan struct{}
}

func newSaramaConfig(cfg config.KafkaSettings, clientID string) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_5_0_0
	sc.ClientID = clientID

	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.Retry.Max = 3
	// Key messages by user id so one account's events stay ordered.
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Producer.Return.Errors = true

	if cfg.Async {
		sc.Producer.RequiredAcks = sarama.WaitForLocal
		sc.Producer.Flush.Frequency = 100 * time.Millisecond
		sc.Producer.Flush.Messages = 100
		sc.Producer.Return.Successes = false
	} else {
		sc.Producer.RequiredAcks = sarama.WaitForAll
		sc.Producer.Return.Successes = true
	}

	sc.Metadata.Retry.Max = 3
	sc.Metadata.Retry.Backoff = 250 * time.Millisecond
	return sc
}

// NewProducer dials the brokers in the mode selected by cfg.Async.
func NewProducer(cfg config.KafkaSettings, clientID string, logger *zap.Logger) (*Producer, error) {
	if clientID == "" {
		clientID = "userauth-service"
	}
	sc := newSaramaConfig(cfg, clientID)
	p := &Producer{logger: logger, cfg: cfg, done: make(chan struct{})}

	if cfg.Async {
		producer, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
		if err != nil {
			return nil, fmt.Errorf("create kafka producer: %w", err)
		}
		p.async = producer
		go p.handleErrors()
	} else {
		producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
		if err != nil {
			return nil, fmt.Errorf("create kafka producer: %w", err)
		}
		p.sync = producer
	}

	logger.Info("kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
		zap.Bool("async", cfg.Async),
	)

	return p, nil
}

func (p *Producer) handleErrors() {
	for {
		select {
		case err, ok := <-p.async.Errors():
			if !ok {
				return
			}
			if err != nil {
				p.logger.Error("kafka delivery failed",
					zap.Error(err.Err),
					zap.String("topic", err.Msg.Topic),
				)
			}
		case <-p.done:
			return
		}
	}
}

// Send hands msg to the broker. In async mode it only blocks until the producer accepts
// the message or ctx ends; delivery errors are logged by the error loop.
func (p *Producer) Send(ctx context.Context, msg *sarama.ProducerMessage) error {
	if p.async != nil {
		select {
		case p.async.Input() <- msg:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if p.sync == nil {
		return fmt.Errorf("kafka producer not initialised")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, err := p.sync.SendMessage(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Topic, err)
	}
	return nil
}

// Close flushes pending messages and releases the broker connections.
func (p *Producer) Close() error {
	p.logger.Info("closing kafka producer")
	close(p.done)

	var err error
	switch {
	case p.async != nil:
		err = p.async.Close()
	case p.sync != nil:
		err = p.sync.Close()
	}
	if err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

// TopicName returns the full topic name with prefix
func (p *Producer) TopicName(eventType string) string {
	if p.cfg.TopicPrefix == "" {
		return eventType
	}

	prefix := p.cfg.TopicPrefix + "."
	if strings.HasPrefix(eventType, prefix) {
		return eventType
	}

	return prefix + eventType
}
