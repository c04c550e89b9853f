// Package events publishes job outcomes to a RabbitMQ stream so other
// services can follow a batch without reading its logs.
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rabbitmq/rabbitmq-stream-go-client/pkg/amqp"
	"github.com/rabbitmq/rabbitmq-stream-go-client/pkg/stream"
	"github.com/sirupsen/logrus"

	"github.com/vatsal3003/speedy-resizer/internal/config"
	"github.com/vatsal3003/speedy-resizer/pkg/models"
)

type Publisher interface {
	Publish(models.Outcome) error
	Close() error
}

// Nop discards every outcome.
type Nop struct{}

func (Nop) Publish(models.Outcome) error { return nil }
func (Nop) Close() error                 { return nil }

type StreamPublisher struct {
	env      *stream.Environment
	producer *stream.Producer
	send     func(body []byte) error
	log      logrus.FieldLogger
}

// connect opens a stream environment and makes sure the stream exists.
func connect(cfg config.StreamConfig) (*stream.Environment, error) {
	env, err := stream.NewEnvironment(
		stream.NewEnvironmentOptions().
			SetHost(cfg.Host).
			SetPort(cfg.Port).
			SetUser(cfg.User).
			SetPassword(cfg.Password))
	if err != nil {
		return nil, fmt.Errorf("failed to create stream environment: %w", err)
	}

	err = env.DeclareStream(cfg.Name,
		&stream.StreamOptions{
			MaxLengthBytes: stream.ByteCapacity{}.GB(2),
		},
	)
	if err != nil && !errors.Is(err, stream.StreamAlreadyExists) {
		env.Close()
		return nil, fmt.Errorf("failed to declare stream %s: %w", cfg.Name, err)
	}
	return env, nil
}

func NewStreamPublisher(cfg config.StreamConfig, log logrus.FieldLogger) (*StreamPublisher, error) {
	env, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	producer, err := env.NewProducer(cfg.Name, stream.NewProducerOptions())
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	p := &StreamPublisher{
		env:      env,
		producer: producer,
		log:      log,
	}
	p.send = func(body []byte) error {
		return producer.Send(amqp.NewMessage(body))
	}
	p.watchConfirms(producer.NotifyPublishConfirmation())
	return p, nil
}

func (p *StreamPublisher) watchConfirms(confirms stream.ChannelPublishConfirm) {
	go func() {
		for confirmed := range confirms {
			for _, msg := range confirmed {
				if !msg.IsConfirmed() {
					p.log.Warn("outcome event was not confirmed by the stream")
				}
			}
		}
	}()
}

// Publish sends one JSON-encoded models.OutcomeEvent.
func (p *StreamPublisher) Publish(o models.Outcome) error {
	body, err := json.Marshal(models.NewOutcomeEvent(o))
	if err != nil {
		return fmt.Errorf("failed to marshal outcome event: %w", err)
	}
	if err := p.send(body); err != nil {
		return fmt.Errorf("failed to send outcome event: %w", err)
	}
	return nil
}

func (p *StreamPublisher) Close() error {
	var errs []error
	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close producer: %w", err))
		}
	}
	if p.env != nil {
		if err := p.env.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close stream environment: %w", err))
		}
	}
	return errors.Join(errs...)
}
