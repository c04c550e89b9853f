package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rabbitmq/rabbitmq-stream-go-client/pkg/amqp"
	"github.com/rabbitmq/rabbitmq-stream-go-client/pkg/stream"
	"github.com/sirupsen/logrus"

	"github.com/vatsal3003/speedy-resizer/internal/config"
	"github.com/vatsal3003/speedy-resizer/pkg/models"
)

// storeEvery is how many events are handled between stored offsets.
const storeEvery = 10

func DecodeEvent(data []byte) (models.OutcomeEvent, error) {
	var ev models.OutcomeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("failed to unmarshal outcome event: %w", err)
	}
	return ev, nil
}

// Follow hands every outcome event on the stream to handle until ctx is
// done. Progress is stored under consumerName, so a later Follow with the
// same name resumes after the last stored event.
func Follow(ctx context.Context, cfg config.StreamConfig, consumerName string, handle func(models.OutcomeEvent), log logrus.FieldLogger) error {
	env, err := connect(cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	var offsetSpecification stream.OffsetSpecification
	storedOffset, err := env.QueryOffset(consumerName, cfg.Name)
	if errors.Is(err, stream.OffsetNotFoundError) {
		offsetSpecification = stream.OffsetSpecification{}.First()
	} else if err != nil {
		return fmt.Errorf("failed to query stored offset: %w", err)
	} else {
		offsetSpecification = stream.OffsetSpecification{}.Offset(storedOffset + 1)
	}

	var handled atomic.Int64
	messagesHandler := func(consumerContext stream.ConsumerContext, message *amqp.Message) {
		ev, err := DecodeEvent(message.GetData())
		if err != nil {
			log.WithError(err).Warn("skipping malformed outcome event")
		} else {
			handle(ev)
		}
		if handled.Add(1)%storeEvery == 0 {
			if err := consumerContext.Consumer.StoreOffset(); err != nil {
				log.WithError(err).Warn("failed to store offset")
			}
		}
	}

	consumer, err := env.NewConsumer(cfg.Name, messagesHandler,
		stream.NewConsumerOptions().
			SetManualCommit().
			SetConsumerName(consumerName).
			SetOffset(offsetSpecification))
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	log.WithFields(logrus.Fields{"stream": cfg.Name, "consumer": consumerName}).Info("Started consuming outcome events")

	<-ctx.Done()

	if handled.Load() > 0 {
		if err := consumer.StoreOffset(); err != nil {
			log.WithError(err).Warn("failed to store offset")
		}
	}
	if err := consumer.Close(); err != nil {
		return fmt.Errorf("failed to close consumer: %w", err)
	}
	return nil
}

// FormatEvent renders an event as a single human-readable line.
func FormatEvent(ev models.OutcomeEvent) string {
	if ev.OK {
		return fmt.Sprintf("ok    %s -> %s (%dms)", ev.SourcePath, ev.DestPath, ev.DurationMS)
	}
	return fmt.Sprintf("FAIL  %s: %s", ev.SourcePath, ev.Error)
}
