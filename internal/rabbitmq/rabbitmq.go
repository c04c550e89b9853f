package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/vatsal3003/speedy-resizer/pkg/models"
)

type RabbitMQClient struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queueName string
	log       logrus.FieldLogger
}

func NewRabbitMQClient(url, queueName string, log logrus.FieldLogger) (*RabbitMQClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare a queue: %w", err)
	}

	return &RabbitMQClient{
		conn:      conn,
		channel:   ch,
		queueName: queueName,
		log:       log,
	}, nil
}

func (c *RabbitMQClient) Close() {
	if c.channel != nil {
		c.channel.Close()
	}

	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *RabbitMQClient) PublishJob(ctx context.Context, job models.ResizeJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		"",          // exchange
		c.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    job.JobID,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish a message: %w", err)
	}

	return nil
}

// ConsumeJobs runs consumers goroutines over the queue until ctx is done or
// the broker closes the delivery channel. Every delivery is acked once it
// has been handled, failed jobs included, so a bad image never loops.
func (c *RabbitMQClient) ConsumeJobs(ctx context.Context, processFunc func(models.ResizeJob) error, consumers int) error {
	if consumers < 1 {
		consumers = 1
	}

	err := c.channel.Qos(
		consumers, // prefetch count
		0,         // prefetch size
		false,     // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := c.channel.ConsumeWithContext(
		ctx,
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	c.log.WithField("consumers", consumers).Info("Worker started, waiting for messages")

	var wg sync.WaitGroup
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-msgs:
					if !ok {
						c.log.Warn("Channel closed")
						return
					}
					handleDelivery(d, processFunc, c.log)
				}
			}
		}()
	}
	wg.Wait()

	c.log.Info("Worker shutting down")
	return nil
}

// handleDelivery decodes, processes and acks a single delivery. It returns
// the job outcome; malformed bodies yield an outcome with only Err set.
func handleDelivery(d amqp.Delivery, processFunc func(models.ResizeJob) error, log logrus.FieldLogger) (o models.Outcome) {
	defer func() {
		if err := d.Ack(false); err != nil {
			log.WithError(err).Error("failed to ack delivery")
		}
	}()

	var job models.ResizeJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.WithError(err).Error("failed to unmarshal job")
		o.Err = fmt.Errorf("failed to unmarshal job: %w", err)
		return o
	}
	o.Job = job

	entry := log.WithFields(logrus.Fields{"job_id": job.JobID, "source": job.SourcePath})
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.Err = fmt.Errorf("panic while processing %s: %v", job.SourcePath, r)
		}
		o.Duration = time.Since(start)
		if o.Err != nil {
			// TODO: route failed jobs to a dead-letter queue instead of dropping them.
			entry.WithError(o.Err).Error("resize job failed")
			return
		}
		entry.WithField("dest", job.DestPath).Info("successfully processed job")
	}()

	o.Err = processFunc(job)
	return o
}
