package cli

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vatsal3003/speedy-resizer/internal/config"
	"github.com/vatsal3003/speedy-resizer/internal/events"
	"github.com/vatsal3003/speedy-resizer/internal/rabbitmq"
	"github.com/vatsal3003/speedy-resizer/internal/resize"
	"github.com/vatsal3003/speedy-resizer/pkg/models"
)

func NewWorkerCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "worker",
		Short:         "Consume resize jobs from RabbitMQ",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd, cfg)
		},
	}
	f := cmd.Flags()
	f.IntVarP(&cfg.Concurrency, "concurrency", "j", 0, "number of parallel consumers (default: number of CPUs)")
	f.StringVar(&cfg.RabbitMQURL, "rabbitmq-url", cfg.RabbitMQURL, "RabbitMQ connection URL")
	f.StringVar(&cfg.QueueName, "queue", cfg.QueueName, "work queue name")
	bindCommonFlags(cmd, cfg)
	return cmd
}

func runWorker(cmd *cobra.Command, cfg *config.Config) error {
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	publisher, err := openEvents(cfg, log)
	if err != nil {
		return err
	}
	defer closePublisher(publisher, log)

	mqClient, err := rabbitmq.NewRabbitMQClient(cfg.RabbitMQURL, cfg.QueueName, log)
	if err != nil {
		return err
	}
	defer mqClient.Close()

	process := reportingProcessor(resize.NewImageProcessor().ProcessJob, publisher, log)
	return mqClient.ConsumeJobs(cmd.Context(), process, defaultConsumers(cfg.Concurrency))
}

// reportingProcessor publishes an outcome event after each job. Consumers
// run concurrently, so publishing is serialized.
func reportingProcessor(process func(models.ResizeJob) error, publisher events.Publisher, log logrus.FieldLogger) func(models.ResizeJob) error {
	var mu sync.Mutex
	return func(job models.ResizeJob) error {
		start := time.Now()
		err := process(job)

		mu.Lock()
		defer mu.Unlock()
		if perr := publisher.Publish(models.Outcome{Job: job, Err: err, Duration: time.Since(start)}); perr != nil {
			log.WithError(perr).WithField("job_id", job.JobID).Warn("failed to publish outcome event")
		}
		return err
	}
}
