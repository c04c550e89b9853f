package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vatsal3003/speedy-resizer/internal/batch"
	"github.com/vatsal3003/speedy-resizer/internal/config"
	"github.com/vatsal3003/speedy-resizer/internal/discover"
	"github.com/vatsal3003/speedy-resizer/internal/rabbitmq"
)

func NewPublishCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Queue resize jobs on RabbitMQ instead of processing them locally",
		Long: `Plan the same jobs as the resize command and publish them to the
RabbitMQ work queue, where "speedy-resizer worker" processes them. The
destination directory is created here, so workers must share the
filesystem with the publisher.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd, cfg)
		},
	}
	bindResizeFlags(cmd, cfg)
	cmd.Flags().StringVar(&cfg.RabbitMQURL, "rabbitmq-url", cfg.RabbitMQURL, "RabbitMQ connection URL")
	cmd.Flags().StringVar(&cfg.QueueName, "queue", cfg.QueueName, "work queue name")
	return cmd
}

func runPublish(cmd *cobra.Command, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	params := resizeParams(cfg, log)

	// Workers may run with another working directory.
	srcDir, err := filepath.Abs(cfg.SourceDir)
	if err != nil {
		return err
	}
	destDir, err := filepath.Abs(batch.ResolveDestDir(cfg.DestDir))
	if err != nil {
		return err
	}

	paths, err := discover.Enumerate(srcDir, cfg.Recursive)
	if err != nil {
		return &batch.SetupError{Op: "read source", Path: srcDir, Err: err}
	}

	jobs, err := batch.NewController(log, nil).Prepare(paths, destDir, params)
	if err != nil {
		return err
	}

	mqClient, err := rabbitmq.NewRabbitMQClient(cfg.RabbitMQURL, cfg.QueueName, log)
	if err != nil {
		return err
	}
	defer mqClient.Close()

	published := 0
	for _, job := range jobs {
		if err := mqClient.PublishJob(cmd.Context(), job); err != nil {
			log.WithError(err).WithField("source", job.SourcePath).Error("failed to publish job")
			continue
		}
		published++
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Published %d of %d resize jobs to %s\n", published, len(jobs), cfg.QueueName)
	if published < len(jobs) {
		return fmt.Errorf("failed to publish %d jobs", len(jobs)-published)
	}
	return nil
}
