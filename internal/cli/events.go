package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vatsal3003/speedy-resizer/internal/config"
	"github.com/vatsal3003/speedy-resizer/internal/events"
	"github.com/vatsal3003/speedy-resizer/pkg/models"
)

func NewEventsCmd(cfg *config.Config) *cobra.Command {
	var consumerName string
	cmd := &cobra.Command{
		Use:           "events",
		Short:         "Follow job outcomes published to a RabbitMQ stream",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Stream.Name == "" {
				return errors.New("--events-stream is required")
			}
			log, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return events.Follow(cmd.Context(), cfg.Stream, consumerName, func(ev models.OutcomeEvent) {
				fmt.Fprintln(out, events.FormatEvent(ev))
			}, log)
		},
	}
	cmd.Flags().StringVar(&consumerName, "consumer-name", "speedy-resizer-events", "name under which the read offset is stored")
	bindCommonFlags(cmd, cfg)
	return cmd
}
