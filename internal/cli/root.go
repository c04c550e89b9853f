// Package cli wires configuration, logging and transports into cobra
// commands. The binaries under cmd/ only execute these commands.
package cli

import (
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vatsal3003/speedy-resizer/internal/batch"
	"github.com/vatsal3003/speedy-resizer/internal/config"
	"github.com/vatsal3003/speedy-resizer/internal/events"
	"github.com/vatsal3003/speedy-resizer/internal/logging"
	"github.com/vatsal3003/speedy-resizer/pkg/models"
)

// ErrJobsFailed is returned with --fail-on-error when at least one image
// could not be resized.
var ErrJobsFailed = errors.New("some images failed to resize")

// NewRootCmd returns the resize command with the publish, worker and events
// subcommands attached.
func NewRootCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "speedy-resizer",
		Short: "Bulk-resize a folder of images in parallel",
		Long: `Resize every JPEG/PNG image in a folder to a target size and save the
results as JPEG files in a destination folder, using a pool of parallel
workers. Failed images are reported but do not stop the batch.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResize(cmd, cfg)
		},
	}

	bindResizeFlags(cmd, cfg)
	cmd.Flags().BoolVar(&cfg.Progress, "progress", false, "show a progress bar")
	cmd.Flags().BoolVar(&cfg.FailOnError, "fail-on-error", false, "exit non-zero when any image fails")

	cmd.AddCommand(NewPublishCmd(cfg), NewWorkerCmd(cfg), NewEventsCmd(cfg))
	return cmd
}

// bindResizeFlags registers the flags shared by resize and publish.
func bindResizeFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	f.StringVarP(&cfg.SourceDir, "dir", "d", "", "directory with the images to resize (required)")
	f.StringVar(&cfg.DestDir, "dest", cfg.DestDir, "directory to save resized images in")
	f.BoolVarP(&cfg.Recursive, "subf", "s", false, "include images in subfolders")
	f.IntVarP(&cfg.Width, "width", "w", 0, "width of resized images (required)")
	f.IntVarP(&cfg.Height, "height", "H", 0, "height of resized images (required)")
	f.BoolVarP(&cfg.KeepAspectRatio, "aspect", "a", false, "keep the aspect ratio of the source")
	f.BoolVarP(&cfg.AddPadding, "padding", "p", false, "pad with black to the exact target size (with --aspect)")
	f.StringVarP(&cfg.Resample, "resample", "r", cfg.Resample, "resampling filter: NEAREST, BILINEAR, BICUBIC, LANCZOS")
	f.IntVarP(&cfg.Quality, "quality", "q", cfg.Quality, "JPEG quality, conventionally 1-95")
	f.IntVarP(&cfg.Concurrency, "concurrency", "j", 0, "number of parallel workers (default: number of CPUs)")
	f.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "number of images handed to a worker at once")
	bindCommonFlags(cmd, cfg)

	_ = cmd.MarkFlagRequired("dir")
	_ = cmd.MarkFlagRequired("width")
	_ = cmd.MarkFlagRequired("height")
}

func bindCommonFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text or json")
	f.StringVar(&cfg.Stream.Name, "events-stream", cfg.Stream.Name, "RabbitMQ stream to publish job outcomes to (empty: disabled)")
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	return logging.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
}

// resizeParams resolves the params, downgrading an unknown filter to a
// logged warning.
func resizeParams(cfg *config.Config, log logrus.FieldLogger) models.ResizeParams {
	params, err := cfg.Params()
	if err != nil {
		log.WithError(err).Warn("Invalid resample filter")
	}
	return params
}

func openEvents(cfg *config.Config, log logrus.FieldLogger) (events.Publisher, error) {
	if cfg.Stream.Name == "" {
		return events.Nop{}, nil
	}
	p, err := events.NewStreamPublisher(cfg.Stream, log)
	if err != nil {
		return nil, err
	}
	log.WithField("stream", cfg.Stream.Name).Info("Publishing job outcomes")
	return p, nil
}

func runResize(cmd *cobra.Command, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	params := resizeParams(cfg, log)

	publisher, err := openEvents(cfg, log)
	if err != nil {
		return err
	}
	defer closePublisher(publisher, log)

	opts := batch.Options{
		Concurrency: cfg.Concurrency,
		ChunkSize:   cfg.ChunkSize,
	}
	if cfg.Progress {
		attachProgress(&opts, cmd.ErrOrStderr())
	}

	summary, err := batch.NewController(log, publisher).ResizeFolder(
		cmd.Context(), cfg.SourceDir, cfg.Recursive, cfg.DestDir, params, opts)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), summary)
	if cfg.FailOnError && summary.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrJobsFailed, summary.Failed, summary.Total)
	}
	return nil
}

func attachProgress(opts *batch.Options, out io.Writer) {
	var bar *progressbar.ProgressBar
	opts.OnStart = func(total int) {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription("Resizing"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	opts.OnOutcome = func(models.Outcome) {
		if bar != nil {
			_ = bar.Add(1)
		}
	}
}

func closePublisher(p events.Publisher, log logrus.FieldLogger) {
	if err := p.Close(); err != nil {
		log.WithError(err).Warn("failed to close events publisher")
	}
}

func defaultConsumers(n int) int {
	if n > 0 {
		return n
	}
	return runtime.NumCPU()
}
