// Package batch is the top-level orchestration of a resize run: it prepares
// the destination, turns source paths into jobs and drives a worker pool
// over them.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vatsal3003/speedy-resizer/internal/config"
	"github.com/vatsal3003/speedy-resizer/internal/discover"
	"github.com/vatsal3003/speedy-resizer/internal/events"
	"github.com/vatsal3003/speedy-resizer/internal/logging"
	"github.com/vatsal3003/speedy-resizer/internal/pool"
	"github.com/vatsal3003/speedy-resizer/internal/resize"
	"github.com/vatsal3003/speedy-resizer/pkg/models"
)

// SetupError aborts a batch before any job is dispatched.
type SetupError struct {
	Op   string
	Path string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

type Options struct {
	Concurrency int
	ChunkSize   int
	// OnStart is called with the job count once setup succeeded.
	OnStart func(total int)
	// OnOutcome is forwarded to the pool, see pool.Options.
	OnOutcome func(models.Outcome)
}

type Controller struct {
	log     logrus.FieldLogger
	events  events.Publisher
	process pool.ProcessFunc
}

// NewController returns a controller that resizes with resize.ImageProcessor.
// A nil publisher disables outcome events.
func NewController(log logrus.FieldLogger, publisher events.Publisher) *Controller {
	if log == nil {
		log = logging.Discard()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Controller{
		log:     log,
		events:  publisher,
		process: resize.NewImageProcessor().ProcessJob,
	}
}

// ResolveDestDir applies the default destination directory.
func ResolveDestDir(destDir string) string {
	if strings.TrimSpace(destDir) == "" {
		return config.DefaultDestDir
	}
	return destDir
}

// DestPath is the output path of src: its lower-cased base name inside
// destDir.
func DestPath(destDir, src string) string {
	return filepath.Join(destDir, strings.ToLower(filepath.Base(src)))
}

// Collision lists sources that map to the same output file. The last one to
// finish wins.
type Collision struct {
	DestPath string
	Sources  []string
}

// PlanJobs builds one job per path and reports output name collisions in
// order of first appearance.
func PlanJobs(paths []string, destDir string, params models.ResizeParams) ([]models.ResizeJob, []Collision) {
	jobs := make([]models.ResizeJob, 0, len(paths))
	bySource := make(map[string][]string, len(paths))
	var order []string

	for _, src := range paths {
		dst := DestPath(destDir, src)
		if _, seen := bySource[dst]; !seen {
			order = append(order, dst)
		}
		bySource[dst] = append(bySource[dst], src)
		jobs = append(jobs, models.NewResizeJob(src, dst, params))
	}

	var collisions []Collision
	for _, dst := range order {
		if srcs := bySource[dst]; len(srcs) > 1 {
			collisions = append(collisions, Collision{DestPath: dst, Sources: srcs})
		}
	}
	return jobs, collisions
}

// Prepare creates the destination directory and plans the jobs. It is the
// setup half of BatchResize, shared with the queue publisher.
func (c *Controller) Prepare(paths []string, destDir string, params models.ResizeParams) ([]models.ResizeJob, error) {
	destDir = ResolveDestDir(destDir)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, &SetupError{Op: "create destination", Path: destDir, Err: err}
	}

	jobs, collisions := PlanJobs(paths, destDir, params)
	for _, col := range collisions {
		c.log.WithFields(logrus.Fields{
			"dest":    col.DestPath,
			"sources": col.Sources,
		}).Warn("several sources share an output name; only one result will be kept")
	}
	return jobs, nil
}

// BatchResize resizes every image in paths into destDir and blocks until all
// of them are done. Per-image failures are reported in the Summary; the
// error is non-nil only when the batch could not start.
func (c *Controller) BatchResize(ctx context.Context, paths []string, destDir string, params models.ResizeParams, opts Options) (Summary, error) {
	start := time.Now()

	jobs, err := c.Prepare(paths, destDir, params)
	if err != nil {
		return Summary{}, err
	}

	c.log.WithFields(logrus.Fields{
		"total":       len(jobs),
		"dest":        ResolveDestDir(destDir),
		"concurrency": opts.Concurrency,
		"chunk_size":  opts.ChunkSize,
	}).Infof("Resizing %d images...", len(jobs))
	if opts.OnStart != nil {
		opts.OnStart(len(jobs))
	}

	p := pool.New(c.process, pool.Options{
		Concurrency: opts.Concurrency,
		ChunkSize:   opts.ChunkSize,
		Log:         c.log,
		OnOutcome: func(o models.Outcome) {
			if err := c.events.Publish(o); err != nil {
				c.log.WithError(err).WithField("job_id", o.Job.JobID).Warn("failed to publish outcome event")
			}
			if opts.OnOutcome != nil {
				opts.OnOutcome(o)
			}
		},
	})
	outcomes := p.Run(ctx, jobs)

	summary := Summarize(outcomes, time.Since(start))
	c.log.WithFields(logrus.Fields{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"duration":  summary.Duration.Round(time.Millisecond).String(),
	}).Info("Done!")
	return summary, nil
}

// ResizeFolder enumerates srcDir and hands the result to BatchResize.
func (c *Controller) ResizeFolder(ctx context.Context, srcDir string, recursive bool, destDir string, params models.ResizeParams, opts Options) (Summary, error) {
	paths, err := discover.Enumerate(srcDir, recursive)
	if err != nil {
		return Summary{}, &SetupError{Op: "read source", Path: srcDir, Err: err}
	}
	return c.BatchResize(ctx, paths, destDir, params, opts)
}
