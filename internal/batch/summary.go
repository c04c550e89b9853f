package batch

import (
	"fmt"
	"time"

	"github.com/vatsal3003/speedy-resizer/pkg/models"
)

// Summary aggregates the outcomes of one batch.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Failures  []models.Outcome
	Duration  time.Duration
}

func Summarize(outcomes []models.Outcome, elapsed time.Duration) Summary {
	s := Summary{Total: len(outcomes), Duration: elapsed}
	for _, o := range outcomes {
		if o.OK() {
			s.Succeeded++
			continue
		}
		s.Failed++
		s.Failures = append(s.Failures, o)
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%d/%d images resized, %d failed in %s",
		s.Succeeded, s.Total, s.Failed, s.Duration.Round(time.Millisecond))
}
