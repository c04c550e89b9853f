package models

import (
	"time"

	"github.com/google/uuid"
)

type ResizeJob struct {
	JobID      string       `json:"job_id"`
	SourcePath string       `json:"source_path"`
	DestPath   string       `json:"dest_path"`
	Params     ResizeParams `json:"params"`
}

// ResizeParams is shared read-only by every job of a batch.
type ResizeParams struct {
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	KeepAspectRatio bool   `json:"keep_aspect_ratio"`
	AddPadding      bool   `json:"add_padding"`
	Filter          Filter `json:"filter"`
	Quality         int    `json:"quality"`
}

func NewResizeJob(sourcePath, destPath string, params ResizeParams) ResizeJob {
	return ResizeJob{
		JobID:      uuid.New().String(),
		SourcePath: sourcePath,
		DestPath:   destPath,
		Params:     params,
	}
}

// Outcome is the terminal state of one job. Err is nil on success.
type Outcome struct {
	Job      ResizeJob
	Err      error
	Duration time.Duration
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

// OutcomeEvent is the wire form of an Outcome published to the events stream.
type OutcomeEvent struct {
	JobID      string `json:"job_id"`
	SourcePath string `json:"source_path"`
	DestPath   string `json:"dest_path"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

func NewOutcomeEvent(o Outcome) OutcomeEvent {
	ev := OutcomeEvent{
		JobID:      o.Job.JobID,
		SourcePath: o.Job.SourcePath,
		DestPath:   o.Job.DestPath,
		OK:         o.OK(),
		DurationMS: o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		ev.Error = o.Err.Error()
	}
	return ev
}
