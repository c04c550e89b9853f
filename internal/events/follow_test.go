package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/vatsal3003/speedy-resizer/pkg/models"
)

func TestDecodeEvent(t *testing.T) {
	job := models.NewResizeJob("in/x.png", "out/x.png", models.ResizeParams{Width: 5, Height: 5})
	body, err := json.Marshal(models.NewOutcomeEvent(models.Outcome{Job: job, Err: errors.New("eof"), Duration: time.Second}))
	if err != nil {
		t.Fatal(err)
	}

	ev, err := DecodeEvent(body)
	if err != nil {
		t.Fatal(err)
	}
	if ev.JobID != job.JobID || ev.OK || ev.Error != "eof" || ev.DurationMS != 1000 {
		t.Errorf("DecodeEvent = %+v", ev)
	}

	if _, err := DecodeEvent([]byte("marker")); err == nil {
		t.Error("expected error for non-JSON body")
	}
}

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		ev   models.OutcomeEvent
		want string
	}{
		{models.OutcomeEvent{SourcePath: "a.jpg", DestPath: "out/a.jpg", OK: true, DurationMS: 12}, "ok    a.jpg -> out/a.jpg (12ms)"},
		{models.OutcomeEvent{SourcePath: "b.jpg", Error: "bad header"}, "FAIL  b.jpg: bad header"},
	}
	for _, tt := range tests {
		if got := FormatEvent(tt.ev); got != tt.want {
			t.Errorf("FormatEvent(%+v) = %q, want %q", tt.ev, got, tt.want)
		}
	}
}
