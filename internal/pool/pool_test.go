package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vatsal3003/speedy-resizer/pkg/models"
)

func makeJobs(n int) []models.ResizeJob {
	jobs := make([]models.ResizeJob, n)
	for i := range jobs {
		jobs[i] = models.NewResizeJob(fmt.Sprintf("src/%03d.jpg", i), fmt.Sprintf("dst/%03d.jpg", i), models.ResizeParams{Width: 1, Height: 1})
	}
	return jobs
}

var errBroken = errors.New("broken image")

// failOn fails every job whose source path contains one of the markers.
func failOn(markers ...string) ProcessFunc {
	return func(job models.ResizeJob) error {
		for _, m := range markers {
			if strings.Contains(job.SourcePath, m) {
				return errBroken
			}
		}
		return nil
	}
}

func succeeded(outcomes []models.Outcome) []string {
	var ok []string
	for _, o := range outcomes {
		if o.OK() {
			ok = append(ok, o.Job.SourcePath)
		}
	}
	sort.Strings(ok)
	return ok
}

func TestNew_Defaults(t *testing.T) {
	p := New(failOn(), Options{})
	if p.Concurrency() != runtime.NumCPU() {
		t.Errorf("Concurrency = %d, want %d", p.Concurrency(), runtime.NumCPU())
	}
	if p.ChunkSize() != DefaultChunkSize {
		t.Errorf("ChunkSize = %d, want %d", p.ChunkSize(), DefaultChunkSize)
	}
}

func TestRun_Empty(t *testing.T) {
	if got := New(failOn(), Options{}).Run(context.Background(), nil); got != nil {
		t.Errorf("Run(nil) = %v", got)
	}
}

func TestRun_OutcomePerJobInInputOrder(t *testing.T) {
	jobs := makeJobs(50)
	outcomes := New(failOn(), Options{Concurrency: 4, ChunkSize: 3}).Run(context.Background(), jobs)
	if len(outcomes) != len(jobs) {
		t.Fatalf("got %d outcomes, want %d", len(outcomes), len(jobs))
	}
	for i, o := range outcomes {
		if o.Job.JobID != jobs[i].JobID {
			t.Errorf("outcome %d belongs to %s, want %s", i, o.Job.SourcePath, jobs[i].SourcePath)
		}
		if !o.OK() {
			t.Errorf("outcome %d failed: %v", i, o.Err)
		}
	}
}

func TestRun_IsolatesFailures(t *testing.T) {
	jobs := makeJobs(20)
	outcomes := New(failOn("007"), Options{Concurrency: 3, ChunkSize: 4}).Run(context.Background(), jobs)

	var failed []models.Outcome
	for _, o := range outcomes {
		if !o.OK() {
			failed = append(failed, o)
		}
	}
	if len(failed) != 1 {
		t.Fatalf("got %d failures, want 1", len(failed))
	}
	if !errors.Is(failed[0].Err, errBroken) || failed[0].Job.SourcePath != "src/007.jpg" {
		t.Errorf("unexpected failure: %+v", failed[0])
	}
	if got := len(succeeded(outcomes)); got != 19 {
		t.Errorf("got %d successes, want 19", got)
	}
}

func TestRun_RecoversPanics(t *testing.T) {
	process := func(job models.ResizeJob) error {
		if strings.HasSuffix(job.SourcePath, "003.jpg") {
			panic("decoder exploded")
		}
		return nil
	}
	outcomes := New(process, Options{Concurrency: 2, ChunkSize: 2}).Run(context.Background(), makeJobs(8))
	for i, o := range outcomes {
		if i == 3 {
			if o.OK() || !strings.Contains(o.Err.Error(), "decoder exploded") {
				t.Errorf("outcome 3 = %v, want panic error", o.Err)
			}
			continue
		}
		if !o.OK() {
			t.Errorf("outcome %d failed: %v", i, o.Err)
		}
	}
}

func TestRun_ConcurrencyInvariance(t *testing.T) {
	jobs := makeJobs(37)
	process := failOn("005", "021", "036")

	want := succeeded(New(process, Options{Concurrency: 1, ChunkSize: 1}).Run(context.Background(), jobs))
	for _, conc := range []int{2, 4, 16} {
		for _, chunkSize := range []int{1, 3, 16, 100} {
			got := succeeded(New(process, Options{Concurrency: conc, ChunkSize: chunkSize}).Run(context.Background(), jobs))
			if strings.Join(got, ",") != strings.Join(want, ",") {
				t.Errorf("concurrency=%d chunk=%d: successes differ from sequential run", conc, chunkSize)
			}
		}
	}
}

func TestRun_BoundsConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	process := func(models.ResizeJob) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		active.Add(-1)
		return nil
	}
	New(process, Options{Concurrency: 3, ChunkSize: 1}).Run(context.Background(), makeJobs(30))
	if got := peak.Load(); got > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", got)
	}
}

func TestRun_SlowJobDoesNotBlockOthers(t *testing.T) {
	jobs := makeJobs(10)
	release := make(chan struct{})
	var others atomic.Int32
	process := func(job models.ResizeJob) error {
		if job.JobID == jobs[0].JobID {
			<-release
			return nil
		}
		if others.Add(1) == int32(len(jobs)-1) {
			close(release)
		}
		return nil
	}

	done := make(chan []models.Outcome)
	go func() {
		done <- New(process, Options{Concurrency: 2, ChunkSize: 1}).Run(context.Background(), jobs)
	}()

	select {
	case outcomes := <-done:
		if len(succeeded(outcomes)) != len(jobs) {
			t.Errorf("not all jobs succeeded")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("a slow job blocked dispatch of the remaining jobs")
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	process := func(models.ResizeJob) error {
		calls.Add(1)
		return nil
	}
	outcomes := New(process, Options{Concurrency: 2}).Run(ctx, makeJobs(5))
	if calls.Load() != 0 {
		t.Errorf("process called %d times after cancellation", calls.Load())
	}
	for i, o := range outcomes {
		if !errors.Is(o.Err, context.Canceled) {
			t.Errorf("outcome %d err = %v, want context.Canceled", i, o.Err)
		}
	}
}

func TestRun_OnOutcomeSerialized(t *testing.T) {
	var mu sync.Mutex
	inHook := false
	count := 0
	hook := func(o models.Outcome) {
		mu.Lock()
		if inHook {
			t.Error("OnOutcome called concurrently")
		}
		inHook = true
		mu.Unlock()

		time.Sleep(100 * time.Microsecond)
		count++

		mu.Lock()
		inHook = false
		mu.Unlock()
	}
	New(failOn("002"), Options{Concurrency: 8, ChunkSize: 1, OnOutcome: hook}).Run(context.Background(), makeJobs(40))
	if count != 40 {
		t.Errorf("OnOutcome called %d times, want 40", count)
	}
}

func TestRun_RecordsDuration(t *testing.T) {
	process := func(models.ResizeJob) error {
		time.Sleep(2 * time.Millisecond)
		return nil
	}
	for _, o := range New(process, Options{Concurrency: 1}).Run(context.Background(), makeJobs(2)) {
		if o.Duration < 2*time.Millisecond {
			t.Errorf("duration %v too short", o.Duration)
		}
	}
}
