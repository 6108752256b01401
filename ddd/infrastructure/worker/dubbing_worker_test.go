package worker

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"dubbing-service/ddd/domain/entity"
	"dubbing-service/ddd/domain/fault"
	"dubbing-service/ddd/domain/vo"
	"dubbing-service/ddd/infrastructure/database/persistence"
	"dubbing-service/ddd/infrastructure/queue"
)

type fakeRunner struct {
	mu    sync.Mutex
	ran   []string
	calls chan string
	run   func(ctx context.Context, jobID string) error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{calls: make(chan string, 16)}
}

func (r *fakeRunner) Run(ctx context.Context, jobID string) error {
	r.mu.Lock()
	r.ran = append(r.ran, jobID)
	r.mu.Unlock()
	r.calls <- jobID
	if r.run != nil {
		return r.run(ctx, jobID)
	}
	return nil
}

func (r *fakeRunner) wait(t *testing.T) string {
	t.Helper()
	select {
	case id := <-r.calls:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("runner was not called")
		return ""
	}
}

func createJob(t *testing.T, repo *persistence.MemoryJobRepository, start bool) *entity.TranslationJob {
	t.Helper()
	return createOwnedJob(t, repo, start, "")
}

func createOwnedJob(t *testing.T, repo *persistence.MemoryJobRepository, start bool, owner string) *entity.TranslationJob {
	t.Helper()
	job, err := entity.NewTranslationJob("uploads/talk.mp4", "en", []string{"hi", "ta"}, vo.GenderUnknown)
	if err != nil {
		t.Fatal(err)
	}
	if err := job.AssignOwner(owner); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if start {
		if err := job.Start(); err != nil {
			t.Fatal(err)
		}
		if err := repo.UpdateJob(context.Background(), job); err != nil {
			t.Fatal(err)
		}
	}
	return job
}

func TestWorkerRunsQueuedJobs(t *testing.T) {
	q := queue.NewMemoryJobQueue(4)
	runner := newFakeRunner()
	w := NewDubbingWorker(q, runner, persistence.NewMemoryJobRepository(), Options{Concurrency: 2})

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}

	_ = q.Enqueue(context.Background(), "job-1")
	_ = q.Enqueue(context.Background(), "job-2")
	got := map[string]bool{runner.wait(t): true, runner.wait(t): true}
	if !got["job-1"] || !got["job-2"] {
		t.Fatalf("ran = %v", got)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if w.IsRunning() {
		t.Fatal("worker still running after Stop")
	}
	stats := w.GetStats()
	if stats.ProcessedJobs != 2 || stats.SuccessfulJobs != 2 || stats.CurrentlyRunning != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestWorkerRecoversLeftoverJobs(t *testing.T) {
	repo := persistence.NewMemoryJobRepository()
	older := createJob(t, repo, false)
	time.Sleep(5 * time.Millisecond)
	newer := createJob(t, repo, false)
	stuck := createJob(t, repo, true)

	q := queue.NewMemoryJobQueue(4)
	runner := newFakeRunner()
	w := NewDubbingWorker(q, runner, repo, Options{RecoverOnStart: true})
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if first, second := runner.wait(t), runner.wait(t); first != older.JobID() || second != newer.JobID() {
		t.Fatalf("recovered order = %s,%s", first, second)
	}

	got, err := repo.GetJob(context.Background(), stuck.JobID())
	if err != nil {
		t.Fatal(err)
	}
	if got.Status() != vo.JobStatusFailed || !strings.HasPrefix(got.ErrorMessage(), "INTERRUPTED") {
		t.Fatalf("stuck job = %s %q", got.Status(), got.ErrorMessage())
	}
	for _, r := range got.Results() {
		if r.Status() != vo.ResultStatusFailed {
			t.Fatalf("result %s = %s", r.Language(), r.Status())
		}
	}
	if w.GetStats().RecoveredJobs != 2 {
		t.Fatalf("recovered = %d", w.GetStats().RecoveredJobs)
	}
}

func TestWorkerRecoversOnlyItsOwnJobs(t *testing.T) {
	ctx := context.Background()
	repo := persistence.NewMemoryJobRepository()
	pendingA := createOwnedJob(t, repo, false, "node-a")
	runningA := createOwnedJob(t, repo, true, "node-a")
	pendingB := createOwnedJob(t, repo, false, "node-b")
	runningB := createOwnedJob(t, repo, true, "node-b")

	qB := queue.NewMemoryJobQueue(4)
	runnerB := newFakeRunner()
	b := NewDubbingWorker(qB, runnerB, repo, Options{ID: "node-b", RecoverOnStart: true})
	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Stop()

	if id := runnerB.wait(t); id != pendingB.JobID() {
		t.Fatalf("node-b ran %s, want its own pending job", id)
	}
	select {
	case id := <-runnerB.calls:
		t.Fatalf("node-b ran foreign job %s", id)
	case <-time.After(100 * time.Millisecond):
	}

	status := func(id string) vo.JobStatus {
		got, err := repo.GetJob(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		return got.Status()
	}
	if s := status(runningB.JobID()); s != vo.JobStatusFailed {
		t.Fatalf("node-b orphan = %s, want FAILED", s)
	}
	if s := status(runningA.JobID()); s != vo.JobStatusProcessing {
		t.Fatalf("node-a running job = %s, must be left alone", s)
	}
	if s := status(pendingA.JobID()); s != vo.JobStatusPending {
		t.Fatalf("node-a pending job = %s, must be left alone", s)
	}
	if n := b.GetStats().RecoveredJobs; n != 1 {
		t.Fatalf("recovered = %d", n)
	}
}

func TestUnownedOrphanIsRecoveredOnce(t *testing.T) {
	ctx := context.Background()
	repo := persistence.NewMemoryJobRepository()
	legacy := createJob(t, repo, false)

	qA, qB := queue.NewMemoryJobQueue(4), queue.NewMemoryJobQueue(4)
	a := NewDubbingWorker(qA, newFakeRunner(), repo, Options{ID: "node-a"})
	b := NewDubbingWorker(qB, newFakeRunner(), repo, Options{ID: "node-b"})
	a.recoverJobs(ctx)
	b.recoverJobs(ctx)

	if qA.Size()+qB.Size() != 1 {
		t.Fatalf("legacy job enqueued %d times", qA.Size()+qB.Size())
	}
	got, err := repo.GetJob(ctx, legacy.JobID())
	if err != nil {
		t.Fatal(err)
	}
	if !got.OwnedBy("node-a") || qA.Size() != 1 {
		t.Fatalf("owner = %q", got.Owner())
	}
}

func TestWorkerSkipsJobOwnedElsewhere(t *testing.T) {
	repo := persistence.NewMemoryJobRepository()
	foreign := createOwnedJob(t, repo, false, "node-a")

	q := queue.NewMemoryJobQueue(4)
	runner := newFakeRunner()
	w := NewDubbingWorker(q, runner, repo, Options{ID: "node-b"})
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	_ = q.Enqueue(context.Background(), foreign.JobID())
	_ = q.Enqueue(context.Background(), "next")
	if id := runner.wait(t); id != "next" {
		t.Fatalf("ran %s, want the foreign job skipped", id)
	}
}

func TestWorkerStopInterruptsAfterGracePeriod(t *testing.T) {
	q := queue.NewMemoryJobQueue(1)
	runner := newFakeRunner()
	interrupted := make(chan struct{})
	runner.run = func(ctx context.Context, _ string) error {
		<-ctx.Done()
		close(interrupted)
		return nil
	}
	w := NewDubbingWorker(q, runner, nil, Options{GracePeriod: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = q.Enqueue(context.Background(), "long-job")
	runner.wait(t)

	// Cancelling the start context only stops dequeueing.
	cancel()
	select {
	case <-interrupted:
		t.Fatal("running job cancelled before Stop")
	case <-time.After(30 * time.Millisecond):
	}

	done := make(chan struct{})
	go func() {
		_ = w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	select {
	case <-interrupted:
	default:
		t.Fatal("running job was not interrupted")
	}
}

func TestWorkerSurvivesRunnerPanic(t *testing.T) {
	repo := persistence.NewMemoryJobRepository()
	job := createJob(t, repo, true)

	q := queue.NewMemoryJobQueue(2)
	runner := newFakeRunner()
	runner.run = func(_ context.Context, id string) error {
		if id == job.JobID() {
			panic("boom")
		}
		return nil
	}
	w := NewDubbingWorker(q, runner, repo, Options{})
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	_ = q.Enqueue(context.Background(), job.JobID())
	runner.wait(t)
	_ = q.Enqueue(context.Background(), "next")
	if id := runner.wait(t); id != "next" {
		t.Fatalf("next job = %s", id)
	}
	_ = w.Stop()

	got, _ := repo.GetJob(context.Background(), job.JobID())
	if got.Status() != vo.JobStatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status())
	}
	if !strings.HasPrefix(got.ErrorMessage(), string(fault.Internal)+":") {
		t.Fatalf("error message = %q", got.ErrorMessage())
	}
	for _, r := range got.Results() {
		if !strings.HasPrefix(r.ErrorMessage(), string(fault.Internal)+":") {
			t.Fatalf("result %s error = %q", r.Language(), r.ErrorMessage())
		}
	}
	if w.GetStats().FailedJobs != 1 {
		t.Fatalf("stats = %+v", w.GetStats())
	}
}
