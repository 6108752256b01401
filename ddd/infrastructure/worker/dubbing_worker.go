package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dubbing-service/ddd/domain/entity"
	"dubbing-service/ddd/domain/fault"
	"dubbing-service/ddd/domain/repo"
	"dubbing-service/ddd/domain/vo"
	"dubbing-service/ddd/infrastructure/queue"
	"dubbing-service/pkg/logger"
)

// JobRunner drives one job to a terminal state.
type JobRunner interface {
	Run(ctx context.Context, jobID string) error
}

// WorkerStats 工作器统计信息
type WorkerStats struct {
	ProcessedJobs    uint64
	SuccessfulJobs   uint64
	FailedJobs       uint64
	RecoveredJobs    uint64
	CurrentlyRunning int
	StartTime        time.Time
	LastJobTime      time.Time
}

// Options 工作器参数
type Options struct {
	ID          string
	Concurrency int
	// GracePeriod is how long Stop lets running jobs finish before their context is
	// cancelled and they record INTERRUPTED.
	GracePeriod time.Duration
	// RecoverOnStart re-enqueues PENDING jobs and fails PROCESSING jobs that a
	// previous process of this instance left behind. Jobs owned by other instances
	// are never touched; unowned jobs are claimed first.
	RecoverOnStart bool
}

// DubbingWorker 从作业队列取出作业并交给编排器执行
type DubbingWorker struct {
	opts   Options
	queue  queue.JobQueue
	runner JobRunner
	repo   repo.JobRepository

	mu       sync.RWMutex
	running  bool
	stopLoop context.CancelFunc
	stopRuns context.CancelFunc
	stats    WorkerStats
	wg       sync.WaitGroup
}

// NewDubbingWorker 创建配音工作器
func NewDubbingWorker(q queue.JobQueue, runner JobRunner, jobRepo repo.JobRepository, opts Options) *DubbingWorker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.ID == "" {
		opts.ID = "dubbing-worker"
	}
	return &DubbingWorker{
		opts:   opts,
		queue:  q,
		runner: runner,
		repo:   jobRepo,
		stats:  WorkerStats{StartTime: time.Now()},
	}
}

// Start 启动工作器
func (w *DubbingWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("worker %s is already running", w.opts.ID)
	}

	// Dequeueing stops with ctx or Stop. Running jobs are detached from ctx and are
	// only cancelled by Stop once the grace period has elapsed.
	loopCtx, stopLoop := context.WithCancel(ctx)
	runCtx, stopRuns := context.WithCancel(context.WithoutCancel(ctx))
	w.stopLoop = stopLoop
	w.stopRuns = stopRuns
	w.running = true
	w.stats.StartTime = time.Now()
	w.wg.Add(w.opts.Concurrency)
	w.mu.Unlock()

	if w.opts.RecoverOnStart && w.repo != nil {
		w.recoverJobs(ctx)
	}

	logger.Infof("Starting dubbing worker %s with %d goroutines", w.opts.ID, w.opts.Concurrency)
	for i := 0; i < w.opts.Concurrency; i++ {
		go w.workerLoop(loopCtx, runCtx, i)
	}
	return nil
}

// Stop 停止工作器，等待运行中的作业最多 GracePeriod
func (w *DubbingWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	stopLoop, stopRuns := w.stopLoop, w.stopRuns
	w.mu.Unlock()

	logger.Infof("Stopping dubbing worker %s", w.opts.ID)
	stopLoop()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	if w.opts.GracePeriod > 0 {
		select {
		case <-done:
		case <-time.After(w.opts.GracePeriod):
			logger.Warnf("Grace period elapsed, interrupting running jobs worker=%s", w.opts.ID)
		}
	}
	stopRuns()
	<-done

	logger.Infof("Dubbing worker %s stopped", w.opts.ID)
	return nil
}

// IsRunning 检查工作器是否运行中
func (w *DubbingWorker) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// GetStats 获取工作器统计信息
func (w *DubbingWorker) GetStats() WorkerStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *DubbingWorker) workerLoop(loopCtx, runCtx context.Context, n int) {
	defer w.wg.Done()

	logger.Debugf("Worker %s-%d started", w.opts.ID, n)
	defer logger.Debugf("Worker %s-%d stopped", w.opts.ID, n)

	for {
		jobID, err := w.queue.Dequeue(loopCtx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, queue.ErrQueueClosed) {
				return
			}
			logger.Warnf("Worker %s-%d failed to dequeue job: %v", w.opts.ID, n, err)
			select {
			case <-loopCtx.Done():
				return
			case <-time.After(time.Second): // 避免忙等待
			}
			continue
		}
		if jobID == "" {
			continue
		}
		w.processJob(runCtx, jobID, n)
	}
}

func (w *DubbingWorker) processJob(ctx context.Context, jobID string, n int) {
	if !w.claim(ctx, jobID) {
		logger.Warnf("Worker %s-%d skipping job %s owned by another instance", w.opts.ID, n, jobID)
		return
	}
	logger.Infof("Worker %s-%d processing job %s", w.opts.ID, n, jobID)

	w.updateStats(func(s *WorkerStats) {
		s.CurrentlyRunning++
		s.LastJobTime = time.Now()
	})
	defer w.updateStats(func(s *WorkerStats) {
		s.CurrentlyRunning--
		s.ProcessedJobs++
	})

	defer func() {
		if r := recover(); r != nil {
			logger.Error("job runner panicked", map[string]interface{}{"job_id": jobID, "panic": fmt.Sprint(r)})
			w.updateStats(func(s *WorkerStats) { s.FailedJobs++ })
			w.failAbandoned(context.WithoutCancel(ctx), jobID, fault.New(fault.Internal, "job runner panicked"))
		}
	}()

	if err := w.runner.Run(ctx, jobID); err != nil {
		logger.Errorf("Worker %s-%d failed to process job %s: %v", w.opts.ID, n, jobID, err)
		w.updateStats(func(s *WorkerStats) { s.FailedJobs++ })
		return
	}
	w.updateStats(func(s *WorkerStats) { s.SuccessfulJobs++ })
}

// claim 认领作业；仓储不可用或作业不存在时交给编排器自行报错
func (w *DubbingWorker) claim(ctx context.Context, jobID string) bool {
	if w.repo == nil {
		return true
	}
	ok, err := w.repo.ClaimJob(ctx, jobID, w.opts.ID)
	if err != nil {
		if !errors.Is(err, repo.ErrJobNotFound) {
			logger.Warnf("Worker %s failed to claim job %s: %v", w.opts.ID, jobID, err)
		}
		return true
	}
	return ok
}

// recoverJobs 恢复本实例上次进程遗留的作业：PENDING 重新入队，PROCESSING 标记为中断失败
func (w *DubbingWorker) recoverJobs(ctx context.Context) {
	pending, _, err := w.repo.ListJobs(ctx, vo.JobStatusPending, 0, 0)
	if err != nil {
		logger.Warnf("Worker %s failed to list pending jobs: %v", w.opts.ID, err)
	}
	requeued := 0
	// Oldest first so that recovered jobs keep their submission order.
	for i := len(pending) - 1; i >= 0; i-- {
		job := pending[i]
		if !w.ownsForRecovery(ctx, job) {
			continue
		}
		if err := w.queue.Enqueue(ctx, job.JobID()); err != nil {
			logger.Warnf("Worker %s failed to re-enqueue job %s: %v", w.opts.ID, job.JobID(), err)
			continue
		}
		requeued++
		w.updateStats(func(s *WorkerStats) { s.RecoveredJobs++ })
	}

	processing, _, err := w.repo.ListJobs(ctx, vo.JobStatusProcessing, 0, 0)
	if err != nil {
		logger.Warnf("Worker %s failed to list processing jobs: %v", w.opts.ID, err)
		return
	}
	interrupted := 0
	for _, job := range processing {
		if !w.ownsForRecovery(ctx, job) {
			continue
		}
		w.failAbandoned(ctx, job.JobID(), fault.New(fault.Interrupted, "job abandoned by previous process"))
		interrupted++
	}
	if requeued+interrupted > 0 {
		logger.Info("recovered jobs", map[string]interface{}{
			"worker":      w.opts.ID,
			"requeued":    requeued,
			"interrupted": interrupted,
		})
	}
}

// ownsForRecovery 只恢复属于本实例的作业；无主作业先认领，认领失败说明已被其他实例拿走
func (w *DubbingWorker) ownsForRecovery(ctx context.Context, job *entity.TranslationJob) bool {
	if job.OwnedBy(w.opts.ID) {
		return true
	}
	if job.Owner() != "" {
		return false
	}
	ok, err := w.repo.ClaimJob(ctx, job.JobID(), w.opts.ID)
	if err != nil {
		logger.Warnf("Worker %s failed to claim job %s: %v", w.opts.ID, job.JobID(), err)
		return false
	}
	return ok
}

func (w *DubbingWorker) failAbandoned(ctx context.Context, jobID string, cause error) {
	if w.repo == nil {
		return
	}
	job, err := w.repo.GetJob(ctx, jobID)
	if err != nil || job.Status().IsFinalStatus() {
		return
	}
	if err := job.Fail(fault.UserMessage(cause)); err != nil {
		return
	}
	if err := w.repo.UpdateJob(ctx, job); err != nil {
		logger.Warnf("Worker %s failed to mark job %s failed: %v", w.opts.ID, jobID, err)
		return
	}
	for _, r := range job.Results() {
		if err := w.repo.SaveResult(ctx, r); err != nil {
			logger.Warnf("Worker %s failed to save result job=%s language=%s: %v", w.opts.ID, jobID, r.Language(), err)
		}
	}
}

func (w *DubbingWorker) updateStats(fn func(*WorkerStats)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.stats)
}
