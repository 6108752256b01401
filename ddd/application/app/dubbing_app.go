package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"dubbing-service/ddd/application/cqe"
	"dubbing-service/ddd/application/dto"
	"dubbing-service/ddd/domain/entity"
	"dubbing-service/ddd/domain/gateway"
	"dubbing-service/ddd/domain/repo"
	"dubbing-service/ddd/domain/service"
	"dubbing-service/ddd/domain/vo"
	"dubbing-service/ddd/infrastructure/container"
	"dubbing-service/ddd/infrastructure/queue"
	"dubbing-service/pkg/assert"
	"dubbing-service/pkg/errno"
	"dubbing-service/pkg/logger"
)

var (
	singleDubbingApp DubbingApp
	onceDubbingApp   sync.Once
)

// DubbingApp 配音任务应用服务
type DubbingApp interface {
	// SubmitJob 校验并创建任务，入队后异步处理
	SubmitJob(ctx context.Context, req *cqe.SubmitJobReq) (*dto.JobDTO, error)
	// GetJob 获取任务详情，已完成的结果附带预签名下载地址
	GetJob(ctx context.Context, jobID string) (*dto.JobDTO, error)
	// ListJobs 分页查询任务
	ListJobs(ctx context.Context, query *cqe.ListJobsQuery) (*dto.JobListDTO, error)
	// CancelJob 请求取消任务，由编排器在下一个阶段边界生效
	CancelJob(ctx context.Context, jobID string) (*dto.JobDTO, error)
}

// DubbingAppDeps 应用服务依赖
type DubbingAppDeps struct {
	Repo    repo.JobRepository
	Queue   queue.JobQueue
	Cancels gateway.CancelRegistry
	Storage gateway.ObjectStorage
	Pairs   *service.PairTable
	// SupportedLanguages restricts targets further when non-empty.
	SupportedLanguages []string
	PresignTTL         time.Duration
	// InstanceID owns submitted jobs until they finish; it must match the local worker's ID.
	InstanceID string
}

type dubbingAppImpl struct {
	deps      DubbingAppDeps
	allowList map[string]bool
}

func DefaultDubbingApp() DubbingApp {
	assert.NotCircular()
	onceDubbingApp.Do(func() {
		c := container.DefaultContainer()
		singleDubbingApp = NewDubbingAppWith(DubbingAppDeps{
			Repo:               c.Repo,
			Queue:              queue.DefaultJobQueue(),
			Cancels:            c.Cancels,
			Storage:            c.Storage,
			Pairs:              c.Pairs,
			SupportedLanguages: c.Config.Pipeline.SupportedLanguages,
			PresignTTL:         c.Config.Minio.PresignTTL,
			InstanceID:         c.Config.Worker.InstanceID,
		})
	})
	assert.NotNil(singleDubbingApp)
	return singleDubbingApp
}

func NewDubbingAppWith(deps DubbingAppDeps) DubbingApp {
	if deps.Pairs == nil {
		deps.Pairs = service.DefaultPairTable()
	}
	if deps.PresignTTL <= 0 {
		deps.PresignTTL = 24 * time.Hour
	}
	a := &dubbingAppImpl{deps: deps}
	if len(deps.SupportedLanguages) > 0 {
		a.allowList = make(map[string]bool, len(deps.SupportedLanguages))
		for _, l := range deps.SupportedLanguages {
			a.allowList[vo.BaseLanguage(l)] = true
		}
	}
	return a
}

func (a *dubbingAppImpl) SubmitJob(ctx context.Context, req *cqe.SubmitJobReq) (*dto.JobDTO, error) {
	// 验证请求参数
	if req == nil {
		return nil, errno.ErrInvalidParam
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := a.checkLanguages(req.SourceLanguage, req.TargetLanguages); err != nil {
		return nil, err
	}

	if a.deps.Storage != nil {
		exists, err := a.deps.Storage.Exists(ctx, req.MediaKey)
		if err != nil {
			logger.Errorf("check media object failed media_key=%s error=%v", req.MediaKey, err)
			return nil, errno.ErrStorageUnavailable
		}
		if !exists {
			return nil, errno.NewBizError(errno.ErrMediaNotFound, req.MediaKey)
		}
	}

	job, err := entity.NewTranslationJob(req.MediaKey, req.SourceLanguage, req.TargetLanguages, req.Gender())
	if err != nil {
		return nil, errno.NewBizError(errno.ErrInvalidParam, err.Error())
	}
	// 任务进入本实例的内存队列，因此由本实例负责
	_ = job.AssignOwner(a.deps.InstanceID)
	if err := a.deps.Repo.CreateJob(ctx, job); err != nil {
		logger.Errorf("create job failed media_key=%s error=%v", req.MediaKey, err)
		return nil, errno.NewBizError(errno.ErrDatabase, err.Error())
	}

	// 将任务加入队列，触发异步处理
	if err := a.deps.Queue.Enqueue(ctx, job.JobID()); err != nil {
		logger.Errorf("任务入队失败 job_id=%s error=%v", job.JobID(), err)
		_ = job.Fail("QUEUE_FULL: The service is busy, please retry later.")
		writeCtx := context.WithoutCancel(ctx)
		if uerr := a.deps.Repo.UpdateJob(writeCtx, job); uerr != nil {
			logger.Warnf("mark rejected job failed job_id=%s error=%v", job.JobID(), uerr)
		}
		for _, r := range job.Results() {
			_ = a.deps.Repo.SaveResult(writeCtx, r)
		}
		if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrQueueClosed) {
			return nil, errno.ErrQueueFull
		}
		return nil, errno.NewBizError(errno.ErrInternalServer, err.Error())
	}

	logger.Info("job accepted", map[string]interface{}{
		"job_id":     job.JobID(),
		"media_key":  job.MediaKey(),
		"source":     job.SourceLanguage(),
		"targets":    job.TargetLanguages(),
		"owner":      job.Owner(),
		"request_id": logger.RequestIDFromContext(ctx),
	})
	return dto.NewJobDTO(job), nil
}

func (a *dubbingAppImpl) GetJob(ctx context.Context, jobID string) (*dto.JobDTO, error) {
	job, err := a.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	out := dto.NewJobDTO(job)
	a.presign(ctx, out)
	if !job.Status().IsFinalStatus() && a.deps.Cancels != nil {
		out.CancelRequested = a.deps.Cancels.IsCancelled(ctx, jobID)
	}
	return out, nil
}

func (a *dubbingAppImpl) ListJobs(ctx context.Context, query *cqe.ListJobsQuery) (*dto.JobListDTO, error) {
	if query == nil {
		query = &cqe.ListJobsQuery{}
	}
	if err := query.Normalize(); err != nil {
		return nil, err
	}
	jobs, total, err := a.deps.Repo.ListJobs(ctx, vo.JobStatus(query.Status), query.Size, (query.Page-1)*query.Size)
	if err != nil {
		return nil, errno.NewBizError(errno.ErrDatabase, err.Error())
	}
	items := make([]*dto.JobDTO, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, dto.NewJobDTO(j))
	}
	return dto.NewJobListDTO(items, total, query.Page, query.Size), nil
}

// CancelJob only records the request; the job's orchestrator is the one that moves
// it to CANCELLED.
func (a *dubbingAppImpl) CancelJob(ctx context.Context, jobID string) (*dto.JobDTO, error) {
	job, err := a.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status().IsFinalStatus() {
		return nil, errno.NewBizError(errno.ErrJobAlreadyTerminated, job.Status().String())
	}
	if a.deps.Cancels == nil {
		return nil, errno.NewBizError(errno.ErrInternalServer, "cancellation is not available")
	}
	if err := a.deps.Cancels.RequestCancel(ctx, jobID); err != nil {
		logger.Errorf("request cancel failed job_id=%s error=%v", jobID, err)
		return nil, errno.NewBizError(errno.ErrInternalServer, err.Error())
	}
	logger.Infof("cancel requested job_id=%s status=%s", jobID, job.Status())

	out := dto.NewJobDTO(job)
	out.CancelRequested = true
	return out, nil
}

func (a *dubbingAppImpl) load(ctx context.Context, jobID string) (*entity.TranslationJob, error) {
	if jobID == "" {
		return nil, errno.NewBizError(errno.ErrMissingParam, "job_id")
	}
	job, err := a.deps.Repo.GetJob(ctx, jobID)
	if errors.Is(err, repo.ErrJobNotFound) {
		return nil, errno.ErrJobNotFound
	}
	if err != nil {
		return nil, errno.NewBizError(errno.ErrDatabase, err.Error())
	}
	return job, nil
}

// checkLanguages enforces the allow list and rejects a request none of whose targets
// the pair table can reach. Targets without a route are accepted when a sibling is
// routable; the pipeline fails their results with UNSUPPORTED_LANGUAGE_PAIR.
func (a *dubbingAppImpl) checkLanguages(source string, targets []string) error {
	if source != vo.AutoLanguage && !a.deps.Pairs.Knows(source) {
		return errno.NewBizError(errno.ErrUnsupportedLanguage, source)
	}
	var unroutable []string
	for _, t := range targets {
		if a.allowList != nil && !a.allowList[vo.BaseLanguage(t)] {
			return errno.NewBizError(errno.ErrUnsupportedLanguage, t)
		}
		if !a.routable(source, t) {
			unroutable = append(unroutable, t)
		}
	}
	if len(unroutable) == len(targets) {
		return errno.NewBizError(errno.ErrUnsupportedLanguage, strings.Join(unroutable, ","))
	}
	if len(unroutable) > 0 {
		logger.Warnf("accepting job with unroutable targets source=%s targets=%v", source, unroutable)
	}
	return nil
}

func (a *dubbingAppImpl) routable(source, target string) bool {
	if !a.deps.Pairs.Knows(target) {
		return false
	}
	if source == vo.AutoLanguage {
		return true
	}
	_, err := a.deps.Pairs.Route(source, target)
	return err == nil
}

func (a *dubbingAppImpl) presign(ctx context.Context, out *dto.JobDTO) {
	if a.deps.Storage == nil {
		return
	}
	for i := range out.Results {
		r := &out.Results[i]
		if r.OutputKey != "" {
			r.OutputURL = a.presignOne(ctx, r.OutputKey)
		}
		if r.AudioKey != "" {
			r.AudioURL = a.presignOne(ctx, r.AudioKey)
		}
	}
}

func (a *dubbingAppImpl) presignOne(ctx context.Context, key string) string {
	url, err := a.deps.Storage.PresignedURL(ctx, key, a.deps.PresignTTL)
	if err != nil {
		logger.Warnf("presign failed key=%s error=%v", key, err)
		return ""
	}
	return url
}
