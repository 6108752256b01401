package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"dubbing-service/ddd/domain/entity"
	"dubbing-service/ddd/domain/repo"
	"dubbing-service/ddd/domain/vo"
	"dubbing-service/ddd/infrastructure/database/convertor"
	"dubbing-service/ddd/infrastructure/database/dao"
	"dubbing-service/ddd/infrastructure/database/po"
)

// jobRepositoryImpl 基于 MySQL 的任务仓储实现
type jobRepositoryImpl struct {
	jobDao    *dao.TranslationJobDAO
	convertor *convertor.TranslationJobConvertor
}

// NewJobRepository 创建任务仓储实现
func NewJobRepository(db *gorm.DB) repo.JobRepository {
	return &jobRepositoryImpl{
		jobDao:    dao.NewTranslationJobDAO(db),
		convertor: convertor.NewTranslationJobConvertor(),
	}
}

// CreateJob 创建任务
func (r *jobRepositoryImpl) CreateJob(ctx context.Context, job *entity.TranslationJob) error {
	jobPO := r.convertor.ToPO(job)
	results := make([]*po.TranslationResult, 0, len(job.Results()))
	for _, res := range job.Results() {
		results = append(results, r.convertor.ResultToPO(res))
	}
	if err := r.jobDao.Create(ctx, jobPO, results); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	job.SetID(jobPO.Id)
	for i, res := range job.Results() {
		res.SetID(results[i].Id)
	}
	return nil
}

// GetJob 获取任务
func (r *jobRepositoryImpl) GetJob(ctx context.Context, jobID string) (*entity.TranslationJob, error) {
	jobPO, err := r.jobDao.FindByJobID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repo.ErrJobNotFound
		}
		return nil, err
	}
	results, err := r.jobDao.FindResults(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return r.convertor.ToEntity(jobPO, results), nil
}

// ListJobs 分页查询任务
func (r *jobRepositoryImpl) ListJobs(ctx context.Context, status vo.JobStatus, limit, offset int) ([]*entity.TranslationJob, int64, error) {
	jobPOs, total, err := r.jobDao.List(ctx, status.String(), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	ids := make([]string, 0, len(jobPOs))
	for _, j := range jobPOs {
		ids = append(ids, j.JobID)
	}
	results, err := r.jobDao.FindResults(ctx, ids...)
	if err != nil {
		return nil, 0, err
	}
	jobs := make([]*entity.TranslationJob, 0, len(jobPOs))
	for _, j := range jobPOs {
		jobs = append(jobs, r.convertor.ToEntity(j, results))
	}
	return jobs, total, nil
}

// UpdateJob 更新任务状态字段
func (r *jobRepositoryImpl) UpdateJob(ctx context.Context, job *entity.TranslationJob) error {
	err := r.jobDao.UpdateHeader(ctx, r.convertor.ToPO(job))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repo.ErrJobNotFound
	}
	return err
}

// ClaimJob 认领无主任务
func (r *jobRepositoryImpl) ClaimJob(ctx context.Context, jobID, owner string) (bool, error) {
	ok, err := r.jobDao.ClaimUnowned(ctx, jobID, owner)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, repo.ErrJobNotFound
	}
	return ok, err
}

// UpdateProgress 更新任务进度
func (r *jobRepositoryImpl) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	return r.jobDao.UpdateProgress(ctx, jobID, progress)
}

// SaveResult 更新语言结果
func (r *jobRepositoryImpl) SaveResult(ctx context.Context, result *entity.TranslationResult) error {
	return r.jobDao.SaveResult(ctx, r.convertor.ResultToPO(result))
}
