package repo

import (
	"context"
	"errors"

	"dubbing-service/ddd/domain/entity"
	"dubbing-service/ddd/domain/vo"
)

// ErrJobNotFound 任务不存在
var ErrJobNotFound = errors.New("job not found")

// JobRepository 配音任务仓储接口。除创建外，写操作只由任务所属的编排器调用。
type JobRepository interface {
	// CreateJob 创建任务及其全部结果
	CreateJob(ctx context.Context, job *entity.TranslationJob) error

	// GetJob 获取任务（含结果），不存在时返回 ErrJobNotFound
	GetJob(ctx context.Context, jobID string) (*entity.TranslationJob, error)

	// ListJobs 分页查询，status 为空时不过滤
	ListJobs(ctx context.Context, status vo.JobStatus, limit, offset int) ([]*entity.TranslationJob, int64, error)

	// UpdateJob 更新任务状态字段（不含结果）
	UpdateJob(ctx context.Context, job *entity.TranslationJob) error

	// ClaimJob 将无主任务分配给 owner，返回该任务当前是否归 owner 所有。
	// 多个实例同时调用时只有一个成功。
	ClaimJob(ctx context.Context, jobID, owner string) (bool, error)

	// UpdateProgress 更新任务进度
	UpdateProgress(ctx context.Context, jobID string, progress int) error

	// SaveResult 更新单个语言结果
	SaveResult(ctx context.Context, result *entity.TranslationResult) error
}
