package dao

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dubbing-service/ddd/infrastructure/database/po"
	"dubbing-service/pkg/logger"
)

// TranslationJobDAO 配音任务数据访问对象
type TranslationJobDAO struct {
	db *gorm.DB
}

// NewTranslationJobDAO 创建任务DAO实例
func NewTranslationJobDAO(db *gorm.DB) *TranslationJobDAO {
	return &TranslationJobDAO{db: db}
}

// AutoMigrate 创建或升级表结构
func (d *TranslationJobDAO) AutoMigrate() error {
	return d.db.AutoMigrate(&po.TranslationJob{}, &po.TranslationResult{})
}

// Create 在同一事务中写入任务与全部语言结果
func (d *TranslationJobDAO) Create(ctx context.Context, job *po.TranslationJob, results []*po.TranslationResult) error {
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		if len(results) == 0 {
			return nil
		}
		return tx.Create(results).Error
	})
	if err != nil {
		logger.Errorf("create translation job failed job_id=%s error=%v", job.JobID, err)
	}
	return err
}

// FindByJobID 根据任务ID查询，未找到时返回 gorm.ErrRecordNotFound
func (d *TranslationJobDAO) FindByJobID(ctx context.Context, jobID string) (*po.TranslationJob, error) {
	var job po.TranslationJob
	if err := d.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Errorf("query translation job failed job_id=%s error=%v", jobID, err)
		}
		return nil, err
	}
	return &job, nil
}

// FindResults 查询多个任务的语言结果
func (d *TranslationJobDAO) FindResults(ctx context.Context, jobIDs ...string) ([]*po.TranslationResult, error) {
	var results []*po.TranslationResult
	if len(jobIDs) == 0 {
		return results, nil
	}
	err := d.db.WithContext(ctx).Where("job_id IN ?", jobIDs).Order("id ASC").Find(&results).Error
	if err != nil {
		logger.Errorf("query translation results failed error=%v", err)
		return nil, err
	}
	return results, nil
}

// List 分页查询任务，按创建时间倒序；status 为空时不过滤
func (d *TranslationJobDAO) List(ctx context.Context, status string, limit, offset int) ([]*po.TranslationJob, int64, error) {
	query := d.db.WithContext(ctx).Model(&po.TranslationJob{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []*po.TranslationJob
	q := query.Order("created_at DESC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&jobs).Error; err != nil {
		logger.Errorf("list translation jobs failed status=%s error=%v", status, err)
		return nil, 0, err
	}
	return jobs, total, nil
}

// UpdateHeader 更新任务状态相关字段
func (d *TranslationJobDAO) UpdateHeader(ctx context.Context, job *po.TranslationJob) error {
	update := map[string]interface{}{
		"status":        job.Status,
		"progress":      job.Progress,
		"error_message": job.ErrorMessage,
		"started_at":    job.StartedAt,
		"completed_at":  job.CompletedAt,
		"updated_at":    job.UpdatedAt,
	}
	res := d.db.WithContext(ctx).Model(&po.TranslationJob{}).Where("job_id = ?", job.JobID).Updates(update)
	if res.Error != nil {
		logger.Errorf("update translation job failed job_id=%s error=%v", job.JobID, res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ClaimUnowned 把无主任务分配给 owner；已属于 owner 时同样返回 true。
// 条件更新保证并发启动的多个实例中只有一个拿到同一任务。
func (d *TranslationJobDAO) ClaimUnowned(ctx context.Context, jobID, owner string) (bool, error) {
	res := d.db.WithContext(ctx).Model(&po.TranslationJob{}).
		Where("job_id = ? AND (owner = '' OR owner IS NULL)", jobID).
		Update("owner", owner)
	if res.Error != nil {
		logger.Errorf("claim translation job failed job_id=%s owner=%s error=%v", jobID, owner, res.Error)
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	job, err := d.FindByJobID(ctx, jobID)
	if err != nil {
		return false, err
	}
	return job.Owner == owner, nil
}

// UpdateProgress 只在进度增加时写入
func (d *TranslationJobDAO) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	err := d.db.WithContext(ctx).Model(&po.TranslationJob{}).
		Where("job_id = ? AND progress < ?", jobID, progress).
		Update("progress", progress).Error
	if err != nil {
		logger.Errorf("update translation job progress failed job_id=%s error=%v", jobID, err)
	}
	return err
}

// SaveResult 按 (job_id, language) 写入结果
func (d *TranslationJobDAO) SaveResult(ctx context.Context, result *po.TranslationResult) error {
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "job_id"}, {Name: "language"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "output_key", "audio_key", "translation_score", "audio_score",
			"processing_ms", "error_message", "updated_at",
		}),
	}).Create(result).Error
	if err != nil {
		logger.Errorf("save translation result failed job_id=%s language=%s error=%v", result.JobID, result.Language, err)
	}
	return err
}
