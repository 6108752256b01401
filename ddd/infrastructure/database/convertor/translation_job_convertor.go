package convertor

import (
	"strings"
	"time"

	"dubbing-service/ddd/domain/entity"
	"dubbing-service/ddd/domain/vo"
	"dubbing-service/ddd/infrastructure/database/po"
)

// TranslationJobConvertor 配音任务实体与持久化对象转换器
type TranslationJobConvertor struct{}

// NewTranslationJobConvertor 创建转换器
func NewTranslationJobConvertor() *TranslationJobConvertor {
	return &TranslationJobConvertor{}
}

// ToPO 将任务实体转换为PO（不含结果）
func (c *TranslationJobConvertor) ToPO(job *entity.TranslationJob) *po.TranslationJob {
	return &po.TranslationJob{
		BaseModel: po.BaseModel{
			Id:        job.ID(),
			CreatedAt: job.CreatedAt(),
			UpdatedAt: job.UpdatedAt(),
		},
		JobID:           job.JobID(),
		MediaKey:        job.MediaKey(),
		SourceLanguage:  job.SourceLanguage(),
		TargetLanguages: strings.Join(job.TargetLanguages(), ","),
		VoiceGender:     string(job.VoiceGender()),
		Owner:           job.Owner(),
		Status:          job.Status().String(),
		Progress:        job.Progress(),
		ErrorMessage:    job.ErrorMessage(),
		StartedAt:       job.StartedAt(),
		CompletedAt:     job.CompletedAt(),
	}
}

// ResultToPO 将结果实体转换为PO
func (c *TranslationJobConvertor) ResultToPO(r *entity.TranslationResult) *po.TranslationResult {
	updated := r.UpdatedAt()
	if updated.IsZero() {
		updated = time.Now()
	}
	return &po.TranslationResult{
		BaseModel: po.BaseModel{
			Id:        r.ID(),
			UpdatedAt: updated,
		},
		JobID:            r.JobID(),
		Language:         r.Language(),
		Status:           r.Status().String(),
		OutputKey:        r.OutputKey(),
		AudioKey:         r.AudioKey(),
		TranslationScore: r.TranslationScore(),
		AudioScore:       r.AudioScore(),
		ProcessingMillis: r.ProcessingDuration().Milliseconds(),
		ErrorMessage:     r.ErrorMessage(),
	}
}

// ToEntity 组装任务实体；results 按目标语言的提交顺序排列
func (c *TranslationJobConvertor) ToEntity(job *po.TranslationJob, results []*po.TranslationResult) *entity.TranslationJob {
	targets := splitLanguages(job.TargetLanguages)
	byLang := make(map[string]*po.TranslationResult, len(results))
	for _, r := range results {
		if r.JobID == job.JobID {
			byLang[r.Language] = r
		}
	}

	ordered := make([]*entity.TranslationResult, 0, len(targets))
	for _, lang := range targets {
		if r, ok := byLang[lang]; ok {
			ordered = append(ordered, c.ResultToEntity(r))
			continue
		}
		ordered = append(ordered, entity.NewTranslationResult(job.JobID, lang))
	}

	status := vo.JobStatus(job.Status)
	if !status.IsValid() {
		status = vo.JobStatusPending
	}
	return entity.NewTranslationJobWithDetails(entity.TranslationJobDetails{
		ID:              job.Id,
		JobID:           job.JobID,
		MediaKey:        job.MediaKey,
		SourceLanguage:  job.SourceLanguage,
		TargetLanguages: targets,
		VoiceGender:     vo.Gender(job.VoiceGender),
		Owner:           job.Owner,
		Status:          status,
		Progress:        job.Progress,
		ErrorMessage:    job.ErrorMessage,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
		Results:         ordered,
	})
}

// ResultToEntity 将结果PO转换为实体
func (c *TranslationJobConvertor) ResultToEntity(r *po.TranslationResult) *entity.TranslationResult {
	status := vo.ResultStatus(r.Status)
	if !status.IsValid() {
		status = vo.ResultStatusPending
	}
	return entity.NewTranslationResultWithDetails(entity.TranslationResultDetails{
		ID:                 r.Id,
		JobID:              r.JobID,
		Language:           r.Language,
		Status:             status,
		OutputKey:          r.OutputKey,
		AudioKey:           r.AudioKey,
		TranslationScore:   r.TranslationScore,
		AudioScore:         r.AudioScore,
		ProcessingDuration: time.Duration(r.ProcessingMillis) * time.Millisecond,
		ErrorMessage:       r.ErrorMessage,
		UpdatedAt:          r.UpdatedAt,
	})
}

func splitLanguages(s string) []string {
	var out []string
	for _, l := range strings.Split(s, ",") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
