package entity

import (
	"time"

	"dubbing-service/ddd/domain/vo"
)

// TranslationResult 单个目标语言的处理结果
type TranslationResult struct {
	id                 uint64
	jobID              string
	language           string
	status             vo.ResultStatus
	outputKey          string
	audioKey           string
	translationScore   float64
	audioScore         float64
	processingDuration time.Duration
	errorMessage       string
	startedAt          *time.Time
	updatedAt          time.Time
}

// NewTranslationResult 创建待处理结果
func NewTranslationResult(jobID, language string) *TranslationResult {
	return &TranslationResult{
		jobID:     jobID,
		language:  language,
		status:    vo.ResultStatusPending,
		updatedAt: time.Now(),
	}
}

// TranslationResultDetails carries persisted state back into an entity.
type TranslationResultDetails struct {
	ID                 uint64
	JobID              string
	Language           string
	Status             vo.ResultStatus
	OutputKey          string
	AudioKey           string
	TranslationScore   float64
	AudioScore         float64
	ProcessingDuration time.Duration
	ErrorMessage       string
	UpdatedAt          time.Time
}

// NewTranslationResultWithDetails 从持久化数据重建结果实体
func NewTranslationResultWithDetails(d TranslationResultDetails) *TranslationResult {
	return &TranslationResult{
		id:                 d.ID,
		jobID:              d.JobID,
		language:           d.Language,
		status:             d.Status,
		outputKey:          d.OutputKey,
		audioKey:           d.AudioKey,
		translationScore:   d.TranslationScore,
		audioScore:         d.AudioScore,
		processingDuration: d.ProcessingDuration,
		errorMessage:       d.ErrorMessage,
		updatedAt:          d.UpdatedAt,
	}
}

func (r *TranslationResult) ID() uint64                        { return r.id }
func (r *TranslationResult) JobID() string                     { return r.jobID }
func (r *TranslationResult) Language() string                  { return r.language }
func (r *TranslationResult) Status() vo.ResultStatus           { return r.status }
func (r *TranslationResult) OutputKey() string                 { return r.outputKey }
func (r *TranslationResult) AudioKey() string                  { return r.audioKey }
func (r *TranslationResult) TranslationScore() float64         { return r.translationScore }
func (r *TranslationResult) AudioScore() float64               { return r.audioScore }
func (r *TranslationResult) ProcessingDuration() time.Duration { return r.processingDuration }
func (r *TranslationResult) ErrorMessage() string              { return r.errorMessage }
func (r *TranslationResult) UpdatedAt() time.Time              { return r.updatedAt }
func (r *TranslationResult) SetID(id uint64)                   { r.id = id }

// Advance moves the result to the next pipeline stage.
func (r *TranslationResult) Advance(next vo.ResultStatus) error {
	if next == vo.ResultStatusCompleted || next == vo.ResultStatusFailed || next == vo.ResultStatusCancelled {
		return NewDomainError("use Complete/Fail/Cancel for terminal status " + next.String())
	}
	if !r.status.CanTransitionTo(next) {
		return NewDomainError("cannot move result from " + r.status.String() + " to " + next.String())
	}
	now := time.Now()
	if r.startedAt == nil {
		r.startedAt = &now
	}
	r.status = next
	r.updatedAt = now
	return nil
}

// Complete 记录输出与质量分数
func (r *TranslationResult) Complete(outputKey, audioKey string, translationScore, audioScore float64) error {
	if !r.status.CanTransitionTo(vo.ResultStatusCompleted) {
		return NewDomainError("cannot complete result in current status: " + r.status.String())
	}
	r.outputKey = outputKey
	r.audioKey = audioKey
	r.translationScore = clampScore(translationScore)
	r.audioScore = clampScore(audioScore)
	r.finish(vo.ResultStatusCompleted)
	return nil
}

// Fail 标记结果失败
func (r *TranslationResult) Fail(message string) error {
	if !r.status.CanTransitionTo(vo.ResultStatusFailed) {
		return NewDomainError("cannot fail result in current status: " + r.status.String())
	}
	r.errorMessage = message
	r.finish(vo.ResultStatusFailed)
	return nil
}

// Cancel 取消结果
func (r *TranslationResult) Cancel() error {
	if !r.status.CanTransitionTo(vo.ResultStatusCancelled) {
		return NewDomainError("cannot cancel result in current status: " + r.status.String())
	}
	r.finish(vo.ResultStatusCancelled)
	return nil
}

func (r *TranslationResult) finish(status vo.ResultStatus) {
	now := time.Now()
	if r.startedAt != nil {
		r.processingDuration = now.Sub(*r.startedAt)
	}
	r.status = status
	r.updatedAt = now
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Details 导出结果快照
func (r *TranslationResult) Details() TranslationResultDetails {
	return TranslationResultDetails{
		ID:                 r.id,
		JobID:              r.jobID,
		Language:           r.language,
		Status:             r.status,
		OutputKey:          r.outputKey,
		AudioKey:           r.audioKey,
		TranslationScore:   r.translationScore,
		AudioScore:         r.audioScore,
		ProcessingDuration: r.processingDuration,
		ErrorMessage:       r.errorMessage,
		UpdatedAt:          r.updatedAt,
	}
}
