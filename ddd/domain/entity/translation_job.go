package entity

import (
	"time"

	"github.com/google/uuid"

	"dubbing-service/ddd/domain/vo"
)

// TranslationJob 配音翻译任务实体
type TranslationJob struct {
	id              uint64 // 数据库主键ID
	jobID           string
	mediaKey        string
	sourceLanguage  string
	targetLanguages []string
	voiceGender     vo.Gender
	owner           string // 负责该任务的实例，重启恢复时只处理自己的任务
	status          vo.JobStatus
	progress        int
	errorMessage    string
	createdAt       time.Time
	updatedAt       time.Time
	startedAt       *time.Time
	completedAt     *time.Time
	results         []*TranslationResult
}

// NewTranslationJob 创建新的配音任务，每个目标语言对应一个待处理结果
func NewTranslationJob(mediaKey, sourceLanguage string, targetLanguages []string, gender vo.Gender) (*TranslationJob, error) {
	if mediaKey == "" {
		return nil, NewDomainError("media key is required")
	}
	if len(targetLanguages) == 0 {
		return nil, NewDomainError("at least one target language is required")
	}
	if sourceLanguage == "" {
		sourceLanguage = vo.AutoLanguage
	}

	now := time.Now()
	job := &TranslationJob{
		jobID:           uuid.New().String(),
		mediaKey:        mediaKey,
		sourceLanguage:  sourceLanguage,
		targetLanguages: append([]string(nil), targetLanguages...),
		voiceGender:     gender,
		status:          vo.JobStatusPending,
		createdAt:       now,
		updatedAt:       now,
	}
	for _, lang := range targetLanguages {
		job.results = append(job.results, NewTranslationResult(job.jobID, lang))
	}
	return job, nil
}

// TranslationJobDetails carries persisted state back into an entity.
type TranslationJobDetails struct {
	ID              uint64
	JobID           string
	MediaKey        string
	SourceLanguage  string
	TargetLanguages []string
	VoiceGender     vo.Gender
	Owner           string
	Status          vo.JobStatus
	Progress        int
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	Results         []*TranslationResult
}

// NewTranslationJobWithDetails 从持久化数据重建任务实体
func NewTranslationJobWithDetails(d TranslationJobDetails) *TranslationJob {
	return &TranslationJob{
		id:              d.ID,
		jobID:           d.JobID,
		mediaKey:        d.MediaKey,
		sourceLanguage:  d.SourceLanguage,
		targetLanguages: append([]string(nil), d.TargetLanguages...),
		voiceGender:     d.VoiceGender,
		owner:           d.Owner,
		status:          d.Status,
		progress:        d.Progress,
		errorMessage:    d.ErrorMessage,
		createdAt:       d.CreatedAt,
		updatedAt:       d.UpdatedAt,
		startedAt:       d.StartedAt,
		completedAt:     d.CompletedAt,
		results:         d.Results,
	}
}

// Getters
func (j *TranslationJob) ID() uint64                    { return j.id }
func (j *TranslationJob) JobID() string                 { return j.jobID }
func (j *TranslationJob) MediaKey() string              { return j.mediaKey }
func (j *TranslationJob) SourceLanguage() string        { return j.sourceLanguage }
func (j *TranslationJob) TargetLanguages() []string     { return append([]string(nil), j.targetLanguages...) }
func (j *TranslationJob) VoiceGender() vo.Gender        { return j.voiceGender }
func (j *TranslationJob) Owner() string                 { return j.owner }
func (j *TranslationJob) Status() vo.JobStatus          { return j.status }
func (j *TranslationJob) Progress() int                 { return j.progress }
func (j *TranslationJob) ErrorMessage() string          { return j.errorMessage }
func (j *TranslationJob) CreatedAt() time.Time          { return j.createdAt }
func (j *TranslationJob) UpdatedAt() time.Time          { return j.updatedAt }
func (j *TranslationJob) StartedAt() *time.Time         { return j.startedAt }
func (j *TranslationJob) CompletedAt() *time.Time       { return j.completedAt }
func (j *TranslationJob) Results() []*TranslationResult { return j.results }
func (j *TranslationJob) SetID(id uint64)               { j.id = id }

// AssignOwner records the instance responsible for the job. Only a job that has
// not reached a terminal state can change hands.
func (j *TranslationJob) AssignOwner(owner string) error {
	if j.status.IsFinalStatus() {
		return NewDomainError("cannot assign owner to job in status: " + j.status.String())
	}
	j.owner = owner
	return nil
}

// OwnedBy reports whether owner is responsible for the job.
func (j *TranslationJob) OwnedBy(owner string) bool {
	return j.owner != "" && j.owner == owner
}

// Result returns the result for a target language, or nil.
func (j *TranslationJob) Result(language string) *TranslationResult {
	for _, r := range j.results {
		if r.Language() == language {
			return r
		}
	}
	return nil
}

// Start 开始处理
func (j *TranslationJob) Start() error {
	if !j.status.CanTransitionTo(vo.JobStatusProcessing) {
		return NewDomainError("cannot start job in current status: " + j.status.String())
	}
	now := time.Now()
	j.status = vo.JobStatusProcessing
	j.startedAt = &now
	j.updatedAt = now
	return nil
}

// UpdateProgress 更新进度。进度单调不减，回退值被忽略。
func (j *TranslationJob) UpdateProgress(progress int) bool {
	if j.status.IsFinalStatus() {
		return false
	}
	if progress > 100 {
		progress = 100
	}
	if progress <= j.progress {
		return false
	}
	j.progress = progress
	j.updatedAt = time.Now()
	return true
}

// Finalize settles the job from its results: COMPLETED when at least one language
// succeeded, FAILED otherwise.
func (j *TranslationJob) Finalize() error {
	succeeded := 0
	var lastErr string
	for _, r := range j.results {
		switch r.Status() {
		case vo.ResultStatusCompleted:
			succeeded++
		case vo.ResultStatusFailed:
			lastErr = r.ErrorMessage()
		}
	}
	if succeeded > 0 {
		return j.Complete()
	}
	if lastErr == "" {
		lastErr = "all target languages failed"
	}
	return j.Fail(lastErr)
}

// Complete 完成任务
func (j *TranslationJob) Complete() error {
	if !j.status.CanTransitionTo(vo.JobStatusCompleted) {
		return NewDomainError("cannot complete job in current status: " + j.status.String())
	}
	now := time.Now()
	j.status = vo.JobStatusCompleted
	j.progress = 100
	j.completedAt = &now
	j.updatedAt = now
	return nil
}

// Fail 标记任务失败
func (j *TranslationJob) Fail(message string) error {
	if !j.status.CanTransitionTo(vo.JobStatusFailed) {
		return NewDomainError("cannot fail job in current status: " + j.status.String())
	}
	now := time.Now()
	j.status = vo.JobStatusFailed
	j.errorMessage = message
	j.completedAt = &now
	j.updatedAt = now
	for _, r := range j.results {
		if !r.Status().IsFinalStatus() {
			_ = r.Fail(message)
		}
	}
	return nil
}

// Cancel 取消任务，仅允许从非终态取消
func (j *TranslationJob) Cancel() error {
	if !j.status.CanTransitionTo(vo.JobStatusCancelled) {
		return NewDomainError("cannot cancel job in current status: " + j.status.String())
	}
	now := time.Now()
	j.status = vo.JobStatusCancelled
	j.completedAt = &now
	j.updatedAt = now
	for _, r := range j.results {
		if !r.Status().IsFinalStatus() {
			_ = r.Cancel()
		}
	}
	return nil
}

// Details 导出任务快照，用于持久化与内存仓储拷贝
func (j *TranslationJob) Details() TranslationJobDetails {
	results := make([]*TranslationResult, 0, len(j.results))
	for _, r := range j.results {
		d := r.Details()
		results = append(results, NewTranslationResultWithDetails(d))
	}
	return TranslationJobDetails{
		ID:              j.id,
		JobID:           j.jobID,
		MediaKey:        j.mediaKey,
		SourceLanguage:  j.sourceLanguage,
		TargetLanguages: j.TargetLanguages(),
		VoiceGender:     j.voiceGender,
		Owner:           j.owner,
		Status:          j.status,
		Progress:        j.progress,
		ErrorMessage:    j.errorMessage,
		CreatedAt:       j.createdAt,
		UpdatedAt:       j.updatedAt,
		StartedAt:       copyTime(j.startedAt),
		CompletedAt:     copyTime(j.completedAt),
		Results:         results,
	}
}

// Clone 深拷贝
func (j *TranslationJob) Clone() *TranslationJob {
	return NewTranslationJobWithDetails(j.Details())
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
