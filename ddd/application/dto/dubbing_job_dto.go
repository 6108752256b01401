package dto

import (
	"time"

	"dubbing-service/ddd/domain/entity"
)

// JobDTO 配音任务数据传输对象
type JobDTO struct {
	JobID           string      `json:"job_id"`
	MediaKey        string      `json:"media_key"`
	SourceLanguage  string      `json:"source_language"`
	TargetLanguages []string    `json:"target_languages"`
	VoiceGender     string      `json:"voice_gender,omitempty"`
	Status          string      `json:"status"`
	Progress        int         `json:"progress"`
	ErrorMessage    string      `json:"error_message,omitempty"`
	CancelRequested bool        `json:"cancel_requested,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	CompletedAt     *time.Time  `json:"completed_at,omitempty"`
	Results         []ResultDTO `json:"results"`
}

// ResultDTO 单语言结果
type ResultDTO struct {
	Language         string  `json:"language"`
	Status           string  `json:"status"`
	OutputKey        string  `json:"output_key,omitempty"`
	AudioKey         string  `json:"audio_key,omitempty"`
	OutputURL        string  `json:"output_url,omitempty"`
	AudioURL         string  `json:"audio_url,omitempty"`
	TranslationScore float64 `json:"translation_score"`
	AudioScore       float64 `json:"audio_score"`
	ProcessingMillis int64   `json:"processing_ms"`
	ErrorMessage     string  `json:"error_message,omitempty"`
}

// JobListDTO 任务列表
type JobListDTO struct {
	Jobs       []*JobDTO `json:"jobs"`
	Total      int64     `json:"total"`
	Page       int       `json:"page"`
	Size       int       `json:"size"`
	TotalPages int       `json:"total_pages"`
}

// NewJobDTO 从实体创建DTO，结果按目标语言声明顺序排列
func NewJobDTO(job *entity.TranslationJob) *JobDTO {
	if job == nil {
		return nil
	}
	out := &JobDTO{
		JobID:           job.JobID(),
		MediaKey:        job.MediaKey(),
		SourceLanguage:  job.SourceLanguage(),
		TargetLanguages: job.TargetLanguages(),
		VoiceGender:     string(job.VoiceGender()),
		Status:          job.Status().String(),
		Progress:        job.Progress(),
		ErrorMessage:    job.ErrorMessage(),
		CreatedAt:       job.CreatedAt(),
		UpdatedAt:       job.UpdatedAt(),
		StartedAt:       job.StartedAt(),
		CompletedAt:     job.CompletedAt(),
		Results:         make([]ResultDTO, 0, len(job.Results())),
	}
	for _, r := range job.Results() {
		out.Results = append(out.Results, ResultDTO{
			Language:         r.Language(),
			Status:           r.Status().String(),
			OutputKey:        r.OutputKey(),
			AudioKey:         r.AudioKey(),
			TranslationScore: r.TranslationScore(),
			AudioScore:       r.AudioScore(),
			ProcessingMillis: r.ProcessingDuration().Milliseconds(),
			ErrorMessage:     r.ErrorMessage(),
		})
	}
	return out
}

// NewJobListDTO 构建分页结果
func NewJobListDTO(jobs []*JobDTO, total int64, page, size int) *JobListDTO {
	pages := 0
	if size > 0 {
		pages = int((total + int64(size) - 1) / int64(size))
	}
	if jobs == nil {
		jobs = []*JobDTO{}
	}
	return &JobListDTO{Jobs: jobs, Total: total, Page: page, Size: size, TotalPages: pages}
}
