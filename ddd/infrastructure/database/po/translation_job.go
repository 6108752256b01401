package po

import "time"

// TranslationJob 配音任务持久化对象
type TranslationJob struct {
	BaseModel
	JobID           string     `gorm:"column:job_id;type:varchar(36);uniqueIndex" json:"job_id"`
	MediaKey        string     `gorm:"column:media_key;type:varchar(512)" json:"media_key"`
	SourceLanguage  string     `gorm:"column:source_language;type:varchar(16)" json:"source_language"`
	TargetLanguages string     `gorm:"column:target_languages;type:varchar(255)" json:"target_languages"` // 逗号分隔，保持提交顺序
	VoiceGender     string     `gorm:"column:voice_gender;type:varchar(16)" json:"voice_gender"`
	Owner           string     `gorm:"column:owner;type:varchar(128);index" json:"owner"`
	Status          string     `gorm:"column:status;type:varchar(20);index" json:"status"`
	Progress        int        `gorm:"column:progress;type:int" json:"progress"`
	ErrorMessage    string     `gorm:"column:error_message;type:text" json:"error_message"`
	StartedAt       *time.Time `gorm:"column:started_at" json:"started_at"`
	CompletedAt     *time.Time `gorm:"column:completed_at" json:"completed_at"`
}

// TableName 指定表名
func (TranslationJob) TableName() string {
	return "translation_jobs"
}

// TranslationResult 单语言结果持久化对象
type TranslationResult struct {
	BaseModel
	JobID            string  `gorm:"column:job_id;type:varchar(36);uniqueIndex:uk_job_language,priority:1" json:"job_id"`
	Language         string  `gorm:"column:language;type:varchar(16);uniqueIndex:uk_job_language,priority:2" json:"language"`
	Status           string  `gorm:"column:status;type:varchar(20)" json:"status"`
	OutputKey        string  `gorm:"column:output_key;type:varchar(512)" json:"output_key"`
	AudioKey         string  `gorm:"column:audio_key;type:varchar(512)" json:"audio_key"`
	TranslationScore float64 `gorm:"column:translation_score" json:"translation_score"`
	AudioScore       float64 `gorm:"column:audio_score" json:"audio_score"`
	ProcessingMillis int64   `gorm:"column:processing_ms" json:"processing_ms"`
	ErrorMessage     string  `gorm:"column:error_message;type:text" json:"error_message"`
}

// TableName 指定表名
func (TranslationResult) TableName() string {
	return "translation_results"
}
