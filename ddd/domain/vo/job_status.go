package vo

// JobStatus 配音任务状态
type JobStatus string

const (
	// JobStatusPending 待处理
	JobStatusPending JobStatus = "PENDING"
	// JobStatusProcessing 处理中
	JobStatusProcessing JobStatus = "PROCESSING"
	// JobStatusCompleted 至少一个目标语言成功
	JobStatusCompleted JobStatus = "COMPLETED"
	// JobStatusFailed 所有目标语言失败或任务级错误
	JobStatusFailed JobStatus = "FAILED"
	// JobStatusCancelled 已取消
	JobStatusCancelled JobStatus = "CANCELLED"
)

// IsValid 检查状态是否有效
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

func (s JobStatus) String() string {
	return string(s)
}

// IsFinalStatus 检查是否为最终状态
func (s JobStatus) IsFinalStatus() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// CanTransitionTo 检查是否可以转换到目标状态
func (s JobStatus) CanTransitionTo(target JobStatus) bool {
	switch s {
	case JobStatusPending:
		return target == JobStatusProcessing || target == JobStatusFailed || target == JobStatusCancelled
	case JobStatusProcessing:
		return target == JobStatusCompleted || target == JobStatusFailed || target == JobStatusCancelled
	default:
		return false
	}
}
