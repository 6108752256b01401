package vo

// ResultStatus is the state of one target language within a job.
type ResultStatus string

const (
	ResultStatusPending      ResultStatus = "PENDING"
	ResultStatusTranslating  ResultStatus = "TRANSLATING"
	ResultStatusSynthesizing ResultStatus = "SYNTHESIZING"
	ResultStatusAssembling   ResultStatus = "ASSEMBLING"
	ResultStatusCompleted    ResultStatus = "COMPLETED"
	ResultStatusFailed       ResultStatus = "FAILED"
	ResultStatusCancelled    ResultStatus = "CANCELLED"
)

func (s ResultStatus) IsValid() bool {
	switch s {
	case ResultStatusPending, ResultStatusTranslating, ResultStatusSynthesizing, ResultStatusAssembling,
		ResultStatusCompleted, ResultStatusFailed, ResultStatusCancelled:
		return true
	default:
		return false
	}
}

func (s ResultStatus) String() string {
	return string(s)
}

func (s ResultStatus) IsFinalStatus() bool {
	return s == ResultStatusCompleted || s == ResultStatusFailed || s == ResultStatusCancelled
}

// CanTransitionTo follows TRANSLATING -> SYNTHESIZING -> ASSEMBLING -> COMPLETED.
// Any non-final state may fail or be cancelled.
func (s ResultStatus) CanTransitionTo(target ResultStatus) bool {
	if s.IsFinalStatus() {
		return false
	}
	if target == ResultStatusFailed || target == ResultStatusCancelled {
		return true
	}
	switch s {
	case ResultStatusPending:
		return target == ResultStatusTranslating
	case ResultStatusTranslating:
		return target == ResultStatusSynthesizing
	case ResultStatusSynthesizing:
		return target == ResultStatusAssembling
	case ResultStatusAssembling:
		return target == ResultStatusCompleted
	default:
		return false
	}
}
