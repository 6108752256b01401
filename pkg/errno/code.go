package errno

import (
	"errors"
	"fmt"
)

// code=0 请求成功
// code=4xx 客户端请求错误
// code=5xx 服务器端错误
// code=2xxxx 业务处理错误码

type Errno struct {
	Code    int
	Message string
}

// Error 实现error接口
func (e *Errno) Error() string {
	return e.Message
}

// BizError carries an Errno plus request-specific detail.
type BizError struct {
	*Errno
	Detail string
}

func (e *BizError) Error() string {
	if e.Detail == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

func (e *BizError) Unwrap() error { return e.Errno }

// NewBizError 创建业务错误
func NewBizError(no *Errno, detail string) *BizError {
	return &BizError{Errno: no, Detail: detail}
}

// Decode extracts the code and message to report for err.
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}
	var biz *BizError
	if errors.As(err, &biz) {
		return biz.Code, biz.Error()
	}
	var no *Errno
	if errors.As(err, &no) {
		return no.Code, no.Message
	}
	return ErrInternalServer.Code, err.Error()
}

var (
	OK = &Errno{Code: 200, Message: "Success"}

	ErrInvalidParam = &Errno{Code: 400, Message: "Invalid parameter"}
	ErrUnauthorized = &Errno{Code: 401, Message: "Unauthorized"}
	ErrNotFound     = &Errno{Code: 404, Message: "Not found"}

	ErrInternalServer = &Errno{Code: 500, Message: "Internal server error"}
	ErrDatabase       = &Errno{Code: 501, Message: "Database error"}
	ErrUnknown        = &Errno{Code: 510, Message: "Unknown error"}

	// 业务错误码
	ErrMissingParam = &Errno{Code: 20001, Message: "Missing required parameter"}
	// 配音任务错误码
	ErrJobNotFound          = &Errno{Code: 20008, Message: "Dubbing job not found"}
	ErrInvalidJobStatus     = &Errno{Code: 20009, Message: "Invalid job status"}
	ErrQueueFull            = &Errno{Code: 20012, Message: "Job queue is full"}
	ErrMediaKeyRequired     = &Errno{Code: 20016, Message: "Media key is required"}
	ErrMediaNotFound        = &Errno{Code: 20017, Message: "Media object not found"}
	ErrTargetLanguages      = &Errno{Code: 20018, Message: "At least one target language is required"}
	ErrUnsupportedLanguage  = &Errno{Code: 20019, Message: "Unsupported language"}
	ErrDuplicateLanguage    = &Errno{Code: 20020, Message: "Duplicate target language"}
	ErrInvalidVoiceGender   = &Errno{Code: 20021, Message: "Invalid voice gender"}
	ErrStorageUnavailable   = &Errno{Code: 20022, Message: "Object storage unavailable"}
	ErrJobAlreadyTerminated = &Errno{Code: 20023, Message: "Job already in a terminal state"}
)
