// Package fault classifies pipeline failures. A Kind decides whether a failure is
// retried, whether it ends the whole job or one language, and what the user sees.
package fault

import (
	"errors"
	"fmt"
)

// Kind 错误分类
type Kind string

const (
	MediaUnreadable              Kind = "MEDIA_UNREADABLE"
	NoAudioContent               Kind = "NO_AUDIO_CONTENT"
	MediaToolError               Kind = "MEDIA_TOOL_ERROR"
	TranscriptionUnavailable     Kind = "TRANSCRIPTION_UNAVAILABLE"
	TranslationFailed            Kind = "TRANSLATION_FAILED"
	UnsupportedLanguagePair      Kind = "UNSUPPORTED_LANGUAGE_PAIR"
	SynthesisMarkupRejected      Kind = "SYNTHESIS_MARKUP_REJECTED"
	SynthesisFailed              Kind = "SYNTHESIS_FAILED"
	TimingReconciliationOverflow Kind = "TIMING_RECONCILIATION_OVERFLOW"
	AssemblyFailed               Kind = "ASSEMBLY_FAILED"
	StorageError                 Kind = "STORAGE_ERROR"
	Cancelled                    Kind = "CANCELLED"
	Interrupted                  Kind = "INTERRUPTED"
	// Internal is a defect in the service itself, such as a recovered panic.
	Internal                     Kind = "INTERNAL_ERROR"
)

var userMessages = map[Kind]string{
	MediaUnreadable:          "The uploaded file could not be read as media.",
	NoAudioContent:           "The video has no audio track to translate.",
	MediaToolError:           "Media processing failed.",
	TranscriptionUnavailable: "Speech could not be transcribed.",
	TranslationFailed:        "Translation service failed.",
	UnsupportedLanguagePair:  "This language combination is not supported.",
	SynthesisFailed:          "Speech synthesis failed.",
	AssemblyFailed:           "The dubbed video could not be assembled.",
	StorageError:             "Storage is unavailable.",
	Cancelled:                "The job was cancelled.",
	Interrupted:              "Processing was interrupted by a service restart.",
	Internal:                 "Unexpected processing error.",
}

// Error 领域错误，Detail 保存原始输出（如 ffmpeg stderr），只写日志不返回给用户
type Error struct {
	Kind      Kind
	Message   string
	Detail    string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, fault.New(fault.NoAudioContent, ""))
// and errors.Is(err, fault.ErrNoAudioContent) both work.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind && t.Message == "" && t.Err == nil
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrMediaUnreadable          = &Error{Kind: MediaUnreadable}
	ErrNoAudioContent           = &Error{Kind: NoAudioContent}
	ErrMediaToolError           = &Error{Kind: MediaToolError}
	ErrTranscriptionUnavailable = &Error{Kind: TranscriptionUnavailable}
	ErrTranslationFailed        = &Error{Kind: TranslationFailed}
	ErrUnsupportedLanguagePair  = &Error{Kind: UnsupportedLanguagePair}
	ErrSynthesisMarkupRejected  = &Error{Kind: SynthesisMarkupRejected}
	ErrSynthesisFailed          = &Error{Kind: SynthesisFailed}
	ErrTimingOverflow           = &Error{Kind: TimingReconciliationOverflow}
	ErrAssemblyFailed           = &Error{Kind: AssemblyFailed}
	ErrStorage                  = &Error{Kind: StorageError}
	ErrCancelled                = &Error{Kind: Cancelled}
	ErrInternal                 = &Error{Kind: Internal}
)

// New 创建错误
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap 包装底层错误
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Transient marks an external-call failure as retryable.
func Transient(kind Kind, err error, format string, args ...interface{}) *Error {
	e := Wrap(kind, err, format, args...)
	e.Transient = true
	return e
}

// WithDetail attaches raw tool output.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Transient
	}
	return false
}

// IsJobFatal reports whether err ends the whole job rather than one language.
func IsJobFatal(err error) bool {
	switch KindOf(err) {
	case MediaUnreadable, NoAudioContent:
		return true
	}
	return false
}

// UserMessage renders "KIND: human message" without raw tool output.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return fmt.Sprintf("%s: %s", Internal, userMessages[Internal])
	}
	msg, ok := userMessages[e.Kind]
	if !ok {
		msg = e.Message
	}
	if e.Kind == UnsupportedLanguagePair && e.Message != "" {
		msg = msg + " (" + e.Message + ")"
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}
