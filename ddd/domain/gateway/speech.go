package gateway

import (
	"context"

	"dubbing-service/ddd/domain/vo"
)

// Alternative 一个识别候选
type Alternative struct {
	Text       string
	Confidence float64
}

// Recognition 识别结果，候选按服务端排序
type Recognition struct {
	Alternatives     []Alternative
	DetectedLanguage string
}

// SpeechRecognizer 语音识别能力。languageHint 为 "auto" 时由服务端检测语言。
type SpeechRecognizer interface {
	Recognize(ctx context.Context, audioPath, languageHint string, maxAlternatives int) (*Recognition, error)
}

// TranslationEngine 文本翻译能力
type TranslationEngine interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// SynthesisRequest 语音合成请求
type SynthesisRequest struct {
	Input    string
	SSML     bool
	Language string
	Voice    string
}

// SpeechSynthesizer renders speech to a WAV file at outPath. A provider that refuses
// SSML returns fault.SynthesisMarkupRejected.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest, outPath string) error
}

// GenderDetector estimates the dominant speaker gender from PCM WAV audio.
type GenderDetector interface {
	DetectGender(ctx context.Context, wavPath string) (vo.Gender, error)
}
