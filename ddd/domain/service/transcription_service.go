package service

import (
	"context"
	"strings"

	"dubbing-service/ddd/domain/entity"
	"dubbing-service/ddd/domain/fault"
	"dubbing-service/ddd/domain/gateway"
	"dubbing-service/ddd/domain/vo"
)

// Transcript is the chosen recognition hypothesis for one chunk.
type Transcript struct {
	Text             string
	Confidence       float64
	DetectedLanguage string
}

// TranscriptionService 语音识别适配：请求多个候选并优先保留专有名词
type TranscriptionService struct {
	recognizer      gateway.SpeechRecognizer
	nouns           ProperNounDetector
	maxAlternatives int
	retry           RetryPolicy
}

func NewTranscriptionService(recognizer gateway.SpeechRecognizer, nouns ProperNounDetector, maxAlternatives int, retry RetryPolicy) *TranscriptionService {
	if maxAlternatives <= 0 {
		maxAlternatives = 3
	}
	return &TranscriptionService{recognizer: recognizer, nouns: nouns, maxAlternatives: maxAlternatives, retry: retry}
}

// Transcribe never returns placeholder text: any failure or empty output is a
// TranscriptionUnavailable error.
func (s *TranscriptionService) Transcribe(ctx context.Context, chunk *entity.AudioChunk, languageHint string) (Transcript, error) {
	hint := vo.LocaleFor(languageHint)
	if hint == "" {
		hint = vo.AutoLanguage
	}

	var rec *gateway.Recognition
	err := s.retry.Do(ctx, "transcribe", func(ctx context.Context) error {
		var err error
		rec, err = s.recognizer.Recognize(ctx, chunk.Path, hint, s.maxAlternatives)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return Transcript{}, ctx.Err()
		}
		if fault.KindOf(err) == fault.TranscriptionUnavailable {
			return Transcript{}, err
		}
		return Transcript{}, fault.Wrap(fault.TranscriptionUnavailable, err, "chunk %d", chunk.Index)
	}
	if rec == nil || len(rec.Alternatives) == 0 {
		return Transcript{}, fault.New(fault.TranscriptionUnavailable, "chunk %d: no alternatives", chunk.Index)
	}

	best := RankAlternatives(rec.Alternatives, s.nouns)
	if best < 0 {
		return Transcript{}, fault.New(fault.TranscriptionUnavailable, "chunk %d: empty transcript", chunk.Index)
	}
	conf := rec.Alternatives[best].Confidence
	if conf <= 0 {
		conf = rec.Alternatives[0].Confidence
	}
	return Transcript{
		Text:             strings.TrimSpace(rec.Alternatives[best].Text),
		Confidence:       conf,
		DetectedLanguage: rec.DetectedLanguage,
	}, nil
}

// RankAlternatives returns the index of the non-empty alternative with the most
// capitalized mid-sentence non-common words. Ties keep the provider's order.
// It returns -1 when every alternative is empty.
func RankAlternatives(alts []gateway.Alternative, nouns ProperNounDetector) int {
	best, bestScore := -1, -1
	for i, alt := range alts {
		if strings.TrimSpace(alt.Text) == "" {
			continue
		}
		score := nouns.Score(alt.Text)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}
