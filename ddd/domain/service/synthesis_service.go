package service

import (
	"context"
	"math"
	"path/filepath"
	"strings"

	"dubbing-service/ddd/domain/fault"
	"dubbing-service/ddd/domain/gateway"
	"dubbing-service/ddd/domain/vo"
	"dubbing-service/pkg/logger"
)

// SynthesisOptions 时长对齐参数
type SynthesisOptions struct {
	TempoMin  float64
	TempoMax  float64
	Tolerance float64
}

// Synthesis is the reconciled speech for one chunk.
type Synthesis struct {
	Path            string
	DurationSeconds float64
	Tempo           float64
	Voice           vo.VoiceProfile
	PlainText       bool
	// Overflow is set when the tempo needed to match the source fell outside the
	// allowed range and was clamped.
	Overflow bool
}

// SynthesisService 语音合成与时长对齐
type SynthesisService struct {
	synth  gateway.SpeechSynthesizer
	media  gateway.MediaTool
	voices *VoiceCatalog
	opts   SynthesisOptions
	retry  RetryPolicy
}

func NewSynthesisService(synth gateway.SpeechSynthesizer, media gateway.MediaTool, voices *VoiceCatalog, opts SynthesisOptions, retry RetryPolicy) *SynthesisService {
	if opts.TempoMin <= 0 {
		opts.TempoMin = 0.5
	}
	if opts.TempoMax <= 0 {
		opts.TempoMax = 2.0
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 0.05
	}
	if voices == nil {
		voices = NewVoiceCatalog(nil)
	}
	return &SynthesisService{synth: synth, media: media, voices: voices, opts: opts, retry: retry}
}

// Synthesize renders text in lang and stretches it toward targetSeconds. The
// reconciled file is written next to outPath.
func (s *SynthesisService) Synthesize(ctx context.Context, text, lang string, gender vo.Gender, targetSeconds float64, outPath string) (Synthesis, error) {
	voice := s.voices.Select(lang, gender)
	result := Synthesis{Voice: voice, Tempo: 1}

	rawPath := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + "_raw.wav"
	plain, err := s.render(ctx, text, voice, rawPath)
	if err != nil {
		return Synthesis{}, err
	}
	result.PlainText = plain

	info, err := s.media.Probe(ctx, rawPath)
	if err != nil {
		return Synthesis{}, err
	}
	result.Path = rawPath
	result.DurationSeconds = info.DurationSeconds

	if targetSeconds <= 0 || info.DurationSeconds <= 0 {
		return result, nil
	}
	ratio := info.DurationSeconds / targetSeconds
	if math.Abs(ratio-1) <= s.opts.Tolerance {
		return result, nil
	}

	tempo := ratio
	if tempo < s.opts.TempoMin || tempo > s.opts.TempoMax {
		tempo = math.Min(math.Max(tempo, s.opts.TempoMin), s.opts.TempoMax)
		result.Overflow = true
		logger.Warn("timing reconciliation overflow", map[string]interface{}{
			"kind":     string(fault.TimingReconciliationOverflow),
			"language": lang,
			"ratio":    ratio,
			"tempo":    tempo,
			"target":   targetSeconds,
		})
	}

	err = s.retry.Do(ctx, "change tempo", func(ctx context.Context) error {
		return s.media.ChangeTempo(ctx, rawPath, tempo, outPath)
	})
	if err != nil {
		return Synthesis{}, err
	}
	adjusted, err := s.media.Probe(ctx, outPath)
	if err != nil {
		return Synthesis{}, err
	}
	result.Path = outPath
	result.DurationSeconds = adjusted.DurationSeconds
	result.Tempo = tempo
	return result, nil
}

// render tries SSML first and falls back to plain text once if the markup cannot be
// built or the provider rejects it. It reports whether plain text was used.
func (s *SynthesisService) render(ctx context.Context, text string, voice vo.VoiceProfile, outPath string) (bool, error) {
	req := gateway.SynthesisRequest{Input: text, Language: voice.Language, Voice: voice.VoiceID}
	ssml, err := BuildSSML(text)
	if err != nil {
		logger.Warnf("ssml markup invalid, using plain text language=%s error=%v", voice.Language, err)
	} else {
		req.Input, req.SSML = ssml, true
	}

	err = s.call(ctx, req, outPath)
	if err == nil {
		return !req.SSML, nil
	}
	if !req.SSML || fault.KindOf(err) != fault.SynthesisMarkupRejected {
		return false, err
	}

	logger.Warnf("synthesis markup rejected, retrying with plain text voice=%s error=%v", voice.VoiceID, err)
	req.Input, req.SSML = sanitizeText(text), false
	if err := s.call(ctx, req, outPath); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SynthesisService) call(ctx context.Context, req gateway.SynthesisRequest, outPath string) error {
	err := s.retry.Do(ctx, "synthesize", func(ctx context.Context) error {
		return s.synth.Synthesize(ctx, req, outPath)
	})
	if err == nil || ctx.Err() != nil {
		return err
	}
	switch fault.KindOf(err) {
	case fault.SynthesisMarkupRejected, fault.SynthesisFailed:
		return err
	}
	return fault.Wrap(fault.SynthesisFailed, err, "voice %s", req.Voice)
}
