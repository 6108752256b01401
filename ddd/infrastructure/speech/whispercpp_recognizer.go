package speech

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"dubbing-service/ddd/domain/fault"
	"dubbing-service/ddd/domain/gateway"
	"dubbing-service/ddd/domain/vo"
	"dubbing-service/pkg/config"
)

// whisperConfidence is reported for whisper.cpp output, which carries no
// utterance-level confidence.
const whisperConfidence = 0.8

// WhisperRecognizer runs a local whisper.cpp binary. It returns a single alternative.
type WhisperRecognizer struct {
	bin   string
	model string
}

func NewWhisperRecognizer(cfg config.SpeechConfig) *WhisperRecognizer {
	bin := cfg.WhisperBinary
	if bin == "" {
		bin = "whisper-cli"
	}
	return &WhisperRecognizer{bin: bin, model: cfg.WhisperModel}
}

var _ gateway.SpeechRecognizer = (*WhisperRecognizer)(nil)

type whisperOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Text string `json:"text"`
	} `json:"transcription"`
}

func (w *WhisperRecognizer) Recognize(ctx context.Context, audioPath, languageHint string, _ int) (*gateway.Recognition, error) {
	lang := vo.BaseLanguage(languageHint)
	if lang == "" {
		lang = vo.AutoLanguage
	}
	outPrefix := strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".whisper"
	args := []string{"-m", w.model, "-f", audioPath, "-l", lang, "-oj", "-of", outPrefix, "-np"}

	b, err := exec.CommandContext(ctx, w.bin, args...).CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var ee *exec.Error
		if errors.As(err, &ee) {
			return nil, fault.Wrap(fault.TranscriptionUnavailable, err, "whisper.cpp not runnable")
		}
		return nil, fault.Wrap(fault.TranscriptionUnavailable, err, "whisper.cpp failed").WithDetail(truncate(string(b), 2000))
	}
	defer os.Remove(outPrefix + ".json")

	jb, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return nil, fault.Wrap(fault.TranscriptionUnavailable, err, "read whisper output")
	}
	return parseWhisperOutput(jb)
}

func parseWhisperOutput(jb []byte) (*gateway.Recognition, error) {
	var out whisperOutput
	if err := json.Unmarshal(jb, &out); err != nil {
		return nil, fault.Wrap(fault.TranscriptionUnavailable, err, "decode whisper output")
	}
	var parts []string
	for _, seg := range out.Transcription {
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	rec := &gateway.Recognition{DetectedLanguage: vo.NormalizeLanguage(out.Result.Language)}
	if len(parts) > 0 {
		rec.Alternatives = []gateway.Alternative{{Text: strings.Join(parts, " "), Confidence: whisperConfidence}}
	}
	return rec, nil
}
