package speech

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"dubbing-service/ddd/domain/gateway"
	"dubbing-service/pkg/config"
)

// Provider bundles the three speech capabilities a pipeline needs.
type Provider struct {
	Recognizer  gateway.SpeechRecognizer
	Translator  gateway.TranslationEngine
	Synthesizer gateway.SpeechSynthesizer
}

// NewProvider selects adapters by speech.provider: "google" uses Google for every
// capability; "whisper" transcribes locally with whisper.cpp and uses Google for
// translation and synthesis.
func NewProvider(cfg config.SpeechConfig) (*Provider, error) {
	p := &Provider{
		Translator:  NewGoogleTranslator(cfg),
		Synthesizer: NewGoogleSynthesizer(cfg),
	}
	switch strings.ToLower(cfg.Provider) {
	case "", "google":
		p.Recognizer = NewGoogleRecognizer(cfg)
	case "whisper", "whispercpp":
		if cfg.WhisperModel == "" {
			return nil, fmt.Errorf("speech.whisper_model is required for provider %q", cfg.Provider)
		}
		p.Recognizer = NewWhisperRecognizer(cfg)
	default:
		return nil, fmt.Errorf("unknown speech provider %q", cfg.Provider)
	}
	return p, nil
}

// Close releases any SDK clients the adapters dialled.
func (p *Provider) Close() error {
	var errs []error
	for _, c := range []any{p.Recognizer, p.Translator, p.Synthesizer} {
		if closer, ok := c.(io.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}
