package speech

import (
	"context"
	"html"
	"time"

	"cloud.google.com/go/translate"
	"golang.org/x/text/language"

	"dubbing-service/ddd/domain/fault"
	"dubbing-service/ddd/domain/gateway"
	"dubbing-service/ddd/domain/vo"
	"dubbing-service/pkg/config"
)

// translateAPI is the part of the Translation v2 client the translator uses.
type translateAPI interface {
	Translate(ctx context.Context, inputs []string, target language.Tag, opts *translate.Options) ([]translate.Translation, error)
	Close() error
}

// GoogleTranslator translates plain text with the Translation v2 API.
type GoogleTranslator struct {
	apiKey  string
	timeout time.Duration
	client  *lazyClient[translateAPI]
}

func NewGoogleTranslator(cfg config.SpeechConfig) *GoogleTranslator {
	return newGoogleTranslator(cfg, func(ctx context.Context) (translateAPI, error) {
		return translate.NewClient(ctx, clientOptions(cfg.APIKey, cfg.TranslateEndpoint)...)
	})
}

func newGoogleTranslator(cfg config.SpeechConfig, dial func(ctx context.Context) (translateAPI, error)) *GoogleTranslator {
	return &GoogleTranslator{
		apiKey:  cfg.APIKey,
		timeout: cfg.RequestTimeout,
		client:  &lazyClient[translateAPI]{dial: dial},
	}
}

var _ gateway.TranslationEngine = (*GoogleTranslator)(nil)

func (t *GoogleTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	dst, err := language.Parse(vo.BaseLanguage(target))
	if err != nil {
		return "", fault.Wrap(fault.UnsupportedLanguagePair, err, "target %q", target)
	}
	opts := &translate.Options{Format: translate.Text}
	if src := vo.BaseLanguage(source); src != "" && src != vo.AutoLanguage {
		tag, err := language.Parse(src)
		if err != nil {
			return "", fault.Wrap(fault.UnsupportedLanguagePair, err, "source %q", source)
		}
		opts.Source = tag
	}

	client, err := t.client.get(ctx, fault.TranslationFailed)
	if err != nil {
		return "", err
	}
	callCtx, cancel := withTimeout(ctx, t.timeout)
	defer cancel()
	out, err := client.Translate(callCtx, []string{text}, dst, opts)
	if err != nil {
		err = classify(ctx, callCtx, fault.TranslationFailed, t.apiKey, "translate", err)
		if rejectedInput(err, "language") {
			return "", fault.Wrap(fault.UnsupportedLanguagePair, err, "%s:%s", opts.Source, dst)
		}
		return "", err
	}
	if len(out) == 0 {
		return "", fault.New(fault.TranslationFailed, "empty translation response")
	}
	// Format text still leaves HTML entities in some responses.
	return html.UnescapeString(out[0].Text), nil
}

func (t *GoogleTranslator) Close() error {
	return t.client.close()
}
