package speech

import (
	"context"
	"os"
	"strings"
	"time"

	speechapi "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"

	"dubbing-service/ddd/domain/fault"
	"dubbing-service/ddd/domain/gateway"
	"dubbing-service/ddd/domain/vo"
	"dubbing-service/pkg/config"
)

// detectionCandidates are offered to the recognizer when the source language is "auto".
var detectionCandidates = []string{"hi-IN", "ta-IN", "te-IN", "bn-IN", "mr-IN", "ur-IN", "es-ES", "fr-FR"}

// recognizeAPI is the part of the Speech-to-Text client the recognizer uses.
type recognizeAPI interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	Close() error
}

// GoogleRecognizer transcribes mono 16 kHz LINEAR16 WAV chunks.
type GoogleRecognizer struct {
	apiKey  string
	timeout time.Duration
	client  *lazyClient[recognizeAPI]
}

func NewGoogleRecognizer(cfg config.SpeechConfig) *GoogleRecognizer {
	return newGoogleRecognizer(cfg, func(ctx context.Context) (recognizeAPI, error) {
		return speechapi.NewClient(ctx, clientOptions(cfg.APIKey, cfg.RecognizeEndpoint)...)
	})
}

func newGoogleRecognizer(cfg config.SpeechConfig, dial func(ctx context.Context) (recognizeAPI, error)) *GoogleRecognizer {
	return &GoogleRecognizer{
		apiKey:  cfg.APIKey,
		timeout: cfg.RequestTimeout,
		client:  &lazyClient[recognizeAPI]{dial: dial},
	}
}

var _ gateway.SpeechRecognizer = (*GoogleRecognizer)(nil)

func (r *GoogleRecognizer) Recognize(ctx context.Context, audioPath, languageHint string, maxAlternatives int) (*gateway.Recognition, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fault.Wrap(fault.TranscriptionUnavailable, err, "read %s", audioPath)
	}
	client, err := r.client.get(ctx, fault.TranscriptionUnavailable)
	if err != nil {
		return nil, err
	}

	cfg := &speechpb.RecognitionConfig{
		Encoding:                   speechpb.RecognitionConfig_LINEAR16,
		SampleRateHertz:            16000,
		MaxAlternatives:            int32(maxAlternatives),
		EnableAutomaticPunctuation: true,
	}
	if languageHint == "" || languageHint == vo.AutoLanguage {
		cfg.LanguageCode = "en-US"
		cfg.AlternativeLanguageCodes = detectionCandidates
	} else {
		cfg.LanguageCode = languageHint
	}

	callCtx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	resp, err := client.Recognize(callCtx, &speechpb.RecognizeRequest{
		Config: cfg,
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	})
	if err != nil {
		return nil, classify(ctx, callCtx, fault.TranscriptionUnavailable, r.apiKey, "recognize", err)
	}
	return mergeResults(resp.GetResults()), nil
}

// Close releases the underlying client if it was dialled.
func (r *GoogleRecognizer) Close() error {
	return r.client.close()
}

// mergeResults joins consecutive result segments. Alternative i is the
// concatenation of every segment's i-th alternative (or its best one when the
// segment has fewer), with the mean confidence.
func mergeResults(results []*speechpb.SpeechRecognitionResult) *gateway.Recognition {
	out := &gateway.Recognition{}
	width := 0
	for _, res := range results {
		if n := len(res.GetAlternatives()); n > width {
			width = n
		}
		if out.DetectedLanguage == "" && res.GetLanguageCode() != "" {
			out.DetectedLanguage = vo.NormalizeLanguage(res.GetLanguageCode())
		}
	}
	for i := 0; i < width; i++ {
		var parts []string
		var conf float64
		var n int
		for _, res := range results {
			alts := res.GetAlternatives()
			if len(alts) == 0 {
				continue
			}
			alt := alts[0]
			if i < len(alts) {
				alt = alts[i]
			}
			if t := strings.TrimSpace(alt.GetTranscript()); t != "" {
				parts = append(parts, t)
			}
			conf += float64(alt.GetConfidence())
			n++
		}
		if n > 0 {
			conf /= float64(n)
		}
		out.Alternatives = append(out.Alternatives, gateway.Alternative{Text: strings.Join(parts, " "), Confidence: conf})
	}
	return out
}
