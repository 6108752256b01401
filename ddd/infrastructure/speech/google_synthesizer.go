package speech

import (
	"context"
	"os"
	"time"

	ttsapi "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"

	"dubbing-service/ddd/domain/fault"
	"dubbing-service/ddd/domain/gateway"
	"dubbing-service/pkg/config"
)

// synthesisSampleRate is the LINEAR16 output rate requested from Text-to-Speech.
const synthesisSampleRate = 24000

// synthesizeAPI is the part of the Text-to-Speech client the synthesizer uses.
type synthesizeAPI interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
	Close() error
}

// GoogleSynthesizer renders speech with Text-to-Speech v1 as 24 kHz LINEAR16 WAV.
type GoogleSynthesizer struct {
	apiKey  string
	timeout time.Duration
	client  *lazyClient[synthesizeAPI]
}

func NewGoogleSynthesizer(cfg config.SpeechConfig) *GoogleSynthesizer {
	return newGoogleSynthesizer(cfg, func(ctx context.Context) (synthesizeAPI, error) {
		return ttsapi.NewClient(ctx, clientOptions(cfg.APIKey, cfg.SynthesizeEndpoint)...)
	})
}

func newGoogleSynthesizer(cfg config.SpeechConfig, dial func(ctx context.Context) (synthesizeAPI, error)) *GoogleSynthesizer {
	return &GoogleSynthesizer{
		apiKey:  cfg.APIKey,
		timeout: cfg.RequestTimeout,
		client:  &lazyClient[synthesizeAPI]{dial: dial},
	}
}

var _ gateway.SpeechSynthesizer = (*GoogleSynthesizer)(nil)

func (s *GoogleSynthesizer) Synthesize(ctx context.Context, req gateway.SynthesisRequest, outPath string) error {
	input := &texttospeechpb.SynthesisInput{}
	if req.SSML {
		input.InputSource = &texttospeechpb.SynthesisInput_Ssml{Ssml: req.Input}
	} else {
		input.InputSource = &texttospeechpb.SynthesisInput_Text{Text: req.Input}
	}

	client, err := s.client.get(ctx, fault.SynthesisFailed)
	if err != nil {
		return err
	}
	callCtx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := client.SynthesizeSpeech(callCtx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: input,
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: req.Language,
			Name:         req.Voice,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
			SampleRateHertz: synthesisSampleRate,
		},
	})
	if err != nil {
		err = classify(ctx, callCtx, fault.SynthesisFailed, s.apiKey, "synthesize", err)
		if req.SSML && rejectedInput(err, "ssml") {
			return fault.Wrap(fault.SynthesisMarkupRejected, err, "voice %s", req.Voice)
		}
		return err
	}

	audio := resp.GetAudioContent()
	if len(audio) == 0 {
		return fault.New(fault.SynthesisFailed, "empty audio for voice %s", req.Voice)
	}
	if err := os.WriteFile(outPath, audio, 0o644); err != nil {
		return fault.Wrap(fault.SynthesisFailed, err, "write %s", outPath)
	}
	return nil
}

func (s *GoogleSynthesizer) Close() error {
	return s.client.close()
}
