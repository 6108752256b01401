package speech

import (
	"context"
	"errors"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"cloud.google.com/go/translate"
	"github.com/googleapis/gax-go/v2"
	"golang.org/x/text/language"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"dubbing-service/ddd/domain/fault"
	"dubbing-service/ddd/domain/gateway"
	"dubbing-service/pkg/config"
)

type fakeRecognizeAPI struct {
	resp   *speechpb.RecognizeResponse
	err    error
	last   *speechpb.RecognizeRequest
	closed bool
}

func (f *fakeRecognizeAPI) Recognize(ctx context.Context, req *speechpb.RecognizeRequest, _ ...gax.CallOption) (*speechpb.RecognizeResponse, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeRecognizeAPI) Close() error {
	f.closed = true
	return nil
}

type fakeTranslateAPI struct {
	out    []translate.Translation
	err    error
	target language.Tag
	opts   *translate.Options
	block  bool
	closed bool
}

func (f *fakeTranslateAPI) Translate(ctx context.Context, inputs []string, target language.Tag, opts *translate.Options) ([]translate.Translation, error) {
	f.target, f.opts = target, opts
	if f.block {
		<-ctx.Done()
		return nil, status.Error(codes.DeadlineExceeded, ctx.Err().Error())
	}
	return f.out, f.err
}

func (f *fakeTranslateAPI) Close() error {
	f.closed = true
	return nil
}

type fakeSynthesizeAPI struct {
	audio []byte
	err   error
	last  *texttospeechpb.SynthesizeSpeechRequest
}

func (f *fakeSynthesizeAPI) SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, _ ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &texttospeechpb.SynthesizeSpeechResponse{AudioContent: f.audio}, nil
}

func (f *fakeSynthesizeAPI) Close() error { return nil }

func speechConfig() config.SpeechConfig {
	return config.SpeechConfig{APIKey: "secret-key", RequestTimeout: 2 * time.Second}
}

func recognizerWith(api *fakeRecognizeAPI) *GoogleRecognizer {
	return newGoogleRecognizer(speechConfig(), func(context.Context) (recognizeAPI, error) { return api, nil })
}

func translatorWith(cfg config.SpeechConfig, api *fakeTranslateAPI) *GoogleTranslator {
	return newGoogleTranslator(cfg, func(context.Context) (translateAPI, error) { return api, nil })
}

func synthesizerWith(api *fakeSynthesizeAPI) *GoogleSynthesizer {
	return newGoogleSynthesizer(speechConfig(), func(context.Context) (synthesizeAPI, error) { return api, nil })
}

func writeChunk(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "chunk_000.wav")
	if err := os.WriteFile(p, []byte("RIFF....WAVE"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func alt(text string, conf float32) *speechpb.SpeechRecognitionAlternative {
	return &speechpb.SpeechRecognitionAlternative{Transcript: text, Confidence: conf}
}

func TestRecognizeMergesSegments(t *testing.T) {
	api := &fakeRecognizeAPI{resp: &speechpb.RecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{alt("We met Priya", 0.9), alt("We met priya", 0.7)}, LanguageCode: "hi-in"},
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{alt(" in Mumbai.", 0.7)}},
	}}}

	rec, err := recognizerWith(api).Recognize(context.Background(), writeChunk(t), "auto", 2)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if rec.DetectedLanguage != "hi-IN" || len(rec.Alternatives) != 2 {
		t.Fatalf("rec = %+v", rec)
	}
	if rec.Alternatives[0].Text != "We met Priya in Mumbai." || math.Abs(rec.Alternatives[0].Confidence-0.8) > 1e-6 {
		t.Fatalf("first = %+v", rec.Alternatives[0])
	}
	if rec.Alternatives[1].Text != "We met priya in Mumbai." {
		t.Fatalf("second = %+v", rec.Alternatives[1])
	}

	cfg := api.last.GetConfig()
	if cfg.GetLanguageCode() != "en-US" || len(cfg.GetAlternativeLanguageCodes()) == 0 || cfg.GetMaxAlternatives() != 2 {
		t.Fatalf("config = %+v", cfg)
	}
	if cfg.GetEncoding() != speechpb.RecognitionConfig_LINEAR16 || cfg.GetSampleRateHertz() != 16000 {
		t.Fatalf("audio format = %v/%d", cfg.GetEncoding(), cfg.GetSampleRateHertz())
	}
	if string(api.last.GetAudio().GetContent()) != "RIFF....WAVE" {
		t.Fatalf("audio content = %q", api.last.GetAudio().GetContent())
	}
}

func TestRecognizeEmptyResults(t *testing.T) {
	api := &fakeRecognizeAPI{resp: &speechpb.RecognizeResponse{}}
	rec, err := recognizerWith(api).Recognize(context.Background(), writeChunk(t), "en-US", 3)
	if err != nil || len(rec.Alternatives) != 0 {
		t.Fatalf("rec = %+v err = %v", rec, err)
	}
	if api.last.GetConfig().GetLanguageCode() != "en-US" || len(api.last.GetConfig().GetAlternativeLanguageCodes()) != 0 {
		t.Fatalf("explicit hint should not offer candidates: %+v", api.last.GetConfig())
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{"grpc unavailable", status.Error(codes.Unavailable, "backend down key=secret-key"), true},
		{"grpc exhausted", status.Error(codes.ResourceExhausted, "quota secret-key"), true},
		{"grpc denied", status.Error(codes.PermissionDenied, "bad key=secret-key"), false},
		{"rest throttled", &googleapi.Error{Code: http.StatusTooManyRequests, Message: "slow down secret-key"}, true},
		{"rest server", &googleapi.Error{Code: http.StatusServiceUnavailable, Message: "unavailable"}, true},
		{"rest forbidden", &googleapi.Error{Code: http.StatusForbidden, Message: "key=secret-key"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := recognizerWith(&fakeRecognizeAPI{err: tc.err}).Recognize(context.Background(), writeChunk(t), "en-US", 1)
			if !errors.Is(err, fault.ErrTranscriptionUnavailable) {
				t.Fatalf("err = %v", err)
			}
			if fault.IsTransient(err) != tc.transient {
				t.Fatalf("transient = %v, want %v", fault.IsTransient(err), tc.transient)
			}
			if strings.Contains(err.Error(), "secret-key") {
				t.Fatalf("api key leaked: %v", err)
			}
		})
	}
}

func TestClientCreationFailure(t *testing.T) {
	r := newGoogleRecognizer(speechConfig(), func(context.Context) (recognizeAPI, error) {
		return nil, errors.New("no credentials")
	})
	_, err := r.Recognize(context.Background(), writeChunk(t), "en-US", 1)
	if !errors.Is(err, fault.ErrTranscriptionUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close after failed dial: %v", err)
	}
}

func TestClientDialledOnceAndClosed(t *testing.T) {
	api := &fakeRecognizeAPI{resp: &speechpb.RecognizeResponse{}}
	dials := 0
	r := newGoogleRecognizer(speechConfig(), func(context.Context) (recognizeAPI, error) {
		dials++
		return api, nil
	})
	if err := r.Close(); err != nil || api.closed {
		t.Fatalf("Close before use: err=%v closed=%v", err, api.closed)
	}
	for i := 0; i < 3; i++ {
		if _, err := r.Recognize(context.Background(), writeChunk(t), "en-US", 1); err != nil {
			t.Fatal(err)
		}
	}
	if dials != 1 {
		t.Fatalf("dials = %d, want 1", dials)
	}
	if err := r.Close(); err != nil || !api.closed {
		t.Fatalf("Close: err=%v closed=%v", err, api.closed)
	}
}

func TestTranslate(t *testing.T) {
	api := &fakeTranslateAPI{out: []translate.Translation{{Text: "हम __PN0__ से मिले &amp; खुश थे"}}}
	out, err := translatorWith(speechConfig(), api).Translate(context.Background(), "We met __PN0__", "en-US", "hi-IN")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out != "हम __PN0__ से मिले & खुश थे" {
		t.Fatalf("out = %q", out)
	}
	if api.target != language.Hindi || api.opts.Source != language.English || api.opts.Format != translate.Text {
		t.Fatalf("target = %v opts = %+v", api.target, api.opts)
	}
}

func TestTranslateAutoSourceOmitted(t *testing.T) {
	api := &fakeTranslateAPI{out: []translate.Translation{{Text: "hola"}}}
	if _, err := translatorWith(speechConfig(), api).Translate(context.Background(), "hello", "auto", "es"); err != nil {
		t.Fatal(err)
	}
	if api.opts.Source != language.Und {
		t.Fatalf("source = %v, want undetermined", api.opts.Source)
	}
}

func TestTranslateErrors(t *testing.T) {
	rejected := &fakeTranslateAPI{err: &googleapi.Error{Code: http.StatusBadRequest, Message: "Bad language pair: sw|hi"}}
	_, err := translatorWith(speechConfig(), rejected).Translate(context.Background(), "hi", "sw", "hi")
	if !errors.Is(err, fault.ErrUnsupportedLanguagePair) {
		t.Fatalf("err = %v, want unsupported pair", err)
	}

	_, err = translatorWith(speechConfig(), &fakeTranslateAPI{}).Translate(context.Background(), "hi", "en", "hi")
	if !errors.Is(err, fault.ErrTranslationFailed) {
		t.Fatalf("err = %v, want translation failed", err)
	}

	_, err = translatorWith(speechConfig(), &fakeTranslateAPI{}).Translate(context.Background(), "hi", "en", "not a tag!")
	if !errors.Is(err, fault.ErrUnsupportedLanguagePair) {
		t.Fatalf("malformed target err = %v", err)
	}
}

func TestSynthesize(t *testing.T) {
	api := &fakeSynthesizeAPI{audio: []byte("RIFFaudio")}
	out := filepath.Join(t.TempDir(), "tts.wav")
	req := gateway.SynthesisRequest{Input: "<speak>hi</speak>", SSML: true, Language: "hi-IN", Voice: "hi-IN-Wavenet-A"}
	if err := synthesizerWith(api).Synthesize(context.Background(), req, out); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if b, _ := os.ReadFile(out); string(b) != "RIFFaudio" {
		t.Fatalf("audio = %q", b)
	}
	if api.last.GetInput().GetSsml() != "<speak>hi</speak>" || api.last.GetInput().GetText() != "" {
		t.Fatalf("input = %+v", api.last.GetInput())
	}
	if api.last.GetVoice().GetName() != "hi-IN-Wavenet-A" || api.last.GetVoice().GetLanguageCode() != "hi-IN" {
		t.Fatalf("voice = %+v", api.last.GetVoice())
	}
	if ac := api.last.GetAudioConfig(); ac.GetAudioEncoding() != texttospeechpb.AudioEncoding_LINEAR16 || ac.GetSampleRateHertz() != 24000 {
		t.Fatalf("audio config = %+v", ac)
	}
}

func TestSynthesizeMarkupRejected(t *testing.T) {
	api := &fakeSynthesizeAPI{err: status.Error(codes.InvalidArgument, "Invalid SSML: unexpected tag")}
	s := synthesizerWith(api)
	out := filepath.Join(t.TempDir(), "tts.wav")

	err := s.Synthesize(context.Background(), gateway.SynthesisRequest{Input: "<speak>", SSML: true, Language: "hi-IN"}, out)
	if !errors.Is(err, fault.ErrSynthesisMarkupRejected) {
		t.Fatalf("err = %v, want markup rejected", err)
	}
	err = s.Synthesize(context.Background(), gateway.SynthesisRequest{Input: "plain", Language: "hi-IN"}, out)
	if !errors.Is(err, fault.ErrSynthesisFailed) || errors.Is(err, fault.ErrSynthesisMarkupRejected) {
		t.Fatalf("plain text err = %v, want synthesis failed", err)
	}

	empty := synthesizerWith(&fakeSynthesizeAPI{})
	if err := empty.Synthesize(context.Background(), gateway.SynthesisRequest{Input: "x", Language: "hi-IN"}, out); !errors.Is(err, fault.ErrSynthesisFailed) {
		t.Fatalf("empty audio err = %v", err)
	}
}

func TestRequestTimeoutIsTransient(t *testing.T) {
	cfg := speechConfig()
	cfg.RequestTimeout = 50 * time.Millisecond
	_, err := translatorWith(cfg, &fakeTranslateAPI{block: true}).Translate(context.Background(), "hello", "en", "hi")
	if !errors.Is(err, fault.ErrTranslationFailed) || !fault.IsTransient(err) {
		t.Fatalf("err = %v, want transient translation failure", err)
	}
}

func TestCallerCancellationPassesThrough(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := translatorWith(speechConfig(), &fakeTranslateAPI{block: true}).Translate(ctx, "hello", "en", "hi")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestProviderClose(t *testing.T) {
	api := &fakeTranslateAPI{out: []translate.Translation{{Text: "x"}}}
	tr := translatorWith(speechConfig(), api)
	if _, err := tr.Translate(context.Background(), "x", "en", "hi"); err != nil {
		t.Fatal(err)
	}
	p := &Provider{Recognizer: NewWhisperRecognizer(config.SpeechConfig{WhisperModel: "m"}), Translator: tr, Synthesizer: synthesizerWith(&fakeSynthesizeAPI{})}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !api.closed {
		t.Fatal("translator client not closed")
	}
}

func TestProviderSelection(t *testing.T) {
	p, err := NewProvider(config.SpeechConfig{Provider: "google"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.Recognizer.(*GoogleRecognizer); !ok {
		t.Fatalf("recognizer = %T", p.Recognizer)
	}
	if _, err := NewProvider(config.SpeechConfig{Provider: "whisper"}); err == nil {
		t.Fatal("whisper without a model should fail")
	}
	p, _ = NewProvider(config.SpeechConfig{Provider: "whisper", WhisperModel: "ggml-base.bin"})
	if _, ok := p.Recognizer.(*WhisperRecognizer); !ok {
		t.Fatalf("recognizer = %T", p.Recognizer)
	}
	if _, err := NewProvider(config.SpeechConfig{Provider: "acme"}); err == nil {
		t.Fatal("unknown provider should fail")
	}
}

func TestParseWhisperOutput(t *testing.T) {
	rec, err := parseWhisperOutput([]byte(`{"result":{"language":"en"},"transcription":[{"text":" Hello there."},{"text":" "},{"text":"General Kenobi."}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if rec.DetectedLanguage != "en" || len(rec.Alternatives) != 1 || rec.Alternatives[0].Text != "Hello there. General Kenobi." {
		t.Fatalf("rec = %+v", rec)
	}
	if rec, _ := parseWhisperOutput([]byte(`{"transcription":[]}`)); len(rec.Alternatives) != 0 {
		t.Fatalf("empty transcription should have no alternatives: %+v", rec)
	}
	if _, err := parseWhisperOutput([]byte("nope")); !errors.Is(err, fault.ErrTranscriptionUnavailable) {
		t.Fatalf("err = %v", err)
	}
}
