package executor

import (
	"context"
	"errors"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dubbing-service/ddd/domain/fault"
	"dubbing-service/ddd/domain/service"
	"dubbing-service/pkg/config"
)

func TestAtempoChain(t *testing.T) {
	cases := []struct {
		factor float64
		want   string
	}{
		{1.2, "atempo=1.2000"},
		{0.5, "atempo=0.5000"},
		{3.0, "atempo=2.0,atempo=1.5000"},
		{0.3, "atempo=0.5,atempo=0.6000"},
	}
	for _, tc := range cases {
		if got := atempoChain(tc.factor); got != tc.want {
			t.Fatalf("atempoChain(%v) = %q, want %q", tc.factor, got, tc.want)
		}
	}
}

func TestConcatFilter(t *testing.T) {
	if got := concatFilter(3); got != "[0:a][1:a][2:a]concat=n=3:v=0:a=1[out]" {
		t.Fatalf("concatFilter = %q", got)
	}
}

func TestRemuxArgsMatchContainer(t *testing.T) {
	cases := []struct {
		out       string
		codec     string
		faststart bool
	}{
		{"dubbed.mp4", "aac", true},
		{"dubbed.mov", "aac", true},
		{"dubbed.webm", "libopus", false},
		{"dubbed.mkv", "aac", false},
	}
	for _, tc := range cases {
		args := strings.Join(remuxArgs("in", "track.wav", tc.out, 12), " ")
		if !strings.Contains(args, "-c:v copy") || !strings.Contains(args, "-c:a "+tc.codec+" ") {
			t.Fatalf("%s: args = %s", tc.out, args)
		}
		if strings.Contains(args, "+faststart") != tc.faststart {
			t.Fatalf("%s: faststart mismatch in %s", tc.out, args)
		}
		if !strings.HasSuffix(args, " "+tc.out) {
			t.Fatalf("%s: output not last in %s", tc.out, args)
		}
	}
}

func TestParseProbe(t *testing.T) {
	raw := []byte(`{
  "streams": [
    {"codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720},
    {"codec_type": "audio", "codec_name": "aac", "duration": "12.480000"}
  ],
  "format": {"duration": "12.500000"}
}`)
	info, err := parseProbe(raw)
	if err != nil {
		t.Fatalf("parseProbe: %v", err)
	}
	if info.DurationSeconds != 12.5 || !info.HasAudioStream || !info.HasVideoStream {
		t.Fatalf("info = %+v", info)
	}
	if info.VideoCodec != "h264" || info.AudioCodec != "aac" || info.Width != 1280 || info.Height != 720 {
		t.Fatalf("codecs = %+v", info)
	}

	coverOnly, err := parseProbe([]byte(`{"streams":[{"codec_type":"video","codec_name":"mjpeg"}],"format":{}}`))
	if err != nil {
		t.Fatalf("parseProbe: %v", err)
	}
	if coverOnly.HasVideoStream || coverOnly.HasAudioStream || coverOnly.DurationSeconds != 0 {
		t.Fatalf("cover art info = %+v", coverOnly)
	}

	if _, err := parseProbe([]byte("not json")); err == nil {
		t.Fatal("expected error for invalid json")
	}
	if _, err := parseProbe([]byte(`{"format":{},"streams":[]}`)); err == nil {
		t.Fatal("expected error when neither duration nor streams are reported")
	}
}

func TestProbeWithoutStreamsIsUnreadable(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	fakeProbe := filepath.Join(dir, "ffprobe")
	script := "#!/bin/sh\necho '{\"format\":{},\"streams\":[]}'\n"
	if err := os.WriteFile(fakeProbe, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake ffprobe: %v", err)
	}
	media := filepath.Join(dir, "broken.mp4")
	if err := os.WriteFile(media, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}

	e := NewFFmpegExecutor(config.MediaConfig{FFprobePath: fakeProbe})
	_, err := e.Probe(context.Background(), media)
	if !errors.Is(err, fault.ErrMediaUnreadable) {
		t.Fatalf("err = %v, want MediaUnreadable", err)
	}
	if fault.IsTransient(err) {
		t.Fatalf("unreadable media must not be retried: %v", err)
	}
}

func TestCaptureStderrKeepsTail(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString("line")
		b.WriteByte(byte('0' + i))
		b.WriteByte('\n')
	}
	got := captureStderr(strings.NewReader(b.String()), 3)
	if strings.Join(got, ",") != "line7,line8,line9" {
		t.Fatalf("captured = %v", got)
	}
}

func TestProbeMissingFile(t *testing.T) {
	e := NewFFmpegExecutor(config.MediaConfig{})
	_, err := e.Probe(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	if !errors.Is(err, fault.ErrMediaUnreadable) {
		t.Fatalf("err = %v, want MediaUnreadable", err)
	}
}

func TestFailingCommandCarriesStderr(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	e := NewFFmpegExecutor(config.MediaConfig{})
	err := e.run(context.Background(), e.cfg.SegmentTimeout, "sh", "-c", "echo first >&2; echo boom >&2; exit 3")
	var fe *fault.Error
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want fault error", err)
	}
	if fe.Kind != fault.MediaToolError || !fe.Transient || !strings.Contains(fe.Detail, "boom") {
		t.Fatalf("error = %+v", fe)
	}
}

func TestNonZeroExitIsRetried(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	counter := filepath.Join(dir, "calls")
	fakeFFmpeg := filepath.Join(dir, "ffmpeg")
	// fails on the first invocation, then writes its last argument
	script := `#!/bin/sh
echo x >> "` + counter + `"
if [ ! -f "` + counter + `.failed" ]; then
  : > "` + counter + `.failed"
  echo "Conversion failed!" >&2
  exit 1
fi
for last; do :; done
: > "$last"
`
	if err := os.WriteFile(fakeFFmpeg, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake ffmpeg: %v", err)
	}

	e := NewFFmpegExecutor(config.MediaConfig{FFmpegPath: fakeFFmpeg})
	out := filepath.Join(dir, "audio.wav")
	policy := service.RetryPolicy{Attempts: 3, Backoff: time.Millisecond}
	err := policy.Do(context.Background(), "extract audio", func(ctx context.Context) error {
		return e.ExtractAudio(ctx, filepath.Join(dir, "in.mp4"), out)
	})
	if err != nil {
		t.Fatalf("ExtractAudio after retry: %v", err)
	}
	raw, err := os.ReadFile(counter)
	if err != nil {
		t.Fatalf("read counter: %v", err)
	}
	if calls := strings.Count(string(raw), "x"); calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("output missing: %v", err)
	}
}

func TestExhaustedRetriesReturnMediaToolError(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	e := NewFFmpegExecutor(config.MediaConfig{FFmpegPath: "false"})
	calls := 0
	policy := service.RetryPolicy{Attempts: 3, Backoff: time.Millisecond}
	err := policy.Do(context.Background(), "extract audio", func(ctx context.Context) error {
		calls++
		return e.ExtractAudio(ctx, "in.mp4", filepath.Join(t.TempDir(), "out.wav"))
	})
	if calls != 3 || !errors.Is(err, fault.ErrMediaToolError) {
		t.Fatalf("calls=%d err=%v", calls, err)
	}
}

func requireFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}
}

func generate(t *testing.T, out string, args ...string) {
	t.Helper()
	full := append([]string{"-hide_banner", "-y"}, args...)
	full = append(full, out)
	if b, err := exec.Command("ffmpeg", full...).CombinedOutput(); err != nil {
		t.Fatalf("generate %s: %v\n%s", out, err, b)
	}
}

func TestMediaOperations(t *testing.T) {
	requireFFmpeg(t)
	ctx := context.Background()
	dir := t.TempDir()
	e := NewFFmpegExecutor(config.MediaConfig{})

	video := filepath.Join(dir, "source.mp4")
	generate(t, video,
		"-f", "lavfi", "-i", "testsrc=size=160x120:rate=10:duration=6",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=6",
		"-c:v", "libx264", "-pix_fmt", "yuv420p", "-c:a", "aac", "-shortest")

	info, err := e.Probe(ctx, video)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !info.HasVideoStream || !info.HasAudioStream || math.Abs(info.DurationSeconds-6) > 0.3 {
		t.Fatalf("probe = %+v", info)
	}

	audio := filepath.Join(dir, "audio.wav")
	if err := e.ExtractAudio(ctx, video, audio); err != nil {
		t.Fatalf("ExtractAudio: %v", err)
	}

	seg := filepath.Join(dir, "chunk_000.wav")
	if err := e.SplitSegment(ctx, audio, 1, 2, seg); err != nil {
		t.Fatalf("SplitSegment: %v", err)
	}
	assertDuration(t, e, seg, 2)

	fast := filepath.Join(dir, "fast.wav")
	if err := e.ChangeTempo(ctx, seg, 2, fast); err != nil {
		t.Fatalf("ChangeTempo: %v", err)
	}
	assertDuration(t, e, fast, 1)

	padded := filepath.Join(dir, "padded.wav")
	if err := e.PadAudio(ctx, fast, 0.5, 3, padded); err != nil {
		t.Fatalf("PadAudio: %v", err)
	}
	assertDuration(t, e, padded, 3)

	track := filepath.Join(dir, "track.wav")
	if err := e.Concatenate(ctx, []string{padded, seg, fast}, track); err != nil {
		t.Fatalf("Concatenate: %v", err)
	}
	assertDuration(t, e, track, 6)

	short := filepath.Join(dir, "short.wav")
	if err := e.PadAudio(ctx, fast, 0, 1, short); err != nil {
		t.Fatalf("PadAudio: %v", err)
	}
	out := filepath.Join(dir, "dubbed.mp4")
	if err := e.Remux(ctx, video, short, out); err != nil {
		t.Fatalf("Remux: %v", err)
	}
	assertDuration(t, e, out, 6)
	if src, dub := videoStreamMD5(t, video), videoStreamMD5(t, out); src != dub {
		t.Fatalf("video stream changed by remux: source=%s dubbed=%s", src, dub)
	}
}

func TestRemuxWebMKeepsVideoStream(t *testing.T) {
	requireFFmpeg(t)
	for _, enc := range []string{"libvpx", "libopus"} {
		if b, err := exec.Command("ffmpeg", "-hide_banner", "-h", "encoder="+enc).CombinedOutput(); err != nil || strings.Contains(string(b), "not recognized") {
			t.Skipf("encoder %s not available", enc)
		}
	}
	ctx := context.Background()
	dir := t.TempDir()
	e := NewFFmpegExecutor(config.MediaConfig{})

	video := filepath.Join(dir, "source.webm")
	generate(t, video,
		"-f", "lavfi", "-i", "testsrc=size=160x120:rate=10:duration=3",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=3",
		"-c:v", "libvpx", "-c:a", "libopus", "-shortest")
	track := filepath.Join(dir, "track.wav")
	generate(t, track, "-f", "lavfi", "-i", "sine=frequency=220:duration=3")

	out := filepath.Join(dir, "dubbed.webm")
	if err := e.Remux(ctx, video, track, out); err != nil {
		t.Fatalf("Remux: %v", err)
	}
	info, err := e.Probe(ctx, out)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.AudioCodec != "opus" || !info.HasVideoStream {
		t.Fatalf("dubbed webm = %+v", info)
	}
	if src, dub := videoStreamMD5(t, video), videoStreamMD5(t, out); src != dub {
		t.Fatalf("video stream changed by remux: source=%s dubbed=%s", src, dub)
	}
}

// videoStreamMD5 hashes the first video stream's packets without decoding them.
func videoStreamMD5(t *testing.T, path string) string {
	t.Helper()
	b, err := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error",
		"-i", path, "-map", "0:v:0", "-c", "copy", "-f", "md5", "-").Output()
	if err != nil {
		t.Fatalf("md5 %s: %v", filepath.Base(path), err)
	}
	sum := strings.TrimSpace(string(b))
	if !strings.HasPrefix(sum, "MD5=") {
		t.Fatalf("md5 %s: unexpected output %q", filepath.Base(path), sum)
	}
	return sum
}

func assertDuration(t *testing.T, e *FFmpegExecutor, path string, want float64) {
	t.Helper()
	info, err := e.Probe(context.Background(), path)
	if err != nil {
		t.Fatalf("Probe %s: %v", path, err)
	}
	if math.Abs(info.DurationSeconds-want) > 0.25 {
		t.Fatalf("%s duration = %v, want %v", filepath.Base(path), info.DurationSeconds, want)
	}
}
