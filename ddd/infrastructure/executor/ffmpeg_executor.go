package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dubbing-service/ddd/domain/fault"
	"dubbing-service/ddd/domain/vo"
	"dubbing-service/pkg/config"
	"dubbing-service/pkg/logger"
)

const (
	stderrCapture = 200
	stderrTail    = 50
	// synthesized and padded tracks are normalised to this rate before concatenation
	trackSampleRate = "24000"
)

// FFmpegExecutor implements gateway.MediaTool with local ffmpeg and ffprobe binaries.
type FFmpegExecutor struct {
	cfg config.MediaConfig
}

func NewFFmpegExecutor(cfg config.MediaConfig) *FFmpegExecutor {
	if strings.TrimSpace(cfg.FFmpegPath) == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if strings.TrimSpace(cfg.FFprobePath) == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 30 * time.Second
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = 10 * time.Minute
	}
	if cfg.SegmentTimeout <= 0 {
		cfg.SegmentTimeout = 2 * time.Minute
	}
	if cfg.RemuxTimeout <= 0 {
		cfg.RemuxTimeout = 15 * time.Minute
	}
	return &FFmpegExecutor{cfg: cfg}
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

// Probe 调用 ffprobe 读取时长与音视频流信息
func (e *FFmpegExecutor) Probe(ctx context.Context, path string) (vo.MediaInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return vo.MediaInfo{}, fault.Wrap(fault.MediaUnreadable, err, "stat %s", filepath.Base(path))
	}
	out, err := e.output(ctx, e.cfg.ProbeTimeout, e.cfg.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration:stream=codec_type,codec_name,width,height,duration",
		"-of", "json",
		path,
	)
	if err != nil {
		if ctx.Err() != nil {
			return vo.MediaInfo{}, ctx.Err()
		}
		var fe *fault.Error
		if errors.As(err, &fe) {
			return vo.MediaInfo{}, fault.Wrap(fault.MediaUnreadable, err, "probe %s", filepath.Base(path)).WithDetail(fe.Detail)
		}
		return vo.MediaInfo{}, fault.Wrap(fault.MediaUnreadable, err, "probe %s", filepath.Base(path))
	}
	info, err := parseProbe(out)
	if err != nil {
		return vo.MediaInfo{}, fault.Wrap(fault.MediaUnreadable, err, "parse probe output for %s", filepath.Base(path))
	}
	return info, nil
}

func parseProbe(raw []byte) (vo.MediaInfo, error) {
	var p probeOutput
	if err := json.Unmarshal(raw, &p); err != nil {
		return vo.MediaInfo{}, err
	}
	if len(p.Streams) == 0 && strings.TrimSpace(p.Format.Duration) == "" {
		return vo.MediaInfo{}, errors.New("probe reported neither duration nor streams")
	}
	info := vo.MediaInfo{}
	if d, err := strconv.ParseFloat(strings.TrimSpace(p.Format.Duration), 64); err == nil {
		info.DurationSeconds = d
	}
	for _, s := range p.Streams {
		switch s.CodecType {
		case "audio":
			if !info.HasAudioStream {
				info.HasAudioStream = true
				info.AudioCodec = s.CodecName
			}
		case "video":
			// cover art is reported as a video stream without dimensions
			if !info.HasVideoStream && s.Width > 0 {
				info.HasVideoStream = true
				info.VideoCodec = s.CodecName
				info.Width, info.Height = s.Width, s.Height
			}
		}
		if info.DurationSeconds <= 0 {
			if d, err := strconv.ParseFloat(s.Duration, 64); err == nil && d > info.DurationSeconds {
				info.DurationSeconds = d
			}
		}
	}
	return info, nil
}

// ExtractAudio 提取单声道 16kHz PCM 音轨
func (e *FFmpegExecutor) ExtractAudio(ctx context.Context, videoPath, outPath string) error {
	return e.ffmpeg(ctx, "extract audio", e.cfg.ExtractTimeout,
		"-i", videoPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	)
}

func (e *FFmpegExecutor) SplitSegment(ctx context.Context, audioPath string, start, duration float64, outPath string) error {
	return e.ffmpeg(ctx, "split segment", e.cfg.SegmentTimeout,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-i", audioPath,
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	)
}

// Concatenate joins inputs in order. The concat filter resamples mismatched inputs,
// which the concat demuxer cannot.
func (e *FFmpegExecutor) Concatenate(ctx context.Context, inputs []string, outPath string) error {
	if len(inputs) == 0 {
		return fault.New(fault.MediaToolError, "concatenate: no inputs")
	}
	args := make([]string, 0, 2*len(inputs)+10)
	for _, in := range inputs {
		args = append(args, "-i", in)
	}
	args = append(args,
		"-filter_complex", concatFilter(len(inputs)),
		"-map", "[out]",
		"-ac", "1",
		"-ar", trackSampleRate,
		"-c:a", "pcm_s16le",
		outPath,
	)
	return e.ffmpeg(ctx, "concatenate", e.cfg.SegmentTimeout, args...)
}

func concatFilter(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "[%d:a]", i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=0:a=1[out]", n)
	return b.String()
}

// ChangeTempo 调整语速而不改变音高；factor > 1 表示加速
func (e *FFmpegExecutor) ChangeTempo(ctx context.Context, inPath string, factor float64, outPath string) error {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return fault.New(fault.MediaToolError, "invalid tempo factor %v", factor)
	}
	return e.ffmpeg(ctx, "change tempo", e.cfg.SegmentTimeout,
		"-i", inPath,
		"-filter:a", atempoChain(factor),
		"-ac", "1",
		"-ar", trackSampleRate,
		"-c:a", "pcm_s16le",
		outPath,
	)
}

// atempoChain splits factor into atempo stages that each stay within [0.5, 2.0],
// the range every ffmpeg release accepts.
func atempoChain(factor float64) string {
	var stages []string
	for factor > 2.0 {
		stages = append(stages, "atempo=2.0")
		factor /= 2.0
	}
	for factor < 0.5 {
		stages = append(stages, "atempo=0.5")
		factor /= 0.5
	}
	stages = append(stages, "atempo="+strconv.FormatFloat(factor, 'f', 4, 64))
	return strings.Join(stages, ",")
}

// PadAudio delays inPath by lead seconds and pads it with silence to total seconds.
func (e *FFmpegExecutor) PadAudio(ctx context.Context, inPath string, lead, total float64, outPath string) error {
	filter := "apad"
	if lead > 0 {
		filter = fmt.Sprintf("adelay=%d:all=1,apad", int(math.Round(lead*1000)))
	}
	return e.ffmpeg(ctx, "pad audio", e.cfg.SegmentTimeout,
		"-i", inPath,
		"-filter:a", filter,
		"-t", formatSeconds(total),
		"-ac", "1",
		"-ar", trackSampleRate,
		"-c:a", "pcm_s16le",
		outPath,
	)
}

// Remux 复制原视频流并替换音轨；输出时长取视频与音轨中较长者
func (e *FFmpegExecutor) Remux(ctx context.Context, videoPath, audioPath, outPath string) error {
	video, err := e.Probe(ctx, videoPath)
	if err != nil {
		return err
	}
	audio, err := e.Probe(ctx, audioPath)
	if err != nil {
		return err
	}
	total := math.Max(video.DurationSeconds, audio.DurationSeconds)

	return e.ffmpeg(ctx, "remux", e.cfg.RemuxTimeout, remuxArgs(videoPath, audioPath, outPath, total)...)
}

// remuxArgs copies the video stream untouched and encodes the new track with a
// codec the output container accepts: Opus for WebM, AAC otherwise.
func remuxArgs(videoPath, audioPath, outPath string, total float64) []string {
	args := []string{
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0?",
		"-map", "1:a:0",
		"-c:v", "copy",
	}
	switch strings.ToLower(filepath.Ext(outPath)) {
	case ".webm":
		args = append(args, "-c:a", "libopus", "-b:a", "128k", "-ar", "48000")
	default:
		args = append(args, "-c:a", "aac", "-b:a", "192k")
	}
	args = append(args, "-af", "apad", "-t", formatSeconds(total))
	switch strings.ToLower(filepath.Ext(outPath)) {
	case ".mp4", ".m4v", ".mov":
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, outPath)
}

func (e *FFmpegExecutor) ffmpeg(ctx context.Context, op string, timeout time.Duration, args ...string) error {
	full := append([]string{"-hide_banner", "-nostdin", "-y"}, args...)
	if err := e.run(ctx, timeout, e.cfg.FFmpegPath, full...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var fe *fault.Error
		if errors.As(err, &fe) {
			fe.Message = op + ": " + fe.Message
			return fe
		}
		return fault.Wrap(fault.MediaToolError, err, "%s", op)
	}
	return nil
}

func (e *FFmpegExecutor) output(ctx context.Context, timeout time.Duration, binary string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, classify(ctx, binary, err, strings.Split(strings.TrimSpace(stderr.String()), "\n"))
	}
	return out, nil
}

// run executes binary, keeping the last stderr lines for diagnostics.
func (e *FFmpegExecutor) run(ctx context.Context, timeout time.Duration, binary string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fault.Wrap(fault.MediaToolError, err, "创建 stderr 管道失败")
	}
	logger.Debugf("media command: %s %s", binary, strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return fault.Wrap(fault.MediaToolError, err, "start %s", filepath.Base(binary))
	}

	captured := make(chan []string, 1)
	go func() {
		captured <- captureStderr(stderr, stderrCapture)
	}()
	lines := <-captured
	if err := cmd.Wait(); err != nil {
		return classify(ctx, binary, err, lines)
	}
	return nil
}

// classify turns a failed command into a transient MediaToolError carrying the
// stderr tail, so callers retry it under their attempt budget.
func classify(ctx context.Context, binary string, err error, lines []string) error {
	tail := lines
	if n := len(tail); n > stderrTail {
		tail = tail[n-stderrTail:]
	}
	detail := strings.TrimSpace(strings.Join(tail, "\n"))
	if detail != "" {
		logger.Errorf("%s failed tail_stderr=%s", filepath.Base(binary), detail)
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fault.Transient(fault.MediaToolError, ctx.Err(), "%s timed out", filepath.Base(binary)).WithDetail(detail)
	}
	return fault.Transient(fault.MediaToolError, err, "%s failed", filepath.Base(binary)).WithDetail(detail)
}

func captureStderr(r io.Reader, limit int) []string {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024), 1024*1024)
	buf := make([]string, 0, limit)
	for scanner.Scan() {
		if len(buf) >= limit {
			buf = buf[1:]
		}
		buf = append(buf, scanner.Text())
	}
	return buf
}

func formatSeconds(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
