package gateway

import (
	"context"

	"dubbing-service/ddd/domain/vo"
)

// MediaTool 媒体处理工具（ffmpeg/ffprobe）。所有操作都是带超时的阻塞子进程调用，
// 失败返回 fault.MediaToolError，探测失败返回 fault.MediaUnreadable。
type MediaTool interface {
	// Probe 探测时长与音视频流
	Probe(ctx context.Context, path string) (vo.MediaInfo, error)
	// ExtractAudio writes mono 16 kHz PCM WAV audio of videoPath to outPath.
	ExtractAudio(ctx context.Context, videoPath, outPath string) error
	// SplitSegment cuts [start, start+duration) seconds of audioPath into outPath.
	SplitSegment(ctx context.Context, audioPath string, start, duration float64, outPath string) error
	// Concatenate joins inputs in order without gaps.
	Concatenate(ctx context.Context, inputs []string, outPath string) error
	// ChangeTempo speeds audio up (factor > 1) or slows it down (factor < 1) without changing pitch.
	ChangeTempo(ctx context.Context, inPath string, factor float64, outPath string) error
	// PadAudio delays audio by leadSeconds and pads trailing silence up to totalSeconds.
	PadAudio(ctx context.Context, inPath string, leadSeconds, totalSeconds float64, outPath string) error
	// Remux copies the video stream of videoPath and replaces its audio with audioPath.
	// The output lasts max(video, audio).
	Remux(ctx context.Context, videoPath, audioPath, outPath string) error
}
