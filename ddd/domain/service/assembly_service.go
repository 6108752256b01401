package service

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dubbing-service/ddd/domain/entity"
	"dubbing-service/ddd/domain/fault"
	"dubbing-service/ddd/domain/gateway"
)

// slotTolerance is how much shorter than its slot a chunk may be before it is padded.
const slotTolerance = 0.05

// Assembly 组装结果
type Assembly struct {
	AudioPath    string
	VideoPath    string
	AudioSeconds float64
	VideoSeconds float64
}

// AssemblyService 按序拼接合成音频并与原视频合流
type AssemblyService struct {
	media gateway.MediaTool
	retry RetryPolicy
}

func NewAssemblyService(media gateway.MediaTool, retry RetryPolicy) *AssemblyService {
	return &AssemblyService{media: media, retry: retry}
}

// Assemble concatenates chunk audio in index order and remuxes it into videoPath.
// Each chunk is padded to fill the time until the next chunk starts, so audio stays
// aligned with the source even where chunks were dropped. A chunk without
// synthesized audio fails the assembly.
func (s *AssemblyService) Assemble(ctx context.Context, chunks []*entity.AudioChunk, totalSeconds float64, videoPath, workDir string) (Assembly, error) {
	if len(chunks) == 0 {
		return Assembly{}, fault.New(fault.AssemblyFailed, "no chunks to assemble")
	}
	ordered := append([]*entity.AudioChunk(nil), chunks...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	parts := make([]string, 0, len(ordered))
	for i, c := range ordered {
		if c.Index != i {
			return Assembly{}, fault.New(fault.AssemblyFailed, "missing chunk %d", i)
		}
		if c.SynthesizedPath == "" {
			return Assembly{}, fault.New(fault.AssemblyFailed, "chunk %d has no synthesized audio", i)
		}
		if _, err := os.Stat(c.SynthesizedPath); err != nil {
			return Assembly{}, fault.Wrap(fault.AssemblyFailed, err, "chunk %d audio", i)
		}

		lead := 0.0
		if i == 0 {
			lead = c.StartSeconds
		}
		slotEnd := totalSeconds
		if i+1 < len(ordered) {
			slotEnd = ordered[i+1].StartSeconds
		}
		slot := slotEnd - c.StartSeconds + lead

		part, err := s.fitSlot(ctx, c, lead, slot, workDir)
		if err != nil {
			return Assembly{}, err
		}
		parts = append(parts, part)
	}

	audioPath := filepath.Join(workDir, "dubbed_track.wav")
	if err := s.retry.Do(ctx, "concatenate", func(ctx context.Context) error {
		return s.media.Concatenate(ctx, parts, audioPath)
	}); err != nil {
		return Assembly{}, err
	}
	audioInfo, err := s.media.Probe(ctx, audioPath)
	if err != nil {
		return Assembly{}, err
	}

	videoOut := filepath.Join(workDir, DubbedVideoName(videoPath))
	if err := s.retry.Do(ctx, "remux", func(ctx context.Context) error {
		return s.media.Remux(ctx, videoPath, audioPath, videoOut)
	}); err != nil {
		return Assembly{}, err
	}
	videoInfo, err := s.media.Probe(ctx, videoOut)
	if err != nil {
		return Assembly{}, err
	}

	return Assembly{
		AudioPath:    audioPath,
		VideoPath:    videoOut,
		AudioSeconds: audioInfo.DurationSeconds,
		VideoSeconds: videoInfo.DurationSeconds,
	}, nil
}

func (s *AssemblyService) fitSlot(ctx context.Context, c *entity.AudioChunk, lead, slot float64, workDir string) (string, error) {
	info, err := s.media.Probe(ctx, c.SynthesizedPath)
	if err != nil {
		return "", err
	}
	if lead <= slotTolerance && info.DurationSeconds >= slot-slotTolerance {
		return c.SynthesizedPath, nil
	}
	padded := filepath.Join(workDir, fmt.Sprintf("slot_%03d.wav", c.Index))
	total := math.Max(slot, lead+info.DurationSeconds)
	if err := s.retry.Do(ctx, "pad audio", func(ctx context.Context) error {
		return s.media.PadAudio(ctx, c.SynthesizedPath, lead, total, padded)
	}); err != nil {
		return "", err
	}
	return padded, nil
}

// AudioFidelity scores how closely the dubbed track matches the source duration:
// 1 − |dubbed − source| / source, clamped to [0, 1].
func AudioFidelity(dubbedSeconds, sourceSeconds float64) float64 {
	if sourceSeconds <= 0 {
		return 0
	}
	score := 1 - math.Abs(dubbedSeconds-sourceSeconds)/sourceSeconds
	return math.Max(0, math.Min(1, score))
}

// DubbedVideoName keeps the source container when its muxer takes the dubbed
// audio codec next to the copied video stream, and falls back to Matroska,
// which accepts any codec pair.
func DubbedVideoName(sourcePath string) string {
	switch ext := strings.ToLower(filepath.Ext(sourcePath)); ext {
	case ".mp4", ".m4v", ".mov", ".webm":
		return "dubbed" + ext
	default:
		return "dubbed.mkv"
	}
}
