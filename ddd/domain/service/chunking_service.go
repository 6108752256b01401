package service

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"dubbing-service/ddd/domain/entity"
	"dubbing-service/ddd/domain/fault"
	"dubbing-service/ddd/domain/gateway"
	"dubbing-service/pkg/logger"
)

// MinNominalChunkSeconds 分片时长下限
const MinNominalChunkSeconds = 5.0

// ChunkingOptions 分片校验参数
type ChunkingOptions struct {
	MinChunkSeconds float64
	MinChunkBytes   int64
}

// ChunkingService splits extracted audio into ordered, bounded-duration chunks.
type ChunkingService struct {
	media gateway.MediaTool
	opts  ChunkingOptions
}

func NewChunkingService(media gateway.MediaTool, opts ChunkingOptions) *ChunkingService {
	if opts.MinChunkSeconds <= 0 {
		opts.MinChunkSeconds = 0.5
	}
	if opts.MinChunkBytes <= 0 {
		opts.MinChunkBytes = 1024
	}
	return &ChunkingService{media: media, opts: opts}
}

// Chunk 将音频按 nominalSeconds 切分，分片文件写入 workDir。
// 未通过校验的分片直接丢弃；若全部丢弃，则返回覆盖整段音频的单个分片。
func (s *ChunkingService) Chunk(ctx context.Context, audioPath string, nominalSeconds float64, workDir string) ([]*entity.AudioChunk, error) {
	info, err := s.media.Probe(ctx, audioPath)
	if err != nil {
		return nil, err
	}
	if !info.HasAudioStream || info.DurationSeconds <= 0 {
		return nil, fault.New(fault.NoAudioContent, "source has no audio stream")
	}

	total := info.DurationSeconds
	nominal := math.Max(nominalSeconds, MinNominalChunkSeconds)
	n := int(math.Ceil(total / nominal))

	chunks := make([]*entity.AudioChunk, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := float64(i) * nominal
		end := math.Min(float64(i+1)*nominal, total)
		dur := end - start
		if dur < s.opts.MinChunkSeconds {
			logger.Debug("dropping short chunk", map[string]interface{}{"index": i, "duration": dur})
			continue
		}

		path := filepath.Join(workDir, fmt.Sprintf("chunk_%03d.wav", i))
		if err := s.media.SplitSegment(ctx, audioPath, start, dur, path); err != nil {
			logger.Warnf("chunk split failed, discarding index=%d start=%.2f error=%v", i, start, err)
			continue
		}
		if !s.valid(ctx, path) {
			logger.Warnf("chunk failed validation, discarding index=%d start=%.2f path=%s", i, start, path)
			continue
		}
		chunks = append(chunks, &entity.AudioChunk{
			StartSeconds:    start,
			DurationSeconds: dur,
			Path:            path,
		})
	}

	if len(chunks) == 0 {
		logger.Warnf("no chunk survived validation, using whole source audio=%s duration=%.2f", audioPath, total)
		chunks = append(chunks, &entity.AudioChunk{
			StartSeconds:    0,
			DurationSeconds: total,
			Path:            audioPath,
		})
	}
	for i, c := range chunks {
		c.Index = i
	}
	return chunks, nil
}

func (s *ChunkingService) valid(ctx context.Context, path string) bool {
	st, err := os.Stat(path)
	if err != nil || st.Size() <= s.opts.MinChunkBytes {
		return false
	}
	info, err := s.media.Probe(ctx, path)
	if err != nil {
		return false
	}
	return info.DurationSeconds >= s.opts.MinChunkSeconds
}
