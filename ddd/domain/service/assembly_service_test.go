package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"dubbing-service/ddd/domain/entity"
	"dubbing-service/ddd/domain/fault"
)

func synthesizedChunks(t *testing.T, media *fakeMedia, dir string, starts, durations []float64) []*entity.AudioChunk {
	t.Helper()
	chunks := make([]*entity.AudioChunk, 0, len(starts))
	for i := range starts {
		path := filepath.Join(dir, fmt.Sprintf("tts_%03d.wav", i))
		if err := writeFile(path, 2048); err != nil {
			t.Fatal(err)
		}
		media.set(path, durations[i])
		chunks = append(chunks, &entity.AudioChunk{Index: i, StartSeconds: starts[i], SynthesizedPath: path})
	}
	return chunks
}

func TestAssemble(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		starts    []float64
		durations []float64
		wantPads  int
	}{
		{name: "contiguous", starts: []float64{0, 30, 60}, durations: []float64{30, 28, 5}, wantPads: 1},
		{name: "dropped middle chunk", starts: []float64{0, 60}, durations: []float64{30, 5}, wantPads: 1},
		{name: "leading gap", starts: []float64{5, 30}, durations: []float64{25, 35}, wantPads: 1},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			media := newFakeMedia()
			video := filepath.Join(dir, "source.mp4")
			_ = writeFile(video, 4096)
			media.set(video, 65)
			chunks := synthesizedChunks(t, media, dir, tc.starts, tc.durations)
			// reversed input must still assemble in index order
			chunks[0], chunks[len(chunks)-1] = chunks[len(chunks)-1], chunks[0]

			got, err := NewAssemblyService(media, noRetry()).Assemble(context.Background(), chunks, 65, video, dir)
			if err != nil {
				t.Fatalf("Assemble: %v", err)
			}
			if math.Abs(got.AudioSeconds-65) > 1e-9 || math.Abs(got.VideoSeconds-65) > 1e-9 {
				t.Fatalf("durations audio=%v video=%v", got.AudioSeconds, got.VideoSeconds)
			}
			if got.VideoPath != filepath.Join(dir, "dubbed.mp4") || got.AudioPath != filepath.Join(dir, "dubbed_track.wav") {
				t.Fatalf("paths = %+v", got)
			}
			if len(media.pads) != tc.wantPads {
				t.Fatalf("pads = %v", media.pads)
			}
			if len(media.concats) != 1 || len(media.concats[0]) != len(tc.starts) {
				t.Fatalf("concats = %v", media.concats)
			}
		})
	}
}

func TestAssembleOutputContainer(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"source.mp4": "dubbed.mp4",
		"clip.MOV":   "dubbed.mov",
		"talk.webm":  "dubbed.webm",
		"old.avi":    "dubbed.mkv",
		"stream.flv": "dubbed.mkv",
		"upload":     "dubbed.mkv",
		"film.mkv":   "dubbed.mkv",
	}
	for source, want := range cases {
		if got := DubbedVideoName(source); got != want {
			t.Fatalf("DubbedVideoName(%q) = %q, want %q", source, got, want)
		}
	}

	dir := t.TempDir()
	media := newFakeMedia()
	video := filepath.Join(dir, "talk.webm")
	_ = writeFile(video, 4096)
	media.set(video, 30)
	chunks := synthesizedChunks(t, media, dir, []float64{0}, []float64{30})
	got, err := NewAssemblyService(media, noRetry()).Assemble(context.Background(), chunks, 30, video, dir)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got.VideoPath != filepath.Join(dir, "dubbed.webm") {
		t.Fatalf("video path = %s", got.VideoPath)
	}
}

func TestAssembleRejectsIncompleteChunks(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	media := newFakeMedia()
	svc := NewAssemblyService(media, noRetry())

	gap := synthesizedChunks(t, media, dir, []float64{0, 30}, []float64{30, 30})
	gap[1].Index = 2
	missing := synthesizedChunks(t, media, dir, []float64{0, 30}, []float64{30, 30})
	missing[1].SynthesizedPath = ""
	gone := synthesizedChunks(t, media, dir, []float64{0}, []float64{30})
	gone[0].SynthesizedPath = filepath.Join(dir, "nope.wav")

	for name, chunks := range map[string][]*entity.AudioChunk{"gap": gap, "missing": missing, "gone": gone, "empty": nil} {
		_, err := svc.Assemble(context.Background(), chunks, 60, filepath.Join(dir, "v.mp4"), dir)
		if !errors.Is(err, fault.ErrAssemblyFailed) {
			t.Fatalf("%s: err = %v, want AssemblyFailed", name, err)
		}
	}
}

func TestAudioFidelity(t *testing.T) {
	t.Parallel()
	cases := []struct{ dubbed, source, want float64 }{
		{10, 10, 1},
		{9, 10, 0.9},
		{11, 10, 0.9},
		{30, 10, 0},
		{5, 0, 0},
	}
	for _, tc := range cases {
		if got := AudioFidelity(tc.dubbed, tc.source); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("AudioFidelity(%v, %v) = %v, want %v", tc.dubbed, tc.source, got, tc.want)
		}
	}
}
