// Package analysis estimates speaker properties from extracted PCM audio.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"dubbing-service/ddd/domain/gateway"
	"dubbing-service/ddd/domain/vo"
)

const (
	// Median fundamental frequency splitting typical male and female speech.
	genderThresholdHz = 165.0
	minPitchHz        = 60.0
	maxPitchHz        = 400.0
	frameSeconds      = 0.04
	maxAnalyzeSeconds = 120.0
	minVoicedFrames   = 10
	// Frames whose normalized autocorrelation peak is below this are unvoiced.
	voicingThreshold = 0.45
)

var errNotPCM = errors.New("wav is not integer PCM")

// PitchGenderDetector estimates gender from the median F0 of voiced frames of a
// PCM WAV file.
type PitchGenderDetector struct{}

func NewPitchGenderDetector() *PitchGenderDetector { return &PitchGenderDetector{} }

var _ gateway.GenderDetector = (*PitchGenderDetector)(nil)

func (d *PitchGenderDetector) DetectGender(ctx context.Context, wavPath string) (vo.Gender, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return vo.GenderUnknown, err
	}
	defer f.Close()

	samples, rate, err := readPCM(f, maxAnalyzeSeconds)
	if err != nil {
		return vo.GenderUnknown, fmt.Errorf("read %s: %w", wavPath, err)
	}
	if err := ctx.Err(); err != nil {
		return vo.GenderUnknown, err
	}

	f0, ok := MedianPitch(samples, rate)
	if !ok {
		return vo.GenderUnknown, nil
	}
	return ClassifyPitch(f0), nil
}

// ClassifyPitch maps a median F0 in Hz to a gender.
func ClassifyPitch(f0 float64) vo.Gender {
	if f0 <= 0 {
		return vo.GenderUnknown
	}
	if f0 < genderThresholdHz {
		return vo.GenderMale
	}
	return vo.GenderFemale
}

// MedianPitch returns the median autocorrelation pitch across voiced frames.
// ok is false when too few frames are voiced.
func MedianPitch(samples []float64, rate int) (float64, bool) {
	frame := int(float64(rate) * frameSeconds)
	minLag := int(float64(rate) / maxPitchHz)
	maxLag := int(float64(rate) / minPitchHz)
	if frame <= maxLag || rate <= 0 {
		frame = maxLag + 1
	}

	var pitches []float64
	for start := 0; start+frame <= len(samples); start += frame {
		if p, ok := framePitch(samples[start:start+frame], rate, minLag, maxLag); ok {
			pitches = append(pitches, p)
		}
	}
	if len(pitches) < minVoicedFrames {
		return 0, false
	}
	sort.Float64s(pitches)
	return pitches[len(pitches)/2], true
}

func framePitch(x []float64, rate, minLag, maxLag int) (float64, bool) {
	var energy float64
	for _, v := range x {
		energy += v * v
	}
	// silence
	if energy/float64(len(x)) < 1e-4 {
		return 0, false
	}

	bestLag, best := 0, 0.0
	for lag := minLag; lag <= maxLag && lag < len(x); lag++ {
		var sum float64
		for i := 0; i+lag < len(x); i++ {
			sum += x[i] * x[i+lag]
		}
		if r := sum / energy; r > best {
			best, bestLag = r, lag
		}
	}
	if bestLag == 0 || best < voicingThreshold {
		return 0, false
	}
	return float64(rate) / float64(bestLag), true
}

// readPCM decodes the first channel of an integer PCM WAV stream into [-1, 1]
// samples, stopping after maxSeconds.
func readPCM(r io.ReadSeeker, maxSeconds float64) ([]float64, int, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		if err := d.Err(); err != nil {
			return nil, 0, err
		}
		return nil, 0, errors.New("not a RIFF/WAVE file")
	}
	if (d.WavAudioFormat != 1 && d.WavAudioFormat != 0xFFFE) || d.BitDepth == 0 || d.NumChans == 0 {
		return nil, 0, errNotPCM
	}

	channels := int(d.NumChans)
	rate := int(d.SampleRate)
	limit := int(maxSeconds * float64(rate))
	scale := float64(int64(1) << (d.BitDepth - 1))

	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:   make([]int, 4096*channels),
	}
	samples := make([]float64, 0, min(limit, 1<<16))
	for len(samples) < limit {
		n, err := d.PCMBuffer(buf)
		if err != nil {
			return nil, 0, fmt.Errorf("decode pcm: %w", err)
		}
		if n == 0 {
			break
		}
		for i := 0; i+channels <= n && len(samples) < limit; i += channels {
			samples = append(samples, float64(buf.Data[i])/scale)
		}
	}
	return samples, rate, nil
}
