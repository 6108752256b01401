package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"dubbing-service/ddd/domain/entity"
	"dubbing-service/ddd/domain/fault"
	"dubbing-service/ddd/domain/gateway"
	"dubbing-service/ddd/domain/repo"
	"dubbing-service/ddd/domain/vo"
)

func writeFile(path string, size int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, bytes.Repeat([]byte{1}, size), 0o644)
}

// fakeMedia tracks a duration per file path instead of running ffmpeg.
type fakeMedia struct {
	mu        sync.Mutex
	durations map[string]float64
	noAudio   map[string]bool
	splitSize int
	// splitProbe overrides the probed duration of split chunks when set.
	splitProbe func(dur float64) float64
	failSplit  map[int]bool
	tempos     []float64
	pads       []string
	concats    [][]string
	splits     int
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{
		durations: make(map[string]float64),
		noAudio:   make(map[string]bool),
		failSplit: make(map[int]bool),
		splitSize: 4096,
	}
}

func (m *fakeMedia) set(path string, dur float64) {
	m.mu.Lock()
	m.durations[path] = dur
	m.mu.Unlock()
}

func (m *fakeMedia) get(path string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.durations[path]
}

func (m *fakeMedia) Probe(_ context.Context, path string) (vo.MediaInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.durations[path]
	if !ok {
		return vo.MediaInfo{}, fault.New(fault.MediaUnreadable, "probe %s", path)
	}
	return vo.MediaInfo{DurationSeconds: d, HasAudioStream: !m.noAudio[path], HasVideoStream: true}, nil
}

func (m *fakeMedia) ExtractAudio(_ context.Context, videoPath, outPath string) error {
	if err := writeFile(outPath, 8192); err != nil {
		return err
	}
	m.set(outPath, m.get(videoPath))
	return nil
}

func (m *fakeMedia) SplitSegment(_ context.Context, _ string, _ float64, duration float64, outPath string) error {
	m.mu.Lock()
	idx := m.splits
	m.splits++
	size := m.splitSize
	fail := m.failSplit[idx]
	m.mu.Unlock()
	if fail {
		return fault.Transient(fault.MediaToolError, fmt.Errorf("exit status 1"), "split")
	}
	if err := writeFile(outPath, size); err != nil {
		return err
	}
	probed := duration
	if m.splitProbe != nil {
		probed = m.splitProbe(duration)
	}
	m.set(outPath, probed)
	return nil
}

func (m *fakeMedia) Concatenate(_ context.Context, inputs []string, outPath string) error {
	total := 0.0
	for _, in := range inputs {
		total += m.get(in)
	}
	m.mu.Lock()
	m.concats = append(m.concats, append([]string(nil), inputs...))
	m.mu.Unlock()
	if err := writeFile(outPath, 2048); err != nil {
		return err
	}
	m.set(outPath, total)
	return nil
}

func (m *fakeMedia) ChangeTempo(_ context.Context, inPath string, factor float64, outPath string) error {
	m.mu.Lock()
	m.tempos = append(m.tempos, factor)
	m.mu.Unlock()
	if err := writeFile(outPath, 2048); err != nil {
		return err
	}
	m.set(outPath, m.get(inPath)/factor)
	return nil
}

func (m *fakeMedia) PadAudio(_ context.Context, inPath string, lead, total float64, outPath string) error {
	m.mu.Lock()
	m.pads = append(m.pads, inPath)
	m.mu.Unlock()
	d := m.get(inPath) + lead
	if total > d {
		d = total
	}
	if err := writeFile(outPath, 2048); err != nil {
		return err
	}
	m.set(outPath, d)
	return nil
}

func (m *fakeMedia) Remux(_ context.Context, videoPath, audioPath, outPath string) error {
	d := m.get(videoPath)
	if a := m.get(audioPath); a > d {
		d = a
	}
	if err := writeFile(outPath, 4096); err != nil {
		return err
	}
	m.set(outPath, d)
	return nil
}

// fakeRecognizer returns the same scripted alternatives for every chunk.
type fakeRecognizer struct {
	mu       sync.Mutex
	calls    int
	alts     []gateway.Alternative
	detected string
	err      error
}

func (r *fakeRecognizer) Recognize(_ context.Context, _ string, _ string, _ int) (*gateway.Recognition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &gateway.Recognition{Alternatives: r.alts, DetectedLanguage: r.detected}, nil
}

// fakeTranslator prefixes the target language and keeps markers intact.
type fakeTranslator struct {
	mu      sync.Mutex
	calls   []vo.LanguagePair
	failFor map[string]error
	mangle  func(string) string
}

func (t *fakeTranslator) Translate(_ context.Context, text, source, target string) (string, error) {
	t.mu.Lock()
	t.calls = append(t.calls, vo.LanguagePair{Source: source, Target: target})
	err := t.failFor[target]
	t.mu.Unlock()
	if err != nil {
		return "", err
	}
	out := "[" + target + "] " + text
	if t.mangle != nil {
		out = t.mangle(out)
	}
	return out, nil
}

// fakeSynth writes a file whose duration is secondsPerWord per word of input.
type fakeSynth struct {
	mu             sync.Mutex
	media          *fakeMedia
	secondsPerWord float64
	fixed          float64
	rejectSSML     bool
	requests       []gateway.SynthesisRequest
}

func (s *fakeSynth) Synthesize(_ context.Context, req gateway.SynthesisRequest, outPath string) error {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	reject := s.rejectSSML && req.SSML
	s.mu.Unlock()
	if reject {
		return fault.New(fault.SynthesisMarkupRejected, "invalid ssml")
	}
	if err := writeFile(outPath, 4096); err != nil {
		return err
	}
	d := s.fixed
	if d == 0 {
		d = float64(len(strings.Fields(req.Input))) * s.secondsPerWord
	}
	s.media.set(outPath, d)
	return nil
}

type fakeStorage struct {
	mu      sync.Mutex
	media   *fakeMedia
	objects map[string]float64
	puts    []string
}

func newFakeStorage(media *fakeMedia) *fakeStorage {
	return &fakeStorage{media: media, objects: make(map[string]float64)}
}

func (s *fakeStorage) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	_, _ = io.Copy(io.Discard, r)
	s.mu.Lock()
	s.puts = append(s.puts, key)
	s.mu.Unlock()
	return key, nil
}

func (s *fakeStorage) Get(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (s *fakeStorage) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://example.test/" + key, nil
}

func (s *fakeStorage) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *fakeStorage) PutFile(_ context.Context, _ string, key string) (string, error) {
	s.mu.Lock()
	s.puts = append(s.puts, key)
	s.mu.Unlock()
	return key, nil
}

func (s *fakeStorage) GetFile(_ context.Context, key, localPath string) error {
	s.mu.Lock()
	d, ok := s.objects[key]
	s.mu.Unlock()
	if !ok {
		return fault.New(fault.StorageError, "object %s not found", key)
	}
	if err := writeFile(localPath, 8192); err != nil {
		return err
	}
	s.media.set(localPath, d)
	return nil
}

type memRepo struct {
	mu       sync.Mutex
	jobs     map[string]*entity.TranslationJob
	progress []int
}

func newMemRepo() *memRepo {
	return &memRepo{jobs: make(map[string]*entity.TranslationJob)}
}

func (r *memRepo) CreateJob(_ context.Context, job *entity.TranslationJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.JobID()] = job.Clone()
	return nil
}

func (r *memRepo) GetJob(_ context.Context, jobID string) (*entity.TranslationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, repo.ErrJobNotFound
	}
	return job.Clone(), nil
}

func (r *memRepo) ListJobs(context.Context, vo.JobStatus, int, int) ([]*entity.TranslationJob, int64, error) {
	return nil, 0, nil
}

func (r *memRepo) UpdateJob(_ context.Context, job *entity.TranslationJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := job.Clone()
	if old, ok := r.jobs[job.JobID()]; ok {
		d := stored.Details()
		d.Results = old.Details().Results
		stored = entity.NewTranslationJobWithDetails(d)
	}
	r.jobs[job.JobID()] = stored
	return nil
}

func (r *memRepo) ClaimJob(_ context.Context, jobID, owner string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return false, repo.ErrJobNotFound
	}
	if job.Owner() == "" {
		_ = job.AssignOwner(owner)
	}
	return job.OwnedBy(owner), nil
}

func (r *memRepo) UpdateProgress(_ context.Context, jobID string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, progress)
	if job, ok := r.jobs[jobID]; ok {
		d := job.Details()
		d.Progress = progress
		r.jobs[jobID] = entity.NewTranslationJobWithDetails(d)
	}
	return nil
}

func (r *memRepo) SaveResult(_ context.Context, res *entity.TranslationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[res.JobID()]
	if !ok {
		return repo.ErrJobNotFound
	}
	d := job.Details()
	for i, existing := range d.Results {
		if existing.Language() == res.Language() {
			d.Results[i] = entity.NewTranslationResultWithDetails(res.Details())
		}
	}
	r.jobs[res.JobID()] = entity.NewTranslationJobWithDetails(d)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []gateway.JobEvent
}

func (n *recordingNotifier) Notify(_ context.Context, e gateway.JobEvent) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

type memCancels struct {
	mu    sync.Mutex
	flags map[string]bool
	// trip cancels jobID after this many IsCancelled calls when > 0.
	trip  int
	calls int
	jobID string
}

func (c *memCancels) RequestCancel(_ context.Context, jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flags == nil {
		c.flags = make(map[string]bool)
	}
	c.flags[jobID] = true
	return nil
}

func (c *memCancels) IsCancelled(_ context.Context, jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.trip > 0 && c.calls >= c.trip && jobID == c.jobID {
		if c.flags == nil {
			c.flags = make(map[string]bool)
		}
		c.flags[jobID] = true
	}
	return c.flags[jobID]
}

func (c *memCancels) Clear(_ context.Context, jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.flags, jobID)
	return nil
}

func noRetry() RetryPolicy {
	return RetryPolicy{Attempts: 1}
}
