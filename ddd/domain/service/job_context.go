package service

import (
	"context"
	"sync"

	"dubbing-service/ddd/domain/entity"
	"dubbing-service/ddd/domain/vo"
)

// jobContext carries everything one job run needs. It is passed explicitly through
// the pipeline; nothing about the current job lives in package state.
type jobContext struct {
	job          *entity.TranslationJob
	workDir      string
	sourcePath   string
	audioPath    string
	audioSeconds float64
	gender       vo.Gender
	chunks       []*entity.AudioChunk
	transcripts  *transcriptCache
	progress     *progressTracker

	mu        sync.Mutex
	source    string
	cancelled bool
}

func newJobContext(job *entity.TranslationJob, workDir string) *jobContext {
	jc := &jobContext{
		job:         job,
		workDir:     workDir,
		gender:      job.VoiceGender(),
		transcripts: newTranscriptCache(),
	}
	if src := vo.NormalizeLanguage(job.SourceLanguage()); src != vo.AutoLanguage {
		jc.source = src
	}
	return jc
}

// sourceHint is the recognizer hint: the known or detected source, else "auto".
func (jc *jobContext) sourceHint() string {
	jc.mu.Lock()
	defer jc.mu.Unlock()
	if jc.source == "" {
		return vo.AutoLanguage
	}
	return jc.source
}

// resolveSource fixes the job's source language from the first transcript when the
// job asked for auto-detection. Later calls return the same answer.
func (jc *jobContext) resolveSource(t Transcript, detect func(string) string) string {
	jc.mu.Lock()
	defer jc.mu.Unlock()
	if jc.source != "" {
		return jc.source
	}
	if lang := vo.BaseLanguage(t.DetectedLanguage); lang != "" && lang != vo.AutoLanguage {
		jc.source = lang
	} else {
		jc.source = detect(t.Text)
	}
	return jc.source
}

func (jc *jobContext) markCancelled() {
	jc.mu.Lock()
	jc.cancelled = true
	jc.mu.Unlock()
}

func (jc *jobContext) wasCancelled() bool {
	jc.mu.Lock()
	defer jc.mu.Unlock()
	return jc.cancelled
}

// transcriptCache memoizes one transcription per chunk so that concurrent target
// languages share a single recognizer call.
type transcriptCache struct {
	mu      sync.Mutex
	entries map[int]*transcriptEntry
}

type transcriptEntry struct {
	done chan struct{}
	val  Transcript
	err  error
}

func newTranscriptCache() *transcriptCache {
	return &transcriptCache{entries: make(map[int]*transcriptEntry)}
}

func (c *transcriptCache) get(ctx context.Context, index int, load func(context.Context) (Transcript, error)) (Transcript, error) {
	c.mu.Lock()
	e, ok := c.entries[index]
	if !ok {
		e = &transcriptEntry{done: make(chan struct{})}
		c.entries[index] = e
		c.mu.Unlock()

		e.val, e.err = load(ctx)
		if e.err != nil && ctx.Err() != nil {
			// Let the next caller retry instead of caching a cancellation.
			c.mu.Lock()
			delete(c.entries, index)
			c.mu.Unlock()
		}
		close(e.done)
		return e.val, e.err
	}
	c.mu.Unlock()

	select {
	case <-e.done:
		return e.val, e.err
	case <-ctx.Done():
		return Transcript{}, ctx.Err()
	}
}

// progressTracker converts completed work units into a monotonic percentage.
// Progress stays below 100 until the job reaches a terminal state.
type progressTracker struct {
	mu       sync.Mutex
	job      *entity.TranslationJob
	total    int
	done     int
	onChange func(progress int)
}

func newProgressTracker(job *entity.TranslationJob, total int, onChange func(int)) *progressTracker {
	if total <= 0 {
		total = 1
	}
	return &progressTracker{job: job, total: total, onChange: onChange}
}

func (t *progressTracker) advance(units int) {
	if t == nil || units <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done += units
	if t.done > t.total {
		t.done = t.total
	}
	pct := t.done * 100 / t.total
	if pct > 99 {
		pct = 99
	}
	if t.job.UpdateProgress(pct) && t.onChange != nil {
		t.onChange(pct)
	}
}

func (t *progressTracker) current() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job.Progress()
}
