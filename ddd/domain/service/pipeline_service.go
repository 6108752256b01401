package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/sourcegraph/conc/pool"

	"dubbing-service/ddd/domain/entity"
	"dubbing-service/ddd/domain/fault"
	"dubbing-service/ddd/domain/gateway"
	"dubbing-service/ddd/domain/repo"
	"dubbing-service/ddd/domain/vo"
	"dubbing-service/pkg/logger"
)

// fixedUnits covers audio extraction and chunking.
const fixedUnits = 2

var errInterrupted = errors.New("pipeline interrupted")

// PipelineOptions 编排参数
type PipelineOptions struct {
	ChunkSeconds        float64
	LanguageConcurrency int
	TempDir             string
}

// PipelineDeps 编排器依赖
type PipelineDeps struct {
	Repo          repo.JobRepository
	Storage       gateway.ObjectStorage
	Media         gateway.MediaTool
	Notifier      gateway.Notifier
	Cancels       gateway.CancelRegistry
	Gender        gateway.GenderDetector
	Chunking      *ChunkingService
	Transcription *TranscriptionService
	Translation   *TranslationService
	Synthesis     *SynthesisService
	Assembly      *AssemblyService
	Retry         RetryPolicy
}

// PipelineService drives one job through extraction, chunking and the per-language
// translate, synthesize and assemble stages. It is the only writer of job and result
// records once a job has been submitted.
type PipelineService struct {
	deps PipelineDeps
	opts PipelineOptions
}

func NewPipelineService(deps PipelineDeps, opts PipelineOptions) *PipelineService {
	if opts.ChunkSeconds <= 0 {
		opts.ChunkSeconds = 30
	}
	if opts.LanguageConcurrency <= 0 {
		opts.LanguageConcurrency = 1
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &PipelineService{deps: deps, opts: opts}
}

// Run processes jobID to a terminal state. Job and language failures are recorded on
// the job; the returned error reports only problems loading or persisting it.
func (p *PipelineService) Run(ctx context.Context, jobID string) error {
	job, err := p.deps.Repo.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status().IsFinalStatus() {
		logger.Infof("job already terminal, skipping job_id=%s status=%s", jobID, job.Status())
		return nil
	}
	if p.cancelRequested(ctx, jobID) {
		return p.finishCancelled(ctx, job)
	}

	if err := job.Start(); err != nil {
		return err
	}
	if err := p.deps.Repo.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("persist job start: %w", err)
	}
	p.notify(ctx, gateway.JobEvent{JobID: jobID, Type: gateway.EventJobStarted, Status: job.Status().String()})
	logger.Info("job started", map[string]interface{}{
		"job_id":    jobID,
		"media_key": job.MediaKey(),
		"source":    job.SourceLanguage(),
		"targets":   job.TargetLanguages(),
	})

	workDir := filepath.Join(p.opts.TempDir, jobID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return p.failJob(ctx, job, fault.Wrap(fault.StorageError, err, "create work dir"))
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warnf("remove work dir failed job_id=%s dir=%s error=%v", jobID, workDir, err)
		}
	}()

	jc := newJobContext(job, workDir)
	if err := p.prepare(ctx, jc); err != nil {
		if errors.Is(err, errInterrupted) {
			return p.settle(ctx, jc)
		}
		return p.failJob(ctx, job, err)
	}

	langPool := pool.New().WithMaxGoroutines(p.opts.LanguageConcurrency)
	for _, res := range job.Results() {
		res := res
		langPool.Go(func() {
			p.runLanguage(ctx, jc, res)
		})
	}
	langPool.Wait()

	return p.settle(ctx, jc)
}

// prepare downloads the media, extracts and chunks its audio.
func (p *PipelineService) prepare(ctx context.Context, jc *jobContext) error {
	job := jc.job
	jc.sourcePath = filepath.Join(jc.workDir, "source"+path.Ext(job.MediaKey()))
	if err := p.deps.Retry.Do(ctx, "download media", func(ctx context.Context) error {
		return p.deps.Storage.GetFile(ctx, job.MediaKey(), jc.sourcePath)
	}); err != nil {
		if ctx.Err() != nil {
			return errInterrupted
		}
		if fault.KindOf(err) == "" {
			err = fault.Wrap(fault.StorageError, err, "download %s", job.MediaKey())
		}
		return err
	}

	info, err := p.deps.Media.Probe(ctx, jc.sourcePath)
	if err != nil {
		return err
	}
	if !info.HasAudioStream {
		return fault.New(fault.NoAudioContent, "media has no audio stream")
	}

	jc.audioPath = filepath.Join(jc.workDir, "audio.wav")
	if err := p.deps.Retry.Do(ctx, "extract audio", func(ctx context.Context) error {
		return p.deps.Media.ExtractAudio(ctx, jc.sourcePath, jc.audioPath)
	}); err != nil {
		if ctx.Err() != nil {
			return errInterrupted
		}
		return err
	}

	if jc.gender == vo.GenderAuto {
		jc.gender = vo.GenderUnknown
		if p.deps.Gender != nil {
			if g, err := p.deps.Gender.DetectGender(ctx, jc.audioPath); err != nil {
				logger.Warnf("speaker gender detection failed job_id=%s error=%v", job.JobID(), err)
			} else {
				jc.gender = g
				logger.Infof("speaker gender detected job_id=%s gender=%s", job.JobID(), g)
			}
		}
	}
	if p.shouldStop(ctx, jc) {
		return errInterrupted
	}

	chunkDir := filepath.Join(jc.workDir, "chunks")
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return fault.Wrap(fault.StorageError, err, "create chunk dir")
	}
	chunks, err := p.deps.Chunking.Chunk(ctx, jc.audioPath, p.opts.ChunkSeconds, chunkDir)
	if err != nil {
		if ctx.Err() != nil {
			return errInterrupted
		}
		return err
	}
	jc.chunks = chunks
	for _, c := range chunks {
		jc.audioSeconds = c.EndSeconds()
	}
	if audioInfo, err := p.deps.Media.Probe(ctx, jc.audioPath); err == nil && audioInfo.DurationSeconds > 0 {
		jc.audioSeconds = audioInfo.DurationSeconds
	}

	total := fixedUnits + len(job.Results())*unitsPerLanguage(len(chunks))
	jc.progress = newProgressTracker(job, total, func(pct int) {
		if err := p.deps.Repo.UpdateProgress(context.WithoutCancel(ctx), job.JobID(), pct); err != nil {
			logger.Warnf("persist progress failed job_id=%s error=%v", job.JobID(), err)
		}
		p.notify(ctx, gateway.JobEvent{JobID: job.JobID(), Type: gateway.EventJobProgress, Status: vo.JobStatusProcessing.String(), Progress: pct})
	})
	jc.progress.advance(fixedUnits)

	logger.Infof("audio prepared job_id=%s duration=%.2fs chunks=%d gender=%s", job.JobID(), jc.audioSeconds, len(chunks), jc.gender)
	return nil
}

// unitsPerLanguage: one per chunk translated, one per chunk synthesized, one for assembly.
func unitsPerLanguage(chunks int) int {
	return 2*chunks + 1
}

// runLanguage runs one target language to a terminal result. Its failure never
// affects other languages.
func (p *PipelineService) runLanguage(ctx context.Context, jc *jobContext, res *entity.TranslationResult) {
	lang := res.Language()
	used := 0
	err := p.processLanguage(ctx, jc, res, &used)
	if err == nil {
		p.notify(ctx, gateway.JobEvent{
			JobID:    jc.job.JobID(),
			Type:     gateway.EventLanguageCompleted,
			Status:   res.Status().String(),
			Language: lang,
			Progress: jc.progress.current(),
		})
		return
	}

	jc.progress.advance(unitsPerLanguage(len(jc.chunks)) - used)
	if errors.Is(err, errInterrupted) {
		jc.markCancelled()
		logger.Infof("language stopped at stage boundary job_id=%s language=%s stage=%s", jc.job.JobID(), lang, res.Status())
		return
	}

	fields := map[string]interface{}{
		"job_id":   jc.job.JobID(),
		"language": lang,
		"stage":    res.Status().String(),
		"kind":     string(fault.KindOf(err)),
		"error":    err.Error(),
	}
	var fe *fault.Error
	if errors.As(err, &fe) && fe.Detail != "" {
		fields["detail"] = fe.Detail
	}
	logger.Error("language failed", fields)

	msg := fault.UserMessage(err)
	if ferr := res.Fail(msg); ferr != nil {
		logger.Warnf("mark result failed job_id=%s language=%s error=%v", jc.job.JobID(), lang, ferr)
	}
	p.saveResult(ctx, res)
	p.notify(ctx, gateway.JobEvent{
		JobID:    jc.job.JobID(),
		Type:     gateway.EventLanguageFailed,
		Status:   res.Status().String(),
		Language: lang,
		Progress: jc.progress.current(),
		Message:  msg,
	})
}

func (p *PipelineService) processLanguage(ctx context.Context, jc *jobContext, res *entity.TranslationResult, used *int) error {
	lang := res.Language()
	langDir := filepath.Join(jc.workDir, vo.NormalizeLanguage(lang))
	if err := os.MkdirAll(langDir, 0o755); err != nil {
		return fault.Wrap(fault.StorageError, err, "create language dir")
	}
	step := func() {
		*used++
		jc.progress.advance(1)
	}

	if err := p.advance(ctx, res, vo.ResultStatusTranslating); err != nil {
		return err
	}
	translated := make([]*entity.AudioChunk, len(jc.chunks))
	scoreSum := 0.0
	for i, c := range jc.chunks {
		if p.shouldStop(ctx, jc) {
			return errInterrupted
		}
		c := c
		tr, err := jc.transcripts.get(ctx, c.Index, func(ctx context.Context) (Transcript, error) {
			return p.deps.Transcription.Transcribe(ctx, c, jc.sourceHint())
		})
		if err != nil {
			return p.stopOr(ctx, err)
		}
		source := jc.resolveSource(tr, p.deps.Translation.DetectLanguage)
		out, err := p.deps.Translation.Translate(ctx, tr.Text, source, lang)
		if err != nil {
			return p.stopOr(ctx, err)
		}

		lc := *c
		lc.Transcript = tr.Text
		lc.Confidence = tr.Confidence
		lc.TranslatedText = out.Text
		translated[i] = &lc

		conf := tr.Confidence
		if conf <= 0 {
			conf = 1
		}
		scoreSum += conf * out.RestorationRatio()
		step()
	}

	if err := p.advance(ctx, res, vo.ResultStatusSynthesizing); err != nil {
		return err
	}
	for _, lc := range translated {
		if p.shouldStop(ctx, jc) {
			return errInterrupted
		}
		out := filepath.Join(langDir, fmt.Sprintf("tts_%03d.wav", lc.Index))
		syn, err := p.deps.Synthesis.Synthesize(ctx, lc.TranslatedText, lang, jc.gender, lc.DurationSeconds, out)
		if err != nil {
			return p.stopOr(ctx, err)
		}
		lc.SynthesizedPath = syn.Path
		step()
	}

	if err := p.advance(ctx, res, vo.ResultStatusAssembling); err != nil {
		return err
	}
	if p.shouldStop(ctx, jc) {
		return errInterrupted
	}
	asm, err := p.deps.Assembly.Assemble(ctx, translated, jc.audioSeconds, jc.sourcePath, langDir)
	if err != nil {
		return p.stopOr(ctx, err)
	}

	prefix := fmt.Sprintf("jobs/%s/%s", jc.job.JobID(), vo.NormalizeLanguage(lang))
	videoKey := prefix + "/dubbed" + filepath.Ext(asm.VideoPath)
	audioKey := prefix + "/dubbed_track.wav"
	for _, up := range []struct{ local, key string }{{asm.VideoPath, videoKey}, {asm.AudioPath, audioKey}} {
		up := up
		if err := p.deps.Retry.Do(ctx, "upload "+up.key, func(ctx context.Context) error {
			_, err := p.deps.Storage.PutFile(ctx, up.local, up.key)
			return err
		}); err != nil {
			if fault.KindOf(err) == "" {
				err = fault.Wrap(fault.StorageError, err, "upload %s", up.key)
			}
			return p.stopOr(ctx, err)
		}
	}
	step()

	translationScore := 0.0
	if len(translated) > 0 {
		translationScore = scoreSum / float64(len(translated))
	}
	if err := res.Complete(videoKey, audioKey, translationScore, AudioFidelity(asm.AudioSeconds, jc.audioSeconds)); err != nil {
		return err
	}
	p.saveResult(ctx, res)
	logger.Infof("language completed job_id=%s language=%s output=%s audio=%.2fs source=%.2fs",
		jc.job.JobID(), lang, videoKey, asm.AudioSeconds, jc.audioSeconds)
	return nil
}

func (p *PipelineService) advance(ctx context.Context, res *entity.TranslationResult, status vo.ResultStatus) error {
	if err := res.Advance(status); err != nil {
		return err
	}
	p.saveResult(ctx, res)
	return nil
}

// stopOr maps a failure caused by context cancellation to errInterrupted.
func (p *PipelineService) stopOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errInterrupted
	}
	return err
}

func (p *PipelineService) shouldStop(ctx context.Context, jc *jobContext) bool {
	return ctx.Err() != nil || p.cancelRequested(ctx, jc.job.JobID())
}

func (p *PipelineService) cancelRequested(ctx context.Context, jobID string) bool {
	return p.deps.Cancels != nil && p.deps.Cancels.IsCancelled(ctx, jobID)
}

// settle decides the terminal state of the job after the language fan-out or an interrupted
// preparation: cancelled on user request, failed when the service is shutting down,
// otherwise decided by the language results.
func (p *PipelineService) settle(ctx context.Context, jc *jobContext) error {
	job := jc.job
	switch {
	case p.cancelRequested(context.WithoutCancel(ctx), job.JobID()):
		return p.finishCancelled(ctx, job)
	case ctx.Err() != nil:
		return p.failJob(ctx, job, fault.New(fault.Interrupted, "service shutting down"))
	case jc.wasCancelled():
		return p.finishCancelled(ctx, job)
	}

	if err := job.Finalize(); err != nil {
		return err
	}
	p.persistTerminal(ctx, job)
	evt := gateway.EventJobCompleted
	if job.Status() == vo.JobStatusFailed {
		evt = gateway.EventJobFailed
	}
	p.notify(ctx, gateway.JobEvent{JobID: job.JobID(), Type: evt, Status: job.Status().String(), Progress: job.Progress(), Message: job.ErrorMessage()})
	logger.Infof("job finished job_id=%s status=%s", job.JobID(), job.Status())
	return nil
}

func (p *PipelineService) finishCancelled(ctx context.Context, job *entity.TranslationJob) error {
	if err := job.Cancel(); err != nil {
		return err
	}
	p.persistTerminal(ctx, job)
	p.notify(ctx, gateway.JobEvent{JobID: job.JobID(), Type: gateway.EventJobCancelled, Status: job.Status().String(), Progress: job.Progress()})
	logger.Infof("job cancelled job_id=%s", job.JobID())
	return nil
}

func (p *PipelineService) failJob(ctx context.Context, job *entity.TranslationJob, cause error) error {
	fields := map[string]interface{}{
		"job_id": job.JobID(),
		"kind":   string(fault.KindOf(cause)),
		"error":  cause.Error(),
	}
	var fe *fault.Error
	if errors.As(cause, &fe) && fe.Detail != "" {
		fields["detail"] = fe.Detail
	}
	logger.Error("job failed", fields)

	if err := job.Fail(fault.UserMessage(cause)); err != nil {
		return err
	}
	p.persistTerminal(ctx, job)
	p.notify(ctx, gateway.JobEvent{JobID: job.JobID(), Type: gateway.EventJobFailed, Status: job.Status().String(), Progress: job.Progress(), Message: job.ErrorMessage()})
	return nil
}

// persistTerminal writes the final job and result state even if ctx was cancelled.
func (p *PipelineService) persistTerminal(ctx context.Context, job *entity.TranslationJob) {
	ctx = context.WithoutCancel(ctx)
	if err := p.deps.Repo.UpdateJob(ctx, job); err != nil {
		logger.Errorf("persist job failed job_id=%s error=%v", job.JobID(), err)
	}
	for _, r := range job.Results() {
		p.saveResult(ctx, r)
	}
	if p.deps.Cancels != nil {
		if err := p.deps.Cancels.Clear(ctx, job.JobID()); err != nil {
			logger.Warnf("clear cancel flag failed job_id=%s error=%v", job.JobID(), err)
		}
	}
}

func (p *PipelineService) saveResult(ctx context.Context, res *entity.TranslationResult) {
	if err := p.deps.Repo.SaveResult(context.WithoutCancel(ctx), res); err != nil {
		logger.Errorf("persist result failed job_id=%s language=%s error=%v", res.JobID(), res.Language(), err)
	}
}

func (p *PipelineService) notify(ctx context.Context, evt gateway.JobEvent) {
	if p.deps.Notifier == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	p.deps.Notifier.Notify(context.WithoutCancel(ctx), evt)
}
