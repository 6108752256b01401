package entity

import (
	"testing"

	"dubbing-service/ddd/domain/vo"
)

func newJob(t *testing.T, langs ...string) *TranslationJob {
	t.Helper()
	job, err := NewTranslationJob("uploads/talk.mp4", "en", langs, vo.GenderUnknown)
	if err != nil {
		t.Fatalf("NewTranslationJob: %v", err)
	}
	return job
}

func TestNewTranslationJobValidation(t *testing.T) {
	if _, err := NewTranslationJob("", "en", []string{"hi"}, vo.GenderUnknown); err == nil {
		t.Fatal("expected error for empty media key")
	}
	if _, err := NewTranslationJob("k", "en", nil, vo.GenderUnknown); err == nil {
		t.Fatal("expected error for no target languages")
	}
	job, err := NewTranslationJob("k", "", []string{"hi", "ta"}, vo.GenderUnknown)
	if err != nil {
		t.Fatalf("NewTranslationJob: %v", err)
	}
	if job.SourceLanguage() != vo.AutoLanguage {
		t.Fatalf("source = %q, want auto", job.SourceLanguage())
	}
	if len(job.Results()) != 2 || job.Result("ta") == nil {
		t.Fatalf("expected one result per target language, got %d", len(job.Results()))
	}
}

func TestJobProgressIsMonotonic(t *testing.T) {
	job := newJob(t, "hi")
	if err := job.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !job.UpdateProgress(40) {
		t.Fatal("expected progress update")
	}
	if job.UpdateProgress(30) {
		t.Fatal("progress must not go backwards")
	}
	job.UpdateProgress(250)
	if job.Progress() != 100 {
		t.Fatalf("progress = %d, want clamp to 100", job.Progress())
	}
}

func TestFinalizePartialSuccess(t *testing.T) {
	job := newJob(t, "hi", "ta")
	_ = job.Start()

	hi := job.Result("hi")
	for _, s := range []vo.ResultStatus{vo.ResultStatusTranslating, vo.ResultStatusSynthesizing, vo.ResultStatusAssembling} {
		if err := hi.Advance(s); err != nil {
			t.Fatalf("Advance(%s): %v", s, err)
		}
	}
	if err := hi.Complete("out.mp4", "out.wav", 0.9, 1.3); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if hi.AudioScore() != 1 {
		t.Fatalf("audio score should be clamped, got %v", hi.AudioScore())
	}

	ta := job.Result("ta")
	_ = ta.Advance(vo.ResultStatusTranslating)
	if err := ta.Fail("TRANSCRIPTION_UNAVAILABLE: no speech"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	if err := job.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if job.Status() != vo.JobStatusCompleted || job.Progress() != 100 {
		t.Fatalf("status=%s progress=%d", job.Status(), job.Progress())
	}
	if ta.Status() != vo.ResultStatusFailed {
		t.Fatalf("failed result must stay failed, got %s", ta.Status())
	}
}

func TestFinalizeAllFailed(t *testing.T) {
	job := newJob(t, "hi", "ta")
	_ = job.Start()
	_ = job.Result("hi").Fail("a")
	_ = job.Result("ta").Fail("b")
	if err := job.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if job.Status() != vo.JobStatusFailed || job.ErrorMessage() != "b" {
		t.Fatalf("status=%s error=%q", job.Status(), job.ErrorMessage())
	}
}

func TestCancelOnlyFromNonTerminal(t *testing.T) {
	job := newJob(t, "hi")
	if err := job.Cancel(); err != nil {
		t.Fatalf("cancel pending job: %v", err)
	}
	if job.Result("hi").Status() != vo.ResultStatusCancelled {
		t.Fatalf("result status = %s", job.Result("hi").Status())
	}
	if err := job.Cancel(); err == nil {
		t.Fatal("cancelling a terminal job must fail")
	}
	if err := job.Start(); err == nil {
		t.Fatal("starting a cancelled job must fail")
	}
}

func TestResultAdvanceRejectsSkips(t *testing.T) {
	r := NewTranslationResult("job", "hi")
	if err := r.Advance(vo.ResultStatusAssembling); err == nil {
		t.Fatal("expected error skipping stages")
	}
	if err := r.Advance(vo.ResultStatusCompleted); err == nil {
		t.Fatal("Advance must not accept terminal states")
	}
}

func TestJobOwnerSurvivesClone(t *testing.T) {
	job := newJob(t, "hi")
	if job.OwnedBy("") {
		t.Fatal("an unowned job must not match the empty owner")
	}
	if err := job.AssignOwner("node-a"); err != nil {
		t.Fatalf("AssignOwner: %v", err)
	}
	clone := job.Clone()
	if clone.Owner() != "node-a" || !clone.OwnedBy("node-a") || clone.OwnedBy("node-b") {
		t.Fatalf("owner = %q", clone.Owner())
	}

	_ = job.Cancel()
	if err := job.AssignOwner("node-b"); err == nil {
		t.Fatal("terminal job must keep its owner")
	}
}
