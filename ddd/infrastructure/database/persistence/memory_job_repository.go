package persistence

import (
	"context"
	"sort"
	"sync"

	"dubbing-service/ddd/domain/entity"
	"dubbing-service/ddd/domain/repo"
	"dubbing-service/ddd/domain/vo"
)

// MemoryJobRepository keeps jobs in process memory. It backs single-process runs
// where no database is configured; stored jobs are copies so callers never share
// state with the repository.
type MemoryJobRepository struct {
	mu     sync.RWMutex
	nextID uint64
	jobs   map[string]*entity.TranslationJob
}

func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[string]*entity.TranslationJob)}
}

var _ repo.JobRepository = (*MemoryJobRepository)(nil)

func (r *MemoryJobRepository) CreateJob(_ context.Context, job *entity.TranslationJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	job.SetID(r.nextID)
	r.jobs[job.JobID()] = job.Clone()
	return nil
}

func (r *MemoryJobRepository) GetJob(_ context.Context, jobID string) (*entity.TranslationJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, repo.ErrJobNotFound
	}
	return job.Clone(), nil
}

func (r *MemoryJobRepository) ListJobs(_ context.Context, status vo.JobStatus, limit, offset int) ([]*entity.TranslationJob, int64, error) {
	r.mu.RLock()
	matched := make([]*entity.TranslationJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		if status == "" || job.Status() == status {
			matched = append(matched, job.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt().Equal(matched[j].CreatedAt()) {
			return matched[i].ID() > matched[j].ID()
		}
		return matched[i].CreatedAt().After(matched[j].CreatedAt())
	})
	total := int64(len(matched))
	if offset >= len(matched) {
		return []*entity.TranslationJob{}, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (r *MemoryJobRepository) UpdateJob(_ context.Context, job *entity.TranslationJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.jobs[job.JobID()]
	if !ok {
		return repo.ErrJobNotFound
	}
	d := job.Details()
	d.Results = old.Details().Results
	d.Owner = old.Owner()
	r.jobs[job.JobID()] = entity.NewTranslationJobWithDetails(d)
	return nil
}

func (r *MemoryJobRepository) ClaimJob(_ context.Context, jobID, owner string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return false, repo.ErrJobNotFound
	}
	if job.Owner() == "" {
		if err := job.AssignOwner(owner); err != nil {
			return false, nil
		}
	}
	return job.OwnedBy(owner), nil
}

func (r *MemoryJobRepository) UpdateProgress(_ context.Context, jobID string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return repo.ErrJobNotFound
	}
	job.UpdateProgress(progress)
	return nil
}

func (r *MemoryJobRepository) SaveResult(_ context.Context, result *entity.TranslationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[result.JobID()]
	if !ok {
		return repo.ErrJobNotFound
	}
	d := job.Details()
	for i, existing := range d.Results {
		if existing.Language() == result.Language() {
			d.Results[i] = entity.NewTranslationResultWithDetails(result.Details())
		}
	}
	r.jobs[result.JobID()] = entity.NewTranslationJobWithDetails(d)
	return nil
}
