// Package container assembles the pipeline and its adapters from the opened
// resources, choosing in-process fallbacks for every optional backend.
package container

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"dubbing-service/ddd/domain/gateway"
	"dubbing-service/ddd/domain/repo"
	"dubbing-service/ddd/domain/service"
	"dubbing-service/ddd/infrastructure/analysis"
	"dubbing-service/ddd/infrastructure/cancel"
	"dubbing-service/ddd/infrastructure/database/persistence"
	"dubbing-service/ddd/infrastructure/executor"
	"dubbing-service/ddd/infrastructure/notify"
	"dubbing-service/ddd/infrastructure/speech"
	"dubbing-service/ddd/infrastructure/storage"
	"dubbing-service/internal/resource"
	"dubbing-service/pkg/assert"
	"dubbing-service/pkg/config"
	"dubbing-service/pkg/kafka"
	"dubbing-service/pkg/logger"
)

const (
	notifyBuffer  = 256
	notifyTimeout = 5 * time.Second
)

// Container holds the shared adapters of one process.
type Container struct {
	Config   *config.Config
	Repo     repo.JobRepository
	Storage  gateway.ObjectStorage
	Cancels  gateway.CancelRegistry
	Notifier gateway.Notifier
	Media    *executor.FFmpegExecutor
	Pairs    *service.PairTable
	Pipeline *service.PipelineService

	async  *notify.AsyncNotifier
	speech *speech.Provider
}

var (
	containerOnce      sync.Once
	singletonContainer *Container
)

// DefaultContainer 获取全局容器单例，必须在资源初始化之后调用
func DefaultContainer() *Container {
	assert.NotCircular()
	containerOnce.Do(func() {
		c, err := New(config.GetGlobalConfig())
		if err != nil {
			panic(fmt.Sprintf("assemble container: %v", err))
		}
		singletonContainer = c
	})
	assert.NotNil(singletonContainer)
	return singletonContainer
}

// New wires adapters for cfg. Backends whose resource is not open fall back to
// their in-process variant: memory repository, memory cancel registry, log notifier.
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	c := &Container{Config: cfg}

	c.Repo = newRepository()
	c.Cancels = newCancelRegistry(cfg)

	store, err := newStorage(cfg)
	if err != nil {
		return nil, err
	}
	c.Storage = store

	c.Notifier, c.async = newNotifier(cfg)
	c.Media = executor.NewFFmpegExecutor(cfg.Media)
	c.Pairs = service.NewPairTable(cfg.Pipeline.SupportedPairs)

	provider, err := speech.NewProvider(cfg.Speech)
	if err != nil {
		return nil, err
	}
	c.speech = provider
	c.Pipeline = c.newPipeline(provider)
	return c, nil
}

// Close flushes pending notifications and releases the speech clients.
func (c *Container) Close() {
	if c.async != nil {
		c.async.Close()
	}
	if c.speech != nil {
		if err := c.speech.Close(); err != nil {
			logger.Warnf("close speech clients: %v", err)
		}
	}
}

func (c *Container) newPipeline(provider *speech.Provider) *service.PipelineService {
	cfg := c.Config
	retry := service.RetryPolicy{Attempts: cfg.Pipeline.RetryAttempts, Backoff: cfg.Pipeline.RetryBackoff}
	nouns := service.NewProperNounDetector(service.ParseStrictness(cfg.Pipeline.ProperNounStrictness))

	return service.NewPipelineService(service.PipelineDeps{
		Repo:     c.Repo,
		Storage:  c.Storage,
		Media:    c.Media,
		Notifier: c.Notifier,
		Cancels:  c.Cancels,
		Gender:   analysis.NewPitchGenderDetector(),
		Chunking: service.NewChunkingService(c.Media, service.ChunkingOptions{
			MinChunkSeconds: cfg.Pipeline.MinChunkSeconds,
			MinChunkBytes:   cfg.Pipeline.MinChunkBytes,
		}),
		Transcription: service.NewTranscriptionService(provider.Recognizer, nouns, cfg.Speech.MaxAlternatives, retry),
		Translation:   service.NewTranslationService(provider.Translator, nouns, service.NewLanguageClassifier(), c.Pairs, retry),
		Synthesis: service.NewSynthesisService(provider.Synthesizer, c.Media, service.NewVoiceCatalog(cfg.VoiceTable()), service.SynthesisOptions{
			TempoMin:  cfg.Pipeline.TempoMin,
			TempoMax:  cfg.Pipeline.TempoMax,
			Tolerance: cfg.Pipeline.DurationTolerance,
		}, retry),
		Assembly: service.NewAssemblyService(c.Media, retry),
		Retry:    retry,
	}, service.PipelineOptions{
		ChunkSeconds:        cfg.Pipeline.ChunkSeconds,
		LanguageConcurrency: cfg.Worker.LanguageConcurrency,
		TempDir:             cfg.Media.TempDir,
	})
}

func newRepository() repo.JobRepository {
	if db := resource.DefaultMysqlResource().MainDB(); db != nil {
		return persistence.NewJobRepository(db)
	}
	logger.Warnf("job repository is in-memory; jobs are lost on restart")
	return persistence.NewMemoryJobRepository()
}

func newCancelRegistry(cfg *config.Config) gateway.CancelRegistry {
	if client := resource.DefaultRedisResource().Client(); client != nil {
		return cancel.NewRedisRegistry(client, cfg.Redis.CancelTTL)
	}
	return cancel.NewMemoryRegistry()
}

func newStorage(cfg *config.Config) (gateway.ObjectStorage, error) {
	switch strings.ToLower(cfg.Storage.Driver) {
	case "local":
		return storage.NewLocalStorage(cfg.Storage.LocalDir)
	case "minio", "":
		res := resource.DefaultMinioResource()
		if res.GetClient() == nil {
			return nil, fmt.Errorf("minio storage selected but the minio resource is not open")
		}
		return storage.NewMinioStorage(res.GetClient(), res.GetBucketName()), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func newNotifier(cfg *config.Config) (gateway.Notifier, *notify.AsyncNotifier) {
	var sink gateway.Notifier
	switch strings.ToLower(cfg.Notify.Driver) {
	case "kafka":
		client := kafka.DefaultClient()
		if !client.Opened() {
			logger.Warnf("notify driver kafka selected but kafka is not open, falling back to log")
			return notify.NewLogNotifier(), nil
		}
		sink = notify.NewKafkaNotifier(client, cfg.Kafka.Topics.DubbingEvents)
	case "rabbitmq":
		res := resource.DefaultRabbitMQResource()
		if !res.Opened() {
			logger.Warnf("notify driver rabbitmq selected but rabbitmq is not open, falling back to log")
			return notify.NewLogNotifier(), nil
		}
		sink = notify.NewRabbitMQNotifier(res)
	default:
		return notify.NewLogNotifier(), nil
	}
	async := notify.NewAsyncNotifier(sink, notifyBuffer, notifyTimeout)
	return async, async
}
