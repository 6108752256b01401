package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server          ServerConfig          `mapstructure:"server"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Redis           RedisConfig           `mapstructure:"redis"`
	Kafka           KafkaConfig           `mapstructure:"kafka"`
	RabbitMQ        RabbitMQConfig        `mapstructure:"rabbitmq"`
	JWT             JWTConfig             `mapstructure:"jwt"`
	Log             LogConfig             `mapstructure:"log"`
	Minio           MinioConfig           `mapstructure:"minio"`
	Storage         StorageConfig         `mapstructure:"storage"`
	Media           MediaConfig           `mapstructure:"media"`
	Pipeline        PipelineConfig        `mapstructure:"pipeline"`
	Speech          SpeechConfig          `mapstructure:"speech"`
	Voices          []VoiceConfig         `mapstructure:"voices"`
	Notify          NotifyConfig          `mapstructure:"notify"`
	Worker          WorkerConfig          `mapstructure:"worker"`
	Profiling       ProfilingConfig       `mapstructure:"profiling"`
	ServiceRegistry ServiceRegistryConfig `mapstructure:"service_registry"`
	GRPCServer      GRPCServerConfig      `mapstructure:"grpc_server"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	Charset         string        `mapstructure:"charset"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	EnableTLS    bool          `mapstructure:"enable_tls"`
	CancelTTL    time.Duration `mapstructure:"cancel_ttl"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	BootstrapServers     []string          `mapstructure:"bootstrap_servers"`
	ClientID             string            `mapstructure:"client_id"`
	GroupID              string            `mapstructure:"group_id"`
	Enabled              bool              `mapstructure:"enabled"`
	Topics               KafkaTopicsConfig `mapstructure:"topics"`
	CommitOnDecodeError  bool              `mapstructure:"commit_on_decode_error"`
	CommitOnProcessError bool              `mapstructure:"commit_on_process_error"`
}

type KafkaTopicsConfig struct {
	DubbingJobs   string `mapstructure:"dubbing_jobs"`
	DubbingEvents string `mapstructure:"dubbing_events"`
}

// RabbitMQConfig describes the AMQP notification sink.
type RabbitMQConfig struct {
	URL        string `mapstructure:"url"`
	Exchange   string `mapstructure:"exchange"`
	EventQueue string `mapstructure:"event_queue"`
}

// JWTConfig JWT配置. An empty secret disables bearer authentication.
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	Filename string `mapstructure:"filename"`
}

// MinioConfig MinIO配置
type MinioConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	AccessKey       string        `mapstructure:"access_key"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	SecretKey       string        `mapstructure:"secret_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	BucketName      string        `mapstructure:"bucket_name"`
	PresignTTL      time.Duration `mapstructure:"presign_ttl"`
}

// StorageConfig selects the object store: "minio" or "local" (a directory tree,
// used for single-machine runs and tests).
type StorageConfig struct {
	Driver   string `mapstructure:"driver"`
	LocalDir string `mapstructure:"local_dir"`
}

// MediaConfig ffmpeg/ffprobe 配置
type MediaConfig struct {
	FFmpegPath     string        `mapstructure:"ffmpeg_path"`
	FFprobePath    string        `mapstructure:"ffprobe_path"`
	TempDir        string        `mapstructure:"temp_dir"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	ExtractTimeout time.Duration `mapstructure:"extract_timeout"`
	SegmentTimeout time.Duration `mapstructure:"segment_timeout"`
	RemuxTimeout   time.Duration `mapstructure:"remux_timeout"`
}

// PipelineConfig controls chunking, retries and timing reconciliation.
type PipelineConfig struct {
	ChunkSeconds         float64       `mapstructure:"chunk_seconds"`
	MinChunkSeconds      float64       `mapstructure:"min_chunk_seconds"`
	MinChunkBytes        int64         `mapstructure:"min_chunk_bytes"`
	RetryAttempts        int           `mapstructure:"retry_attempts"`
	RetryBackoff         time.Duration `mapstructure:"retry_backoff"`
	TempoMin             float64       `mapstructure:"tempo_min"`
	TempoMax             float64       `mapstructure:"tempo_max"`
	DurationTolerance    float64       `mapstructure:"duration_tolerance"`
	ProperNounStrictness string        `mapstructure:"proper_noun_strictness"`
	SupportedPairs       []string      `mapstructure:"supported_pairs"`
	SupportedLanguages   []string      `mapstructure:"supported_languages"`
}

// SpeechConfig 语音识别/翻译/合成服务配置
type SpeechConfig struct {
	Provider           string        `mapstructure:"provider"`
	APIKey             string        `mapstructure:"api_key"`
	// 服务地址覆盖（host:port），为空时使用 SDK 默认地址
	RecognizeEndpoint  string        `mapstructure:"recognize_endpoint"`
	TranslateEndpoint  string        `mapstructure:"translate_endpoint"`
	SynthesizeEndpoint string        `mapstructure:"synthesize_endpoint"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	MaxAlternatives    int           `mapstructure:"max_alternatives"`
	WhisperBinary      string        `mapstructure:"whisper_binary"`
	WhisperModel       string        `mapstructure:"whisper_model"`
}

// VoiceConfig maps a language (and optionally a gender) to a synthesis voice.
type VoiceConfig struct {
	Language string `mapstructure:"language"`
	Gender   string `mapstructure:"gender"`
	Voice    string `mapstructure:"voice"`
}

// NotifyConfig selects the notification sink: log, kafka or rabbitmq.
type NotifyConfig struct {
	Driver string `mapstructure:"driver"`
}

// WorkerConfig Worker相关配置
type WorkerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	// InstanceID 标识任务归属的实例，需在重启后保持不变；默认取主机名
	InstanceID          string        `mapstructure:"instance_id"`
	MaxConcurrentJobs   int           `mapstructure:"max_concurrent_jobs"`
	LanguageConcurrency int           `mapstructure:"language_concurrency"`
	QueueCapacity       int           `mapstructure:"queue_capacity"`
	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`
}

// ProfilingConfig pyroscope 配置
type ProfilingConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ServerAddress string `mapstructure:"server_address"`
}

// ServiceRegistryConfig registration configuration.
type ServiceRegistryConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Endpoints       []string      `mapstructure:"endpoints"`
	ServiceName     string        `mapstructure:"service_name"`
	ServiceID       string        `mapstructure:"service_id"`
	RegisterHost    string        `mapstructure:"register_host"`
	TTL             time.Duration `mapstructure:"ttl"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// GRPCServerConfig gRPC server configuration.
type GRPCServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Load 加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetDefault("worker.enabled", true)
	v.SetDefault("grpc_server.enabled", true)
	v.SetDefault("kafka.client_id", "dubbing-service")
	v.SetDefault("kafka.group_id", "dubbing-service-group")
	v.SetDefault("kafka.topics.dubbing_jobs", "dubbing.jobs")
	v.SetDefault("kafka.topics.dubbing_events", "dubbing.events")
	v.SetDefault("kafka.commit_on_decode_error", true)
	v.SetDefault("kafka.commit_on_process_error", false)

	// 设置环境变量前缀
	v.SetEnvPrefix("DUBBING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.normalize()

	return &config, nil
}

// Default returns a configuration with every default applied and no file read.
// The CLI uses it for local runs.
func Default() *Config {
	c := &Config{}
	c.Worker.Enabled = true
	c.normalize()
	return c
}

// normalize 补全配置的默认值
func (c *Config) normalize() {
	if c.Server.Port == 0 {
		c.Server.Port = 8083
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}

	if c.Minio.AccessKeyID == "" {
		c.Minio.AccessKeyID = c.Minio.AccessKey
	}
	if c.Minio.SecretAccessKey == "" {
		c.Minio.SecretAccessKey = c.Minio.SecretKey
	}
	if c.Minio.PresignTTL <= 0 {
		c.Minio.PresignTTL = 24 * time.Hour
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "minio"
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = "./data/objects"
	}

	if c.Worker.MaxConcurrentJobs <= 0 {
		c.Worker.MaxConcurrentJobs = 2
	}
	if c.Worker.LanguageConcurrency <= 0 {
		c.Worker.LanguageConcurrency = 2
	}
	if c.Worker.QueueCapacity <= 0 {
		c.Worker.QueueCapacity = c.Worker.MaxConcurrentJobs * 10
	}
	if c.Worker.ShutdownGracePeriod == 0 {
		c.Worker.ShutdownGracePeriod = 10 * time.Second
	}
	if c.Worker.InstanceID == "" {
		if host, err := os.Hostname(); err == nil && host != "" {
			c.Worker.InstanceID = host
		} else {
			c.Worker.InstanceID = "dubbing-worker"
		}
	}

	if c.Media.FFmpegPath == "" {
		c.Media.FFmpegPath = "ffmpeg"
	}
	if c.Media.FFprobePath == "" {
		c.Media.FFprobePath = "ffprobe"
	}
	if c.Media.TempDir == "" {
		c.Media.TempDir = "/tmp/dubbing"
	}
	if c.Media.ProbeTimeout <= 0 {
		c.Media.ProbeTimeout = 30 * time.Second
	}
	if c.Media.ExtractTimeout <= 0 {
		c.Media.ExtractTimeout = 5 * time.Minute
	}
	if c.Media.SegmentTimeout <= 0 {
		c.Media.SegmentTimeout = time.Minute
	}
	if c.Media.RemuxTimeout <= 0 {
		c.Media.RemuxTimeout = 10 * time.Minute
	}

	if c.Pipeline.ChunkSeconds <= 0 {
		c.Pipeline.ChunkSeconds = 30
	}
	if c.Pipeline.MinChunkSeconds <= 0 {
		c.Pipeline.MinChunkSeconds = 0.5
	}
	if c.Pipeline.MinChunkBytes <= 0 {
		c.Pipeline.MinChunkBytes = 1024
	}
	if c.Pipeline.RetryAttempts <= 0 {
		c.Pipeline.RetryAttempts = 3
	}
	if c.Pipeline.RetryBackoff <= 0 {
		c.Pipeline.RetryBackoff = time.Second
	}
	if c.Pipeline.TempoMin <= 0 {
		c.Pipeline.TempoMin = 0.5
	}
	if c.Pipeline.TempoMax <= 0 {
		c.Pipeline.TempoMax = 2.0
	}
	if c.Pipeline.DurationTolerance <= 0 {
		c.Pipeline.DurationTolerance = 0.05
	}
	if c.Pipeline.ProperNounStrictness == "" {
		c.Pipeline.ProperNounStrictness = "standard"
	}

	if c.Speech.Provider == "" {
		c.Speech.Provider = "google"
	}
	if c.Speech.RequestTimeout <= 0 {
		c.Speech.RequestTimeout = 60 * time.Second
	}
	if c.Speech.MaxAlternatives <= 0 {
		c.Speech.MaxAlternatives = 3
	}

	if c.Notify.Driver == "" {
		c.Notify.Driver = "log"
	}
	if c.Redis.CancelTTL <= 0 {
		c.Redis.CancelTTL = 24 * time.Hour
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}

	if c.GRPCServer.Host == "" {
		c.GRPCServer.Host = "0.0.0.0"
	}
	if c.GRPCServer.Port == 0 {
		c.GRPCServer.Port = 9095
	}
	if c.ServiceRegistry.ServiceName == "" {
		c.ServiceRegistry.ServiceName = "dubbing-service"
	}
	if c.ServiceRegistry.TTL == 0 {
		c.ServiceRegistry.TTL = 30 * time.Second
	}
	if c.ServiceRegistry.RefreshInterval == 0 {
		c.ServiceRegistry.RefreshInterval = 10 * time.Second
	}
	if len(c.Kafka.BootstrapServers) == 0 {
		c.Kafka.BootstrapServers = []string{"localhost:29092"}
	}
	if c.Kafka.ClientID == "" {
		c.Kafka.ClientID = "dubbing-service"
	}
	if c.Kafka.Topics.DubbingJobs == "" {
		c.Kafka.Topics.DubbingJobs = "dubbing.jobs"
	}
	if c.Kafka.Topics.DubbingEvents == "" {
		c.Kafka.Topics.DubbingEvents = "dubbing.events"
	}
	if c.RabbitMQ.EventQueue == "" {
		c.RabbitMQ.EventQueue = "dubbing.events"
	}
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		c.Username, c.Password, c.Host, c.Port, c.Database, c.Charset)
}

// GetRedisAddr 获取Redis地址
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// VoiceTable flattens the configured voices into the "lang" / "lang/gender" keyed form
// used by the voice catalog.
func (c *Config) VoiceTable() map[string]string {
	out := make(map[string]string, len(c.Voices))
	for _, v := range c.Voices {
		key := strings.ToLower(strings.TrimSpace(v.Language))
		if key == "" || v.Voice == "" {
			continue
		}
		if g := strings.ToLower(strings.TrimSpace(v.Gender)); g != "" {
			key += "/" + g
		}
		out[key] = v.Voice
	}
	return out
}
