package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/therealutkarshpriyadarshi/restream/pkg/models"
)

// EnvPrefix prefixes every environment override, e.g. RESTREAM_SERVER_PORT
const EnvPrefix = "RESTREAM"

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Broadcast BroadcastConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	Storage   StorageConfig
	Queue     QueueConfig
	Tracing   TracingConfig
	Telemetry TelemetryConfig
	Webhooks  WebhooksConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimit       float64 // requests per second per client
	RateBurst       int
	LogBufferLines  int // encoder output lines retained for the logs endpoint
}

// BroadcastConfig holds encoder and ingest configuration
type BroadcastConfig struct {
	FFmpegPath       string
	IngestURL        string
	LiveInputURL     string
	Resolution       string
	FrameRate        int
	VideoBitrate     int // kbps
	AudioBitrate     int // kbps
	KeyframeInterval int // seconds
	VideoCodec       string
	Preset           string
	AudioCodec       string
	AudioSampleRate  int
	OutputFormat     string
	GracePeriod      time.Duration
	KillTimeout      time.Duration
	DrainTimeout     time.Duration
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// MetricsConfig holds the prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	StatusTTL time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
	URLExpiry       time.Duration
}

// QueueConfig holds message queue configuration
type QueueConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
	Exchange string
}

// TracingConfig holds Jaeger configuration
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
}

// TelemetryConfig holds the stream metrics source configuration
type TelemetryConfig struct {
	Enabled  bool
	Interval time.Duration
	Seed     int64 // 0 seeds from the clock
}

// WebhooksConfig holds lifecycle notification configuration
type WebhooksConfig struct {
	Enabled    bool
	Timeout    time.Duration
	MaxRetries int
	Endpoints  []WebhookEndpoint
}

// WebhookEndpoint is one notification target
type WebhookEndpoint struct {
	URL    string
	Secret string
	Events []string // empty means every event
}

// Load reads configuration from an optional YAML file and RESTREAM_* environment
// variables. An empty path uses defaults and the environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Metrics.Enabled && c.Metrics.Port == c.Server.Port {
		errs = append(errs, fmt.Errorf("metrics.port must differ from server.port"))
	}
	if _, err := c.Broadcast.EncodingDefaults(); err != nil {
		errs = append(errs, err)
	}
	if c.Broadcast.IngestURL == "" {
		errs = append(errs, fmt.Errorf("broadcast.ingestURL is required"))
	}
	if c.Webhooks.Enabled {
		for i, ep := range c.Webhooks.Endpoints {
			if ep.URL == "" {
				errs = append(errs, fmt.Errorf("webhooks.endpoints[%d].url is required", i))
			}
		}
	}

	return errors.Join(errs...)
}

// EncodingDefaults converts the configured defaults into request defaults
func (b BroadcastConfig) EncodingDefaults() (models.EncodingDefaults, error) {
	res, err := models.ParseResolution(b.Resolution)
	if err != nil {
		return models.EncodingDefaults{}, fmt.Errorf("broadcast.resolution: %w", err)
	}
	if b.FrameRate <= 0 || b.VideoBitrate <= 0 || b.AudioBitrate <= 0 || b.KeyframeInterval <= 0 {
		return models.EncodingDefaults{}, fmt.Errorf("broadcast frame rate, bitrates and keyframe interval must be positive")
	}

	return models.EncodingDefaults{
		VideoBitrateKbps:        b.VideoBitrate,
		AudioBitrateKbps:        b.AudioBitrate,
		FrameRate:               b.FrameRate,
		Resolution:              res,
		KeyframeIntervalSeconds: b.KeyframeInterval,
	}, nil
}

// DSN returns the pgx connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d pool_min_conns=%d",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
		d.MaxConns, d.MinConns,
	)
}

// URL returns the AMQP connection URL
func (q QueueConfig) URL() string {
	vhost := q.Vhost
	if !strings.HasPrefix(vhost, "/") {
		vhost = "/" + vhost
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s", q.User, q.Password, q.Host, q.Port, vhost)
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.readTimeout", "30s")
	v.SetDefault("server.writeTimeout", "0s") // log streaming responses stay open
	v.SetDefault("server.shutdownTimeout", "15s")
	v.SetDefault("server.rateLimit", 10.0)
	v.SetDefault("server.rateBurst", 20)
	v.SetDefault("server.logBufferLines", 500)

	// Broadcast defaults
	v.SetDefault("broadcast.ffmpegPath", "ffmpeg")
	v.SetDefault("broadcast.ingestURL", "rtmp://a.rtmp.youtube.com/live2")
	v.SetDefault("broadcast.liveInputURL", "rtmp://127.0.0.1:1935/live")
	v.SetDefault("broadcast.resolution", "1280x720")
	v.SetDefault("broadcast.frameRate", 30)
	v.SetDefault("broadcast.videoBitrate", 3000)
	v.SetDefault("broadcast.audioBitrate", 128)
	v.SetDefault("broadcast.keyframeInterval", 2)
	v.SetDefault("broadcast.videoCodec", "libx264")
	v.SetDefault("broadcast.preset", "veryfast")
	v.SetDefault("broadcast.audioCodec", "aac")
	v.SetDefault("broadcast.audioSampleRate", 44100)
	v.SetDefault("broadcast.outputFormat", "flv")
	v.SetDefault("broadcast.gracePeriod", "5s")
	v.SetDefault("broadcast.killTimeout", "5s")
	v.SetDefault("broadcast.drainTimeout", "2s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.statusTTL", "24h")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "restream")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxConns", 5)
	v.SetDefault("database.minConns", 1)

	// Storage defaults
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.accessKeyID", "minioadmin")
	v.SetDefault("storage.secretAccessKey", "minioadmin")
	v.SetDefault("storage.bucketName", "broadcasts")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.useSSL", false)
	v.SetDefault("storage.urlExpiry", "1h")

	// Queue defaults
	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.host", "localhost")
	v.SetDefault("queue.port", 5672)
	v.SetDefault("queue.user", "guest")
	v.SetDefault("queue.password", "guest")
	v.SetDefault("queue.vhost", "/")
	v.SetDefault("queue.exchange", "restream")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.serviceName", "restream")
	v.SetDefault("tracing.endpoint", "http://localhost:14268/api/traces")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.interval", "5s")
	v.SetDefault("telemetry.seed", 0)

	// Webhook defaults
	v.SetDefault("webhooks.enabled", false)
	v.SetDefault("webhooks.timeout", "10s")
	v.SetDefault("webhooks.maxRetries", 3)
}
