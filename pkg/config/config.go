package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Queue backends supported by the conversion pipeline.
const (
	QueueBackendMemory = "memory"
	QueueBackendRedis  = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Storage  StorageConfig
	Pipeline PipelineConfig
	Tools    ToolsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig locates the on-disk roots and upload validation rules.
type StorageConfig struct {
	OriginalsDir     string
	ArchiveDir       string
	ThumbnailDir     string
	ScratchDir       string
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	ShareLinkSecret  string
	ShareLinkTTL     time.Duration
}

// PipelineConfig tunes the asynchronous conversion workers.
type PipelineConfig struct {
	QueueBackend     string
	Workers          int
	BufferSize       int
	MaxRetries       int
	RetryDelay       time.Duration
	RedisKey         string
	ScratchCleanup   string
	ScratchTTL       time.Duration
	RecoverOnStartup bool
}

// ToolsConfig names the external converters and their fixed parameters.
type ToolsConfig struct {
	LibreOfficeBin   string
	GhostscriptBin   string
	Timeout          time.Duration
	RasterDPI        int
	ThumbnailMaxEdge int
	ThumbnailQuality int
}

// DefaultAllowedMIMEs lists the content types accepted for ingestion.
var DefaultAllowedMIMEs = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"application/vnd.oasis.opendocument.text",
	"application/vnd.oasis.opendocument.spreadsheet",
	"application/vnd.oasis.opendocument.presentation",
	"application/rtf",
	"text/rtf",
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/tiff",
	"image/bmp",
	"image/webp",
	"image/svg+xml",
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxUpload := v.GetInt64("UPLOAD_MAX_FILE_SIZE")
	if maxUpload <= 0 {
		maxUpload = 50 * 1024 * 1024
	}
	allowed := splitAndTrim(v.GetString("UPLOAD_ALLOWED_MIME_TYPES"))
	if len(allowed) == 0 {
		allowed = append([]string(nil), DefaultAllowedMIMEs...)
	}
	cfg.Storage = StorageConfig{
		OriginalsDir:     v.GetString("ORIGINALS_DIR"),
		ArchiveDir:       v.GetString("ARCHIVE_DIR"),
		ThumbnailDir:     v.GetString("THUMBNAIL_DIR"),
		ScratchDir:       v.GetString("SCRATCH_DIR"),
		MaxFileSizeBytes: maxUpload,
		AllowedMIMEs:     allowed,
		ShareLinkSecret:  v.GetString("SHARE_LINK_SECRET"),
		ShareLinkTTL:     parseDuration(v.GetString("SHARE_LINK_TTL"), 30*time.Minute),
	}

	backend := strings.ToLower(strings.TrimSpace(v.GetString("QUEUE_BACKEND")))
	if backend != QueueBackendRedis {
		backend = QueueBackendMemory
	}
	cfg.Pipeline = PipelineConfig{
		QueueBackend:     backend,
		Workers:          v.GetInt("PIPELINE_WORKERS"),
		BufferSize:       v.GetInt("PIPELINE_BUFFER_SIZE"),
		MaxRetries:       v.GetInt("PIPELINE_MAX_RETRIES"),
		RetryDelay:       parseDuration(v.GetString("PIPELINE_RETRY_DELAY"), 30*time.Second),
		RedisKey:         v.GetString("PIPELINE_REDIS_KEY"),
		ScratchCleanup:   v.GetString("SCRATCH_CLEANUP_SCHEDULE"),
		ScratchTTL:       parseDuration(v.GetString("SCRATCH_TTL"), 6*time.Hour),
		RecoverOnStartup: v.GetBool("PIPELINE_RECOVER_ON_STARTUP"),
	}

	cfg.Tools = ToolsConfig{
		LibreOfficeBin:   v.GetString("LIBREOFFICE_BIN"),
		GhostscriptBin:   v.GetString("GHOSTSCRIPT_BIN"),
		Timeout:          parseDuration(v.GetString("TOOLS_TIMEOUT"), 90*time.Second),
		RasterDPI:        v.GetInt("RASTER_DPI"),
		ThumbnailMaxEdge: v.GetInt("THUMBNAIL_MAX_EDGE"),
		ThumbnailQuality: v.GetInt("THUMBNAIL_QUALITY"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "document_archive")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ORIGINALS_DIR", "./data/originals")
	v.SetDefault("ARCHIVE_DIR", "./data/archive")
	v.SetDefault("THUMBNAIL_DIR", "./data/thumbnails")
	v.SetDefault("SCRATCH_DIR", "./data/scratch")
	v.SetDefault("UPLOAD_MAX_FILE_SIZE", 50*1024*1024)
	v.SetDefault("UPLOAD_ALLOWED_MIME_TYPES", "")
	v.SetDefault("SHARE_LINK_SECRET", "dev_share_secret")
	v.SetDefault("SHARE_LINK_TTL", "30m")

	v.SetDefault("QUEUE_BACKEND", QueueBackendMemory)
	v.SetDefault("PIPELINE_WORKERS", 2)
	v.SetDefault("PIPELINE_BUFFER_SIZE", 64)
	v.SetDefault("PIPELINE_MAX_RETRIES", 0)
	v.SetDefault("PIPELINE_RETRY_DELAY", "30s")
	v.SetDefault("PIPELINE_REDIS_KEY", "documents:process")
	v.SetDefault("SCRATCH_CLEANUP_SCHEDULE", "@every 30m")
	v.SetDefault("SCRATCH_TTL", "6h")
	v.SetDefault("PIPELINE_RECOVER_ON_STARTUP", true)

	v.SetDefault("LIBREOFFICE_BIN", "libreoffice")
	v.SetDefault("GHOSTSCRIPT_BIN", "gs")
	v.SetDefault("TOOLS_TIMEOUT", "90s")
	v.SetDefault("RASTER_DPI", 150)
	v.SetDefault("THUMBNAIL_MAX_EDGE", 500)
	v.SetDefault("THUMBNAIL_QUALITY", 75)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
