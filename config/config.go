package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const (
	DefaultUploadsSubDir    = "uploads"
	DefaultThumbnailsSubDir = "thumbnails"
)

const (
	defaultPort                = "3001"
	defaultThumbnailQueueSize  = 200
	defaultNumThumbnailWorkers = 4
	defaultThumbnailMaxSize    = 300
	defaultMaxUploadSizeMB     = 200
	defaultMaxUploadFiles      = 10
	defaultBrushSize           = 10
	defaultGatewayTimeoutSecs  = 30
	defaultAllowedOrigins      = "http://localhost:5173,http://localhost:3000"
)

type Config struct {
	Port string

	// database path
	DatabasePath string

	// media storage configuration
	MediaStoragePath string // root for uploads and generated thumbnails
	UploadsSubDir    string
	ThumbnailsSubDir string
	UploadsPath      string // full-calculated path for uploaded originals
	ThumbnailsPath   string // full-calculated path for thumbnails

	// upload limits
	MaxUploadSizeMB int
	MaxUploadFiles  int

	// thumbnail generation settings
	ThumbnailMaxSize int

	// worker settings
	ThumbnailQueueSize  int
	NumThumbnailWorkers int

	// editor settings
	DefaultBrushSize int
	HistoryLimit     int // 0 = unbounded
	GatewayTimeout   time.Duration

	AllowedOrigins []string
	LogLevel       string
}

// MaxUploadBytes is the per-file upload limit in bytes.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadSizeMB) << 20
}

// fileConfig is the optional YAML file named by CONFIG_FILE. Environment
// variables take precedence over its values.
type fileConfig struct {
	Port                  string   `yaml:"port"`
	DatabasePath          string   `yaml:"database_path"`
	MediaStoragePath      string   `yaml:"media_storage_path"`
	UploadsSubDir         string   `yaml:"uploads_subdir"`
	ThumbnailsSubDir      string   `yaml:"thumbnails_subdir"`
	MaxUploadSizeMB       int      `yaml:"max_upload_size_mb"`
	MaxUploadFiles        int      `yaml:"max_upload_files"`
	ThumbnailMaxSize      int      `yaml:"thumbnail_max_size"`
	ThumbnailQueueSize    int      `yaml:"thumbnail_queue_size"`
	NumThumbnailWorkers   int      `yaml:"num_thumbnail_workers"`
	DefaultBrushSize      int      `yaml:"default_brush_size"`
	HistoryLimit          int      `yaml:"history_limit"`
	GatewayTimeoutSeconds int      `yaml:"gateway_timeout_seconds"`
	AllowedOrigins        []string `yaml:"allowed_origins"`
	LogLevel              string   `yaml:"log_level"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	if err := yaml.UnmarshalStrict(data, &fc); err != nil {
		return fc, fmt.Errorf("failed to parse config file '%s': %w", path, err)
	}
	return fc, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val < 0 {
		log.Warnf("config: invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func orString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func orInt(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by CONFIG_FILE, and environment variables, in increasing priority.
func LoadConfig() (Config, error) {
	fc, err := loadFileConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}

	dbPath := getEnvOrDefault("DATABASE_PATH", orString(fc.DatabasePath, "annotations.db"))

	mediaStorage := getEnvOrDefault("MEDIA_STORAGE_PATH", orString(fc.MediaStoragePath, filepath.Join(".", "media_storage")))
	absMediaStorage, err := filepath.Abs(mediaStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for media storage '%s': %w", mediaStorage, err)
	}

	uploadsSubDir := getEnvOrDefault("UPLOADS_SUBDIR", orString(fc.UploadsSubDir, DefaultUploadsSubDir))
	thumbSubDir := getEnvOrDefault("THUMBNAILS_SUBDIR", orString(fc.ThumbnailsSubDir, DefaultThumbnailsSubDir))
	if uploadsSubDir == thumbSubDir {
		return Config{}, fmt.Errorf("uploads and thumbnails must use different subdirectories, both are '%s'", uploadsSubDir)
	}

	origins := splitList(getEnvOrDefault("ALLOWED_ORIGINS", ""))
	if len(origins) == 0 {
		origins = fc.AllowedOrigins
	}
	if len(origins) == 0 {
		origins = splitList(defaultAllowedOrigins)
	}

	historyLimit := fc.HistoryLimit
	if historyLimit < 0 {
		historyLimit = 0
	}

	cfg := Config{
		Port:                getEnvOrDefault("PORT", orString(fc.Port, defaultPort)),
		DatabasePath:        dbPath,
		MediaStoragePath:    absMediaStorage,
		UploadsSubDir:       uploadsSubDir,
		ThumbnailsSubDir:    thumbSubDir,
		UploadsPath:         filepath.Join(absMediaStorage, uploadsSubDir),
		ThumbnailsPath:      filepath.Join(absMediaStorage, thumbSubDir),
		MaxUploadSizeMB:     orInt(getEnvIntOrDefault("MAX_UPLOAD_SIZE_MB", fc.MaxUploadSizeMB), defaultMaxUploadSizeMB),
		MaxUploadFiles:      orInt(getEnvIntOrDefault("MAX_UPLOAD_FILES", fc.MaxUploadFiles), defaultMaxUploadFiles),
		ThumbnailMaxSize:    orInt(getEnvIntOrDefault("THUMBNAIL_MAX_SIZE", fc.ThumbnailMaxSize), defaultThumbnailMaxSize),
		ThumbnailQueueSize:  orInt(getEnvIntOrDefault("THUMBNAIL_QUEUE_SIZE", fc.ThumbnailQueueSize), defaultThumbnailQueueSize),
		NumThumbnailWorkers: orInt(getEnvIntOrDefault("NUM_THUMBNAIL_WORKERS", fc.NumThumbnailWorkers), defaultNumThumbnailWorkers),
		DefaultBrushSize:    orInt(getEnvIntOrDefault("DEFAULT_BRUSH_SIZE", fc.DefaultBrushSize), defaultBrushSize),
		HistoryLimit:        getEnvIntOrDefault("HISTORY_LIMIT", historyLimit),
		GatewayTimeout:      time.Duration(orInt(getEnvIntOrDefault("GATEWAY_TIMEOUT_SECONDS", fc.GatewayTimeoutSeconds), defaultGatewayTimeoutSecs)) * time.Second,
		AllowedOrigins:      origins,
		LogLevel:            strings.ToLower(getEnvOrDefault("LOG_LEVEL", orString(fc.LogLevel, "info"))),
	}

	return cfg, nil
}
