// Package config centralizes how the service reads environment variables and
// exposes them as strongly typed values.
package config

import (
	"crypto/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration shared by the API and the worker.
type Config struct {
	Address        string
	MediaRoot      string
	MaxUploadBytes int64
	AllowedExts    []string

	Quality      string
	MaxWidth     int
	MaxHeight    int
	AudioBitrate string
	FFmpegPath   string
	EncodeLimit  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	WorkerCount   int

	DatabaseURL string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3Bucket    string
	S3UseSSL    bool

	SigningSecret []byte
	SignedURLTTL  time.Duration
	SessionTTL    time.Duration
}

const (
	defaultAddress      = ":8080"
	defaultMediaRoot    = "./data/media"
	defaultMaxUpload    = 200 << 20 // 200 MiB
	defaultAllowedExts  = ".mp4,.mov,.avi,.mkv,.webm,.m4v"
	defaultQuality      = "medium"
	defaultMaxWidth     = 1280
	defaultMaxHeight    = 720
	defaultAudioBitrate = "128k"
	defaultEncodeLimit  = 5 * time.Minute
	defaultWorkerCount  = 2
	defaultSignedTTL    = 15 * time.Minute
	defaultSessionTTL   = 24 * time.Hour
)

// Load reads configuration from the environment falling back to defaults. A
// .env file in the working directory is honoured when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Address:        readEnv("GYMSUB_ADDRESS", defaultAddress),
		MediaRoot:      readEnv("GYMSUB_MEDIA_ROOT", defaultMediaRoot),
		MaxUploadBytes: parseInt64("GYMSUB_MAX_UPLOAD_BYTES", defaultMaxUpload),
		AllowedExts:    parseList("GYMSUB_ALLOWED_EXTS", defaultAllowedExts),
		Quality:        readEnv("GYMSUB_QUALITY", defaultQuality),
		MaxWidth:       parseInt("GYMSUB_MAX_WIDTH", defaultMaxWidth),
		MaxHeight:      parseInt("GYMSUB_MAX_HEIGHT", defaultMaxHeight),
		AudioBitrate:   readEnv("GYMSUB_AUDIO_BITRATE", defaultAudioBitrate),
		FFmpegPath:     readEnv("GYMSUB_FFMPEG_PATH", ""),
		EncodeLimit:    parseDuration("GYMSUB_ENCODE_LIMIT", defaultEncodeLimit),
		RedisAddr:      readEnv("GYMSUB_REDIS_ADDR", ""),
		RedisPassword:  readEnv("GYMSUB_REDIS_PASSWORD", ""),
		RedisDB:        parseInt("GYMSUB_REDIS_DB", 0),
		WorkerCount:    parseInt("GYMSUB_WORKERS", defaultWorkerCount),
		DatabaseURL:    readEnv("GYMSUB_DATABASE_URL", ""),
		S3Endpoint:     readEnv("GYMSUB_S3_ENDPOINT", ""),
		S3AccessKey:    readEnv("GYMSUB_S3_ACCESS_KEY", ""),
		S3SecretKey:    readEnv("GYMSUB_S3_SECRET_KEY", ""),
		S3Region:       readEnv("GYMSUB_S3_REGION", "us-east-1"),
		S3Bucket:       readEnv("GYMSUB_S3_BUCKET", "gymsub-videos"),
		S3UseSSL:       parseBool("GYMSUB_S3_USE_SSL", false),
		SigningSecret:  parseSecret("GYMSUB_SIGNING_SECRET"),
		SignedURLTTL:   parseDuration("GYMSUB_SIGNED_TTL", defaultSignedTTL),
		SessionTTL:     parseDuration("GYMSUB_SESSION_TTL", defaultSessionTTL),
	}
	if cfg.SigningSecret == nil {
		cfg.SigningSecret = randomSecret()
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = defaultWorkerCount
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	if cfg.EncodeLimit <= 0 {
		cfg.EncodeLimit = defaultEncodeLimit
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	return cfg, nil
}

// S3Enabled reports whether artifact mirroring to object storage is configured.
func (c *Config) S3Enabled() bool {
	return c.S3Endpoint != ""
}

// RedisEnabled reports whether a shared asynq queue is configured. Without it
// the API falls back to an in-process dispatcher.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseList(key, def string) []string {
	val := readEnv(key, def)
	out := strings.Split(val, ",")
	for i := range out {
		out[i] = strings.ToLower(strings.TrimSpace(out[i]))
	}
	return out
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseSecret(key string) []byte {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return []byte(v)
	}
	return nil
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return []byte("gymsub-dev-secret")
	}
	return buf
}
