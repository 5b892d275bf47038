package config

import (
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	Port       string
	DataDir    string
	MediaPath  string
	ArchiveDir string
	// ArchiveSubdir is the per-camera folder that holds the full-size images.
	ArchiveSubdir  string
	DatabasePath   string
	VideoOutputDir string
	PhotoOutputDir string
	RequestListDir string
	SeedDir        string

	FFmpegPath          string
	VideoCodec          string
	VideoQuality        string
	VideoBatchSize      int
	VideoTargetDuration int
	LogoPath            string
	FontPath            string

	LowImagesThreshold     int
	ShutterCountLimit      int
	OperationalUTCOffset   int
	HealthSweepSchedule    string
	HealthSweepConcurrency int

	AppKey        string
	AdminPassword string

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3BaseURL   string
}

// AppConfig is the global application configuration.
var AppConfig Config

// GetFFmpegLogPath returns the path to the ffmpeg log file for the current day.
func GetFFmpegLogPath() string {
	today := time.Now().Format("2006-01-02")
	logFileName := fmt.Sprintf("ffmpeg_log_%s.txt", today)
	return filepath.Join(AppConfig.DataDir, logFileName)
}

// GetCRFValue returns the CRF value based on the configured video quality.
func (c *Config) GetCRFValue() string {
	switch strings.ToLower(c.VideoQuality) {
	case "low":
		return "32"
	case "medium":
		return "26"
	case "high":
		return "20"
	case "ultra":
		return "16"
	default:
		return "26" // Default to medium
	}
}

// OperationalLocation is the fixed-offset zone used for day boundaries in health checks.
func (c *Config) OperationalLocation() *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", c.OperationalUTCOffset), c.OperationalUTCOffset*3600)
}

// S3Enabled reports whether artifacts should be published to S3.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// BlobDir is where the local blob store keeps published artifacts.
func (c *Config) BlobDir() string {
	return filepath.Join(c.DataDir, "blobs")
}

// LoadConfig loads the configuration from environment variables.
func LoadConfig() error {
	AppConfig = Config{
		Port:                   getEnv("PORT", "8080"),
		DataDir:                getEnv("DATA_DIR", "data"),
		MediaPath:              getEnv("MEDIA_PATH", "media"),
		ArchiveSubdir:          getEnv("ARCHIVE_SUBDIR", "large"),
		DatabasePath:           getEnv("DATABASE_PATH", ""),
		VideoOutputDir:         getEnv("VIDEO_OUTPUT_DIR", ""),
		PhotoOutputDir:         getEnv("PHOTO_OUTPUT_DIR", ""),
		RequestListDir:         getEnv("REQUEST_LIST_DIR", ""),
		SeedDir:                getEnv("SEED_DIR", ""),
		FFmpegPath:             getEnv("FFMPEG_PATH", "ffmpeg"),
		VideoCodec:             getEnv("VIDEO_CODEC", "libx264"),
		VideoQuality:           getEnv("VIDEO_QUALITY", "medium"),
		VideoBatchSize:         getEnvAsInt("VIDEO_BATCH_SIZE", 200),
		VideoTargetDuration:    getEnvAsInt("VIDEO_TARGET_DURATION", 30),
		LogoPath:               getEnv("LOGO_PATH", ""),
		FontPath:               getEnv("FONT_PATH", ""),
		LowImagesThreshold:     getEnvAsInt("LOW_IMAGES_THRESHOLD", 40),
		ShutterCountLimit:      getEnvAsInt("SHUTTER_COUNT_LIMIT", 10000),
		OperationalUTCOffset:   getEnvAsInt("OPERATIONAL_UTC_OFFSET", 4),
		HealthSweepSchedule:    getEnv("HEALTH_SWEEP_SCHEDULE", "0 0 6 * * *"),
		HealthSweepConcurrency: getEnvAsInt("HEALTH_SWEEP_CONCURRENCY", 4),
		AppKey:                 getEnv("APP_KEY", ""),
		AdminPassword:          getEnv("ADMIN_PASSWORD", ""),
		S3Bucket:               getEnv("S3_BUCKET", ""),
		S3Region:               getEnv("S3_REGION", "auto"),
		S3Endpoint:             getEnv("S3_ENDPOINT", ""),
		S3AccessKey:            getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:            getEnv("S3_SECRET_KEY", ""),
		S3BaseURL:              getEnv("S3_BASE_URL", ""),
	}

	if AppConfig.AppKey == "" {
		return fmt.Errorf("APP_KEY environment variable must be set")
	}
	if _, err := base64.StdEncoding.DecodeString(AppConfig.AppKey); err != nil {
		return fmt.Errorf("APP_KEY is not a valid base64 encoded string: %w", err)
	}

	AppConfig.ArchiveDir = filepath.Join(AppConfig.MediaPath, "upload")
	if AppConfig.DatabasePath == "" {
		AppConfig.DatabasePath = filepath.Join(AppConfig.DataDir, "fleet.db")
	}
	if AppConfig.VideoOutputDir == "" {
		AppConfig.VideoOutputDir = filepath.Join(AppConfig.MediaPath, "videos")
	}
	if AppConfig.PhotoOutputDir == "" {
		AppConfig.PhotoOutputDir = filepath.Join(AppConfig.MediaPath, "photos")
	}
	if AppConfig.RequestListDir == "" {
		AppConfig.RequestListDir = filepath.Join(AppConfig.DataDir, "requests")
	}
	if AppConfig.VideoBatchSize < 1 {
		log.Printf("VIDEO_BATCH_SIZE %d is invalid, using 200", AppConfig.VideoBatchSize)
		AppConfig.VideoBatchSize = 200
	}

	log.Printf("Media path set to: %s", AppConfig.MediaPath)
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
