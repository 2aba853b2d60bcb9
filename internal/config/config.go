// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Storage     StorageConfig
	Ledger      LedgerConfig
	Engines     EngineConfig
	IPFS        IPFSConfig
	AWS         AWSConfig
	Watermark   WatermarkConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey      string
	AccessTokenTTL int // in hours
}

type StorageConfig struct {
	UploadDir   string
	TempDir     string
	MaxFileSize int64 // in bytes
}

type LedgerConfig struct {
	RPCURL          string
	ContractAddress string
	Timeout         int // in seconds
}

// EngineConfig holds the base URL of the originality engine per content type.
type EngineConfig struct {
	VideoURL string
	AudioURL string
	ImageURL string
	TextURL  string
	Timeout  int // in seconds
}

type IPFSConfig struct {
	PinataAPIKey    string
	PinataSecretKey string
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
}

type WatermarkConfig struct {
	FFmpegPath string
	Enabled    bool
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 300),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "drm_marketplace"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "silent"),
		},
		JWT: JWTConfig{
			SecretKey:      getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			AccessTokenTTL: getEnvAsInt("JWT_ACCESS_TTL", 24),
		},
		Storage: StorageConfig{
			UploadDir:   getEnv("UPLOAD_DIR", "./uploads"),
			TempDir:     getEnv("STREAM_TEMP_DIR", "./temp"),
			MaxFileSize: int64(getEnvAsInt("MAX_FILE_SIZE_MB", 200)) * 1024 * 1024,
		},
		Ledger: LedgerConfig{
			RPCURL:          getEnv("LEDGER_RPC_URL", "http://127.0.0.1:8545"),
			ContractAddress: getEnv("LEDGER_LICENSING_ADDRESS", "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"),
			Timeout:         getEnvAsInt("LEDGER_TIMEOUT", 10),
		},
		Engines: EngineConfig{
			VideoURL: getEnv("ENGINE_VIDEO_URL", "http://localhost:5003"),
			AudioURL: getEnv("ENGINE_AUDIO_URL", "http://localhost:8080"),
			ImageURL: getEnv("ENGINE_IMAGE_URL", "http://localhost:8081"),
			TextURL:  getEnv("ENGINE_TEXT_URL", "http://localhost:5002"),
			Timeout:  getEnvAsInt("ENGINE_TIMEOUT", 120),
		},
		IPFS: IPFSConfig{
			PinataAPIKey:    getEnv("PINATA_API_KEY", ""),
			PinataSecretKey: getEnv("PINATA_SECRET_KEY", ""),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "drm-encrypted-assets"),
		},
		Watermark: WatermarkConfig{
			FFmpegPath: getEnv("FFMPEG_PATH", "ffmpeg"),
			Enabled:    getEnvAsBool("WATERMARK_ENABLED", true),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Ledger.ContractAddress == "" {
		return fmt.Errorf("ledger licensing contract address is required")
	}

	return nil
}

// EngineURL returns the originality engine base URL for a content type, or ""
// when no engine serves that type.
func (c *EngineConfig) EngineURL(contentType string) string {
	switch contentType {
	case "video":
		return c.VideoURL
	case "audio":
		return c.AudioURL
	case "image":
		return c.ImageURL
	case "text":
		return c.TextURL
	}
	return ""
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
