package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DB      DBConfig
	Server  ServerConfig
	JWT     JWTConfig
	Storage StorageConfig
	Archive ArchiveConfig
	Audit   AuditConfig
	Trash   TrashConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type ServerConfig struct {
	Port string
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type StorageConfig struct {
	// UploadsDir is the root directory for uploaded bytes; files are
	// stored under <UploadsDir>/files/<userID>/.
	UploadsDir string
	// DefaultQuotaBytes is assigned to accounts created without an
	// explicit quota.
	DefaultQuotaBytes int64
}

// ArchiveConfig configures the optional object-storage sink for audit
// log archival. Archival is disabled unless Enabled is set.
type ArchiveConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type AuditConfig struct {
	ExportInterval time.Duration
}

type TrashConfig struct {
	PurgeInterval time.Duration
}

func Load() *Config {
	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "cloudvault"),
			Password: getEnv("DB_PASSWORD", "cloudvault_secret"),
			Name:     getEnv("DB_NAME", "cloudvault"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Storage: StorageConfig{
			UploadsDir:        getEnv("UPLOADS_DIR", "./uploads"),
			DefaultQuotaBytes: getEnvAsInt64("DEFAULT_QUOTA_BYTES", 10*1024*1024*1024),
		},
		Archive: ArchiveConfig{
			Enabled:   getEnvAsBool("ARCHIVE_ENABLED", false),
			Endpoint:  getEnv("ARCHIVE_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("ARCHIVE_ACCESS_KEY", ""),
			SecretKey: getEnv("ARCHIVE_SECRET_KEY", ""),
			Bucket:    getEnv("ARCHIVE_BUCKET", "cloudvault-audit"),
			UseSSL:    getEnvAsBool("ARCHIVE_USE_SSL", false),
		},
		Audit: AuditConfig{
			ExportInterval: getEnvAsDuration("AUDIT_EXPORT_INTERVAL", 1*time.Hour),
		},
		Trash: TrashConfig{
			PurgeInterval: getEnvAsDuration("TRASH_PURGE_INTERVAL", 6*time.Hour),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
