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
	Results  ResultsConfig
	Cleanup  CleanupConfig
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig locates uploaded artifacts and the URL prefix they are served under.
type StorageConfig struct {
	Dir        string
	PublicURL  string
	PublicPath string
}

// ResultsConfig tunes the result batch import pipeline.
type ResultsConfig struct {
	ImportTimeout   time.Duration
	MaxUploadBytes  int64
	BatchCodePrefix string
	ImportLockTTL   time.Duration
	CacheTTL        time.Duration
	SchoolName      string
}

// CleanupConfig sizes the artifact cleanup worker pool.
type CleanupConfig struct {
	Workers    int
	Retries    int
	RetryDelay time.Duration
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
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Storage = StorageConfig{
		Dir:        v.GetString("STORAGE_DIR"),
		PublicURL:  strings.TrimRight(v.GetString("STORAGE_PUBLIC_URL"), "/"),
		PublicPath: v.GetString("STORAGE_PUBLIC_PATH"),
	}

	maxUpload := v.GetInt64("RESULTS_MAX_UPLOAD_SIZE")
	if maxUpload <= 0 {
		maxUpload = 20 * 1024 * 1024
	}
	cfg.Results = ResultsConfig{
		ImportTimeout:   parseDuration(v.GetString("RESULTS_IMPORT_TIMEOUT"), 60*time.Second),
		MaxUploadBytes:  maxUpload,
		BatchCodePrefix: strings.ToUpper(strings.TrimSpace(v.GetString("RESULTS_BATCH_CODE_PREFIX"))),
		ImportLockTTL:   parseDuration(v.GetString("RESULTS_IMPORT_LOCK_TTL"), 5*time.Minute),
		CacheTTL:        parseDuration(v.GetString("RESULTS_CACHE_TTL"), 10*time.Minute),
		SchoolName:      strings.TrimSpace(v.GetString("SCHOOL_NAME")),
	}

	cfg.Cleanup = CleanupConfig{
		Workers:    v.GetInt("CLEANUP_WORKERS"),
		Retries:    v.GetInt("CLEANUP_RETRIES"),
		RetryDelay: parseDuration(v.GetString("CLEANUP_RETRY_DELAY"), 5*time.Second),
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
	v.SetDefault("DB_NAME", "lms_results")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORAGE_DIR", "./uploads")
	v.SetDefault("STORAGE_PUBLIC_URL", "http://localhost:8080/files")
	v.SetDefault("STORAGE_PUBLIC_PATH", "/files")

	v.SetDefault("RESULTS_IMPORT_TIMEOUT", "60s")
	v.SetDefault("RESULTS_MAX_UPLOAD_SIZE", 20*1024*1024)
	v.SetDefault("RESULTS_BATCH_CODE_PREFIX", "RB")
	v.SetDefault("RESULTS_IMPORT_LOCK_TTL", "5m")
	v.SetDefault("RESULTS_CACHE_TTL", "10m")
	v.SetDefault("SCHOOL_NAME", "")

	v.SetDefault("CLEANUP_WORKERS", 2)
	v.SetDefault("CLEANUP_RETRIES", 3)
	v.SetDefault("CLEANUP_RETRY_DELAY", "5s")
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
