// internal/config/config.go
package config

import (
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvProduction = "production"
	EnvSandbox    = "sandbox"

	ProductionBaseURL = "https://zenodo.org/api/deposit"
	SandboxBaseURL    = "https://sandbox.zenodo.org/api/deposit"
)

type Config struct {
	Zenodo   ZenodoConfig
	Log      LogConfig
	App      AppConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Storage  StorageConfig
	Drive    DriveConfig
	Stub     StubConfig
}

type ZenodoConfig struct {
	AccessToken string
	Environment string
	BaseURL     string
	CommunityID string
	HTTPTimeout time.Duration
}

type LogConfig struct {
	Level string
	File  string
}

type AppConfig struct {
	InputDir  string
	OutputDir string
}

type DatabaseConfig struct {
	URL string
}

// Enabled reports whether a run ledger database is configured.
func (c DatabaseConfig) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

type CacheConfig struct {
	Enabled            bool
	RedisURL           string
	RedisHost          string
	RedisPort          string
	RedisPassword      string
	RedisDB            int
	FilenameTTLSeconds int
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Prefix    string
}

// Enabled reports whether reports should be mirrored to object storage.
func (c StorageConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

type DriveConfig struct {
	CredentialsJSON string
}

type StubConfig struct {
	Port        string
	AccessToken string
}

var (
	once     sync.Once
	instance *Config
)

// Load reads the process configuration once, from .env (if present) and the
// environment.
func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		v := viper.New()
		v.AutomaticEnv()
		instance = FromViper(v)
	})

	return instance
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	setDefaults(v)

	env := strings.ToLower(strings.TrimSpace(v.GetString("ZENODO_ENV")))
	if env != EnvSandbox {
		env = EnvProduction
	}

	return &Config{
		Zenodo: ZenodoConfig{
			AccessToken: resolveAccessToken(v, env),
			Environment: env,
			BaseURL:     resolveBaseURL(v, env),
			CommunityID: strings.TrimSpace(v.GetString("ZENODO_COMMUNITY_ID")),
			HTTPTimeout: time.Duration(v.GetInt("HTTP_TIMEOUT_SECONDS")) * time.Second,
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
			File:  v.GetString("LOG_FILE"),
		},
		App: AppConfig{
			InputDir:  v.GetString("APP_INPUT_DIR"),
			OutputDir: v.GetString("APP_OUTPUT_DIR"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("DATABASE_URL"),
		},
		Cache: CacheConfig{
			Enabled:            v.GetBool("CACHE_ENABLED"),
			RedisURL:           v.GetString("REDIS_URL"),
			RedisHost:          v.GetString("REDIS_HOST"),
			RedisPort:          v.GetString("REDIS_PORT"),
			RedisPassword:      v.GetString("REDIS_PASSWORD"),
			RedisDB:            v.GetInt("REDIS_DB"),
			FilenameTTLSeconds: v.GetInt("CACHE_FILENAME_TTL_SECONDS"),
		},
		Storage: StorageConfig{
			Endpoint:  v.GetString("STORAGE_ENDPOINT"),
			AccessKey: v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey: v.GetString("STORAGE_SECRET_KEY"),
			Bucket:    v.GetString("STORAGE_BUCKET"),
			Region:    v.GetString("STORAGE_REGION"),
			UseSSL:    v.GetBool("STORAGE_USE_SSL"),
			Prefix:    v.GetString("STORAGE_PREFIX"),
		},
		Drive: DriveConfig{
			CredentialsJSON: v.GetString("GOOGLE_CREDENTIALS_JSON"),
		},
		Stub: StubConfig{
			Port:        v.GetString("STUB_PORT"),
			AccessToken: v.GetString("STUB_ACCESS_TOKEN"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ZENODO_ENV", EnvProduction)
	v.SetDefault("HTTP_TIMEOUT_SECONDS", 120)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "out/log_file.txt")
	v.SetDefault("APP_INPUT_DIR", "./in")
	v.SetDefault("APP_OUTPUT_DIR", "./out")
	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_FILENAME_TTL_SECONDS", 86400)
	v.SetDefault("STORAGE_REGION", "us-east-1")
	v.SetDefault("STORAGE_USE_SSL", true)
	v.SetDefault("STORAGE_PREFIX", "reports")
	v.SetDefault("STUB_PORT", "8089")
	v.SetDefault("STUB_ACCESS_TOKEN", "stub-token")
}

// resolveAccessToken prefers ZENODO_ACCESS_TOKEN and falls back to the
// environment specific variable names used by older .env files.
func resolveAccessToken(v *viper.Viper, env string) string {
	if token := strings.TrimSpace(v.GetString("ZENODO_ACCESS_TOKEN")); token != "" {
		return token
	}
	if env == EnvSandbox {
		return strings.TrimSpace(v.GetString("ZENODO_SANDBOX_API_KEY"))
	}
	return strings.TrimSpace(v.GetString("ZENODO_PROD_ACCESS_TOKEN"))
}

func resolveBaseURL(v *viper.Viper, env string) string {
	if base := strings.TrimSpace(v.GetString("ZENODO_BASE_URL")); base != "" {
		return strings.TrimSuffix(base, "/")
	}
	if env == EnvSandbox {
		return SandboxBaseURL
	}
	return ProductionBaseURL
}
