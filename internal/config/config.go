package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application. It is loaded once in
// main and passed into each component at construction; nothing reads ambient
// global state.
type Config struct {
	ServerPort        string `mapstructure:"SERVER_PORT"`
	PostgresURL       string `mapstructure:"POSTGRES_URL"`
	RedisAddr         string `mapstructure:"REDIS_ADDR"`
	GoogleAPIKey      string `mapstructure:"GOOGLE_API_KEY"`
	GeminiModel       string `mapstructure:"GEMINI_MODEL"`
	OCRLanguages      string `mapstructure:"OCR_LANGUAGES"`
	UploadDir         string `mapstructure:"UPLOAD_DIR"`
	ArchiveDir        string `mapstructure:"ARCHIVE_DIR"`
	MaxUploadMB       int    `mapstructure:"MAX_UPLOAD_MB"`
	StructureTimeout  int    `mapstructure:"STRUCTURE_TIMEOUT"` // seconds per structuring attempt
	StructureAttempts int    `mapstructure:"STRUCTURE_ATTEMPTS"`
	DuplicateTTLHours int    `mapstructure:"DUPLICATE_TTL_HOURS"`
}

// Load reads configuration from file or environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present.
	// This allows configuration purely through environment variables in production.
	_ = viper.ReadInConfig()

	viper.SetDefault("SERVER_PORT", "8080")
	// Empty defaults register the keys so AutomaticEnv can bind them.
	viper.SetDefault("POSTGRES_URL", "")
	viper.SetDefault("REDIS_ADDR", "")
	viper.SetDefault("GOOGLE_API_KEY", "")
	viper.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	viper.SetDefault("OCR_LANGUAGES", "nld,eng")
	viper.SetDefault("UPLOAD_DIR", "uploads")
	viper.SetDefault("ARCHIVE_DIR", "uploads/archive")
	viper.SetDefault("MAX_UPLOAD_MB", 16)
	viper.SetDefault("STRUCTURE_TIMEOUT", 60)
	viper.SetDefault("STRUCTURE_ATTEMPTS", 3)
	viper.SetDefault("DUPLICATE_TTL_HOURS", 24)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Languages returns the ordered OCR language candidates. Order matters: it is
// the tie-break for equal-confidence recognition attempts.
func (c *Config) Languages() []string {
	parts := strings.Split(c.OCRLanguages, ",")
	langs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			langs = append(langs, p)
		}
	}
	return langs
}

// MaxUploadBytes returns the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}
