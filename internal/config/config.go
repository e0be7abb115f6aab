package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Port        int    `mapstructure:"PORT" validate:"min=1,max=65535"`
	GinMode     string `mapstructure:"GIN_MODE" validate:"oneof=debug release test"`
	LogLevel    string `mapstructure:"LOG_LEVEL" validate:"oneof=trace debug info warn error"`
	DatabaseURL string `mapstructure:"DATABASE_URL" validate:"required"`
	JWTSecret   string `mapstructure:"JWT_SECRET" validate:"required"`

	TokenTTL       time.Duration `mapstructure:"TOKEN_TTL" validate:"gt=0"`
	AllowedOrigins string        `mapstructure:"ALLOWED_ORIGINS"`

	ChatReadLimit    int64         `mapstructure:"CHAT_READ_LIMIT" validate:"gt=0"`
	ChatSendBuffer   int           `mapstructure:"CHAT_SEND_BUFFER" validate:"gt=0"`
	ChatWriteTimeout time.Duration `mapstructure:"CHAT_WRITE_TIMEOUT" validate:"gt=0"`
}

// Origins splits ALLOWED_ORIGINS into a list. An empty value allows every origin.
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Load reads the configuration from a .env file in path and from environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	v.SetDefault("PORT", 8080)
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("TOKEN_TTL", "168h")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("CHAT_READ_LIMIT", 4096)
	v.SetDefault("CHAT_SEND_BUFFER", 64)
	v.SetDefault("CHAT_WRITE_TIMEOUT", "10s")
	// Unmarshal only sees keys viper knows about, so the required ones are bound explicitly.
	_ = v.BindEnv("DATABASE_URL")
	_ = v.BindEnv("JWT_SECRET")

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Msg(".env file not found, loading from environment variables")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
