package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/app/configs")

	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Allow common env vars without APP_ prefix for Docker/VM deploys
	viper.BindEnv("http.port", "HTTP_PORT", "APP_HTTP_PORT")
	viper.BindEnv("redis.url", "REDIS_URL", "APP_REDIS_URL")
	viper.BindEnv("nats.url", "NATS_URL", "APP_NATS_URL")
	viper.BindEnv("system_entity.endpoint", "SYSTEM_ENTITY_URL", "APP_SYSTEM_ENTITY_URL")
	viper.BindEnv("nlu.default_language", "NLU_DEFAULT_LANGUAGE")
	viper.BindEnv("app.environment", "APP_ENVIRONMENT")
	viper.BindEnv("logging.level", "LOG_LEVEL")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// no config file: env vars only
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "nlu-engine"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.NLU.DefaultLanguage == "" {
		cfg.NLU.DefaultLanguage = "en"
	}
	if len(cfg.NLU.Languages) == 0 {
		cfg.NLU.Languages = []string{cfg.NLU.DefaultLanguage}
	}
	if cfg.NLU.SessionTTL == 0 {
		cfg.NLU.SessionTTL = time.Hour
	}
	if cfg.NLU.LockTTL == 0 {
		cfg.NLU.LockTTL = 30 * time.Minute
	}
	if cfg.LangServer.RequestTimeout == 0 {
		cfg.LangServer.RequestTimeout = 10 * time.Second
	}
	if cfg.Prometheus.Path == "" {
		cfg.Prometheus.Path = "/metrics"
	}
}
