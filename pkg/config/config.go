package config

import "time"

type Config struct {
	App          AppConfig          `mapstructure:"app"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Redis        RedisConfig        `mapstructure:"redis"`
	NATS         NATSConfig         `mapstructure:"nats"`
	LangServer   LangServerConfig   `mapstructure:"lang_server"`
	SystemEntity SystemEntityConfig `mapstructure:"system_entity"`
	NLU          NLUConfig          `mapstructure:"nlu"`
	Prometheus   PrometheusConfig   `mapstructure:"prometheus"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Port           int           `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// LangServerConfig lists the remote tokenizer/vectorizer sources. Several
// sources may serve the same language; the client fails over between them.
type LangServerConfig struct {
	Sources        []LangSource  `mapstructure:"sources"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type LangSource struct {
	Endpoint  string `mapstructure:"endpoint"`
	AuthToken string `mapstructure:"auth_token"`
}

type SystemEntityConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type NLUConfig struct {
	DefaultLanguage string        `mapstructure:"default_language"`
	Languages       []string      `mapstructure:"languages"`
	StepCaching     bool          `mapstructure:"step_caching"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	TrainSeed       int64         `mapstructure:"train_seed"`
}

type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
