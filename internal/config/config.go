package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/alenia-group/quotation-cli/internal/storage"
)

// Config holds the full application configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Boond     BoondConfig     `yaml:"boond" mapstructure:"boond"`
	Templates TemplatesConfig `yaml:"templates" mapstructure:"templates"`
	PDF       PDFConfig       `yaml:"pdf" mapstructure:"pdf"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StorageConfig selects and configures the batch storage backend.
type StorageConfig struct {
	Driver      string              `yaml:"driver" mapstructure:"driver"` // redis, sqlite or postgres
	Redis       storage.RedisConfig `yaml:"redis" mapstructure:"redis"`
	DatabaseURL string              `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string              `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Pool        storage.PoolConfig  `yaml:"pool" mapstructure:"pool"`
}

// BoondConfig holds BoondManager API settings.
type BoondConfig struct {
	Key              string  `yaml:"key" mapstructure:"key"`
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	ReferencePrefix  string  `yaml:"reference_prefix" mapstructure:"reference_prefix"`
	RateLimitRPS     float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RetryMaxAttempts int     `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
	RetryBackoffMs   int     `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
}

// TemplatesConfig locates the quotation document templates.
type TemplatesConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// PDFConfig configures the document conversion tools.
type PDFConfig struct {
	SofficePath  string `yaml:"soffice_path" mapstructure:"soffice_path"`
	PdfunitePath string `yaml:"pdfunite_path" mapstructure:"pdfunite_path"`
}

// OutputConfig locates the batch artifact directory.
type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("QUOTATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("storage.driver", "redis")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.sqlite_path", "quotations.db")
	v.SetDefault("boond.base_url", "https://ui.boondmanager.com/api")
	v.SetDefault("boond.reference_prefix", "DEV")
	v.SetDefault("boond.rate_limit_rps", 5)
	v.SetDefault("boond.retry_max_attempts", 3)
	v.SetDefault("boond.retry_backoff_ms", 1000)
	v.SetDefault("templates.dir", "templates")
	v.SetDefault("pdf.soffice_path", "soffice")
	v.SetDefault("pdf.pdfunite_path", "pdfunite")
	v.SetDefault("output.dir", "output")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for the given run mode: "generate"
// (batch pipeline), "serve" (HTTP API) or "read" (inspection commands).
// All problems are reported at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Storage.Driver {
	case "redis", "sqlite", "postgres":
	default:
		problems = append(problems, "storage.driver must be redis, sqlite or postgres")
	}
	if c.Storage.Driver == "postgres" && c.Storage.DatabaseURL == "" {
		problems = append(problems, "storage.database_url is required for the postgres driver")
	}

	switch mode {
	case "generate", "serve":
		if c.Boond.Key == "" {
			problems = append(problems, "boond.key is required")
		}
		if c.Boond.RateLimitRPS <= 0 {
			problems = append(problems, "boond.rate_limit_rps must be > 0")
		}
		if c.Boond.RetryMaxAttempts < 1 || c.Boond.RetryMaxAttempts > 10 {
			problems = append(problems, "boond.retry_max_attempts must be between 1 and 10")
		}
		if c.Templates.Dir == "" {
			problems = append(problems, "templates.dir is required")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "read":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
