package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"60s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	UploadDir string `env:"UPLOAD_DIR" envDefault:"./uploads"`
	OutputDir string `env:"OUTPUT_DIR" envDefault:"./output"`
	WatchDir  string `env:"WATCH_DIR"` // empty disables the drop-dir watcher

	PitchURL        string        `env:"PITCH_URL,required"`
	PitchModel      string        `env:"PITCH_MODEL" envDefault:"icassp-2022"`
	PitchTimeout    time.Duration `env:"PITCH_TIMEOUT" envDefault:"5m"`
	PreprocessAudio bool          `env:"PREPROCESS_AUDIO" envDefault:"true"`

	Workers   int `env:"TRANSCRIBE_WORKERS" envDefault:"2"`
	QueueSize int `env:"TRANSCRIBE_QUEUE_SIZE" envDefault:"64"`

	MaxUploadMB   int64         `env:"MAX_UPLOAD_MB" envDefault:"50"`
	JobRetention  time.Duration `env:"JOB_RETENTION" envDefault:"24h"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`

	CORSOrigin string `env:"CORS_ORIGIN" envDefault:"*"`
	AuthToken  string `env:"AUTH_TOKEN"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
}

// MaxUploadBytes returns the upload size cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB * 1024 * 1024
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile  string
	HTTPAddr string
	LogLevel string
	PitchURL string
	WatchDir string
}

// Load reads configuration from .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file >
// struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.PitchURL != "" {
		cfg.PitchURL = overrides.PitchURL
	}
	if overrides.WatchDir != "" {
		cfg.WatchDir = overrides.WatchDir
	}

	return cfg, nil
}
