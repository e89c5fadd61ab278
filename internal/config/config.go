package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDataDir   = "data"
	DefaultStoreFile = "tasks.json"
)

type Config struct {
	DataDir   string          `yaml:"data_dir" toml:"data_dir" env:"TASKBELL_DATA_DIR"`
	StoreFile string          `yaml:"store_file" toml:"store_file" env:"TASKBELL_STORE_FILE"`
	Scheduler SchedulerConfig `yaml:"scheduler" toml:"scheduler"`
	Notify    NotifyConfig    `yaml:"notify" toml:"notify"`
}

type SchedulerConfig struct {
	Interval time.Duration `yaml:"interval" toml:"interval" env:"TASKBELL_SCHEDULER_INTERVAL"`
}

type NotifyConfig struct {
	Timeout  time.Duration  `yaml:"timeout" toml:"timeout" env:"TASKBELL_NOTIFY_TIMEOUT"`
	Console  ConsoleConfig  `yaml:"console" toml:"console"`
	Sound    SoundConfig    `yaml:"sound" toml:"sound"`
	Desktop  DesktopConfig  `yaml:"desktop" toml:"desktop"`
	Email    EmailConfig    `yaml:"email" toml:"email"`
	Telegram TelegramConfig `yaml:"telegram" toml:"telegram"`
}

type ConsoleConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled" env:"TASKBELL_CONSOLE_ENABLED"`
}

type SoundConfig struct {
	Enabled    bool    `yaml:"enabled" toml:"enabled" env:"TASKBELL_SOUND_ENABLED"`
	File       string  `yaml:"file" toml:"file" env:"TASKBELL_SOUND_FILE"`
	Player     string  `yaml:"player" toml:"player" env:"TASKBELL_SOUND_PLAYER"`
	Frequency  float64 `yaml:"frequency" toml:"frequency" env:"TASKBELL_SOUND_FREQUENCY"`
	DurationMS int     `yaml:"duration_ms" toml:"duration_ms" env:"TASKBELL_SOUND_DURATION_MS"`
}

type DesktopConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" env:"TASKBELL_DESKTOP_ENABLED"`
	Title   string `yaml:"title" toml:"title" env:"TASKBELL_DESKTOP_TITLE"`
}

type EmailConfig struct {
	Enabled      bool     `yaml:"enabled" toml:"enabled" env:"TASKBELL_EMAIL_ENABLED"`
	SMTPHost     string   `yaml:"smtp_host" toml:"smtp_host" env:"TASKBELL_SMTP_HOST"`
	SMTPPort     int      `yaml:"smtp_port" toml:"smtp_port" env:"TASKBELL_SMTP_PORT"`
	SMTPUser     string   `yaml:"smtp_user" toml:"smtp_user" env:"TASKBELL_SMTP_USER"`
	SMTPPassword string   `yaml:"smtp_password" toml:"smtp_password" env:"TASKBELL_SMTP_PASSWORD"`
	From         string   `yaml:"from" toml:"from" env:"TASKBELL_EMAIL_FROM"`
	To           []string `yaml:"to" toml:"to" env:"TASKBELL_EMAIL_TO" env-separator:","`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" env:"TASKBELL_TELEGRAM_ENABLED"`
	Token   string `yaml:"token" toml:"token" env:"TASKBELL_TELEGRAM_TOKEN"`
	ChatID  int64  `yaml:"chat_id" toml:"chat_id" env:"TASKBELL_TELEGRAM_CHAT_ID"`
}

// Default is the configuration used when no file is given: local sound,
// toast and console reminders, checked every second.
func Default() Config {
	return Config{
		DataDir:   DefaultDataDir,
		StoreFile: DefaultStoreFile,
		Scheduler: SchedulerConfig{Interval: time.Second},
		Notify: NotifyConfig{
			Timeout: 30 * time.Second,
			Console: ConsoleConfig{Enabled: true},
			Sound:   SoundConfig{Enabled: true, Frequency: 1000, DurationMS: 500},
			Desktop: DesktopConfig{Enabled: true, Title: "To-Do Reminder"},
			Email:   EmailConfig{SMTPPort: 587},
		},
	}
}

func (c *Config) ApplyDefaults() {
	d := Default()
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = d.DataDir
	}
	if strings.TrimSpace(c.StoreFile) == "" {
		c.StoreFile = d.StoreFile
	}
	if c.Scheduler.Interval == 0 {
		c.Scheduler.Interval = d.Scheduler.Interval
	}
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = d.Notify.Timeout
	}
	if c.Notify.Sound.Frequency == 0 {
		c.Notify.Sound.Frequency = d.Notify.Sound.Frequency
	}
	if c.Notify.Sound.DurationMS == 0 {
		c.Notify.Sound.DurationMS = d.Notify.Sound.DurationMS
	}
	if c.Notify.Desktop.Title == "" {
		c.Notify.Desktop.Title = d.Notify.Desktop.Title
	}
	if c.Notify.Email.SMTPPort == 0 {
		c.Notify.Email.SMTPPort = d.Notify.Email.SMTPPort
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Scheduler.Interval < 0 {
		errs = append(errs, fmt.Errorf("scheduler.interval must be positive, got %s", c.Scheduler.Interval))
	}
	if c.Notify.Timeout < 0 {
		errs = append(errs, fmt.Errorf("notify.timeout must be positive, got %s", c.Notify.Timeout))
	}
	if c.Notify.Sound.Frequency < 0 || c.Notify.Sound.DurationMS < 0 {
		errs = append(errs, errors.New("notify.sound frequency and duration_ms must not be negative"))
	}
	if e := c.Notify.Email; e.Enabled {
		if e.SMTPHost == "" || e.From == "" || len(e.To) == 0 {
			errs = append(errs, errors.New("notify.email needs smtp_host, from and to when enabled"))
		}
		if e.SMTPPort <= 0 || e.SMTPPort > 65535 {
			errs = append(errs, fmt.Errorf("notify.email.smtp_port out of range: %d", e.SMTPPort))
		}
	}
	if tg := c.Notify.Telegram; tg.Enabled && (tg.Token == "" || tg.ChatID == 0) {
		errs = append(errs, errors.New("notify.telegram needs token and chat_id when enabled"))
	}
	return errors.Join(errs...)
}

// StorePath is where the task list lives. An absolute store_file ignores
// data_dir.
func (c Config) StorePath() string {
	if filepath.IsAbs(c.StoreFile) {
		return c.StoreFile
	}
	return filepath.Join(c.DataDir, c.StoreFile)
}

// Load builds the configuration in layers: defaults, then the file at path
// (YAML or TOML by extension; empty path skips it), then variables from
// .env, then the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path = strings.TrimSpace(path); path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := FromEnv(&cfg, DefaultEnvFile); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(b), cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (use .yml, .yaml or .toml)", ext)
	}
	return nil
}
