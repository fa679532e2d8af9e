// Package config loads the hostbridge process configuration from TOML or
// YAML files.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the full process configuration.
type Config struct {
	Context ContextConfig `yaml:"context"`
	Host    HostConfig    `yaml:"host"`
	Log     LogConfig     `yaml:"log"`
	UI      UIConfig      `yaml:"ui"`
	// Script is the path of the script to run. Empty runs nothing.
	Script string `yaml:"script"`
}

// ContextConfig tunes the scripting context and its command queue.
type ContextConfig struct {
	FirstTargetID int64 `yaml:"first_target_id"`
	AutoFlush     int   `yaml:"auto_flush"`
	WorkerQueue   int   `yaml:"worker_queue"`
	// DeliveryBuffer > 0 delivers flushed batches on a separate goroutine.
	DeliveryBuffer int `yaml:"delivery_buffer"`
}

// HostConfig selects the host the context talks to. With Dial set the
// process connects to a remote host; with Listen set it serves one.
// Neither means an in-process loopback host.
type HostConfig struct {
	Listen        string        `yaml:"listen"`
	Dial          string        `yaml:"dial"`
	InvokeTimeout time.Duration `yaml:"invoke_timeout"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// UIConfig configures the optional host panel.
type UIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Title   string `yaml:"title"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Context: ContextConfig{
			FirstTargetID: 1,
			WorkerQueue:   256,
		},
		Host: HostConfig{InvokeTimeout: 5 * time.Second},
		Log:  LogConfig{Level: "info"},
		UI:   UIConfig{Title: "hostbridge"},
	}
}

type fileConfig struct {
	Script  string `toml:"script"`
	Context struct {
		FirstTargetID  int64 `toml:"first_target_id"`
		AutoFlush      int   `toml:"auto_flush"`
		WorkerQueue    int   `toml:"worker_queue"`
		DeliveryBuffer int   `toml:"delivery_buffer"`
	} `toml:"context"`
	Host struct {
		Listen        string `toml:"listen"`
		Dial          string `toml:"dial"`
		InvokeTimeout string `toml:"invoke_timeout"`
	} `toml:"host"`
	Log struct {
		Level       string `toml:"level"`
		Development bool   `toml:"development"`
	} `toml:"log"`
	UI struct {
		Enabled bool   `toml:"enabled"`
		Title   string `toml:"title"`
	} `toml:"ui"`
}

// Load reads path over the defaults and validates the result. The format
// follows the extension: .toml, .yaml or .yml.
func Load(path string) (Config, error) {
	var (
		cfg Config
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		cfg, err = loadTOML(path)
	case ".yaml", ".yml":
		cfg, err = loadYAML(path)
	default:
		return Config{}, fmt.Errorf("load config: unsupported format %q", ext)
	}
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func loadTOML(path string) (Config, error) {
	cfg := Default()
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("script") {
		cfg.Script = strings.TrimSpace(raw.Script)
	}
	if meta.IsDefined("context", "first_target_id") {
		cfg.Context.FirstTargetID = raw.Context.FirstTargetID
	}
	if meta.IsDefined("context", "auto_flush") {
		cfg.Context.AutoFlush = raw.Context.AutoFlush
	}
	if meta.IsDefined("context", "worker_queue") {
		cfg.Context.WorkerQueue = raw.Context.WorkerQueue
	}
	if meta.IsDefined("context", "delivery_buffer") {
		cfg.Context.DeliveryBuffer = raw.Context.DeliveryBuffer
	}
	if meta.IsDefined("host", "listen") {
		cfg.Host.Listen = strings.TrimSpace(raw.Host.Listen)
	}
	if meta.IsDefined("host", "dial") {
		cfg.Host.Dial = strings.TrimSpace(raw.Host.Dial)
	}
	if meta.IsDefined("host", "invoke_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Host.InvokeTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("load config: host.invoke_timeout: %w", err)
		}
		cfg.Host.InvokeTimeout = d
	}
	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "development") {
		cfg.Log.Development = raw.Log.Development
	}
	if meta.IsDefined("ui", "enabled") {
		cfg.UI.Enabled = raw.UI.Enabled
	}
	if meta.IsDefined("ui", "title") {
		cfg.UI.Title = raw.UI.Title
	}
	return cfg, nil
}

func loadYAML(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.Script = strings.TrimSpace(cfg.Script)
	cfg.Host.Listen = strings.TrimSpace(cfg.Host.Listen)
	cfg.Host.Dial = strings.TrimSpace(cfg.Host.Dial)
	return cfg, nil
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	if c.Context.FirstTargetID >= -2 && c.Context.FirstTargetID <= -1 {
		return fmt.Errorf("context.first_target_id %d is reserved", c.Context.FirstTargetID)
	}
	if c.Context.AutoFlush < 0 {
		return fmt.Errorf("context.auto_flush must not be negative, got %d", c.Context.AutoFlush)
	}
	if c.Context.WorkerQueue <= 0 {
		return fmt.Errorf("context.worker_queue must be positive, got %d", c.Context.WorkerQueue)
	}
	if c.Context.DeliveryBuffer < 0 {
		return fmt.Errorf("context.delivery_buffer must not be negative, got %d", c.Context.DeliveryBuffer)
	}
	if c.Host.Listen != "" && c.Host.Dial != "" {
		return errors.New("host.listen and host.dial are mutually exclusive")
	}
	if c.Host.Dial != "" && !strings.HasPrefix(c.Host.Dial, "ws://") && !strings.HasPrefix(c.Host.Dial, "wss://") {
		return fmt.Errorf("host.dial must be a ws:// or wss:// url, got %q", c.Host.Dial)
	}
	if c.Host.InvokeTimeout <= 0 {
		return fmt.Errorf("host.invoke_timeout must be positive, got %s", c.Host.InvokeTimeout)
	}
	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.UI.Enabled && (c.Host.Dial != "" || c.Host.Listen != "") {
		return errors.New("ui requires the in-process host")
	}
	if c.Script != "" && c.Host.Listen != "" {
		return errors.New("script cannot run in the host.listen process")
	}
	return nil
}

// Logger builds the process logger described by c. Development loggers
// colour their levels when color is set.
func (c LogConfig) Logger(color bool) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
		if color {
			zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	}
	zc.Level = level
	return zc.Build()
}
