// Package settings loads the engine settings from defaults, an optional
// file and TASKDASH_ environment variables.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings holds engine configuration.
type Settings struct {
	DataDir         string        `mapstructure:"data_dir"`
	LogLevel        string        `mapstructure:"log_level"`
	TickRate        float64       `mapstructure:"tick_rate"`
	FrameRate       float64       `mapstructure:"frame_rate"`
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`
	Shell           string        `mapstructure:"shell"`
	Scrollback      int           `mapstructure:"scrollback"`
	Theme           string        `mapstructure:"theme"`
}

func Defaults() Settings {
	return Settings{
		DataDir:         ".taskdash",
		LogLevel:        "info",
		TickRate:        10,
		FrameRate:       60,
		MonitorInterval: 100 * time.Millisecond,
		Shell:           "sh",
		Scrollback:      10000,
		Theme:           "auto",
	}
}

// Load reads settings from file and env. Env var overrides use prefix
// TASKDASH_.
func Load() (Settings, error) {
	d := Defaults()
	v := viper.New()

	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("tick_rate", d.TickRate)
	v.SetDefault("frame_rate", d.FrameRate)
	v.SetDefault("monitor_interval", d.MonitorInterval)
	v.SetDefault("shell", d.Shell)
	v.SetDefault("scrollback", d.Scrollback)
	v.SetDefault("theme", d.Theme)

	v.SetConfigType("yaml")
	cfgPath := os.Getenv("TASKDASH_SETTINGS")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "taskdash"))
		v.SetConfigName("settings")
	}

	v.SetEnvPrefix("TASKDASH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("read settings: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) Validate() error {
	if strings.TrimSpace(s.DataDir) == "" {
		return fmt.Errorf("data_dir is required")
	}
	if s.TickRate <= 0 {
		return fmt.Errorf("tick_rate must be positive")
	}
	if s.FrameRate <= 0 {
		return fmt.Errorf("frame_rate must be positive")
	}
	if s.MonitorInterval <= 0 {
		return fmt.Errorf("monitor_interval must be positive")
	}
	if strings.TrimSpace(s.Shell) == "" {
		return fmt.Errorf("shell is required")
	}
	switch s.Theme {
	case "auto", "light", "dark":
	default:
		return fmt.Errorf("theme must be auto, light, or dark")
	}
	return nil
}

func (s Settings) RegistryPath() string {
	return filepath.Join(s.DataDir, "running-tasks.db")
}

func (s Settings) LogPath() string {
	return filepath.Join(s.DataDir, "taskdash.log")
}

func (s Settings) PanicLogPath() string {
	return filepath.Join(s.DataDir, "taskdash-panic.log")
}

func (s Settings) CacheDir() string {
	return filepath.Join(s.DataDir, "cache")
}
