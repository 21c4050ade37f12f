package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Start           string `toml:"start" yaml:"start"`
	End             string `toml:"end" yaml:"end"`
	XID             *int64 `toml:"xid" yaml:"xid"`
	Relations       []uint `toml:"relations" yaml:"relations"`
	Dest            string `toml:"dest" yaml:"dest"`
	Check           *bool  `toml:"check" yaml:"check"`
	DryRun          *bool  `toml:"dry_run" yaml:"dry_run"`
	Follow          *bool  `toml:"follow" yaml:"follow"`
	PollInterval    string `toml:"poll_interval" yaml:"poll_interval"`
	MaxPollInterval string `toml:"max_poll_interval" yaml:"max_poll_interval"`
	OnMalformed     string `toml:"on_malformed" yaml:"on_malformed"`
	LogLevel        string `toml:"log_level" yaml:"log_level"`
	LogFormat       string `toml:"log_format" yaml:"log_format"`
}

// LoadFileConfig reads and parses a config file. Files ending in .yaml or
// .yml are YAML, everything else is TOML.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := toml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.walfp/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".walfp", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("start", fc.Start, &cfg.StartText)
	s.setString("end", fc.End, &cfg.EndText)
	s.setInt64("xid", fc.XID, &cfg.XID)
	s.setUints("rel", fc.Relations, &cfg.Relations)
	s.setString("dest", fc.Dest, &cfg.Dest)
	s.setString("on-malformed", fc.OnMalformed, &cfg.OnMalformed)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)

	if err := s.setDuration("poll", fc.PollInterval, &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("max-poll", fc.MaxPollInterval, &cfg.MaxPollInterval); err != nil {
		return err
	}

	s.setBool("check", fc.Check, &cfg.Check)
	s.setBool("test", fc.DryRun, &cfg.DryRun)
	s.setBool("follow", fc.Follow, &cfg.Follow)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
