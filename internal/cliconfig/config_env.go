package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (WALFP_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("start", os.Getenv("WALFP_START"), &cfg.StartText)
	s.setString("end", os.Getenv("WALFP_END"), &cfg.EndText)
	s.setString("dest", os.Getenv("WALFP_DEST"), &cfg.Dest)
	s.setString("on-malformed", os.Getenv("WALFP_ON_MALFORMED"), &cfg.OnMalformed)
	s.setString("log-level", os.Getenv("WALFP_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", os.Getenv("WALFP_LOG_FORMAT"), &cfg.LogFormat)

	if err := s.setInt64FromString("xid", os.Getenv("WALFP_XID"), &cfg.XID); err != nil {
		return err
	}
	if err := s.setUintsFromString("rel", os.Getenv("WALFP_RELATIONS"), &cfg.Relations); err != nil {
		return err
	}

	if err := s.setDuration("poll", os.Getenv("WALFP_POLL_INTERVAL"), &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("max-poll", os.Getenv("WALFP_MAX_POLL_INTERVAL"), &cfg.MaxPollInterval); err != nil {
		return err
	}

	s.setBoolFromString("check", os.Getenv("WALFP_CHECK"), &cfg.Check)
	s.setBoolFromString("test", os.Getenv("WALFP_DRY_RUN"), &cfg.DryRun)
	s.setBoolFromString("follow", os.Getenv("WALFP_FOLLOW"), &cfg.Follow)

	return nil
}
