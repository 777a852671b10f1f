// Package config loads intratool.yaml, applies environment overrides and
// fills in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is read from the working directory when no path is given.
const DefaultFile = "intratool.yaml"

// Config is the process configuration.
type Config struct {
	DataDir    string     `yaml:"data_dir"`
	Server     Server     `yaml:"server"`
	Log        Log        `yaml:"log"`
	Storage    Storage    `yaml:"storage"`
	Federation Federation `yaml:"federation"`
	Backup     Backup     `yaml:"backup"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type Storage struct {
	BusyTimeoutMs int    `yaml:"busy_timeout_ms"`
	JournalMode   string `yaml:"journal_mode"`
}

// BusyTimeout is how long a statement waits on a locked file.
func (s Storage) BusyTimeout() time.Duration {
	return time.Duration(s.BusyTimeoutMs) * time.Millisecond
}

type Federation struct {
	SlowQueryMs int `yaml:"slow_query_ms"`
	ProfileSize int `yaml:"profile_size"`
}

// SlowQuery is the duration from which federated queries are logged as slow.
func (f Federation) SlowQuery() time.Duration {
	return time.Duration(f.SlowQueryMs) * time.Millisecond
}

// Backup configures snapshots of the module files. At is the daily
// "hh:mm" run time of serve; empty disables scheduled backups.
type Backup struct {
	Dir       string `yaml:"dir"`
	Retention int    `yaml:"retention"`
	At        string `yaml:"at"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		DataDir: "data",
		Server:  Server{Addr: ":9000"},
		Log:     Log{Level: "info"},
		Storage: Storage{BusyTimeoutMs: 10000, JournalMode: "WAL"},
		Federation: Federation{
			SlowQueryMs: 500,
			ProfileSize: 1000,
		},
		Backup: Backup{Dir: "backups", Retention: 7, At: "02:00"},
	}
}

// Load reads path on top of the defaults. A missing file is not an error
// when path is the default file name. Environment overrides are applied
// last.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("INTRATOOL_DATA_DIR"); ok && v != "" {
		c.DataDir = v
	}
	if v, ok := lookup("INTRATOOL_ADDR"); ok && v != "" {
		c.Server.Addr = v
	}
	if v, ok := lookup("INTRATOOL_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("INTRATOOL_BACKUP_DIR"); ok && v != "" {
		c.Backup.Dir = v
	}
	if v, ok := lookup("INTRATOOL_SLOW_QUERY_MS"); ok && v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("INTRATOOL_SLOW_QUERY_MS: %w", err)
		}
		c.Federation.SlowQueryMs = ms
	}
	return nil
}

// Validate rejects values the rest of the program cannot work with.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("config: data_dir must be set")
	}
	if c.Storage.BusyTimeoutMs < 0 {
		return errors.New("config: storage.busy_timeout_ms must not be negative")
	}
	if c.Backup.Retention < 0 {
		return errors.New("config: backup.retention must not be negative")
	}
	return nil
}
