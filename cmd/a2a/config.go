package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v2"

	"github.com/dshills/a2a-go/dialogue"
	"github.com/dshills/a2a-go/dialogue/store"
)

// Config represents the structure of the configuration YAML file.
//
// Example:
//
//	analyst:
//	  model: llama3
//	  timeout: 300s
//	  context_size: 4096
//	reviewer:
//	  model: Claude Sonnet 4 (API)
//	rounds: 3
//	retry:
//	  max_attempts: 3
//	  base_delay: 2s
//	  max_delay: 30s
//	store:
//	  driver: sqlite
//	  dsn: ~/.config/a2a/sessions.db
//	bell:
//	  sound: ~/.config/a2a/bell.wav
type Config struct {
	Dialogue dialogue.Config `yaml:",inline"`

	OllamaURL     string `yaml:"ollama_url"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	KeyDir        string `yaml:"key_dir"`
	ExportDir     string `yaml:"export_dir"`

	Store struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"store"`

	Log struct {
		File string `yaml:"file"`
		JSON bool   `yaml:"json"`
	} `yaml:"log"`

	TraceFile   string `yaml:"trace_file"`
	MetricsAddr string `yaml:"metrics_addr"`

	Bell struct {
		Disabled bool   `yaml:"disabled"`
		Sound    string `yaml:"sound"`
	} `yaml:"bell"`
}

// configDir is where keys, sessions and the bell live unless configured
// otherwise.
func configDir() string {
	if dir := os.Getenv("A2A_HOME"); dir != "" {
		return dir
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "a2a")
	}
	return ".a2a"
}

// loadConfig loads and parses a YAML configuration file.
// An empty path loads the default file when it exists.
func loadConfig(path string) (*Config, error) {
	var config Config

	explicit := path != ""
	if !explicit {
		path = filepath.Join(configDir(), "config.yaml")
	}

	data, err := os.ReadFile(expandHome(path))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config.applyDefaults()
	if err := config.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	dir := configDir()
	c.Dialogue.ApplyDefaults()
	if c.KeyDir == "" {
		c.KeyDir = dir
	}
	if c.ExportDir == "" {
		c.ExportDir = "."
	}
	if c.Store.Driver == "" {
		c.Store.Driver = store.DriverSQLite
	}
	if c.Store.DSN == "" && c.Store.Driver == store.DriverSQLite {
		c.Store.DSN = filepath.Join(dir, "sessions.db")
	}
	if c.Bell.Sound == "" {
		c.Bell.Sound = filepath.Join(dir, "bell.wav")
	}
	c.KeyDir = expandHome(c.KeyDir)
	c.ExportDir = expandHome(c.ExportDir)
	c.Bell.Sound = expandHome(c.Bell.Sound)
	if c.Store.Driver == store.DriverSQLite {
		c.Store.DSN = expandHome(c.Store.DSN)
	}
}

// applyEnv overrides file settings with A2A_* environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"A2A_ANALYST_MODEL":   &c.Dialogue.Analyst.Model,
		"A2A_REVIEWER_MODEL":  &c.Dialogue.Reviewer.Model,
		"A2A_OLLAMA_URL":      &c.OllamaURL,
		"A2A_OPENAI_BASE_URL": &c.OpenAIBaseURL,
		"A2A_KEY_DIR":         &c.KeyDir,
		"A2A_EXPORT_DIR":      &c.ExportDir,
		"A2A_STORE":           &c.Store.Driver,
		"A2A_STORE_DSN":       &c.Store.DSN,
		"A2A_LOG_FILE":        &c.Log.File,
		"A2A_TRACE_FILE":      &c.TraceFile,
		"A2A_METRICS_ADDR":    &c.MetricsAddr,
		"A2A_BELL_SOUND":      &c.Bell.Sound,
	}
	for name, dst := range str {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("A2A_ROUNDS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("A2A_ROUNDS: %w", err)
		}
		c.Dialogue.Rounds = n
	}
	if v, ok := lookup("A2A_TIMEOUT"); ok && v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("A2A_TIMEOUT: %w", err)
		}
		c.Dialogue.SetTimeout(d)
	}
	if v, ok := lookup("A2A_NO_BELL"); ok && v != "" {
		off, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("A2A_NO_BELL: %w", err)
		}
		c.Bell.Disabled = off
	}
	return nil
}

// applyArgs overrides settings with command-line flags.
func (c *Config) applyArgs(args Args) {
	if args.Analyst != "" {
		c.Dialogue.Analyst.Model = args.Analyst
	}
	if args.Reviewer != "" {
		c.Dialogue.Reviewer.Model = args.Reviewer
	}
	if args.Rounds != 0 {
		c.Dialogue.Rounds = args.Rounds
	}
	if args.Timeout != 0 {
		c.Dialogue.SetTimeout(dialogue.ClampTimeout(args.Timeout))
	}
	if args.Title != "" {
		c.Dialogue.Title = args.Title
	}
	if args.Store != "" {
		c.Store.Driver = args.Store
	}
	if args.DSN != "" {
		c.Store.DSN = args.DSN
	}
	if args.LogFile != "" {
		c.Log.File = args.LogFile
	}
	if args.LogJSON {
		c.Log.JSON = true
	}
	if args.TraceFile != "" {
		c.TraceFile = args.TraceFile
	}
	if args.MetricsAddr != "" {
		c.MetricsAddr = args.MetricsAddr
	}
	if args.NoBell {
		c.Bell.Disabled = true
	}
	if args.OllamaURL != "" {
		c.OllamaURL = args.OllamaURL
	}
}

// parseTimeout accepts a Go duration ("5m") or plain seconds ("300").
func parseTimeout(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
