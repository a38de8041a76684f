// Package config loads and validates the deckforge configuration.
//
// Configuration is validated once here at the boundary; core packages receive
// typed values and never re-check field presence or read the process
// environment themselves.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Compiler CompilerConfig `yaml:"compiler"`
	Loop     LoopConfig     `yaml:"loop"`
	Output   OutputConfig   `yaml:"output"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LLMConfig configures the text-generation backend. The API key is injected
// from here into the client constructor; nothing downstream reads env vars.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // "openai" or an OpenAI-compatible gateway
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url,omitempty"`
	Temperature float64       `yaml:"temperature"`
	Timeout     Duration      `yaml:"timeout"`
}

// CompilerEngine selects the external LaTeX binary.
type CompilerEngine string

const (
	EngineAuto     CompilerEngine = "auto" // xelatex for CJK languages, pdflatex otherwise
	EnginePDFLaTeX CompilerEngine = "pdflatex"
	EngineXeLaTeX  CompilerEngine = "xelatex"
)

// CompilerConfig configures the external LaTeX compiler invocation.
type CompilerConfig struct {
	Engine      CompilerEngine `yaml:"engine"`
	Timeout     Duration       `yaml:"timeout"`
	ExtraPasses int            `yaml:"extra_passes"` // reruns after first success for TOC/cross-refs
	ShellEscape bool           `yaml:"shell_escape"` // required for minted and friends
}

// LoopConfig configures the compile/repair retry loop.
type LoopConfig struct {
	// MaxAttempts is the compile attempt budget. There is exactly one default
	// (3); call sites never apply their own.
	MaxAttempts int      `yaml:"max_attempts"`
	RepairDelay Duration `yaml:"repair_delay"`
	// KeepAttemptHistory snapshots each attempt's source as
	// source.attempt-N.tex instead of only keeping the latest. The loop itself
	// remains forward-only either way.
	KeepAttemptHistory bool `yaml:"keep_attempt_history"`
}

// OutputConfig configures persistent output locations.
type OutputConfig struct {
	Directory string   `yaml:"directory"`
	RetainFor Duration `yaml:"retain_for"` // janitor prunes run dirs older than this
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	WatchConfig     bool     `yaml:"watch_config"`
	JanitorInterval Duration `yaml:"janitor_interval"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Load loads configuration from the specified file, expands environment
// variables in its content and applies defaults.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with all defaults applied, suitable for
// tests and for callers that run without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.2
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = Duration(2 * time.Minute)
	}
	if c.Compiler.Engine == "" {
		c.Compiler.Engine = EngineAuto
	}
	if c.Compiler.Timeout == 0 {
		c.Compiler.Timeout = Duration(60 * time.Second)
	}
	if c.Compiler.ExtraPasses == 0 {
		c.Compiler.ExtraPasses = 2
	}
	if c.Loop.MaxAttempts == 0 {
		c.Loop.MaxAttempts = 3
	}
	if c.Loop.RepairDelay == 0 {
		c.Loop.RepairDelay = Duration(time.Second)
	}
	if c.Output.Directory == "" {
		c.Output.Directory = "./output"
	}
	if c.Output.RetainFor == 0 {
		c.Output.RetainFor = Duration(7 * 24 * time.Hour)
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.JanitorInterval == 0 {
		c.Server.JanitorInterval = Duration(time.Hour)
	}
	c.Logging.Level = NormalizeLogLevel(string(c.Logging.Level))
	c.Logging.Format = NormalizeLogFormat(string(c.Logging.Format))
}

// Validate ensures the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.Compiler.Engine {
	case EngineAuto, EnginePDFLaTeX, EngineXeLaTeX:
	default:
		return fmt.Errorf("unknown compiler engine: %s", c.Compiler.Engine)
	}
	if c.Loop.MaxAttempts < 1 {
		return fmt.Errorf("loop.max_attempts must be >= 1, got %d", c.Loop.MaxAttempts)
	}
	if c.Compiler.Timeout <= 0 {
		return fmt.Errorf("compiler.timeout must be positive")
	}
	if c.Compiler.ExtraPasses < 0 {
		return fmt.Errorf("compiler.extra_passes cannot be negative")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature out of range: %v", c.LLM.Temperature)
	}
	return nil
}
