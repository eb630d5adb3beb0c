// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Agent() AgentConfig
	LLM() LLMModelConfig
	ToolServer() ToolServerConfig
	Canvas() CanvasConfig

	SetAgentQuery(q string)
	SetAgentMaxIterations(n int)
	SetAgentModelTimeout(d time.Duration)
	SetToolServerCommand(cmd string, args []string)
	SetToolServerInProcess(b bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	AgentCfg      AgentConfig      `mapstructure:"agent" yaml:"agent"`
	LLMCfg        LLMModelConfig   `mapstructure:"llm" yaml:"llm"`
	ToolServerCfg ToolServerConfig `mapstructure:"tool_server" yaml:"tool_server"`
	CanvasCfg     CanvasConfig     `mapstructure:"canvas" yaml:"canvas"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Agent() AgentConfig           { return c.AgentCfg }
func (c *Config) LLM() LLMModelConfig          { return c.LLMCfg }
func (c *Config) ToolServer() ToolServerConfig { return c.ToolServerCfg }
func (c *Config) Canvas() CanvasConfig         { return c.CanvasCfg }

// -- Setters, used by CLI flag overrides --

func (c *Config) SetAgentQuery(q string)               { c.AgentCfg.Query = q }
func (c *Config) SetAgentMaxIterations(n int)          { c.AgentCfg.MaxIterations = n }
func (c *Config) SetAgentModelTimeout(d time.Duration) { c.AgentCfg.ModelTimeout = d }
func (c *Config) SetToolServerInProcess(b bool)        { c.ToolServerCfg.InProcess = b }

func (c *Config) SetToolServerCommand(cmd string, args []string) {
	c.ToolServerCfg.Command = cmd
	c.ToolServerCfg.Args = args
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
}

// AgentConfig controls the request/parse/dispatch/observe loop.
type AgentConfig struct {
	Query         string        `mapstructure:"query" yaml:"query"`
	MaxIterations int           `mapstructure:"max_iterations" yaml:"max_iterations"`
	ModelTimeout  time.Duration `mapstructure:"model_timeout" yaml:"model_timeout"`
	// ExtraRules are appended to the fixed instruction preamble.
	ExtraRules []string `mapstructure:"extra_rules" yaml:"extra_rules"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMModelConfig defines the configuration for the completion model.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// RequestsPerMinute caps outbound generate calls. Zero disables the limiter.
	RequestsPerMinute float64 `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// ToolServerConfig describes how to reach the MCP tool server.
type ToolServerConfig struct {
	// Command is the executable spawned for the stdio transport. Empty means
	// this binary's own `serve` subcommand.
	Command       string            `mapstructure:"command" yaml:"command"`
	Args          []string          `mapstructure:"args" yaml:"args"`
	Env           map[string]string `mapstructure:"env" yaml:"env"`
	ShutdownGrace time.Duration     `mapstructure:"shutdown_grace" yaml:"shutdown_grace"`
	// InProcess serves the canvas tools over in-memory pipes instead of a subprocess.
	InProcess bool `mapstructure:"in_process" yaml:"in_process"`
}

// CanvasConfig sizes the in-memory canvas behind the bundled tool server.
type CanvasConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// Loop defaults.
const (
	DefaultMaxIterations = 10
	DefaultModelTimeout  = 20 * time.Second
)

// DefaultQuery is the task run when none is supplied.
const DefaultQuery = "Open Paint and draw exactly one rectangle with medium height and good width. " +
	"Fill the inside of the rectangle with colour. " +
	"Then write 'School of AI' in the middle of that rectangle, choosing text coordinates " +
	"that sit inside it and centred on the rectangle drawn earlier."

// DefaultExtraRules steer the model through the bundled canvas tools.
var DefaultExtraRules = []string{
	"Start with 'open_paint', then draw rectangles, then add text.",
	"Use 'draw_rectangle' for rectangles and 'add_text_in_paint' for text.",
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "easel")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Agent --
	v.SetDefault("agent.query", DefaultQuery)
	v.SetDefault("agent.max_iterations", DefaultMaxIterations)
	v.SetDefault("agent.model_timeout", DefaultModelTimeout.String())
	v.SetDefault("agent.extra_rules", DefaultExtraRules)

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderGemini))
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.api_timeout", "60s")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 256)
	v.SetDefault("llm.requests_per_minute", 15.0)

	// -- Tool server --
	v.SetDefault("tool_server.command", "")
	v.SetDefault("tool_server.args", []string{})
	v.SetDefault("tool_server.shutdown_grace", "3s")
	v.SetDefault("tool_server.in_process", false)

	// -- Canvas --
	v.SetDefault("canvas.width", 1920)
	v.SetDefault("canvas.height", 1080)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The API key is sensitive and conventionally lives outside the config file.
	_ = v.BindEnv("llm.api_key", "EASEL_LLM_API_KEY", "GEMINI_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.LLMCfg.APIKey == "" {
		cfg.LLMCfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// dotEnvKeys maps dotenv keys (lowercased by viper) onto config keys. When
// several keys feed the same config key, the earlier entry wins, matching
// the order of the environment binding in NewConfigFromViper.
var dotEnvKeys = []struct {
	env string
	cfg string
}{
	{"easel_llm_api_key", "llm.api_key"},
	{"gemini_api_key", "llm.api_key"},
	{"easel_llm_model", "llm.model"},
}

// LoadDotEnv reads a dotenv file and uses its values for the handful of keys
// that are usually kept out of the config file. Values already present in
// the environment win. A missing file is not an error.
func LoadDotEnv(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	resolved := make(map[string]bool, len(dotEnvKeys))
	for _, key := range dotEnvKeys {
		if resolved[key.cfg] {
			continue
		}
		if _, ok := os.LookupEnv(strings.ToUpper(key.env)); ok {
			resolved[key.cfg] = true
			continue
		}
		val := strings.TrimSpace(env.GetString(key.env))
		if val == "" {
			continue
		}
		v.Set(key.cfg, val)
		resolved[key.cfg] = true
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.AgentCfg.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if err := c.LLMCfg.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if c.ToolServerCfg.ShutdownGrace < 0 {
		return fmt.Errorf("tool_server.shutdown_grace cannot be negative")
	}
	if c.CanvasCfg.Width <= 0 || c.CanvasCfg.Height <= 0 {
		return fmt.Errorf("canvas.width and canvas.height must be positive integers")
	}
	return nil
}

// Validate checks the loop settings.
func (a *AgentConfig) Validate() error {
	if a.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be a positive integer")
	}
	if a.ModelTimeout <= 0 {
		return fmt.Errorf("model_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the model settings. The API key is checked where the
// client is built, since commands like `serve` never talk to a model.
func (l *LLMModelConfig) Validate() error {
	switch l.Provider {
	case ProviderGemini:
	default:
		return fmt.Errorf("unsupported llm provider: %q", l.Provider)
	}
	if l.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if l.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute cannot be negative")
	}
	return nil
}
