package config

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m4xw311/hai/errors"
	"gopkg.in/yaml.v3"
	"pkt.systems/pslog"
)

const (
	ModeAuto = "auto"
	ModeChat = "chat"

	DefaultMaxSteps = 10
	DefaultTimeout  = 60 // seconds
)

type Profile struct {
	Name     string `yaml:"name"`
	Default  bool   `yaml:"default,omitempty"`
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Think    *bool  `yaml:"think,omitempty"`
}

// Pipe holds the settings used when stdout is not a terminal.
type Pipe struct {
	Stream bool `yaml:"stream"`
	Color  bool `yaml:"color"`
}

type Config struct {
	Profiles        []Profile         `yaml:"profiles"`
	Prompts         map[string]string `yaml:"prompts,omitempty"`
	Stream          *bool             `yaml:"stream,omitempty"`
	Think           *bool             `yaml:"think,omitempty"`
	Pipe            Pipe              `yaml:"pipe"`
	Mode            string            `yaml:"mode,omitempty"`
	MaxSteps        int               `yaml:"max_steps,omitempty"`
	Timeout         int               `yaml:"timeout,omitempty"`
	AllowedCommands []string          `yaml:"allowed_commands,omitempty"`
}

// Default returns the configuration written on first run.
func Default() *Config {
	stream := true
	think := false
	return &Config{
		Profiles: []Profile{
			{
				Name:     "gpt4",
				Default:  true,
				Provider: "openai-compatible",
				Model:    "gpt-4o",
				BaseURL:  "https://api.openai.com/v1",
			},
			{
				Name:     "claude",
				Provider: "anthropic",
				Model:    "claude-sonnet-4-20250514",
			},
			{
				Name:     "local",
				Provider: "openai-compatible",
				Model:    "llama3",
				APIKey:   "ollama",
				BaseURL:  "http://localhost:11434/v1",
			},
		},
		Prompts: map[string]string{
			"translate": "Translate into English: {{input}}",
			"explain":   "Explain in plain words: {{input}}",
			"code":      "Write code that implements the following: {{input}}",
		},
		Stream:   &stream,
		Think:    &think,
		Mode:     ModeAuto,
		MaxSteps: DefaultMaxSteps,
		Timeout:  DefaultTimeout,
	}
}

// UserConfigPath returns ~/.config/hai/config.yaml.
func UserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrapf(err, "could not determine home directory")
	}
	return filepath.Join(home, ".config", "hai", "config.yaml"), nil
}

// Loaded is the result of LoadConfig.
type Loaded struct {
	Config *Config
	// Path is the file the user should edit: the explicit path, or the
	// user-level file.
	Path string
	// FirstRun is set when no configuration existed and defaults were written.
	FirstRun bool
}

// LoadConfig loads configuration from the user's config directory and the
// current working directory, with the latter taking precedence. An explicit
// path replaces both. When no file exists at all, the defaults are written to
// the user-level (or explicit) path and FirstRun is reported.
func LoadConfig(ctx context.Context, explicitPath string) (*Loaded, error) {
	log := pslog.Ctx(ctx)

	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); os.IsNotExist(err) {
			return writeDefault(ctx, explicitPath)
		}
		cfg := &Config{}
		if err := loadFromFile(explicitPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading config %s", explicitPath)
		}
		log.Debug("loaded config", "path", explicitPath)
		return &Loaded{Config: withDefaults(cfg), Path: explicitPath}, nil
	}

	userConfigPath, err := UserConfigPath()
	if err != nil {
		return nil, err
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, ".hai", "config.yaml")

	cfg := &Config{}
	found := false

	// Load user-level config first
	if _, err := os.Stat(userConfigPath); err == nil {
		if err := loadFromFile(userConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading user config")
		}
		log.Debug("loaded config", "path", userConfigPath)
		found = true
	}

	// Load project-level config, overriding user-level
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
		log.Debug("loaded config", "path", projectConfigPath)
		found = true
	}

	if !found {
		return writeDefault(ctx, userConfigPath)
	}
	return &Loaded{Config: withDefaults(cfg), Path: userConfigPath}, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Fields present in the YAML overwrite earlier values; prompts merge by key.
	return yaml.Unmarshal(data, cfg)
}

func writeDefault(ctx context.Context, path string) (*Loaded, error) {
	cfg := Default()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrapf(err, "could not create config directory")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to serialize default config")
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, errors.Wrapf(err, "could not write default config")
	}
	pslog.Ctx(ctx).Info("wrote default config", "path", path)
	return &Loaded{Config: cfg, Path: path, FirstRun: true}, nil
}

func withDefaults(cfg *Config) *Config {
	if cfg.Mode == "" {
		cfg.Mode = ModeAuto
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return cfg
}
