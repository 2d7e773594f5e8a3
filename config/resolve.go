package config

import (
	"os"
	"strings"
	"time"

	"github.com/m4xw311/hai/errors"
)

// Overrides carries the command-line flags that take precedence over the
// configuration file. Nil pointers mean "not given".
type Overrides struct {
	Profile  string
	Prompt   string
	Think    *bool
	Stream   *bool
	Chat     bool
	Yes      bool
	MaxSteps int
	Timeout  int // seconds
}

// Terminal describes which standard streams are attached to a terminal.
type Terminal struct {
	Stdin  bool
	Stdout bool
}

// Settings is the fully resolved configuration of one invocation.
type Settings struct {
	Profile         Profile
	APIKey          string
	Think           bool
	Stream          bool
	Color           bool
	Mode            string
	AutoConfirm     bool
	MaxSteps        int
	Timeout         time.Duration
	PromptTemplate  string
	AllowedCommands []string
}

// Resolve merges the configuration with the command-line overrides.
func (c *Config) Resolve(o Overrides, term Terminal) (*Settings, error) {
	if o.Yes && o.Chat {
		return nil, errors.New("-y and --chat cannot be used together")
	}

	p, err := c.GetProfile(o.Profile)
	if err != nil {
		return nil, err
	}

	apiKey := APIKey(p)
	if apiKey == "" && RequiresAPIKey(p.Provider) {
		return nil, errors.Wrapf(errors.ErrNoAPIKey, "profile %s", p.Name)
	}

	s := &Settings{
		Profile:         *p,
		APIKey:          apiKey,
		Think:           c.ResolveThink(o.Think, p),
		Stream:          c.ResolveStream(o.Stream, term.Stdout),
		Color:           c.ResolveColor(term.Stdout),
		Mode:            c.ResolveMode(o.Chat, o.Yes, term.Stdin),
		AutoConfirm:     o.Yes,
		MaxSteps:        c.MaxSteps,
		Timeout:         time.Duration(c.Timeout) * time.Second,
		AllowedCommands: c.AllowedCommands,
	}
	if o.MaxSteps > 0 {
		s.MaxSteps = o.MaxSteps
	}
	if o.Timeout > 0 {
		s.Timeout = time.Duration(o.Timeout) * time.Second
	}
	if o.Prompt != "" {
		tmpl, err := c.GetPrompt(o.Prompt)
		if err != nil {
			return nil, err
		}
		s.PromptTemplate = tmpl
	}
	return s, nil
}

// GetProfile finds a profile by name. An empty name selects the first
// profile marked default, or the first profile.
func (c *Config) GetProfile(name string) (*Profile, error) {
	if len(c.Profiles) == 0 {
		return nil, errors.Wrapf(errors.ErrNoProfiles, "resolve profile")
	}
	if name != "" {
		for i := range c.Profiles {
			if c.Profiles[i].Name == name {
				return &c.Profiles[i], nil
			}
		}
		return nil, errors.Wrapf(errors.ErrProfileNotFound, "%s", name)
	}
	for i := range c.Profiles {
		if c.Profiles[i].Default {
			return &c.Profiles[i], nil
		}
	}
	return &c.Profiles[0], nil
}

// GetPrompt returns the named prompt template.
func (c *Config) GetPrompt(name string) (string, error) {
	tmpl, ok := c.Prompts[name]
	if !ok {
		return "", errors.Wrapf(errors.ErrPromptNotFound, "%s", name)
	}
	return tmpl, nil
}

// ResolveThink applies CLI > profile > global > false.
func (c *Config) ResolveThink(cli *bool, p *Profile) bool {
	switch {
	case cli != nil:
		return *cli
	case p != nil && p.Think != nil:
		return *p.Think
	case c.Think != nil:
		return *c.Think
	}
	return false
}

// ResolveStream applies the CLI flag, then the terminal or pipe setting.
func (c *Config) ResolveStream(cli *bool, stdoutTTY bool) bool {
	if cli != nil {
		return *cli
	}
	if stdoutTTY {
		return c.Stream == nil || *c.Stream
	}
	return c.Pipe.Stream
}

func (c *Config) ResolveColor(stdoutTTY bool) bool {
	if stdoutTTY {
		return true
	}
	return c.Pipe.Color
}

// ResolveMode picks auto or chat. Without a terminal on stdin nobody can
// answer a confirmation prompt, so auto falls back to chat unless -y is set.
func (c *Config) ResolveMode(chat, yes, stdinTTY bool) string {
	if chat {
		return ModeChat
	}
	mode := c.Mode
	if mode != ModeChat {
		mode = ModeAuto
	}
	if mode == ModeAuto && !stdinTTY && !yes {
		return ModeChat
	}
	return mode
}

var apiKeyEnv = map[string][]string{
	"openai":            {"OPENAI_API_KEY"},
	"openai-compatible": {"OPENAI_API_KEY"},
	"anthropic":         {"ANTHROPIC_API_KEY"},
	"gemini":            {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
}

// APIKey returns the key for a profile. The provider's environment variable
// takes priority; otherwise api_key is used with $VAR references expanded.
func APIKey(p *Profile) string {
	for _, name := range apiKeyEnv[p.Provider] {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return strings.TrimSpace(os.ExpandEnv(p.APIKey))
}

// RequiresAPIKey reports whether the provider authenticates with an API key.
// Bedrock uses the AWS credential chain and the mock provider needs nothing.
func RequiresAPIKey(provider string) bool {
	_, ok := apiKeyEnv[provider]
	return ok
}
