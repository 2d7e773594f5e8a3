package session

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/m4xw311/hai/errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Dir is where named sessions are stored, relative to the working directory.
var Dir = filepath.Join(".hai", "sessions")

// ToolCall is a structured request from the model to invoke a tool.
type ToolCall struct {
	ToolCallID string                 `json:"tool_call_id"`
	Name       string                 `json:"name"`
	Args       map[string]interface{} `json:"args,omitempty"`
}

// Reasoning is a signed thinking block some providers require to be sent
// back with the assistant turn that produced it.
type Reasoning struct {
	Text      string `json:"text,omitempty"`
	Signature string `json:"signature,omitempty"`
	Redacted  string `json:"redacted,omitempty"`
}

// Message is one entry of the conversation history.
//
// A "tool" message carries exactly one ToolCall identifying the call it
// answers; its Content is the serialized outcome.
type Message struct {
	Role      string      `json:"role"` // "system", "user", "assistant", "tool"
	Content   string      `json:"content"`
	ToolCalls []ToolCall  `json:"tool_calls,omitempty"`
	Reasoning []Reasoning `json:"reasoning,omitempty"`
	IsError   bool        `json:"is_error,omitempty"`
}

type Session struct {
	Name     string    `json:"name"`
	Messages []Message `json:"messages"`
	path     string
}

// New creates a new, unsaved session. An empty name creates an anonymous
// session that is never written to disk.
func New(name string) *Session {
	s := &Session{
		Name:     name,
		Messages: []Message{},
	}
	if name != "" {
		s.path = sessionPath(name)
	}
	return s
}

// Load loads an existing session from disk.
func Load(name string) (*Session, error) {
	path := sessionPath(name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read session file %s", path)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrapf(err, "could not parse session file %s", path)
	}
	s.path = path
	return &s, nil
}

// Save writes the current session state to disk. Anonymous sessions are
// not persisted.
func (s *Session) Save() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.Wrapf(err, "could not create session directory")
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to serialize session")
	}
	return os.WriteFile(s.path, data, 0644)
}

// AddMessage appends a message to the session history.
func (s *Session) AddMessage(msg Message) {
	s.Messages = append(s.Messages, msg)
}

// SystemPrompt returns the content of the first system message, if any.
func (s *Session) SystemPrompt() string {
	for _, m := range s.Messages {
		if m.Role == RoleSystem {
			return m.Content
		}
	}
	return ""
}

// Conversation returns the history without system messages.
func (s *Session) Conversation() []Message {
	out := make([]Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		if m.Role != RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

func sessionPath(name string) string {
	return filepath.Join(Dir, name+".json")
}
