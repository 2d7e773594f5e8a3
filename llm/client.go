package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"sync"

	"github.com/m4xw311/hai/config"
	"github.com/m4xw311/hai/errors"
	"github.com/m4xw311/hai/session"
	"github.com/m4xw311/hai/tools"
	"pkt.systems/pslog"
)

const (
	defaultMaxTokens  = 4096
	thinkingMaxTokens = 16000
	thinkingBudget    = 12000
)

type EventKind int

const (
	// EventText carries a fragment of the assistant's answer.
	EventText EventKind = iota
	// EventToolCall carries one complete tool call.
	EventToolCall
	// EventReasoning carries a thinking block to keep in history.
	EventReasoning
)

// Event is one item of a model step. The end of the sequence ends the step.
type Event struct {
	Kind      EventKind
	Text      string
	ToolCall  session.ToolCall
	Reasoning session.Reasoning
}

func TextEvent(text string) Event { return Event{Kind: EventText, Text: text} }

func ToolCallEvent(id, name string, args map[string]interface{}) Event {
	return Event{Kind: EventToolCall, ToolCall: session.ToolCall{ToolCallID: id, Name: name, Args: args}}
}

// Options are per-run generation settings.
type Options struct {
	Think     bool
	MaxTokens int
}

// Request is one model step.
type Request struct {
	System   string
	Messages []session.Message // never contains system messages
	Tools    []tools.Tool
	// Stream selects the provider's incremental API; otherwise the complete
	// response is fetched and replayed as events.
	Stream  bool
	Options Options
}

// LLMClient is the interface for interacting with a Large Language Model.
type LLMClient interface {
	Chat(ctx context.Context, req *Request) iter.Seq2[Event, error]
}

// NewClient creates the client for a resolved profile.
func NewClient(ctx context.Context, p config.Profile, apiKey string) (LLMClient, error) {
	pslog.Ctx(ctx).Debug("creating llm client", "provider", p.Provider, "model", p.Model)
	switch p.Provider {
	case "anthropic":
		return NewAnthropicLLMClient(p.Model, apiKey, p.BaseURL), nil
	case "openai":
		return NewOpenAILLMClient(p.Model, apiKey, p.BaseURL, true), nil
	case "openai-compatible":
		return NewOpenAILLMClient(p.Model, apiKey, p.BaseURL, false), nil
	case "gemini":
		return NewGeminiLLMClient(ctx, p.Model, apiKey)
	case "bedrock":
		return NewBedrockLLMClient(ctx, p.Model, p.Region)
	case "mock":
		return &ScriptedClient{}, nil
	}
	return nil, errors.Wrapf(errors.ErrUnknownProvider, "%s", p.Provider)
}

// replay yields the events of a complete assistant message.
func replay(msg *session.Message, yield func(Event, error) bool) {
	for _, r := range msg.Reasoning {
		if !yield(Event{Kind: EventReasoning, Reasoning: r}, nil) {
			return
		}
	}
	if msg.Content != "" {
		if !yield(TextEvent(msg.Content), nil) {
			return
		}
	}
	for _, tc := range msg.ToolCalls {
		if !yield(Event{Kind: EventToolCall, ToolCall: tc}, nil) {
			return
		}
	}
}

func fail(err error) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		yield(Event{}, err)
	}
}

// parseArgs decodes tool call arguments. Empty input means no arguments.
func parseArgs(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}

func maxTokens(o Options) int {
	if o.MaxTokens > 0 {
		return o.MaxTokens
	}
	if o.Think {
		return thinkingMaxTokens
	}
	return defaultMaxTokens
}

// Step is one scripted model response.
type Step struct {
	Events []Event
	// Err is yielded after the events.
	Err error
	// Block waits for cancellation after the events and yields ctx.Err().
	Block bool
}

// ScriptedClient replays scripted steps, one per Chat call. Once the script
// is exhausted (or when it is empty) it answers by echoing the last user
// message, which is what the mock provider does.
type ScriptedClient struct {
	Script []Step

	mu       sync.Mutex
	next     int
	requests []Request
}

func (m *ScriptedClient) Chat(ctx context.Context, req *Request) iter.Seq2[Event, error] {
	m.mu.Lock()
	r := *req
	r.Messages = append([]session.Message(nil), req.Messages...)
	m.requests = append(m.requests, r)
	var step *Step
	if m.next < len(m.Script) {
		step = &m.Script[m.next]
		m.next++
	}
	m.mu.Unlock()

	if step == nil {
		step = &Step{Events: []Event{TextEvent(echo(req.Messages))}}
	}

	return func(yield func(Event, error) bool) {
		for _, ev := range step.Events {
			if ctx.Err() != nil {
				yield(Event{}, ctx.Err())
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
		if step.Block {
			<-ctx.Done()
			yield(Event{}, ctx.Err())
			return
		}
		if step.Err != nil {
			yield(Event{}, step.Err)
		}
	}
}

// Requests returns the requests received so far.
func (m *ScriptedClient) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

func echo(messages []session.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == session.RoleUser {
			return fmt.Sprintf("I am a mock LLM. You said: '%s'.", messages[i].Content)
		}
	}
	return "I am a mock LLM."
}
