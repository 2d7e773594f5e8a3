package llm

import (
	"context"
	"fmt"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/generative-ai-go/genai"
	"github.com/m4xw311/hai/config"
	"github.com/m4xw311/hai/errors"
	"github.com/m4xw311/hai/session"
	"github.com/m4xw311/hai/tools"
)

// toolTurn is an assistant turn with two calls followed by both results.
func toolTurn() []session.Message {
	return []session.Message{
		{Role: session.RoleUser, Content: "list files"},
		{
			Role:    session.RoleAssistant,
			Content: "Sure.",
			ToolCalls: []session.ToolCall{
				{ToolCallID: "c1", Name: "shell", Args: map[string]interface{}{"command": "ls"}},
				{ToolCallID: "c2", Name: "shell", Args: map[string]interface{}{"command": "pwd"}},
			},
		},
		{Role: session.RoleTool, Content: `{"success":true,"output":"a.txt"}`, ToolCalls: []session.ToolCall{{ToolCallID: "c1", Name: "shell"}}},
		{Role: session.RoleTool, Content: `{"success":false,"error":"User rejected the command"}`, IsError: true, ToolCalls: []session.ToolCall{{ToolCallID: "c2", Name: "shell"}}},
	}
}

func collect(t *testing.T, seq func(func(Event, error) bool)) ([]Event, error) {
	t.Helper()
	var events []Event
	var err error
	seq(func(ev Event, e error) bool {
		if e != nil {
			err = e
			return false
		}
		events = append(events, ev)
		return true
	})
	return events, err
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		provider string
		wantErr  bool
	}{
		{"anthropic", false},
		{"openai", false},
		{"openai-compatible", false},
		{"mock", false},
		{"cohere", true},
		{"", true},
	}
	for _, tt := range tests {
		client, err := NewClient(context.Background(), config.Profile{Provider: tt.provider, Model: "m"}, "key")
		if tt.wantErr {
			if !errors.Is(err, errors.ErrUnknownProvider) {
				t.Errorf("%q: expected ErrUnknownProvider, got %v", tt.provider, err)
			}
			continue
		}
		if err != nil || client == nil {
			t.Errorf("%q: unexpected error %v", tt.provider, err)
		}
	}

	client, _ := NewClient(context.Background(), config.Profile{Provider: "openai", Model: "gpt-4o"}, "key")
	if c, ok := client.(*OpenAILLMClient); !ok || !c.native {
		t.Errorf("expected native OpenAI client, got %#v", client)
	}
	client, _ = NewClient(context.Background(), config.Profile{Provider: "openai-compatible", Model: "llama3"}, "key")
	if c, ok := client.(*OpenAILLMClient); !ok || c.native {
		t.Errorf("expected compatible OpenAI client, got %#v", client)
	}
}

func TestReplayOrder(t *testing.T) {
	msg := &session.Message{
		Role:      session.RoleAssistant,
		Content:   "hi",
		Reasoning: []session.Reasoning{{Text: "r"}},
		ToolCalls: []session.ToolCall{{ToolCallID: "1", Name: "shell"}},
	}
	events, err := collect(t, func(yield func(Event, error) bool) { replay(msg, yield) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []EventKind{EventReasoning, EventText, EventToolCall}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, k := range want {
		if events[i].Kind != k {
			t.Errorf("event %d: expected kind %d, got %d", i, k, events[i].Kind)
		}
	}

	// Stopping early must not yield again.
	n := 0
	replay(msg, func(Event, error) bool { n++; return false })
	if n != 1 {
		t.Errorf("expected replay to stop after 1 event, got %d", n)
	}
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"null", 0, false},
		{"{}", 0, false},
		{`{"command":"ls"}`, 1, false},
		{`{"command":`, 0, true},
		{`[1,2]`, 0, true},
	}
	for _, tt := range tests {
		args, err := parseArgs([]byte(tt.raw))
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error %v", tt.raw, err)
			continue
		}
		if args == nil || len(args) != tt.want {
			t.Errorf("%q: expected %d args, got %v", tt.raw, tt.want, args)
		}
	}
}

func TestMaxTokens(t *testing.T) {
	if got := maxTokens(Options{}); got != defaultMaxTokens {
		t.Errorf("expected %d, got %d", defaultMaxTokens, got)
	}
	if got := maxTokens(Options{Think: true}); got != thinkingMaxTokens {
		t.Errorf("expected %d, got %d", thinkingMaxTokens, got)
	}
	if got := maxTokens(Options{Think: true, MaxTokens: 100}); got != 100 {
		t.Errorf("expected 100, got %d", got)
	}
}

func TestIsReasoningModel(t *testing.T) {
	tests := map[string]bool{
		"o1-mini":     true,
		"o3":          true,
		"gpt-4o":      false,
		"gpt-4o-mini": false,
		"llama3":      false,
	}
	for model, want := range tests {
		if got := isReasoningModel(model); got != want {
			t.Errorf("%s: expected %v, got %v", model, want, got)
		}
	}
}

func TestOpenAIParams(t *testing.T) {
	req := &Request{
		System:   "sys",
		Messages: []session.Message{{Role: session.RoleUser, Content: "hi"}},
		Tools:    []tools.Tool{&MockTool{name: "shell", description: "run"}},
		Options:  Options{Think: true},
	}

	native := NewOpenAILLMClient("o3-mini", "k", "", true)
	params := native.params(req)
	if len(params.Messages) != 2 || params.Messages[0].OfSystem == nil {
		t.Fatalf("expected system message first, got %d messages", len(params.Messages))
	}
	if params.ReasoningEffort == "" {
		t.Error("expected reasoning effort for a native reasoning model")
	}
	if len(params.Tools) != 1 {
		t.Errorf("expected 1 tool, got %d", len(params.Tools))
	}

	compatible := NewOpenAILLMClient("o3-mini", "k", "http://localhost:11434/v1", false)
	if params := compatible.params(req); params.ReasoningEffort != "" {
		t.Error("expected no reasoning effort for a compatible endpoint")
	}
}

func TestConvertMessagesToOpenaiContent(t *testing.T) {
	msgs := convertMessagesToOpenaiContent(toolTurn())
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0].OfUser == nil {
		t.Error("expected user message")
	}
	if msgs[1].OfAssistant == nil || len(msgs[1].OfAssistant.ToolCalls) != 2 {
		t.Error("expected assistant message with 2 tool calls")
	}
	if msgs[2].OfTool == nil || msgs[3].OfTool == nil {
		t.Error("expected tool messages")
	}
	if msgs[3].OfTool.ToolCallID != "c2" {
		t.Errorf("expected tool call id c2, got %s", msgs[3].OfTool.ToolCallID)
	}
}

func TestConvertMessagesToAnthropicMessages(t *testing.T) {
	msgs := convertMessagesToAnthropicMessages(toolTurn())
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[1].Role != anthropic.MessageParamRoleAssistant || len(msgs[1].Content) != 3 {
		t.Errorf("expected assistant turn with text and 2 tool uses, got %+v", msgs[1])
	}
	if !isToolResultTurn(msgs[2]) || len(msgs[2].Content) != 2 {
		t.Fatalf("expected merged tool results, got %+v", msgs[2])
	}
	if r := msgs[2].Content[1].OfToolResult; r == nil || r.ToolUseID != "c2" {
		t.Errorf("expected second result for c2, got %+v", r)
	}
	if isToolResultTurn(msgs[0]) {
		t.Error("plain user turn reported as tool results")
	}

	// An empty assistant message is dropped.
	msgs = convertMessagesToAnthropicMessages([]session.Message{{Role: session.RoleAssistant}})
	if len(msgs) != 0 {
		t.Errorf("expected empty assistant message to be dropped, got %d", len(msgs))
	}
}

func TestConvertToolsToAnthropicTools(t *testing.T) {
	got := convertToolsToAnthropicTools([]tools.Tool{&MockTool{name: "shell", description: "run"}})
	if len(got) != 1 || got[0].Name != "shell" {
		t.Fatalf("unexpected tools %+v", got)
	}
	if len(got[0].InputSchema.Required) != 1 || got[0].InputSchema.Required[0] != "command" {
		t.Errorf("unexpected required %v", got[0].InputSchema.Required)
	}
	if convertToolsToAnthropicTools(nil) != nil {
		t.Error("expected nil tools")
	}
}

func TestToolInput(t *testing.T) {
	if got := string(toolInput(nil)); got != "{}" {
		t.Errorf("expected {}, got %s", got)
	}
	if got := string(toolInput(map[string]interface{}{"command": "ls"})); got != `{"command":"ls"}` {
		t.Errorf("unexpected input %s", got)
	}
}

func TestConvertMessagesToGeminiContent(t *testing.T) {
	contents := convertMessagesToGeminiContent(toolTurn())
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if contents[1].Role != "model" || len(contents[1].Parts) != 3 {
		t.Errorf("expected model turn with 3 parts, got %+v", contents[1])
	}
	if !isFunctionResponseTurn(contents[2]) || len(contents[2].Parts) != 2 {
		t.Fatalf("expected merged function responses, got %+v", contents[2])
	}
	resp := contents[2].Parts[1].(genai.FunctionResponse)
	if resp.Response["error"] != "User rejected the command" {
		t.Errorf("expected outcome fields in response, got %v", resp.Response)
	}
}

func TestFunctionResponse(t *testing.T) {
	if got := functionResponse("plain"); got["content"] != "plain" {
		t.Errorf("expected wrapped content, got %v", got)
	}
	if got := functionResponse(`{"success":true}`); got["success"] != true {
		t.Errorf("expected decoded object, got %v", got)
	}
}

func TestProcessGeminiResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.Text("Running."),
				genai.FunctionCall{Name: "shell", Args: map[string]any{"command": "ls"}},
				genai.FunctionCall{Name: "shell"},
			}},
		}},
	}
	msg := &session.Message{Role: session.RoleAssistant}
	processGeminiResponse(resp, msg)
	if msg.Content != "Running." {
		t.Errorf("unexpected content %q", msg.Content)
	}
	if len(msg.ToolCalls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(msg.ToolCalls))
	}
	if msg.ToolCalls[0].ToolCallID == msg.ToolCalls[1].ToolCallID {
		t.Error("expected distinct generated ids")
	}
	if msg.ToolCalls[1].Args == nil {
		t.Error("expected empty args, got nil")
	}

	processGeminiResponse(nil, msg)
	processGeminiResponse(&genai.GenerateContentResponse{}, msg)
}

func TestGeminiType(t *testing.T) {
	tests := map[string]genai.Type{
		"string":  genai.TypeString,
		"integer": genai.TypeInteger,
		"boolean": genai.TypeBoolean,
		"":        genai.TypeString,
	}
	for in, want := range tests {
		if got := geminiType(in); got != want {
			t.Errorf("%q: expected %v, got %v", in, want, got)
		}
	}
}

func TestScriptedClient(t *testing.T) {
	ctx := context.Background()
	boom := fmt.Errorf("boom")
	client := &ScriptedClient{Script: []Step{
		{Events: []Event{TextEvent("a"), ToolCallEvent("1", "shell", map[string]interface{}{"command": "ls"})}},
		{Events: []Event{TextEvent("partial")}, Err: boom},
	}}

	req := &Request{Messages: []session.Message{{Role: session.RoleUser, Content: "hello"}}}
	events, err := collect(t, client.Chat(ctx, req))
	if err != nil || len(events) != 2 || events[1].Kind != EventToolCall {
		t.Fatalf("unexpected first step %v %v", events, err)
	}

	events, err = collect(t, client.Chat(ctx, req))
	if err != boom || len(events) != 1 {
		t.Fatalf("expected partial text then error, got %v %v", events, err)
	}

	events, err = collect(t, client.Chat(ctx, req))
	if err != nil || len(events) != 1 || events[0].Text != "I am a mock LLM. You said: 'hello'." {
		t.Fatalf("expected echo after script, got %v %v", events, err)
	}

	if got := len(client.Requests()); got != 3 {
		t.Errorf("expected 3 recorded requests, got %d", got)
	}
}

func TestScriptedClientBlockHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &ScriptedClient{Script: []Step{{Events: []Event{TextEvent("x")}, Block: true}}}

	seq := client.Chat(ctx, &Request{})
	var got []Event
	var err error
	seq(func(ev Event, e error) bool {
		if e != nil {
			err = e
			return false
		}
		got = append(got, ev)
		cancel()
		return true
	})
	if len(got) != 1 || !errors.Is(err, context.Canceled) {
		t.Errorf("expected one event then context.Canceled, got %v %v", got, err)
	}
}
