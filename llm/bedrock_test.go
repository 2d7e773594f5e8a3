package llm

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/m4xw311/hai/session"
	"github.com/m4xw311/hai/tools"
)

// MockTool is a simple mock tool for testing
type MockTool struct {
	name        string
	description string
}

func (m *MockTool) Name() string {
	return m.name
}

func (m *MockTool) Description() string {
	return m.description
}

func (m *MockTool) Parameters() []tools.Parameter {
	return []tools.Parameter{
		{Name: "command", Type: "string", Description: "The command", Required: true},
		{Name: "verbose", Type: "boolean", Description: "Verbose output"},
	}
}

func (m *MockTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return "mock result", nil
}

func TestConvertMessagesToAnthropicFormat(t *testing.T) {
	// Test user message
	messages := []session.Message{
		{
			Role:    session.RoleUser,
			Content: "Hello, world!",
		},
	}

	result := convertMessagesToAnthropicFormat(messages)
	if len(result) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(result))
	}

	if result[0]["role"] != "user" {
		t.Errorf("Expected role 'user', got '%s'", result[0]["role"])
	}

	// Test assistant message with reasoning, content and tool calls
	messages = []session.Message{
		{
			Role:      session.RoleAssistant,
			Content:   "Let me look.",
			Reasoning: []session.Reasoning{{Text: "need ls", Signature: "sig"}, {Redacted: "opaque"}},
			ToolCalls: []session.ToolCall{
				{
					ToolCallID: "call_1",
					Name:       "shell",
					Args: map[string]interface{}{
						"command": "ls",
					},
				},
			},
		},
	}

	result = convertMessagesToAnthropicFormat(messages)
	if len(result) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(result))
	}
	content := result[0]["content"].([]map[string]interface{})
	var types []string
	for _, c := range content {
		types = append(types, c["type"].(string))
	}
	if got := strings.Join(types, ","); got != "thinking,redacted_thinking,text,tool_use" {
		t.Errorf("Unexpected block order: %s", got)
	}
	if content[0]["signature"] != "sig" {
		t.Errorf("Expected thinking signature to be kept, got %v", content[0]["signature"])
	}

	// Test tool response messages answering the same turn
	messages = []session.Message{
		{
			Role:      session.RoleTool,
			Content:   `{"success":true,"output":"a"}`,
			ToolCalls: []session.ToolCall{{ToolCallID: "call_1", Name: "shell"}},
		},
		{
			Role:      session.RoleTool,
			Content:   `{"success":false,"error":"boom"}`,
			IsError:   true,
			ToolCalls: []session.ToolCall{{ToolCallID: "call_2", Name: "shell"}},
		},
	}

	result = convertMessagesToAnthropicFormat(messages)
	if len(result) != 1 {
		t.Fatalf("Expected tool results to share one message, got %d", len(result))
	}

	if result[0]["role"] != "user" {
		t.Errorf("Expected role 'user', got '%s'", result[0]["role"])
	}
	blocks := result[0]["content"].([]map[string]interface{})
	if len(blocks) != 2 {
		t.Fatalf("Expected 2 tool results, got %d", len(blocks))
	}
	if _, ok := blocks[0]["is_error"]; ok {
		t.Error("Expected no is_error on a successful result")
	}
	if blocks[1]["is_error"] != true {
		t.Error("Expected is_error on a failed result")
	}
}

func TestCreateAnthropicRequest(t *testing.T) {
	messages := []map[string]interface{}{
		{
			"role": "user",
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": "Hello!",
				},
			},
		},
	}

	// Test with no tools
	body, err := createAnthropicRequest(messages, "", nil, Options{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var req map[string]interface{}
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if req["anthropic_version"] != "bedrock-2023-05-31" {
		t.Errorf("Unexpected version %v", req["anthropic_version"])
	}
	if req["max_tokens"] != float64(defaultMaxTokens) {
		t.Errorf("Expected default max tokens, got %v", req["max_tokens"])
	}
	for _, key := range []string{"system", "tools", "thinking"} {
		if _, ok := req[key]; ok {
			t.Errorf("Expected no %q in request", key)
		}
	}

	// Test with tools, system prompt and thinking
	ts := []tools.Tool{
		&MockTool{
			name:        "test_tool",
			description: "A test tool",
		},
	}

	body, err = createAnthropicRequest(messages, "be brief", ts, Options{Think: true})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	req = nil
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if req["system"] != "be brief" {
		t.Errorf("Expected system prompt, got %v", req["system"])
	}
	if req["max_tokens"] != float64(thinkingMaxTokens) {
		t.Errorf("Expected thinking max tokens, got %v", req["max_tokens"])
	}
	thinking := req["thinking"].(map[string]interface{})
	if thinking["budget_tokens"] != float64(thinkingBudget) {
		t.Errorf("Unexpected thinking budget %v", thinking["budget_tokens"])
	}
	defs := req["tools"].([]interface{})
	schema := defs[0].(map[string]interface{})["input_schema"].(map[string]interface{})
	required := schema["required"].([]interface{})
	if len(required) != 1 || required[0] != "command" {
		t.Errorf("Unexpected required list %v", required)
	}
}

func TestProcessBedrockResponse(t *testing.T) {
	body := []byte(`{
		"content": [
			{"type": "thinking", "thinking": "hmm", "signature": "s1"},
			{"type": "text", "text": "Listing."},
			{"type": "tool_use", "id": "toolu_1", "name": "shell", "input": {"command": "ls"}},
			{"type": "tool_use", "name": "shell"}
		]
	}`)

	msg, err := processBedrockResponse(body)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if msg.Content != "Listing." {
		t.Errorf("Unexpected content %q", msg.Content)
	}
	if len(msg.Reasoning) != 1 || msg.Reasoning[0].Signature != "s1" {
		t.Errorf("Unexpected reasoning %+v", msg.Reasoning)
	}
	if len(msg.ToolCalls) != 2 {
		t.Fatalf("Expected 2 tool calls, got %d", len(msg.ToolCalls))
	}
	if msg.ToolCalls[0].ToolCallID != "toolu_1" || msg.ToolCalls[0].Args["command"] != "ls" {
		t.Errorf("Unexpected tool call %+v", msg.ToolCalls[0])
	}
	if !strings.HasPrefix(msg.ToolCalls[1].ToolCallID, "call_") {
		t.Errorf("Expected generated id, got %q", msg.ToolCalls[1].ToolCallID)
	}
	if msg.ToolCalls[1].Args == nil {
		t.Error("Expected empty args, got nil")
	}

	if _, err := processBedrockResponse([]byte(`{"error": "throttled"}`)); err == nil {
		t.Error("Expected error for error response")
	}
	if _, err := processBedrockResponse([]byte(`not json`)); err == nil {
		t.Error("Expected error for invalid body")
	}
}

func TestStreamAssembler(t *testing.T) {
	chunks := []string{
		`{"type":"message_start","message":{"id":"msg_1"}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"check "}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"files"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"signature_delta","signature":"sig"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"content_block_start","index":1,"content_block":{"type":"text","text":""}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"Hel"}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"lo"}}`,
		`{"type":"content_block_stop","index":1}`,
		`{"type":"content_block_start","index":2,"content_block":{"type":"tool_use","id":"toolu_9","name":"shell","input":{}}}`,
		`{"type":"content_block_delta","index":2,"delta":{"type":"input_json_delta","partial_json":"{\"comm"}}`,
		`{"type":"content_block_delta","index":2,"delta":{"type":"input_json_delta","partial_json":"and\":\"ls\"}"}}`,
		`{"type":"content_block_stop","index":2}`,
		`{"type":"message_delta","delta":{"stop_reason":"tool_use"}}`,
		`{"type":"message_stop"}`,
	}

	asm := newStreamAssembler()
	var text strings.Builder
	for _, c := range chunks {
		out, err := asm.add([]byte(c))
		if err != nil {
			t.Fatalf("add(%s): %v", c, err)
		}
		text.WriteString(out)
	}
	if text.String() != "Hello" {
		t.Errorf("Expected streamed text %q, got %q", "Hello", text.String())
	}

	msg, err := asm.message()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if msg.Content != "Hello" {
		t.Errorf("Unexpected content %q", msg.Content)
	}
	if len(msg.Reasoning) != 1 || msg.Reasoning[0].Text != "check files" || msg.Reasoning[0].Signature != "sig" {
		t.Errorf("Unexpected reasoning %+v", msg.Reasoning)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].ToolCallID != "toolu_9" || msg.ToolCalls[0].Args["command"] != "ls" {
		t.Errorf("Unexpected tool calls %+v", msg.ToolCalls)
	}
}

func TestStreamAssemblerErrors(t *testing.T) {
	asm := newStreamAssembler()
	if _, err := asm.add([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"busy"}}`)); err == nil || !strings.Contains(err.Error(), "busy") {
		t.Errorf("Expected overloaded error, got %v", err)
	}
	if _, err := asm.add([]byte(`{`)); err == nil {
		t.Error("Expected parse error")
	}

	asm = newStreamAssembler()
	asm.add([]byte(`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"t","name":"shell"}}`))
	asm.add([]byte(`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{bad"}}`))
	if _, err := asm.message(); err == nil {
		t.Error("Expected error for malformed tool input")
	}
}
