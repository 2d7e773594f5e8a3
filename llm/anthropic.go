package llm

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m4xw311/hai/errors"
	"github.com/m4xw311/hai/session"
	"github.com/m4xw311/hai/tools"
	"pkt.systems/pslog"
)

// AnthropicLLMClient is a client for the Anthropic API.
type AnthropicLLMClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicLLMClient creates a new AnthropicLLMClient. An empty baseURL
// uses the public API.
func NewAnthropicLLMClient(modelName, apiKey, baseURL string) *AnthropicLLMClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicLLMClient{
		client: &client,
		model:  modelName,
	}
}

// Chat sends one step to the Anthropic API.
func (a *AnthropicLLMClient) Chat(ctx context.Context, req *Request) iter.Seq2[Event, error] {
	params := a.params(req)
	pslog.Ctx(ctx).Debug("anthropic request", "model", a.model, "messages", len(params.Messages), "stream", req.Stream)

	if !req.Stream {
		return func(yield func(Event, error) bool) {
			resp, err := a.client.Messages.New(ctx, params)
			if err != nil {
				yield(Event{}, errors.Wrapf(err, "failed to send message to Anthropic"))
				return
			}
			msg, err := processAnthropicResponse(resp)
			if err != nil {
				yield(Event{}, err)
				return
			}
			replay(msg, yield)
		}
	}

	return func(yield func(Event, error) bool) {
		stream := a.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		message := anthropic.Message{}
		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				yield(Event{}, errors.Wrapf(err, "failed to accumulate Anthropic stream"))
				return
			}
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if !yield(TextEvent(delta.Text), nil) {
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield(Event{}, errors.Wrapf(err, "Anthropic stream failed"))
			return
		}

		// Text was streamed; emit what only the complete message has.
		msg, err := processAnthropicResponse(&message)
		if err != nil {
			yield(Event{}, err)
			return
		}
		msg.Content = ""
		replay(msg, yield)
	}
}

func (a *AnthropicLLMClient) params(req *Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(maxTokens(req.Options)),
		Messages:  convertMessagesToAnthropicMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}
	if req.Options.Think {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(thinkingBudget)
	}
	for _, toolParam := range convertToolsToAnthropicTools(req.Tools) {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return params
}

// convertMessagesToAnthropicMessages converts our internal message format to
// Anthropic's. Consecutive tool results are merged into one user turn.
func convertMessagesToAnthropicMessages(messages []session.Message) []anthropic.MessageParam {
	var anthropicMessages []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case session.RoleUser:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case session.RoleAssistant:
			var contentItems []anthropic.ContentBlockParamUnion
			for _, r := range msg.Reasoning {
				if r.Redacted != "" {
					contentItems = append(contentItems, anthropic.NewRedactedThinkingBlock(r.Redacted))
				} else {
					contentItems = append(contentItems, anthropic.NewThinkingBlock(r.Signature, r.Text))
				}
			}
			if msg.Content != "" {
				contentItems = append(contentItems, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				contentItems = append(contentItems, anthropic.NewToolUseBlock(tc.ToolCallID, toolInput(tc.Args), tc.Name))
			}
			if len(contentItems) == 0 {
				continue
			}
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: contentItems,
			})
		case session.RoleTool:
			if len(msg.ToolCalls) == 0 {
				continue
			}
			block := anthropic.NewToolResultBlock(msg.ToolCalls[0].ToolCallID, msg.Content, msg.IsError)
			if n := len(anthropicMessages); n > 0 && isToolResultTurn(anthropicMessages[n-1]) {
				anthropicMessages[n-1].Content = append(anthropicMessages[n-1].Content, block)
				continue
			}
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(block))
		}
	}

	return anthropicMessages
}

func isToolResultTurn(m anthropic.MessageParam) bool {
	if m.Role != anthropic.MessageParamRoleUser || len(m.Content) == 0 {
		return false
	}
	for _, c := range m.Content {
		if c.OfToolResult == nil {
			return false
		}
	}
	return true
}

// toolInput returns tool arguments in the form the SDK marshals as an
// object, never null.
func toolInput(args map[string]interface{}) json.RawMessage {
	if len(args) == 0 {
		return json.RawMessage(`{}`)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

// convertToolsToAnthropicTools converts our Tool interface to Anthropic's tool format.
func convertToolsToAnthropicTools(ts []tools.Tool) []anthropic.ToolParam {
	if len(ts) == 0 {
		return nil
	}

	var anthropicTools []anthropic.ToolParam
	for _, t := range ts {
		properties, required := tools.Schema(t)
		anthropicTools = append(anthropicTools, anthropic.ToolParam{
			Name:        t.Name(),
			Description: anthropic.String(t.Description()),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   required,
			},
		})
	}
	return anthropicTools
}

// processAnthropicResponse converts an Anthropic API response into our internal session.Message format.
func processAnthropicResponse(resp *anthropic.Message) (*session.Message, error) {
	msg := &session.Message{Role: session.RoleAssistant}

	for _, content := range resp.Content {
		switch c := content.AsAny().(type) {
		case anthropic.TextBlock:
			msg.Content += c.Text
		case anthropic.ThinkingBlock:
			msg.Reasoning = append(msg.Reasoning, session.Reasoning{Text: c.Thinking, Signature: c.Signature})
		case anthropic.RedactedThinkingBlock:
			msg.Reasoning = append(msg.Reasoning, session.Reasoning{Redacted: c.Data})
		case anthropic.ToolUseBlock:
			args, err := parseArgs(c.Input)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to unmarshal tool call input")
			}
			msg.ToolCalls = append(msg.ToolCalls, session.ToolCall{
				ToolCallID: c.ID,
				Name:       c.Name,
				Args:       args,
			})
		}
	}

	return msg, nil
}
