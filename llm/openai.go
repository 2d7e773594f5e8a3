package llm

import (
	"context"
	"iter"
	"strings"

	"github.com/m4xw311/hai/errors"
	"github.com/m4xw311/hai/session"
	"github.com/m4xw311/hai/tools"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"pkt.systems/pslog"
)

// OpenAILLMClient is a client for the OpenAI Chat Completion API and for
// servers that implement it.
type OpenAILLMClient struct {
	client *openai.Client
	model  string
	// native is false for OpenAI-compatible endpoints, which get no
	// OpenAI-specific request options.
	native bool
}

// NewOpenAILLMClient creates a new OpenAILLMClient. An empty baseURL uses
// the public API.
func NewOpenAILLMClient(modelName, apiKey, baseURL string, native bool) *OpenAILLMClient {
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	// The v2 SDK uses functional options for configuration.
	c := openai.NewClient(options...)
	// The &c is required, dn not replace and just use c
	return &OpenAILLMClient{client: &c, model: modelName, native: native}
}

// Chat sends one step to the Chat Completion API.
func (o *OpenAILLMClient) Chat(ctx context.Context, req *Request) iter.Seq2[Event, error] {
	params := o.params(req)
	pslog.Ctx(ctx).Debug("openai request", "model", o.model, "messages", len(params.Messages), "stream", req.Stream)

	if !req.Stream {
		return func(yield func(Event, error) bool) {
			resp, err := o.client.Chat.Completions.New(ctx, params)
			if err != nil {
				yield(Event{}, errors.Wrapf(err, "failed to send message to OpenAI"))
				return
			}
			msg, err := processOpenaiResponse(resp)
			if err != nil {
				yield(Event{}, err)
				return
			}
			replay(msg, yield)
		}
	}

	return func(yield func(Event, error) bool) {
		stream := o.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		acc := openai.ChatCompletionAccumulator{}
		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				if !yield(TextEvent(chunk.Choices[0].Delta.Content), nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield(Event{}, errors.Wrapf(err, "OpenAI stream failed"))
			return
		}

		msg, err := processOpenaiResponse(&acc.ChatCompletion)
		if err != nil {
			yield(Event{}, err)
			return
		}
		msg.Content = ""
		replay(msg, yield)
	}
}

func (o *OpenAILLMClient) params(req *Request) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, convertMessagesToOpenaiContent(req.Messages)...)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: messages,
		Tools:    convertToolsToOpenAITools(req.Tools),
	}
	if req.Options.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.Options.MaxTokens))
	}
	if req.Options.Think && o.native && isReasoningModel(o.model) {
		params.ReasoningEffort = openai.ReasoningEffortMedium
	}
	return params
}

// isReasoningModel reports whether the model accepts a reasoning effort.
func isReasoningModel(model string) bool {
	return strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3")
}

// processOpenaiResponse converts an OpenAI API response into our internal session.Message format.
func processOpenaiResponse(resp *openai.ChatCompletion) (*session.Message, error) {
	if len(resp.Choices) == 0 {
		return &session.Message{Role: session.RoleAssistant}, nil
	}

	choice := resp.Choices[0].Message
	msg := &session.Message{Role: session.RoleAssistant, Content: choice.Content}

	for _, tc := range choice.ToolCalls {
		// Arguments are a JSON string; we expect it to be a flat map of arguments.
		toolArgs, err := parseArgs([]byte(tc.Function.Arguments))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal function call arguments from OpenAI")
		}
		msg.ToolCalls = append(msg.ToolCalls, session.ToolCall{
			ToolCallID: tc.ID,
			Name:       tc.Function.Name,
			Args:       toolArgs,
		})
	}
	return msg, nil
}

// convertMessagesToOpenaiContent converts our internal message format to OpenAI's.
func convertMessagesToOpenaiContent(messages []session.Message) []openai.ChatCompletionMessageParamUnion {
	var chatMessages []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleAssistant:
			assistantMessage := openai.ChatCompletionMessage{
				Role:    "assistant",
				Content: msg.Content,
			}
			if len(msg.ToolCalls) > 0 {
				var toolCalls []openai.ChatCompletionMessageToolCallUnion
				for _, tc := range msg.ToolCalls {
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallUnion{
						ID:   tc.ToolCallID,
						Type: "function",
						Function: openai.ChatCompletionMessageFunctionToolCallFunction{
							Name:      tc.Name,
							Arguments: string(toolInput(tc.Args)),
						},
					})
				}
				assistantMessage.ToolCalls = toolCalls
			}
			chatMessages = append(chatMessages, assistantMessage.ToParam())
		case session.RoleTool:
			// A "tool" role message corresponds to a "tool" role message in the OpenAI API.
			if len(msg.ToolCalls) != 1 {
				continue
			}
			chatMessages = append(chatMessages, openai.ToolMessage(msg.Content, msg.ToolCalls[0].ToolCallID))
		case session.RoleUser:
			fallthrough
		default:
			chatMessages = append(chatMessages, openai.UserMessage(msg.Content))
		}
	}
	return chatMessages
}

// convertToolsToOpenAITools converts our Tool interface to the OpenAI Tool format.
func convertToolsToOpenAITools(ts []tools.Tool) []openai.ChatCompletionToolUnionParam {
	if len(ts) == 0 {
		return nil
	}
	var openAITools []openai.ChatCompletionToolUnionParam
	for _, t := range ts {
		properties, required := tools.Schema(t)
		params := openai.FunctionParameters{
			"type":       "object",
			"properties": properties,
			"required":   required,
		}

		toolParam := openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name(),
			Description: openai.String(t.Description()),
			Parameters:  params,
		})
		openAITools = append(openAITools, toolParam)
	}
	return openAITools
}
