package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/google/uuid"
	"github.com/m4xw311/hai/errors"
	"github.com/m4xw311/hai/session"
	"github.com/m4xw311/hai/tools"
	"pkt.systems/pslog"
)

// BedrockLLMClient is a client for the Anthropic models on AWS Bedrock.
type BedrockLLMClient struct {
	client  *bedrockruntime.Client
	modelID string
	region  string
}

// NewBedrockLLMClient creates a new BedrockLLMClient.
// It requires AWS credentials to be configured in the environment.
func NewBedrockLLMClient(ctx context.Context, modelID, region string) (*BedrockLLMClient, error) {
	var loadOpts []func(*config.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}

	// Get AWS configuration
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1" // Default region
	}

	// Custom endpoint, useful for testing
	endpoint := os.Getenv("BEDROCK_ENDPOINT_URL")

	client := bedrockruntime.NewFromConfig(cfg, func(o *bedrockruntime.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &BedrockLLMClient{
		client:  client,
		modelID: modelID,
		region:  cfg.Region,
	}, nil
}

// Chat sends one step to the Anthropic model via AWS Bedrock.
func (b *BedrockLLMClient) Chat(ctx context.Context, req *Request) iter.Seq2[Event, error] {
	// Create the request body for Anthropic on Bedrock
	requestBody, err := createAnthropicRequest(convertMessagesToAnthropicFormat(req.Messages), req.System, req.Tools, req.Options)
	if err != nil {
		return fail(errors.Wrapf(err, "failed to create Anthropic request"))
	}
	pslog.Ctx(ctx).Debug("bedrock request", "model", b.modelID, "region", b.region, "messages", len(req.Messages), "stream", req.Stream)

	if !req.Stream {
		return func(yield func(Event, error) bool) {
			resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
				ModelId:     aws.String(b.modelID),
				ContentType: aws.String("application/json"),
				Body:        requestBody,
			})
			if err != nil {
				yield(Event{}, errors.Wrapf(err, "failed to invoke Bedrock model"))
				return
			}
			msg, err := processBedrockResponse(resp.Body)
			if err != nil {
				yield(Event{}, err)
				return
			}
			replay(msg, yield)
		}
	}

	return func(yield func(Event, error) bool) {
		out, err := b.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
			ModelId:     aws.String(b.modelID),
			ContentType: aws.String("application/json"),
			Body:        requestBody,
		})
		if err != nil {
			yield(Event{}, errors.Wrapf(err, "failed to invoke Bedrock model"))
			return
		}
		stream := out.GetStream()
		defer stream.Close()

		asm := newStreamAssembler()
		for ev := range stream.Events() {
			chunk, ok := ev.(*types.ResponseStreamMemberChunk)
			if !ok {
				continue
			}
			text, err := asm.add(chunk.Value.Bytes)
			if err != nil {
				yield(Event{}, err)
				return
			}
			if text != "" {
				if !yield(TextEvent(text), nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield(Event{}, errors.Wrapf(err, "Bedrock stream failed"))
			return
		}

		msg, err := asm.message()
		if err != nil {
			yield(Event{}, err)
			return
		}
		msg.Content = ""
		replay(msg, yield)
	}
}

// convertMessagesToAnthropicFormat converts our internal message format to Anthropic's format.
func convertMessagesToAnthropicFormat(messages []session.Message) []map[string]interface{} {
	var anthropicMessages []map[string]interface{}

	for _, msg := range messages {
		switch msg.Role {
		case session.RoleUser:
			anthropicMessages = append(anthropicMessages, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{
					{
						"type": "text",
						"text": msg.Content,
					},
				},
			})
		case session.RoleAssistant:
			var content []map[string]interface{}
			for _, r := range msg.Reasoning {
				if r.Redacted != "" {
					content = append(content, map[string]interface{}{"type": "redacted_thinking", "data": r.Redacted})
				} else {
					content = append(content, map[string]interface{}{"type": "thinking", "thinking": r.Text, "signature": r.Signature})
				}
			}
			if msg.Content != "" {
				content = append(content, map[string]interface{}{
					"type": "text",
					"text": msg.Content,
				})
			}
			for _, tc := range msg.ToolCalls {
				content = append(content, map[string]interface{}{
					"type":  "tool_use",
					"id":    tc.ToolCallID,
					"name":  tc.Name,
					"input": toolInput(tc.Args),
				})
			}
			if len(content) == 0 {
				continue
			}
			anthropicMessages = append(anthropicMessages, map[string]interface{}{
				"role":    "assistant",
				"content": content,
			})
		case session.RoleTool:
			if len(msg.ToolCalls) == 0 {
				continue
			}
			result := map[string]interface{}{
				"type":        "tool_result",
				"tool_use_id": msg.ToolCalls[0].ToolCallID,
				"content":     msg.Content,
			}
			if msg.IsError {
				result["is_error"] = true
			}
			// Results answering the same assistant turn share one user turn.
			if n := len(anthropicMessages); n > 0 && anthropicMessages[n-1]["role"] == "user" {
				if blocks, ok := anthropicMessages[n-1]["content"].([]map[string]interface{}); ok && len(blocks) > 0 && blocks[0]["type"] == "tool_result" {
					anthropicMessages[n-1]["content"] = append(blocks, result)
					continue
				}
			}
			anthropicMessages = append(anthropicMessages, map[string]interface{}{
				"role":    "user",
				"content": []map[string]interface{}{result},
			})
		}
	}

	return anthropicMessages
}

// createAnthropicRequest creates the request body for Anthropic models on Bedrock.
func createAnthropicRequest(messages []map[string]interface{}, systemPrompt string, availableTools []tools.Tool, opts Options) ([]byte, error) {
	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        maxTokens(opts),
		"messages":          messages,
	}

	if systemPrompt != "" {
		request["system"] = systemPrompt
	}

	if opts.Think {
		request["thinking"] = map[string]interface{}{
			"type":          "enabled",
			"budget_tokens": thinkingBudget,
		}
	}

	if len(availableTools) > 0 {
		var toolDefs []map[string]interface{}
		for _, tool := range availableTools {
			properties, required := tools.Schema(tool)
			toolDefs = append(toolDefs, map[string]interface{}{
				"name":        tool.Name(),
				"description": tool.Description(),
				"input_schema": map[string]interface{}{
					"type":       "object",
					"properties": properties,
					"required":   required,
				},
			})
		}
		request["tools"] = toolDefs
	}

	return json.Marshal(request)
}

// processBedrockResponse converts a Bedrock API response into our internal session.Message format.
func processBedrockResponse(body []byte) (*session.Message, error) {
	var response map[string]interface{}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal Bedrock response")
	}

	// Check for error in response
	if errMsg, ok := response["error"]; ok {
		return nil, errors.New("Bedrock API error: %v", errMsg)
	}

	msg := &session.Message{Role: session.RoleAssistant}

	// Extract content from response
	content, ok := response["content"]
	if !ok {
		return msg, nil
	}

	contentArray, ok := content.([]interface{})
	if !ok {
		return nil, errors.New("unexpected content format in Bedrock response")
	}

	for _, item := range contentArray {
		itemMap, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		itemType, ok := itemMap["type"].(string)
		if !ok {
			continue
		}

		switch itemType {
		case "text":
			if text, ok := itemMap["text"].(string); ok {
				msg.Content += text
			}
		case "thinking":
			text, _ := itemMap["thinking"].(string)
			sig, _ := itemMap["signature"].(string)
			msg.Reasoning = append(msg.Reasoning, session.Reasoning{Text: text, Signature: sig})
		case "redacted_thinking":
			data, _ := itemMap["data"].(string)
			msg.Reasoning = append(msg.Reasoning, session.Reasoning{Redacted: data})
		case "tool_use":
			// Extract tool call information
			name, ok := itemMap["name"].(string)
			if !ok {
				continue
			}
			input, _ := itemMap["input"].(map[string]interface{})
			if input == nil {
				input = map[string]interface{}{}
			}
			id, _ := itemMap["id"].(string)
			if id == "" {
				id = fmt.Sprintf("call_%s", uuid.NewString())
			}
			msg.ToolCalls = append(msg.ToolCalls, session.ToolCall{
				ToolCallID: id,
				Name:       name,
				Args:       input,
			})
		}
	}

	return msg, nil
}

// streamChunk is one event of the Anthropic messages stream as Bedrock
// delivers it.
type streamChunk struct {
	Type         string `json:"type"`
	Index        int    `json:"index"`
	ContentBlock *struct {
		Type     string `json:"type"`
		ID       string `json:"id"`
		Name     string `json:"name"`
		Text     string `json:"text"`
		Thinking string `json:"thinking"`
		Data     string `json:"data"`
	} `json:"content_block"`
	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		Thinking    string `json:"thinking"`
		Signature   string `json:"signature"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type streamBlock struct {
	kind      string
	id        string
	name      string
	text      string
	input     string
	signature string
	data      string
}

// streamAssembler rebuilds the assistant message from stream chunks.
type streamAssembler struct {
	blocks map[int]*streamBlock
}

func newStreamAssembler() *streamAssembler {
	return &streamAssembler{blocks: make(map[int]*streamBlock)}
}

// add consumes one chunk and returns any answer text it carried.
func (a *streamAssembler) add(raw []byte) (string, error) {
	var c streamChunk
	if err := json.Unmarshal(raw, &c); err != nil {
		return "", errors.Wrapf(err, "failed to parse Bedrock stream chunk")
	}

	switch c.Type {
	case "error":
		if c.Error != nil {
			return "", errors.New("Bedrock API error: %s: %s", c.Error.Type, c.Error.Message)
		}
		return "", errors.New("Bedrock API error")
	case "content_block_start":
		if c.ContentBlock == nil {
			return "", nil
		}
		a.blocks[c.Index] = &streamBlock{
			kind: c.ContentBlock.Type,
			id:   c.ContentBlock.ID,
			name: c.ContentBlock.Name,
			text: c.ContentBlock.Text + c.ContentBlock.Thinking,
			data: c.ContentBlock.Data,
		}
		if c.ContentBlock.Type == "text" {
			return c.ContentBlock.Text, nil
		}
	case "content_block_delta":
		if c.Delta == nil {
			return "", nil
		}
		blk, ok := a.blocks[c.Index]
		if !ok {
			blk = &streamBlock{kind: "text"}
			a.blocks[c.Index] = blk
		}
		switch c.Delta.Type {
		case "text_delta":
			blk.text += c.Delta.Text
			return c.Delta.Text, nil
		case "input_json_delta":
			blk.input += c.Delta.PartialJSON
		case "thinking_delta":
			blk.text += c.Delta.Thinking
		case "signature_delta":
			blk.signature += c.Delta.Signature
		}
	}
	return "", nil
}

// message returns the assembled message, blocks in stream order.
func (a *streamAssembler) message() (*session.Message, error) {
	indexes := make([]int, 0, len(a.blocks))
	for i := range a.blocks {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	msg := &session.Message{Role: session.RoleAssistant}
	for _, i := range indexes {
		blk := a.blocks[i]
		switch blk.kind {
		case "text":
			msg.Content += blk.text
		case "thinking":
			msg.Reasoning = append(msg.Reasoning, session.Reasoning{Text: blk.text, Signature: blk.signature})
		case "redacted_thinking":
			msg.Reasoning = append(msg.Reasoning, session.Reasoning{Redacted: blk.data})
		case "tool_use":
			args, err := parseArgs([]byte(blk.input))
			if err != nil {
				return nil, errors.Wrapf(err, "failed to unmarshal tool call input")
			}
			id := blk.id
			if id == "" {
				id = fmt.Sprintf("call_%s", uuid.NewString())
			}
			msg.ToolCalls = append(msg.ToolCalls, session.ToolCall{ToolCallID: id, Name: blk.name, Args: args})
		}
	}
	return msg, nil
}
