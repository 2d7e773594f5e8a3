package llm

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/m4xw311/hai/errors"
	"github.com/m4xw311/hai/session"
	"github.com/m4xw311/hai/tools"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"pkt.systems/pslog"
)

// GeminiLLMClient is a client for the Google Gemini API.
type GeminiLLMClient struct {
	client    *genai.Client
	modelName string
}

// NewGeminiLLMClient creates a new GeminiLLMClient.
func NewGeminiLLMClient(ctx context.Context, modelName, apiKey string) (*GeminiLLMClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}
	return &GeminiLLMClient{client: client, modelName: modelName}, nil
}

func (g *GeminiLLMClient) Close() error {
	return g.client.Close()
}

// Chat sends one step to the Gemini API.
func (g *GeminiLLMClient) Chat(ctx context.Context, req *Request) iter.Seq2[Event, error] {
	// Convert session messages to Gemini's content format.
	history := convertMessagesToGeminiContent(req.Messages)
	if len(history) == 0 || history[len(history)-1].Role != "user" {
		return fail(errors.New("conversation must end with a user or tool message"))
	}

	model := g.client.GenerativeModel(g.modelName)
	model.Tools = convertToolsToGeminiTools(req.Tools)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.Options.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.Options.MaxTokens))
	}

	// The last message is the new prompt.
	lastMessage := history[len(history)-1]
	chatSession := model.StartChat()
	chatSession.History = history[:len(history)-1]

	pslog.Ctx(ctx).Debug("gemini request", "model", g.modelName, "messages", len(history), "stream", req.Stream)

	if !req.Stream {
		return func(yield func(Event, error) bool) {
			resp, err := chatSession.SendMessage(ctx, lastMessage.Parts...)
			if err != nil {
				yield(Event{}, errors.Wrapf(err, "failed to send message to Gemini"))
				return
			}
			msg := &session.Message{Role: session.RoleAssistant}
			processGeminiResponse(resp, msg)
			replay(msg, yield)
		}
	}

	return func(yield func(Event, error) bool) {
		it := chatSession.SendMessageStream(ctx, lastMessage.Parts...)
		msg := &session.Message{Role: session.RoleAssistant}
		for {
			resp, err := it.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				yield(Event{}, errors.Wrapf(err, "Gemini stream failed"))
				return
			}
			before := len(msg.Content)
			processGeminiResponse(resp, msg)
			if text := msg.Content[before:]; text != "" {
				if !yield(TextEvent(text), nil) {
					return
				}
			}
		}
		msg.Content = ""
		replay(msg, yield)
	}
}

// convertMessagesToGeminiContent converts our internal message format to
// Gemini's. Tool results become function responses in a user turn.
func convertMessagesToGeminiContent(messages []session.Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleAssistant:
			var parts []genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: tc.Args})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case session.RoleTool:
			if len(msg.ToolCalls) == 0 {
				continue
			}
			part := genai.FunctionResponse{
				Name:     msg.ToolCalls[0].Name,
				Response: functionResponse(msg.Content),
			}
			if n := len(contents); n > 0 && isFunctionResponseTurn(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{part}})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		}
	}
	return contents
}

func isFunctionResponseTurn(c *genai.Content) bool {
	if c.Role != "user" || len(c.Parts) == 0 {
		return false
	}
	for _, p := range c.Parts {
		if _, ok := p.(genai.FunctionResponse); !ok {
			return false
		}
	}
	return true
}

// functionResponse wraps tool output in the object Gemini expects.
func functionResponse(content string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"content": content}
}

// convertToolsToGeminiTools converts our Tool interface to Gemini's FunctionDeclaration format.
func convertToolsToGeminiTools(ts []tools.Tool) []*genai.Tool {
	if len(ts) == 0 {
		return nil
	}
	var funcDecls []*genai.FunctionDeclaration
	for _, tool := range ts {
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: map[string]*genai.Schema{},
		}
		for _, p := range tool.Parameters() {
			schema.Properties[p.Name] = &genai.Schema{
				Type:        geminiType(p.Type),
				Description: p.Description,
			}
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		funcDecls = append(funcDecls, &genai.FunctionDeclaration{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: funcDecls}}
}

func geminiType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	}
	return genai.TypeString
}

// processGeminiResponse appends the text and function calls of a response
// to msg. Gemini does not identify calls, so each gets a generated id.
func processGeminiResponse(resp *genai.GenerateContentResponse, msg *session.Message) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			msg.Content += string(v)
		case genai.FunctionCall:
			args := v.Args
			if args == nil {
				args = map[string]any{}
			}
			msg.ToolCalls = append(msg.ToolCalls, session.ToolCall{
				ToolCallID: "call_" + uuid.NewString(),
				Name:       v.Name,
				Args:       args,
			})
		}
	}
}
