package speech

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"google.golang.org/api/iterator"
)

// Turn roles in a conversation history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one entry of the ordered conversation history sent to the model.
type Turn struct {
	Role    string
	Content string
}

// LLMClient generates responses through an OpenAI-compatible streaming
// chat completion endpoint.
type LLMClient struct {
	client *openai.Client
	model  string
}

// NewLLMClient creates a client for the given endpoint. apiKey may be empty
// for unauthenticated local inference servers.
func NewLLMClient(baseURL, apiKey, model string) *LLMClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &LLMClient{client: &client, model: model}
}

// Probe checks that the endpoint answers. Used at session start; failure
// means the session must not become active.
func (c *LLMClient) Probe(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx); err != nil {
		return &UnavailableError{Service: "llm", Err: err}
	}
	return nil
}

// Stream requests a completion for the given turns and returns the delta
// stream. Canceling ctx aborts generation; this is the interrupt path.
func (c *LLMClient) Stream(ctx context.Context, turns []Turn) (*CompletionStream, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(t.Content))
		case RoleUser:
			messages = append(messages, openai.UserMessage(t.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(t.Content))
		default:
			return nil, fmt.Errorf("speech: unknown turn role %q", t.Role)
		}
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	return &CompletionStream{inner: stream}, nil
}

// CompletionStream yields the text deltas of one response.
type CompletionStream struct {
	inner *ssestream.Stream[openai.ChatCompletionChunk]
}

// Next returns the next non-empty text delta. Returns iterator.Done when
// generation finishes, or a *StreamFaultError if the stream broke.
func (s *CompletionStream) Next() (string, error) {
	for s.inner.Next() {
		chunk := s.inner.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
	if err := s.inner.Err(); err != nil {
		return "", &StreamFaultError{Service: "llm", Err: err}
	}
	return "", iterator.Done
}

// Close releases the underlying stream.
func (s *CompletionStream) Close() error {
	return s.inner.Close()
}
