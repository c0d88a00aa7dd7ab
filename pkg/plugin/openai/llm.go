package openai

import (
	"context"
	"errors"
	"io"

	"github.com/chriscow/livekit-translate-go/pkg/ai/llm"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAILLM streams chat completions from an OpenAI-compatible endpoint.
type OpenAILLM struct {
	client *openai.Client
	model  string
}

// NewOpenAILLM creates a streaming chat provider.
func NewOpenAILLM(cfg Config) (*OpenAILLM, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAILLM{client: client, model: model}, nil
}

// ChatStream opens a streamed chat completion. req.Model overrides the
// provider's default model.
func (o *OpenAILLM) ChatStream(ctx context.Context, req llm.ChatRequest) (llm.ChatStream, error) {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	model := req.Model
	if model == "" {
		model = o.model
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, classify(err, "failed to open chat completion stream")
	}
	return &chatStream{stream: stream}, nil
}

// Capabilities returns the provider's capabilities.
func (o *OpenAILLM) Capabilities() llm.LLMCapabilities {
	return llm.LLMCapabilities{
		SupportsStreaming:  true,
		MaxTokens:          8192,
		SupportedModels:    []string{o.model},
		SupportsSystemRole: true,
	}
}

type chatStream struct {
	stream *openai.ChatCompletionStream
}

func (s *chatStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", classify(err, "chat completion stream failed")
		}
		if len(resp.Choices) == 0 {
			continue
		}
		return resp.Choices[0].Delta.Content, nil
	}
}

func (s *chatStream) Close() error {
	return s.stream.Close()
}
