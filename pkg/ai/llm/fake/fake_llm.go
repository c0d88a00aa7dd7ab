package fake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/chriscow/livekit-translate-go/pkg/ai"
	"github.com/chriscow/livekit-translate-go/pkg/ai/llm"
)

// ErrConnect is returned by FakeLLM.ChatStream while open failures remain.
var ErrConnect = errors.New("fake llm: connection refused")

// ErrDropped is returned mid-stream when FailAfter is reached.
var ErrDropped = errors.New("fake llm: connection reset")

// FakeLLM is a scripted streaming LLM for testing.
type FakeLLM struct {
	// OpenFailures is the number of ChatStream calls that fail before one
	// succeeds.
	OpenFailures int

	// FailAfter, when positive, drops the stream after that many deltas.
	FailAfter int

	// Delay is slept before each delta is returned.
	Delay time.Duration

	mu        sync.Mutex
	responses [][]string
	opens     int
	requests  []llm.ChatRequest
}

// NewFakeLLM creates a fake that streams each response split into short
// deltas, cycling through responses on every successful call.
func NewFakeLLM(responses ...string) *FakeLLM {
	if len(responses) == 0 {
		responses = []string{"这是一个假的翻译。"}
	}
	f := &FakeLLM{}
	for _, r := range responses {
		f.responses = append(f.responses, Split(r, 2))
	}
	return f
}

// NewScriptedLLM creates a fake that streams exactly the given deltas.
func NewScriptedLLM(deltas ...string) *FakeLLM {
	return &FakeLLM{responses: [][]string{deltas}}
}

// Split cuts s into pieces of at most n runes.
func Split(s string, n int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > 0 {
		k := min(n, len(runes))
		out = append(out, string(runes[:k]))
		runes = runes[k:]
	}
	return out
}

// ChatStream opens a fake stream.
func (f *FakeLLM) ChatStream(ctx context.Context, req llm.ChatRequest) (llm.ChatStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.opens++
	f.requests = append(f.requests, req)
	if f.opens <= f.OpenFailures {
		return nil, ai.NewRecoverableError(ErrConnect, fmt.Sprintf("open attempt %d", f.opens))
	}

	idx := (f.opens - f.OpenFailures - 1) % len(f.responses)
	return &fakeStream{
		ctx:       ctx,
		deltas:    f.responses[idx],
		failAfter: f.FailAfter,
		delay:     f.Delay,
	}, nil
}

// Opens returns how many times ChatStream was called.
func (f *FakeLLM) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

// Requests returns a copy of every request received.
func (f *FakeLLM) Requests() []llm.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.ChatRequest(nil), f.requests...)
}

// Capabilities returns the fake LLM capabilities.
func (f *FakeLLM) Capabilities() llm.LLMCapabilities {
	return llm.LLMCapabilities{
		SupportsStreaming:  true,
		MaxTokens:          4096,
		SupportedModels:    []string{"fake-model-1"},
		SupportsSystemRole: true,
	}
}

type fakeStream struct {
	ctx       context.Context
	deltas    []string
	pos       int
	failAfter int
	delay     time.Duration
	closed    bool
}

func (s *fakeStream) Recv() (string, error) {
	if s.closed {
		return "", errors.New("fake llm: stream closed")
	}
	if s.failAfter > 0 && s.pos >= s.failAfter {
		return "", ErrDropped
	}
	if s.pos >= len(s.deltas) {
		return "", io.EOF
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-s.ctx.Done():
			return "", s.ctx.Err()
		}
	}
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	d := s.deltas[s.pos]
	s.pos++
	return d, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}
