package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chriscow/livekit-translate-go/pkg/ai"
	"github.com/chriscow/livekit-translate-go/pkg/ai/llm"
	"github.com/chriscow/livekit-translate-go/pkg/ai/llm/fake"
	"github.com/chriscow/livekit-translate-go/pkg/translate"
	"github.com/matryer/is"
)

// recorder is a synchronous Dispatcher that keeps every message.
type recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recorder) Dispatch(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

func finals(msgs []Message) []Message {
	var out []Message
	for _, m := range msgs {
		if m.IsFinal {
			out = append(out, m)
		}
	}
	return out
}

func chunkStream(chunks ...translate.Chunk) <-chan translate.Chunk {
	ch := make(chan translate.Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func testDriver(provider llm.StreamingLLM) *translate.Driver {
	cfg := translate.DefaultDriverConfig()
	cfg.Model = "test-model"
	cfg.Retry = ai.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond}
	return translate.NewDriver(provider, cfg, nil)
}

var turns = []llm.Message{
	{Role: llm.RoleSystem, Content: "Translate Chinese to Japanese"},
	{Role: llm.RoleUser, Content: "你好世界"},
}

func TestRelay_ExampleScenario(t *testing.T) {
	is := is.New(t)

	ch, err := testDriver(fake.NewScriptedLLM("こん", "にち", "は、", "世界")).
		Translate(context.Background(), turns, "ja")
	is.NoErr(err)

	rec := &recorder{}
	s := NewSession("s1", "zh", "ja")
	err = New(rec, nil).Run(context.Background(), s, ch)
	is.NoErr(err)

	msgs := rec.Messages()
	is.Equal(len(msgs), 5)

	want := []string{"こん", "こんにち", "こんにちは、", "こんにちは、世界"}
	for i, w := range want {
		is.Equal(msgs[i].Text, w)
		is.True(!msgs[i].IsFinal)
		is.Equal(msgs[i].Type, TypeTranslation)
		is.Equal(msgs[i].SessionID, "s1")
		is.Equal(msgs[i].TargetLanguage, "ja")
	}
	is.Equal(msgs[0].Chunk, "こん")
	is.Equal(msgs[3].Chunk, "世界")

	last := msgs[4]
	is.True(last.IsFinal)
	is.True(!last.Partial)
	is.Equal(last.Text, "こんにちは、世界")
	is.Equal(s.State(), StateFinalized)
}

func TestRelay_TextIsPrefixOfFinal(t *testing.T) {
	is := is.New(t)

	ch, err := testDriver(fake.NewFakeLLM("这是一段比较长的翻译内容，用来检查前缀。")).
		Translate(context.Background(), turns, "ja")
	is.NoErr(err)

	rec := &recorder{}
	s := NewSession("s1", "zh", "ja")
	is.NoErr(New(rec, nil).Run(context.Background(), s, ch))

	msgs := rec.Messages()
	final := msgs[len(msgs)-1]
	prev := ""
	for _, m := range msgs {
		is.True(strings.HasPrefix(m.Text, prev))       // accumulated text only grows
		is.True(strings.HasPrefix(final.Text, m.Text)) // every message is a prefix of the final text
		prev = m.Text
	}
}

func TestRelay_ExactlyOneFinal(t *testing.T) {
	tests := []struct {
		name    string
		chunks  []translate.Chunk
		partial bool
		wantErr error
	}{
		{
			name:   "completed",
			chunks: []translate.Chunk{{Kind: translate.ChunkDelta, Text: "a"}, {Kind: translate.ChunkFinal, Text: "a"}},
		},
		{
			name:    "interrupted",
			chunks:  []translate.Chunk{{Kind: translate.ChunkDelta, Text: "a"}, {Kind: translate.ChunkInterrupted, Text: "a", Err: translate.ErrStreamInterrupted}},
			partial: true,
			wantErr: translate.ErrStreamInterrupted,
		},
		{
			name:    "closed without terminal chunk",
			chunks:  []translate.Chunk{{Kind: translate.ChunkDelta, Text: "a"}},
			partial: true,
			wantErr: translate.ErrStreamInterrupted,
		},
		{
			name:    "empty stream",
			partial: true,
			wantErr: translate.ErrStreamInterrupted,
		},
		{
			name: "chunks after final are ignored",
			chunks: []translate.Chunk{
				{Kind: translate.ChunkDelta, Text: "a"},
				{Kind: translate.ChunkFinal, Text: "a"},
				{Kind: translate.ChunkDelta, Text: "b"},
				{Kind: translate.ChunkFinal, Text: "ab"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)

			rec := &recorder{}
			s := NewSession("s1", "zh", "ja")
			err := New(rec, nil).Run(context.Background(), s, chunkStream(tt.chunks...))

			if tt.wantErr != nil {
				is.True(errors.Is(err, tt.wantErr))
				is.Equal(s.State(), StateFailed)
			} else {
				is.NoErr(err)
				is.Equal(s.State(), StateFinalized)
			}

			f := finals(rec.Messages())
			is.Equal(len(f), 1) // exactly one final message
			is.Equal(f[0].Partial, tt.partial)
		})
	}
}

func TestRelay_CancelledSessionEmitsPartialFinal(t *testing.T) {
	is := is.New(t)

	provider := fake.NewScriptedLLM("a", "b", "c", "d", "e")
	provider.Delay = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := testDriver(provider).Translate(ctx, turns, "ja")
	is.NoErr(err)

	rec := &recorder{}
	s := NewSession("s1", "zh", "ja")
	seen := make(chan struct{}, 1)
	r := New(rec, nil, WithObserver(Observer{
		OnChunk: func(*Session, string) {
			select {
			case seen <- struct{}{}:
			default:
			}
		},
	}))

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, s, ch) }()

	<-seen
	cancel()

	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not return after cancellation")
	}

	is.True(errors.Is(err, translate.ErrCancelled))
	is.Equal(s.State(), StateFailed)

	f := finals(rec.Messages())
	is.Equal(len(f), 1)
	is.True(f[0].Partial)
	is.True(f[0].Text != "abcde") // never completed
}

func TestRelay_TimestampsIncrease(t *testing.T) {
	is := is.New(t)

	fixed := time.UnixMilli(1_700_000_000_000)
	rec := &recorder{}
	s := NewSession("s1", "zh", "ja")
	r := New(rec, nil, WithClock(func() time.Time { return fixed }))

	err := r.Run(context.Background(), s, chunkStream(
		translate.Chunk{Kind: translate.ChunkDelta, Text: "a"},
		translate.Chunk{Kind: translate.ChunkDelta, Text: "b"},
		translate.Chunk{Kind: translate.ChunkFinal, Text: "ab"},
	))
	is.NoErr(err)

	msgs := rec.Messages()
	for i := 1; i < len(msgs); i++ {
		is.True(msgs[i].Timestamp > msgs[i-1].Timestamp) // strictly increasing under a frozen clock
	}
}

func TestRelay_ObserverOnEnd(t *testing.T) {
	is := is.New(t)

	var ended *Session
	var endErr error
	r := New(&recorder{}, nil, WithObserver(Observer{
		OnEnd: func(s *Session, err error) { ended, endErr = s, err },
	}))

	s := NewSession("s1", "zh", "ja")
	is.NoErr(r.Run(context.Background(), s, chunkStream(translate.Chunk{Kind: translate.ChunkFinal})))
	is.Equal(ended, s)
	is.NoErr(endErr)
}
