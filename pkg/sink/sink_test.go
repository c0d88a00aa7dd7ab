package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/chriscow/livekit-translate-go/pkg/ai"
	"github.com/chriscow/livekit-translate-go/pkg/ai/tts"
	"github.com/chriscow/livekit-translate-go/pkg/ai/tts/fake"
	"github.com/chriscow/livekit-translate-go/pkg/relay"
	"github.com/chriscow/livekit-translate-go/pkg/rtc"
	"github.com/chriscow/livekit-translate-go/pkg/translate"
	"github.com/gorilla/websocket"
	"github.com/matryer/is"
	goredis "github.com/redis/go-redis/v9"
)

func finalMessage(text string) relay.Message {
	return relay.Message{
		Type:           relay.TypeTranslation,
		SessionID:      "s1",
		Text:           text,
		SourceLanguage: "zh",
		TargetLanguage: "ja",
		IsFinal:        true,
		Timestamp:      1700000000000,
	}
}

type recordingRoom struct {
	mu     sync.Mutex
	data   [][]byte
	frames []rtc.AudioFrame
	err    error
}

func (r *recordingRoom) PublishData(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.data = append(r.data, data)
	return nil
}

func (r *recordingRoom) PublishAudio(_ context.Context, frames []rtc.AudioFrame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frames...)
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []relay.Message
}

func (n *recordingNotifier) Dispatch(msg relay.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func TestWriter_JSONLines(t *testing.T) {
	is := is.New(t)

	var buf bytes.Buffer
	w := NewWriter("stdout", &buf)
	is.Equal(w.Name(), "stdout")

	is.NoErr(w.Emit(context.Background(), relay.Message{Type: relay.TypeTranslation, Text: "こん", Chunk: "こん"}))
	is.NoErr(w.Emit(context.Background(), finalMessage("こんにちは")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	is.Equal(len(lines), 2) // one line per message

	var got relay.Message
	is.NoErr(json.Unmarshal([]byte(lines[1]), &got))
	is.Equal(got.Text, "こんにちは")
	is.True(got.IsFinal)
	is.True(!strings.Contains(lines[1], `\u`)) // text is written unescaped
}

func TestDataChannel_Emit(t *testing.T) {
	is := is.New(t)

	room := &recordingRoom{}
	d := NewDataChannel(room)

	is.NoErr(d.Emit(context.Background(), finalMessage("안녕하세요")))
	is.Equal(len(room.data), 1)

	var got map[string]any
	is.NoErr(json.Unmarshal(room.data[0], &got))
	is.Equal(got["type"], "translation")
	is.Equal(got["text"], "안녕하세요")
	is.Equal(got["sessionId"], "s1")
	is.Equal(got["isFinal"], true)
}

func TestDataChannel_Errors(t *testing.T) {
	is := is.New(t)

	boom := errors.New("not connected")
	d := NewDataChannel(&recordingRoom{err: boom})
	is.True(errors.Is(d.Emit(context.Background(), finalMessage("x")), boom))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	is.True(errors.Is(NewDataChannel(&recordingRoom{}).Emit(ctx, finalMessage("x")), context.Canceled))
}

func TestRedis_PublishAndLast(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	mini, err := miniredis.Run()
	is.NoErr(err)
	defer mini.Close()

	rdb := goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
	defer rdb.Close()

	r := NewRedis(rdb, RedisConfig{Room: "Pryme-Japanese", LastTTL: time.Minute})
	is.Equal(r.Channel(), "subtitles:Pryme-Japanese")

	sub := rdb.Subscribe(ctx, r.Channel())
	defer sub.Close()
	_, err = sub.Receive(ctx) // subscription confirmation
	is.NoErr(err)
	ch := sub.Channel()

	interim := finalMessage("こん")
	interim.IsFinal = false
	is.NoErr(r.Emit(ctx, interim))
	is.True(!mini.Exists(r.Channel() + ":last")) // interim messages are not stored

	is.NoErr(r.Emit(ctx, finalMessage("こんにちは")))

	for _, want := range []string{"こん", "こんにちは"} {
		select {
		case m := <-ch:
			var got relay.Message
			is.NoErr(json.Unmarshal([]byte(m.Payload), &got))
			is.Equal(got.Text, want)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}

	last, err := mini.Get(r.Channel() + ":last")
	is.NoErr(err)
	is.True(strings.Contains(last, "こんにちは"))
}

func TestRedis_PartialNotStored(t *testing.T) {
	is := is.New(t)

	mini, err := miniredis.Run()
	is.NoErr(err)
	defer mini.Close()

	rdb := goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
	defer rdb.Close()

	r := NewRedis(rdb, RedisConfig{Prefix: "subs", Room: "r", LastTTL: time.Minute})
	msg := finalMessage("途中")
	msg.Partial = true
	is.NoErr(r.Emit(context.Background(), msg))
	is.True(!mini.Exists("subs:r:last"))
}

func TestWebSocket_Emit(t *testing.T) {
	is := is.New(t)

	upgrader := websocket.Upgrader{}
	received := make(chan relay.Message, 4)
	tokens := make(chan string, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens <- r.URL.Query().Get("token")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg relay.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			received <- msg
		}
	}))
	defer srv.Close()

	ws := NewWebSocket("ws"+strings.TrimPrefix(srv.URL, "http"), "secret", nil)
	defer ws.Close()

	ctx := context.Background()
	is.NoErr(ws.Emit(ctx, finalMessage("one")))
	is.NoErr(ws.Emit(ctx, finalMessage("two")))

	is.Equal(<-tokens, "secret") // token passed as query parameter
	is.Equal((<-received).Text, "one")
	is.Equal((<-received).Text, "two")

	select {
	case <-tokens:
		t.Fatal("expected a single connection")
	default:
	}
}

func TestWebSocket_DialFailure(t *testing.T) {
	is := is.New(t)

	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	ws := NewWebSocket(url, "", nil)
	err := ws.Emit(context.Background(), finalMessage("x"))
	is.True(err != nil) // nothing is listening
	is.NoErr(ws.Close())
}

func newSpeech(synth tts.Synthesizer, room *recordingRoom, n *recordingNotifier) *Speech {
	retry := tts.WithRetry(synth, ai.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond}, nil)
	return NewSpeech(retry, room, n, SpeechConfig{
		Voices: map[string]string{"ja": "voice-ja"},
	}, nil)
}

func TestSpeech_SkipsNonFinal(t *testing.T) {
	is := is.New(t)

	f := fake.NewFakeTTS()
	room := &recordingRoom{}
	s := newSpeech(f, room, nil)

	interim := finalMessage("こん")
	interim.IsFinal = false
	partial := finalMessage("こんに")
	partial.Partial = true
	status := relay.NewStatus(relay.StatusTranslationStarted, nil, "zh", "ja", time.Now())
	blank := finalMessage("  ")

	for _, msg := range []relay.Message{interim, partial, status, blank} {
		is.NoErr(s.Emit(context.Background(), msg))
	}
	is.Equal(f.Calls(), 0)        // nothing synthesized
	is.Equal(len(room.frames), 0) // nothing published
}

func TestSpeech_VoicesFinal(t *testing.T) {
	is := is.New(t)

	f := fake.NewFakeTTS()
	room := &recordingRoom{}
	var spoken int
	s := newSpeech(f, room, nil)
	s.cfg.OnSpoken = func(_ relay.Message, frames int) { spoken = frames }

	is.NoErr(s.Emit(context.Background(), finalMessage("こんにちは")))

	is.Equal(f.Calls(), 1)
	req := f.Requests()[0]
	is.Equal(req.Voice, "voice-ja")
	is.Equal(req.Language, "ja")
	is.Equal(len(room.frames), 5) // one frame per rune
	is.Equal(spoken, 5)
	for _, fr := range room.frames {
		is.Equal(fr.Encoding, rtc.EncodingOpus)
	}
}

func TestSpeech_FailureNotifies(t *testing.T) {
	is := is.New(t)

	f := fake.NewFakeTTS()
	f.Failures = 10
	room := &recordingRoom{}
	n := &recordingNotifier{}
	s := newSpeech(f, room, n)

	err := s.Emit(context.Background(), finalMessage("こんにちは"))
	is.True(errors.Is(err, translate.ErrSynthesisFailed))
	is.Equal(f.Calls(), 2) // MaxRetries 1 means two attempts
	is.Equal(len(room.frames), 0)

	is.Equal(len(n.msgs), 1)
	is.Equal(n.msgs[0].Type, relay.TypeStatus)
	is.Equal(n.msgs[0].Status, relay.StatusSynthesisFailed)
	is.Equal(n.msgs[0].TargetLanguage, "ja")
	is.True(n.msgs[0].Error != "")
}

func TestSpeech_CancelledDoesNotNotify(t *testing.T) {
	is := is.New(t)

	f := fake.NewFakeTTS()
	f.Delay = time.Second
	n := &recordingNotifier{}
	s := newSpeech(f, &recordingRoom{}, n)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	err := s.Emit(ctx, finalMessage("こんにちは"))
	is.True(errors.Is(err, ai.ErrCancelled))
	is.Equal(len(n.msgs), 0) // cancellation is not a synthesis failure
}

func TestSpeech_TimeoutNotifies(t *testing.T) {
	is := is.New(t)

	f := fake.NewFakeTTS()
	f.Delay = time.Second
	n := &recordingNotifier{}
	s := newSpeech(f, &recordingRoom{}, n)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := s.Emit(ctx, finalMessage("こんにちは"))
	is.True(errors.Is(err, translate.ErrSynthesisFailed))
	is.True(errors.Is(err, context.DeadlineExceeded))
	is.True(!errors.Is(err, ai.ErrCancelled)) // a timeout is a failed synthesis

	is.Equal(len(n.msgs), 1)
	is.Equal(n.msgs[0].Status, relay.StatusSynthesisFailed)
}
