package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/chriscow/livekit-translate-go/pkg/relay"
)

// Writer writes each message as one JSON line.
type Writer struct {
	name string

	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriter creates a sink writing JSON lines to w.
func NewWriter(name string, w io.Writer) *Writer {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Writer{name: name, enc: enc}
}

func (w *Writer) Name() string { return w.name }

// Emit writes msg followed by a newline.
func (w *Writer) Emit(_ context.Context, msg relay.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.enc.Encode(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}
