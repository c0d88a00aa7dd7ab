package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Recorder updates the expvar counters and the OpenTelemetry instruments
// together. A nil *Recorder records nothing.
type Recorder struct {
	Stats   *Stats
	Metrics *Metrics
}

// NewRecorder creates a Recorder. A nil meter uses the global provider.
func NewRecorder(stats *Stats, meter metric.Meter) (*Recorder, error) {
	if stats == nil {
		stats = NewStats()
	}
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}
	m, err := NewMetrics(meter)
	if err != nil {
		return nil, err
	}
	return &Recorder{Stats: stats, Metrics: m}, nil
}

func (r *Recorder) Transcribed() {
	if r == nil {
		return
	}
	r.Stats.Transcriptions.Add(1)
}

func (r *Recorder) SessionStarted(ctx context.Context, language string) {
	if r == nil {
		return
	}
	r.Metrics.RecordSession(ctx, language, "started")
}

// SessionEnded records a session's outcome.
func (r *Recorder) SessionEnded(ctx context.Context, language string, finalized bool) {
	if r == nil {
		return
	}
	if finalized {
		r.Stats.Translations.Add(1)
		r.Stats.ByLanguage.Add(language, 1)
		r.Metrics.RecordSession(ctx, language, "finalized")
		return
	}
	r.Stats.SessionsFailed.Add(1)
	r.Metrics.RecordSession(ctx, language, "failed")
}

func (r *Recorder) ChunkRelayed(ctx context.Context, language string) {
	if r == nil {
		return
	}
	r.Metrics.RecordChunk(ctx, language)
}

func (r *Recorder) FirstChunk(ctx context.Context, language string, d time.Duration) {
	if r == nil {
		return
	}
	r.Metrics.RecordFirstChunk(ctx, language, d)
}

func (r *Recorder) SubtitleBroadcast() {
	if r == nil {
		return
	}
	r.Stats.SubtitleBroadcasts.Add(1)
}

func (r *Recorder) SynthesisRequested() {
	if r == nil {
		return
	}
	r.Stats.TTSRequests.Add(1)
}

func (r *Recorder) AudioPublished() {
	if r == nil {
		return
	}
	r.Stats.AudioPublished.Add(1)
}

func (r *Recorder) SinkFailed(ctx context.Context, sink string) {
	if r == nil {
		return
	}
	r.Stats.SinkFailures.Add(1)
	r.Metrics.RecordSinkFailure(ctx, sink)
}
