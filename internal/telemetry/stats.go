// Package telemetry counts what the translation workers do, as expvar debug
// variables and as OpenTelemetry metrics.
package telemetry

import (
	"expvar"
	"sync"
)

// Stats holds the debug counters served on /debug/vars.
type Stats struct {
	Transcriptions     *expvar.Int
	Translations       *expvar.Int
	TTSRequests        *expvar.Int
	SubtitleBroadcasts *expvar.Int
	AudioPublished     *expvar.Int
	SessionsFailed     *expvar.Int
	SinkFailures       *expvar.Int

	// ByLanguage counts finalized translations per target language.
	ByLanguage *expvar.Map

	vars *expvar.Map
}

// NewStats creates counters that are not yet published.
func NewStats() *Stats {
	s := &Stats{
		Transcriptions:     &expvar.Int{},
		Translations:       &expvar.Int{},
		TTSRequests:        &expvar.Int{},
		SubtitleBroadcasts: &expvar.Int{},
		AudioPublished:     &expvar.Int{},
		SessionsFailed:     &expvar.Int{},
		SinkFailures:       &expvar.Int{},
		ByLanguage:         new(expvar.Map).Init(),
		vars:               new(expvar.Map).Init(),
	}

	s.vars.Set("transcriptions", s.Transcriptions)
	s.vars.Set("translations", s.Translations)
	s.vars.Set("tts_requests", s.TTSRequests)
	s.vars.Set("subtitle_broadcasts", s.SubtitleBroadcasts)
	s.vars.Set("audio_published", s.AudioPublished)
	s.vars.Set("sessions_failed", s.SessionsFailed)
	s.vars.Set("sink_failures", s.SinkFailures)
	s.vars.Set("translations_by_language", s.ByLanguage)
	return s
}

var publishMu sync.Mutex

// Publish exposes the counters as the expvar variable name. Publishing the
// same name twice is a no-op.
func (s *Stats) Publish(name string) {
	publishMu.Lock()
	defer publishMu.Unlock()

	if expvar.Get(name) != nil {
		return
	}
	expvar.Publish(name, s.vars)
}

// Snapshot returns the scalar counters by name.
func (s *Stats) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	s.vars.Do(func(kv expvar.KeyValue) {
		if v, ok := kv.Value.(*expvar.Int); ok {
			out[kv.Key] = v.Value()
		}
	})
	return out
}
