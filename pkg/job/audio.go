package job

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/pion/webrtc/v3/pkg/media"
)

// ErrAudioClosed is returned when audio is queued after the track closed.
var ErrAudioClosed = errors.New("audio track is closed")

// sampleProvider feeds queued Opus samples to a LocalSampleTrack, which
// paces them by each sample's duration.
type sampleProvider struct {
	queue chan media.Sample
	done  chan struct{}
	once  sync.Once
}

func newSampleProvider(size int) *sampleProvider {
	if size <= 0 {
		size = 500
	}
	return &sampleProvider{
		queue: make(chan media.Sample, size),
		done:  make(chan struct{}),
	}
}

// NextSample blocks until a sample is queued.
func (p *sampleProvider) NextSample(ctx context.Context) (media.Sample, error) {
	select {
	case <-ctx.Done():
		return media.Sample{}, ctx.Err()
	case <-p.done:
		return media.Sample{}, io.EOF
	case s := <-p.queue:
		return s, nil
	}
}

func (p *sampleProvider) OnBind() error   { return nil }
func (p *sampleProvider) OnUnbind() error { return nil }

func (p *sampleProvider) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

// push queues s, waiting for room in the queue.
func (p *sampleProvider) push(ctx context.Context, s media.Sample) error {
	select {
	case <-p.done:
		return ErrAudioClosed
	default:
	}

	select {
	case p.queue <- s:
		return nil
	case <-p.done:
		return ErrAudioClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
