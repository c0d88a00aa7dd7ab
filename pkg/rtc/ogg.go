package rtc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3/pkg/media/oggreader"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
)

// OggRecorder repackages the RTP packets of an Opus track as an Ogg stream
// and hands each page to emit as an EncodingOgg frame.
type OggRecorder struct {
	mu     sync.Mutex
	writer *oggwriter.OggWriter
	emit   func(AudioFrame) error
	err    error
}

type pageEmitter struct {
	r *OggRecorder
}

func (p pageEmitter) Write(b []byte) (int, error) {
	page := make([]byte, len(b))
	copy(page, b)
	if err := p.r.emit(AudioFrame{
		Data:        page,
		Encoding:    EncodingOgg,
		SampleRate:  OpusSampleRate,
		NumChannels: OpusChannels,
	}); err != nil {
		return 0, err
	}
	return len(b), nil
}

// NewOggRecorder starts a recorder. The Ogg identification headers are
// emitted before NewOggRecorder returns.
func NewOggRecorder(emit func(AudioFrame) error) (*OggRecorder, error) {
	r := &OggRecorder{emit: emit}
	w, err := oggwriter.NewWith(pageEmitter{r: r}, OpusSampleRate, OpusChannels)
	if err != nil {
		return nil, fmt.Errorf("failed to start ogg stream: %w", err)
	}
	r.writer = w
	return r, nil
}

// WriteRTP adds one RTP packet. After an emit failure every call returns
// that failure.
func (r *OggRecorder) WriteRTP(pkt *rtp.Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	if err := r.writer.WriteRTP(pkt); err != nil {
		r.err = err
		return err
	}
	return nil
}

// Close ends the stream.
func (r *OggRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer.Close()
}

// ReadOggOpus splits an Ogg/Opus stream into EncodingOpus frames, calling fn
// for each. Frame durations come from granule positions.
func ReadOggOpus(in io.Reader, fn func(AudioFrame) error) error {
	reader, header, err := oggreader.NewWith(in)
	if err != nil {
		return fmt.Errorf("invalid ogg stream: %w", err)
	}

	sampleRate := int(header.SampleRate)
	if sampleRate == 0 {
		sampleRate = OpusSampleRate
	}

	var (
		lastGranule uint64
		offset      time.Duration
	)
	for {
		payload, page, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("invalid ogg page: %w", err)
		}

		if len(payload) == 0 || bytes.HasPrefix(payload, []byte("OpusTags")) {
			continue
		}

		duration := DefaultFrameDuration
		if page.GranulePosition > lastGranule {
			samples := page.GranulePosition - lastGranule
			if d := time.Duration(samples) * time.Second / OpusSampleRate; d >= time.Millisecond {
				duration = d
			}
			lastGranule = page.GranulePosition
		}

		if err := fn(AudioFrame{
			Data:        payload,
			Encoding:    EncodingOpus,
			SampleRate:  sampleRate,
			NumChannels: int(header.Channels),
			Duration:    duration,
			Timestamp:   offset,
		}); err != nil {
			return err
		}
		offset += duration
	}
}

// EncodeOggOpus wraps Opus packets of equal duration in an Ogg stream.
func EncodeOggOpus(packets [][]byte, frameDuration time.Duration) ([]byte, error) {
	var buf bytes.Buffer
	w, err := oggwriter.NewWith(&buf, OpusSampleRate, OpusChannels)
	if err != nil {
		return nil, err
	}

	step := uint32(frameDuration * OpusSampleRate / time.Second)
	ts := uint32(step)
	for i, p := range packets {
		if err := w.WriteRTP(&rtp.Packet{
			Header:  rtp.Header{Version: 2, SequenceNumber: uint16(i), Timestamp: ts},
			Payload: p,
		}); err != nil {
			return nil, err
		}
		ts += step
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
