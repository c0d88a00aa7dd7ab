package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chriscow/livekit-translate-go/pkg/rtc"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

// ErrNotConnected is returned when publishing on a room that is not connected.
var ErrNotConnected = errors.New("room is not connected")

// Room wraps the LiveKit room connection and provides event handling.
type Room struct {
	// Events channel for room events
	Events chan *Event

	config RoomConfig
	logger *slog.Logger

	// Internal LiveKit room connection
	room *lksdk.Room

	// Context for managing the room lifecycle
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.RWMutex
	connected    bool
	eventsClosed bool

	// Participants tracking
	participants map[string]*livekit.ParticipantInfo

	// Translation audio, created on first publish
	audioMu  sync.Mutex
	audio    *sampleProvider
	audioPub *lksdk.LocalTrackPublication
}

// RoomConfig contains configuration for connecting to a room.
type RoomConfig struct {
	// URL of the LiveKit server
	URL string

	// Token for authentication
	Token string

	// Room name to join
	RoomName string

	// TrackName names the published audio track (default "translation")
	TrackName string

	// Buffer size for events channel
	EventBufferSize int

	// AudioQueueSize bounds queued outbound Opus frames
	AudioQueueSize int

	Logger *slog.Logger
}

// NewRoom creates a new Room wrapper with the given configuration.
func NewRoom(ctx context.Context, config RoomConfig) (*Room, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if config.Token == "" {
		return nil, fmt.Errorf("token is required")
	}
	if config.RoomName == "" {
		return nil, fmt.Errorf("room name is required")
	}

	if config.EventBufferSize == 0 {
		config.EventBufferSize = 100
	}
	if config.TrackName == "" {
		config.TrackName = "translation"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	roomCtx, cancel := context.WithCancel(ctx)

	return &Room{
		Events:       make(chan *Event, config.EventBufferSize),
		config:       config,
		logger:       logger.With(slog.String("room", config.RoomName)),
		ctx:          roomCtx,
		cancel:       cancel,
		participants: make(map[string]*livekit.ParticipantInfo),
	}, nil
}

// Name returns the room name.
func (r *Room) Name() string {
	return r.config.RoomName
}

// Connect establishes connection to the LiveKit room.
func (r *Room) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.connected {
		return fmt.Errorf("room is already connected")
	}
	if r.eventsClosed {
		return fmt.Errorf("room is closed")
	}

	callback := &lksdk.RoomCallback{
		OnParticipantConnected:    r.onParticipantConnected,
		OnParticipantDisconnected: r.onParticipantDisconnected,
		OnDisconnected:            r.onDisconnected,
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed:   r.onTrackSubscribed,
			OnTrackUnsubscribed: r.onTrackUnsubscribed,
			OnDataReceived:      r.onDataReceived,
		},
	}

	room, err := lksdk.ConnectToRoomWithToken(r.config.URL, r.config.Token, callback)
	if err != nil {
		return fmt.Errorf("failed to connect to room: %w", err)
	}

	r.room = room
	r.connected = true

	r.logger.Info("Connected to LiveKit room", slog.String("url", r.config.URL))

	return nil
}

// Disconnect closes the room connection and cleans up resources.
func (r *Room) Disconnect() error {
	r.audioMu.Lock()
	if r.audio != nil {
		r.audio.Close()
	}
	r.audioMu.Unlock()

	r.mu.Lock()
	r.cancel()
	room := r.room
	wasConnected := r.connected
	r.connected = false
	r.room = nil
	if !r.eventsClosed {
		close(r.Events)
		r.eventsClosed = true
	}
	r.mu.Unlock()

	// The SDK may call back into the room while disconnecting.
	if room != nil {
		room.Disconnect()
	}
	if wasConnected {
		r.logger.Info("Disconnected from LiveKit room")
	}

	return nil
}

// IsConnected returns true if the room is currently connected.
func (r *Room) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected
}

// Done is closed once Disconnect is called or the parent context ends.
func (r *Room) Done() <-chan struct{} {
	return r.ctx.Done()
}

// GetParticipants returns a copy of all participants in the room.
func (r *Room) GetParticipants() map[string]*livekit.ParticipantInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*livekit.ParticipantInfo, len(r.participants))
	for k, v := range r.participants {
		result[k] = v
	}
	return result
}

// PublishData sends data reliably to every participant.
func (r *Room) PublishData(data []byte) error {
	r.mu.RLock()
	room, connected := r.room, r.connected
	r.mu.RUnlock()

	if !connected || room == nil {
		return ErrNotConnected
	}
	return publishReliable(room.LocalParticipant, data)
}

// dataSender is the data channel half of the SDK's local participant.
type dataSender interface {
	PublishData(data []byte, kind livekit.DataPacket_Kind, destinationSids []string) error
}

var _ dataSender = (*lksdk.LocalParticipant)(nil)

// publishReliable broadcasts data to the whole room over the reliable channel.
func publishReliable(p dataSender, data []byte) error {
	if err := p.PublishData(data, livekit.DataPacket_RELIABLE, nil); err != nil {
		return fmt.Errorf("failed to publish data: %w", err)
	}
	return nil
}

// PublishAudio queues Opus frames on the room's translation track, creating
// and publishing the track on first use. It returns once every frame is
// queued; the track paces playback.
func (r *Room) PublishAudio(ctx context.Context, frames []rtc.AudioFrame) error {
	provider, err := r.audioTrack()
	if err != nil {
		return err
	}

	for _, f := range frames {
		if f.Encoding != rtc.EncodingOpus {
			return fmt.Errorf("cannot publish %s frame on an opus track", f.Encoding)
		}
		sample := media.Sample{Data: f.Data, Duration: f.Duration}
		if err := provider.push(ctx, sample); err != nil {
			return fmt.Errorf("failed to queue audio: %w", err)
		}
	}
	return nil
}

func (r *Room) audioTrack() (*sampleProvider, error) {
	r.audioMu.Lock()
	defer r.audioMu.Unlock()

	if r.audio != nil {
		return r.audio, nil
	}

	r.mu.RLock()
	room, connected := r.room, r.connected
	r.mu.RUnlock()
	if !connected || room == nil {
		return nil, ErrNotConnected
	}

	track, err := lksdk.NewLocalSampleTrack(webrtc.RTPCodecCapability{
		MimeType: webrtc.MimeTypeOpus,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create local sample track: %w", err)
	}

	provider := newSampleProvider(r.config.AudioQueueSize)
	if err := track.StartWrite(provider, func() {
		r.logger.Debug("Translation audio track write completed")
	}); err != nil {
		return nil, fmt.Errorf("failed to start sample provider: %w", err)
	}

	pub, err := room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   r.config.TrackName,
		Source: livekit.TrackSource_MICROPHONE,
	})
	if err != nil {
		provider.Close()
		return nil, fmt.Errorf("failed to publish audio track: %w", err)
	}

	r.audio = provider
	r.audioPub = pub

	r.logger.Info("Published translation audio track",
		slog.String("track", r.config.TrackName),
		slog.String("track_sid", pub.SID()))

	return provider, nil
}

// Event handlers

func participantInfo(p *lksdk.RemoteParticipant, state livekit.ParticipantInfo_State) *livekit.ParticipantInfo {
	return &livekit.ParticipantInfo{
		Sid:      p.SID(),
		Identity: p.Identity(),
		State:    state,
	}
}

func trackInfo(pub *lksdk.RemoteTrackPublication) *livekit.TrackInfo {
	return &livekit.TrackInfo{
		Sid:  pub.SID(),
		Name: pub.Name(),
		Type: pub.Kind().ProtoType(),
	}
}

func (r *Room) onParticipantConnected(participant *lksdk.RemoteParticipant) {
	info := participantInfo(participant, livekit.ParticipantInfo_ACTIVE)

	r.mu.Lock()
	r.participants[participant.Identity()] = info
	r.mu.Unlock()

	r.sendEvent(NewEvent(EventParticipantConnected).WithParticipant(info))

	r.logger.Info("Participant connected",
		slog.String("identity", participant.Identity()),
		slog.String("sid", participant.SID()))
}

func (r *Room) onParticipantDisconnected(participant *lksdk.RemoteParticipant) {
	info := participantInfo(participant, livekit.ParticipantInfo_DISCONNECTED)

	r.mu.Lock()
	delete(r.participants, participant.Identity())
	r.mu.Unlock()

	r.sendEvent(NewEvent(EventParticipantDisconnected).WithParticipant(info))

	r.logger.Info("Participant disconnected",
		slog.String("identity", participant.Identity()),
		slog.String("sid", participant.SID()))
}

func (r *Room) onTrackSubscribed(track *webrtc.TrackRemote, publication *lksdk.RemoteTrackPublication, participant *lksdk.RemoteParticipant) {
	event := NewEvent(EventTrackSubscribed).
		WithParticipant(participantInfo(participant, livekit.ParticipantInfo_ACTIVE)).
		WithTrack(trackInfo(publication))
	if track.Kind() == webrtc.RTPCodecTypeAudio {
		event.WithAudio(remoteAudio{track: track})
	}
	r.sendEvent(event)

	r.logger.Info("Track subscribed",
		slog.String("participant", participant.Identity()),
		slog.String("track_sid", publication.SID()),
		slog.String("track_type", publication.Kind().String()))
}

func (r *Room) onTrackUnsubscribed(track *webrtc.TrackRemote, publication *lksdk.RemoteTrackPublication, participant *lksdk.RemoteParticipant) {
	r.sendEvent(NewEvent(EventTrackUnsubscribed).
		WithParticipant(participantInfo(participant, livekit.ParticipantInfo_ACTIVE)).
		WithTrack(trackInfo(publication)))
}

func (r *Room) onDataReceived(data []byte, participant *lksdk.RemoteParticipant) {
	r.sendEvent(NewEvent(EventDataReceived).
		WithParticipant(participantInfo(participant, livekit.ParticipantInfo_ACTIVE)).
		WithData(data))
}

func (r *Room) onDisconnected() {
	r.mu.Lock()
	r.connected = false
	r.mu.Unlock()

	r.logger.Warn("Room connection closed by server")
	r.sendEvent(NewEvent(EventDisconnected))
}

// sendEvent delivers an event without blocking; a full channel drops it.
// The read lock is held across the send so Disconnect cannot close the
// channel underneath it.
func (r *Room) sendEvent(event *Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.eventsClosed {
		return
	}

	select {
	case r.Events <- event:
	default:
		r.logger.Warn("Events channel is full, dropping event",
			slog.String("event_type", string(event.Type)))
	}
}

type remoteAudio struct {
	track *webrtc.TrackRemote
}

func (a remoteAudio) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := a.track.ReadRTP()
	return pkt, err
}

func (a remoteAudio) SetReadDeadline(t time.Time) error {
	return a.track.SetReadDeadline(t)
}
