package openai

import (
	"context"
	"fmt"
	"io"

	"github.com/chriscow/livekit-translate-go/pkg/ai/tts"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAITTS synthesizes Ogg/Opus speech with OpenAI's speech endpoint.
type OpenAITTS struct {
	client *openai.Client
	model  string
	voice  string
}

// NewOpenAITTS creates a speech provider.
func NewOpenAITTS(cfg Config) (*OpenAITTS, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.TTSModel1)
	}
	voice := cfg.Voice
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &OpenAITTS{client: client, model: model, voice: voice}, nil
}

// Synthesize returns the complete utterance as Ogg/Opus.
func (o *OpenAITTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (*tts.Audio, error) {
	voice := req.Voice
	if voice == "" {
		voice = o.voice
	}

	speechReq := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatOpus,
	}
	if req.Speed > 0 {
		speechReq.Speed = float64(req.Speed)
	}

	resp, err := o.client.CreateSpeech(ctx, speechReq)
	if err != nil {
		return nil, classify(err, "speech request failed")
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, classify(err, "failed to read speech response")
	}
	if len(data) == 0 {
		return nil, classify(fmt.Errorf("empty speech response"), "speech request failed")
	}
	return &tts.Audio{Data: data, Format: tts.FormatOggOpus}, nil
}

// Capabilities returns the OpenAI TTS provider's capabilities
func (o *OpenAITTS) Capabilities() tts.TTSCapabilities {
	return tts.TTSCapabilities{
		Formats:              []tts.Format{tts.FormatOggOpus},
		SupportedLanguages:   []string{"en", "ja", "ko", "vi", "ms", "zh"},
		SupportedVoices:      []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"},
		SupportsSpeedControl: true,
	}
}
