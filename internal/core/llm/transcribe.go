package llm

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

type openaiTranscriber struct {
	client *openai.Client
	model  string
	logger *zerolog.Logger
}

// NewOpenAITranscriber builds an audio transcription client. The model
// defaults to whisper-1.
func NewOpenAITranscriber(apiKey, model string, logger *zerolog.Logger) Transcriber {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if model == "" {
		model = openai.Whisper1
	}

	return &openaiTranscriber{
		client: openai.NewClient(apiKey),
		model:  model,
		logger: logger,
	}
}

func (t *openaiTranscriber) TranscribeAudio(ctx context.Context, filename string, audio []byte) (string, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}

	t.logger.Debug().
		Str("filename", filename).
		Int("transcript_chars", len(resp.Text)).
		Msg("Audio transcribed")

	return resp.Text, nil
}
