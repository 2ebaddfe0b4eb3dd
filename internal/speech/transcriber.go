package speech

import (
	"context"

	"github.com/snusnumrick/robie/internal/logger"
)

// Transcriber turns a voice recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (string, error)
}

// NoopTranscriber is the placeholder implementation: it acknowledges
// the recording and returns an empty transcript. It must never fail a
// turn.
type NoopTranscriber struct {
	logger logger.Logger
}

func NewNoopTranscriber(log logger.Logger) *NoopTranscriber {
	return &NoopTranscriber{logger: log}
}

func (t *NoopTranscriber) Transcribe(ctx context.Context, audioURL string) (string, error) {
	t.logger.WithField("url", audioURL).Debug("Transcription not implemented, returning empty transcript")
	return "", nil
}
