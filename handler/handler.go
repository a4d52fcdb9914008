package handler

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"transcribe-worker/dto"
	"transcribe-worker/service"
)

type ServiceDependencies struct {
	TranscribeService service.Service
}

// TranscribeHandler decodes a transcription request from the queue and hands
// it to the intake service.
func TranscribeHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var message dto.TranscribeMessage
	if err := json.Unmarshal(msg.Body, &message); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal transcription request")
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("recording_id", message.RecordingId.String()).
		Msg("received transcription request")

	return deps.TranscribeService.Process(ctx, message)
}
