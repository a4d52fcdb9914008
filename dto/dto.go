package dto

import (
	"github.com/google/uuid"
	"transcribe-worker/constant"
)

// TranscribeMessage is the queue payload requesting transcription of a recording.
type TranscribeMessage struct {
	RecordingId uuid.UUID `json:"recordingId"`
}

// JobEvent is emitted when a poll causes an observable job status change.
// It is never persisted.
type JobEvent struct {
	JobId          uuid.UUID          `json:"jobId"`
	RecordingId    uuid.UUID          `json:"recordingId"`
	Status         constant.JobStatus `json:"status"`
	PreviousStatus constant.JobStatus `json:"previousStatus"`
}
