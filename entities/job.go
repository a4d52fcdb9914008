package entities

import (
	"time"

	"github.com/google/uuid"
	"transcribe-worker/constant"
)

// Job is one unit of remote transcription work tied to a recording. A
// recording may accumulate several jobs over time (re-transcription history).
type Job struct {
	ID           uuid.UUID          `json:"id" gorm:"type:uuid;primary_key"`
	RecordingId  uuid.UUID          `json:"recording_id" gorm:"type:uuid;not null;index:idx_transcription_jobs_recording"`
	TaskId       string             `json:"task_id" gorm:"type:varchar(255);not null"`
	RequestId    *string            `json:"request_id" gorm:"type:varchar(255)"`
	Status       constant.JobStatus `json:"status" gorm:"type:varchar(20);not null"`
	Error        *string            `json:"error" gorm:"type:text"`
	SubmitTime   *time.Time         `json:"submit_time" gorm:"type:timestamptz"`
	EndTime      *time.Time         `json:"end_time" gorm:"type:timestamptz"`
	UsageSeconds *int               `json:"usage_seconds" gorm:"type:integer"`
	ResultRef    *string            `json:"result_ref" gorm:"type:varchar(1000)"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func (Job) TableName() string {
	return "transcription_jobs"
}
