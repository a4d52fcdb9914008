package entities

import (
	"time"

	"github.com/google/uuid"
)

// Sentence is one transcribed sentence with time offsets. Word-level timing
// from the provider is dropped here; it survives only in the archived raw
// result document.
type Sentence struct {
	BeginMs  int    `json:"begin_ms"`
	EndMs    int    `json:"end_ms"`
	Language string `json:"language"`
	Emotion  string `json:"emotion"`
	Text     string `json:"text"`
}

// Transcription is the durable product of a successful job. At most one row
// exists per recording; re-transcribing replaces the previous row.
type Transcription struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	RecordingId uuid.UUID  `json:"recording_id" gorm:"type:uuid;not null;uniqueIndex:unique_transcriptions_recording"`
	Text        string     `json:"text" gorm:"type:text"`
	Language    string     `json:"language" gorm:"type:varchar(20)"`
	Sentences   []Sentence `json:"sentences" gorm:"serializer:json"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (Transcription) TableName() string {
	return "transcriptions"
}
