package entities

import (
	"time"

	"github.com/google/uuid"
)

type Summary struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	RecordingId uuid.UUID `json:"recording_id" gorm:"type:uuid;not null;index:idx_summaries_recording"`
	Content     string    `json:"content" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Summary) TableName() string {
	return "summaries"
}
