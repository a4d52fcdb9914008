package entities

import (
	"time"

	"github.com/google/uuid"
	"transcribe-worker/constant"
)

type Recording struct {
	ID              uuid.UUID                `json:"id" gorm:"type:uuid;primary_key"`
	UserId          uuid.UUID                `json:"user_id" gorm:"type:uuid;not null;index:idx_recordings_user"`
	Title           string                   `json:"title" gorm:"type:varchar(255)"`
	OssKey          string                   `json:"oss_key" gorm:"type:varchar(500);not null"`
	Format          string                   `json:"format" gorm:"type:varchar(20)"`
	DurationSeconds *float64                 `json:"duration_seconds" gorm:"type:double precision"`
	Status          constant.RecordingStatus `json:"status" gorm:"type:varchar(20);not null"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

func (Recording) TableName() string {
	return "recordings"
}
