package entities

import "github.com/google/uuid"

type UserSettings struct {
	UserId        uuid.UUID `json:"user_id" gorm:"type:uuid;primary_key"`
	AutoSummarize bool      `json:"auto_summarize" gorm:"not null;default:false"`
}

func (UserSettings) TableName() string {
	return "user_settings"
}
