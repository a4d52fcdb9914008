package provider

import (
	"context"
	"time"

	"transcribe-worker/constant"
)

// SubmitResponse is returned when an audio file is handed to the remote
// speech-recognition service.
type SubmitResponse struct {
	RequestId string
	TaskId    string
	Status    constant.JobStatus
}

// PollResponse is one point-in-time view of a remote transcription task.
// Optional fields are populated by the provider only once the task has
// reached the matching stage.
type PollResponse struct {
	RequestId    string
	Status       constant.JobStatus
	SubmitTime   *time.Time
	EndTime      *time.Time
	UsageSeconds *int
	ResultRef    string
	ErrorMessage string
}

// RawWord carries word-level timing. It is kept only in the archived raw
// document, never in durable storage.
type RawWord struct {
	Text    string `json:"text"`
	BeginMs int    `json:"begin_time"`
	EndMs   int    `json:"end_time"`
}

type RawSentence struct {
	BeginMs  int       `json:"begin_time"`
	EndMs    int       `json:"end_time"`
	Language string    `json:"language"`
	Emotion  string    `json:"emotion"`
	Text     string    `json:"text"`
	Words    []RawWord `json:"words"`
}

type RawChannel struct {
	ChannelId int           `json:"channel_id"`
	Text      string        `json:"text"`
	Sentences []RawSentence `json:"sentences"`
}

// RawResult is the provider's full result document for a finished task.
type RawResult struct {
	TaskId   string       `json:"task_id"`
	Channels []RawChannel `json:"channels"`
}

// Provider is the contract shared by the real speech-recognition client and
// test doubles.
type Provider interface {
	Submit(ctx context.Context, audioURL string) (*SubmitResponse, error)
	Poll(ctx context.Context, taskId string) (*PollResponse, error)
	FetchResult(ctx context.Context, resultRef string) (*RawResult, error)
}
