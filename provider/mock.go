package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"transcribe-worker/constant"
)

// Mock is a deterministic in-memory Provider. A submitted task reports
// PENDING on its first poll, RUNNING until PollsUntilDone polls have been
// made, then SUCCEEDED (or FAILED when FailMessage is set). Useful for local
// development without provider credentials as well as for tests.
type Mock struct {
	// PollsUntilDone is how many polls a task needs before going terminal.
	PollsUntilDone int
	// FailMessage, when non-empty, makes every task end FAILED with this
	// message instead of SUCCEEDED.
	FailMessage string
	// Result is returned by FetchResult. Nil falls back to a small canned
	// document.
	Result *RawResult

	mu    sync.Mutex
	polls map[string]int
}

func (m *Mock) Submit(ctx context.Context, audioURL string) (*SubmitResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.polls == nil {
		m.polls = make(map[string]int)
	}
	taskId := "mock-task-" + uuid.NewString()
	m.polls[taskId] = 0
	return &SubmitResponse{
		RequestId: "mock-req-" + uuid.NewString(),
		TaskId:    taskId,
		Status:    constant.JobStatusPending,
	}, nil
}

func (m *Mock) Poll(ctx context.Context, taskId string) (*PollResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.polls == nil {
		m.polls = make(map[string]int)
	}
	m.polls[taskId]++
	count := m.polls[taskId]

	threshold := m.PollsUntilDone
	if threshold <= 0 {
		threshold = 1
	}

	resp := &PollResponse{RequestId: "mock-req-" + taskId}
	switch {
	case count < threshold:
		resp.Status = constant.JobStatusRunning
	case m.FailMessage != "":
		resp.Status = constant.JobStatusFailed
		resp.ErrorMessage = m.FailMessage
	default:
		now := time.Now()
		submitted := now.Add(-time.Minute)
		usage := 60
		resp.Status = constant.JobStatusSucceeded
		resp.SubmitTime = &submitted
		resp.EndTime = &now
		resp.UsageSeconds = &usage
		resp.ResultRef = fmt.Sprintf("mock://results/%s", taskId)
	}
	return resp, nil
}

func (m *Mock) FetchResult(ctx context.Context, resultRef string) (*RawResult, error) {
	if m.Result != nil {
		return m.Result, nil
	}
	return &RawResult{
		Channels: []RawChannel{
			{
				ChannelId: 0,
				Text:      "hello world",
				Sentences: []RawSentence{
					{BeginMs: 0, EndMs: 1200, Language: "en", Emotion: "neutral", Text: "hello world"},
				},
			},
		},
	}, nil
}
