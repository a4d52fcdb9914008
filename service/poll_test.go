package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"transcribe-worker/config"
	"transcribe-worker/constant"
	"transcribe-worker/entities"
	"transcribe-worker/provider"
)

type fakeRepo struct {
	mu sync.Mutex

	jobs            map[uuid.UUID]*entities.Job
	activeJobs      []*entities.Job
	findActiveCalls int
	updateCalls     int
	createdJobs     []*entities.Job

	recordings      map[uuid.UUID]*entities.Recording
	recordingStatus map[uuid.UUID]constant.RecordingStatus

	deletedTranscriptions []uuid.UUID
	createdTranscriptions []*entities.Transcription

	settings  map[uuid.UUID]*entities.UserSettings
	summaries []*entities.Summary

	findJobErr error
	updateErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		jobs:            make(map[uuid.UUID]*entities.Job),
		recordings:      make(map[uuid.UUID]*entities.Recording),
		recordingStatus: make(map[uuid.UUID]constant.RecordingStatus),
		settings:        make(map[uuid.UUID]*entities.UserSettings),
	}
}

func (r *fakeRepo) GetDB() *gorm.DB {
	return nil
}

func (r *fakeRepo) Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error {
	return callback(ctx)
}

func (r *fakeRepo) FindActiveJobs(ctx context.Context) ([]*entities.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findActiveCalls++
	return r.activeJobs, nil
}

func (r *fakeRepo) FindJobById(ctx context.Context, id uuid.UUID) (*entities.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findJobErr != nil {
		return nil, r.findJobErr
	}
	job, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	copied := *job
	return &copied, nil
}

func (r *fakeRepo) CreateJob(ctx context.Context, job *entities.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *job
	r.jobs[job.ID] = &copied
	r.createdJobs = append(r.createdJobs, &copied)
	return nil
}

func (r *fakeRepo) UpdateJob(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*entities.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	r.updateCalls++
	job, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	if v, ok := fields["status"]; ok {
		job.Status = v.(constant.JobStatus)
	}
	if v, ok := fields["error"]; ok {
		msg := v.(string)
		job.Error = &msg
	}
	if v, ok := fields["request_id"]; ok {
		requestId := v.(string)
		job.RequestId = &requestId
	}
	if v, ok := fields["submit_time"]; ok {
		job.SubmitTime = v.(*time.Time)
	}
	if v, ok := fields["end_time"]; ok {
		job.EndTime = v.(*time.Time)
	}
	if v, ok := fields["usage_seconds"]; ok {
		job.UsageSeconds = v.(*int)
	}
	if v, ok := fields["result_ref"]; ok {
		ref := v.(string)
		job.ResultRef = &ref
	}
	if v, ok := fields["updated_at"]; ok {
		job.UpdatedAt = v.(time.Time)
	}
	copied := *job
	return &copied, nil
}

func (r *fakeRepo) FindRecordingById(ctx context.Context, id uuid.UUID) (*entities.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	recording, ok := r.recordings[id]
	if !ok {
		return nil, nil
	}
	copied := *recording
	return &copied, nil
}

func (r *fakeRepo) UpdateRecordingStatus(ctx context.Context, id uuid.UUID, status constant.RecordingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordingStatus[id] = status
	return nil
}

func (r *fakeRepo) DeleteTranscriptionByRecording(ctx context.Context, recordingId uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletedTranscriptions = append(r.deletedTranscriptions, recordingId)
	return nil
}

func (r *fakeRepo) CreateTranscription(ctx context.Context, transcription *entities.Transcription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createdTranscriptions = append(r.createdTranscriptions, transcription)
	return nil
}

func (r *fakeRepo) GetUserSettings(ctx context.Context, userId uuid.UUID) (*entities.UserSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	settings, ok := r.settings[userId]
	if !ok {
		return nil, nil
	}
	return settings, nil
}

func (r *fakeRepo) CreateSummary(ctx context.Context, summary *entities.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, summary)
	return nil
}

type fakeProvider struct {
	mu sync.Mutex

	pollResp *provider.PollResponse
	pollErr  error

	fetchResult *provider.RawResult
	fetchErr    error

	pollCalls  int
	fetchCalls int
}

func (p *fakeProvider) Submit(ctx context.Context, audioURL string) (*provider.SubmitResponse, error) {
	return &provider.SubmitResponse{
		RequestId: "req-1",
		TaskId:    "task-1",
		Status:    constant.JobStatusPending,
	}, nil
}

func (p *fakeProvider) Poll(ctx context.Context, taskId string) (*provider.PollResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pollCalls++
	if p.pollErr != nil {
		return nil, p.pollErr
	}
	return p.pollResp, nil
}

func (p *fakeProvider) FetchResult(ctx context.Context, resultRef string) (*provider.RawResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchCalls++
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	return p.fetchResult, nil
}

func pendingJob(recordingId uuid.UUID) *entities.Job {
	return &entities.Job{
		ID:          uuid.New(),
		RecordingId: recordingId,
		TaskId:      "task-1",
		Status:      constant.JobStatusPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

func newPollerForTest(repo *fakeRepo, prov *fakeProvider) Poller {
	return NewPoller(repo, prov, nil, &config.Config{})
}

func TestPollJobTerminalShortCircuit(t *testing.T) {
	for _, status := range []constant.JobStatus{constant.JobStatusSucceeded, constant.JobStatusFailed} {
		repo := newFakeRepo()
		prov := &fakeProvider{}
		job := pendingJob(uuid.New())
		job.Status = status

		result, err := newPollerForTest(repo, prov).PollJob(context.Background(), job)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", status, err)
		}
		if result.Changed {
			t.Errorf("%s: changed = true, want false", status)
		}
		if result.PreviousStatus != nil {
			t.Errorf("%s: previousStatus = %v, want nil", status, *result.PreviousStatus)
		}
		if prov.pollCalls != 0 {
			t.Errorf("%s: provider polled %d times, want 0", status, prov.pollCalls)
		}
		if repo.updateCalls != 0 {
			t.Errorf("%s: store written %d times, want 0", status, repo.updateCalls)
		}
	}
}

func TestPollJobRunningTransition(t *testing.T) {
	repo := newFakeRepo()
	prov := &fakeProvider{
		pollResp: &provider.PollResponse{
			RequestId: "req-1",
			Status:    constant.JobStatusRunning,
		},
	}
	job := pendingJob(uuid.New())
	repo.jobs[job.ID] = job

	poller := newPollerForTest(repo, prov)

	result, err := poller.PollJob(context.Background(), job)
	if err != nil {
		t.Fatalf("first poll: %v", err)
	}
	if !result.Changed {
		t.Error("first poll: changed = false, want true")
	}
	if result.PreviousStatus == nil || *result.PreviousStatus != constant.JobStatusPending {
		t.Errorf("first poll: previousStatus = %v, want PENDING", result.PreviousStatus)
	}
	if result.Job.Status != constant.JobStatusRunning {
		t.Errorf("first poll: status = %s, want RUNNING", result.Job.Status)
	}

	again, err := poller.PollJob(context.Background(), result.Job)
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if again.Changed {
		t.Error("second poll: changed = true, want false")
	}
	if again.PreviousStatus == nil || *again.PreviousStatus != constant.JobStatusRunning {
		t.Errorf("second poll: previousStatus = %v, want RUNNING", again.PreviousStatus)
	}
}

func TestPollJobSucceededMaterializesTranscription(t *testing.T) {
	recordingId := uuid.New()
	repo := newFakeRepo()
	now := time.Now()
	usage := 42
	prov := &fakeProvider{
		pollResp: &provider.PollResponse{
			RequestId:    "req-1",
			Status:       constant.JobStatusSucceeded,
			SubmitTime:   &now,
			EndTime:      &now,
			UsageSeconds: &usage,
			ResultRef:    "https://provider.example/results/task-1",
		},
		fetchResult: &provider.RawResult{
			Channels: []provider.RawChannel{
				{
					Text: "hello world again",
					Sentences: []provider.RawSentence{
						{BeginMs: 0, EndMs: 900, Language: "en", Emotion: "neutral", Text: "hello",
							Words: []provider.RawWord{{Text: "hello", BeginMs: 0, EndMs: 900}}},
						{BeginMs: 900, EndMs: 1800, Language: "en", Text: "world"},
						{BeginMs: 1800, EndMs: 2500, Language: "zh", Text: "again"},
					},
				},
				{Text: "second channel ignored"},
			},
		},
	}
	job := pendingJob(recordingId)
	job.Status = constant.JobStatusRunning
	repo.jobs[job.ID] = job

	result, err := newPollerForTest(repo, prov).PollJob(context.Background(), job)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}

	if result.Job.Status != constant.JobStatusSucceeded {
		t.Fatalf("status = %s, want SUCCEEDED", result.Job.Status)
	}
	if !result.Changed {
		t.Error("changed = false, want true")
	}
	if result.Job.UsageSeconds == nil || *result.Job.UsageSeconds != usage {
		t.Errorf("usageSeconds = %v, want %d", result.Job.UsageSeconds, usage)
	}
	if result.Job.ResultRef == nil || *result.Job.ResultRef != "https://provider.example/results/task-1" {
		t.Errorf("resultRef = %v", result.Job.ResultRef)
	}

	if len(repo.deletedTranscriptions) != 1 || repo.deletedTranscriptions[0] != recordingId {
		t.Fatalf("deletedTranscriptions = %v, want [%s]", repo.deletedTranscriptions, recordingId)
	}
	if len(repo.createdTranscriptions) != 1 {
		t.Fatalf("createdTranscriptions = %d, want 1", len(repo.createdTranscriptions))
	}
	transcription := repo.createdTranscriptions[0]
	if transcription.RecordingId != recordingId {
		t.Errorf("transcription recordingId = %s, want %s", transcription.RecordingId, recordingId)
	}
	if transcription.Text != "hello world again" {
		t.Errorf("transcription text = %q", transcription.Text)
	}
	if transcription.Language != "en" {
		t.Errorf("dominant language = %q, want en", transcription.Language)
	}
	if len(transcription.Sentences) != 3 {
		t.Errorf("sentences = %d, want 3", len(transcription.Sentences))
	}

	if repo.recordingStatus[recordingId] != constant.RecordingStatusCompleted {
		t.Errorf("recording status = %s, want completed", repo.recordingStatus[recordingId])
	}
}

func TestPollJobFetchFailureDowngradesToFailed(t *testing.T) {
	recordingId := uuid.New()
	repo := newFakeRepo()
	prov := &fakeProvider{
		pollResp: &provider.PollResponse{
			Status:    constant.JobStatusSucceeded,
			ResultRef: "https://provider.example/results/task-1",
		},
		fetchErr: errors.New("connection reset"),
	}
	job := pendingJob(recordingId)
	job.Status = constant.JobStatusRunning
	repo.jobs[job.ID] = job

	result, err := newPollerForTest(repo, prov).PollJob(context.Background(), job)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}

	if result.Job.Status != constant.JobStatusFailed {
		t.Fatalf("status = %s, want FAILED", result.Job.Status)
	}
	if result.Job.Error == nil {
		t.Fatal("job error is nil")
	}
	if !strings.HasPrefix(*result.Job.Error, "result processing failed:") {
		t.Errorf("error = %q, want result-processing prefix", *result.Job.Error)
	}
	if !strings.Contains(*result.Job.Error, "connection reset") {
		t.Errorf("error = %q, want underlying cause", *result.Job.Error)
	}
	if repo.recordingStatus[recordingId] != constant.RecordingStatusFailed {
		t.Errorf("recording status = %s, want failed", repo.recordingStatus[recordingId])
	}
	if len(repo.createdTranscriptions) != 0 {
		t.Errorf("createdTranscriptions = %d, want 0", len(repo.createdTranscriptions))
	}
}

func TestPollJobProviderReportedFailure(t *testing.T) {
	recordingId := uuid.New()
	repo := newFakeRepo()
	prov := &fakeProvider{
		pollResp: &provider.PollResponse{
			Status:       constant.JobStatusFailed,
			ErrorMessage: "audio format unsupported",
		},
	}
	job := pendingJob(recordingId)
	repo.jobs[job.ID] = job

	result, err := newPollerForTest(repo, prov).PollJob(context.Background(), job)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}

	if result.Job.Status != constant.JobStatusFailed {
		t.Fatalf("status = %s, want FAILED", result.Job.Status)
	}
	if result.Job.Error == nil || *result.Job.Error != "audio format unsupported" {
		t.Errorf("error = %v, want provider message verbatim", result.Job.Error)
	}
	if repo.recordingStatus[recordingId] != constant.RecordingStatusFailed {
		t.Errorf("recording status = %s, want failed", repo.recordingStatus[recordingId])
	}
}

func TestPollJobProviderErrorPropagates(t *testing.T) {
	repo := newFakeRepo()
	prov := &fakeProvider{pollErr: errors.New("dial tcp: timeout")}
	job := pendingJob(uuid.New())
	repo.jobs[job.ID] = job

	_, err := newPollerForTest(repo, prov).PollJob(context.Background(), job)
	if err == nil {
		t.Fatal("expected error from provider")
	}
	if repo.updateCalls != 0 {
		t.Errorf("store written %d times, want 0", repo.updateCalls)
	}
	if len(repo.recordingStatus) != 0 {
		t.Errorf("recording status touched: %v", repo.recordingStatus)
	}
}

func TestPollJobVanishedDuringUpdate(t *testing.T) {
	repo := newFakeRepo()
	prov := &fakeProvider{
		pollResp: &provider.PollResponse{
			Status: constant.JobStatusRunning,
		},
	}
	// The job row is never stored: it disappears between the provider poll
	// and the post-update re-read.
	job := pendingJob(uuid.New())

	result, err := newPollerForTest(repo, prov).PollJob(context.Background(), job)
	if err == nil {
		t.Fatal("expected error for a job row deleted mid-poll")
	}
	if result != nil {
		t.Errorf("result = %+v, want nil", result)
	}
	if !strings.Contains(err.Error(), job.ID.String()) {
		t.Errorf("error = %q, want it to name job %s", err, job.ID)
	}
}

func TestParseTranscriptionDominantLanguageTie(t *testing.T) {
	raw := &provider.RawResult{
		Channels: []provider.RawChannel{
			{
				Text: "mixed",
				Sentences: []provider.RawSentence{
					{Language: "en", Text: "a"},
					{Language: "zh", Text: "b"},
					{Language: "zh", Text: "c"},
					{Language: "en", Text: "d"},
				},
			},
		},
	}

	transcription, err := parseTranscription(uuid.New(), raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// en and zh both occur twice; en was seen first, so it wins the tie even
	// though zh briefly held the count lead mid-iteration.
	if transcription.Language != "en" {
		t.Errorf("dominant language = %q, want en", transcription.Language)
	}
}

func TestParseTranscriptionDominantLanguageMajority(t *testing.T) {
	raw := &provider.RawResult{
		Channels: []provider.RawChannel{
			{
				Text: "mostly zh",
				Sentences: []provider.RawSentence{
					{Language: "en", Text: "a"},
					{Language: "zh", Text: "b"},
					{Language: "zh", Text: "c"},
				},
			},
		},
	}

	transcription, err := parseTranscription(uuid.New(), raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if transcription.Language != "zh" {
		t.Errorf("dominant language = %q, want zh", transcription.Language)
	}
}

func TestParseTranscriptionRejectsEmptyResult(t *testing.T) {
	if _, err := parseTranscription(uuid.New(), &provider.RawResult{}); err == nil {
		t.Fatal("expected error for result without channels")
	}
	if _, err := parseTranscription(uuid.New(), nil); err == nil {
		t.Fatal("expected error for nil result")
	}
}
