package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
	"transcribe-worker/config"
	"transcribe-worker/constant"
	"transcribe-worker/entities"
	"transcribe-worker/provider"
	"transcribe-worker/repository"
	"transcribe-worker/summary"
)

// PollResult is the outcome of one poll-and-reconcile step.
// PreviousStatus is nil only when the job was already terminal and the poll
// was short-circuited.
type PollResult struct {
	Job            *entities.Job
	PreviousStatus *constant.JobStatus
	Changed        bool
}

// Poller performs one poll-and-reconcile step for a single job.
type Poller interface {
	PollJob(ctx context.Context, job *entities.Job) (*PollResult, error)
}

type poller struct {
	repo       repository.Repository
	provider   provider.Provider
	summarizer summary.Generator
	cfg        *config.Config
}

// NewPoller builds the transition function with its collaborators. The
// summarizer may be nil; auto-summarization is then skipped entirely.
func NewPoller(repo repository.Repository, prov provider.Provider, summarizer summary.Generator, cfg *config.Config) Poller {
	return &poller{
		repo:       repo,
		provider:   prov,
		summarizer: summarizer,
		cfg:        cfg,
	}
}

// PollJob asks the provider for the current state of the job's remote task
// and reconciles the answer into durable storage. Terminal jobs return
// immediately without touching the provider or the store, which keeps
// repeated "poll now" calls cheap and idempotent. A provider error
// propagates to the caller with no store write.
func (p *poller) PollJob(ctx context.Context, job *entities.Job) (*PollResult, error) {
	if job.Status.Terminal() {
		return &PollResult{Job: job, PreviousStatus: nil, Changed: false}, nil
	}

	resp, err := p.provider.Poll(ctx, job.TaskId)
	if err != nil {
		return nil, err
	}

	previous := job.Status
	status := resp.Status

	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if resp.RequestId != "" {
		updates["request_id"] = resp.RequestId
	}
	if resp.SubmitTime != nil {
		updates["submit_time"] = resp.SubmitTime
	}
	if resp.EndTime != nil {
		updates["end_time"] = resp.EndTime
	}
	if resp.UsageSeconds != nil {
		updates["usage_seconds"] = resp.UsageSeconds
	}

	switch {
	case status == constant.JobStatusSucceeded && resp.ResultRef != "":
		updates["result_ref"] = resp.ResultRef
		// A provider-reported success is not trusted until the result has
		// been durably materialized.
		if err := p.materializeResult(ctx, job, resp.ResultRef); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).
				Str("job_id", job.ID.String()).
				Str("recording_id", job.RecordingId.String()).
				Msg("failed to materialize transcription result")
			status = constant.JobStatusFailed
			updates["status"] = status
			updates["error"] = fmt.Sprintf("result processing failed: %v", err)
			if updateErr := p.repo.UpdateRecordingStatus(ctx, job.RecordingId, constant.RecordingStatusFailed); updateErr != nil {
				zerolog.Ctx(ctx).Error().Err(updateErr).Msg("failed to update recording status")
			}
		} else {
			if updateErr := p.repo.UpdateRecordingStatus(ctx, job.RecordingId, constant.RecordingStatusCompleted); updateErr != nil {
				zerolog.Ctx(ctx).Error().Err(updateErr).Msg("failed to update recording status")
			}
		}
	case status == constant.JobStatusFailed:
		updates["error"] = resp.ErrorMessage
		if updateErr := p.repo.UpdateRecordingStatus(ctx, job.RecordingId, constant.RecordingStatusFailed); updateErr != nil {
			zerolog.Ctx(ctx).Error().Err(updateErr).Msg("failed to update recording status")
		}
	}

	updated, err := p.repo.UpdateJob(ctx, job.ID, updates)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// Row deleted between the provider poll and the re-read. Surface it
		// as an ordinary poll error; the scheduler drops the job on its next
		// cycle when the re-read comes back empty.
		return nil, fmt.Errorf("job %s vanished during update", job.ID)
	}

	return &PollResult{
		Job:            updated,
		PreviousStatus: &previous,
		Changed:        updated.Status != previous,
	}, nil
}

// materializeResult fetches the raw result document, replaces the recording's
// transcription, and kicks off the best-effort side effects (raw archival,
// auto-summarization). Any error on the fetch/parse/persist path fails the
// job even though the provider reported success.
func (p *poller) materializeResult(ctx context.Context, job *entities.Job, resultRef string) error {
	raw, err := p.provider.FetchResult(ctx, resultRef)
	if err != nil {
		return fmt.Errorf("fetch result: %w", err)
	}

	transcription, err := parseTranscription(job.RecordingId, raw)
	if err != nil {
		return err
	}

	if err := p.repo.DeleteTranscriptionByRecording(ctx, job.RecordingId); err != nil {
		return fmt.Errorf("delete previous transcription: %w", err)
	}
	if err := p.repo.CreateTranscription(ctx, transcription); err != nil {
		return fmt.Errorf("create transcription: %w", err)
	}

	log := zerolog.Ctx(ctx).With().
		Str("job_id", job.ID.String()).
		Str("recording_id", job.RecordingId.String()).
		Logger()

	go p.archiveRawResult(log, job.ID, raw)
	go p.autoSummarize(log, job.RecordingId, transcription.Text)

	return nil
}

// parseTranscription maps the provider's raw document to the durable shape:
// first channel only, sentence-level entries without word timing, dominant
// language by sentence-tag frequency with first-seen winning ties.
func parseTranscription(recordingId uuid.UUID, raw *provider.RawResult) (*entities.Transcription, error) {
	if raw == nil || len(raw.Channels) == 0 {
		return nil, fmt.Errorf("result document has no channels")
	}
	channel := raw.Channels[0]

	sentences := make([]entities.Sentence, 0, len(channel.Sentences))
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	for i, s := range channel.Sentences {
		sentences = append(sentences, entities.Sentence{
			BeginMs:  s.BeginMs,
			EndMs:    s.EndMs,
			Language: s.Language,
			Emotion:  s.Emotion,
			Text:     s.Text,
		})
		if s.Language == "" {
			continue
		}
		if _, ok := firstSeen[s.Language]; !ok {
			firstSeen[s.Language] = i
		}
		counts[s.Language]++
	}

	dominant := ""
	for language, count := range counts {
		if dominant == "" ||
			count > counts[dominant] ||
			(count == counts[dominant] && firstSeen[language] < firstSeen[dominant]) {
			dominant = language
		}
	}

	return &entities.Transcription{
		ID:          uuid.New(),
		RecordingId: recordingId,
		Text:        channel.Text,
		Language:    dominant,
		Sentences:   sentences,
		CreatedAt:   time.Now(),
	}, nil
}

// archiveRawResult stores the raw provider document in object storage under a
// key derived from the job id. Runs detached; failures are logged only.
func (p *poller) archiveRawResult(log zerolog.Logger, jobId uuid.UUID, raw *provider.RawResult) {
	if p.cfg == nil || p.cfg.Storage == nil {
		return
	}

	data, err := json.Marshal(raw)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode raw result for archiving")
		return
	}

	objectName := fmt.Sprintf("results/%s.json", jobId)
	_, err = p.cfg.Storage.PutObject(context.Background(), p.cfg.MinIOBucket, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		log.Error().Err(err).Str("object", objectName).Msg("failed to archive raw result")
		return
	}
	log.Debug().Str("object", objectName).Msg("archived raw result")
}

// autoSummarize generates and stores a summary when the owning user has
// enabled it. Runs detached; failures are logged only.
func (p *poller) autoSummarize(log zerolog.Logger, recordingId uuid.UUID, text string) {
	if p.summarizer == nil {
		return
	}
	ctx := context.Background()

	recording, err := p.repo.FindRecordingById(ctx, recordingId)
	if err != nil || recording == nil {
		log.Error().Err(err).Msg("failed to load recording for auto-summarize")
		return
	}
	settings, err := p.repo.GetUserSettings(ctx, recording.UserId)
	if err != nil {
		log.Error().Err(err).Msg("failed to load user settings for auto-summarize")
		return
	}
	if settings == nil || !settings.AutoSummarize {
		return
	}

	content, err := p.summarizer.Summarize(ctx, text)
	if err != nil {
		log.Error().Err(err).Msg("auto-summarize failed")
		return
	}

	err = p.repo.CreateSummary(ctx, &entities.Summary{
		ID:          uuid.New(),
		RecordingId: recordingId,
		Content:     content,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to store summary")
	}
}
