package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"transcribe-worker/config"
	"transcribe-worker/constant"
	"transcribe-worker/dto"
	"transcribe-worker/entities"
	"transcribe-worker/provider"
	"transcribe-worker/repository"
)

var ErrNonRetryable = errors.New("non-retryable error")

const audioURLExpiry = time.Hour

// Service handles transcription requests arriving on the queue: it presigns
// the recording's audio object, submits it to the speech provider, persists
// the new job and hands it to the job manager for polling.
type Service interface {
	Process(ctx context.Context, message dto.TranscribeMessage) error
}

// Tracker is the slice of the job manager the intake path needs.
type Tracker interface {
	Track(job *entities.Job)
}

// AudioSigner issues a presigned read URL for an audio object. Satisfied by
// *minio.Client.
type AudioSigner interface {
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

type service struct {
	repo     repository.Repository
	provider provider.Provider
	tracker  Tracker
	signer   AudioSigner
	bucket   string
}

func NewService(repo repository.Repository, prov provider.Provider, tracker Tracker, signer AudioSigner, cfg *config.Config) Service {
	return &service{
		repo:     repo,
		provider: prov,
		tracker:  tracker,
		signer:   signer,
		bucket:   cfg.MinIOBucket,
	}
}

func (s *service) Process(ctx context.Context, message dto.TranscribeMessage) error {
	zerolog.Ctx(ctx).Info().Str("recording_id", message.RecordingId.String()).Msg("processing transcription request")

	recording, err := s.repo.FindRecordingById(ctx, message.RecordingId)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to find recording")
		return err
	}
	if recording == nil {
		zerolog.Ctx(ctx).Warn().Str("recording_id", message.RecordingId.String()).Msg("recording not found, dropping request")
		return errors.Join(ErrNonRetryable, fmt.Errorf("recording %s not found", message.RecordingId))
	}

	audioURL, err := s.signer.PresignedGetObject(ctx, s.bucket, recording.OssKey, audioURLExpiry, nil)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to presign audio object")
		return err
	}

	resp, err := s.provider.Submit(ctx, audioURL.String())
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to submit task to provider")
		return err
	}

	now := time.Now()
	job := &entities.Job{
		ID:          uuid.New(),
		RecordingId: recording.ID,
		TaskId:      resp.TaskId,
		Status:      constant.JobStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if resp.RequestId != "" {
		requestId := resp.RequestId
		job.RequestId = &requestId
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to persist job")
		return err
	}
	if err := s.repo.UpdateRecordingStatus(ctx, recording.ID, constant.RecordingStatusTranscribing); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to update recording status")
	}

	s.tracker.Track(job)

	zerolog.Ctx(ctx).Info().
		Str("job_id", job.ID.String()).
		Str("task_id", job.TaskId).
		Msg("transcription job submitted")
	return nil
}
