package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"transcribe-worker/constant"
	"transcribe-worker/entities"
)

// Repository is the persistence boundary for the transcription engine. The
// database is the single source of truth for job state; the in-memory sets
// kept by the job manager are caches only.
type Repository interface {
	Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error
	GetDB() *gorm.DB

	FindActiveJobs(ctx context.Context) ([]*entities.Job, error)
	FindJobById(ctx context.Context, id uuid.UUID) (*entities.Job, error)
	CreateJob(ctx context.Context, job *entities.Job) error
	UpdateJob(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*entities.Job, error)

	FindRecordingById(ctx context.Context, id uuid.UUID) (*entities.Recording, error)
	UpdateRecordingStatus(ctx context.Context, id uuid.UUID, status constant.RecordingStatus) error

	DeleteTranscriptionByRecording(ctx context.Context, recordingId uuid.UUID) error
	CreateTranscription(ctx context.Context, transcription *entities.Transcription) error

	GetUserSettings(ctx context.Context, userId uuid.UUID) (*entities.UserSettings, error)
	CreateSummary(ctx context.Context, summary *entities.Summary) error
}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *sql.DB) Repository {
	gormDB, _ := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		},
	)
	return &repo{
		db: gormDB,
	}
}

func (r *repo) GetDB() *gorm.DB {
	return r.db
}

func (r *repo) Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error {
	return r.GetDB().Transaction(func(tx *gorm.DB) error {
		return callback(ctx)
	}, opts...)
}

// FindActiveJobs returns every non-terminal job, used for recovery after a
// restart mid-job.
func (r *repo) FindActiveJobs(ctx context.Context) ([]*entities.Job, error) {
	var jobs []*entities.Job
	err := r.GetDB().WithContext(ctx).
		Where("status IN ?", []constant.JobStatus{constant.JobStatusPending, constant.JobStatusRunning}).
		Order("created_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// FindJobById returns (nil, nil) when the job does not exist, so callers can
// tell a vanished job from a storage failure.
func (r *repo) FindJobById(ctx context.Context, id uuid.UUID) (*entities.Job, error) {
	job := &entities.Job{}
	err := r.GetDB().WithContext(ctx).First(job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *repo) CreateJob(ctx context.Context, job *entities.Job) error {
	return r.GetDB().WithContext(ctx).Create(job).Error
}

func (r *repo) UpdateJob(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*entities.Job, error) {
	err := r.GetDB().WithContext(ctx).Model(&entities.Job{}).Where("id = ?", id).Updates(fields).Error
	if err != nil {
		return nil, err
	}
	return r.FindJobById(ctx, id)
}

func (r *repo) FindRecordingById(ctx context.Context, id uuid.UUID) (*entities.Recording, error) {
	recording := &entities.Recording{}
	err := r.GetDB().WithContext(ctx).First(recording, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return recording, nil
}

func (r *repo) UpdateRecordingStatus(ctx context.Context, id uuid.UUID, status constant.RecordingStatus) error {
	return r.GetDB().WithContext(ctx).Model(&entities.Recording{}).Where("id = ?", id).Update("status", status).Error
}

func (r *repo) DeleteTranscriptionByRecording(ctx context.Context, recordingId uuid.UUID) error {
	return r.GetDB().WithContext(ctx).Where("recording_id = ?", recordingId).Delete(&entities.Transcription{}).Error
}

func (r *repo) CreateTranscription(ctx context.Context, transcription *entities.Transcription) error {
	return r.GetDB().WithContext(ctx).Create(transcription).Error
}

func (r *repo) GetUserSettings(ctx context.Context, userId uuid.UUID) (*entities.UserSettings, error) {
	settings := &entities.UserSettings{}
	err := r.GetDB().WithContext(ctx).First(settings, "user_id = ?", userId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return settings, nil
}

func (r *repo) CreateSummary(ctx context.Context, summary *entities.Summary) error {
	return r.GetDB().WithContext(ctx).Create(summary).Error
}
