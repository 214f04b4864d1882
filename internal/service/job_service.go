package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maheshrc27/clipcast/internal/idempotency"
	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/repository"
	"github.com/maheshrc27/clipcast/internal/transfer"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var ErrInvalidJob = errors.New("invalid job")

type JobService interface {
	Enqueue(ctx context.Context, jc *transfer.JobCreation) (*models.PublishJob, error)
	List(ctx context.Context, platform, status string, limit int) ([]*models.PublishJob, error)
	Get(ctx context.Context, id string) (*models.PublishJob, error)
}

type jobService struct {
	jobs repository.JobRepository
	now  func() time.Time
}

func NewJobService(jobs repository.JobRepository) JobService {
	return &jobService{jobs: jobs, now: time.Now}
}

// Enqueue creates a pending job directly. Unlike the selector it does not
// consult the dedup window, so content can be rescheduled on purpose.
func (s *jobService) Enqueue(ctx context.Context, jc *transfer.JobCreation) (*models.PublishJob, error) {
	platform := strings.ToLower(strings.TrimSpace(jc.Platform))
	if !models.IsKnownPlatform(platform) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJob, ErrUnknownPlatform)
	}
	if strings.TrimSpace(jc.ContentID) == "" || strings.TrimSpace(jc.VideoRef) == "" {
		return nil, fmt.Errorf("%w: content_id and video_ref are required", ErrInvalidJob)
	}

	scheduledAt := s.now().Truncate(time.Minute)
	if jc.ScheduledAt != "" {
		t, err := time.Parse(time.RFC3339, jc.ScheduledAt)
		if err != nil {
			return nil, fmt.Errorf("%w: scheduled_at: %v", ErrInvalidJob, err)
		}
		scheduledAt = t
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("job id: %w", err)
	}
	job := &models.PublishJob{
		ID:           id,
		Platform:     platform,
		ContentID:    jc.ContentID,
		ContentHash:  idempotency.ContentHash(jc.ContentID),
		VideoRef:     jc.VideoRef,
		ThumbnailURL: jc.ThumbnailURL,
		Caption:      jc.Caption,
		Title:        jc.Title,
		Description:  jc.Description,
		AudioKey:     jc.AudioKey,
		DurationSec:  jc.DurationSec,
		ScheduledAt:  scheduledAt,
		Status:       models.JobStatusPending,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *jobService) List(ctx context.Context, platform, status string, limit int) ([]*models.PublishJob, error) {
	if status == "" {
		status = models.JobStatusPending
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	jobs, err := s.jobs.ListByStatus(ctx, platform, status, limit)
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []*models.PublishJob{}
	}
	return jobs, nil
}

func (s *jobService) Get(ctx context.Context, id string) (*models.PublishJob, error) {
	return s.jobs.GetByID(ctx, id)
}
