package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/enricher/internal/models"
)

// ErrJobNotFound is returned by JobStorage when no job has the given id
var ErrJobNotFound = errors.New("job not found")

// JobStorage persists job records so the registry survives a control process restart
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	ListJobs(ctx context.Context) ([]*models.Job, error)
	DeleteJob(ctx context.Context, jobID string) error
}
