// Package status aggregates queue state with persisted media records into
// the view the API serves: a job plus whatever the pipeline has produced for
// its url so far.
package status

import (
	"context"
	"fmt"
	"sort"

	"scribe/internal/media"
	"scribe/internal/queue"
	"scribe/internal/services"
)

// JobStatus pairs a queued job with the projection of its video record. Video
// is nil until the pipeline has persisted one.
type JobStatus struct {
	Job   *queue.Job
	Video *media.VideoProjection
}

// Aggregator reads across the queue and media stores.
type Aggregator struct {
	jobs  *queue.Store
	media *media.Store
}

// NewAggregator wires an Aggregator over the two stores.
func NewAggregator(jobs *queue.Store, mediaStore *media.Store) *Aggregator {
	return &Aggregator{jobs: jobs, media: mediaStore}
}

// GetJobStatus returns the merged view for one job.
func (a *Aggregator) GetJobStatus(ctx context.Context, id int64) (*JobStatus, error) {
	job, err := a.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load job %d: %w", id, err)
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "status", "get job status", fmt.Sprintf("job %d", id), nil)
	}

	projection, err := a.media.ProjectionByURL(ctx, job.Payload.URL)
	if err != nil {
		return nil, fmt.Errorf("load video projection: %w", err)
	}
	return &JobStatus{Job: job, Video: projection}, nil
}

// GetAllJobs returns the merged view of every job across all lifecycle
// buckets, newest first. A non-empty userID restricts the listing to jobs
// submitted by that user.
func (a *Aggregator) GetAllJobs(ctx context.Context, userID string) ([]*JobStatus, error) {
	jobs, err := a.jobs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	statuses := make([]*JobStatus, 0, len(jobs))
	for _, job := range jobs {
		if userID != "" && job.Payload.UserID != userID {
			continue
		}
		projection, err := a.media.ProjectionByURL(ctx, job.Payload.URL)
		if err != nil {
			return nil, fmt.Errorf("load video projection for job %d: %w", job.ID, err)
		}
		statuses = append(statuses, &JobStatus{Job: job, Video: projection})
	}

	sort.SliceStable(statuses, func(i, j int) bool {
		return statuses[i].Job.CreatedAt.After(statuses[j].Job.CreatedAt)
	})
	return statuses, nil
}

// QueueHealth reports aggregate job counts per lifecycle bucket.
func (a *Aggregator) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return a.jobs.Health(ctx)
}
