package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"formpilot/pkg/scheduler"
)

// SaveJob inserts or replaces a job.
func (s *SQLiteStore) SaveJob(ctx context.Context, job scheduler.Job) error {
	cadence, err := json.Marshal(job.Cadence)
	if err != nil {
		return fmt.Errorf("failed to encode cadence for job %s: %w", job.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO jobs (id, user_id, name, cadence_json, start_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, job.UserID, job.Name, string(cadence),
		job.Start.UTC().Format(timeLayout), job.Created.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	return nil
}

// ListJobs returns every stored job in creation order. Rows that fail to decode are skipped.
func (s *SQLiteStore) ListJobs(ctx context.Context) ([]scheduler.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, cadence_json, start_at, created_at
		FROM jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []scheduler.Job
	for rows.Next() {
		var (
			job                  scheduler.Job
			cadence, start, made string
		)
		if err := rows.Scan(&job.ID, &job.UserID, &job.Name, &cadence, &start, &made); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		if err := json.Unmarshal([]byte(cadence), &job.Cadence); err != nil {
			s.logger.Warn("Skipping job %s with unreadable cadence: %v", job.ID, err)
			continue
		}
		if job.Start, err = time.Parse(timeLayout, start); err != nil {
			s.logger.Warn("Skipping job %s with unreadable start: %v", job.ID, err)
			continue
		}
		if job.Created, err = time.Parse(timeLayout, made); err != nil {
			s.logger.Warn("Skipping job %s with unreadable creation time: %v", job.ID, err)
			continue
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	scheduler.SortJobs(jobs)
	return jobs, nil
}
