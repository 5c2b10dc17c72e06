// Package durable is the relational system of record for jobs (SPEC_FULL
// §4.C), backed by PostgreSQL through the pooled driver and migration
// runner already established in pkg/db.
package durable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jeremy-wang-lin/ansible-runner-service/internal/model"
)

var ErrNotFound = errors.New("durable: job not found")

// Store is the durable jobs table.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-open, already-migrated pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts a new job row. Per SPEC_FULL §4.E this is called after the
// ephemeral write, and a failure here must trigger the caller's rollback.
func (s *Store) Create(ctx context.Context, j *model.Job) error {
	extraVars, err := marshalNullable(j.ExtraVars)
	if err != nil {
		return err
	}
	inventory, err := marshalNullable(j.Inventory)
	if err != nil {
		return err
	}
	options, err := marshalNullable(j.Options)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (id, status, playbook, extra_vars, inventory, options, created_at,
			source_type, source_target, source_repo, source_branch)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, j.ID, j.Status, j.Playbook, extraVars, inventory, options, j.CreatedAt,
		j.SourceType, j.SourceTarget, nullableString(j.SourceRepo), nullableString(j.SourceBranch))
	if err != nil {
		return fmt.Errorf("durable: create failed: %w", err)
	}
	return nil
}

// StatusUpdate is the partial update applied by UpdateStatus.
type StatusUpdate struct {
	Status     model.Status
	StartedAt  *time.Time
	FinishedAt *time.Time
	Result     *model.Result
	Error      string
}

// UpdateStatus applies a partial update and reports whether the row existed.
func (s *Store) UpdateStatus(ctx context.Context, id string, u StatusUpdate) (bool, error) {
	var rc *int
	var stdout, errText *string
	var stats []byte

	if u.Result != nil {
		v := u.Result.RC
		rc = &v
		stdout = &u.Result.Stdout
		if len(u.Result.Stats) > 0 {
			b, err := json.Marshal(u.Result.Stats)
			if err != nil {
				return false, fmt.Errorf("durable: failed to marshal result stats: %w", err)
			}
			stats = b
		}
	}
	if u.Error != "" {
		errText = &u.Error
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
			status = $2,
			started_at = COALESCE($3, started_at),
			finished_at = COALESCE($4, finished_at),
			result_rc = COALESCE($5, result_rc),
			result_stdout = COALESCE($6, result_stdout),
			result_stats = COALESCE($7, result_stats),
			error = COALESCE($8, error)
		WHERE id = $1
	`, id, u.Status, u.StartedAt, u.FinishedAt, rc, stdout, stats, errText)
	if err != nil {
		return false, fmt.Errorf("durable: update_status failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get looks up a job by id, returning ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, id string) (*model.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, status, playbook, extra_vars, inventory, options, created_at, started_at,
			finished_at, result_rc, result_stdout, result_stats, error,
			source_type, source_target, source_repo, source_branch
		FROM jobs WHERE id = $1
	`, id)

	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("durable: get failed: %w", err)
	}
	return j, nil
}

// List returns a page of jobs filtered by status (empty = all), ordered by
// created_at DESC, plus the total count of the filtered set before paging.
func (s *Store) List(ctx context.Context, status model.Status, limit, offset int) ([]*model.Job, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM jobs WHERE ($1 = '' OR status = $1)
	`, string(status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("durable: count failed: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, status, playbook, extra_vars, inventory, options, created_at, started_at,
			finished_at, result_rc, result_stdout, result_stats, error,
			source_type, source_target, source_repo, source_branch
		FROM jobs WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, string(status), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("durable: list failed: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("durable: list scan failed: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, total, rows.Err()
}

// ListStaleRunning returns running jobs whose started_at predates threshold,
// feeding the startup and recurring recovery sweeps (SPEC_FULL §4.J).
func (s *Store) ListStaleRunning(ctx context.Context, olderThan time.Duration) ([]*model.Job, error) {
	cutoff := time.Now().Add(-olderThan)
	rows, err := s.pool.Query(ctx, `
		SELECT id, status, playbook, extra_vars, inventory, options, created_at, started_at,
			finished_at, result_rc, result_stdout, result_stats, error,
			source_type, source_target, source_repo, source_branch
		FROM jobs WHERE status = $1 AND started_at < $2
	`, model.StatusRunning, cutoff)
	if err != nil {
		return nil, fmt.Errorf("durable: list_stale_running failed: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("durable: list_stale_running scan failed: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Ping is used by the readiness check (component J).
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		j                        model.Job
		extraVars, inventory     []byte
		options, stats           []byte
		resultRC                 *int
		resultStdout             *string
		errText                  *string
		sourceRepo, sourceBranch *string
	)

	if err := row.Scan(
		&j.ID, &j.Status, &j.Playbook, &extraVars, &inventory, &options, &j.CreatedAt, &j.StartedAt,
		&j.FinishedAt, &resultRC, &resultStdout, &stats, &errText,
		&j.SourceType, &j.SourceTarget, &sourceRepo, &sourceBranch,
	); err != nil {
		return nil, err
	}

	if len(extraVars) > 0 {
		if err := json.Unmarshal(extraVars, &j.ExtraVars); err != nil {
			return nil, fmt.Errorf("durable: failed to decode extra_vars: %w", err)
		}
	}
	if len(inventory) > 0 {
		if err := json.Unmarshal(inventory, &j.Inventory); err != nil {
			return nil, fmt.Errorf("durable: failed to decode inventory: %w", err)
		}
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &j.Options); err != nil {
			return nil, fmt.Errorf("durable: failed to decode options: %w", err)
		}
	}

	if resultRC != nil {
		j.Result = &model.Result{RC: *resultRC}
		if resultStdout != nil {
			j.Result.Stdout = *resultStdout
		}
		if len(stats) > 0 {
			if err := json.Unmarshal(stats, &j.Result.Stats); err != nil {
				return nil, fmt.Errorf("durable: failed to decode result_stats: %w", err)
			}
		}
	}
	if errText != nil {
		j.Error = *errText
	}
	if sourceRepo != nil {
		j.SourceRepo = *sourceRepo
	}
	if sourceBranch != nil {
		j.SourceBranch = *sourceBranch
	}

	return &j, nil
}

func marshalNullable(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("durable: failed to marshal field: %w", err)
	}
	if string(b) == "null" {
		return nil, nil
	}
	return b, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
