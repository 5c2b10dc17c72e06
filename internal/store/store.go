// Package store composes the durable and ephemeral tiers into the single
// strict-consistency JobStore described in SPEC_FULL §4.E.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jeremy-wang-lin/ansible-runner-service/internal/model"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/store/durable"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/store/ephemeral"
)

// NewJob fields, passed to CreateJob.
type NewJob struct {
	Playbook     string
	ExtraVars    map[string]any
	Inventory    *model.Inventory
	Options      *model.Options
	SourceType   model.SourceType
	SourceTarget model.SourceTarget
	SourceRepo   string
	SourceBranch string
}

// JobStore is the central composite described in SPEC_FULL §4.E.
type JobStore struct {
	durable   *durable.Store
	ephemeral *ephemeral.Store
}

// New builds a JobStore over already-open tier clients.
func New(d *durable.Store, e *ephemeral.Store) *JobStore {
	return &JobStore{durable: d, ephemeral: e}
}

// CreateJob builds a fresh pending Job, writes ephemeral first, then
// durable, rolling back the ephemeral write if durable fails.
func (s *JobStore) CreateJob(ctx context.Context, fields NewJob) (*model.Job, error) {
	j := &model.Job{
		ID:           uuid.NewString(),
		Status:       model.StatusPending,
		Playbook:     fields.Playbook,
		ExtraVars:    fields.ExtraVars,
		Inventory:    fields.Inventory,
		Options:      fields.Options,
		CreatedAt:    time.Now().UTC(),
		SourceType:   fields.SourceType,
		SourceTarget: fields.SourceTarget,
		SourceRepo:   fields.SourceRepo,
		SourceBranch: fields.SourceBranch,
	}

	if err := s.ephemeral.Save(ctx, j); err != nil {
		return nil, fmt.Errorf("store: create_job ephemeral write failed: %w", err)
	}

	if err := s.durable.Create(ctx, j); err != nil {
		if delErr := s.ephemeral.Delete(ctx, j.ID); delErr != nil {
			return nil, errors.Join(fmt.Errorf("store: create_job durable write failed: %w", err),
				fmt.Errorf("store: rollback of ephemeral record also failed: %w", delErr))
		}
		return nil, fmt.Errorf("store: create_job durable write failed: %w", err)
	}

	return j, nil
}

// StatusUpdate mirrors durable.StatusUpdate for the two-tier surface.
type StatusUpdate = durable.StatusUpdate

// UpdateStatus writes durable first; ephemeral is updated only if durable
// succeeds, so ephemeral never shows a status durable cannot corroborate.
func (s *JobStore) UpdateStatus(ctx context.Context, id string, u StatusUpdate) error {
	found, err := s.durable.UpdateStatus(ctx, id, u)
	if err != nil {
		return fmt.Errorf("store: update_status durable write failed: %w", err)
	}
	if !found {
		return durable.ErrNotFound
	}

	fields := map[string]string{"status": string(u.Status)}
	if u.StartedAt != nil {
		fields["started_at"] = u.StartedAt.Format(time.RFC3339Nano)
	}
	if u.FinishedAt != nil {
		fields["finished_at"] = u.FinishedAt.Format(time.RFC3339Nano)
	}
	if u.Error != "" {
		fields["error"] = u.Error
	}
	if u.Result != nil {
		b, encErr := resultJSON(u.Result)
		if encErr != nil {
			return encErr
		}
		fields["result"] = b
	}

	if err := s.ephemeral.UpdateFields(ctx, id, fields); err != nil {
		// Durable already reflects the transition; the read-fallback path
		// recovers it once the ephemeral copy expires or is next refreshed.
		return fmt.Errorf("store: update_status ephemeral write failed (durable already updated): %w", err)
	}
	return nil
}

// GetJob reads ephemeral first, falling back to durable so terminal jobs
// remain visible after ephemeral TTL expiry.
func (s *JobStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	j, err := s.ephemeral.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("store: get_job ephemeral read failed: %w", err)
	}
	if j != nil {
		return j, nil
	}

	j, err = s.durable.Get(ctx, id)
	if errors.Is(err, durable.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get_job durable read failed: %w", err)
	}
	return j, nil
}

// List delegates straight to the durable tier — list endpoints are always
// snapshots of the system of record, per SPEC_FULL §5.
func (s *JobStore) List(ctx context.Context, status model.Status, limit, offset int) ([]*model.Job, int, error) {
	return s.durable.List(ctx, status, limit, offset)
}

// ListStaleRunning delegates to the durable tier for the recovery sweep.
func (s *JobStore) ListStaleRunning(ctx context.Context, olderThan time.Duration) ([]*model.Job, error) {
	return s.durable.ListStaleRunning(ctx, olderThan)
}

// EphemeralExists is used by recovery to test whether a stale-running job
// still has a live ephemeral record before declaring it abandoned.
func (s *JobStore) EphemeralExists(ctx context.Context, id string) (bool, error) {
	return s.ephemeral.Exists(ctx, id)
}

// PingDurable and PingEphemeral back the readiness check (component J).
func (s *JobStore) PingDurable(ctx context.Context) error   { return s.durable.Ping(ctx) }
func (s *JobStore) PingEphemeral(ctx context.Context) error { return s.ephemeral.Ping(ctx) }

func resultJSON(r *model.Result) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("store: failed to encode result: %w", err)
	}
	return string(b), nil
}
