// Package ephemeral is the fast, TTL'd view of active jobs (SPEC_FULL §4.D),
// backed by Redis hashes under the key `job:<id>`.
package ephemeral

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jeremy-wang-lin/ansible-runner-service/internal/model"
)

const keyPrefix = "job:"

// Store is the Redis-backed ephemeral job record.
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// New wraps an already-open Redis client.
func New(client redis.UniversalClient, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

func key(id string) string {
	return keyPrefix + id
}

// Save writes the whole record and (re)sets its TTL. Per SPEC_FULL §9's
// resolution of the TTL-refresh Open Question, every write — whole-record on
// create, subset on update — refreshes the TTL.
func (s *Store) Save(ctx context.Context, j *model.Job) error {
	fields, err := encode(j)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key(j.ID))
	pipe.HSet(ctx, key(j.ID), fields)
	pipe.Expire(ctx, key(j.ID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ephemeral: save failed: %w", err)
	}
	return nil
}

// UpdateFields overwrites a subset of fields on an existing record and
// refreshes its TTL.
func (s *Store) UpdateFields(ctx context.Context, id string, fields map[string]string) error {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key(id), values)
	pipe.Expire(ctx, key(id), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ephemeral: update failed: %w", err)
	}
	return nil
}

// Get reads the whole record; returns (nil, nil) if the key is absent.
func (s *Store) Get(ctx context.Context, id string) (*model.Job, error) {
	raw, err := s.client.HGetAll(ctx, key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("ephemeral: get failed: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return decode(raw)
}

// Delete removes the key. Used as the create-path rollback (SPEC_FULL §4.E).
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("ephemeral: delete failed: %w", err)
	}
	return nil
}

// Exists reports whether a job's ephemeral record is present, used by
// recovery (SPEC_FULL §4.J).
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("ephemeral: exists check failed: %w", err)
	}
	return n > 0, nil
}

// Ping is used by the readiness check (component J).
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// encode flattens a Job into the string/JSON-encoded field map described in
// SPEC_FULL §4.D, mirroring original_source/job_store.py's _save_job.
func encode(j *model.Job) (map[string]any, error) {
	fields := map[string]any{
		"id":            j.ID,
		"status":        string(j.Status),
		"playbook":      j.Playbook,
		"created_at":    j.CreatedAt.Format(time.RFC3339Nano),
		"source_type":   string(j.SourceType),
		"source_target": string(j.SourceTarget),
		"source_repo":   j.SourceRepo,
		"source_branch": j.SourceBranch,
	}

	if j.StartedAt != nil {
		fields["started_at"] = j.StartedAt.Format(time.RFC3339Nano)
	}
	if j.FinishedAt != nil {
		fields["finished_at"] = j.FinishedAt.Format(time.RFC3339Nano)
	}
	if j.Error != "" {
		fields["error"] = j.Error
	}

	if err := encodeJSONField(fields, "extra_vars", j.ExtraVars); err != nil {
		return nil, err
	}
	if err := encodeJSONField(fields, "inventory", j.Inventory); err != nil {
		return nil, err
	}
	if err := encodeJSONField(fields, "options", j.Options); err != nil {
		return nil, err
	}
	if err := encodeJSONField(fields, "result", j.Result); err != nil {
		return nil, err
	}

	return fields, nil
}

func encodeJSONField(fields map[string]any, name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ephemeral: failed to encode field %s: %w", name, err)
	}
	if string(b) == "null" {
		return nil
	}
	fields[name] = string(b)
	return nil
}

func decode(raw map[string]string) (*model.Job, error) {
	j := &model.Job{
		ID:           raw["id"],
		Status:       model.Status(raw["status"]),
		Playbook:     raw["playbook"],
		Error:        raw["error"],
		SourceType:   model.SourceType(raw["source_type"]),
		SourceTarget: model.SourceTarget(raw["source_target"]),
		SourceRepo:   raw["source_repo"],
		SourceBranch: raw["source_branch"],
	}

	var err error
	if j.CreatedAt, err = parseTime(raw["created_at"]); err != nil {
		return nil, err
	}
	if j.StartedAt, err = parseTimePtr(raw["started_at"]); err != nil {
		return nil, err
	}
	if j.FinishedAt, err = parseTimePtr(raw["finished_at"]); err != nil {
		return nil, err
	}

	if v, ok := raw["extra_vars"]; ok && v != "" {
		if err := json.Unmarshal([]byte(v), &j.ExtraVars); err != nil {
			return nil, fmt.Errorf("ephemeral: failed to decode extra_vars: %w", err)
		}
	}
	if v, ok := raw["inventory"]; ok && v != "" {
		if err := json.Unmarshal([]byte(v), &j.Inventory); err != nil {
			return nil, fmt.Errorf("ephemeral: failed to decode inventory: %w", err)
		}
	}
	if v, ok := raw["options"]; ok && v != "" {
		if err := json.Unmarshal([]byte(v), &j.Options); err != nil {
			return nil, fmt.Errorf("ephemeral: failed to decode options: %w", err)
		}
	}
	if v, ok := raw["result"]; ok && v != "" {
		if err := json.Unmarshal([]byte(v), &j.Result); err != nil {
			return nil, fmt.Errorf("ephemeral: failed to decode result: %w", err)
		}
	}

	return j, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("ephemeral: failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
