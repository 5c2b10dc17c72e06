// Package queue is the FIFO work-queue adapter (SPEC_FULL §4.F), backed by
// the same Redis product as the ephemeral store. Grounded in
// original_source/queue.py's decision to pass the payload as an explicit
// nested mapping rather than flattened kwargs, to avoid collision with the
// underlying queue library's own reserved job-tracking key.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jeremy-wang-lin/ansible-runner-service/internal/model"
)

const listKey = "queue:jobs"

// envelope is the wire format pushed onto the Redis list. Its own
// bookkeeping id is a field distinct from payload.JobID, so the adapter
// never needs to rename or shadow the caller's job_id field to avoid a
// collision — there is none, by construction.
type envelope struct {
	EnvelopeID string           `json:"envelope_id"`
	Payload    model.Descriptor `json:"payload"`
}

// Adapter is the Redis-backed FIFO queue.
type Adapter struct {
	client redis.UniversalClient
}

// New wraps an already-open Redis client.
func New(client redis.UniversalClient) *Adapter {
	return &Adapter{client: client}
}

// Enqueue pushes a job descriptor onto the tail of the queue.
func (a *Adapter) Enqueue(ctx context.Context, d model.Descriptor) error {
	env := envelope{EnvelopeID: d.JobID, Payload: d}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("queue: failed to encode descriptor: %w", err)
	}
	if err := a.client.LPush(ctx, listKey, b).Err(); err != nil {
		return fmt.Errorf("queue: enqueue failed: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next descriptor, FIFO order (items
// are pushed on the left and popped from the right). Returns (nil, nil) on
// timeout so callers can loop and check for shutdown.
func (a *Adapter) Dequeue(ctx context.Context, timeout time.Duration) (*model.Descriptor, error) {
	res, err := a.client.BRPop(ctx, timeout, listKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: dequeue failed: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("queue: unexpected BRPOP reply shape: %v", res)
	}

	var env envelope
	if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
		return nil, fmt.Errorf("queue: failed to decode descriptor: %w", err)
	}
	return &env.Payload, nil
}
