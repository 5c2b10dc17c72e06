// Package api is the Request Intake HTTP surface (SPEC_FULL §4.I), a
// go-chi/chi router adapted from the teacher's handler conventions but with
// chi's own middleware subpackage in place of the forge framework's
// internal.Context/internal.Middleware layer, which this service does not
// carry forward (see DESIGN.md).
package api

import (
	"time"

	"github.com/jeremy-wang-lin/ansible-runner-service/internal/model"
)

// SubmitRequest is the decoded body of POST /api/v1/jobs.
type SubmitRequest struct {
	Source    *model.Source     `json:"source"`
	ExtraVars map[string]any    `json:"extra_vars,omitempty"`
	Inventory *model.Inventory  `json:"inventory,omitempty"`
	Options   *model.Options    `json:"options,omitempty"`
	// Playbook is accepted as a top-level shorthand for the common
	// local/playbook case, mirroring original_source's flat request shape.
	Playbook string `json:"playbook,omitempty"`
}

// SubmitAsyncResponse is returned for a successfully enqueued job (202).
type SubmitAsyncResponse struct {
	JobID     string    `json:"job_id"`
	Status    model.Status `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// SubmitSyncResponse is returned for a synchronously executed job (200).
type SubmitSyncResponse struct {
	Status model.Status   `json:"status"`
	RC     int            `json:"rc"`
	Stdout string         `json:"stdout"`
	Stats  map[string]any `json:"stats,omitempty"`
}

// JobDetail is the full representation returned by GET /api/v1/jobs/{id}.
type JobDetail struct {
	ID           string           `json:"id"`
	Status       model.Status     `json:"status"`
	Playbook     string           `json:"playbook"`
	ExtraVars    map[string]any   `json:"extra_vars,omitempty"`
	Inventory    *model.Inventory `json:"inventory,omitempty"`
	Options      *model.Options   `json:"options,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	FinishedAt   *time.Time       `json:"finished_at,omitempty"`
	Result       *model.Result    `json:"result,omitempty"`
	Error        string           `json:"error,omitempty"`
	SourceType   model.SourceType `json:"source_type"`
	SourceTarget model.SourceTarget `json:"source_target"`
}

// JobListResponse is returned by GET /api/v1/jobs.
type JobListResponse struct {
	Jobs   []JobDetail `json:"jobs"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// ErrorResponse is the uniform error body for all non-2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func toJobDetail(j *model.Job) JobDetail {
	return JobDetail{
		ID:           j.ID,
		Status:       j.Status,
		Playbook:     j.Playbook,
		ExtraVars:    j.ExtraVars,
		Inventory:    j.Inventory,
		Options:      j.Options,
		CreatedAt:    j.CreatedAt,
		StartedAt:    j.StartedAt,
		FinishedAt:   j.FinishedAt,
		Result:       j.Result,
		Error:        j.Error,
		SourceType:   j.SourceType,
		SourceTarget: j.SourceTarget,
	}
}
