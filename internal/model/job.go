// Package model holds the domain types shared across the job orchestration
// service: the Job record, its source descriptor union, and the execution
// options accepted from a client.
package model

import "time"

// Status is the lifecycle state of a Job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
)

// SourceType discriminates where the playbook/role content comes from.
type SourceType string

const (
	SourceLocal SourceType = "local"
	SourceGit   SourceType = "git"
)

// SourceTarget discriminates whether the content is a playbook or a role.
type SourceTarget string

const (
	TargetPlaybook SourceTarget = "playbook"
	TargetRole     SourceTarget = "role"
)

// Source is the tagged union described in SPEC_FULL §3 SourceDescriptor.
// Exactly the fields relevant to (Type, Target) are populated; Request
// Intake rejects any other combination at the boundary.
type Source struct {
	Type       SourceType   `json:"type"`
	Target     SourceTarget `json:"target"`
	Path       string       `json:"path,omitempty"`       // local/playbook, git/playbook
	Collection string       `json:"collection,omitempty"` // local/role
	Role       string       `json:"role,omitempty"`       // local/role, git/role
	RoleVars   map[string]any `json:"role_vars,omitempty"` // local/role, git/role
	Repo       string       `json:"repo,omitempty"`       // git/*
	Branch     string       `json:"branch,omitempty"`     // git/*
}

// InventoryType discriminates the inventory variants accepted on a job.
type InventoryType string

const (
	InventoryLiteral InventoryType = "literal"
	InventoryInline  InventoryType = "inline"
	InventoryGit     InventoryType = "git"
)

// Inventory is the tagged union for the `inventory` field: a literal string,
// an inline host/group mapping, or a reference to a Git-hosted inventory
// file. Git-inventory is accepted by the schema; Request Intake rejects it
// for sync submissions, and the worker fails an async job that carries one —
// see SPEC_FULL §9 Open Questions.
type Inventory struct {
	Type    InventoryType  `json:"type"`
	Literal string         `json:"literal,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Repo    string         `json:"repo,omitempty"`
	Branch  string         `json:"branch,omitempty"`
	Path    string         `json:"path,omitempty"`
}

// Options is the execution-modifier mapping accepted under the `options` key.
type Options struct {
	Tags               []string `json:"tags,omitempty"`
	SkipTags           []string `json:"skip_tags,omitempty"`
	Limit              string   `json:"limit,omitempty"`
	Verbosity          int      `json:"verbosity,omitempty"`
	Check              bool     `json:"check,omitempty"`
	Diff               bool     `json:"diff,omitempty"`
	VaultPasswordFile  string   `json:"vault_password_file,omitempty"`
}

// Result is the terminal outcome of a Playbook Runner invocation.
type Result struct {
	RC     int            `json:"rc"`
	Stdout string         `json:"stdout"`
	Stats  map[string]any `json:"stats,omitempty"`
}

// Job is the unit of work tracked by the two-tier store, per SPEC_FULL §3.
type Job struct {
	ID         string     `json:"id"`
	Status     Status     `json:"status"`
	Playbook   string     `json:"playbook"`
	ExtraVars  map[string]any `json:"extra_vars,omitempty"`
	Inventory  *Inventory `json:"inventory,omitempty"`
	Options    *Options   `json:"options,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Result     *Result    `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`

	SourceType   SourceType   `json:"source_type"`
	SourceTarget SourceTarget `json:"source_target"`
	SourceRepo   string       `json:"source_repo,omitempty"`
	SourceBranch string       `json:"source_branch,omitempty"`
}

// IsTerminal reports whether the job has reached successful or failed.
func (j *Job) IsTerminal() bool {
	return j.Status == StatusSuccessful || j.Status == StatusFailed
}

// Descriptor is the payload carried on the work queue, per SPEC_FULL §4.F.
// Its JSON field names are the contract the worker depends on; renaming any
// of them breaks the queue round-trip property in SPEC_FULL §8.
type Descriptor struct {
	JobID        string         `json:"job_id"`
	Playbook     string         `json:"playbook"`
	ExtraVars    map[string]any `json:"extra_vars,omitempty"`
	Inventory    *Inventory     `json:"inventory,omitempty"`
	SourceConfig *Source        `json:"source_config,omitempty"`
	Options      *Options       `json:"options,omitempty"`
}
