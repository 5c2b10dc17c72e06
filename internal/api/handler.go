package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jeremy-wang-lin/ansible-runner-service/internal/gitmaterializer"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/model"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/policy"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/queue"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/runner"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/store"
	"github.com/jeremy-wang-lin/ansible-runner-service/pkg/sanitizer"
)

// Deps bundles the collaborators Request Intake dispatches into.
type Deps struct {
	Store        *store.JobStore
	Queue        *queue.Adapter
	Policy       *policy.Policy
	Runner       *runner.Runner
	PlaybooksDir string
	Logger       *slog.Logger
}

type handler struct {
	deps Deps
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// submit handles POST /api/v1/jobs.
func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "api: malformed request body")
		return
	}

	if err := validateSubmit(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sanitizeRequest(&req)

	sync := r.URL.Query().Get("sync") == "true"

	if req.Source.Type == model.SourceGit {
		if _, err := h.deps.Policy.Resolve(req.Source.Repo); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else if req.Source.Path != "" {
		if _, err := os.Stat(filepath.Join(h.deps.PlaybooksDir, req.Source.Path)); os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "api: playbook not found")
			return
		}
	}

	if sync {
		h.submitSync(w, r, req)
		return
	}
	h.submitAsync(w, r, req)
}

func (h *handler) submitSync(w http.ResponseWriter, r *http.Request, req SubmitRequest) {
	if err := validateSyncConstraints(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var inventoryArg string
	if req.Inventory != nil {
		switch req.Inventory.Type {
		case model.InventoryLiteral, "":
			inventoryArg = req.Inventory.Literal
		case model.InventoryInline:
			dir, err := os.MkdirTemp("", "sync-inventory-")
			if err != nil {
				writeError(w, http.StatusInternalServerError, "api: failed to materialize inline inventory")
				return
			}
			defer os.RemoveAll(dir)

			path, err := runner.WriteInlineInventory(dir, req.Inventory.Data)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "api: failed to materialize inline inventory")
				return
			}
			inventoryArg = path
		}
	}

	result, err := h.deps.Runner.Run(r.Context(), runner.Input{
		PlaybookPath: req.Source.Path,
		PlaybooksDir: h.deps.PlaybooksDir,
		ExtraVars:    req.ExtraVars,
		Inventory:    inventoryArg,
		Options:      req.Options,
	})
	if err != nil {
		if errors.Is(err, gitmaterializer.ErrPathEscapesRepo) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := model.StatusSuccessful
	if result.RC != 0 {
		status = model.StatusFailed
	}

	writeJSON(w, http.StatusOK, SubmitSyncResponse{
		Status: status,
		RC:     result.RC,
		Stdout: result.Stdout,
		Stats:  result.Stats,
	})
}

func (h *handler) submitAsync(w http.ResponseWriter, r *http.Request, req SubmitRequest) {
	playbook := req.Source.Path
	if req.Source.Target == model.TargetRole {
		playbook = req.Source.Role
	}

	j, err := h.deps.Store.CreateJob(r.Context(), store.NewJob{
		Playbook:     playbook,
		ExtraVars:    req.ExtraVars,
		Inventory:    req.Inventory,
		Options:      req.Options,
		SourceType:   req.Source.Type,
		SourceTarget: req.Source.Target,
		SourceRepo:   req.Source.Repo,
		SourceBranch: req.Source.Branch,
	})
	if err != nil {
		h.deps.Logger.Error("failed to create job", "error", err)
		writeError(w, http.StatusInternalServerError, "api: failed to create job")
		return
	}

	descriptor := model.Descriptor{
		JobID:        j.ID,
		Playbook:     playbook,
		ExtraVars:    req.ExtraVars,
		Inventory:    req.Inventory,
		SourceConfig: req.Source,
		Options:      req.Options,
	}
	if err := h.deps.Queue.Enqueue(r.Context(), descriptor); err != nil {
		h.deps.Logger.Error("failed to enqueue job", "job_id", j.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "api: failed to enqueue job")
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitAsyncResponse{
		JobID:     j.ID,
		Status:    j.Status,
		CreatedAt: j.CreatedAt,
	})
}

// get handles GET /api/v1/jobs/{id}.
func (h *handler) get(w http.ResponseWriter, r *http.Request, id string) {
	j, err := h.deps.Store.GetJob(r.Context(), id)
	if err != nil {
		h.deps.Logger.Error("failed to get job", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "api: failed to load job")
		return
	}
	if j == nil {
		writeError(w, http.StatusNotFound, "api: job not found")
		return
	}

	writeJSON(w, http.StatusOK, toJobDetail(j))
}

// list handles GET /api/v1/jobs.
func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := model.Status(q.Get("status"))

	limit := defaultListLimit
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	jobs, total, err := h.deps.Store.List(r.Context(), status, limit, offset)
	if err != nil {
		h.deps.Logger.Error("failed to list jobs", "error", err)
		writeError(w, http.StatusInternalServerError, "api: failed to list jobs")
		return
	}

	resp := JobListResponse{Jobs: make([]JobDetail, len(jobs)), Total: total, Limit: limit, Offset: offset}
	for i, j := range jobs {
		resp.Jobs[i] = toJobDetail(j)
	}
	writeJSON(w, http.StatusOK, resp)
}

// sanitizeRequest strips HTML from free-text fields that are echoed back in
// API responses, defending against stored XSS in a browser-rendered polling
// dashboard (SPEC_FULL §4.I).
func sanitizeRequest(req *SubmitRequest) {
	req.Source.Path = sanitizer.StripHTML(req.Source.Path)
	req.Source.Role = sanitizer.StripHTML(req.Source.Role)
	req.Source.Collection = sanitizer.StripHTML(req.Source.Collection)
	if req.Options != nil {
		req.Options.Limit = sanitizer.StripHTML(req.Options.Limit)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
