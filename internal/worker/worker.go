// Package worker implements the dequeue → materialize → run → update-status
// loop described in SPEC_FULL §4.H. Grounded in original_source/worker.py's
// execute_job dispatch-by-source-variant shape, reworked to pass the
// application context explicitly rather than through a module-level global
// engine singleton (SPEC_FULL §9 Design Notes).
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jeremy-wang-lin/ansible-runner-service/internal/gitmaterializer"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/model"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/policy"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/queue"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/runner"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/store"
)

// Deps are the collaborators a Worker dispatches into; bundled so Pool
// construction reads as one explicit wiring step rather than a long
// parameter list repeated at every call site.
type Deps struct {
	Store          *store.JobStore
	Queue          *queue.Adapter
	Policy         *policy.Policy
	Materializer   *gitmaterializer.Materializer
	Runner         *runner.Runner
	PlaybooksDir   string
	CollectionsDir string
	Logger         *slog.Logger
}

// Pool runs a configurable number of worker goroutines against the queue.
type Pool struct {
	deps    Deps
	workers int

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewPool builds a worker pool; Start must be called to begin processing.
func NewPool(deps Deps, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Pool{deps: deps, workers: workers, stopCh: make(chan struct{})}
}

// Start launches the worker goroutines. Safe to call once.
func (p *Pool) Start(ctx context.Context) error {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}
	return nil
}

// Stop signals all workers to finish their current job and exit, waiting up
// to the context's deadline.
func (p *Pool) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stopCh) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) loop(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.deps.Logger.With(slog.Int("worker_id", id))

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		d, err := p.deps.Queue.Dequeue(ctx, 5*time.Second)
		if err != nil {
			log.Error("dequeue failed", "error", err)
			continue
		}
		if d == nil {
			continue // timed out waiting; loop to recheck stop/shutdown
		}

		p.process(ctx, log, *d)
	}
}

func (p *Pool) process(ctx context.Context, log *slog.Logger, d model.Descriptor) {
	log = log.With(slog.String("job_id", d.JobID))
	log.Info("job dequeued")

	now := time.Now().UTC()
	if err := p.deps.Store.UpdateStatus(ctx, d.JobID, store.StatusUpdate{
		Status:    model.StatusRunning,
		StartedAt: &now,
	}); err != nil {
		log.Error("failed to mark job running", "error", err)
		return
	}

	result, jobErr := p.execute(ctx, log, d)
	finished := time.Now().UTC()

	update := store.StatusUpdate{FinishedAt: &finished}
	if jobErr != nil {
		update.Status = model.StatusFailed
		update.Error = jobErr.Error()
		log.Error("job failed", "error", jobErr)
	} else {
		update.Result = result
		if result.RC == 0 {
			update.Status = model.StatusSuccessful
		} else {
			update.Status = model.StatusFailed
		}
	}

	if err := p.deps.Store.UpdateStatus(ctx, d.JobID, update); err != nil {
		log.Error("failed to record terminal status", "error", err)
	}
}

// execute dispatches by source_config, per SPEC_FULL §4.H steps 3-4.
func (p *Pool) execute(ctx context.Context, log *slog.Logger, d model.Descriptor) (*model.Result, error) {
	jobDir, err := os.MkdirTemp("", "ansible-job-"+d.JobID+"-")
	if err != nil {
		return nil, fmt.Errorf("worker: failed to create job temp directory: %w", err)
	}
	defer os.RemoveAll(jobDir)

	inventoryArg, err := p.resolveInventory(jobDir, d.Inventory)
	if err != nil {
		return nil, err
	}

	src := d.SourceConfig
	if src == nil || (src.Type == model.SourceLocal && src.Target == model.TargetPlaybook) {
		path := d.Playbook
		if src != nil {
			path = src.Path
		}
		return p.deps.Runner.Run(ctx, runner.Input{
			PlaybookPath: path,
			PlaybooksDir: p.deps.PlaybooksDir,
			ExtraVars:    d.ExtraVars,
			Inventory:    inventoryArg,
			Options:      d.Options,
		})
	}

	switch {
	case src.Type == model.SourceLocal && src.Target == model.TargetRole:
		return p.runLocalRole(ctx, d, src, jobDir, inventoryArg)
	case src.Type == model.SourceGit && src.Target == model.TargetPlaybook:
		return p.runGitPlaybook(ctx, d, src, jobDir, inventoryArg)
	case src.Type == model.SourceGit && src.Target == model.TargetRole:
		return p.runGitRole(ctx, d, src, jobDir, inventoryArg)
	default:
		return nil, fmt.Errorf("worker: unsupported source variant %s/%s", src.Type, src.Target)
	}
}

func (p *Pool) runLocalRole(ctx context.Context, d model.Descriptor, src *model.Source, jobDir, inventoryArg string) (*model.Result, error) {
	fqcn := fmt.Sprintf("%s.%s", src.Collection, src.Role)
	wrapper, err := gitmaterializer.WrapperPlaybook(fqcn, src.RoleVars)
	if err != nil {
		return nil, err
	}
	wrapperPath := filepath.Join(jobDir, "wrapper.yml")
	if err := os.WriteFile(wrapperPath, []byte(wrapper), 0o600); err != nil {
		return nil, fmt.Errorf("worker: failed to write wrapper playbook: %w", err)
	}

	return p.deps.Runner.Run(ctx, runner.Input{
		PlaybookPath: wrapperPath,
		ExtraVars:    d.ExtraVars,
		Inventory:    inventoryArg,
		EnvVars:      map[string]string{"ANSIBLE_COLLECTIONS_PATH": p.deps.CollectionsDir},
		Options:      d.Options,
	})
}

func (p *Pool) runGitPlaybook(ctx context.Context, d model.Descriptor, src *model.Source, jobDir, inventoryArg string) (*model.Result, error) {
	prov, credential, err := p.resolveProvider(src.Repo)
	if err != nil {
		return nil, err
	}

	repoDir := filepath.Join(jobDir, "repo")
	if err := p.deps.Materializer.ShallowClone(ctx, src.Repo, src.Branch, repoDir, prov, credential); err != nil {
		return nil, err
	}

	resolvedPath, err := gitmaterializer.ResolveWithinRepo(repoDir, src.Path)
	if err != nil {
		return nil, err
	}

	return p.deps.Runner.Run(ctx, runner.Input{
		PlaybookPath: resolvedPath,
		ExtraVars:    d.ExtraVars,
		Inventory:    inventoryArg,
		Options:      d.Options,
	})
}

func (p *Pool) runGitRole(ctx context.Context, d model.Descriptor, src *model.Source, jobDir, inventoryArg string) (*model.Result, error) {
	prov, credential, err := p.resolveProvider(src.Repo)
	if err != nil {
		return nil, err
	}

	collectionsDir := filepath.Join(jobDir, "collections")
	if err := os.MkdirAll(collectionsDir, 0o755); err != nil {
		return nil, fmt.Errorf("worker: failed to create collections directory: %w", err)
	}

	primary, err := p.deps.Materializer.InstallCollection(ctx, src.Repo, src.Branch, collectionsDir, prov, credential)
	if err != nil {
		return nil, err
	}

	fqcn, err := gitmaterializer.ResolveFQCN(src.Role, collectionsDir, primary)
	if err != nil {
		return nil, err
	}

	wrapper, err := gitmaterializer.WrapperPlaybook(fqcn, src.RoleVars)
	if err != nil {
		return nil, err
	}
	wrapperPath := filepath.Join(jobDir, "wrapper.yml")
	if err := os.WriteFile(wrapperPath, []byte(wrapper), 0o600); err != nil {
		return nil, fmt.Errorf("worker: failed to write wrapper playbook: %w", err)
	}

	return p.deps.Runner.Run(ctx, runner.Input{
		PlaybookPath: wrapperPath,
		ExtraVars:    d.ExtraVars,
		Inventory:    inventoryArg,
		EnvVars:      map[string]string{"ANSIBLE_COLLECTIONS_PATH": collectionsDir},
		Options:      d.Options,
	})
}

// resolveProvider re-validates the source against policy even though
// Request Intake already did — dual validation is deliberate (SPEC_FULL §9):
// it is both defense-in-depth and the only path that actually knows which
// credential to use.
func (p *Pool) resolveProvider(repo string) (*policy.Provider, string, error) {
	prov, err := p.deps.Policy.Resolve(repo)
	if err != nil {
		return nil, "", err
	}
	credential, err := prov.Credential()
	if err != nil {
		return nil, "", err
	}
	return prov, credential, nil
}

var errGitInventoryUnsupported = errors.New("worker: git-hosted inventory is not supported")

func (p *Pool) resolveInventory(jobDir string, inv *model.Inventory) (string, error) {
	if inv == nil {
		return "", nil
	}
	switch inv.Type {
	case model.InventoryLiteral, "":
		return inv.Literal, nil
	case model.InventoryInline:
		return runner.WriteInlineInventory(jobDir, inv.Data)
	case model.InventoryGit:
		// Forbidden symmetrically for sync and async per SPEC_FULL §9's
		// resolution of the git-inventory Open Question.
		return "", errGitInventoryUnsupported
	default:
		return "", fmt.Errorf("worker: unknown inventory type %q", inv.Type)
	}
}
