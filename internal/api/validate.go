package api

import (
	"errors"
	"strings"

	"github.com/jeremy-wang-lin/ansible-runner-service/internal/model"
)

var (
	ErrSourceRequired     = errors.New("api: source is required")
	ErrInvalidSourceType  = errors.New("api: source.type must be \"local\" or \"git\"")
	ErrInvalidTarget      = errors.New("api: source.target must be \"playbook\" or \"role\"")
	ErrPathRequired       = errors.New("api: source.path is required for a playbook source")
	ErrPathEscapesRoot    = errors.New("api: source.path must not be absolute or contain \"..\"")
	ErrRoleRequired       = errors.New("api: source.role is required for a role source")
	ErrCollectionRequired = errors.New("api: source.collection is required for a local role source")
	ErrRepoRequired       = errors.New("api: source.repo is required for a git source")
	ErrBranchRequired     = errors.New("api: source.branch is required for a git source")
	ErrInvalidInventory   = errors.New("api: inventory.type must be \"literal\", \"inline\", or \"git\"")
	ErrInvalidVerbosity   = errors.New("api: options.verbosity must be between 0 and 4")
	ErrSyncWithGitSource  = errors.New("api: synchronous execution does not support git sources")
	ErrSyncWithGitInventory = errors.New("api: synchronous execution does not support git-hosted inventory")
)

// validateSubmit validates a decoded SubmitRequest per SPEC_FULL §4.I step 1,
// normalizing the top-level Playbook shorthand into a full Source first.
func validateSubmit(req *SubmitRequest) error {
	if req.Source == nil {
		if req.Playbook == "" {
			return ErrSourceRequired
		}
		req.Source = &model.Source{Type: model.SourceLocal, Target: model.TargetPlaybook, Path: req.Playbook}
	}

	if err := validateSource(req.Source); err != nil {
		return err
	}
	if err := validateInventory(req.Inventory); err != nil {
		return err
	}
	if err := validateOptions(req.Options); err != nil {
		return err
	}
	return nil
}

func validateSource(s *model.Source) error {
	switch s.Type {
	case model.SourceLocal, model.SourceGit:
	default:
		return ErrInvalidSourceType
	}

	switch s.Target {
	case model.TargetPlaybook:
		if s.Type == model.SourceGit {
			if s.Repo == "" {
				return ErrRepoRequired
			}
			if s.Branch == "" {
				return ErrBranchRequired
			}
		}
		if s.Path == "" {
			return ErrPathRequired
		}
		if err := rejectEscapingPath(s.Path); err != nil {
			return err
		}
	case model.TargetRole:
		if s.Role == "" {
			return ErrRoleRequired
		}
		if s.Type == model.SourceLocal && s.Collection == "" {
			return ErrCollectionRequired
		}
		if s.Type == model.SourceGit {
			if s.Repo == "" {
				return ErrRepoRequired
			}
			if s.Branch == "" {
				return ErrBranchRequired
			}
		}
	default:
		return ErrInvalidTarget
	}

	return nil
}

// rejectEscapingPath rejects absolute paths and any ".." path segment,
// mirroring the symlink-aware defense applied again, more strictly, at
// materialization time (SPEC_FULL §4.B); this is the cheap, early check.
func rejectEscapingPath(path string) error {
	if strings.HasPrefix(path, "/") {
		return ErrPathEscapesRoot
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return ErrPathEscapesRoot
		}
	}
	return nil
}

func validateInventory(inv *model.Inventory) error {
	if inv == nil {
		return nil
	}
	switch inv.Type {
	case model.InventoryLiteral, model.InventoryInline, model.InventoryGit, "":
		return nil
	default:
		return ErrInvalidInventory
	}
}

func validateOptions(o *model.Options) error {
	if o == nil {
		return nil
	}
	if o.Verbosity < 0 || o.Verbosity > 4 {
		return ErrInvalidVerbosity
	}
	return nil
}

// validateSyncConstraints rejects the sync+git combinations forbidden by
// SPEC_FULL §4.I step 3.
func validateSyncConstraints(req *SubmitRequest) error {
	if req.Source.Type == model.SourceGit {
		return ErrSyncWithGitSource
	}
	if req.Inventory != nil && req.Inventory.Type == model.InventoryGit {
		return ErrSyncWithGitInventory
	}
	return nil
}

// IsValidationError reports whether err originates from this file's checks.
func IsValidationError(err error) bool {
	for _, sentinel := range []error{
		ErrSourceRequired, ErrInvalidSourceType, ErrInvalidTarget, ErrPathRequired,
		ErrPathEscapesRoot, ErrRoleRequired, ErrCollectionRequired, ErrRepoRequired,
		ErrBranchRequired, ErrInvalidInventory, ErrInvalidVerbosity,
		ErrSyncWithGitSource, ErrSyncWithGitInventory,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
