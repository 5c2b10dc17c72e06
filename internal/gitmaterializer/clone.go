package gitmaterializer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jeremy-wang-lin/ansible-runner-service/internal/policy"
)

// credentialURL rewrites repo to embed only the provider's fixed username in
// the userinfo component — never the credential (SPEC_FULL §4.B).
func credentialURL(repo string, prov *policy.Provider) (string, error) {
	u, err := url.Parse(repo)
	if err != nil {
		return "", fmt.Errorf("gitmaterializer: malformed repository url: %w", err)
	}
	u.User = url.User(prov.Username())
	return u.String(), nil
}

// scrubCredential replaces every occurrence of credential in s with ***, so
// that clone/install errors never leak the secret into persisted or logged
// text (SPEC_FULL §7 credential scrubbing).
func scrubCredential(s, credential string) string {
	if credential == "" {
		return s
	}
	return strings.ReplaceAll(s, credential, "***")
}

// Materializer performs Git clone and collection install operations behind
// the ask-pass side channel, with a configurable per-operation timeout.
type Materializer struct {
	timeout time.Duration
}

// New creates a Materializer with the given operation timeout (clone and
// collection install share the same budget per SPEC_FULL §4.B).
func New(timeout time.Duration) *Materializer {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Materializer{timeout: timeout}
}

// ShallowClone clones branch of repo into dest using a depth-1, single
// branch checkout, authenticating via the ask-pass side channel.
func (m *Materializer) ShallowClone(ctx context.Context, repo, branch, dest string, prov *policy.Provider, credential string) error {
	cloneURL, err := credentialURL(repo, prov)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	askDir := dest + ".askpass"
	if err := os.MkdirAll(askDir, 0o700); err != nil {
		return fmt.Errorf("gitmaterializer: failed to create askpass directory: %w", err)
	}
	ap, env, err := newAskPass(askDir, credential)
	if err != nil {
		return err
	}
	_ = ap

	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--branch", branch, "--single-branch", cloneURL, dest)
	cmd.Env = env

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		scrubbed := scrubCredential(stderr.String(), credential)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrCloneTimeout, scrubbed)
		}
		return fmt.Errorf("%w: %s", ErrCloneFailed, scrubbed)
	}
	return nil
}

// InstallResult is the primary collection identified from ansible-galaxy's
// output, used by resolve_fqcn to avoid a galaxy.yml filesystem scan.
type InstallResult struct {
	Namespace string
	Name      string
}

// InstallCollection installs the collection hosted at repo@branch into
// collectionsDir via ansible-galaxy, authenticating via the same ask-pass
// side channel as ShallowClone.
func (m *Materializer) InstallCollection(ctx context.Context, repo, branch, collectionsDir string, prov *policy.Provider, credential string) (*InstallResult, error) {
	installURL, err := credentialURL(repo, prov)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	ap, env, err := newAskPass(collectionsDir, credential)
	if err != nil {
		return nil, err
	}
	_ = ap

	gitSpec := fmt.Sprintf("git+%s,%s", installURL, branch)
	cmd := exec.CommandContext(ctx, "ansible-galaxy", "collection", "install", gitSpec, "-p", collectionsDir)
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		scrubbed := scrubCredential(stderr.String(), credential)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrCollectionTimeout, scrubbed)
		}
		return nil, fmt.Errorf("%w: %s", ErrCollectionInstall, scrubbed)
	}

	return parsePrimaryCollection(stdout.String()), nil
}

var installingLineRe = installingRegexp()

// parsePrimaryCollection extracts the first "Installing 'ns.name:..." line,
// which ansible-galaxy always prints for the primary collection before any
// of its dependencies (SPEC_FULL §4.B). Returns nil when unparseable, in
// which case resolve_fqcn falls back to scanning the collections directory.
func parsePrimaryCollection(stdout string) *InstallResult {
	for _, line := range strings.Split(stdout, "\n") {
		m := installingLineRe.FindStringSubmatch(line)
		if m != nil {
			return &InstallResult{Namespace: m[1], Name: m[2]}
		}
	}
	return nil
}
