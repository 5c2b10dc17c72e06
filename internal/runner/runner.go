// Package runner invokes the external Ansible tool as a child process and
// collects its result, per SPEC_FULL §4.G. Grounded in
// original_source/runner.py's ansible_runner wrapper and in the per-line
// output classification shown by the job-processor reference code.
package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jeremy-wang-lin/ansible-runner-service/internal/model"
)

// Input describes one playbook invocation.
type Input struct {
	// PlaybookPath is absolute, or relative to PlaybooksDir.
	PlaybookPath string
	PlaybooksDir string
	ExtraVars    map[string]any
	// Inventory is either a path to an inventory file or a literal
	// inventory string (e.g. "localhost,").
	Inventory     string
	InventoryFile bool
	EnvVars       map[string]string
	Options       *model.Options
}

// Runner invokes ansible-playbook as a child process.
type Runner struct {
	logger *slog.Logger
}

// New creates a Runner. A nil logger discards output.
func New(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{logger: logger}
}

// Run executes the playbook inside a fresh temp directory and returns its
// result. The runner never interprets a non-zero exit code as an error —
// that is a normal, job-terminal outcome (SPEC_FULL §4.G). Once started, the
// child process is not cancelled when ctx is.
func (r *Runner) Run(ctx context.Context, in Input) (*model.Result, error) {
	workDir, err := os.MkdirTemp("", "ansible-run-")
	if err != nil {
		return nil, fmt.Errorf("runner: failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	playbookPath := in.PlaybookPath
	if !filepath.IsAbs(playbookPath) && in.PlaybooksDir != "" {
		playbookPath = filepath.Join(in.PlaybooksDir, playbookPath)
	}

	extraVarsFile, err := writeExtraVars(workDir, in.ExtraVars)
	if err != nil {
		return nil, err
	}

	args := []string{playbookPath}
	if extraVarsFile != "" {
		args = append(args, "--extra-vars", "@"+extraVarsFile)
	}
	if in.Inventory != "" {
		args = append(args, "-i", in.Inventory)
	}
	args = append(args, mapOptions(in.Options)...)

	cmd := exec.CommandContext(context.WithoutCancel(ctx), "ansible-playbook", args...)
	cmd.Dir = workDir
	cmd.Env = os.Environ()
	for k, v := range in.EnvVars {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var captured strings.Builder
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("runner: failed to attach stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("runner: failed to start ansible-playbook: %w", err)
	}

	classifyLines(r.logger, stdout, &captured)

	waitErr := cmd.Wait()
	rc := exitCode(waitErr)

	return &model.Result{
		RC:     rc,
		Stdout: captured.String(),
		Stats:  parseStats(captured.String()),
	}, nil
}

// classifyLines scans child-process output line by line, logging a
// structured line-level classification purely for observability; it never
// affects the computed status or rc.
func classifyLines(logger *slog.Logger, r io.Reader, capture *strings.Builder) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		capture.WriteString(line)
		capture.WriteString("\n")

		switch {
		case strings.Contains(line, "fatal:") || strings.HasPrefix(line, "ERROR"):
			logger.Error("ansible-playbook output", "line", line)
		case strings.HasPrefix(line, "WARNING"):
			logger.Warn("ansible-playbook output", "line", line)
		case strings.HasPrefix(line, "PLAY") || strings.HasPrefix(line, "TASK"):
			logger.Info("ansible-playbook output", "line", line)
		default:
			logger.Debug("ansible-playbook output", "line", line)
		}
	}
}

func exitCode(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func writeExtraVars(dir string, vars map[string]any) (string, error) {
	if len(vars) == 0 {
		return "", nil
	}
	path := filepath.Join(dir, "extra-vars.json")
	b, err := json.Marshal(vars)
	if err != nil {
		return "", fmt.Errorf("runner: failed to encode extra vars: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return "", fmt.Errorf("runner: failed to write extra vars file: %w", err)
	}
	return path, nil
}

// mapOptions implements the option-to-flag mapping table in SPEC_FULL §4.G.
func mapOptions(o *model.Options) []string {
	if o == nil {
		return nil
	}
	var args []string
	if len(o.Tags) > 0 {
		args = append(args, "--tags", strings.Join(o.Tags, ","))
	}
	if len(o.SkipTags) > 0 {
		args = append(args, "--skip-tags", strings.Join(o.SkipTags, ","))
	}
	if o.Limit != "" {
		args = append(args, "--limit", o.Limit)
	}
	if o.Verbosity > 0 {
		args = append(args, "-"+strings.Repeat("v", min(o.Verbosity, 4)))
	}
	if o.Check {
		args = append(args, "--check")
	}
	if o.Diff {
		args = append(args, "--diff")
	}
	if o.VaultPasswordFile != "" {
		args = append(args, "--vault-password-file", o.VaultPasswordFile)
	}
	return args
}

// WriteInlineInventory materializes an inline inventory mapping to a YAML
// file in dir, returning its path (SPEC_FULL §4.H step 4).
func WriteInlineInventory(dir string, data map[string]any) (string, error) {
	path := filepath.Join(dir, "inventory.yml")
	b, err := yaml.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("runner: failed to encode inline inventory: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return "", fmt.Errorf("runner: failed to write inventory file: %w", err)
	}
	return path, nil
}

// parseStats is a best-effort extraction of the "ok=N changed=N ..." PLAY
// RECAP summary line into a structured map for Job.result.stats.
func parseStats(output string) map[string]any {
	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.Contains(line, "ok=") {
			continue
		}
		fields := strings.Fields(line)
		stats := make(map[string]any)
		for _, f := range fields {
			kv := strings.SplitN(f, "=", 2)
			if len(kv) != 2 {
				continue
			}
			if n, err := strconv.Atoi(kv[1]); err == nil {
				stats[kv[0]] = n
			}
		}
		if len(stats) > 0 {
			return stats
		}
	}
	return nil
}
