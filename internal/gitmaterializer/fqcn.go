package gitmaterializer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

func installingRegexp() *regexp.Regexp {
	return regexp.MustCompile(`Installing '(\w+)\.(\w+):`)
}

type galaxyMeta struct {
	Namespace string `yaml:"namespace"`
	Name      string `yaml:"name"`
}

// ResolveFQCN produces the fully-qualified collection name for role, per
// SPEC_FULL §4.B: an already-qualified role is returned verbatim, otherwise
// the known primary collection is preferred, falling back to a scan of
// collectionsDir for exactly one installed galaxy.yml.
func ResolveFQCN(role, collectionsDir string, primary *InstallResult) (string, error) {
	if strings.Count(role, ".") >= 2 {
		return role, nil
	}

	if primary != nil {
		return fmt.Sprintf("%s.%s.%s", primary.Namespace, primary.Name, role), nil
	}

	matches, err := filepath.Glob(filepath.Join(collectionsDir, "ansible_collections", "*", "*", "galaxy.yml"))
	if err != nil {
		return "", fmt.Errorf("gitmaterializer: failed to scan collections directory: %w", err)
	}

	switch len(matches) {
	case 0:
		return "", ErrNoCollectionInstalled
	case 1:
		meta, err := readGalaxyMeta(matches[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s.%s.%s", meta.Namespace, meta.Name, role), nil
	default:
		return "", ErrAmbiguousCollection
	}
}

func readGalaxyMeta(path string) (*galaxyMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gitmaterializer: failed to read galaxy.yml: %w", err)
	}
	var meta galaxyMeta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("gitmaterializer: failed to parse galaxy.yml: %w", err)
	}
	return &meta, nil
}
