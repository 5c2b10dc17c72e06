// Package policy resolves a Git repository URL against a configured
// allowlist of providers and exposes the credential bound to whichever
// provider record matched, per SPEC_FULL §4.A.
package policy

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/jeremy-wang-lin/ansible-runner-service/internal/config"
)

// ProviderType identifies which credential-URL shape a provider uses.
type ProviderType string

const (
	ProviderAzure  ProviderType = "azure"
	ProviderGitLab ProviderType = "gitlab"
)

var (
	ErrSchemeNotHTTPS    = errors.New("policy: repository URL must use https")
	ErrHostNotConfigured = errors.New("policy: host is not configured")
	ErrOrgNotAllowed     = errors.New("policy: organization is not allowed for this provider")
	ErrCredentialMissing = errors.New("policy: credential environment variable is unset or empty")
	ErrMalformedURL      = errors.New("policy: repository URL is malformed")
)

// Provider is an allowed Git source, effectively immutable once loaded.
type Provider struct {
	Type          ProviderType
	Host          string
	Orgs          map[string]struct{}
	CredentialEnv string
}

// Credential reads the provider's credential from the environment.
func (p *Provider) Credential() (string, error) {
	v := os.Getenv(p.CredentialEnv)
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrCredentialMissing, p.CredentialEnv)
	}
	return v, nil
}

// Username returns the fixed placeholder embedded in clone URLs for this
// provider type — never the credential itself (SPEC_FULL §4.B).
func (p *Provider) Username() string {
	switch p.Type {
	case ProviderAzure:
		return "pat"
	case ProviderGitLab:
		return "oauth2"
	default:
		return ""
	}
}

// Policy holds the loaded provider allowlist. It is loaded once at startup
// and never mutated afterward, so it is safe to share across goroutines
// without locking.
type Policy struct {
	providers []*Provider
}

// Load builds a Policy from decoded GIT_PROVIDERS entries.
func Load(entries []config.GitProviderConfig) (*Policy, error) {
	providers := make([]*Provider, 0, len(entries))
	for _, e := range entries {
		orgs := make(map[string]struct{}, len(e.Orgs))
		for _, o := range e.Orgs {
			orgs[o] = struct{}{}
		}
		providers = append(providers, &Provider{
			Type:          ProviderType(e.Type),
			Host:          e.Host,
			Orgs:          orgs,
			CredentialEnv: e.CredentialEnv,
		})
	}
	return &Policy{providers: providers}, nil
}

// Resolve matches repoURL against the allowlist, per SPEC_FULL §4.A: https
// scheme required, host matched exactly, first non-empty path segment
// ("organization") present in that provider's orgs set.
func (p *Policy) Resolve(repoURL string) (*Provider, error) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedURL, err)
	}
	if u.Scheme != "https" {
		return nil, ErrSchemeNotHTTPS
	}

	var matched *Provider
	for _, prov := range p.providers {
		if prov.Host == u.Host {
			matched = prov
			break
		}
	}
	if matched == nil {
		return nil, fmt.Errorf("%w: %s", ErrHostNotConfigured, u.Host)
	}

	org := firstPathSegment(u.Path)
	if _, ok := matched.Orgs[org]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrgNotAllowed, org)
	}

	return matched, nil
}

func firstPathSegment(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return trimmed[:i]
	}
	return trimmed
}

// IsPolicyError reports whether err originates from this package, so the
// intake layer can collapse any of these distinct kinds into a single
// client-visible 400 per SPEC_FULL §4.A.
func IsPolicyError(err error) bool {
	return errors.Is(err, ErrSchemeNotHTTPS) ||
		errors.Is(err, ErrHostNotConfigured) ||
		errors.Is(err, ErrOrgNotAllowed) ||
		errors.Is(err, ErrCredentialMissing) ||
		errors.Is(err, ErrMalformedURL)
}
