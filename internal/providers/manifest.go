// Package providers – manifest loader.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/scoredb/studentdb-bot/internal/domain"
	"github.com/scoredb/studentdb-bot/internal/match"
)

// ManifestProvider loads the startup manifest: identifier patterns, grade
// data sources, and photo URL templates. It is called once at boot; the
// result is treated as immutable for the life of the process.
type ManifestProvider interface {
	Load(ctx context.Context) (domain.Manifest, error)
}

// HTTPManifestProvider fetches the manifest from a URL.
type HTTPManifestProvider struct {
	URL    string
	Client *http.Client
}

// NewHTTPManifestProvider constructs a provider with a sane default timeout.
func NewHTTPManifestProvider(rawURL string) *HTTPManifestProvider {
	return &HTTPManifestProvider{
		URL:    rawURL,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Load implements ManifestProvider.
func (p *HTTPManifestProvider) Load(ctx context.Context) (domain.Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return domain.Manifest{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.Client.Do(req)
	if err != nil {
		return domain.Manifest{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.Manifest{}, &StatusError{Status: resp.StatusCode}
	}
	var m domain.Manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return domain.Manifest{}, err
	}
	return m, validateManifest(m)
}

// FileManifestProvider reads the manifest from a local path, for deployments
// that ship it alongside the binary.
type FileManifestProvider struct {
	Path string
}

// Load implements ManifestProvider.
func (p *FileManifestProvider) Load(_ context.Context) (domain.Manifest, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return domain.Manifest{}, err
	}
	var m domain.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.Manifest{}, err
	}
	return m, validateManifest(m)
}

// NewManifestProvider picks the implementation from the source string: an
// http(s) URL gets the HTTP provider, anything else is treated as a path.
func NewManifestProvider(source string) ManifestProvider {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return NewHTTPManifestProvider(source)
	}
	return &FileManifestProvider{Path: source}
}

// validateManifest compiles the identifier patterns exactly the way the
// matcher will, so a bad manifest fails at load time with a clear error. An
// omitted pattern is fine; the matcher substitutes its default.
func validateManifest(m domain.Manifest) error {
	if _, err := match.New(m.Patterns); err != nil {
		return fmt.Errorf("manifest patterns: %w", err)
	}
	return nil
}
