// Package providers contains the HTTP clients for the external collaborators:
// the student-records index, the device-flow authorizer, and the startup
// manifest endpoint. Each client is defined as a small interface so services
// can be tested against fakes, with one HTTP implementation returned as a
// concrete struct.
//
// Clients do no logging and no caching; negative results are signalled with
// ErrNotFound so the caller can decide whether they are cacheable.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/scoredb/studentdb-bot/internal/domain"
)

// ErrNotFound is returned when the upstream index answers 404 for a lookup.
// Callers treat it as a definitive "no such record", distinct from transport
// or server errors which must not be cached.
var ErrNotFound = errors.New("record not found")

// StatusError wraps a non-404 upstream failure with its HTTP status code.
type StatusError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Body)
}

// SearchProvider is the read-only contract against the student-records index.
// All lookups are keyed by normalized, upper-case identifiers.
type SearchProvider interface {
	// Grade fetches the per-class student counts for a grade ID.
	Grade(ctx context.Context, id string) (domain.Grade, error)

	// Class fetches the full roster of a class ID.
	Class(ctx context.Context, id string) (domain.Class, error)

	// Student fetches a single record by student ID.
	Student(ctx context.Context, id string) (domain.Student, error)

	// Search runs a full-text query with optional grade/class facets and
	// returns matching records in index order.
	Search(ctx context.Context, text string, f domain.SearchFacets) ([]domain.Student, error)

	// StudentPhotos returns the photo URLs known for a student ID. An empty
	// slice is a valid answer; 404 means the student itself is unknown.
	StudentPhotos(ctx context.Context, id string) ([]string, error)
}

// HTTPSearchProvider implements SearchProvider against a REST index.
type HTTPSearchProvider struct {
	// BaseURL is the index root, without a trailing slash.
	BaseURL string
	// Client is the HTTP client used for all calls.
	Client *http.Client
	// APIKey, when set, is sent as a bearer token.
	APIKey string
}

// NewHTTPSearchProvider constructs a provider with a sane default timeout.
func NewHTTPSearchProvider(baseURL, apiKey string) *HTTPSearchProvider {
	return &HTTPSearchProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 10 * time.Second},
		APIKey:  apiKey,
	}
}

// Grade implements SearchProvider.
func (p *HTTPSearchProvider) Grade(ctx context.Context, id string) (domain.Grade, error) {
	var g domain.Grade
	err := p.getJSON(ctx, "/grades/"+url.PathEscape(id), nil, &g)
	return g, err
}

// Class implements SearchProvider.
func (p *HTTPSearchProvider) Class(ctx context.Context, id string) (domain.Class, error) {
	var c domain.Class
	err := p.getJSON(ctx, "/classes/"+url.PathEscape(id), nil, &c)
	return c, err
}

// Student implements SearchProvider.
func (p *HTTPSearchProvider) Student(ctx context.Context, id string) (domain.Student, error) {
	var s domain.Student
	err := p.getJSON(ctx, "/students/"+url.PathEscape(id), nil, &s)
	return s, err
}

// Search implements SearchProvider. Facets are passed as query parameters and
// an empty result set is returned as an empty slice, not an error.
func (p *HTTPSearchProvider) Search(ctx context.Context, text string, f domain.SearchFacets) ([]domain.Student, error) {
	q := url.Values{"q": {text}}
	if f.GradeID != "" {
		q.Set("grade", f.GradeID)
	}
	if f.ClassID != "" {
		q.Set("class", f.ClassID)
	}
	var out struct {
		Results []domain.Student `json:"results"`
	}
	if err := p.getJSON(ctx, "/search", q, &out); err != nil {
		return nil, err
	}
	if out.Results == nil {
		out.Results = []domain.Student{}
	}
	return out.Results, nil
}

// StudentPhotos implements SearchProvider.
func (p *HTTPSearchProvider) StudentPhotos(ctx context.Context, id string) ([]string, error) {
	var out struct {
		Photos []string `json:"photos"`
	}
	if err := p.getJSON(ctx, "/students/"+url.PathEscape(id)+"/photos", nil, &out); err != nil {
		return nil, err
	}
	return out.Photos, nil
}

// getJSON performs a GET against path, mapping 404 to ErrNotFound and any
// other non-2xx status to a StatusError.
func (p *HTTPSearchProvider) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := p.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
