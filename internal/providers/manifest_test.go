package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const manifestJSON = `{
  "patterns": {
    "grade": "^[xcg][0-9]{2}$",
    "class": "^[xcg][0-9]{4}$",
    "student": "(^[xcg][0-9]{6}$)|(^[0-9]{8}$)"
  },
  "grades": {"G12": "https://data/g12.json"},
  "photos": ["https://cdn/photos/%s.jpg"]
}`

func TestManifestFromHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(manifestJSON))
	}))
	defer srv.Close()

	m, err := NewManifestProvider(srv.URL).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Patterns.Grade != "^[xcg][0-9]{2}$" {
		t.Errorf("grade pattern = %q", m.Patterns.Grade)
	}
	if m.Grades["G12"] == "" || len(m.Photos) != 1 {
		t.Errorf("unexpected manifest %+v", m)
	}
}

func TestManifestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := os.WriteFile(path, []byte(manifestJSON), 0o600); err != nil {
		t.Fatal(err)
	}

	prov := NewManifestProvider(path)
	if _, ok := prov.(*FileManifestProvider); !ok {
		t.Fatalf("want FileManifestProvider for a path, got %T", prov)
	}
	m, err := prov.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Patterns.Student == "" {
		t.Error("student pattern missing")
	}
}

func TestManifestOmittedPatternAccepted(t *testing.T) {
	// The matcher falls back to its built-in default for an omitted pattern,
	// so the loader must not reject it.
	path := filepath.Join(t.TempDir(), "manifest.json")
	partial := strings.Replace(manifestJSON, `"class": "^[xcg][0-9]{4}$",`, "", 1)
	if err := os.WriteFile(path, []byte(partial), 0o600); err != nil {
		t.Fatal(err)
	}

	m, err := NewManifestProvider(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Patterns.Class != "" || m.Patterns.Grade == "" {
		t.Errorf("patterns = %+v", m.Patterns)
	}
}

func TestManifestBadPatternRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	bad := strings.Replace(manifestJSON, `^[xcg][0-9]{4}$`, `[`, 1)
	if err := os.WriteFile(path, []byte(bad), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := NewManifestProvider(path).Load(context.Background())
	if err == nil || !strings.Contains(err.Error(), "class pattern") {
		t.Fatalf("want class pattern error, got %v", err)
	}
}

func TestManifestHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := NewManifestProvider(srv.URL).Load(context.Background()); err == nil {
		t.Fatal("want error on non-200")
	}
}
