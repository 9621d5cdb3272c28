// Package domain defines the core data model shared by the store, services,
// and transport layers: student records as returned by the search provider,
// the per-user quota and auth state, and the navigation references that
// inline keyboards round-trip through callback payloads.
//
// All types here are plain data. They carry JSON tags because the store
// serializes them into snapshot rows and the transport embeds them in reply
// payloads; neither layer owns a private representation.
package domain

import "time"

// Student is a single student record as returned by the search provider.
// Records are immutable once fetched; identity is the ID field.
//
// Birthday and EduID are optional in the upstream dataset and therefore
// omitted from serialized forms when empty.
type Student struct {
	ID       string `json:"id"`
	GradeID  string `json:"grade_id"`
	ClassID  string `json:"class_id"`
	Name     string `json:"name"`
	Gender   string `json:"gender"`
	Birthday string `json:"birthday,omitempty"`
	EduID    string `json:"eduid,omitempty"`
}

// Grade describes a grade-level summary: how many students each of its
// classes contains. The map is keyed by class ID.
type Grade struct {
	ID          string         `json:"id"`
	ClassCounts map[string]int `json:"class_counts"`
}

// StudentCount returns the total number of students across all classes.
func (g Grade) StudentCount() int {
	total := 0
	for _, n := range g.ClassCounts {
		total += n
	}
	return total
}

// Class describes a single class and its roster, ordered by student ID as
// delivered by the provider. The order is preserved through pagination.
type Class struct {
	ID       string    `json:"id"`
	GradeID  string    `json:"grade_id,omitempty"`
	Students []Student `json:"students"`
}

// SearchFacets are the structured filters extracted from a multi-token
// query before the residual text is sent to the full-text index. Empty
// fields mean "no filter on that dimension".
type SearchFacets struct {
	GradeID string `json:"grade_id,omitempty"`
	ClassID string `json:"class_id,omitempty"`
}

// Empty reports whether no facet was captured.
func (f SearchFacets) Empty() bool { return f.GradeID == "" && f.ClassID == "" }

// QuotaState tracks one user's rolling 24-hour usage window. Used counts
// cache-miss provider calls only; cache hits are free.
type QuotaState struct {
	WindowStart time.Time `json:"window_start"`
	Used        int       `json:"used"`
}

// Expired reports whether the window must be reset before the next check.
// An unset (zero) window counts as expired.
func (q QuotaState) Expired(now time.Time, window time.Duration) bool {
	return q.WindowStart.IsZero() || now.Sub(q.WindowStart) >= window
}

// AuthStatus enumerates the auth gate states. The zero value is AuthNone so
// an absent row behaves as "never authenticated".
type AuthStatus int

const (
	// AuthNone means the user has never authenticated or a previous
	// attempt failed and was discarded.
	AuthNone AuthStatus = iota
	// AuthPending means a device flow was started and holds an unexpired
	// device code awaiting an explicit check.
	AuthPending
	// AuthOK means the external provider confirmed the device flow.
	AuthOK
)

// String implements fmt.Stringer for log output.
func (s AuthStatus) String() string {
	switch s {
	case AuthPending:
		return "pending"
	case AuthOK:
		return "authorized"
	default:
		return "none"
	}
}

// AuthState is one user's auth gate state. DeviceCode and ExpiresAt are only
// meaningful while Status is AuthPending; the guarded transition methods in
// the store keep the combination consistent (an authorized state never
// carries a device code).
type AuthState struct {
	Status     AuthStatus `json:"status"`
	DeviceCode string     `json:"device_code,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at,omitempty"`
}

// Authorized reports whether the gate is open.
func (a AuthState) Authorized() bool { return a.Status == AuthOK }

// Manifest is the startup configuration distributed out of band: the
// identifier patterns the matcher compiles, the per-grade data sources, and
// the photo URL templates. It is read once and treated as immutable.
type Manifest struct {
	Patterns ManifestPatterns  `json:"patterns"`
	Grades   map[string]string `json:"grades"`
	Photos   []string          `json:"photos"`
}

// ManifestPatterns holds the anchored identifier patterns, one per category.
type ManifestPatterns struct {
	Grade   string `json:"grade"`
	Class   string `json:"class"`
	Student string `json:"student"`
}
