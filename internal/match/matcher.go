// Package match classifies free-text queries against the identifier patterns
// distributed in the manifest. It is deliberately small and dependency-light:
//
//   - No logging (callers decide how/what to log)
//   - Patterns compile once at construction; the Matcher is immutable and
//     safe for concurrent use
//   - Unicode-aware normalization (NFKC) so full-width digits and letters
//     typed from CJK input methods match the ASCII identifier patterns
//   - Deterministic facet extraction with a documented precedence order
//
// Matching follows the upstream convention: a pattern matches from the start
// of the token and is not required to consume it entirely; trailing
// characters are ignored. That looseness is part of the contract, not an
// accident. A successful match returns the matched substring upper-cased.
package match

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/scoredb/studentdb-bot/internal/domain"
)

// Kind is the result of single-identifier classification.
type Kind int

// Classification kinds, in precedence order. The dispatcher relies on this
// order: grade is tried before class before student.
const (
	KindNone Kind = iota
	KindGrade
	KindClass
	KindStudent
)

// String implements fmt.Stringer for log and metric labels.
func (k Kind) String() string {
	switch k {
	case KindGrade:
		return "grade"
	case KindClass:
		return "class"
	case KindStudent:
		return "student"
	default:
		return "none"
	}
}

// Default identifier patterns, used when the manifest omits one. They mirror
// the upstream dataset's identifier scheme: a campus letter followed by two
// digits for grades, four for classes, six for students (or a raw
// eight-digit education ID).
const (
	DefaultGradePattern   = `^[xcg][0-9]{2}$`
	DefaultClassPattern   = `^[xcg][0-9]{4}$`
	DefaultStudentPattern = `(^[xcg][0-9]{6}$)|(^[0-9]{8}$)`
)

// Matcher holds the compiled identifier patterns. Construct with New; the
// zero value is not usable.
type Matcher struct {
	grade   *regexp.Regexp
	class   *regexp.Regexp
	student *regexp.Regexp
}

// New compiles the manifest patterns into a Matcher. Empty pattern strings
// fall back to the defaults. Patterns are compiled case-insensitively and
// anchored at the start of the subject.
func New(p domain.ManifestPatterns) (*Matcher, error) {
	g, err := compileAnchored(orDefault(p.Grade, DefaultGradePattern))
	if err != nil {
		return nil, fmt.Errorf("grade pattern: %w", err)
	}
	c, err := compileAnchored(orDefault(p.Class, DefaultClassPattern))
	if err != nil {
		return nil, fmt.Errorf("class pattern: %w", err)
	}
	s, err := compileAnchored(orDefault(p.Student, DefaultStudentPattern))
	if err != nil {
		return nil, fmt.Errorf("student pattern: %w", err)
	}
	return &Matcher{grade: g, class: c, student: s}, nil
}

// MustNew is New for static patterns; it panics on compile errors.
func MustNew(p domain.ManifestPatterns) *Matcher {
	m, err := New(p)
	if err != nil {
		panic(err)
	}
	return m
}

// Grade reports whether tok is a grade identifier, returning the normalized
// (upper-cased) match.
func (m *Matcher) Grade(tok string) (string, bool) { return matchOne(m.grade, tok) }

// Class reports whether tok is a class identifier.
func (m *Matcher) Class(tok string) (string, bool) { return matchOne(m.class, tok) }

// Student reports whether tok is a student identifier.
func (m *Matcher) Student(tok string) (string, bool) { return matchOne(m.student, tok) }

// Classify tries the single-identifier categories in precedence order
// (grade, class, student) and returns the first that matches, with its
// normalized value. KindNone means the query is not an identifier.
func (m *Matcher) Classify(query string) (Kind, string) {
	if v, ok := m.Grade(query); ok {
		return KindGrade, v
	}
	if v, ok := m.Class(query); ok {
		return KindClass, v
	}
	if v, ok := m.Student(query); ok {
		return KindStudent, v
	}
	return KindNone, ""
}

// ExtractFacets scans tokens left to right and claims at most one grade and
// one class facet. A token consumed as a facet is removed from the residual;
// the first token to match an unclaimed slot wins it, and once both slots
// are filled the remaining tokens are not tested. Token order in the
// residual is preserved.
func (m *Matcher) ExtractFacets(tokens []string) (domain.SearchFacets, []string) {
	var facets domain.SearchFacets
	residual := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if facets.GradeID == "" {
			if v, ok := m.Grade(tok); ok {
				facets.GradeID = v
				continue
			}
		}
		if facets.ClassID == "" {
			if v, ok := m.Class(tok); ok {
				facets.ClassID = v
				continue
			}
		}
		residual = append(residual, tok)
	}
	return facets, residual
}

// Normalize applies NFKC folding and trims surrounding whitespace. NFKC maps
// full-width forms (ｘ１２) onto their ASCII compatibility equivalents so the
// identifier patterns match regardless of input method.
func Normalize(query string) string {
	return strings.TrimSpace(norm.NFKC.String(query))
}

// Tokenize splits a normalized query on whitespace and drops tokens that are
// empty or begin with a mention/command marker ('@', '/').
func Tokenize(query string) []string {
	fields := strings.Fields(query)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if strings.HasPrefix(f, "@") || strings.HasPrefix(f, "/") {
			continue
		}
		out = append(out, f)
	}
	return out
}

func matchOne(re *regexp.Regexp, tok string) (string, bool) {
	loc := re.FindStringIndex(tok)
	if loc == nil || loc[0] != 0 {
		return "", false
	}
	return strings.ToUpper(tok[loc[0]:loc[1]]), true
}

// compileAnchored wraps p so it can only match at the start of the subject,
// mirroring Python's re.match semantics the patterns were written for.
func compileAnchored(p string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)^(?:` + p + `)`)
}

func orDefault(p, def string) string {
	if strings.TrimSpace(p) == "" {
		return def
	}
	return p
}
