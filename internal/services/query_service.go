// Package services – QueryService
//
// This file implements the query dispatcher. A free-text query goes through a
// fixed pipeline: auth gate, quota window check, normalization and
// tokenization, single-identifier classification (grade before class before
// student), then facet extraction and the universal search fallback. Every
// provider lookup goes through the memoizing store; a record lookup charges
// quota only when it actually reached the provider, and a definitive "not
// found" is cached and charged like any other answer. Photo lookups are
// memoized too but stay outside the quota window.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// the user ID and the resolved lookup kind.
package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/scoredb/studentdb-bot/internal/domain"
	"github.com/scoredb/studentdb-bot/internal/match"
	"github.com/scoredb/studentdb-bot/internal/page"
	"github.com/scoredb/studentdb-bot/internal/providers"
	"github.com/scoredb/studentdb-bot/internal/store"
)

// QueryService dispatches free-text queries and callback navigation against
// the memoizing store and the search provider.
type QueryService struct {
	// Store holds the result cache, quota windows, auth states, and the
	// object cache for oversized callback payloads.
	Store *store.Store
	// Provider is the student-records index client.
	Provider providers.SearchProvider
	// Matcher classifies identifier tokens and extracts facets.
	Matcher *match.Matcher

	// PageSize is the number of items per list page.
	PageSize int

	// Now is a clock seam for tests; defaults to time.Now.
	Now func() time.Time
}

// NewQueryService constructs a QueryService with default paging.
func NewQueryService(st *store.Store, p providers.SearchProvider, m *match.Matcher) *QueryService {
	return &QueryService{
		Store:    st,
		Provider: p,
		Matcher:  m,
		PageSize: 9,
		Now:      time.Now,
	}
}

func (s *QueryService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Dispatch resolves one free-text query for a user. The auth gate is checked
// first, then the quota window; neither consumes quota by itself. A query
// that is a single identifier is answered by a direct lookup in the order
// grade, class, student; anything else goes through facet extraction and the
// universal search. A one-hit search collapses to the student record.
func (s *QueryService) Dispatch(ctx context.Context, userID, text string) (Result, error) {
	tr := otel.Tracer("services/QueryService")
	ctx, span := tr.Start(ctx, "Dispatch",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if !s.Store.Authorized(userID) {
		return nil, ErrNotAuthenticated
	}
	if !s.Store.QuotaAllow(ctx, userID, s.now()) {
		return nil, ErrQuotaExceeded
	}

	tokens := match.Tokenize(match.Normalize(text))
	if len(tokens) == 0 {
		return nil, ErrEmptyQuery
	}

	if len(tokens) == 1 {
		kind, id := s.Matcher.Classify(tokens[0])
		span.SetAttributes(attribute.String("query.kind", kind.String()))
		switch kind {
		case match.KindGrade:
			return s.gradeView(ctx, userID, id, 0)
		case match.KindClass:
			return s.classView(ctx, userID, id, 0)
		case match.KindStudent:
			return s.studentView(ctx, userID, id, nil)
		}
	}

	facets, residual := s.Matcher.ExtractFacets(tokens)
	if len(residual) == 0 {
		// Identifiers only. A class facet wins even when a grade facet was
		// captured alongside it; the grade is implied by the class ID.
		if facets.ClassID != "" {
			return s.classView(ctx, userID, facets.ClassID, 0)
		}
		if facets.GradeID != "" {
			return s.gradeView(ctx, userID, facets.GradeID, 0)
		}
	}
	return s.searchView(ctx, userID, strings.Join(residual, " "), facets, 0)
}

// PageView re-serves a paged view from a navigation reference, typically a
// cache hit. The auth and quota gates apply the same as in Dispatch: a ref
// whose entry was evicted would otherwise reach the provider and charge past
// the limit. Unknown kinds map to ErrInvalidPageRef.
func (s *QueryService) PageView(ctx context.Context, userID string, ref domain.PageRef) (Result, error) {
	tr := otel.Tracer("services/QueryService")
	ctx, span := tr.Start(ctx, "PageView",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("page.kind", string(ref.Kind)),
			attribute.Int("page.index", ref.Page),
		),
	)
	defer span.End()

	if !s.Store.Authorized(userID) {
		return nil, ErrNotAuthenticated
	}
	if !s.Store.QuotaAllow(ctx, userID, s.now()) {
		return nil, ErrQuotaExceeded
	}
	switch ref.Kind {
	case domain.PageGrade:
		return s.gradeView(ctx, userID, ref.Key, ref.Page)
	case domain.PageClass:
		return s.classView(ctx, userID, ref.Key, ref.Page)
	case domain.PageSearch:
		query, facets, ok := splitSearchKey(ref.Key)
		if !ok {
			return nil, ErrInvalidPageRef
		}
		return s.searchView(ctx, userID, query, facets, ref.Page)
	default:
		return nil, ErrInvalidPageRef
	}
}

// Student serves a single record, usually selected from a list view and so
// usually warmed into the cache. The quota gate still applies first; a
// selection that misses (evicted, or a crafted callback) must not charge
// past the limit. From is carried through so the reply can offer a back
// reference.
func (s *QueryService) Student(ctx context.Context, userID, id string, from *domain.PageRef) (Result, error) {
	if !s.Store.Authorized(userID) {
		return nil, ErrNotAuthenticated
	}
	if !s.Store.QuotaAllow(ctx, userID, s.now()) {
		return nil, ErrQuotaExceeded
	}
	return s.studentView(ctx, userID, id, from)
}

// Photos returns the photo URLs for a student. Lookups are memoized in the
// photos table, so pressing the button twice, or expanding a whole page of
// students, costs the provider one call per student. Photo lookups never
// touch the quota window.
func (s *QueryService) Photos(ctx context.Context, userID, id string) (Result, error) {
	tr := otel.Tracer("services/QueryService")
	ctx, span := tr.Start(ctx, "Photos",
		trace.WithAttributes(attribute.String("student.id", id)),
	)
	defer span.End()

	if !s.Store.Authorized(userID) {
		return nil, ErrNotAuthenticated
	}
	lk, err := store.GetOrFetch(ctx, s.Store, store.KindPhotos, id, func(ctx context.Context) ([]string, bool, error) {
		urls, err := s.Provider.StudentPhotos(ctx, id)
		if errors.Is(err, providers.ErrNotFound) {
			return nil, false, nil
		}
		return urls, err == nil, err
	})
	if err != nil {
		return nil, err
	}
	if !lk.Found {
		return nil, ErrNotFound
	}
	return PhotosResult{StudentID: id, URLs: lk.Value}, nil
}

// Limits reports quota usage for the current window without charging it.
func (s *QueryService) Limits(ctx context.Context, userID string) LimitsResult {
	used, limit := s.Store.QuotaUsage(ctx, userID, s.now())
	return LimitsResult{Used: used, Limit: limit, Remaining: limit - used}
}

// ResolveCallback decodes a raw callback payload, resolving object-cache
// tokens first. Any payload that does not decode to a known kind maps to
// ErrInvalidPageRef so handlers can drop it silently.
func (s *QueryService) ResolveCallback(data string) (domain.Callback, error) {
	if strings.HasPrefix(data, domain.OCPrefix) {
		raw, ok := s.Store.GetObject(data)
		if !ok {
			return nil, ErrInvalidPageRef
		}
		data = string(raw)
	}
	cb, err := domain.DecodeCallback(data)
	if err != nil {
		return nil, ErrInvalidPageRef
	}
	return cb, nil
}

// --- cached lookups ---
//
// Each helper funnels through store.GetOrFetch: the provider's 404 becomes a
// cached negative, transport errors are returned uncached, and quota is
// charged exactly when the lookup was not a hit.

func (s *QueryService) gradeView(ctx context.Context, userID, id string, pageIdx int) (Result, error) {
	lk, err := store.GetOrFetch(ctx, s.Store, store.KindGrade, id, func(ctx context.Context) (domain.Grade, bool, error) {
		g, err := s.Provider.Grade(ctx, id)
		if errors.Is(err, providers.ErrNotFound) {
			return domain.Grade{}, false, nil
		}
		return g, err == nil, err
	})
	if err != nil {
		return nil, err
	}
	s.chargeMiss(ctx, userID, lk.Hit)
	if !lk.Found {
		return nil, ErrNotFound
	}

	classIDs := make([]string, 0, len(lk.Value.ClassCounts))
	for id := range lk.Value.ClassCounts {
		classIDs = append(classIDs, id)
	}
	sort.Strings(classIDs)

	pg := page.Paginate(classIDs, pageIdx, s.PageSize)
	ref := pg.Ref(domain.PageRef{Kind: domain.PageGrade, Key: id})
	return GradeResult{Grade: lk.Value, Page: pg, Ref: ref}, nil
}

func (s *QueryService) classView(ctx context.Context, userID, id string, pageIdx int) (Result, error) {
	lk, err := store.GetOrFetch(ctx, s.Store, store.KindClass, id, func(ctx context.Context) (domain.Class, bool, error) {
		c, err := s.Provider.Class(ctx, id)
		if errors.Is(err, providers.ErrNotFound) {
			return domain.Class{}, false, nil
		}
		return c, err == nil, err
	})
	if err != nil {
		return nil, err
	}
	s.chargeMiss(ctx, userID, lk.Hit)
	if !lk.Found {
		return nil, ErrNotFound
	}

	pg := page.Paginate(lk.Value.Students, pageIdx, s.PageSize)
	s.warm(ctx, pg.Items)
	ref := pg.Ref(domain.PageRef{Kind: domain.PageClass, Key: id})
	return ClassResult{ClassID: id, Page: pg, Ref: ref}, nil
}

func (s *QueryService) studentView(ctx context.Context, userID, id string, from *domain.PageRef) (Result, error) {
	lk, err := store.GetOrFetch(ctx, s.Store, store.KindStudent, id, func(ctx context.Context) (domain.Student, bool, error) {
		st, err := s.Provider.Student(ctx, id)
		if errors.Is(err, providers.ErrNotFound) {
			return domain.Student{}, false, nil
		}
		return st, err == nil, err
	})
	if err != nil {
		return nil, err
	}
	s.chargeMiss(ctx, userID, lk.Hit)
	if !lk.Found {
		return nil, ErrNotFound
	}
	return StudentResult{Student: lk.Value, From: from}, nil
}

func (s *QueryService) searchView(ctx context.Context, userID, query string, facets domain.SearchFacets, pageIdx int) (Result, error) {
	key := searchKey(query, facets)
	lk, err := store.GetOrFetch(ctx, s.Store, store.KindSearch, key, func(ctx context.Context) ([]domain.Student, bool, error) {
		items, err := s.Provider.Search(ctx, query, facets)
		if errors.Is(err, providers.ErrNotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		// An empty hit list is a definitive negative, same as a 404.
		return items, len(items) > 0, nil
	})
	if err != nil {
		return nil, err
	}
	s.chargeMiss(ctx, userID, lk.Hit)
	if !lk.Found {
		return nil, ErrNotFound
	}

	if len(lk.Value) == 1 {
		s.warm(ctx, lk.Value)
		return StudentResult{Student: lk.Value[0]}, nil
	}
	pg := page.Paginate(lk.Value, pageIdx, s.PageSize)
	s.warm(ctx, pg.Items)
	ref := pg.Ref(domain.PageRef{Kind: domain.PageSearch, Key: key})
	return SearchResult{Query: query, Facets: facets, Page: pg, Ref: ref}, nil
}

func (s *QueryService) chargeMiss(ctx context.Context, userID string, hit bool) {
	if !hit {
		s.Store.QuotaCharge(ctx, userID, s.now())
	}
}

// warm stores list items in the student table so selecting one from a
// keyboard never costs a second provider call. Existing entries are kept.
func (s *QueryService) warm(ctx context.Context, items []domain.Student) {
	for _, st := range items {
		if st.ID != "" {
			s.Store.WarmStudent(ctx, st.ID, st)
		}
	}
}

// searchKey builds the canonical cache key for a faceted search. The facet
// fields never contain '|', so the last two separators are unambiguous.
func searchKey(query string, f domain.SearchFacets) string {
	return strings.ToLower(query) + "|" + f.GradeID + "|" + f.ClassID
}

func splitSearchKey(key string) (query string, f domain.SearchFacets, ok bool) {
	j := strings.LastIndex(key, "|")
	if j < 0 {
		return "", domain.SearchFacets{}, false
	}
	i := strings.LastIndex(key[:j], "|")
	if i < 0 {
		return "", domain.SearchFacets{}, false
	}
	return key[:i], domain.SearchFacets{GradeID: key[i+1 : j], ClassID: key[j+1:]}, true
}
