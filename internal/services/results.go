// Package services – query results.
//
// Results form a closed union mirroring the callback union in domain: each
// variant carries the data one reply shape needs, plus the PageRef the
// renderer embeds so later callbacks can re-serve the same view. Handlers
// switch exhaustively on the concrete type.
package services

import (
	"github.com/scoredb/studentdb-bot/internal/domain"
	"github.com/scoredb/studentdb-bot/internal/page"
)

// Result is the closed interface over query outcomes.
type Result interface {
	isResult()
}

// GradeResult is a grade summary with a paged list of its class IDs.
type GradeResult struct {
	Grade domain.Grade
	Page  page.Page[string]
	Ref   domain.PageRef
}

// ClassResult is one page of a class roster.
type ClassResult struct {
	ClassID string
	Page    page.Page[domain.Student]
	Ref     domain.PageRef
}

// StudentResult is a single student record, either looked up directly or
// collapsed from a one-hit search. From, when set, points back at the list
// view the record was selected from.
type StudentResult struct {
	Student domain.Student
	From    *domain.PageRef
}

// SearchResult is one page of full-text matches.
type SearchResult struct {
	Query  string
	Facets domain.SearchFacets
	Page   page.Page[domain.Student]
	Ref    domain.PageRef
}

// PhotosResult is the photo set of one student.
type PhotosResult struct {
	StudentID string
	URLs      []string
}

// LimitsResult reports quota usage for the current window. It never charges.
type LimitsResult struct {
	Used      int
	Limit     int
	Remaining int
}

func (GradeResult) isResult()   {}
func (ClassResult) isResult()   {}
func (StudentResult) isResult() {}
func (SearchResult) isResult()  {}
func (PhotosResult) isResult()  {}
func (LimitsResult) isResult()  {}
