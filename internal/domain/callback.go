// Package domain – callback payloads
//
// Inline-keyboard buttons carry a small JSON payload that comes back verbatim
// when the button is pressed. This file models those payloads as a closed
// tagged union over the known operation kinds, so the transport decodes them
// with an exhaustive switch instead of a string-keyed map of handlers.
// Unknown or malformed payloads decode to ErrUnknownCallback and are treated
// as a no-op upstream.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// OCPrefix marks a callback data string that is an ObjectCache token rather
// than an inline JSON payload.
const OCPrefix = "oc:"

// PageKind identifies which paginated view a PageRef belongs to.
type PageKind string

// Paginated view kinds.
const (
	PageGrade  PageKind = "grade"
	PageClass  PageKind = "class"
	PageSearch PageKind = "search"
)

// PageRef identifies "which paginated view, which page". Key is the class ID
// for class views and the cache key of the query for search views. Page is
// zero-based. PageRefs round-trip through callback payloads and the
// ObjectCache unchanged.
type PageRef struct {
	Kind PageKind `json:"kind"`
	Key  string   `json:"key"`
	Page int      `json:"page"`
}

// ErrUnknownCallback is returned when a callback payload does not decode to
// one of the known kinds. Callers treat it as a silent no-op.
var ErrUnknownCallback = errors.New("unknown callback payload")

// CallbackKind is the wire tag of a callback payload.
type CallbackKind string

// Known callback kinds. The set is closed: DecodeCallback rejects anything
// else.
const (
	CallbackAuth      CallbackKind = "auth"
	CallbackAuthCheck CallbackKind = "auth_check"
	CallbackLimits    CallbackKind = "limits"
	CallbackSearch    CallbackKind = "search"
	CallbackClass     CallbackKind = "class_data"
	CallbackStudent   CallbackKind = "student_data"
	CallbackPhoto     CallbackKind = "photo"
)

// Callback is the closed union of inline-button payloads. Exactly the types
// in this file implement it.
type Callback interface {
	CallbackKind() CallbackKind
}

// AuthCallback asks to start (or restart) the device-flow authentication.
type AuthCallback struct{}

// AuthCheckCallback asks to poll the pending device flow once.
type AuthCheckCallback struct{}

// LimitsCallback asks for the current quota usage report.
type LimitsCallback struct{}

// SearchPageCallback navigates to a page of a cached free-text search view.
type SearchPageCallback struct {
	Ref PageRef `json:"page_ref"`
}

// ClassPageCallback navigates to a page of a class roster view.
type ClassPageCallback struct {
	Ref PageRef `json:"page_ref"`
}

// StudentCallback opens a single student's detail view. From, when present,
// is the page the button was pressed on, used for the back-link.
type StudentCallback struct {
	StudentID string   `json:"student_id"`
	From      *PageRef `json:"from_page,omitempty"`
}

// PhotoCallback requests photos for one student, or the first photo of every
// student on a page when StudentIDs is set.
type PhotoCallback struct {
	StudentID  string   `json:"student_id,omitempty"`
	StudentIDs []string `json:"student_ids,omitempty"`
}

// CallbackKind implements Callback.
func (AuthCallback) CallbackKind() CallbackKind       { return CallbackAuth }
func (AuthCheckCallback) CallbackKind() CallbackKind  { return CallbackAuthCheck }
func (LimitsCallback) CallbackKind() CallbackKind     { return CallbackLimits }
func (SearchPageCallback) CallbackKind() CallbackKind { return CallbackSearch }
func (ClassPageCallback) CallbackKind() CallbackKind  { return CallbackClass }
func (StudentCallback) CallbackKind() CallbackKind    { return CallbackStudent }
func (PhotoCallback) CallbackKind() CallbackKind      { return CallbackPhoto }

// envelope is the wire shape: the union of all variant fields plus the tag.
type envelope struct {
	Type       CallbackKind `json:"type"`
	Ref        *PageRef     `json:"page_ref,omitempty"`
	StudentID  string       `json:"student_id,omitempty"`
	From       *PageRef     `json:"from_page,omitempty"`
	StudentIDs []string     `json:"student_ids,omitempty"`
}

// EncodeCallback serializes a callback payload to its compact JSON wire form.
func EncodeCallback(cb Callback) (string, error) {
	env := envelope{Type: cb.CallbackKind()}
	switch v := cb.(type) {
	case AuthCallback, AuthCheckCallback, LimitsCallback:
		// tag only
	case SearchPageCallback:
		ref := v.Ref
		env.Ref = &ref
	case ClassPageCallback:
		ref := v.Ref
		env.Ref = &ref
	case StudentCallback:
		env.StudentID = v.StudentID
		env.From = v.From
	case PhotoCallback:
		env.StudentID = v.StudentID
		env.StudentIDs = v.StudentIDs
	default:
		return "", fmt.Errorf("encode callback: unsupported type %T", cb)
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeCallback parses a JSON callback payload back into its typed variant.
// Payloads with an unknown tag, a missing tag, or a missing required field
// return ErrUnknownCallback.
func DecodeCallback(data string) (Callback, error) {
	var env envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return nil, ErrUnknownCallback
	}
	switch env.Type {
	case CallbackAuth:
		return AuthCallback{}, nil
	case CallbackAuthCheck:
		return AuthCheckCallback{}, nil
	case CallbackLimits:
		return LimitsCallback{}, nil
	case CallbackSearch:
		if env.Ref == nil {
			return nil, ErrUnknownCallback
		}
		return SearchPageCallback{Ref: *env.Ref}, nil
	case CallbackClass:
		if env.Ref == nil {
			return nil, ErrUnknownCallback
		}
		return ClassPageCallback{Ref: *env.Ref}, nil
	case CallbackStudent:
		if env.StudentID == "" {
			return nil, ErrUnknownCallback
		}
		return StudentCallback{StudentID: env.StudentID, From: env.From}, nil
	case CallbackPhoto:
		if env.StudentID == "" && len(env.StudentIDs) == 0 {
			return nil, ErrUnknownCallback
		}
		return PhotoCallback{StudentID: env.StudentID, StudentIDs: env.StudentIDs}, nil
	default:
		return nil, ErrUnknownCallback
	}
}
