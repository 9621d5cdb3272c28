// Package reply renders service results into transport-neutral reply
// payloads: a text body plus an inline keyboard laid out in fixed-width
// rows. Button callback data is the encoded callback union; payloads that
// exceed the inline limit are spilled into the object cache and replaced by
// their token, since the upstream platform caps callback data at 64 bytes.
//
// Copy is deliberately minimal. The transport owns localization; this
// package owns the shapes.
package reply

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scoredb/studentdb-bot/internal/domain"
	"github.com/scoredb/studentdb-bot/internal/page"
	"github.com/scoredb/studentdb-bot/internal/providers"
	"github.com/scoredb/studentdb-bot/internal/services"
)

// Button is one inline keyboard button.
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Payload is one outbound reply.
type Payload struct {
	Text      string     `json:"text"`
	Keyboard  [][]Button `json:"keyboard,omitempty"`
	PhotoURLs []string   `json:"photo_urls,omitempty"`
}

// ObjectStore is the subset of the store the renderer needs to spill
// oversized callback payloads.
type ObjectStore interface {
	PutObject(ctx context.Context, payload any) (string, error)
}

// Renderer turns results into payloads.
type Renderer struct {
	// Objects receives callback payloads too large to inline.
	Objects ObjectStore
	// InlineLimit is the maximum callback data size sent inline.
	InlineLimit int
	// RowWidth is the number of buttons per keyboard row.
	RowWidth int
	// PhotoLimit caps the number of photo URLs in one reply.
	PhotoLimit int
}

// NewRenderer constructs a Renderer with the platform defaults.
func NewRenderer(objects ObjectStore) *Renderer {
	return &Renderer{
		Objects:     objects,
		InlineLimit: 64,
		RowWidth:    3,
		PhotoLimit:  12,
	}
}

// Render produces the payload for any query result.
func (r *Renderer) Render(ctx context.Context, res services.Result) (Payload, error) {
	switch v := res.(type) {
	case services.GradeResult:
		return r.grade(ctx, v)
	case services.ClassResult:
		return r.class(ctx, v)
	case services.StudentResult:
		return r.student(ctx, v)
	case services.SearchResult:
		return r.search(ctx, v)
	case services.PhotosResult:
		return r.photos(v), nil
	case services.LimitsResult:
		return r.limits(v), nil
	default:
		return Payload{}, fmt.Errorf("unrenderable result %T", res)
	}
}

func (r *Renderer) grade(ctx context.Context, v services.GradeResult) (Payload, error) {
	text := fmt.Sprintf("Grade %s: %d students in %d classes%s",
		v.Grade.ID, v.Grade.StudentCount(), len(v.Grade.ClassCounts), pageSuffix(v.Page.Index, v.Page.Count))

	buttons := make([]Button, 0, len(v.Page.Items))
	for _, classID := range v.Page.Items {
		b, err := r.button(ctx, fmt.Sprintf("%s (%d)", classID, v.Grade.ClassCounts[classID]),
			domain.ClassPageCallback{Ref: domain.PageRef{Kind: domain.PageClass, Key: classID}})
		if err != nil {
			return Payload{}, err
		}
		buttons = append(buttons, b)
	}
	kb := page.Rows(buttons, r.RowWidth)
	nav, err := r.navRow(ctx, v.Page.HasPrev(), v.Page.HasNext(), v.Page.PrevRef(v.Ref), v.Page.NextRef(v.Ref))
	if err != nil {
		return Payload{}, err
	}
	if nav != nil {
		kb = append(kb, nav)
	}
	return Payload{Text: text, Keyboard: kb}, nil
}

func (r *Renderer) class(ctx context.Context, v services.ClassResult) (Payload, error) {
	text := fmt.Sprintf("Class %s: %d students%s", v.ClassID, v.Page.Total, pageSuffix(v.Page.Index, v.Page.Count))

	buttons := make([]Button, 0, len(v.Page.Items))
	ids := make([]string, 0, len(v.Page.Items))
	for _, st := range v.Page.Items {
		ids = append(ids, st.ID)
		b, err := r.button(ctx, st.Name, domain.StudentCallback{StudentID: st.ID, From: refPtr(v.Ref)})
		if err != nil {
			return Payload{}, err
		}
		buttons = append(buttons, b)
	}
	kb := page.Rows(buttons, r.RowWidth)

	photoBtn, err := r.button(ctx, "Page photos", domain.PhotoCallback{StudentIDs: ids})
	if err != nil {
		return Payload{}, err
	}
	kb = append(kb, []Button{photoBtn})

	nav, err := r.navRow(ctx, v.Page.HasPrev(), v.Page.HasNext(), v.Page.PrevRef(v.Ref), v.Page.NextRef(v.Ref))
	if err != nil {
		return Payload{}, err
	}
	if nav != nil {
		kb = append(kb, nav)
	}
	return Payload{Text: text, Keyboard: kb}, nil
}

func (r *Renderer) search(ctx context.Context, v services.SearchResult) (Payload, error) {
	scope := ""
	if v.Facets.ClassID != "" {
		scope = " in " + v.Facets.ClassID
	} else if v.Facets.GradeID != "" {
		scope = " in " + v.Facets.GradeID
	}
	text := fmt.Sprintf("%d matches for %q%s%s", v.Page.Total, v.Query, scope, pageSuffix(v.Page.Index, v.Page.Count))

	buttons := make([]Button, 0, len(v.Page.Items))
	for _, st := range v.Page.Items {
		label := st.Name
		if st.ClassID != "" {
			label = st.Name + " " + st.ClassID
		}
		b, err := r.button(ctx, label, domain.StudentCallback{StudentID: st.ID, From: refPtr(v.Ref)})
		if err != nil {
			return Payload{}, err
		}
		buttons = append(buttons, b)
	}
	kb := page.Rows(buttons, r.RowWidth)
	nav, err := r.navRow(ctx, v.Page.HasPrev(), v.Page.HasNext(), v.Page.PrevRef(v.Ref), v.Page.NextRef(v.Ref))
	if err != nil {
		return Payload{}, err
	}
	if nav != nil {
		kb = append(kb, nav)
	}
	return Payload{Text: text, Keyboard: kb}, nil
}

func (r *Renderer) student(ctx context.Context, v services.StudentResult) (Payload, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nID: %s", v.Student.Name, v.Student.ID)
	if v.Student.ClassID != "" {
		fmt.Fprintf(&b, "\nClass: %s", v.Student.ClassID)
	}
	if v.Student.Gender != "" {
		fmt.Fprintf(&b, "\nGender: %s", v.Student.Gender)
	}
	if v.Student.Birthday != "" {
		fmt.Fprintf(&b, "\nBirthday: %s", v.Student.Birthday)
	}
	if v.Student.EduID != "" {
		fmt.Fprintf(&b, "\nEdu ID: %s", v.Student.EduID)
	}

	photoBtn, err := r.button(ctx, "Photos", domain.PhotoCallback{StudentID: v.Student.ID})
	if err != nil {
		return Payload{}, err
	}
	row := []Button{photoBtn}
	if v.From != nil {
		back, err := r.button(ctx, "Back", pageCallback(*v.From))
		if err != nil {
			return Payload{}, err
		}
		row = append(row, back)
	}
	return Payload{Text: b.String(), Keyboard: [][]Button{row}}, nil
}

func (r *Renderer) photos(v services.PhotosResult) Payload {
	if len(v.URLs) == 0 {
		return Payload{Text: fmt.Sprintf("No photos found for %s", v.StudentID)}
	}
	urls := v.URLs
	if r.PhotoLimit > 0 && len(urls) > r.PhotoLimit {
		urls = urls[:r.PhotoLimit]
	}
	return Payload{
		Text:      fmt.Sprintf("Photos of %s (%d)", v.StudentID, len(urls)),
		PhotoURLs: urls,
	}
}

func (r *Renderer) limits(v services.LimitsResult) Payload {
	return Payload{Text: fmt.Sprintf("Used %d of %d queries in the current window; %d remaining.", v.Used, v.Limit, v.Remaining)}
}

// Start renders the greeting with the auth and limits entry points.
func (r *Renderer) Start(ctx context.Context) (Payload, error) {
	authBtn, err := r.button(ctx, "Authorize", domain.AuthCallback{})
	if err != nil {
		return Payload{}, err
	}
	limitsBtn, err := r.button(ctx, "Limits", domain.LimitsCallback{})
	if err != nil {
		return Payload{}, err
	}
	return Payload{
		Text:     "Send a grade, class, or student ID, or a name to search.",
		Keyboard: [][]Button{{authBtn, limitsBtn}},
	}, nil
}

// DeviceAuth renders the pending device flow: where to go, what to type,
// and the check button.
func (r *Renderer) DeviceAuth(ctx context.Context, da providers.DeviceAuth) (Payload, error) {
	checkBtn, err := r.button(ctx, "I have authorized", domain.AuthCheckCallback{})
	if err != nil {
		return Payload{}, err
	}
	return Payload{
		Text:     fmt.Sprintf("Open %s and enter code %s, then press the button below.", da.VerificationURI, da.UserCode),
		Keyboard: [][]Button{{checkBtn}},
	}, nil
}

// AuthRequired renders the gate refusal shown when an unauthorized user
// sends a query.
func (r *Renderer) AuthRequired(ctx context.Context) (Payload, error) {
	authBtn, err := r.button(ctx, "Authorize", domain.AuthCallback{})
	if err != nil {
		return Payload{}, err
	}
	return Payload{
		Text:     "You are not authorized yet. Authorize to run queries.",
		Keyboard: [][]Button{{authBtn}},
	}, nil
}

// navRow builds the prev/next row, or nil when the view has one page.
func (r *Renderer) navRow(ctx context.Context, hasPrev, hasNext bool, prev, next domain.PageRef) ([]Button, error) {
	var row []Button
	if hasPrev {
		b, err := r.button(ctx, "Prev", pageCallback(prev))
		if err != nil {
			return nil, err
		}
		row = append(row, b)
	}
	if hasNext {
		b, err := r.button(ctx, "Next", pageCallback(next))
		if err != nil {
			return nil, err
		}
		row = append(row, b)
	}
	return row, nil
}

// button encodes cb into callback data, spilling to the object cache when it
// exceeds the inline limit.
func (r *Renderer) button(ctx context.Context, label string, cb domain.Callback) (Button, error) {
	enc, err := domain.EncodeCallback(cb)
	if err != nil {
		return Button{}, err
	}
	if r.InlineLimit > 0 && len(enc) > r.InlineLimit {
		token, err := r.Objects.PutObject(ctx, json.RawMessage(enc))
		if err != nil {
			return Button{}, err
		}
		enc = token
	}
	return Button{Label: label, Data: enc}, nil
}

// pageCallback wraps a navigation ref in the callback variant that serves
// its kind. Grade class-list pages travel as class callbacks; the ref's own
// kind routes them on the way back.
func pageCallback(ref domain.PageRef) domain.Callback {
	if ref.Kind == domain.PageSearch {
		return domain.SearchPageCallback{Ref: ref}
	}
	return domain.ClassPageCallback{Ref: ref}
}

func pageSuffix(index, count int) string {
	if count <= 1 {
		return ""
	}
	return fmt.Sprintf(" (page %d/%d)", index+1, count)
}

func refPtr(ref domain.PageRef) *domain.PageRef { return &ref }
