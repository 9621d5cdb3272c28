package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scoredb/studentdb-bot/internal/domain"
	"github.com/scoredb/studentdb-bot/internal/http/middleware"
	"github.com/scoredb/studentdb-bot/internal/providers"
	"github.com/scoredb/studentdb-bot/internal/reply"
	"github.com/scoredb/studentdb-bot/internal/services"
	"github.com/scoredb/studentdb-bot/internal/store"
)

//
// Fakes
//

type fakeQuery struct {
	dispatched  []string
	dispatchRes services.Result
	dispatchErr error

	pageRefs []domain.PageRef
	pageRes  services.Result
	pageErr  error

	studentIDs []string
	studentRes services.Result
	studentErr error

	photos    map[string][]string
	photosErr map[string]error

	limits services.LimitsResult

	resolveCb  domain.Callback
	resolveErr error
}

func (f *fakeQuery) Dispatch(ctx context.Context, userID, text string) (services.Result, error) {
	f.dispatched = append(f.dispatched, text)
	return f.dispatchRes, f.dispatchErr
}

func (f *fakeQuery) PageView(ctx context.Context, userID string, ref domain.PageRef) (services.Result, error) {
	f.pageRefs = append(f.pageRefs, ref)
	return f.pageRes, f.pageErr
}

func (f *fakeQuery) Student(ctx context.Context, userID, id string, from *domain.PageRef) (services.Result, error) {
	f.studentIDs = append(f.studentIDs, id)
	return f.studentRes, f.studentErr
}

func (f *fakeQuery) Photos(ctx context.Context, userID, id string) (services.Result, error) {
	if err, ok := f.photosErr[id]; ok {
		return nil, err
	}
	return services.PhotosResult{StudentID: id, URLs: f.photos[id]}, nil
}

func (f *fakeQuery) Limits(ctx context.Context, userID string) services.LimitsResult {
	return f.limits
}

func (f *fakeQuery) ResolveCallback(data string) (domain.Callback, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	if f.resolveCb != nil {
		return f.resolveCb, nil
	}
	cb, err := domain.DecodeCallback(data)
	if err != nil {
		return nil, services.ErrInvalidPageRef
	}
	return cb, nil
}

type fakeAuth struct {
	begins      int
	beginDA     providers.DeviceAuth
	beginErr    error
	checks      int
	checkStatus domain.AuthStatus
	checkErr    error
}

func (f *fakeAuth) Begin(ctx context.Context, userID string) (providers.DeviceAuth, error) {
	f.begins++
	return f.beginDA, f.beginErr
}

func (f *fakeAuth) Check(ctx context.Context, userID string) (domain.AuthStatus, error) {
	f.checks++
	return f.checkStatus, f.checkErr
}

//
// Harness
//

func newTestRouter(t *testing.T, q QueryService, a AuthService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := New(q, a, reply.NewRenderer(store.New()), middleware.NewDeduper(time.Minute))
	r.POST("/updates/message", h.HandleMessage)
	r.POST("/updates/callback", h.HandleCallback)
	return r
}

func doPost(t *testing.T, r *gin.Engine, path string, body any) (*httptest.ResponseRecorder, UpdateResponse) {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	var resp UpdateResponse
	if w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("json: %v", err)
		}
	}
	return w, resp
}

func hasButton(pl *reply.Payload, label string) bool {
	if pl == nil {
		return false
	}
	for _, row := range pl.Keyboard {
		for _, b := range row {
			if b.Label == label {
				return true
			}
		}
	}
	return false
}

//
// Message updates
//

func TestHandleMessage_BadRequest(t *testing.T) {
	r := newTestRouter(t, &fakeQuery{}, &fakeAuth{})

	w, _ := doPost(t, r, "/updates/message", map[string]string{"user_id": "u1"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json: %v", err)
	}
	if er.Code != ErrCodeBadRequest {
		t.Fatalf("code=%s", er.Code)
	}
}

func TestHandleMessage_DuplicateUpdate(t *testing.T) {
	q := &fakeQuery{dispatchRes: services.StudentResult{Student: domain.Student{ID: "x0701001", Name: "Wang Fang"}}}
	r := newTestRouter(t, q, &fakeAuth{})

	upd := MessageUpdate{UpdateID: "42", UserID: "u1", ChatType: "private", Text: "x0701001"}
	if _, resp := doPost(t, r, "/updates/message", upd); resp.Status != "ok" {
		t.Fatalf("first status=%s", resp.Status)
	}
	if _, resp := doPost(t, r, "/updates/message", upd); resp.Status != "duplicate" {
		t.Fatalf("second status=%s", resp.Status)
	}
	if len(q.dispatched) != 1 {
		t.Fatalf("dispatched=%d", len(q.dispatched))
	}
}

func TestHandleMessage_RedeliveryAfterTransientFailure(t *testing.T) {
	q := &fakeQuery{dispatchErr: context.DeadlineExceeded}
	r := newTestRouter(t, q, &fakeAuth{})

	upd := MessageUpdate{UpdateID: "43", UserID: "u1", ChatType: "private", Text: "x0701001"}
	_, resp := doPost(t, r, "/updates/message", upd)
	if resp.Status != "ok" || resp.Reply == nil || !strings.Contains(resp.Reply.Text, "went wrong") {
		t.Fatalf("first resp=%+v", resp)
	}

	// The failure released the dedup claim, so the platform's redelivery is
	// processed for real once the provider recovers.
	q.dispatchErr = nil
	q.dispatchRes = services.StudentResult{Student: domain.Student{ID: "x0701001", Name: "Wang Fang"}}
	if _, resp := doPost(t, r, "/updates/message", upd); resp.Status != "ok" || resp.Reply == nil || !strings.Contains(resp.Reply.Text, "Wang Fang") {
		t.Fatalf("redelivery resp=%+v", resp)
	}
	if len(q.dispatched) != 2 {
		t.Fatalf("dispatched=%d, want 2", len(q.dispatched))
	}

	// A third delivery after the successful reply is a duplicate again.
	if _, resp := doPost(t, r, "/updates/message", upd); resp.Status != "duplicate" {
		t.Fatalf("third status=%s", resp.Status)
	}
}

func TestHandleMessage_StartCommand(t *testing.T) {
	r := newTestRouter(t, &fakeQuery{}, &fakeAuth{})

	_, resp := doPost(t, r, "/updates/message", MessageUpdate{UserID: "u1", Text: "/start"})
	if resp.Status != "ok" || resp.Reply == nil {
		t.Fatalf("resp=%+v", resp)
	}
	if !hasButton(resp.Reply, "Authorize") || !hasButton(resp.Reply, "Limits") {
		t.Fatalf("keyboard=%+v", resp.Reply.Keyboard)
	}
}

func TestHandleMessage_GroupFreeTextIgnored(t *testing.T) {
	q := &fakeQuery{dispatchRes: services.StudentResult{Student: domain.Student{ID: "x0701001", Name: "Wang Fang"}}}
	r := newTestRouter(t, q, &fakeAuth{})

	_, resp := doPost(t, r, "/updates/message", MessageUpdate{UserID: "u1", ChatType: "group", Text: "wang"})
	if resp.Status != "ignored" {
		t.Fatalf("status=%s", resp.Status)
	}
	if len(q.dispatched) != 0 {
		t.Fatalf("dispatched=%v", q.dispatched)
	}

	// Explicit /search works in groups, including the @botname address form.
	_, resp = doPost(t, r, "/updates/message", MessageUpdate{UserID: "u1", ChatType: "group", Text: "/search@scorebot wang"})
	if resp.Status != "ok" {
		t.Fatalf("status=%s", resp.Status)
	}
	if len(q.dispatched) != 1 || q.dispatched[0] != "wang" {
		t.Fatalf("dispatched=%v", q.dispatched)
	}
}

func TestHandleMessage_UnknownCommand(t *testing.T) {
	r := newTestRouter(t, &fakeQuery{}, &fakeAuth{})

	_, resp := doPost(t, r, "/updates/message", MessageUpdate{UserID: "u1", Text: "/frobnicate"})
	if resp.Reply == nil || !strings.Contains(resp.Reply.Text, "Unknown command") {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestHandleMessage_LimitsCommand(t *testing.T) {
	q := &fakeQuery{limits: services.LimitsResult{Used: 3, Limit: 30, Remaining: 27}}
	r := newTestRouter(t, q, &fakeAuth{})

	_, resp := doPost(t, r, "/updates/message", MessageUpdate{UserID: "u1", Text: "/limits"})
	if resp.Reply == nil || !strings.Contains(resp.Reply.Text, "3 of 30") {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestHandleMessage_AuthCommand(t *testing.T) {
	a := &fakeAuth{beginDA: providers.DeviceAuth{
		DeviceCode:      "dev-1",
		UserCode:        "WDJB-MJHT",
		VerificationURI: "https://auth.example/activate",
	}}
	r := newTestRouter(t, &fakeQuery{}, a)

	_, resp := doPost(t, r, "/updates/message", MessageUpdate{UserID: "u1", Text: "/auth"})
	if resp.Reply == nil {
		t.Fatalf("no reply")
	}
	if !strings.Contains(resp.Reply.Text, "WDJB-MJHT") || !strings.Contains(resp.Reply.Text, "https://auth.example/activate") {
		t.Fatalf("text=%q", resp.Reply.Text)
	}
	if a.begins != 1 {
		t.Fatalf("begins=%d", a.begins)
	}
}

func TestHandleMessage_AuthCommandProviderDown(t *testing.T) {
	a := &fakeAuth{beginErr: context.DeadlineExceeded}
	r := newTestRouter(t, &fakeQuery{}, a)

	w, resp := doPost(t, r, "/updates/message", MessageUpdate{UserID: "u1", Text: "/auth"})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if resp.Reply == nil || !strings.Contains(resp.Reply.Text, "unavailable") {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestHandleMessage_DispatchResult(t *testing.T) {
	q := &fakeQuery{dispatchRes: services.StudentResult{Student: domain.Student{ID: "x0701001", Name: "Wang Fang", ClassID: "x0701"}}}
	r := newTestRouter(t, q, &fakeAuth{})

	_, resp := doPost(t, r, "/updates/message", MessageUpdate{UserID: "u1", Text: "x0701001"})
	if resp.Status != "ok" || resp.Reply == nil {
		t.Fatalf("resp=%+v", resp)
	}
	if !strings.Contains(resp.Reply.Text, "Wang Fang") {
		t.Fatalf("text=%q", resp.Reply.Text)
	}
}

func TestHandleMessage_ServiceErrorsBecomeReplies(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"unauthorized", services.ErrNotAuthenticated, "not authorized"},
		{"quota", services.ErrQuotaExceeded, "limit reached"},
		{"empty", services.ErrEmptyQuery, "grade, class, or student ID"},
		{"not_found", services.ErrNotFound, "No matching records"},
		{"internal", context.DeadlineExceeded, "Something went wrong"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := &fakeQuery{dispatchErr: tc.err}
			r := newTestRouter(t, q, &fakeAuth{})

			w, resp := doPost(t, r, "/updates/message", MessageUpdate{UserID: "u1", Text: "anything"})
			if w.Code != http.StatusOK {
				t.Fatalf("status=%d", w.Code)
			}
			if resp.Reply == nil || !strings.Contains(resp.Reply.Text, tc.want) {
				t.Fatalf("resp=%+v", resp)
			}
		})
	}
}

func TestHandleMessage_UnauthorizedReplyOffersAuth(t *testing.T) {
	q := &fakeQuery{dispatchErr: services.ErrNotAuthenticated}
	r := newTestRouter(t, q, &fakeAuth{})

	_, resp := doPost(t, r, "/updates/message", MessageUpdate{UserID: "u1", Text: "x07"})
	if !hasButton(resp.Reply, "Authorize") {
		t.Fatalf("reply=%+v", resp.Reply)
	}
}

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		in        string
		cmd, rest string
		ok        bool
	}{
		{"/start", "/start", "", true},
		{"/Search  wang li", "/search", "wang li", true},
		{"/help@scorebot", "/help", "", true},
		{"/search@scorebot x07", "/search", "x07", true},
		{"x0701001", "", "", false},
		{"wang /search", "", "", false},
	}
	for _, tc := range cases {
		cmd, rest, ok := splitCommand(tc.in)
		if cmd != tc.cmd || rest != tc.rest || ok != tc.ok {
			t.Fatalf("splitCommand(%q) = (%q, %q, %v)", tc.in, cmd, rest, ok)
		}
	}
}
