// Message-update HTTP handlers.
//
// This file exposes the webhook endpoint for inbound text messages:
//   - POST /updates/message
//
// Handlers are transport-thin: they validate and deduplicate the update,
// route commands, delegate to application services (QueryService,
// AuthService), and render the service result into a reply payload. Service
// errors with a user-facing meaning (auth gate, quota, not found) become
// normal replies, not HTTP errors: the webhook always answers 200 so the
// platform does not redeliver.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/scoredb/studentdb-bot/internal/domain"
	"github.com/scoredb/studentdb-bot/internal/http/middleware"
	"github.com/scoredb/studentdb-bot/internal/providers"
	"github.com/scoredb/studentdb-bot/internal/reply"
	"github.com/scoredb/studentdb-bot/internal/services"
)

//
// Service contracts (context-aware)
//

// QueryService defines the query-dispatch operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type QueryService interface {
	// Dispatch resolves one free-text query for a user.
	Dispatch(ctx context.Context, userID, text string) (services.Result, error)
	// PageView re-serves a paged view from a navigation reference.
	PageView(ctx context.Context, userID string, ref domain.PageRef) (services.Result, error)
	// Student serves a single record, carrying the originating page ref.
	Student(ctx context.Context, userID, id string, from *domain.PageRef) (services.Result, error)
	// Photos returns the photo URLs for one student.
	Photos(ctx context.Context, userID, id string) (services.Result, error)
	// Limits reports quota usage without charging it.
	Limits(ctx context.Context, userID string) services.LimitsResult
	// ResolveCallback decodes raw callback data, resolving object-cache tokens.
	ResolveCallback(data string) (domain.Callback, error)
}

// AuthService defines the device-flow gate operations consumed by HTTP
// handlers.
type AuthService interface {
	// Begin starts (or restarts) a device flow for the user.
	Begin(ctx context.Context, userID string) (providers.DeviceAuth, error)
	// Check polls the pending device flow once.
	Check(ctx context.Context, userID string) (domain.AuthStatus, error)
}

// Renderer turns service results into reply payloads.
type Renderer interface {
	Render(ctx context.Context, res services.Result) (reply.Payload, error)
	Start(ctx context.Context) (reply.Payload, error)
	DeviceAuth(ctx context.Context, da providers.DeviceAuth) (reply.Payload, error)
	AuthRequired(ctx context.Context) (reply.Payload, error)
}

//
// Handler wiring
//

// Handlers groups the webhook endpoints for message and callback updates.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	qsvc   QueryService
	asvc   AuthService
	render Renderer
	dedup  *middleware.Deduper
}

// New constructs and returns a Handlers instance bound to the given services.
func New(qsvc QueryService, asvc AuthService, render Renderer, dedup *middleware.Deduper) *Handlers {
	return &Handlers{qsvc: qsvc, asvc: asvc, render: render, dedup: dedup}
}

//
// DTOs
//

// MessageUpdate is the JSON payload for an inbound text message.
type MessageUpdate struct {
	// UpdateID is the platform's monotonically increasing update id, used
	// for redelivery suppression. Optional; empty ids are never deduplicated.
	UpdateID string `json:"update_id" example:"736211042"`
	// UserID identifies the sender.
	UserID string `json:"user_id" binding:"required" example:"u1001"`
	// ChatType is the conversation kind: "private", "group", or "supergroup".
	ChatType string `json:"chat_type" example:"private"`
	// Text is the message body. Commands start with '/'.
	Text string `json:"text" binding:"required" example:"x07 wang"`
}

// UpdateResponse is the JSON envelope for a processed update.
//
// Status is "ok" when a reply was produced, "duplicate" when the update was
// already seen, and "ignored" when the update carries nothing actionable
// (group chatter, unknown callbacks).
type UpdateResponse struct {
	Status string         `json:"status"`
	Reply  *reply.Payload `json:"reply,omitempty"`
}

//
// Handlers
//

// HandleMessage processes one inbound text message: deduplicate, route
// commands, dispatch free text, render the result.
//
// Free text in group chats is ignored unless sent as an explicit /search
// command, so the bot does not answer every message in a busy room.
func (h *Handlers) HandleMessage(c *gin.Context) {
	ctx := c.Request.Context()

	var upd MessageUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id and text required")
		return
	}
	c.Set("userID", upd.UserID)
	c.Set("updateID", upd.UpdateID)

	if h.dedup.Seen(upd.UpdateID) {
		middleware.ObserveDuplicateUpdate()
		ok(c, http.StatusOK, UpdateResponse{Status: "duplicate"})
		return
	}

	text := strings.TrimSpace(upd.Text)
	if cmd, rest, isCmd := splitCommand(text); isCmd {
		h.runCommand(ctx, c, upd.UserID, cmd, rest)
		return
	}
	if isGroupChat(upd.ChatType) {
		ok(c, http.StatusOK, UpdateResponse{Status: "ignored"})
		return
	}
	h.dispatch(ctx, c, upd.UserID, text)
}

// runCommand executes one slash command.
func (h *Handlers) runCommand(ctx context.Context, c *gin.Context, userID, cmd, rest string) {
	switch cmd {
	case "/start", "/help":
		pl, err := h.render.Start(ctx)
		if err != nil {
			h.renderFail(c, err)
			return
		}
		h.respond(c, pl)
	case "/limits":
		pl, err := h.render.Render(ctx, h.qsvc.Limits(ctx, userID))
		if err != nil {
			h.renderFail(c, err)
			return
		}
		middleware.ObserveDispatch("limits", "ok")
		h.respond(c, pl)
	case "/auth":
		h.beginAuth(ctx, c, userID)
	case "/search":
		h.dispatch(ctx, c, userID, rest)
	default:
		h.respond(c, reply.Payload{Text: "Unknown command. Try /help."})
	}
}

// dispatch runs a free-text query and maps service errors to user-facing
// replies.
func (h *Handlers) dispatch(ctx context.Context, c *gin.Context, userID, text string) {
	res, err := h.qsvc.Dispatch(ctx, userID, text)
	if err != nil {
		h.dispatchError(ctx, c, "query", err)
		return
	}
	h.renderResult(ctx, c, res)
}

// dispatchError translates gate, quota, and lookup errors into replies. Only
// unexpected errors surface as HTTP 502.
func (h *Handlers) dispatchError(ctx context.Context, c *gin.Context, kind string, err error) {
	switch {
	case err == services.ErrNotAuthenticated:
		middleware.ObserveDispatch(kind, "unauthorized")
		pl, rerr := h.render.AuthRequired(ctx)
		if rerr != nil {
			h.renderFail(c, rerr)
			return
		}
		h.respond(c, pl)
	case err == services.ErrQuotaExceeded:
		middleware.ObserveQuotaRejection()
		middleware.ObserveDispatch(kind, "quota_exceeded")
		h.respond(c, reply.Payload{Text: "Query limit reached for the current window. Check /limits and try again later."})
	case err == services.ErrEmptyQuery:
		middleware.ObserveDispatch(kind, "empty")
		h.respond(c, reply.Payload{Text: "Send a grade, class, or student ID, or a name to search."})
	case err == services.ErrNotFound:
		middleware.ObserveDispatch(kind, "not_found")
		h.respond(c, reply.Payload{Text: "No matching records."})
	case err == services.ErrInvalidPageRef:
		middleware.ObserveDispatch(kind, "invalid_ref")
		ok(c, http.StatusOK, UpdateResponse{Status: "ignored"})
	default:
		middleware.ObserveDispatch(kind, "error")
		middleware.LoggerFrom(c).Error().Err(err).Str("kind", kind).Msg("dispatch failed")
		h.forgetUpdate(c)
		h.respond(c, reply.Payload{Text: "Something went wrong. Try again in a moment."})
	}
}

// forgetUpdate releases the dedup claim on the current update. Called on
// transient failures so the platform's redelivery gets a fresh attempt
// instead of a "duplicate" answer.
func (h *Handlers) forgetUpdate(c *gin.Context) {
	if v, ok := c.Get("updateID"); ok {
		if id, ok := v.(string); ok {
			h.dedup.Forget(id)
		}
	}
}

// renderFail reports a render failure. The 500 makes the platform redeliver,
// so the dedup claim is released first.
func (h *Handlers) renderFail(c *gin.Context, err error) {
	h.forgetUpdate(c)
	fail(c, http.StatusInternalServerError, ErrCodeRenderFailed, err.Error())
}

// renderResult renders a successful service result.
func (h *Handlers) renderResult(ctx context.Context, c *gin.Context, res services.Result) {
	pl, err := h.render.Render(ctx, res)
	if err != nil {
		h.renderFail(c, err)
		return
	}
	middleware.ObserveDispatch(resultKind(res), "ok")
	h.respond(c, pl)
}

// beginAuth starts a device flow and renders the verification instructions.
func (h *Handlers) beginAuth(ctx context.Context, c *gin.Context, userID string) {
	da, err := h.asvc.Begin(ctx, userID)
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Msg("device flow start failed")
		h.forgetUpdate(c)
		h.respond(c, reply.Payload{Text: "The authorization service is unavailable. Try again in a moment."})
		return
	}
	pl, err := h.render.DeviceAuth(ctx, da)
	if err != nil {
		h.renderFail(c, err)
		return
	}
	h.respond(c, pl)
}

func (h *Handlers) respond(c *gin.Context, pl reply.Payload) {
	ok(c, http.StatusOK, UpdateResponse{Status: "ok", Reply: &pl})
}

// splitCommand parses a leading slash command. A "@botname" suffix on the
// command token is stripped, as group chats address commands that way.
func splitCommand(text string) (cmd, rest string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	cmd = text
	if i := strings.IndexByte(text, ' '); i >= 0 {
		cmd, rest = text[:i], strings.TrimSpace(text[i+1:])
	}
	if j := strings.IndexByte(cmd, '@'); j >= 0 {
		cmd = cmd[:j]
	}
	return strings.ToLower(cmd), rest, true
}

func isGroupChat(chatType string) bool {
	return chatType == "group" || chatType == "supergroup"
}

// resultKind labels a result for metrics.
func resultKind(res services.Result) string {
	switch res.(type) {
	case services.GradeResult:
		return "grade"
	case services.ClassResult:
		return "class"
	case services.StudentResult:
		return "student"
	case services.SearchResult:
		return "search"
	case services.PhotosResult:
		return "photos"
	case services.LimitsResult:
		return "limits"
	default:
		return "unknown"
	}
}
