// Callback-update HTTP handlers.
//
// This file exposes the webhook endpoint for inline-keyboard button presses:
//   - POST /updates/callback
//
// Callback data arrives as the encoded payload a previous reply attached to
// the button, or as an object-cache token when the payload was too large to
// inline. Unknown, stale, or malformed payloads are dropped silently with
// status "ignored": a stale button on an old message is not an error.
package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scoredb/studentdb-bot/internal/domain"
	"github.com/scoredb/studentdb-bot/internal/http/middleware"
	"github.com/scoredb/studentdb-bot/internal/reply"
	"github.com/scoredb/studentdb-bot/internal/services"
)

// CallbackUpdate is the JSON payload for an inline-button press.
type CallbackUpdate struct {
	// UpdateID is the platform's update id, used for redelivery suppression.
	UpdateID string `json:"update_id" example:"736211043"`
	// UserID identifies the user who pressed the button.
	UserID string `json:"user_id" binding:"required" example:"u1001"`
	// Data is the callback payload attached to the button.
	Data string `json:"data" binding:"required"`
}

// HandleCallback processes one button press: deduplicate, decode the payload,
// and route it to the operation it names.
func (h *Handlers) HandleCallback(c *gin.Context) {
	ctx := c.Request.Context()

	var upd CallbackUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id and data required")
		return
	}
	c.Set("userID", upd.UserID)
	c.Set("updateID", upd.UpdateID)

	if h.dedup.Seen(upd.UpdateID) {
		middleware.ObserveDuplicateUpdate()
		ok(c, http.StatusOK, UpdateResponse{Status: "duplicate"})
		return
	}

	cb, err := h.qsvc.ResolveCallback(upd.Data)
	if err != nil {
		ok(c, http.StatusOK, UpdateResponse{Status: "ignored"})
		return
	}

	switch v := cb.(type) {
	case domain.AuthCallback:
		h.beginAuth(ctx, c, upd.UserID)
	case domain.AuthCheckCallback:
		h.checkAuth(ctx, c, upd.UserID)
	case domain.LimitsCallback:
		pl, err := h.render.Render(ctx, h.qsvc.Limits(ctx, upd.UserID))
		if err != nil {
			h.renderFail(c, err)
			return
		}
		middleware.ObserveDispatch("limits", "ok")
		h.respond(c, pl)
	case domain.SearchPageCallback:
		h.pageView(ctx, c, upd.UserID, v.Ref)
	case domain.ClassPageCallback:
		h.pageView(ctx, c, upd.UserID, v.Ref)
	case domain.StudentCallback:
		res, err := h.qsvc.Student(ctx, upd.UserID, v.StudentID, v.From)
		if err != nil {
			h.dispatchError(ctx, c, "student", err)
			return
		}
		h.renderResult(ctx, c, res)
	case domain.PhotoCallback:
		h.photos(ctx, c, upd.UserID, v)
	default:
		ok(c, http.StatusOK, UpdateResponse{Status: "ignored"})
	}
}

// pageView serves prev/next navigation.
func (h *Handlers) pageView(ctx context.Context, c *gin.Context, userID string, ref domain.PageRef) {
	res, err := h.qsvc.PageView(ctx, userID, ref)
	if err != nil {
		h.dispatchError(ctx, c, "page", err)
		return
	}
	h.renderResult(ctx, c, res)
}

// checkAuth polls the pending device flow once and reports the gate state.
func (h *Handlers) checkAuth(ctx context.Context, c *gin.Context, userID string) {
	status, err := h.asvc.Check(ctx, userID)
	switch {
	case err == services.ErrAuthNotStarted:
		pl, rerr := h.render.AuthRequired(ctx)
		if rerr != nil {
			h.renderFail(c, rerr)
			return
		}
		h.respond(c, pl)
	case err == services.ErrAuthExpired:
		h.respond(c, reply.Payload{Text: "The authorization code expired. Start again with /auth."})
	case err == services.ErrAuthDenied:
		h.respond(c, reply.Payload{Text: "Authorization was denied."})
	case err != nil:
		middleware.LoggerFrom(c).Error().Err(err).Msg("device flow poll failed")
		h.forgetUpdate(c)
		h.respond(c, reply.Payload{Text: "Could not reach the authorization service. Try again in a moment."})
	case status == domain.AuthOK:
		h.respond(c, reply.Payload{Text: "You are authorized. Send a query."})
	default:
		h.respond(c, reply.Payload{Text: "Not confirmed yet. Finish verification and press the button again."})
	}
}

// photos serves a single student's photos, or the photos of every student on
// a page when the callback carries an id list. Students without photos are
// skipped; the lookup fails only when nothing on the page resolves.
func (h *Handlers) photos(ctx context.Context, c *gin.Context, userID string, cb domain.PhotoCallback) {
	if cb.StudentID != "" {
		res, err := h.qsvc.Photos(ctx, userID, cb.StudentID)
		if err != nil {
			h.dispatchError(ctx, c, "photos", err)
			return
		}
		h.renderResult(ctx, c, res)
		return
	}

	var urls []string
	found := 0
	for _, id := range cb.StudentIDs {
		res, err := h.qsvc.Photos(ctx, userID, id)
		if err == services.ErrNotFound {
			continue
		}
		if err != nil {
			h.dispatchError(ctx, c, "photos", err)
			return
		}
		if pr, isPhotos := res.(services.PhotosResult); isPhotos && len(pr.URLs) > 0 {
			// One photo per student keeps a full page within the album cap.
			urls = append(urls, pr.URLs[0])
			found++
		}
	}
	h.renderResult(ctx, c, services.PhotosResult{
		StudentID: fmt.Sprintf("%d of %d students", found, len(cb.StudentIDs)),
		URLs:      urls,
	})
}
