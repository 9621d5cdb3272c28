package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func responseRouter(logs *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	logger := zerolog.New(logs)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-1")
		c.Set("logger", &logger)
		c.Next()
	})
	return r
}

func TestFailEnvelope(t *testing.T) {
	var logs bytes.Buffer
	r := responseRouter(&logs)
	r.POST("/render-broken", func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, ErrCodeRenderFailed, "render failed")
	})
	r.POST("/bad-update", func(c *gin.Context) {
		Fail(c, http.StatusBadRequest, ErrCodeBadRequest, "missing user_id")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/render-broken", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.RequestID != "rid-1" || resp.Code != ErrCodeRenderFailed || resp.Message != "render failed" {
		t.Fatalf("unexpected body: %+v", resp)
	}
	// 5xx failures get logged; client errors below do not.
	if !strings.Contains(logs.String(), `"level":"error"`) {
		t.Fatalf("expected error log, got: %s", logs.String())
	}

	logs.Reset()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/bad-update", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Code != ErrCodeBadRequest || resp.Message != "missing user_id" {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if strings.Contains(logs.String(), `"level":"error"`) {
		t.Fatalf("4xx should not log at error level: %s", logs.String())
	}
}

func TestOKEnvelope(t *testing.T) {
	var logs bytes.Buffer
	r := responseRouter(&logs)
	r.POST("/handled", func(c *gin.Context) {
		ok(c, http.StatusOK, UpdateResponse{Status: "ignored"})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/handled", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp UpdateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Status != "ignored" || resp.Reply != nil {
		t.Fatalf("unexpected body: %+v", resp)
	}
}
