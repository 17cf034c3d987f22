// api/handlers/session_handlers.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/thebuddyman/v0-notion-usability-testing/models"
	"github.com/thebuddyman/v0-notion-usability-testing/utils"
)

// SessionRecorder is what the dispatcher needs from the record store.
type SessionRecorder interface {
	StartSession(ctx context.Context, sessionID string) (string, error)
	UpdateStatus(ctx context.Context, pageID string, status models.TaskStatus) error
	UpdateHintClicks(ctx context.Context, pageID string, hintClicks int) error
	UpdateStepViews(ctx context.Context, pageID string, stepCount int) error
	UpdateFeedback(ctx context.Context, pageID string, feedback string) error
	QueryAnalytics(ctx context.Context) (*models.Analytics, error)
}

// SessionHandlers dispatches session actions to the record store. It is
// stateless; every request stands alone and all state lives in the
// store.
type SessionHandlers struct {
	SessionStore SessionRecorder
}

func NewSessionHandlers(s SessionRecorder) *SessionHandlers {
	return &SessionHandlers{
		SessionStore: s,
	}
}

// HandleSessionAction is POST /api/session-action. The body is read
// raw and JSON-decoded regardless of Content-Type: exit beacons arrive
// as text/plain because beacon senders cannot set arbitrary headers.
func (h *SessionHandlers) HandleSessionAction(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		log.Printf("Error reading session action body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Request parsing failed"})
		return
	}

	if len(bytes.TrimSpace(body)) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Empty request body"})
		return
	}

	var req models.SessionActionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		log.Printf("Error parsing session action body as JSON: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid JSON in request body"})
		return
	}

	if req.Action == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Missing action parameter"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	switch req.Action {
	case "start":
		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = utils.GenerateSessionID()
		}
		pageID, err := h.SessionStore.StartSession(ctx, sessionID)
		if err != nil {
			log.Printf("Error starting session %s: %v", sessionID, err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Failed to start session: " + err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "pageId": pageID})

	case "success":
		if req.PageID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Missing pageId for success action"})
			return
		}
		if err := h.SessionStore.UpdateStatus(ctx, req.PageID, models.StatusSuccess); err != nil {
			log.Printf("Error updating session %s to success: %v", req.PageID, err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Failed to update session: " + err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})

	case "abandon":
		// Best effort: the sender is usually an inactivity timer with
		// nobody left to act on a failure, so the store error is
		// swallowed and the caller still gets success.
		if req.PageID == "" {
			log.Println("No pageId for abandon action, skipping")
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}
		if err := h.SessionStore.UpdateStatus(ctx, req.PageID, models.StatusAbandoned); err != nil {
			log.Printf("Error updating session %s to abandoned: %v", req.PageID, err)
		}
		c.JSON(http.StatusOK, gin.H{"success": true})

	case "exit":
		// Same policy as abandon: exit arrives from page-unload paths.
		if req.PageID == "" {
			log.Println("No pageId for exit action, skipping")
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}
		if err := h.SessionStore.UpdateStatus(ctx, req.PageID, models.StatusFailed); err != nil {
			log.Printf("Error updating session %s to failed: %v", req.PageID, err)
		}
		c.JSON(http.StatusOK, gin.H{"success": true})

	case "update_hints":
		if req.PageID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Missing pageId for update_hints action"})
			return
		}
		if err := h.SessionStore.UpdateHintClicks(ctx, req.PageID, req.HintClicks); err != nil {
			log.Printf("Error updating hint clicks for %s: %v", req.PageID, err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Failed to update hint clicks: " + err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})

	case "update_steps":
		if req.PageID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Missing pageId for update_steps action"})
			return
		}
		stepCount := req.StepCount
		if stepCount == 0 {
			stepCount = 1
		}
		if err := h.SessionStore.UpdateStepViews(ctx, req.PageID, stepCount); err != nil {
			log.Printf("Error updating step views for %s: %v", req.PageID, err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Failed to update step views: " + err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})

	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid action: " + req.Action})
	}
}

// GetAnalytics is GET /api/analytics. On failure it still returns the
// full response shape, zeroed, so the dashboard can render an error
// banner instead of breaking.
func (h *SessionHandlers) GetAnalytics(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	analytics, err := h.SessionStore.QueryAnalytics(ctx)
	if err != nil {
		log.Printf("Error fetching analytics: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":    "Failed to fetch analytics from the record store.",
			"message":  err.Error(),
			"summary":  models.AnalyticsSummary{},
			"sessions": []models.SessionRecord{},
		})
		return
	}

	c.JSON(http.StatusOK, analytics)
}

// SubmitFeedback is POST /api/feedback.
func (h *SessionHandlers) SubmitFeedback(c *gin.Context) {
	var req models.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("Error binding feedback JSON: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request body"})
		return
	}

	feedback := strings.TrimSpace(req.Feedback)
	if feedback == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Feedback is required"})
		return
	}
	if req.PageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Page ID is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.SessionStore.UpdateFeedback(ctx, req.PageID, feedback); err != nil {
		log.Printf("Error updating feedback for %s: %v", req.PageID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to submit feedback: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Feedback submitted successfully"})
}
