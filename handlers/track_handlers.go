// api/handlers/track_handlers.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/thebuddyman/v0-notion-usability-testing/models"
	"github.com/thebuddyman/v0-notion-usability-testing/utils"
)

// FunnelRecorder is what the track endpoints need from the metrics
// store.
type FunnelRecorder interface {
	InsertFunnelEvent(ctx context.Context, event models.FunnelEvent) error
	GetFunnelStats(ctx context.Context) (models.FunnelStats, error)
}

type TrackHandlers struct {
	MetricsStore FunnelRecorder
}

func NewTrackHandlers(s FunnelRecorder) *TrackHandlers {
	return &TrackHandlers{
		MetricsStore: s,
	}
}

type trackRequest struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId,omitempty"`
}

// TrackEvent is POST /api/track: one row per visit / start_click / exit
// signal. Exit events may arrive as raw-text beacon bodies; any
// unparseable body containing the literal "exit" still counts as one.
func (h *TrackHandlers) TrackEvent(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		log.Printf("Error reading track body: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error processing request"})
		return
	}

	var req trackRequest
	if err := json.Unmarshal(bytes.TrimSpace(body), &req); err != nil {
		if bytes.Contains(body, []byte("exit")) {
			h.insertEvent(c, models.FunnelExit, "")
			return
		}
		log.Printf("Error parsing track body: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error processing request"})
		return
	}

	if !utils.IsValidFunnelEvent(req.Event) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid event type"})
		return
	}

	h.insertEvent(c, models.FunnelEventType(req.Event), req.SessionID)
}

func (h *TrackHandlers) insertEvent(c *gin.Context, eventType models.FunnelEventType, sessionID string) {
	event := models.FunnelEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		SessionID: sessionID,
		IPAddress: c.ClientIP(),
		Timestamp: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	if err := h.MetricsStore.InsertFunnelEvent(ctx, event); err != nil {
		log.Printf("Error inserting funnel event into ClickHouse: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error processing request"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Tracked " + string(eventType)})
}

// GetStats is GET /api/stats: the grouped funnel counts.
func (h *TrackHandlers) GetStats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	stats, err := h.MetricsStore.GetFunnelStats(ctx)
	if err != nil {
		log.Printf("Error fetching funnel stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error fetching stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
