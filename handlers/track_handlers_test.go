package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebuddyman/v0-notion-usability-testing/models"
)

type fakeMetricsStore struct {
	mu        sync.Mutex
	events    []models.FunnelEvent
	insertErr error
	stats     models.FunnelStats
	statsErr  error
}

func (f *fakeMetricsStore) InsertFunnelEvent(ctx context.Context, event models.FunnelEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeMetricsStore) GetFunnelStats(ctx context.Context) (models.FunnelStats, error) {
	return f.stats, f.statsErr
}

func newTrackRouter(store FunnelRecorder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewTrackHandlers(store)
	r := gin.New()
	r.POST("/api/track", h.TrackEvent)
	r.GET("/api/stats", h.GetStats)
	return r
}

func postTrack(r *gin.Engine, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/track", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTrackEventInsertsRow(t *testing.T) {
	store := &fakeMetricsStore{}
	r := newTrackRouter(store)

	w := postTrack(r, "application/json", `{"event":"start_click","sessionId":"session_1"}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, store.events, 1)
	ev := store.events[0]
	assert.Equal(t, models.FunnelStartClick, ev.EventType)
	assert.Equal(t, "session_1", ev.SessionID)
	assert.NotEmpty(t, ev.EventID)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestTrackEventRejectsUnknownType(t *testing.T) {
	store := &fakeMetricsStore{}
	r := newTrackRouter(store)

	w := postTrack(r, "application/json", `{"event":"hover"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, store.events)
}

func TestTrackEventCountsMangledExitBeacon(t *testing.T) {
	store := &fakeMetricsStore{}
	r := newTrackRouter(store)

	// Beacon bodies can arrive truncated or with odd framing; a body
	// that mentions exit still counts as an exit.
	w := postTrack(r, "text/plain", `event=exit`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, store.events, 1)
	assert.Equal(t, models.FunnelExit, store.events[0].EventType)
}

func TestTrackEventInsertFailureIs500(t *testing.T) {
	store := &fakeMetricsStore{insertErr: errors.New("clickhouse down")}
	r := newTrackRouter(store)

	w := postTrack(r, "application/json", `{"event":"visit"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetStats(t *testing.T) {
	store := &fakeMetricsStore{stats: models.FunnelStats{Visits: 10, StartClicks: 4, Exits: 2}}
	r := newTrackRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var stats models.FunnelStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, uint64(10), stats.Visits)
	assert.Equal(t, uint64(4), stats.StartClicks)
	assert.Equal(t, uint64(2), stats.Exits)
}

func TestGetStatsFailureIs500(t *testing.T) {
	store := &fakeMetricsStore{statsErr: errors.New("query failed")}
	r := newTrackRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
