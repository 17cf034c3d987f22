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

// fakeSessionStore keeps session records in a map so dispatcher tests
// can follow a whole session lifecycle without a live document store.
type fakeSessionStore struct {
	mu          sync.Mutex
	records     map[string]*models.SessionRecord
	startErr    error
	updateErr   error
	feedbackErr error
	queryErr    error
	feedback    map[string]string
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		records:  make(map[string]*models.SessionRecord),
		feedback: make(map[string]string),
	}
}

func (f *fakeSessionStore) StartSession(ctx context.Context, sessionID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	pageID := "page-" + sessionID
	f.records[pageID] = &models.SessionRecord{
		Name:        sessionID,
		TaskSuccess: models.StatusInProgress,
		StepViews:   1,
	}
	return pageID, nil
}

func (f *fakeSessionStore) UpdateStatus(ctx context.Context, pageID string, status models.TaskStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	rec, ok := f.records[pageID]
	if !ok {
		return errors.New("session record not found")
	}
	rec.TaskSuccess = status
	return nil
}

func (f *fakeSessionStore) UpdateHintClicks(ctx context.Context, pageID string, hintClicks int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	rec, ok := f.records[pageID]
	if !ok {
		return errors.New("session record not found")
	}
	rec.HintClicks = hintClicks
	return nil
}

func (f *fakeSessionStore) UpdateStepViews(ctx context.Context, pageID string, stepCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	rec, ok := f.records[pageID]
	if !ok {
		return errors.New("session record not found")
	}
	rec.StepViews = stepCount
	return nil
}

func (f *fakeSessionStore) UpdateFeedback(ctx context.Context, pageID string, feedback string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.feedbackErr != nil {
		return f.feedbackErr
	}
	f.feedback[pageID] = feedback
	return nil
}

func (f *fakeSessionStore) QueryAnalytics(ctx context.Context) (*models.Analytics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	analytics := &models.Analytics{Sessions: []models.SessionRecord{}}
	for _, rec := range f.records {
		analytics.Summary.TotalSessions++
		analytics.Sessions = append(analytics.Sessions, *rec)
	}
	return analytics, nil
}

func (f *fakeSessionStore) record(pageID string) models.SessionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.records[pageID]
}

func newSessionRouter(store SessionRecorder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewSessionHandlers(store)
	r := gin.New()
	r.POST("/api/session-action", h.HandleSessionAction)
	r.GET("/api/analytics", h.GetAnalytics)
	r.POST("/api/feedback", h.SubmitFeedback)
	return r
}

func postAction(r *gin.Engine, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/session-action", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestSessionActionRejectsEmptyBody(t *testing.T) {
	r := newSessionRouter(newFakeSessionStore())

	w := postAction(r, "application/json", "   \n ")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Empty request body", body["message"])
}

func TestSessionActionRejectsMalformedJSON(t *testing.T) {
	r := newSessionRouter(newFakeSessionStore())

	w := postAction(r, "application/json", "{not json")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid JSON in request body", decodeBody(t, w)["message"])
}

func TestSessionActionRequiresAction(t *testing.T) {
	r := newSessionRouter(newFakeSessionStore())

	w := postAction(r, "application/json", `{"sessionId":"session_1"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing action parameter", decodeBody(t, w)["message"])
}

func TestSessionActionRejectsUnknownAction(t *testing.T) {
	r := newSessionRouter(newFakeSessionStore())

	w := postAction(r, "application/json", `{"action":"teleport"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid action: teleport", decodeBody(t, w)["message"])
}

func TestStartReturnsPageID(t *testing.T) {
	store := newFakeSessionStore()
	r := newSessionRouter(store)

	w := postAction(r, "application/json", `{"action":"start","sessionId":"session_1"}`)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "page-session_1", body["pageId"])
}

func TestStartGeneratesSessionIDWhenMissing(t *testing.T) {
	store := newFakeSessionStore()
	r := newSessionRouter(store)

	w := postAction(r, "application/json", `{"action":"start"}`)

	require.Equal(t, http.StatusOK, w.Code)
	pageID, ok := decodeBody(t, w)["pageId"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(pageID, "page-session_"), "a session id must be generated server side, got %q", pageID)
}

func TestStartStoreFailureIs500(t *testing.T) {
	store := newFakeSessionStore()
	store.startErr = errors.New("document store unreachable")
	r := newSessionRouter(store)

	w := postAction(r, "application/json", `{"action":"start"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["message"], "document store unreachable")
}

func TestSuccessRequiresPageID(t *testing.T) {
	r := newSessionRouter(newFakeSessionStore())

	w := postAction(r, "application/json", `{"action":"success"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing pageId for success action", decodeBody(t, w)["message"])
}

func TestAbandonWithoutPageIDIsSilentSuccess(t *testing.T) {
	r := newSessionRouter(newFakeSessionStore())

	w := postAction(r, "application/json", `{"action":"abandon","sessionId":"session_1"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["success"])
}

func TestExitSwallowsStoreErrors(t *testing.T) {
	store := newFakeSessionStore()
	store.updateErr = errors.New("rate limited")
	r := newSessionRouter(store)

	w := postAction(r, "application/json", `{"action":"exit","pageId":"page-x"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["success"])
}

func TestExitAcceptsBeaconBodyWithoutJSONContentType(t *testing.T) {
	store := newFakeSessionStore()
	r := newSessionRouter(store)

	start := postAction(r, "application/json", `{"action":"start","sessionId":"session_1"}`)
	require.Equal(t, http.StatusOK, start.Code)

	// Beacon senders cannot set Content-Type, the body arrives as
	// text/plain and must still be parsed as JSON.
	w := postAction(r, "text/plain;charset=UTF-8", `{"action":"exit","pageId":"page-session_1"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusFailed, store.record("page-session_1").TaskSuccess)
}

func TestUpdateHintsRequiresPageID(t *testing.T) {
	r := newSessionRouter(newFakeSessionStore())

	w := postAction(r, "application/json", `{"action":"update_hints","hintClicks":3}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing pageId for update_hints action", decodeBody(t, w)["message"])
}

func TestUpdateStepsDefaultsMissingCountToOne(t *testing.T) {
	store := newFakeSessionStore()
	r := newSessionRouter(store)

	start := postAction(r, "application/json", `{"action":"start","sessionId":"session_1"}`)
	require.Equal(t, http.StatusOK, start.Code)

	w := postAction(r, "application/json", `{"action":"update_steps","pageId":"page-session_1"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, store.record("page-session_1").StepViews)
}

func TestSessionLifecycleThroughDispatcher(t *testing.T) {
	store := newFakeSessionStore()
	r := newSessionRouter(store)

	start := postAction(r, "application/json", `{"action":"start","sessionId":"session_1"}`)
	require.Equal(t, http.StatusOK, start.Code)
	pageID := decodeBody(t, start)["pageId"].(string)

	steps := postAction(r, "application/json", `{"action":"update_steps","pageId":"`+pageID+`","stepCount":3}`)
	require.Equal(t, http.StatusOK, steps.Code)

	hints := postAction(r, "application/json", `{"action":"update_hints","pageId":"`+pageID+`","hintClicks":2}`)
	require.Equal(t, http.StatusOK, hints.Code)

	done := postAction(r, "application/json", `{"action":"success","pageId":"`+pageID+`"}`)
	require.Equal(t, http.StatusOK, done.Code)

	rec := store.record(pageID)
	assert.Equal(t, models.StatusSuccess, rec.TaskSuccess)
	assert.Equal(t, 3, rec.StepViews)
	assert.Equal(t, 2, rec.HintClicks)
}

func TestGetAnalytics(t *testing.T) {
	store := newFakeSessionStore()
	r := newSessionRouter(store)
	postAction(r, "application/json", `{"action":"start","sessionId":"session_1"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/analytics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var analytics models.Analytics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &analytics))
	assert.Equal(t, 1, analytics.Summary.TotalSessions)
	require.Len(t, analytics.Sessions, 1)
	assert.Equal(t, "session_1", analytics.Sessions[0].Name)
}

func TestGetAnalyticsFailureKeepsResponseShape(t *testing.T) {
	store := newFakeSessionStore()
	store.queryErr = errors.New("query timed out")
	r := newSessionRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/api/analytics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "query timed out", body["message"])
	assert.Contains(t, body, "summary")
	assert.Contains(t, body, "sessions")
}

func TestSubmitFeedbackValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"blank feedback", `{"pageId":"page-1","feedback":"   "}`, "Feedback is required"},
		{"missing page id", `{"feedback":"too many steps"}`, "Page ID is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newSessionRouter(newFakeSessionStore())
			req := httptest.NewRequest(http.MethodPost, "/api/feedback", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.message, decodeBody(t, w)["message"])
		})
	}
}

func TestSubmitFeedbackTrimsAndStores(t *testing.T) {
	store := newFakeSessionStore()
	r := newSessionRouter(store)

	req := httptest.NewRequest(http.MethodPost, "/api/feedback",
		strings.NewReader(`{"pageId":"page-1","feedback":"  the hints were unclear  "}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "the hints were unclear", store.feedback["page-1"])
}
