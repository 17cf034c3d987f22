// api/internal/store/session_store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/jomei/notionapi"

	"github.com/thebuddyman/v0-notion-usability-testing/database"
	"github.com/thebuddyman/v0-notion-usability-testing/models"
	"github.com/thebuddyman/v0-notion-usability-testing/utils"
)

// Property names of the session database. These must match the Notion
// database schema exactly.
const (
	propName        = "Name"
	propTaskSuccess = "Task Success"
	propStartTime   = "Start Time"
	propEndTime     = "End Time"
	propTimeOnTask  = "Time on Task"
	propHintClicks  = "Hint Clicks"
	propStepViews   = "Step Views"
	propFeedback    = "Feedback"
)

// Sentinel errors for the two store failures callers distinguish.
// Anything else surfaces as a wrapped error carrying the Notion error
// code for diagnosis.
var (
	ErrRecordNotFound = errors.New("session record not found - it may have been deleted")
	ErrUnauthorized   = errors.New("notion api unauthorized - check NOTION_TOKEN")
)

// SessionStore persists usability sessions as pages of one Notion
// database. The page id is the sole correlation key between client
// state and store state; pages are never deleted by this service.
type SessionStore struct {
	DB *database.NotionClient
}

func NewSessionStore(nc *database.NotionClient) *SessionStore {
	return &SessionStore{
		DB: nc,
	}
}

func mapNotionError(err error) error {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "object_not_found":
			return ErrRecordNotFound
		case "unauthorized":
			return ErrUnauthorized
		default:
			return fmt.Errorf("notion api error (%s): %s", apiErr.Code, apiErr.Message)
		}
	}
	return err
}

// StartSession creates a new session record in In Progress state and
// returns its page id. The record gets a generated display name, a
// start timestamp, zero hints and one step view (the entry page).
func (s *SessionStore) StartSession(ctx context.Context, sessionID string) (string, error) {
	name := utils.GenerateFunnyName()
	start := notionapi.Date(time.Now())

	page, err := s.DB.Client.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: s.DB.DatabaseID,
		},
		Properties: notionapi.Properties{
			propName: notionapi.TitleProperty{
				Title: []notionapi.RichText{{Text: &notionapi.Text{Content: name}}},
			},
			propTaskSuccess: notionapi.SelectProperty{
				Select: notionapi.Option{Name: string(models.StatusInProgress)},
			},
			propStartTime: notionapi.DateProperty{
				Date: &notionapi.DateObject{Start: &start},
			},
			propTimeOnTask: notionapi.NumberProperty{Number: 0},
			propHintClicks: notionapi.NumberProperty{Number: 0},
			propStepViews:  notionapi.NumberProperty{Number: 1},
		},
	})
	if err != nil {
		return "", mapNotionError(err)
	}

	log.Printf("Session record created: session=%s page=%s name=%q", sessionID, page.ID, name)
	return string(page.ID), nil
}

// UpdateStatus transitions a record to a terminal status, stamping the
// end time and the elapsed seconds on task. Time on task is recomputed
// from the stored start time so the store, not the client, owns the
// clock.
func (s *SessionStore) UpdateStatus(ctx context.Context, pageID string, status models.TaskStatus) error {
	if pageID == "" {
		log.Println("UpdateStatus: no pageId provided, skipping update")
		return nil
	}

	page, err := s.DB.Client.Page.Get(ctx, notionapi.PageID(pageID))
	if err != nil {
		return mapNotionError(err)
	}

	timeOnTask := 0
	if dp, ok := page.Properties[propStartTime].(*notionapi.DateProperty); ok && dp.Date != nil && dp.Date.Start != nil {
		started := time.Time(*dp.Date.Start)
		timeOnTask = int(math.Round(time.Since(started).Seconds()))
	} else {
		log.Printf("UpdateStatus: no start time found on page %s, using 0 for time on task", pageID)
	}

	end := notionapi.Date(time.Now())
	_, err = s.DB.Client.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{
			propTaskSuccess: notionapi.SelectProperty{
				Select: notionapi.Option{Name: string(status)},
			},
			propEndTime: notionapi.DateProperty{
				Date: &notionapi.DateObject{Start: &end},
			},
			propTimeOnTask: notionapi.NumberProperty{Number: float64(timeOnTask)},
		},
	})
	if err != nil {
		return mapNotionError(err)
	}

	log.Printf("Session record %s updated to %s (%ds on task)", pageID, status, timeOnTask)
	return nil
}

// UpdateHintClicks overwrites the hint counter. The client keeps the
// authoritative running count, so this is an overwrite, not an
// increment.
func (s *SessionStore) UpdateHintClicks(ctx context.Context, pageID string, hintClicks int) error {
	_, err := s.DB.Client.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{
			propHintClicks: notionapi.NumberProperty{Number: float64(hintClicks)},
		},
	})
	if err != nil {
		return mapNotionError(err)
	}
	return nil
}

// UpdateStepViews overwrites the step view counter.
func (s *SessionStore) UpdateStepViews(ctx context.Context, pageID string, stepCount int) error {
	_, err := s.DB.Client.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{
			propStepViews: notionapi.NumberProperty{Number: float64(stepCount)},
		},
	})
	if err != nil {
		return mapNotionError(err)
	}
	return nil
}

// UpdateFeedback writes the participant's free-text feedback to the
// record after completion.
func (s *SessionStore) UpdateFeedback(ctx context.Context, pageID string, feedback string) error {
	_, err := s.DB.Client.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{
			propFeedback: notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: feedback}}},
			},
		},
	})
	if err != nil {
		return mapNotionError(err)
	}
	return nil
}

// QueryAnalytics returns the summary over all completed sessions plus
// the 10 most recent ones, newest first.
func (s *SessionStore) QueryAnalytics(ctx context.Context) (*models.Analytics, error) {
	resp, err := s.DB.Client.Database.Query(ctx, s.DB.DatabaseID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: propTaskSuccess,
			Select: &notionapi.SelectFilterCondition{
				DoesNotEqual: string(models.StatusInProgress),
			},
		},
		Sorts: []notionapi.SortObject{
			{Property: propStartTime, Direction: notionapi.SortOrderDESC},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch analytics: %w", mapNotionError(err))
	}

	sessions := make([]models.SessionRecord, 0, len(resp.Results))
	for i := range resp.Results {
		sessions = append(sessions, recordFromPage(&resp.Results[i]))
	}

	summary := buildSummary(sessions)
	if len(sessions) > 10 {
		sessions = sessions[:10]
	}

	return &models.Analytics{Summary: summary, Sessions: sessions}, nil
}

// buildSummary computes the aggregate view over completed sessions.
// Averages and rates are 0 when there is nothing to average.
func buildSummary(sessions []models.SessionRecord) models.AnalyticsSummary {
	summary := models.AnalyticsSummary{TotalSessions: len(sessions)}

	totalTime := 0
	for _, sess := range sessions {
		totalTime += sess.TimeOnTask
		switch sess.TaskSuccess {
		case models.StatusSuccess:
			summary.SuccessfulSessions++
		case models.StatusFailed:
			summary.FailedSessions++
		case models.StatusAbandoned:
			summary.AbandonedSessions++
		}
	}

	if summary.TotalSessions > 0 {
		summary.AverageTimeOnTask = int(math.Round(float64(totalTime) / float64(summary.TotalSessions)))
		summary.SuccessRate = int(math.Round(float64(summary.SuccessfulSessions) / float64(summary.TotalSessions) * 100))
	}

	return summary
}

func recordFromPage(page *notionapi.Page) models.SessionRecord {
	return models.SessionRecord{
		Name:        pageTitle(page.Properties, propName),
		TaskSuccess: models.TaskStatus(pageSelect(page.Properties, propTaskSuccess)),
		StartTime:   pageDate(page.Properties, propStartTime),
		EndTime:     pageDate(page.Properties, propEndTime),
		TimeOnTask:  int(pageNumber(page.Properties, propTimeOnTask)),
		HintClicks:  int(pageNumber(page.Properties, propHintClicks)),
		StepViews:   int(pageNumber(page.Properties, propStepViews)),
	}
}

func pageTitle(props notionapi.Properties, key string) string {
	if tp, ok := props[key].(*notionapi.TitleProperty); ok && len(tp.Title) > 0 {
		if tp.Title[0].PlainText != "" {
			return tp.Title[0].PlainText
		}
		if tp.Title[0].Text != nil {
			return tp.Title[0].Text.Content
		}
	}
	return "Unknown"
}

func pageSelect(props notionapi.Properties, key string) string {
	if sp, ok := props[key].(*notionapi.SelectProperty); ok && sp.Select.Name != "" {
		return sp.Select.Name
	}
	return "Unknown"
}

func pageDate(props notionapi.Properties, key string) time.Time {
	if dp, ok := props[key].(*notionapi.DateProperty); ok && dp.Date != nil && dp.Date.Start != nil {
		return time.Time(*dp.Date.Start)
	}
	return time.Time{}
}

func pageNumber(props notionapi.Properties, key string) float64 {
	if np, ok := props[key].(*notionapi.NumberProperty); ok {
		return np.Number
	}
	return 0
}
