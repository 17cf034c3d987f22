// api/internal/models/session.go
package models

import "time"

// TaskStatus is the outcome recorded for one usability session.
// A session starts In Progress and transitions exactly once to a
// terminal value; it never leaves a terminal value.
type TaskStatus string

const (
	StatusInProgress TaskStatus = "In Progress"
	StatusSuccess    TaskStatus = "Success"
	StatusFailed     TaskStatus = "Failed"
	StatusAbandoned  TaskStatus = "Abandoned"
)

// IsTerminal reports whether no further status transition is valid.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusAbandoned:
		return true
	default:
		return false
	}
}

// SessionActionRequest is the body of POST /api/session-action.
// hintClicks and stepCount are only read by the update_hints and
// update_steps actions; zero values fall back to the field defaults
// (0 hints, 1 step view).
type SessionActionRequest struct {
	Action     string `json:"action"`
	SessionID  string `json:"sessionId,omitempty"`
	PageID     string `json:"pageId,omitempty"`
	HintClicks int    `json:"hintClicks,omitempty"`
	StepCount  int    `json:"stepCount,omitempty"`
}

type SessionActionResponse struct {
	Success bool   `json:"success"`
	PageID  string `json:"pageId,omitempty"`
	Message string `json:"message,omitempty"`
}

// FeedbackRequest is the body of POST /api/feedback.
type FeedbackRequest struct {
	Feedback  string `json:"feedback"`
	PageID    string `json:"pageId"`
	SessionID string `json:"sessionId,omitempty"`
}

// SessionRecord is one completed (or in-progress) session as read back
// from the record store.
type SessionRecord struct {
	Name        string     `json:"name"`
	TaskSuccess TaskStatus `json:"taskSuccess"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     time.Time  `json:"endTime"`
	TimeOnTask  int        `json:"timeOnTask"`
	HintClicks  int        `json:"hintClicks"`
	StepViews   int        `json:"stepViews"`
}

type AnalyticsSummary struct {
	TotalSessions      int `json:"totalSessions"`
	SuccessfulSessions int `json:"successfulSessions"`
	FailedSessions     int `json:"failedSessions"`
	AbandonedSessions  int `json:"abandonedSessions"`
	AverageTimeOnTask  int `json:"averageTimeOnTask"`
	SuccessRate        int `json:"successRate"`
}

// Analytics is the payload of GET /api/analytics: the summary over all
// non-in-progress sessions plus the 10 most recent of them.
type Analytics struct {
	Summary  AnalyticsSummary `json:"summary"`
	Sessions []SessionRecord  `json:"sessions"`
}
