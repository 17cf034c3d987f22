// api/internal/models/event.go
package models

import "time"

// FunnelEventType is one of the three coarse funnel signals tracked
// independently of full session records.
type FunnelEventType string

const (
	FunnelVisit      FunnelEventType = "visit"
	FunnelStartClick FunnelEventType = "start_click"
	FunnelExit       FunnelEventType = "exit"
)

// FunnelEvent is a single counter row. Counts are computed at read time
// by grouping over event_type.
type FunnelEvent struct {
	EventID   string          `json:"eventId"`
	EventType FunnelEventType `json:"eventType"`
	SessionID string          `json:"sessionId"`
	IPAddress string          `json:"ipAddress"`
	Timestamp time.Time       `json:"timestamp"`
}

type FunnelStats struct {
	Visits      uint64 `json:"visits"`
	StartClicks uint64 `json:"startClicks"`
	Exits       uint64 `json:"exits"`
}
