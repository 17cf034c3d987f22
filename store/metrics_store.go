// api/internal/store/metrics_store.go
package store

import (
	"context"
	"fmt"
	"log"

	"github.com/thebuddyman/v0-notion-usability-testing/database"
	"github.com/thebuddyman/v0-notion-usability-testing/models"
)

// MetricsStore keeps the coarse funnel counters (visit / start_click /
// exit) in ClickHouse. Each tracked event is one insert; counts are
// computed at read time by grouping over event_type.
type MetricsStore struct {
	DB *database.ClickHouseClient
}

func NewMetricsStore(chClient *database.ClickHouseClient) *MetricsStore {
	return &MetricsStore{
		DB: chClient,
	}
}

func (s *MetricsStore) InsertFunnelEvent(ctx context.Context, event models.FunnelEvent) error {
	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO funnel_events (
			event_id, event_type, session_id, ip_address, timestamp
		) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare funnel event insert: %w", err)
	}

	err = batch.Append(
		event.EventID,
		string(event.EventType),
		event.SessionID,
		event.IPAddress,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append funnel event (EventID: %s): %w", event.EventID, err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send funnel event: %w", err)
	}

	log.Printf("Tracked funnel event: %s", event.EventType)
	return nil
}

func (s *MetricsStore) GetFunnelStats(ctx context.Context) (models.FunnelStats, error) {
	var stats models.FunnelStats

	query := `
		SELECT event_type, count() as total
		FROM funnel_events
		GROUP BY event_type
	`
	rows, err := s.DB.Conn.Query(ctx, query)
	if err != nil {
		return stats, fmt.Errorf("failed to query funnel stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eventType string
		var total uint64
		if err := rows.Scan(&eventType, &total); err != nil {
			log.Printf("Error scanning row for funnel stats: %v", err)
			continue
		}

		switch models.FunnelEventType(eventType) {
		case models.FunnelVisit:
			stats.Visits = total
		case models.FunnelStartClick:
			stats.StartClicks = total
		case models.FunnelExit:
			stats.Exits = total
		}
	}

	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("row error during funnel stats query: %w", err)
	}

	return stats, nil
}
