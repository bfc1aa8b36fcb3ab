package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InsertAnalysisEventParams describes one delivered analysis result.
type InsertAnalysisEventParams struct {
	RequestID  string
	Operation  string
	ProviderID string
	Confidence float64
	FromCache  bool
	Offline    bool
	LatencyMS  int64
	CreatedAt  time.Time
}

func (p *Pool) InsertAnalysisEvent(ctx context.Context, params InsertAnalysisEventParams) error {
	if strings.TrimSpace(params.Operation) == "" {
		return fmt.Errorf("operation is required")
	}
	createdAt := params.CreatedAt.UTC()
	if params.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	const q = `
INSERT INTO chatsense.analysis_events (
	event_uuid,
	request_id,
	operation,
	provider_id,
	confidence,
	from_cache,
	offline,
	latency_ms,
	created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	if _, err := p.Exec(ctx, q,
		uuid.NewString(),
		params.RequestID,
		params.Operation,
		params.ProviderID,
		params.Confidence,
		params.FromCache,
		params.Offline,
		params.LatencyMS,
		createdAt,
	); err != nil {
		return fmt.Errorf("insert analysis event: %w", err)
	}
	return nil
}

// ProviderUsageRow is the per-provider tally for a time range.
type ProviderUsageRow struct {
	ProviderID    string  `json:"provider_id"`
	Operation     string  `json:"operation"`
	Results       int64   `json:"results"`
	CacheHits     int64   `json:"cache_hits"`
	OfflineCount  int64   `json:"offline"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// ProviderUsage is the read model returned by the stats command.
type ProviderUsage struct {
	Day  string             `json:"day"`
	Rows []ProviderUsageRow `json:"rows"`
}

// QueryProviderUsage tallies delivered results per provider and operation.
func (p *Pool) QueryProviderUsage(ctx context.Context, dayStart, dayEnd time.Time) (*ProviderUsage, error) {
	startUTC := dayStart.UTC()
	endUTC := dayEnd.UTC()
	if !startUTC.Before(endUTC) {
		return nil, fmt.Errorf("dayStart must be before dayEnd")
	}

	const q = `
SELECT
	e.provider_id,
	e.operation,
	COUNT(*)::BIGINT AS results,
	COUNT(*) FILTER (WHERE e.from_cache)::BIGINT AS cache_hits,
	COUNT(*) FILTER (WHERE e.offline)::BIGINT AS offline,
	COALESCE(AVG(e.confidence), 0)::DOUBLE PRECISION AS avg_confidence
FROM chatsense.analysis_events e
WHERE e.created_at >= $1
  AND e.created_at < $2
GROUP BY e.provider_id, e.operation
ORDER BY e.operation, results DESC, e.provider_id
`
	rows, err := p.Query(ctx, q, startUTC, endUTC)
	if err != nil {
		return nil, fmt.Errorf("query provider usage: %w", err)
	}
	defer rows.Close()

	usage := &ProviderUsage{
		Day:  startUTC.Format("2006-01-02"),
		Rows: make([]ProviderUsageRow, 0, 8),
	}
	for rows.Next() {
		var row ProviderUsageRow
		if err := rows.Scan(&row.ProviderID, &row.Operation, &row.Results, &row.CacheHits, &row.OfflineCount, &row.AvgConfidence); err != nil {
			return nil, fmt.Errorf("scan provider usage row: %w", err)
		}
		usage.Rows = append(usage.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate provider usage rows: %w", err)
	}
	return usage, nil
}
