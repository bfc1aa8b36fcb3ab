package db

import "time"

// KVEntry maps chatsense.kv_entries.
type KVEntry struct {
	Key       string     `gorm:"column:key;type:text;primaryKey"`
	Value     []byte     `gorm:"column:value;type:bytea;not null"`
	ExpiresAt *time.Time `gorm:"column:expires_at;type:timestamptz"`
	UpdatedAt time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (KVEntry) TableName() string { return "chatsense.kv_entries" }

// AnalysisEvent maps chatsense.analysis_events. One row per delivered result.
type AnalysisEvent struct {
	EventID    int64     `gorm:"column:event_id;primaryKey;autoIncrement"`
	EventUUID  string    `gorm:"column:event_uuid;type:uuid;not null;unique"`
	RequestID  string    `gorm:"column:request_id;type:text;not null"`
	Operation  string    `gorm:"column:operation;type:text;not null"`
	ProviderID string    `gorm:"column:provider_id;type:text;not null"`
	Confidence float64   `gorm:"column:confidence;type:double precision;not null"`
	FromCache  bool      `gorm:"column:from_cache;type:boolean;not null;default:false"`
	Offline    bool      `gorm:"column:offline;type:boolean;not null;default:false"`
	LatencyMS  int64     `gorm:"column:latency_ms;type:bigint;not null;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (AnalysisEvent) TableName() string { return "chatsense.analysis_events" }

func autoMigrateModels() []any {
	return []any{
		&KVEntry{},
		&AnalysisEvent{},
	}
}
