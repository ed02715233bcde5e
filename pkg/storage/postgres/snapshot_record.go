package postgres

import "time"

// SnapshotRecord is the single authoritative row per instrument holding
// the latest serialized market payload.
type SnapshotRecord struct {
	InstrumentKey string `gorm:"type:text;primaryKey"`

	Payload []byte `gorm:"type:bytea;not null"`

	// Exchange timestamp of the payload (ms since epoch).
	Timestamp int64 `gorm:"not null;index:idx_snapshot_timestamp"`

	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName overrides the default table name for GORM.
func (SnapshotRecord) TableName() string {
	return "market_snapshots"
}
