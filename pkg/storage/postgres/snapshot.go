package postgres

import (
	"context"

	"gorm.io/gorm/clause"
)

// UpsertSnapshot inserts or replaces the single row for an instrument.
func (p *PostgresClient) UpsertSnapshot(ctx context.Context, record *SnapshotRecord) error {
	return p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "instrument_key"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "timestamp", "updated_at"}),
	}).Create(record).Error
}

// GetSnapshot returns the stored row for an instrument, or gorm.ErrRecordNotFound.
func (p *PostgresClient) GetSnapshot(ctx context.Context, instrumentKey string) (*SnapshotRecord, error) {
	var record SnapshotRecord
	err := p.DB.WithContext(ctx).
		Where("instrument_key = ?", instrumentKey).
		First(&record).Error

	if err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteSnapshotsBefore purges rows whose exchange timestamp predates the
// given cutoff (ms since epoch). Retention is driven externally.
func (p *PostgresClient) DeleteSnapshotsBefore(ctx context.Context, cutoffMillis int64) error {
	return p.DB.WithContext(ctx).
		Where("timestamp < ?", cutoffMillis).
		Delete(&SnapshotRecord{}).Error
}
