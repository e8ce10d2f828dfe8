package books

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertOnNaturalKey inserts row, or on a unique conflict over naturalKey assigns
// updateCols from the proposed row. Other columns, including the primary key, keep
// their stored values. Callers re-read by natural key to get the stored row.
func upsertOnNaturalKey(tx *gorm.DB, row interface{}, naturalKey []string, updateCols []string) error {
	cols := make([]clause.Column, 0, len(naturalKey))
	for _, name := range naturalKey {
		cols = append(cols, clause.Column{Name: name})
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   cols,
		DoUpdates: clause.AssignmentColumns(updateCols),
	}).Create(row).Error
}
