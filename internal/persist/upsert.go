package persist

import "gorm.io/gorm/clause"

// upsertBlobClause makes WriteBlob an upsert keyed on actor_id, updating
// only the blob and updated_at columns.
func upsertBlobClause() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "actor_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"blob", "updated_at"}),
	}
}

// upsertAlarmClause makes SetAlarm an upsert keyed on actor_id, updating
// only the alarm_at column.
func upsertAlarmClause() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "actor_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"alarm_at"}),
	}
}
