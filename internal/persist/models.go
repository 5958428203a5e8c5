package persist

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// actorRow is the SQL storage driver's row for one actor's opaque blob and
// alarm timestamp, keyed by actorId.
type actorRow struct {
	ActorID   string `gorm:"primaryKey;size:36"`
	Blob      []byte
	AlarmAt   *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (actorRow) TableName() string { return "actors" }

// directoryRow backs the reference ManagerDriver's (name, key) -> actorId
// lookup (SPEC_FULL.md §3.1).
type directoryRow struct {
	ActorID   string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"size:256;index:idx_directory_name_keyhash,unique"`
	KeyJSON   string `gorm:"type:text"`
	KeyHash   string `gorm:"size:64;index:idx_directory_name_keyhash,unique"`
	CreatedAt time.Time
}

func (directoryRow) TableName() string { return "actor_directory" }

// BeforeCreate assigns a UUIDv7 actor id when one has not already been
// chosen by the caller, mirroring the teacher's base.BeforeCreate hook.
func (r *directoryRow) BeforeCreate(_ *gorm.DB) error {
	if r.ActorID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		r.ActorID = id.String()
	}
	return nil
}

// AutoMigrate creates/updates the SQL driver's tables. Kept as a small
// GORM AutoMigrate call alongside the golang-migrate-driven schema so the
// in-tree migrations/*.sql files remain the source of truth for anything
// beyond these two tables — AutoMigrate here only smooths over
// gorm-specific column metadata (indices, defaults) that the hand-written
// migrations also declare.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&actorRow{}, &directoryRow{})
}
