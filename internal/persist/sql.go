// Package persist provides the durable storage layer: the StorageDriver
// interface the actor runtime depends on (§4.2), its memory and SQL
// implementations, the versioned blob envelope, and the single-writer
// persist queue. Grounded on the teacher's internal/db package (db.go,
// logger.go, models.go) — see DESIGN.md.
package persist

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	// modernc pure-Go sqlite driver, registers itself as "sqlite" in
	// database/sql. No CGO required.
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLConfig configures the SQL-backed StorageDriver.
type SQLConfig struct {
	Driver   string // "sqlite" or "postgres"; defaults to "sqlite"
	DSN      string
	Logger   *zap.Logger
	LogLevel gormlogger.LogLevel
}

// SQLDriver implements StorageDriver over GORM, supporting SQLite
// (modernc, no CGO) or Postgres.
type SQLDriver struct {
	db *gorm.DB
}

// NewSQLDriver opens the connection, applies migrations, and returns a
// ready-to-use SQLDriver.
func NewSQLDriver(cfg SQLConfig) (*SQLDriver, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("persist: logger is required")
	}

	gormCfg := &gorm.Config{
		Logger: newZapGORMLogger(cfg.Logger, cfg.LogLevel),
	}

	var (
		database *gorm.DB
		sqlDB    *sql.DB
		err      error
		drvName  string
	)

	switch cfg.Driver {
	case "sqlite", "":
		sqlDB, err = sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("persist: failed to open sqlite: %w", err)
		}
		// SQLite supports only one writer at a time.
		sqlDB.SetMaxOpenConns(1)

		database, err = gorm.Open(gormsqlite.Dialector{Conn: sqlDB}, gormCfg)
		if err != nil {
			return nil, fmt.Errorf("persist: failed to initialize gorm with sqlite: %w", err)
		}
		drvName = "sqlite"

	case "postgres":
		database, err = gorm.Open(gormpostgres.Open(cfg.DSN), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("persist: failed to open postgres: %w", err)
		}
		sqlDB, err = database.DB()
		if err != nil {
			return nil, fmt.Errorf("persist: failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
		drvName = "postgres"

	default:
		return nil, fmt.Errorf("persist: unsupported driver %q, use \"sqlite\" or \"postgres\"", cfg.Driver)
	}

	if err := runMigrations(sqlDB, drvName, cfg.Logger); err != nil {
		return nil, fmt.Errorf("persist: migrations failed: %w", err)
	}
	if err := AutoMigrate(database); err != nil {
		return nil, fmt.Errorf("persist: automigrate failed: %w", err)
	}

	return &SQLDriver{db: database}, nil
}

// DB exposes the underlying *gorm.DB for the reference ManagerDriver's
// actor-directory queries (SPEC_FULL.md §3.1).
func (d *SQLDriver) DB() *gorm.DB { return d.db }

func (d *SQLDriver) ReadBlob(ctx context.Context, actorID string) ([]byte, bool, error) {
	var row actorRow
	err := d.db.WithContext(ctx).Where("actor_id = ?", actorID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("persist: read blob: %w", err)
	}
	return row.Blob, true, nil
}

func (d *SQLDriver) WriteBlob(ctx context.Context, actorID string, blob []byte) error {
	row := actorRow{ActorID: actorID, Blob: blob, UpdatedAt: time.Now()}
	err := d.db.WithContext(ctx).
		Clauses(upsertBlobClause()).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("persist: write blob: %w", err)
	}
	return nil
}

func (d *SQLDriver) SetAlarm(ctx context.Context, actorID string, at time.Time) error {
	row := actorRow{ActorID: actorID, AlarmAt: &at}
	err := d.db.WithContext(ctx).
		Clauses(upsertAlarmClause()).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("persist: set alarm: %w", err)
	}
	return nil
}

func (d *SQLDriver) ClearAlarm(ctx context.Context, actorID string) error {
	err := d.db.WithContext(ctx).Model(&actorRow{}).
		Where("actor_id = ?", actorID).
		Update("alarm_at", nil).Error
	if err != nil {
		return fmt.Errorf("persist: clear alarm: %w", err)
	}
	return nil
}

func (d *SQLDriver) DueAlarms(ctx context.Context, now time.Time) ([]string, error) {
	var rows []actorRow
	err := d.db.WithContext(ctx).
		Where("alarm_at IS NOT NULL AND alarm_at <= ?", now).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("persist: due alarms: %w", err)
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ActorID
	}
	return ids, nil
}

// LookupByKey resolves (name, keyHash) to an actorId, for DirectoryDriver.
func (d *SQLDriver) LookupByKey(ctx context.Context, name, keyHash string) (string, bool, error) {
	var row directoryRow
	err := d.db.WithContext(ctx).Where("name = ? AND key_hash = ?", name, keyHash).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("persist: lookup directory entry by key: %w", err)
	}
	return row.ActorID, true, nil
}

// LookupByID resolves actorID to the name it was created under.
func (d *SQLDriver) LookupByID(ctx context.Context, actorID string) (string, bool, error) {
	var row directoryRow
	err := d.db.WithContext(ctx).Where("actor_id = ?", actorID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("persist: lookup directory entry by id: %w", err)
	}
	return row.Name, true, nil
}

// Insert records a freshly allocated actorId under (name, keyJSON, keyHash).
// Directory entries are never updated once created, so a conflicting
// (name, keyHash) or actorID is rejected rather than upserted.
func (d *SQLDriver) Insert(ctx context.Context, actorID, name, keyJSON, keyHash string) error {
	row := directoryRow{ActorID: actorID, Name: name, KeyJSON: keyJSON, KeyHash: keyHash}
	result := d.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("persist: insert directory entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDirectoryConflict
	}
	return nil
}

// ListByName returns up to limit directory entries created under name.
func (d *SQLDriver) ListByName(ctx context.Context, name string, limit int) ([]DirectoryEntry, error) {
	var rows []directoryRow
	q := d.db.WithContext(ctx).Where("name = ?", name)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("persist: list directory entries by name: %w", err)
	}
	return toDirectoryEntries(rows), nil
}

// ListByIDs returns the directory entries matching any of ids.
func (d *SQLDriver) ListByIDs(ctx context.Context, ids []string) ([]DirectoryEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []directoryRow
	if err := d.db.WithContext(ctx).Where("actor_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("persist: list directory entries by id: %w", err)
	}
	return toDirectoryEntries(rows), nil
}

func toDirectoryEntries(rows []directoryRow) []DirectoryEntry {
	out := make([]DirectoryEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, DirectoryEntry{ActorID: row.ActorID, Name: row.Name, KeyJSON: row.KeyJSON})
	}
	return out
}

// runMigrations applies all pending up-migrations from the embedded SQL
// files. ErrNoChange is treated as success.
func runMigrations(sqlDB *sql.DB, driver string, log *zap.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	var m *migrate.Migrate

	switch driver {
	case "sqlite":
		drv, err := migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{})
		if err != nil {
			return fmt.Errorf("failed to create sqlite migrate driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "sqlite", drv)
		if err != nil {
			return fmt.Errorf("failed to create migrator: %w", err)
		}
	case "postgres":
		drv, err := migratepg.WithInstance(sqlDB, &migratepg.Config{})
		if err != nil {
			return fmt.Errorf("failed to create postgres migrate driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "postgres", drv)
		if err != nil {
			return fmt.Errorf("failed to create migrator: %w", err)
		}
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Info("actor store migrations applied successfully")
	return nil
}
