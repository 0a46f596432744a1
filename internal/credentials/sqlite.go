package credentials

import (
	"errors"
	"fmt"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const migrationPurgeBlankCredentials = "2026-10-01_purge_blank_credentials"

// OpenSQLite opens the credential database and applies schema migrations.
func OpenSQLite(path string, log *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("credentials: database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Credential{}, &migrationRecord{}); err != nil {
		return nil, err
	}
	if err := applyMigrations(db, log); err != nil {
		return nil, err
	}

	if log != nil {
		log.Debug("credential database initialized", zap.String("path", path))
	}
	return db, nil
}

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, log *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationPurgeBlankCredentials, apply: purgeBlankCredentials},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if log != nil {
			log.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// purgeBlankCredentials drops rows left behind by logouts that blanked the token instead of deleting it.
func purgeBlankCredentials(db *gorm.DB) error {
	return db.Where("TRIM(token) = ''").Delete(&Credential{}).Error
}
