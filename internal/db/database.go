package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"photo-indexer/config"
	"photo-indexer/internal/core/models"

	"github.com/glebarez/sqlite" // Pure Go SQLite Treiber
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open öffnet die SQLite-Datenbank und führt die Migrationen aus.
// Fremdschlüssel werden pro Verbindung aktiviert, damit Löschungen kaskadieren.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	if cfg.File == "" {
		return nil, fmt.Errorf("database file is not configured")
	}

	if !strings.HasPrefix(cfg.File, "file:") && cfg.File != ":memory:" {
		dbDir := filepath.Dir(cfg.File)
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			log.Errorf("Failed to create database directory '%s': %v", dbDir, err)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// GORM-Logger an logrus anbinden
	gormLogger := logger.New(
		log.StandardLogger(),
		logger.Config{
			SlowThreshold:             time.Second * 2,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.Infof("Connecting to database: %s", cfg.File)

	database, err := gorm.Open(sqlite.Open(dsn(cfg.File)), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		log.Errorf("Failed to connect to database: %v", err)
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	// SQLite erlaubt nur einen Schreiber; ein kleiner Pool vermeidet "database is locked"
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Debug("Running database migrations...")
	if err := database.AutoMigrate(
		&models.Image{},
		&models.Tag{},
		&models.Profile{},
		&models.FaceDetection{},
	); err != nil {
		log.Errorf("Database migration failed: %v", err)
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	log.Info("Database connection established successfully")
	return database, nil
}

// Close schließt den Verbindungspool
func Close(database *gorm.DB) error {
	sqlDB, err := database.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// dsn hängt die Pragmas für Fremdschlüssel und Busy-Timeout an den Dateipfad an
func dsn(file string) string {
	sep := "?"
	if strings.Contains(file, "?") {
		sep = "&"
	}
	return file + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}
