package main

import (
	"fmt"
	"io"
	"os"

	"photo-indexer/config"
	"photo-indexer/internal/db"
	"photo-indexer/internal/db/repository"
	"photo-indexer/internal/logger"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "photo-indexer",
	Short: "Index a photo library by content, objects and faces",
	Long: `Photo Indexer walks a directory of photos, identifies every image by the
SHA-256 of its content, tags detected objects and groups detected faces into
profiles. The index lives in a single SQLite file and can be browsed via the
CLI or the HTTP API started with "serve".`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// app bundles what every subcommand needs: config, logger and store.
type app struct {
	cfg       *config.Config
	db        *gorm.DB
	repo      *repository.SQLiteRepository
	logCloser io.Closer
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logCloser, err := logger.Init(cfg.Log)
	if err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}

	database, err := db.Open(cfg.DB)
	if err != nil {
		if logCloser != nil {
			_ = logCloser.Close()
		}
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return &app{
		cfg:       cfg,
		db:        database,
		repo:      repository.NewSQLiteRepository(database),
		logCloser: logCloser,
	}, nil
}

func (a *app) Close() {
	if err := db.Close(a.db); err != nil {
		log.Warnf("Failed to close database: %v", err)
	}
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}
