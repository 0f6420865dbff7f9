package logger

import (
	"io"
	"os"
	"path/filepath"

	"photo-indexer/config"

	log "github.com/sirupsen/logrus"
)

// Init initializes the global logger based on the provided configuration.
// The returned closer releases the log file, if one was opened.
func Init(cfg config.LogConfig) (io.Closer, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("Invalid log level '%s', defaulting to 'info': %v", cfg.Level, err)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	writers := []io.Writer{os.Stdout}
	var file *os.File

	if cfg.File != "" {
		logDir := filepath.Dir(cfg.File)
		if err := os.MkdirAll(logDir, 0750); err != nil {
			// Continue without file logging if directory creation fails
			log.Errorf("Failed to create log directory '%s': %v", logDir, err)
		} else {
			file, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660)
			if err != nil {
				log.Errorf("Failed to open log file '%s': %v", cfg.File, err)
				file = nil
			} else {
				writers = append(writers, file)
				log.Infof("Logging additionally to file: %s", cfg.File)
			}
		}
	}

	log.SetOutput(io.MultiWriter(writers...))

	log.Debug("Logger initialized")
	if file == nil {
		return nopCloser{}, nil
	}
	return file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
