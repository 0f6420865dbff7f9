package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config repräsentiert die Hauptkonfiguration der Anwendung
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Scanner  ScannerConfig  `mapstructure:"scanner"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	OpenCV   OpenCVConfig   `mapstructure:"opencv"`
	FaceAPI  FaceAPIConfig  `mapstructure:"face_api"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	I18n     I18nConfig     `mapstructure:"i18n"`
}

// ServerConfig enthält Server-bezogene Einstellungen
type ServerConfig struct {
	Host          string   `mapstructure:"host"`
	Port          int      `mapstructure:"port"`
	MediaURL      string   `mapstructure:"media_url"`
	SessionSecret string   `mapstructure:"session_secret"`
	CORSOrigins   []string `mapstructure:"cors_origins"`
}

// LogConfig enthält Log-Einstellungen
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig enthält Datenbankeinstellungen
type DBConfig struct {
	File string `mapstructure:"file"` // SQLite-Datei
}

// ScannerConfig steuert den Verzeichnisdurchlauf der Indexierung
type ScannerConfig struct {
	RootDir         string   `mapstructure:"root_dir"`
	Extensions      []string `mapstructure:"extensions"`
	Workers         int      `mapstructure:"workers"`          // 1 = streng sequentiell
	PersonLabel     string   `mapstructure:"person_label"`     // Label, das die Gesichtserkennung auslöst
	ScheduleMinutes int      `mapstructure:"schedule_minutes"` // 0 = kein periodischer Scan
	ScheduleCron    string   `mapstructure:"schedule_cron"`    // hat Vorrang vor schedule_minutes
}

// ResolverConfig enthält die Parameter der Identitätszuordnung
type ResolverConfig struct {
	Threshold float64 `mapstructure:"threshold"`
	Strategy  string  `mapstructure:"strategy"` // "first_match" oder "nearest"
}

// OpenCVConfig enthält Einstellungen für den DNN-Objektdetektor
type OpenCVConfig struct {
	Enabled             bool    `mapstructure:"enabled"`
	Model               string  `mapstructure:"model"` // "yolo" oder "ssd_mobilenet"
	ModelPath           string  `mapstructure:"model_path"`
	ConfigPath          string  `mapstructure:"config_path"`
	ClassesPath         string  `mapstructure:"classes_path"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	NMSThreshold        float64 `mapstructure:"nms_threshold"`
	InputSize           int     `mapstructure:"input_size"`
	Backend             string  `mapstructure:"backend"` // "default", "cuda", "opencl"
	Target              string  `mapstructure:"target"`  // "cpu", "cuda", "opencl"
}

// FaceAPIConfig enthält die Einstellungen für den Embedding-Dienst
type FaceAPIConfig struct {
	Enabled            bool    `mapstructure:"enabled"`
	URL                string  `mapstructure:"url"`
	Timeout            int     `mapstructure:"timeout"` // Sekunden
	DetectionThreshold float64 `mapstructure:"detection_threshold"`
}

// MQTTConfig enthält die Konfiguration für den MQTT-Client
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// I18nConfig enthält die Spracheinstellungen der API
type I18nConfig struct {
	DefaultLanguage string `mapstructure:"default_language"`
}

// Load lädt die Konfiguration aus Datei, Umgebungsvariablen und Standardwerten
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Umgebungsvariablen überlagern die Konfiguration
	v.SetEnvPrefix("PHOTO_INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalize(&cfg)

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// setDefaults legt Standardwerte für die Konfiguration fest
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.media_url", "/media")
	v.SetDefault("server.session_secret", "photo-indexer")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("db.file", "images.db")

	v.SetDefault("scanner.root_dir", "./my_images")
	v.SetDefault("scanner.extensions", []string{"jpg", "jpeg", "png", "webp"})
	v.SetDefault("scanner.workers", 1)
	v.SetDefault("scanner.person_label", "person")
	v.SetDefault("scanner.schedule_minutes", 0)
	v.SetDefault("scanner.schedule_cron", "")

	v.SetDefault("resolver.threshold", 0.6)
	v.SetDefault("resolver.strategy", "first_match")

	v.SetDefault("opencv.enabled", true)
	v.SetDefault("opencv.model", "yolo")
	v.SetDefault("opencv.model_path", "models/yolo11s.onnx")
	v.SetDefault("opencv.config_path", "")
	v.SetDefault("opencv.classes_path", "")
	v.SetDefault("opencv.confidence_threshold", 0.6)
	v.SetDefault("opencv.nms_threshold", 0.45)
	v.SetDefault("opencv.input_size", 640)
	v.SetDefault("opencv.backend", "default")
	v.SetDefault("opencv.target", "cpu")

	v.SetDefault("face_api.enabled", true)
	v.SetDefault("face_api.url", "http://localhost:18081")
	v.SetDefault("face_api.timeout", 30)
	v.SetDefault("face_api.detection_threshold", 0.5)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "photo-indexer")
	v.SetDefault("mqtt.topic_prefix", "photo-indexer")

	v.SetDefault("i18n.default_language", "en")
}

// normalize bereinigt Werte, die über Umgebungsvariablen in uneinheitlicher Form ankommen
func normalize(cfg *Config) {
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Resolver.Strategy = strings.ToLower(cfg.Resolver.Strategy)

	exts := make([]string, 0, len(cfg.Scanner.Extensions))
	for _, ext := range cfg.Scanner.Extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	cfg.Scanner.Extensions = exts

	if cfg.Scanner.Workers < 1 {
		cfg.Scanner.Workers = 1
	}
}

// ensureDirectories stellt sicher, dass alle erforderlichen Verzeichnisse existieren
func ensureDirectories(cfg *Config) error {
	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	if cfg.DB.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.File), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}
