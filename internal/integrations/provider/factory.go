package provider

import (
	"context"
	"fmt"

	"photo-indexer/config"
	"photo-indexer/internal/integrations/detection"
	"photo-indexer/internal/integrations/faceapi"
	"photo-indexer/internal/integrations/opencv"

	log "github.com/sirupsen/logrus"
)

// Detectors bündelt die konfigurierten Detektoren
type Detectors struct {
	Tagger    detection.ObjectTagger
	Faces     detection.FaceExtractor
	closeFunc func() error
}

// Close gibt die Ressourcen der Detektoren frei
func (d *Detectors) Close() error {
	if d.closeFunc == nil {
		return nil
	}
	return d.closeFunc()
}

// Create erstellt Objekt-Tagger und Gesichts-Extraktor anhand der Konfiguration.
// Ohne Objekt-Tagger kann nicht indexiert werden, der Embedding-Dienst darf fehlen.
func Create(ctx context.Context, cfg *config.Config) (*Detectors, error) {
	if !cfg.OpenCV.Enabled {
		return nil, fmt.Errorf("%w: object detection is disabled", detection.ErrUnavailable)
	}

	log.Infof("Registering OpenCV object detector (model: %s)", cfg.OpenCV.Model)
	tagger, err := opencv.NewService(&cfg.OpenCV)
	if err != nil {
		return nil, err
	}

	faces := faceapi.NewService(cfg.FaceAPI)
	switch {
	case !cfg.FaceAPI.Enabled:
		log.Warn("Face API is disabled, images tagged as person will fail face extraction")
	case !faces.IsAvailable(ctx):
		log.Warnf("Face API at %s is not reachable yet", cfg.FaceAPI.URL)
	default:
		log.Infof("Active face extractor: %s (%s)", faces.Name(), cfg.FaceAPI.URL)
	}

	return &Detectors{
		Tagger:    tagger,
		Faces:     faces,
		closeFunc: tagger.Close,
	}, nil
}
