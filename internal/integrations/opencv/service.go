package opencv

import (
	"context"
	"fmt"
	"sync"

	"photo-indexer/config"
	"photo-indexer/internal/integrations/detection"

	log "github.com/sirupsen/logrus"
)

// Service ist der Objekt-Tagger auf Basis von OpenCV DNN
type Service struct {
	cfg         *config.OpenCVConfig
	detector    *ObjectDetector
	mutex       sync.Mutex
	initialized bool
}

var _ detection.ObjectTagger = (*Service)(nil)

// NewService erstellt einen neuen OpenCV-Service und lädt das Modell
func NewService(cfg *config.OpenCVConfig) (*Service, error) {
	service := &Service{cfg: cfg}

	if !cfg.Enabled {
		log.Info("OpenCV object detection is disabled in the configuration")
		return service, nil
	}

	if err := service.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenCV service: %w", err)
	}
	return service, nil
}

func (s *Service) initialize() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.initialized {
		return nil
	}

	detector, err := NewObjectDetector(s.cfg)
	if err != nil {
		return err
	}
	s.detector = detector
	s.initialized = true
	return nil
}

// Name implementiert detection.ObjectTagger
func (s *Service) Name() string {
	return "opencv-" + s.cfg.Model
}

// DetectObjects implementiert detection.ObjectTagger. Das Netz ist nicht threadsicher,
// Aufrufe werden daher serialisiert.
func (s *Service) DetectObjects(ctx context.Context, imagePath string) ([]detection.Tag, error) {
	if !s.cfg.Enabled || !s.initialized {
		return nil, detection.ErrUnavailable
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	tags, err := s.detector.Detect(ctx, imagePath)
	if err != nil {
		log.Warnf("OpenCV object detection failed for %s: %v", imagePath, err)
		return nil, err
	}
	return tags, nil
}

// Close gibt die Ressourcen des OpenCV-Service frei
func (s *Service) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.initialized && s.detector != nil {
		if err := s.detector.Close(); err != nil {
			return err
		}
		s.initialized = false
	}
	return nil
}
