package faceapi

import (
	"context"
	"fmt"
	"os"

	"photo-indexer/config"
	"photo-indexer/internal/integrations/detection"

	log "github.com/sirupsen/logrus"
)

// Service implementiert detection.FaceExtractor über den Embedding-Dienst
type Service struct {
	client *APIClient
	config config.FaceAPIConfig
}

var _ detection.FaceExtractor = (*Service)(nil)

// NewService erstellt einen neuen Service
func NewService(cfg config.FaceAPIConfig) *Service {
	return &Service{
		client: NewAPIClient(cfg),
		config: cfg,
	}
}

// Name implementiert detection.FaceExtractor
func (s *Service) Name() string {
	return "faceapi"
}

// IsAvailable prüft, ob der Dienst erreichbar ist
func (s *Service) IsAvailable(ctx context.Context) bool {
	if !s.config.Enabled {
		return false
	}
	available, err := s.client.Ping(ctx)
	if err != nil {
		log.WithFields(logFields).Debugf("Face API ping failed: %v", err)
	}
	return available
}

// ExtractFaces liefert Position und Embedding aller Gesichter in Antwortreihenfolge.
// Gesichter ohne Embedding oder mit unvollständiger Box werden verworfen.
func (s *Service) ExtractFaces(ctx context.Context, path string) ([]detection.Face, error) {
	if !s.config.Enabled {
		return nil, detection.ErrUnavailable
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	imgData, err := decodeImage(f)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Detect(ctx, imgData)
	if err != nil {
		return nil, fmt.Errorf("face extraction failed: %w", err)
	}

	faces := make([]detection.Face, 0, len(resp.Faces))
	for i, face := range resp.Faces {
		if len(face.BoundingBox) != 4 || len(face.Embedding) == 0 {
			log.WithFields(logFields).Warnf("Dropping face %d in %s: incomplete response", i, path)
			continue
		}
		faces = append(faces, detection.Face{
			Location: detection.Location{
				Top:    face.BoundingBox[1],
				Right:  face.BoundingBox[2],
				Bottom: face.BoundingBox[3],
				Left:   face.BoundingBox[0],
			},
			Embedding: face.Embedding,
		})
	}
	return faces, nil
}
