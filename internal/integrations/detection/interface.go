package detection

import (
	"context"
	"errors"
	"math"
)

// ErrUnavailable wird zurückgegeben, wenn ein Detektor nicht erreichbar oder nicht geladen ist
var ErrUnavailable = errors.New("detector unavailable")

// Tag ist ein vom Objektdetektor erkanntes Label
type Tag struct {
	// Label ist der Klassenname, z.B. "person" oder "dog"
	Label string `json:"label"`

	// Confidence ist die ungerundete Konfidenz (0-1)
	Confidence float64 `json:"confidence"`
}

// Rounded gibt die Konfidenz auf zwei Nachkommastellen gerundet zurück. Nur für die Anzeige.
func (t Tag) Rounded() float64 {
	return math.Round(t.Confidence*100) / 100
}

// Location enthält die Pixelkoordinaten eines Gesichts
type Location struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Face ist ein erkanntes Gesicht mit seinem Embedding
type Face struct {
	Location  Location  `json:"location"`
	Embedding []float64 `json:"embedding"`
}

// ObjectTagger erkennt Objekte in einem Bild
type ObjectTagger interface {
	// Name gibt den Namen des Detektors zurück
	Name() string

	// DetectObjects liefert alle Objekte oberhalb der Konfidenzschwelle
	DetectObjects(ctx context.Context, path string) ([]Tag, error)
}

// FaceExtractor findet Gesichter und berechnet deren Embeddings
type FaceExtractor interface {
	// Name gibt den Namen des Dienstes zurück
	Name() string

	// IsAvailable prüft, ob der Dienst verfügbar ist
	IsAvailable(ctx context.Context) bool

	// ExtractFaces liefert Positionen und Embeddings in gleicher Reihenfolge
	ExtractFaces(ctx context.Context, path string) ([]Face, error)
}

// HasLabel prüft, ob eines der Tags das angegebene Label trägt
func HasLabel(tags []Tag, label string) bool {
	for _, t := range tags {
		if t.Label == label {
			return true
		}
	}
	return false
}
