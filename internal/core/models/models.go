package models

import (
	"database/sql/driver"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/datatypes"
)

// DefaultProfileName ist der Platzhalter für noch nicht benannte Profile
const DefaultProfileName = "Unknown"

// Image repräsentiert eine indexierte Bilddatei, eindeutig über den Inhalts-Hash
type Image struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Path        string          `gorm:"not null" json:"path"`                    // Erster beobachteter Pfad
	ContentHash string          `gorm:"uniqueIndex;not null" json:"content_hash"` // SHA-256 des Inhalts
	CreatedAt   time.Time       `json:"created_at"`
	Tags        []Tag           `gorm:"foreignKey:ImageID;constraint:OnDelete:CASCADE;" json:"tags,omitempty"`
	Faces       []FaceDetection `gorm:"foreignKey:ImageID;constraint:OnDelete:CASCADE;" json:"faces,omitempty"`
}

// Tag ist eine (Label, Konfidenz)-Beobachtung des Objektdetektors
type Tag struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	ImageID    uint    `gorm:"index;not null" json:"image_id"`
	Label      string  `gorm:"index;not null" json:"label"`
	Confidence float64 `json:"confidence"`
}

// Profile repräsentiert eine vermutete Identität
type Profile struct {
	ID                      uint      `gorm:"primaryKey" json:"id"`
	Name                    string    `gorm:"not null;default:Unknown" json:"name"`
	RepresentativeEmbedding Embedding `gorm:"type:blob" json:"-"` // wird nach dem Anlegen nie verändert
	CreatedAt               time.Time `json:"created_at"`
}

// DisplayName liefert den Namen oder einen stabilen Platzhalter für unbenannte Profile
func (p Profile) DisplayName() string {
	if p.Name == "" || p.Name == DefaultProfileName {
		return fmt.Sprintf("Profile_%d", p.ID)
	}
	return p.Name
}

// FaceDetection ist eine einzelne Gesichtsbeobachtung in einem Bild
type FaceDetection struct {
	ID          uint                             `gorm:"primaryKey" json:"id"`
	ImageID     uint                             `gorm:"index;not null" json:"image_id"`
	ProfileID   uint                             `gorm:"index;not null" json:"profile_id"`
	BoundingBox datatypes.JSONType[BoundingBox] `gorm:"column:bbox" json:"bbox"`
	Embedding   Embedding                        `gorm:"type:blob" json:"-"`
	Profile     *Profile                         `gorm:"foreignKey:ProfileID" json:"profile,omitempty"`
}

// BoundingBox enthält die Pixelkoordinaten eines Gesichts (top, right, bottom, left)
type BoundingBox struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// TagCount ist eine Zeile der Tag-Häufigkeitstabelle
type TagCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// ImageMatch ist ein Suchtreffer (Bild + Konfidenz des Treffers)
type ImageMatch struct {
	ImageID    uint    `json:"image_id"`
	Path       string  `json:"path"`
	Confidence float64 `json:"confidence"`
}

// ProfileSummary ist ein Eintrag der Profilübersicht
type ProfileSummary struct {
	ID             uint   `json:"id"`
	Name           string `json:"name"`
	DisplayName    string `json:"display_name" gorm:"-"`
	DetectionCount int64  `json:"detection_count"`
}

// Statistics fasst den Bestand der Datenbank zusammen
type Statistics struct {
	TotalImages     int64     `json:"total_images"`
	TotalTags       int64     `json:"total_tags"`
	TotalFaces      int64     `json:"total_faces"`
	ProfileCount    int64     `json:"profile_count"`
	NamedProfiles   int64     `json:"named_profiles"`
	LatestIndexedAt time.Time `json:"latest_indexed_at"`
}

// Embedding ist ein Gesichtsvektor fester Länge (128 Dimensionen beim Referenzmodell).
// In der Datenbank als Little-Endian-float64-BLOB abgelegt.
type Embedding []float64

// Distance berechnet den euklidischen Abstand zu einem anderen Embedding.
// Unterschiedliche Längen ergeben +Inf, damit nie ein Treffer entsteht.
func (e Embedding) Distance(other Embedding) float64 {
	if len(e) != len(other) {
		return math.Inf(1)
	}
	var sum float64
	for i := range e {
		d := e[i] - other[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Float32 konvertiert das Embedding für Indexstrukturen, die float32 erwarten
func (e Embedding) Float32() []float32 {
	out := make([]float32, len(e))
	for i, v := range e {
		out[i] = float32(v)
	}
	return out
}

// Value implementiert driver.Valuer
func (e Embedding) Value() (driver.Value, error) {
	if e == nil {
		return nil, nil
	}
	buf := make([]byte, 8*len(e))
	for i, v := range e {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf, nil
}

// Scan implementiert sql.Scanner
func (e *Embedding) Scan(src interface{}) error {
	if src == nil {
		*e = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported embedding column type %T", src)
	}
	if len(raw)%8 != 0 {
		return errors.New("embedding blob length is not a multiple of 8")
	}
	out := make(Embedding, len(raw)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	*e = out
	return nil
}
