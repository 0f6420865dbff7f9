package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"photo-indexer/internal/core/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound wird zurückgegeben, wenn der angefragte Datensatz nicht existiert
	ErrNotFound = errors.New("record not found")
	// ErrInvalidName wird bei leeren Profilnamen zurückgegeben
	ErrInvalidName = errors.New("profile name must not be empty")
)

// ProfileEmbedding ist ein (ID, repräsentatives Embedding)-Paar für die Identitätszuordnung
type ProfileEmbedding struct {
	ID        uint
	Embedding models.Embedding
}

// Store definiert die Schnittstelle für die Datenbank-Operationen
type Store interface {
	// Image-Methoden
	FindImageByHash(ctx context.Context, hash string) (*models.Image, error)
	InsertImageIfAbsent(ctx context.Context, image *models.Image) (uint, bool, error)
	GetImage(ctx context.Context, id uint) (*models.Image, error)
	ListImages(ctx context.Context, limit, offset int) ([]models.Image, int64, error)
	DeleteImage(ctx context.Context, id uint) error

	// Tag-Methoden
	CreateTags(ctx context.Context, tags []models.Tag) error
	TagsForImage(ctx context.Context, imageID uint) ([]models.Tag, error)
	TagStats(ctx context.Context) ([]models.TagCount, error)
	ImagesByTag(ctx context.Context, label string) ([]models.ImageMatch, error)

	// Profil-Methoden
	ListProfileEmbeddings(ctx context.Context) ([]ProfileEmbedding, error)
	CreateProfile(ctx context.Context, embedding models.Embedding) (*models.Profile, error)
	RenameProfile(ctx context.Context, id uint, name string) error
	ProfilesWithCounts(ctx context.Context) ([]models.ProfileSummary, error)
	ImagesByProfile(ctx context.Context, profileID uint) ([]models.ImageMatch, error)

	// FaceDetection-Methoden
	CreateFaceDetection(ctx context.Context, face *models.FaceDetection) error
	FacesForImage(ctx context.Context, imageID uint) ([]models.FaceDetection, error)

	// Statistik-Methoden
	GetStatistics(ctx context.Context) (models.Statistics, error)

	// Transaction führt fn atomar aus; ein Fehler rollt alle Schreibvorgänge zurück
	Transaction(ctx context.Context, fn func(Store) error) error
}

// SQLiteRepository implementiert die Store-Schnittstelle mit GORM auf SQLite
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository erstellt eine neue SQLite-Repository-Instanz
func NewSQLiteRepository(db *gorm.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Transaction führt fn innerhalb einer Datenbanktransaktion aus
func (r *SQLiteRepository) Transaction(ctx context.Context, fn func(Store) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&SQLiteRepository{db: tx})
	})
}

// Image-Methoden

// FindImageByHash sucht ein Bild anhand des Inhalts-Hashes; nil, wenn keins existiert
func (r *SQLiteRepository) FindImageByHash(ctx context.Context, hash string) (*models.Image, error) {
	var image models.Image
	result := r.db.WithContext(ctx).Where("content_hash = ?", hash).Limit(1).Find(&image)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to look up image by hash: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &image, nil
}

// InsertImageIfAbsent legt ein Bild an, sofern der Hash noch unbekannt ist.
// Bei einem Konflikt wird die ID des vorhandenen Bildes zurückgegeben (created = false).
func (r *SQLiteRepository) InsertImageIfAbsent(ctx context.Context, image *models.Image) (uint, bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "content_hash"}},
			DoNothing: true,
		}).
		Omit(clause.Associations).
		Create(image)
	if result.Error != nil {
		return 0, false, fmt.Errorf("failed to insert image: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return image.ID, true, nil
	}

	existing, err := r.FindImageByHash(ctx, image.ContentHash)
	if err != nil {
		return 0, false, err
	}
	if existing == nil {
		return 0, false, fmt.Errorf("image with hash %s vanished after conflict", image.ContentHash)
	}
	return existing.ID, false, nil
}

// GetImage holt ein Bild samt Tags und Gesichtern
func (r *SQLiteRepository) GetImage(ctx context.Context, id uint) (*models.Image, error) {
	var image models.Image
	result := r.db.WithContext(ctx).
		Preload("Tags").
		Preload("Faces", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Faces.Profile").
		First(&image, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &image, nil
}

// ListImages holt Bilder mit Pagination, neueste zuerst
func (r *SQLiteRepository) ListImages(ctx context.Context, limit, offset int) ([]models.Image, int64, error) {
	var images []models.Image
	var total int64

	if err := r.db.WithContext(ctx).Model(&models.Image{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	result := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Offset(offset).Find(&images)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return images, total, nil
}

// DeleteImage löscht ein Bild mitsamt Tags und Gesichtserkennungen in einer Transaktion
func (r *SQLiteRepository) DeleteImage(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("image_id = ?", id).Delete(&models.FaceDetection{}).Error; err != nil {
			return fmt.Errorf("failed to delete face detections of image %d: %w", id, err)
		}
		if err := tx.Where("image_id = ?", id).Delete(&models.Tag{}).Error; err != nil {
			return fmt.Errorf("failed to delete tags of image %d: %w", id, err)
		}
		result := tx.Delete(&models.Image{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete image %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Tag-Methoden

// CreateTags speichert die Tags eines Bildes; doppelte Labels sind erlaubt
func (r *SQLiteRepository) CreateTags(ctx context.Context, tags []models.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&tags).Error; err != nil {
		return fmt.Errorf("failed to insert tags: %w", err)
	}
	return nil
}

// TagsForImage holt alle Tags eines Bildes
func (r *SQLiteRepository) TagsForImage(ctx context.Context, imageID uint) ([]models.Tag, error) {
	var tags []models.Tag
	result := r.db.WithContext(ctx).Where("image_id = ?", imageID).Order("id ASC").Find(&tags)
	if result.Error != nil {
		return nil, result.Error
	}
	return tags, nil
}

// TagStats liefert die Häufigkeit jedes Labels, häufigste zuerst
func (r *SQLiteRepository) TagStats(ctx context.Context) ([]models.TagCount, error) {
	var stats []models.TagCount
	result := r.db.WithContext(ctx).Model(&models.Tag{}).
		Select("label, COUNT(*) AS count").
		Group("label").
		Order("count DESC, label ASC").
		Scan(&stats)
	if result.Error != nil {
		return nil, result.Error
	}
	return stats, nil
}

// ImagesByTag liefert alle Bilder mit dem Label, jeweils mit der höchsten Konfidenz
func (r *SQLiteRepository) ImagesByTag(ctx context.Context, label string) ([]models.ImageMatch, error) {
	var matches []models.ImageMatch
	result := r.db.WithContext(ctx).Raw(`
		SELECT images.id AS image_id, images.path AS path, MAX(tags.confidence) AS confidence
		FROM images
		JOIN tags ON images.id = tags.image_id
		WHERE tags.label = ?
		GROUP BY images.id, images.path
		ORDER BY confidence DESC, images.id ASC
	`, label).Scan(&matches)
	if result.Error != nil {
		return nil, result.Error
	}
	return matches, nil
}

// Profil-Methoden

// ListProfileEmbeddings liefert alle repräsentativen Embeddings in aufsteigender ID-Reihenfolge
func (r *SQLiteRepository) ListProfileEmbeddings(ctx context.Context) ([]ProfileEmbedding, error) {
	var profiles []models.Profile
	result := r.db.WithContext(ctx).
		Select("id", "representative_embedding").
		Order("id ASC").
		Find(&profiles)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list profile embeddings: %w", result.Error)
	}

	out := make([]ProfileEmbedding, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, ProfileEmbedding{ID: p.ID, Embedding: p.RepresentativeEmbedding})
	}
	return out, nil
}

// CreateProfile legt ein neues Profil an, dessen repräsentatives Embedding die Eingabe ist
func (r *SQLiteRepository) CreateProfile(ctx context.Context, embedding models.Embedding) (*models.Profile, error) {
	profile := models.Profile{
		Name:                    models.DefaultProfileName,
		RepresentativeEmbedding: append(models.Embedding(nil), embedding...),
	}
	if err := r.db.WithContext(ctx).Create(&profile).Error; err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return &profile, nil
}

// RenameProfile ändert den Anzeigenamen eines Profils
func (r *SQLiteRepository) RenameProfile(ctx context.Context, id uint, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	result := r.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", id).Update("name", name)
	if result.Error != nil {
		return fmt.Errorf("failed to rename profile %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ProfilesWithCounts liefert alle Profile mit der Anzahl ihrer Gesichtserkennungen
func (r *SQLiteRepository) ProfilesWithCounts(ctx context.Context) ([]models.ProfileSummary, error) {
	var profiles []models.ProfileSummary
	result := r.db.WithContext(ctx).Raw(`
		SELECT p.id AS id, p.name AS name, COUNT(fd.id) AS detection_count
		FROM profiles p
		LEFT JOIN face_detections fd ON p.id = fd.profile_id
		GROUP BY p.id, p.name
		ORDER BY p.id ASC
	`).Scan(&profiles)
	if result.Error != nil {
		return nil, result.Error
	}
	for i := range profiles {
		profiles[i].DisplayName = models.Profile{ID: profiles[i].ID, Name: profiles[i].Name}.DisplayName()
	}
	return profiles, nil
}

// ImagesByProfile liefert alle Bilder, in denen das Profil erkannt wurde
func (r *SQLiteRepository) ImagesByProfile(ctx context.Context, profileID uint) ([]models.ImageMatch, error) {
	var matches []models.ImageMatch
	result := r.db.WithContext(ctx).Raw(`
		SELECT DISTINCT images.id AS image_id, images.path AS path, 1.0 AS confidence
		FROM images
		JOIN face_detections fd ON images.id = fd.image_id
		WHERE fd.profile_id = ?
		ORDER BY images.id ASC
	`, profileID).Scan(&matches)
	if result.Error != nil {
		return nil, result.Error
	}
	return matches, nil
}

// FaceDetection-Methoden

// CreateFaceDetection speichert eine Gesichtserkennung
func (r *SQLiteRepository) CreateFaceDetection(ctx context.Context, face *models.FaceDetection) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(face).Error; err != nil {
		return fmt.Errorf("failed to insert face detection: %w", err)
	}
	return nil
}

// FacesForImage holt alle Gesichtserkennungen eines Bildes
func (r *SQLiteRepository) FacesForImage(ctx context.Context, imageID uint) ([]models.FaceDetection, error) {
	var faces []models.FaceDetection
	result := r.db.WithContext(ctx).Where("image_id = ?", imageID).Order("id ASC").Find(&faces)
	if result.Error != nil {
		return nil, result.Error
	}
	return faces, nil
}

// Statistik-Methoden

// GetStatistics gibt Statistiken über die gespeicherten Daten zurück
func (r *SQLiteRepository) GetStatistics(ctx context.Context) (models.Statistics, error) {
	var stats models.Statistics
	db := r.db.WithContext(ctx)

	if err := db.Model(&models.Image{}).Count(&stats.TotalImages).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&models.Tag{}).Count(&stats.TotalTags).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&models.FaceDetection{}).Count(&stats.TotalFaces).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&models.Profile{}).Count(&stats.ProfileCount).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&models.Profile{}).
		Where("name <> ?", models.DefaultProfileName).
		Count(&stats.NamedProfiles).Error; err != nil {
		return stats, err
	}

	var latest models.Image
	result := db.Order("id DESC").Limit(1).Find(&latest)
	if result.Error != nil {
		return stats, result.Error
	}
	if result.RowsAffected > 0 {
		stats.LatestIndexedAt = latest.CreatedAt
	}

	return stats, nil
}
