// Package resolver ordnet Gesichts-Embeddings bestehenden Profilen zu oder legt neue an.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"photo-indexer/internal/core/models"
	"photo-indexer/internal/db/repository"

	log "github.com/sirupsen/logrus"
)

// DefaultThreshold ist der maximale euklidische Abstand für dieselbe Identität
const DefaultThreshold = 0.6

var (
	// ErrEmptyEmbedding wird für leere Embeddings zurückgegeben
	ErrEmptyEmbedding = errors.New("embedding is empty")
	// ErrInvalidThreshold wird für Schwellenwerte <= 0 zurückgegeben
	ErrInvalidThreshold = errors.New("threshold must be positive")
)

// Resolution ist das Ergebnis einer Zuordnung
type Resolution struct {
	ProfileID uint
	Created   bool
}

// Resolver ist der Clustering-Kern. Zuordnungen laufen serialisiert, damit zwei
// gleichzeitige ähnliche Gesichter nicht zwei Profile für dieselbe Person anlegen.
type Resolver struct {
	strategy Strategy
	mu       sync.Mutex
}

// New erstellt einen Resolver mit der angegebenen Strategie
func New(strategy Strategy) *Resolver {
	if strategy == nil {
		strategy = FirstMatch{}
	}
	return &Resolver{strategy: strategy}
}

// StrategyName gibt den Namen der aktiven Strategie zurück
func (r *Resolver) StrategyName() string {
	return r.strategy.Name()
}

// Resolve liest alle repräsentativen Embeddings aus dem Store und liefert das passende
// Profil. Gibt es keins, wird ein neues Profil mit dem Embedding als Repräsentant angelegt.
// Das repräsentative Embedding eines Profils wird danach nie aktualisiert.
func (r *Resolver) Resolve(ctx context.Context, store repository.Store, embedding models.Embedding, threshold float64) (Resolution, error) {
	if len(embedding) == 0 {
		return Resolution{}, ErrEmptyEmbedding
	}
	if threshold <= 0 {
		return Resolution{}, ErrInvalidThreshold
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	candidates, err := store.ListProfileEmbeddings(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to load profiles: %w", err)
	}

	if id, ok := r.strategy.Match(embedding, candidates, threshold); ok {
		return Resolution{ProfileID: id}, nil
	}

	profile, err := store.CreateProfile(ctx, embedding)
	if err != nil {
		return Resolution{}, err
	}

	log.WithFields(log.Fields{
		"profile_id": profile.ID,
		"strategy":   r.strategy.Name(),
	}).Infof("Created new profile: Profile_%d", profile.ID)

	return Resolution{ProfileID: profile.ID, Created: true}, nil
}
