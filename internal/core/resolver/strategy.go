package resolver

import (
	"fmt"
	"math"

	"photo-indexer/internal/core/models"
	"photo-indexer/internal/db/repository"
)

// Namen der unterstützten Strategien
const (
	StrategyFirstMatch = "first_match"
	StrategyNearest    = "nearest"
)

// Strategy wählt aus den vorhandenen Profilen das passende für ein neues Embedding.
// Die Kandidaten kommen in aufsteigender Profil-ID-Reihenfolge.
type Strategy interface {
	Name() string
	Match(query models.Embedding, candidates []repository.ProfileEmbedding, threshold float64) (uint, bool)
}

// NewStrategy erstellt eine Strategie anhand ihres Konfigurationsnamens
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case "", StrategyFirstMatch:
		return FirstMatch{}, nil
	case StrategyNearest:
		return NewNearest(), nil
	default:
		return nil, fmt.Errorf("unknown resolver strategy %q", name)
	}
}

// FirstMatch liefert das erste Profil, dessen Abstand strikt unter dem Schwellenwert liegt.
// Das ist bewusst kein Nearest-Match: ein früheres Profil gewinnt auch gegen ein näheres.
type FirstMatch struct{}

// Name implementiert Strategy
func (FirstMatch) Name() string { return StrategyFirstMatch }

// Match implementiert Strategy
func (FirstMatch) Match(query models.Embedding, candidates []repository.ProfileEmbedding, threshold float64) (uint, bool) {
	for _, c := range candidates {
		if query.Distance(c.Embedding) < threshold {
			return c.ID, true
		}
	}
	return 0, false
}

// linearNearest ist die exakte Nearest-Suche, genutzt als Rückfall für Embeddings,
// deren Dimension nicht zum Index passt
func linearNearest(query models.Embedding, candidates []repository.ProfileEmbedding, threshold float64) (uint, bool) {
	bestID := uint(0)
	bestDist := math.Inf(1)
	for _, c := range candidates {
		if d := query.Distance(c.Embedding); d < bestDist {
			bestID, bestDist = c.ID, d
		}
	}
	if bestDist < threshold {
		return bestID, true
	}
	return 0, false
}
