package resolver

import (
	"slices"
	"sync"

	"photo-indexer/internal/core/models"
	"photo-indexer/internal/db/repository"

	"github.com/coder/hnsw"
)

const nearestMaxNeighbors = 16

// Nearest ordnet ein Embedding dem nächstgelegenen Profil unter dem Schwellenwert zu.
// Die Suche läuft über einen HNSW-Graphen, der inkrementell mit neuen Profilen wächst.
// Achtung: das ist eine andere Semantik als FirstMatch.
type Nearest struct {
	mu      sync.Mutex
	graph   *hnsw.Graph[uint]
	dims    int
	vectors map[uint]models.Embedding
}

// NewNearest erstellt eine leere Nearest-Strategie
func NewNearest() *Nearest {
	return &Nearest{vectors: make(map[uint]models.Embedding)}
}

// Name implementiert Strategy
func (n *Nearest) Name() string { return StrategyNearest }

// Match implementiert Strategy
func (n *Nearest) Match(query models.Embedding, candidates []repository.ProfileEmbedding, threshold float64) (uint, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	// Auch ohne Kandidaten abgleichen, sonst überlebt ein zurückgerolltes Profil im Index
	n.sync(candidates)
	if len(candidates) == 0 || len(query) == 0 {
		return 0, false
	}
	if n.graph == nil || n.graph.Len() == 0 || len(query) != n.dims {
		return linearNearest(query, candidates, threshold)
	}

	neighbors := n.graph.Search(query.Float32(), 1)
	if len(neighbors) == 0 {
		return 0, false
	}

	// Abstand exakt in float64 nachrechnen, der Graph arbeitet mit float32
	id := neighbors[0].Key
	if query.Distance(n.vectors[id]) < threshold {
		return id, true
	}
	return 0, false
}

// sync gleicht den Graphen mit den aktuellen Kandidaten ab. Profile werden nie gelöscht,
// verschwinden aber, wenn die Transaktion, in der sie angelegt wurden, zurückgerollt wird.
// SQLite vergibt die ID danach erneut, deshalb zählt auch ein geändertes Embedding.
// In beiden Fällen wird der Graph neu aufgebaut.
func (n *Nearest) sync(candidates []repository.ProfileEmbedding) {
	current := make(map[uint]models.Embedding, len(candidates))
	for _, c := range candidates {
		current[c.ID] = c.Embedding
	}
	for id, cached := range n.vectors {
		if emb, ok := current[id]; !ok || !slices.Equal(emb, cached) {
			n.graph = nil
			n.vectors = make(map[uint]models.Embedding, len(candidates))
			break
		}
	}

	for _, c := range candidates {
		if _, ok := n.vectors[c.ID]; ok || len(c.Embedding) == 0 {
			continue
		}
		if n.graph == nil {
			n.graph = newGraph()
			n.dims = len(c.Embedding)
		}
		if len(c.Embedding) != n.dims {
			continue
		}
		n.graph.Add(hnsw.MakeNode(c.ID, c.Embedding.Float32()))
		n.vectors[c.ID] = c.Embedding
	}
}

func newGraph() *hnsw.Graph[uint] {
	g := hnsw.NewGraph[uint]()
	g.M = nearestMaxNeighbors
	g.Ml = 1.0 / float64(nearestMaxNeighbors)
	g.Distance = hnsw.EuclideanDistance
	return g
}
