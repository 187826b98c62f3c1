package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/yungbote/docchat-backend/internal/platform/apierr"
	"github.com/yungbote/docchat-backend/internal/platform/pinecone"
)

// MemoryStore is a process-local vector store ranked by cosine similarity.
// It backs VECTOR_STORE_PROVIDER=memory for offline runs.
type MemoryStore struct {
	mu     sync.RWMutex
	spaces map[string]map[string]pinecone.Vector
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{spaces: map[string]map[string]pinecone.Vector{}}
}

func (m *MemoryStore) Upsert(ctx context.Context, namespace string, vectors []pinecone.Vector) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ns := m.spaces[namespace]
	if ns == nil {
		ns = map[string]pinecone.Vector{}
		m.spaces[namespace] = ns
	}
	for _, v := range vectors {
		if v.ID == "" {
			return fmt.Errorf("%w: vector id required", apierr.ErrInvalidArgument)
		}
		ns[v.ID] = v
	}
	return nil
}

func (m *MemoryStore) QueryMatches(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]pinecone.VectorMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(filter) > 0 {
		return nil, fmt.Errorf("%w: memory store does not support filters", apierr.ErrInvalidArgument)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]pinecone.VectorMatch, 0, len(m.spaces[namespace]))
	for id, v := range m.spaces[namespace] {
		out = append(out, pinecone.VectorMatch{ID: id, Score: cosine(q, v.Values), Metadata: v.Metadata})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *MemoryStore) QueryIDs(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]string, error) {
	matches, err := m.QueryMatches(ctx, namespace, q, topK, filter)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(matches))
	for i, mt := range matches {
		ids[i] = mt.ID
	}
	return ids, nil
}

func (m *MemoryStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.spaces[namespace], id)
	}
	return nil
}

// Len reports how many vectors a namespace holds.
func (m *MemoryStore) Len(namespace string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.spaces[namespace])
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
