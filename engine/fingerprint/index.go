package fingerprint

import (
	"context"
	"sort"
	"sync"

	"github.com/WessleyAI/congress-qa/engine/domain"
)

// Index stores fingerprints and finds candidates that share terms with a
// probe fingerprint.
type Index interface {
	Upsert(ctx context.Context, fp domain.SemanticFingerprint) error
	// Candidates returns up to limit fingerprints sharing at least one term
	// with probe, most shared terms first.
	Candidates(ctx context.Context, probe domain.SemanticFingerprint, limit int) ([]domain.SemanticFingerprint, error)
	Len(ctx context.Context) (int, error)
}

// term is one set value tagged with its field name.
type term struct{ kind, value string }

func terms(fp domain.SemanticFingerprint) []term {
	var out []term
	for kind, vals := range fp.Terms() {
		for _, v := range vals {
			out = append(out, term{kind, v})
		}
	}
	return out
}

// MemoryIndex is an in-process Index with an inverted term map.
type MemoryIndex struct {
	mu      sync.RWMutex
	byKey   map[domain.Key]domain.SemanticFingerprint
	posting map[term]map[domain.Key]struct{}
}

// NewMemoryIndex creates an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		byKey:   make(map[domain.Key]domain.SemanticFingerprint),
		posting: make(map[term]map[domain.Key]struct{}),
	}
}

// Upsert replaces any fingerprint stored under fp.Key.
func (m *MemoryIndex) Upsert(_ context.Context, fp domain.SemanticFingerprint) error {
	fp = fp.Normalize()
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.byKey[fp.Key]; ok {
		for _, t := range terms(old) {
			delete(m.posting[t], fp.Key)
			if len(m.posting[t]) == 0 {
				delete(m.posting, t)
			}
		}
	}
	m.byKey[fp.Key] = fp
	for _, t := range terms(fp) {
		keys, ok := m.posting[t]
		if !ok {
			keys = make(map[domain.Key]struct{})
			m.posting[t] = keys
		}
		keys[fp.Key] = struct{}{}
	}
	return nil
}

// Candidates implements Index.
func (m *MemoryIndex) Candidates(ctx context.Context, probe domain.SemanticFingerprint, limit int) ([]domain.SemanticFingerprint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	probe = probe.Normalize()
	m.mu.RLock()
	defer m.mu.RUnlock()

	shared := make(map[domain.Key]int)
	for _, t := range terms(probe) {
		for k := range m.posting[t] {
			shared[k]++
		}
	}
	keys := make([]domain.Key, 0, len(shared))
	for k := range shared {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if shared[keys[i]] != shared[keys[j]] {
			return shared[keys[i]] > shared[keys[j]]
		}
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].ID < keys[j].ID
	})
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]domain.SemanticFingerprint, len(keys))
	for i, k := range keys {
		out[i] = m.byKey[k]
	}
	return out, nil
}

// Len implements Index.
func (m *MemoryIndex) Len(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byKey), nil
}

// Get returns the fingerprint stored under key.
func (m *MemoryIndex) Get(key domain.Key) (domain.SemanticFingerprint, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fp, ok := m.byKey[key]
	return fp, ok
}
