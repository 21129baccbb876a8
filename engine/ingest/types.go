package ingest

import (
	"fmt"
	"sync/atomic"

	"github.com/WessleyAI/congress-qa/engine/congress"
	"github.com/WessleyAI/congress-qa/engine/domain"
)

// Request selects what a reindex run covers.
type Request struct {
	// EntityTypes defaults to every entity type.
	EntityTypes []domain.EntityType `json:"entity_types,omitempty"`
	// Fingerprints also extracts and stores a semantic fingerprint per entity.
	Fingerprints bool `json:"fingerprints,omitempty"`
	PageSize     int  `json:"page_size,omitempty"`

	// Report, when set, receives a progress snapshot after every page.
	Report func(Progress) `json:"-"`
}

// normalize validates entity types and fills defaults.
func (r Request) normalize() (Request, error) {
	if len(r.EntityTypes) == 0 {
		r.EntityTypes = domain.EntityTypes
	}
	types := make([]domain.EntityType, 0, len(r.EntityTypes))
	for _, et := range r.EntityTypes {
		parsed, ok := domain.ParseEntityType(string(et))
		if !ok {
			return r, fmt.Errorf("ingest: entity type %q: %w", et, domain.ErrUnknownEntityType)
		}
		types = append(types, parsed)
	}
	r.EntityTypes = types
	if r.PageSize <= 0 {
		r.PageSize = DefaultPageSize
	}
	if r.PageSize > MaxPageSize {
		r.PageSize = MaxPageSize
	}
	return r, nil
}

// Progress counts entities handled by a run.
type Progress struct {
	Processed int64 `json:"processed"`
	Success   int64 `json:"success"`
	Failed    int64 `json:"failed"`
}

type counters struct {
	processed, success, failed atomic.Int64
}

func (c *counters) reset() {
	c.processed.Store(0)
	c.success.Store(0)
	c.failed.Store(0)
}

func (c *counters) add(success, failed int) {
	c.processed.Add(int64(success + failed))
	c.success.Add(int64(success))
	c.failed.Add(int64(failed))
}

func (c *counters) snapshot() Progress {
	return Progress{
		Processed: c.processed.Load(),
		Success:   c.success.Load(),
		Failed:    c.failed.Load(),
	}
}

// Page is one batch of source documents of a single entity type.
type Page struct {
	Type domain.EntityType
	Docs []congress.Document
}

// EmbeddedPage is a page with one vector slot per document; nil slots failed.
type EmbeddedPage struct {
	Page
	Vectors [][]float32
}

// PageResult marks which documents of a page were fully indexed.
type PageResult struct {
	Page
	OK []bool
}

func (p PageResult) counts() (success, failed int) {
	for _, ok := range p.OK {
		if ok {
			success++
		} else {
			failed++
		}
	}
	return success, failed
}
