package fingerprint

import (
	"context"
	"fmt"

	"github.com/WessleyAI/congress-qa/engine/domain"
	"github.com/WessleyAI/congress-qa/pkg/fn"
)

// Deferred adapts a lazily built index to Index. Every call builds the index
// on first use and fails with the build error while it is unavailable.
func Deferred(l *fn.Lazy[Index]) Index { return deferred{l} }

type deferred struct{ l *fn.Lazy[Index] }

func (d deferred) get(ctx context.Context) (Index, error) {
	idx, err := d.l.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: index unavailable: %w", err)
	}
	return idx, nil
}

func (d deferred) Upsert(ctx context.Context, fp domain.SemanticFingerprint) error {
	idx, err := d.get(ctx)
	if err != nil {
		return err
	}
	return idx.Upsert(ctx, fp)
}

func (d deferred) Candidates(ctx context.Context, probe domain.SemanticFingerprint, limit int) ([]domain.SemanticFingerprint, error) {
	idx, err := d.get(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Candidates(ctx, probe, limit)
}

func (d deferred) Len(ctx context.Context) (int, error) {
	idx, err := d.get(ctx)
	if err != nil {
		return 0, err
	}
	return idx.Len(ctx)
}
