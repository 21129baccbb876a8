// Package repo provides a generic keyed node repository over Neo4j.
package repo

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no node has the requested id.
var ErrNotFound = errors.New("repo: not found")

// Repository is a generic keyed store.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Save(ctx context.Context, entity T) error
	Delete(ctx context.Context, id ID) error
	Count(ctx context.Context) (int, error)
}

// ListOpts controls pagination for List.
type ListOpts struct {
	Offset int
	Limit  int
}
