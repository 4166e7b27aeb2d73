package store

import (
	"context"

	"github.com/devrev/designer/internal/model"
	"go.mongodb.org/mongo-driver/bson"
)

// SessionSource provides the captured workload trace
type SessionSource interface {
	Sessions(ctx context.Context) ([]model.Session, error)
}

// DocumentSampler streams the stored documents of each collection of the dataset
type DocumentSampler interface {
	// Collections returns the dataset's collection names in sorted order.
	Collections(ctx context.Context) ([]string, error)
	// Documents calls visit for every document of collection, stopping at the
	// first error visit returns.
	Documents(ctx context.Context, collection string, visit func(bson.D) error) error
}

// MemorySource serves a trace and dataset held in memory
type MemorySource struct {
	Trace   []model.Session
	Dataset map[string][]bson.D
}

// Sessions implements SessionSource
func (m *MemorySource) Sessions(ctx context.Context) ([]model.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.Trace, nil
}

// Collections implements DocumentSampler
func (m *MemorySource) Collections(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return sortedNames(m.Dataset), nil
}

// Documents implements DocumentSampler
func (m *MemorySource) Documents(ctx context.Context, collection string, visit func(bson.D) error) error {
	docs, ok := m.Dataset[collection]
	if !ok {
		return errUnknownCollection(collection)
	}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := visit(doc); err != nil {
			return err
		}
	}
	return nil
}
