package cli

import (
	"context"

	"github.com/devrev/designer/internal/config"
	"github.com/devrev/designer/internal/errors"
	"github.com/devrev/designer/internal/metrics"
	"github.com/devrev/designer/internal/service"
	"github.com/devrev/designer/internal/store"
	"go.uber.org/zap"
)

// sources opens the configured trace and dataset. The returned close function
// is never nil.
func (a *app) sources(ctx context.Context) (store.SessionSource, store.DocumentSampler, func(), error) {
	src := a.cfg.Source
	switch src.Kind {
	case config.SourceFile:
		return &store.FileSessionSource{Path: src.SessionsFile},
			&store.FileDocumentSampler{Dir: src.DatasetDir},
			func() {}, nil

	case config.SourceMongo:
		client, err := store.Connect(ctx, src.Mongo.URI)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				a.logger.Warn("Failed to disconnect from mongo", zap.Error(err))
			}
		}
		return &store.MongoSessionSource{
				Client:     client,
				Database:   src.Mongo.WorkloadDatabase,
				Collection: src.Mongo.SessionsCollection,
			},
			&store.MongoDocumentSampler{Client: client, Database: src.Mongo.DatasetDatabase},
			closeFn, nil

	default:
		return nil, nil, nil, errors.InvalidConfiguration("source.kind",
			"the command line can read file or mongo sources only")
	}
}

// snapshot loads the sources and builds an evaluation snapshot against the
// configured resources
func (a *app) snapshot(ctx context.Context, m *metrics.Metrics) (*service.Snapshot, error) {
	if a.cfg.Source.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Source.Timeout)
		defer cancel()
	}

	sessions, sampler, closeFn, err := a.sources(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	builder := service.NewSnapshotBuilder(&service.SnapshotBuilderConfig{
		Stats:        a.cfg.Stats.Options(),
		Parallelism:  a.cfg.Stats.Parallelism,
		VirtualNodes: a.cfg.CostModel.VirtualNodes,
	}, sessions, sampler, m, a.logger)
	return builder.Build(ctx, a.cfg.CostModel.ResourceConfig())
}
