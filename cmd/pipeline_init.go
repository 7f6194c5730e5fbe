package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enrich/internal/discovery"
	"github.com/sells-group/catalog-enrich/internal/oracle"
	"github.com/sells-group/catalog-enrich/internal/pipeline"
	"github.com/sells-group/catalog-enrich/internal/scrape"
	"github.com/sells-group/catalog-enrich/internal/store"
	"github.com/sells-group/catalog-enrich/internal/vision"
	anthropicpkg "github.com/sells-group/catalog-enrich/pkg/anthropic"
	"github.com/sells-group/catalog-enrich/pkg/jina"
)

// pipelineEnv holds the store and the pipeline built on it for the
// run/batch/pending/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initPipeline sets up the store, the oracle and fetch clients, and builds
// the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate("enrich"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	claude := oracle.NewClaude(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic)

	jinaOpts := []jina.Option{jina.WithBaseURL(cfg.Jina.BaseURL)}
	if cfg.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
	}
	jinaClient := jina.NewClient(cfg.Jina.Key, jinaOpts...)

	fetchTimeout := time.Duration(cfg.Discovery.FetchTimeoutSecs) * time.Second
	fetcher := scrape.NewChain(
		scrape.NewJinaScraper(jinaClient),
		scrape.NewLocalScraper(fetchTimeout),
	)

	trust, err := discovery.LoadTrustTable(cfg.Discovery.TrustFile, cfg.Discovery.ManufacturerDomains)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load trust table")
	}

	p := pipeline.New(
		st,
		vision.NewClassifier(claude, st),
		discovery.New(jinaClient, fetcher, trust, cfg.Discovery),
		claude,
		cfg.Pipeline,
		cfg.Batch,
	)

	zap.L().Info("pipeline initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("model", cfg.Anthropic.Model),
		zap.Int("manufacturer_domains", len(cfg.Discovery.ManufacturerDomains)),
	)

	return &pipelineEnv{Store: st, Pipeline: p}, nil
}
