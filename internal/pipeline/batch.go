package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enrich/internal/config"
	"github.com/sells-group/catalog-enrich/internal/model"
)

// ProgressFunc is called after each item of a batch completes.
type ProgressFunc func(done, total int, out model.EnrichmentOutput)

// RunBatch enriches items one at a time with a fixed pause between them so
// the oracle and fetch collaborators stay under their rate limits. A
// cancelled context stops the batch; finished items are still returned.
func (p *Pipeline) RunBatch(ctx context.Context, itemIDs []string, overrides *config.PipelineOverrides, onProgress ProgressFunc) map[string]model.EnrichmentOutput {
	results := make(map[string]model.EnrichmentOutput, len(itemIDs))
	delay := p.batch.InterItemDelay()

	for i, id := range itemIDs {
		if i > 0 && delay > 0 {
			if err := p.sleep(ctx, delay); err != nil {
				zap.L().Warn("pipeline: batch interrupted",
					zap.Int("completed", i), zap.Int("total", len(itemIDs)), zap.Error(err))
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		out := p.Run(ctx, id, false, overrides)
		results[id] = out
		if onProgress != nil {
			onProgress(i+1, len(itemIDs), out)
		}
	}

	succeeded := 0
	for _, out := range results {
		if out.Success {
			succeeded++
		}
	}
	zap.L().Info("pipeline: batch complete",
		zap.Int("total", len(itemIDs)),
		zap.Int("ran", len(results)),
		zap.Int("succeeded", succeeded),
	)
	return results
}

// RunForPendingItems enriches items whose description is missing or short,
// or whose enrichment is still pending.
func (p *Pipeline) RunForPendingItems(ctx context.Context, overrides *config.PipelineOverrides, onProgress ProgressFunc) (map[string]model.EnrichmentOutput, error) {
	items, err := p.store.ListPendingItems(ctx, p.batch.MinDescriptionChars, p.batch.PendingLimit)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list pending items")
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	zap.L().Info("pipeline: pending items selected", zap.Int("count", len(ids)))
	return p.RunBatch(ctx, ids, overrides, onProgress), nil
}
