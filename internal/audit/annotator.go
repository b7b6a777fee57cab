package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/opero/lifeline/internal/observability"
	"github.com/opero/lifeline/model"
)

// Annotator decorates history records with actor display names. Lookup
// failures fall back to the raw principal ID; history reads never fail
// because a directory is down.
type Annotator struct {
	directory Directory
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewAnnotator creates an annotator backed by the given directory.
func NewAnnotator(directory Directory, logger *zap.Logger, metrics *observability.Metrics) *Annotator {
	return &Annotator{directory: directory, logger: logger, metrics: metrics}
}

// Annotate returns a copy of the trail with actor IDs replaced by display
// names where the directory knows them. Order and all other fields are
// preserved.
func (a *Annotator) Annotate(ctx context.Context, trail []model.HistoryRecord) []model.HistoryRecord {
	if a == nil || a.directory == nil || len(trail) == 0 {
		return trail
	}

	// Trails repeat actors; resolve each principal once.
	resolved := make(map[string]string)
	out := make([]model.HistoryRecord, len(trail))
	for i, rec := range trail {
		out[i] = rec
		if rec.Actor == "" {
			continue
		}
		name, seen := resolved[rec.Actor]
		if !seen {
			var err error
			name, err = a.directory.DisplayName(ctx, rec.Actor)
			if err != nil {
				a.logger.Debug("actor lookup failed, keeping raw ID",
					zap.String("actor", rec.Actor),
					zap.Error(err),
				)
				if a.metrics != nil {
					a.metrics.ActorLookupFailures.Inc()
				}
				name = rec.Actor
			}
			resolved[rec.Actor] = name
		}
		out[i].Actor = name
	}
	return out
}
