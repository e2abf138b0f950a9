package cli

import (
	"context"

	"go.uber.org/zap"

	"github.com/lazypower/fungimap/internal/config"
	"github.com/lazypower/fungimap/internal/entity"
	"github.com/lazypower/fungimap/internal/observability"
	"github.com/lazypower/fungimap/internal/relevance"
	"github.com/lazypower/fungimap/internal/search"
	"github.com/lazypower/fungimap/internal/session"
	"github.com/lazypower/fungimap/internal/store"
	"github.com/lazypower/fungimap/internal/view"
)

// app is the wired session store, scorer and view over one catalog.
type app struct {
	store  *session.Store
	scorer *relevance.Scorer
	view   *view.BubbleView
}

// newApp restores the saved session from db and mounts a view on it. When
// record is set every tracked action is also appended to the audit log.
func newApp(ctx context.Context, cfg config.Config, catalog []entity.Entity, db *store.DB, record bool, logger *zap.Logger, metrics *observability.Collector) *app {
	persist := store.NewPersistence(db, store.DefaultSlot)
	st := session.New(session.Options{
		MaxActions:  cfg.Session.MaxActions,
		MaxSearches: cfg.Session.MaxSearches,
		MinHoverMs:  int64(cfg.Session.MinHoverMs),
	}, persist, logger, metrics)
	st.Load(ctx)

	if record {
		st.OnChange(persist.Recorder(st.SessionID, func(err error) {
			logger.Warn("record action failed", zap.Error(err))
			metrics.ObservePersistenceError("record_action")
		}))
	}

	var searcher search.Collaborator
	if cfg.Search.URL != "" {
		searcher = search.NewHTTPClient(cfg.Search.URL, cfg.SearchTimeout(), search.DefaultBreakerConfig(), logger, metrics)
	}

	scorer := relevance.NewScorer(relevance.OptionsFromConfig(cfg.Relevance), st, logger, metrics)
	v := view.New(catalog, st, scorer, searcher, view.OptionsFromConfig(cfg), logger, metrics)
	v.Refresh(ctx, false)
	return &app{store: st, scorer: scorer, view: v}
}

// close detaches the view and saves the session.
func (a *app) close(ctx context.Context) error {
	a.view.Close()
	return a.store.Close(ctx)
}
