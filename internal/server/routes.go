package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lazypower/fungimap/internal/physics"
	"github.com/lazypower/fungimap/internal/replay"
	"github.com/lazypower/fungimap/internal/search"
)

const (
	maxTicksPerRequest = 1000
	historyLimit       = 5
)

var validate = validator.New()

// decode reads a JSON body into v and validates its struct tags.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid json")
	}
	if err := validate.Struct(v); err != nil {
		return err
	}
	return nil
}

func truthy(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	var ev replay.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if ev.Type == "" {
		writeError(w, http.StatusBadRequest, "type required")
		return
	}

	store := s.view.Store()
	recorded := store.Track(ev.ActionType(), ev.Data())
	writeJSON(w, http.StatusOK, map[string]any{
		"recorded": recorded,
		"total":    store.TotalActions(),
	})
}

func (s *Server) handleNodeClick(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if _, ok := s.view.Entity(slug); !ok {
		writeError(w, http.StatusNotFound, "unknown entity: "+slug)
		return
	}
	recorded := s.view.OnNodeClick(slug)
	writeJSON(w, http.StatusOK, map[string]any{
		"recorded": recorded,
		"total":    s.view.Store().TotalActions(),
	})
}

func (s *Server) handleNodeHover(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if _, ok := s.view.Entity(slug); !ok {
		writeError(w, http.StatusNotFound, "unknown entity: "+slug)
		return
	}
	var req struct {
		Hovering  bool  `json:"hovering"`
		ElapsedMs int64 `json:"elapsed_ms" validate:"min=0"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recorded := s.view.OnNodeHoverChange(slug, req.Hovering, req.ElapsedMs)
	writeJSON(w, http.StatusOK, map[string]any{
		"recorded": recorded,
		"total":    s.view.Store().TotalActions(),
	})
}

func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string  `json:"id" validate:"required"`
		X  float64 `json:"x"`
		Y  float64 `json:"y"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var err error
	switch chi.URLParam(r, "phase") {
	case "down":
		err = s.view.PointerDown(req.ID, req.X, req.Y)
	case "move":
		err = s.view.PointerMove(req.ID, req.X, req.Y)
	case "up":
		err = s.view.PointerUp(req.ID)
	default:
		writeError(w, http.StatusNotFound, "unknown pointer phase")
		return
	}
	switch {
	case errors.Is(err, physics.ErrUnknownNode):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleRelevance(w http.ResponseWriter, r *http.Request) {
	scores := s.view.Breakdowns(truthy(r.URL.Query().Get("force")))
	cur := s.view.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":   cur.Mode,
		"query":  cur.Query,
		"scores": scores,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query" validate:"max=256"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ranked, err := s.view.Search(r.Context(), req.Query)
	switch {
	case errors.Is(err, search.ErrStale):
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, "search unavailable")
		return
	}
	cur := s.view.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   cur.Query,
		"mode":    cur.Mode,
		"results": ranked,
		"items":   cur.Items,
	})
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.view.Frame())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	u := s.view.Refresh(r.Context(), truthy(r.URL.Query().Get("force")))
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	n := 1
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = min(v, maxTicksPerRequest)
	}
	writeJSON(w, http.StatusOK, s.view.TickN(n))
}

func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Width  float64 `json:"width" validate:"gt=0"`
		Height float64 `json:"height" validate:"gt=0"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.view.Resize(req.Width, req.Height); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.view.Frame())
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	store := s.view.Store()
	st := store.State()

	body := map[string]any{
		"session_id":           st.SessionID,
		"started_at":           st.StartedAt,
		"total_actions":        st.TotalActions,
		"logged_actions":       len(st.Actions),
		"searches":             st.Searches,
		"aggregates":           store.Aggregates(),
		"perspective_usage":    store.PerspectiveUsage(),
		"current_perspectives": st.CurrentPerspectives,
		"display":              s.view.Current(),
	}
	if s.db != nil {
		s.addHistory(r.Context(), body)
	}
	writeJSON(w, http.StatusOK, body)
}

// addHistory attaches recent sessions and most-touched entities from the
// audit log. Failures only drop the history.
func (s *Server) addHistory(ctx context.Context, body map[string]any) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	sessions, err := s.db.GetRecentSessions(ctx, historyLimit)
	if err != nil {
		s.logger.Warn("recent sessions", zap.Error(err))
		return
	}
	recent := make([]map[string]any, 0, len(sessions))
	for _, sess := range sessions {
		recent = append(recent, map[string]any{
			"session_id":   sess.SessionID,
			"started_at":   sess.StartedAt,
			"status":       sess.Status,
			"action_count": sess.ActionCount,
		})
	}
	body["recent_sessions"] = recent

	top, err := s.db.TopSlugs(ctx, historyLimit)
	if err != nil {
		s.logger.Warn("top slugs", zap.Error(err))
		return
	}
	slugs := make([]map[string]any, 0, len(top))
	for _, t := range top {
		slugs = append(slugs, map[string]any{"slug": t.Slug, "count": t.Count})
	}
	body["top_entities"] = slugs
}
