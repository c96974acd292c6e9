package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/banshee-data/jab.report/internal/db"
	"github.com/banshee-data/jab.report/internal/history"
	"github.com/banshee-data/jab.report/internal/httputil"
)

func toHistoryItems(fb []db.Feedback) []history.Item {
	items := make([]history.Item, 0, len(fb))
	for _, f := range fb {
		items = append(items, history.Item{
			ID:                f.ID,
			SessionID:         f.SessionID,
			Date:              f.CreatedAt,
			Score:             f.Score,
			Velocity:          f.Velocity,
			Power:             f.Power,
			KnockoutPotential: f.KnockoutPotential,
			Completed:         f.Completed,
		})
	}
	return items
}

// historyQuery is what every analytics endpoint reads from the request.
type historyQuery struct {
	items  []history.Item
	period history.Period
	now    time.Time
}

// historyItems loads every feedback item along with the ?period= selector
// and the ?tz= adjusted clock.
func (s *Server) historyItems(w http.ResponseWriter, r *http.Request) (historyQuery, bool) {
	period, err := history.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return historyQuery{}, false
	}
	now, err := s.now(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return historyQuery{}, false
	}
	fb, err := s.store.ListFeedback(r.Context(), 0)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list feedback: %v", err))
		return historyQuery{}, false
	}
	return historyQuery{items: toHistoryItems(fb), period: period, now: now}, true
}

func (s *Server) showHistoryStats(w http.ResponseWriter, r *http.Request) {
	q, ok := s.historyItems(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, history.Summarise(q.items, q.period, q.now))
}

func (s *Server) showBadges(w http.ResponseWriter, r *http.Request) {
	q, ok := s.historyItems(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, history.Badges(q.items, q.now))
}

// listHistoryFeedback returns sorted feedback, grouped by recency when
// ?group=1 (or true) is given.
func (s *Server) listHistoryFeedback(w http.ResponseWriter, r *http.Request) {
	by, err := history.ParseSortBy(r.URL.Query().Get("sort"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	q, ok := s.historyItems(w, r)
	if !ok {
		return
	}
	sorted := history.Sort(q.items, by)
	switch r.URL.Query().Get("group") {
	case "1", "true":
		groups := history.GroupByRecency(sorted, q.now)
		if groups == nil {
			groups = []history.Group{}
		}
		httputil.WriteJSON(w, http.StatusOK, groups)
	default:
		if sorted == nil {
			sorted = []history.Item{}
		}
		httputil.WriteJSON(w, http.StatusOK, sorted)
	}
}

func (s *Server) scoreChart(w http.ResponseWriter, r *http.Request) {
	q, ok := s.historyItems(w, r)
	if !ok {
		return
	}
	html, err := history.RenderScoreChart(history.Filter(q.items, q.period, q.now), q.period)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}

func (s *Server) scoreChartPNG(w http.ResponseWriter, r *http.Request) {
	q, ok := s.historyItems(w, r)
	if !ok {
		return
	}
	png, err := history.RenderScorePNG(history.Filter(q.items, q.period, q.now), q.period)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}
