package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/econcal/internal/adapter"
	"github.com/rickgao/econcal/internal/batcher"
	"github.com/rickgao/econcal/internal/countdown"
	"github.com/rickgao/econcal/internal/dayboundary"
	"github.com/rickgao/econcal/internal/instant"
	"github.com/rickgao/econcal/internal/model"
	"github.com/rickgao/econcal/internal/router"
	"github.com/rickgao/econcal/internal/surface"
)

type surfaceSummary struct {
	Name        string               `json:"name"`
	Timezone    string               `json:"timezone"`
	NowMs       int64                `json:"now_ms"`
	Events      int                  `json:"events"`
	Now         []string             `json:"now"`
	Next        *surface.NextSummary `json:"next,omitempty"`
	LastRefresh *time.Time           `json:"last_refresh,omitempty"`
	LastError   string               `json:"last_error,omitempty"`
}

// GET /api/surfaces
func (s *Server) handleSurfaces(w http.ResponseWriter, _ *http.Request) {
	out := make([]surfaceSummary, 0, len(s.surfaces))
	for _, src := range s.sortedSurfaces() {
		snap := src.Snapshot()
		out = append(out, surfaceSummary{
			Name:        src.Name(),
			Timezone:    snap.Timezone,
			NowMs:       snap.NowMs,
			Events:      len(snap.Rows),
			Now:         snap.Now,
			Next:        snap.Next,
			LastRefresh: snap.LastRefresh,
			LastError:   snap.LastError,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/surfaces/{name}
func (s *Server) handleSurface(w http.ResponseWriter, r *http.Request) {
	src, ok := s.surfaces[strings.ToLower(r.PathValue("name"))]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown surface")
		return
	}
	writeJSON(w, http.StatusOK, src.Snapshot())
}

type classifyRequest struct {
	Now       json.RawMessage `json:"now"`
	Timezone  string          `json:"timezone"`
	NowWindow string          `json:"now_window"`
	Events    json.RawMessage `json:"events"`
}

// POST /api/classify
//
// Body: {"now": <instant, optional>, "timezone": "...", "now_window": "10m",
// "events": [...]}. Events take any shape the adapter accepts.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	var req classifyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	events := []model.Event{}
	if len(req.Events) > 0 && string(req.Events) != "null" {
		events, err = adapter.DecodeEvents(req.Events)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	now := s.now().UnixMilli()
	if len(req.Now) > 0 && string(req.Now) != "null" {
		v, ok := rawInstant(req.Now)
		if !ok {
			writeError(w, http.StatusBadRequest, "now is not a valid instant")
			return
		}
		now = v
	}

	window := s.cfg.NowWindow
	if req.NowWindow != "" {
		d, err := time.ParseDuration(req.NowWindow)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "now_window must be a positive duration")
			return
		}
		window = d
	}

	loc := dayboundary.ResolveLocation(req.Timezone, s.logger)
	writeJSON(w, http.StatusOK, surface.BuildSnapshot("adhoc", events, now, window, loc))
}

type countdownResponse struct {
	TargetMs  int64  `json:"target_ms"`
	NowMs     int64  `json:"now_ms"`
	DeltaMs   int64  `json:"delta_ms"`
	Countdown string `json:"countdown"`
	Relative  string `json:"relative"`
}

// GET /api/countdown?target=...&now=...
func (s *Server) handleCountdown(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target, ok := paramInstant(q.Get("target"))
	if !ok {
		writeError(w, http.StatusBadRequest, "target is required and must be an instant")
		return
	}
	now := s.now().UnixMilli()
	if raw := q.Get("now"); raw != "" {
		if now, ok = paramInstant(raw); !ok {
			writeError(w, http.StatusBadRequest, "now is not a valid instant")
			return
		}
	}

	delta := target - now
	writeJSON(w, http.StatusOK, countdownResponse{
		TargetMs:  target,
		NowMs:     now,
		DeltaMs:   delta,
		Countdown: countdown.Format(delta),
		Relative:  countdown.Relative(delta),
	})
}

// GET /api/events?start=...&end=...&impact=high,medium&currency=USD&source=rest
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := batcher.Request{
		Start: paramValue(q.Get("start")),
		End:   paramValue(q.Get("end")),
		Filters: model.Filters{
			Currencies: splitList(q.Get("currency")),
			Sources:    splitList(q.Get("source")),
		},
	}
	for _, v := range splitList(q.Get("impact")) {
		imp := model.ParseImpact(v)
		if imp == model.ImpactNone {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown impact %q", v))
			return
		}
		req.Filters.Impacts = append(req.Filters.Impacts, imp)
	}

	events, err := s.querier.Query(r.Context(), req)
	switch {
	case errors.Is(err, batcher.ErrInvalidRange), errors.Is(err, batcher.ErrNoValidRange):
		writeError(w, http.StatusBadRequest, "start and end must be instants with start <= end")
		return
	case errors.Is(err, router.ErrUnknownSource):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("range query failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, adapter.EncodeAll(events))
}

// paramValue turns a query value into something instant.Resolve accepts.
// All-digit values are epoch milliseconds.
func paramValue(raw string) any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ms
	}
	return raw
}

func paramInstant(raw string) (int64, bool) {
	return instant.Resolve(paramValue(raw))
}

// rawInstant reads a JSON number (epoch ms) or string instant.
func rawInstant(raw json.RawMessage) (int64, bool) {
	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil {
		return ms, true
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return paramInstant(str)
	}
	return 0, false
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
