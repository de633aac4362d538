/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/slotcast/internal/auth"
	"github.com/friendsincode/slotcast/internal/clock"
	"github.com/friendsincode/slotcast/internal/models"
	"github.com/friendsincode/slotcast/internal/priority"
	"github.com/friendsincode/slotcast/internal/resolver"
	"github.com/friendsincode/slotcast/internal/schedule"
)

type pickResponse struct {
	Slot       string            `json:"slot"`
	ResourceID string            `json:"resource_id"`
	Found      bool              `json:"found"`
	Priority   priority.Priority `json:"priority"`
	Resource   *models.Resource  `json:"resource"`
}

func newPick(slot string, e resolver.ActiveEntry[models.Resource]) *pickResponse {
	p := &pickResponse{Slot: slot, ResourceID: e.ResourceID, Found: e.Found, Priority: e.Priority}
	if e.Found {
		res := e.Resource
		p.Resource = &res
	}
	return p
}

type slotResponse struct {
	Slot   string                                  `json:"slot"`
	Active []resolver.ActiveEntry[models.Resource] `json:"active"`
	Pick   *pickResponse                           `json:"pick"`
}

type bucketBounds struct {
	ValidAfter  time.Time `json:"valid_after"`
	ValidUntil  time.Time `json:"valid_until"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

func boundsOf(b resolver.Bucket[models.Resource]) bucketBounds {
	return bucketBounds{ValidAfter: b.ValidAfter, ValidUntil: b.ValidUntil, EvaluatedAt: b.EvaluatedAt}
}

func (a *API) handleSlots(w http.ResponseWriter, r *http.Request) {
	at, err := a.instant(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_at")
		return
	}

	bucket := a.resolver.SlotsAt(at)
	slots := make([]slotResponse, 0, len(bucket.Slots))
	for _, s := range bucket.Slots {
		resp := slotResponse{Slot: s.Slot, Active: s.Entries}
		if best, ok := bucket.Pick(s.Slot); ok {
			resp.Pick = newPick(s.Slot, best)
		}
		slots = append(slots, resp)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bucket": boundsOf(bucket),
		"slots":  slots,
	})
}

func (a *API) handleSlot(w http.ResponseWriter, r *http.Request) {
	at, err := a.instant(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_at")
		return
	}

	slot := chi.URLParam(r, "slot")
	best, ok := a.resolver.PickAt(slot, at)
	if !ok {
		writeError(w, http.StatusNotFound, "slot_inactive")
		return
	}
	if !best.Found {
		writeError(w, http.StatusNotFound, "resource_missing")
		return
	}

	writeJSON(w, http.StatusOK, newPick(slot, best))
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	at, err := a.instant(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_at")
		return
	}

	// A missing resource keeps its position as null.
	list := a.resolver.ListAt(at)
	out := make([]*models.Resource, len(list))
	for i := range list {
		if list[i].ID != "" {
			out[i] = &list[i]
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"resources":   out,
		"next_update": a.resolver.NextUpdateAt(at),
	})
}

func (a *API) handleNextUpdate(w http.ResponseWriter, r *http.Request) {
	at, err := a.instant(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_at")
		return
	}

	next := a.resolver.NextUpdateAt(at)
	writeJSON(w, http.StatusOK, map[string]any{
		"next_update":    next,
		"next_update_ms": next.UnixMilli(),
	})
}

func (a *API) handleScheduleICal(w http.ResponseWriter, r *http.Request) {
	weekOf, err := clock.ParseInstant(r.URL.Query().Get("week"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_week")
		return
	}
	now := a.clock.Now()
	if weekOf.IsZero() {
		weekOf = now
	}

	export := schedule.ExportICal(a.resolver.Definition(), weekOf, a.normalizer, now)
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+export.Filename+"\"")
	w.Header().Set("X-Event-Count", strconv.Itoa(export.Events))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Data)
}

func (a *API) handleCache(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug().Str("subject", auth.DiagnosticsSubject(r.Context())).Msg("cache snapshot requested")
	bucket := a.resolver.Cache()
	writeJSON(w, http.StatusOK, map[string]any{
		"digest": a.resolver.Digest(),
		"empty":  bucket.ValidUntil.IsZero(),
		"bucket": bucket,
	})
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history_disabled")
		return
	}

	a.logger.Debug().Str("subject", auth.DiagnosticsSubject(r.Context())).Msg("transition history requested")
	if slot := r.URL.Query().Get("slot"); slot != "" {
		latest, ok := a.history.Latest(slot)
		if !ok {
			writeError(w, http.StatusNotFound, "no_transitions")
			return
		}
		writeJSON(w, http.StatusOK, latest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"transitions": a.history.Recent()})
}
