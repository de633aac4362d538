/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes slot resolution over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/slotcast/internal/auth"
	"github.com/friendsincode/slotcast/internal/clock"
	"github.com/friendsincode/slotcast/internal/events"
	"github.com/friendsincode/slotcast/internal/models"
	"github.com/friendsincode/slotcast/internal/resolver"
	"github.com/friendsincode/slotcast/internal/scheduler/state"
)

// Resolver is the resolver type served by the API.
type Resolver = resolver.Resolver[models.Resource]

// API exposes HTTP handlers.
type API struct {
	resolver   *Resolver
	normalizer clock.Normalizer
	history    *state.Store
	bus        *events.Bus
	jwtSecret  []byte
	clock      clock.Clock
	logger     zerolog.Logger
}

// New creates the API router wrapper. history and bus may be nil, which
// disables the history and events endpoints.
func New(r *Resolver, n clock.Normalizer, history *state.Store, bus *events.Bus, jwtSecret []byte, logger zerolog.Logger) *API {
	return &API{
		resolver:   r,
		normalizer: n,
		history:    history,
		bus:        bus,
		jwtSecret:  jwtSecret,
		clock:      clock.System,
		logger:     logger.With().Str("component", "api").Logger(),
	}
}

// SetClock overrides the clock used for export timestamps.
func (a *API) SetClock(c clock.Clock) {
	a.clock = c
}

// Routes registers the API under /api/v1.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/slots", a.handleSlots)
		r.Get("/slots/{slot}", a.handleSlot)
		r.Get("/list", a.handleList)
		r.Get("/next-update", a.handleNextUpdate)
		r.Get("/schedule.ics", a.handleScheduleICal)
		r.Get("/events", a.handleEvents)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret, auth.ScopeDiagnostics))
			pr.Get("/cache", a.handleCache)
			pr.Get("/history", a.handleHistory)
		})
	})
}

// instant reads ?at=. Without it the resolver's own clock applies.
func (a *API) instant(r *http.Request) (time.Time, error) {
	return clock.ParseInstant(r.URL.Query().Get("at"))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
