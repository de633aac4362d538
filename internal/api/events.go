/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/slotcast/internal/events"
	"github.com/friendsincode/slotcast/internal/telemetry"
)

const eventsPingInterval = 15 * time.Second

func parseEventTypes(raw string) map[events.EventType]struct{} {
	out := make(map[events.EventType]struct{})
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out[events.EventType(part)] = struct{}{}
	}
	if len(out) == 0 {
		out[events.EventSlotChanged] = struct{}{}
	}
	return out
}

// handleEvents streams bus events over a WebSocket. ?types= selects event
// types, defaulting to slot changes.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if a.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "events_disabled")
		return
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.WebsocketClients.Inc()
	defer telemetry.WebsocketClients.Dec()

	wanted := parseEventTypes(r.URL.Query().Get("types"))
	sub := a.bus.Subscribe(events.EventAny)
	defer a.bus.Unsubscribe(events.EventAny, sub)

	// Clients only listen; CloseRead ends ctx when they disconnect.
	ctx := conn.CloseRead(r.Context())

	if err := a.writeEvent(ctx, conn, "subscribed", events.Payload{}); err != nil {
		return
	}

	ticker := time.NewTicker(eventsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case payload, ok := <-sub:
			if !ok {
				conn.Close(ws.StatusGoingAway, "bus closed")
				return
			}
			name, _ := payload["type"].(string)
			eventType := events.EventType(name)
			if _, want := wanted[eventType]; !want {
				continue
			}
			if err := a.writeEvent(ctx, conn, eventType, payload); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

func (a *API) writeEvent(ctx context.Context, conn *ws.Conn, eventType events.EventType, payload events.Payload) error {
	data, err := json.Marshal(map[string]any{
		"type":    eventType,
		"payload": payload,
	})
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, data)
}
