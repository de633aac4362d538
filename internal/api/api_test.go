package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/slotcast/internal/auth"
	"github.com/friendsincode/slotcast/internal/clock"
	"github.com/friendsincode/slotcast/internal/events"
	"github.com/friendsincode/slotcast/internal/models"
	"github.com/friendsincode/slotcast/internal/priority"
	"github.com/friendsincode/slotcast/internal/resolver"
	"github.com/friendsincode/slotcast/internal/schedule"
	"github.com/friendsincode/slotcast/internal/scheduler/state"
)

var testSecret = []byte("test-secret")

// monday10 is Monday 2024-03-04 10:00 in UTC+9.
var monday10 = time.Date(2024, 3, 4, 10, 0, 0, 0, clock.ZoneFor(clock.DefaultOffset))

type fixture struct {
	router  chi.Router
	bus     *events.Bus
	history *state.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	start, end := monday10.Unix(), monday10.Add(time.Hour).Unix()
	def := &schedule.Definition{}
	def.Add(schedule.Any, schedule.Any, "banner",
		schedule.Entry{ResourceID: "A", Priority: priority.Of(1)},
		schedule.Entry{ResourceID: "B", Priority: priority.Of(2), Start: &start, End: &end},
	)
	def.Add(schedule.Any, schedule.Any, "sidebar", schedule.Entry{ResourceID: "ghost"})

	resources := map[string]models.Resource{
		"A": {ID: "A", Kind: models.ResourceKindBanner, Title: "Alpha"},
		"B": {ID: "B", Kind: models.ResourceKindBanner, Title: "Bravo"},
	}
	r := resolver.New(resources, def, resolver.WithClock(clock.Fixed(monday10.Add(10*time.Minute))))

	bus := events.NewBus()
	history := state.NewStore()
	a := New(r, clock.DefaultNormalizer(), history, bus, testSecret, zerolog.Nop())
	a.SetClock(clock.Fixed(monday10))

	router := chi.NewRouter()
	a.Routes(router)
	return fixture{router: router, bus: bus, history: history}
}

func (f fixture) get(t *testing.T, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestHandleSlot(t *testing.T) {
	f := newFixture(t)
	laterMs := strconv.FormatInt(monday10.Add(2*time.Hour).UnixMilli(), 10)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantKey    string
		wantValue  string
	}{
		{"clock instant", "/api/v1/slots/banner", http.StatusOK, "resource_id", "B"},
		{"unix ms", "/api/v1/slots/banner?at=" + laterMs, http.StatusOK, "resource_id", "A"},
		{"rfc3339", "/api/v1/slots/banner?at=2024-03-04T10:30:00%2B09:00", http.StatusOK, "resource_id", "B"},
		{"unknown slot", "/api/v1/slots/footer", http.StatusNotFound, "error", "slot_inactive"},
		{"missing resource", "/api/v1/slots/sidebar", http.StatusNotFound, "error", "resource_missing"},
		{"bad at", "/api/v1/slots/banner?at=yesterday", http.StatusBadRequest, "error", "invalid_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.get(t, tt.path, "")
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d body=%s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if got := decode(t, rr)[tt.wantKey]; got != tt.wantValue {
				t.Fatalf("%s = %v, want %s", tt.wantKey, got, tt.wantValue)
			}
		})
	}
}

func TestHandleSlots(t *testing.T) {
	f := newFixture(t)
	rr := f.get(t, "/api/v1/slots", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}

	var body struct {
		Bucket bucketBounds `json:"bucket"`
		Slots  []struct {
			Slot   string           `json:"slot"`
			Active []map[string]any `json:"active"`
			Pick   *struct {
				ResourceID string `json:"resource_id"`
				Found      bool   `json:"found"`
			} `json:"pick"`
		} `json:"slots"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Bucket.ValidAfter.Equal(monday10) || !body.Bucket.ValidUntil.Equal(monday10.Add(time.Hour)) {
		t.Fatalf("bucket = %+v", body.Bucket)
	}
	if len(body.Slots) != 2 || body.Slots[0].Slot != "banner" || body.Slots[1].Slot != "sidebar" {
		t.Fatalf("slots = %+v", body.Slots)
	}
	if len(body.Slots[0].Active) != 2 || body.Slots[0].Pick.ResourceID != "B" {
		t.Fatalf("banner = %+v", body.Slots[0])
	}
	if body.Slots[1].Pick == nil || body.Slots[1].Pick.Found {
		t.Fatalf("sidebar pick should report a missing resource: %+v", body.Slots[1].Pick)
	}
}

func TestHandleListKeepsMissingPositions(t *testing.T) {
	f := newFixture(t)
	rr := f.get(t, "/api/v1/list", "")

	var body struct {
		Resources  []*models.Resource `json:"resources"`
		NextUpdate time.Time          `json:"next_update"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Resources) != 2 || body.Resources[0].ID != "B" || body.Resources[1] != nil {
		t.Fatalf("resources = %+v", body.Resources)
	}
	if !body.NextUpdate.Equal(monday10.Add(time.Hour)) {
		t.Fatalf("next_update = %v", body.NextUpdate)
	}
}

func TestHandleNextUpdate(t *testing.T) {
	f := newFixture(t)
	rr := f.get(t, "/api/v1/next-update", "")
	body := decode(t, rr)
	if got := int64(body["next_update_ms"].(float64)); got != monday10.Add(time.Hour).UnixMilli() {
		t.Fatalf("next_update_ms = %d", got)
	}
}

func TestHandleScheduleICal(t *testing.T) {
	f := newFixture(t)
	rr := f.get(t, "/api/v1/schedule.ics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.HasPrefix(rr.Body.String(), "BEGIN:VCALENDAR") {
		t.Fatalf("body = %q", rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "2024-W10") {
		t.Fatalf("disposition = %q", rr.Header().Get("Content-Disposition"))
	}
}

func TestDiagnosticsRequireToken(t *testing.T) {
	f := newFixture(t)
	token, err := auth.Issue(testSecret, "ops", []string{auth.ScopeDiagnostics}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if rr := f.get(t, "/api/v1/cache", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("cache without token = %d", rr.Code)
	}

	rr := f.get(t, "/api/v1/cache", token)
	if rr.Code != http.StatusOK || decode(t, rr)["empty"] != true {
		t.Fatalf("cache before lookup = %d %s", rr.Code, rr.Body.String())
	}

	f.get(t, "/api/v1/slots/banner", "")
	if body := decode(t, f.get(t, "/api/v1/cache", token)); body["empty"] != false {
		t.Fatalf("cache after lookup = %v", body)
	}

	f.history.Add(state.Transition{Slot: "banner", From: "A", To: "B", At: monday10})
	rr = f.get(t, "/api/v1/history?slot=banner", token)
	if rr.Code != http.StatusOK || decode(t, rr)["to"] != "B" {
		t.Fatalf("history = %d %s", rr.Code, rr.Body.String())
	}
	if rr := f.get(t, "/api/v1/history?slot=footer", token); rr.Code != http.StatusNotFound {
		t.Fatalf("history for unknown slot = %d", rr.Code)
	}
}

func TestHandleEventsStreamsSlotChanges(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	read := func() map[string]any {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return msg
	}

	if msg := read(); msg["type"] != "subscribed" {
		t.Fatalf("first message = %v", msg)
	}

	f.bus.Publish(events.EventBucketRebuilt, events.Payload{"digest": "x"})
	f.bus.Publish(events.EventSlotChanged, events.Payload{"slot": "banner", "resource_id": "B"})

	msg := read()
	if msg["type"] != string(events.EventSlotChanged) {
		t.Fatalf("expected only slot changes, got %v", msg)
	}
	if payload := msg["payload"].(map[string]any); payload["slot"] != "banner" {
		t.Fatalf("payload = %v", payload)
	}
}
