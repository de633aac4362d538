package resolver

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/friendsincode/slotcast/internal/clock"
	"github.com/friendsincode/slotcast/internal/events"
	"github.com/friendsincode/slotcast/internal/priority"
	"github.com/friendsincode/slotcast/internal/schedule"
)

var jst = clock.ZoneFor(clock.DefaultOffset)

// scenarioStart is Monday 2024-03-04 10:00 in UTC+9.
var scenarioStart = time.Date(2024, 3, 4, 10, 0, 0, 0, jst)

func int64p(v int64) *int64 { return &v }

func scenarioDefinition() *schedule.Definition {
	def := &schedule.Definition{}
	def.Add(schedule.Any, schedule.Any, "banner",
		schedule.Entry{ResourceID: "A", Priority: priority.Of(1)},
		schedule.Entry{
			ResourceID: "B",
			Priority:   priority.Of(2),
			Start:      int64p(scenarioStart.Unix()),
			End:        int64p(scenarioStart.Add(time.Hour).Unix()),
		},
	)
	return def
}

var scenarioResources = map[string]string{"A": "a-val", "B": "b-val", "C": "c-val"}

func TestEndToEndScenario(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		slot string
		want string
		ok   bool
	}{
		{"inside B window", scenarioStart.Add(10 * time.Minute), "banner", "b-val", true},
		{"at B start", scenarioStart, "banner", "b-val", true},
		{"after B window", scenarioStart.Add(2*time.Hour + 10*time.Minute), "banner", "a-val", true},
		{"day before", scenarioStart.Add(-24 * time.Hour), "banner", "a-val", true},
		{"unrelated slot", scenarioStart.Add(10 * time.Minute), "other", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(scenarioResources, scenarioDefinition())
			got, ok := r.GetAt(tt.slot, tt.at)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("GetAt(%q) = %q, %v; want %q, %v", tt.slot, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestListIncludesEveryPopulatedSlot(t *testing.T) {
	def := scenarioDefinition()
	def.Add(schedule.Any, schedule.Any, "sidebar", schedule.Entry{ResourceID: "C"})
	def.Add(schedule.Literal(7), schedule.Any, "sunday-only", schedule.Entry{ResourceID: "A"})

	r := New(scenarioResources, def)
	got := r.ListAt(scenarioStart.Add(5 * time.Minute))
	if want := []string{"b-val", "c-val"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ListAt() = %v, want %v", got, want)
	}
}

func TestCacheFreezesActivityWithinBucket(t *testing.T) {
	def := &schedule.Definition{}
	def.Add(schedule.Any, schedule.Any, "banner", schedule.Entry{
		ResourceID: "A",
		Start:      int64p(scenarioStart.Add(30 * time.Minute).Unix()),
	})

	r := New(scenarioResources, def)
	if _, ok := r.GetAt("banner", scenarioStart.Add(10*time.Minute)); ok {
		t.Fatal("entry should not be active before its start")
	}
	// Same bucket: the 10:10 evaluation is served even though A is live at 10:40.
	if _, ok := r.GetAt("banner", scenarioStart.Add(40*time.Minute)); ok {
		t.Fatal("lookup inside the same bucket should reuse the frozen evaluation")
	}
	if got := r.Cache().EvaluatedAt; !got.Equal(scenarioStart.Add(10 * time.Minute)) {
		t.Fatalf("EvaluatedAt = %s", got)
	}

	fresh := New(scenarioResources, def)
	if got, ok := fresh.GetAt("banner", scenarioStart.Add(40*time.Minute)); !ok || got != "a-val" {
		t.Fatalf("fresh resolver at 10:40 = %q, %v", got, ok)
	}
}

func TestBucketBounds(t *testing.T) {
	r := New(scenarioResources, scenarioDefinition())

	initial := r.Cache()
	if !initial.ValidAfter.IsZero() || !initial.ValidUntil.IsZero() || len(initial.Slots) != 0 {
		t.Fatalf("initial bucket should be empty, got %+v", initial)
	}

	at := scenarioStart.Add(17*time.Minute + 3*time.Second)
	b := r.SlotsAt(at)
	if !b.ValidAfter.Equal(scenarioStart) {
		t.Errorf("ValidAfter = %s, want %s", b.ValidAfter, scenarioStart)
	}
	if b.ValidUntil.Sub(b.ValidAfter) != time.Hour {
		t.Errorf("bucket width = %s", b.ValidUntil.Sub(b.ValidAfter))
	}
	if b.ValidAfter.UnixMilli()%time.Hour.Milliseconds() != 0 {
		t.Errorf("ValidAfter not hour aligned: %d", b.ValidAfter.UnixMilli())
	}

	entries, ok := b.Lookup("banner")
	if !ok || len(entries) != 2 {
		t.Fatalf("banner entries = %+v", entries)
	}
	if entries[0].ResourceID != "A" || entries[0].Resource != "a-val" || !entries[0].Found {
		t.Errorf("first entry = %+v", entries[0])
	}
}

func TestNextUpdateIsPure(t *testing.T) {
	r := New(scenarioResources, scenarioDefinition())

	instants := []time.Time{
		scenarioStart,
		scenarioStart.Add(time.Millisecond),
		scenarioStart.Add(59*time.Minute + 59*time.Second + 999*time.Millisecond),
		time.UnixMilli(0),
		time.UnixMilli(-1),
	}
	for _, at := range instants {
		next := r.NextUpdateAt(at)
		if !next.After(at) {
			t.Errorf("NextUpdateAt(%s) = %s, not after", at, next)
		}
		if next.UnixMilli()%time.Hour.Milliseconds() != 0 {
			t.Errorf("NextUpdateAt(%s) = %s, not aligned", at, next)
		}
		if next.Sub(at) > time.Hour {
			t.Errorf("NextUpdateAt(%s) = %s, more than an hour away", at, next)
		}
	}

	if !r.Cache().ValidUntil.IsZero() {
		t.Fatal("NextUpdateAt must not touch the cache")
	}
}

func TestZeroTimeUsesClock(t *testing.T) {
	now := scenarioStart.Add(10 * time.Minute)
	r := New(scenarioResources, scenarioDefinition(), WithClock(clock.Fixed(now)))

	if got, ok := r.Get("banner"); !ok || got != "b-val" {
		t.Fatalf("Get() = %q, %v", got, ok)
	}
	if got := r.List(); !reflect.DeepEqual(got, []string{"b-val"}) {
		t.Fatalf("List() = %v", got)
	}
	if got := r.NextUpdate(); !got.Equal(scenarioStart.Add(time.Hour)) {
		t.Fatalf("NextUpdate() = %s", got)
	}
	if b := r.Slots(); !b.Contains(now) {
		t.Fatalf("Slots() bucket does not contain now: %+v", b)
	}
}

func TestMissingResourceStillCompetes(t *testing.T) {
	def := &schedule.Definition{}
	def.Add(schedule.Any, schedule.Any, "banner",
		schedule.Entry{ResourceID: "A", Priority: priority.Of(1)},
		schedule.Entry{ResourceID: "ghost", Priority: priority.Of(5)},
	)
	r := New(scenarioResources, def)
	at := scenarioStart

	if _, ok := r.GetAt("banner", at); ok {
		t.Fatal("pick naming a missing resource should resolve to nothing")
	}
	best, ok := r.PickAt("banner", at)
	if !ok || best.ResourceID != "ghost" || best.Found {
		t.Fatalf("PickAt() = %+v, %v", best, ok)
	}
	if got := r.ListAt(at); !reflect.DeepEqual(got, []string{""}) {
		t.Fatalf("ListAt() = %q, want one zero value", got)
	}
}

func TestPriorityRulesThroughFacade(t *testing.T) {
	tests := []struct {
		name    string
		entries []schedule.Entry
		want    string
	}{
		{"higher wins", []schedule.Entry{{ResourceID: "A", Priority: priority.Of(1)}, {ResourceID: "B", Priority: priority.Of(2)}}, "b-val"},
		{"tie keeps earlier", []schedule.Entry{{ResourceID: "A", Priority: priority.Of(2)}, {ResourceID: "B", Priority: priority.Of(2)}}, "a-val"},
		{"zero beats none", []schedule.Entry{{ResourceID: "A"}, {ResourceID: "B", Priority: priority.Of(0)}}, "b-val"},
		{"none never displaces", []schedule.Entry{{ResourceID: "A", Priority: priority.Of(0)}, {ResourceID: "B"}}, "a-val"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := &schedule.Definition{}
			def.Add(schedule.Any, schedule.Any, "banner", tt.entries...)
			got, ok := New(scenarioResources, def).GetAt("banner", scenarioStart)
			if !ok || got != tt.want {
				t.Fatalf("GetAt() = %q, %v; want %q", got, ok, tt.want)
			}
		})
	}
}

func TestEmptySlotResolvesToNothing(t *testing.T) {
	def := &schedule.Definition{}
	def.Add(schedule.Literal(3), schedule.Literal(8), "banner", schedule.Entry{ResourceID: "A"})

	r := New(scenarioResources, def)
	if _, ok := r.GetAt("banner", scenarioStart); ok {
		t.Fatal("scheduled but inactive slot should resolve to nothing")
	}
	if _, ok := r.SlotsAt(scenarioStart).Lookup("banner"); !ok {
		t.Fatal("slot should still be present in the mapping")
	}
	if got := r.ListAt(scenarioStart); len(got) != 0 {
		t.Fatalf("ListAt() = %v, want empty", got)
	}
}

func TestRefreshRebuildsOnlyOnBoundary(t *testing.T) {
	var mu sync.Mutex
	now := scenarioStart.Add(5 * time.Minute)
	c := clock.Func(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})
	r := New(scenarioResources, scenarioDefinition(), WithClock(c))

	if _, rebuilt := r.Refresh(); !rebuilt {
		t.Fatal("first refresh should rebuild")
	}
	if _, rebuilt := r.Refresh(); rebuilt {
		t.Fatal("refresh inside the bucket should not rebuild")
	}

	mu.Lock()
	now = scenarioStart.Add(time.Hour)
	mu.Unlock()
	b, rebuilt := r.Refresh()
	if !rebuilt || !b.ValidAfter.Equal(scenarioStart.Add(time.Hour)) {
		t.Fatalf("refresh at boundary = %+v, %v", b, rebuilt)
	}
}

func TestConcurrentLookupsShareOneBucket(t *testing.T) {
	r := New(scenarioResources, scenarioDefinition())
	at := scenarioStart.Add(10 * time.Minute)

	var wg sync.WaitGroup
	results := make([]string, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = r.GetAt("banner", at.Add(time.Duration(i)*time.Second))
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		if got != "b-val" {
			t.Fatalf("result %d = %q", i, got)
		}
	}
}

type memoryStore struct {
	mu     sync.Mutex
	items  map[string]*schedule.Activity
	writes int
}

func (m *memoryStore) key(digest string, validAfter time.Time) string {
	return digest + ":" + validAfter.UTC().Format(time.RFC3339)
}

func (m *memoryStore) GetActivity(_ context.Context, digest string, validAfter time.Time) (*schedule.Activity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	act, ok := m.items[m.key(digest, validAfter)]
	return act, ok
}

func (m *memoryStore) SetActivity(_ context.Context, digest string, validAfter, _ time.Time, act *schedule.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[m.key(digest, validAfter)] = act
	m.writes++
	return nil
}

func TestSnapshotStoreSharesFirstEvaluation(t *testing.T) {
	def := &schedule.Definition{}
	def.Add(schedule.Any, schedule.Any, "banner", schedule.Entry{
		ResourceID: "A",
		Start:      int64p(scenarioStart.Add(30 * time.Minute).Unix()),
	})
	store := &memoryStore{items: make(map[string]*schedule.Activity)}

	first := New(scenarioResources, def, WithSnapshotStore(store, time.Second))
	if _, ok := first.GetAt("banner", scenarioStart.Add(10*time.Minute)); ok {
		t.Fatal("entry should be inactive at 10:10")
	}

	second := New(scenarioResources, def, WithSnapshotStore(store, time.Second))
	if _, ok := second.GetAt("banner", scenarioStart.Add(40*time.Minute)); ok {
		t.Fatal("second instance should reuse the shared 10:10 evaluation")
	}
	if store.writes != 1 {
		t.Fatalf("store writes = %d, want 1", store.writes)
	}
	if got := second.Cache().EvaluatedAt; !got.Equal(scenarioStart.Add(10 * time.Minute)) {
		t.Fatalf("EvaluatedAt = %s", got)
	}
}

func TestRebuildAnnouncesChanges(t *testing.T) {
	bus := events.NewBus()
	changes := bus.Subscribe(events.EventSlotChanged)
	rebuilt := bus.Subscribe(events.EventBucketRebuilt)

	r := New(scenarioResources, scenarioDefinition(), WithBus(bus))

	r.GetAt("banner", scenarioStart.Add(10*time.Minute))
	got := <-changes
	if got["slot"] != "banner" || got["resource_id"] != "B" || got["previous"] != "" {
		t.Fatalf("first change = %v", got)
	}
	if ev := <-rebuilt; ev["source"] != "evaluated" {
		t.Fatalf("rebuilt event = %v", ev)
	}

	r.GetAt("banner", scenarioStart.Add(time.Hour+10*time.Minute))
	got = <-changes
	if got["previous"] != "B" || got["resource_id"] != "A" {
		t.Fatalf("second change = %v", got)
	}
	<-rebuilt

	// Same pick in the next bucket: rebuilt only.
	r.GetAt("banner", scenarioStart.Add(2*time.Hour+10*time.Minute))
	if ev := <-rebuilt; ev["changed"] != 0 {
		t.Fatalf("rebuilt event = %v", ev)
	}
	select {
	case ev := <-changes:
		t.Fatalf("unexpected change %v", ev)
	default:
	}
}

func TestBuildIsPure(t *testing.T) {
	n := clock.DefaultNormalizer()
	at := scenarioStart.Add(10 * time.Minute)
	a := Build(scenarioDefinition(), scenarioResources, at, n)
	b := Build(scenarioDefinition(), scenarioResources, at, n)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("Build() not deterministic:\n%+v\n%+v", a, b)
	}
	if picks := a.Picks(); len(picks) != 1 || picks[0].Slot != "banner" || picks[0].Resource != "b-val" {
		t.Fatalf("Picks() = %+v", picks)
	}
}

func TestSnapshotStoreIsScopedByZone(t *testing.T) {
	def := &schedule.Definition{}
	def.Add(schedule.Any, schedule.Literal(10), "banner", schedule.Entry{ResourceID: "A"})
	store := &memoryStore{items: make(map[string]*schedule.Activity)}
	at := scenarioStart.Add(10 * time.Minute)

	tokyo := New(scenarioResources, def, WithSnapshotStore(store, time.Second))
	if got, ok := tokyo.GetAt("banner", at); !ok || got != "a-val" {
		t.Fatalf("UTC+9 GetAt = %q, %v", got, ok)
	}

	utc := New(scenarioResources, def,
		WithSnapshotStore(store, time.Second),
		WithNormalizer(clock.NewNormalizer(0)),
	)
	if got, ok := utc.GetAt("banner", at); ok {
		t.Fatalf("UTC instance reused the UTC+9 snapshot: %q", got)
	}
	if store.writes != 2 {
		t.Fatalf("store writes = %d, want one per zone", store.writes)
	}
	if SnapshotKey(def.Digest(), clock.NewNormalizer(0)) == SnapshotKey(def.Digest(), clock.DefaultNormalizer()) {
		t.Fatal("snapshot keys should differ by zone")
	}
}
