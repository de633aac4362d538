package schedule

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/friendsincode/slotcast/internal/clock"
)

const sampleYAML = `
"*":
  "*":
    banner:
      - resourceId: A
        priority: 1
      - resourceId: B
        priority: 2
        start: 1709514000
        end: 1709517600
7:
  23:
    sidebar:
      - resourceId: late
        duration: 0.5
1:
  9:
    sidebar:
      - resourceId: early
    banner: []
`

func TestParseYAML(t *testing.T) {
	def, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	var days []string
	for _, d := range def.Days {
		days = append(days, d.Key.String())
	}
	if want := []string{"1", "7", "*"}; !reflect.DeepEqual(days, want) {
		t.Fatalf("day order = %v, want %v", days, want)
	}

	if got, want := def.SlotIDs(), []string{"sidebar", "banner"}; !reflect.DeepEqual(got, want) {
		t.Errorf("SlotIDs() = %v, want %v", got, want)
	}
	if def.EntryCount() != 4 {
		t.Errorf("EntryCount() = %d, want 4", def.EntryCount())
	}

	wild := def.Days[2].Hours[0].Slots[0]
	if wild.ID != "banner" || len(wild.Entries) != 2 {
		t.Fatalf("wildcard slot = %+v", wild)
	}
	b := wild.Entries[1]
	if b.ResourceID != "B" || b.Start == nil || *b.Start != 1709514000 || b.End == nil || *b.End != 1709517600 {
		t.Errorf("entry B = %+v", b)
	}
	if v, ok := b.Priority.Value(); !ok || v != 2 {
		t.Errorf("entry B priority = %s", b.Priority)
	}
	if late := def.Days[1].Hours[0].Slots[0].Entries[0]; late.Duration == nil || *late.Duration != 0.5 || late.Priority.IsSet() {
		t.Errorf("late entry = %+v", late)
	}
}

func TestParseJSON(t *testing.T) {
	data := `{"*": {"*": {"banner": [{"resourceId": "A", "priority": 0}]}}}`
	def, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(def.Days) != 1 || !def.Days[0].Key.IsAny() || !def.Days[0].Hours[0].Key.IsAny() {
		t.Fatalf("unexpected structure: %+v", def)
	}
	if v, ok := def.Days[0].Hours[0].Slots[0].Entries[0].Priority.Value(); !ok || v != 0 {
		t.Errorf("zero priority should be set")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"bad day key", "monday:\n  1:\n    s: []\n", ErrInvalidKey},
		{"bad hour key", "1:\n  noon:\n    s: []\n", ErrInvalidKey},
		{"duplicate literal day", "1:\n  1:\n    s: []\n01:\n  2:\n    s: []\n", ErrDuplicateKey},
		{"duplicate slot", "1:\n  1:\n    s: []\n    s: []\n", ErrDuplicateKey},
		{"non numeric priority", "1:\n  1:\n    s:\n      - resourceId: x\n        priority: high\n", ErrInvalidEntry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Parse() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := Parse([]byte("- 1\n- 2\n")); err == nil {
		t.Error("expected error for non-mapping document")
	}
}

func TestParseEmptyDocument(t *testing.T) {
	def, err := Read(strings.NewReader(""))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(def.Days) != 0 {
		t.Fatalf("expected empty definition")
	}
}

func TestDigestTracksContent(t *testing.T) {
	a, _ := Parse([]byte(sampleYAML))
	b, _ := Parse([]byte(sampleYAML))
	if a.Digest() == "" || a.Digest() != b.Digest() {
		t.Fatalf("equal definitions should share a digest: %q vs %q", a.Digest(), b.Digest())
	}
	b.Add(Any, Any, "banner", Entry{ResourceID: "C"})
	if a.Digest() == b.Digest() {
		t.Fatal("digest should change with content")
	}
}

func TestExportICal(t *testing.T) {
	def := &Definition{}
	def.Add(Literal(2), Literal(8), "banner", Entry{ResourceID: "tuesday"})
	def.Add(Literal(3), Any, "sidebar", Entry{ResourceID: "wednesday"})

	n := clock.DefaultNormalizer()
	stamp := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := ExportICal(def, time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC), n, stamp)

	if out.Events != 25 {
		t.Fatalf("events = %d, want 25", out.Events)
	}
	body := string(out.Data)
	if !strings.Contains(body, "DTSTART:20240304T230000Z") {
		t.Errorf("missing tuesday 08:00 JST event:\n%s", body)
	}
	if !strings.Contains(body, "SUMMARY:banner: tuesday") {
		t.Errorf("missing summary")
	}
	if out.Filename != "slot-schedule-2024-W10.ics" {
		t.Errorf("filename = %q", out.Filename)
	}
}

func TestExportICalCapsUnboundedEntries(t *testing.T) {
	def := &Definition{}
	def.Add(Literal(1), Literal(0), "banner", Entry{ResourceID: "forever", Duration: float64p(math.Inf(1))})

	out := ExportICal(def, time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC), clock.DefaultNormalizer(), time.Now())
	if out.Events != 1 {
		t.Fatalf("events = %d, want 1", out.Events)
	}
	if body := string(out.Data); !strings.Contains(body, "DTEND:99991231T235959Z") {
		t.Errorf("unbounded entry should end at the last iCalendar instant:\n%s", body)
	}
}
