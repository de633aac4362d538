package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/friendsincode/slotcast/internal/clock"
	"github.com/friendsincode/slotcast/internal/models"
	"github.com/friendsincode/slotcast/internal/priority"
	"github.com/friendsincode/slotcast/internal/resolver"
	"github.com/friendsincode/slotcast/internal/schedule"
)

var monday10 = time.Date(2024, 3, 4, 10, 0, 0, 0, clock.DefaultNormalizer().Zone())

func testDefinition() *schedule.Definition {
	def := &schedule.Definition{}
	def.Add(schedule.Any, schedule.Any, "banner", schedule.Entry{ResourceID: "spring", Priority: priority.Of(1)})
	def.Add(schedule.Literal(1), schedule.Literal(10), "banner", schedule.Entry{ResourceID: "promo", Priority: priority.Of(2)})
	return def
}

func testResolver() *resolver.Resolver[models.Resource] {
	resources := map[string]models.Resource{
		"spring": {ID: "spring", Title: "Spring"},
		"promo":  {ID: "promo", Title: "Promo"},
	}
	return resolver.New(resources, testDefinition())
}

func TestWriteResolution(t *testing.T) {
	var buf bytes.Buffer
	if err := writeResolution(&buf, testResolver(), monday10.Add(5*time.Minute), ""); err != nil {
		t.Fatalf("writeResolution: %v", err)
	}

	var got struct {
		NextUpdate time.Time `json:"next_update"`
		Picks      []struct {
			Slot       string `json:"slot"`
			ResourceID string `json:"resource_id"`
		} `json:"picks"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(got.Picks) != 1 || got.Picks[0].Slot != "banner" || got.Picks[0].ResourceID != "promo" {
		t.Fatalf("picks = %+v", got.Picks)
	}
	if !got.NextUpdate.Equal(monday10.Add(time.Hour)) {
		t.Fatalf("next_update = %s", got.NextUpdate)
	}
}

func TestWriteResolutionUnknownSlot(t *testing.T) {
	var buf bytes.Buffer
	if err := writeResolution(&buf, testResolver(), monday10, "sidebar"); err == nil {
		t.Fatal("expected error for a slot with nothing active")
	}
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	writeSummary(&buf, testDefinition(), []string{"promo"})

	out := buf.String()
	for _, want := range []string{"entries:   2", "slots:     banner", "missing:   promo"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
