/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/slotcast/internal/clock"
)

// ICalExport is a rendered calendar of one ISO week of a definition.
type ICalExport struct {
	Data        []byte
	Filename    string
	ContentType string
	Events      int
}

// icalLatest is the last instant an iCalendar DATE-TIME can express.
var icalLatest = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// ExportICal renders every entry window of the ISO week containing weekOf.
// Wildcard days expand to all seven weekdays and wildcard hours to all
// twenty-four hours, mirroring how they resolve as time advances. Windows
// that are empty after clamping to start/end are omitted.
func ExportICal(def *Definition, weekOf time.Time, n clock.Normalizer, stamp time.Time) *ICalExport {
	coords := n.Normalize(weekOf)

	var buf bytes.Buffer
	buf.WriteString("BEGIN:VCALENDAR\r\n")
	buf.WriteString("VERSION:2.0\r\n")
	buf.WriteString("PRODID:-//Slotcast//Schedule Export//EN\r\n")
	buf.WriteString(fmt.Sprintf("X-WR-CALNAME:Slot schedule %d-W%02d\r\n", coords.ISOYear, coords.ISOWeek))
	buf.WriteString("CALSCALE:GREGORIAN\r\n")
	buf.WriteString("METHOD:PUBLISH\r\n")

	digest := def.Digest()
	count := 0
	for _, day := range def.Days {
		for _, weekday := range expand(day.Key, 1, 7) {
			for _, hour := range day.Hours {
				for _, h := range expand(hour.Key, 0, 23) {
					scheduleTime := n.HourStart(coords.ISOYear, coords.ISOWeek, weekday, h)
					for _, slot := range hour.Slots {
						for i, entry := range slot.Entries {
							after, until := entry.Window(scheduleTime)
							if !until.After(after) {
								continue
							}
							if until.After(icalLatest) {
								until = icalLatest
							}
							writeEvent(&buf, eventUID(digest, day.Key, weekday, hour.Key, h, slot.ID, i), stamp, after, until, slot.ID, entry)
							count++
						}
					}
				}
			}
		}
	}

	buf.WriteString("END:VCALENDAR\r\n")

	return &ICalExport{
		Data:        buf.Bytes(),
		Filename:    fmt.Sprintf("slot-schedule-%d-W%02d.ics", coords.ISOYear, coords.ISOWeek),
		ContentType: "text/calendar; charset=utf-8",
		Events:      count,
	}
}

func writeEvent(buf *bytes.Buffer, uid string, stamp, start, end time.Time, slot string, entry Entry) {
	buf.WriteString("BEGIN:VEVENT\r\n")
	buf.WriteString(fmt.Sprintf("UID:%s\r\n", uid))
	buf.WriteString(fmt.Sprintf("DTSTAMP:%s\r\n", formatICalTime(stamp)))
	buf.WriteString(fmt.Sprintf("DTSTART:%s\r\n", formatICalTime(start)))
	buf.WriteString(fmt.Sprintf("DTEND:%s\r\n", formatICalTime(end)))
	buf.WriteString(fmt.Sprintf("SUMMARY:%s\r\n", escapeICalText(slot+": "+entry.ResourceID)))
	buf.WriteString(fmt.Sprintf("DESCRIPTION:%s\r\n", escapeICalText("priority "+entry.Priority.String())))
	buf.WriteString(fmt.Sprintf("CATEGORIES:%s\r\n", escapeICalText(slot)))
	buf.WriteString("END:VEVENT\r\n")
}

func eventUID(digest string, dayKey Key, weekday int, hourKey Key, hour int, slot string, index int) string {
	return fmt.Sprintf("%s-%s%d-%s%d-%s-%d@slotcast", digest, dayKey, weekday, hourKey, hour, slugify(slot), index)
}

// expand lists the concrete values a key stands for within [lo, hi].
func expand(k Key, lo, hi int) []int {
	if !k.IsAny() {
		return []int{k.Resolve(0)}
	}
	out := make([]int, 0, hi-lo+1)
	for v := lo; v <= hi; v++ {
		out = append(out, v)
	}
	return out
}

func formatICalTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

func escapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
