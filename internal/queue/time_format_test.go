package queue

import (
	"sort"
	"testing"
	"time"
)

func TestFormatTimeOrdersLexicographically(t *testing.T) {
	base := time.Date(2026, 8, 29, 10, 30, 5, 0, time.UTC)
	times := []time.Time{
		base.Add(500 * time.Millisecond),
		base,
		base.Add(time.Second),
		base.Add(999 * time.Millisecond),
		base.Add(time.Nanosecond),
	}

	formatted := make([]string, len(times))
	for i, ts := range times {
		formatted[i] = formatTime(ts)
	}
	sort.Strings(formatted)

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i, ts := range times {
		if formatted[i] != formatTime(ts) {
			t.Fatalf("string order diverges from time order at %d: %v vs %s", i, ts, formatted[i])
		}
	}
}

func TestFormatTimeFixedWidth(t *testing.T) {
	whole := formatTime(time.Date(2026, 8, 29, 10, 30, 5, 0, time.UTC))
	fractional := formatTime(time.Date(2026, 8, 29, 10, 30, 5, 500000000, time.UTC))
	if len(whole) != len(fractional) {
		t.Fatalf("timestamps must be fixed width: %q vs %q", whole, fractional)
	}
	if _, err := time.Parse(time.RFC3339Nano, whole); err != nil {
		t.Fatalf("stored timestamp must stay parseable: %v", err)
	}
}
