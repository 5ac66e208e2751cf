package exclusion

import (
	"fmt"
	"sort"
	"time"
)

// ParseError reports a malformed exclusion row. A parse failure poisons the
// whole channel it belongs to: that channel is dropped from the index and
// reported, while every other channel proceeds normally.
type ParseError struct {
	Channel string
	Row     int // 1-based row number in the source
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("exclusion row %d (channel %q): %s", e.Row, e.Channel, e.Reason)
}

// Row is one normalized exclusion source row.
type Row struct {
	Channel string
	Start   string
	End     string
	Value   string // magnitude or reference value, carried opaquely
}

// Window is a validated exclusion interval. The interval is half-open:
// a timestamp t is covered iff Start <= t < End. A window with Start == End
// covers nothing; it is kept out of the index but is not an error.
type Window struct {
	Channel string
	Start   time.Time
	End     time.Time
	Value   string
}

// timestampLayouts are the accepted source formats, tried in order.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
}

// interval is a merged half-open span in unix nanoseconds.
type interval struct {
	start int64
	end   int64
}

// Index answers point-in-interval queries per channel. It is built once
// before a run and read-only afterwards. Queries are O(log m) over the
// channel's merged, sorted intervals.
type Index struct {
	channels map[string][]interval
	windows  int
}

// Build normalizes exclusion rows into an Index. Overlapping windows on the
// same channel are honored as a union. Malformed rows are returned as
// ParseErrors and their channels are dropped entirely; the index is still
// usable for the surviving channels.
func Build(rows []Row) (*Index, []ParseError) {
	var errs []ParseError
	perChannel := make(map[string][]Window)
	poisoned := make(map[string]bool)

	for i, row := range rows {
		rowNum := i + 1
		if row.Channel == "" {
			errs = append(errs, ParseError{Row: rowNum, Reason: "missing channel reference"})
			continue
		}

		w, err := parseWindow(row)
		if err != nil {
			errs = append(errs, ParseError{Channel: row.Channel, Row: rowNum, Reason: err.Error()})
			poisoned[row.Channel] = true
			continue
		}
		perChannel[row.Channel] = append(perChannel[row.Channel], w)
	}

	idx := &Index{channels: make(map[string][]interval)}
	for channel, windows := range perChannel {
		if poisoned[channel] {
			continue
		}
		merged := mergeWindows(windows)
		if len(merged) > 0 {
			idx.channels[channel] = merged
			idx.windows += len(merged)
		}
	}

	return idx, errs
}

func parseWindow(row Row) (Window, error) {
	start, err := parseTimestamp(row.Start)
	if err != nil {
		return Window{}, fmt.Errorf("malformed start timestamp %q", row.Start)
	}
	end, err := parseTimestamp(row.End)
	if err != nil {
		return Window{}, fmt.Errorf("malformed end timestamp %q", row.End)
	}
	if end.Before(start) {
		return Window{}, fmt.Errorf("end %q precedes start %q", row.End, row.Start)
	}
	return Window{Channel: row.Channel, Start: start, End: end, Value: row.Value}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// mergeWindows sorts the channel's windows and merges overlapping or
// touching intervals so a query needs a single binary search.
func mergeWindows(windows []Window) []interval {
	spans := make([]interval, 0, len(windows))
	for _, w := range windows {
		start, end := w.Start.UnixNano(), w.End.UnixNano()
		if start == end {
			// Empty window: excludes nothing.
			continue
		}
		spans = append(spans, interval{start: start, end: end})
	}
	if len(spans) == 0 {
		return nil
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// IsExcluded reports whether the timestamp falls inside the union of the
// channel's exclusion windows. Boundary semantics are half-open:
// start <= t < end.
func (idx *Index) IsExcluded(channel string, t time.Time) bool {
	spans := idx.channels[channel]
	if len(spans) == 0 {
		return false
	}

	ts := t.UnixNano()
	// First interval starting after ts; the candidate is the one before it.
	i := sort.Search(len(spans), func(i int) bool { return spans[i].start > ts })
	if i == 0 {
		return false
	}
	return ts < spans[i-1].end
}

// ChannelCount returns the number of channels with at least one window.
func (idx *Index) ChannelCount() int {
	return len(idx.channels)
}

// WindowCount returns the number of merged intervals in the index.
func (idx *Index) WindowCount() int {
	return idx.windows
}
