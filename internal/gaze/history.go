package gaze

import (
	"fmt"
	"time"
)

// HistoryEntry is one sample attributed to a target.
type HistoryEntry struct {
	Target    *TargetItem
	Timestamp time.Duration
	Duration  time.Duration
}

// History is the time-windowed queue of samples. Entries are appended at
// the tail in non-decreasing timestamp order and evicted from the head.
type History struct {
	entries []HistoryEntry
}

// Len returns the number of entries in the window.
func (h *History) Len() int {
	return len(h.entries)
}

// Entries returns a copy of the entries, oldest first.
func (h *History) Entries() []HistoryEntry {
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Append adds an entry at the tail and credits its duration to the target.
func (h *History) Append(e HistoryEntry) {
	h.entries = append(h.entries, e)
	e.Target.DetailedTime += e.Duration
}

// Evict drops entries older than window relative to now. Each evicted
// duration is taken off its target's DetailedTime and, once the target has
// left PreEnter, moved into its OverflowTime.
func (h *History) Evict(now, window time.Duration) int {
	n := 0
	for len(h.entries) > 0 && now-h.entries[0].Timestamp > window {
		oldest := h.entries[0]
		h.entries[0] = HistoryEntry{}
		h.entries = h.entries[1:]
		n++

		target := oldest.Target
		if target.DetailedTime-oldest.Duration < 0 {
			panic(fmt.Sprintf("gaze: detailed time %v of target underflows by evicted %v",
				target.DetailedTime, oldest.Duration))
		}
		target.DetailedTime -= oldest.Duration
		if target.State != PreEnter {
			target.OverflowTime += oldest.Duration
		}
	}
	return n
}

// Purge removes every entry referring to target.
func (h *History) Purge(target *TargetItem) int {
	kept := h.entries[:0]
	for _, e := range h.entries {
		if e.Target != target {
			kept = append(kept, e)
		}
	}
	removed := len(h.entries) - len(kept)
	for i := len(kept); i < len(h.entries); i++ {
		h.entries[i] = HistoryEntry{}
	}
	h.entries = kept
	return removed
}

// Clear drops all entries.
func (h *History) Clear() {
	h.entries = nil
}
