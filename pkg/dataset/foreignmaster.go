package dataset

import (
	"fmt"

	"github.com/openptp/ptpcore"
)

// MinForeignMasterCapacity is the floor the protocol requires (§3, §6):
// "fixed-capacity set (>= 5 entries required by protocol)".
const MinForeignMasterCapacity = 5

// MinAnnounceSamples is the minimum number of within-window Announces an
// entry must have accumulated before it qualifies for BMCA consideration
// (§3, §4.6): "most recent N (>= 2) Announce windows".
const MinAnnounceSamples = 2

// foreignMasterHistoryCap bounds the per-entry Announce-timestamp ring;
// only the qualification count and most recent Announce actually matter
// to BMCA, so a small fixed ring is sufficient and keeps the structure
// allocation-free after construction.
const foreignMasterHistoryCap = 8

// ForeignMasterEntry is one sender's most recent qualified state (§4.6).
type ForeignMasterEntry struct {
	Sender       ptpcore.PortIdentity
	Vector       PriorityVector
	LastAnnounce ptpcore.Timestamp
	history      [foreignMasterHistoryCap]ptpcore.Timestamp
	historyLen   int
	historyNext  int
}

// WithinWindowCount returns how many of the entry's recorded Announces
// fall within [now-window, now].
func (e *ForeignMasterEntry) WithinWindowCount(now ptpcore.Timestamp, windowNanos int64) int {
	count := 0
	for i := 0; i < e.historyLen; i++ {
		if now.Sub(e.history[i]) <= ptpcore.Duration(windowNanos) {
			count++
		}
	}
	return count
}

// Qualified reports whether this entry has enough recent Announces to be
// considered by BMCA (§4.6: ">= 2 Announces within the window").
func (e *ForeignMasterEntry) Qualified(now ptpcore.Timestamp, windowNanos int64) bool {
	return e.WithinWindowCount(now, windowNanos) >= MinAnnounceSamples
}

func (e *ForeignMasterEntry) record(ts ptpcore.Timestamp, v PriorityVector) {
	e.history[e.historyNext] = ts
	e.historyNext = (e.historyNext + 1) % foreignMasterHistoryCap
	if e.historyLen < foreignMasterHistoryCap {
		e.historyLen++
	}
	e.LastAnnounce = ts
	e.Vector = v
}

// ForeignMasterList is the fixed-capacity set of §3/§4.6: keyed by sender
// PortIdentity, at least MinForeignMasterCapacity distinct senders, LRU
// eviction on overflow.
type ForeignMasterList struct {
	capacity int
	entries  []ForeignMasterEntry
}

// NewForeignMasterList constructs a list with the given capacity, which
// must be at least MinForeignMasterCapacity.
func NewForeignMasterList(capacity int) (*ForeignMasterList, error) {
	if capacity < MinForeignMasterCapacity {
		return nil, fmt.Errorf("%w: foreign_master_capacity %d below minimum %d", ptpcore.ErrConfigConflict, capacity, MinForeignMasterCapacity)
	}
	return &ForeignMasterList{
		capacity: capacity,
		entries:  make([]ForeignMasterEntry, 0, capacity),
	}, nil
}

func (l *ForeignMasterList) indexOf(sender ptpcore.PortIdentity) int {
	for i := range l.entries {
		if l.entries[i].Sender == sender {
			return i
		}
	}
	return -1
}

// Record registers an Announce from sender carrying vector, observed at
// now. If sender is not yet tracked and the list is at capacity, the
// least-recently-heard entry is evicted to make room (§3, §4.6); this
// never fails, matching §5's "never silent truncation of
// protocol-meaningful state" by always making room rather than dropping
// the new Announce.
func (l *ForeignMasterList) Record(sender ptpcore.PortIdentity, vector PriorityVector, now ptpcore.Timestamp) {
	if i := l.indexOf(sender); i >= 0 {
		l.entries[i].record(now, vector)
		return
	}

	if len(l.entries) >= l.capacity {
		oldest := 0
		for i := 1; i < len(l.entries); i++ {
			if l.entries[i].LastAnnounce.Sub(l.entries[oldest].LastAnnounce) < 0 {
				oldest = i
			}
		}
		l.entries[oldest] = ForeignMasterEntry{Sender: sender}
		l.entries[oldest].record(now, vector)
		return
	}

	e := ForeignMasterEntry{Sender: sender}
	e.record(now, vector)
	l.entries = append(l.entries, e)
}

// EvictExpired removes entries whose most recent Announce is older than
// windowNanos relative to now — run "before any BMCA run" per the §3
// invariant and §4.6's eviction rule.
func (l *ForeignMasterList) EvictExpired(now ptpcore.Timestamp, windowNanos int64) {
	kept := l.entries[:0]
	for _, e := range l.entries {
		if now.Sub(e.LastAnnounce) <= ptpcore.Duration(windowNanos) {
			kept = append(kept, e)
		}
	}
	l.entries = kept
}

// Qualified returns the subset of tracked entries that currently qualify
// for BMCA consideration (§4.6), as a snapshot — a pure value copy, not a
// reference into live state (§5).
func (l *ForeignMasterList) Qualified(now ptpcore.Timestamp, windowNanos int64) []ForeignMasterEntry {
	var out []ForeignMasterEntry
	for i := range l.entries {
		if l.entries[i].Qualified(now, windowNanos) {
			out = append(out, l.entries[i])
		}
	}
	return out
}

// Len returns the number of distinct senders currently tracked (qualified
// or not).
func (l *ForeignMasterList) Len() int { return len(l.entries) }

// Clear empties the list, e.g. on INITIALIZING -> LISTENING (§4.1: "clear
// foreign list").
func (l *ForeignMasterList) Clear() { l.entries = l.entries[:0] }
